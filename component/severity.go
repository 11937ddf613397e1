package component

// Severity is the urgency attached to a notification.
type Severity string

const (
	Info    Severity = "info"
	Success Severity = "success"
	Warning Severity = "warning"
	Error   Severity = "error"
)

func (s Severity) Valid() bool {
	switch s {
	case Info, Success, Warning, Error:
		return true
	}
	return false
}
