package component

type Status string

const (
	Todo       Status = "todo"
	InProgress Status = "in_progress"
	Done       Status = "done"
)

var validStatuses = map[Status]bool{
	Todo:       true,
	InProgress: true,
	Done:       true,
}

func (s Status) Valid() bool {
	return validStatuses[s]
}

type Priority string

const (
	Low    Priority = "low"
	Medium Priority = "medium"
	High   Priority = "high"
)

var validPriorities = map[Priority]bool{
	Low:    true,
	Medium: true,
	High:   true,
}

func (p Priority) Valid() bool {
	return validPriorities[p]
}
