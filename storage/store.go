package storage

import (
	"errors"
	"strings"

	"taskflow/component"
)

var (
	ErrNotFound  = errors.New("not found")
	ErrDuplicate = errors.New("duplicate")
)

// IsUniqueViolation reports whether err comes from a UNIQUE constraint.
func IsUniqueViolation(err error) bool {
	if err == nil {
		return false
	}
	msg := err.Error()
	return strings.Contains(msg, "UNIQUE") || strings.Contains(msg, "duplicate")
}

// TaskFilter controls filtering, sorting and pagination for task listings.
type TaskFilter struct {
	Status   component.Status
	Priority component.Priority
	Search   string
	SortBy   string
	SortDesc bool
	Limit    int
	Offset   int
}

var sortColumns = map[string]string{
	"created_at": "created_at",
	"updated_at": "updated_at",
	"due_date":   "due_date",
	"title":      "title",
	"priority":   "priority",
	"status":     "status",
}

// SortColumn maps a user supplied sort field to a column name.
// Unknown fields fall back to created_at.
func SortColumn(field string) string {
	if col, ok := sortColumns[field]; ok {
		return col
	}
	return "created_at"
}
