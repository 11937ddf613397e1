package entity

import (
	"time"

	"taskflow/component"
)

type Task struct {
	ID          int64              `json:"id"`
	Title       string             `json:"title"`
	Description string             `json:"description,omitempty"`
	DueDate     time.Time          `json:"due_date"`
	Priority    component.Priority `json:"priority"`
	Status      component.Status   `json:"status"`
	UserID      int64              `json:"user_id"`
	// Username is resolved from the owner when the task is loaded by a scan.
	Username    string     `json:"-"`
	CategoryIDs []int64    `json:"category_ids"`
	CreatedAt   time.Time  `json:"created_at"`
	UpdatedAt   *time.Time `json:"updated_at,omitempty"`
}

// Link is the deep link embedded in notifications about this task.
func (t Task) Link() string {
	return TaskLink(t.ID)
}
