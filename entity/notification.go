package entity

import (
	"time"

	"taskflow/component"
)

type Notification struct {
	ID        int64              `json:"id"`
	UserID    int64              `json:"user_id"`
	Message   string             `json:"message"`
	Severity  component.Severity `json:"severity"`
	Read      bool               `json:"read"`
	Link      string             `json:"link,omitempty"`
	CreatedAt time.Time          `json:"created_at"`
	// DedupScope and DedupKey are only set on reminder notifications.
	DedupScope string `json:"-"`
	DedupKey   string `json:"-"`
}
