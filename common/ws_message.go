package common

import (
	"time"

	"taskflow/entity"
)

const EventNotification = "notification"

type WSMessage struct {
	Event        string               `json:"event"`
	Notification *entity.Notification `json:"notification,omitempty"`
	Timestamp    string               `json:"timestamp,omitempty"`
}

func NewNotificationMessage(n entity.Notification, at time.Time) WSMessage {
	return WSMessage{
		Event:        EventNotification,
		Notification: &n,
		Timestamp:    at.UTC().Format(time.RFC3339),
	}
}
