package models

import "time"

// NotificationType drives the toast styling on the client.
type NotificationType string

const (
	NotificationSuccess NotificationType = "success"
	NotificationUpdate  NotificationType = "update"
	NotificationError   NotificationType = "error"
)

// Notification is a short message kept in a per-user feed.
type Notification struct {
	ID        string           `json:"id"`
	Title     string           `json:"title"`
	Message   string           `json:"message"`
	Type      NotificationType `json:"type"`
	CreatedAt time.Time        `json:"created_at"`
}
