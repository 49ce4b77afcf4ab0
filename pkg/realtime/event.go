// Package realtime fans table change events out to websocket clients.
package realtime

import (
	"context"
	"time"
)

// Tables that emit change events.
const (
	TableRecords = "attendance_records"
	TableDetails = "attendance_details"
	TableTasks   = "review_tasks"
)

// ChangeEvent describes a committed write.
type ChangeEvent struct {
	Table  string    `json:"table"`
	Action string    `json:"action"`
	ID     string    `json:"id,omitempty"`
	At     time.Time `json:"at"`
}

// Frame is the message written to websocket clients after coalescing.
type Frame struct {
	Type   string    `json:"type"`
	Tables []string  `json:"tables"`
	At     time.Time `json:"at"`
}

// Publisher emits change events.
type Publisher interface {
	Publish(ctx context.Context, event ChangeEvent) error
}

// LocalPublisher delivers events straight to an in-process hub.
type LocalPublisher struct {
	hub *Hub
}

// NewLocalPublisher wraps hub as a Publisher.
func NewLocalPublisher(hub *Hub) *LocalPublisher {
	return &LocalPublisher{hub: hub}
}

// Publish implements Publisher.
func (p *LocalPublisher) Publish(_ context.Context, event ChangeEvent) error {
	p.hub.Notify(event)
	return nil
}

// NopPublisher drops every event.
type NopPublisher struct{}

// Publish implements Publisher.
func (NopPublisher) Publish(context.Context, ChangeEvent) error { return nil }
