// Package events publishes workflow outcomes to interested parties: the
// gateway event stream in process, and optionally Redis or RabbitMQ.
package events

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// Type names an event.
type Type string

const (
	TypeWorkflowReady  Type = "workflow.ready"
	TypeWorkflowFailed Type = "workflow.failed"
	TypeJoinResult     Type = "join.result"
	TypeSessionReady   Type = "session.ready"
	TypeInitFailed     Type = "session.failed"
	TypeAppTabs        Type = "app.tabs"
	TypePermission     Type = "monitor.permission"
	TypeAlert          Type = "ui.alert"
	TypeAuth           Type = "auth.changed"
)

// Event is one outcome notification.
type Event struct {
	ID        string         `json:"id"`
	Type      Type           `json:"type"`
	ChannelID string         `json:"channel_id,omitempty"`
	Data      map[string]any `json:"data,omitempty"`
	Timestamp time.Time      `json:"timestamp"`
}

// New creates an event with a fresh id and the current time.
func New(typ Type, channelID string, data map[string]any) Event {
	return Event{
		ID:        uuid.NewString(),
		Type:      typ,
		ChannelID: channelID,
		Data:      data,
		Timestamp: time.Now(),
	}
}

// Handler receives events.
type Handler func(ctx context.Context, ev Event)

// Publisher is the write side of a bus.
type Publisher interface {
	Publish(ctx context.Context, ev Event) error
}

// Bus delivers published events to subscribers.
type Bus interface {
	Publisher

	Start() error
	Stop() error

	// Subscribe registers h for every event and returns a function that
	// removes it.
	Subscribe(h Handler) func()

	GetMetrics() map[string]uint64
}

// Nop discards events.
type Nop struct{}

func (Nop) Publish(context.Context, Event) error { return nil }
