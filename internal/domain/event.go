package domain

import (
	"context"
	"encoding/json"
	"time"
)

// EventType identifies the kind of event being published.
type EventType string

const (
	EventAgentRegistered  EventType = "agent.registered"
	EventAgentRouted      EventType = "agent.routed"
	EventAgentCallFailed  EventType = "agent.call.failed"
	EventWorkflowStarted  EventType = "workflow.started"
	EventWorkflowComplete EventType = "workflow.completed"
	EventWorkflowFailed   EventType = "workflow.failed"
)

// Event is the envelope published on the event bus.
type Event struct {
	Type      EventType       `json:"type"`
	Timestamp time.Time       `json:"timestamp"`
	ThreadID  string          `json:"thread_id,omitempty"`
	Payload   json.RawMessage `json:"payload,omitempty"`
}

// NewEvent builds an Event with a JSON-encoded payload. Payloads that fail to
// encode are dropped rather than failing the caller.
func NewEvent(t EventType, threadID string, payload any) Event {
	e := Event{Type: t, Timestamp: time.Now(), ThreadID: threadID}
	if payload != nil {
		if data, err := json.Marshal(payload); err == nil {
			e.Payload = data
		}
	}
	return e
}

// EventHandler is a callback invoked when an event is received.
type EventHandler func(ctx context.Context, event Event)

// EventBus provides a publish/subscribe mechanism for domain events.
type EventBus interface {
	// Publish sends an event to all matching subscribers.
	Publish(ctx context.Context, event Event)
	// Subscribe registers a handler for a specific event type.
	// Returns an unsubscribe function.
	Subscribe(eventType EventType, handler EventHandler) func()
	// SubscribeAll registers a handler that receives every event.
	// Returns an unsubscribe function.
	SubscribeAll(handler EventHandler) func()
	// Close drains in-flight handlers and prevents new publishes.
	Close()
}

// RoutedEvent is the payload of agent.routed and agent.call.failed.
type RoutedEvent struct {
	MessageID  string     `json:"message_id"`
	Capability Capability `json:"capability"`
	Agent      string     `json:"agent"`
	DurationMs int64      `json:"duration_ms"`
	Error      string     `json:"error,omitempty"`
}

// WorkflowEvent is the payload of workflow.* events.
type WorkflowEvent struct {
	Stage     string `json:"stage,omitempty"`
	Errors    int    `json:"errors,omitempty"`
	Fixes     int    `json:"fixes,omitempty"`
	Error     string `json:"error,omitempty"`
	ElapsedMs int64  `json:"elapsed_ms,omitempty"`
}
