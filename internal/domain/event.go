package domain

import (
	"context"
	"encoding/json"
	"time"
)

// EventType identifies the kind of event being published.
type EventType string

const (
	EventTurnStarted       EventType = "turn.started"
	EventTurnCompleted     EventType = "turn.completed"
	EventTurnFailed        EventType = "turn.failed"
	EventToolCallStarted   EventType = "tool.call.started"
	EventToolCallCompleted EventType = "tool.call.completed"
	EventChatSaved         EventType = "chat.saved"
)

// Event is the envelope published on the event bus.
type Event struct {
	Type      EventType       `json:"type"`
	Timestamp time.Time       `json:"timestamp"`
	ChatID    string          `json:"chat_id,omitempty"`
	Payload   json.RawMessage `json:"payload,omitempty"`
}

// ToolEventPayload is the payload for tool.call.* events.
type ToolEventPayload struct {
	ToolCallID string   `json:"tool_call_id"`
	Tool       ToolName `json:"tool"`
	Outcome    string   `json:"outcome,omitempty"`
}

// TurnEventPayload is the payload for turn.* events.
type TurnEventPayload struct {
	State    string `json:"state"`
	Duration string `json:"duration,omitempty"`
	Error    string `json:"error,omitempty"`
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
