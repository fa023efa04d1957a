package usecase

import (
	"context"
	"encoding/json"
	"time"

	"repochat/internal/domain"
)

// publishEvent is a no-op when bus is nil.
func publishEvent(ctx context.Context, bus domain.EventBus, eventType domain.EventType, chatID string, payload any) {
	if bus == nil {
		return
	}
	var raw json.RawMessage
	if payload != nil {
		if data, err := json.Marshal(payload); err == nil {
			raw = data
		}
	}
	bus.Publish(ctx, domain.Event{
		Type:      eventType,
		Timestamp: time.Now(),
		ChatID:    chatID,
		Payload:   raw,
	})
}
