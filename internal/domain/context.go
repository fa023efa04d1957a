package domain

import "context"

type ctxKey string

const chatCtxKey ctxKey = "chat_id"

// ContextWithChatID returns a new context carrying the chat ID. The
// dispatcher sets it per turn so tool logs can name the chat.
func ContextWithChatID(ctx context.Context, chatID string) context.Context {
	return context.WithValue(ctx, chatCtxKey, chatID)
}

// ChatIDFromContext returns the chat ID, or "" outside a turn.
func ChatIDFromContext(ctx context.Context) string {
	if v, ok := ctx.Value(chatCtxKey).(string); ok {
		return v
	}
	return ""
}
