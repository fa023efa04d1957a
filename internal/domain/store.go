package domain

import "context"

// ChatStore persists chats keyed by chat ID.
type ChatStore interface {
	// Save upserts the chat and appends messages past the stored history.
	// It returns ErrConflict when the new history does not extend the stored
	// one or the chat belongs to another user.
	Save(ctx context.Context, chat Chat) error
	// Replace upserts the chat and rewrites its whole message history.
	Replace(ctx context.Context, chat Chat) error
	// Get returns ErrChatNotFound when no chat has the given ID.
	Get(ctx context.Context, id string) (*Chat, error)
	// List returns the user's chats, newest first.
	List(ctx context.Context, userID string) ([]ChatSummary, error)
	// Delete removes a chat. Deleting an unknown ID is not an error.
	Delete(ctx context.Context, id string) error
}
