package store

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"repochat/internal/domain"
)

// MemoryChatStore is an in-process domain.ChatStore with the same
// append-only rules as SQLiteChatStore.
type MemoryChatStore struct {
	mu    sync.RWMutex
	chats map[string]domain.Chat
}

// NewMemoryChatStore creates an empty store.
func NewMemoryChatStore() *MemoryChatStore {
	return &MemoryChatStore{chats: make(map[string]domain.Chat)}
}

// Save implements domain.ChatStore.
func (s *MemoryChatStore) Save(_ context.Context, chat domain.Chat) error {
	return s.write(chat, false)
}

// Replace implements domain.ChatStore.
func (s *MemoryChatStore) Replace(_ context.Context, chat domain.Chat) error {
	return s.write(chat, true)
}

func (s *MemoryChatStore) write(chat domain.Chat, replace bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if prev, ok := s.chats[chat.ID]; ok {
		if prev.UserID != chat.UserID {
			return fmt.Errorf("save chat %s: %w: owned by another user", chat.ID, domain.ErrConflict)
		}
		if !replace {
			ids := make([]string, len(prev.Messages))
			for i, m := range prev.Messages {
				ids[i] = m.ID
			}
			if err := extendsHistory(chat, ids); err != nil {
				return err
			}
		}
		chat.CreatedAt = prev.CreatedAt
		chat.Path = prev.Path
	}
	if chat.Path == "" {
		chat.Path = domain.ChatPath(chat.ID)
	}
	s.chats[chat.ID] = cloneChat(chat)
	return nil
}

// Get implements domain.ChatStore.
func (s *MemoryChatStore) Get(_ context.Context, id string) (*domain.Chat, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	c, ok := s.chats[id]
	if !ok {
		return nil, fmt.Errorf("get chat %s: %w", id, domain.ErrChatNotFound)
	}
	out := cloneChat(c)
	return &out, nil
}

// List implements domain.ChatStore.
func (s *MemoryChatStore) List(_ context.Context, userID string) ([]domain.ChatSummary, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := []domain.ChatSummary{}
	for _, c := range s.chats {
		if c.UserID != userID {
			continue
		}
		out = append(out, domain.ChatSummary{
			ID:           c.ID,
			Title:        c.Title,
			Path:         c.Path,
			CreatedAt:    c.CreatedAt,
			MessageCount: len(c.Messages),
		})
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].ID > out[j].ID
		}
		return out[i].CreatedAt.After(out[j].CreatedAt)
	})
	return out, nil
}

// Delete implements domain.ChatStore.
func (s *MemoryChatStore) Delete(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.chats, id)
	return nil
}

// cloneChat copies the message slice and each message's parts so callers
// cannot mutate stored history.
func cloneChat(c domain.Chat) domain.Chat {
	msgs := make([]domain.Message, len(c.Messages))
	for i, m := range c.Messages {
		if m.Parts != nil {
			m.Parts = append([]domain.Part(nil), m.Parts...)
		}
		msgs[i] = m
	}
	c.Messages = msgs
	return c
}

var _ domain.ChatStore = (*MemoryChatStore)(nil)

// extendsHistory reports ErrConflict unless chat's messages start with the
// stored message IDs.
func extendsHistory(chat domain.Chat, stored []string) error {
	if len(stored) > len(chat.Messages) {
		return fmt.Errorf("save chat %s: %w: stored history has %d messages, got %d",
			chat.ID, domain.ErrConflict, len(stored), len(chat.Messages))
	}
	for i, id := range stored {
		if chat.Messages[i].ID != id {
			return fmt.Errorf("save chat %s: %w: history diverges at message %d",
				chat.ID, domain.ErrConflict, i)
		}
	}
	return nil
}
