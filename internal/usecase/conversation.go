package usecase

import (
	"fmt"
	"slices"
	"sync"
	"time"

	"repochat/internal/domain"
)

// Conversation is the in-memory, append-only history of one chat. Writers
// stage messages on a Turn and commit them atomically; a commit fails if
// another commit landed after the turn began.
type Conversation struct {
	mu   sync.RWMutex
	chat domain.Chat
}

// NewConversation starts an empty conversation.
func NewConversation(id string) *Conversation {
	return &Conversation{chat: domain.Chat{
		ID:        id,
		Path:      domain.ChatPath(id),
		CreatedAt: time.Now(),
	}}
}

// RestoreConversation resumes a persisted chat.
func RestoreConversation(chat domain.Chat) *Conversation {
	chat.Messages = slices.Clone(chat.Messages)
	if chat.Path == "" {
		chat.Path = domain.ChatPath(chat.ID)
	}
	return &Conversation{chat: chat}
}

// ID returns the chat ID.
func (c *Conversation) ID() string { return c.chat.ID }

// Read returns a copy of the chat and its history.
func (c *Conversation) Read() domain.Chat {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.snapshotLocked()
}

// Len returns the number of committed messages.
func (c *Conversation) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.chat.Messages)
}

func (c *Conversation) snapshotLocked() domain.Chat {
	cp := c.chat
	cp.Messages = slices.Clone(c.chat.Messages)
	return cp
}

// Begin opens a turn against the current history.
func (c *Conversation) Begin() *Turn {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return &Turn{
		conv:    c,
		base:    len(c.chat.Messages),
		history: slices.Clone(c.chat.Messages),
	}
}

// Commit appends the turn's staged messages. The result is
// old history ++ staged, or an error leaving history unchanged.
func (c *Conversation) Commit(t *Turn) (domain.Chat, error) {
	if t.conv != c {
		return domain.Chat{}, fmt.Errorf("commit: turn belongs to another conversation")
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if t.committed {
		return domain.Chat{}, fmt.Errorf("commit: %w: turn already committed", domain.ErrConflict)
	}
	if len(c.chat.Messages) != t.base {
		return domain.Chat{}, fmt.Errorf("commit: %w: history advanced from %d to %d messages",
			domain.ErrConflict, t.base, len(c.chat.Messages))
	}
	if err := domain.ValidatePairing(t.staged); err != nil {
		return domain.Chat{}, fmt.Errorf("commit: %w", err)
	}

	c.chat.Messages = append(c.chat.Messages, t.staged...)
	t.committed = true
	return c.snapshotLocked(), nil
}

// Turn is a set of messages staged against a fixed history length.
type Turn struct {
	conv      *Conversation
	base      int
	history   []domain.Message
	staged    []domain.Message
	committed bool
}

// Append stages messages, filling in IDs and timestamps.
func (t *Turn) Append(msgs ...domain.Message) {
	for _, m := range msgs {
		if m.ID == "" {
			m.ID = domain.NewID()
		}
		if m.CreatedAt.IsZero() {
			m.CreatedAt = time.Now()
		}
		t.staged = append(t.staged, m)
	}
}

// AppendToolPair stages a tool-call message and its tool-result message.
func (t *Turn) AppendToolPair(inv domain.ToolInvocation, result []byte) {
	name := string(inv.Name)
	t.Append(
		domain.Message{
			Role:  domain.RoleAssistant,
			Parts: []domain.Part{{Type: domain.PartToolCall, ToolCallID: inv.ID, ToolName: name, Args: inv.Raw}},
		},
		domain.Message{
			Role:  domain.RoleTool,
			Name:  name,
			Parts: []domain.Part{{Type: domain.PartToolResult, ToolCallID: inv.ID, ToolName: name, Result: result}},
		},
	)
}

// Staged returns a copy of the messages staged so far.
func (t *Turn) Staged() []domain.Message {
	return slices.Clone(t.staged)
}

// Messages returns the history the turn began from followed by its staged
// messages. This is the context sent to the model.
func (t *Turn) Messages() []domain.Message {
	out := make([]domain.Message, 0, len(t.history)+len(t.staged))
	out = append(out, t.history...)
	return append(out, t.staged...)
}
