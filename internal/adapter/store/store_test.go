package store

import (
	"context"
	"encoding/json"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"repochat/internal/domain"
)

func newSQLite(t *testing.T) domain.ChatStore {
	t.Helper()
	s, err := NewSQLiteChatStore(filepath.Join(t.TempDir(), "nested", "chats.db"))
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func newMemory(t *testing.T) domain.ChatStore {
	t.Helper()
	return NewMemoryChatStore()
}

var backends = map[string]func(t *testing.T) domain.ChatStore{
	"sqlite": newSQLite,
	"memory": newMemory,
}

func sampleChat(id, user string, created time.Time) domain.Chat {
	at := created.Add(time.Second)
	return domain.Chat{
		ID:        id,
		Title:     "show my repos",
		UserID:    user,
		Path:      domain.ChatPath(id),
		CreatedAt: created,
		Messages: []domain.Message{
			{ID: "m1", Role: domain.RoleUser, Content: "show my repos", CreatedAt: at},
			{ID: "m2", Role: domain.RoleAssistant, CreatedAt: at, Parts: []domain.Part{{
				Type: domain.PartToolCall, ToolCallID: "c1", ToolName: "list_repositories", Args: json.RawMessage(`{}`),
			}}},
			{ID: "m3", Role: domain.RoleTool, CreatedAt: at, Parts: []domain.Part{{
				Type: domain.PartToolResult, ToolCallID: "c1", ToolName: "list_repositories", Result: json.RawMessage(`[]`),
			}}},
		},
	}
}

func TestChatStore_Contract(t *testing.T) {
	for name, open := range backends {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			s := open(t)
			created := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)

			chat := sampleChat("c-1", "u1", created)
			require.NoError(t, s.Save(ctx, chat))

			got, err := s.Get(ctx, "c-1")
			require.NoError(t, err)
			assert.Equal(t, "u1", got.UserID)
			assert.Equal(t, "/chat/c-1", got.Path)
			assert.True(t, created.Equal(got.CreatedAt))
			require.Len(t, got.Messages, 3)
			assert.Equal(t, "show my repos", got.Messages[0].Content)
			call, ok := got.Messages[1].ToolCallPart()
			require.True(t, ok)
			assert.Equal(t, "c1", call.ToolCallID)
			assert.JSONEq(t, `{}`, string(call.Args))
			require.NoError(t, domain.ValidatePairing(got.Messages))

			// Appending keeps the stored prefix.
			chat.Messages = append(chat.Messages, domain.Message{ID: "m4", Role: domain.RoleAssistant, Content: "done", CreatedAt: created})
			require.NoError(t, s.Save(ctx, chat))
			got, err = s.Get(ctx, "c-1")
			require.NoError(t, err)
			require.Len(t, got.Messages, 4)
			assert.Equal(t, "done", got.Messages[3].Content)
			assert.Equal(t, "m1", got.Messages[0].ID)
		})
	}
}

func TestChatStore_RejectsShorterHistory(t *testing.T) {
	for name, open := range backends {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			s := open(t)
			chat := sampleChat("c-1", "u1", time.Now())
			require.NoError(t, s.Save(ctx, chat))

			chat.Messages = chat.Messages[:1]
			assert.ErrorIs(t, s.Save(ctx, chat), domain.ErrConflict)
		})
	}
}

func TestChatStore_RejectsDivergentHistory(t *testing.T) {
	for name, open := range backends {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			s := open(t)
			chat := sampleChat("c-1", "u1", time.Now())
			require.NoError(t, s.Save(ctx, chat))

			// Same length plus one, but the stored tool call was dropped.
			chat.Messages = []domain.Message{
				chat.Messages[0],
				{ID: "m5", Role: domain.RoleUser, Content: "new question"},
				{ID: "m6", Role: domain.RoleAssistant, Content: "reply"},
				{ID: "m7", Role: domain.RoleAssistant, Content: "more"},
			}
			assert.ErrorIs(t, s.Save(ctx, chat), domain.ErrConflict)

			got, err := s.Get(ctx, "c-1")
			require.NoError(t, err)
			assert.Len(t, got.Messages, 3, "stored history untouched")
		})
	}
}

func TestChatStore_ReplaceRewritesHistory(t *testing.T) {
	for name, open := range backends {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			s := open(t)
			chat := sampleChat("c-1", "u1", time.Now())
			// Unpaired call left by an interrupted turn.
			chat.Messages = chat.Messages[:2]
			require.NoError(t, s.Save(ctx, chat))

			chat.Messages = chat.Messages[:1]
			require.NoError(t, s.Replace(ctx, chat))

			chat.Messages = append(chat.Messages,
				domain.Message{ID: "m5", Role: domain.RoleUser, Content: "new question"},
				domain.Message{ID: "m6", Role: domain.RoleAssistant, Content: "reply"},
			)
			require.NoError(t, s.Save(ctx, chat))

			got, err := s.Get(ctx, "c-1")
			require.NoError(t, err)
			require.Len(t, got.Messages, 3)
			assert.Equal(t, "new question", got.Messages[1].Content)
			assert.Equal(t, "reply", got.Messages[2].Content)
			assert.NoError(t, domain.ValidatePairing(got.Messages))

			assert.ErrorIs(t, s.Replace(ctx, sampleChat("c-1", "intruder", time.Now())), domain.ErrConflict)
		})
	}
}

func TestChatStore_RejectsOtherOwner(t *testing.T) {
	for name, open := range backends {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			s := open(t)
			require.NoError(t, s.Save(ctx, sampleChat("c-1", "u1", time.Now())))

			assert.ErrorIs(t, s.Save(ctx, sampleChat("c-1", "intruder", time.Now())), domain.ErrConflict)
		})
	}
}

func TestChatStore_GetMissing(t *testing.T) {
	for name, open := range backends {
		t.Run(name, func(t *testing.T) {
			_, err := open(t).Get(context.Background(), "nope")
			assert.ErrorIs(t, err, domain.ErrChatNotFound)
		})
	}
}

func TestChatStore_ListNewestFirstPerUser(t *testing.T) {
	for name, open := range backends {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			s := open(t)
			base := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
			require.NoError(t, s.Save(ctx, sampleChat("old", "u1", base)))
			require.NoError(t, s.Save(ctx, sampleChat("new", "u1", base.Add(time.Hour))))
			require.NoError(t, s.Save(ctx, sampleChat("other", "u2", base.Add(2*time.Hour))))

			list, err := s.List(ctx, "u1")
			require.NoError(t, err)
			require.Len(t, list, 2)
			assert.Equal(t, "new", list[0].ID)
			assert.Equal(t, "old", list[1].ID)
			assert.Equal(t, 3, list[0].MessageCount)
			assert.Equal(t, "/chat/new", list[0].Path)

			empty, err := s.List(ctx, "nobody")
			require.NoError(t, err)
			assert.Empty(t, empty)
		})
	}
}

func TestChatStore_Delete(t *testing.T) {
	for name, open := range backends {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			s := open(t)
			require.NoError(t, s.Save(ctx, sampleChat("c-1", "u1", time.Now())))

			require.NoError(t, s.Delete(ctx, "c-1"))
			_, err := s.Get(ctx, "c-1")
			assert.ErrorIs(t, err, domain.ErrChatNotFound)
			assert.NoError(t, s.Delete(ctx, "c-1"), "deleting twice is fine")

			// A deleted ID can be reused from scratch.
			require.NoError(t, s.Save(ctx, sampleChat("c-1", "u2", time.Now())))
		})
	}
}

func TestMemoryChatStore_IsolatesCallers(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryChatStore()
	chat := sampleChat("c-1", "u1", time.Now())
	require.NoError(t, s.Save(ctx, chat))

	chat.Messages[0].Content = "mutated"
	got, err := s.Get(ctx, "c-1")
	require.NoError(t, err)
	assert.Equal(t, "show my repos", got.Messages[0].Content)

	got.Messages[1].Parts[0].ToolName = "mutated"
	again, err := s.Get(ctx, "c-1")
	require.NoError(t, err)
	assert.Equal(t, "list_repositories", again.Messages[1].Parts[0].ToolName)
}
