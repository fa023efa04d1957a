package usecase

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"repochat/internal/domain"
)

func newTestChatService(store domain.ChatStore) *ChatService {
	return NewChatService(ChatServiceDeps{Store: store, Logger: discardLogger()})
}

func TestChatServiceOpenNewAndLive(t *testing.T) {
	svc := newTestChatService(newMemStore())

	a, err := svc.Open(context.Background(), "c1", "u1")
	require.NoError(t, err)
	b, err := svc.Open(context.Background(), "c1", "u1")
	require.NoError(t, err)
	assert.Same(t, a, b)
	assert.Equal(t, "u1", a.Read().UserID)
}

func TestChatServiceOpenFromStore(t *testing.T) {
	store := newMemStore()
	require.NoError(t, store.Save(context.Background(), domain.Chat{
		ID:       "c1",
		UserID:   "u1",
		Messages: []domain.Message{{ID: "m1", Role: domain.RoleUser, Content: "hi"}},
	}))
	svc := newTestChatService(store)

	conv, err := svc.Open(context.Background(), "c1", "u1")
	require.NoError(t, err)
	assert.Equal(t, 1, conv.Len())
}

func TestChatServiceOpenRepairsBrokenPairs(t *testing.T) {
	store := newMemStore()
	require.NoError(t, store.Save(context.Background(), domain.Chat{
		ID:     "c1",
		UserID: "u1",
		Messages: []domain.Message{
			{ID: "m1", Role: domain.RoleUser, Content: "list"},
			repairCall("call-1"),
		},
	}))
	svc := newTestChatService(store)

	conv, err := svc.Open(context.Background(), "c1", "u1")
	require.NoError(t, err)
	chat := conv.Read()
	require.Len(t, chat.Messages, 1)
	assert.NoError(t, domain.ValidatePairing(chat.Messages))

	saved, err := store.Get(context.Background(), "c1")
	require.NoError(t, err)
	assert.Len(t, saved.Messages, 1, "stored rows rewritten with the repaired history")
	assert.Equal(t, 1, store.replaces)
}

func TestChatServiceOpenOtherUsersChat(t *testing.T) {
	store := newMemStore()
	require.NoError(t, store.Save(context.Background(), domain.Chat{ID: "c1", UserID: "owner"}))
	svc := newTestChatService(store)

	_, err := svc.Open(context.Background(), "c1", "intruder")
	require.ErrorIs(t, err, domain.ErrChatNotFound)
}

func TestChatServiceOpenLiveChatWithoutUser(t *testing.T) {
	svc := newTestChatService(newMemStore())
	_, err := svc.Open(context.Background(), "c1", "owner")
	require.NoError(t, err)

	_, err = svc.Open(context.Background(), "c1", "")
	require.ErrorIs(t, err, domain.ErrChatNotFound)
	_, err = svc.Open(context.Background(), "c1", "intruder")
	require.ErrorIs(t, err, domain.ErrChatNotFound)
}

func TestChatServiceOpenStoredChatWithoutUser(t *testing.T) {
	store := newMemStore()
	require.NoError(t, store.Save(context.Background(), domain.Chat{ID: "c1", UserID: "owner"}))
	svc := newTestChatService(store)

	_, err := svc.Open(context.Background(), "c1", "")
	require.ErrorIs(t, err, domain.ErrChatNotFound)
}

func TestChatServicePersist(t *testing.T) {
	store := newMemStore()
	svc := newTestChatService(store)
	long := strings.Repeat("é", 150)
	chat := domain.Chat{
		ID:        "c1",
		CreatedAt: time.Now(),
		Messages: []domain.Message{
			{Role: domain.RoleAssistant, Content: "welcome"},
			{Role: domain.RoleUser, Content: long},
		},
	}

	require.NoError(t, svc.Persist(context.Background(), chat, nil))
	assert.Zero(t, store.saveCount(), "no session, no save")

	require.NoError(t, svc.Persist(context.Background(), chat, signedIn()))
	saved, err := store.Get(context.Background(), "c1")
	require.NoError(t, err)
	assert.Equal(t, "u1", saved.UserID)
	assert.Equal(t, "/chat/c1", saved.Path)
	assert.Equal(t, strings.Repeat("é", 100), saved.Title)
}

func TestChatServiceRestoreAndDelete(t *testing.T) {
	store := newMemStore()
	require.NoError(t, store.Save(context.Background(), domain.Chat{
		ID:     "c1",
		UserID: "u1",
		Messages: []domain.Message{
			{ID: "m1", Role: domain.RoleUser, Content: "hi"},
			{ID: "m2", Role: domain.RoleAssistant, Content: "hello"},
		},
	}))
	svc := newTestChatService(store)

	chat, frags, err := svc.Restore(context.Background(), "c1", "u1")
	require.NoError(t, err)
	assert.Len(t, chat.Messages, 2)
	require.Len(t, frags, 2)
	assert.Equal(t, domain.FragmentUser, frags[0].Kind)
	assert.Equal(t, domain.FragmentText, frags[1].Kind)

	list, err := svc.List(context.Background(), "u1")
	require.NoError(t, err)
	assert.Len(t, list, 1)

	require.NoError(t, svc.Delete(context.Background(), "c1", "u1"))
	_, err = store.Get(context.Background(), "c1")
	require.ErrorIs(t, err, domain.ErrChatNotFound)
}

func TestChatTitle(t *testing.T) {
	assert.Equal(t, "", ChatTitle(nil))
	assert.Equal(t, "first", ChatTitle([]domain.Message{
		{Role: domain.RoleAssistant, Content: "ignored"},
		{Role: domain.RoleUser, Content: "  first  "},
		{Role: domain.RoleUser, Content: "second"},
	}))
}
