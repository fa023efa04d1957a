package usecase

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"unicode/utf8"

	"go.opentelemetry.io/otel/trace"

	"repochat/internal/domain"
	"repochat/internal/infra/tracer"
)

// maxTitleRunes bounds a chat title derived from its first user message.
const maxTitleRunes = 100

// ChatServiceDeps holds the collaborators of ChatService.
type ChatServiceDeps struct {
	Store    domain.ChatStore
	Logger   *slog.Logger
	EventBus domain.EventBus // optional
}

// ChatService owns the live conversations of a process and their
// persistence.
type ChatService struct {
	store  domain.ChatStore
	logger *slog.Logger
	bus    domain.EventBus

	mu   sync.Mutex
	live map[string]*Conversation
}

// NewChatService creates a chat service.
func NewChatService(deps ChatServiceDeps) *ChatService {
	return &ChatService{
		store:  deps.Store,
		logger: deps.Logger,
		bus:    deps.EventBus,
		live:   make(map[string]*Conversation),
	}
}

// Open returns the live conversation for chatID, loading it from the store
// or starting a new one. A stored chat owned by another user is reported as
// ErrChatNotFound.
func (s *ChatService) Open(ctx context.Context, chatID, userID string) (*Conversation, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if conv, ok := s.live[chatID]; ok {
		if !canOpen(conv.Read().UserID, userID) {
			return nil, fmt.Errorf("open chat %s: %w", chatID, domain.ErrChatNotFound)
		}
		return conv, nil
	}

	stored, err := s.store.Get(ctx, chatID)
	switch {
	case err == nil:
		if !canOpen(stored.UserID, userID) {
			return nil, fmt.Errorf("open chat %s: %w", chatID, domain.ErrChatNotFound)
		}
		if err := domain.ValidatePairing(stored.Messages); err != nil {
			repaired := RepairTranscript(stored.Messages)
			s.logger.Warn("repaired stored chat", "chat_id", chatID,
				"dropped", len(stored.Messages)-len(repaired), "error", err)
			stored.Messages = repaired
			// Later saves append to the stored rows, so they must hold the
			// repaired history first.
			if err := s.store.Replace(ctx, *stored); err != nil {
				s.logger.Error("repaired chat not saved", "chat_id", chatID, "error", err)
			}
		}
		conv := RestoreConversation(*stored)
		s.live[chatID] = conv
		return conv, nil
	case errors.Is(err, domain.ErrChatNotFound):
		conv := NewConversation(chatID)
		conv.chat.UserID = userID
		s.live[chatID] = conv
		return conv, nil
	default:
		return nil, fmt.Errorf("open chat %s: %w", chatID, err)
	}
}

// canOpen reports whether userID may open a chat owned by owner. Chats
// without an owner are open to anyone.
func canOpen(owner, userID string) bool {
	return owner == "" || owner == userID
}

// Persist saves a committed chat for the session's user. It does nothing
// without a session.
func (s *ChatService) Persist(ctx context.Context, chat domain.Chat, session *domain.AuthSession) error {
	if session == nil {
		return nil
	}

	ctx, span := tracer.StartSpan(ctx, "store.save",
		trace.WithAttributes(
			tracer.StringAttr("chat.id", chat.ID),
			tracer.IntAttr("chat.messages", len(chat.Messages)),
		),
	)
	defer span.End()

	chat.UserID = session.UserID
	chat.Path = domain.ChatPath(chat.ID)
	chat.Title = ChatTitle(chat.Messages)

	if err := s.store.Save(ctx, chat); err != nil {
		tracer.RecordError(span, err)
		return fmt.Errorf("persist chat %s: %w", chat.ID, err)
	}
	tracer.SetOK(span)
	publishEvent(ctx, s.bus, domain.EventChatSaved, chat.ID, map[string]any{
		"title":    chat.Title,
		"messages": len(chat.Messages),
	})
	return nil
}

// List returns the user's saved chats, newest first.
func (s *ChatService) List(ctx context.Context, userID string) ([]domain.ChatSummary, error) {
	list, err := s.store.List(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("list chats: %w", err)
	}
	return list, nil
}

// Restore loads a chat and replays it into display fragments.
func (s *ChatService) Restore(ctx context.Context, chatID, userID string) (domain.Chat, []domain.Fragment, error) {
	conv, err := s.Open(ctx, chatID, userID)
	if err != nil {
		return domain.Chat{}, nil, err
	}
	chat := conv.Read()
	return chat, RenderHistory(chat.Messages), nil
}

// Delete removes a chat from the store and from memory.
func (s *ChatService) Delete(ctx context.Context, chatID, userID string) error {
	if _, err := s.Open(ctx, chatID, userID); err != nil {
		return err
	}
	s.mu.Lock()
	delete(s.live, chatID)
	s.mu.Unlock()
	if err := s.store.Delete(ctx, chatID); err != nil {
		return fmt.Errorf("delete chat %s: %w", chatID, err)
	}
	return nil
}

// ChatTitle is the first user message trimmed to maxTitleRunes runes.
func ChatTitle(msgs []domain.Message) string {
	for _, m := range msgs {
		if m.Role != domain.RoleUser {
			continue
		}
		title := strings.TrimSpace(m.Content)
		if utf8.RuneCountInString(title) > maxTitleRunes {
			title = string([]rune(title)[:maxTitleRunes])
		}
		return title
	}
	return ""
}
