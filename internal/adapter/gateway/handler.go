package gateway

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"sync"
	"time"

	"repochat/internal/domain"
	"repochat/internal/usecase"
)

// HandlerDeps holds dependencies needed by RPC handlers.
type HandlerDeps struct {
	Dispatcher     *usecase.Dispatcher
	Chats          *usecase.ChatService
	Registry       *usecase.Registry
	Locker         *usecase.ChatLocker // can be nil
	Bus            domain.EventBus     // can be nil
	Logger         *slog.Logger
	ActiveRequests *sync.Map // activeKey -> context.CancelFunc; can be nil
}

// RegisterRESTHandlers registers the status and metrics endpoints. Both
// require a gateway token.
func RegisterRESTHandlers(s *Server, deps HandlerDeps) *Metrics {
	startTime := time.Now()
	metrics := NewMetrics()
	if deps.Bus != nil {
		metrics.Subscribe(deps.Bus)
	}

	authMiddleware := func(next http.HandlerFunc) http.HandlerFunc {
		return func(w http.ResponseWriter, r *http.Request) {
			if _, err := s.auth.Authenticate(requestToken(r)); err != nil {
				http.Error(w, "unauthorized", http.StatusUnauthorized)
				return
			}
			next(w, r)
		}
	}

	s.RegisterHTTPRoute("/api/v1/status", authMiddleware(statusHandler(deps, startTime, metrics)))
	s.RegisterHTTPRoute("/metrics", authMiddleware(metricsHandler(deps, startTime, metrics)))
	return metrics
}

// RegisterDefaultHandlers registers all built-in RPC handlers on the server.
func RegisterDefaultHandlers(s *Server, deps HandlerDeps) {
	s.RegisterHandler("chat.send", chatSendHandler(deps))
	s.RegisterHandler("chat.abort", chatAbortHandler(deps))
	s.RegisterHandler("chat.list", chatListHandler(deps))
	s.RegisterHandler("chat.get", chatGetHandler(deps))
	s.RegisterHandler("chat.delete", chatDeleteHandler(deps))
	s.RegisterHandler("tool.list", toolListHandler(deps))
}

func decodePayload(payload json.RawMessage, v any) error {
	if len(payload) == 0 {
		return domain.ErrRPCInvalidPayload
	}
	if err := json.Unmarshal(payload, v); err != nil {
		return fmt.Errorf("%w: %v", domain.ErrRPCInvalidPayload, err)
	}
	return nil
}

// activeKey identifies one in-flight chat.send. The call pointer keeps two
// sends on the same chat from sharing an entry.
type activeKey struct {
	userID string
	chatID string
	call   *Call
}

func userOf(client *ClientInfo) string {
	if client == nil {
		return ""
	}
	return client.UserID
}

// --- chat ---

type chatSendRequest struct {
	ChatID  string `json:"chat_id"`
	Content string `json:"content"`
}

type chatSendResponse struct {
	ChatID   string           `json:"chat_id"`
	State    string           `json:"state"`
	Text     string           `json:"text,omitempty"`
	Fragment *domain.Fragment `json:"fragment,omitempty"`
	ToolErr  *ErrorPayload    `json:"tool_error,omitempty"`
	Usage    domain.Usage     `json:"usage"`
}

// frameObserver streams turn progress to the caller as frames.
type frameObserver struct {
	ctx    context.Context
	call   *Call
	chatID string
	logger *slog.Logger
}

func (o *frameObserver) emit(typ FrameType, payload any) {
	if err := o.call.Emit(o.ctx, typ, payload); err != nil {
		o.logger.Debug("gateway: progress frame not sent", "type", string(typ), "chat_id", o.chatID, "error", err)
	}
}

func (o *frameObserver) OnTextDelta(text string) {
	o.emit(FrameTypeTextDelta, TextDeltaPayload{ChatID: o.chatID, Text: text})
}

func (o *frameObserver) OnToolStart(inv domain.ToolInvocation, placeholder domain.Fragment) {
	o.emit(FrameTypeToolStart, ToolFramePayload{ChatID: o.chatID, ToolCallID: inv.ID, Tool: inv.Name, Fragment: placeholder})
}

func (o *frameObserver) OnToolResult(inv domain.ToolInvocation, result domain.Fragment) {
	o.emit(FrameTypeToolResult, ToolFramePayload{ChatID: o.chatID, ToolCallID: inv.ID, Tool: inv.Name, Fragment: result})
}

func errorPayload(chatID string, err error) *ErrorPayload {
	return &ErrorPayload{
		ChatID:  chatID,
		Kind:    domain.KindOf(err).String(),
		Code:    string(domain.ErrorCodeOf(err)),
		Message: err.Error(),
	}
}

func chatSendHandler(deps HandlerDeps) RPCHandler {
	return func(ctx context.Context, call *Call) (json.RawMessage, error) {
		var req chatSendRequest
		if err := decodePayload(call.Payload, &req); err != nil {
			return nil, err
		}
		if strings.TrimSpace(req.Content) == "" {
			return nil, fmt.Errorf("%w: content is required", domain.ErrRPCInvalidPayload)
		}
		if req.ChatID == "" {
			req.ChatID = domain.NewID()
		}
		// Events are forwarded only once the caller is known to own the chat.
		if _, err := deps.Chats.Open(ctx, req.ChatID, userOf(call.Client)); err != nil {
			return nil, err
		}
		call.Watch(req.ChatID)

		reqCtx, cancel := context.WithCancel(ctx)
		defer cancel()

		if deps.ActiveRequests != nil {
			key := activeKey{userID: userOf(call.Client), chatID: req.ChatID, call: call}
			deps.ActiveRequests.Store(key, cancel)
			defer deps.ActiveRequests.Delete(key)
		}

		obs := &frameObserver{ctx: reqCtx, call: call, chatID: req.ChatID, logger: deps.Logger}
		result, err := deps.Dispatcher.Submit(reqCtx, req.ChatID, req.Content, obs)
		if err != nil {
			obs.emit(FrameTypeError, errorPayload(req.ChatID, err))
			return nil, err
		}

		resp := chatSendResponse{
			ChatID:   result.ChatID,
			State:    result.State.String(),
			Text:     result.Text,
			Fragment: result.Fragment,
			Usage:    result.Usage,
		}
		if result.ToolErr != nil {
			resp.ToolErr = errorPayload(result.ChatID, result.ToolErr)
		}
		obs.emit(FrameTypeDone, resp)
		return json.Marshal(resp)
	}
}

type chatIDRequest struct {
	ChatID string `json:"chat_id"`
}

func (r chatIDRequest) validate() error {
	if r.ChatID == "" {
		return fmt.Errorf("%w: chat_id is required", domain.ErrRPCInvalidPayload)
	}
	return nil
}

func chatAbortHandler(deps HandlerDeps) RPCHandler {
	return func(_ context.Context, call *Call) (json.RawMessage, error) {
		var req chatIDRequest
		if err := decodePayload(call.Payload, &req); err != nil {
			return nil, err
		}
		if err := req.validate(); err != nil {
			return nil, err
		}

		// Only the caller's own sends on this chat are cancelled.
		aborted := false
		if deps.ActiveRequests != nil {
			user := userOf(call.Client)
			deps.ActiveRequests.Range(func(k, _ any) bool {
				key, ok := k.(activeKey)
				if !ok || key.chatID != req.ChatID || key.userID != user {
					return true
				}
				if val, loaded := deps.ActiveRequests.LoadAndDelete(k); loaded {
					if cancelFn, ok := val.(context.CancelFunc); ok {
						cancelFn()
						aborted = true
					}
				}
				return true
			})
		}
		return json.Marshal(map[string]bool{"aborted": aborted})
	}
}

func chatListHandler(deps HandlerDeps) RPCHandler {
	return func(ctx context.Context, call *Call) (json.RawMessage, error) {
		chats, err := deps.Chats.List(ctx, userOf(call.Client))
		if err != nil {
			return nil, err
		}
		if chats == nil {
			chats = []domain.ChatSummary{}
		}
		return json.Marshal(chats)
	}
}

type chatGetResponse struct {
	Chat      domain.ChatSummary `json:"chat"`
	Fragments []domain.Fragment  `json:"fragments"`
}

func chatGetHandler(deps HandlerDeps) RPCHandler {
	return func(ctx context.Context, call *Call) (json.RawMessage, error) {
		var req chatIDRequest
		if err := decodePayload(call.Payload, &req); err != nil {
			return nil, err
		}
		if err := req.validate(); err != nil {
			return nil, err
		}
		chat, frags, err := deps.Chats.Restore(ctx, req.ChatID, userOf(call.Client))
		if err != nil {
			return nil, err
		}
		call.Watch(chat.ID)
		return json.Marshal(chatGetResponse{
			Chat: domain.ChatSummary{
				ID:           chat.ID,
				Title:        chat.Title,
				Path:         chat.Path,
				CreatedAt:    chat.CreatedAt,
				MessageCount: len(chat.Messages),
			},
			Fragments: frags,
		})
	}
}

func chatDeleteHandler(deps HandlerDeps) RPCHandler {
	return func(ctx context.Context, call *Call) (json.RawMessage, error) {
		var req chatIDRequest
		if err := decodePayload(call.Payload, &req); err != nil {
			return nil, err
		}
		if err := req.validate(); err != nil {
			return nil, err
		}
		if err := deps.Chats.Delete(ctx, req.ChatID, userOf(call.Client)); err != nil {
			return nil, err
		}
		return json.Marshal(map[string]bool{"deleted": true})
	}
}

// --- tools ---

func toolListHandler(deps HandlerDeps) RPCHandler {
	return func(_ context.Context, _ *Call) (json.RawMessage, error) {
		return json.Marshal(deps.Registry.Schemas())
	}
}
