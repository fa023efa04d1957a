package usecase

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"go.opentelemetry.io/otel/trace"

	"repochat/internal/domain"
	"repochat/internal/infra/tracer"
)

// noticeInvalidToolCall is staged when the model asks for a tool that does
// not exist or with arguments that fail validation.
const noticeInvalidToolCall = "The assistant made an invalid tool request."

// TurnState is the position of a turn in its state machine:
// Idle -> StreamingText -> (ToolCall) -> Done, or Failed.
type TurnState int

const (
	StateIdle TurnState = iota
	StateStreamingText
	StateToolCall
	StateDone
	StateFailed
)

func (s TurnState) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateStreamingText:
		return "streaming_text"
	case StateToolCall:
		return "tool_call"
	case StateDone:
		return "done"
	case StateFailed:
		return "failed"
	default:
		return fmt.Sprintf("state(%d)", int(s))
	}
}

// TurnResult is the outcome of one Submit.
type TurnResult struct {
	ChatID string
	State  TurnState
	// Text is the assistant text streamed during the turn.
	Text string
	// Fragment is the tool's final fragment; nil for text-only turns.
	Fragment   *domain.Fragment
	Invocation *domain.ToolInvocation
	// ToolErr is set when the tool failed. The turn still completes; the
	// caller decides presentation from domain.KindOf(ToolErr).
	ToolErr error
	// Chat is the committed snapshot.
	Chat  domain.Chat
	Usage domain.Usage
}

// DispatcherDeps holds the collaborators of the turn dispatcher.
type DispatcherDeps struct {
	LLM          domain.LLMProvider
	Registry     *Registry
	Tools        *ToolRunner
	Chats        *ChatService
	Auth         domain.AuthProvider
	Locker       *ChatLocker
	Logger       *slog.Logger
	EventBus     domain.EventBus // optional
	Model        string
	SystemPrompt string
	// TurnTimeout bounds a whole turn. Zero means no timeout.
	TurnTimeout time.Duration
}

// Dispatcher runs conversation turns: one model round-trip and at most one
// tool call per user message.
type Dispatcher struct {
	deps DispatcherDeps
}

// NewDispatcher creates a dispatcher. An empty SystemPrompt falls back to
// DefaultSystemPrompt and a nil Locker gets a private one.
func NewDispatcher(deps DispatcherDeps) *Dispatcher {
	if deps.SystemPrompt == "" {
		deps.SystemPrompt = DefaultSystemPrompt
	}
	if deps.Locker == nil {
		deps.Locker = NewChatLocker()
	}
	return &Dispatcher{deps: deps}
}

// Submit runs one turn for chatID. Text deltas and tool progress are
// reported to obs as they happen. An error means the turn failed and history
// was left unchanged; tool failures are reported in TurnResult.ToolErr.
func (d *Dispatcher) Submit(ctx context.Context, chatID, content string, obs domain.TurnObserver) (*TurnResult, error) {
	if obs == nil {
		obs = domain.NopObserver{}
	}
	result := &TurnResult{ChatID: chatID, State: StateIdle}
	if strings.TrimSpace(content) == "" {
		result.State = StateFailed
		return result, domain.NewKindError(domain.KindInvalidInput, "Dispatcher.Submit", domain.ErrInvalidInput, "empty message")
	}

	ctx, span := tracer.StartSpan(ctx, "dispatcher.turn",
		trace.WithAttributes(tracer.StringAttr("chat.id", chatID)),
	)
	defer span.End()

	ctx = domain.ContextWithChatID(ctx, chatID)
	if d.deps.TurnTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, d.deps.TurnTimeout)
		defer cancel()
	}

	start := time.Now()
	fail := func(err error) (*TurnResult, error) {
		result.State = StateFailed
		tracer.RecordError(span, err)
		d.deps.Logger.Error("turn failed", "chat_id", chatID, "error", err)
		publishEvent(ctx, d.deps.EventBus, domain.EventTurnFailed, chatID, domain.TurnEventPayload{
			State:    StateFailed.String(),
			Duration: time.Since(start).String(),
			Error:    err.Error(),
		})
		return result, err
	}

	unlock, err := d.deps.Locker.Lock(ctx, chatID)
	if err != nil {
		return fail(domain.NewDomainError("Dispatcher.Submit", err, "chat lock"))
	}
	defer unlock()

	session, err := d.deps.Auth.GetCurrentSession(ctx)
	if err != nil {
		return fail(domain.NewDomainError("Dispatcher.Submit", err, "resolve session"))
	}
	var userID string
	if session != nil {
		userID = session.UserID
	}

	conv, err := d.deps.Chats.Open(ctx, chatID, userID)
	if err != nil {
		return fail(domain.NewDomainError("Dispatcher.Submit", err, "open chat"))
	}

	turn := conv.Begin()
	turn.Append(domain.Message{Role: domain.RoleUser, Content: content})
	result.State = StateStreamingText
	publishEvent(ctx, d.deps.EventBus, domain.EventTurnStarted, chatID, domain.TurnEventPayload{State: result.State.String()})

	req := domain.ChatRequest{
		Model:    d.deps.Model,
		System:   d.deps.SystemPrompt,
		Messages: turn.Messages(),
		Tools:    d.deps.Registry.Schemas(),
	}
	text, calls, usage, err := d.generate(ctx, req, obs)
	if err != nil {
		return fail(domain.NewDomainError("Dispatcher.Submit", err, "model call"))
	}
	result.Text = text
	result.Usage = usage

	if len(calls) == 0 {
		if strings.TrimSpace(text) == "" {
			return fail(domain.NewDomainError("Dispatcher.Submit", domain.ErrProviderNoReply, ""))
		}
		turn.Append(domain.Message{Role: domain.RoleAssistant, Content: text})
	} else {
		result.State = StateToolCall
		if len(calls) > 1 {
			dropped := make([]string, 0, len(calls)-1)
			for _, c := range calls[1:] {
				dropped = append(dropped, c.Name)
			}
			d.deps.Logger.Warn("dropping extra tool calls", "chat_id", chatID, "kept", calls[0].Name, "dropped", dropped)
		}
		if strings.TrimSpace(text) != "" {
			turn.Append(domain.Message{Role: domain.RoleAssistant, Content: text})
		}
		d.runTool(ctx, session, turn, calls[0], obs, result)
	}

	chat, err := conv.Commit(turn)
	if err != nil {
		return fail(domain.NewDomainError("Dispatcher.Submit", err, "commit turn"))
	}
	result.Chat = chat
	result.State = StateDone

	if err := d.deps.Chats.Persist(ctx, chat, session); err != nil {
		d.deps.Logger.Error("chat not saved", "chat_id", chatID, "error", err)
	}

	span.SetAttributes(
		tracer.StringAttr("turn.state", result.State.String()),
		tracer.IntAttr("turn.messages", len(chat.Messages)),
	)
	tracer.SetOK(span)
	publishEvent(ctx, d.deps.EventBus, domain.EventTurnCompleted, chatID, domain.TurnEventPayload{
		State:    result.State.String(),
		Duration: time.Since(start).String(),
	})
	return result, nil
}

// runTool validates and executes one tool call, recording the outcome on
// result. Failures are staged on turn as notices, never returned.
func (d *Dispatcher) runTool(ctx context.Context, session *domain.AuthSession, turn *Turn, call domain.ToolCall, obs domain.TurnObserver, result *TurnResult) {
	chatID := result.ChatID

	inv, err := d.deps.Registry.ParseToolCall(call)
	if err != nil {
		d.deps.Logger.Warn("invalid tool call", "chat_id", chatID, "tool", call.Name, "error", err)
		turn.Append(domain.Message{Role: domain.RoleAssistant, Content: noticeInvalidToolCall})
		frag := domain.ErrorFragment(domain.NewID(), domain.KindOf(err), noticeInvalidToolCall)
		obs.OnToolResult(domain.ToolInvocation{Name: domain.ToolName(call.Name), Raw: call.Arguments}, frag)
		result.Fragment = &frag
		result.ToolErr = err
		return
	}
	result.Invocation = &inv

	publishEvent(ctx, d.deps.EventBus, domain.EventToolCallStarted, chatID, domain.ToolEventPayload{
		ToolCallID: inv.ID,
		Tool:       inv.Name,
	})

	frag, err := d.deps.Tools.Run(ctx, ToolContext{
		Session:    session,
		Turn:       turn,
		Observer:   obs,
		Invocation: inv,
	})
	result.Fragment = &frag
	result.ToolErr = err

	outcome := "ok"
	if err != nil {
		outcome = domain.KindOf(err).String()
	}
	publishEvent(ctx, d.deps.EventBus, domain.EventToolCallCompleted, chatID, domain.ToolEventPayload{
		ToolCallID: inv.ID,
		Tool:       inv.Name,
		Outcome:    outcome,
	})
}

// generate makes the model call, streaming when the provider supports it.
// A turn deadline surfaces as ErrTimeout on either path.
func (d *Dispatcher) generate(ctx context.Context, req domain.ChatRequest, obs domain.TurnObserver) (string, []domain.ToolCall, domain.Usage, error) {
	sp, ok := d.deps.LLM.(domain.StreamingLLMProvider)
	if !ok {
		resp, err := d.deps.LLM.Chat(ctx, req)
		if err != nil {
			return "", nil, domain.Usage{}, asTimeout(ctx, err)
		}
		if resp.Content != "" {
			obs.OnTextDelta(resp.Content)
		}
		return resp.Content, resp.ToolCalls, resp.Usage, nil
	}

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	deltas, err := sp.ChatStream(ctx, req)
	if err != nil {
		return "", nil, domain.Usage{}, asTimeout(ctx, err)
	}

	acc := newStreamAccumulator()
	for delta := range deltas {
		if delta.Err != nil {
			return "", nil, domain.Usage{}, asTimeout(ctx, delta.Err)
		}
		if delta.Content != "" {
			obs.OnTextDelta(delta.Content)
		}
		acc.addDelta(delta)
		if delta.Done {
			break
		}
	}
	if err := ctx.Err(); err != nil {
		return "", nil, domain.Usage{}, asTimeout(ctx, err)
	}
	return acc.content.String(), acc.toolCalls, acc.usage, nil
}

// asTimeout wraps err with ErrTimeout when it comes from a passed deadline.
func asTimeout(ctx context.Context, err error) error {
	if errors.Is(err, domain.ErrTimeout) {
		return err
	}
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(ctx.Err(), context.DeadlineExceeded) {
		return fmt.Errorf("%w: %w", domain.ErrTimeout, err)
	}
	return err
}

// streamAccumulator collects deltas into the full text and tool calls.
type streamAccumulator struct {
	content   strings.Builder
	toolCalls []domain.ToolCall
	usage     domain.Usage
}

func newStreamAccumulator() *streamAccumulator {
	return &streamAccumulator{}
}

// addDelta merges one delta. A tool-call fragment with the ID of a known
// call, or with neither ID nor name, extends that call's arguments; anything
// else starts a new call.
func (acc *streamAccumulator) addDelta(delta domain.StreamDelta) {
	acc.content.WriteString(delta.Content)

	for _, tc := range delta.ToolCalls {
		if existing := acc.find(tc); existing != nil {
			if existing.Name == "" {
				existing.Name = tc.Name
			}
			existing.Arguments = append(existing.Arguments, tc.Arguments...)
			continue
		}
		acc.toolCalls = append(acc.toolCalls, domain.ToolCall{
			ID:        tc.ID,
			Name:      tc.Name,
			Arguments: append([]byte(nil), tc.Arguments...),
		})
	}

	if delta.Usage != nil {
		acc.usage = *delta.Usage
	}
}

func (acc *streamAccumulator) find(tc domain.ToolCall) *domain.ToolCall {
	if tc.ID != "" {
		for i := range acc.toolCalls {
			if acc.toolCalls[i].ID == tc.ID {
				return &acc.toolCalls[i]
			}
		}
		return nil
	}
	if tc.Name == "" && len(acc.toolCalls) > 0 {
		return &acc.toolCalls[len(acc.toolCalls)-1]
	}
	return nil
}
