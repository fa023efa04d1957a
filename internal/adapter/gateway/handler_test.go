package gateway

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"

	"repochat/internal/adapter/auth"
	"repochat/internal/adapter/store"
	"repochat/internal/domain"
	"repochat/internal/usecase"
)

// scriptedLLM returns its responses in order, then plain text.
type scriptedLLM struct {
	mu        sync.Mutex
	responses []domain.ChatResponse
}

func (l *scriptedLLM) Name() string { return "scripted" }

func (l *scriptedLLM) Chat(_ context.Context, _ domain.ChatRequest) (*domain.ChatResponse, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if len(l.responses) == 0 {
		return &domain.ChatResponse{Content: "ok"}, nil
	}
	resp := l.responses[0]
	l.responses = l.responses[1:]
	return &resp, nil
}

func handlerTestDeps(t *testing.T, llm domain.LLMProvider) HandlerDeps {
	t.Helper()
	logger := discardLogger()
	registry := usecase.MustNewRegistry()
	chats := usecase.NewChatService(usecase.ChatServiceDeps{Store: store.NewMemoryChatStore(), Logger: logger})
	locker := usecase.NewChatLocker()
	tools := usecase.NewToolRunner(usecase.ToolRunnerDeps{LLM: llm, Registry: registry, Logger: logger})
	dispatcher := usecase.NewDispatcher(usecase.DispatcherDeps{
		LLM:      llm,
		Registry: registry,
		Tools:    tools,
		Chats:    chats,
		Auth:     auth.ContextAuthProvider{},
		Locker:   locker,
		Logger:   logger,
	})
	return HandlerDeps{
		Dispatcher:     dispatcher,
		Chats:          chats,
		Registry:       registry,
		Locker:         locker,
		Logger:         logger,
		ActiveRequests: &sync.Map{},
	}
}

func startHandlerServer(t *testing.T, deps HandlerDeps) *Server {
	t.Helper()
	srv := NewServer(nil, newTestAuth(), "127.0.0.1:0", discardLogger())
	RegisterDefaultHandlers(srv, deps)
	return srv
}

func framesOfType(frames []Frame, typ FrameType) []Frame {
	var out []Frame
	for _, f := range frames {
		if f.Type == typ {
			out = append(out, f)
		}
	}
	return out
}

func TestChatSend_TextTurn(t *testing.T) {
	llm := &scriptedLLM{responses: []domain.ChatResponse{{Content: "Hello there"}}}
	srv := startHandlerServer(t, handlerTestDeps(t, llm))
	conn := dialTestServer(t, startTestServer(t, srv), "test-token")

	sendRequest(t, conn, 1, "chat.send", chatSendRequest{ChatID: "c1", Content: "hi"})
	frames := readUntilResponse(t, conn, 1)

	deltas := framesOfType(frames, FrameTypeTextDelta)
	if len(deltas) != 1 {
		t.Fatalf("text deltas = %d, want 1", len(deltas))
	}
	var delta TextDeltaPayload
	if err := json.Unmarshal(deltas[0].Payload, &delta); err != nil {
		t.Fatalf("unmarshal delta: %v", err)
	}
	if delta.Text != "Hello there" || delta.ChatID != "c1" {
		t.Errorf("delta = %+v", delta)
	}
	if len(framesOfType(frames, FrameTypeDone)) != 1 {
		t.Errorf("expected one done frame, got %+v", frames)
	}

	resp := frames[len(frames)-1]
	if resp.Error != "" {
		t.Fatalf("response error: %s", resp.Error)
	}
	var out chatSendResponse
	if err := json.Unmarshal(resp.Payload, &out); err != nil {
		t.Fatalf("unmarshal response: %v", err)
	}
	if out.State != "done" || out.Text != "Hello there" || out.Fragment != nil {
		t.Errorf("response = %+v", out)
	}
}

func TestChatSend_ToolTurnStreamsFragments(t *testing.T) {
	llm := &scriptedLLM{responses: []domain.ChatResponse{{
		ToolCalls: []domain.ToolCall{{ID: "call_0", Name: string(domain.ToolShowAnalysisModes), Arguments: json.RawMessage(`{}`)}},
	}}}
	srv := startHandlerServer(t, handlerTestDeps(t, llm))
	conn := dialTestServer(t, startTestServer(t, srv), "test-token")

	sendRequest(t, conn, 2, "chat.send", chatSendRequest{ChatID: "c2", Content: "what can you do?"})
	frames := readUntilResponse(t, conn, 2)

	if n := len(framesOfType(frames, FrameTypeToolStart)); n != 1 {
		t.Fatalf("tool_start frames = %d, want 1", n)
	}
	results := framesOfType(frames, FrameTypeToolResult)
	if len(results) != 1 {
		t.Fatalf("tool_result frames = %d, want 1", len(results))
	}
	var tf ToolFramePayload
	if err := json.Unmarshal(results[0].Payload, &tf); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if tf.Tool != domain.ToolShowAnalysisModes || tf.Fragment.Kind != domain.FragmentAnalysisModes {
		t.Errorf("tool result = %+v", tf)
	}
	if len(tf.Fragment.Modes) != len(domain.AnalysisModes) {
		t.Errorf("modes = %d, want %d", len(tf.Fragment.Modes), len(domain.AnalysisModes))
	}
}

func TestChatSend_InvalidPayload(t *testing.T) {
	srv := startHandlerServer(t, handlerTestDeps(t, &scriptedLLM{}))
	conn := dialTestServer(t, startTestServer(t, srv), "test-token")

	sendRequest(t, conn, 3, "chat.send", chatSendRequest{ChatID: "c3", Content: "   "})
	f := readFrame(t, conn)
	if f.Code != string(domain.CodeRPCInvalidPayload) {
		t.Errorf("code = %q, want %q", f.Code, domain.CodeRPCInvalidPayload)
	}
}

func TestChatListGetDelete(t *testing.T) {
	llm := &scriptedLLM{responses: []domain.ChatResponse{{Content: "Sure"}}}
	srv := startHandlerServer(t, handlerTestDeps(t, llm))
	conn := dialTestServer(t, startTestServer(t, srv), "test-token")

	sendRequest(t, conn, 1, "chat.send", chatSendRequest{ChatID: "c4", Content: "list my repos"})
	readUntilResponse(t, conn, 1)

	sendRequest(t, conn, 2, "chat.list", map[string]string{})
	frames := readUntilResponse(t, conn, 2)
	var list []domain.ChatSummary
	if err := json.Unmarshal(frames[len(frames)-1].Payload, &list); err != nil {
		t.Fatalf("unmarshal list: %v", err)
	}
	if len(list) != 1 || list[0].ID != "c4" || list[0].Title != "list my repos" {
		t.Fatalf("list = %+v", list)
	}

	sendRequest(t, conn, 3, "chat.get", chatIDRequest{ChatID: "c4"})
	frames = readUntilResponse(t, conn, 3)
	var got chatGetResponse
	if err := json.Unmarshal(frames[len(frames)-1].Payload, &got); err != nil {
		t.Fatalf("unmarshal get: %v", err)
	}
	if len(got.Fragments) != 2 || got.Fragments[0].Kind != domain.FragmentUser || got.Fragments[1].Text != "Sure" {
		t.Errorf("fragments = %+v", got.Fragments)
	}

	sendRequest(t, conn, 4, "chat.delete", chatIDRequest{ChatID: "c4"})
	frames = readUntilResponse(t, conn, 4)
	if frames[len(frames)-1].Error != "" {
		t.Fatalf("delete error: %s", frames[len(frames)-1].Error)
	}

	sendRequest(t, conn, 5, "chat.list", map[string]string{})
	frames = readUntilResponse(t, conn, 5)
	if err := json.Unmarshal(frames[len(frames)-1].Payload, &list); err != nil {
		t.Fatalf("unmarshal list: %v", err)
	}
	if len(list) != 0 {
		t.Errorf("list after delete = %+v", list)
	}
}

func TestChatGet_MissingChatID(t *testing.T) {
	srv := startHandlerServer(t, handlerTestDeps(t, &scriptedLLM{}))
	conn := dialTestServer(t, startTestServer(t, srv), "test-token")

	sendRequest(t, conn, 1, "chat.get", chatIDRequest{})
	f := readFrame(t, conn)
	if f.Code != string(domain.CodeRPCInvalidPayload) {
		t.Errorf("code = %q", f.Code)
	}
}

func TestChatAbort_NothingRunning(t *testing.T) {
	srv := startHandlerServer(t, handlerTestDeps(t, &scriptedLLM{}))
	conn := dialTestServer(t, startTestServer(t, srv), "test-token")

	sendRequest(t, conn, 1, "chat.abort", chatIDRequest{ChatID: "idle"})
	f := readFrame(t, conn)
	var out map[string]bool
	if err := json.Unmarshal(f.Payload, &out); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if out["aborted"] {
		t.Error("aborted = true for idle chat")
	}
}

func TestChatAbort_CancelsActiveRequest(t *testing.T) {
	deps := handlerTestDeps(t, &scriptedLLM{})
	ctx, cancel := context.WithCancel(context.Background())
	owner := &ClientInfo{Name: "tester", UserID: "u1"}
	deps.ActiveRequests.Store(activeKey{userID: "u1", chatID: "busy", call: &Call{}}, context.CancelFunc(cancel))

	h := chatAbortHandler(deps)
	raw, err := h(context.Background(), &Call{Client: owner, Payload: json.RawMessage(`{"chat_id":"busy"}`)})
	if err != nil {
		t.Fatalf("abort: %v", err)
	}
	var out map[string]bool
	if err := json.Unmarshal(raw, &out); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if !out["aborted"] {
		t.Error("aborted = false")
	}
	if ctx.Err() == nil {
		t.Error("request context not cancelled")
	}
}

func TestChatAbort_IgnoresOtherUsersRequest(t *testing.T) {
	deps := handlerTestDeps(t, &scriptedLLM{})
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	deps.ActiveRequests.Store(activeKey{userID: "alice", chatID: "busy", call: &Call{}}, context.CancelFunc(cancel))

	bob := &ClientInfo{Name: "bob", UserID: "bob"}
	raw, err := chatAbortHandler(deps)(context.Background(), &Call{Client: bob, Payload: json.RawMessage(`{"chat_id":"busy"}`)})
	if err != nil {
		t.Fatalf("abort: %v", err)
	}
	var out map[string]bool
	if err := json.Unmarshal(raw, &out); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if out["aborted"] {
		t.Error("aborted another user's request")
	}
	if ctx.Err() != nil {
		t.Error("other user's request was cancelled")
	}
}

func TestChatAbort_CancelsEverySendOnChat(t *testing.T) {
	deps := handlerTestDeps(t, &scriptedLLM{})
	ctx1, cancel1 := context.WithCancel(context.Background())
	ctx2, cancel2 := context.WithCancel(context.Background())
	deps.ActiveRequests.Store(activeKey{userID: "u1", chatID: "busy", call: &Call{ID: 1}}, context.CancelFunc(cancel1))
	deps.ActiveRequests.Store(activeKey{userID: "u1", chatID: "busy", call: &Call{ID: 2}}, context.CancelFunc(cancel2))

	owner := &ClientInfo{Name: "tester", UserID: "u1"}
	if _, err := chatAbortHandler(deps)(context.Background(), &Call{Client: owner, Payload: json.RawMessage(`{"chat_id":"busy"}`)}); err != nil {
		t.Fatalf("abort: %v", err)
	}
	if ctx1.Err() == nil || ctx2.Err() == nil {
		t.Error("not every send on the chat was cancelled")
	}
}

// testCall builds a call on a detached connection that buffers its frames.
func testCall(client *ClientInfo, payload any) (*Call, *clientConn) {
	raw, _ := json.Marshal(payload)
	cc := &clientConn{info: client, sendCh: make(chan Frame, 64), done: make(chan struct{})}
	return &Call{Client: client, ID: 1, Payload: raw, cc: cc}, cc
}

func TestChatSend_ForeignChatIsNotWatched(t *testing.T) {
	deps := handlerTestDeps(t, &scriptedLLM{responses: []domain.ChatResponse{{Content: "noted"}}})
	send := chatSendHandler(deps)

	alice := &ClientInfo{Name: "alice", UserID: "alice"}
	call, _ := testCall(alice, chatSendRequest{ChatID: "secret", Content: "my private repo plans"})
	if _, err := send(domain.ContextWithAuthSession(context.Background(), alice.Session()), call); err != nil {
		t.Fatalf("alice send: %v", err)
	}

	bob := &ClientInfo{Name: "bob", UserID: "bob"}
	call, bobConn := testCall(bob, chatSendRequest{ChatID: "secret", Content: "let me in"})
	_, err := send(domain.ContextWithAuthSession(context.Background(), bob.Session()), call)
	if !errors.Is(err, domain.ErrChatNotFound) {
		t.Fatalf("bob send error = %v, want ErrChatNotFound", err)
	}
	if _, watching := bobConn.chats.Load("secret"); watching {
		t.Error("bob's connection watches alice's chat")
	}
}

func TestChatSend_ReleasesActiveRequest(t *testing.T) {
	deps := handlerTestDeps(t, &scriptedLLM{})
	client := &ClientInfo{Name: "tester", UserID: "u1"}
	call, _ := testCall(client, chatSendRequest{ChatID: "c5", Content: "hi"})
	if _, err := chatSendHandler(deps)(domain.ContextWithAuthSession(context.Background(), client.Session()), call); err != nil {
		t.Fatalf("send: %v", err)
	}
	deps.ActiveRequests.Range(func(k, _ any) bool {
		t.Errorf("entry left behind: %+v", k)
		return true
	})
}

func TestToolList(t *testing.T) {
	deps := handlerTestDeps(t, &scriptedLLM{})
	raw, err := toolListHandler(deps)(context.Background(), &Call{})
	if err != nil {
		t.Fatalf("tool.list: %v", err)
	}
	var schemas []domain.ToolSchema
	if err := json.Unmarshal(raw, &schemas); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if len(schemas) != len(deps.Registry.Schemas()) || len(schemas) == 0 {
		t.Errorf("schemas = %d", len(schemas))
	}
}
