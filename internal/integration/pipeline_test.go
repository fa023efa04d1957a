package integration

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"path/filepath"
	"sync"
	"testing"

	"repochat/internal/adapter/auth"
	"repochat/internal/adapter/github"
	"repochat/internal/adapter/store"
	"repochat/internal/domain"
	"repochat/internal/infra/config"
	"repochat/internal/usecase"
)

// scriptedLLM replays canned responses and records every request.
type scriptedLLM struct {
	mu        sync.Mutex
	responses []domain.ChatResponse
	requests  []domain.ChatRequest
}

func (s *scriptedLLM) Name() string { return "scripted" }

func (s *scriptedLLM) Chat(_ context.Context, req domain.ChatRequest) (*domain.ChatResponse, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.requests = append(s.requests, req)
	if len(s.responses) == 0 {
		return &domain.ChatResponse{Content: "nothing more to say"}, nil
	}
	resp := s.responses[0]
	s.responses = s.responses[1:]
	return &resp, nil
}

type pipeline struct {
	llm        *scriptedLLM
	dispatcher *usecase.Dispatcher
	dbPath     string
}

func newPipeline(t *testing.T, gh *FakeGitHub, responses ...domain.ChatResponse) *pipeline {
	t.Helper()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	repos, err := github.NewClient(config.GitHubConfig{
		BaseURL:           gh.BaseURL(),
		RequestsPerSecond: 100,
		Burst:             100,
		PerPage:           100,
	}, logger)
	if err != nil {
		t.Fatalf("github client: %v", err)
	}

	dbPath := filepath.Join(t.TempDir(), "chats.db")
	chatStore, err := store.NewSQLiteChatStore(dbPath)
	if err != nil {
		t.Fatalf("sqlite store: %v", err)
	}
	t.Cleanup(func() { chatStore.Close() })

	llm := &scriptedLLM{responses: responses}
	registry := usecase.MustNewRegistry()
	dispatcher := usecase.NewDispatcher(usecase.DispatcherDeps{
		LLM:      llm,
		Registry: registry,
		Tools: usecase.NewToolRunner(usecase.ToolRunnerDeps{
			Repos:     repos,
			Flattener: usecase.NewFlattener(repos, logger, 0),
			LLM:       llm,
			Registry:  registry,
			Logger:    logger,
		}),
		Chats:  usecase.NewChatService(usecase.ChatServiceDeps{Store: chatStore, Logger: logger}),
		Auth:   auth.NewStaticAuthProvider("u1", "gh-token"),
		Logger: logger,
	})
	return &pipeline{llm: llm, dispatcher: dispatcher, dbPath: dbPath}
}

func toolCall(name string, args map[string]any) domain.ChatResponse {
	raw, _ := json.Marshal(args)
	return domain.ChatResponse{ToolCalls: []domain.ToolCall{{ID: "call-1", Name: name, Arguments: raw}}}
}

func TestPipeline_AnalyzeRepositoryFlattensTree(t *testing.T) {
	gh := NewFakeGitHub(t, "octo", "hello", map[string]string{
		"a.txt":     "hello",
		"img.png":   "\x89PNG",
		"sub/b.txt": "world",
	})
	p := newPipeline(t, gh,
		toolCall("analyze_repository", map[string]any{"owner": "octo", "repo": "hello"}),
		domain.ChatResponse{Content: "Looks tidy."},
	)

	result, err := p.dispatcher.Submit(context.Background(), "c1", "review octo/hello", nil)
	if err != nil {
		t.Fatalf("Submit: %v", err)
	}
	if result.ToolErr != nil {
		t.Fatalf("tool failed: %v", result.ToolErr)
	}
	if result.Fragment == nil || result.Fragment.Kind != domain.FragmentAnalysisResult {
		t.Fatalf("fragment = %+v, want analysis result", result.Fragment)
	}
	if got := result.Fragment.Analysis.Content; got != "Looks tidy." {
		t.Errorf("analysis content = %q", got)
	}

	if len(p.llm.requests) != 2 {
		t.Fatalf("llm requests = %d, want 2", len(p.llm.requests))
	}
	want := "File: a.txt\nhello\n\nBinary content for img.png\n\nFile: sub/b.txt\nworld\n\n"
	if got := p.llm.requests[1].Messages[0].Content; got != want {
		t.Errorf("corpus = %q, want %q", got, want)
	}

	if err := domain.ValidatePairing(result.Chat.Messages); err != nil {
		t.Errorf("pairing: %v", err)
	}
}

func TestPipeline_ChatSurvivesRestart(t *testing.T) {
	gh := NewFakeGitHub(t, "octo", "hello", map[string]string{"a.txt": "hello"})
	p := newPipeline(t, gh, toolCall("list_repositories", map[string]any{}))

	if _, err := p.dispatcher.Submit(context.Background(), "c1", "list my repositories", nil); err != nil {
		t.Fatalf("Submit: %v", err)
	}

	reopened, err := store.NewSQLiteChatStore(p.dbPath)
	if err != nil {
		t.Fatalf("reopen store: %v", err)
	}
	defer reopened.Close()
	chats := usecase.NewChatService(usecase.ChatServiceDeps{
		Store:  reopened,
		Logger: slog.New(slog.NewTextHandler(io.Discard, nil)),
	})

	saved, fragments, err := chats.Restore(context.Background(), "c1", "u1")
	if err != nil {
		t.Fatalf("Restore: %v", err)
	}
	if saved.Title != "list my repositories" {
		t.Errorf("title = %q", saved.Title)
	}
	if len(fragments) != 2 {
		t.Fatalf("fragments = %d, want 2", len(fragments))
	}
	list := fragments[1]
	if list.Kind != domain.FragmentRepositoryList || len(list.Repositories) != 1 {
		t.Fatalf("fragment = %+v, want one repository", list)
	}
	if list.Repositories[0].FullName != "octo/hello" {
		t.Errorf("repository = %q", list.Repositories[0].FullName)
	}
}

func TestPipeline_MissingRepositoryCommitsNoToolResult(t *testing.T) {
	gh := NewFakeGitHub(t, "octo", "hello", map[string]string{"a.txt": "hello"})
	p := newPipeline(t, gh, toolCall("show_repository_info", map[string]any{"owner": "octo", "repo": "gone"}))

	result, err := p.dispatcher.Submit(context.Background(), "c1", "show octo/gone", nil)
	if err != nil {
		t.Fatalf("Submit: %v", err)
	}
	if kind := domain.KindOf(result.ToolErr); kind != domain.KindUpstreamFetchFailed {
		t.Fatalf("tool error kind = %v, want UpstreamFetchFailed", kind)
	}
	if result.Fragment.Text != usecase.NoticeFetchFailed {
		t.Errorf("fragment text = %q", result.Fragment.Text)
	}
	for _, m := range result.Chat.Messages {
		if _, ok := m.ToolResultPart(); ok {
			t.Fatalf("tool result committed: %+v", m)
		}
	}
}

func TestPipeline_RepairedChatKeepsNewTurn(t *testing.T) {
	gh := NewFakeGitHub(t, "octo", "hello", map[string]string{"a.txt": "hello"})
	p := newPipeline(t, gh)

	seed, err := store.NewSQLiteChatStore(p.dbPath)
	if err != nil {
		t.Fatalf("open seed store: %v", err)
	}
	err = seed.Save(context.Background(), domain.Chat{
		ID:     "c1",
		UserID: "u1",
		Messages: []domain.Message{
			{ID: "m1", Role: domain.RoleUser, Content: "hi"},
			{ID: "m2", Role: domain.RoleAssistant, Parts: []domain.Part{{
				Type: domain.PartToolCall, ToolCallID: "x", ToolName: "list_repositories", Args: json.RawMessage(`{}`),
			}}},
			{ID: "m3", Role: domain.RoleAssistant, Content: "dangling"},
		},
	})
	seed.Close()
	if err != nil {
		t.Fatalf("seed chat: %v", err)
	}

	if _, err := p.dispatcher.Submit(context.Background(), "c1", "new question", nil); err != nil {
		t.Fatalf("Submit: %v", err)
	}

	reopened, err := store.NewSQLiteChatStore(p.dbPath)
	if err != nil {
		t.Fatalf("reopen store: %v", err)
	}
	defer reopened.Close()
	saved, err := reopened.Get(context.Background(), "c1")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	var contents []string
	for _, m := range saved.Messages {
		contents = append(contents, m.Content)
	}
	want := []string{"hi", "dangling", "new question", "nothing more to say"}
	if len(contents) != len(want) {
		t.Fatalf("stored messages = %q, want %q", contents, want)
	}
	for i := range want {
		if contents[i] != want[i] {
			t.Errorf("message %d = %q, want %q", i, contents[i], want[i])
		}
	}
	if err := domain.ValidatePairing(saved.Messages); err != nil {
		t.Errorf("stored pairing: %v", err)
	}
}
