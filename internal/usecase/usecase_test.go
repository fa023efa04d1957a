package usecase

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"sort"
	"sync"

	"repochat/internal/domain"
)

// --- Mocks ---

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// mockRepos serves a fixed tree. Directory paths map to entries and file
// paths map to content; failPaths return an error on fetch.
type mockRepos struct {
	mu        sync.Mutex
	dirs      map[string][]domain.ContentEntry
	files     map[string][]byte
	failPaths map[string]error
	repos     []domain.RepoSummary
	details   map[string]*domain.RepoDetail
	calls     []string
}

func newMockRepos() *mockRepos {
	return &mockRepos{
		dirs:      map[string][]domain.ContentEntry{},
		files:     map[string][]byte{},
		failPaths: map[string]error{},
		details:   map[string]*domain.RepoDetail{},
	}
}

func (m *mockRepos) record(call string) {
	m.mu.Lock()
	m.calls = append(m.calls, call)
	m.mu.Unlock()
}

func (m *mockRepos) callCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.calls)
}

func (m *mockRepos) ListRepositories(_ context.Context, _ string) ([]domain.RepoSummary, error) {
	m.record("list")
	return m.repos, nil
}

func (m *mockRepos) GetRepository(_ context.Context, _, owner, repo string) (*domain.RepoDetail, error) {
	m.record("repo:" + owner + "/" + repo)
	d, ok := m.details[owner+"/"+repo]
	if !ok {
		return nil, fmt.Errorf("github: get %s/%s: %w", owner, repo, domain.ErrNotFound)
	}
	return d, nil
}

func (m *mockRepos) GetContent(_ context.Context, _, _, _, p string) (*domain.ContentResult, error) {
	m.record("content:" + p)
	if err, ok := m.failPaths[p]; ok {
		return nil, err
	}
	if entries, ok := m.dirs[p]; ok {
		return &domain.ContentResult{Entries: entries}, nil
	}
	if content, ok := m.files[p]; ok {
		return &domain.ContentResult{File: &domain.FileContent{Path: p, Content: content}}, nil
	}
	return nil, fmt.Errorf("github: content %s: %w", p, domain.ErrNotFound)
}

func (m *mockRepos) addFile(p, content string) domain.ContentEntry {
	m.files[p] = []byte(content)
	return domain.ContentEntry{Name: p, Path: p, Type: domain.NodeFile, Size: len(content)}
}

// sampleTree is a.txt, img.png, sub/b.txt at the root.
func sampleTree() *mockRepos {
	m := newMockRepos()
	a := m.addFile("a.txt", "hello")
	img := m.addFile("img.png", "\x89PNG")
	b := m.addFile("sub/b.txt", "world")
	m.dirs[""] = []domain.ContentEntry{a, img, {Name: "sub", Path: "sub", Type: domain.NodeDir}}
	m.dirs["sub"] = []domain.ContentEntry{b}
	return m
}

// mockLLM returns scripted responses. When deltas is set it also
// implements streaming through streamingLLM.
type mockLLM struct {
	mu        sync.Mutex
	responses []domain.ChatResponse
	err       error
	requests  []domain.ChatRequest
}

func (m *mockLLM) Chat(_ context.Context, req domain.ChatRequest) (*domain.ChatResponse, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.requests = append(m.requests, req)
	if m.err != nil {
		return nil, m.err
	}
	if len(m.responses) == 0 {
		return &domain.ChatResponse{Content: "fallback"}, nil
	}
	resp := m.responses[0]
	m.responses = m.responses[1:]
	return &resp, nil
}

func (m *mockLLM) Name() string { return "mock" }

func (m *mockLLM) lastRequest() domain.ChatRequest {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.requests[len(m.requests)-1]
}

type streamingLLM struct {
	mockLLM
	deltas    []domain.StreamDelta
	streamErr error
}

func (s *streamingLLM) ChatStream(_ context.Context, req domain.ChatRequest) (<-chan domain.StreamDelta, error) {
	s.mu.Lock()
	s.requests = append(s.requests, req)
	s.mu.Unlock()
	if s.streamErr != nil {
		return nil, s.streamErr
	}
	ch := make(chan domain.StreamDelta, len(s.deltas))
	for _, d := range s.deltas {
		ch <- d
	}
	close(ch)
	return ch, nil
}

type staticAuth struct {
	session *domain.AuthSession
}

func (a staticAuth) GetCurrentSession(context.Context) (*domain.AuthSession, error) {
	return a.session, nil
}

func signedIn() *domain.AuthSession {
	return &domain.AuthSession{UserID: "u1", AccessToken: "gh-token"}
}

type memStore struct {
	mu       sync.Mutex
	chats    map[string]domain.Chat
	saves    int
	replaces int
}

func newMemStore() *memStore { return &memStore{chats: map[string]domain.Chat{}} }

func (s *memStore) Save(_ context.Context, chat domain.Chat) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.chats[chat.ID] = chat
	s.saves++
	return nil
}

func (s *memStore) Replace(_ context.Context, chat domain.Chat) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.chats[chat.ID] = chat
	s.replaces++
	return nil
}

func (s *memStore) Get(_ context.Context, id string) (*domain.Chat, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	c, ok := s.chats[id]
	if !ok {
		return nil, domain.ErrChatNotFound
	}
	return &c, nil
}

func (s *memStore) List(_ context.Context, userID string) ([]domain.ChatSummary, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []domain.ChatSummary
	for _, c := range s.chats {
		if c.UserID == userID {
			out = append(out, domain.ChatSummary{ID: c.ID, Title: c.Title, Path: c.Path, CreatedAt: c.CreatedAt, MessageCount: len(c.Messages)})
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return out, nil
}

func (s *memStore) Delete(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.chats, id)
	return nil
}

func (s *memStore) saveCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.saves
}

// recordingObserver captures observer callbacks in order.
type recordingObserver struct {
	mu      sync.Mutex
	deltas  []string
	starts  []domain.Fragment
	results []domain.Fragment
	events  []string
}

func (o *recordingObserver) OnTextDelta(text string) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.deltas = append(o.deltas, text)
	o.events = append(o.events, "delta")
}

func (o *recordingObserver) OnToolStart(_ domain.ToolInvocation, p domain.Fragment) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.starts = append(o.starts, p)
	o.events = append(o.events, "start")
}

func (o *recordingObserver) OnToolResult(_ domain.ToolInvocation, f domain.Fragment) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.results = append(o.results, f)
	o.events = append(o.events, "result")
}

// countPairs returns the number of tool-call and tool-result parts.
func countPairs(msgs []domain.Message) (calls, results int) {
	for _, m := range msgs {
		if _, ok := m.ToolCallPart(); ok {
			calls++
		}
		if _, ok := m.ToolResultPart(); ok {
			results++
		}
	}
	return calls, results
}
