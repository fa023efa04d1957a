//go:build integration

package integration

import (
	"io"
	"log/slog"
	"strings"
	"testing"

	"repochat/internal/adapter/github"
	"repochat/internal/adapter/llm"
	"repochat/internal/domain"
	"repochat/internal/infra/config"
	"repochat/internal/usecase"
)

func TestE2E_GeminiReplies(t *testing.T) {
	SkipIfShort(t)
	cfg := LoadConfig()
	SkipIfMissing(t, cfg.GeminiKey, "REPOCHAT_LLM_API_KEY")

	ctx := NewTestContext(t, cfg.TestTimeout)
	llmCfg := config.Defaults().LLM
	llmCfg.APIKey = cfg.GeminiKey

	provider, err := llm.NewGeminiProvider(ctx, llmCfg, slog.New(slog.NewTextHandler(io.Discard, nil)))
	if err != nil {
		t.Fatalf("NewGeminiProvider: %v", err)
	}
	resp, err := provider.Chat(ctx, domain.ChatRequest{
		Messages: []domain.Message{{Role: domain.RoleUser, Content: "Reply with the single word: pong"}},
	})
	if err != nil {
		t.Fatalf("Chat: %v", err)
	}
	if !strings.Contains(strings.ToLower(resp.Content), "pong") {
		t.Errorf("reply = %q", resp.Content)
	}
}

func TestE2E_FlattenLiveRepository(t *testing.T) {
	SkipIfShort(t)
	cfg := LoadConfig()
	SkipIfMissing(t, cfg.GitHubToken, "REPOCHAT_GITHUB_TOKEN")
	SkipIfMissing(t, cfg.Repo, "REPOCHAT_TEST_REPO")
	if cfg.SkipSlow {
		t.Skip("Skipping slow test")
	}

	owner, repo, ok := strings.Cut(cfg.Repo, "/")
	if !ok {
		t.Fatalf("REPOCHAT_TEST_REPO %q is not owner/name", cfg.Repo)
	}

	ctx := NewTestContext(t, cfg.TestTimeout)
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	client, err := github.NewClient(config.Defaults().GitHub, logger)
	if err != nil {
		t.Fatalf("NewClient: %v", err)
	}

	corpus, err := usecase.NewFlattener(client, logger, 0).Flatten(ctx, cfg.GitHubToken, owner, repo, "")
	if err != nil {
		t.Fatalf("Flatten: %v", err)
	}
	if len(corpus.Files) == 0 {
		t.Fatal("no files flattened")
	}
	t.Logf("flattened %d files (%d binary, %d bytes)", len(corpus.Files), corpus.BinaryCount(), len(corpus.Text))
}
