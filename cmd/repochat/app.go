package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"path/filepath"

	"repochat/internal/adapter/auth"
	"repochat/internal/adapter/github"
	"repochat/internal/adapter/llm"
	"repochat/internal/adapter/store"
	"repochat/internal/domain"
	"repochat/internal/infra/config"
	"repochat/internal/infra/logger"
	"repochat/internal/infra/tracer"
	"repochat/internal/usecase"
	"repochat/internal/usecase/eventbus"
)

// localUser is the user ID of the CLI front ends when none is configured.
const localUser = "local"

// app holds the wired runtime shared by every subcommand.
type app struct {
	cfg    *config.Config
	logger *slog.Logger

	bus        *eventbus.Bus
	registry   *usecase.Registry
	chats      *usecase.ChatService
	locker     *usecase.ChatLocker
	dispatcher *usecase.Dispatcher
	auth       domain.AuthProvider

	closers []func(context.Context) error
}

type appOptions struct {
	// terminalUI sends logs to a file so they do not draw over the screen.
	terminalUI bool
	// offline skips the model and GitHub clients for commands that only
	// read saved chats.
	offline bool
}

func loadConfig(flags *rootFlags) (*config.Config, error) {
	cfg, err := config.Load(flags.configPath)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", domain.ErrConfigLoad, err)
	}
	if flags.logLevel != "" {
		cfg.Logger.Level = flags.logLevel
	}
	return cfg, nil
}

// newApp loads config and wires the runtime. Close must be called when the
// command finishes.
func newApp(ctx context.Context, flags *rootFlags, opts appOptions) (_ *app, err error) {
	cfg, err := loadConfig(flags)
	if err != nil {
		return nil, err
	}

	a := &app{cfg: cfg}
	defer func() {
		if err != nil {
			a.Close(context.Background())
		}
	}()

	var closeLog func() error
	if opts.terminalUI {
		a.logger, closeLog, err = logger.ForTerminalUI(cfg.Logger, filepath.Dir(cfg.Store.Path))
	} else {
		a.logger, closeLog, err = logger.New(cfg.Logger)
	}
	if err != nil {
		return nil, fmt.Errorf("init logger: %w", err)
	}
	a.onClose(func(context.Context) error { return closeLog() })
	slog.SetDefault(a.logger)

	shutdownTracer, err := tracer.Setup(ctx, cfg.Tracer, Version)
	if err != nil {
		return nil, fmt.Errorf("init tracer: %w", err)
	}
	a.onClose(shutdownTracer)

	chatStore, err := a.openStore()
	if err != nil {
		return nil, err
	}

	a.bus = eventbus.New(a.logger)
	a.onClose(func(context.Context) error { a.bus.Close(); return nil })

	a.registry, err = usecase.NewRegistry()
	if err != nil {
		return nil, fmt.Errorf("init tool registry: %w", err)
	}
	a.chats = usecase.NewChatService(usecase.ChatServiceDeps{
		Store:    chatStore,
		Logger:   a.logger,
		EventBus: a.bus,
	})
	a.locker = usecase.NewChatLocker()

	userID := cfg.GitHub.UserID
	if userID == "" {
		userID = localUser
	}
	a.auth = auth.NewChainAuthProvider(
		auth.ContextAuthProvider{},
		auth.NewStaticAuthProvider(userID, cfg.GitHub.Token),
	)

	if opts.offline {
		return a, nil
	}

	repos, err := github.NewClient(cfg.GitHub, a.logger)
	if err != nil {
		return nil, fmt.Errorf("init github client: %w", err)
	}

	provider, err := a.newLLM(ctx)
	if err != nil {
		return nil, err
	}

	flattener := usecase.NewFlattener(repos, a.logger, cfg.Agent.MaxCorpusBytes)
	tools := usecase.NewToolRunner(usecase.ToolRunnerDeps{
		Repos:     repos,
		Flattener: flattener,
		LLM:       provider,
		Model:     cfg.LLM.Model,
		Registry:  a.registry,
		Logger:    a.logger,
	})
	a.dispatcher = usecase.NewDispatcher(usecase.DispatcherDeps{
		LLM:          provider,
		Registry:     a.registry,
		Tools:        tools,
		Chats:        a.chats,
		Auth:         a.auth,
		Locker:       a.locker,
		Logger:       a.logger,
		EventBus:     a.bus,
		Model:        cfg.LLM.Model,
		SystemPrompt: cfg.Agent.SystemPrompt,
		TurnTimeout:  cfg.Agent.TurnTimeout,
	})
	return a, nil
}

func (a *app) openStore() (domain.ChatStore, error) {
	switch a.cfg.Store.Driver {
	case "memory":
		return store.NewMemoryChatStore(), nil
	default:
		s, err := store.NewSQLiteChatStore(a.cfg.Store.Path)
		if err != nil {
			return nil, fmt.Errorf("open chat store: %w", err)
		}
		a.onClose(func(context.Context) error { return s.Close() })
		return s, nil
	}
}

func (a *app) newLLM(ctx context.Context) (domain.LLMProvider, error) {
	gemini, err := llm.NewGeminiProvider(ctx, a.cfg.LLM, a.logger)
	if err != nil {
		return nil, fmt.Errorf("init llm: %w", err)
	}
	if !a.cfg.LLM.CircuitBreaker.Enabled {
		return gemini, nil
	}
	return llm.NewCircuitBreakerProvider(gemini, a.cfg.LLM.CircuitBreaker, a.logger), nil
}

// userID returns the user the CLI acts as.
func (a *app) userID(ctx context.Context) (string, error) {
	session, err := a.auth.GetCurrentSession(ctx)
	if err != nil {
		return "", err
	}
	if session == nil {
		return "", domain.ErrAuthMissing
	}
	return session.UserID, nil
}

func (a *app) onClose(fn func(context.Context) error) {
	a.closers = append(a.closers, fn)
}

// Close releases resources in reverse order of acquisition.
func (a *app) Close(ctx context.Context) error {
	var errs []error
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](ctx); err != nil {
			errs = append(errs, err)
		}
	}
	a.closers = nil
	return errors.Join(errs...)
}
