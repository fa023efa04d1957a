package llm

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/sony/gobreaker/v2"

	"repochat/internal/domain"
	"repochat/internal/infra/config"
)

// Default circuit breaker settings.
const (
	defaultCBMaxFailures uint32        = 5
	defaultCBTimeout     time.Duration = 30 * time.Second
	defaultCBInterval    time.Duration = 60 * time.Second
)

// CircuitBreakerProvider wraps an LLMProvider with circuit breaker protection.
// When the wrapped provider fails repeatedly, the circuit opens and
// subsequent calls fail fast without reaching the provider.
type CircuitBreakerProvider struct {
	inner   domain.LLMProvider
	breaker *gobreaker.CircuitBreaker[*domain.ChatResponse]
	logger  *slog.Logger
}

// NewCircuitBreakerProvider wraps inner with a circuit breaker. Zero values
// in cfg fall back to defaults.
func NewCircuitBreakerProvider(inner domain.LLMProvider, cfg config.CircuitBreakerConfig, logger *slog.Logger) *CircuitBreakerProvider {
	maxFailures := cfg.MaxFailures
	if maxFailures == 0 {
		maxFailures = defaultCBMaxFailures
	}
	timeout := cfg.Timeout
	if timeout == 0 {
		timeout = defaultCBTimeout
	}
	interval := cfg.Interval
	if interval == 0 {
		interval = defaultCBInterval
	}

	cb := gobreaker.NewCircuitBreaker[*domain.ChatResponse](gobreaker.Settings{
		Name:        "llm:" + inner.Name(),
		MaxRequests: 1, // one probe while half-open
		Interval:    interval,
		Timeout:     timeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= maxFailures
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			logger.Warn("circuit breaker state change",
				"breaker", name,
				"from", from.String(),
				"to", to.String(),
			)
		},
		IsSuccessful: isBreakerSuccess,
	})

	return &CircuitBreakerProvider{
		inner:   inner,
		breaker: cb,
		logger:  logger,
	}
}

// isBreakerSuccess counts caller-side failures as successes: a bad request
// or a cancelled turn says nothing about provider health.
func isBreakerSuccess(err error) bool {
	return err == nil ||
		errors.Is(err, domain.ErrInvalidInput) ||
		errors.Is(err, context.Canceled)
}

// Chat implements domain.LLMProvider.
func (p *CircuitBreakerProvider) Chat(ctx context.Context, req domain.ChatRequest) (*domain.ChatResponse, error) {
	resp, err := p.breaker.Execute(func() (*domain.ChatResponse, error) {
		return p.inner.Chat(ctx, req)
	})
	if err != nil {
		return nil, p.wrapOpen(err)
	}
	return resp, nil
}

// ChatStream implements domain.StreamingLLMProvider. The breaker guards
// stream setup only; errors after that arrive on the channel. A
// non-streaming inner provider is adapted to a single-delta stream.
func (p *CircuitBreakerProvider) ChatStream(ctx context.Context, req domain.ChatRequest) (<-chan domain.StreamDelta, error) {
	sp, ok := p.inner.(domain.StreamingLLMProvider)
	if !ok {
		resp, err := p.Chat(ctx, req)
		if err != nil {
			return nil, err
		}
		ch := make(chan domain.StreamDelta, 1)
		usage := resp.Usage
		ch <- domain.StreamDelta{Content: resp.Content, ToolCalls: resp.ToolCalls, Usage: &usage, Done: true}
		close(ch)
		return ch, nil
	}

	var ch <-chan domain.StreamDelta
	_, err := p.breaker.Execute(func() (*domain.ChatResponse, error) {
		var streamErr error
		ch, streamErr = sp.ChatStream(ctx, req)
		return nil, streamErr
	})
	if err != nil {
		return nil, p.wrapOpen(err)
	}
	return ch, nil
}

func (p *CircuitBreakerProvider) wrapOpen(err error) error {
	if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
		return fmt.Errorf("provider %q circuit open: %w: %w", p.inner.Name(), domain.ErrProviderError, err)
	}
	return err
}

// Name implements domain.LLMProvider.
func (p *CircuitBreakerProvider) Name() string { return p.inner.Name() }

// State returns the current circuit breaker state.
func (p *CircuitBreakerProvider) State() gobreaker.State {
	return p.breaker.State()
}

// Counts returns the current circuit breaker counters.
func (p *CircuitBreakerProvider) Counts() gobreaker.Counts {
	return p.breaker.Counts()
}

// Compile-time interface checks.
var (
	_ domain.LLMProvider          = (*CircuitBreakerProvider)(nil)
	_ domain.StreamingLLMProvider = (*CircuitBreakerProvider)(nil)
)
