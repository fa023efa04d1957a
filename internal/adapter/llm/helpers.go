package llm

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"time"

	"go.opentelemetry.io/otel/trace"
	"google.golang.org/genai"

	"repochat/internal/domain"
	"repochat/internal/infra/config"
	"repochat/internal/infra/tracer"
)

// Default provider timeouts.
const (
	defaultConnTimeout = 30 * time.Second
	defaultRespTimeout = 120 * time.Second
)

// Connection pool sizing for a single upstream host with long-lived
// connections.
const (
	defaultMaxIdleConns        = 20
	defaultMaxIdleConnsPerHost = 10
	defaultMaxConnsPerHost     = 20
	defaultIdleConnTimeout     = 120 * time.Second
)

// NewPooledTransport creates an http.Transport with connection pooling.
func NewPooledTransport(connTimeout, respTimeout time.Duration) *http.Transport {
	if connTimeout <= 0 {
		connTimeout = defaultConnTimeout
	}
	if respTimeout <= 0 {
		respTimeout = defaultRespTimeout
	}
	return &http.Transport{
		Proxy: http.ProxyFromEnvironment,
		DialContext: (&net.Dialer{
			Timeout:   connTimeout,
			KeepAlive: 30 * time.Second,
		}).DialContext,
		TLSHandshakeTimeout:   10 * time.Second,
		ResponseHeaderTimeout: respTimeout,
		MaxIdleConns:          defaultMaxIdleConns,
		MaxIdleConnsPerHost:   defaultMaxIdleConnsPerHost,
		MaxConnsPerHost:       defaultMaxConnsPerHost,
		IdleConnTimeout:       defaultIdleConnTimeout,
		ForceAttemptHTTP2:     true,
	}
}

// NewHTTPClient creates an *http.Client with a pooled transport and the
// configured timeouts. Streaming responses may outlive the response header
// timeout, so the client itself has no overall deadline.
func NewHTTPClient(cfg config.LLMConfig) *http.Client {
	return &http.Client{
		Transport: NewPooledTransport(cfg.ConnTimeout, cfg.RespTimeout),
	}
}

// logChatCompleted logs the standard debug message after a successful chat.
func logChatCompleted(logger *slog.Logger, providerName string, result *domain.ChatResponse) {
	if logger == nil {
		return
	}
	logger.Debug("llm chat completed",
		"provider", providerName,
		"model", result.Model,
		"tokens", result.Usage.TotalTokens,
		"tool_calls", len(result.ToolCalls),
	)
}

// setUsageAttrs adds token usage attributes to a trace span.
func setUsageAttrs(span trace.Span, usage domain.Usage) {
	span.SetAttributes(
		tracer.IntAttr("llm.prompt_tokens", usage.PromptTokens),
		tracer.IntAttr("llm.completion_tokens", usage.CompletionTokens),
	)
}

// mapAPIError maps a Gemini client error onto a domain sentinel so the
// circuit breaker and the dispatcher can classify it.
func mapAPIError(err error) error {
	if err == nil {
		return nil
	}
	switch {
	case errors.Is(err, context.DeadlineExceeded):
		return fmt.Errorf("%w: %w", domain.ErrTimeout, err)
	case errors.Is(err, context.Canceled):
		return err
	}

	code, ok := apiErrorCode(err)
	if !ok {
		return fmt.Errorf("%w: %w", domain.ErrProviderError, err)
	}
	return mapHTTPError(code, err)
}

// apiErrorCode extracts the HTTP status of a genai.APIError, which the
// client returns by value.
func apiErrorCode(err error) (int, bool) {
	var byValue genai.APIError
	if errors.As(err, &byValue) {
		return byValue.Code, true
	}
	var byPtr *genai.APIError
	if errors.As(err, &byPtr) && byPtr != nil {
		return byPtr.Code, true
	}
	return 0, false
}

// mapHTTPError maps an HTTP status code to a domain error wrapping cause.
func mapHTTPError(statusCode int, cause error) error {
	switch {
	case statusCode == http.StatusTooManyRequests:
		return fmt.Errorf("%w: %w", domain.ErrRateLimit, cause)
	case statusCode == http.StatusUnauthorized || statusCode == http.StatusForbidden:
		return fmt.Errorf("%w: %w", domain.ErrAuthInvalid, cause)
	case statusCode == http.StatusBadRequest:
		return fmt.Errorf("%w: %w", domain.ErrInvalidInput, cause)
	case statusCode == http.StatusGatewayTimeout:
		return fmt.Errorf("%w: %w", domain.ErrTimeout, cause)
	default:
		return fmt.Errorf("%w: %w", domain.ErrProviderError, cause)
	}
}
