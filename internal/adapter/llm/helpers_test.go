package llm

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"google.golang.org/genai"

	"repochat/internal/domain"
	"repochat/internal/infra/config"
)

func TestNewPooledTransport_Defaults(t *testing.T) {
	tr := NewPooledTransport(0, 0)

	assert.Equal(t, defaultMaxIdleConns, tr.MaxIdleConns)
	assert.Equal(t, defaultMaxIdleConnsPerHost, tr.MaxIdleConnsPerHost)
	assert.Equal(t, defaultMaxConnsPerHost, tr.MaxConnsPerHost)
	assert.Equal(t, defaultIdleConnTimeout, tr.IdleConnTimeout)
	assert.Equal(t, defaultRespTimeout, tr.ResponseHeaderTimeout)
	assert.Equal(t, 10*time.Second, tr.TLSHandshakeTimeout)
	assert.True(t, tr.ForceAttemptHTTP2)
}

func TestNewHTTPClient_UsesConfiguredTimeouts(t *testing.T) {
	client := NewHTTPClient(config.LLMConfig{ConnTimeout: 5 * time.Second, RespTimeout: 45 * time.Second})

	tr, ok := client.Transport.(*http.Transport)
	if assert.True(t, ok) {
		assert.Equal(t, 45*time.Second, tr.ResponseHeaderTimeout)
	}
	assert.Zero(t, client.Timeout, "streaming responses need an unbounded client")
}

func TestMapAPIError(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want error
	}{
		{"rate limit", genai.APIError{Code: 429, Message: "quota"}, domain.ErrRateLimit},
		{"unauthorized", genai.APIError{Code: 401}, domain.ErrAuthInvalid},
		{"forbidden pointer", &genai.APIError{Code: 403}, domain.ErrAuthInvalid},
		{"bad request", genai.APIError{Code: 400}, domain.ErrInvalidInput},
		{"gateway timeout", genai.APIError{Code: 504}, domain.ErrTimeout},
		{"server error", genai.APIError{Code: 503}, domain.ErrProviderError},
		{"wrapped", fmt.Errorf("send: %w", genai.APIError{Code: 429}), domain.ErrRateLimit},
		{"deadline", context.DeadlineExceeded, domain.ErrTimeout},
		{"plain", errors.New("connection reset"), domain.ErrProviderError},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := mapAPIError(tt.err)
			assert.ErrorIs(t, got, tt.want)
		})
	}
}

func TestMapAPIError_KeepsCause(t *testing.T) {
	cause := errors.New("connection reset")
	assert.ErrorIs(t, mapAPIError(cause), cause)

	var apiErr genai.APIError
	assert.True(t, errors.As(mapAPIError(genai.APIError{Code: 500, Message: "boom"}), &apiErr))
	assert.Equal(t, 500, apiErr.Code)
}

func TestMapAPIError_PassesCancellation(t *testing.T) {
	assert.Nil(t, mapAPIError(nil))
	assert.Equal(t, context.Canceled, mapAPIError(context.Canceled))
}
