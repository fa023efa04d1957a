package domain

import (
	"context"
	"time"
)

// ChatRequest is sent to an LLM provider.
type ChatRequest struct {
	Model    string       `json:"model"`
	System   string       `json:"system,omitempty"`
	Messages []Message    `json:"messages"`
	Tools    []ToolSchema `json:"tools,omitempty"`
}

// ChatResponse is returned from an LLM provider.
type ChatResponse struct {
	Model     string     `json:"model"`
	Content   string     `json:"content"`
	ToolCalls []ToolCall `json:"tool_calls,omitempty"`
	Usage     Usage      `json:"usage"`
	CreatedAt time.Time  `json:"created_at"`
}

// Usage tracks token consumption.
type Usage struct {
	PromptTokens     int `json:"prompt_tokens"`
	CompletionTokens int `json:"completion_tokens"`
	TotalTokens      int `json:"total_tokens"`
}

// LLMProvider is the interface for any LLM backend.
type LLMProvider interface {
	// Chat sends a request and returns a complete response.
	Chat(ctx context.Context, req ChatRequest) (*ChatResponse, error)
	// Name returns the provider's identifier (e.g., "gemini").
	Name() string
}

// StreamDelta is a single incremental chunk from a streaming LLM response.
// A delta with Err set is the last one on the channel.
type StreamDelta struct {
	Content   string     `json:"content,omitempty"`
	ToolCalls []ToolCall `json:"tool_calls,omitempty"`
	Done      bool       `json:"done,omitempty"`
	Usage     *Usage     `json:"usage,omitempty"`
	Err       error      `json:"-"`
}

// StreamingLLMProvider extends LLMProvider with streaming support.
type StreamingLLMProvider interface {
	LLMProvider
	// ChatStream sends a request and returns a channel of incremental deltas.
	ChatStream(ctx context.Context, req ChatRequest) (<-chan StreamDelta, error)
}
