package gateway

import (
	"encoding/json"

	"repochat/internal/domain"
)

// FrameType identifies the kind of frame sent over the WebSocket connection.
type FrameType string

const (
	FrameTypeRequest  FrameType = "request"
	FrameTypeResponse FrameType = "response"
	FrameTypeEvent    FrameType = "event"

	// Turn progress frames carry the ID of the chat.send request they
	// belong to.
	FrameTypeTextDelta  FrameType = "text_delta"
	FrameTypeToolStart  FrameType = "tool_start"
	FrameTypeToolResult FrameType = "tool_result"
	FrameTypeDone       FrameType = "done"
	FrameTypeError      FrameType = "error"
)

// Frame is the envelope exchanged between client and server over WebSocket.
type Frame struct {
	Type    FrameType       `json:"type"`
	ID      uint64          `json:"id,omitempty"`      // request/response correlation ID
	Method  string          `json:"method,omitempty"`  // RPC method name (request only)
	Payload json.RawMessage `json:"payload,omitempty"` // request params, response result or progress data
	Error   string          `json:"error,omitempty"`   // error description (response only)
	Code    string          `json:"code,omitempty"`    // domain.ErrorCode of Error
}

// TextDeltaPayload is the payload of a text_delta frame.
type TextDeltaPayload struct {
	ChatID string `json:"chat_id"`
	Text   string `json:"text"`
}

// ToolFramePayload is the payload of tool_start and tool_result frames.
type ToolFramePayload struct {
	ChatID     string          `json:"chat_id"`
	ToolCallID string          `json:"tool_call_id"`
	Tool       domain.ToolName `json:"tool"`
	Fragment   domain.Fragment `json:"fragment"`
}

// ErrorPayload is the payload of an error frame.
type ErrorPayload struct {
	ChatID  string `json:"chat_id"`
	Kind    string `json:"kind"`
	Code    string `json:"code"`
	Message string `json:"message"`
}
