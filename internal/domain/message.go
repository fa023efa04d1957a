package domain

import (
	"encoding/json"
	"fmt"
	"time"
)

// Role constants for message roles.
const (
	RoleSystem    = "system"
	RoleUser      = "user"
	RoleAssistant = "assistant"
	RoleTool      = "tool"
)

// Part types carried by structured messages.
const (
	PartToolCall   = "tool-call"
	PartToolResult = "tool-result"
)

// Part is a structured payload attached to an assistant or tool message.
type Part struct {
	Type       string          `json:"type"`
	ToolCallID string          `json:"tool_call_id"`
	ToolName   string          `json:"tool_name"`
	Args       json.RawMessage `json:"args,omitempty"`
	Result     json.RawMessage `json:"result,omitempty"`
}

// Message is one entry in a chat's history. Messages are never mutated after
// they are committed.
type Message struct {
	ID        string    `json:"id"`
	Role      string    `json:"role"`
	Content   string    `json:"content,omitempty"`
	Parts     []Part    `json:"parts,omitempty"`
	Name      string    `json:"name,omitempty"`
	CreatedAt time.Time `json:"created_at"`
}

// ToolCallPart returns the first tool-call part of the message, if any.
func (m Message) ToolCallPart() (Part, bool) {
	return m.part(PartToolCall)
}

// ToolResultPart returns the first tool-result part of the message, if any.
func (m Message) ToolResultPart() (Part, bool) {
	return m.part(PartToolResult)
}

func (m Message) part(typ string) (Part, bool) {
	for _, p := range m.Parts {
		if p.Type == typ {
			return p, true
		}
	}
	return Part{}, false
}

// Chat is a persisted conversation owned by exactly one user.
type Chat struct {
	ID        string    `json:"id"`
	Title     string    `json:"title"`
	UserID    string    `json:"user_id"`
	Path      string    `json:"path"`
	CreatedAt time.Time `json:"created_at"`
	Messages  []Message `json:"messages"`
}

// ChatPath returns the canonical path for a chat ID.
func ChatPath(id string) string {
	return fmt.Sprintf("/chat/%s", id)
}

// ChatSummary is the listing view of a chat.
type ChatSummary struct {
	ID           string    `json:"id"`
	Title        string    `json:"title"`
	Path         string    `json:"path"`
	CreatedAt    time.Time `json:"created_at"`
	MessageCount int       `json:"message_count"`
}

// ValidatePairing checks that every tool-call message is immediately followed
// by a tool message carrying a result with the same call ID, and that no
// result appears without its call. Call IDs must be unique.
func ValidatePairing(msgs []Message) error {
	seen := make(map[string]struct{})
	for i := 0; i < len(msgs); i++ {
		m := msgs[i]
		if call, ok := m.ToolCallPart(); ok {
			if _, dup := seen[call.ToolCallID]; dup {
				return fmt.Errorf("%w: duplicate tool call id %s", ErrMalformedTurn, call.ToolCallID)
			}
			seen[call.ToolCallID] = struct{}{}
			if i+1 >= len(msgs) {
				return fmt.Errorf("%w: tool call %s has no result", ErrMalformedTurn, call.ToolCallID)
			}
			res, ok := msgs[i+1].ToolResultPart()
			if !ok || msgs[i+1].Role != RoleTool {
				return fmt.Errorf("%w: tool call %s not followed by result", ErrMalformedTurn, call.ToolCallID)
			}
			if res.ToolCallID != call.ToolCallID {
				return fmt.Errorf("%w: result %s does not match call %s", ErrMalformedTurn, res.ToolCallID, call.ToolCallID)
			}
			i++
			continue
		}
		if res, ok := m.ToolResultPart(); ok {
			return fmt.Errorf("%w: orphan tool result %s", ErrMalformedTurn, res.ToolCallID)
		}
	}
	return nil
}
