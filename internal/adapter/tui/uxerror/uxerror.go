// Package uxerror translates raw errors into user-friendly messages with
// recovery hints for the TUI.
package uxerror

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"repochat/internal/adapter/tui/theme"
	"repochat/internal/domain"
)

// FriendlyError is a user-facing error with suggestions for recovery.
type FriendlyError struct {
	Title   string   // short heading, e.g. "Connection Refused"
	Message string   // one-liner explanation
	Hints   []string // actionable recovery suggestions
	Raw     string   // original error text (for debug)
}

// Render formats the FriendlyError for display in the TUI message list.
func (fe FriendlyError) Render() string {
	var sb strings.Builder
	sb.WriteString(fe.Title)
	if fe.Message != "" {
		sb.WriteString("\n  ")
		sb.WriteString(fe.Message)
	}
	if len(fe.Hints) > 0 {
		sb.WriteString("\n  Suggestions:")
		for _, h := range fe.Hints {
			sb.WriteString(fmt.Sprintf("\n    %s %s", theme.SymbolBullet, h))
		}
	}
	return sb.String()
}

type errorPattern struct {
	match   func(err error) bool
	produce func(err error) FriendlyError
}

func is(target error) func(error) bool {
	return func(err error) bool { return errors.Is(err, target) }
}

var patterns = []errorPattern{
	// Domain sentinels first so errors.Is works through wrapping.
	{
		match:   is(domain.ErrAuthMissing),
		produce: constantError("Not Signed In", "GitHub authentication was not found.", []string{"Set github.token in repochat.yaml", "Export REPOCHAT_GITHUB_TOKEN"}),
	},
	{
		match:   is(domain.ErrAuthInvalid),
		produce: constantError("Authentication Failed", "The API key or credentials were rejected.", []string{"Check llm.api_key and github.token", "Verify the keys haven't expired"}),
	},
	{
		match:   is(domain.ErrRateLimit),
		produce: constantError("Rate Limited", "Too many requests were sent to an upstream API.", []string{"Wait a moment before retrying", "Lower github.requests_per_second"}),
	},
	{
		match:   is(domain.ErrTimeout),
		produce: constantError("Request Timed Out", "The turn took too long to complete.", []string{"Analyze a smaller path inside the repository", "Increase agent.turn_timeout in config"}),
	},
	{
		match:   is(domain.ErrProviderNoReply),
		produce: constantError("Empty Reply", "The model returned no text and no tool call.", []string{"Rephrase the request and try again"}),
	},
	{
		match:   is(domain.ErrChatNotFound),
		produce: constantError("Chat Not Found", "No saved chat has that ID.", []string{"Run 'repochat history' to list saved chats"}),
	},
	{
		match:   is(domain.ErrConflict),
		produce: constantError("Chat Changed", "The chat was modified by another turn.", []string{"Reopen the chat and send the message again"}),
	},
	{
		match:   is(domain.ErrProviderError),
		produce: constantError("Model Unavailable", "The language model provider returned an error.", []string{"Try again in a moment", "Check llm.model in config"}),
	},

	// Network failures from outside the domain.
	{
		match:   containsAny("connection refused", "dial tcp", "no such host"),
		produce: constantError("Connection Failed", "Could not reach the remote service.", []string{"Check your internet connection", "Verify github.base_url and llm.base_url in config"}),
	},
}

// Humanize converts a raw error into a FriendlyError with recovery hints.
func Humanize(err error) FriendlyError {
	if err == nil {
		return FriendlyError{Title: "Unknown Error", Raw: "nil"}
	}
	if errors.Is(err, context.Canceled) {
		return FriendlyError{Title: "Request Cancelled", Raw: err.Error()}
	}

	for _, p := range patterns {
		if p.match(err) {
			return p.produce(err)
		}
	}

	return FriendlyError{
		Title:   "Unexpected Error",
		Message: err.Error(),
		Hints:   []string{"Try again", "Run with --log-level debug for more details"},
		Raw:     err.Error(),
	}
}

// containsAny returns a match func that checks if the error string contains
// any of the given substrings (case-insensitive).
func containsAny(substrs ...string) func(error) bool {
	return func(err error) bool {
		lower := strings.ToLower(err.Error())
		for _, s := range substrs {
			if strings.Contains(lower, s) {
				return true
			}
		}
		return false
	}
}

// constantError returns a produce func that always returns the same FriendlyError.
func constantError(title, message string, hints []string) func(error) FriendlyError {
	return func(err error) FriendlyError {
		return FriendlyError{
			Title:   title,
			Message: message,
			Hints:   hints,
			Raw:     err.Error(),
		}
	}
}
