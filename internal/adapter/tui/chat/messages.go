// Package chat implements the Bubble Tea chat UI for repochat.
package chat

import (
	"repochat/internal/domain"
	"repochat/internal/usecase"
)

// TextDeltaMsg carries one chunk of streamed model text.
// Gen identifies the turn so chunks of a cancelled turn can be discarded.
type TextDeltaMsg struct {
	Text string
	Gen  uint64
}

// FragmentMsg carries a tool placeholder or a tool result fragment.
type FragmentMsg struct {
	Fragment domain.Fragment
	Gen      uint64
}

// TurnDoneMsg signals that Submit returned.
type TurnDoneMsg struct {
	Result *usecase.TurnResult
	Err    error
	Gen    uint64
}

// QuitMsg signals the program to exit.
type QuitMsg struct{}
