package chat

import (
	"context"

	tea "github.com/charmbracelet/bubbletea"

	"repochat/internal/domain"
)

// programObserver forwards turn progress into the Bubble Tea update loop.
type programObserver struct {
	send func(tea.Msg)
	gen  uint64
}

func (o programObserver) OnTextDelta(text string) {
	o.send(TextDeltaMsg{Text: text, Gen: o.gen})
}

func (o programObserver) OnToolStart(_ domain.ToolInvocation, placeholder domain.Fragment) {
	o.send(FragmentMsg{Fragment: placeholder, Gen: o.gen})
}

func (o programObserver) OnToolResult(_ domain.ToolInvocation, result domain.Fragment) {
	o.send(FragmentMsg{Fragment: result, Gen: o.gen})
}

// submitCmd runs one turn in a background goroutine with a cancellable
// context. gen identifies the turn so stale results can be discarded.
func submitCmd(ctx context.Context, d Submitter, chatID, content string, obs domain.TurnObserver, gen uint64) tea.Cmd {
	return func() tea.Msg {
		result, err := d.Submit(ctx, chatID, content, obs)
		return TurnDoneMsg{Result: result, Err: err, Gen: gen}
	}
}
