package domain

// TurnObserver receives progress from a running turn. Calls arrive in order
// on the dispatcher's goroutine; implementations must not block for long.
type TurnObserver interface {
	// OnTextDelta is called for each chunk of streamed model text.
	OnTextDelta(text string)
	// OnToolStart is called once the model has selected a tool, with a
	// placeholder to show while the tool runs.
	OnToolStart(inv ToolInvocation, placeholder Fragment)
	// OnToolResult is called with the tool's final fragment.
	OnToolResult(inv ToolInvocation, result Fragment)
}

// NopObserver ignores every callback.
type NopObserver struct{}

func (NopObserver) OnTextDelta(string) {}
func (NopObserver) OnToolStart(ToolInvocation, Fragment) {}
func (NopObserver) OnToolResult(ToolInvocation, Fragment) {}
