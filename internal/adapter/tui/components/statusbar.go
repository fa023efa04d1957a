package components

import (
	"strings"

	"github.com/charmbracelet/lipgloss"

	"repochat/internal/adapter/tui/theme"
)

// KeyHint represents a single keybinding hint shown in the status bar.
type KeyHint struct {
	Key  string // e.g. "Enter"
	Desc string // e.g. "Send"
}

// StatusBarModel renders a bottom status bar with keybinding hints, the
// current chat and the model in use.
type StatusBarModel struct {
	Hints     []KeyHint
	ChatTitle string
	ModelName string
	Extra     string // transient status, e.g. "Thinking..."
	width     int
}

// NewStatusBar creates an empty status bar.
func NewStatusBar() StatusBarModel {
	return StatusBarModel{}
}

// SetWidth updates the available width.
func (m *StatusBarModel) SetWidth(w int) {
	m.width = w
}

// View renders the status bar as a single line.
func (m StatusBarModel) View() string {
	var hints []string
	for _, h := range m.Hints {
		hints = append(hints, theme.StatusKey.Render(h.Key)+": "+h.Desc)
	}
	left := strings.Join(hints, "  "+theme.Dim.Render("|")+"  ")

	var parts []string
	if m.Extra != "" {
		parts = append(parts, theme.TextInfo.Render(m.Extra))
	}
	if m.ChatTitle != "" {
		parts = append(parts, theme.TextMuted.Render(truncate(m.ChatTitle, 30)))
	}
	if m.ModelName != "" {
		parts = append(parts, theme.TextMuted.Render(m.ModelName))
	}
	right := strings.Join(parts, " "+theme.Dim.Render(theme.SymbolBullet)+" ")

	// The style's padding counts toward Width, so the gap fills what is left.
	inner := m.width - theme.StatusBar.GetHorizontalFrameSize()
	gap := inner - lipgloss.Width(left) - lipgloss.Width(right)
	if gap < 1 {
		gap = 1
	}
	return theme.StatusBar.Width(m.width).Render(left + strings.Repeat(" ", gap) + right)
}
