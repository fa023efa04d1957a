package components

import (
	"strings"

	"github.com/charmbracelet/bubbles/textarea"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"repochat/internal/adapter/tui/theme"
)

// maxInputHistory bounds the recalled prompts kept by the input area.
const maxInputHistory = 100

// InputSubmitMsg is sent when the user presses Enter to submit input.
type InputSubmitMsg struct {
	Value string
}

// InputAreaModel wraps a textarea with submit handling and prompt recall.
// Up and Down walk previously submitted prompts while the cursor is on the
// first or last line.
type InputAreaModel struct {
	Textarea textarea.Model
	Enabled  bool
	history  []string
	recall   int // index into history; len(history) means the live draft
	draft    string
}

// NewInputArea creates an input area with sensible defaults.
func NewInputArea() InputAreaModel {
	ta := textarea.New()
	ta.Placeholder = "Ask about your repositories... (/help for commands)"
	ta.Prompt = "> "
	ta.ShowLineNumbers = false
	ta.CharLimit = 0
	ta.SetHeight(3)
	ta.FocusedStyle.CursorLine = lipgloss.NewStyle()
	ta.FocusedStyle.Prompt = theme.InputPrompt
	ta.FocusedStyle.Placeholder = theme.InputPlaceholder
	ta.Focus()

	return InputAreaModel{
		Textarea: ta,
		Enabled:  true,
	}
}

// SetWidth updates the textarea width.
func (m *InputAreaModel) SetWidth(w int) {
	m.Textarea.SetWidth(w - 2)
}

// SetEnabled enables or disables input (e.g. while waiting for response).
func (m *InputAreaModel) SetEnabled(enabled bool) {
	m.Enabled = enabled
	if enabled {
		m.Textarea.Focus()
	} else {
		m.Textarea.Blur()
	}
}

// Value returns the current input text.
func (m InputAreaModel) Value() string {
	return m.Textarea.Value()
}

// History returns the submitted prompts, oldest first.
func (m InputAreaModel) History() []string {
	return append([]string(nil), m.history...)
}

// ParseSlashCommand extracts command and args from slash command input.
func ParseSlashCommand(input string) (cmd string, args []string, ok bool) {
	input = strings.TrimSpace(input)
	if !strings.HasPrefix(input, "/") {
		return "", nil, false
	}
	parts := strings.Fields(input)
	return strings.ToLower(parts[0]), parts[1:], true
}

func (m *InputAreaModel) remember(value string) {
	if n := len(m.history); n == 0 || m.history[n-1] != value {
		m.history = append(m.history, value)
		if len(m.history) > maxInputHistory {
			m.history = m.history[len(m.history)-maxInputHistory:]
		}
	}
	m.recall = len(m.history)
	m.draft = ""
}

func (m *InputAreaModel) step(delta int) bool {
	next := m.recall + delta
	if next < 0 || next > len(m.history) {
		return false
	}
	if m.recall == len(m.history) {
		m.draft = m.Textarea.Value()
	}
	m.recall = next
	if next == len(m.history) {
		m.Textarea.SetValue(m.draft)
	} else {
		m.Textarea.SetValue(m.history[next])
	}
	m.Textarea.CursorEnd()
	return true
}

// Update handles key events. Enter submits (Alt+Enter inserts a newline).
func (m InputAreaModel) Update(msg tea.Msg) (InputAreaModel, tea.Cmd) {
	if !m.Enabled {
		return m, nil
	}
	if _, ok := msg.(tea.MouseMsg); ok {
		return m, nil
	}

	if keyMsg, ok := msg.(tea.KeyMsg); ok {
		switch keyMsg.Type {
		case tea.KeyEnter:
			if keyMsg.Alt {
				break
			}
			value := strings.TrimSpace(m.Textarea.Value())
			if value == "" {
				return m, nil
			}
			m.Textarea.Reset()
			m.remember(value)
			return m, func() tea.Msg {
				return InputSubmitMsg{Value: value}
			}
		case tea.KeyUp:
			if m.Textarea.Line() == 0 && m.step(-1) {
				return m, nil
			}
		case tea.KeyDown:
			if m.Textarea.Line() == m.Textarea.LineCount()-1 && m.step(1) {
				return m, nil
			}
		}
	}

	var cmd tea.Cmd
	m.Textarea, cmd = m.Textarea.Update(msg)
	return m, cmd
}

// View renders the input area.
func (m InputAreaModel) View() string {
	return m.Textarea.View()
}
