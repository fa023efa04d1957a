package components

import (
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/glamour"
	"github.com/charmbracelet/lipgloss"

	"repochat/internal/adapter/tui/theme"
	"repochat/internal/domain"
)

// MessageRole identifies the sender of a chat entry.
type MessageRole string

const (
	RoleUser      MessageRole = "user"
	RoleAssistant MessageRole = "assistant"
	RoleSystem    MessageRole = "system"
	RoleTool      MessageRole = "tool"
	RoleError     MessageRole = "error"
)

// ChatMessage is one slot of the chat view. Tool slots carry the fragment
// they display; the other roles carry plain or markdown Content.
type ChatMessage struct {
	ID        string
	Role      MessageRole
	Content   string
	Fragment  *domain.Fragment
	Rendered  string // cached body render; empty means not yet rendered
	Timestamp time.Time
}

// MessageFromFragment maps a fragment onto a chat slot.
func MessageFromFragment(f domain.Fragment) ChatMessage {
	msg := ChatMessage{ID: f.ID}
	switch f.Kind {
	case domain.FragmentUser:
		msg.Role = RoleUser
		msg.Content = f.Text
	case domain.FragmentText:
		msg.Role = RoleAssistant
		msg.Content = f.Text
	case domain.FragmentError:
		msg.Role = RoleError
		msg.Content = f.Text
		msg.Fragment = &f
	default:
		msg.Role = RoleTool
		msg.Fragment = &f
	}
	return msg
}

// MessageListModel manages an ordered list of chat messages with optional ring buffer.
type MessageListModel struct {
	Messages    []ChatMessage
	MaxMessages int // 0 = unlimited; positive = ring buffer cap
	trimCount   int // number of messages trimmed so far
	width       int
	mdRenderer  *glamour.TermRenderer
}

// NewMessageList creates an empty message list.
func NewMessageList() MessageListModel {
	return MessageListModel{}
}

// SetWidth updates the rendering width and clears cached renders.
func (m *MessageListModel) SetWidth(w int) {
	if w == m.width {
		return
	}
	m.width = w
	m.mdRenderer = nil
	for i := range m.Messages {
		m.Messages[i].Rendered = ""
	}
}

// SetMaxMessages sets the ring buffer capacity. 0 means unlimited.
func (m *MessageListModel) SetMaxMessages(max int) {
	m.MaxMessages = max
}

// TrimmedIndicator returns a message if older messages were trimmed, empty otherwise.
func (m *MessageListModel) TrimmedIndicator() string {
	if m.trimCount == 0 {
		return ""
	}
	return fmt.Sprintf("(%d older messages trimmed)", m.trimCount)
}

// Add appends a message. If MaxMessages is set, trims oldest messages.
func (m *MessageListModel) Add(msg ChatMessage) {
	if msg.Timestamp.IsZero() {
		msg.Timestamp = time.Now()
	}
	m.Messages = append(m.Messages, msg)
	if m.MaxMessages > 0 && len(m.Messages) > m.MaxMessages {
		excess := len(m.Messages) - m.MaxMessages
		m.Messages = m.Messages[excess:]
		m.trimCount += excess
	}
}

// Upsert replaces the message with msg.ID, or appends msg when no message
// has that ID. A tool placeholder is swapped for its result this way.
func (m *MessageListModel) Upsert(msg ChatMessage) {
	if msg.ID != "" {
		for i := range m.Messages {
			if m.Messages[i].ID == msg.ID {
				if msg.Timestamp.IsZero() {
					msg.Timestamp = m.Messages[i].Timestamp
				}
				m.Messages[i] = msg
				return
			}
		}
	}
	m.Add(msg)
}

// Remove drops the message with the given ID.
func (m *MessageListModel) Remove(id string) {
	for i := range m.Messages {
		if m.Messages[i].ID == id {
			m.Messages = append(m.Messages[:i], m.Messages[i+1:]...)
			return
		}
	}
}

// Clear removes all messages.
func (m *MessageListModel) Clear() {
	m.Messages = nil
	m.trimCount = 0
}

// AppendToLast appends streamed text to the last assistant message,
// starting one if the last message is not a streaming assistant slot.
func (m *MessageListModel) AppendToLast(id, text string) {
	if n := len(m.Messages); n > 0 && m.Messages[n-1].Role == RoleAssistant && m.Messages[n-1].ID == id {
		m.Messages[n-1].Content += text
		m.Messages[n-1].Rendered = ""
		return
	}
	m.Add(ChatMessage{ID: id, Role: RoleAssistant, Content: text})
}

// LastFragment returns the newest tool fragment of one of the given kinds.
func (m *MessageListModel) LastFragment(kinds ...domain.FragmentKind) (domain.Fragment, bool) {
	for i := len(m.Messages) - 1; i >= 0; i-- {
		f := m.Messages[i].Fragment
		if f == nil {
			continue
		}
		for _, k := range kinds {
			if f.Kind == k {
				return *f, true
			}
		}
	}
	return domain.Fragment{}, false
}

// View renders all messages as a single string.
func (m *MessageListModel) View() string {
	if len(m.Messages) == 0 {
		return theme.TextMuted.Render("  No messages yet. Ask about one of your repositories!")
	}

	width := ContentWidth(m.width)

	var sb strings.Builder
	if indicator := m.TrimmedIndicator(); indicator != "" {
		sb.WriteString(theme.TextMuted.Render("  "+indicator) + "\n\n")
	}
	for i := range m.Messages {
		msg := &m.Messages[i]
		if i > 0 {
			sb.WriteString("\n")
		}
		sb.WriteString(m.renderMessage(msg, width))
	}
	return sb.String()
}

func (m *MessageListModel) renderMessage(msg *ChatMessage, width int) string {
	header := m.roleLabel(msg) + " " + theme.Timestamp.Render(RelativeTime(msg.Timestamp))

	if msg.Rendered == "" {
		msg.Rendered = m.renderBody(msg, width)
	}
	body := msg.Rendered
	if body == "" {
		return header
	}
	return header + "\n  " + body
}

func (m *MessageListModel) renderBody(msg *ChatMessage, width int) string {
	switch msg.Role {
	case RoleAssistant:
		return strings.TrimSpace(m.renderMarkdown(msg.Content, width))
	case RoleTool:
		return RenderFragment(*msg.Fragment, width, m.renderMarkdown)
	case RoleError:
		return theme.TextError.Render(wrapText(msg.Content, width-2))
	default:
		return wrapText(msg.Content, width-2)
	}
}

func (m *MessageListModel) roleLabel(msg *ChatMessage) string {
	switch msg.Role {
	case RoleUser:
		return theme.UserLabel.Render(theme.SymbolUser)
	case RoleAssistant:
		return theme.BotLabel.Render(theme.SymbolBot)
	case RoleSystem:
		return theme.SystemLabel.Render("System")
	case RoleTool:
		name := "Tool"
		if msg.Fragment != nil && msg.Fragment.Tool != "" {
			name = string(msg.Fragment.Tool)
		}
		return theme.ToolLabel.Render(theme.SymbolArrowR + " " + name)
	case RoleError:
		return theme.ErrorLabel.Render(theme.SymbolError + " Error")
	default:
		return theme.TextMuted.Render(string(msg.Role))
	}
}

func (m *MessageListModel) renderMarkdown(content string, width int) string {
	if m.mdRenderer == nil {
		r, err := glamour.NewTermRenderer(
			glamour.WithAutoStyle(),
			glamour.WithWordWrap(width),
		)
		if err != nil {
			return content
		}
		m.mdRenderer = r
	}
	rendered, err := m.mdRenderer.Render(content)
	if err != nil {
		return content
	}
	return rendered
}

// RelativeTime returns a human-readable relative time string.
func RelativeTime(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	d := time.Since(t)
	switch {
	case d < time.Minute:
		return "just now"
	case d < time.Hour:
		return fmt.Sprintf("%dm ago", int(d.Minutes()))
	case d < 24*time.Hour:
		return fmt.Sprintf("%dh ago", int(d.Hours()))
	default:
		return t.Format("Jan 2 15:04")
	}
}

// wrapText wraps text to the given width with a 2-space indent on continuation lines.
// Uses rune-based indexing to safely handle multibyte UTF-8.
func wrapText(s string, width int) string {
	runes := []rune(s)
	if width <= 0 || len(runes) <= width {
		return s
	}
	var lines []string
	for len(runes) > width {
		idx := -1
		for i := width - 1; i > 0; i-- {
			if runes[i] == ' ' {
				idx = i
				break
			}
		}
		if idx <= 0 {
			idx = width
		}
		lines = append(lines, string(runes[:idx]))
		runes = runes[idx:]
		for len(runes) > 0 && runes[0] == ' ' {
			runes = runes[1:]
		}
	}
	if len(runes) > 0 {
		lines = append(lines, string(runes))
	}
	return strings.Join(lines, "\n  ")
}

// ContentWidth calculates the content width respecting MaxContentWidth.
func ContentWidth(termWidth int) int {
	w := termWidth - 4
	if w > theme.MaxContentWidth {
		w = theme.MaxContentWidth
	}
	if w < 40 {
		w = 40
	}
	return w
}

// Divider renders a horizontal line at the given width.
func Divider(width int) string {
	return lipgloss.NewStyle().
		Foreground(theme.ColorBorder).
		Render(strings.Repeat("─", width))
}
