package chat

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"

	"github.com/charmbracelet/bubbles/spinner"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"repochat/internal/adapter/tui/components"
	"repochat/internal/adapter/tui/theme"
	"repochat/internal/adapter/tui/uxerror"
	"repochat/internal/domain"
	"repochat/internal/usecase"
)

// Submitter runs one conversation turn. *usecase.Dispatcher implements it.
type Submitter interface {
	Submit(ctx context.Context, chatID, content string, obs domain.TurnObserver) (*usecase.TurnResult, error)
}

// ChatModelDeps are dependencies injected into the chat model.
type ChatModelDeps struct {
	Dispatcher Submitter
	// ChatID is the chat to continue; empty starts a new one.
	ChatID string
	// History is the restored transcript of ChatID.
	History   []domain.Fragment
	Title     string
	ModelName string
	// Send delivers messages into the running program. Observer callbacks
	// arrive through it.
	Send   func(tea.Msg)
	Logger *slog.Logger
	// NewID generates chat IDs; defaults to domain.NewID.
	NewID func() string
}

// ChatModel is the root Bubble Tea model for the chat TUI.
type ChatModel struct {
	deps ChatModelDeps

	chatView  components.ChatViewModel
	input     components.InputAreaModel
	statusBar components.StatusBarModel
	spinner   spinner.Model

	chatID   string
	waiting  bool
	width    int
	height   int
	quitting bool

	// gen is incremented on every turn. Messages tagged with an older gen
	// belong to a cancelled turn and are discarded.
	gen      uint64
	cancelFn context.CancelFunc
}

// NewChatModel creates the root chat model.
func NewChatModel(deps ChatModelDeps) ChatModel {
	if deps.NewID == nil {
		deps.NewID = domain.NewID
	}
	if deps.Logger == nil {
		deps.Logger = slog.Default()
	}

	s := spinner.New()
	s.Spinner = spinner.Dot
	s.Style = lipgloss.NewStyle().Foreground(theme.ColorInfo)

	sb := components.NewStatusBar()
	sb.ModelName = deps.ModelName
	sb.ChatTitle = deps.Title
	sb.Hints = defaultHints()

	chatView := components.NewChatView()
	chatView.SetMaxMessages(1000)
	for _, f := range deps.History {
		chatView.ShowFragment(f)
	}

	chatID := deps.ChatID
	if chatID == "" {
		chatID = deps.NewID()
	}

	return ChatModel{
		deps:      deps,
		chatView:  chatView,
		input:     components.NewInputArea(),
		statusBar: sb,
		spinner:   s,
		chatID:    chatID,
	}
}

// ChatID returns the chat the model is bound to.
func (m ChatModel) ChatID() string { return m.chatID }

// Init initializes sub-models.
func (m ChatModel) Init() tea.Cmd {
	return m.spinner.Tick
}

// Update handles all incoming messages.
func (m ChatModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	var cmds []tea.Cmd

	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		m.layout()
		return m, nil

	case tea.KeyMsg:
		switch msg.Type {
		case tea.KeyCtrlC:
			if m.waiting {
				m.cancelTurn("Request cancelled.")
				return m, nil
			}
			m.quitting = true
			return m, tea.Quit
		case tea.KeyEsc:
			if m.waiting {
				m.cancelTurn("Request cancelled.")
				return m, nil
			}
		case tea.KeyPgUp, tea.KeyPgDown:
			var cmd tea.Cmd
			m.chatView, cmd = m.chatView.Update(msg)
			return m, cmd
		}

	case components.InputSubmitMsg:
		return m.handleSubmit(msg.Value)

	case TextDeltaMsg:
		if msg.Gen == m.gen {
			m.chatView.AppendText(m.streamID(), msg.Text)
		}
		return m, nil

	case FragmentMsg:
		if msg.Gen == m.gen {
			m.chatView.ShowFragment(msg.Fragment)
			if msg.Fragment.Kind == domain.FragmentPlaceholder {
				m.statusBar.Extra = theme.SymbolSpinner + " " + msg.Fragment.Text
			}
		}
		return m, nil

	case TurnDoneMsg:
		if msg.Gen != m.gen {
			return m, nil
		}
		m.finishTurn(msg)
		return m, nil

	case QuitMsg:
		if m.cancelFn != nil {
			m.cancelFn()
		}
		m.quitting = true
		return m, tea.Quit

	case spinner.TickMsg:
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		cmds = append(cmds, cmd)
	}

	if !m.waiting {
		var cmd tea.Cmd
		m.input, cmd = m.input.Update(msg)
		cmds = append(cmds, cmd)
	}

	var cmd tea.Cmd
	m.chatView, cmd = m.chatView.Update(msg)
	cmds = append(cmds, cmd)

	return m, tea.Batch(cmds...)
}

// View renders the entire chat UI.
func (m ChatModel) View() string {
	if m.quitting {
		return "Goodbye!\n"
	}
	if m.width == 0 {
		return "  Initializing..."
	}

	inputView := m.input.View()
	if m.waiting {
		inputView = lipgloss.NewStyle().Faint(true).Render("> waiting for response...") +
			"\n" + m.spinner.View() + " " + m.statusBar.Extra
	}

	return lipgloss.JoinVertical(lipgloss.Left,
		m.chatView.View(),
		components.Divider(m.width),
		inputView,
		m.statusBar.View(),
	)
}

func (m *ChatModel) layout() {
	const inputH, statusH, dividerH = 3, 1, 1
	contentH := m.height - inputH - statusH - dividerH
	if contentH < 5 {
		contentH = 5
	}
	m.statusBar.SetWidth(m.width)
	m.chatView.SetSize(m.width, contentH)
	m.input.SetWidth(m.width)
}

// streamID is the slot of the current turn's streamed text.
func (m ChatModel) streamID() string {
	return "stream-" + strconv.FormatUint(m.gen, 10)
}

func (m ChatModel) handleSubmit(value string) (tea.Model, tea.Cmd) {
	if cmd, args, ok := components.ParseSlashCommand(value); ok {
		return m.handleSlashCommand(cmd, args)
	}
	return m.startTurn(value)
}

func (m ChatModel) startTurn(content string) (tea.Model, tea.Cmd) {
	if m.cancelFn != nil {
		m.cancelFn()
	}
	m.chatView.AddMessage(components.ChatMessage{Role: components.RoleUser, Content: content})
	if m.statusBar.ChatTitle == "" {
		m.statusBar.ChatTitle = content
	}

	m.gen++
	ctx, cancel := context.WithCancel(context.Background())
	m.cancelFn = cancel

	m.waiting = true
	m.input.SetEnabled(false)
	m.statusBar.Extra = theme.SymbolSpinner + " Thinking..."

	obs := programObserver{send: m.deps.Send, gen: m.gen}
	return m, submitCmd(ctx, m.deps.Dispatcher, m.chatID, content, obs, m.gen)
}

func (m *ChatModel) finishTurn(msg TurnDoneMsg) {
	if m.cancelFn != nil {
		m.cancelFn()
		m.cancelFn = nil
	}
	m.waiting = false
	m.input.SetEnabled(true)
	m.statusBar.Extra = ""

	if msg.Err != nil {
		m.chatView.Remove(m.streamID())
		if !errors.Is(msg.Err, context.Canceled) {
			m.deps.Logger.Debug("turn failed", "chat_id", m.chatID, "error", msg.Err)
			m.chatView.AddMessage(components.ChatMessage{
				Role:    components.RoleError,
				Content: uxerror.Humanize(msg.Err).Render(),
			})
		}
		return
	}
	if msg.Result != nil && msg.Result.Fragment != nil {
		m.chatView.ShowFragment(*msg.Result.Fragment)
	}
}

// cancelTurn cancels the running turn and bumps gen so its late messages
// are ignored.
func (m *ChatModel) cancelTurn(reason string) {
	if m.cancelFn != nil {
		m.cancelFn()
		m.cancelFn = nil
	}
	m.gen++
	m.waiting = false
	m.input.SetEnabled(true)
	m.statusBar.Extra = ""
	m.system(reason)
}

func (m *ChatModel) system(text string) {
	m.chatView.AddMessage(components.ChatMessage{Role: components.RoleSystem, Content: text})
}

func (m ChatModel) handleSlashCommand(cmd string, args []string) (tea.Model, tea.Cmd) {
	switch cmd {
	case "/help":
		m.system(`Available commands:
  /help      - Show this help
  /pick N    - Choose item N of the last repository list or analysis picker
  /more      - Ask for more detail on the last analysis
  /new       - Start a new chat
  /cancel    - Cancel the running turn
  /quit      - Exit repochat

Keybindings:
  Enter      - Send message
  Up/Down    - Recall previous messages
  Esc        - Cancel the running turn
  Ctrl+C     - Cancel/Quit
  PgUp/PgDn  - Scroll chat`)
		return m, nil

	case "/quit", "/exit":
		if m.cancelFn != nil {
			m.cancelFn()
		}
		m.quitting = true
		return m, tea.Quit

	case "/new":
		if m.waiting {
			m.cancelTurn("Request cancelled.")
		}
		m.chatID = m.deps.NewID()
		m.statusBar.ChatTitle = ""
		m.chatView.Clear()
		m.system(theme.SymbolSuccess + " New chat started.")
		return m, nil

	case "/cancel":
		if m.waiting {
			m.cancelTurn("Request cancelled.")
		} else {
			m.system("No active request to cancel.")
		}
		return m, nil

	case "/pick":
		if len(args) != 1 {
			m.system("Usage: /pick N")
			return m, nil
		}
		n, err := strconv.Atoi(args[0])
		if err != nil {
			m.system("Usage: /pick N")
			return m, nil
		}
		f, ok := m.chatView.Messages.LastFragment(domain.FragmentRepositoryList, domain.FragmentAnalysisModes)
		if !ok {
			m.system("Nothing to pick from yet. Ask to list your repositories first.")
			return m, nil
		}
		prompt, err := PickPrompt(f, n)
		if err != nil {
			m.system(err.Error())
			return m, nil
		}
		return m.startTurn(prompt)

	case "/more":
		f, ok := m.chatView.Messages.LastFragment(domain.FragmentAnalysisResult)
		if !ok || f.Analysis == nil {
			m.system("No analysis to expand yet.")
			return m, nil
		}
		return m.startTurn(f.Analysis.DetailPrompt())

	default:
		m.system(fmt.Sprintf("Unknown command: %s. Type /help for available commands.", cmd))
		return m, nil
	}
}

func defaultHints() []components.KeyHint {
	return []components.KeyHint{
		{Key: "Enter", Desc: "Send"},
		{Key: "/pick N", Desc: "Choose"},
		{Key: "/help", Desc: "Commands"},
		{Key: "Ctrl+C", Desc: "Quit"},
	}
}
