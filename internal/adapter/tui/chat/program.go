package chat

import (
	"context"

	tea "github.com/charmbracelet/bubbletea"
)

// Run starts the chat UI and blocks until the user quits or ctx is done.
// It returns the ID of the chat the user ended in.
func Run(ctx context.Context, deps ChatModelDeps, opts ...tea.ProgramOption) (string, error) {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	var program *tea.Program
	deps.Send = func(msg tea.Msg) { program.Send(msg) }

	opts = append([]tea.ProgramOption{tea.WithAltScreen(), tea.WithMouseCellMotion()}, opts...)
	program = tea.NewProgram(NewChatModel(deps), opts...)

	go func() {
		<-ctx.Done()
		program.Send(QuitMsg{})
	}()

	final, err := program.Run()
	if m, ok := final.(ChatModel); ok {
		return m.ChatID(), err
	}
	return "", err
}
