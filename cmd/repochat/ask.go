package main

import (
	"context"
	"fmt"
	"io"
	"strings"

	"github.com/spf13/cobra"

	"repochat/internal/adapter/tui/components"
	"repochat/internal/adapter/tui/theme"
	"repochat/internal/adapter/tui/uxerror"
	"repochat/internal/domain"
)

// askWidth is the render width of fragments printed by ask.
const askWidth = 100

func newAskCmd(root *rootFlags) *cobra.Command {
	var chatID string

	cmd := &cobra.Command{
		Use:     "ask <message>",
		Short:   "Send one message and print the reply",
		GroupID: "core",
		Example: `  repochat ask "list my repositories"
  repochat ask --chat 01J... "show the analysis modes"`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runAsk(cmd, root, chatID, strings.Join(args, " "))
		},
	}
	cmd.Flags().StringVar(&chatID, "chat", "", "Continue the chat with this ID instead of starting a new one")
	return cmd
}

func runAsk(cmd *cobra.Command, root *rootFlags, chatID, message string) error {
	ctx := cmd.Context()
	a, err := newApp(ctx, root, appOptions{})
	if err != nil {
		return err
	}
	defer a.Close(context.Background())

	if chatID == "" {
		chatID = domain.NewID()
	}
	out := cmd.OutOrStdout()
	obs := &printObserver{w: out}

	result, err := a.dispatcher.Submit(ctx, chatID, message, obs)
	obs.endText()
	if err != nil {
		fmt.Fprintln(cmd.ErrOrStderr(), uxerror.Humanize(err).Render())
		return err
	}
	fmt.Fprintln(out, theme.Dim.Render("chat "+result.ChatID))
	return nil
}

// printObserver writes a turn to a terminal as it happens.
type printObserver struct {
	w       io.Writer
	midText bool
}

func (o *printObserver) OnTextDelta(text string) {
	o.midText = true
	fmt.Fprint(o.w, text)
}

func (o *printObserver) OnToolStart(_ domain.ToolInvocation, placeholder domain.Fragment) {
	o.endText()
	fmt.Fprintln(o.w, components.RenderFragment(placeholder, askWidth, plainMarkdown))
}

func (o *printObserver) OnToolResult(_ domain.ToolInvocation, f domain.Fragment) {
	o.endText()
	fmt.Fprintln(o.w, components.RenderFragment(f, askWidth, plainMarkdown))
}

func (o *printObserver) endText() {
	if o.midText {
		fmt.Fprintln(o.w)
		o.midText = false
	}
}

func plainMarkdown(content string, _ int) string { return content }
