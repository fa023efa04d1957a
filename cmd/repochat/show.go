package main

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"repochat/internal/adapter/tui/components"
	"repochat/internal/adapter/tui/theme"
	"repochat/internal/domain"
)

func newShowCmd(root *rootFlags) *cobra.Command {
	return &cobra.Command{
		Use:     "show <chat-id>",
		Short:   "Print a saved chat",
		GroupID: "chats",
		Args:    cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			a, err := newApp(ctx, root, appOptions{offline: true})
			if err != nil {
				return err
			}
			defer a.Close(context.Background())

			userID, err := a.userID(ctx)
			if err != nil {
				return err
			}
			saved, fragments, err := a.chats.Restore(ctx, args[0], userID)
			if err != nil {
				return err
			}
			if len(saved.Messages) == 0 {
				return fmt.Errorf("chat %s: %w", args[0], domain.ErrChatNotFound)
			}

			out := cmd.OutOrStdout()
			fmt.Fprintln(out, theme.CardTitle.Render(saved.Title))
			for _, f := range fragments {
				switch f.Kind {
				case domain.FragmentUser:
					fmt.Fprintln(out, theme.UserLabel.Render(theme.SymbolUser)+" "+f.Text)
				case domain.FragmentText:
					fmt.Fprintln(out, theme.BotLabel.Render(theme.SymbolBot)+" "+f.Text)
				default:
					fmt.Fprintln(out, components.RenderFragment(f, askWidth, plainMarkdown))
				}
			}
			return nil
		},
	}
}
