package main

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"repochat/internal/adapter/tui/chat"
	"repochat/internal/domain"
)

func newChatCmd(root *rootFlags) *cobra.Command {
	var resume string

	cmd := &cobra.Command{
		Use:     "chat",
		Short:   "Open the interactive chat",
		GroupID: "core",
		Args:    cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runChat(cmd, root, resume)
		},
	}
	cmd.Flags().StringVarP(&resume, "resume", "r", "", "Continue a saved chat by ID")
	return cmd
}

func runChat(cmd *cobra.Command, root *rootFlags, resume string) error {
	ctx := cmd.Context()
	a, err := newApp(ctx, root, appOptions{terminalUI: true})
	if err != nil {
		return err
	}
	defer a.Close(context.Background())

	deps := chat.ChatModelDeps{
		Dispatcher: a.dispatcher,
		ModelName:  a.cfg.LLM.Model,
		Logger:     a.logger,
	}
	if resume != "" {
		userID, err := a.userID(ctx)
		if err != nil {
			return err
		}
		saved, history, err := a.chats.Restore(ctx, resume, userID)
		if err != nil {
			return err
		}
		if len(saved.Messages) == 0 {
			return fmt.Errorf("chat %s: %w", resume, domain.ErrChatNotFound)
		}
		deps.ChatID = saved.ID
		deps.Title = saved.Title
		deps.History = history
	}

	chatID, err := chat.Run(ctx, deps)
	if err != nil {
		return fmt.Errorf("chat ui: %w", err)
	}
	if chatID != "" {
		fmt.Fprintf(cmd.OutOrStdout(), "Resume with: repochat chat --resume %s\n", chatID)
	}
	return nil
}
