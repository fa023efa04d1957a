package main

import (
	"context"
	"fmt"
	"text/tabwriter"

	"github.com/spf13/cobra"
)

func newHistoryCmd(root *rootFlags) *cobra.Command {
	return &cobra.Command{
		Use:     "history",
		Short:   "List saved chats, newest first",
		GroupID: "chats",
		Args:    cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
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
			chats, err := a.chats.List(ctx, userID)
			if err != nil {
				return err
			}
			if len(chats) == 0 {
				fmt.Fprintln(cmd.OutOrStdout(), "No saved chats.")
				return nil
			}

			tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintln(tw, "ID\tCREATED\tMESSAGES\tTITLE")
			for _, c := range chats {
				fmt.Fprintf(tw, "%s\t%s\t%d\t%s\n", c.ID, c.CreatedAt.Local().Format("2006-01-02 15:04"), c.MessageCount, c.Title)
			}
			return tw.Flush()
		},
	}
}
