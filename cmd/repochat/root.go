package main

import (
	"github.com/spf13/cobra"
)

// Version is set at build time with -ldflags "-X main.Version=...".
var Version = "dev"

type rootFlags struct {
	configPath string
	logLevel   string
}

func newRootCmd() *cobra.Command {
	var flags rootFlags

	cmd := &cobra.Command{
		Use:   "repochat",
		Short: "repochat - chat with an assistant about your GitHub repositories",
		Long: `repochat lists your GitHub repositories, shows their metadata and
walks their file trees so a language model can review or explain the code.`,
		Example: `  repochat chat
  repochat ask "list my repositories"
  repochat serve --addr 127.0.0.1:8780`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return cmd.Help()
		},
		SilenceErrors: true,
		SilenceUsage:  true,
	}

	cmd.PersistentFlags().StringVarP(&flags.configPath, "config", "c", "repochat.yaml", "Path to the config file")
	cmd.PersistentFlags().StringVar(&flags.logLevel, "log-level", "", "Override the log level (debug, info, warn, error)")

	cmd.AddGroup(&cobra.Group{ID: "core", Title: "Core Commands:"})
	cmd.AddGroup(&cobra.Group{ID: "chats", Title: "Saved Chats:"})

	cmd.AddCommand(newChatCmd(&flags))
	cmd.AddCommand(newAskCmd(&flags))
	cmd.AddCommand(newServeCmd(&flags))
	cmd.AddCommand(newHistoryCmd(&flags))
	cmd.AddCommand(newShowCmd(&flags))
	cmd.AddCommand(newEncryptCmd())
	cmd.AddCommand(newVersionCmd())

	return cmd
}
