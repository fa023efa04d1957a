package main

import (
	"bufio"
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"repochat/internal/infra/config"
)

func newEncryptCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "encrypt [value]",
		Short: "Encrypt a secret for the config file",
		Long: `Encrypt a secret with the passphrase in REPOCHAT_CONFIG_KEY. The output,
including its enc: prefix, can replace llm.api_key, github.token or a gateway
token in the config file. The value is read from stdin when not given.`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			passphrase := os.Getenv("REPOCHAT_CONFIG_KEY")
			if passphrase == "" {
				return errors.New("REPOCHAT_CONFIG_KEY must be set")
			}

			var value string
			if len(args) == 1 {
				value = args[0]
			} else {
				line, err := bufio.NewReader(cmd.InOrStdin()).ReadString('\n')
				if err != nil && line == "" {
					return fmt.Errorf("read value: %w", err)
				}
				value = strings.TrimRight(line, "\r\n")
			}
			if value == "" {
				return errors.New("nothing to encrypt")
			}

			enc, err := config.EncryptValue(value, passphrase)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "enc:%s\n", enc)
			return nil
		},
	}
}
