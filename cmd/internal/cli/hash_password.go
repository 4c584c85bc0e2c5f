package cli

import (
	"bufio"
	"errors"
	"fmt"
	"strings"

	"github.com/2impaoo-it/feedback-system/cmd/security/password"

	"github.com/spf13/cobra"
)

// newHashPasswordCmd prints an Argon2id PHC hash for seeding accounts by hand.
// The password is read from stdin so it stays out of shell history.
func newHashPasswordCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "hash-password",
		Short: "Hash a password read from stdin with the configured Argon2id parameters",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := password.FromEnv()
			if err != nil {
				return err
			}

			line, err := bufio.NewReader(cmd.InOrStdin()).ReadString('\n')
			if err != nil && line == "" {
				return errors.New("hash-password: no password on stdin")
			}
			plain := strings.TrimRight(line, "\r\n")
			if plain == "" {
				return errors.New("hash-password: empty password")
			}

			hash, err := cfg.Hash(plain)
			if err != nil {
				return fmt.Errorf("hash-password: %w", err)
			}
			_, err = fmt.Fprintln(cmd.OutOrStdout(), hash)
			return err
		},
	}
}
