package cmd

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/spf13/cobra"

	"github.com/Sentinel-Gate/docgate/internal/domain/auth"
)

var hashPasswordCmd = &cobra.Command{
	Use:   "hash-password [password]",
	Short: "Generate an Argon2id hash for a password",
	Long: `Generate an Argon2id hash of a password in PHC format.

The output can be pasted into the password_hash field of an accounts file
entry. Without an argument the password is read from the first line of
standard input, which keeps it out of shell history.

Example:
  docgate hash-password "correct horse battery staple"
  # Output: $argon2id$v=19$m=48128,t=1,p=1$...

  printf '%s\n' "$DOCS_PASSWORD" | docgate hash-password`,
	Args: cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		var password string
		if len(args) == 1 {
			password = args[0]
		} else {
			p, err := readSecretLine(cmd.InOrStdin())
			if err != nil {
				return err
			}
			password = p
		}
		hash, err := auth.HashPassword(password)
		if err != nil {
			return err
		}
		fmt.Fprintln(cmd.OutOrStdout(), hash)
		return nil
	},
}

func init() {
	rootCmd.AddCommand(hashPasswordCmd)
}

// readSecretLine reads one line from r without its line terminator.
func readSecretLine(r io.Reader) (string, error) {
	line, err := bufio.NewReader(r).ReadString('\n')
	if err != nil && !errors.Is(err, io.EOF) {
		return "", fmt.Errorf("read password: %w", err)
	}
	line = strings.TrimRight(line, "\r\n")
	if line == "" {
		return "", errors.New("password is empty")
	}
	return line, nil
}
