package cmd

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/Sentinel-Gate/docgate/internal/adapter/outbound/state"
	"github.com/Sentinel-Gate/docgate/internal/config"
	"github.com/Sentinel-Gate/docgate/internal/service"
)

var (
	accountRole     string
	accountPassword string
	accountsFile    string
)

var accountsCmd = &cobra.Command{
	Use:   "accounts",
	Short: "Manage local accounts",
	Long: `Manage the accounts file used by the local session backend.

Each account has one role record. Accounts without a role can sign in
but the gate always denies them.

The file defaults to session_store.accounts_file from the config
(~/.docgate/accounts.json). Changes take effect on the next sign-in;
the running gateway does not need a restart.`,
}

var accountsAddCmd = &cobra.Command{
	Use:   "add <email>",
	Short: "Add an account",
	Long: `Add an account. The password is read from standard input unless
--password is given.

Example:
  printf '%s\n' "$PASSWORD" | docgate accounts add dev@example.com --role developer`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		svc, err := newAccountService()
		if err != nil {
			return err
		}
		password := accountPassword
		if password == "" {
			if password, err = readSecretLine(cmd.InOrStdin()); err != nil {
				return err
			}
		}
		entry, err := svc.CreateAccount(cmd.Context(), service.CreateAccountInput{
			Email:    args[0],
			Password: password,
			Role:     accountRole,
		})
		if err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "created %s (%s)\n", entry.Email, roleLabel(entry.Role))
		return nil
	},
}

var accountsRemoveCmd = &cobra.Command{
	Use:   "remove <email>",
	Short: "Remove an account",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		svc, err := newAccountService()
		if err != nil {
			return err
		}
		if err := svc.RemoveAccount(cmd.Context(), args[0]); err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "removed %s\n", args[0])
		return nil
	},
}

var accountsSetRoleCmd = &cobra.Command{
	Use:   "set-role <email> [role]",
	Short: "Replace or clear an account's role",
	Long: `Replace the role record of an account. Omit the role to clear it.

Roles: admin, developer, moderator, user.`,
	Args: cobra.RangeArgs(1, 2),
	RunE: func(cmd *cobra.Command, args []string) error {
		svc, err := newAccountService()
		if err != nil {
			return err
		}
		role := ""
		if len(args) == 2 {
			role = args[1]
		}
		if err := svc.SetRole(cmd.Context(), args[0], role); err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "%s: %s\n", args[0], roleLabel(role))
		return nil
	},
}

var accountsDisableCmd = &cobra.Command{
	Use:   "disable <email>",
	Short: "Block sign-in for an account",
	Args:  cobra.ExactArgs(1),
	RunE:  setDisabled(true),
}

var accountsEnableCmd = &cobra.Command{
	Use:   "enable <email>",
	Short: "Allow sign-in for a disabled account",
	Args:  cobra.ExactArgs(1),
	RunE:  setDisabled(false),
}

var accountsListCmd = &cobra.Command{
	Use:   "list",
	Short: "List accounts",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		svc, err := newAccountService()
		if err != nil {
			return err
		}
		accounts, err := svc.ListAccounts(cmd.Context())
		if err != nil {
			return err
		}
		return printAccounts(cmd.OutOrStdout(), accounts)
	},
}

func init() {
	accountsCmd.PersistentFlags().StringVar(&accountsFile, "file", "", "accounts file (default: session_store.accounts_file)")
	accountsAddCmd.Flags().StringVar(&accountRole, "role", "", "role record for the account")
	accountsAddCmd.Flags().StringVar(&accountPassword, "password", "", "password (default: read from stdin)")

	accountsCmd.AddCommand(accountsAddCmd, accountsRemoveCmd, accountsSetRoleCmd,
		accountsDisableCmd, accountsEnableCmd, accountsListCmd)
	rootCmd.AddCommand(accountsCmd)
}

func setDisabled(disabled bool) func(*cobra.Command, []string) error {
	return func(cmd *cobra.Command, args []string) error {
		svc, err := newAccountService()
		if err != nil {
			return err
		}
		if err := svc.SetDisabled(cmd.Context(), args[0], disabled); err != nil {
			return err
		}
		word := "enabled"
		if disabled {
			word = "disabled"
		}
		fmt.Fprintf(cmd.OutOrStdout(), "%s %s\n", word, args[0])
		return nil
	}
}

// newAccountService opens the accounts file named by --file or the config.
func newAccountService() (*service.AccountService, error) {
	path := accountsFile
	if path == "" {
		cfg, err := config.LoadConfigRaw()
		if err != nil {
			return nil, fmt.Errorf("failed to load config: %w", err)
		}
		path = cfg.SessionStore.AccountsFile
	}
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelWarn}))
	return service.NewAccountService(state.NewFileAccountStore(path, logger), logger), nil
}

func printAccounts(w io.Writer, accounts []state.AccountEntry) error {
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "EMAIL\tROLE\tSTATUS\tCREATED")
	for _, a := range accounts {
		status := "active"
		if a.Disabled {
			status = "disabled"
		}
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\n", a.Email, roleLabel(a.Role), status, a.CreatedAt.Format("2006-01-02"))
	}
	return tw.Flush()
}

func roleLabel(role string) string {
	if role == "" {
		return "no role"
	}
	return role
}
