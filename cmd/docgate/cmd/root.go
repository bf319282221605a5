// Package cmd provides the CLI commands for docgate.
package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/Sentinel-Gate/docgate/internal/config"
)

var cfgFile string
var envFile string

var rootCmd = &cobra.Command{
	Use:   "docgate",
	Short: "docgate - authenticated gateway for a documentation site",
	Long: `docgate puts a sign-in and role check in front of a documentation site.

Every page request goes through the auth gate. Viewers without a session
are sent to the login page and returned to the page they asked for after
signing in. Only roles allowed by the access policy get content.

Quick start:
  1. Create a config file: docgate.yaml
  2. Add an account: docgate accounts add dev@example.com --role developer
  3. Run: docgate start

Configuration:
  Config is loaded from docgate.yaml in the current directory,
  $HOME/.docgate/, or /etc/docgate/.

  Environment variables can override config values with the DOCGATE_ prefix.
  Example: DOCGATE_SERVER_HTTP_ADDR=:9090

Commands:
  start          Start the gateway
  stop           Stop the running gateway
  accounts       Manage local accounts
  config         Validate or print the effective configuration
  hash-password  Generate an Argon2id hash for a password
  version        Print version information`,
	SilenceUsage: true,
}

// Execute runs the root command.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func init() {
	cobra.OnInitialize(initConfig)
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default: ./docgate.yaml)")
	rootCmd.PersistentFlags().StringVar(&envFile, "env-file", "", "load environment variables from this file (default: ./.env if present)")
}

func initConfig() {
	path, required := envFile, true
	if path == "" {
		path, required = ".env", false
	}
	if err := config.LoadEnvFile(path, required); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
	config.InitViper(cfgFile)
}
