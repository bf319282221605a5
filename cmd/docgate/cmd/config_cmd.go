package cmd

import (
	"fmt"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/Sentinel-Gate/docgate/internal/config"
)

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Validate or print the effective configuration",
}

var configValidateCmd = &cobra.Command{
	Use:   "validate",
	Short: "Load and validate the configuration",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		if _, err := config.LoadConfig(); err != nil {
			return err
		}
		source := config.ConfigFileUsed()
		if source == "" {
			source = "environment only"
		}
		fmt.Fprintf(cmd.OutOrStdout(), "configuration OK (%s)\n", source)
		return nil
	},
}

var configShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Print the configuration after defaults, secrets redacted",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.LoadConfig()
		if err != nil {
			return err
		}
		redactSecrets(cfg)
		out, err := yaml.Marshal(cfg)
		if err != nil {
			return fmt.Errorf("marshal config: %w", err)
		}
		_, err = cmd.OutOrStdout().Write(out)
		return err
	},
}

func init() {
	configCmd.AddCommand(configValidateCmd, configShowCmd)
	rootCmd.AddCommand(configCmd)
}

const redacted = "********"

func redactSecrets(cfg *config.Config) {
	for _, s := range []*string{
		&cfg.SessionStore.Remote.APIKey,
		&cfg.Roles.REST.APIKey,
		&cfg.Roles.SQL.DSN,
		&cfg.Content.S3.SecretAccessKey,
	} {
		if *s != "" {
			*s = redacted
		}
	}
}
