package commands

import (
	"fmt"
	"strings"

	"github.com/Peterhat541/ceo-clarity-hub/pkg/clarity/copilot"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"
)

// newConfigCmd creates the `clarity config` command group.
func newConfigCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Inspect and manage configuration",
	}

	cmd.AddCommand(
		newConfigSetKeyCmd(),
		newConfigClearKeyCmd(),
		newConfigShowCmd(),
	)

	return cmd
}

// newConfigSetKeyCmd stores the provider API key in the OS keyring.
func newConfigSetKeyCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "set-key",
		Short: "Store the LLM provider API key in the OS keyring",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := resolveConfig(cmd)
			if err != nil {
				return err
			}
			logger := newLogger(cmd, cfg)

			if !copilot.KeyringAvailable() {
				return fmt.Errorf("OS keyring not available; set CLARITY_API_KEY in the environment or .env instead")
			}

			key, err := copilot.ReadPassword("API key: ")
			if err != nil {
				return err
			}
			key = strings.TrimSpace(key)
			if key == "" {
				return fmt.Errorf("empty key, nothing stored")
			}

			return copilot.MigrateKeyToKeyring(key, logger)
		},
	}
}

// newConfigClearKeyCmd removes the provider API key from the OS keyring.
func newConfigClearKeyCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "clear-key",
		Short: "Remove the LLM provider API key from the OS keyring",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := resolveConfig(cmd)
			if err != nil {
				return err
			}
			logger := newLogger(cmd, cfg)

			if err := copilot.ClearAPIKey(logger); err != nil {
				return fmt.Errorf("no stored key to remove: %w", err)
			}
			return nil
		},
	}
}

// newConfigShowCmd prints the effective configuration with secrets masked.
func newConfigShowCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "show",
		Short: "Print the effective configuration (secrets masked)",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := resolveConfig(cmd)
			if err != nil {
				return err
			}

			masked := *cfg
			masked.API.APIKey = maskSecret(cfg.API.APIKey)
			masked.Gateway.AuthToken = maskSecret(cfg.Gateway.AuthToken)
			masked.Notify.Discord.BotToken = maskSecret(cfg.Notify.Discord.BotToken)

			out, err := yaml.Marshal(&masked)
			if err != nil {
				return fmt.Errorf("rendering config: %w", err)
			}
			fmt.Print(string(out))
			return nil
		},
	}
}

func maskSecret(s string) string {
	if s == "" {
		return ""
	}
	if len(s) <= 8 {
		return "****"
	}
	return s[:4] + "..." + s[len(s)-4:]
}
