package main

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/nvandessel/substrate/internal/config"
)

func newConfigCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Inspect substrate configuration",
		Long: `Inspect the effective substrate configuration.

Configuration is read from --config or ~/.substrate/config.yaml, with
SUBSTRATE_* environment variables applied on top.

Examples:
  substrate config show                     # Print the effective config as YAML
  substrate config show --json              # ... or as JSON
  substrate config validate --config a.yaml # Check a file without running`,
	}

	cmd.AddCommand(
		newConfigShowCmd(),
		newConfigValidateCmd(),
	)

	return cmd
}

func newConfigShowCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "show",
		Short: "Print the effective configuration",
		RunE: func(cmd *cobra.Command, args []string) error {
			jsonOut, _ := cmd.Flags().GetBool("json")

			cfg, err := config.LoadPath(configPath(cmd))
			if err != nil {
				return fmt.Errorf("failed to load config: %w", err)
			}

			if jsonOut {
				enc := json.NewEncoder(cmd.OutOrStdout())
				enc.SetIndent("", "  ")
				return enc.Encode(cfg)
			}
			data, err := cfg.Marshal()
			if err != nil {
				return fmt.Errorf("failed to render config: %w", err)
			}
			_, err = cmd.OutOrStdout().Write(data)
			return err
		},
	}
}

func newConfigValidateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "validate",
		Short: "Validate the configuration",
		RunE: func(cmd *cobra.Command, args []string) error {
			jsonOut, _ := cmd.Flags().GetBool("json")
			path := configPath(cmd)

			_, err := loadConfig(cmd)
			if jsonOut {
				result := map[string]any{"path": path, "valid": err == nil}
				if err != nil {
					result["error"] = err.Error()
				}
				if encErr := json.NewEncoder(cmd.OutOrStdout()).Encode(result); encErr != nil {
					return encErr
				}
				return err
			}
			if err != nil {
				return err
			}
			if path == "" {
				path = "(defaults)"
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Config %s is valid\n", path)
			return nil
		},
	}
}
