package main

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/nvandessel/substrate/internal/config"
	"github.com/nvandessel/substrate/internal/logging"
)

var (
	version = "0.1.0-dev"
	commit  = "none"
	date    = "unknown"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:   "substrate",
		Short: "Energy-diffusion tick engine",
		Long: `substrate runs the tick engine of an activation graph.

Each tick injects stimuli, spreads energy along weighted links, decays it,
strengthens quiet co-active links and steers the spectral radius of the
graph towards criticality. Tripwires switch the engine into a conservative
safe mode when an invariant fails.`,
		SilenceUsage: true,
	}

	// Global flags
	rootCmd.PersistentFlags().Bool("json", false, "Output as JSON")
	rootCmd.PersistentFlags().String("config", "", "Config file (default ~/.substrate/config.yaml)")

	rootCmd.AddCommand(
		newVersionCmd(),
		newRunCmd(),
		newSimulateCmd(),
		newConfigCmd(),
	)
	return rootCmd
}

// configPath returns the --config value, or the default path when a file
// exists there, or "".
func configPath(cmd *cobra.Command) string {
	if p, _ := cmd.Flags().GetString("config"); p != "" {
		return p
	}
	p, err := config.DefaultPath()
	if err != nil {
		return ""
	}
	if _, err := os.Stat(p); err != nil {
		return ""
	}
	return p
}

// loadConfig loads and validates the configuration for cmd.
func loadConfig(cmd *cobra.Command) (*config.Config, error) {
	cfg, err := config.LoadPath(configPath(cmd))
	if err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	return cfg, nil
}

// newLogger builds the process logger on stderr. --json switches it to
// JSON lines.
func newLogger(cmd *cobra.Command, level string) *slog.Logger {
	if jsonOut, _ := cmd.Flags().GetBool("json"); jsonOut {
		return logging.NewJSONLogger(level, cmd.ErrOrStderr())
	}
	return logging.NewLogger(level, cmd.ErrOrStderr())
}
