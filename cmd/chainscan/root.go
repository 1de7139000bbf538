package main

import (
	"fmt"
	"os"

	"github.com/Sternrassler/gmgn-scan/internal/config"
	"github.com/spf13/cobra"
)

// Execute runs the root command and exits non-zero on failure.
func Execute() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:           "chainscan",
		Short:         "chainscan collects trade, holder and wallet datasets from gmgn.ai",
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	// Persistent flags (available to all commands)
	root.PersistentFlags().String("config", "", "Path to a YAML configuration file")
	root.PersistentFlags().String("base-url", "", "Override upstream.base_url")
	root.PersistentFlags().String("log-level", "", "Override logging.level")

	root.AddCommand(newServeCmd(), newBuyersCmd(), newEarlyBuyersCmd(), newTradesCmd(), newContractsCmd(), newCheckWalletsCmd(), newBundleCmd())
	return root
}

// loadConfig loads the file named by --config and applies flag overrides.
func loadConfig(cmd *cobra.Command) (*config.Config, error) {
	path, _ := cmd.Flags().GetString("config")
	cfg, err := config.Load(path)
	if err != nil {
		return nil, err
	}

	changed := false
	if v, _ := cmd.Flags().GetString("base-url"); v != "" {
		cfg.Upstream.BaseURL = v
		changed = true
	}
	if v, _ := cmd.Flags().GetString("log-level"); v != "" {
		cfg.Logging.Level = v
		changed = true
	}
	if changed {
		if err := cfg.Validate(); err != nil {
			return nil, err
		}
	}
	return cfg, nil
}
