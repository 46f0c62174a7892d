package main

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/aretw0/leadflow/internal/cli"
	"github.com/aretw0/leadflow/internal/config"
)

var rootCmd = &cobra.Command{
	Use:           "leadflow",
	Short:         "Leadflow runs declarative lead capture conversations",
	Long:          `Leadflow loads conversation flows from YAML or JSON, serves them over HTTP and sends captured leads to a CRM.`,
	SilenceUsage:  true,
	SilenceErrors: true,
}

// Execute adds all child commands to the root command and sets flags appropriately.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().String("config", "leadflow.yaml", "Configuration file (optional)")
	rootCmd.PersistentFlags().String("flows", "", "Directory containing flow definitions (overrides flows_dir)")
}

// loadConfig reads the configuration named by --config and applies flag overrides.
func loadConfig(cmd *cobra.Command) (*config.Config, *slog.Logger, error) {
	path, _ := cmd.Flags().GetString("config")
	cfg, err := config.Load(path)
	if err != nil {
		return nil, nil, err
	}
	if dir, _ := cmd.Flags().GetString("flows"); dir != "" {
		cfg.FlowsDir = dir
	}
	logger, err := cli.NewLogger(cfg.Log)
	if err != nil {
		return nil, nil, err
	}
	return cfg, logger, nil
}
