package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/aretw0/leadflow/internal/validator"
	"github.com/aretw0/leadflow/pkg/flowstore"
)

var validateCmd = &cobra.Command{
	Use:   "validate [dir]",
	Short: "Check flow definitions for consistency",
	Long:  `Loads every flow document in dir (or the configured flows_dir) and reports the first invalid definition.`,
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, logger, err := loadConfig(cmd)
		if err != nil {
			return err
		}
		dir := cfg.FlowsDir
		if len(args) > 0 {
			dir = args[0]
		}

		store, err := flowstore.LoadDir(dir, flowstore.WithLogger(logger))
		if err != nil {
			return fmt.Errorf("validation failed: %w", err)
		}

		out := cmd.OutOrStdout()
		for _, s := range store.Flows() {
			fmt.Fprintf(out, "%s (version %s): %d nodes, start %s, %d commit edges\n",
				s.ID, s.Version, s.Nodes, s.Start, len(s.Commits))
			flow, _ := store.Flow(s.ID)
			for _, w := range validator.Lint(flow) {
				fmt.Fprintln(out, "  warning: "+w.String())
			}
		}
		fmt.Fprintf(out, "%d flows are valid\n", store.Len())
		return nil
	},
}

func init() {
	rootCmd.AddCommand(validateCmd)
}
