package main

import (
	"context"

	"github.com/spf13/cobra"

	"github.com/aretw0/leadflow"
	"github.com/aretw0/leadflow/internal/cli"
)

var chatCmd = &cobra.Command{
	Use:   "chat",
	Short: "Walk a flow interactively in the terminal",
	Long:  `Runs a conversation against the configured flows, reading answers from stdin. Type 'exit' to leave.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, logger, err := loadConfig(cmd)
		if err != nil {
			return err
		}
		ctx := cli.NewSignalContext(cmd.Context())
		defer ctx.Cancel()

		app, err := cli.Build(ctx, cfg, logger)
		if err != nil {
			return err
		}
		defer func() {
			shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), cfg.HTTP.ShutdownTimeout)
			defer cancel()
			_ = app.Close(shutdownCtx)
		}()

		runner := leadflow.NewRunner(cmd.InOrStdin(), cmd.OutOrStdout())
		if flow, _ := cmd.Flags().GetString("flow"); flow != "" {
			runner.FlowID = flow
		}
		return runner.Run(ctx, app.Engine)
	},
}

func init() {
	chatCmd.Flags().String("flow", "", "Flow to run (defaults to default_flow)")
	rootCmd.AddCommand(chatCmd)
}
