package main

import (
	"fmt"
	"net"

	"github.com/spf13/cobra"

	"github.com/aretw0/leadflow/internal/cli"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the HTTP API",
	Long:  `Starts the chat API, loading flows and the course catalog from the configuration. Stops gracefully on SIGINT or SIGTERM.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, logger, err := loadConfig(cmd)
		if err != nil {
			return err
		}
		if addr, _ := cmd.Flags().GetString("addr"); addr != "" {
			cfg.HTTP.Addr = addr
		}

		ctx := cli.NewSignalContext(cmd.Context())
		defer ctx.Cancel()

		app, err := cli.Build(ctx, cfg, logger)
		if err != nil {
			return err
		}
		ln, err := net.Listen("tcp", cfg.HTTP.Addr)
		if err != nil {
			_ = app.Close(ctx)
			return fmt.Errorf("listening on %s: %w", cfg.HTTP.Addr, err)
		}
		err = cli.Serve(ctx, app, ln)
		if sig := ctx.Signal(); sig != nil {
			logger.Info("received signal", "signal", sig.String())
		}
		return err
	},
}

func init() {
	serveCmd.Flags().String("addr", "", "Listen address (overrides http.addr)")
	rootCmd.AddCommand(serveCmd)
}
