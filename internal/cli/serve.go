package cli

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
)

// Serve runs the HTTP server on ln until ctx is cancelled, then shuts down
// within the configured timeout and drains queued lead jobs.
func Serve(ctx context.Context, app *App, ln net.Listener) error {
	srv := &http.Server{
		Handler:           app.Handler(),
		ReadHeaderTimeout: app.Config.HTTP.ReadHeaderTimeout,
	}

	serverErrors := make(chan error, 1)
	go func() {
		app.Logger.Info("http server listening", "addr", ln.Addr().String(), "flows", app.Engine.Flows().IDs())
		serverErrors <- srv.Serve(ln)
	}()

	select {
	case err := <-serverErrors:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return fmt.Errorf("http server: %w", err)
	case <-ctx.Done():
	}

	app.Logger.Info("shutting down", "timeout", app.Config.HTTP.ShutdownTimeout)
	shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), app.Config.HTTP.ShutdownTimeout)
	defer cancel()

	var errs []error
	if err := srv.Shutdown(shutdownCtx); err != nil {
		errs = append(errs, fmt.Errorf("graceful shutdown did not complete: %w", err))
		_ = srv.Close()
	}
	if err := app.Close(shutdownCtx); err != nil {
		errs = append(errs, err)
	}
	if len(errs) == 0 {
		app.Logger.Info("server stopped gracefully")
	}
	return errors.Join(errs...)
}
