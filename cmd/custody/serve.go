package main

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"aaveCustody/internal/api"
)

func serveCmd() *cobra.Command {
	cmd := moduleCmd(&cobra.Command{
		Use:   "serve",
		Short: "Serve the read API and metrics",
		Args:  cobra.NoArgs,
		RunE:  runServe,
	})
	cmd.Flags().String("listen", ":8080", "HTTP listen address")
	return cmd
}

func runServe(cmd *cobra.Command, _ []string) error {
	return withApp(cmd, func(ctx context.Context, a *app) error {
		srv := &http.Server{
			Addr: a.cfg.Listen,
			Handler: api.New(api.Config{
				Custody:        a.module,
				MetricsHandler: a.metrics.Handler(),
				Requests:       a.metrics,
				Logger:         a.logger,
			}),
			ReadHeaderTimeout: 5 * time.Second,
		}

		errCh := make(chan error, 1)
		go func() {
			a.logger.Info("http listen", zap.String("addr", srv.Addr))
			errCh <- srv.ListenAndServe()
		}()

		select {
		case err := <-errCh:
			if errors.Is(err, http.ErrServerClosed) {
				return nil
			}
			return err
		case <-ctx.Done():
		}

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		a.logger.Info("http shutdown")
		return srv.Shutdown(shutdownCtx)
	})
}
