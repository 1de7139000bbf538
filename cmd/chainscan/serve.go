package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/Sternrassler/gmgn-scan/internal/api"
	"github.com/spf13/cobra"
)

func newServeCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the HTTP API",
		Long:  `Starts the scan API and serves it until SIGINT or SIGTERM.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(cmd)
			if err != nil {
				return err
			}
			if port, _ := cmd.Flags().GetString("port"); port != "" {
				cfg.Server.Port = port
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			a, err := newApp(ctx, cfg, cmd.ErrOrStderr())
			if err != nil {
				return err
			}
			defer a.Close()

			srv := &http.Server{
				Addr:         ":" + cfg.Server.Port,
				Handler:      api.NewHandler(a.scanner, a.ready),
				ReadTimeout:  cfg.Server.ReadTimeout.Duration,
				WriteTimeout: cfg.Server.WriteTimeout.Duration,
			}

			serverErrors := make(chan error, 1)
			go func() {
				a.logger.Info().
					Str("addr", srv.Addr).
					Str("upstream", cfg.Upstream.BaseURL).
					Msg("Starting chainscan server")
				serverErrors <- srv.ListenAndServe()
			}()

			select {
			case err := <-serverErrors:
				if errors.Is(err, http.ErrServerClosed) {
					return nil
				}
				return fmt.Errorf("server: %w", err)

			case <-ctx.Done():
				a.logger.Info().Msg("Shutdown requested")

				shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout.Duration)
				defer cancel()

				if err := srv.Shutdown(shutdownCtx); err != nil {
					a.logger.Error().Err(err).Dur("timeout", cfg.Server.ShutdownTimeout.Duration).Msg("Graceful shutdown did not complete")
					if err := srv.Close(); err != nil {
						a.logger.Error().Err(err).Msg("Server close error")
					}
				}
				a.logger.Info().Msg("chainscan server stopped")
				return nil
			}
		},
	}
	cmd.Flags().StringP("port", "p", "", "Port to listen on (overrides server.port)")
	return cmd
}
