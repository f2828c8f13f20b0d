package cmd

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"

	"github.com/ryhazerus/ratelimit/internal/api"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Serve rate limit decisions over HTTP",
	Long: `Serve rate limit decisions over HTTP.

Endpoints:
  POST /limit    {"identifier": "..."} -> decision, 429 when denied
  GET  /health   liveness
  GET  /metrics  Prometheus metrics (enable analytics to record decisions)`,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		logger := newLogger(os.Stderr, cfg)

		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		s, closeStore, err := openStore(ctx, cfg, logger)
		if err != nil {
			return err
		}
		defer closeStore()

		limiter, err := newLimiter(cfg, s, logger)
		if err != nil {
			return err
		}

		handler := api.NewHandler(limiter, logger, cfg.Server.IdentifierHeader)
		srv := &http.Server{
			Addr:              cfg.Server.HTTPAddr,
			Handler:           handler.Routes(prometheus.DefaultGatherer),
			ReadHeaderTimeout: 5 * time.Second,
		}

		errCh := make(chan error, 1)
		go func() {
			logger.Info("serving rate limit decisions",
				"addr", cfg.Server.HTTPAddr,
				"store", cfg.Store.Type,
				"algorithm", limiter.Algorithm().Name())
			errCh <- srv.ListenAndServe()
		}()

		select {
		case err := <-errCh:
			if !errors.Is(err, http.ErrServerClosed) {
				return fmt.Errorf("http server: %w", err)
			}
			return nil
		case <-ctx.Done():
		}

		logger.Info("shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	},
}

func init() {
	rootCmd.AddCommand(serveCmd)
}
