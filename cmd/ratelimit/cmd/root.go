// Package cmd provides the CLI commands for ratelimit.
package cmd

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/ryhazerus/ratelimit/internal/config"
)

var cfgFile string

var rootCmd = &cobra.Command{
	Use:   "ratelimit",
	Short: "ratelimit - shared-store rate limiting",
	Long: `ratelimit enforces request quotas against a shared store (Redis, SQLite
or memory) using fixed window, sliding window, sliding log or token bucket
counting.

Configuration:
  Config is loaded from ratelimit.yaml in the current directory or
  $HOME/.ratelimit/.

  Environment variables override config values with the RATELIMIT_ prefix.
  Example: RATELIMIT_STORE_REDIS_ADDR=10.0.0.5:6379

Commands:
  check       Run rate limit decisions for an identifier
  serve       Serve decisions over HTTP
  version     Print version information`,
	SilenceUsage: true,
}

// Execute runs the root command.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default: ./ratelimit.yaml)")
}

func loadConfig() (*config.Config, error) {
	return config.Load(config.NewViper(cfgFile))
}

func newLogger(w io.Writer, cfg *config.Config) *slog.Logger {
	opts := &slog.HandlerOptions{Level: parseLogLevel(cfg.Server.LogLevel)}
	if cfg.Server.LogFormat == "json" {
		return slog.New(slog.NewJSONHandler(w, opts))
	}
	return slog.New(slog.NewTextHandler(w, opts))
}

func parseLogLevel(level string) slog.Level {
	switch strings.ToLower(level) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
