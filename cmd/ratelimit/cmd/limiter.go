package cmd

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/redis/go-redis/v9"

	"github.com/ryhazerus/ratelimit"
	"github.com/ryhazerus/ratelimit/internal/config"
	"github.com/ryhazerus/ratelimit/store"
	redisstore "github.com/ryhazerus/ratelimit/store/redis"
)

// openStore connects the configured store. The returned close function
// releases it.
func openStore(ctx context.Context, cfg *config.Config, logger *slog.Logger) (store.Executor, func() error, error) {
	switch cfg.Store.Type {
	case "redis":
		client := redis.NewClient(&redis.Options{
			Addr:     cfg.Store.Redis.Addr,
			Username: cfg.Store.Redis.Username,
			Password: cfg.Store.Redis.Password,
			DB:       cfg.Store.Redis.DB,
		})
		if err := client.Ping(ctx).Err(); err != nil {
			client.Close()
			return nil, nil, fmt.Errorf("connect to redis at %s: %w", cfg.Store.Redis.Addr, err)
		}
		e := redisstore.NewExecutor(client)
		if err := e.Load(ctx, ratelimit.Scripts()...); err != nil {
			client.Close()
			return nil, nil, err
		}
		logger.Debug("using redis store", "addr", cfg.Store.Redis.Addr)
		return e, client.Close, nil

	case "sqlite":
		e, err := store.NewSQLiteExecutor(cfg.Store.SQLite.DSN)
		if err != nil {
			return nil, nil, err
		}
		logger.Debug("using sqlite store", "dsn", cfg.Store.SQLite.DSN)
		return e, e.Close, nil

	default:
		logger.Debug("using in-memory store")
		return store.NewMemoryExecutor(), func() error { return nil }, nil
	}
}

// newLimiter builds a Limiter from cfg over s.
func newLimiter(cfg *config.Config, s store.Executor, logger *slog.Logger) (*ratelimit.Limiter, error) {
	algorithm, err := cfg.RateLimitAlgorithm()
	if err != nil {
		return nil, err
	}
	return ratelimit.New(
		ratelimit.WithStore(s),
		ratelimit.WithAlgorithm(algorithm),
		ratelimit.WithPrefix(cfg.Prefix),
		ratelimit.WithTimeout(cfg.TimeoutDuration()),
		ratelimit.WithAnalytics(cfg.Analytics),
		ratelimit.WithLogger(logger),
	)
}
