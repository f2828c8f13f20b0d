package ratelimit

import (
	"fmt"
	"log/slog"
	"time"

	"github.com/ryhazerus/ratelimit/store"
)

// DefaultPrefix is the key namespace used when WithPrefix is not given. It
// matches the Upstash rate limit libraries so they can share counters.
const DefaultPrefix = "@upstash/ratelimit"

// Option configures a Limiter.
type Option func(*Limiter) error

// WithStore sets the executor that runs the algorithm's atomic script.
// Required. The store's lifecycle stays with the caller.
func WithStore(s store.Executor) Option {
	return func(l *Limiter) error {
		if s == nil {
			return fmt.Errorf("%w: store cannot be nil", ErrInvalidConfig)
		}
		l.store = s
		return nil
	}
}

// WithAlgorithm selects the rate limiting algorithm and its parameters.
// Required.
func WithAlgorithm(a Algorithm) Option {
	return func(l *Limiter) error {
		if a == nil {
			return fmt.Errorf("%w: algorithm cannot be nil", ErrInvalidConfig)
		}
		if err := a.validate(); err != nil {
			return err
		}
		l.algorithm = a
		return nil
	}
}

// WithPrefix sets the namespace prepended to every key. Applications sharing
// one store must use distinct prefixes. An empty prefix keeps the default.
func WithPrefix(prefix string) Option {
	return func(l *Limiter) error {
		if prefix != "" {
			l.prefix = prefix
		}
		return nil
	}
}

// WithTimeout bounds how long Limit waits for the store. When the bound is
// hit the request is admitted with Reason ReasonTimeout. Zero waits as long
// as ctx allows.
func WithTimeout(d time.Duration) Option {
	return func(l *Limiter) error {
		if d < 0 {
			return fmt.Errorf("%w: timeout cannot be negative, got %s", ErrInvalidConfig, d)
		}
		l.timeout = d
		return nil
	}
}

// WithAnalytics enables recording every decision. Decisions go to the
// recorder given with WithRecorder, or to the process-wide Prometheus
// recorder when none is given.
func WithAnalytics(enabled bool) Option {
	return func(l *Limiter) error {
		l.analytics = enabled
		return nil
	}
}

// WithRecorder sets where decisions are recorded when analytics are enabled.
func WithRecorder(r Recorder) Option {
	return func(l *Limiter) error {
		if r == nil {
			return fmt.Errorf("%w: recorder cannot be nil", ErrInvalidConfig)
		}
		l.recorder = r
		return nil
	}
}

// WithLogger sets the logger. Defaults to slog.Default().
func WithLogger(logger *slog.Logger) Option {
	return func(l *Limiter) error {
		if logger == nil {
			return fmt.Errorf("%w: logger cannot be nil", ErrInvalidConfig)
		}
		l.logger = logger
		return nil
	}
}

// WithClock replaces time.Now as the source of request timestamps.
func WithClock(now func() time.Time) Option {
	return func(l *Limiter) error {
		if now == nil {
			return fmt.Errorf("%w: clock cannot be nil", ErrInvalidConfig)
		}
		l.now = now
		return nil
	}
}
