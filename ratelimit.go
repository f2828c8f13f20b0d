package ratelimit

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math/rand/v2"
	"time"

	"github.com/ryhazerus/ratelimit/metrics"
	"github.com/ryhazerus/ratelimit/store"
)

// Limiter enforces one algorithm's quota for any number of identifiers
// against a shared store. It holds no per-identifier state, so any number of
// Limiters in any number of processes agree on the same quota as long as they
// share the store, prefix and algorithm.
//
// A Limiter is safe for concurrent use.
type Limiter struct {
	store     store.Executor
	algorithm Algorithm
	prefix    string
	timeout   time.Duration
	analytics bool
	recorder  Recorder
	logger    *slog.Logger
	now       func() time.Time
}

// New creates a Limiter. WithStore and WithAlgorithm are required.
func New(opts ...Option) (*Limiter, error) {
	l := &Limiter{
		prefix: DefaultPrefix,
		logger: slog.Default(),
		now:    time.Now,
	}
	for _, opt := range opts {
		if err := opt(l); err != nil {
			return nil, err
		}
	}

	if l.store == nil {
		return nil, ErrNoStore
	}
	if l.algorithm == nil {
		return nil, ErrNoAlgorithm
	}
	if l.analytics && l.recorder == nil {
		l.recorder = metrics.Default()
	}

	return l, nil
}

// Limit counts one request for identifier and reports whether it is
// admitted. It makes exactly one round trip to the store.
//
// Errors are ErrEmptyIdentifier, ErrClockBeforeEpoch, *StoreUnavailableError
// and *UnsupportedAlgorithmError. A store timeout with WithTimeout configured
// is not an error: the request is admitted with Reason ReasonTimeout.
func (l *Limiter) Limit(ctx context.Context, identifier string) (Decision, error) {
	if identifier == "" {
		return Decision{}, ErrEmptyIdentifier
	}

	now := l.now().UnixMilli()
	if now < 0 {
		return Decision{}, ErrClockBeforeEpoch
	}

	c := l.algorithm.prepare(l.prefix, identifier, now)

	start := time.Now()
	reply, err := l.execute(ctx, c)
	latency := time.Since(start)

	if err != nil {
		if l.timeout > 0 && errors.Is(err, context.DeadlineExceeded) && ctx.Err() == nil {
			l.logger.Warn("rate limit store timed out, admitting request",
				"identifier", identifier,
				"algorithm", l.algorithm.Name(),
				"timeout", l.timeout)
			l.record(OutcomeFailOpen, latency)
			return l.algorithm.failOpen(now), nil
		}

		l.record(OutcomeError, latency)
		if errors.Is(err, store.ErrUnsupportedScript) {
			return Decision{}, &UnsupportedAlgorithmError{Algorithm: l.algorithm.Name(), Err: err}
		}
		l.logger.Debug("rate limit store failed",
			"identifier", identifier,
			"algorithm", l.algorithm.Name(),
			"error", err)
		return Decision{}, &StoreUnavailableError{Algorithm: l.algorithm.Name(), Err: err}
	}

	d, err := l.algorithm.decide(reply, now)
	if err != nil {
		l.record(OutcomeError, latency)
		return Decision{}, &StoreUnavailableError{Algorithm: l.algorithm.Name(), Err: err}
	}

	if d.Allowed {
		l.record(OutcomeAllowed, latency)
	} else {
		l.record(OutcomeDenied, latency)
	}
	return d, nil
}

// Algorithm returns the configured algorithm.
func (l *Limiter) Algorithm() Algorithm {
	return l.algorithm
}

// execute runs the call, giving up after the configured timeout even when the
// store does not honour ctx.
func (l *Limiter) execute(ctx context.Context, c call) ([]int64, error) {
	if l.timeout <= 0 {
		return l.store.Execute(ctx, c.script, c.keys, c.args...)
	}

	ctx, cancel := context.WithTimeout(ctx, l.timeout)
	defer cancel()

	type result struct {
		reply []int64
		err   error
	}
	done := make(chan result, 1)
	go func() {
		reply, err := l.store.Execute(ctx, c.script, c.keys, c.args...)
		done <- result{reply, err}
	}()

	select {
	case r := <-done:
		return r.reply, r.err
	case <-ctx.Done():
		return nil, fmt.Errorf("ratelimit: waiting for store: %w", ctx.Err())
	}
}

func (l *Limiter) record(outcome string, latency time.Duration) {
	if !l.analytics {
		return
	}
	l.recorder.Observe(l.algorithm.Name(), outcome, latency)
}

func nonce() int64 {
	return rand.Int64()
}
