package ratelimit

import (
	"fmt"

	"github.com/ryhazerus/ratelimit/store"
)

// Algorithm selects how requests are counted. The set is closed: use one of
// FixedWindow, SlidingWindow, SlidingLog or TokenBucket.
type Algorithm interface {
	// Name identifies the algorithm in logs, metrics and errors.
	Name() string

	validate() error
	// prepare derives the keys and arguments of one script call at now (unix ms).
	prepare(prefix, identifier string, now int64) call
	// decide maps a script reply to a Decision.
	decide(reply []int64, now int64) (Decision, error)
	// failOpen is the Decision returned when the store timed out.
	failOpen(now int64) Decision
}

type call struct {
	script *store.Script
	keys   []string
	args   []int64
}

// Scripts returns every script used by the algorithms, for example to
// preload them into a store's script cache.
func Scripts() []*store.Script {
	return []*store.Script{
		fixedWindowScript,
		slidingWindowScript,
		slidingLogScript,
		tokenBucketScript,
	}
}

func replyLen(reply []int64, n int) error {
	if len(reply) != n {
		return fmt.Errorf("%w: got %d values, want %d", errMalformedReply, len(reply), n)
	}
	return nil
}

// arity guards native scripts against being called with the wrong shape.
func arity(name string, keys []string, args []int64, nkeys, nargs int) error {
	if len(keys) != nkeys || len(args) != nargs {
		return fmt.Errorf("%s: want %d keys and %d args, got %d and %d", name, nkeys, nargs, len(keys), len(args))
	}
	return nil
}

func ceilDiv(a, b int64) int64 {
	return (a + b - 1) / b
}
