package store

import (
	"context"
	"errors"
)

// ErrUnsupportedScript is returned by an Executor that has no way to run the
// given script, for example a store without a Lua engine handed a script that
// only carries a Lua rendering.
var ErrUnsupportedScript = errors.New("store: script not supported by this store")

// Script is a named atomic operation over an ordered list of keys and
// integer arguments, replying with a list of integers.
//
// A script carries one rendering per kind of store: Lua for stores that
// evaluate scripts server-side (Redis) and Native for stores that can run a
// Go function inside a transaction or under a lock.
type Script struct {
	Name   string
	Lua    string
	Native func(tx Tx, keys []string, args []int64) ([]int64, error)
}

// Executor runs scripts against a shared store. Each Execute call must be
// indivisible relative to every other operation touching the same keys.
type Executor interface {
	Execute(ctx context.Context, s *Script, keys []string, args ...int64) ([]int64, error)
}

// Tx is the set of primitives available to a Native script. All calls made
// through one Tx observe and mutate the store as a single unit. Semantics
// follow the Redis commands of the same name; expirations are in
// milliseconds and missing keys read as zero.
type Tx interface {
	Get(key string) (int64, error)
	IncrBy(key string, delta int64) (int64, error)
	PExpire(key string, ttl int64) error

	HGet(key, field string) (value int64, ok bool, err error)
	HSet(key, field string, value int64) error

	ZAdd(key string, score int64, member string) error
	// ZRemRangeByScore removes every member scored at or below max.
	ZRemRangeByScore(key string, max int64) error
	ZCard(key string) (int64, error)
	// ZMin returns the lowest score in the set.
	ZMin(key string) (score int64, ok bool, err error)
}
