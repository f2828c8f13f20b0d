// Package redis adapts a go-redis client to the store.Executor contract.
// Scripts are sent with EVALSHA and fall back to EVAL when the server does
// not have them cached, so every Execute is a single atomic server-side run.
package redis

import (
	"context"
	"fmt"
	"sync"

	"github.com/redis/go-redis/v9"
	"github.com/ryhazerus/ratelimit/store"
)

// Compile-time interface check.
var _ store.Executor = (*Executor)(nil)

// Executor is a store.Executor backed by Redis. It works with any go-redis
// client that can run scripts: *redis.Client, *redis.ClusterClient, *redis.Ring.
//
// On a cluster all keys of one script call must hash to the same slot, or
// Redis replies CROSSSLOT. The fixed window, sliding log and token bucket use
// one key per call. The sliding window reads two bucket keys, so give it a
// hash-tagged prefix such as "{ratelimit}"; every identifier under that
// prefix then lives in the same slot.
//
// The client is owned by the caller; Executor never closes it.
type Executor struct {
	client redis.Scripter

	mu      sync.Mutex
	scripts map[string]*redis.Script
}

// NewExecutor creates a Redis-backed executor.
func NewExecutor(client redis.Scripter) *Executor {
	return &Executor{
		client:  client,
		scripts: make(map[string]*redis.Script),
	}
}

// Execute evaluates the Lua rendering of s and returns its integer reply.
func (e *Executor) Execute(ctx context.Context, s *store.Script, keys []string, args ...int64) ([]int64, error) {
	if s == nil || s.Lua == "" {
		return nil, fmt.Errorf("%w: redis store needs a lua script", store.ErrUnsupportedScript)
	}

	argv := make([]interface{}, len(args))
	for i, a := range args {
		argv[i] = a
	}

	reply, err := e.script(s).Run(ctx, e.client, keys, argv...).Int64Slice()
	if err != nil {
		return nil, fmt.Errorf("ratelimit/store/redis: %s: %w", s.Name, err)
	}
	return reply, nil
}

// Load uploads every script to the server's script cache ahead of the first
// Execute. It is optional.
func (e *Executor) Load(ctx context.Context, scripts ...*store.Script) error {
	for _, s := range scripts {
		if s.Lua == "" {
			continue
		}
		if err := e.script(s).Load(ctx, e.client).Err(); err != nil {
			return fmt.Errorf("ratelimit/store/redis: load %s: %w", s.Name, err)
		}
	}
	return nil
}

func (e *Executor) script(s *store.Script) *redis.Script {
	e.mu.Lock()
	defer e.mu.Unlock()

	rs, ok := e.scripts[s.Name]
	if !ok {
		rs = redis.NewScript(s.Lua)
		e.scripts[s.Name] = rs
	}
	return rs
}
