package ratelimit

import (
	"fmt"
	"time"

	"github.com/ryhazerus/ratelimit/store"
)

// FixedWindow admits up to Tokens requests per identifier in each
// consecutive Window. Up to 2*Tokens requests can pass around a window
// boundary: Tokens at the end of one window and Tokens at the start of the
// next.
type FixedWindow struct {
	Tokens int64
	Window time.Duration
}

const fixedWindowName = "fixed_window"

// KEYS[1] = counter key for the current bucket
// ARGV[1] = window in milliseconds
var fixedWindowScript = &store.Script{
	Name: fixedWindowName,
	Lua: `
local key    = KEYS[1]
local window = ARGV[1]

local count = redis.call("INCR", key)
if count == 1 then
    -- First hit in this bucket; the expiry is set only once.
    redis.call("PEXPIRE", key, window)
end

return {count}
`,
	Native: fixedWindowNative,
}

func fixedWindowNative(tx store.Tx, keys []string, args []int64) ([]int64, error) {
	if err := arity(fixedWindowName, keys, args, 1, 1); err != nil {
		return nil, err
	}

	count, err := tx.IncrBy(keys[0], 1)
	if err != nil {
		return nil, err
	}
	if count == 1 {
		if err := tx.PExpire(keys[0], args[0]); err != nil {
			return nil, err
		}
	}
	return []int64{count}, nil
}

func (a FixedWindow) Name() string { return fixedWindowName }

func (a FixedWindow) validate() error {
	if a.Tokens <= 0 {
		return fmt.Errorf("%w: fixed window tokens must be positive, got %d", ErrInvalidConfig, a.Tokens)
	}
	if a.Window < time.Millisecond {
		return fmt.Errorf("%w: fixed window must be at least 1ms, got %s", ErrInvalidConfig, a.Window)
	}
	return nil
}

func (a FixedWindow) prepare(prefix, identifier string, now int64) call {
	window := millis(a.Window)
	return call{
		script: fixedWindowScript,
		keys:   []string{bucketKey(prefix, identifier, bucket(now, window))},
		args:   []int64{window},
	}
}

func (a FixedWindow) decide(reply []int64, now int64) (Decision, error) {
	if err := replyLen(reply, 1); err != nil {
		return Decision{}, err
	}
	count := reply[0]
	reset := a.reset(now)
	if count <= a.Tokens {
		return admitted(a.Tokens, a.Tokens-count, reset, now), nil
	}
	return denied(a.Tokens, reset, now), nil
}

func (a FixedWindow) failOpen(now int64) Decision {
	return failedOpen(a.Tokens, a.reset(now), now)
}

func (a FixedWindow) reset(now int64) int64 {
	window := millis(a.Window)
	return (bucket(now, window) + 1) * window
}
