package ratelimit

import (
	"fmt"
	"time"

	"github.com/ryhazerus/ratelimit/store"
)

// SlidingWindow approximates a rolling window of length Window from two fixed
// window counters. The previous window's count is weighted by the share of
// it still covered by the rolling window:
//
//	estimate = previous * (1 - elapsed/Window) + current
//
// A request is admitted, and counted, only while the estimate is below
// Tokens. Denied requests do not change any counter.
type SlidingWindow struct {
	Tokens int64
	Window time.Duration
}

const slidingWindowName = "sliding_window"

// slidingWindowSlack keeps a bucket readable as the "previous" counter for
// the whole of the next window.
const slidingWindowSlack = 1000

// slidingWindowMaxWeight bounds 2*Tokens*Window, the largest value the
// scaled comparison can reach. The Lua rendering compares in doubles, which
// are exact up to 2^53.
const slidingWindowMaxWeight = 1 << 53

// KEYS[1] = current bucket counter
// KEYS[2] = previous bucket counter
// ARGV[1] = tokens
// ARGV[2] = now in milliseconds
// ARGV[3] = window in milliseconds
//
// The estimate is compared scaled by the window so it stays in integers:
// previous*(window - elapsed) + current*window < tokens*window.
var slidingWindowScript = &store.Script{
	Name: slidingWindowName,
	Lua: `
local currentKey  = KEYS[1]
local previousKey = KEYS[2]
local tokens      = tonumber(ARGV[1])
local now         = tonumber(ARGV[2])
local window      = tonumber(ARGV[3])

local current  = tonumber(redis.call("GET", currentKey) or "0")
local previous = tonumber(redis.call("GET", previousKey) or "0")
local elapsed  = now % window

if previous * (window - elapsed) + current * window >= tokens * window then
    return {-1}
end

local count = redis.call("INCR", currentKey)
if count == 1 then
    redis.call("PEXPIRE", currentKey, window * 2 + 1000)
end

return {count}
`,
	Native: slidingWindowNative,
}

func slidingWindowNative(tx store.Tx, keys []string, args []int64) ([]int64, error) {
	if err := arity(slidingWindowName, keys, args, 2, 3); err != nil {
		return nil, err
	}
	tokens, now, window := args[0], args[1], args[2]

	current, err := tx.Get(keys[0])
	if err != nil {
		return nil, err
	}
	previous, err := tx.Get(keys[1])
	if err != nil {
		return nil, err
	}
	elapsed := now % window

	if previous*(window-elapsed)+current*window >= tokens*window {
		return []int64{-1}, nil
	}

	count, err := tx.IncrBy(keys[0], 1)
	if err != nil {
		return nil, err
	}
	if count == 1 {
		if err := tx.PExpire(keys[0], window*2+slidingWindowSlack); err != nil {
			return nil, err
		}
	}
	return []int64{count}, nil
}

func (a SlidingWindow) Name() string { return slidingWindowName }

func (a SlidingWindow) validate() error {
	if a.Tokens <= 0 {
		return fmt.Errorf("%w: sliding window tokens must be positive, got %d", ErrInvalidConfig, a.Tokens)
	}
	if a.Window < time.Millisecond {
		return fmt.Errorf("%w: sliding window must be at least 1ms, got %s", ErrInvalidConfig, a.Window)
	}
	if a.Tokens > slidingWindowMaxWeight/(2*millis(a.Window)) {
		return fmt.Errorf("%w: sliding window of %d tokens per %s is too large", ErrInvalidConfig, a.Tokens, a.Window)
	}
	return nil
}

func (a SlidingWindow) prepare(prefix, identifier string, now int64) call {
	window := millis(a.Window)
	current := bucket(now, window)
	return call{
		script: slidingWindowScript,
		keys: []string{
			bucketKey(prefix, identifier, current),
			bucketKey(prefix, identifier, current-1),
		},
		args: []int64{a.Tokens, now, window},
	}
}

func (a SlidingWindow) decide(reply []int64, now int64) (Decision, error) {
	if err := replyLen(reply, 1); err != nil {
		return Decision{}, err
	}
	reset := a.reset(now)
	if reply[0] < 0 {
		return denied(a.Tokens, reset, now), nil
	}
	return admitted(a.Tokens, a.Tokens-reply[0], reset, now), nil
}

func (a SlidingWindow) failOpen(now int64) Decision {
	return failedOpen(a.Tokens, a.reset(now), now)
}

func (a SlidingWindow) reset(now int64) int64 {
	window := millis(a.Window)
	return (bucket(now, window) + 1) * window
}
