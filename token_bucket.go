package ratelimit

import (
	"fmt"
	"time"

	"github.com/ryhazerus/ratelimit/store"
)

// TokenBucket holds up to MaxTokens tokens per identifier and adds
// RefillRate tokens every Interval. Each admitted request takes one token; a
// new identifier starts with a full bucket.
type TokenBucket struct {
	MaxTokens  int64
	RefillRate int64
	Interval   time.Duration
}

const tokenBucketName = "token_bucket"

// KEYS[1] = bucket hash with fields "tokens" and "refilledAt"
// ARGV[1] = max tokens
// ARGV[2] = refill rate
// ARGV[3] = interval in milliseconds
// ARGV[4] = now in milliseconds
//
// Replies {tokens remaining, next refill}, or {-1, next refill} when the
// request is denied. Only whole elapsed intervals are credited. An admission
// moves refilledAt to now; a denial leaves the state untouched. The key
// expires once the bucket would be full again, which is indistinguishable
// from a fresh bucket.
var tokenBucketScript = &store.Script{
	Name: tokenBucketName,
	Lua: `
local key        = KEYS[1]
local maxTokens  = tonumber(ARGV[1])
local refillRate = tonumber(ARGV[2])
local interval   = tonumber(ARGV[3])
local now        = tonumber(ARGV[4])

local state      = redis.call("HMGET", key, "tokens", "refilledAt")
local tokens     = maxTokens
local refilledAt = now
if state[1] and state[2] then
    tokens     = tonumber(state[1])
    refilledAt = tonumber(state[2])
end

local intervals = math.floor((now - refilledAt) / interval)
if intervals < 0 then
    intervals = 0
end
local refilled = math.min(maxTokens, tokens + intervals * refillRate)

if refilled < 1 then
    return {-1, refilledAt + interval}
end

local remaining = refilled - 1
redis.call("HSET", key, "tokens", remaining, "refilledAt", now)
redis.call("PEXPIRE", key, math.ceil((maxTokens - remaining) / refillRate) * interval)

return {remaining, now + interval}
`,
	Native: tokenBucketNative,
}

func tokenBucketNative(tx store.Tx, keys []string, args []int64) ([]int64, error) {
	if err := arity(tokenBucketName, keys, args, 1, 4); err != nil {
		return nil, err
	}
	key := keys[0]
	maxTokens, refillRate, interval, now := args[0], args[1], args[2], args[3]

	tokens, hasTokens, err := tx.HGet(key, "tokens")
	if err != nil {
		return nil, err
	}
	refilledAt, hasRefilledAt, err := tx.HGet(key, "refilledAt")
	if err != nil {
		return nil, err
	}
	if !hasTokens || !hasRefilledAt {
		tokens, refilledAt = maxTokens, now
	}

	intervals := int64(0)
	if now > refilledAt {
		intervals = (now - refilledAt) / interval
	}
	refilled := min(maxTokens, tokens+intervals*refillRate)

	if refilled < 1 {
		return []int64{-1, refilledAt + interval}, nil
	}

	remaining := refilled - 1
	if err := tx.HSet(key, "tokens", remaining); err != nil {
		return nil, err
	}
	if err := tx.HSet(key, "refilledAt", now); err != nil {
		return nil, err
	}
	if err := tx.PExpire(key, ceilDiv(maxTokens-remaining, refillRate)*interval); err != nil {
		return nil, err
	}

	return []int64{remaining, now + interval}, nil
}

func (a TokenBucket) Name() string { return tokenBucketName }

func (a TokenBucket) validate() error {
	if a.MaxTokens <= 0 {
		return fmt.Errorf("%w: token bucket max tokens must be positive, got %d", ErrInvalidConfig, a.MaxTokens)
	}
	if a.RefillRate <= 0 {
		return fmt.Errorf("%w: token bucket refill rate must be positive, got %d", ErrInvalidConfig, a.RefillRate)
	}
	if a.Interval < time.Millisecond {
		return fmt.Errorf("%w: token bucket interval must be at least 1ms, got %s", ErrInvalidConfig, a.Interval)
	}
	return nil
}

func (a TokenBucket) prepare(prefix, identifier string, now int64) call {
	return call{
		script: tokenBucketScript,
		keys:   []string{identifierKey(prefix, identifier)},
		args:   []int64{a.MaxTokens, a.RefillRate, millis(a.Interval), now},
	}
}

func (a TokenBucket) decide(reply []int64, now int64) (Decision, error) {
	if err := replyLen(reply, 2); err != nil {
		return Decision{}, err
	}
	remaining, next := reply[0], reply[1]
	if remaining < 0 {
		return denied(a.MaxTokens, next, now), nil
	}
	return admitted(a.MaxTokens, remaining, next, now), nil
}

func (a TokenBucket) failOpen(now int64) Decision {
	return failedOpen(a.MaxTokens, now+millis(a.Interval), now)
}
