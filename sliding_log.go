package ratelimit

import (
	"fmt"
	"strconv"
	"time"

	"github.com/ryhazerus/ratelimit/store"
)

// SlidingLog records every admitted request with its timestamp and admits a
// new one only while fewer than Tokens were admitted in the last Window.
// It is exact at window boundaries at the cost of one stored entry per
// admitted request.
type SlidingLog struct {
	Tokens int64
	Window time.Duration
}

const slidingLogName = "sliding_log"

// KEYS[1] = log of admission timestamps (sorted set)
// ARGV[1] = tokens
// ARGV[2] = now in milliseconds
// ARGV[3] = window in milliseconds
// ARGV[4] = nonce, keeps members unique when requests share a millisecond
//
// Replies {count after insertion, oldest timestamp}, or {-1, oldest timestamp}
// when the request is denied.
var slidingLogScript = &store.Script{
	Name: slidingLogName,
	Lua: `
local key    = KEYS[1]
local tokens = tonumber(ARGV[1])
local now    = tonumber(ARGV[2])
local window = tonumber(ARGV[3])
local member = ARGV[2] .. ":" .. ARGV[4]

redis.call("ZREMRANGEBYSCORE", key, "-inf", now - window)

local count = redis.call("ZCARD", key)
if count < tokens then
    redis.call("ZADD", key, now, member)
    redis.call("PEXPIRE", key, window)
    count = count + 1
else
    count = -1
end

local oldest = redis.call("ZRANGE", key, 0, 0, "WITHSCORES")
return {count, tonumber(oldest[2])}
`,
	Native: slidingLogNative,
}

func slidingLogNative(tx store.Tx, keys []string, args []int64) ([]int64, error) {
	if err := arity(slidingLogName, keys, args, 1, 4); err != nil {
		return nil, err
	}
	key := keys[0]
	tokens, now, window, nonce := args[0], args[1], args[2], args[3]

	if err := tx.ZRemRangeByScore(key, now-window); err != nil {
		return nil, err
	}

	count, err := tx.ZCard(key)
	if err != nil {
		return nil, err
	}
	if count < tokens {
		member := strconv.FormatInt(now, 10) + ":" + strconv.FormatInt(nonce, 10)
		if err := tx.ZAdd(key, now, member); err != nil {
			return nil, err
		}
		if err := tx.PExpire(key, window); err != nil {
			return nil, err
		}
		count++
	} else {
		count = -1
	}

	oldest, ok, err := tx.ZMin(key)
	if err != nil {
		return nil, err
	}
	if !ok {
		oldest = now
	}
	return []int64{count, oldest}, nil
}

func (a SlidingLog) Name() string { return slidingLogName }

func (a SlidingLog) validate() error {
	if a.Tokens <= 0 {
		return fmt.Errorf("%w: sliding log tokens must be positive, got %d", ErrInvalidConfig, a.Tokens)
	}
	if a.Window < time.Millisecond {
		return fmt.Errorf("%w: sliding log window must be at least 1ms, got %s", ErrInvalidConfig, a.Window)
	}
	return nil
}

func (a SlidingLog) prepare(prefix, identifier string, now int64) call {
	return call{
		script: slidingLogScript,
		keys:   []string{identifierKey(prefix, identifier)},
		args:   []int64{a.Tokens, now, millis(a.Window), nonce()},
	}
}

func (a SlidingLog) decide(reply []int64, now int64) (Decision, error) {
	if err := replyLen(reply, 2); err != nil {
		return Decision{}, err
	}
	count, oldest := reply[0], reply[1]
	reset := oldest + millis(a.Window)
	if count < 0 {
		return denied(a.Tokens, reset, now), nil
	}
	return admitted(a.Tokens, a.Tokens-count, reset, now), nil
}

func (a SlidingLog) failOpen(now int64) Decision {
	return failedOpen(a.Tokens, now+millis(a.Window), now)
}
