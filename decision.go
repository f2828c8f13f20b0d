package ratelimit

import (
	"fmt"
	"time"
)

// Reason explains how a Decision was reached.
type Reason int

const (
	// ReasonNone means the decision came from the store.
	ReasonNone Reason = iota
	// ReasonTimeout means the store did not answer within the configured
	// timeout and the request was let through (fail-open).
	ReasonTimeout
)

func (r Reason) String() string {
	switch r {
	case ReasonNone:
		return "none"
	case ReasonTimeout:
		return "timeout"
	default:
		return fmt.Sprintf("Reason(%d)", int(r))
	}
}

// Decision is the outcome of one Limit call.
type Decision struct {
	// Allowed reports whether the request was admitted.
	Allowed bool
	// Limit is the maximum number of requests the algorithm admits per
	// window (or the bucket capacity for TokenBucket).
	Limit uint64
	// Remaining is the number of requests still available. Always 0 when
	// the request was denied or admitted by fail-open.
	Remaining uint64
	// Reset is when the current window ends or the next token is due.
	// It is never before the instant of the request.
	Reset time.Time
	// Reason is ReasonTimeout for fail-open decisions.
	Reason Reason
}

func admitted(limit, remaining, reset, now int64) Decision {
	if remaining < 0 {
		remaining = 0
	}
	return Decision{
		Allowed:   true,
		Limit:     uint64(limit),
		Remaining: uint64(remaining),
		Reset:     resetTime(reset, now),
	}
}

func denied(limit, reset, now int64) Decision {
	return Decision{
		Limit: uint64(limit),
		Reset: resetTime(reset, now),
	}
}

func failedOpen(limit, reset, now int64) Decision {
	d := admitted(limit, 0, reset, now)
	d.Reason = ReasonTimeout
	return d
}

func resetTime(reset, now int64) time.Time {
	if reset < now {
		reset = now
	}
	return time.UnixMilli(reset)
}
