package ratelimit

import "time"

// Outcomes passed to Recorder.Observe.
const (
	OutcomeAllowed  = "allowed"
	OutcomeDenied   = "denied"
	OutcomeFailOpen = "fail_open"
	OutcomeError    = "error"
)

// Recorder receives one observation per Limit call when analytics are
// enabled. Implementations must be safe for concurrent use. The metrics
// package provides a Prometheus implementation.
type Recorder interface {
	Observe(algorithm, outcome string, latency time.Duration)
}
