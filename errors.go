package ratelimit

import (
	"errors"
	"fmt"
)

var (
	// ErrInvalidConfig is returned by New when an option or algorithm
	// parameter is invalid.
	ErrInvalidConfig = errors.New("ratelimit: invalid configuration")

	// ErrNoStore is returned by New when no store was configured.
	ErrNoStore = fmt.Errorf("%w: no store configured", ErrInvalidConfig)

	// ErrNoAlgorithm is returned by New when no algorithm was configured.
	ErrNoAlgorithm = fmt.Errorf("%w: no algorithm configured", ErrInvalidConfig)

	// ErrEmptyIdentifier is returned by Limit for an empty identifier.
	ErrEmptyIdentifier = errors.New("ratelimit: identifier cannot be empty")

	// ErrClockBeforeEpoch is returned by Limit when the clock reports a time
	// before the unix epoch.
	ErrClockBeforeEpoch = errors.New("ratelimit: clock is before the unix epoch")

	// ErrStoreUnavailable matches every *StoreUnavailableError.
	ErrStoreUnavailable = errors.New("ratelimit: store unavailable")

	// ErrUnsupportedAlgorithm matches every *UnsupportedAlgorithmError.
	ErrUnsupportedAlgorithm = errors.New("ratelimit: algorithm not supported by store")

	// ErrRateLimited matches every *DeniedError.
	ErrRateLimited = errors.New("ratelimit: rate limit exceeded")

	errMalformedReply = errors.New("malformed script reply")
)

// StoreUnavailableError reports that the store could not run a script:
// connection failure, script error, timeout without fail-open, or a reply
// the algorithm could not interpret. The caller may retry.
type StoreUnavailableError struct {
	Algorithm string
	Err       error
}

func (e *StoreUnavailableError) Error() string {
	return fmt.Sprintf("ratelimit: store unavailable for %s: %v", e.Algorithm, e.Err)
}

func (e *StoreUnavailableError) Unwrap() []error {
	return []error{ErrStoreUnavailable, e.Err}
}

// UnsupportedAlgorithmError reports that the configured store has no way to
// run the configured algorithm's script.
type UnsupportedAlgorithmError struct {
	Algorithm string
	Err       error
}

func (e *UnsupportedAlgorithmError) Error() string {
	return fmt.Sprintf("ratelimit: %s: %v", e.Algorithm, e.Err)
}

func (e *UnsupportedAlgorithmError) Unwrap() []error {
	return []error{ErrUnsupportedAlgorithm, e.Err}
}
