package ratelimit

import (
	"context"
	"fmt"
	"net/http"
	"time"
)

// DeniedError is returned by the Transport when a request exceeds its
// budget. It matches ErrRateLimited.
type DeniedError struct {
	Identifier string
	Decision   Decision
}

func (e *DeniedError) Error() string {
	return fmt.Sprintf("ratelimit: rate limit exceeded for %s (limit %d, resets at %s)",
		e.Identifier, e.Decision.Limit, e.Decision.Reset.UTC().Format(time.RFC3339))
}

func (e *DeniedError) Unwrap() error {
	return ErrRateLimited
}

// Wait blocks until the denied budget resets or ctx is done, whichever
// comes first.
func (e *DeniedError) Wait(ctx context.Context) error {
	d := time.Until(e.Decision.Reset)
	if d <= 0 {
		return nil
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Transport returns an http.RoundTripper that counts each request against
// the identifier chosen by identify before forwarding it to base. Requests
// identify rejects are forwarded uncounted. A nil base uses
// http.DefaultTransport.
func (l *Limiter) Transport(base http.RoundTripper, identify Identifier) http.RoundTripper {
	if base == nil {
		base = http.DefaultTransport
	}
	return &transport{limiter: l, base: base, identify: identify}
}

type transport struct {
	limiter  *Limiter
	base     http.RoundTripper
	identify Identifier
}

func (t *transport) RoundTrip(req *http.Request) (*http.Response, error) {
	id, ok := t.identify(req)
	if !ok {
		return t.base.RoundTrip(req)
	}

	d, err := t.limiter.Limit(req.Context(), id)
	if err != nil {
		return nil, err
	}
	if !d.Allowed {
		return nil, &DeniedError{Identifier: id, Decision: d}
	}
	return t.base.RoundTrip(req)
}
