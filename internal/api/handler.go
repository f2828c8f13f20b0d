// Package api exposes a Limiter over HTTP.
package api

import (
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/ryhazerus/ratelimit"
)

// Handler answers rate limit decisions over HTTP.
type Handler struct {
	limiter          *ratelimit.Limiter
	logger           *slog.Logger
	identifierHeader string
}

// NewHandler creates a handler deciding with limiter. When identifierHeader
// is not empty, requests without a body are identified by that header.
func NewHandler(limiter *ratelimit.Limiter, logger *slog.Logger, identifierHeader string) *Handler {
	return &Handler{
		limiter:          limiter,
		logger:           logger,
		identifierHeader: identifierHeader,
	}
}

// LimitRequest is the body of POST /limit.
type LimitRequest struct {
	Identifier string `json:"identifier"` // Required: user ID, API key, IP
}

// LimitResponse is the decision returned by POST /limit.
type LimitResponse struct {
	Allowed   bool   `json:"allowed"`
	Limit     uint64 `json:"limit"`
	Remaining uint64 `json:"remaining"`
	Reset     int64  `json:"reset"` // Unix milliseconds
	Reason    string `json:"reason,omitempty"`
}

// ErrorResponse represents an error response.
type ErrorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message"`
}

// Limit handles POST /limit. A denied request is answered with 429.
func (h *Handler) Limit(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		h.sendError(w, http.StatusMethodNotAllowed, "method_not_allowed", "Only POST requests are allowed")
		return
	}

	// An empty body, chunked or not, falls back to the identifier header.
	var req LimitRequest
	if r.ContentLength != 0 {
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil && !errors.Is(err, io.EOF) {
			h.sendError(w, http.StatusBadRequest, "invalid_request", "Invalid JSON body")
			return
		}
	}
	if req.Identifier == "" && h.identifierHeader != "" {
		req.Identifier = r.Header.Get(h.identifierHeader)
	}

	d, err := h.limiter.Limit(r.Context(), req.Identifier)
	switch {
	case errors.Is(err, ratelimit.ErrEmptyIdentifier):
		h.sendError(w, http.StatusBadRequest, "missing_identifier", "identifier is required")
		return
	case errors.Is(err, ratelimit.ErrStoreUnavailable):
		h.logger.Error("rate limit decision failed", "error", err)
		h.sendError(w, http.StatusServiceUnavailable, "store_unavailable", "rate limit store unavailable")
		return
	case err != nil:
		h.logger.Error("rate limit decision failed", "error", err)
		h.sendError(w, http.StatusInternalServerError, "internal_error", err.Error())
		return
	}

	resp := LimitResponse{
		Allowed:   d.Allowed,
		Limit:     d.Limit,
		Remaining: d.Remaining,
		Reset:     d.Reset.UnixMilli(),
	}
	if d.Reason != ratelimit.ReasonNone {
		resp.Reason = d.Reason.String()
	}

	setRateLimitHeaders(w.Header(), d)
	statusCode := http.StatusOK
	if !d.Allowed {
		statusCode = http.StatusTooManyRequests
		retry := time.Until(d.Reset)
		w.Header().Set("Retry-After", strconv.FormatInt(int64((retry+time.Second-1)/time.Second), 10))
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	json.NewEncoder(w).Encode(resp)
}

// Health handles GET /health.
func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]string{
		"status":    "ok",
		"algorithm": h.limiter.Algorithm().Name(),
	})
}

// Routes returns the service mux: POST /limit, GET /health and GET /metrics
// served from gatherer.
func (h *Handler) Routes(gatherer prometheus.Gatherer) *http.ServeMux {
	mux := http.NewServeMux()
	mux.HandleFunc("/limit", h.Limit)
	mux.HandleFunc("GET /health", h.Health)
	mux.Handle("GET /metrics", promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{}))
	return mux
}

func setRateLimitHeaders(h http.Header, d ratelimit.Decision) {
	h.Set("X-RateLimit-Limit", strconv.FormatUint(d.Limit, 10))
	h.Set("X-RateLimit-Remaining", strconv.FormatUint(d.Remaining, 10))
	h.Set("X-RateLimit-Reset", strconv.FormatInt(d.Reset.Unix(), 10))
}

func (h *Handler) sendError(w http.ResponseWriter, statusCode int, errorCode, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	json.NewEncoder(w).Encode(ErrorResponse{
		Error:   errorCode,
		Message: message,
	})
}
