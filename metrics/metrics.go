// Package metrics records rate limit decisions as Prometheus metrics.
package metrics

import (
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Recorder holds the rate limit metrics. It satisfies ratelimit.Recorder.
type Recorder struct {
	Decisions    *prometheus.CounterVec
	StoreLatency *prometheus.HistogramVec
}

// NewRecorder creates and registers the metrics with reg.
func NewRecorder(reg prometheus.Registerer) *Recorder {
	return &Recorder{
		Decisions: promauto.With(reg).NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "ratelimit",
				Name:      "decisions_total",
				Help:      "Total rate limit decisions",
			},
			[]string{"algorithm", "outcome"}, // outcome=allowed/denied/fail_open/error
		),
		StoreLatency: promauto.With(reg).NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: "ratelimit",
				Name:      "store_latency_seconds",
				Help:      "Time spent waiting for the store per decision",
				Buckets:   []float64{.0005, .001, .0025, .005, .01, .025, .05, .1, .25, .5, 1},
			},
			[]string{"algorithm"},
		),
	}
}

// Observe records one decision.
func (r *Recorder) Observe(algorithm, outcome string, latency time.Duration) {
	r.Decisions.WithLabelValues(algorithm, outcome).Inc()
	r.StoreLatency.WithLabelValues(algorithm).Observe(latency.Seconds())
}

var (
	defaultOnce     sync.Once
	defaultRecorder *Recorder
)

// Default returns the process-wide recorder registered with
// prometheus.DefaultRegisterer. It is created on first use.
func Default() *Recorder {
	defaultOnce.Do(func() {
		defaultRecorder = NewRecorder(prometheus.DefaultRegisterer)
	})
	return defaultRecorder
}
