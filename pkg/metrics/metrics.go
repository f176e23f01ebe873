// Package metrics registers the Prometheus collectors the pipeline
// exposes: dispatcher throughput and drops, resolver blocked-envelope
// gauge, and job run counters.
//
// Grounded on _examples/cuemby-warren/pkg/metrics/metrics.go's
// var-block-of-collectors + init()-MustRegister + Timer-helper shape,
// scoped down from warren's cluster-wide node/service/task metrics to
// the handful of counters this pipeline actually needs.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	EnvelopesDispatched = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "quietmesh",
		Subsystem: "dispatcher",
		Name:      "envelopes_dispatched_total",
		Help:      "Total envelopes that matched at least one handler.",
	})

	DispatcherDrops = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "quietmesh",
		Subsystem: "dispatcher",
		Name:      "drops_total",
		Help:      "Envelopes fatally dropped, labeled by reason/handler.",
	}, []string{"reason"})

	BlockedEnvelopes = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: "quietmesh",
		Subsystem: "resolver",
		Name:      "blocked_envelopes",
		Help:      "Current count of parked envelopes awaiting dependencies.",
	})

	JobRuns = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "quietmesh",
		Subsystem: "jobs",
		Name:      "runs_total",
		Help:      "Job runs, labeled by job name and outcome.",
	}, []string{"job_name", "ok"})

	HandlerDuration = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "quietmesh",
		Subsystem: "dispatcher",
		Name:      "handler_duration_seconds",
		Help:      "Handler process() duration.",
		Buckets:   prometheus.DefBuckets,
	}, []string{"handler"})
)

func init() {
	prometheus.MustRegister(
		EnvelopesDispatched,
		DispatcherDrops,
		BlockedEnvelopes,
		JobRuns,
		HandlerDuration,
	)
}

// Handler returns the promhttp handler for a metrics listen address.
func Handler() http.Handler {
	return promhttp.Handler()
}

// Timer measures a handler invocation's duration, grounded on warren's
// pkg/metrics.Timer helper.
type Timer struct {
	start time.Time
}

// NewTimer starts a timer.
func NewTimer() *Timer {
	return &Timer{start: time.Now()}
}

// ObserveDuration records the elapsed time against histogram with the
// given label values.
func (t *Timer) ObserveDuration(histogram *prometheus.HistogramVec, labelValues ...string) {
	histogram.WithLabelValues(labelValues...).Observe(time.Since(t.start).Seconds())
}

// Duration returns the elapsed time without recording it.
func (t *Timer) Duration() time.Duration {
	return time.Since(t.start)
}
