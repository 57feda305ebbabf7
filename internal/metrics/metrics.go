// Package metrics exposes Prometheus instrumentation for predictgate.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/kiranshivaraju/predictgate/pkg/models"
)

const namespace = "predictgate"

var durationBuckets = []float64{0.005, 0.01, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30, 60}

// Metrics holds the service collectors on a private registry.
type Metrics struct {
	registry *prometheus.Registry

	jobsSubmitted   prometheus.Counter
	jobsRejected    *prometheus.CounterVec
	jobsCompleted   *prometheus.CounterVec
	jobDuration     *prometheus.HistogramVec
	syncPredictions *prometheus.CounterVec
	syncDuration    prometheus.Histogram
	rateLimited     prometheus.Counter
}

// New creates and registers all collectors.
func New() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		jobsSubmitted: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "jobs_submitted_total",
			Help:      "Number of async prediction jobs accepted.",
		}),
		jobsRejected: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "jobs_rejected_total",
			Help:      "Number of async submissions refused before a job was created.",
		}, []string{"reason"}),
		jobsCompleted: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "jobs_completed_total",
			Help:      "Number of async jobs that reached a terminal state.",
		}, []string{"status"}),
		jobDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "job_duration_seconds",
			Help:      "Time from submission to terminal state.",
			Buckets:   durationBuckets,
		}, []string{"status"}),
		syncPredictions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "sync_predictions_total",
			Help:      "Number of synchronous prediction requests by outcome.",
		}, []string{"outcome"}),
		syncDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "sync_prediction_duration_seconds",
			Help:      "Latency of synchronous predictions.",
			Buckets:   durationBuckets,
		}),
		rateLimited: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "rate_limited_requests_total",
			Help:      "Number of requests refused by the rate limiter.",
		}),
	}

	m.registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		m.jobsSubmitted,
		m.jobsRejected,
		m.jobsCompleted,
		m.jobDuration,
		m.syncPredictions,
		m.syncDuration,
		m.rateLimited,
	)
	return m
}

// TrackJobs exposes the number of jobs currently held by the store.
func (m *Metrics) TrackJobs(size func() int) {
	m.registry.MustRegister(prometheus.NewGaugeFunc(prometheus.GaugeOpts{
		Namespace: namespace,
		Name:      "jobs_stored",
		Help:      "Number of jobs held in the job store.",
	}, func() float64 { return float64(size()) }))
}

func (m *Metrics) JobSubmitted() {
	m.jobsSubmitted.Inc()
}

func (m *Metrics) JobRejected(reason string) {
	m.jobsRejected.WithLabelValues(reason).Inc()
}

func (m *Metrics) JobCompleted(status models.JobStatus, elapsed time.Duration) {
	m.jobsCompleted.WithLabelValues(string(status)).Inc()
	m.jobDuration.WithLabelValues(string(status)).Observe(elapsed.Seconds())
}

// SyncPrediction records one /predict call. outcome is "ok", "invalid",
// "failed" or "timeout".
func (m *Metrics) SyncPrediction(outcome string, elapsed time.Duration) {
	m.syncPredictions.WithLabelValues(outcome).Inc()
	if outcome == "ok" {
		m.syncDuration.Observe(elapsed.Seconds())
	}
}

func (m *Metrics) RateLimited() {
	m.rateLimited.Inc()
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}
