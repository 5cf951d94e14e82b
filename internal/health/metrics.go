package health

import (
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"go-lead-radar/internal/models"
)

const namespace = "leadradar"

// Metrics holds the pipeline counters fed from heartbeats.
type Metrics struct {
	runsTotal       *prometheus.CounterVec
	postsStored     *prometheus.CounterVec
	runDuration     *prometheus.HistogramVec
	modelRetries    prometheus.Counter
	classifications *prometheus.CounterVec

	gatherer prometheus.Gatherer
}

// NewMetrics registers the collectors on reg. A nil reg gets a private registry.
func NewMetrics(reg *prometheus.Registry) *Metrics {
	if reg == nil {
		reg = prometheus.NewRegistry()
	}

	m := &Metrics{gatherer: reg}
	m.runsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "runs_total",
			Help:      "Total number of job runs by outcome",
		},
		[]string{"job", "outcome"},
	)
	m.postsStored = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "posts_stored_total",
			Help:      "Total number of new posts persisted",
		},
		[]string{"source"},
	)
	m.runDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "run_duration_seconds",
			Help:      "Job run duration in seconds",
			Buckets:   []float64{0.5, 1, 5, 15, 30, 60, 120, 300, 600},
		},
		[]string{"job"},
	)
	m.modelRetries = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "model_retries_total",
		Help:      "Total number of retried model calls",
	})
	m.classifications = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "classifications_total",
			Help:      "Posts processed by the classifier by outcome",
		},
		[]string{"outcome"},
	)

	reg.MustRegister(m.runsTotal, m.postsStored, m.runDuration, m.modelRetries, m.classifications)
	return m
}

// Observe feeds one finished run into the collectors.
func (m *Metrics) Observe(hb models.Heartbeat) {
	if m == nil {
		return
	}
	m.runsTotal.WithLabelValues(hb.Job, string(hb.Outcome)).Inc()
	if !hb.StartedAt.IsZero() && hb.FinishedAt.After(hb.StartedAt) {
		m.runDuration.WithLabelValues(hb.Job).Observe(hb.FinishedAt.Sub(hb.StartedAt).Seconds())
	}
	if hb.Source != "" && hb.Counts.Stored > 0 {
		m.postsStored.WithLabelValues(string(hb.Source)).Add(float64(hb.Counts.Stored))
	}
	if hb.Job == models.JobClassifier {
		m.modelRetries.Add(float64(hb.Counts.Retries))
		m.classifications.WithLabelValues("classified").Add(float64(hb.Counts.Classified))
		m.classifications.WithLabelValues("failed").Add(float64(hb.Counts.Failed))
		m.classifications.WithLabelValues("skipped").Add(float64(hb.Counts.Skipped))
	}
}

// Handler returns the Prometheus metrics HTTP handler
func (m *Metrics) Handler() gin.HandlerFunc {
	handler := promhttp.HandlerFor(m.gatherer, promhttp.HandlerOpts{})
	return func(c *gin.Context) {
		handler.ServeHTTP(c.Writer, c.Request)
	}
}
