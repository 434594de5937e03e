package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds all Prometheus metrics for the consultation gateway.
type Metrics struct {
	registry *prometheus.Registry

	// Live consultation sessions
	SessionsActive  prometheus.Gauge
	SessionsTotal   *prometheus.CounterVec
	SessionDuration prometheus.Histogram
	AudioBytesTotal prometheus.Counter

	// Extraction tool calls
	ToolCallsTotal *prometheus.CounterVec

	// Eligibility engine
	EligibilityEvalsTotal prometheus.Counter

	// Background summarizer
	SummaryAttemptsTotal prometheus.Counter
	SummaryJobsTotal     *prometheus.CounterVec
}

// New creates a Metrics instance with all metrics registered on a fresh registry.
func New(namespace string) *Metrics {
	if namespace == "" {
		namespace = "ruralmed"
	}

	registry := prometheus.NewRegistry()

	sessionsActive := prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: namespace,
		Name:      "live_sessions_active",
		Help:      "Number of currently open consultation sessions",
	})
	sessionsTotal := prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "live_sessions_total",
		Help:      "Total consultation sessions by terminal outcome",
	}, []string{"outcome"})
	sessionDuration := prometheus.NewHistogram(prometheus.HistogramOpts{
		Namespace: namespace,
		Name:      "live_session_duration_seconds",
		Help:      "Consultation session duration in seconds",
		Buckets:   []float64{10, 30, 60, 120, 300, 600, 1800, 3600},
	})
	audioBytesTotal := prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "live_audio_bytes_total",
		Help:      "Total decoded audio bytes relayed to the extraction service",
	})
	toolCallsTotal := prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "tool_calls_total",
		Help:      "Total extraction tool calls by dispatch result",
	}, []string{"result"})
	eligibilityEvalsTotal := prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "eligibility_evaluations_total",
		Help:      "Total scheme eligibility evaluations",
	})
	summaryAttemptsTotal := prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "summary_attempts_total",
		Help:      "Total summarization service calls including retries",
	})
	summaryJobsTotal := prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "summary_jobs_total",
		Help:      "Total summary jobs by terminal outcome",
	}, []string{"outcome"})

	registry.MustRegister(
		sessionsActive,
		sessionsTotal,
		sessionDuration,
		audioBytesTotal,
		toolCallsTotal,
		eligibilityEvalsTotal,
		summaryAttemptsTotal,
		summaryJobsTotal,
	)

	return &Metrics{
		registry:              registry,
		SessionsActive:        sessionsActive,
		SessionsTotal:         sessionsTotal,
		SessionDuration:       sessionDuration,
		AudioBytesTotal:       audioBytesTotal,
		ToolCallsTotal:        toolCallsTotal,
		EligibilityEvalsTotal: eligibilityEvalsTotal,
		SummaryAttemptsTotal:  summaryAttemptsTotal,
		SummaryJobsTotal:      summaryJobsTotal,
	}
}

// Handler returns the /metrics endpoint for this registry.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}
