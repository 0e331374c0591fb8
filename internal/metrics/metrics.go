// Package metrics provides Prometheus metrics for the interview agent.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds all Prometheus metrics for the interview agent.
// A nil *Metrics is valid and records nothing.
type Metrics struct {
	// Completion gateway metrics
	CompletionAttemptsTotal *prometheus.CounterVec
	CompletionDuration      *prometheus.HistogramVec

	// Conversation store metrics
	StoreWritesTotal *prometheus.CounterVec

	// Session metrics
	SavesTotal               *prometheus.CounterVec
	SessionsActive           prometheus.Gauge
	InterviewsCompletedTotal prometheus.Counter
}

// NewMetrics creates all collectors and registers them on reg.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)
	m := &Metrics{}

	m.CompletionAttemptsTotal = factory.NewCounterVec(
		prometheus.CounterOpts{
			Name: "interview_completion_attempts_total",
			Help: "Total number of calls made to the completion API, by purpose and result",
		},
		[]string{"purpose", "result"},
	)

	m.CompletionDuration = factory.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "interview_completion_duration_seconds",
			Help:    "Duration of completion gateway calls including retries",
			Buckets: []float64{0.25, 0.5, 1, 2.5, 5, 10, 30, 60},
		},
		[]string{"purpose"},
	)

	m.StoreWritesTotal = factory.NewCounterVec(
		prometheus.CounterOpts{
			Name: "interview_store_writes_total",
			Help: "Total number of conversation write attempts, by status",
		},
		[]string{"status"},
	)

	m.SavesTotal = factory.NewCounterVec(
		prometheus.CounterOpts{
			Name: "interview_saves_total",
			Help: "Total number of end-of-interview saves, by outcome",
		},
		[]string{"outcome"},
	)

	m.SessionsActive = factory.NewGauge(
		prometheus.GaugeOpts{
			Name: "interview_sessions_active",
			Help: "Number of interview sessions held in memory",
		},
	)

	m.InterviewsCompletedTotal = factory.NewCounter(
		prometheus.CounterOpts{
			Name: "interview_interviews_completed_total",
			Help: "Total number of interviews that reached the completion marker",
		},
	)

	return m
}

// ObserveCompletionAttempt records one call to the completion API.
func (m *Metrics) ObserveCompletionAttempt(purpose, result string) {
	if m == nil {
		return
	}
	m.CompletionAttemptsTotal.WithLabelValues(purpose, result).Inc()
}

// ObserveCompletion records the duration of a gateway call.
func (m *Metrics) ObserveCompletion(purpose string, d time.Duration) {
	if m == nil {
		return
	}
	m.CompletionDuration.WithLabelValues(purpose).Observe(d.Seconds())
}

func (m *Metrics) ObserveStoreWrite(status string) {
	if m == nil {
		return
	}
	m.StoreWritesTotal.WithLabelValues(status).Inc()
}

func (m *Metrics) ObserveSave(outcome string) {
	if m == nil {
		return
	}
	m.SavesTotal.WithLabelValues(outcome).Inc()
}

func (m *Metrics) SetSessionsActive(n int) {
	if m == nil {
		return
	}
	m.SessionsActive.Set(float64(n))
}

func (m *Metrics) IncInterviewsCompleted() {
	if m == nil {
		return
	}
	m.InterviewsCompletedTotal.Inc()
}
