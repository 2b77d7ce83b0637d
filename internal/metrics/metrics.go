// Package metrics exposes Prometheus instrumentation for job submission and
// status tracking.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

type Metrics struct {
	registry *prometheus.Registry

	submissionsTotal   *prometheus.CounterVec
	submissionDuration *prometheus.HistogramVec
	submissionInFlight prometheus.Gauge
	statusPollsTotal   *prometheus.CounterVec
	displayedStage     prometheus.Gauge
}

func New() *Metrics {
	registry := prometheus.NewRegistry()

	submissionsTotal := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "swrite",
			Subsystem: "agent",
			Name:      "submissions_total",
			Help:      "Job submissions by outcome.",
		},
		[]string{"outcome"},
	)
	submissionDuration := prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "swrite",
			Subsystem: "agent",
			Name:      "submission_duration_seconds",
			Help:      "Time from submit to Job API response by outcome.",
			Buckets:   []float64{0.1, 0.25, 0.5, 1, 2, 5, 10, 30, 60},
		},
		[]string{"outcome"},
	)
	submissionInFlight := prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: "swrite",
			Subsystem: "agent",
			Name:      "submissions_in_flight",
			Help:      "1 while a submission is outstanding.",
		},
	)
	statusPollsTotal := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "swrite",
			Subsystem: "agent",
			Name:      "status_polls_total",
			Help:      "Job status polls by result.",
		},
		[]string{"result"},
	)
	displayedStage := prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: "swrite",
			Subsystem: "agent",
			Name:      "displayed_stage",
			Help:      "Stage index currently displayed for the active job, -1 when none.",
		},
	)
	displayedStage.Set(-1)

	registry.MustRegister(submissionsTotal, submissionDuration, submissionInFlight, statusPollsTotal, displayedStage)

	return &Metrics{
		registry:           registry,
		submissionsTotal:   submissionsTotal,
		submissionDuration: submissionDuration,
		submissionInFlight: submissionInFlight,
		statusPollsTotal:   statusPollsTotal,
		displayedStage:     displayedStage,
	}
}

func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

func (m *Metrics) StartSubmission() {
	m.submissionInFlight.Set(1)
}

func (m *Metrics) FinishSubmission(outcome string, duration time.Duration) {
	m.submissionInFlight.Set(0)
	m.submissionsTotal.WithLabelValues(outcome).Inc()
	m.submissionDuration.WithLabelValues(outcome).Observe(duration.Seconds())
}

// RejectSubmission counts a submission refused before any network call.
func (m *Metrics) RejectSubmission(outcome string) {
	m.submissionsTotal.WithLabelValues(outcome).Inc()
}

func (m *Metrics) ObservePoll(result string) {
	m.statusPollsTotal.WithLabelValues(result).Inc()
}

func (m *Metrics) SetDisplayedStage(index int) {
	m.displayedStage.Set(float64(index))
}
