package worker

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Metrics counts job outcomes. A nil *Metrics records nothing.
type Metrics struct {
	jobsTotal   *prometheus.CounterVec
	jobDuration *prometheus.HistogramVec
	inFlight    prometheus.Gauge
}

func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		jobsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "documentgenerator_jobs_total",
				Help: "Count of conversion jobs acknowledged, by outcome and failing step",
			},
			[]string{"outcome", "step"},
		),
		jobDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "documentgenerator_job_duration_seconds",
				Help:    "Wall time from delivery to acknowledgement",
				Buckets: []float64{0.5, 1, 2, 5, 10, 30, 60, 120, 300, 600},
			},
			[]string{"outcome"},
		),
		inFlight: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "documentgenerator_jobs_in_flight",
			Help: "Jobs currently being processed by this worker",
		}),
	}
	reg.MustRegister(m.jobsTotal, m.jobDuration, m.inFlight)
	return m
}

func (m *Metrics) start() {
	if m == nil {
		return
	}
	m.inFlight.Inc()
}

func (m *Metrics) finish(outcome, step string, d time.Duration) {
	if m == nil {
		return
	}
	m.inFlight.Dec()
	m.jobsTotal.WithLabelValues(outcome, step).Inc()
	m.jobDuration.WithLabelValues(outcome).Observe(d.Seconds())
}
