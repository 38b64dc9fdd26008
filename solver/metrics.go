package solver

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Metrics are the solver's Prometheus collectors.
type Metrics struct {
	SolvesTotal    *prometheus.CounterVec
	SolveDuration  prometheus.Histogram
	PagesAvailable prometheus.Gauge
	TasksInFlight  prometheus.Gauge
	PagesRecycled  prometheus.Counter
}

// NewMetrics registers the solver collectors on reg.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		SolvesTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "turnstile",
			Name:      "solves_total",
			Help:      "Completed solve tasks by terminal status.",
		}, []string{"status"}),
		SolveDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: "turnstile",
			Name:      "solve_duration_seconds",
			Help:      "Wall time from admission to terminal state.",
			Buckets:   []float64{0.5, 1, 2, 5, 10, 15, 30, 60},
		}),
		PagesAvailable: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "turnstile",
			Name:      "pages_available",
			Help:      "Idle pages in the pool.",
		}),
		TasksInFlight: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "turnstile",
			Name:      "tasks_in_flight",
			Help:      "Admitted tasks not yet terminal.",
		}),
		PagesRecycled: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "turnstile",
			Name:      "pages_recycled_total",
			Help:      "Pages replaced by periodic recycling.",
		}),
	}
	reg.MustRegister(m.SolvesTotal, m.SolveDuration, m.PagesAvailable, m.TasksInFlight, m.PagesRecycled)
	return m
}

func (m *Metrics) observeSolve(status string, seconds float64) {
	if m == nil {
		return
	}
	m.SolvesTotal.WithLabelValues(status).Inc()
	m.SolveDuration.Observe(seconds)
}

func (m *Metrics) setGauges(available, inFlight int) {
	if m == nil {
		return
	}
	m.PagesAvailable.Set(float64(available))
	m.TasksInFlight.Set(float64(inFlight))
}

func (m *Metrics) addRecycled(n int) {
	if m == nil {
		return
	}
	m.PagesRecycled.Add(float64(n))
}
