package engine

import "github.com/prometheus/client_golang/prometheus"

var (
	runsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "parcheck_runs_total",
			Help: "Total number of check runs by outcome.",
		},
		[]string{"outcome"},
	)

	tasksTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "parcheck_tasks_total",
			Help: "Total number of tasks by terminal state.",
		},
		[]string{"state"},
	)

	runDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "parcheck_run_duration_seconds",
			Help:    "Wall-clock duration of check runs.",
			Buckets: []float64{0.01, 0.05, 0.1, 0.5, 1, 2, 5, 10, 30, 60, 120, 300},
		},
		[]string{"mode"},
	)

	liveWorkers = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "parcheck_live_workers",
			Help: "Number of worker processes currently running.",
		},
	)
)

func init() {
	prometheus.MustRegister(runsTotal)
	prometheus.MustRegister(tasksTotal)
	prometheus.MustRegister(runDuration)
	prometheus.MustRegister(liveWorkers)
}
