package service

import (
	"github.com/prometheus/client_golang/prometheus"
)

var (
	runsStartedTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "runs_started_total",
		Help: "Total number of runs submitted to the backend",
	})

	runsCompletedTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "runs_completed_total",
		Help: "Total number of runs that finished successfully",
	})

	runsFailedTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "runs_failed_total",
		Help: "Total number of runs that ended in failure",
	})

	runsStoppedTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "runs_stopped_total",
		Help: "Total number of runs aborted by the operator",
	})

	runActive = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "run_active",
		Help: "Whether a run is currently active (0 or 1)",
	})

	pollFailuresTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "poll_failures_total",
		Help: "Total number of failed progress poll ticks",
	})
)

func init() {
	prometheus.MustRegister(
		runsStartedTotal,
		runsCompletedTotal,
		runsFailedTotal,
		runsStoppedTotal,
		runActive,
		pollFailuresTotal,
	)
}
