package queue

import (
	"github.com/prometheus/client_golang/prometheus"
)

var queueJobs = prometheus.NewGauge(prometheus.GaugeOpts{
	Name: "queue_jobs",
	Help: "Number of jobs currently in the queue",
})

func init() {
	prometheus.MustRegister(queueJobs)
}
