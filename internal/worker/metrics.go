package worker

import "github.com/prometheus/client_golang/prometheus"

var (
	jobDurationHistogram = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "src",
		Subsystem: "lsif_worker",
		Name:      "job_duration_seconds",
		Help:      "Time spent processing a job.",
		Buckets:   prometheus.ExponentialBuckets(0.1, 2, 12),
	}, []string{"job"})

	jobErrorCounter = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "src",
		Subsystem: "lsif_worker",
		Name:      "job_errors_total",
		Help:      "Number of failed job executions.",
	}, []string{"job"})
)

func init() {
	prometheus.MustRegister(jobDurationHistogram)
	prometheus.MustRegister(jobErrorCounter)
}
