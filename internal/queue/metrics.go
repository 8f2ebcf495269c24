package queue

import (
	"github.com/inconshreveable/log15"
	"github.com/prometheus/client_golang/prometheus"
)

// RegisterMetrics exposes the queued job count as a sampled gauge. Call
// once per process after constructing the queue.
func (q *Queue) RegisterMetrics(r prometheus.Registerer) {
	r.MustRegister(prometheus.NewGaugeFunc(prometheus.GaugeOpts{
		Namespace: "src",
		Subsystem: "lsif_queue",
		Name:      "size",
		Help:      "Number of queued jobs.",
	}, func() float64 {
		count, err := q.QueuedCount()
		if err != nil {
			log15.Error("Failed to sample queue size", "error", err)
			return 0
		}

		return float64(count)
	}))
}
