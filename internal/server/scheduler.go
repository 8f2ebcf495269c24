package server

import (
	"context"
	"time"

	"github.com/go-redsync/redsync"
	"github.com/gomodule/redigo/redis"
	"github.com/inconshreveable/log15"

	"github.com/sourcegraph/lsif-server/internal/worker"
)

const updateTipsLockName = "lsif:update-tips-scheduler"

// Scheduler periodically enqueues the update-tips job. A distributed lock
// keeps a fleet of servers from racing on the same tick; the queue's
// uniqueness latch makes a second enqueue a no-op regardless.
type Scheduler struct {
	jobQueue JobQueue
	interval time.Duration
	redsync  *redsync.Redsync
}

func NewScheduler(pool *redis.Pool, jobQueue JobQueue, interval time.Duration) *Scheduler {
	return &Scheduler{
		jobQueue: jobQueue,
		interval: interval,
		redsync:  redsync.New([]redsync.Pool{pool}),
	}
}

// Run schedules update-tips jobs until the context is canceled.
func (s *Scheduler) Run(ctx context.Context) {
	for {
		s.schedule(ctx)

		select {
		case <-time.After(s.interval):
		case <-ctx.Done():
			return
		}
	}
}

func (s *Scheduler) schedule(ctx context.Context) {
	mutex := s.redsync.NewMutex(
		updateTipsLockName,
		redsync.SetExpiry(s.interval),
		redsync.SetTries(1),
	)

	if err := mutex.Lock(); err != nil {
		// Another instance got there first.
		return
	}
	defer mutex.Unlock()

	_, enqueued, err := s.jobQueue.EnqueueUnique(ctx, worker.JobUpdateTips, nil)
	if err != nil {
		log15.Error("Failed to enqueue update-tips job", "error", err)
		return
	}

	if enqueued {
		log15.Debug("Enqueued update-tips job")
	}
}
