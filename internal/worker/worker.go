// Package worker consumes the job queue: it converts uploads into dump
// files and refreshes tip visibility.
package worker

import (
	"context"
	"time"

	"github.com/inconshreveable/log15"
	"github.com/pkg/errors"

	"github.com/sourcegraph/lsif-server/internal/conversion"
	"github.com/sourcegraph/lsif-server/internal/gitserver"
	"github.com/sourcegraph/lsif-server/internal/queue"
)

// Handler processes one job. A returned error fails the job; whether it is
// retried depends on the error's classification.
type Handler func(ctx context.Context, job queue.Job) error

// Options configure a worker.
type Options struct {
	// PollInterval is how long the loop sleeps when the queue is empty.
	PollInterval time.Duration

	// JobTimeout is the wall-clock budget for a single job execution.
	JobTimeout time.Duration
}

// Worker runs the poll loop.
type Worker struct {
	queue     JobQueue
	dbStore   DBStore
	gitserver gitserver.Client
	storage   string
	options   Options
	handlers  map[string]Handler
}

// New creates a worker with the convert and update-tips handlers bound.
func New(jobQueue JobQueue, dbStore DBStore, gitserverClient gitserver.Client, storageRoot string, options Options) *Worker {
	if options.PollInterval <= 0 {
		options.PollInterval = time.Second
	}
	if options.JobTimeout <= 0 {
		options.JobTimeout = 30 * time.Minute
	}

	w := &Worker{
		queue:     jobQueue,
		dbStore:   dbStore,
		gitserver: gitserverClient,
		storage:   storageRoot,
		options:   options,
	}

	w.handlers = map[string]Handler{
		JobConvert:    w.handleConvert,
		JobUpdateTips: w.handleUpdateTips,
	}

	return w
}

// Start polls the queue until the context is canceled.
func (w *Worker) Start(ctx context.Context) error {
	for {
		dequeued, err := w.dequeueAndProcess(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}

			log15.Error("Failed to dequeue job", "error", err)
		}

		if !dequeued {
			select {
			case <-time.After(w.options.PollInterval):
			case <-ctx.Done():
				return ctx.Err()
			}
		}
	}
}

// dequeueAndProcess claims and runs at most one job. Returns whether a job
// was claimed.
func (w *Worker) dequeueAndProcess(ctx context.Context) (bool, error) {
	job, dequeued, err := w.queue.Dequeue(ctx)
	if err != nil || !dequeued {
		return false, err
	}

	w.process(ctx, job)
	return true, nil
}

func (w *Worker) process(ctx context.Context, job queue.Job) {
	handler, ok := w.handlers[job.Name]
	if !ok {
		w.fail(ctx, job, errors.Errorf("unknown job %q", job.Name), false)
		return
	}

	log15.Info("Processing job", "name", job.Name, "id", job.ID, "attempt", job.Attempts)

	jobCtx, cancel := context.WithTimeout(ctx, w.options.JobTimeout)
	defer cancel()

	start := time.Now()
	err := handler(jobCtx, job)
	duration := time.Since(start)

	jobDurationHistogram.WithLabelValues(job.Name).Observe(duration.Seconds())

	if err != nil {
		jobErrorCounter.WithLabelValues(job.Name).Inc()

		// Payload errors cannot succeed on retry; everything else can.
		w.fail(ctx, job, err, !conversion.IsInvalidPayload(err))
		return
	}

	if err := w.queue.MarkComplete(ctx, job); err != nil {
		log15.Error("Failed to mark job complete", "name", job.Name, "id", job.ID, "error", err)
		return
	}

	log15.Info("Processed job", "name", job.Name, "id", job.ID, "duration", duration)
}

func (w *Worker) fail(ctx context.Context, job queue.Job, failure error, retryable bool) {
	retried, err := w.queue.MarkFailed(ctx, job, failure, retryable)
	if err != nil {
		log15.Error("Failed to mark job failed", "name", job.Name, "id", job.ID, "error", err)
		return
	}

	log15.Error("Failed to process job", "name", job.Name, "id", job.ID, "willRetry", retried, "error", failure)
}
