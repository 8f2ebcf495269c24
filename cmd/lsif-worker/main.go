package main

import (
	"context"
	"log"
	"net"
	"os"
	"os/signal"
	"syscall"

	"github.com/inconshreveable/log15"
	"golang.org/x/sync/errgroup"

	"github.com/sourcegraph/lsif-server/internal/db"
	"github.com/sourcegraph/lsif-server/internal/debugserver"
	"github.com/sourcegraph/lsif-server/internal/env"
	"github.com/sourcegraph/lsif-server/internal/gitserver"
	"github.com/sourcegraph/lsif-server/internal/janitor"
	"github.com/sourcegraph/lsif-server/internal/paths"
	"github.com/sourcegraph/lsif-server/internal/queue"
	"github.com/sourcegraph/lsif-server/internal/redispool"
	"github.com/sourcegraph/lsif-server/internal/tracer"
	"github.com/sourcegraph/lsif-server/internal/worker"
)

func main() {
	env.Lock()
	env.HandleHelpFlag()
	tracer.Init()

	var (
		metricsPort        = mustGet(rawMetricsPort, "WORKER_METRICS_PORT")
		storageRoot        = mustGet(rawStorageRoot, "LSIF_STORAGE_ROOT")
		postgresDSN        = rawPostgresDSN // empty falls back to lib/pq's PG* variables
		gitserverURL       = mustGet(rawGitserverURL, "GITSERVER_URL")
		pollInterval       = mustParseInterval(rawPollInterval, "WORKER_POLL_INTERVAL")
		jobTimeout         = mustParseInterval(rawJobTimeout, "JOB_TIMEOUT")
		maxJobAttempts     = mustParseInt(rawMaxJobAttempts, "MAX_JOB_ATTEMPTS")
		janitorInterval    = mustParseInterval(rawJanitorInterval, "JANITOR_INTERVAL")
		maxUploadAge       = mustParseInterval(rawMaxUploadAge, "MAX_UPLOAD_AGE")
		desiredPercentFree = mustParsePercent(rawDesiredPercentFree, "DESIRED_PERCENT_FREE")
	)

	if err := paths.PrepareStorageRoot(storageRoot); err != nil {
		log.Fatalf("failed to prepare storage root: %s", err)
	}

	dbStore, err := db.New(postgresDSN)
	if err != nil {
		log.Fatalf("failed to initialize cross-repo index: %s", err)
	}

	jobQueue := queue.NewQueue(redispool.Store, queue.Options{
		MaxAttempts: maxJobAttempts,
		// A dead worker's claim expires well after a live one would have
		// finished or failed the job.
		ProcessingTimeout: 2 * jobTimeout,
	})

	workerInst := worker.New(jobQueue, dbStore, gitserver.NewClient(gitserverURL), storageRoot, worker.Options{
		PollInterval: pollInterval,
		JobTimeout:   jobTimeout,
	})

	janitorInst := janitor.New(dbStore, storageRoot, janitor.Options{
		Interval:           janitorInterval,
		MaxUploadAge:       maxUploadAge,
		DesiredPercentFree: desiredPercentFree,
	})

	ctx, cancel := context.WithCancel(context.Background())
	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return workerInst.Start(ctx)
	})
	g.Go(func() error {
		janitorInst.Run(ctx)
		return nil
	})
	g.Go(func() error {
		return debugserver.Start(net.JoinHostPort("", metricsPort))
	})

	go func() {
		if err := g.Wait(); err != nil && err != context.Canceled {
			log.Fatal(err)
		}
	}()

	log15.Info("lsif-worker: processing jobs", "metricsPort", metricsPort)
	waitForSignal(cancel)
}

// waitForSignal blocks until a shutdown signal arrives, cancels background
// work, and lets main return. A second signal exits immediately.
func waitForSignal(cancel context.CancelFunc) {
	signals := make(chan os.Signal, 2)
	signal.Notify(signals, syscall.SIGINT, syscall.SIGHUP)

	<-signals
	go func() {
		<-signals
		os.Exit(0)
	}()

	cancel()
}
