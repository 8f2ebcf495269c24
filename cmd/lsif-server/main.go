package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/inconshreveable/log15"
	"github.com/prometheus/client_golang/prometheus"
	"golang.org/x/sync/errgroup"

	"github.com/sourcegraph/lsif-server/internal/api"
	"github.com/sourcegraph/lsif-server/internal/bundles"
	"github.com/sourcegraph/lsif-server/internal/db"
	"github.com/sourcegraph/lsif-server/internal/env"
	"github.com/sourcegraph/lsif-server/internal/paths"
	"github.com/sourcegraph/lsif-server/internal/queue"
	"github.com/sourcegraph/lsif-server/internal/redispool"
	"github.com/sourcegraph/lsif-server/internal/server"
	"github.com/sourcegraph/lsif-server/internal/tracer"
)

func main() {
	env.Lock()
	env.HandleHelpFlag()
	tracer.Init()

	var (
		httpPort             = mustParseInt(rawHTTPPort, "HTTP_PORT")
		storageRoot          = mustGet(rawStorageRoot, "LSIF_STORAGE_ROOT")
		postgresDSN          = rawPostgresDSN // empty falls back to lib/pq's PG* variables
		scheduleInterval     = mustParseInterval(rawScheduleInterval, "HEADS_JOB_SCHEDULE_INTERVAL")
		maxJobAttempts       = mustParseInt(rawMaxJobAttempts, "MAX_JOB_ATTEMPTS")
		databaseCacheSize    = mustParseInt(rawDatabaseCacheSize, "CONNECTION_CACHE_CAPACITY")
		documentCacheSize    = mustParseInt(rawDocumentCacheSize, "DOCUMENT_CACHE_CAPACITY")
		resultChunkCacheSize = mustParseInt(rawResultChunkCacheSize, "RESULT_CHUNK_CACHE_CAPACITY")
	)

	if err := paths.PrepareStorageRoot(storageRoot); err != nil {
		log.Fatalf("failed to prepare storage root: %s", err)
	}

	dbStore, err := db.New(postgresDSN)
	if err != nil {
		log.Fatalf("failed to initialize cross-repo index: %s", err)
	}

	// Dumps written before ids were assigned server-side are keyed by
	// repository and commit; rename them once at boot.
	if err := paths.MigrateFilenamesToIDs(context.Background(), storageRoot, dbStore); err != nil {
		log.Fatalf("failed to migrate dump filenames: %s", err)
	}

	jobQueue := queue.NewQueue(redispool.Store, queue.Options{MaxAttempts: maxJobAttempts})
	jobQueue.RegisterMetrics(prometheus.DefaultRegisterer)

	store := bundles.NewStore(storageRoot, databaseCacheSize, documentCacheSize, resultChunkCacheSize)

	serverInst := server.New(server.ServerOpts{
		Port:         httpPort,
		StorageRoot:  storageRoot,
		CodeIntelAPI: api.New(dbStore, store),
		JobQueue:     jobQueue,
	})

	scheduler := server.NewScheduler(redispool.Store, jobQueue, scheduleInterval)

	ctx, cancel := context.WithCancel(context.Background())
	g, ctx := errgroup.WithContext(ctx)
	g.Go(serverInst.Start)
	g.Go(func() error {
		scheduler.Run(ctx)
		return nil
	})

	go func() {
		if err := g.Wait(); err != nil {
			log.Fatal(err)
		}
	}()

	log15.Info("lsif-server: listening", "port", httpPort)
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
