package main

import (
	"log"
	"strconv"
	"time"

	"github.com/sourcegraph/lsif-server/internal/env"
)

var (
	rawMetricsPort        = env.Get("WORKER_METRICS_PORT", "3187", "Port on which the metrics and debug listener runs.")
	rawStorageRoot        = env.Get("LSIF_STORAGE_ROOT", "/lsif-storage", "Root dir containing uploads and converted dumps.")
	rawPostgresDSN        = env.Get("POSTGRES_DSN", "", "Connection string of the cross-repo index database.")
	rawGitserverURL       = env.Get("GITSERVER_URL", "http://gitserver:3178", "Address of the gitserver exec endpoint.")
	rawPollInterval       = env.Get("WORKER_POLL_INTERVAL", "1s", "How long to sleep when the queue is empty.")
	rawJobTimeout         = env.Get("JOB_TIMEOUT", "30m", "Wall-clock budget for a single job.")
	rawMaxJobAttempts     = env.Get("MAX_JOB_ATTEMPTS", "5", "Number of attempts a job gets before landing on the failed list.")
	rawJanitorInterval    = env.Get("JANITOR_INTERVAL", "10m", "Interval between cleanup runs.")
	rawMaxUploadAge       = env.Get("MAX_UPLOAD_AGE", "24h", "The maximum time an unconverted upload can sit on disk.")
	rawDesiredPercentFree = env.Get("DESIRED_PERCENT_FREE", "10", "Target percentage of free space on disk.")
)

func mustGet(rawValue, name string) string {
	if rawValue == "" {
		log.Fatalf("invalid value %q for %s: no value supplied", rawValue, name)
	}

	return rawValue
}

func mustParseInt(rawValue, name string) int {
	i, err := strconv.ParseInt(rawValue, 10, 64)
	if err != nil {
		log.Fatalf("invalid int %q for %s: %s", rawValue, name, err)
	}

	return int(i)
}

func mustParsePercent(rawValue, name string) int {
	p := mustParseInt(rawValue, name)
	if p < 0 || p > 100 {
		log.Fatalf("invalid percent %q for %s: must be 0 <= p <= 100", rawValue, name)
	}

	return p
}

func mustParseInterval(rawValue, name string) time.Duration {
	d, err := time.ParseDuration(rawValue)
	if err != nil {
		log.Fatalf("invalid duration %q for %s: %s", rawValue, name, err)
	}

	return d
}
