package main

import (
	"log"
	"strconv"
	"time"

	"github.com/sourcegraph/lsif-server/internal/env"
)

var (
	rawHTTPPort             = env.Get("HTTP_PORT", "3186", "Port on which the server listens.")
	rawStorageRoot          = env.Get("LSIF_STORAGE_ROOT", "/lsif-storage", "Root dir containing uploads and converted dumps.")
	rawPostgresDSN          = env.Get("POSTGRES_DSN", "", "Connection string of the cross-repo index database.")
	rawScheduleInterval     = env.Get("HEADS_JOB_SCHEDULE_INTERVAL", "30s", "Interval between update-tips job schedules.")
	rawMaxJobAttempts       = env.Get("MAX_JOB_ATTEMPTS", "5", "Number of attempts a job gets before landing on the failed list.")
	rawDatabaseCacheSize    = env.Get("CONNECTION_CACHE_CAPACITY", "100", "Number of SQLite connections that can be opened at once.")
	rawDocumentCacheSize    = env.Get("DOCUMENT_CACHE_CAPACITY", "100", "Maximum number of decoded documents held in memory at once.")
	rawResultChunkCacheSize = env.Get("RESULT_CHUNK_CACHE_CAPACITY", "100", "Maximum number of decoded result chunks held in memory at once.")
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

func mustParseInterval(rawValue, name string) time.Duration {
	d, err := time.ParseDuration(rawValue)
	if err != nil {
		log.Fatalf("invalid duration %q for %s: %s", rawValue, name, err)
	}

	return d
}
