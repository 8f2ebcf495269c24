package queue

import (
	"encoding/json"
	"time"

	"github.com/gomodule/redigo/redis"
)

// Job states as stored in redis.
const (
	StateQueued     = "queued"
	StateProcessing = "processing"
	StateDelayed    = "delayed"
	StateCompleted  = "completed"
	StateErrored    = "errored"
)

// Job is one unit of work on the queue. Payload carries the job arguments
// as JSON; handlers unmarshal it into their own argument struct.
type Job struct {
	ID                string
	Name              string
	Payload           json.RawMessage
	State             string
	Attempts          int
	MaxAttempts       int
	Unique            bool
	EnqueuedAt        time.Time
	ProcessedAt       time.Time
	FinishedAt        time.Time
	FailureMessage    string
	FailureStacktrace string
}

// storedJob is the redis hash representation of a job. Times are RFC3339
// strings; the zero time is stored as the empty string.
type storedJob struct {
	ID                string `redis:"id"`
	Name              string `redis:"name"`
	Payload           string `redis:"payload"`
	State             string `redis:"state"`
	Attempts          int    `redis:"attempts"`
	MaxAttempts       int    `redis:"maxAttempts"`
	Unique            bool   `redis:"unique"`
	EnqueuedAt        string `redis:"enqueuedAt"`
	ProcessedAt       string `redis:"processedAt"`
	FinishedAt        string `redis:"finishedAt"`
	FailureMessage    string `redis:"failureMessage"`
	FailureStacktrace string `redis:"failureStacktrace"`
}

func (j Job) stored() *storedJob {
	return &storedJob{
		ID:                j.ID,
		Name:              j.Name,
		Payload:           string(j.Payload),
		State:             j.State,
		Attempts:          j.Attempts,
		MaxAttempts:       j.MaxAttempts,
		Unique:            j.Unique,
		EnqueuedAt:        formatTime(j.EnqueuedAt),
		ProcessedAt:       formatTime(j.ProcessedAt),
		FinishedAt:        formatTime(j.FinishedAt),
		FailureMessage:    j.FailureMessage,
		FailureStacktrace: j.FailureStacktrace,
	}
}

func (s *storedJob) job() Job {
	return Job{
		ID:                s.ID,
		Name:              s.Name,
		Payload:           json.RawMessage(s.Payload),
		State:             s.State,
		Attempts:          s.Attempts,
		MaxAttempts:       s.MaxAttempts,
		Unique:            s.Unique,
		EnqueuedAt:        parseTime(s.EnqueuedAt),
		ProcessedAt:       parseTime(s.ProcessedAt),
		FinishedAt:        parseTime(s.FinishedAt),
		FailureMessage:    s.FailureMessage,
		FailureStacktrace: s.FailureStacktrace,
	}
}

func scanJob(values []interface{}) (Job, error) {
	var stored storedJob
	if err := redis.ScanStruct(values, &stored); err != nil {
		return Job{}, err
	}

	return stored.job(), nil
}

func formatTime(t time.Time) string {
	if t.IsZero() {
		return ""
	}

	return t.UTC().Format(time.RFC3339Nano)
}

func parseTime(s string) time.Time {
	if s == "" {
		return time.Time{}
	}

	t, err := time.Parse(time.RFC3339Nano, s)
	if err != nil {
		return time.Time{}
	}

	return t
}
