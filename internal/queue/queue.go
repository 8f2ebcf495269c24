// Package queue is the durable redis-backed job queue joining the upload
// endpoint to the conversion worker. Delivery is at-least-once: a job
// claimed by a worker that dies is redelivered after its processing
// deadline passes.
package queue

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/gomodule/redigo/redis"
	"github.com/google/uuid"
	"github.com/pkg/errors"
)

const (
	jobKeyPrefix    = "lsif:job:"
	uniqueKeyPrefix = "lsif:unique:"
	queuedKey       = "lsif:queued"
	processingKey   = "lsif:processing"
	delayedKey      = "lsif:delayed"
	failedKey       = "lsif:failed"
)

// completedJobTTL keeps finished job hashes around long enough for status
// queries before redis reclaims them.
const completedJobTTL = 24 * time.Hour

// uniqueLatchTTL bounds how long a singleton latch can outlive its job if
// the process dies between latching and terminal completion. An early
// expiry only risks a duplicate of an idempotent singleton.
const uniqueLatchTTL = time.Hour

// promoteBatchSize bounds how many delayed or expired jobs a single dequeue
// promotes back onto the queue.
const promoteBatchSize = 100

// Options configure retry and redelivery behavior.
type Options struct {
	// MaxAttempts is the number of times a job runs before it lands on
	// the failed list.
	MaxAttempts int

	// BackoffBase is the delay before the first retry; each subsequent
	// retry doubles it, capped at BackoffMax.
	BackoffBase time.Duration
	BackoffMax  time.Duration

	// ProcessingTimeout is how long a claimed job may sit unacknowledged
	// before another worker may claim it.
	ProcessingTimeout time.Duration
}

// Queue provides access to the job queue.
type Queue struct {
	pool    *redis.Pool
	options Options
	clock   func() time.Time
}

// NewQueue creates a queue over the given redis pool.
func NewQueue(pool *redis.Pool, options Options) *Queue {
	if options.MaxAttempts < 1 {
		options.MaxAttempts = 1
	}
	if options.BackoffBase <= 0 {
		options.BackoffBase = 10 * time.Second
	}
	if options.BackoffMax <= 0 {
		options.BackoffMax = 10 * time.Minute
	}
	if options.ProcessingTimeout <= 0 {
		options.ProcessingTimeout = time.Hour
	}

	return &Queue{
		pool:    pool,
		options: options,
		clock:   time.Now,
	}
}

// Enqueue adds a new job with the given name and payload to the queue.
func (q *Queue) Enqueue(ctx context.Context, name string, payload interface{}) (Job, error) {
	job, err := q.newJob(name, payload, false)
	if err != nil {
		return Job{}, err
	}

	conn, err := q.conn(ctx)
	if err != nil {
		return Job{}, err
	}
	defer conn.Close()

	if err := q.push(conn, job); err != nil {
		return Job{}, err
	}

	return job, nil
}

// EnqueueUnique adds a job unless another live job with the same name is
// already on the queue. It returns the enqueued job and whether it was
// actually added. Used for scheduled singletons like update-tips.
func (q *Queue) EnqueueUnique(ctx context.Context, name string, payload interface{}) (Job, bool, error) {
	job, err := q.newJob(name, payload, true)
	if err != nil {
		return Job{}, false, err
	}

	conn, err := q.conn(ctx)
	if err != nil {
		return Job{}, false, err
	}
	defer conn.Close()

	if _, err := redis.String(conn.Do("SET", uniqueKeyPrefix+name, job.ID, "NX", "PX", int64(uniqueLatchTTL/time.Millisecond))); err != nil {
		if err == redis.ErrNil {
			// Another live job holds the latch.
			return Job{}, false, nil
		}

		return Job{}, false, errors.Wrap(err, "acquiring singleton latch")
	}

	if err := q.push(conn, job); err != nil {
		// Release the latch so the next schedule can try again instead of
		// waiting out the TTL.
		_, _ = conn.Do("DEL", uniqueKeyPrefix+name)
		return Job{}, false, err
	}

	return job, true, nil
}

// Dequeue claims the next queued job. Before popping it promotes due
// delayed jobs and redelivers jobs whose worker missed its processing
// deadline. Returns false when the queue is empty.
func (q *Queue) Dequeue(ctx context.Context) (Job, bool, error) {
	conn, err := q.conn(ctx)
	if err != nil {
		return Job{}, false, err
	}
	defer conn.Close()

	now := q.clock()

	if err := q.promote(conn, delayedKey, now); err != nil {
		return Job{}, false, errors.Wrap(err, "promoting delayed jobs")
	}
	if err := q.promote(conn, processingKey, now); err != nil {
		return Job{}, false, errors.Wrap(err, "redelivering expired jobs")
	}

	id, err := redis.String(conn.Do("RPOP", queuedKey))
	if err != nil {
		if err == redis.ErrNil {
			return Job{}, false, nil
		}

		return Job{}, false, err
	}

	deadline := now.Add(q.options.ProcessingTimeout)
	if _, err := conn.Do("ZADD", processingKey, deadline.Unix(), id); err != nil {
		return Job{}, false, err
	}

	commands := [][]interface{}{
		{"HINCRBY", jobKeyPrefix + id, "attempts", 1},
		{"HSET", jobKeyPrefix + id, "state", StateProcessing, "processedAt", formatTime(now)},
	}
	for _, command := range commands {
		if _, err := conn.Do(command[0].(string), command[1:]...); err != nil {
			return Job{}, false, err
		}
	}

	values, err := redis.Values(conn.Do("HGETALL", jobKeyPrefix+id))
	if err != nil {
		return Job{}, false, err
	}
	if len(values) == 0 {
		// The hash expired out from under the queue entry.
		return Job{}, false, nil
	}

	job, err := scanJob(values)
	if err != nil {
		return Job{}, false, err
	}

	return job, true, nil
}

// MarkComplete acknowledges a successfully processed job.
func (q *Queue) MarkComplete(ctx context.Context, job Job) error {
	conn, err := q.conn(ctx)
	if err != nil {
		return err
	}
	defer conn.Close()

	commands := [][]interface{}{
		{"ZREM", processingKey, job.ID},
		{"HSET", jobKeyPrefix + job.ID, "state", StateCompleted, "finishedAt", formatTime(q.clock())},
		{"EXPIRE", jobKeyPrefix + job.ID, int(completedJobTTL / time.Second)},
	}
	for _, command := range commands {
		if _, err := conn.Do(command[0].(string), command[1:]...); err != nil {
			return err
		}
	}

	return q.releaseLatch(conn, job)
}

// MarkFailed records a job failure. Retryable failures under the attempt
// budget are rescheduled with exponential backoff; anything else lands on
// the failed list for operator inspection. Returns whether the job will
// run again.
func (q *Queue) MarkFailed(ctx context.Context, job Job, failure error, retryable bool) (bool, error) {
	conn, err := q.conn(ctx)
	if err != nil {
		return false, err
	}
	defer conn.Close()

	if _, err := conn.Do("ZREM", processingKey, job.ID); err != nil {
		return false, err
	}

	if retryable && job.Attempts < job.MaxAttempts {
		readyAt := q.clock().Add(q.backoffDuration(job.Attempts))

		commands := [][]interface{}{
			{"HSET", jobKeyPrefix + job.ID, "state", StateDelayed, "failureMessage", failure.Error()},
			{"ZADD", delayedKey, readyAt.Unix(), job.ID},
		}
		for _, command := range commands {
			if _, err := conn.Do(command[0].(string), command[1:]...); err != nil {
				return false, err
			}
		}

		return true, nil
	}

	commands := [][]interface{}{
		{"HSET", jobKeyPrefix + job.ID,
			"state", StateErrored,
			"failureMessage", failure.Error(),
			"failureStacktrace", fullTrace(failure),
			"finishedAt", formatTime(q.clock()),
		},
		{"LPUSH", failedKey, job.ID},
	}
	for _, command := range commands {
		if _, err := conn.Do(command[0].(string), command[1:]...); err != nil {
			return false, err
		}
	}

	return false, q.releaseLatch(conn, job)
}

// Stats describes the number of jobs in each live state.
type Stats struct {
	Queued     int `json:"queued"`
	Processing int `json:"processing"`
	Delayed    int `json:"delayed"`
	Failed     int `json:"failed"`
}

// Stats counts the jobs in each state.
func (q *Queue) Stats(ctx context.Context) (Stats, error) {
	conn, err := q.conn(ctx)
	if err != nil {
		return Stats{}, err
	}
	defer conn.Close()

	var stats Stats
	for _, c := range []struct {
		command string
		key     string
		target  *int
	}{
		{"LLEN", queuedKey, &stats.Queued},
		{"ZCARD", processingKey, &stats.Processing},
		{"ZCARD", delayedKey, &stats.Delayed},
		{"LLEN", failedKey, &stats.Failed},
	} {
		count, err := redis.Int(conn.Do(c.command, c.key))
		if err != nil {
			return Stats{}, err
		}

		*c.target = count
	}

	return stats, nil
}

// QueuedCount samples the length of the queued list. Exposed as a gauge.
func (q *Queue) QueuedCount() (int, error) {
	conn := q.pool.Get()
	defer conn.Close()

	return redis.Int(conn.Do("LLEN", queuedKey))
}

func (q *Queue) newJob(name string, payload interface{}, unique bool) (Job, error) {
	encoded, err := json.Marshal(payload)
	if err != nil {
		return Job{}, errors.Wrap(err, "encoding job payload")
	}

	return Job{
		ID:          uuid.New().String(),
		Name:        name,
		Payload:     encoded,
		State:       StateQueued,
		MaxAttempts: q.options.MaxAttempts,
		Unique:      unique,
		EnqueuedAt:  q.clock(),
	}, nil
}

func (q *Queue) push(conn redis.Conn, job Job) error {
	if _, err := conn.Do("HMSET", redis.Args{}.Add(jobKeyPrefix + job.ID).AddFlat(job.stored())...); err != nil {
		return errors.Wrap(err, "storing job")
	}

	if _, err := conn.Do("LPUSH", queuedKey, job.ID); err != nil {
		return errors.Wrap(err, "queueing job")
	}

	return nil
}

// promote moves the members of a deadline-scored set whose deadline has
// passed back onto the queued list.
func (q *Queue) promote(conn redis.Conn, key string, now time.Time) error {
	ids, err := redis.Strings(conn.Do("ZRANGEBYSCORE", key, "-inf", now.Unix(), "LIMIT", 0, promoteBatchSize))
	if err != nil {
		return err
	}

	for _, id := range ids {
		removed, err := redis.Int(conn.Do("ZREM", key, id))
		if err != nil {
			return err
		}
		if removed == 0 {
			// Another consumer got there first.
			continue
		}

		commands := [][]interface{}{
			{"HSET", jobKeyPrefix + id, "state", StateQueued},
			{"LPUSH", queuedKey, id},
		}
		for _, command := range commands {
			if _, err := conn.Do(command[0].(string), command[1:]...); err != nil {
				return err
			}
		}
	}

	return nil
}

func (q *Queue) releaseLatch(conn redis.Conn, job Job) error {
	if !job.Unique {
		return nil
	}

	_, err := conn.Do("DEL", uniqueKeyPrefix+job.Name)
	return err
}

func (q *Queue) backoffDuration(attempts int) time.Duration {
	duration := q.options.BackoffBase
	for i := 1; i < attempts; i++ {
		duration *= 2
		if duration >= q.options.BackoffMax {
			return q.options.BackoffMax
		}
	}
	if duration > q.options.BackoffMax {
		return q.options.BackoffMax
	}

	return duration
}

func (q *Queue) conn(ctx context.Context) (redis.Conn, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	conn := q.pool.Get()
	if err := conn.Err(); err != nil {
		defer conn.Close()
		return nil, errors.Wrap(err, "connecting to redis")
	}

	return conn, nil
}

// fullTrace renders the error's stack, if pkg/errors captured one, for the
// failureStacktrace field operators see on failed jobs.
func fullTrace(err error) string {
	type stackTracer interface {
		StackTrace() errors.StackTrace
	}

	if _, ok := err.(stackTracer); ok {
		return fmt.Sprintf("%+v", err)
	}

	return ""
}
