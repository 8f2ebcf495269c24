// Package redispool exports a redis pool for the job queue with its
// endpoint resolved from the environment.
package redispool

import (
	"time"

	"github.com/gomodule/redigo/redis"

	"github.com/sourcegraph/lsif-server/internal/env"
)

var (
	addrStore  = env.Get("REDIS_STORE_ENDPOINT", "", "redis used for the LSIF job queue. Takes precedence over REDIS_ENDPOINT.")
	addrLegacy = env.Get("REDIS_ENDPOINT", "", "redis used for the LSIF job queue when REDIS_STORE_ENDPOINT is unset.")
)

// Store is the pool backing the job queue. It is shared by the server and
// the worker.
var Store = &redis.Pool{
	MaxIdle:     3,
	IdleTimeout: 240 * time.Second,
	Dial: func() (redis.Conn, error) {
		return redis.Dial("tcp", StoreAddr())
	},
	TestOnBorrow: func(c redis.Conn, t time.Time) error {
		_, err := c.Do("PING")
		return err
	},
}

// StoreAddr returns the resolved queue endpoint.
func StoreAddr() string {
	return addrFrom(addrStore, addrLegacy)
}

func addrFrom(store, legacy string) string {
	if store != "" {
		return store
	}
	if legacy != "" {
		return legacy
	}
	return "redis-store:6379"
}
