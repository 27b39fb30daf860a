// Package lock serializes work on a single aggregate across goroutines
// and, with Redis, across instances.
package lock

import (
	"context"
	"errors"
	"time"
)

// ErrNotAcquired is returned when the lock could not be taken within the
// wait budget.
var ErrNotAcquired = errors.New("lock not acquired")

// Locker acquires named mutual-exclusion locks. The returned release
// function is safe to call more than once.
type Locker interface {
	Acquire(ctx context.Context, key string) (release func(), err error)
}

// Config holds lock timing.
type Config struct {
	// TTL bounds how long a crashed holder can keep a Redis lock.
	TTL time.Duration `mapstructure:"ttl"`
	// Wait is how long Acquire blocks before giving up.
	Wait time.Duration `mapstructure:"wait"`
	// RetryInterval is the Redis polling interval while waiting.
	RetryInterval time.Duration `mapstructure:"retry_interval"`
	// Prefix namespaces Redis keys.
	Prefix string `mapstructure:"prefix"`
}

// DefaultConfig returns the default lock timing.
func DefaultConfig() Config {
	return Config{
		TTL:           30 * time.Second,
		Wait:          10 * time.Second,
		RetryInterval: 50 * time.Millisecond,
		Prefix:        "checkout:lock:",
	}
}

func (c Config) withDefaults() Config {
	def := DefaultConfig()
	if c.TTL <= 0 {
		c.TTL = def.TTL
	}
	if c.Wait <= 0 {
		c.Wait = def.Wait
	}
	if c.RetryInterval <= 0 {
		c.RetryInterval = def.RetryInterval
	}
	if c.Prefix == "" {
		c.Prefix = def.Prefix
	}
	return c
}
