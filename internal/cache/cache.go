// Package cache holds the short-lived per-room caches of the realtime core:
// the recent message window and the participant roster. Both are shadows of
// the durable store and are never authoritative.
package cache

import (
	"log/slog"
	"time"
)

const (
	DefaultRecentSize     = 100
	DefaultRecentTTL      = 10 * time.Minute
	DefaultParticipantTTL = 5 * time.Minute
	MinTTL                = time.Minute
)

type options struct {
	now func() time.Time
	log *slog.Logger
}

// Option configures an in-memory or Redis cache.
type Option func(*options)

// WithClock replaces time.Now, used by tests to move time deterministically.
func WithClock(now func() time.Time) Option {
	return func(o *options) { o.now = now }
}

func WithLogger(log *slog.Logger) Option {
	return func(o *options) { o.log = log }
}

func buildOptions(component string, opts []Option) options {
	o := options{now: time.Now, log: slog.Default()}
	for _, opt := range opts {
		opt(&o)
	}
	o.log = o.log.With("component", component)
	return o
}

func clampTTL(ttl, fallback time.Duration) time.Duration {
	if ttl <= 0 {
		return fallback
	}
	return max(ttl, MinTTL)
}
