// Package dispatch moves chat events from the handlers that produce them to
// every socket that should see them: a bounded queue, the per-event delivery
// unit, and the broadcast strategies.
package dispatch

import (
	"chatgogo/realtime/internal/models"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync/atomic"
	"time"
)

var (
	ErrQueueClosed  = errors.New("dispatch queue is closed")
	ErrQueueRunning = errors.New("dispatch queue is already running")
)

// Queue accepts events from any goroutine and hands them to Deliverer workers.
//
// Enqueue never blocks: a full or stopped queue rejects the event and counts
// it. No global order is promised. Each worker processes events in the order
// it popped them, so with a single worker the in-memory queue is FIFO.
type Queue interface {
	Enqueue(ev *models.ChatEvent) bool
	Start(ctx context.Context) error
	// Shutdown stops accepting work and drains until ctx is done.
	Shutdown(ctx context.Context) Stats
	Stats() Stats
}

// Deliverer is the unit of work run for every dequeued event.
type Deliverer interface {
	Deliver(ctx context.Context, ev *models.ChatEvent) error
}

type QueueConfig struct {
	Capacity    int
	Workers     int
	BatchSize   int
	PollTimeout time.Duration
}

func (c QueueConfig) withDefaults() QueueConfig {
	if c.Capacity <= 0 {
		c.Capacity = 10000
	}
	if c.Workers <= 0 {
		c.Workers = 1
	}
	if c.BatchSize <= 0 {
		c.BatchSize = 1
	}
	if c.PollTimeout <= 0 {
		c.PollTimeout = 2 * time.Second
	}
	return c
}

type Stats struct {
	Enqueued  int64 `json:"enqueued"`
	Rejected  int64 `json:"rejected"`
	Processed int64 `json:"processed"`
	Failed    int64 `json:"failed"`
	Abandoned int64 `json:"abandoned"`
}

type counters struct {
	enqueued  atomic.Int64
	rejected  atomic.Int64
	processed atomic.Int64
	failed    atomic.Int64
	abandoned atomic.Int64
}

func (c *counters) snapshot() Stats {
	return Stats{
		Enqueued:  c.enqueued.Load(),
		Rejected:  c.rejected.Load(),
		Processed: c.processed.Load(),
		Failed:    c.failed.Load(),
		Abandoned: c.abandoned.Load(),
	}
}

// deliver runs one event through d and records the outcome. A panicking
// deliverer counts as a failure and does not take the worker down.
func (c *counters) deliver(ctx context.Context, d Deliverer, ev *models.ChatEvent, log *slog.Logger) {
	var err error
	func() {
		defer func() {
			if r := recover(); r != nil {
				err = fmt.Errorf("delivery panicked: %v", r)
			}
		}()
		err = d.Deliver(ctx, ev)
	}()

	if err != nil {
		c.failed.Add(1)
		log.Warn("delivery failed", "event_id", ev.ID, "room_id", ev.RoomID, "error", err)
		return
	}
	c.processed.Add(1)
}

func logger(log *slog.Logger, component string) *slog.Logger {
	if log == nil {
		log = slog.Default()
	}
	return log.With("component", component)
}
