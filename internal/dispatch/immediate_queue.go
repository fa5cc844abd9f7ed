package dispatch

import (
	"chatgogo/realtime/internal/models"
	"context"
	"log/slog"
	"sync/atomic"
)

// ImmediateQueue delivers on the caller's goroutine. It suits a single
// process with light traffic and keeps the Queue contract: it never panics
// and reports false only for invalid events or after shutdown.
type ImmediateQueue struct {
	deliverer Deliverer
	log       *slog.Logger
	closed    atomic.Bool
	counters
}

func NewImmediateQueue(d Deliverer, log *slog.Logger) *ImmediateQueue {
	return &ImmediateQueue{deliverer: d, log: logger(log, "immediate-queue")}
}

func (q *ImmediateQueue) Enqueue(ev *models.ChatEvent) bool {
	if err := ev.Validate(); err != nil || q.closed.Load() {
		q.rejected.Add(1)
		return false
	}
	q.enqueued.Add(1)
	q.deliver(context.Background(), q.deliverer, ev, q.log)
	return true
}

func (q *ImmediateQueue) Start(context.Context) error { return nil }

func (q *ImmediateQueue) Shutdown(context.Context) Stats {
	q.closed.Store(true)
	return q.Stats()
}

func (q *ImmediateQueue) Stats() Stats { return q.snapshot() }
