package dispatch

import (
	"chatgogo/realtime/internal/models"
	"context"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"
)

// MemoryQueue is a bounded in-process queue drained by a fixed worker pool.
type MemoryQueue struct {
	cfg       QueueConfig
	deliverer Deliverer
	log       *slog.Logger

	items chan *models.ChatEvent
	// gate makes the accepting check and the send one step relative to Shutdown.
	gate      sync.RWMutex
	accepting atomic.Bool
	started   atomic.Bool
	stopped   atomic.Bool
	stop      chan struct{}
	drainCtx  context.Context
	wg        sync.WaitGroup

	counters
}

func NewMemoryQueue(cfg QueueConfig, d Deliverer, log *slog.Logger) *MemoryQueue {
	cfg = cfg.withDefaults()
	q := &MemoryQueue{
		cfg:       cfg,
		deliverer: d,
		log:       logger(log, "memory-queue"),
		items:     make(chan *models.ChatEvent, cfg.Capacity),
		stop:      make(chan struct{}),
	}
	q.accepting.Store(true)
	return q
}

func (q *MemoryQueue) Enqueue(ev *models.ChatEvent) bool {
	if err := ev.Validate(); err != nil {
		q.rejected.Add(1)
		q.log.Warn("dropping invalid event", "error", err)
		return false
	}
	q.gate.RLock()
	defer q.gate.RUnlock()
	if !q.accepting.Load() {
		q.rejected.Add(1)
		return false
	}
	select {
	case q.items <- ev:
		q.enqueued.Add(1)
		return true
	default:
		q.rejected.Add(1)
		q.log.Warn("queue full, event rejected", "event_id", ev.ID, "room_id", ev.RoomID, "capacity", q.cfg.Capacity)
		return false
	}
}

// Len is the current backlog.
func (q *MemoryQueue) Len() int { return len(q.items) }

func (q *MemoryQueue) Start(ctx context.Context) error {
	if !q.started.CompareAndSwap(false, true) {
		return ErrQueueRunning
	}
	if !q.accepting.Load() {
		return ErrQueueClosed
	}
	for i := 0; i < q.cfg.Workers; i++ {
		q.wg.Add(1)
		go q.worker(ctx, i+1)
	}
	q.log.Info("workers started", "workers", q.cfg.Workers, "batch_size", q.cfg.BatchSize, "capacity", q.cfg.Capacity)
	return nil
}

func (q *MemoryQueue) worker(ctx context.Context, id int) {
	defer q.wg.Done()
	log := q.log.With("worker", id)

	for {
		select {
		case <-q.stop:
			q.drain(log)
			return
		case <-ctx.Done():
			return
		default:
		}

		ev, ok := q.pop(ctx)
		if !ok {
			continue
		}

		batch := []*models.ChatEvent{ev}
	fill:
		for len(batch) < q.cfg.BatchSize {
			select {
			case next := <-q.items:
				batch = append(batch, next)
			default:
				break fill
			}
		}
		for _, item := range batch {
			q.deliver(ctx, q.deliverer, item, log)
		}
	}
}

// pop waits up to PollTimeout for an event. It returns false on timeout,
// shutdown or cancellation.
func (q *MemoryQueue) pop(ctx context.Context) (*models.ChatEvent, bool) {
	timer := time.NewTimer(q.cfg.PollTimeout)
	defer timer.Stop()

	select {
	case ev := <-q.items:
		return ev, true
	case <-q.stop:
		return nil, false
	case <-ctx.Done():
		return nil, false
	case <-timer.C:
		return nil, false
	}
}

// drain processes the backlog until it is empty or the grace period ends.
func (q *MemoryQueue) drain(log *slog.Logger) {
	for {
		if q.drainCtx.Err() != nil {
			return
		}
		select {
		case ev := <-q.items:
			q.deliver(q.drainCtx, q.deliverer, ev, log)
		default:
			return
		}
	}
}

func (q *MemoryQueue) Shutdown(ctx context.Context) Stats {
	q.gate.Lock()
	q.accepting.Store(false)
	q.gate.Unlock()
	if !q.stopped.CompareAndSwap(false, true) {
		return q.Stats()
	}
	q.drainCtx = ctx
	close(q.stop)

	done := make(chan struct{})
	go func() {
		q.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
	case <-ctx.Done():
		q.log.Warn("grace period ended before workers finished draining")
	}

	// Залишок черги втрачається
	if left := int64(len(q.items)); left > 0 {
		q.abandoned.Add(left)
	}

	stats := q.Stats()
	q.log.Info("queue stopped",
		"processed", stats.Processed,
		"failed", stats.Failed,
		"rejected", stats.Rejected,
		"abandoned", stats.Abandoned,
	)
	return stats
}

func (q *MemoryQueue) Stats() Stats { return q.snapshot() }
