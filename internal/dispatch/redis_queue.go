package dispatch

import (
	"chatgogo/realtime/internal/models"
	"context"
	"errors"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/redis/go-redis/v9"
)

const enqueueTimeout = time.Second

// pushBounded pushes ARGV[1] unless the list already holds ARGV[2] entries.
var pushBounded = redis.NewScript(`
if redis.call('LLEN', KEYS[1]) < tonumber(ARGV[2]) then
	redis.call('LPUSH', KEYS[1], ARGV[1])
	return 1
end
return 0
`)

// RedisQueue shares one logical queue between processes through a Redis list.
// Producers LPUSH, workers BRPOP, so every fleet member may process any event.
// Entries still in the list at shutdown stay there for the rest of the fleet.
type RedisQueue struct {
	rdb       *redis.Client
	key       string
	cfg       QueueConfig
	deliverer Deliverer
	log       *slog.Logger

	accepting atomic.Bool
	started   atomic.Bool
	stopped   atomic.Bool
	stop      chan struct{}
	wg        sync.WaitGroup

	counters
}

func NewRedisQueue(rdb *redis.Client, key string, cfg QueueConfig, d Deliverer, log *slog.Logger) *RedisQueue {
	q := &RedisQueue{
		rdb:       rdb,
		key:       key,
		cfg:       cfg.withDefaults(),
		deliverer: d,
		log:       logger(log, "redis-queue").With("key", key),
		stop:      make(chan struct{}),
	}
	q.accepting.Store(true)
	return q
}

func (q *RedisQueue) Enqueue(ev *models.ChatEvent) bool {
	if err := ev.Validate(); err != nil {
		q.rejected.Add(1)
		q.log.Warn("dropping invalid event", "error", err)
		return false
	}
	if !q.accepting.Load() {
		q.rejected.Add(1)
		return false
	}
	payload, err := ev.Encode()
	if err != nil {
		q.rejected.Add(1)
		q.log.Error("failed to encode event", "event_id", ev.ID, "error", err)
		return false
	}

	ctx, cancel := context.WithTimeout(context.Background(), enqueueTimeout)
	defer cancel()
	pushed, err := pushBounded.Run(ctx, q.rdb, []string{q.key}, payload, q.cfg.Capacity).Int()
	if err != nil {
		q.rejected.Add(1)
		q.log.Error("failed to push event", "event_id", ev.ID, "error", err)
		return false
	}
	if pushed == 0 {
		q.rejected.Add(1)
		q.log.Warn("queue full, event rejected", "event_id", ev.ID, "room_id", ev.RoomID, "capacity", q.cfg.Capacity)
		return false
	}
	q.enqueued.Add(1)
	return true
}

func (q *RedisQueue) Start(ctx context.Context) error {
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
	q.log.Info("workers started", "workers", q.cfg.Workers, "batch_size", q.cfg.BatchSize)
	return nil
}

func (q *RedisQueue) stopping(ctx context.Context) bool {
	select {
	case <-q.stop:
		return true
	case <-ctx.Done():
		return true
	default:
		return false
	}
}

func (q *RedisQueue) worker(ctx context.Context, id int) {
	defer q.wg.Done()
	log := q.log.With("worker", id)

	for !q.stopping(ctx) {
		res, err := q.rdb.BRPop(ctx, q.cfg.PollTimeout, q.key).Result()
		if errors.Is(err, redis.Nil) {
			continue
		}
		if err != nil {
			if q.stopping(ctx) {
				return
			}
			log.Warn("failed to pop from queue", "error", err)
			q.backoff(ctx)
			continue
		}

		batch := [][]byte{[]byte(res[1])}
		for len(batch) < q.cfg.BatchSize {
			payload, err := q.rdb.RPop(ctx, q.key).Bytes()
			if err != nil {
				if !errors.Is(err, redis.Nil) {
					log.Warn("failed to drain batch", "error", err)
				}
				break
			}
			batch = append(batch, payload)
		}

		for _, payload := range batch {
			ev, err := models.DecodeChatEvent(payload)
			if err != nil {
				q.failed.Add(1)
				log.Warn("dropping malformed queue entry", "error", err)
				continue
			}
			q.deliver(ctx, q.deliverer, ev, log)
		}
	}
}

func (q *RedisQueue) backoff(ctx context.Context) {
	timer := time.NewTimer(min(q.cfg.PollTimeout, time.Second))
	defer timer.Stop()
	select {
	case <-timer.C:
	case <-q.stop:
	case <-ctx.Done():
	}
}

// Shutdown waits for in-flight batches; a blocked BRPOP returns within PollTimeout.
func (q *RedisQueue) Shutdown(ctx context.Context) Stats {
	q.accepting.Store(false)
	if !q.stopped.CompareAndSwap(false, true) {
		return q.Stats()
	}
	close(q.stop)

	done := make(chan struct{})
	go func() {
		q.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
	case <-ctx.Done():
		q.log.Warn("grace period ended before workers stopped")
	}

	stats := q.Stats()
	backlog, err := q.rdb.LLen(context.Background(), q.key).Result()
	if err != nil {
		backlog = -1
	}
	q.log.Info("queue stopped",
		"processed", stats.Processed,
		"failed", stats.Failed,
		"rejected", stats.Rejected,
		"backlog", backlog,
	)
	return stats
}

func (q *RedisQueue) Stats() Stats { return q.snapshot() }
