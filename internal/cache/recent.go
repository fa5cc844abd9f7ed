package cache

import (
	"chatgogo/realtime/internal/models"
	"context"
	"sync"
	"time"
)

// CachedPage is a tail of a room, oldest first.
type CachedPage struct {
	Messages []models.ChatEvent `json:"messages"`
	HasMore  bool               `json:"hasMore"`
}

// RecentMessageCache keeps the last N events of every room for a bounded time.
// The TTL is refreshed on write only, so a window that is read but never
// written still expires.
type RecentMessageCache interface {
	Cache(ctx context.Context, ev *models.ChatEvent) error
	// GetRecentMessages returns false when the room has no live window.
	GetRecentMessages(ctx context.Context, roomID string, limit int) (CachedPage, bool)
}

type RecentConfig struct {
	MaxSize int
	TTL     time.Duration
}

func (c RecentConfig) normalize() RecentConfig {
	if c.MaxSize <= 0 {
		c.MaxSize = DefaultRecentSize
	}
	c.TTL = clampTTL(c.TTL, DefaultRecentTTL)
	return c
}

// MemoryRecentCache keeps one window per room; each window has its own lock.
type MemoryRecentCache struct {
	cfg     RecentConfig
	windows sync.Map // roomID -> *window
	opts    options
}

type window struct {
	mu        sync.Mutex
	events    []models.ChatEvent
	expiresAt time.Time
	// dead is set once the janitor has unlinked the window from the map.
	dead bool
}

func NewMemoryRecentCache(cfg RecentConfig, opts ...Option) *MemoryRecentCache {
	return &MemoryRecentCache{
		cfg:  cfg.normalize(),
		opts: buildOptions("recent-cache", opts),
	}
}

func (c *MemoryRecentCache) Cache(_ context.Context, ev *models.ChatEvent) error {
	if err := ev.Validate(); err != nil {
		return err
	}
	for {
		v, _ := c.windows.LoadOrStore(ev.RoomID, &window{})
		w := v.(*window)

		w.mu.Lock()
		if w.dead {
			w.mu.Unlock()
			continue
		}
		now := c.opts.now()
		if !w.expiresAt.IsZero() && !now.Before(w.expiresAt) {
			w.events = nil
		}
		w.events = append(w.events, *ev)
		if over := len(w.events) - c.cfg.MaxSize; over > 0 {
			w.events = append(w.events[:0:0], w.events[over:]...)
		}
		w.expiresAt = now.Add(c.cfg.TTL)
		w.mu.Unlock()
		return nil
	}
}

func (c *MemoryRecentCache) GetRecentMessages(_ context.Context, roomID string, limit int) (CachedPage, bool) {
	v, ok := c.windows.Load(roomID)
	if !ok {
		return CachedPage{}, false
	}
	w := v.(*window)
	limit = max(limit, 1)

	w.mu.Lock()
	defer w.mu.Unlock()
	if w.dead || len(w.events) == 0 || !c.opts.now().Before(w.expiresAt) {
		return CachedPage{}, false
	}

	start := max(len(w.events)-limit, 0)
	page := CachedPage{
		Messages: make([]models.ChatEvent, len(w.events)-start),
		HasMore:  len(w.events) > limit,
	}
	copy(page.Messages, w.events[start:])
	return page, true
}

// Purge drops expired windows and returns how many were removed.
func (c *MemoryRecentCache) Purge() int {
	now := c.opts.now()
	removed := 0
	c.windows.Range(func(key, value any) bool {
		w := value.(*window)
		w.mu.Lock()
		if !now.Before(w.expiresAt) {
			w.dead = true
			c.windows.CompareAndDelete(key, w)
			removed++
		}
		w.mu.Unlock()
		return true
	})
	return removed
}

// RunJanitor purges expired windows every interval until ctx is done.
func (c *MemoryRecentCache) RunJanitor(ctx context.Context, interval time.Duration) {
	runJanitor(ctx, interval, c.Purge, c.opts)
}

// NoopRecentCache never holds anything; every read is a miss.
type NoopRecentCache struct{}

func (NoopRecentCache) Cache(context.Context, *models.ChatEvent) error { return nil }

func (NoopRecentCache) GetRecentMessages(context.Context, string, int) (CachedPage, bool) {
	return CachedPage{}, false
}

func runJanitor(ctx context.Context, interval time.Duration, purge func() int, o options) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if n := purge(); n > 0 {
				o.log.Debug("purged expired rooms", "count", n)
			}
		}
	}
}
