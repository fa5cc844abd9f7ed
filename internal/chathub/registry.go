package chathub

import (
	"chatgogo/realtime/internal/localization"
	"context"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"
)

const (
	DefaultIdleTimeout   = 5 * time.Minute
	DefaultSweepInterval = time.Minute

	ReasonIdleTimeout = "idle_timeout"
)

// Notifier is the part of the socket transport the idle sweep needs.
type Notifier interface {
	SendToClient(socketID, event string, v any) bool
	Disconnect(socketID string)
}

type RegistryConfig struct {
	IdleTimeout   time.Duration
	SweepInterval time.Duration
	// Message is sent to the client with session_ended.
	Message string
	// Now is the clock. Defaults to time.Now.
	Now func() time.Time
}

// Registry tracks live sockets and their last inbound activity, and evicts
// the ones that stayed quiet longer than the idle timeout.
type Registry struct {
	cfg      RegistryConfig
	notifier Notifier
	log      *slog.Logger

	conns sync.Map // socketID -> *tracked
	size  atomic.Int64

	mu     sync.Mutex
	cancel context.CancelFunc
	done   chan struct{}
}

type tracked struct {
	userID   string
	lastSeen atomic.Int64 // unix nanos
}

func NewRegistry(cfg RegistryConfig, notifier Notifier, log *slog.Logger) *Registry {
	if cfg.IdleTimeout <= 0 {
		cfg.IdleTimeout = DefaultIdleTimeout
	}
	if cfg.SweepInterval <= 0 {
		cfg.SweepInterval = DefaultSweepInterval
	}
	if cfg.Message == "" {
		cfg.Message = localization.Default().GetString(localization.DefaultLanguage, localization.KeySessionIdleTimeout)
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	if log == nil {
		log = slog.Default()
	}
	return &Registry{
		cfg:      cfg,
		notifier: notifier,
		log:      log.With("component", "registry"),
	}
}

func (r *Registry) Register(socketID, userID string) {
	t := &tracked{userID: userID}
	t.lastSeen.Store(r.cfg.Now().UnixNano())
	if _, loaded := r.conns.Swap(socketID, t); !loaded {
		r.size.Add(1)
	}
}

func (r *Registry) Unregister(socketID string) bool {
	if _, ok := r.conns.LoadAndDelete(socketID); ok {
		r.size.Add(-1)
		return true
	}
	return false
}

// Touch records inbound activity. The timestamp never moves backwards.
func (r *Registry) Touch(socketID string) {
	v, ok := r.conns.Load(socketID)
	if !ok {
		return
	}
	t := v.(*tracked)
	now := r.cfg.Now().UnixNano()
	for {
		prev := t.lastSeen.Load()
		if now <= prev || t.lastSeen.CompareAndSwap(prev, now) {
			return
		}
	}
}

func (r *Registry) LastSeen(socketID string) (time.Time, bool) {
	v, ok := r.conns.Load(socketID)
	if !ok {
		return time.Time{}, false
	}
	return time.Unix(0, v.(*tracked).lastSeen.Load()), true
}

func (r *Registry) Len() int {
	return int(r.size.Load())
}

// Sweep evicts every socket idle for at least the idle timeout as of now
// and returns their ids.
func (r *Registry) Sweep(now time.Time) []string {
	cutoff := now.Add(-r.cfg.IdleTimeout).UnixNano()
	var evicted []string

	r.conns.Range(func(key, value any) bool {
		t := value.(*tracked)
		if t.lastSeen.Load() > cutoff {
			return true
		}
		socketID := key.(string)
		// Повторна реєстрація того ж socketID замінює запис, його не чіпаємо
		if !r.conns.CompareAndDelete(socketID, t) {
			return true
		}
		r.size.Add(-1)
		evicted = append(evicted, socketID)

		r.log.Info("evicting idle connection", "socket_id", socketID, "user_id", t.userID,
			"idle", now.Sub(time.Unix(0, t.lastSeen.Load())))
		if r.notifier != nil {
			r.notifier.SendToClient(socketID, EventSessionEnded, SessionEnded{
				Reason:  ReasonIdleTimeout,
				Message: r.cfg.Message,
			})
			r.notifier.Disconnect(socketID)
		}
		return true
	})
	return evicted
}

// Start runs the sweep on its own ticker until Stop or ctx is done.
func (r *Registry) Start(ctx context.Context) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.cancel != nil {
		return
	}
	ctx, cancel := context.WithCancel(ctx)
	r.cancel = cancel
	r.done = make(chan struct{})

	go func(done chan struct{}) {
		defer close(done)
		ticker := time.NewTicker(r.cfg.SweepInterval)
		defer ticker.Stop()
		r.log.Info("idle sweep started", "interval", r.cfg.SweepInterval, "idle_timeout", r.cfg.IdleTimeout)
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				if evicted := r.Sweep(r.cfg.Now()); len(evicted) > 0 {
					r.log.Info("idle sweep finished", "evicted", len(evicted), "tracked", r.Len())
				}
			}
		}
	}(r.done)
}

// Stop halts the sweep and waits for it to return.
func (r *Registry) Stop() {
	r.mu.Lock()
	cancel, done := r.cancel, r.done
	r.cancel, r.done = nil, nil
	r.mu.Unlock()
	if cancel == nil {
		return
	}
	cancel()
	<-done
}
