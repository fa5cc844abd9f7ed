package cache

import (
	"chatgogo/realtime/internal/models"
	"context"
	"slices"
	"strings"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"
)

// Loader fetches the authoritative roster of a room from the durable store.
type Loader func(ctx context.Context) ([]models.Participant, error)

// ParticipantCache is a read-through shadow of room membership.
type ParticipantCache interface {
	// GetParticipants returns the cached roster, or calls load on a miss and
	// caches its result. An empty result evicts the room.
	GetParticipants(ctx context.Context, roomID string, load Loader) ([]models.Participant, error)
	AddParticipant(ctx context.Context, roomID string, p models.Participant)
	RemoveParticipant(ctx context.Context, roomID, userID string)
	Evict(ctx context.Context, roomID string)
}

// MemoryParticipantCache keeps one roster per room, each with its own lock.
type MemoryParticipantCache struct {
	ttl   time.Duration
	rooms sync.Map // roomID -> *roster
	loads singleflight.Group
	opts  options
}

type roster struct {
	mu        sync.Mutex
	members   map[string]models.Participant
	expiresAt time.Time
	dead      bool
}

func NewMemoryParticipantCache(ttl time.Duration, opts ...Option) *MemoryParticipantCache {
	return &MemoryParticipantCache{
		ttl:  clampTTL(ttl, DefaultParticipantTTL),
		opts: buildOptions("participant-cache", opts),
	}
}

// live returns the roster if it exists and has not expired. Callers must hold r.mu.
func (c *MemoryParticipantCache) live(r *roster, now time.Time) bool {
	return !r.dead && len(r.members) > 0 && now.Before(r.expiresAt)
}

func (c *MemoryParticipantCache) GetParticipants(ctx context.Context, roomID string, load Loader) ([]models.Participant, error) {
	if v, ok := c.rooms.Load(roomID); ok {
		r := v.(*roster)
		r.mu.Lock()
		now := c.opts.now()
		if c.live(r, now) {
			r.expiresAt = now.Add(c.ttl)
			out := sortedParticipants(r.members)
			r.mu.Unlock()
			return out, nil
		}
		r.mu.Unlock()
	}

	v, err, _ := c.loads.Do(roomID, func() (any, error) {
		loaded, err := load(ctx)
		if err != nil {
			return nil, err
		}
		c.replace(roomID, loaded)
		return loaded, nil
	})
	if err != nil {
		return nil, err
	}
	return sortedParticipants(toMembers(v.([]models.Participant))), nil
}

// replace swaps the whole roster; an empty list evicts the room.
func (c *MemoryParticipantCache) replace(roomID string, loaded []models.Participant) {
	if len(loaded) == 0 {
		c.Evict(context.Background(), roomID)
		return
	}
	fresh := &roster{members: toMembers(loaded), expiresAt: c.opts.now().Add(c.ttl)}
	if old, existed := c.rooms.Swap(roomID, fresh); existed {
		r := old.(*roster)
		r.mu.Lock()
		r.dead = true
		r.mu.Unlock()
	}
}

// AddParticipant only updates a live roster. A cold room is left for the next
// read to load in full, so a partial roster is never mistaken for the whole.
func (c *MemoryParticipantCache) AddParticipant(_ context.Context, roomID string, p models.Participant) {
	v, ok := c.rooms.Load(roomID)
	if !ok {
		return
	}
	r := v.(*roster)
	r.mu.Lock()
	defer r.mu.Unlock()
	now := c.opts.now()
	if !c.live(r, now) {
		return
	}
	r.members[p.ID] = p
	r.expiresAt = now.Add(c.ttl)
}

func (c *MemoryParticipantCache) RemoveParticipant(_ context.Context, roomID, userID string) {
	v, ok := c.rooms.Load(roomID)
	if !ok {
		return
	}
	r := v.(*roster)
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.dead {
		return
	}
	now := c.opts.now()
	// Прострочений список міг пропустити входи, тож його не оживляємо
	if !c.live(r, now) {
		r.dead = true
		c.rooms.CompareAndDelete(roomID, r)
		return
	}
	delete(r.members, userID)
	if len(r.members) == 0 {
		r.dead = true
		c.rooms.CompareAndDelete(roomID, r)
		return
	}
	r.expiresAt = now.Add(c.ttl)
}

func (c *MemoryParticipantCache) Evict(_ context.Context, roomID string) {
	if v, ok := c.rooms.LoadAndDelete(roomID); ok {
		r := v.(*roster)
		r.mu.Lock()
		r.dead = true
		r.mu.Unlock()
	}
}

// Purge drops expired rosters and returns how many were removed.
func (c *MemoryParticipantCache) Purge() int {
	now := c.opts.now()
	removed := 0
	c.rooms.Range(func(key, value any) bool {
		r := value.(*roster)
		r.mu.Lock()
		if !c.live(r, now) {
			r.dead = true
			c.rooms.CompareAndDelete(key, r)
			removed++
		}
		r.mu.Unlock()
		return true
	})
	return removed
}

func (c *MemoryParticipantCache) RunJanitor(ctx context.Context, interval time.Duration) {
	runJanitor(ctx, interval, c.Purge, c.opts)
}

// NoopParticipantCache always asks the loader.
type NoopParticipantCache struct{}

func (NoopParticipantCache) GetParticipants(ctx context.Context, _ string, load Loader) ([]models.Participant, error) {
	loaded, err := load(ctx)
	if err != nil {
		return nil, err
	}
	return sortedParticipants(toMembers(loaded)), nil
}

func (NoopParticipantCache) AddParticipant(context.Context, string, models.Participant) {}
func (NoopParticipantCache) RemoveParticipant(context.Context, string, string) {}
func (NoopParticipantCache) Evict(context.Context, string) {}

func toMembers(list []models.Participant) map[string]models.Participant {
	members := make(map[string]models.Participant, len(list))
	for _, p := range list {
		if p.ID == "" {
			continue
		}
		members[p.ID] = p
	}
	return members
}

func sortedParticipants(members map[string]models.Participant) []models.Participant {
	out := make([]models.Participant, 0, len(members))
	for _, p := range members {
		out = append(out, p)
	}
	slices.SortFunc(out, func(a, b models.Participant) int {
		return strings.Compare(a.ID, b.ID)
	})
	return out
}
