package cache

import (
	"chatgogo/realtime/internal/models"
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"golang.org/x/sync/singleflight"
)

// addIfPresent writes a roster entry only when the roster hash already exists.
var addIfPresent = redis.NewScript(`
if redis.call('EXISTS', KEYS[1]) == 1 then
	redis.call('HSET', KEYS[1], ARGV[1], ARGV[2])
	redis.call('PEXPIRE', KEYS[1], ARGV[3])
	return 1
end
return 0
`)

// RedisParticipantCache stores a roster as HASH room:<id>:participants,
// field = user id, value = JSON participant.
type RedisParticipantCache struct {
	rdb   *redis.Client
	ttl   time.Duration
	loads singleflight.Group
	opts  options
}

func NewRedisParticipantCache(rdb *redis.Client, ttl time.Duration, opts ...Option) *RedisParticipantCache {
	return &RedisParticipantCache{
		rdb:  rdb,
		ttl:  clampTTL(ttl, DefaultParticipantTTL),
		opts: buildOptions("redis-participant-cache", opts),
	}
}

func participantsKey(roomID string) string {
	return "room:" + roomID + ":participants"
}

func (c *RedisParticipantCache) GetParticipants(ctx context.Context, roomID string, load Loader) ([]models.Participant, error) {
	key := participantsKey(roomID)

	fields, err := c.rdb.HGetAll(ctx, key).Result()
	if err != nil {
		c.opts.log.Warn("failed to read participants, falling back to loader", "room_id", roomID, "error", err)
	} else if len(fields) > 0 {
		if err := c.rdb.Expire(ctx, key, c.ttl).Err(); err != nil {
			c.opts.log.Warn("failed to refresh participants ttl", "room_id", roomID, "error", err)
		}
		members := make(map[string]models.Participant, len(fields))
		for userID, raw := range fields {
			var p models.Participant
			if err := json.Unmarshal([]byte(raw), &p); err != nil {
				c.opts.log.Warn("skipping corrupt participant", "room_id", roomID, "user_id", userID, "error", err)
				continue
			}
			members[userID] = p
		}
		if len(members) > 0 {
			return sortedParticipants(members), nil
		}
	}

	v, err, _ := c.loads.Do(roomID, func() (any, error) {
		loaded, err := load(ctx)
		if err != nil {
			return nil, err
		}
		if err := c.replace(ctx, roomID, loaded); err != nil {
			c.opts.log.Warn("failed to populate participants", "room_id", roomID, "error", err)
		}
		return loaded, nil
	})
	if err != nil {
		return nil, err
	}
	return sortedParticipants(toMembers(v.([]models.Participant))), nil
}

func (c *RedisParticipantCache) replace(ctx context.Context, roomID string, loaded []models.Participant) error {
	key := participantsKey(roomID)
	members := toMembers(loaded)
	if len(members) == 0 {
		return c.rdb.Del(ctx, key).Err()
	}

	values := make([]any, 0, len(members)*2)
	for id, p := range members {
		raw, err := json.Marshal(p)
		if err != nil {
			return fmt.Errorf("encode participant %s: %w", id, err)
		}
		values = append(values, id, raw)
	}

	pipe := c.rdb.TxPipeline()
	pipe.Del(ctx, key)
	pipe.HSet(ctx, key, values...)
	pipe.Expire(ctx, key, c.ttl)
	_, err := pipe.Exec(ctx)
	return err
}

func (c *RedisParticipantCache) AddParticipant(ctx context.Context, roomID string, p models.Participant) {
	raw, err := json.Marshal(p)
	if err != nil {
		c.opts.log.Warn("failed to encode participant", "room_id", roomID, "user_id", p.ID, "error", err)
		return
	}
	err = addIfPresent.Run(ctx, c.rdb, []string{participantsKey(roomID)}, p.ID, raw, c.ttl.Milliseconds()).Err()
	if err != nil {
		c.opts.log.Warn("failed to add participant", "room_id", roomID, "user_id", p.ID, "error", err)
	}
}

// RemoveParticipant deletes one entry; Redis drops the hash once it is empty.
func (c *RedisParticipantCache) RemoveParticipant(ctx context.Context, roomID, userID string) {
	key := participantsKey(roomID)
	pipe := c.rdb.TxPipeline()
	pipe.HDel(ctx, key, userID)
	pipe.Expire(ctx, key, c.ttl)
	if _, err := pipe.Exec(ctx); err != nil {
		c.opts.log.Warn("failed to remove participant", "room_id", roomID, "user_id", userID, "error", err)
	}
}

func (c *RedisParticipantCache) Evict(ctx context.Context, roomID string) {
	if err := c.rdb.Del(ctx, participantsKey(roomID)).Err(); err != nil {
		c.opts.log.Warn("failed to evict participants", "room_id", roomID, "error", err)
	}
}
