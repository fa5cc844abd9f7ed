package cache

import (
	"chatgogo/realtime/internal/models"
	"context"
	"fmt"
	"slices"

	"github.com/redis/go-redis/v9"
)

// RedisRecentCache stores each window as a list at <prefix>:<roomId>:recent,
// newest at the head.
type RedisRecentCache struct {
	rdb    *redis.Client
	prefix string
	cfg    RecentConfig
	opts   options
}

func NewRedisRecentCache(rdb *redis.Client, prefix string, cfg RecentConfig, opts ...Option) *RedisRecentCache {
	return &RedisRecentCache{
		rdb:    rdb,
		prefix: prefix,
		cfg:    cfg.normalize(),
		opts:   buildOptions("redis-recent-cache", opts),
	}
}

func (c *RedisRecentCache) key(roomID string) string {
	return c.prefix + ":" + roomID + ":recent"
}

func (c *RedisRecentCache) Cache(ctx context.Context, ev *models.ChatEvent) error {
	if err := ev.Validate(); err != nil {
		return err
	}
	payload, err := ev.Encode()
	if err != nil {
		return err
	}

	key := c.key(ev.RoomID)
	pipe := c.rdb.TxPipeline()
	pipe.LPush(ctx, key, payload)
	pipe.LTrim(ctx, key, 0, int64(c.cfg.MaxSize-1))
	pipe.Expire(ctx, key, c.cfg.TTL)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("cache recent message for room %s: %w", ev.RoomID, err)
	}
	return nil
}

func (c *RedisRecentCache) GetRecentMessages(ctx context.Context, roomID string, limit int) (CachedPage, bool) {
	limit = max(limit, 1)
	key := c.key(roomID)

	pipe := c.rdb.Pipeline()
	rangeCmd := pipe.LRange(ctx, key, 0, int64(limit-1))
	lenCmd := pipe.LLen(ctx, key)
	if _, err := pipe.Exec(ctx); err != nil {
		c.opts.log.Warn("failed to read recent messages", "room_id", roomID, "error", err)
		return CachedPage{}, false
	}

	raw := rangeCmd.Val()
	if len(raw) == 0 {
		return CachedPage{}, false
	}

	events := make([]models.ChatEvent, 0, len(raw))
	for _, entry := range raw {
		ev, err := models.DecodeChatEvent([]byte(entry))
		if err != nil {
			c.opts.log.Warn("skipping corrupt cached message", "room_id", roomID, "error", err)
			continue
		}
		events = append(events, *ev)
	}
	if len(events) == 0 {
		return CachedPage{}, false
	}
	slices.Reverse(events)

	return CachedPage{
		Messages: events,
		HasMore:  lenCmd.Val() > int64(len(raw)),
	}, true
}
