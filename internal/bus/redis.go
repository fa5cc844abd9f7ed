package bus

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/redis/go-redis/v9"
)

// RedisBus publishes with PUBLISH and listens with SUBSCRIBE/PSUBSCRIBE.
// The client is owned by the caller.
type RedisBus struct {
	rdb *redis.Client
	log *slog.Logger
}

func NewRedisBus(rdb *redis.Client, log *slog.Logger) *RedisBus {
	if log == nil {
		log = slog.Default()
	}
	return &RedisBus{rdb: rdb, log: log.With("component", "redis-bus")}
}

func (b *RedisBus) Publish(ctx context.Context, channel string, payload []byte) (int64, error) {
	n, err := b.rdb.Publish(ctx, channel, payload).Result()
	if err != nil {
		return 0, fmt.Errorf("redis publish %s: %w", channel, err)
	}
	return n, nil
}

func (b *RedisBus) Subscribe(ctx context.Context, pattern string, h Handler) (Subscription, error) {
	var ps *redis.PubSub
	if isPattern(pattern) {
		ps = b.rdb.PSubscribe(ctx, pattern)
	} else {
		ps = b.rdb.Subscribe(ctx, pattern)
	}

	// Чекаємо підтвердження підписки, інакше перші повідомлення можуть загубитися
	if _, err := ps.Receive(ctx); err != nil {
		_ = ps.Close()
		return nil, fmt.Errorf("redis subscribe %s: %w", pattern, err)
	}

	ch := ps.Channel()
	go func() {
		for msg := range ch {
			invoke(b.log, h, msg.Channel, []byte(msg.Payload))
		}
	}()

	b.log.Info("subscribed", "pattern", pattern)
	return &redisSubscription{ps: ps}, nil
}

func (b *RedisBus) Close() error { return nil }

type redisSubscription struct {
	ps *redis.PubSub
}

func (s *redisSubscription) Close() error {
	return s.ps.Close()
}
