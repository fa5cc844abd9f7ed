package main

import (
	"chatgogo/realtime/internal/bus"
	"chatgogo/realtime/internal/cache"
	"chatgogo/realtime/internal/chathub"
	"chatgogo/realtime/internal/config"
	"chatgogo/realtime/internal/dispatch"
	"chatgogo/realtime/internal/localization"
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"
)

const janitorInterval = time.Minute

// realtime holds the strategy objects picked from config at startup.
type realtime struct {
	hub          *chathub.ManagerService
	registry     *chathub.Registry
	bus          bus.Bus
	subscriber   *dispatch.Subscriber
	queue        dispatch.Queue
	recent       cache.RecentMessageCache
	participants cache.ParticipantCache
	janitors     []func(ctx context.Context)
}

func buildRealtime(cfg *config.Config, rdb *redis.Client, texts *localization.Localizer, log *slog.Logger) (*realtime, error) {
	rc := cfg.Realtime
	rt := &realtime{hub: chathub.NewManagerService(log)}

	rt.registry = chathub.NewRegistry(chathub.RegistryConfig{
		IdleTimeout:   rc.SocketIdleTimeout,
		SweepInterval: rc.SocketSweepInterval,
		Message:       texts.GetString(cfg.Locale.Language, localization.KeySessionIdleTimeout),
	}, rt.hub, log)

	recentCfg := cache.RecentConfig{MaxSize: rc.RecentCacheSize, TTL: rc.RecentCacheTTL}
	switch rc.CacheStore {
	case config.CacheStoreRedis:
		rt.recent = cache.NewRedisRecentCache(rdb, rc.ChannelPrefix, recentCfg, cache.WithLogger(log))
		rt.participants = cache.NewRedisParticipantCache(rdb, rc.ParticipantCacheTTL, cache.WithLogger(log))
	case config.CacheStoreNone:
		rt.recent = cache.NoopRecentCache{}
		rt.participants = cache.NoopParticipantCache{}
	default:
		recent := cache.NewMemoryRecentCache(recentCfg, cache.WithLogger(log))
		participants := cache.NewMemoryParticipantCache(rc.ParticipantCacheTTL, cache.WithLogger(log))
		rt.recent, rt.participants = recent, participants
		rt.janitors = append(rt.janitors,
			func(ctx context.Context) { recent.RunJanitor(ctx, janitorInterval) },
			func(ctx context.Context) { participants.RunJanitor(ctx, janitorInterval) },
		)
	}

	var broadcaster dispatch.Broadcaster
	switch rc.BroadcastMode {
	case config.BroadcastModeBus:
		b, err := openBus(cfg, rdb, log)
		if err != nil {
			return nil, err
		}
		busBroadcaster := dispatch.NewBusBroadcaster(b, rc.ChannelPrefix, rc.BusSingleChannel, log)
		rt.bus = b
		rt.subscriber = dispatch.NewSubscriber(b, rt.hub, busBroadcaster.Pattern(), log)
		broadcaster = busBroadcaster
	default:
		broadcaster = dispatch.NewDirectBroadcaster(rt.hub, log)
	}

	delivery := dispatch.NewDeliveryService(broadcaster, rt.recent, log)
	queueCfg := dispatch.QueueConfig{
		Capacity:    rc.QueueCapacity,
		Workers:     rc.QueueWorkers,
		BatchSize:   rc.QueueBatchSize,
		PollTimeout: rc.QueuePollTimeout,
	}
	switch rc.QueueMode {
	case config.QueueModeRedis:
		rt.queue = dispatch.NewRedisQueue(rdb, rc.QueueKey, queueCfg, delivery, log)
	case config.QueueModeImmediate:
		rt.queue = dispatch.NewImmediateQueue(delivery, log)
	default:
		rt.queue = dispatch.NewMemoryQueue(queueCfg, delivery, log)
	}

	log.Info("realtime strategies selected",
		"queue", rc.QueueMode,
		"broadcast", rc.BroadcastMode,
		"bus_driver", rc.BusDriver,
		"cache", rc.CacheStore,
	)
	return rt, nil
}

func openBus(cfg *config.Config, rdb *redis.Client, log *slog.Logger) (bus.Bus, error) {
	if cfg.Realtime.BusDriver == config.BusDriverNATS {
		b, err := bus.DialNATS(cfg.NATS.URL, log)
		if err != nil {
			return nil, fmt.Errorf("connect NATS: %w", err)
		}
		return b, nil
	}
	return bus.NewRedisBus(rdb, log), nil
}

// start launches workers, the bus subscriber, the idle sweep and the cache janitors.
func (rt *realtime) start(ctx context.Context) error {
	if err := rt.queue.Start(ctx); err != nil {
		return fmt.Errorf("start dispatch queue: %w", err)
	}
	if rt.subscriber != nil {
		if err := rt.subscriber.Start(ctx); err != nil {
			return fmt.Errorf("start bus subscriber: %w", err)
		}
	}
	rt.registry.Start(ctx)
	for _, run := range rt.janitors {
		go run(ctx)
	}
	return nil
}

// stop drains the queue within grace, then tears down sockets and the bus.
func (rt *realtime) stop(ctx context.Context, grace time.Duration, log *slog.Logger) error {
	rt.registry.Stop()

	drainCtx, cancel := context.WithTimeout(ctx, grace)
	stats := rt.queue.Shutdown(drainCtx)
	cancel()
	log.Info("dispatch queue stopped",
		"enqueued", stats.Enqueued,
		"rejected", stats.Rejected,
		"processed", stats.Processed,
		"failed", stats.Failed,
		"abandoned", stats.Abandoned,
	)

	var firstErr error
	if rt.subscriber != nil {
		received, dropped := rt.subscriber.Counts()
		log.Info("bus subscriber stopped", "received", received, "dropped", dropped)
		if err := rt.subscriber.Close(); err != nil {
			firstErr = err
		}
	}
	rt.hub.CloseAll()
	if rt.bus != nil {
		if err := rt.bus.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}
