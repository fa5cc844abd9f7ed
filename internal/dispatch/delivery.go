package dispatch

import (
	"chatgogo/realtime/internal/cache"
	"chatgogo/realtime/internal/models"
	"context"
	"log/slog"
)

// DeliveryService is the per-event unit of work: cache, then broadcast.
// Caching first means a client that reconnects while the broadcast is in
// flight still finds the event in the recent window.
type DeliveryService struct {
	broadcaster Broadcaster
	recent      cache.RecentMessageCache
	log         *slog.Logger
}

func NewDeliveryService(b Broadcaster, recent cache.RecentMessageCache, log *slog.Logger) *DeliveryService {
	if recent == nil {
		recent = cache.NoopRecentCache{}
	}
	return &DeliveryService{broadcaster: b, recent: recent, log: logger(log, "delivery")}
}

func (s *DeliveryService) Deliver(ctx context.Context, ev *models.ChatEvent) error {
	if err := ev.Validate(); err != nil {
		s.log.Warn("ignoring event without room", "error", err)
		return err
	}
	if err := s.recent.Cache(ctx, ev); err != nil {
		s.log.Warn("failed to cache recent message", "event_id", ev.ID, "room_id", ev.RoomID, "error", err)
	}
	return s.broadcaster.Broadcast(ctx, ev)
}
