package dispatch

import (
	"chatgogo/realtime/internal/bus"
	"chatgogo/realtime/internal/models"
	"context"
	"log/slog"
	"sync"
	"sync/atomic"
)

// Subscriber is the receiving half of BusBroadcaster: it decodes what any
// process published and performs the direct send on local sockets.
type Subscriber struct {
	bus     bus.Bus
	sender  RoomSender
	pattern string
	log     *slog.Logger

	mu  sync.Mutex
	sub bus.Subscription

	received atomic.Int64
	dropped  atomic.Int64
}

func NewSubscriber(b bus.Bus, sender RoomSender, pattern string, log *slog.Logger) *Subscriber {
	return &Subscriber{bus: b, sender: sender, pattern: pattern, log: logger(log, "bus-subscriber")}
}

func (s *Subscriber) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.sub != nil {
		return nil
	}
	sub, err := s.bus.Subscribe(ctx, s.pattern, s.handle)
	if err != nil {
		return err
	}
	s.sub = sub
	return nil
}

func (s *Subscriber) handle(channel string, payload []byte) {
	ev, err := models.DecodeChatEvent(payload)
	if err != nil {
		s.dropped.Add(1)
		s.log.Warn("dropping malformed bus payload", "channel", channel, "error", err)
		return
	}
	s.received.Add(1)
	s.sender.SendToRoom(ev.RoomID, EventMessage, ev)
}

// Counts returns how many payloads were delivered locally and how many were dropped.
func (s *Subscriber) Counts() (received, dropped int64) {
	return s.received.Load(), s.dropped.Load()
}

func (s *Subscriber) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.sub == nil {
		return nil
	}
	err := s.sub.Close()
	s.sub = nil
	return err
}
