package dispatch

import (
	"chatgogo/realtime/internal/bus"
	"chatgogo/realtime/internal/models"
	"context"
	"fmt"
	"log/slog"
)

// EventMessage is the socket event carrying a ChatEvent to clients.
const EventMessage = "message"

// RoomSender is the local socket transport: it emits to every socket in a
// room on this process and returns how many sockets were addressed.
type RoomSender interface {
	SendToRoom(roomID, event string, v any) int
}

type Broadcaster interface {
	Broadcast(ctx context.Context, ev *models.ChatEvent) error
}

// DirectBroadcaster reaches only sockets hosted by this process.
type DirectBroadcaster struct {
	sender RoomSender
	log    *slog.Logger
}

func NewDirectBroadcaster(sender RoomSender, log *slog.Logger) *DirectBroadcaster {
	return &DirectBroadcaster{sender: sender, log: logger(log, "direct-broadcast")}
}

func (b *DirectBroadcaster) Broadcast(_ context.Context, ev *models.ChatEvent) error {
	n := b.sender.SendToRoom(ev.RoomID, EventMessage, ev)
	b.log.Debug("broadcast to room", "room_id", ev.RoomID, "event_id", ev.ID, "sockets", n)
	return nil
}

// BusBroadcaster publishes events on the shared bus. Every process, the
// publisher included, receives them through its Subscriber.
type BusBroadcaster struct {
	bus    bus.Bus
	prefix string
	single bool
	log    *slog.Logger
}

// NewBusBroadcaster publishes to <prefix>:<roomId>, or to the single
// messages channel when single is true.
func NewBusBroadcaster(b bus.Bus, prefix string, single bool, log *slog.Logger) *BusBroadcaster {
	if prefix == "" {
		prefix = bus.DefaultChannelPrefix
	}
	return &BusBroadcaster{bus: b, prefix: prefix, single: single, log: logger(log, "bus-broadcast")}
}

func (b *BusBroadcaster) channel(roomID string) string {
	if b.single {
		return bus.MessagesChannel
	}
	return bus.RoomChannel(b.prefix, roomID)
}

// Broadcast drops the event on encode or publish failure; neither is retried.
func (b *BusBroadcaster) Broadcast(ctx context.Context, ev *models.ChatEvent) error {
	payload, err := ev.Encode()
	if err != nil {
		b.log.Error("dropping event that cannot be encoded", "event_id", ev.ID, "room_id", ev.RoomID, "error", err)
		return err
	}

	channel := b.channel(ev.RoomID)
	receivers, err := b.bus.Publish(ctx, channel, payload)
	if err != nil {
		b.log.Warn("publish failed, event dropped", "channel", channel, "event_id", ev.ID, "error", err)
		return fmt.Errorf("publish event %s: %w", ev.ID, err)
	}
	b.log.Debug("published", "channel", channel, "event_id", ev.ID, "receivers", receivers)
	return nil
}

// Pattern is what the matching Subscriber must listen on.
func (b *BusBroadcaster) Pattern() string {
	if b.single {
		return bus.MessagesChannel
	}
	return bus.RoomPattern(b.prefix)
}
