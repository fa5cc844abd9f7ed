// Package bus is the shared pub/sub substrate that lets server processes
// exchange chat events. No chat logic runs inside it.
package bus

import (
	"context"
	"log/slog"
	"strings"
)

const (
	// DefaultChannelPrefix is prepended to room ids for per-room broadcast.
	DefaultChannelPrefix = "chat:room"
	// MessagesChannel is the single channel used by the single-channel
	// publisher/subscriber pairing.
	MessagesChannel = "chat:messages"
)

// Handler receives every payload published on a matching channel.
type Handler func(channel string, payload []byte)

type Subscription interface {
	Close() error
}

type Bus interface {
	// Publish returns the number of receivers when the driver knows it, -1 otherwise.
	Publish(ctx context.Context, channel string, payload []byte) (int64, error)
	// Subscribe accepts an exact channel name or a pattern ending in "*".
	Subscribe(ctx context.Context, pattern string, h Handler) (Subscription, error)
	Close() error
}

// RoomChannel returns the broadcast channel of a room.
func RoomChannel(prefix, roomID string) string {
	return prefix + ":" + roomID
}

// RoomPattern matches every room channel under prefix.
func RoomPattern(prefix string) string {
	return prefix + ":*"
}

func isPattern(channel string) bool {
	return strings.ContainsAny(channel, "*?[")
}

// invoke runs h and keeps a panicking handler from killing the receive loop.
func invoke(log *slog.Logger, h Handler, channel string, payload []byte) {
	defer func() {
		if r := recover(); r != nil {
			log.Error("bus handler panicked", "channel", channel, "panic", r)
		}
	}()
	h(channel, payload)
}
