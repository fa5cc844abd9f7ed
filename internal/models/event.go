package models

import (
	"encoding/json"
	"errors"
	"fmt"
)

// MessageType distinguishes user-authored messages from server generated ones.
type MessageType string

const (
	MessageTypeChat   MessageType = "chat"
	MessageTypeSystem MessageType = "system"
	MessageTypeFile   MessageType = "file"
)

// ErrMissingRoomID is returned when an event cannot be routed to a room.
var ErrMissingRoomID = errors.New("chat event has no room id")

// FileDescriptor describes an attachment carried by a message.
type FileDescriptor struct {
	ID           string `json:"id"`
	Filename     string `json:"filename"`
	OriginalName string `json:"originalname"`
	MimeType     string `json:"mimetype"`
	Size         int64  `json:"size"`
}

// Reader records that a user has seen a message.
type Reader struct {
	UserID string `json:"userId"`
	ReadAt int64  `json:"readAt"`
}

// ChatEvent is the unit of real-time distribution. It is what gets queued,
// cached in the recent window, published on the bus and emitted to sockets.
type ChatEvent struct {
	ID        string              `json:"id"`
	RoomID    string              `json:"roomId"`
	SenderID  string              `json:"senderId,omitempty"`
	Type      MessageType         `json:"type"`
	Content   string              `json:"content"`
	Timestamp int64               `json:"timestamp"` // unix millis
	File      *FileDescriptor     `json:"file,omitempty"`
	Reactions map[string][]string `json:"reactions,omitempty"`
	Readers   []Reader            `json:"readers,omitempty"`
	Metadata  map[string]any      `json:"metadata,omitempty"`
}

// Validate reports whether the event can be routed.
func (e *ChatEvent) Validate() error {
	if e == nil || e.RoomID == "" {
		return ErrMissingRoomID
	}
	return nil
}

// Encode serializes the event for the bus, the queue and the recent cache.
func (e *ChatEvent) Encode() ([]byte, error) {
	payload, err := json.Marshal(e)
	if err != nil {
		return nil, fmt.Errorf("encode chat event %s: %w", e.ID, err)
	}
	return payload, nil
}

// DecodeChatEvent parses a serialized event and rejects events without a room.
func DecodeChatEvent(payload []byte) (*ChatEvent, error) {
	var ev ChatEvent
	if err := json.Unmarshal(payload, &ev); err != nil {
		return nil, fmt.Errorf("decode chat event: %w", err)
	}
	if err := ev.Validate(); err != nil {
		return nil, err
	}
	return &ev, nil
}
