package chathub

import (
	"chatgogo/realtime/internal/dispatch"
	"chatgogo/realtime/internal/models"
	"encoding/json"
	"fmt"
)

// Socket event names. They are a wire contract with clients.
const (
	EventJoinRoom               = "joinRoom"
	EventJoinRoomSuccess        = "joinRoomSuccess"
	EventJoinRoomError          = "joinRoomError"
	EventLeaveRoom              = "leaveRoom"
	EventChatMessage            = "chatMessage"
	EventMessage                = dispatch.EventMessage
	EventFetchPreviousMessages  = "fetchPreviousMessages"
	EventPreviousMessagesLoaded = "previousMessagesLoaded"
	EventParticipantsUpdate     = "participantsUpdate"
	EventUserLeft               = "userLeft"
	EventSessionEnded           = "session_ended"
	EventError                  = "error"
)

// Envelope is the frame exchanged over the socket in both directions.
type Envelope struct {
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data,omitempty"`
}

func encodeEnvelope(event string, v any) ([]byte, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("encode %s payload: %w", event, err)
	}
	return json.Marshal(Envelope{Event: event, Data: data})
}

type ErrorPayload struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

const (
	ErrCodeQueueFull   = "QUEUE_FULL"
	ErrCodeNotInRoom   = "NOT_IN_ROOM"
	ErrCodeBadRequest  = "BAD_REQUEST"
	ErrCodeStoreFailed = "STORE_FAILED"
)

type SessionEnded struct {
	Reason  string `json:"reason"`
	Message string `json:"message"`
}

type JoinRoomSuccess struct {
	RoomID       string               `json:"roomId"`
	Participants []models.Participant `json:"participants"`
	Messages     []models.ChatEvent   `json:"messages"`
	HasMore      bool                 `json:"hasMore"`
}

type JoinRoomError struct {
	RoomID  string `json:"roomId"`
	Message string `json:"message"`
}

type ParticipantsUpdate struct {
	RoomID       string               `json:"roomId"`
	Participants []models.Participant `json:"participants"`
}

type UserLeft struct {
	RoomID   string `json:"roomId"`
	UserID   string `json:"userId"`
	UserName string `json:"userName"`
}

type PreviousMessagesLoaded struct {
	RoomID   string             `json:"roomId"`
	Messages []models.ChatEvent `json:"messages"`
	HasMore  bool               `json:"hasMore"`
}

// ChatMessageRequest is what a client sends to post a message.
type ChatMessageRequest struct {
	RoomID   string         `json:"roomId"`
	Content  string         `json:"content"`
	FileID   string         `json:"fileId,omitempty"`
	Metadata map[string]any `json:"metadata,omitempty"`
}

// FetchPreviousRequest asks for history older than Before (epoch millis).
type FetchPreviousRequest struct {
	RoomID string `json:"roomId"`
	Before int64  `json:"before,omitempty"`
	Limit  int    `json:"limit,omitempty"`
}

type roomRequest struct {
	RoomID string `json:"roomId"`
}

// decodeRoomID accepts either a bare JSON string or {"roomId": "..."}.
func decodeRoomID(data json.RawMessage) string {
	var id string
	if err := json.Unmarshal(data, &id); err == nil {
		return id
	}
	var req roomRequest
	if err := json.Unmarshal(data, &req); err == nil {
		return req.RoomID
	}
	return ""
}
