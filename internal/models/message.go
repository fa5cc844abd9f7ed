package models

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// Message is a persisted chat message. The store is the source of truth;
// caches only hold copies of what is written here.
type Message struct {
	// ID is the message UUID.
	ID string `gorm:"type:uuid;primaryKey" json:"id"`
	// RoomID is the room the message was posted to.
	RoomID string `gorm:"type:text;not null;index:idx_room_created" json:"roomId"`
	// SenderID is empty for system messages.
	SenderID string `gorm:"type:text;index" json:"senderId"`
	// Type is one of chat, system or file.
	Type MessageType `gorm:"type:text;not null" json:"type"`
	// Content is the message text.
	Content string `gorm:"type:text" json:"content"`
	// FileID references an uploaded attachment.
	FileID *string `gorm:"type:uuid" json:"fileId,omitempty"`
	File   *File   `gorm:"foreignKey:FileID" json:"file,omitempty"`
	// Metadata is a JSON object with client supplied extras (captions, reply refs).
	Metadata string `gorm:"type:text" json:"metadata,omitempty"`
	// Readers lists who has loaded the message, oldest read first.
	Readers []MessageReader `gorm:"foreignKey:MessageID" json:"readers,omitempty"`
	// IsDeleted hides the message from history without removing the row.
	IsDeleted bool      `gorm:"not null;default:false" json:"-"`
	CreatedAt time.Time `gorm:"not null;index:idx_room_created" json:"createdAt"`
}

// MessageReader is one read acknowledgment. The composite key keeps a user
// listed at most once per message.
type MessageReader struct {
	MessageID string    `gorm:"type:uuid;primaryKey" json:"messageId"`
	UserID    string    `gorm:"type:text;primaryKey;index" json:"userId"`
	ReadAt    time.Time `gorm:"not null" json:"readAt"`
}

// File is an attachment uploaded alongside a message.
type File struct {
	ID           string    `gorm:"type:uuid;primaryKey" json:"id"`
	Filename     string    `gorm:"type:text;not null" json:"filename"`
	OriginalName string    `gorm:"type:text" json:"originalname"`
	MimeType     string    `gorm:"type:text" json:"mimetype"`
	Size         int64     `json:"size"`
	CreatedAt    time.Time `json:"createdAt"`
}

// BeforeCreate генерує UUID, якщо ID ще не встановлено.
func (m *Message) BeforeCreate(tx *gorm.DB) (err error) {
	if m.ID == "" {
		m.ID = uuid.New().String()
	}
	return
}

// NewSystemMessage builds a server generated message such as a join or leave notice.
func NewSystemMessage(roomID, content string, at time.Time) *Message {
	return &Message{
		ID:        uuid.New().String(),
		RoomID:    roomID,
		Type:      MessageTypeSystem,
		Content:   content,
		CreatedAt: at,
	}
}

// ToEvent maps the stored message to its wire form.
func (m *Message) ToEvent() *ChatEvent {
	ev := &ChatEvent{
		ID:        m.ID,
		RoomID:    m.RoomID,
		SenderID:  m.SenderID,
		Type:      m.Type,
		Content:   m.Content,
		Timestamp: m.CreatedAt.UnixMilli(),
	}
	if m.File != nil {
		ev.File = &FileDescriptor{
			ID:           m.File.ID,
			Filename:     m.File.Filename,
			OriginalName: m.File.OriginalName,
			MimeType:     m.File.MimeType,
			Size:         m.File.Size,
		}
	}
	if len(m.Readers) > 0 {
		ev.Readers = make([]Reader, 0, len(m.Readers))
		for _, r := range m.Readers {
			ev.Readers = append(ev.Readers, Reader{UserID: r.UserID, ReadAt: r.ReadAt.UnixMilli()})
		}
	}
	if m.Metadata != "" {
		var meta map[string]any
		if err := json.Unmarshal([]byte(m.Metadata), &meta); err == nil {
			ev.Metadata = meta
		}
	}
	return ev
}

// EventsFromMessages maps a page of stored messages, preserving order.
func EventsFromMessages(msgs []Message) []ChatEvent {
	out := make([]ChatEvent, 0, len(msgs))
	for i := range msgs {
		out = append(out, *msgs[i].ToEvent())
	}
	return out
}
