package models

import (
	"slices"
	"time"

	"github.com/lib/pq"
)

// ChatRoom is a group room. ParticipantIDs is the authoritative membership list.
type ChatRoom struct {
	// ID is the room identifier.
	ID string `gorm:"type:text;primaryKey" json:"id"`
	// Name is the display name of the room.
	Name string `gorm:"type:text" json:"name"`
	// CreatorID is the user who created the room.
	CreatorID string `gorm:"type:text" json:"creatorId"`
	// ParticipantIDs is stored as a Postgres text[] so membership can be
	// changed atomically with array_append/array_remove.
	ParticipantIDs pq.StringArray `gorm:"type:text[];not null;default:'{}'" json:"participantIds"`
	CreatedAt      time.Time      `json:"createdAt"`
	UpdatedAt      time.Time      `json:"updatedAt"`
}

// HasParticipant reports whether userID is listed as a member.
func (r *ChatRoom) HasParticipant(userID string) bool {
	return slices.Contains(r.ParticipantIDs, userID)
}
