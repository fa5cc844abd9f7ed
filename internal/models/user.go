package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// User представляє користувача в системі.
type User struct {
	ID        string    `gorm:"type:text;primaryKey" json:"id"`
	Name      string    `gorm:"type:text;not null" json:"name"`
	Email     string    `gorm:"type:text;index" json:"email"`
	CreatedAt time.Time `json:"createdAt"`
}

// BeforeCreate це хук GORM, який викликається перед створенням запису.
// Він генерує новий UUID для користувача, якщо ID ще не встановлено.
func (u *User) BeforeCreate(tx *gorm.DB) (err error) {
	if u.ID == "" {
		u.ID = uuid.New().String()
	}
	return
}

// ToParticipant returns the presence view of the user.
func (u *User) ToParticipant() Participant {
	return Participant{ID: u.ID, Name: u.Name, Email: u.Email}
}
