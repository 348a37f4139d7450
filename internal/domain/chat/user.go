package chat

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

const (
	SourceWhatsApp = "whatsapp"
	SourceWeb      = "web"
)

// User is an external actor identified by a channel-specific id (phone number, web user id).
// Rows are created on first contact and never mutated.
type User struct {
	ID         uuid.UUID `gorm:"type:uuid;primaryKey" json:"id"`
	Source     string    `gorm:"column:source;type:varchar(50);not null;default:'whatsapp'" json:"source"`
	ExternalID string    `gorm:"column:external_id;type:varchar(100);not null;uniqueIndex:idx_users_external_id" json:"external_id"`
	CreatedAt  time.Time `gorm:"not null;autoCreateTime" json:"created_at"`
}

func (User) TableName() string { return "users" }

func (u *User) BeforeCreate(tx *gorm.DB) error {
	if u.ID == uuid.Nil {
		u.ID = uuid.New()
	}
	return nil
}
