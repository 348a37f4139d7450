package chat

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

const (
	StatusActive = "active"
	StatusClosed = "closed"
)

// Conversation is a bounded session for one user. Nothing closes an older
// active conversation except the reset command; readers take the most recently
// created active row.
type Conversation struct {
	ID               uuid.UUID  `gorm:"type:uuid;primaryKey" json:"id"`
	UserID           uuid.UUID  `gorm:"type:uuid;not null;index:idx_conversations_user_status,priority:1" json:"user_id"`
	Status           string     `gorm:"column:status;type:varchar(20);not null;default:'active';index:idx_conversations_user_status,priority:2" json:"status"`
	Summary          string     `gorm:"column:summary;type:text;not null;default:''" json:"summary"`
	SummaryUpdatedAt *time.Time `gorm:"column:summary_updated_at" json:"summary_updated_at,omitempty"`
	CreatedAt        time.Time  `gorm:"not null;autoCreateTime;index" json:"created_at"`
}

func (Conversation) TableName() string { return "conversations" }

func (c *Conversation) BeforeCreate(tx *gorm.DB) error {
	if c.ID == uuid.Nil {
		c.ID = uuid.New()
	}
	if c.Status == "" {
		c.Status = StatusActive
	}
	return nil
}

func (c *Conversation) IsActive() bool { return c != nil && c.Status == StatusActive }
