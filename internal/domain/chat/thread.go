package chat

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// ChatThread is one conversation owned by exactly one user. Messages are loaded
// in seq order; the slice is replaced wholesale on update.
type ChatThread struct {
	ID     uuid.UUID `gorm:"type:uuid;primaryKey" json:"id"`
	UserID uuid.UUID `gorm:"type:uuid;not null;index" json:"userId"`

	// Nil until the client sets one; the wire omits it in that case.
	Title *string `gorm:"column:title" json:"title,omitempty"`

	Messages []ChatMessage `gorm:"foreignKey:ThreadID;references:ID" json:"messages"`

	CreatedAt time.Time `gorm:"not null;index" json:"createdAt"`
	UpdatedAt time.Time `gorm:"not null;index" json:"updatedAt"`
}

func (ChatThread) TableName() string { return "chat_thread" }

func (t *ChatThread) BeforeCreate(tx *gorm.DB) error {
	if t.ID == uuid.Nil {
		t.ID = uuid.New()
	}
	return nil
}
