package chat

import (
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

const (
	SenderUser = "user"
	SenderBot  = "bot"
)

// GreetingText seeds every thread created without messages.
const GreetingText = "Hi! I'm CrawlShastra's AI assistant. How can I help you today?"

// Source is a citation returned by the assistant.
type Source struct {
	Source string `json:"source"`
}

type ChatMessage struct {
	RowID    uuid.UUID `gorm:"type:uuid;primaryKey;column:row_id" json:"-"`
	ThreadID uuid.UUID `gorm:"type:uuid;not null;index;index:idx_chat_message_thread_seq,unique,priority:1" json:"-"`

	// Position within the thread; insertion order is semantic.
	Seq int `gorm:"column:seq;not null;index:idx_chat_message_thread_seq,unique,priority:2" json:"-"`

	// Thread-local id as produced by the client (wire "id").
	MessageID int64 `gorm:"column:message_id;not null" json:"id"`

	Text      string                      `gorm:"column:text;type:text;not null" json:"text"`
	Sender    string                      `gorm:"column:sender;not null" json:"sender"`
	Timestamp time.Time                   `gorm:"column:timestamp;not null" json:"timestamp"`
	Sources   datatypes.JSONSlice[Source] `gorm:"column:sources" json:"sources"`
}

func (ChatMessage) TableName() string { return "chat_message" }

func (m *ChatMessage) BeforeCreate(tx *gorm.DB) error {
	if m.RowID == uuid.Nil {
		m.RowID = uuid.New()
	}
	if m.Sources == nil {
		m.Sources = datatypes.JSONSlice[Source]{}
	}
	return nil
}

// Greeting is the assistant message every new thread starts with.
func Greeting(now time.Time) ChatMessage {
	return ChatMessage{
		MessageID: 1,
		Text:      GreetingText,
		Sender:    SenderBot,
		Timestamp: now,
		Sources:   datatypes.JSONSlice[Source]{},
	}
}

func ValidSender(s string) bool {
	return s == SenderUser || s == SenderBot
}

// ValidateMessages checks sender values and thread-local id uniqueness.
func ValidateMessages(msgs []ChatMessage) error {
	seen := make(map[int64]struct{}, len(msgs))
	for i, m := range msgs {
		if m.MessageID <= 0 {
			return fmt.Errorf("messages[%d]: id must be positive", i)
		}
		if _, dup := seen[m.MessageID]; dup {
			return fmt.Errorf("messages[%d]: duplicate id %d", i, m.MessageID)
		}
		seen[m.MessageID] = struct{}{}
		if !ValidSender(strings.TrimSpace(m.Sender)) {
			return fmt.Errorf("messages[%d]: sender must be %q or %q", i, SenderUser, SenderBot)
		}
	}
	return nil
}
