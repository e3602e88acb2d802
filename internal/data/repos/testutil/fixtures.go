package testutil

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
	"gorm.io/gorm"

	"github.com/yungbote/crawlshastra-backend/internal/domain/chat"
)

// SeedThread inserts a thread with the given message texts, alternating
// bot/user senders starting with bot.
func SeedThread(tb testing.TB, ctx context.Context, tx *gorm.DB, userID uuid.UUID, updatedAt time.Time, texts ...string) *chat.ChatThread {
	tb.Helper()
	th := &chat.ChatThread{
		ID:        uuid.New(),
		UserID:    userID,
		CreatedAt: updatedAt,
		UpdatedAt: updatedAt,
	}
	if err := tx.WithContext(ctx).Omit("Messages").Create(th).Error; err != nil {
		tb.Fatalf("seed thread: %v", err)
	}
	for i, text := range texts {
		sender := chat.SenderBot
		if i%2 == 1 {
			sender = chat.SenderUser
		}
		m := chat.ChatMessage{
			ThreadID:  th.ID,
			Seq:       i,
			MessageID: int64(i + 1),
			Text:      text,
			Sender:    sender,
			Timestamp: updatedAt,
			Sources:   datatypes.JSONSlice[chat.Source]{},
		}
		if err := tx.WithContext(ctx).Create(&m).Error; err != nil {
			tb.Fatalf("seed message: %v", err)
		}
		th.Messages = append(th.Messages, m)
	}
	return th
}

func PtrString(v string) *string { return &v }
