package db

import (
	"fmt"

	types "github.com/yungbote/crawlshastra-backend/internal/domain"
	"gorm.io/gorm"
)

func AutoMigrateAll(db *gorm.DB) error {
	if err := db.AutoMigrate(
		// =========================
		// Chat
		// =========================
		&types.ChatThread{},
		&types.ChatMessage{},
	); err != nil {
		return err
	}
	return EnsureChatIndexes(db)
}

// EnsureChatIndexes adds the listing index the gorm tags cannot express.
// The statement is valid on both Postgres and SQLite.
func EnsureChatIndexes(db *gorm.DB) error {
	if err := db.Exec(`
		CREATE INDEX IF NOT EXISTS idx_chat_thread_user_updated
		ON chat_thread (user_id, updated_at DESC);
	`).Error; err != nil {
		return fmt.Errorf("create idx_chat_thread_user_updated: %w", err)
	}
	return nil
}
