package repos

import (
	"github.com/yungbote/crawlshastra-backend/internal/data/repos/chat"
	"github.com/yungbote/crawlshastra-backend/internal/pkg/logger"
	"gorm.io/gorm"
)

type ChatThreadRepo = chat.ChatThreadRepo
type ChatMessageRepo = chat.ChatMessageRepo

func NewChatThreadRepo(db *gorm.DB, baseLog *logger.Logger) ChatThreadRepo {
	return chat.NewChatThreadRepo(db, baseLog)
}
func NewChatMessageRepo(db *gorm.DB, baseLog *logger.Logger) ChatMessageRepo {
	return chat.NewChatMessageRepo(db, baseLog)
}
