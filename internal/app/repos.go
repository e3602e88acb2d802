package app

import (
	"gorm.io/gorm"

	"github.com/yungbote/crawlshastra-backend/internal/data/repos"
	"github.com/yungbote/crawlshastra-backend/internal/pkg/logger"
)

type Repos struct {
	ChatThread  repos.ChatThreadRepo
	ChatMessage repos.ChatMessageRepo
}

func wireRepos(db *gorm.DB, log *logger.Logger) Repos {
	log.Info("Wiring repos...")
	return Repos{
		ChatThread:  repos.NewChatThreadRepo(db, log),
		ChatMessage: repos.NewChatMessageRepo(db, log),
	}
}
