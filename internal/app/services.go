package app

import (
	"gorm.io/gorm"

	"github.com/yungbote/crawlshastra-backend/internal/pkg/logger"
	"github.com/yungbote/crawlshastra-backend/internal/services"
)

type Services struct {
	Auth    services.AuthService
	Threads services.ThreadService
}

func wireServices(db *gorm.DB, log *logger.Logger, cfg Config, reposet Repos, clients Clients) Services {
	log.Info("Wiring services...")
	return Services{
		Auth: services.NewAuthService(log, cfg.JWTSecretKey),
		Threads: services.NewThreadService(
			db,
			log,
			reposet.ChatThread,
			reposet.ChatMessage,
			services.WithListCache(clients.ThreadCache),
		),
	}
}
