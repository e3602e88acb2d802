package app

import (
	"gorm.io/gorm"

	"github.com/yungbote/crawlshastra-backend/internal/http"
	httpH "github.com/yungbote/crawlshastra-backend/internal/http/handlers"
	httpMW "github.com/yungbote/crawlshastra-backend/internal/http/middleware"
	"github.com/yungbote/crawlshastra-backend/internal/observability"
	"github.com/yungbote/crawlshastra-backend/internal/pkg/logger"
)

type Middleware struct {
	Auth      *httpMW.AuthMiddleware
	RateLimit *httpMW.RateLimitConfig
}

type Handlers struct {
	Health *httpH.HealthHandler
	Chat   *httpH.ChatHandler
}

func wireHandlers(log *logger.Logger, db *gorm.DB, services Services) Handlers {
	log.Info("Wiring handlers...")
	return Handlers{
		Health: httpH.NewHealthHandler(db),
		Chat:   httpH.NewChatHandler(services.Threads),
	}
}

func wireMiddleware(log *logger.Logger, cfg Config, services Services) Middleware {
	log.Info("Wiring middleware...")
	mw := Middleware{
		Auth: httpMW.NewAuthMiddleware(log, services.Auth),
	}
	if cfg.RateLimitEnabled {
		rl := cfg.RateLimit
		mw.RateLimit = &rl
	}
	return mw
}

func wireServer(log *logger.Logger, cfg Config, handlers Handlers, middleware Middleware, metrics *observability.Metrics) *http.Server {
	serviceName := ""
	if cfg.Otel.Enabled {
		serviceName = cfg.Otel.ServiceName
	}
	return http.NewServer(http.RouterConfig{
		Log:            log,
		ServiceName:    serviceName,
		CORSOrigins:    cfg.CORSOrigins,
		AuthMiddleware: middleware.Auth,
		RateLimit:      middleware.RateLimit,
		Metrics:        metrics,
		ChatHandler:    handlers.Chat,
		HealthHandler:  handlers.Health,
	})
}
