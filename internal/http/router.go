package http

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"

	httpH "github.com/yungbote/crawlshastra-backend/internal/http/handlers"
	httpMW "github.com/yungbote/crawlshastra-backend/internal/http/middleware"
	"github.com/yungbote/crawlshastra-backend/internal/observability"
	"github.com/yungbote/crawlshastra-backend/internal/pkg/logger"
)

type RouterConfig struct {
	Log            *logger.Logger
	ServiceName    string
	CORSOrigins    []string
	AuthMiddleware *httpMW.AuthMiddleware
	RateLimit      *httpMW.RateLimitConfig
	Metrics        *observability.Metrics

	ChatHandler   *httpH.ChatHandler
	HealthHandler *httpH.HealthHandler
}

// chatPrefixes are the mount points for the chat routes. "/api/v1/chats" is
// kept for older dashboard builds.
var chatPrefixes = []string{"/chats", "/api/v1/chats"}

func NewRouter(cfg RouterConfig) *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery())
	if cfg.ServiceName != "" {
		r.Use(otelgin.Middleware(cfg.ServiceName))
	}
	r.Use(httpMW.AttachTraceContext())
	r.Use(httpMW.RequestLogger(cfg.Log))
	r.Use(httpMW.Metrics(cfg.Metrics))
	r.Use(httpMW.CORS(cfg.CORSOrigins))

	// Health
	if cfg.HealthHandler != nil {
		r.GET("/healthcheck", cfg.HealthHandler.HealthCheck)
	}
	if cfg.Metrics != nil {
		r.GET("/metrics", gin.WrapH(cfg.Metrics.Handler()))
	}

	if cfg.ChatHandler != nil {
		// One limiter for every prefix so aliases share a principal's budget.
		var limit gin.HandlerFunc
		if cfg.RateLimit != nil {
			limit = httpMW.RateLimit(*cfg.RateLimit, cfg.Metrics)
		}
		for _, prefix := range chatPrefixes {
			chats := r.Group(prefix)
			if cfg.AuthMiddleware != nil {
				chats.Use(cfg.AuthMiddleware.RequireAuth())
			}
			if limit != nil {
				chats.Use(limit)
			}
			chats.GET("", cfg.ChatHandler.ListThreads)
			chats.POST("", cfg.ChatHandler.CreateThread)
			chats.GET("/:chatId", cfg.ChatHandler.GetThread)
			chats.PUT("/:chatId", cfg.ChatHandler.UpdateThread)
			chats.DELETE("/:chatId", cfg.ChatHandler.DeleteThread)
		}
	}

	r.NoRoute(func(c *gin.Context) {
		c.JSON(http.StatusNotFound, gin.H{"error": gin.H{"message": "route not found", "code": "not_found"}})
	})
	return r
}
