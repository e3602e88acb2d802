package app

import (
	"fmt"
	"strings"

	"github.com/yungbote/crawlshastra-backend/internal/clients/redis"
	"github.com/yungbote/crawlshastra-backend/internal/pkg/logger"
)

type Clients struct {
	ThreadCache redis.ThreadListCache
}

func wireClients(log *logger.Logger, cfg Config) (Clients, error) {
	log.Info("Wiring clients...")

	// Redis
	var cache redis.ThreadListCache = redis.NopThreadListCache{}
	if strings.TrimSpace(cfg.Redis.Addr) != "" {
		c, err := redis.NewThreadListCache(log, cfg.Redis)
		if err != nil {
			return Clients{}, fmt.Errorf("init redis thread cache: %w", err)
		}
		cache = c
	}

	return Clients{ThreadCache: cache}, nil
}

func (c *Clients) Close() {
	if c == nil {
		return
	}
	if c.ThreadCache != nil {
		_ = c.ThreadCache.Close()
	}
}
