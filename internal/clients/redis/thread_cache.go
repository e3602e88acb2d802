package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	goredis "github.com/redis/go-redis/v9"

	types "github.com/yungbote/crawlshastra-backend/internal/domain"
	"github.com/yungbote/crawlshastra-backend/internal/pkg/logger"
)

// ThreadListCache holds the most recent List result per principal. It is
// advisory: misses and errors fall through to the database, and every
// mutation invalidates the owner's entry.
type ThreadListCache interface {
	Get(ctx context.Context, userID uuid.UUID) ([]*types.ChatThread, bool, error)
	Set(ctx context.Context, userID uuid.UUID, threads []*types.ChatThread) error
	Invalidate(ctx context.Context, userID uuid.UUID) error
	Close() error
}

type Config struct {
	Addr      string
	Password  string
	DB        int
	KeyPrefix string
	TTL       time.Duration
}

type threadListCache struct {
	log    *logger.Logger
	rdb    *goredis.Client
	prefix string
	ttl    time.Duration
}

func NewThreadListCache(log *logger.Logger, cfg Config) (ThreadListCache, error) {
	if log == nil {
		return nil, fmt.Errorf("logger required")
	}
	addr := strings.TrimSpace(cfg.Addr)
	if addr == "" {
		return nil, fmt.Errorf("missing redis addr")
	}
	prefix := strings.TrimSpace(cfg.KeyPrefix)
	if prefix == "" {
		prefix = "chats"
	}
	ttl := cfg.TTL
	if ttl <= 0 {
		ttl = 5 * time.Minute
	}

	rdb := goredis.NewClient(&goredis.Options{
		Addr:        addr,
		Password:    cfg.Password,
		DB:          cfg.DB,
		DialTimeout: 5 * time.Second,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := rdb.Ping(ctx).Err(); err != nil {
		_ = rdb.Close()
		return nil, fmt.Errorf("redis ping: %w", err)
	}

	return &threadListCache{
		log:    log.With("service", "RedisThreadListCache"),
		rdb:    rdb,
		prefix: prefix,
		ttl:    ttl,
	}, nil
}

func (c *threadListCache) key(userID uuid.UUID) string {
	return c.prefix + ":list:" + userID.String()
}

func (c *threadListCache) Get(ctx context.Context, userID uuid.UUID) ([]*types.ChatThread, bool, error) {
	raw, err := c.rdb.Get(ctx, c.key(userID)).Bytes()
	if errors.Is(err, goredis.Nil) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}
	out := []*types.ChatThread{}
	if err := json.Unmarshal(raw, &out); err != nil {
		c.log.Warn("bad cached thread list, dropping", "user_id", userID.String(), "error", err)
		_ = c.rdb.Del(ctx, c.key(userID)).Err()
		return nil, false, nil
	}
	return out, true, nil
}

func (c *threadListCache) Set(ctx context.Context, userID uuid.UUID, threads []*types.ChatThread) error {
	raw, err := json.Marshal(threads)
	if err != nil {
		return err
	}
	return c.rdb.Set(ctx, c.key(userID), raw, c.ttl).Err()
}

func (c *threadListCache) Invalidate(ctx context.Context, userID uuid.UUID) error {
	return c.rdb.Del(ctx, c.key(userID)).Err()
}

func (c *threadListCache) Close() error {
	if c == nil || c.rdb == nil {
		return nil
	}
	return c.rdb.Close()
}

// NopThreadListCache is used when no Redis is configured.
type NopThreadListCache struct{}

func (NopThreadListCache) Get(context.Context, uuid.UUID) ([]*types.ChatThread, bool, error) {
	return nil, false, nil
}
func (NopThreadListCache) Set(context.Context, uuid.UUID, []*types.ChatThread) error { return nil }
func (NopThreadListCache) Invalidate(context.Context, uuid.UUID) error                { return nil }
func (NopThreadListCache) Close() error                                               { return nil }
