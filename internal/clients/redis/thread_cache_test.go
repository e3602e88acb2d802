package redis

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	types "github.com/yungbote/crawlshastra-backend/internal/domain"
	"github.com/yungbote/crawlshastra-backend/internal/domain/chat"
	"github.com/yungbote/crawlshastra-backend/internal/pkg/logger"
)

func TestThreadListCacheRoundTrip(t *testing.T) {
	addr := os.Getenv("TEST_REDIS_ADDR")
	if addr == "" {
		t.Skip("set TEST_REDIS_ADDR to run redis integration tests")
	}
	cache, err := NewThreadListCache(logger.Nop(), Config{Addr: addr, KeyPrefix: "chats-test", TTL: time.Minute})
	require.NoError(t, err)
	defer cache.Close()

	ctx := context.Background()
	userID := uuid.New()

	_, hit, err := cache.Get(ctx, userID)
	require.NoError(t, err)
	assert.False(t, hit)

	now := time.Now().UTC().Truncate(time.Millisecond)
	th := &types.ChatThread{ID: uuid.New(), UserID: userID, CreatedAt: now, UpdatedAt: now,
		Messages: []types.ChatMessage{chat.Greeting(now)}}
	require.NoError(t, cache.Set(ctx, userID, []*types.ChatThread{th}))

	got, hit, err := cache.Get(ctx, userID)
	require.NoError(t, err)
	require.True(t, hit)
	require.Len(t, got, 1)
	assert.Equal(t, th.ID, got[0].ID)
	assert.Equal(t, chat.GreetingText, got[0].Messages[0].Text)

	require.NoError(t, cache.Invalidate(ctx, userID))
	_, hit, err = cache.Get(ctx, userID)
	require.NoError(t, err)
	assert.False(t, hit)
}

func TestNewThreadListCacheRequiresAddr(t *testing.T) {
	_, err := NewThreadListCache(logger.Nop(), Config{})
	assert.Error(t, err)

	var nop ThreadListCache = NopThreadListCache{}
	_, hit, err := nop.Get(context.Background(), uuid.New())
	assert.NoError(t, err)
	assert.False(t, hit)
}
