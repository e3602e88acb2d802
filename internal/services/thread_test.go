package services

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/yungbote/crawlshastra-backend/internal/data/repos"
	"github.com/yungbote/crawlshastra-backend/internal/data/repos/testutil"
	types "github.com/yungbote/crawlshastra-backend/internal/domain"
	"github.com/yungbote/crawlshastra-backend/internal/domain/chat"
	"github.com/yungbote/crawlshastra-backend/internal/pkg/ctxutil"
	"github.com/yungbote/crawlshastra-backend/internal/pkg/dbctx"
	apperr "github.com/yungbote/crawlshastra-backend/internal/pkg/errors"
)

type stepClock struct {
	mu  sync.Mutex
	cur time.Time
}

func (c *stepClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.cur = c.cur.Add(time.Second)
	return c.cur
}

type recordingCache struct {
	mu          sync.Mutex
	entries     map[uuid.UUID][]*types.ChatThread
	invalidated []uuid.UUID
}

func newRecordingCache() *recordingCache {
	return &recordingCache{entries: map[uuid.UUID][]*types.ChatThread{}}
}

func (c *recordingCache) Get(_ context.Context, userID uuid.UUID) ([]*types.ChatThread, bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	v, ok := c.entries[userID]
	return v, ok, nil
}

func (c *recordingCache) Set(_ context.Context, userID uuid.UUID, threads []*types.ChatThread) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries[userID] = threads
	return nil
}

func (c *recordingCache) Invalidate(_ context.Context, userID uuid.UUID) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.entries, userID)
	c.invalidated = append(c.invalidated, userID)
	return nil
}

func (c *recordingCache) Close() error { return nil }

func newTestThreadService(t *testing.T, opts ...ThreadServiceOption) ThreadService {
	t.Helper()
	conn := testutil.DB(t)
	log := testutil.Logger(t)
	clock := &stepClock{cur: time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)}
	opts = append([]ThreadServiceOption{WithClock(clock.Now)}, opts...)
	return NewThreadService(conn, log, repos.NewChatThreadRepo(conn, log), repos.NewChatMessageRepo(conn, log), opts...)
}

func asUser(userID uuid.UUID) dbctx.Context {
	ctx := ctxutil.WithRequestData(context.Background(), &ctxutil.RequestData{UserID: userID})
	return dbctx.Context{Ctx: ctx}
}

func TestThreadServiceCreateSeedsGreeting(t *testing.T) {
	svc := newTestThreadService(t)
	alice := asUser(uuid.New())

	empty := []types.ChatMessage{}
	for name, in := range map[string]ThreadInput{
		"omitted": {},
		"empty":   {Messages: &empty},
	} {
		t.Run(name, func(t *testing.T) {
			th, err := svc.Create(alice, in)
			require.NoError(t, err)
			require.NotEqual(t, uuid.Nil, th.ID)
			assert.Nil(t, th.Title)
			require.Len(t, th.Messages, 1)
			m := th.Messages[0]
			assert.Equal(t, int64(1), m.MessageID)
			assert.Equal(t, chat.GreetingText, m.Text)
			assert.Equal(t, chat.SenderBot, m.Sender)
			assert.Empty(t, m.Sources)
		})
	}
}

func TestThreadServiceCreateWithMessages(t *testing.T) {
	svc := newTestThreadService(t)
	alice := asUser(uuid.New())

	msgs := []types.ChatMessage{
		chat.Greeting(time.Now().UTC()),
		{MessageID: 2, Text: "What's our refund policy?", Sender: chat.SenderUser},
		{MessageID: 3, Text: "30 days.", Sender: chat.SenderBot, Sources: []types.ChatSource{{Source: "policy.pdf"}}},
	}
	th, err := svc.Create(alice, ThreadInput{Title: testutil.PtrString("Refunds"), Messages: &msgs})
	require.NoError(t, err)

	got, err := svc.Get(alice, th.ID)
	require.NoError(t, err)
	require.NotNil(t, got.Title)
	assert.Equal(t, "Refunds", *got.Title)
	require.Len(t, got.Messages, 3)
	for i, m := range got.Messages {
		assert.Equal(t, int64(i+1), m.MessageID)
	}
	assert.False(t, got.Messages[1].Timestamp.IsZero())
	assert.Equal(t, "policy.pdf", got.Messages[2].Sources[0].Source)
}

func TestThreadServiceRejectsInvalidMessages(t *testing.T) {
	svc := newTestThreadService(t)
	alice := asUser(uuid.New())

	bad := map[string][]types.ChatMessage{
		"sender":    {{MessageID: 1, Text: "x", Sender: "assistant"}},
		"duplicate": {{MessageID: 1, Text: "x", Sender: "bot"}, {MessageID: 1, Text: "y", Sender: "user"}},
		"zero id":   {{MessageID: 0, Text: "x", Sender: "bot"}},
	}
	for name, msgs := range bad {
		t.Run(name, func(t *testing.T) {
			msgs := msgs
			_, err := svc.Create(alice, ThreadInput{Messages: &msgs})
			assert.ErrorIs(t, err, apperr.ErrInvalidArgument)
		})
	}
}

func TestThreadServiceListOrderAndIsolation(t *testing.T) {
	svc := newTestThreadService(t)
	alice, bob := asUser(uuid.New()), asUser(uuid.New())

	list, err := svc.List(alice)
	require.NoError(t, err)
	assert.NotNil(t, list)
	assert.Empty(t, list)

	first, err := svc.Create(alice, ThreadInput{})
	require.NoError(t, err)
	second, err := svc.Create(alice, ThreadInput{})
	require.NoError(t, err)
	_, err = svc.Create(bob, ThreadInput{})
	require.NoError(t, err)

	list, err = svc.List(alice)
	require.NoError(t, err)
	require.Len(t, list, 2)
	assert.Equal(t, second.ID, list[0].ID)
	assert.Equal(t, first.ID, list[1].ID)

	// Touching the older thread moves it to the front.
	_, err = svc.Update(alice, first.ID, ThreadInput{Title: testutil.PtrString("bumped")})
	require.NoError(t, err)
	list, err = svc.List(alice)
	require.NoError(t, err)
	assert.Equal(t, first.ID, list[0].ID)
	for _, th := range list {
		assert.Equal(t, ctxutil.PrincipalFrom(alice.Ctx), th.UserID)
	}
}

func TestThreadServiceUpdateIsIdempotentButBumpsUpdatedAt(t *testing.T) {
	svc := newTestThreadService(t)
	alice := asUser(uuid.New())

	th, err := svc.Create(alice, ThreadInput{})
	require.NoError(t, err)

	msgs := append([]types.ChatMessage{}, th.Messages...)
	msgs = append(msgs,
		types.ChatMessage{MessageID: 2, Text: "hello", Sender: chat.SenderUser, Timestamp: th.CreatedAt},
		types.ChatMessage{MessageID: 3, Text: "hi", Sender: chat.SenderBot, Timestamp: th.CreatedAt},
	)
	in := ThreadInput{Title: testutil.PtrString("hello..."), Messages: &msgs}

	once, err := svc.Update(alice, th.ID, in)
	require.NoError(t, err)
	twice, err := svc.Update(alice, th.ID, in)
	require.NoError(t, err)

	require.Len(t, twice.Messages, len(once.Messages))
	for i := range once.Messages {
		assert.Equal(t, once.Messages[i].MessageID, twice.Messages[i].MessageID)
		assert.Equal(t, once.Messages[i].Text, twice.Messages[i].Text)
		assert.Equal(t, once.Messages[i].Sender, twice.Messages[i].Sender)
	}
	assert.Equal(t, *once.Title, *twice.Title)
	assert.True(t, once.UpdatedAt.After(th.UpdatedAt))
	assert.True(t, twice.UpdatedAt.After(once.UpdatedAt))
	assert.Equal(t, th.CreatedAt.Unix(), twice.CreatedAt.Unix())
}

func TestThreadServiceUpdateKeepsOmittedFields(t *testing.T) {
	svc := newTestThreadService(t)
	alice := asUser(uuid.New())

	th, err := svc.Create(alice, ThreadInput{Title: testutil.PtrString("keep me")})
	require.NoError(t, err)

	msgs := append([]types.ChatMessage{}, th.Messages...)
	msgs = append(msgs, types.ChatMessage{MessageID: 2, Text: "q", Sender: chat.SenderUser})
	got, err := svc.Update(alice, th.ID, ThreadInput{Messages: &msgs})
	require.NoError(t, err)
	require.NotNil(t, got.Title)
	assert.Equal(t, "keep me", *got.Title)
	assert.Len(t, got.Messages, 2)

	got, err = svc.Update(alice, th.ID, ThreadInput{Title: testutil.PtrString("renamed")})
	require.NoError(t, err)
	assert.Equal(t, "renamed", *got.Title)
	assert.Len(t, got.Messages, 2)
}

func TestThreadServiceForeignAndMissingLookIdentical(t *testing.T) {
	svc := newTestThreadService(t)
	alice, bob := asUser(uuid.New()), asUser(uuid.New())

	th, err := svc.Create(alice, ThreadInput{})
	require.NoError(t, err)
	missing := uuid.New()

	for _, id := range []uuid.UUID{th.ID, missing} {
		_, getErr := svc.Get(bob, id)
		assert.ErrorIs(t, getErr, apperr.ErrNotFound)

		_, updErr := svc.Update(bob, id, ThreadInput{Title: testutil.PtrString("hijack")})
		assert.ErrorIs(t, updErr, apperr.ErrNotFound)

		delErr := svc.Delete(bob, id)
		assert.ErrorIs(t, delErr, apperr.ErrNotFound)
	}

	got, err := svc.Get(alice, th.ID)
	require.NoError(t, err)
	assert.Nil(t, got.Title)
}

func TestThreadServiceDelete(t *testing.T) {
	svc := newTestThreadService(t)
	alice := asUser(uuid.New())

	th, err := svc.Create(alice, ThreadInput{})
	require.NoError(t, err)
	require.NoError(t, svc.Delete(alice, th.ID))

	_, err = svc.Get(alice, th.ID)
	assert.ErrorIs(t, err, apperr.ErrNotFound)
	assert.ErrorIs(t, svc.Delete(alice, th.ID), apperr.ErrNotFound)

	list, err := svc.List(alice)
	require.NoError(t, err)
	assert.Empty(t, list)
}

func TestThreadServiceRequiresPrincipal(t *testing.T) {
	svc := newTestThreadService(t)
	anon := dbctx.Context{Ctx: context.Background()}

	_, err := svc.List(anon)
	assert.ErrorIs(t, err, apperr.ErrUnauthorized)
	_, err = svc.Create(anon, ThreadInput{})
	assert.ErrorIs(t, err, apperr.ErrUnauthorized)
}

func TestThreadServiceListCacheInvalidatedOnMutation(t *testing.T) {
	cache := newRecordingCache()
	svc := newTestThreadService(t, WithListCache(cache))
	userID := uuid.New()
	alice := asUser(userID)

	th, err := svc.Create(alice, ThreadInput{})
	require.NoError(t, err)

	list, err := svc.List(alice)
	require.NoError(t, err)
	require.Len(t, list, 1)
	cached, hit, _ := cache.Get(context.Background(), userID)
	require.True(t, hit)
	assert.Len(t, cached, 1)

	_, err = svc.Update(alice, th.ID, ThreadInput{Title: testutil.PtrString("t")})
	require.NoError(t, err)
	_, hit, _ = cache.Get(context.Background(), userID)
	assert.False(t, hit)

	require.NoError(t, svc.Delete(alice, th.ID))
	cache.mu.Lock()
	assert.Len(t, cache.invalidated, 3)
	cache.mu.Unlock()
}

// gatedListRepo holds the first ListByUser after its read until release closes.
type gatedListRepo struct {
	repos.ChatThreadRepo
	once    sync.Once
	loaded  chan struct{}
	release chan struct{}
}

func (r *gatedListRepo) ListByUser(dbc dbctx.Context, userID uuid.UUID, limit int) ([]*types.ChatThread, error) {
	rows, err := r.ChatThreadRepo.ListByUser(dbc, userID, limit)
	first := false
	r.once.Do(func() { first = true })
	if first {
		close(r.loaded)
		<-r.release
	}
	return rows, err
}

func TestThreadServiceListAfterUpdateNotServedFromInFlightLoad(t *testing.T) {
	conn := testutil.DB(t)
	log := testutil.Logger(t)
	clock := &stepClock{cur: time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)}
	gated := &gatedListRepo{
		ChatThreadRepo: repos.NewChatThreadRepo(conn, log),
		loaded:         make(chan struct{}),
		release:        make(chan struct{}),
	}
	cache := newRecordingCache()
	svc := NewThreadService(conn, log, gated, repos.NewChatMessageRepo(conn, log),
		WithClock(clock.Now), WithListCache(cache))

	userID := uuid.New()
	alice := asUser(userID)
	th, err := svc.Create(alice, ThreadInput{})
	require.NoError(t, err)

	type result struct {
		rows []*types.ChatThread
		err  error
	}
	stale := make(chan result, 1)
	go func() {
		rows, err := svc.List(alice)
		stale <- result{rows, err}
	}()
	<-gated.loaded

	_, err = svc.Update(alice, th.ID, ThreadInput{Title: testutil.PtrString("renamed")})
	require.NoError(t, err)

	fresh, err := svc.List(alice)
	require.NoError(t, err)
	require.Len(t, fresh, 1)
	require.NotNil(t, fresh[0].Title)
	assert.Equal(t, "renamed", *fresh[0].Title)

	close(gated.release)
	first := <-stale
	require.NoError(t, first.err)
	require.Len(t, first.rows, 1)
	assert.Nil(t, first.rows[0].Title)

	// The pre-update load must not have overwritten the cache.
	after, err := svc.List(alice)
	require.NoError(t, err)
	require.Len(t, after, 1)
	require.NotNil(t, after[0].Title)
	assert.Equal(t, "renamed", *after[0].Title)

	cached, hit, _ := cache.Get(context.Background(), userID)
	if hit {
		require.Len(t, cached, 1)
		require.NotNil(t, cached[0].Title)
		assert.Equal(t, "renamed", *cached[0].Title)
	}
}
