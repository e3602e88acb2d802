package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/singleflight"
	"gorm.io/gorm"

	"github.com/yungbote/crawlshastra-backend/internal/clients/redis"
	"github.com/yungbote/crawlshastra-backend/internal/data/db"
	"github.com/yungbote/crawlshastra-backend/internal/data/repos"
	types "github.com/yungbote/crawlshastra-backend/internal/domain"
	"github.com/yungbote/crawlshastra-backend/internal/domain/chat"
	"github.com/yungbote/crawlshastra-backend/internal/pkg/ctxutil"
	"github.com/yungbote/crawlshastra-backend/internal/pkg/dbctx"
	apperr "github.com/yungbote/crawlshastra-backend/internal/pkg/errors"
	"github.com/yungbote/crawlshastra-backend/internal/pkg/logger"
)

// ThreadInput is the body of create and update. Nil fields are left alone on
// update; on create a nil or empty Messages seeds the greeting.
type ThreadInput struct {
	Title    *string
	Messages *[]types.ChatMessage
}

// ThreadService is the principal-scoped CRUD surface over chat threads. The
// principal always comes from the request context.
type ThreadService interface {
	List(dbc dbctx.Context) ([]*types.ChatThread, error)
	Get(dbc dbctx.Context, id uuid.UUID) (*types.ChatThread, error)
	Create(dbc dbctx.Context, in ThreadInput) (*types.ChatThread, error)
	Update(dbc dbctx.Context, id uuid.UUID, in ThreadInput) (*types.ChatThread, error)
	Delete(dbc dbctx.Context, id uuid.UUID) error
}

type ThreadServiceOption func(*threadService)

// WithClock overrides time.Now for timestamps written by the service.
func WithClock(now func() time.Time) ThreadServiceOption {
	return func(s *threadService) {
		if now != nil {
			s.now = now
		}
	}
}

// WithListCache enables the per-principal list cache.
func WithListCache(cache redis.ThreadListCache) ThreadServiceOption {
	return func(s *threadService) {
		if cache != nil {
			s.cache = cache
		}
	}
}

type threadService struct {
	db       *gorm.DB
	log      *logger.Logger
	threads  repos.ChatThreadRepo
	messages repos.ChatMessageRepo
	cache    redis.ThreadListCache
	fill     singleflight.Group
	tracer   trace.Tracer
	now      func() time.Time

	// gens counts committed mutations per principal. A list load only joins
	// or fills the cache for the generation it started in.
	genMu sync.Mutex
	gens  map[uuid.UUID]uint64
}

func NewThreadService(
	db *gorm.DB,
	log *logger.Logger,
	threads repos.ChatThreadRepo,
	messages repos.ChatMessageRepo,
	opts ...ThreadServiceOption,
) ThreadService {
	s := &threadService{
		db:       db,
		log:      log.With("service", "ThreadService"),
		threads:  threads,
		messages: messages,
		cache:    redis.NopThreadListCache{},
		tracer:   otel.Tracer("crawlshastra/services/thread"),
		now:      func() time.Time { return time.Now().UTC() },
		gens:     map[uuid.UUID]uint64{},
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *threadService) List(dbc dbctx.Context) ([]*types.ChatThread, error) {
	ctx, span := s.start(dbc.Ctx, "ThreadService.List")
	defer span.End()
	dbc.Ctx = ctx

	userID, err := principal(ctx)
	if err != nil {
		return nil, endSpan(span, err)
	}

	// Inside a caller transaction the cache may be stale relative to tx.
	if dbc.Tx == nil {
		if cached, hit, cerr := s.cache.Get(ctx, userID); cerr != nil {
			s.log.Warn("thread list cache get failed", "user_id", userID, "error", cerr)
		} else if hit {
			span.SetAttributes(attribute.Bool("cache.hit", true))
			return cached, nil
		}
	}

	gen := s.generation(userID)
	load := func() (interface{}, error) {
		rows, err := s.threads.ListByUser(dbc, userID, 0)
		if err != nil {
			return nil, db.MapError("list threads", err)
		}
		if dbc.Tx == nil {
			s.fillCache(ctx, userID, gen, rows)
		}
		return rows, nil
	}
	var v interface{}
	if dbc.Tx == nil {
		v, err, _ = s.fill.Do(fmt.Sprintf("%s:%d", userID, gen), load)
	} else {
		v, err = load()
	}
	if err != nil {
		s.log.Error("list threads failed", "user_id", userID, "error", err)
		return nil, endSpan(span, err)
	}
	rows := v.([]*types.ChatThread)
	span.SetAttributes(attribute.Int("threads.count", len(rows)))
	return rows, nil
}

func (s *threadService) Get(dbc dbctx.Context, id uuid.UUID) (*types.ChatThread, error) {
	ctx, span := s.start(dbc.Ctx, "ThreadService.Get", attribute.String("thread.id", id.String()))
	defer span.End()
	dbc.Ctx = ctx

	userID, err := principal(ctx)
	if err != nil {
		return nil, endSpan(span, err)
	}
	row, err := s.threads.GetOwned(dbc, userID, id)
	if err != nil {
		return nil, endSpan(span, db.MapError("get thread", err))
	}
	return row, nil
}

func (s *threadService) Create(dbc dbctx.Context, in ThreadInput) (*types.ChatThread, error) {
	ctx, span := s.start(dbc.Ctx, "ThreadService.Create")
	defer span.End()
	dbc.Ctx = ctx

	userID, err := principal(ctx)
	if err != nil {
		return nil, endSpan(span, err)
	}

	now := s.now()
	var msgs []types.ChatMessage
	if in.Messages != nil && len(*in.Messages) > 0 {
		msgs = normalizeMessages(*in.Messages, now)
		if err := chat.ValidateMessages(msgs); err != nil {
			return nil, endSpan(span, fmt.Errorf("%w: %v", apperr.ErrInvalidArgument, err))
		}
	} else {
		msgs = []types.ChatMessage{chat.Greeting(now)}
	}

	thread := &types.ChatThread{
		UserID:    userID,
		Title:     in.Title,
		CreatedAt: now,
		UpdatedAt: now,
	}
	err = dbc.DB(s.db).Transaction(func(tx *gorm.DB) error {
		inner := dbctx.Context{Ctx: ctx, Tx: tx}
		if _, err := s.threads.Create(inner, []*types.ChatThread{thread}); err != nil {
			return err
		}
		saved, err := s.messages.ReplaceForThread(inner, thread.ID, msgs)
		if err != nil {
			return err
		}
		thread.Messages = saved
		return nil
	})
	if err != nil {
		s.log.Error("create thread failed", "user_id", userID, "error", err)
		return nil, endSpan(span, db.MapError("create thread", err))
	}
	s.invalidate(ctx, userID)
	span.SetAttributes(attribute.String("thread.id", thread.ID.String()))
	return thread, nil
}

func (s *threadService) Update(dbc dbctx.Context, id uuid.UUID, in ThreadInput) (*types.ChatThread, error) {
	ctx, span := s.start(dbc.Ctx, "ThreadService.Update", attribute.String("thread.id", id.String()))
	defer span.End()
	dbc.Ctx = ctx

	userID, err := principal(ctx)
	if err != nil {
		return nil, endSpan(span, err)
	}

	now := s.now()
	var msgs []types.ChatMessage
	if in.Messages != nil {
		msgs = normalizeMessages(*in.Messages, now)
		if err := chat.ValidateMessages(msgs); err != nil {
			return nil, endSpan(span, fmt.Errorf("%w: %v", apperr.ErrInvalidArgument, err))
		}
	}

	var out *types.ChatThread
	err = dbc.DB(s.db).Transaction(func(tx *gorm.DB) error {
		inner := dbctx.Context{Ctx: ctx, Tx: tx}
		updates := map[string]interface{}{"updated_at": now}
		if in.Title != nil {
			updates["title"] = *in.Title
		}
		ok, err := s.threads.UpdateOwnedFields(inner, userID, id, updates)
		if err != nil {
			return err
		}
		if !ok {
			return gorm.ErrRecordNotFound
		}
		if in.Messages != nil {
			if _, err := s.messages.ReplaceForThread(inner, id, msgs); err != nil {
				return err
			}
		}
		row, err := s.threads.GetOwned(inner, userID, id)
		if err != nil {
			return err
		}
		out = row
		return nil
	})
	if err != nil {
		mapped := db.MapError("update thread", err)
		if !errors.Is(mapped, apperr.ErrNotFound) {
			s.log.Error("update thread failed", "user_id", userID, "thread_id", id, "error", err)
		}
		return nil, endSpan(span, mapped)
	}
	s.invalidate(ctx, userID)
	return out, nil
}

func (s *threadService) Delete(dbc dbctx.Context, id uuid.UUID) error {
	ctx, span := s.start(dbc.Ctx, "ThreadService.Delete", attribute.String("thread.id", id.String()))
	defer span.End()
	dbc.Ctx = ctx

	userID, err := principal(ctx)
	if err != nil {
		return endSpan(span, err)
	}

	err = dbc.DB(s.db).Transaction(func(tx *gorm.DB) error {
		inner := dbctx.Context{Ctx: ctx, Tx: tx}
		ok, err := s.threads.DeleteOwned(inner, userID, id)
		if err != nil {
			return err
		}
		if !ok {
			return gorm.ErrRecordNotFound
		}
		return s.messages.DeleteByThreadIDs(inner, []uuid.UUID{id})
	})
	if err != nil {
		mapped := db.MapError("delete thread", err)
		if !errors.Is(mapped, apperr.ErrNotFound) {
			s.log.Error("delete thread failed", "user_id", userID, "thread_id", id, "error", err)
		}
		return endSpan(span, mapped)
	}
	s.invalidate(ctx, userID)
	return nil
}

func (s *threadService) generation(userID uuid.UUID) uint64 {
	s.genMu.Lock()
	defer s.genMu.Unlock()
	return s.gens[userID]
}

// fillCache stores rows loaded in generation gen. A mutation that commits
// while the set is in flight bumps the generation first, so the re-check
// either sees it and clears the entry or runs before the mutation's own
// invalidate.
func (s *threadService) fillCache(ctx context.Context, userID uuid.UUID, gen uint64, rows []*types.ChatThread) {
	if s.generation(userID) != gen {
		return
	}
	if err := s.cache.Set(ctx, userID, rows); err != nil {
		s.log.Warn("thread list cache set failed", "user_id", userID, "error", err)
		return
	}
	if s.generation(userID) != gen {
		if err := s.cache.Invalidate(ctx, userID); err != nil {
			s.log.Warn("thread list cache invalidate failed", "user_id", userID, "error", err)
		}
	}
}

// invalidate runs after a committed mutation.
func (s *threadService) invalidate(ctx context.Context, userID uuid.UUID) {
	s.genMu.Lock()
	s.gens[userID]++
	s.genMu.Unlock()
	if err := s.cache.Invalidate(ctx, userID); err != nil {
		s.log.Warn("thread list cache invalidate failed", "user_id", userID, "error", err)
	}
}

func (s *threadService) start(ctx context.Context, name string, attrs ...attribute.KeyValue) (context.Context, trace.Span) {
	return s.tracer.Start(ctxutil.Default(ctx), name, trace.WithAttributes(attrs...))
}

func endSpan(span trace.Span, err error) error {
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	return err
}

func principal(ctx context.Context) (uuid.UUID, error) {
	userID := ctxutil.PrincipalFrom(ctx)
	if userID == uuid.Nil {
		return uuid.Nil, apperr.ErrUnauthorized
	}
	return userID, nil
}

// normalizeMessages copies the payload, trimming sender and stamping a zero
// timestamp with now.
func normalizeMessages(in []types.ChatMessage, now time.Time) []types.ChatMessage {
	out := make([]types.ChatMessage, len(in))
	for i, m := range in {
		m.Sender = strings.TrimSpace(m.Sender)
		if m.Timestamp.IsZero() {
			m.Timestamp = now
		}
		if m.Sources == nil {
			m.Sources = []types.ChatSource{}
		}
		out[i] = m
	}
	return out
}
