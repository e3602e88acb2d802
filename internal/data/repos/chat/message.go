package chat

import (
	"fmt"

	"github.com/google/uuid"
	"gorm.io/gorm"

	types "github.com/yungbote/crawlshastra-backend/internal/domain"
	"github.com/yungbote/crawlshastra-backend/internal/pkg/dbctx"
	"github.com/yungbote/crawlshastra-backend/internal/pkg/logger"
)

type ChatMessageRepo interface {
	// ReplaceForThread swaps the whole message log of a thread. Seq is
	// reassigned from slice order. Callers should hold a transaction.
	ReplaceForThread(dbc dbctx.Context, threadID uuid.UUID, rows []types.ChatMessage) ([]types.ChatMessage, error)
	ListByThread(dbc dbctx.Context, threadID uuid.UUID) ([]types.ChatMessage, error)
	DeleteByThreadIDs(dbc dbctx.Context, threadIDs []uuid.UUID) error
}

type chatMessageRepo struct {
	db  *gorm.DB
	log *logger.Logger
}

func NewChatMessageRepo(db *gorm.DB, log *logger.Logger) ChatMessageRepo {
	return &chatMessageRepo{db: db, log: log.With("repo", "ChatMessageRepo")}
}

func (r *chatMessageRepo) ReplaceForThread(dbc dbctx.Context, threadID uuid.UUID, rows []types.ChatMessage) ([]types.ChatMessage, error) {
	if threadID == uuid.Nil {
		return nil, fmt.Errorf("missing thread_id")
	}
	txx := dbc.DB(r.db)
	if err := txx.Where("thread_id = ?", threadID).Delete(&types.ChatMessage{}).Error; err != nil {
		return nil, err
	}
	out := make([]types.ChatMessage, len(rows))
	for i := range rows {
		row := rows[i]
		row.RowID = uuid.Nil
		row.ThreadID = threadID
		row.Seq = i
		out[i] = row
	}
	if len(out) == 0 {
		return out, nil
	}
	if err := txx.Create(&out).Error; err != nil {
		return nil, err
	}
	return out, nil
}

func (r *chatMessageRepo) ListByThread(dbc dbctx.Context, threadID uuid.UUID) ([]types.ChatMessage, error) {
	if threadID == uuid.Nil {
		return nil, fmt.Errorf("missing thread_id")
	}
	out := []types.ChatMessage{}
	if err := dbc.DB(r.db).
		Where("thread_id = ?", threadID).
		Order("seq ASC").
		Find(&out).Error; err != nil {
		return nil, err
	}
	return out, nil
}

func (r *chatMessageRepo) DeleteByThreadIDs(dbc dbctx.Context, threadIDs []uuid.UUID) error {
	if len(threadIDs) == 0 {
		return nil
	}
	return dbc.DB(r.db).
		Where("thread_id IN ?", threadIDs).
		Delete(&types.ChatMessage{}).Error
}
