package chat

import (
	"fmt"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	types "github.com/yungbote/crawlshastra-backend/internal/domain"
	"github.com/yungbote/crawlshastra-backend/internal/pkg/dbctx"
	"github.com/yungbote/crawlshastra-backend/internal/pkg/logger"
)

// ChatThreadRepo reads and writes threads. Every *Owned method matches on
// (id, user_id) in a single predicate so a foreign thread looks exactly like a
// missing one.
type ChatThreadRepo interface {
	Create(dbc dbctx.Context, rows []*types.ChatThread) ([]*types.ChatThread, error)
	ListByUser(dbc dbctx.Context, userID uuid.UUID, limit int) ([]*types.ChatThread, error)
	GetOwned(dbc dbctx.Context, userID, id uuid.UUID) (*types.ChatThread, error)
	UpdateOwnedFields(dbc dbctx.Context, userID, id uuid.UUID, updates map[string]interface{}) (bool, error)
	DeleteOwned(dbc dbctx.Context, userID, id uuid.UUID) (bool, error)
}

type chatThreadRepo struct {
	db  *gorm.DB
	log *logger.Logger
}

func NewChatThreadRepo(db *gorm.DB, log *logger.Logger) ChatThreadRepo {
	return &chatThreadRepo{db: db, log: log.With("repo", "ChatThreadRepo")}
}

func (r *chatThreadRepo) Create(dbc dbctx.Context, rows []*types.ChatThread) ([]*types.ChatThread, error) {
	if len(rows) == 0 {
		return []*types.ChatThread{}, nil
	}
	for _, row := range rows {
		if row == nil || row.UserID == uuid.Nil {
			return nil, fmt.Errorf("missing user_id")
		}
	}
	if err := dbc.DB(r.db).Omit(clause.Associations).Create(&rows).Error; err != nil {
		return nil, err
	}
	return rows, nil
}

func (r *chatThreadRepo) ListByUser(dbc dbctx.Context, userID uuid.UUID, limit int) ([]*types.ChatThread, error) {
	if userID == uuid.Nil {
		return nil, fmt.Errorf("missing user_id")
	}
	q := dbc.DB(r.db).
		Model(&types.ChatThread{}).
		Preload("Messages", orderedMessages).
		Where("user_id = ?", userID).
		Order("updated_at DESC").
		Order("created_at DESC")
	if limit > 0 {
		q = q.Limit(limit)
	}
	out := []*types.ChatThread{}
	if err := q.Find(&out).Error; err != nil {
		return nil, err
	}
	return out, nil
}

func (r *chatThreadRepo) GetOwned(dbc dbctx.Context, userID, id uuid.UUID) (*types.ChatThread, error) {
	if userID == uuid.Nil || id == uuid.Nil {
		return nil, gorm.ErrRecordNotFound
	}
	var out types.ChatThread
	if err := dbc.DB(r.db).
		Preload("Messages", orderedMessages).
		Where("id = ? AND user_id = ?", id, userID).
		Take(&out).Error; err != nil {
		return nil, err
	}
	return &out, nil
}

// UpdateOwnedFields always bumps updated_at. It reports false when no owned
// row matched.
func (r *chatThreadRepo) UpdateOwnedFields(dbc dbctx.Context, userID, id uuid.UUID, updates map[string]interface{}) (bool, error) {
	if userID == uuid.Nil || id == uuid.Nil {
		return false, nil
	}
	if updates == nil {
		updates = map[string]interface{}{}
	}
	if _, ok := updates["updated_at"]; !ok {
		updates["updated_at"] = time.Now().UTC()
	}
	res := dbc.DB(r.db).
		Model(&types.ChatThread{}).
		Where("id = ? AND user_id = ?", id, userID).
		Updates(updates)
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected > 0, nil
}

func (r *chatThreadRepo) DeleteOwned(dbc dbctx.Context, userID, id uuid.UUID) (bool, error) {
	if userID == uuid.Nil || id == uuid.Nil {
		return false, nil
	}
	res := dbc.DB(r.db).
		Where("id = ? AND user_id = ?", id, userID).
		Delete(&types.ChatThread{})
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected > 0, nil
}

func orderedMessages(db *gorm.DB) *gorm.DB {
	return db.Order("seq ASC")
}
