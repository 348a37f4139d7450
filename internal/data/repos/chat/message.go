package chat

import (
	"fmt"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	types "github.com/AWE-Awareness-App/MEDI-chatbot/internal/domain/chat"
	"github.com/AWE-Awareness-App/MEDI-chatbot/internal/platform/dbctx"
	"github.com/AWE-Awareness-App/MEDI-chatbot/internal/platform/logger"
)

const maxPageSize = 200

type MessageRepo interface {
	Create(dbc dbctx.Context, conversationID uuid.UUID, role, content string) (*types.Message, error)
	ListRecent(dbc dbctx.Context, conversationID uuid.UUID, limit int) ([]*types.Message, error)
	ListPage(dbc dbctx.Context, conversationID uuid.UUID, limit, offset int) ([]*types.Message, error)
	ListSince(dbc dbctx.Context, conversationID uuid.UUID, since *time.Time, limit int) ([]*types.Message, error)
	CountByRoleSince(dbc dbctx.Context, conversationID uuid.UUID, role string, since *time.Time) (int64, error)
}

type messageRepo struct {
	db  *gorm.DB
	log *logger.Logger
}

func NewMessageRepo(db *gorm.DB, log *logger.Logger) MessageRepo {
	return &messageRepo{db: db, log: log.With("repo", "MessageRepo")}
}

func (r *messageRepo) Create(dbc dbctx.Context, conversationID uuid.UUID, role, content string) (*types.Message, error) {
	if conversationID == uuid.Nil {
		return nil, fmt.Errorf("missing conversation_id")
	}
	if role != types.RoleUser && role != types.RoleAssistant {
		return nil, fmt.Errorf("invalid role %q", role)
	}
	m := &types.Message{ConversationID: conversationID, Role: role, Content: content}
	if err := dbc.DB(r.db).Create(m).Error; err != nil {
		return nil, err
	}
	return m, nil
}

// ListRecent returns the last limit messages, oldest first.
func (r *messageRepo) ListRecent(dbc dbctx.Context, conversationID uuid.UUID, limit int) ([]*types.Message, error) {
	if conversationID == uuid.Nil {
		return nil, fmt.Errorf("missing conversation_id")
	}
	if limit <= 0 {
		return []*types.Message{}, nil
	}
	var out []*types.Message
	if err := dbc.DB(r.db).
		Where("conversation_id = ?", conversationID).
		Order("created_at DESC").
		Limit(limit).
		Find(&out).Error; err != nil {
		return nil, err
	}
	for i, j := 0, len(out)-1; i < j; i, j = i+1, j-1 {
		out[i], out[j] = out[j], out[i]
	}
	return out, nil
}

// ListPage returns messages oldest first with limit/offset paging.
func (r *messageRepo) ListPage(dbc dbctx.Context, conversationID uuid.UUID, limit, offset int) ([]*types.Message, error) {
	if conversationID == uuid.Nil {
		return nil, fmt.Errorf("missing conversation_id")
	}
	if limit <= 0 || limit > maxPageSize {
		limit = 50
	}
	if offset < 0 {
		offset = 0
	}
	var out []*types.Message
	if err := dbc.DB(r.db).
		Where("conversation_id = ?", conversationID).
		Order("created_at ASC").
		Offset(offset).
		Limit(limit).
		Find(&out).Error; err != nil {
		return nil, err
	}
	return out, nil
}

// ListSince returns messages created strictly after since (all when nil), oldest first.
func (r *messageRepo) ListSince(dbc dbctx.Context, conversationID uuid.UUID, since *time.Time, limit int) ([]*types.Message, error) {
	if conversationID == uuid.Nil {
		return nil, fmt.Errorf("missing conversation_id")
	}
	q := dbc.DB(r.db).Where("conversation_id = ?", conversationID)
	if since != nil {
		q = q.Where("created_at > ?", *since)
	}
	if limit > 0 {
		q = q.Limit(limit)
	}
	var out []*types.Message
	if err := q.Order("created_at ASC").Find(&out).Error; err != nil {
		return nil, err
	}
	return out, nil
}

func (r *messageRepo) CountByRoleSince(dbc dbctx.Context, conversationID uuid.UUID, role string, since *time.Time) (int64, error) {
	if conversationID == uuid.Nil {
		return 0, fmt.Errorf("missing conversation_id")
	}
	q := dbc.DB(r.db).
		Model(&types.Message{}).
		Where("conversation_id = ? AND role = ?", conversationID, role)
	if since != nil {
		q = q.Where("created_at > ?", *since)
	}
	var n int64
	if err := q.Count(&n).Error; err != nil {
		return 0, err
	}
	return n, nil
}
