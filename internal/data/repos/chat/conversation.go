package chat

import (
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	types "github.com/AWE-Awareness-App/MEDI-chatbot/internal/domain/chat"
	"github.com/AWE-Awareness-App/MEDI-chatbot/internal/platform/dbctx"
	"github.com/AWE-Awareness-App/MEDI-chatbot/internal/platform/logger"
)

type ConversationRepo interface {
	Create(dbc dbctx.Context, userID uuid.UUID) (*types.Conversation, error)
	GetByID(dbc dbctx.Context, id uuid.UUID) (*types.Conversation, error)
	GetLatestActive(dbc dbctx.Context, userID uuid.UUID) (*types.Conversation, error)
	GetOrCreateActive(dbc dbctx.Context, userID uuid.UUID) (*types.Conversation, error)
	Close(dbc dbctx.Context, id uuid.UUID) error
	UpdateSummary(dbc dbctx.Context, id uuid.UUID, summary string, at time.Time) error
	Now() time.Time
}

type conversationRepo struct {
	db  *gorm.DB
	log *logger.Logger
}

func NewConversationRepo(db *gorm.DB, log *logger.Logger) ConversationRepo {
	return &conversationRepo{db: db, log: log.With("repo", "ConversationRepo")}
}

// Now uses the database's clock source so summary cutoffs compare cleanly with created_at.
func (r *conversationRepo) Now() time.Time {
	if r.db != nil && r.db.Config != nil && r.db.NowFunc != nil {
		return r.db.NowFunc()
	}
	return time.Now().UTC()
}

func (r *conversationRepo) Create(dbc dbctx.Context, userID uuid.UUID) (*types.Conversation, error) {
	if userID == uuid.Nil {
		return nil, fmt.Errorf("missing user_id")
	}
	c := &types.Conversation{UserID: userID, Status: types.StatusActive}
	if err := dbc.DB(r.db).Create(c).Error; err != nil {
		return nil, err
	}
	return c, nil
}

func (r *conversationRepo) GetByID(dbc dbctx.Context, id uuid.UUID) (*types.Conversation, error) {
	if id == uuid.Nil {
		return nil, fmt.Errorf("missing id")
	}
	var out types.Conversation
	err := dbc.DB(r.db).Where("id = ?", id).Take(&out).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &out, nil
}

// GetLatestActive returns the most recently created active conversation, or nil, nil.
// Older active rows are left untouched.
func (r *conversationRepo) GetLatestActive(dbc dbctx.Context, userID uuid.UUID) (*types.Conversation, error) {
	if userID == uuid.Nil {
		return nil, fmt.Errorf("missing user_id")
	}
	var out types.Conversation
	err := dbc.DB(r.db).
		Where("user_id = ? AND status = ?", userID, types.StatusActive).
		Order("created_at DESC").
		Take(&out).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &out, nil
}

func (r *conversationRepo) GetOrCreateActive(dbc dbctx.Context, userID uuid.UUID) (*types.Conversation, error) {
	existing, err := r.GetLatestActive(dbc, userID)
	if err != nil || existing != nil {
		return existing, err
	}
	return r.Create(dbc, userID)
}

func (r *conversationRepo) Close(dbc dbctx.Context, id uuid.UUID) error {
	if id == uuid.Nil {
		return fmt.Errorf("missing id")
	}
	return dbc.DB(r.db).
		Model(&types.Conversation{}).
		Where("id = ?", id).
		Update("status", types.StatusClosed).Error
}

func (r *conversationRepo) UpdateSummary(dbc dbctx.Context, id uuid.UUID, summary string, at time.Time) error {
	if id == uuid.Nil {
		return fmt.Errorf("missing id")
	}
	return dbc.DB(r.db).
		Model(&types.Conversation{}).
		Where("id = ?", id).
		Updates(map[string]interface{}{
			"summary":            summary,
			"summary_updated_at": at,
		}).Error
}
