package chat

import (
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"gorm.io/gorm"

	types "github.com/AWE-Awareness-App/MEDI-chatbot/internal/domain/chat"
	"github.com/AWE-Awareness-App/MEDI-chatbot/internal/platform/dbctx"
	"github.com/AWE-Awareness-App/MEDI-chatbot/internal/platform/logger"
)

type UserRepo interface {
	GetOrCreate(dbc dbctx.Context, source, externalID string) (*types.User, error)
	GetByExternalID(dbc dbctx.Context, externalID string) (*types.User, error)
	GetByID(dbc dbctx.Context, id uuid.UUID) (*types.User, error)
}

type userRepo struct {
	db  *gorm.DB
	log *logger.Logger
}

func NewUserRepo(db *gorm.DB, log *logger.Logger) UserRepo {
	return &userRepo{db: db, log: log.With("repo", "UserRepo")}
}

// GetByExternalID returns nil, nil when no user exists.
func (r *userRepo) GetByExternalID(dbc dbctx.Context, externalID string) (*types.User, error) {
	externalID = strings.TrimSpace(externalID)
	if externalID == "" {
		return nil, fmt.Errorf("missing external_id")
	}
	var out types.User
	err := dbc.DB(r.db).Where("external_id = ?", externalID).Take(&out).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &out, nil
}

func (r *userRepo) GetByID(dbc dbctx.Context, id uuid.UUID) (*types.User, error) {
	if id == uuid.Nil {
		return nil, fmt.Errorf("missing id")
	}
	var out types.User
	err := dbc.DB(r.db).Where("id = ?", id).Take(&out).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &out, nil
}

// GetOrCreate is keyed by external id; source is recorded only on creation.
func (r *userRepo) GetOrCreate(dbc dbctx.Context, source, externalID string) (*types.User, error) {
	existing, err := r.GetByExternalID(dbc, externalID)
	if err != nil || existing != nil {
		return existing, err
	}

	source = strings.TrimSpace(source)
	if source == "" {
		source = types.SourceWhatsApp
	}
	u := &types.User{Source: source, ExternalID: strings.TrimSpace(externalID)}
	if err := dbc.DB(r.db).Create(u).Error; err != nil {
		if isUniqueViolation(err) {
			r.log.Debug("User created concurrently; re-reading", "external_id", externalID)
			return r.GetByExternalID(dbc, externalID)
		}
		return nil, err
	}
	return u, nil
}
