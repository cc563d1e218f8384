package repository

import (
	"context"
	"errors"
	"fmt"

	"gorm.io/gorm"

	"github.com/weiawesome/babble-live/internal/domain"
	"github.com/weiawesome/babble-live/pkg/log"
)

// GormUserRepository reads the users table written by the account service.
type GormUserRepository struct {
	db *gorm.DB
}

func NewGormUserRepository(db *gorm.DB) *GormUserRepository {
	return &GormUserRepository{db: db}
}

func (r *GormUserRepository) ResolveUserID(ctx context.Context, email string) (string, error) {
	var model domain.UserModel
	err := r.db.WithContext(ctx).Select("id").Where("email = ?", email).First(&model).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return "", fmt.Errorf("%w: user %q", domain.ErrNotFound, email)
		}
		l := log.Ctx(ctx)
		l.Error().Err(err).Msg("failed to resolve user by email")
		return "", err
	}
	return model.ID, nil
}

func (r *GormUserRepository) UserExists(ctx context.Context, userID string) (bool, error) {
	var count int64
	err := r.db.WithContext(ctx).Model(&domain.UserModel{}).Where("id = ?", userID).Count(&count).Error
	if err != nil {
		l := log.Ctx(ctx)
		l.Error().Err(err).Str(log.FieldUserID, userID).Msg("failed to check user")
		return false, err
	}
	return count > 0, nil
}

func (r *GormUserRepository) GetByID(ctx context.Context, userID string) (*domain.User, error) {
	var model domain.UserModel
	err := r.db.WithContext(ctx).First(&model, "id = ?", userID).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, fmt.Errorf("%w: user %s", domain.ErrNotFound, userID)
		}
		return nil, err
	}
	return &domain.User{ID: model.ID, Email: model.Email, Username: model.Username}, nil
}
