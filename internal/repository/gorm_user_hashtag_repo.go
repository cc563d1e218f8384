package repository

import (
	"context"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/weiawesome/babble-live/internal/domain"
	"github.com/weiawesome/babble-live/pkg/log"
)

// GormUserHashtagRepository implements UserHashtagRepository using GORM.
type GormUserHashtagRepository struct {
	db *gorm.DB
}

func NewGormUserHashtagRepository(db *gorm.DB) *GormUserHashtagRepository {
	return &GormUserHashtagRepository{db: db}
}

// Add is idempotent.
func (r *GormUserHashtagRepository) Add(ctx context.Context, userID string, tagID uint) error {
	err := r.db.WithContext(ctx).
		Clauses(clause.OnConflict{DoNothing: true}).
		Create(&domain.UserHashtagModel{UserID: userID, TagID: tagID}).Error
	if err != nil {
		l := log.Ctx(ctx)
		l.Error().Err(err).Str(log.FieldUserID, userID).Msg("failed to add user hashtag")
	}
	return err
}

// Remove is a no-op when the link does not exist.
func (r *GormUserHashtagRepository) Remove(ctx context.Context, userID string, tagID uint) error {
	err := r.db.WithContext(ctx).
		Where("user_id = ? AND tag_id = ?", userID, tagID).
		Delete(&domain.UserHashtagModel{}).Error
	if err != nil {
		l := log.Ctx(ctx)
		l.Error().Err(err).Str(log.FieldUserID, userID).Msg("failed to remove user hashtag")
	}
	return err
}

func (r *GormUserHashtagRepository) ListNames(ctx context.Context, userID string) ([]string, error) {
	var names []string
	err := r.db.WithContext(ctx).
		Table("user_hashtags AS uh").
		Joins("JOIN tags AS t ON t.id = uh.tag_id").
		Where("uh.user_id = ?", userID).
		Order("t.name").
		Pluck("t.name", &names).Error
	if err != nil {
		l := log.Ctx(ctx)
		l.Error().Err(err).Str(log.FieldUserID, userID).Msg("failed to list user hashtags")
		return nil, err
	}
	return names, nil
}
