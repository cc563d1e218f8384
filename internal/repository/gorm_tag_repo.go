package repository

import (
	"context"
	"errors"
	"fmt"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/weiawesome/babble-live/internal/domain"
	"github.com/weiawesome/babble-live/pkg/log"
)

// GormTagRepository implements TagRepository using GORM.
type GormTagRepository struct {
	db *gorm.DB
}

func NewGormTagRepository(db *gorm.DB) *GormTagRepository {
	return &GormTagRepository{db: db}
}

func (r *GormTagRepository) FindByName(ctx context.Context, name string) (*domain.Tag, error) {
	var model domain.TagModel
	err := r.db.WithContext(ctx).Where("name = ?", name).First(&model).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, fmt.Errorf("%w: tag %q", domain.ErrNotFound, name)
		}
		l := log.Ctx(ctx)
		l.Error().Err(err).Str(log.FieldTag, name).Msg("failed to find tag")
		return nil, err
	}
	tag := model.ToDomain()
	return &tag, nil
}

// CreateIfAbsent relies on the unique index on name: the insert is a no-op
// for every caller but the first, and all of them read back the winner.
func (r *GormTagRepository) CreateIfAbsent(ctx context.Context, name string) (*domain.Tag, error) {
	model := domain.TagModel{Name: name}
	err := r.db.WithContext(ctx).
		Clauses(clause.OnConflict{Columns: []clause.Column{{Name: "name"}}, DoNothing: true}).
		Create(&model).Error
	if err != nil {
		l := log.Ctx(ctx)
		l.Error().Err(err).Str(log.FieldTag, name).Msg("failed to insert tag")
		return nil, err
	}
	return r.FindByName(ctx, name)
}

func (r *GormTagRepository) NamesForRoom(ctx context.Context, roomID string) ([]string, error) {
	var names []string
	err := r.db.WithContext(ctx).
		Table("room_hashtags AS rh").
		Joins("JOIN tags AS t ON t.id = rh.tag_id").
		Where("rh.room_id = ?", roomID).
		Order("rh.position").
		Pluck("t.name", &names).Error
	if err != nil {
		l := log.Ctx(ctx)
		l.Error().Err(err).Str(log.FieldRoomID, roomID).Msg("failed to load room hashtags")
		return nil, err
	}
	return names, nil
}
