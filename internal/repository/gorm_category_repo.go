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

// GormCategoryRepository implements CategoryRepository using GORM.
type GormCategoryRepository struct {
	db *gorm.DB
}

func NewGormCategoryRepository(db *gorm.DB) *GormCategoryRepository {
	return &GormCategoryRepository{db: db}
}

func (r *GormCategoryRepository) FindByName(ctx context.Context, name string) (*domain.Category, error) {
	var model domain.CategoryModel
	err := r.db.WithContext(ctx).Where("name = ?", name).First(&model).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, fmt.Errorf("%w: category %q", domain.ErrNotFound, name)
		}
		l := log.Ctx(ctx)
		l.Error().Err(err).Str("category", name).Msg("failed to find category")
		return nil, err
	}
	return &domain.Category{ID: model.ID, Name: model.Name}, nil
}

// NamesByIDs returns id -> name for every id that exists. Missing ids are
// simply absent from the map.
func (r *GormCategoryRepository) NamesByIDs(ctx context.Context, ids []uint) (map[uint]string, error) {
	names := make(map[uint]string, len(ids))
	if len(ids) == 0 {
		return names, nil
	}

	var models []domain.CategoryModel
	if err := r.db.WithContext(ctx).Where("id IN ?", ids).Find(&models).Error; err != nil {
		l := log.Ctx(ctx)
		l.Error().Err(err).Msg("failed to load categories")
		return nil, err
	}
	for _, m := range models {
		names[m.ID] = m.Name
	}
	return names, nil
}

func (r *GormCategoryRepository) EnsureSeeded(ctx context.Context, names []string) error {
	if len(names) == 0 {
		return nil
	}
	models := make([]domain.CategoryModel, 0, len(names))
	for _, n := range names {
		models = append(models, domain.CategoryModel{Name: n})
	}
	err := r.db.WithContext(ctx).
		Clauses(clause.OnConflict{Columns: []clause.Column{{Name: "name"}}, DoNothing: true}).
		Create(&models).Error
	if err != nil {
		return fmt.Errorf("failed to seed categories: %w", err)
	}
	return nil
}
