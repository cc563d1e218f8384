package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"gorm.io/gorm"

	"github.com/weiawesome/babble-live/internal/domain"
	"github.com/weiawesome/babble-live/pkg/database"
	"github.com/weiawesome/babble-live/pkg/log"
)

// GormRoomRepository implements RoomRepository using GORM.
type GormRoomRepository struct {
	db *gorm.DB
}

// NewGormRoomRepository creates a new GORM-based room repository.
func NewGormRoomRepository(db *gorm.DB) *GormRoomRepository {
	return &GormRoomRepository{db: db}
}

func byPosition(db *gorm.DB) *gorm.DB {
	return db.Order("position")
}

// Create inserts the room and links all of its hashtags in one transaction.
// Either every link is written or the room does not exist.
func (r *GormRoomRepository) Create(ctx context.Context, room *domain.Room) error {
	l := log.Ctx(ctx)
	model := domain.RoomToModel(room)

	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var taken int64
		if err := tx.Model(&domain.RoomModel{}).Where("active_title = ?", room.Title).Count(&taken).Error; err != nil {
			return err
		}
		if taken > 0 {
			return ErrTitleTaken
		}

		if err := tx.Omit("Hashtags").Create(model).Error; err != nil {
			return err
		}
		if len(model.Hashtags) > 0 {
			if err := tx.Create(&model.Hashtags).Error; err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		if errors.Is(err, ErrTitleTaken) {
			return err
		}
		if database.IsUniqueViolation(err) {
			return fmt.Errorf("%w: room %q: %v", domain.ErrConflict, room.Title, err)
		}
		l.Error().Err(err).Str(log.FieldRoomID, room.ID).Msg("failed to create room in db")
		return err
	}

	room.CreatedAt = model.CreatedAt
	l.Debug().Str(log.FieldRoomID, room.ID).Int("hashtags", len(model.Hashtags)).Msg("room created in db")
	return nil
}

func (r *GormRoomRepository) getOne(ctx context.Context, key, query string, args ...interface{}) (*domain.Room, error) {
	var model domain.RoomModel
	err := r.db.WithContext(ctx).
		Preload("Hashtags", byPosition).
		Where(query, args...).
		First(&model).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, fmt.Errorf("%w: room %s", domain.ErrNotFound, key)
		}
		l := log.Ctx(ctx)
		l.Error().Err(err).Str("lookup", key).Msg("failed to get room")
		return nil, err
	}
	return model.ToDomain(), nil
}

// GetByID retrieves a room by ID, active or not.
func (r *GormRoomRepository) GetByID(ctx context.Context, id string) (*domain.Room, error) {
	return r.getOne(ctx, id, "id = ?", id)
}

// GetByActiveTitle uses the unique active_title index.
func (r *GormRoomRepository) GetByActiveTitle(ctx context.Context, title string) (*domain.Room, error) {
	return r.getOne(ctx, fmt.Sprintf("%q", title), "active_title = ?", title)
}

func (r *GormRoomRepository) GetByJoinCode(ctx context.Context, code string) (*domain.Room, error) {
	return r.getOne(ctx, "code "+code, "join_code = ?", code)
}

func (r *GormRoomRepository) list(ctx context.Context, query string, args ...interface{}) ([]domain.Room, error) {
	var models []domain.RoomModel
	q := r.db.WithContext(ctx).Preload("Hashtags", byPosition)
	if query != "" {
		q = q.Where(query, args...)
	}
	if err := q.Order("created_at DESC").Order("id").Find(&models).Error; err != nil {
		l := log.Ctx(ctx)
		l.Error().Err(err).Msg("failed to list rooms from db")
		return nil, err
	}

	rooms := make([]domain.Room, len(models))
	for i := range models {
		rooms[i] = *models[i].ToDomain()
	}
	return rooms, nil
}

// ListActive returns active rooms, newest first.
func (r *GormRoomRepository) ListActive(ctx context.Context) ([]domain.Room, error) {
	return r.list(ctx, "is_active = ?", true)
}

// ListAll returns every room including closed ones, newest first.
func (r *GormRoomRepository) ListAll(ctx context.Context) ([]domain.Room, error) {
	return r.list(ctx, "")
}

func (r *GormRoomRepository) ListByHost(ctx context.Context, hostUserID string) ([]domain.Room, error) {
	return r.list(ctx, "host_user_id = ?", hostUserID)
}

// Close deactivates a room and releases its title for reuse.
func (r *GormRoomRepository) Close(ctx context.Context, id string, closedAt time.Time) error {
	l := log.Ctx(ctx)

	result := r.db.WithContext(ctx).Model(&domain.RoomModel{}).
		Where("id = ? AND is_active = ?", id, true).
		Updates(map[string]interface{}{
			"is_active":    false,
			"active_title": gorm.Expr("NULL"),
			"closed_at":    closedAt,
		})
	if result.Error != nil {
		l.Error().Err(result.Error).Str(log.FieldRoomID, id).Msg("failed to close room in db")
		return result.Error
	}
	if result.RowsAffected == 0 {
		return fmt.Errorf("%w: active room %s", domain.ErrNotFound, id)
	}
	l.Debug().Str(log.FieldRoomID, id).Msg("room closed in db")
	return nil
}
