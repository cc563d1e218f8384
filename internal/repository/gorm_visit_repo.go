package repository

import (
	"context"
	"time"

	"gorm.io/gorm"

	"github.com/weiawesome/babble-live/internal/domain"
	"github.com/weiawesome/babble-live/pkg/log"
)

const defaultHistoryLimit = 50

// GormVisitRepository implements VisitRepository using GORM.
type GormVisitRepository struct {
	db *gorm.DB
}

func NewGormVisitRepository(db *gorm.DB) *GormVisitRepository {
	return &GormVisitRepository{db: db}
}

func (r *GormVisitRepository) Record(ctx context.Context, userID, roomID string, at time.Time) error {
	err := r.db.WithContext(ctx).Create(&domain.RoomVisitModel{
		UserID:    userID,
		RoomID:    roomID,
		VisitedAt: at,
	}).Error
	if err != nil {
		l := log.Ctx(ctx)
		l.Error().Err(err).Str(log.FieldUserID, userID).Str(log.FieldRoomID, roomID).Msg("failed to record visit")
	}
	return err
}

// ListByUser returns the user's visits newest first.
func (r *GormVisitRepository) ListByUser(ctx context.Context, userID string, limit int) ([]domain.RoomVisit, error) {
	if limit <= 0 {
		limit = defaultHistoryLimit
	}

	var visits []domain.RoomVisit
	err := r.db.WithContext(ctx).
		Table("room_visits AS v").
		Select("v.room_id, r.title, r.is_active, v.visited_at").
		Joins("JOIN rooms AS r ON r.id = v.room_id").
		Where("v.user_id = ?", userID).
		Order("v.visited_at DESC").
		Order("v.id DESC").
		Limit(limit).
		Scan(&visits).Error
	if err != nil {
		l := log.Ctx(ctx)
		l.Error().Err(err).Str(log.FieldUserID, userID).Msg("failed to list visits")
		return nil, err
	}
	return visits, nil
}
