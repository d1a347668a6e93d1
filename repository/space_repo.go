package repository

import (
	"context"
	"time"

	"gorm.io/gorm"

	"parking-marketplace-server/models"
)

// SpaceRepo persists parking spaces and their weekly availability slots
type SpaceRepo struct {
	db *gorm.DB
}

func NewSpaceRepo(db *gorm.DB) *SpaceRepo {
	return &SpaceRepo{db: db}
}

// GetByID loads a space with its owner and slots
func (r *SpaceRepo) GetByID(ctx context.Context, id uint) (*models.ParkingSpace, error) {
	var space models.ParkingSpace
	if err := r.db.WithContext(ctx).
		Preload("Owner").
		Preload("Slots").
		First(&space, id).Error; err != nil {
		return nil, err
	}
	return &space, nil
}

// HasFutureBlocking reports whether the space holds any confirmed/active
// booking ending after the given instant. Such spaces can only be
// deactivated, never removed.
func (r *SpaceRepo) HasFutureBlocking(ctx context.Context, spaceID uint, after time.Time) (bool, error) {
	var count int64
	err := r.db.WithContext(ctx).Model(&models.Booking{}).
		Where("space_id = ? AND status IN ? AND end_time > ?", spaceID, models.BlockingStatuses(), after).
		Count(&count).Error
	return count > 0, err
}
