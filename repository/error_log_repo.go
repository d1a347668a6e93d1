package repository

import (
	"context"
	"time"

	"gorm.io/gorm"

	"parking-marketplace-server/models"
)

// ErrorLogRepo persists the admin-reviewable error telemetry
type ErrorLogRepo struct {
	db *gorm.DB
}

func NewErrorLogRepo(db *gorm.DB) *ErrorLogRepo {
	return &ErrorLogRepo{db: db}
}

func (r *ErrorLogRepo) Record(ctx context.Context, entry *models.ErrorLog) error {
	return r.db.WithContext(ctx).Create(entry).Error
}

// List returns telemetry entries newest first, optionally only unresolved ones
func (r *ErrorLogRepo) List(ctx context.Context, unresolvedOnly bool, limit int) ([]models.ErrorLog, error) {
	var entries []models.ErrorLog
	q := r.db.WithContext(ctx).Order("created_at DESC").Limit(limit)
	if unresolvedOnly {
		q = q.Where("resolved = ?", false)
	}
	err := q.Find(&entries).Error
	return entries, err
}

// Resolve marks an entry as reviewed
func (r *ErrorLogRepo) Resolve(ctx context.Context, id uint) error {
	now := time.Now()
	return r.db.WithContext(ctx).Model(&models.ErrorLog{}).
		Where("id = ?", id).
		Updates(map[string]interface{}{"resolved": true, "resolved_at": &now}).Error
}
