package repository

import (
	"context"
	"database/sql"
	"errors"
	"strings"
	"time"

	"gorm.io/gorm"

	"parking-marketplace-server/models"
)

// ErrBookingConflict is returned when a write would double-book a space,
// whether caught by the in-transaction re-check or by the exclusion
// constraint backstop.
var ErrBookingConflict = errors.New("booking range conflicts with an existing booking")

// BookingRepo persists bookings. The availability fast-fail in the service
// layer is advisory; the SERIALIZABLE transactions here plus the
// bookings_no_overlap exclusion constraint are the correctness guarantee.
type BookingRepo struct {
	db *gorm.DB
}

func NewBookingRepo(db *gorm.DB) *BookingRepo {
	return &BookingRepo{db: db}
}

// FindBlocking returns the space's bookings in blocking statuses, optionally
// excluding one booking id (self-exclusion for extensions)
func (r *BookingRepo) FindBlocking(ctx context.Context, spaceID uint, excludeBookingID uint) ([]models.Booking, error) {
	var bookings []models.Booking
	q := r.db.WithContext(ctx).
		Where("space_id = ? AND status IN ?", spaceID, models.BlockingStatuses())
	if excludeBookingID != 0 {
		q = q.Where("id <> ?", excludeBookingID)
	}
	if err := q.Find(&bookings).Error; err != nil {
		return nil, err
	}
	return bookings, nil
}

// GetByID loads a booking with its space and user
func (r *BookingRepo) GetByID(ctx context.Context, id uint) (*models.Booking, error) {
	var booking models.Booking
	if err := r.db.WithContext(ctx).
		Preload("Space").
		Preload("User").
		First(&booking, id).Error; err != nil {
		return nil, err
	}
	return &booking, nil
}

// CreateIfAvailable inserts the booking inside a SERIALIZABLE transaction that
// re-runs the overlap query against blocking statuses first, so the check and
// the write cannot interleave with a concurrent confirm.
func (r *BookingRepo) CreateIfAvailable(ctx context.Context, b *models.Booking) error {
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var count int64
		if err := tx.Model(&models.Booking{}).
			Where("space_id = ? AND status IN ? AND start_time < ? AND ? < end_time",
				b.SpaceID, models.BlockingStatuses(), b.EndTime, b.StartTime).
			Count(&count).Error; err != nil {
			return err
		}
		if count > 0 {
			return ErrBookingConflict
		}
		return tx.Create(b).Error
	}, &sql.TxOptions{Isolation: sql.LevelSerializable})

	return translateConflict(err)
}

// SaveStatusChecked persists the booking and, when the new status is a
// blocking one, re-verifies inside the same transaction that no other blocking
// booking overlaps. This guards the pending -> confirmed flip: two overlapping
// pending bookings can both exist, but only one can confirm.
func (r *BookingRepo) SaveStatusChecked(ctx context.Context, b *models.Booking) error {
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if b.Status.IsBlocking() {
			var count int64
			if err := tx.Model(&models.Booking{}).
				Where("space_id = ? AND id <> ? AND status IN ? AND start_time < ? AND ? < end_time",
					b.SpaceID, b.ID, models.BlockingStatuses(), b.EndTime, b.StartTime).
				Count(&count).Error; err != nil {
				return err
			}
			if count > 0 {
				return ErrBookingConflict
			}
		}
		return tx.Save(b).Error
	}, &sql.TxOptions{Isolation: sql.LevelSerializable})

	return translateConflict(err)
}

// Save persists a booking without an availability re-check, for transitions
// that release a slot (cancel, complete) or patch details
func (r *BookingRepo) Save(ctx context.Context, b *models.Booking) error {
	return r.db.WithContext(ctx).Save(b).Error
}

// ExtendIfAvailable moves the booking's end time and adds the incremental
// cost, re-checking the increment range against other blocking bookings in
// the same transaction.
func (r *BookingRepo) ExtendIfAvailable(ctx context.Context, b *models.Booking, newEnd time.Time, addedCostPence int64) error {
	oldEnd := b.EndTime
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var count int64
		if err := tx.Model(&models.Booking{}).
			Where("space_id = ? AND id <> ? AND status IN ? AND start_time < ? AND ? < end_time",
				b.SpaceID, b.ID, models.BlockingStatuses(), newEnd, oldEnd).
			Count(&count).Error; err != nil {
			return err
		}
		if count > 0 {
			return ErrBookingConflict
		}
		return tx.Model(b).Updates(map[string]interface{}{
			"end_time":         newEnd,
			"total_cost_pence": b.TotalCostPence + addedCostPence,
		}).Error
	}, &sql.TxOptions{Isolation: sql.LevelSerializable})

	if err == nil {
		b.EndTime = newEnd
		b.TotalCostPence += addedCostPence
	}
	return translateConflict(err)
}

// RestoreRange reverts an extension after a failed incremental charge
func (r *BookingRepo) RestoreRange(ctx context.Context, b *models.Booking, end time.Time, totalCostPence int64) error {
	err := r.db.WithContext(ctx).Model(b).Updates(map[string]interface{}{
		"end_time":         end,
		"total_cost_pence": totalCostPence,
	}).Error
	if err == nil {
		b.EndTime = end
		b.TotalCostPence = totalCostPence
	}
	return err
}

// FindByUser lists a user's bookings, newest first
func (r *BookingRepo) FindByUser(ctx context.Context, userID uint) ([]models.Booking, error) {
	var bookings []models.Booking
	err := r.db.WithContext(ctx).
		Preload("Space").
		Where("user_id = ?", userID).
		Order("start_time DESC").
		Find(&bookings).Error
	return bookings, err
}

// translateConflict maps exclusion-constraint and serialization failures onto
// ErrBookingConflict so callers see one conflict error
func translateConflict(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, ErrBookingConflict) {
		return ErrBookingConflict
	}
	msg := err.Error()
	if strings.Contains(msg, "bookings_no_overlap") ||
		strings.Contains(msg, "could not serialize access") {
		return ErrBookingConflict
	}
	return err
}
