package repository

import (
	"context"

	"gorm.io/gorm"

	"parking-marketplace-server/models"
)

// PaymentRepo persists payment rows keyed by the processor's transaction id
type PaymentRepo struct {
	db *gorm.DB
}

func NewPaymentRepo(db *gorm.DB) *PaymentRepo {
	return &PaymentRepo{db: db}
}

func (r *PaymentRepo) Create(ctx context.Context, p *models.Payment) error {
	return r.db.WithContext(ctx).Create(p).Error
}

func (r *PaymentRepo) Save(ctx context.Context, p *models.Payment) error {
	return r.db.WithContext(ctx).Save(p).Error
}

// GetByID loads a payment with its booking
func (r *PaymentRepo) GetByID(ctx context.Context, id uint) (*models.Payment, error) {
	var payment models.Payment
	if err := r.db.WithContext(ctx).Preload("Booking").First(&payment, id).Error; err != nil {
		return nil, err
	}
	return &payment, nil
}

// GetByProviderRef looks a payment up by the external transaction identifier
func (r *PaymentRepo) GetByProviderRef(ctx context.Context, ref string) (*models.Payment, error) {
	var payment models.Payment
	if err := r.db.WithContext(ctx).
		Preload("Booking").
		Preload("Booking.User").
		Where("provider_ref = ?", ref).
		First(&payment).Error; err != nil {
		return nil, err
	}
	return &payment, nil
}

// FindByBooking lists a booking's payments, oldest first
func (r *PaymentRepo) FindByBooking(ctx context.Context, bookingID uint) ([]models.Payment, error) {
	var payments []models.Payment
	err := r.db.WithContext(ctx).
		Where("booking_id = ?", bookingID).
		Order("created_at ASC").
		Find(&payments).Error
	return payments, err
}

// FindPendingRefunds returns payments whose best-effort refund failed and is
// awaiting the out-of-band retry job
func (r *PaymentRepo) FindPendingRefunds(ctx context.Context) ([]models.Payment, error) {
	var payments []models.Payment
	err := r.db.WithContext(ctx).
		Where("refund_pending = ?", true).
		Order("updated_at ASC").
		Limit(100).
		Find(&payments).Error
	return payments, err
}
