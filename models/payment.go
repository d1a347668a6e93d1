package models

import (
	"time"
)

type PaymentStatus string

const (
	PaymentStatusPending    PaymentStatus = "pending"
	PaymentStatusProcessing PaymentStatus = "processing"
	PaymentStatusSucceeded  PaymentStatus = "succeeded"
	PaymentStatusFailed     PaymentStatus = "failed"
	PaymentStatusCancelled  PaymentStatus = "cancelled"
	PaymentStatusRefunded   PaymentStatus = "refunded"
)

// Payment represents one charge attempt against the payment processor: the
// initial charge for a booking plus one row per extension increment. The
// processor's transaction id is the idempotency key for reconciliation.
type Payment struct {
	ID        uint    `json:"id" gorm:"primaryKey"`
	BookingID uint    `json:"booking_id" gorm:"not null;index"`
	Booking   Booking `json:"booking,omitempty" gorm:"foreignKey:BookingID"`

	AmountPence int64         `json:"amount_pence" gorm:"not null"`
	Currency    string        `json:"currency" gorm:"size:3;not null"`
	Status      PaymentStatus `json:"status" gorm:"type:varchar(20);not null;default:'pending';check:status IN ('pending','processing','succeeded','failed','cancelled','refunded')"`

	// External transaction identifier assigned by the processor, recorded as
	// soon as the processor acknowledges the charge
	ProviderRef string `json:"provider_ref" gorm:"size:255;uniqueIndex;not null"`

	// Refund bookkeeping; RefundPence <= AmountPence when set. RefundPending
	// marks a best-effort refund that failed at the processor and is retried
	// out of band by the refund retry job.
	RefundPence   *int64  `json:"refund_pence"`
	RefundRef     *string `json:"refund_ref" gorm:"size:255"`
	RefundReason  *string `json:"refund_reason" gorm:"size:255"`
	RefundPending bool    `json:"refund_pending" gorm:"default:false;index"`

	CardBrand     *string `json:"card_brand" gorm:"size:30"`
	CardLast4     *string `json:"card_last4" gorm:"size:4"`
	FailureReason *string `json:"failure_reason" gorm:"size:500"`

	// Set once a confirmation email has gone out so webhook redelivery does
	// not trigger a duplicate (best-effort de-duplication)
	ConfirmationSentAt *time.Time `json:"confirmation_sent_at"`

	CreatedAt time.Time `json:"created_at" gorm:"autoCreateTime"`
	UpdatedAt time.Time `json:"updated_at" gorm:"autoUpdateTime"`
}

// TableName specifies the table name for the Payment model
func (Payment) TableName() string {
	return "payments"
}

// RefundValid checks the refund amount never exceeds the charged amount
func (p *Payment) RefundValid() bool {
	return p.RefundPence == nil || (*p.RefundPence >= 0 && *p.RefundPence <= p.AmountPence)
}

// IsFullyRefunded reports whether the whole charged amount has been refunded
func (p *Payment) IsFullyRefunded() bool {
	return p.RefundPence != nil && *p.RefundPence == p.AmountPence
}
