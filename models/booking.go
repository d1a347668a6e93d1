package models

import (
	"fmt"
	"strings"
	"time"
)

type BookingStatus string

const (
	BookingStatusPending   BookingStatus = "pending"
	BookingStatusConfirmed BookingStatus = "confirmed"
	BookingStatusActive    BookingStatus = "active"
	BookingStatusCompleted BookingStatus = "completed"
	BookingStatusCancelled BookingStatus = "cancelled"
	BookingStatusRefunded  BookingStatus = "refunded"
)

// bookingTransitions is the single authoritative transition table. Every status
// change goes through Booking.Transition so illegal moves cannot be reached from
// scattered per-handler guards.
var bookingTransitions = map[BookingStatus][]BookingStatus{
	BookingStatusPending:   {BookingStatusConfirmed, BookingStatusCancelled},
	BookingStatusConfirmed: {BookingStatusActive, BookingStatusCancelled, BookingStatusRefunded},
	BookingStatusActive:    {BookingStatusCompleted},
	BookingStatusCompleted: {BookingStatusRefunded},
	BookingStatusCancelled: {},
	BookingStatusRefunded:  {},
}

// IsBlocking reports whether a booking in this status counts toward
// availability conflicts.
func (s BookingStatus) IsBlocking() bool {
	return s == BookingStatusConfirmed || s == BookingStatusActive
}

// BlockingStatuses lists the statuses that occupy a space for overlap checks.
func BlockingStatuses() []BookingStatus {
	return []BookingStatus{BookingStatusConfirmed, BookingStatusActive}
}

// Driver may start a session up to 15 minutes before the booked start time
const SessionEarlyStartWindow = 15 * time.Minute

type Booking struct {
	ID      uint         `json:"id" gorm:"primaryKey"`
	UserID  uint         `json:"user_id" gorm:"not null;index"`
	User    User         `json:"user,omitempty" gorm:"foreignKey:UserID"`
	SpaceID uint         `json:"space_id" gorm:"not null;index"`
	Space   ParkingSpace `json:"space,omitempty" gorm:"foreignKey:SpaceID"`

	// Half-open range [StartTime, EndTime); EndTime strictly after StartTime
	StartTime time.Time `json:"start_time" gorm:"not null"`
	EndTime   time.Time `json:"end_time" gorm:"not null"`

	// Total cost in pence, derived from the pricing engine at creation time and
	// re-derived whenever the range changes
	TotalCostPence int64 `json:"total_cost_pence" gorm:"not null"`

	Status BookingStatus `json:"status" gorm:"type:varchar(20);not null;default:'pending';check:status IN ('pending','confirmed','active','completed','cancelled','refunded')"`

	VehicleReg     string  `json:"vehicle_reg" gorm:"size:20;not null"`
	VehicleMake    *string `json:"vehicle_make" gorm:"size:50"`
	VehicleModel   *string `json:"vehicle_model" gorm:"size:50"`
	VehicleColour  *string `json:"vehicle_colour" gorm:"size:30"`
	SpecialRequest *string `json:"special_request" gorm:"size:1000"`

	RefundPence *int64     `json:"refund_pence"`
	StartedAt   *time.Time `json:"started_at"`
	CompletedAt *time.Time `json:"completed_at"`
	CancelledAt *time.Time `json:"cancelled_at"`

	CreatedAt time.Time `json:"created_at" gorm:"autoCreateTime"`
	UpdatedAt time.Time `json:"updated_at" gorm:"autoUpdateTime"`

	// Relationships
	Payments []Payment `json:"payments,omitempty" gorm:"foreignKey:BookingID"`
}

// TableName specifies the table name for the Booking model
func (Booking) TableName() string {
	return "bookings"
}

// CanTransition reports whether moving to the given status is legal
func (b *Booking) CanTransition(to BookingStatus) bool {
	for _, next := range bookingTransitions[b.Status] {
		if next == to {
			return true
		}
	}
	return false
}

// Transition moves the booking to the given status or reports why it cannot
func (b *Booking) Transition(to BookingStatus) error {
	if !b.CanTransition(to) {
		return fmt.Errorf("booking %d cannot move from %s to %s", b.ID, b.Status, to)
	}
	b.Status = to
	return nil
}

// IsTerminal reports whether the booking can no longer change status
func (b *Booking) IsTerminal() bool {
	return len(bookingTransitions[b.Status]) == 0
}

// CanStartSessionAt checks the bounded start window: no earlier than 15 minutes
// before the booked start and no later than the booked end.
func (b *Booking) CanStartSessionAt(now time.Time) bool {
	return !now.Before(b.StartTime.Add(-SessionEarlyStartWindow)) && !now.After(b.EndTime)
}

// NormalizeVehicleReg uppercases a registration and strips internal spaces
func NormalizeVehicleReg(reg string) string {
	return strings.ToUpper(strings.ReplaceAll(strings.TrimSpace(reg), " ", ""))
}

// BookingCreate represents the request structure for creating a booking
type BookingCreate struct {
	SpaceID          uint    `json:"space_id" binding:"required"`
	StartTime        string  `json:"start_time" binding:"required"` // RFC3339
	EndTime          string  `json:"end_time" binding:"required"`   // RFC3339
	VehicleReg       string  `json:"vehicle_reg" binding:"required"`
	VehicleMake      *string `json:"vehicle_make"`
	VehicleModel     *string `json:"vehicle_model"`
	VehicleColour    *string `json:"vehicle_colour"`
	SpecialRequest   *string `json:"special_request"`
	PaymentMethodRef string  `json:"payment_method_ref" binding:"required"`
}

// BookingExtend represents the request structure for extending a booking
type BookingExtend struct {
	NewEndTime       string `json:"new_end_time" binding:"required"` // RFC3339
	PaymentMethodRef string `json:"payment_method_ref" binding:"required"`
}

// BookingDetailsUpdate represents the patchable vehicle/detail fields on a
// confirmed booking before it starts. Space, user, range and cost are immutable
// through this path.
type BookingDetailsUpdate struct {
	VehicleReg     *string `json:"vehicle_reg"`
	VehicleMake    *string `json:"vehicle_make"`
	VehicleModel   *string `json:"vehicle_model"`
	VehicleColour  *string `json:"vehicle_colour"`
	SpecialRequest *string `json:"special_request"`
}
