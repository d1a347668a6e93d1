package models

import (
	"time"
)

// Hourly price bounds in pence (£0.50 - £50.00)
const (
	MinHourlyRatePence int64 = 50
	MaxHourlyRatePence int64 = 5000
)

// ParkingSpace represents a bookable parking location listed by a host
type ParkingSpace struct {
	ID          uint    `json:"id" gorm:"primaryKey"`
	OwnerID     uint    `json:"owner_id" gorm:"not null;index"`
	Owner       User    `json:"owner,omitempty" gorm:"foreignKey:OwnerID"`
	Title       string  `json:"title" gorm:"size:200;not null"`
	Description string  `json:"description" gorm:"type:text"`
	Address     string  `json:"address" gorm:"size:500;not null"`
	City        string  `json:"city" gorm:"size:100;not null"`
	Postcode    string  `json:"postcode" gorm:"size:20;not null"`
	Latitude    float64 `json:"latitude" gorm:"type:decimal(10,8);not null"`
	Longitude   float64 `json:"longitude" gorm:"type:decimal(11,8);not null"`

	// Price per hour in pence, bounded 50-5000
	HourlyRatePence int64 `json:"hourly_rate_pence" gorm:"not null"`

	// Feature flags
	IsCovered      bool `json:"is_covered" gorm:"default:false"`
	HasEVCharging  bool `json:"has_ev_charging" gorm:"default:false"`
	HasCCTV        bool `json:"has_cctv" gorm:"default:false"`
	Has24hAccess   bool `json:"has_24h_access" gorm:"column:has_24h_access;default:false"`
	DisabledAccess bool `json:"disabled_access" gorm:"default:false"`

	// Soft-delete marker: spaces with future blocking bookings are only deactivated
	IsActive bool `json:"is_active" gorm:"default:true"`

	PhotoURL  *string   `json:"photo_url" gorm:"size:500"`
	CreatedAt time.Time `json:"created_at" gorm:"autoCreateTime"`
	UpdatedAt time.Time `json:"updated_at" gorm:"autoUpdateTime"`

	// Relationships
	Bookings []Booking          `json:"bookings,omitempty" gorm:"foreignKey:SpaceID"`
	Slots    []AvailabilitySlot `json:"slots,omitempty" gorm:"foreignKey:SpaceID"`
}

// TableName specifies the table name for the ParkingSpace model
func (ParkingSpace) TableName() string {
	return "parking_spaces"
}

// HourlyRateValid checks the listing price is within the allowed band
func (s *ParkingSpace) HourlyRateValid() bool {
	return s.HourlyRatePence >= MinHourlyRatePence && s.HourlyRatePence <= MaxHourlyRatePence
}

// AvailabilitySlot represents a recurring weekly open window for a space.
// DayOfWeek follows time.Weekday (0 = Sunday). Times are "HH:MM" local.
type AvailabilitySlot struct {
	ID        uint      `json:"id" gorm:"primaryKey"`
	SpaceID   uint      `json:"space_id" gorm:"not null;index"`
	DayOfWeek int       `json:"day_of_week" gorm:"not null;check:day_of_week >= 0 AND day_of_week <= 6"`
	StartTime string    `json:"start_time" gorm:"size:5;not null"` // "HH:MM"
	EndTime   string    `json:"end_time" gorm:"size:5;not null"`   // "HH:MM"
	IsActive  bool      `json:"is_active" gorm:"default:true"`
	CreatedAt time.Time `json:"created_at" gorm:"autoCreateTime"`
	UpdatedAt time.Time `json:"updated_at" gorm:"autoUpdateTime"`
}

// TableName specifies the table name for the AvailabilitySlot model
func (AvailabilitySlot) TableName() string {
	return "availability_slots"
}
