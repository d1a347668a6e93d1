package models

import (
	"time"

	"gorm.io/gorm"
)

type UserRole string

const (
	RoleDriver UserRole = "driver"
	RoleHost   UserRole = "host"
	RoleAdmin  UserRole = "admin"
)

type User struct {
	ID                uint      `json:"id" gorm:"primaryKey"`
	FullName          string    `json:"full_name" gorm:"size:255;not null"`
	Email             string    `json:"email" gorm:"size:255;uniqueIndex;not null"`
	PasswordHash      string    `json:"-" gorm:"size:255;not null"` // Hidden from JSON
	Role              UserRole  `json:"role" gorm:"type:varchar(20);not null;default:'driver';check:role IN ('driver','host','admin')"`
	ProfilePictureURL *string   `json:"profile_picture_url" gorm:"size:255"`
	IsActive          bool      `json:"is_active" gorm:"default:true"`
	CreatedAt         time.Time `json:"created_at" gorm:"autoCreateTime"`
	UpdatedAt         time.Time `json:"updated_at" gorm:"autoUpdateTime"`

	// Relationships
	Bookings []Booking      `json:"bookings,omitempty" gorm:"foreignKey:UserID"`
	Spaces   []ParkingSpace `json:"spaces,omitempty" gorm:"foreignKey:OwnerID"`
}

// TableName specifies the table name for the User model
func (User) TableName() string {
	return "users"
}

// BeforeCreate is a GORM hook that runs before creating a user
func (u *User) BeforeCreate(tx *gorm.DB) error {
	if u.Role == "" {
		u.Role = RoleDriver
	}
	return nil
}

// IsValidRole checks if the user role is valid
func (u *User) IsValidRole() bool {
	switch u.Role {
	case RoleDriver, RoleHost, RoleAdmin:
		return true
	default:
		return false
	}
}

// IsHost checks if the user is a host
func (u *User) IsHost() bool {
	return u.Role == RoleHost
}

// IsAdmin checks if the user is an admin
func (u *User) IsAdmin() bool {
	return u.Role == RoleAdmin
}

// IsDriver checks if the user is a driver
func (u *User) IsDriver() bool {
	return u.Role == RoleDriver
}
