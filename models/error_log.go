package models

import (
	"time"
)

type ErrorLogLevel string

const (
	ErrorLogLevelError   ErrorLogLevel = "error"
	ErrorLogLevelWarning ErrorLogLevel = "warning"
	ErrorLogLevelDispute ErrorLogLevel = "dispute"
)

// ErrorLog is the admin-reviewable error telemetry: 5xx responses captured by
// middleware plus payment disputes recorded by the reconciler.
type ErrorLog struct {
	ID         uint          `json:"id" gorm:"primaryKey"`
	Level      ErrorLogLevel `json:"level" gorm:"type:varchar(20);not null;default:'error'"`
	Source     string        `json:"source" gorm:"size:100;not null"` // e.g. "http", "payments"
	Method     *string       `json:"method" gorm:"size:10"`
	Path       *string       `json:"path" gorm:"size:255"`
	StatusCode *int          `json:"status_code"`
	Message    string        `json:"message" gorm:"size:2000;not null"`
	UserID     *uint         `json:"user_id"`
	Resolved   bool          `json:"resolved" gorm:"default:false;index"`
	ResolvedAt *time.Time    `json:"resolved_at"`
	CreatedAt  time.Time     `json:"created_at" gorm:"autoCreateTime"`
}

// TableName specifies the table name for the ErrorLog model
func (ErrorLog) TableName() string {
	return "error_logs"
}
