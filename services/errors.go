package services

import (
	"errors"
	"fmt"
	"net/http"
)

// ErrorKind is the stable machine-readable rejection kind surfaced to callers.
// Storage-layer and collaborator detail never crosses this boundary.
type ErrorKind string

const (
	ErrKindValidation       ErrorKind = "validation_error"
	ErrKindNotFound         ErrorKind = "not_found"
	ErrKindUnauthorized     ErrorKind = "unauthorized"
	ErrKindForbidden        ErrorKind = "forbidden"
	ErrKindConflict         ErrorKind = "conflict"
	ErrKindPaymentFailed    ErrorKind = "payment_failed"
	ErrKindSignatureInvalid ErrorKind = "signature_invalid"
	ErrKindDependency       ErrorKind = "dependency_unavailable"
)

// ServiceError carries a rejection kind plus a human-readable message
type ServiceError struct {
	Kind    ErrorKind `json:"kind"`
	Message string    `json:"message"`
}

func (e *ServiceError) Error() string {
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

func NewServiceError(kind ErrorKind, message string) *ServiceError {
	return &ServiceError{Kind: kind, Message: message}
}

func ValidationError(format string, args ...interface{}) *ServiceError {
	return NewServiceError(ErrKindValidation, fmt.Sprintf(format, args...))
}

func NotFoundError(entity string) *ServiceError {
	return NewServiceError(ErrKindNotFound, entity+" not found")
}

func ForbiddenError(message string) *ServiceError {
	return NewServiceError(ErrKindForbidden, message)
}

func ConflictError(message string) *ServiceError {
	return NewServiceError(ErrKindConflict, message)
}

func PaymentFailedError(message string) *ServiceError {
	return NewServiceError(ErrKindPaymentFailed, message)
}

func SignatureError(message string) *ServiceError {
	return NewServiceError(ErrKindSignatureInvalid, message)
}

func DependencyError(message string) *ServiceError {
	return NewServiceError(ErrKindDependency, message)
}

// HTTPStatus maps a rejection kind to the response status handlers should use
func HTTPStatus(err error) int {
	var svcErr *ServiceError
	if !errors.As(err, &svcErr) {
		return http.StatusInternalServerError
	}
	switch svcErr.Kind {
	case ErrKindValidation:
		return http.StatusBadRequest
	case ErrKindNotFound:
		return http.StatusNotFound
	case ErrKindUnauthorized:
		return http.StatusUnauthorized
	case ErrKindForbidden:
		return http.StatusForbidden
	case ErrKindConflict:
		return http.StatusConflict
	case ErrKindPaymentFailed:
		return http.StatusPaymentRequired
	case ErrKindSignatureInvalid:
		return http.StatusBadRequest
	case ErrKindDependency:
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

// AsServiceError extracts a ServiceError, wrapping anything else as an opaque
// internal error so callers never see storage-layer detail
func AsServiceError(err error) *ServiceError {
	var svcErr *ServiceError
	if errors.As(err, &svcErr) {
		return svcErr
	}
	return &ServiceError{Kind: "internal_error", Message: "Something went wrong"}
}
