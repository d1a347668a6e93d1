package routes

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"parking-marketplace-server/repository"
	"parking-marketplace-server/services"
)

// Package-level service handles, wired once at startup
var (
	bookingService      *services.BookingService
	availabilityService *services.AvailabilityService
	reconciler          *services.PaymentReconciler
	gateway             *services.StripeGateway
	errorLogs           *repository.ErrorLogRepo
)

// Init wires the route handlers to their collaborators. Must be called before
// any route registration.
func Init(
	bookings *services.BookingService,
	availability *services.AvailabilityService,
	recon *services.PaymentReconciler,
	gw *services.StripeGateway,
	logsRepo *repository.ErrorLogRepo,
) {
	bookingService = bookings
	availabilityService = availability
	reconciler = recon
	gateway = gw
	errorLogs = logsRepo
}

// respondServiceError translates a service rejection into the HTTP response
// shape used across the API
func respondServiceError(c *gin.Context, err error) {
	svcErr := services.AsServiceError(err)
	status := services.HTTPStatus(err)
	if status >= http.StatusInternalServerError {
		c.Error(err)
	}
	c.JSON(status, gin.H{
		"error":   string(svcErr.Kind),
		"message": svcErr.Message,
	})
}
