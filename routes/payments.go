package routes

import (
	"encoding/json"
	"io"
	"log"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	stripe "github.com/stripe/stripe-go/v76"

	"parking-marketplace-server/database"
	"parking-marketplace-server/middleware"
	"parking-marketplace-server/models"
	"parking-marketplace-server/services"
)

// Stripe webhook payloads are small; anything bigger is not ours
const maxWebhookBodyBytes = 64 * 1024

// RegisterPaymentWebhook registers the processor notification endpoint. It is
// public: authentication is the signature over the raw body.
func RegisterPaymentWebhook(router *gin.RouterGroup) {
	router.POST("/payments/webhook", handlePaymentWebhook)
}

// RegisterPaymentRoutes registers the authenticated payment lookup routes
func RegisterPaymentRoutes(router *gin.RouterGroup) {
	router.GET("/bookings/:id/payments", getBookingPayments)
}

// handlePaymentWebhook verifies and applies one processor notification. A 5xx
// response tells the processor to redeliver; anything the reconciler cannot
// match yet comes back as a dependency rejection and maps to 503.
func handlePaymentWebhook(c *gin.Context) {
	payload, err := io.ReadAll(io.LimitReader(c.Request.Body, maxWebhookBodyBytes))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Failed to read request body"})
		return
	}

	event, err := gateway.VerifyEvent(payload, c.GetHeader("Stripe-Signature"))
	if err != nil {
		log.Printf("❌ Webhook signature verification failed from %s", c.ClientIP())
		respondServiceError(c, err)
		return
	}

	var providerRef, detail string
	switch string(event.Type) {
	case services.EventPaymentSucceeded, services.EventPaymentFailed:
		var intent stripe.PaymentIntent
		if err := json.Unmarshal(event.Data.Raw, &intent); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "Malformed event payload"})
			return
		}
		providerRef = intent.ID
		if intent.LastPaymentError != nil {
			detail = intent.LastPaymentError.Msg
		}

	case services.EventDisputeCreated:
		var dispute stripe.Dispute
		if err := json.Unmarshal(event.Data.Raw, &dispute); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "Malformed event payload"})
			return
		}
		if dispute.PaymentIntent != nil {
			providerRef = dispute.PaymentIntent.ID
		}
		detail = string(dispute.Reason)

	default:
		// Not a notification we act on; acknowledge so it is not redelivered
		c.JSON(http.StatusOK, gin.H{"received": true})
		return
	}

	if providerRef == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Event carries no transaction reference"})
		return
	}

	if err := reconciler.Apply(c.Request.Context(), string(event.Type), providerRef, detail); err != nil {
		respondServiceError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"received": true})
}

// getBookingPayments lists the payment rows behind a booking, visible to the
// driver, the space owner and admins
func getBookingPayments(c *gin.Context) {
	user, ok := middleware.CurrentUser(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "Unauthorized"})
		return
	}

	id, err := strconv.Atoi(c.Param("id"))
	if err != nil || id <= 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid booking ID"})
		return
	}

	// Visibility check rides on the booking loader
	if _, err := bookingService.GetBooking(c.Request.Context(), uint(id), &user); err != nil {
		respondServiceError(c, err)
		return
	}

	var payments []models.Payment
	if err := database.DB.Where("booking_id = ?", id).Order("created_at ASC").Find(&payments).Error; err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to fetch payments"})
		return
	}

	c.JSON(http.StatusOK, gin.H{"payments": payments, "count": len(payments)})
}
