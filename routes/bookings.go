package routes

import (
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"parking-marketplace-server/middleware"
	"parking-marketplace-server/models"
	"parking-marketplace-server/services"
	"parking-marketplace-server/utils"
)

// RegisterBookingRoutes registers the booking lifecycle routes. All of them
// require authentication; the group is mounted under the protected router.
func RegisterBookingRoutes(router *gin.RouterGroup) {
	bookings := router.Group("/bookings")
	{
		bookings.POST("", createBooking)
		bookings.GET("/my", getMyBookings)
		bookings.GET("/:id", getBooking)
		bookings.PATCH("/:id", updateBookingDetails)
		bookings.POST("/:id/extend", extendBooking)
		bookings.POST("/:id/cancel", cancelBooking)
		bookings.POST("/:id/start", startSession)
		bookings.POST("/:id/stop", stopSession)
	}
}

func bookingIDParam(c *gin.Context) (uint, bool) {
	id, err := strconv.Atoi(c.Param("id"))
	if err != nil || id <= 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid booking ID"})
		return 0, false
	}
	return uint(id), true
}

// createBooking books a space for a time range and takes payment
func createBooking(c *gin.Context) {
	userID := c.GetUint("user_id")

	var req models.BookingCreate
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error":   "Invalid request data",
			"message": err.Error(),
		})
		return
	}

	start, errStart := time.Parse(time.RFC3339, req.StartTime)
	end, errEnd := time.Parse(time.RFC3339, req.EndTime)
	if errStart != nil || errEnd != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error":   "Invalid time range",
			"message": "start_time and end_time must be RFC3339 timestamps",
		})
		return
	}

	result, err := bookingService.CreateBooking(c.Request.Context(), userID, services.CreateBookingInput{
		SpaceID:          req.SpaceID,
		Range:            utils.TimeRange{Start: start, End: end},
		VehicleReg:       req.VehicleReg,
		VehicleMake:      req.VehicleMake,
		VehicleModel:     req.VehicleModel,
		VehicleColour:    req.VehicleColour,
		SpecialRequest:   req.SpecialRequest,
		PaymentMethodRef: req.PaymentMethodRef,
	})
	if err != nil {
		respondServiceError(c, err)
		return
	}

	response := gin.H{"booking": result.Booking}
	if result.RequiresAction {
		response["requires_action"] = true
		response["client_secret"] = result.ClientSecret
	}
	c.JSON(http.StatusCreated, response)
}

// getMyBookings lists the authenticated user's bookings
func getMyBookings(c *gin.Context) {
	userID := c.GetUint("user_id")

	bookings, err := bookingService.ListUserBookings(c.Request.Context(), userID)
	if err != nil {
		respondServiceError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"bookings": bookings, "count": len(bookings)})
}

// getBooking returns one booking, visible to the driver, the space owner and
// admins
func getBooking(c *gin.Context) {
	user, ok := middleware.CurrentUser(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "Unauthorized"})
		return
	}
	id, ok := bookingIDParam(c)
	if !ok {
		return
	}

	booking, err := bookingService.GetBooking(c.Request.Context(), id, &user)
	if err != nil {
		respondServiceError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"booking": booking})
}

// updateBookingDetails patches vehicle details on a confirmed booking
func updateBookingDetails(c *gin.Context) {
	userID := c.GetUint("user_id")
	id, ok := bookingIDParam(c)
	if !ok {
		return
	}

	var req models.BookingDetailsUpdate
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error":   "Invalid request data",
			"message": err.Error(),
		})
		return
	}

	booking, err := bookingService.UpdateDetails(c.Request.Context(), id, userID, req)
	if err != nil {
		respondServiceError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"booking": booking})
}

// extendBooking pushes the end time out and charges the increment
func extendBooking(c *gin.Context) {
	userID := c.GetUint("user_id")
	id, ok := bookingIDParam(c)
	if !ok {
		return
	}

	var req models.BookingExtend
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error":   "Invalid request data",
			"message": err.Error(),
		})
		return
	}

	newEnd, err := time.Parse(time.RFC3339, req.NewEndTime)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error":   "Invalid time",
			"message": "new_end_time must be an RFC3339 timestamp",
		})
		return
	}

	booking, err := bookingService.ExtendBooking(c.Request.Context(), id, userID, newEnd, req.PaymentMethodRef)
	if err != nil {
		respondServiceError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"booking": booking})
}

// cancelBooking cancels a pending or confirmed booking and reports the refund
func cancelBooking(c *gin.Context) {
	userID := c.GetUint("user_id")
	id, ok := bookingIDParam(c)
	if !ok {
		return
	}

	booking, refundPence, err := bookingService.CancelBooking(c.Request.Context(), id, userID)
	if err != nil {
		respondServiceError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"booking":      booking,
		"refund_pence": refundPence,
	})
}

// startSession begins the parking session for a confirmed booking
func startSession(c *gin.Context) {
	userID := c.GetUint("user_id")
	id, ok := bookingIDParam(c)
	if !ok {
		return
	}

	booking, err := bookingService.StartSession(c.Request.Context(), id, userID)
	if err != nil {
		respondServiceError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"booking": booking})
}

// stopSession completes an active parking session
func stopSession(c *gin.Context) {
	userID := c.GetUint("user_id")
	id, ok := bookingIDParam(c)
	if !ok {
		return
	}

	booking, err := bookingService.StopSession(c.Request.Context(), id, userID)
	if err != nil {
		respondServiceError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"booking": booking})
}
