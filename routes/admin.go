package routes

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"parking-marketplace-server/database"
	"parking-marketplace-server/models"
)

// RegisterAdminRoutes registers the admin surface. The group must already be
// protected with AuthMiddleware plus RequireRole(admin).
func RegisterAdminRoutes(router *gin.RouterGroup) {
	router.GET("/dashboard/stats", getDashboardStats)

	router.GET("/users", getAllUsers)
	router.PATCH("/users/:id/status", updateUserStatus)

	router.GET("/bookings", getAllBookings)

	router.POST("/payments/:id/refund", refundPayment)

	router.GET("/errors", getErrorLogs)
	router.POST("/errors/:id/resolve", resolveErrorLog)
}

// getDashboardStats returns marketplace-wide counts and revenue
func getDashboardStats(c *gin.Context) {
	var userCount, spaceCount, bookingCount int64
	database.DB.Model(&models.User{}).Count(&userCount)
	database.DB.Model(&models.ParkingSpace{}).Where("is_active = ?", true).Count(&spaceCount)
	database.DB.Model(&models.Booking{}).Count(&bookingCount)

	bookingsByStatus := map[string]int64{}
	type statusCount struct {
		Status string
		Count  int64
	}
	var counts []statusCount
	database.DB.Model(&models.Booking{}).
		Select("status, COUNT(*) as count").
		Group("status").
		Scan(&counts)
	for _, sc := range counts {
		bookingsByStatus[sc.Status] = sc.Count
	}

	// Gross revenue is the sum of succeeded charges; refunds come off it
	var grossPence, refundedPence int64
	database.DB.Model(&models.Payment{}).
		Where("status IN ?", []models.PaymentStatus{models.PaymentStatusSucceeded, models.PaymentStatusRefunded}).
		Select("COALESCE(SUM(amount_pence), 0)").
		Scan(&grossPence)
	database.DB.Model(&models.Payment{}).
		Select("COALESCE(SUM(refund_pence), 0)").
		Scan(&refundedPence)

	var unresolvedErrors int64
	database.DB.Model(&models.ErrorLog{}).Where("resolved = ?", false).Count(&unresolvedErrors)

	c.JSON(http.StatusOK, gin.H{
		"users":              userCount,
		"active_spaces":      spaceCount,
		"bookings":           bookingCount,
		"bookings_by_status": bookingsByStatus,
		"revenue_pence":      grossPence - refundedPence,
		"refunded_pence":     refundedPence,
		"unresolved_errors":  unresolvedErrors,
	})
}

// getAllUsers lists accounts, newest first
func getAllUsers(c *gin.Context) {
	limit := 50
	if v, err := strconv.Atoi(c.Query("limit")); err == nil && v > 0 && v <= 200 {
		limit = v
	}

	var users []models.User
	query := database.DB.Order("created_at DESC").Limit(limit)
	if role := c.Query("role"); role != "" {
		query = query.Where("role = ?", role)
	}
	if err := query.Find(&users).Error; err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to fetch users"})
		return
	}

	c.JSON(http.StatusOK, gin.H{"users": users, "count": len(users)})
}

// updateUserStatus activates or deactivates an account
func updateUserStatus(c *gin.Context) {
	id, err := strconv.Atoi(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid user ID"})
		return
	}

	var req struct {
		IsActive *bool `json:"is_active" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error":   "Invalid request data",
			"message": err.Error(),
		})
		return
	}

	var user models.User
	if err := database.DB.First(&user, id).Error; err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "User not found"})
		return
	}

	user.IsActive = *req.IsActive
	if err := database.DB.Save(&user).Error; err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to update user"})
		return
	}

	c.JSON(http.StatusOK, gin.H{"user": user})
}

// getAllBookings lists recent bookings across the marketplace
func getAllBookings(c *gin.Context) {
	limit := 50
	if v, err := strconv.Atoi(c.Query("limit")); err == nil && v > 0 && v <= 200 {
		limit = v
	}

	var bookings []models.Booking
	query := database.DB.Preload("User").Preload("Space").Order("created_at DESC").Limit(limit)
	if status := c.Query("status"); status != "" {
		query = query.Where("status = ?", status)
	}
	if err := query.Find(&bookings).Error; err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to fetch bookings"})
		return
	}

	c.JSON(http.StatusOK, gin.H{"bookings": bookings, "count": len(bookings)})
}

// RefundRequest represents a manual refund instruction
type RefundRequest struct {
	AmountPence int64  `json:"amount_pence"` // 0 refunds whatever remains
	Reason      string `json:"reason" binding:"required"`
}

// refundPayment issues a manual refund against one payment
func refundPayment(c *gin.Context) {
	id, err := strconv.Atoi(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid payment ID"})
		return
	}

	var req RefundRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error":   "Invalid request data",
			"message": err.Error(),
		})
		return
	}

	payment, err := bookingService.RefundPayment(c.Request.Context(), uint(id), req.AmountPence, req.Reason)
	if err != nil {
		respondServiceError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"payment": payment})
}

// getErrorLogs lists telemetry entries for review
func getErrorLogs(c *gin.Context) {
	limit := 100
	if v, err := strconv.Atoi(c.Query("limit")); err == nil && v > 0 && v <= 500 {
		limit = v
	}
	unresolvedOnly := c.Query("unresolved") == "true"

	entries, err := errorLogs.List(c.Request.Context(), unresolvedOnly, limit)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to fetch error logs"})
		return
	}

	c.JSON(http.StatusOK, gin.H{"errors": entries, "count": len(entries)})
}

// resolveErrorLog marks a telemetry entry as reviewed
func resolveErrorLog(c *gin.Context) {
	id, err := strconv.Atoi(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid entry ID"})
		return
	}

	if err := errorLogs.Resolve(c.Request.Context(), uint(id)); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to resolve entry"})
		return
	}

	c.JSON(http.StatusOK, gin.H{"message": "Entry resolved"})
}
