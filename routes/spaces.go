package routes

import (
	"log"
	"net/http"
	"sort"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"parking-marketplace-server/database"
	"parking-marketplace-server/middleware"
	"parking-marketplace-server/models"
	"parking-marketplace-server/services"
	"parking-marketplace-server/utils"
)

// SpaceCreateRequest represents the listing creation request
type SpaceCreateRequest struct {
	Title           string  `json:"title" binding:"required,max=200"`
	Description     string  `json:"description"`
	Address         string  `json:"address" binding:"required"`
	City            string  `json:"city" binding:"required"`
	Postcode        string  `json:"postcode" binding:"required"`
	Latitude        float64 `json:"latitude" binding:"required"`
	Longitude       float64 `json:"longitude" binding:"required"`
	HourlyRatePence int64   `json:"hourly_rate_pence" binding:"required"`
	IsCovered       bool    `json:"is_covered"`
	HasEVCharging   bool    `json:"has_ev_charging"`
	HasCCTV         bool    `json:"has_cctv"`
	Has24hAccess    bool    `json:"has_24h_access"`
	DisabledAccess  bool    `json:"disabled_access"`
}

// SpaceUpdateRequest represents the listing update request
type SpaceUpdateRequest struct {
	Title           *string `json:"title"`
	Description     *string `json:"description"`
	HourlyRatePence *int64  `json:"hourly_rate_pence"`
	IsCovered       *bool   `json:"is_covered"`
	HasEVCharging   *bool   `json:"has_ev_charging"`
	HasCCTV         *bool   `json:"has_cctv"`
	Has24hAccess    *bool   `json:"has_24h_access"`
	DisabledAccess  *bool   `json:"disabled_access"`
	IsActive        *bool   `json:"is_active"`
}

// SlotRequest represents a recurring weekly open window
type SlotRequest struct {
	DayOfWeek int    `json:"day_of_week" binding:"min=0,max=6"`
	StartTime string `json:"start_time" binding:"required"` // "HH:MM"
	EndTime   string `json:"end_time" binding:"required"`   // "HH:MM"
}

// RegisterSpaceRoutes registers parking space routes. Search and detail are
// public; management requires a host or admin account.
func RegisterSpaceRoutes(router *gin.RouterGroup) {
	spaces := router.Group("/spaces")
	{
		spaces.GET("", searchSpaces)
		spaces.GET("/:id", getSpace)
		spaces.GET("/:id/availability", checkSpaceAvailability)

		spaces.POST("", middleware.AuthMiddleware(), middleware.RequireRole(models.RoleHost, models.RoleAdmin), createSpace)
		spaces.GET("/mine/list", middleware.AuthMiddleware(), getMySpaces)
		spaces.PUT("/:id", middleware.AuthMiddleware(), updateSpace)
		spaces.DELETE("/:id", middleware.AuthMiddleware(), deleteSpace)

		spaces.POST("/:id/slots", middleware.AuthMiddleware(), createSlot)
		spaces.DELETE("/:id/slots/:slotId", middleware.AuthMiddleware(), deleteSlot)
	}
}

// searchSpaces lists active spaces, optionally filtered by location, price and
// features. When lat/lng are given results are sorted by distance.
func searchSpaces(c *gin.Context) {
	query := database.DB.Where("is_active = ?", true).Preload("Slots")

	if city := c.Query("city"); city != "" {
		query = query.Where("LOWER(city) = LOWER(?)", city)
	}
	if maxRate := c.Query("max_hourly_rate_pence"); maxRate != "" {
		if v, err := strconv.ParseInt(maxRate, 10, 64); err == nil && v > 0 {
			query = query.Where("hourly_rate_pence <= ?", v)
		}
	}
	for param, column := range map[string]string{
		"covered":         "is_covered",
		"ev_charging":     "has_ev_charging",
		"cctv":            "has_cctv",
		"access_24h":      "has_24h_access",
		"disabled_access": "disabled_access",
	} {
		if c.Query(param) == "true" {
			query = query.Where(column+" = ?", true)
		}
	}

	var spaces []models.ParkingSpace
	if err := query.Find(&spaces).Error; err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to fetch spaces"})
		return
	}

	latStr, lngStr := c.Query("lat"), c.Query("lng")
	if latStr == "" || lngStr == "" {
		c.JSON(http.StatusOK, gin.H{"spaces": spaces, "count": len(spaces)})
		return
	}

	lat, errLat := strconv.ParseFloat(latStr, 64)
	lng, errLng := strconv.ParseFloat(lngStr, 64)
	if errLat != nil || errLng != nil || !utils.IsLocationValid(lat, lng) {
		c.JSON(http.StatusBadRequest, gin.H{
			"error":   "Invalid location",
			"message": "lat and lng must be valid coordinates",
		})
		return
	}

	radius := utils.GetDefaultSearchRadius()
	if radiusStr := c.Query("radius_km"); radiusStr != "" {
		if v, err := strconv.ParseFloat(radiusStr, 64); err == nil && utils.ValidateSearchRadius(v) {
			radius = v
		}
	}

	type spaceWithDistance struct {
		models.ParkingSpace
		DistanceKm float64 `json:"distance_km"`
	}

	var nearby []spaceWithDistance
	for _, space := range spaces {
		distance := utils.HaversineDistance(lat, lng, space.Latitude, space.Longitude)
		if distance <= radius {
			nearby = append(nearby, spaceWithDistance{ParkingSpace: space, DistanceKm: distance})
		}
	}
	sort.Slice(nearby, func(i, j int) bool {
		return nearby[i].DistanceKm < nearby[j].DistanceKm
	})

	c.JSON(http.StatusOK, gin.H{"spaces": nearby, "count": len(nearby)})
}

// getSpace returns one listing with its slots and owner
func getSpace(c *gin.Context) {
	id, err := strconv.Atoi(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid space ID"})
		return
	}

	var space models.ParkingSpace
	if err := database.DB.Preload("Owner").Preload("Slots", "is_active = ?", true).First(&space, id).Error; err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "Parking space not found"})
		return
	}
	if !space.IsActive {
		c.JSON(http.StatusNotFound, gin.H{"error": "Parking space not found"})
		return
	}

	c.JSON(http.StatusOK, gin.H{"space": space})
}

// checkSpaceAvailability answers whether a space is free for a given range
func checkSpaceAvailability(c *gin.Context) {
	id, err := strconv.Atoi(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid space ID"})
		return
	}

	start, errStart := time.Parse(time.RFC3339, c.Query("start_time"))
	end, errEnd := time.Parse(time.RFC3339, c.Query("end_time"))
	if errStart != nil || errEnd != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error":   "Invalid time range",
			"message": "start_time and end_time must be RFC3339 timestamps",
		})
		return
	}

	r, err := utils.NewTimeRange(start, end)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid time range", "message": err.Error()})
		return
	}

	var space models.ParkingSpace
	if err := database.DB.Preload("Slots", "is_active = ?", true).First(&space, id).Error; err != nil || !space.IsActive {
		c.JSON(http.StatusNotFound, gin.H{"error": "Parking space not found"})
		return
	}

	if !services.SlotsCover(space.Slots, r) {
		c.JSON(http.StatusOK, gin.H{
			"available":         false,
			"reason":            "closed",
			"quoted_cost_pence": int64(0),
		})
		return
	}

	available, err := availabilityService.IsAvailable(c.Request.Context(), space.ID, r, 0)
	if err != nil {
		respondServiceError(c, err)
		return
	}

	response := gin.H{"available": available}
	if available {
		response["quoted_cost_pence"] = services.Cost(r, space.HourlyRatePence)
	} else {
		response["reason"] = "booked"
	}
	c.JSON(http.StatusOK, response)
}

// createSpace creates a new listing owned by the authenticated host
func createSpace(c *gin.Context) {
	user, ok := middleware.CurrentUser(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "Unauthorized"})
		return
	}

	var req SpaceCreateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error":   "Invalid request data",
			"message": err.Error(),
		})
		return
	}

	if !utils.IsLocationValid(req.Latitude, req.Longitude) {
		c.JSON(http.StatusBadRequest, gin.H{
			"error":   "Invalid location",
			"message": "Latitude and longitude must be valid coordinates",
		})
		return
	}

	space := models.ParkingSpace{
		OwnerID:         user.ID,
		Title:           req.Title,
		Description:     req.Description,
		Address:         req.Address,
		City:            req.City,
		Postcode:        req.Postcode,
		Latitude:        req.Latitude,
		Longitude:       req.Longitude,
		HourlyRatePence: req.HourlyRatePence,
		IsCovered:       req.IsCovered,
		HasEVCharging:   req.HasEVCharging,
		HasCCTV:         req.HasCCTV,
		Has24hAccess:    req.Has24hAccess,
		DisabledAccess:  req.DisabledAccess,
		IsActive:        true,
	}

	if !space.HourlyRateValid() {
		c.JSON(http.StatusBadRequest, gin.H{
			"error":   "Invalid hourly rate",
			"message": "Hourly rate must be between 50 and 5000 pence",
		})
		return
	}

	if err := database.DB.Create(&space).Error; err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to create space"})
		return
	}

	log.Printf("✅ Space %d listed by host %d: %s", space.ID, user.ID, space.Title)
	c.JSON(http.StatusCreated, gin.H{"space": space})
}

// getMySpaces lists the authenticated host's listings including inactive ones
func getMySpaces(c *gin.Context) {
	user, ok := middleware.CurrentUser(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "Unauthorized"})
		return
	}

	var spaces []models.ParkingSpace
	if err := database.DB.Where("owner_id = ?", user.ID).Preload("Slots").Find(&spaces).Error; err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to fetch spaces"})
		return
	}

	c.JSON(http.StatusOK, gin.H{"spaces": spaces, "count": len(spaces)})
}

// loadOwnedSpace loads a space and checks the requester owns it (or is admin)
func loadOwnedSpace(c *gin.Context) (*models.ParkingSpace, bool) {
	user, ok := middleware.CurrentUser(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "Unauthorized"})
		return nil, false
	}

	id, err := strconv.Atoi(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid space ID"})
		return nil, false
	}

	var space models.ParkingSpace
	if err := database.DB.First(&space, id).Error; err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "Parking space not found"})
		return nil, false
	}

	if space.OwnerID != user.ID && !user.IsAdmin() {
		c.JSON(http.StatusForbidden, gin.H{"error": "You do not own this space"})
		return nil, false
	}

	return &space, true
}

// updateSpace patches a listing's editable fields
func updateSpace(c *gin.Context) {
	space, ok := loadOwnedSpace(c)
	if !ok {
		return
	}

	var req SpaceUpdateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error":   "Invalid request data",
			"message": err.Error(),
		})
		return
	}

	if req.Title != nil {
		space.Title = *req.Title
	}
	if req.Description != nil {
		space.Description = *req.Description
	}
	if req.HourlyRatePence != nil {
		space.HourlyRatePence = *req.HourlyRatePence
		if !space.HourlyRateValid() {
			c.JSON(http.StatusBadRequest, gin.H{
				"error":   "Invalid hourly rate",
				"message": "Hourly rate must be between 50 and 5000 pence",
			})
			return
		}
	}
	if req.IsCovered != nil {
		space.IsCovered = *req.IsCovered
	}
	if req.HasEVCharging != nil {
		space.HasEVCharging = *req.HasEVCharging
	}
	if req.HasCCTV != nil {
		space.HasCCTV = *req.HasCCTV
	}
	if req.Has24hAccess != nil {
		space.Has24hAccess = *req.Has24hAccess
	}
	if req.DisabledAccess != nil {
		space.DisabledAccess = *req.DisabledAccess
	}
	if req.IsActive != nil {
		space.IsActive = *req.IsActive
	}

	if err := database.DB.Save(space).Error; err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to update space"})
		return
	}

	c.JSON(http.StatusOK, gin.H{"space": space})
}

// deleteSpace deactivates a listing. Listings with upcoming confirmed or
// active bookings cannot be removed until those bookings resolve.
func deleteSpace(c *gin.Context) {
	space, ok := loadOwnedSpace(c)
	if !ok {
		return
	}

	var blocking int64
	err := database.DB.Model(&models.Booking{}).
		Where("space_id = ? AND status IN ? AND end_time > ?", space.ID, models.BlockingStatuses(), time.Now()).
		Count(&blocking).Error
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to check bookings"})
		return
	}
	if blocking > 0 {
		c.JSON(http.StatusConflict, gin.H{
			"error":   "Space has upcoming bookings",
			"message": "This space has confirmed bookings and can only be removed once they finish or are cancelled",
		})
		return
	}

	space.IsActive = false
	if err := database.DB.Save(space).Error; err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to remove space"})
		return
	}

	log.Printf("🗑️ Space %d deactivated by owner %d", space.ID, space.OwnerID)
	c.JSON(http.StatusOK, gin.H{"message": "Space removed"})
}

// createSlot adds a recurring weekly open window to a listing
func createSlot(c *gin.Context) {
	space, ok := loadOwnedSpace(c)
	if !ok {
		return
	}

	var req SlotRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error":   "Invalid request data",
			"message": err.Error(),
		})
		return
	}

	startMin, errStart := services.ParseSlotTime(req.StartTime)
	endMin, errEnd := services.ParseSlotTime(req.EndTime)
	if errStart != nil || errEnd != nil || endMin <= startMin {
		c.JSON(http.StatusBadRequest, gin.H{
			"error":   "Invalid slot window",
			"message": "Times must be HH:MM with the end after the start",
		})
		return
	}

	slot := models.AvailabilitySlot{
		SpaceID:   space.ID,
		DayOfWeek: req.DayOfWeek,
		StartTime: req.StartTime,
		EndTime:   req.EndTime,
		IsActive:  true,
	}
	if err := database.DB.Create(&slot).Error; err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to create slot"})
		return
	}

	c.JSON(http.StatusCreated, gin.H{"slot": slot})
}

// deleteSlot removes a recurring open window
func deleteSlot(c *gin.Context) {
	space, ok := loadOwnedSpace(c)
	if !ok {
		return
	}

	slotID, err := strconv.Atoi(c.Param("slotId"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid slot ID"})
		return
	}

	result := database.DB.Where("space_id = ?", space.ID).Delete(&models.AvailabilitySlot{}, slotID)
	if result.Error != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to delete slot"})
		return
	}
	if result.RowsAffected == 0 {
		c.JSON(http.StatusNotFound, gin.H{"error": "Slot not found"})
		return
	}

	c.JSON(http.StatusOK, gin.H{"message": "Slot removed"})
}
