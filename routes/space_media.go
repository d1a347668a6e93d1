package routes

import (
	"context"
	"fmt"
	"log"
	"mime/multipart"
	"net/http"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/cloudinary/cloudinary-go/v2"
	"github.com/cloudinary/cloudinary-go/v2/api/uploader"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"parking-marketplace-server/config"
	"parking-marketplace-server/database"
)

// validateImageFile validates mimetype and size (<= 5MB)
func validateImageFile(h *multipart.FileHeader) bool {
	if h == nil || h.Size <= 0 || h.Size > 5*1024*1024 {
		return false
	}
	ext := strings.ToLower(filepath.Ext(h.Filename))
	switch ext {
	case ".jpg", ".jpeg", ".png", ".webp":
		return true
	default:
		return false
	}
}

// RegisterSpaceMediaRoutes adds the listing photo upload endpoint. Requires
// AuthMiddleware on the group.
func RegisterSpaceMediaRoutes(rg *gin.RouterGroup) {
	rg.POST("/spaces/:id/photo", uploadSpacePhoto)
}

// uploadSpacePhoto stores a listing photo in Cloudinary and saves its URL
func uploadSpacePhoto(c *gin.Context) {
	space, ok := loadOwnedSpace(c)
	if !ok {
		return
	}

	if err := c.Request.ParseMultipartForm(10 << 20); err != nil { // 10MB
		c.JSON(http.StatusBadRequest, gin.H{"success": false, "message": "Invalid form data"})
		return
	}

	header, err := c.FormFile("photo")
	if err != nil || header == nil {
		c.JSON(http.StatusBadRequest, gin.H{"success": false, "message": "No photo provided"})
		return
	}
	if !validateImageFile(header) {
		c.JSON(http.StatusBadRequest, gin.H{"success": false, "message": "Photo must be a jpg, png or webp under 5MB"})
		return
	}

	cfg := config.AppConfig.Cloudinary
	if cfg.CloudName == "" || cfg.APIKey == "" || cfg.APISecret == "" {
		log.Printf("❌ Cloudinary is not configured")
		c.JSON(http.StatusInternalServerError, gin.H{"success": false, "message": "Media storage not configured"})
		return
	}

	cloudinaryURL := fmt.Sprintf("cloudinary://%s:%s@%s", cfg.APIKey, cfg.APISecret, cfg.CloudName)
	cld, err := cloudinary.NewFromURL(cloudinaryURL)
	if err != nil {
		log.Printf("❌ Failed to initialize Cloudinary: %v", err)
		c.JSON(http.StatusInternalServerError, gin.H{"success": false, "message": "Media storage initialization failed"})
		return
	}

	file, err := header.Open()
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"success": false, "message": "Failed to read photo"})
		return
	}
	defer file.Close()

	folder := "parking_spaces/" + strconv.Itoa(int(space.ID))
	ow := true
	up, err := cld.Upload.Upload(context.Background(), file, uploader.UploadParams{
		Folder:       folder,
		PublicID:     uuid.NewString(),
		Overwrite:    &ow,
		ResourceType: "image",
	})
	if err != nil {
		log.Printf("❌ Photo upload failed for space %d: %v", space.ID, err)
		c.JSON(http.StatusBadRequest, gin.H{"success": false, "message": "Photo upload failed"})
		return
	}

	space.PhotoURL = &up.SecureURL
	if err := database.DB.Save(space).Error; err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"success": false, "message": "Failed to save photo URL"})
		return
	}

	log.Printf("✅ Photo uploaded for space %d: %s", space.ID, up.SecureURL)
	c.JSON(http.StatusOK, gin.H{"success": true, "photo_url": up.SecureURL})
}
