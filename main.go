package main

import (
	"log"
	"net/http"
	"os"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/joho/godotenv"

	"parking-marketplace-server/config"
	"parking-marketplace-server/database"
	"parking-marketplace-server/jobs"
	"parking-marketplace-server/middleware"
	"parking-marketplace-server/models"
	"parking-marketplace-server/repository"
	"parking-marketplace-server/routes"
	"parking-marketplace-server/services"
	ws "parking-marketplace-server/websocket"
)

func main() {
	// Load environment variables
	if err := godotenv.Load(); err != nil {
		log.Println("No .env file found, using system environment variables")
	}

	// Load configuration
	config.Load()

	// Initialize database (runs migrations)
	if err := database.Initialize(); err != nil {
		log.Fatal("Failed to initialize database:", err)
	}

	// Optional demo data
	if os.Getenv("SEED_DEMO_DATA") == "true" {
		seedSpaces()
	}

	// Set Gin mode
	if config.AppConfig.Server.GinMode == "release" {
		gin.SetMode(gin.ReleaseMode)
	}

	// Repositories
	bookingRepo := repository.NewBookingRepo(database.DB)
	paymentRepo := repository.NewPaymentRepo(database.DB)
	spaceRepo := repository.NewSpaceRepo(database.DB)
	errorLogRepo := repository.NewErrorLogRepo(database.DB)

	// Live booking feed
	hub := ws.NewHub()
	go hub.Run()
	eventBridge := ws.NewEventBridge(hub)

	// Services
	availabilityService := services.NewAvailabilityService(bookingRepo)
	gateway := services.NewStripeGateway()
	notifier := services.NewEmailNotifier()
	bookingService := services.NewBookingService(
		bookingRepo,
		paymentRepo,
		spaceRepo,
		availabilityService,
		gateway,
		notifier,
		eventBridge,
		config.AppConfig.Payments.Currency,
	)
	reconciler := services.NewPaymentReconciler(paymentRepo, bookingRepo, notifier, eventBridge, errorLogRepo)

	routes.Init(bookingService, availabilityService, reconciler, gateway, errorLogRepo)

	// Create router
	router := gin.New()
	router.Use(gin.Logger())
	router.Use(gin.Recovery())

	// Disable automatic redirects for trailing slashes
	router.RedirectTrailingSlash = false
	router.RedirectFixedPath = false

	// Security headers (must be first)
	router.Use(middleware.SecurityHeadersMiddleware())

	// Input validation
	router.Use(middleware.InputValidationMiddleware())

	// Rate limiting
	router.Use(middleware.RateLimitMiddleware())

	// CORS
	router.Use(middleware.CORSMiddleware())

	// Error telemetry for the admin surface
	router.Use(middleware.TelemetryMiddleware(errorLogRepo))

	// Health check endpoint
	router.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{
			"status":  "ok",
			"message": "Parking Marketplace Server is running",
			"time":    time.Now().UTC(),
		})
	})

	// Live booking feed for drivers and hosts
	feedHandler := ws.NewFeedHandler(hub)
	router.GET("/api/v1/ws/feed", middleware.AuthMiddleware(), feedHandler.HandleFeed)

	// API routes
	api := router.Group("/api/v1")
	{
		// Auth routes with strict rate limiting
		authRoutes := api.Group("/auth")
		authRoutes.Use(middleware.AuthRateLimitMiddleware())
		routes.RegisterAuthRoutes(authRoutes)

		// Space search and management
		routes.RegisterSpaceRoutes(api)

		// Payment processor notifications (signature-authenticated)
		routes.RegisterPaymentWebhook(api)

		// Protected routes
		protected := api.Group("")
		protected.Use(middleware.AuthMiddleware())
		{
			routes.RegisterBookingRoutes(protected)
			routes.RegisterPaymentRoutes(protected)
			routes.RegisterSpaceMediaRoutes(protected)
		}

		// Admin routes
		adminRoutes := api.Group("/admin")
		adminRoutes.Use(middleware.AuthMiddleware(), middleware.RequireRole(models.RoleAdmin))
		routes.RegisterAdminRoutes(adminRoutes)
	}

	// Start background jobs
	refundRetryJob := jobs.NewRefundRetryJob(bookingService)
	refundRetryJob.Start()
	defer refundRetryJob.Stop()

	// Periodic rate limiter cleanup
	go func() {
		ticker := time.NewTicker(10 * time.Minute)
		defer ticker.Stop()
		for range ticker.C {
			middleware.CleanupRateLimiters()
		}
	}()

	port := config.AppConfig.Server.Port
	log.Printf("Server starting on port %s", port)
	if err := router.Run("0.0.0.0:" + port); err != nil {
		log.Fatal("Failed to start server:", err)
	}
}
