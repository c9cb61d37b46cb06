package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/jmoiron/sqlx"
	"github.com/sirupsen/logrus"

	"github.com/estatevista/booking-backend/internal/config"
	"github.com/estatevista/booking-backend/internal/database"
	"github.com/estatevista/booking-backend/internal/handlers"
	"github.com/estatevista/booking-backend/internal/middleware"
	"github.com/estatevista/booking-backend/internal/services"
	"github.com/estatevista/booking-backend/pkg/jwt"
	"github.com/estatevista/booking-backend/pkg/payment"
)

var (
	version   = "1.0.0"
	buildTime = "unknown"
)

func main() {
	// Initialize logger
	logger := logrus.New()
	logger.SetFormatter(&logrus.JSONFormatter{})
	logger.SetOutput(os.Stdout)

	logger.Info("Starting EstateVista Booking Backend")
	logger.Infof("Version: %s, Build Time: %s", version, buildTime)

	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		logger.Fatalf("Failed to load configuration: %v", err)
	}

	// Set log level
	logLevel, err := logrus.ParseLevel(cfg.Server.LogLevel)
	if err != nil {
		logger.Warn("Invalid log level, using INFO")
		logLevel = logrus.InfoLevel
	}
	logger.SetLevel(logLevel)

	// Set Gin mode
	if cfg.Server.Environment == "production" {
		gin.SetMode(gin.ReleaseMode)
	} else {
		gin.SetMode(gin.DebugMode)
	}

	// Initialize database connection
	logger.Info("Connecting to database...")
	db, err := database.NewConnection(cfg.Database)
	if err != nil {
		logger.Fatalf("Failed to connect to database: %v", err)
	}
	defer db.Close()
	logger.Info("Database connection established")

	// Initialize repositories
	bookingRepo := database.NewBookingRepository(db)
	paymentRepo := database.NewPaymentRepository(db)
	propertyRepo := database.NewPropertyRepository(db)
	auditRepo := database.NewPaymentAuditRepository(db, logger)

	// Initialize payment providers
	cardGateway := payment.NewCardGateway(payment.CardConfig{
		SecretKey:     cfg.Card.SecretKey,
		WebhookSecret: cfg.Card.WebhookSecret,
		ReturnURL:     cfg.Card.ReturnURL,
	})
	walletGateway := payment.NewWalletGateway(payment.WalletConfig{
		BaseURL:     cfg.Wallet.BaseURL,
		AppKey:      cfg.Wallet.AppKey,
		AppSecret:   cfg.Wallet.AppSecret,
		Username:    cfg.Wallet.Username,
		Password:    cfg.Wallet.Password,
		CallbackURL: cfg.Wallet.CallbackURL,
	})
	registry := payment.NewRegistry(cardGateway, walletGateway)
	logger.Infof("Payment providers registered: %v", registry.Names())

	// Initialize services
	logger.Info("Initializing services...")
	jwtService := jwt.NewService(cfg.JWT.Secret, cfg.JWT.AccessTokenExpiry)
	pricingService := services.NewPricingService(cfg.Pricing, logger)
	bookingService := services.NewBookingService(bookingRepo, propertyRepo, paymentRepo, pricingService, logger)
	orchestrator := services.NewPaymentOrchestratorService(bookingRepo, paymentRepo, auditRepo, registry, cfg.Pricing.Currency, logger)
	reconciler := services.NewWebhookReconcilerService(orchestrator, paymentRepo, bookingRepo, auditRepo, cardGateway, logger)

	// Initialize handlers
	bookingHandler := handlers.NewBookingHandler(bookingService, logger)
	paymentHandler := handlers.NewPaymentHandler(orchestrator, logger)
	webhookHandler := handlers.NewWebhookHandler(reconciler, logger)

	// Initialize Gin router
	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(requestLogger(logger))

	// CORS configuration
	corsConfig := cors.Config{
		AllowOrigins:     cfg.CORS.AllowedOrigins,
		AllowMethods:     cfg.CORS.AllowedMethods,
		AllowHeaders:     cfg.CORS.AllowedHeaders,
		ExposeHeaders:    []string{"Content-Length"},
		AllowCredentials: true,
		MaxAge:           12 * time.Hour,
	}
	router.Use(cors.New(corsConfig))

	// Health check endpoint
	router.GET("/health", healthCheckHandler(db))

	// API v1 routes
	v1 := router.Group("/api/v1")
	{
		// Booking routes (all protected)
		bookings := v1.Group("/bookings")
		bookings.Use(middleware.AuthMiddleware(jwtService))
		{
			bookings.POST("", bookingHandler.CreateBooking)
			bookings.GET("", bookingHandler.ListBookings)
			bookings.GET("/:id", bookingHandler.GetBooking)
			bookings.PUT("/:id/cancel", bookingHandler.CancelBooking)
			bookings.GET("/:id/payments", paymentHandler.ListBookingPayments)
		}

		// Payment routes (all protected)
		payments := v1.Group("/payments")
		payments.Use(middleware.AuthMiddleware(jwtService))
		{
			payments.POST("", paymentHandler.CreatePayment)
			payments.GET("/:id", paymentHandler.GetPayment)
			payments.GET("/:id/status", paymentHandler.CheckStatus)
			payments.POST("/:id/confirm", paymentHandler.ConfirmPayment)
			payments.POST("/:id/refund", paymentHandler.RefundPayment)
		}

		// Webhook routes (unauthenticated; verified per provider)
		webhooks := v1.Group("/webhooks")
		{
			webhooks.POST("/card", webhookHandler.HandleCardWebhook)
			webhooks.POST("/wallet", webhookHandler.HandleWalletWebhook)
		}
	}

	// Create HTTP server
	srv := &http.Server{
		Addr:         fmt.Sprintf(":%s", cfg.Server.Port),
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	// Start server in a goroutine
	go func() {
		logger.Infof("Server starting on port %s", cfg.Server.Port)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatalf("Failed to start server: %v", err)
		}
	}()

	// Wait for interrupt signal to gracefully shutdown the server
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("Shutting down server...")

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := srv.Shutdown(ctx); err != nil {
		logger.Errorf("Server forced to shutdown: %v", err)
	}

	logger.Info("Server exited successfully")
}

// requestLogger middleware for logging HTTP requests
func requestLogger(logger *logrus.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		path := c.Request.URL.Path
		query := c.Request.URL.RawQuery

		c.Next()

		latency := time.Since(start)
		fields := logrus.Fields{
			"status":     c.Writer.Status(),
			"method":     c.Request.Method,
			"path":       path,
			"query":      query,
			"ip":         c.ClientIP(),
			"latency_ms": latency.Milliseconds(),
			"user_agent": c.Request.UserAgent(),
		}

		entry := logger.WithFields(fields)

		status := c.Writer.Status()
		switch {
		case status >= 500:
			entry.Error("Request completed with server error")
		case status >= 400:
			entry.Warn("Request completed with client error")
		default:
			entry.Info("Request completed successfully")
		}
	}
}

// healthCheckHandler returns a health check endpoint
func healthCheckHandler(db *sqlx.DB) gin.HandlerFunc {
	return func(c *gin.Context) {
		if err := db.Ping(); err != nil {
			c.JSON(http.StatusServiceUnavailable, gin.H{
				"status":   "unhealthy",
				"database": "unhealthy",
				"error":    err.Error(),
			})
			return
		}

		c.JSON(http.StatusOK, gin.H{
			"status":    "healthy",
			"database":  "healthy",
			"version":   version,
			"timestamp": time.Now().Unix(),
		})
	}
}
