package api

import (
	"rankshop-api/internal/middleware"
	"rankshop-api/internal/services"

	"github.com/gin-gonic/gin"
)

var (
	// Global service instances, wired once at startup
	stripeGateway   *services.StripeGateway
	minecraftClient *services.MinecraftClient
	eventLog        *services.WebhookEventLog
	alertMailer     *services.AlertMailer
	fulfillment     *services.FulfillmentService
)

// InitServices wires the service instances the handlers use
func InitServices() {
	stripeGateway = services.NewStripeGateway()
	minecraftClient = services.NewMinecraftClient()
	eventLog = services.NewWebhookEventLog()
	alertMailer = services.NewAlertMailer()
	fulfillment = services.NewFulfillmentService(minecraftClient, eventLog, alertMailer)
}

// SetupRoutes sets up all routes
func SetupRoutes(r *gin.Engine) {
	InitServices()

	// API route group
	api := r.Group("/api")
	{
		// Shop routes (called by the storefront)
		api.POST("/checkout", CreateCheckout)
		api.POST("/verify-purchase", VerifyPurchase)
		api.GET("/ranks", GetRankCatalog)

		// Player routes
		players := api.Group("/players")
		{
			players.GET("/:username/ranks", GetPlayerRanks)
			players.GET("/:username/exists", CheckPlayerExists)
		}

		// Payment gateway webhook routes (Stripe calls the POST)
		webhooks := api.Group("/webhooks/stripe")
		{
			webhooks.POST("", StripeWebhookHandler)

			// Diagnostic and test routes (admin only)
			webhooks.GET("", middleware.AdminAuthMiddleware(), WebhookDiagnostics)
			webhooks.POST("/test", middleware.AdminAuthMiddleware(), TestWebhook)
			webhooks.POST("/test/direct", middleware.AdminAuthMiddleware(), TestWebhookDirect)
		}

		// Admin routes
		admin := api.Group("/admin")
		admin.Use(middleware.AdminAuthMiddleware())
		{
			admin.GET("/pending", ListPendingPurchases)
		}
	}

	// Health check
	r.GET("/health", func(c *gin.Context) {
		c.JSON(200, gin.H{
			"status":  "ok",
			"service": "rankshop-api",
		})
	})
}
