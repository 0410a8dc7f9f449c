package main

import (
	"log"

	"rankshop-api/internal/api"
	"rankshop-api/internal/config"
	"rankshop-api/internal/database"
	"rankshop-api/internal/services"
	"rankshop-api/pkg/logging"

	"github.com/gin-gonic/gin"
)

func main() {
	// Initialize configuration
	if err := config.InitConfig(); err != nil {
		log.Fatal("Failed to initialize config:", err)
	}

	// Initialize logging
	logging.InitLogging()

	// Initialize database
	if err := database.InitDatabase(); err != nil {
		log.Fatal("Failed to initialize database:", err)
	}
	defer database.CloseDatabase()

	// Surface misconfigured ranks at startup
	services.WarnMissingPrices()

	// Set Gin mode
	gin.SetMode(config.AppConfig.Mode)

	// Create Gin engine
	r := gin.Default()

	// Setup routes (wires services)
	api.SetupRoutes(r)

	// Start the stale pending-purchase watcher
	watcher := services.NewPendingWatcher(services.NewAlertMailer())
	watcher.Start()

	// Start server
	port := config.AppConfig.Port
	logging.Infof("Starting server on port %s", port)

	if err := r.Run(":" + port); err != nil {
		log.Fatal("Failed to start server:", err)
	}
}
