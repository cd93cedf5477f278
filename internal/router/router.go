// internal/router/router.go
package router

import (
	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"gorm.io/gorm"

	"github.com/gestionpro/license-server/internal/config"
	"github.com/gestionpro/license-server/internal/handlers"
	"github.com/gestionpro/license-server/internal/middleware"
	"github.com/gestionpro/license-server/internal/services"
	"github.com/gestionpro/license-server/internal/store"
)

func Initialize(db *gorm.DB, cfg *config.Config) *gin.Engine {
	// Initialize services
	ledger := store.NewLedger(db)
	licenseService := services.NewLicenseService(ledger, cfg.License)

	// Initialize handlers
	licenseHandler := handlers.NewLicenseHandler(licenseService)
	healthHandler := handlers.NewHealthHandler(ledger)

	// Initialize Gin router
	r := gin.New()

	// Global middleware
	r.Use(gin.Recovery())
	r.Use(middleware.RequestID())
	r.Use(middleware.RequestLogger())
	r.Use(cors.Default())

	// Health and service info
	r.GET("/health", healthHandler.Health)
	r.GET("/", healthHandler.Info)

	// License lifecycle routes
	license := r.Group("")
	license.Use(middleware.LicenseRateLimit())
	{
		license.POST("/activate", licenseHandler.Activate)
		license.POST("/validate", licenseHandler.Validate)
	}

	return r
}
