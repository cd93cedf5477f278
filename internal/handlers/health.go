// internal/handlers/health.go
package handlers

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/gestionpro/license-server/internal/store"
)

const serviceName = "GestionPro License Server"

type HealthHandler struct {
	ledger    store.Ledger
	startTime time.Time
}

func NewHealthHandler(ledger store.Ledger) *HealthHandler {
	return &HealthHandler{
		ledger:    ledger,
		startTime: time.Now(),
	}
}

// GET /health
func (h *HealthHandler) Health(c *gin.Context) {
	dbStatus := "connected"
	if err := h.ledger.Ping(); err != nil {
		dbStatus = "disconnected"
	}

	c.JSON(http.StatusOK, gin.H{
		"status":    "OK",
		"database":  dbStatus,
		"timestamp": time.Now().UTC().Format(time.RFC3339),
		"uptime":    time.Since(h.startTime).Seconds(),
		"service":   serviceName,
	})
}

// GET /
func (h *HealthHandler) Info(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"service":   serviceName,
		"version":   "1.0.0",
		"status":    "Running",
		"endpoints": []string{"/activate", "/validate", "/health"},
	})
}
