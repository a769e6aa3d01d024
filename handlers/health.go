package handlers

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
)

// Version is reported by the health endpoints
var Version = "dev"

// HealthHandler handles health check endpoints
type HealthHandler struct {
	service string
	dataDir string
	started time.Time
}

// NewHealthHandler creates a new health handler
func NewHealthHandler(service, dataDir string) *HealthHandler {
	return &HealthHandler{
		service: service,
		dataDir: dataDir,
		started: time.Now(),
	}
}

// HealthCheck returns the health status of the service
func (h *HealthHandler) HealthCheck(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status":    "healthy",
		"service":   h.service,
		"version":   Version,
		"timestamp": time.Now().Unix(),
	})
}

// APIStatus returns the status of the API
func (h *HealthHandler) APIStatus(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"message":  "tapedeck API is running",
		"data_dir": h.dataDir,
		"uptime":   time.Since(h.started).Round(time.Second).String(),
	})
}
