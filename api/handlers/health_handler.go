package handlers

import (
	"net/http"
	"os/exec"

	"github.com/gin-gonic/gin"
	"github.com/sridip-de/yt-dlp-gui/internal/app"
)

// Version is reported by the health endpoint
var Version = "dev"

// HealthHandler handles health check requests
type HealthHandler struct {
	manager  *app.Manager
	binary   string
	lookPath func(string) (string, error)
}

// NewHealthHandler creates a new health handler
func NewHealthHandler(manager *app.Manager, binary string) *HealthHandler {
	return &HealthHandler{
		manager:  manager,
		binary:   binary,
		lookPath: exec.LookPath,
	}
}

// HealthResponse represents a health check response
type HealthResponse struct {
	Status  string           `json:"status"`
	Version string           `json:"version"`
	Slots   []app.SlotStatus `json:"slots"`
}

// Health handles GET /health
func (h *HealthHandler) Health(c *gin.Context) {
	c.JSON(http.StatusOK, HealthResponse{
		Status:  "ok",
		Version: Version,
		Slots:   h.manager.Slots(),
	})
}

// Ready handles GET /ready. The service is only useful when yt-dlp can be found.
func (h *HealthHandler) Ready(c *gin.Context) {
	path, err := h.lookPath(h.binary)
	if err != nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{
			"status": "not ready",
			"reason": "downloader binary not found: " + h.binary,
		})
		return
	}

	c.JSON(http.StatusOK, gin.H{"status": "ready", "binary": path})
}
