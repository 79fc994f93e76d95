package handlers

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/soundprediction/expertgraph/pkg/driver"
)

// StatsProvider reports aggregate graph counts for health checks.
type StatsProvider interface {
	Stats(ctx context.Context) (*driver.GraphStats, error)
}

// HealthHandler handles health and readiness probes
type HealthHandler struct {
	stats StatsProvider
}

// NewHealthHandler creates a new health handler
func NewHealthHandler(stats StatsProvider) *HealthHandler {
	return &HealthHandler{stats: stats}
}

// Health handles GET /healthz
func (h *HealthHandler) Health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

// Ready handles GET /readyz: the service is ready when the graph store
// answers.
func (h *HealthHandler) Ready(c *gin.Context) {
	stats, err := h.stats.Stats(c.Request.Context())
	if err != nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{
			"status": "unavailable",
			"error":  err.Error(),
		})
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"status": "ready",
		"nodes":  stats.NodeCount,
		"edges":  stats.EdgeCount,
	})
}
