package api

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/sony/gobreaker/v2"

	"github.com/pageza/alchemorsel-recommender/internal/index"
)

type breakerStater interface {
	State() gobreaker.State
}

type HealthHandler struct {
	index index.Index
}

func NewHealthHandler(idx index.Index) *HealthHandler {
	return &HealthHandler{index: idx}
}

// Health reports whether the vector index is reachable.
func (h *HealthHandler) Health(c *gin.Context) {
	body := gin.H{"status": "healthy", "index": "reachable"}
	status := http.StatusOK

	if h.index == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"status": "unhealthy", "index": "not configured"})
		return
	}
	if b, ok := h.index.(breakerStater); ok {
		body["circuit_breaker"] = b.State().String()
	}

	ctx, cancel := context.WithTimeout(c.Request.Context(), 5*time.Second)
	defer cancel()
	if err := h.index.Ping(ctx); err != nil {
		status = http.StatusServiceUnavailable
		body["status"] = "unhealthy"
		body["index"] = "unreachable"
		body["error"] = userMessage(err)
		logError(c, status, err)
	}
	c.JSON(status, body)
}
