package api

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"machine-monitor-backend/internal/db"
)

// Healthz reports liveness, database reachability and the number of connected viewers.
func (h *Handler) Healthz(c *gin.Context) {
	if err := db.Ping(c.Request.Context(), h.store.DB()); err != nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"status": "unavailable", "error": err.Error(), "viewers": h.viewerCount()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "ok", "viewers": h.viewerCount()})
}
