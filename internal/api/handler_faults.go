package api

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog/log"

	"machine-monitor-backend/internal/store"
)

// MaxFaultLimit caps the limit query parameter of GET /api/faults.
const MaxFaultLimit = 500

// ListFaults handles GET /api/faults?limit=N, newest first.
func (h *Handler) ListFaults(c *gin.Context) {
	limit := store.DefaultFaultLimit
	if raw := c.Query("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n <= 0 {
			c.JSON(http.StatusBadRequest, gin.H{"error": "limit must be a positive integer"})
			return
		}
		limit = min(n, MaxFaultLimit)
	}

	faults, err := h.store.ListRecentFaults(c.Request.Context(), limit)
	if err != nil {
		log.Error().Err(err).Msg("list faults")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to retrieve fault logs"})
		return
	}
	c.JSON(http.StatusOK, faults)
}
