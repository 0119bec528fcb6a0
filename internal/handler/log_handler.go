package handler

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
)

// GetRecentLogs returns the newest processing log entries
func (h *Handlers) GetRecentLogs(c *gin.Context) {
	entries, err := h.logs.RecentLogs(c.Request.Context(), limitParam(c))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"logs": entries, "count": len(entries)})
}

// GetErrorLogs returns the newest ERROR entries
func (h *Handlers) GetErrorLogs(c *gin.Context) {
	entries, err := h.logs.ErrorLogs(c.Request.Context(), limitParam(c))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"logs": entries, "count": len(entries)})
}

// limitParam reads ?limit=; out-of-range values are normalized by the log service.
func limitParam(c *gin.Context) int {
	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "50"))
	return limit
}
