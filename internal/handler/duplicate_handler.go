package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"mail-to-quote-go/internal/service/duplicate"
)

// CheckDuplicate classifies an email against previously processed ones
func (h *Handlers) CheckDuplicate(c *gin.Context) {
	var req duplicate.Check
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}
	c.JSON(http.StatusOK, h.duplicates.CheckDuplicate(c.Request.Context(), req))
}

// GetDuplicateStats returns the duplicate detector statistics
func (h *Handlers) GetDuplicateStats(c *gin.Context) {
	stats, err := h.duplicates.Statistics(c.Request.Context())
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, stats)
}
