package handler

import (
	"errors"
	"io"
	"net/http"

	"github.com/gin-gonic/gin"
)

// CreateMail ingests one email and returns its quote draft summary
func (h *Handlers) CreateMail(c *gin.Context) {
	var req CreateMailRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}

	out, err := h.ingester.Ingest(c.Request.Context(), req.MailID, req.Payload)
	if err != nil {
		respondError(c, err)
		return
	}

	status := http.StatusOK
	if out.Quote != nil && out.Quote.Created {
		status = http.StatusCreated
	}
	c.JSON(status, out)
}

// GetQuote returns a quote draft with its lines
func (h *Handlers) GetQuote(c *gin.Context) {
	draft, err := h.quotes.Read(c.Request.Context(), c.Param("id"))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, draft)
}

// GetQuoteLogs returns the processing log of a quote draft's mail
func (h *Handlers) GetQuoteLogs(c *gin.Context) {
	entries, err := h.quotes.Logs(c.Request.Context(), c.Param("id"))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"logs": entries, "count": len(entries)})
}

// UpdateQuoteStatus moves a quote draft forward
func (h *Handlers) UpdateQuoteStatus(c *gin.Context) {
	var req UpdateStatusRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}

	id := c.Param("id")
	if err := h.quotes.UpdateStatus(c.Request.Context(), id, req.Status); err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"quote_id": id, "status": req.Status})
}

// RetryLine re-resolves one line. An empty body retries the original search.
func (h *Handlers) RetryLine(c *gin.Context) {
	var req RetryLineRequest
	if err := c.ShouldBindJSON(&req); err != nil && !errors.Is(err, io.EOF) {
		badRequest(c, err)
		return
	}

	res, err := h.quotes.Retry(c.Request.Context(), c.Param("id"), c.Param("line_id"), req.ManualCode)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, res)
}
