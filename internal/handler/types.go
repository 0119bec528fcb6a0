package handler

import (
	"time"

	"mail-to-quote-go/internal/model"
)

// CreateMailRequest submits one inbound email
type CreateMailRequest struct {
	MailID  string             `json:"mail_id" binding:"required,max=255"`
	Payload model.EmailPayload `json:"payload"`
}

// RetryLineRequest optionally carries the ERP item code chosen by an operator
type RetryLineRequest struct {
	ManualCode *string `json:"manual_code" binding:"omitempty,min=1,max=100"`
}

// UpdateStatusRequest moves a quote draft to a new lifecycle status
type UpdateStatusRequest struct {
	Status model.QuoteStatus `json:"status" binding:"required,quote_status"`
}

// ErrorResponse represents an error response
type ErrorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message"`
	Code    int    `json:"code"`
}

// HealthResponse represents the health check response
type HealthResponse struct {
	Status    string     `json:"status"`
	Timestamp time.Time  `json:"timestamp"`
	Database  string     `json:"database"`
	Scheduler string     `json:"scheduler"`
	NextRun   *time.Time `json:"next_run,omitempty"`
}
