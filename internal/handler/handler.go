package handler

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/sirupsen/logrus"
	"gorm.io/gorm"

	"mail-to-quote-go/internal/apperr"
	"mail-to-quote-go/internal/model"
	"mail-to-quote-go/internal/scheduler"
	"mail-to-quote-go/internal/service/duplicate"
	"mail-to-quote-go/internal/service/ingest"
	"mail-to-quote-go/internal/service/retry"
)

// QuoteService reads and repairs quote drafts.
type QuoteService interface {
	Read(ctx context.Context, quoteID string) (*model.QuoteDraft, error)
	Retry(ctx context.Context, quoteID, lineID string, manualCode *string) (*retry.LineRetryResult, error)
	Logs(ctx context.Context, quoteID string) ([]model.ProcessingLogEntry, error)
	UpdateStatus(ctx context.Context, quoteID string, status model.QuoteStatus) error
}

// Ingester admits emails.
type Ingester interface {
	Ingest(ctx context.Context, mailID string, email model.EmailPayload) (*ingest.Outcome, error)
}

// DuplicateChecker exposes the duplicate detector.
type DuplicateChecker interface {
	CheckDuplicate(ctx context.Context, c duplicate.Check) *duplicate.Result
	Statistics(ctx context.Context) (*duplicate.Statistics, error)
}

// LogReader lists processing log entries across mails.
type LogReader interface {
	RecentLogs(ctx context.Context, limit int) ([]model.ProcessingLogEntry, error)
	ErrorLogs(ctx context.Context, limit int) ([]model.ProcessingLogEntry, error)
}

// Handlers contains all HTTP handlers
type Handlers struct {
	db         *gorm.DB
	quotes     QuoteService
	ingester   Ingester
	duplicates DuplicateChecker
	logs       LogReader
	scheduler  *scheduler.Scheduler
}

// NewHandlers creates new HTTP handlers. sched is nil when inbox polling is
// disabled.
func NewHandlers(db *gorm.DB, quotes QuoteService, ingester Ingester, duplicates DuplicateChecker, logs LogReader, sched *scheduler.Scheduler) *Handlers {
	registerValidations()
	return &Handlers{
		db:         db,
		quotes:     quotes,
		ingester:   ingester,
		duplicates: duplicates,
		logs:       logs,
		scheduler:  sched,
	}
}

// SetupRoutes sets up all HTTP routes
func (h *Handlers) SetupRoutes(router *gin.Engine) {
	router.GET("/healthz", h.HealthCheck)
	router.GET("/metrics", gin.WrapH(promhttp.Handler()))

	api := router.Group("/api/v1")
	{
		api.POST("/mails", h.CreateMail)

		api.GET("/quotes/:id", h.GetQuote)
		api.GET("/quotes/:id/logs", h.GetQuoteLogs)
		api.PATCH("/quotes/:id/status", h.UpdateQuoteStatus)
		api.POST("/quotes/:id/lines/:line_id/retry", h.RetryLine)

		api.POST("/duplicates/check", h.CheckDuplicate)
		api.GET("/duplicates/stats", h.GetDuplicateStats)

		api.GET("/logs/recent", h.GetRecentLogs)
		api.GET("/logs/errors", h.GetErrorLogs)

		if h.scheduler != nil {
			api.POST("/scheduler/start", h.StartScheduler)
			api.POST("/scheduler/stop", h.StopScheduler)
			api.POST("/scheduler/run-once", h.RunOnce)
			api.GET("/scheduler/status", h.GetSchedulerStatus)
		}
	}
}

// HealthCheck handles health check requests
func (h *Handlers) HealthCheck(c *gin.Context) {
	response := HealthResponse{
		Status:    "ok",
		Timestamp: time.Now(),
		Database:  "ok",
		Scheduler: "disabled",
	}

	if err := h.pingDB(c.Request.Context()); err != nil {
		response.Status = "error"
		response.Database = "error"
		logrus.Errorf("Database health check failed: %v", err)
	}

	if h.scheduler != nil {
		response.Scheduler = "stopped"
		if h.scheduler.IsRunning() {
			response.Scheduler = "running"
			next := h.scheduler.GetNextRun()
			response.NextRun = &next
		}
	}

	statusCode := http.StatusOK
	if response.Status == "error" {
		statusCode = http.StatusServiceUnavailable
	}
	c.JSON(statusCode, response)
}

func (h *Handlers) pingDB(ctx context.Context) error {
	sqlDB, err := h.db.DB()
	if err != nil {
		return err
	}
	ctx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()
	return sqlDB.PingContext(ctx)
}

// respondError writes err with the status of its kind. Unknown errors are
// reported as internal without their message.
func respondError(c *gin.Context, err error) {
	var appErr *apperr.Error
	if !errors.As(err, &appErr) {
		logrus.Errorf("Unhandled error on %s %s: %v", c.Request.Method, c.FullPath(), err)
		c.JSON(http.StatusInternalServerError, ErrorResponse{
			Error:   apperr.KindInternal.String(),
			Message: "Internal server error",
			Code:    http.StatusInternalServerError,
		})
		return
	}

	status := appErr.HTTPStatus()
	message := appErr.Error()
	if status >= http.StatusInternalServerError {
		logrus.Errorf("Request %s %s failed: %v", c.Request.Method, c.FullPath(), err)
		if appErr.Kind == apperr.KindPersistence || appErr.Kind == apperr.KindInternal {
			message = appErr.Message
		}
	}
	c.JSON(status, ErrorResponse{
		Error:   appErr.Kind.String(),
		Message: message,
		Code:    status,
	})
}

func badRequest(c *gin.Context, err error) {
	c.JSON(http.StatusBadRequest, ErrorResponse{
		Error:   apperr.KindValidation.String(),
		Message: err.Error(),
		Code:    http.StatusBadRequest,
	})
}
