// Package quote is the entry point callers use to create, read and repair
// quote drafts.
package quote

import (
	"context"

	"github.com/sirupsen/logrus"

	"mail-to-quote-go/internal/apperr"
	"mail-to-quote-go/internal/metrics"
	"mail-to-quote-go/internal/model"
	"mail-to-quote-go/internal/service/retry"
)

// Store is the read side of the quote repository plus status updates.
type Store interface {
	CheckMailIDExists(ctx context.Context, mailID string) (bool, error)
	GetQuoteDraft(ctx context.Context, quoteID string) (*model.QuoteDraft, error)
	GetQuoteByMailID(ctx context.Context, mailID string) (*model.QuoteDraft, error)
	UpdateStatus(ctx context.Context, quoteID string, status model.QuoteStatus) error
}

// Processor runs the pipeline for one email.
type Processor interface {
	ProcessIncomingEmail(ctx context.Context, mailID string, email model.EmailPayload) (*model.QuoteDraft, error)
}

// Retrier retries one line.
type Retrier interface {
	RetryLineSearch(ctx context.Context, quoteID, lineID string, manualCode *string) (*retry.LineRetryResult, error)
}

// LogReader lists the processing log of one mail.
type LogReader interface {
	LogsForMail(ctx context.Context, mailID string) ([]model.ProcessingLogEntry, error)
}

// CreateResult summarizes a create call. Created is false when the mail had
// already been turned into a quote draft.
type CreateResult struct {
	QuoteID      string            `json:"quote_id"`
	ClientStatus model.MatchStatus `json:"client_status"`
	LinesCount   int               `json:"lines_count"`
	Created      bool              `json:"created"`
}

// Service exposes quote drafts to the HTTP layer and the inbox poller
type Service struct {
	store     Store
	processor Processor
	retrier   Retrier
	logs      LogReader
	metrics   *metrics.Metrics
}

// NewService creates a quote service
func NewService(store Store, processor Processor, retrier Retrier, logs LogReader, m *metrics.Metrics) *Service {
	return &Service{store: store, processor: processor, retrier: retrier, logs: logs, metrics: m}
}

// Create turns the email into a quote draft unless one already exists for
// mailID, in which case the existing draft is returned. A concurrent delivery
// that loses the insert race also gets the existing draft.
func (s *Service) Create(ctx context.Context, mailID string, email model.EmailPayload) (*CreateResult, error) {
	if mailID == "" {
		return nil, apperr.Validation("mail id is required")
	}

	exists, err := s.store.CheckMailIDExists(ctx, mailID)
	if err != nil {
		return nil, err
	}
	if exists {
		return s.existing(ctx, mailID)
	}

	draft, err := s.processor.ProcessIncomingEmail(ctx, mailID, email)
	if err != nil {
		if apperr.IsConflict(err) {
			return s.existing(ctx, mailID)
		}
		return nil, err
	}
	return summarize(draft, true), nil
}

func (s *Service) existing(ctx context.Context, mailID string) (*CreateResult, error) {
	draft, err := s.store.GetQuoteByMailID(ctx, mailID)
	if err != nil {
		return nil, err
	}
	s.metrics.AlreadyProcessed.Inc()
	logrus.WithFields(logrus.Fields{
		"mail_id":  mailID,
		"quote_id": draft.ID,
	}).Info("Mail already processed, returning existing quote draft")
	return summarize(draft, false), nil
}

func summarize(draft *model.QuoteDraft, created bool) *CreateResult {
	return &CreateResult{
		QuoteID:      draft.ID,
		ClientStatus: draft.ClientStatus,
		LinesCount:   len(draft.Lines),
		Created:      created,
	}
}

// Read returns a stored quote draft. It never calls a collaborator.
func (s *Service) Read(ctx context.Context, quoteID string) (*model.QuoteDraft, error) {
	return s.store.GetQuoteDraft(ctx, quoteID)
}

// Retry re-resolves one line, with manualCode when given.
func (s *Service) Retry(ctx context.Context, quoteID, lineID string, manualCode *string) (*retry.LineRetryResult, error) {
	return s.retrier.RetryLineSearch(ctx, quoteID, lineID, manualCode)
}

// Logs returns the processing log of the mail a quote draft was built from.
func (s *Service) Logs(ctx context.Context, quoteID string) ([]model.ProcessingLogEntry, error) {
	draft, err := s.store.GetQuoteDraft(ctx, quoteID)
	if err != nil {
		return nil, err
	}
	return s.logs.LogsForMail(ctx, draft.MailID)
}

// UpdateStatus moves a quote draft forward in its lifecycle.
func (s *Service) UpdateStatus(ctx context.Context, quoteID string, status model.QuoteStatus) error {
	return s.store.UpdateStatus(ctx, quoteID, status)
}
