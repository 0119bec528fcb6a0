// Package ingest admits inbound emails: duplicate screening, quote creation
// and the detector's bookkeeping.
package ingest

import (
	"context"
	"fmt"

	"github.com/sirupsen/logrus"

	"mail-to-quote-go/internal/apperr"
	"mail-to-quote-go/internal/model"
	"mail-to-quote-go/internal/service/duplicate"
	"mail-to-quote-go/internal/service/quote"
)

// Action is what ingestion did with an email.
type Action string

const (
	ActionCreated  Action = "created"
	ActionExisting Action = "existing"
	ActionSkipped  Action = "skipped"
)

// Detector is the duplicate detector surface used during ingestion.
type Detector interface {
	CheckDuplicate(ctx context.Context, c duplicate.Check) *duplicate.Result
	RegisterEmail(ctx context.Context, reg duplicate.Registration) error
	UpdateQuoteStatus(ctx context.Context, emailID string, status model.EmailStatus, quoteID *string, sapDocEntry *int) error
}

// Quotes creates and reads quote drafts.
type Quotes interface {
	Create(ctx context.Context, mailID string, email model.EmailPayload) (*quote.CreateResult, error)
	Read(ctx context.Context, quoteID string) (*model.QuoteDraft, error)
}

// Outcome reports how one email was handled.
type Outcome struct {
	MailID    string              `json:"mail_id"`
	Action    Action              `json:"action"`
	Quote     *quote.CreateResult `json:"quote,omitempty"`
	Duplicate *duplicate.Result   `json:"duplicate,omitempty"`
}

// Service admits emails into the pipeline
type Service struct {
	detector Detector
	quotes   Quotes
}

// NewService creates an ingestion service
func NewService(detector Detector, quotes Quotes) *Service {
	return &Service{detector: detector, quotes: quotes}
}

// Ingest screens the email and creates its quote draft. An email already
// completed under the same id, or a probable repeat of a recent order, is
// skipped. A possible repeat is processed and noted. Bookkeeping failures are
// logged and never fail the ingestion.
func (s *Service) Ingest(ctx context.Context, mailID string, email model.EmailPayload) (*Outcome, error) {
	if mailID == "" {
		return nil, apperr.Validation("mail id is required")
	}
	log := logrus.WithField("mail_id", mailID)

	dup := s.detector.CheckDuplicate(ctx, duplicate.Check{
		EmailID:     mailID,
		SenderEmail: email.SenderEmail,
		Subject:     email.Subject,
	})
	out := &Outcome{MailID: mailID}
	if dup.IsDuplicate {
		out.Duplicate = dup
	}

	if skip(dup) {
		log.WithField("type", dup.Type).Info("Skipping duplicate email")
		out.Action = ActionSkipped
		return out, nil
	}

	notes := ""
	if dup.Type == duplicate.TypePossible && dup.Existing != nil {
		notes = fmt.Sprintf("possible duplicate of %s (%.2f)", dup.Existing.EmailID, dup.Confidence)
	}
	if err := s.detector.RegisterEmail(ctx, duplicate.Registration{
		EmailID:     mailID,
		Subject:     email.Subject,
		SenderEmail: email.SenderEmail,
		Status:      model.EmailPending,
		Notes:       notes,
	}); err != nil {
		log.Warnf("Failed to register email: %v", err)
	}

	res, err := s.quotes.Create(ctx, mailID, email)
	if err != nil {
		if uerr := s.detector.UpdateQuoteStatus(ctx, mailID, model.EmailRejected, nil, nil); uerr != nil {
			log.Warnf("Failed to mark email as rejected: %v", uerr)
		}
		return nil, err
	}

	out.Quote = res
	out.Action = ActionCreated
	if !res.Created {
		out.Action = ActionExisting
	}
	s.complete(ctx, log, mailID, email, res, notes)
	return out, nil
}

func skip(dup *duplicate.Result) bool {
	switch dup.Type {
	case duplicate.TypeStrict:
		return dup.Existing != nil && dup.Existing.Status == model.EmailCompleted
	case duplicate.TypeProbable:
		return true
	}
	return false
}

// complete re-registers the email with the matched client and item codes so
// later emails can be compared against this order.
func (s *Service) complete(ctx context.Context, log *logrus.Entry, mailID string, email model.EmailPayload, res *quote.CreateResult, notes string) {
	draft, err := s.quotes.Read(ctx, res.QuoteID)
	if err != nil {
		log.Warnf("Failed to read quote draft for bookkeeping: %v", err)
		return
	}

	reg := duplicate.Registration{
		EmailID:     mailID,
		Subject:     email.Subject,
		SenderEmail: email.SenderEmail,
		QuoteID:     &draft.ID,
		Status:      model.EmailCompleted,
		Notes:       notes,
	}
	if draft.ClientCode != nil {
		reg.ClientCardCode = *draft.ClientCode
	}
	for _, line := range draft.Lines {
		if line.SAPItemCode != nil {
			reg.ProductCodes = append(reg.ProductCodes, *line.SAPItemCode)
		}
	}
	if err := s.detector.RegisterEmail(ctx, reg); err != nil {
		log.Warnf("Failed to record processed email: %v", err)
	}
}
