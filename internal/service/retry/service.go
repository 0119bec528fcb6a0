// Package retry re-runs ERP matching for a single line of a stored quote draft.
package retry

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"

	"mail-to-quote-go/internal/apperr"
	"mail-to-quote-go/internal/collaborator"
	"mail-to-quote-go/internal/metrics"
	"mail-to-quote-go/internal/model"
)

// QuoteStore is the part of the quote repository a retry needs.
type QuoteStore interface {
	GetQuoteDraft(ctx context.Context, quoteID string) (*model.QuoteDraft, error)
	UpdateLineSAPData(ctx context.Context, quoteID, lineID string, data model.LineSAPData) (*model.UpdatedLine, error)
}

// StepLogger records retry steps.
type StepLogger interface {
	LogStep(ctx context.Context, mailID string, step model.Step, status model.LogStatus, details string) error
}

// LineRetryResult is the state of the line after a retry.
type LineRetryResult struct {
	Success     bool                `json:"success"`
	LineID      string              `json:"line_id"`
	SAPItemCode *string             `json:"sap_item_code"`
	SAPStatus   model.MatchStatus   `json:"sap_status"`
	SAPPrice    decimal.NullDecimal `json:"sap_price"`
	UpdatedAt   time.Time           `json:"updated_at"`
}

// Service retries ERP matching for one line
type Service struct {
	quotes   QuoteStore
	searcher collaborator.ItemSearcher
	pricer   collaborator.Pricer
	logs     StepLogger
	metrics  *metrics.Metrics
	now      func() time.Time
}

// New creates a retry service
func New(quotes QuoteStore, searcher collaborator.ItemSearcher, pricer collaborator.Pricer, logs StepLogger, m *metrics.Metrics) *Service {
	return &Service{
		quotes:   quotes,
		searcher: searcher,
		pricer:   pricer,
		logs:     logs,
		metrics:  m,
		now:      func() time.Time { return time.Now().UTC() },
	}
}

// RetryLineSearch re-resolves one line. With a manual code the ERP is queried
// for that exact code; otherwise the original fuzzy search is replayed from
// the line's supplier code and description. Unknown quote or line ids are
// returned as NotFound without a RETRY_LINE_ERROR entry.
func (s *Service) RetryLineSearch(ctx context.Context, quoteID, lineID string, manualCode *string) (*LineRetryResult, error) {
	draft, err := s.quotes.GetQuoteDraft(ctx, quoteID)
	if err != nil {
		return nil, err
	}
	line, ok := draft.Line(lineID)
	if !ok {
		return nil, apperr.NotFound("line %s not found in quote draft %s", lineID, quoteID)
	}

	manual := manualCode != nil && *manualCode != ""
	step, mode := model.StepRetryLineSearch, "fuzzy"
	if manual {
		step, mode = model.StepManualCodeUpdate, "manual"
	}

	result, err := s.retry(ctx, draft, line, step, manual, manualCode)
	if err != nil {
		s.metrics.LineRetries.WithLabelValues(mode, "error").Inc()
		return nil, s.fail(ctx, draft.MailID, lineID, err)
	}

	outcome := "unresolved"
	if result.Success {
		outcome = "resolved"
	}
	s.metrics.LineRetries.WithLabelValues(mode, outcome).Inc()
	return result, nil
}

func (s *Service) retry(ctx context.Context, draft *model.QuoteDraft, line *model.QuoteDraftLine, step model.Step, manual bool, manualCode *string) (*LineRetryResult, error) {
	clientCode := ""
	if draft.ClientCode != nil {
		clientCode = *draft.ClientCode
	}

	query := collaborator.ItemQuery{
		Code:        line.SupplierCode,
		Description: line.Description,
		ClientCode:  clientCode,
	}
	searchType := model.SearchRetryFuzzy
	if manual {
		query = collaborator.ItemQuery{Code: *manualCode, ClientCode: clientCode, Exact: true}
		searchType = model.SearchManual
	}

	if err := s.logs.LogStep(ctx, draft.MailID, step, model.LogPending, fmt.Sprintf("line_id=%s query=%q", line.LineID, query.Code)); err != nil {
		return nil, err
	}

	found, err := s.searcher.SearchItem(ctx, query)
	if err != nil {
		return nil, apperr.Upstream("erp item search", err)
	}
	if found == nil || !found.Status.Valid() {
		return nil, apperr.Upstream("erp item search", errors.New("invalid search result"))
	}

	data := model.LineSAPData{
		SAPStatus: found.Status,
		SearchMetadata: model.SearchMetadata{
			SearchType:      searchType,
			QueryUsed:       found.QueryUsed,
			SearchTimestamp: found.Timestamp,
			MatchScore:      found.BestScore(),
		},
	}
	if data.SearchMetadata.QueryUsed == "" {
		data.SearchMetadata.QueryUsed = query.Code
	}
	if data.SearchMetadata.SearchTimestamp.IsZero() {
		data.SearchMetadata.SearchTimestamp = s.now()
	}

	if found.ItemCode != nil && *found.ItemCode != "" {
		code := *found.ItemCode
		data.SAPItemCode = &code
	} else if manual && found.Status == model.MatchFound {
		code := *manualCode
		data.SAPItemCode = &code
	}

	if found.Status == model.MatchFound {
		if data.SAPItemCode == nil {
			return nil, apperr.Upstream("erp item search", errors.New("found result without item code"))
		}
		if len(found.Candidates) == 0 {
			data.SearchMetadata.MatchScore = 100
		}
		data.SAPPrice = s.price(ctx, draft, line, *data.SAPItemCode, clientCode)
	}

	updated, err := s.quotes.UpdateLineSAPData(ctx, draft.ID, line.LineID, data)
	if err != nil {
		return nil, err
	}

	details := fmt.Sprintf("line_id=%s status=%s", line.LineID, updated.SAPStatus)
	if updated.SAPItemCode != nil {
		details += " item_code=" + *updated.SAPItemCode
	}
	if err := s.logs.LogStep(ctx, draft.MailID, step, model.LogSuccess, details); err != nil {
		return nil, err
	}

	return &LineRetryResult{
		Success:     updated.SAPStatus == model.MatchFound,
		LineID:      updated.LineID,
		SAPItemCode: updated.SAPItemCode,
		SAPStatus:   updated.SAPStatus,
		SAPPrice:    updated.SAPPrice,
		UpdatedAt:   updated.QuoteUpdatedAt,
	}, nil
}

// price asks for a fresh unit price. A pricing failure leaves the line unpriced.
func (s *Service) price(ctx context.Context, draft *model.QuoteDraft, line *model.QuoteDraftLine, itemCode, clientCode string) decimal.NullDecimal {
	price, err := s.pricer.Price(ctx, itemCode, clientCode, line.Quantity)
	if err != nil {
		logrus.WithFields(logrus.Fields{
			"mail_id":  draft.MailID,
			"quote_id": draft.ID,
			"line_id":  line.LineID,
		}).Warnf("Pricing failed, line left unpriced: %v", err)
		return decimal.NullDecimal{}
	}
	return price
}

func (s *Service) fail(ctx context.Context, mailID, lineID string, err error) error {
	details := fmt.Sprintf("line_id=%s %s: %v", lineID, apperr.GetKind(err), err)
	if logErr := s.logs.LogStep(ctx, mailID, model.StepRetryLineError, model.LogError, details); logErr != nil {
		return errors.Join(err, logErr)
	}
	return err
}
