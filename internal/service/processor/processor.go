// Package processor turns one inbound email into one persisted quote draft.
package processor

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"time"

	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"

	"mail-to-quote-go/internal/apperr"
	"mail-to-quote-go/internal/collaborator"
	"mail-to-quote-go/internal/metrics"
	"mail-to-quote-go/internal/model"
	"mail-to-quote-go/internal/repository"
)

// Stage is the position of one email in the pipeline.
type Stage string

const (
	StageReceived        Stage = "RECEIVED"
	StageLLMAnalyzed     Stage = "LLM_ANALYZED"
	StageClientMatched   Stage = "CLIENT_MATCHED"
	StageProductsMatched Stage = "PRODUCTS_MATCHED"
	StagePriced          Stage = "PRICED"
	StagePersisted       Stage = "PERSISTED"
	StageFailed          Stage = "FAILED"
)

// QuoteStore is the part of the quote repository the pipeline writes through.
type QuoteStore interface {
	CreateQuoteDraft(ctx context.Context, p repository.CreateQuoteDraftParams) (string, error)
	GetQuoteDraft(ctx context.Context, quoteID string) (*model.QuoteDraft, error)
}

// StepLogger records pipeline steps.
type StepLogger interface {
	LogStep(ctx context.Context, mailID string, step model.Step, status model.LogStatus, details string) error
}

// MailProcessor runs the fixed, sequential mail-to-quote pipeline
type MailProcessor struct {
	analyzer collaborator.Analyzer
	matcher  collaborator.Matcher
	quotes   QuoteStore
	logs     StepLogger
	metrics  *metrics.Metrics
	now      func() time.Time
}

// New creates a mail processor
func New(analyzer collaborator.Analyzer, matcher collaborator.Matcher, quotes QuoteStore, logs StepLogger, m *metrics.Metrics) *MailProcessor {
	return &MailProcessor{
		analyzer: analyzer,
		matcher:  matcher,
		quotes:   quotes,
		logs:     logs,
		metrics:  m,
		now:      func() time.Time { return time.Now().UTC() },
	}
}

type pipelineRun struct {
	mailID string
	stage  Stage
}

// ProcessIncomingEmail runs every stage for one email and returns the stored
// quote draft. Any failure is logged as PROCESSING_ERROR and returned; the
// draft is only written at the last stage, so a failed run stores nothing.
// A Conflict means the mail is already processed and is returned unlogged.
func (p *MailProcessor) ProcessIncomingEmail(ctx context.Context, mailID string, email model.EmailPayload) (*model.QuoteDraft, error) {
	start := time.Now()
	run := &pipelineRun{mailID: mailID, stage: StageReceived}
	p.metrics.EmailsReceived.Inc()

	draft, err := p.run(ctx, run, email)
	if err != nil && apperr.IsConflict(err) {
		// another delivery of the same mail stored its draft first
		logrus.WithFields(logrus.Fields{
			"mail_id": mailID,
			"stage":   run.stage,
		}).Info("Quote draft already stored by a concurrent delivery")
		return nil, err
	}
	if err != nil {
		p.metrics.PipelineFailures.Inc()
		return nil, p.fail(ctx, run, err)
	}

	p.metrics.QuotesCreated.Inc()
	p.metrics.ProcessingTime.Observe(time.Since(start).Seconds())
	logrus.WithFields(logrus.Fields{
		"mail_id":  mailID,
		"quote_id": draft.ID,
		"lines":    len(draft.Lines),
	}).Info("Quote draft created")
	return draft, nil
}

func (p *MailProcessor) run(ctx context.Context, run *pipelineRun, email model.EmailPayload) (*model.QuoteDraft, error) {
	if err := p.step(ctx, run, model.StepWebhookReceived, model.LogSuccess, "subject=%q sender=%s", email.Subject, email.SenderEmail); err != nil {
		return nil, err
	}

	if err := p.step(ctx, run, model.StepLLMAnalysisStart, model.LogPending, ""); err != nil {
		return nil, err
	}
	analysis, err := p.analyzer.Analyze(ctx, email)
	if err != nil {
		return nil, apperr.Upstream("llm analysis", err)
	}
	if analysis == nil {
		return nil, apperr.Upstream("llm analysis", errors.New("empty analysis"))
	}
	run.stage = StageLLMAnalyzed
	if err := p.step(ctx, run, model.StepLLMAnalysisComplete, model.LogSuccess, "is_quote_request=%t", analysis.IsQuoteRequest); err != nil {
		return nil, err
	}

	match, err := p.matcher.Match(ctx, email.Body, email.SenderEmail, email.Subject)
	if err != nil {
		return nil, apperr.Upstream("erp matching", err)
	}
	if match == nil {
		return nil, apperr.Upstream("erp matching", errors.New("empty match result"))
	}

	clientStatus, clientCode := deriveClient(match.Clients)
	run.stage = StageClientMatched
	if err := p.step(ctx, run, model.StepSAPClientSearchComplete, model.LogSuccess, "status=%s candidates=%d", clientStatus, len(match.Clients)); err != nil {
		return nil, err
	}

	lines, resolved, priced := p.buildLines(match.Products)
	run.stage = StageProductsMatched
	if err := p.step(ctx, run, model.StepSAPProductsSearchComplete, model.LogSuccess, "resolved=%d total=%d", resolved, len(lines)); err != nil {
		return nil, err
	}

	// prices arrive with the product matches; this stage only records them
	run.stage = StagePriced
	if err := p.step(ctx, run, model.StepPricingComplete, model.LogSuccess, "priced=%d total=%d", priced, len(lines)); err != nil {
		return nil, err
	}

	raw, err := json.Marshal(email)
	if err != nil {
		return nil, apperr.Wrap(apperr.KindInternal, "failed to encode email payload", err)
	}

	quoteID, err := p.quotes.CreateQuoteDraft(ctx, repository.CreateQuoteDraftParams{
		MailID:       run.mailID,
		RawPayload:   raw,
		ClientCode:   clientCode,
		ClientStatus: clientStatus,
		Lines:        lines,
	})
	if err != nil {
		return nil, err
	}
	run.stage = StagePersisted
	if err := p.step(ctx, run, model.StepQuoteDraftCreated, model.LogSuccess, "quote_id=%s", quoteID); err != nil {
		return nil, err
	}

	return p.quotes.GetQuoteDraft(ctx, quoteID)
}

// buildLines turns product candidates into new lines and counts the resolved
// and priced ones.
func (p *MailProcessor) buildLines(products []collaborator.ProductCandidate) (lines []model.NewLine, resolved, priced int) {
	lines = make([]model.NewLine, 0, len(products))
	for _, prod := range products {
		status := deriveProductStatus(prod)
		reference := prod.Reference
		if reference == "" {
			reference = prod.ItemCode
		}
		quantity := prod.Quantity
		if quantity <= 0 {
			quantity = 1
		}

		line := model.NewLine{
			SupplierCode: reference,
			Description:  prod.ItemName,
			Quantity:     quantity,
			LineSAPData: model.LineSAPData{
				SAPStatus: status,
				SearchMetadata: model.SearchMetadata{
					SearchType:      classifySearchType(prod.MatchReason),
					QueryUsed:       reference,
					SearchTimestamp: p.now(),
					MatchScore:      clampScore(prod.Score),
				},
			},
		}
		if status != model.MatchNotFound && prod.ItemCode != "" {
			code := prod.ItemCode
			line.SAPItemCode = &code
			line.SAPPrice = prod.UnitPrice
		} else {
			line.SAPPrice = decimal.NullDecimal{}
		}

		if status == model.MatchFound {
			resolved++
		}
		if line.SAPPrice.Valid {
			priced++
		}
		lines = append(lines, line)
	}
	return lines, resolved, priced
}

func (p *MailProcessor) step(ctx context.Context, run *pipelineRun, step model.Step, status model.LogStatus, format string, args ...any) error {
	details := format
	if len(args) > 0 {
		details = fmt.Sprintf(format, args...)
	}
	return p.logs.LogStep(ctx, run.mailID, step, status, details)
}

func (p *MailProcessor) fail(ctx context.Context, run *pipelineRun, err error) error {
	failedAt := run.stage
	run.stage = StageFailed

	details := fmt.Sprintf("%s at %s: %v", apperr.GetKind(err), failedAt, err)
	logrus.WithFields(logrus.Fields{
		"mail_id": run.mailID,
		"stage":   failedAt,
	}).Errorf("Mail processing failed: %v", err)

	if logErr := p.logs.LogStep(ctx, run.mailID, model.StepProcessingError, model.LogError, details); logErr != nil {
		return errors.Join(err, logErr)
	}
	return err
}

func clampScore(s float64) float64 {
	return math.Max(0, math.Min(100, s))
}
