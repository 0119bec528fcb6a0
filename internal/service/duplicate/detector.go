// Package duplicate flags inbound emails that repeat earlier work. It never
// blocks ingestion: any internal failure is reported as no duplicate.
package duplicate

import (
	"context"
	"fmt"
	"strings"
	"sync/atomic"
	"time"

	"github.com/sirupsen/logrus"

	"mail-to-quote-go/internal/config"
	"mail-to-quote-go/internal/metrics"
	"mail-to-quote-go/internal/model"
	"mail-to-quote-go/internal/repository"
)

// Type is the strength of a duplicate match.
type Type string

const (
	TypeStrict   Type = "STRICT"
	TypeProbable Type = "PROBABLE"
	TypePossible Type = "POSSIBLE"
	TypeNone     Type = "NONE"
)

// Store is the bookkeeping the detector reads and writes.
type Store interface {
	FindByEmailID(ctx context.Context, emailID string) (*model.ProcessedEmail, error)
	Upsert(ctx context.Context, rec *model.ProcessedEmail) error
	RecentByClient(ctx context.Context, clientCardCode string, since time.Time, limit int) ([]model.ProcessedEmail, error)
	RecentBySender(ctx context.Context, senderEmail string, since time.Time, limit int) ([]model.ProcessedEmail, error)
	UpdateOutcome(ctx context.Context, emailID string, u repository.OutcomeUpdate) error
	CountByStatus(ctx context.Context) (map[model.EmailStatus]int64, error)
}

// Check describes the inbound email to classify.
type Check struct {
	EmailID        string   `json:"email_id" binding:"required"`
	SenderEmail    string   `json:"sender_email"`
	Subject        string   `json:"subject"`
	ClientCardCode string   `json:"client_card_code,omitempty"`
	ProductCodes   []string `json:"product_codes,omitempty"`
}

// Result is the outcome of a duplicate check.
type Result struct {
	IsDuplicate   bool                  `json:"is_duplicate"`
	Type          Type                  `json:"type"`
	ExistingQuote *string               `json:"existing_quote,omitempty"`
	Existing      *model.ProcessedEmail `json:"existing,omitempty"`
	Confidence    float64               `json:"confidence"`
}

func none() *Result {
	return &Result{Type: TypeNone}
}

// Registration is the record written once an email enters processing.
type Registration struct {
	EmailID        string
	Subject        string
	SenderEmail    string
	ClientCardCode string
	ClientName     string
	ProductCodes   []string
	QuoteID        *string
	Status         model.EmailStatus
	Notes          string
}

// Statistics summarizes the bookkeeping store.
type Statistics struct {
	Total               int64                       `json:"total"`
	ByStatus            map[model.EmailStatus]int64 `json:"by_status"`
	DuplicatesPrevented int64                       `json:"duplicates_prevented"`
	SuccessRate         float64                     `json:"success_rate"`
}

// Detector classifies emails against previously registered ones.
type Detector struct {
	store     Store
	cfg       config.DuplicateConfig
	metrics   *metrics.Metrics
	now       func() time.Time
	prevented atomic.Int64
}

// NewDetector creates a duplicate detector
func NewDetector(store Store, cfg config.DuplicateConfig, m *metrics.Metrics) *Detector {
	return &Detector{
		store:   store,
		cfg:     cfg,
		metrics: m,
		now:     func() time.Time { return time.Now().UTC() },
	}
}

// CheckDuplicate runs the strict, probable and possible strategies in order
// and returns the first hit. Errors are logged and reported as TypeNone.
func (d *Detector) CheckDuplicate(ctx context.Context, c Check) (res *Result) {
	defer func() {
		if r := recover(); r != nil {
			logrus.WithField("email_id", c.EmailID).Errorf("Duplicate check panicked: %v", r)
			res = none()
		}
	}()

	res, err := d.check(ctx, c)
	if err != nil {
		logrus.WithField("email_id", c.EmailID).Warnf("Duplicate check failed, treating as new email: %v", err)
		return none()
	}
	if res.IsDuplicate {
		d.prevented.Add(1)
		d.metrics.DuplicatesDetected.WithLabelValues(string(res.Type)).Inc()
		logrus.WithFields(logrus.Fields{
			"email_id":   c.EmailID,
			"type":       res.Type,
			"confidence": res.Confidence,
		}).Info("Duplicate email detected")
	}
	return res
}

func (d *Detector) check(ctx context.Context, c Check) (*Result, error) {
	if c.EmailID == "" {
		return nil, fmt.Errorf("email id is required")
	}

	existing, err := d.store.FindByEmailID(ctx, c.EmailID)
	if err != nil {
		return nil, err
	}
	if existing != nil {
		return hit(TypeStrict, existing, 1.0), nil
	}

	since := d.now().AddDate(0, 0, -d.cfg.WindowDays)

	if c.ClientCardCode != "" && len(c.ProductCodes) > 0 {
		recs, err := d.store.RecentByClient(ctx, c.ClientCardCode, since, d.cfg.ScanLimit)
		if err != nil {
			return nil, err
		}
		wanted := toSet(c.ProductCodes)
		if best, score := bestMatch(recs, func(r model.ProcessedEmail) float64 {
			return jaccard(wanted, toSet(r.ProductCodes))
		}); best != nil && score >= d.cfg.ProbableThreshold {
			return hit(TypeProbable, best, score), nil
		}
	}

	sender := normalizeSender(c.SenderEmail)
	if sender != "" {
		recs, err := d.store.RecentBySender(ctx, sender, since, d.cfg.ScanLimit)
		if err != nil {
			return nil, err
		}
		words := subjectWords(c.Subject)
		if best, score := bestMatch(recs, func(r model.ProcessedEmail) float64 {
			return jaccard(words, subjectWords(r.EmailSubject))
		}); best != nil && score >= d.cfg.PossibleThreshold {
			return hit(TypePossible, best, score), nil
		}
	}

	return none(), nil
}

func hit(t Type, rec *model.ProcessedEmail, confidence float64) *Result {
	return &Result{
		IsDuplicate:   true,
		Type:          t,
		ExistingQuote: rec.QuoteID,
		Existing:      rec,
		Confidence:    confidence,
	}
}

// bestMatch returns the record with the highest score. Ties keep the most
// recent record, which comes first.
func bestMatch(recs []model.ProcessedEmail, score func(model.ProcessedEmail) float64) (*model.ProcessedEmail, float64) {
	var best *model.ProcessedEmail
	bestScore := -1.0
	for i := range recs {
		if s := score(recs[i]); s > bestScore {
			best, bestScore = &recs[i], s
		}
	}
	return best, bestScore
}

// RegisterEmail upserts the bookkeeping record for an email. Status defaults
// to pending.
func (d *Detector) RegisterEmail(ctx context.Context, reg Registration) error {
	if reg.EmailID == "" {
		return fmt.Errorf("email id is required")
	}
	status := reg.Status
	if status == "" {
		status = model.EmailPending
	}
	if !status.Valid() {
		return fmt.Errorf("invalid email status %q", status)
	}

	return d.store.Upsert(ctx, &model.ProcessedEmail{
		EmailID:        reg.EmailID,
		EmailSubject:   reg.Subject,
		SenderEmail:    normalizeSender(reg.SenderEmail),
		ClientCardCode: reg.ClientCardCode,
		ClientName:     reg.ClientName,
		ProductCodes:   reg.ProductCodes,
		ProcessedAt:    d.now(),
		QuoteID:        reg.QuoteID,
		Status:         status,
		Notes:          reg.Notes,
	})
}

// UpdateQuoteStatus records the outcome of processing an email.
func (d *Detector) UpdateQuoteStatus(ctx context.Context, emailID string, status model.EmailStatus, quoteID *string, sapDocEntry *int) error {
	if !status.Valid() {
		return fmt.Errorf("invalid email status %q", status)
	}
	return d.store.UpdateOutcome(ctx, emailID, repository.OutcomeUpdate{
		Status:      status,
		QuoteID:     quoteID,
		SAPDocEntry: sapDocEntry,
	})
}

// Statistics returns counts by status, the number of duplicates flagged since
// start-up and the share of completed emails in percent.
func (d *Detector) Statistics(ctx context.Context) (*Statistics, error) {
	counts, err := d.store.CountByStatus(ctx)
	if err != nil {
		return nil, err
	}

	stats := &Statistics{ByStatus: counts, DuplicatesPrevented: d.prevented.Load()}
	for _, n := range counts {
		stats.Total += n
	}
	if stats.Total > 0 {
		stats.SuccessRate = float64(counts[model.EmailCompleted]) / float64(stats.Total) * 100
	}
	return stats, nil
}

func normalizeSender(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

func subjectWords(subject string) map[string]struct{} {
	return toSet(strings.Fields(strings.ToLower(subject)))
}

func toSet(items []string) map[string]struct{} {
	set := make(map[string]struct{}, len(items))
	for _, it := range items {
		if it = strings.TrimSpace(it); it != "" {
			set[it] = struct{}{}
		}
	}
	return set
}

// jaccard is |a ∩ b| / |a ∪ b|, and 0 when both sets are empty.
func jaccard(a, b map[string]struct{}) float64 {
	if len(a) == 0 && len(b) == 0 {
		return 0
	}
	inter := 0
	for k := range a {
		if _, ok := b[k]; ok {
			inter++
		}
	}
	union := len(a) + len(b) - inter
	return float64(inter) / float64(union)
}
