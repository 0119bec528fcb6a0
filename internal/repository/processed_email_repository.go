package repository

import (
	"context"
	"errors"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"mail-to-quote-go/internal/apperr"
	"mail-to-quote-go/internal/model"
)

// ProcessedEmailRepository is the duplicate detector's own bookkeeping store
type ProcessedEmailRepository struct {
	db *gorm.DB
}

// NewProcessedEmailRepository creates a processed email repository
func NewProcessedEmailRepository(db *gorm.DB) *ProcessedEmailRepository {
	return &ProcessedEmailRepository{db: db}
}

// FindByEmailID returns the record for emailID, or nil when there is none.
func (r *ProcessedEmailRepository) FindByEmailID(ctx context.Context, emailID string) (*model.ProcessedEmail, error) {
	var rec model.ProcessedEmail
	err := r.db.WithContext(ctx).Where("email_id = ?", emailID).First(&rec).Error
	if err == nil {
		return &rec, nil
	}
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	return nil, apperr.Persistence("failed to find processed email", err)
}

// Upsert inserts rec or overwrites the existing record with the same email id.
func (r *ProcessedEmailRepository) Upsert(ctx context.Context, rec *model.ProcessedEmail) error {
	if rec.ProcessedAt.IsZero() {
		rec.ProcessedAt = utcNow()
	}
	if rec.Status == "" {
		rec.Status = model.EmailPending
	}
	err := r.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns: []clause.Column{{Name: "email_id"}},
		DoUpdates: clause.AssignmentColumns([]string{
			"email_subject", "sender_email", "client_card_code", "client_name",
			"product_codes", "processed_at", "quote_id", "status", "sap_doc_entry", "notes",
		}),
	}).Create(rec).Error
	if err != nil {
		return apperr.Persistence("failed to register processed email", err)
	}
	return nil
}

// RecentByClient returns up to limit active records for a client card code
// processed at or after since, newest first.
func (r *ProcessedEmailRepository) RecentByClient(ctx context.Context, clientCardCode string, since time.Time, limit int) ([]model.ProcessedEmail, error) {
	return r.recent(ctx, "client_card_code = ?", clientCardCode, since, limit)
}

// RecentBySender returns up to limit active records for a sender processed at
// or after since, newest first.
func (r *ProcessedEmailRepository) RecentBySender(ctx context.Context, senderEmail string, since time.Time, limit int) ([]model.ProcessedEmail, error) {
	return r.recent(ctx, "sender_email = ?", senderEmail, since, limit)
}

func (r *ProcessedEmailRepository) recent(ctx context.Context, where string, arg string, since time.Time, limit int) ([]model.ProcessedEmail, error) {
	var recs []model.ProcessedEmail
	err := r.db.WithContext(ctx).
		Where(where, arg).
		Where("processed_at >= ?", since.UTC()).
		Where("status IN ?", []string{string(model.EmailPending), string(model.EmailCompleted)}).
		Order("processed_at DESC").
		Limit(limit).
		Find(&recs).Error
	if err != nil {
		return nil, apperr.Persistence("failed to scan processed emails", err)
	}
	return recs, nil
}

// OutcomeUpdate holds the outcome fields of a processed email. Nil fields are
// left untouched.
type OutcomeUpdate struct {
	Status      model.EmailStatus
	QuoteID     *string
	SAPDocEntry *int
	Notes       *string
}

// UpdateOutcome updates the outcome fields of the record for emailID.
func (r *ProcessedEmailRepository) UpdateOutcome(ctx context.Context, emailID string, u OutcomeUpdate) error {
	updates := map[string]any{"status": u.Status}
	if u.QuoteID != nil {
		updates["quote_id"] = *u.QuoteID
	}
	if u.SAPDocEntry != nil {
		updates["sap_doc_entry"] = *u.SAPDocEntry
	}
	if u.Notes != nil {
		updates["notes"] = *u.Notes
	}

	existing, err := r.FindByEmailID(ctx, emailID)
	if err != nil {
		return err
	}
	if existing == nil {
		return apperr.NotFound("processed email %s not found", emailID)
	}

	if err := r.db.WithContext(ctx).Model(&model.ProcessedEmail{}).Where("email_id = ?", emailID).Updates(updates).Error; err != nil {
		return apperr.Persistence("failed to update processed email", err)
	}
	return nil
}

// CountByStatus returns the number of records per status.
func (r *ProcessedEmailRepository) CountByStatus(ctx context.Context) (map[model.EmailStatus]int64, error) {
	var rows []struct {
		Status model.EmailStatus
		Count  int64
	}
	err := r.db.WithContext(ctx).Model(&model.ProcessedEmail{}).
		Select("status, COUNT(*) AS count").
		Group("status").
		Scan(&rows).Error
	if err != nil {
		return nil, apperr.Persistence("failed to count processed emails", err)
	}

	counts := make(map[model.EmailStatus]int64, len(rows))
	for _, row := range rows {
		counts[row.Status] = row.Count
	}
	return counts, nil
}
