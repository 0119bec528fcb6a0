package repository

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"mail-to-quote-go/internal/apperr"
	"mail-to-quote-go/internal/model"
)

// CreateQuoteDraftParams is the complete content of a new quote draft.
type CreateQuoteDraftParams struct {
	MailID       string
	RawPayload   datatypes.JSON
	ClientCode   *string
	ClientStatus model.MatchStatus
	Lines        []model.NewLine
}

// QuoteRepository is the only writer of quote drafts. Reads never leave the
// database.
type QuoteRepository struct {
	db    *gorm.DB
	newID func() string
}

// NewQuoteRepository creates a quote draft repository
func NewQuoteRepository(db *gorm.DB) *QuoteRepository {
	return &QuoteRepository{db: db, newID: uuid.NewString}
}

// CheckMailIDExists reports whether a quote draft already exists for mailID.
func (r *QuoteRepository) CheckMailIDExists(ctx context.Context, mailID string) (bool, error) {
	var count int64
	err := r.db.WithContext(ctx).Model(&model.QuoteDraft{}).Where("mail_id = ?", mailID).Count(&count).Error
	if err != nil {
		return false, apperr.Persistence("failed to check mail id", err)
	}
	return count > 0, nil
}

// CreateQuoteDraft writes the header and every line in a single transaction.
// A second draft for the same mail id fails with a Conflict error.
func (r *QuoteRepository) CreateQuoteDraft(ctx context.Context, p CreateQuoteDraftParams) (string, error) {
	if err := validateCreate(p); err != nil {
		return "", err
	}

	draft := model.QuoteDraft{
		ID:              r.newID(),
		MailID:          p.MailID,
		ClientCode:      p.ClientCode,
		ClientStatus:    p.ClientStatus,
		Status:          model.QuoteAnalyzed,
		RawEmailPayload: p.RawPayload,
	}
	if len(draft.RawEmailPayload) == 0 {
		draft.RawEmailPayload = datatypes.JSON("{}")
	}

	lines := make([]model.QuoteDraftLine, 0, len(p.Lines))
	for i, nl := range p.Lines {
		lines = append(lines, model.QuoteDraftLine{
			QuoteID:        draft.ID,
			LineID:         r.newID(),
			Position:       i,
			SupplierCode:   nl.SupplierCode,
			Description:    nl.Description,
			Quantity:       nl.Quantity,
			SAPItemCode:    nl.SAPItemCode,
			SAPStatus:      nl.SAPStatus,
			SAPPrice:       nl.SAPPrice,
			SearchMetadata: nl.SearchMetadata,
			Version:        1,
		})
	}

	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Omit(clause.Associations).Create(&draft).Error; err != nil {
			return err
		}
		if len(lines) > 0 {
			if err := tx.Create(&lines).Error; err != nil {
				return err
			}
		}
		return nil
	})
	if err == nil {
		return draft.ID, nil
	}

	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return "", apperr.Conflict("quote draft already exists for mail %s", p.MailID)
	}
	// Not every driver translates constraint errors; the stored row is the source of truth.
	if exists, checkErr := r.CheckMailIDExists(ctx, p.MailID); checkErr == nil && exists {
		return "", apperr.Conflict("quote draft already exists for mail %s", p.MailID)
	}
	return "", apperr.Persistence("failed to create quote draft", err)
}

func validateCreate(p CreateQuoteDraftParams) error {
	if p.MailID == "" {
		return apperr.Validation("mail id is required")
	}
	if !p.ClientStatus.Valid() {
		return apperr.Validation("invalid client status %q", p.ClientStatus)
	}
	for i, l := range p.Lines {
		if l.Quantity <= 0 {
			return apperr.Validation("line %d: quantity must be positive", i)
		}
		if !l.SAPStatus.Valid() {
			return apperr.Validation("line %d: invalid sap status %q", i, l.SAPStatus)
		}
	}
	return nil
}

// GetQuoteDraft loads a quote draft with its lines in creation order.
func (r *QuoteRepository) GetQuoteDraft(ctx context.Context, quoteID string) (*model.QuoteDraft, error) {
	return r.findOne(ctx, "id = ?", quoteID, "quote draft %s not found")
}

// GetQuoteByMailID loads the quote draft created for mailID.
func (r *QuoteRepository) GetQuoteByMailID(ctx context.Context, mailID string) (*model.QuoteDraft, error) {
	return r.findOne(ctx, "mail_id = ?", mailID, "no quote draft for mail %s")
}

func (r *QuoteRepository) findOne(ctx context.Context, where string, arg string, notFound string) (*model.QuoteDraft, error) {
	var draft model.QuoteDraft
	err := r.db.WithContext(ctx).
		Preload("Lines", func(db *gorm.DB) *gorm.DB { return db.Order("position ASC") }).
		Where(where, arg).
		First(&draft).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, apperr.NotFound(notFound, arg)
		}
		return nil, apperr.Persistence("failed to load quote draft", err)
	}
	return &draft, nil
}

// UpdateLineSAPData replaces the ERP fields of exactly one line. Other lines
// are not written. The update is conditioned on the line version so that a
// concurrent writer on the same line is reported as a Conflict instead of
// being silently overwritten.
func (r *QuoteRepository) UpdateLineSAPData(ctx context.Context, quoteID, lineID string, data model.LineSAPData) (*model.UpdatedLine, error) {
	if !data.SAPStatus.Valid() {
		return nil, apperr.Validation("invalid sap status %q", data.SAPStatus)
	}

	var updated model.UpdatedLine
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var header model.QuoteDraft
		if err := tx.Select("id").Where("id = ?", quoteID).First(&header).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return apperr.NotFound("quote draft %s not found", quoteID)
			}
			return err
		}

		var line model.QuoteDraftLine
		if err := tx.Where("quote_id = ? AND line_id = ?", quoteID, lineID).First(&line).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return apperr.NotFound("line %s not found in quote draft %s", lineID, quoteID)
			}
			return err
		}

		res := tx.Model(&model.QuoteDraftLine{}).
			Where("quote_id = ? AND line_id = ? AND version = ?", quoteID, lineID, line.Version).
			Updates(map[string]any{
				"sap_item_code":   data.SAPItemCode,
				"sap_status":      data.SAPStatus,
				"sap_price":       data.SAPPrice,
				"search_metadata": data.SearchMetadata,
				"version":         line.Version + 1,
			})
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return apperr.Conflict("line %s was modified concurrently", lineID)
		}

		if err := tx.Model(&model.QuoteDraft{}).Where("id = ?", quoteID).
			Update("updated_at", tx.NowFunc()).Error; err != nil {
			return err
		}
		if err := tx.Select("updated_at").Where("id = ?", quoteID).First(&header).Error; err != nil {
			return err
		}
		updated.QuoteUpdatedAt = header.UpdatedAt

		return tx.Where("quote_id = ? AND line_id = ?", quoteID, lineID).First(&updated.QuoteDraftLine).Error
	})
	if err != nil {
		return nil, asPersistence(err, "failed to update line")
	}
	return &updated, nil
}

// UpdateStatus moves the quote draft lifecycle forward. Setting the current
// status again is a no-op; backward transitions are rejected.
func (r *QuoteRepository) UpdateStatus(ctx context.Context, quoteID string, status model.QuoteStatus) error {
	if !status.Valid() {
		return apperr.Validation("invalid quote status %q", status)
	}

	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var header model.QuoteDraft
		if err := tx.Select("id", "status").Where("id = ?", quoteID).First(&header).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return apperr.NotFound("quote draft %s not found", quoteID)
			}
			return err
		}
		if header.Status == status {
			return nil
		}
		if !header.Status.CanTransitionTo(status) {
			return apperr.Validation("cannot move quote draft from %s to %s", header.Status, status)
		}
		return tx.Model(&model.QuoteDraft{}).Where("id = ?", quoteID).
			Updates(map[string]any{"status": status, "updated_at": tx.NowFunc()}).Error
	})
	return asPersistence(err, "failed to update quote status")
}

// asPersistence keeps domain errors as they are and wraps anything else.
func asPersistence(err error, message string) error {
	if err == nil {
		return nil
	}
	var appErr *apperr.Error
	if errors.As(err, &appErr) {
		return err
	}
	return apperr.Persistence(message, err)
}

func utcNow() time.Time {
	return time.Now().UTC()
}
