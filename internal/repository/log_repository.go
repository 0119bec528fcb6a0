package repository

import (
	"context"

	"gorm.io/gorm"

	"mail-to-quote-go/internal/apperr"
	"mail-to-quote-go/internal/model"
)

// LogRepository stores the append-only processing log. It exposes no update
// or delete operation.
type LogRepository struct {
	db *gorm.DB
}

// NewLogRepository creates a processing log repository
func NewLogRepository(db *gorm.DB) *LogRepository {
	return &LogRepository{db: db}
}

// Append inserts one log entry. A zero timestamp is replaced with the current time.
func (r *LogRepository) Append(ctx context.Context, entry *model.ProcessingLogEntry) error {
	if entry.Timestamp.IsZero() {
		entry.Timestamp = utcNow()
	}
	if err := r.db.WithContext(ctx).Create(entry).Error; err != nil {
		return apperr.Persistence("failed to append processing log", err)
	}
	return nil
}

// ListByMailID returns every entry for mailID, oldest first.
func (r *LogRepository) ListByMailID(ctx context.Context, mailID string) ([]model.ProcessingLogEntry, error) {
	var entries []model.ProcessingLogEntry
	err := r.db.WithContext(ctx).
		Where("mail_id = ?", mailID).
		Order("timestamp ASC").Order("id ASC").
		Find(&entries).Error
	if err != nil {
		return nil, apperr.Persistence("failed to list processing logs", err)
	}
	return entries, nil
}

// ListRecent returns the newest entries first.
func (r *LogRepository) ListRecent(ctx context.Context, limit int) ([]model.ProcessingLogEntry, error) {
	return r.listNewest(ctx, limit, "")
}

// ListErrors returns the newest ERROR entries first.
func (r *LogRepository) ListErrors(ctx context.Context, limit int) ([]model.ProcessingLogEntry, error) {
	return r.listNewest(ctx, limit, model.LogError)
}

func (r *LogRepository) listNewest(ctx context.Context, limit int, status model.LogStatus) ([]model.ProcessingLogEntry, error) {
	q := r.db.WithContext(ctx).Order("timestamp DESC").Order("id DESC").Limit(limit)
	if status != "" {
		q = q.Where("status = ?", status)
	}
	var entries []model.ProcessingLogEntry
	if err := q.Find(&entries).Error; err != nil {
		return nil, apperr.Persistence("failed to list processing logs", err)
	}
	return entries, nil
}
