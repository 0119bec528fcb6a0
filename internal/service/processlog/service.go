// Package processlog records the audit trail of every pipeline step.
package processlog

import (
	"context"
	"time"

	"github.com/sirupsen/logrus"

	"mail-to-quote-go/internal/model"
)

// Store persists processing log entries
type Store interface {
	Append(ctx context.Context, entry *model.ProcessingLogEntry) error
	ListByMailID(ctx context.Context, mailID string) ([]model.ProcessingLogEntry, error)
	ListRecent(ctx context.Context, limit int) ([]model.ProcessingLogEntry, error)
	ListErrors(ctx context.Context, limit int) ([]model.ProcessingLogEntry, error)
}

const defaultLimit = 50

// Service appends and queries processing log entries
type Service struct {
	store Store
	now   func() time.Time
}

// New creates a processing log service
func New(store Store) *Service {
	return &Service{store: store, now: func() time.Time { return time.Now().UTC() }}
}

// LogStep appends one entry and mirrors it to the process log. An empty
// details string is stored as NULL. Storage errors are returned to the caller.
func (s *Service) LogStep(ctx context.Context, mailID string, step model.Step, status model.LogStatus, details string) error {
	entry := &model.ProcessingLogEntry{
		MailID:    mailID,
		Step:      step,
		Status:    status,
		Timestamp: s.now(),
	}
	if details != "" {
		entry.Details = &details
	}

	fields := logrus.Fields{"mail_id": mailID, "step": step, "status": status}
	if status == model.LogError {
		logrus.WithFields(fields).Errorf("[%s] %s: %s", mailID, step, details)
	} else {
		logrus.WithFields(fields).Infof("[%s] %s: %s", mailID, step, details)
	}

	if err := s.store.Append(ctx, entry); err != nil {
		logrus.WithFields(fields).Errorf("Failed to persist processing log: %v", err)
		return err
	}
	return nil
}

// LogsForMail returns the entries of mailID in execution order.
func (s *Service) LogsForMail(ctx context.Context, mailID string) ([]model.ProcessingLogEntry, error) {
	return s.store.ListByMailID(ctx, mailID)
}

// RecentLogs returns the latest entries across all mails.
func (s *Service) RecentLogs(ctx context.Context, limit int) ([]model.ProcessingLogEntry, error) {
	return s.store.ListRecent(ctx, normalizeLimit(limit))
}

// ErrorLogs returns the latest ERROR entries across all mails.
func (s *Service) ErrorLogs(ctx context.Context, limit int) ([]model.ProcessingLogEntry, error) {
	return s.store.ListErrors(ctx, normalizeLimit(limit))
}

func normalizeLimit(limit int) int {
	if limit < 1 || limit > 500 {
		return defaultLimit
	}
	return limit
}
