package scheduler

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/sirupsen/logrus"

	"mail-to-quote-go/internal/inbox"
	"mail-to-quote-go/internal/metrics"
	"mail-to-quote-go/internal/model"
	"mail-to-quote-go/internal/service/ingest"
)

// Ingester admits one email into the pipeline.
type Ingester interface {
	Ingest(ctx context.Context, mailID string, email model.EmailPayload) (*ingest.Outcome, error)
}

// CycleReport summarizes one polling cycle.
type CycleReport struct {
	Fetched  int           `json:"fetched"`
	Created  int           `json:"created"`
	Existing int           `json:"existing"`
	Skipped  int           `json:"skipped"`
	Failed   int           `json:"failed"`
	Duration time.Duration `json:"duration"`
}

// Scheduler polls the inbox on a fixed interval
type Scheduler struct {
	cron            *cron.Cron
	entryID         cron.EntryID
	intervalMinutes int
	fetcher         inbox.Fetcher
	ingester        Ingester
	metrics         *metrics.Metrics
	ctx             context.Context
	cancel          context.CancelFunc
	cycleMu         sync.Mutex
	isRunning       bool
	mu              sync.RWMutex
}

// NewScheduler creates a new scheduler
func NewScheduler(intervalMinutes int, fetcher inbox.Fetcher, ingester Ingester, m *metrics.Metrics) *Scheduler {
	ctx, cancel := context.WithCancel(context.Background())
	return &Scheduler{
		cron:            cron.New(cron.WithSeconds()),
		intervalMinutes: intervalMinutes,
		fetcher:         fetcher,
		ingester:        ingester,
		metrics:         m,
		ctx:             ctx,
		cancel:          cancel,
	}
}

// Start schedules the polling job. A stopped scheduler can be started again.
func (s *Scheduler) Start() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.isRunning {
		return fmt.Errorf("scheduler is already running")
	}
	if s.intervalMinutes <= 0 {
		return fmt.Errorf("invalid interval: %d minutes", s.intervalMinutes)
	}

	if s.ctx.Err() != nil {
		s.ctx, s.cancel = context.WithCancel(context.Background())
		s.cron = cron.New(cron.WithSeconds())
	}

	ctx := s.ctx
	entryID, err := s.cron.AddFunc(cronSpec(s.intervalMinutes), func() { s.runCycle(ctx) })
	if err != nil {
		return fmt.Errorf("failed to add cron job: %w", err)
	}

	s.entryID = entryID
	s.cron.Start()
	s.isRunning = true

	logrus.Infof("Scheduler started with interval: %d minutes", s.intervalMinutes)
	return nil
}

// cronSpec is a fixed delay between polls; a minute step field would reset
// every hour and so cannot express intervals of 60 minutes or more.
func cronSpec(intervalMinutes int) string {
	return fmt.Sprintf("@every %dm", intervalMinutes)
}

// Stop cancels the running cycle and waits up to 30 seconds for it to end.
func (s *Scheduler) Stop() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.isRunning {
		return nil
	}

	s.cancel()
	ctx := s.cron.Stop()

	select {
	case <-ctx.Done():
		logrus.Info("Scheduler stopped gracefully")
	case <-time.After(30 * time.Second):
		logrus.Warn("Scheduler stop timeout, forcing shutdown")
	}

	s.isRunning = false
	return nil
}

// IsRunning returns whether the scheduler is running
func (s *Scheduler) IsRunning() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.isRunning
}

// RunOnce runs one polling cycle immediately.
func (s *Scheduler) RunOnce(ctx context.Context) (*CycleReport, error) {
	return s.runCycle(ctx)
}

// runCycle fetches new messages and ingests them one by one. Cycles never
// overlap.
func (s *Scheduler) runCycle(ctx context.Context) (*CycleReport, error) {
	s.cycleMu.Lock()
	defer s.cycleMu.Unlock()

	start := time.Now()
	s.metrics.PullCount.Inc()

	emails, err := s.fetcher.FetchNewEmails(ctx)
	if err != nil {
		logrus.Errorf("Failed to fetch emails: %v", err)
		return nil, fmt.Errorf("failed to fetch emails: %w", err)
	}
	logrus.Infof("Fetched %d new emails", len(emails))

	report := &CycleReport{Fetched: len(emails)}
	for _, msg := range emails {
		if ctx.Err() != nil {
			logrus.Warn("Polling cycle cancelled")
			break
		}

		out, err := s.ingester.Ingest(ctx, msg.ID, msg.Payload())
		if err != nil {
			report.Failed++
			logrus.WithField("mail_id", msg.ID).Errorf("Failed to ingest email: %v", err)
			continue
		}
		switch out.Action {
		case ingest.ActionCreated:
			report.Created++
		case ingest.ActionExisting:
			report.Existing++
		case ingest.ActionSkipped:
			report.Skipped++
		}
	}

	report.Duration = time.Since(start)
	logrus.WithFields(logrus.Fields{
		"fetched": report.Fetched,
		"created": report.Created,
		"skipped": report.Skipped,
		"failed":  report.Failed,
	}).Infof("Email processing cycle completed in %v", report.Duration)
	return report, nil
}

// GetNextRun returns the time of the next scheduled run
func (s *Scheduler) GetNextRun() time.Time {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if !s.isRunning {
		return time.Time{}
	}
	return s.cron.Entry(s.entryID).Next
}

// GetLastRun returns the time of the last scheduled run
func (s *Scheduler) GetLastRun() time.Time {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if !s.isRunning {
		return time.Time{}
	}
	return s.cron.Entry(s.entryID).Prev
}

// Close stops the scheduler and releases the fetcher.
func (s *Scheduler) Close() error {
	if err := s.Stop(); err != nil {
		return err
	}
	return s.fetcher.Close()
}
