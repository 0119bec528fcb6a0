package app

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"
	"gorm.io/gorm"

	"mail-to-quote-go/internal/collaborator/erp"
	"mail-to-quote-go/internal/collaborator/llm"
	"mail-to-quote-go/internal/config"
	"mail-to-quote-go/internal/db"
	"mail-to-quote-go/internal/handler"
	"mail-to-quote-go/internal/inbox"
	"mail-to-quote-go/internal/metrics"
	"mail-to-quote-go/internal/repository"
	"mail-to-quote-go/internal/router"
	"mail-to-quote-go/internal/scheduler"
	"mail-to-quote-go/internal/service/duplicate"
	"mail-to-quote-go/internal/service/ingest"
	"mail-to-quote-go/internal/service/processlog"
	"mail-to-quote-go/internal/service/processor"
	"mail-to-quote-go/internal/service/quote"
	"mail-to-quote-go/internal/service/retry"
)

// Run initializes and starts the application
func Run() error {
	logrus.SetFormatter(&logrus.JSONFormatter{})
	logrus.SetLevel(logrus.InfoLevel)

	logrus.Info("Starting mail-to-quote service")

	cfg, err := config.LoadConfig()
	if err != nil {
		return fmt.Errorf("failed to load configuration: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("configuration validation failed: %w", err)
	}
	if level, err := logrus.ParseLevel(cfg.Log.Level); err == nil {
		logrus.SetLevel(level)
	} else {
		logrus.Warnf("Unknown log level %q, keeping info", cfg.Log.Level)
	}

	dbConn, err := db.Init(cfg.Database)
	if err != nil {
		return fmt.Errorf("failed to initialize database: %w", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	svc, err := build(ctx, cfg, dbConn, metrics.NewMetrics())
	if err != nil {
		return err
	}

	srv := &http.Server{
		Addr:         ":" + cfg.Server.Port,
		Handler:      router.SetupRouter(svc.handlers, cfg.Server),
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}

	if svc.scheduler != nil {
		if err := svc.scheduler.Start(); err != nil {
			return fmt.Errorf("failed to start scheduler: %w", err)
		}
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		logrus.Infof("Starting HTTP server on port %s", cfg.Server.Port)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		logrus.Info("Shutting down server...")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()

		if svc.scheduler != nil {
			if err := svc.scheduler.Close(); err != nil {
				logrus.Errorf("Failed to stop scheduler: %v", err)
			}
		}
		return srv.Shutdown(shutdownCtx)
	})

	runErr := g.Wait()
	if sqlDB, err := dbConn.DB(); err == nil {
		sqlDB.Close()
	}
	if runErr != nil {
		return runErr
	}

	logrus.Info("Server stopped gracefully")
	return nil
}

type services struct {
	handlers  *handler.Handlers
	scheduler *scheduler.Scheduler
}

// build constructs every component once and injects it where it is needed.
func build(ctx context.Context, cfg *config.Config, dbConn *gorm.DB, m *metrics.Metrics) (*services, error) {
	quotes := repository.NewQuoteRepository(dbConn)
	logs := processlog.New(repository.NewLogRepository(dbConn))
	detector := duplicate.NewDetector(repository.NewProcessedEmailRepository(dbConn), cfg.Duplicate, m)

	erpClient := erp.NewClient(cfg.ERP)
	quoteService := quote.NewService(
		quotes,
		processor.New(llm.NewAnalyzer(cfg.LLM), erpClient, quotes, logs, m),
		retry.New(quotes, erpClient, erpClient, logs, m),
		logs,
		m,
	)
	ingester := ingest.NewService(detector, quoteService)

	var sched *scheduler.Scheduler
	if cfg.Inbox.Enabled {
		fetcher, err := inbox.NewFetcher(ctx, cfg.Inbox)
		if err != nil {
			return nil, fmt.Errorf("failed to create %s fetcher: %w", cfg.Inbox.Provider, err)
		}
		logrus.Infof("Using %s for inbox polling", cfg.Inbox.Provider)
		sched = scheduler.NewScheduler(cfg.Inbox.IntervalMinutes, fetcher, ingester, m)
	}

	return &services{
		handlers:  handler.NewHandlers(dbConn, quoteService, ingester, detector, logs, sched),
		scheduler: sched,
	}, nil
}
