package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds all Prometheus metrics
type Metrics struct {
	PullCount          prometheus.Counter
	EmailsReceived     prometheus.Counter
	QuotesCreated      prometheus.Counter
	AlreadyProcessed   prometheus.Counter
	PipelineFailures   prometheus.Counter
	DuplicatesDetected *prometheus.CounterVec
	LineRetries        *prometheus.CounterVec
	ProcessingTime     prometheus.Histogram
}

// NewMetrics registers the metrics on the default registry
func NewMetrics() *Metrics {
	return NewMetricsWith(prometheus.DefaultRegisterer)
}

// NewMetricsWith registers the metrics on reg
func NewMetricsWith(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)
	return &Metrics{
		PullCount: factory.NewCounter(prometheus.CounterOpts{
			Name: "mail_to_quote_inbox_pull_count",
			Help: "Total number of inbox fetch operations",
		}),
		EmailsReceived: factory.NewCounter(prometheus.CounterOpts{
			Name: "mail_to_quote_emails_received_total",
			Help: "Total number of emails entering the quote pipeline",
		}),
		QuotesCreated: factory.NewCounter(prometheus.CounterOpts{
			Name: "mail_to_quote_quotes_created_total",
			Help: "Total number of quote drafts created",
		}),
		AlreadyProcessed: factory.NewCounter(prometheus.CounterOpts{
			Name: "mail_to_quote_already_processed_total",
			Help: "Total number of re-deliveries resolved to an existing quote draft",
		}),
		PipelineFailures: factory.NewCounter(prometheus.CounterOpts{
			Name: "mail_to_quote_pipeline_failures_total",
			Help: "Total number of failed pipeline runs",
		}),
		DuplicatesDetected: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "mail_to_quote_duplicates_detected_total",
			Help: "Duplicate detector hits by duplicate type",
		}, []string{"type"}),
		LineRetries: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "mail_to_quote_line_retries_total",
			Help: "Line retries by mode and outcome",
		}, []string{"mode", "outcome"}),
		ProcessingTime: factory.NewHistogram(prometheus.HistogramOpts{
			Name:    "mail_to_quote_processing_duration_seconds",
			Help:    "Time spent turning one email into a quote draft",
			Buckets: prometheus.DefBuckets,
		}),
	}
}
