package model

// MatchStatus is the outcome of an ERP client or item match.
type MatchStatus string

const (
	MatchFound     MatchStatus = "FOUND"
	MatchNotFound  MatchStatus = "NOT_FOUND"
	MatchAmbiguous MatchStatus = "AMBIGUOUS"
)

// Valid reports whether s is a known match status.
func (s MatchStatus) Valid() bool {
	switch s {
	case MatchFound, MatchNotFound, MatchAmbiguous:
		return true
	}
	return false
}

// QuoteStatus is the lifecycle marker of a quote draft.
type QuoteStatus string

const (
	QuoteAnalyzed   QuoteStatus = "ANALYZED"
	QuoteValidated  QuoteStatus = "VALIDATED"
	QuoteSAPCreated QuoteStatus = "SAP_CREATED"
)

var quoteStatusRank = map[QuoteStatus]int{
	QuoteAnalyzed:   1,
	QuoteValidated:  2,
	QuoteSAPCreated: 3,
}

// Valid reports whether s is a known quote status.
func (s QuoteStatus) Valid() bool {
	_, ok := quoteStatusRank[s]
	return ok
}

// CanTransitionTo reports whether moving from s to next keeps the lifecycle
// moving forward. Staying on the same status is allowed.
func (s QuoteStatus) CanTransitionTo(next QuoteStatus) bool {
	from, ok := quoteStatusRank[s]
	if !ok {
		return false
	}
	to, ok := quoteStatusRank[next]
	if !ok {
		return false
	}
	return to >= from
}

// SearchType records how a line's ERP item was found.
type SearchType string

const (
	SearchExact      SearchType = "EXACT"
	SearchFuzzy      SearchType = "FUZZY"
	SearchHistorical SearchType = "HISTORICAL"
	SearchManual     SearchType = "MANUAL"
	SearchRetryFuzzy SearchType = "RETRY_FUZZY"
)

// LogStatus is the status of one processing log entry.
type LogStatus string

const (
	LogSuccess LogStatus = "SUCCESS"
	LogError   LogStatus = "ERROR"
	LogPending LogStatus = "PENDING"
)

// Step names a pipeline stage recorded in the processing log.
type Step string

const (
	StepWebhookReceived           Step = "WEBHOOK_RECEIVED"
	StepLLMAnalysisStart          Step = "LLM_ANALYSIS_START"
	StepLLMAnalysisComplete       Step = "LLM_ANALYSIS_COMPLETE"
	StepSAPClientSearchComplete   Step = "SAP_CLIENT_SEARCH_COMPLETE"
	StepSAPProductsSearchComplete Step = "SAP_PRODUCTS_SEARCH_COMPLETE"
	StepPricingComplete           Step = "PRICING_COMPLETE"
	StepQuoteDraftCreated         Step = "QUOTE_DRAFT_CREATED"
	StepRetryLineSearch           Step = "RETRY_LINE_SEARCH"
	StepManualCodeUpdate          Step = "MANUAL_CODE_UPDATE"
	StepProcessingError           Step = "PROCESSING_ERROR"
	StepRetryLineError            Step = "RETRY_LINE_ERROR"
)

// EmailStatus is the outcome recorded for a processed email by the duplicate detector.
type EmailStatus string

const (
	EmailPending   EmailStatus = "pending"
	EmailCompleted EmailStatus = "completed"
	EmailRejected  EmailStatus = "rejected"
	EmailCancelled EmailStatus = "cancelled"
)

// Valid reports whether s is a known email status.
func (s EmailStatus) Valid() bool {
	switch s {
	case EmailPending, EmailCompleted, EmailRejected, EmailCancelled:
		return true
	}
	return false
}

// Active reports whether the email still counts as live prior work.
func (s EmailStatus) Active() bool {
	return s == EmailPending || s == EmailCompleted
}
