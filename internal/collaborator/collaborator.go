// Package collaborator declares the external services the pipeline depends
// on. Implementations live in the llm and erp subpackages.
package collaborator

import (
	"context"
	"time"

	"github.com/shopspring/decimal"

	"mail-to-quote-go/internal/model"
)

// Analysis is the LLM's reading of an email.
type Analysis struct {
	IsQuoteRequest    bool           `json:"is_quote_request"`
	ExtractedEntities map[string]any `json:"extracted_entities"`
}

// Analyzer classifies an email and extracts its commercial entities.
type Analyzer interface {
	Analyze(ctx context.Context, email model.EmailPayload) (*Analysis, error)
}

// ClientCandidate is one ranked ERP client match.
type ClientCandidate struct {
	Code  string  `json:"code"`
	Name  string  `json:"name"`
	Score float64 `json:"score"`
}

// ProductCandidate is one ranked ERP item match for a requested line.
// Reference is the product reference as written in the email.
type ProductCandidate struct {
	Reference     string              `json:"reference"`
	ItemCode      string              `json:"item_code"`
	ItemName      string              `json:"item_name"`
	Quantity      int                 `json:"quantity"`
	Score         float64             `json:"score"`
	MatchReason   string              `json:"match_reason"`
	UnitPrice     decimal.NullDecimal `json:"unit_price"`
	NotFoundInSAP bool                `json:"not_found_in_sap"`
}

// MatchResult holds the ranked clients and products for one email.
type MatchResult struct {
	Clients  []ClientCandidate  `json:"clients"`
	Products []ProductCandidate `json:"products"`
}

// Matcher matches a whole email against the ERP in one call.
type Matcher interface {
	Match(ctx context.Context, body, senderEmail, subject string) (*MatchResult, error)
}

// ItemQuery is one ERP item lookup. Exact restricts the search to Code.
type ItemQuery struct {
	Code        string `json:"code"`
	Description string `json:"description,omitempty"`
	ClientCode  string `json:"client_code,omitempty"`
	Exact       bool   `json:"exact"`
}

// ItemCandidate is one scored item returned by a search.
type ItemCandidate struct {
	ItemCode string  `json:"item_code"`
	Score    float64 `json:"score"`
}

// ItemSearchResult is the outcome of an ERP item lookup.
type ItemSearchResult struct {
	Status     model.MatchStatus `json:"status"`
	ItemCode   *string           `json:"item_code"`
	QueryUsed  string            `json:"query_used"`
	Timestamp  time.Time         `json:"timestamp"`
	Candidates []ItemCandidate   `json:"candidates"`
}

// BestScore returns the highest candidate score, or 0 without candidates.
func (r *ItemSearchResult) BestScore() float64 {
	best := 0.0
	for _, c := range r.Candidates {
		if c.Score > best {
			best = c.Score
		}
	}
	return best
}

// ItemSearcher looks up a single ERP item.
type ItemSearcher interface {
	SearchItem(ctx context.Context, q ItemQuery) (*ItemSearchResult, error)
}

// Pricer computes a client-specific unit price. An invalid NullDecimal means
// no price could be resolved.
type Pricer interface {
	Price(ctx context.Context, itemCode, clientCode string, quantity int) (decimal.NullDecimal, error)
}
