// Package fake provides call-counting collaborator doubles for tests.
package fake

import (
	"context"
	"sync"
	"time"

	"github.com/shopspring/decimal"

	"mail-to-quote-go/internal/collaborator"
	"mail-to-quote-go/internal/model"
)

// Analyzer returns a fixed analysis or error, after Delay when set.
type Analyzer struct {
	mu     sync.Mutex
	Result *collaborator.Analysis
	Err    error
	Delay  time.Duration
	Calls  int
}

func (a *Analyzer) Analyze(ctx context.Context, _ model.EmailPayload) (*collaborator.Analysis, error) {
	if a.Delay > 0 {
		select {
		case <-time.After(a.Delay):
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	a.mu.Lock()
	defer a.mu.Unlock()
	a.Calls++
	if a.Err != nil {
		return nil, a.Err
	}
	return a.Result, nil
}

// Matcher returns a fixed match result or error.
type Matcher struct {
	mu     sync.Mutex
	Result *collaborator.MatchResult
	Err    error
	Calls  int
}

func (m *Matcher) Match(_ context.Context, _, _, _ string) (*collaborator.MatchResult, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Calls++
	if m.Err != nil {
		return nil, m.Err
	}
	return m.Result, nil
}

// ItemSearcher answers from Results keyed by query code, falling back to a NOT_FOUND result.
type ItemSearcher struct {
	mu      sync.Mutex
	Results map[string]*collaborator.ItemSearchResult
	Err     error
	Calls   int
	Queries []collaborator.ItemQuery
}

func (s *ItemSearcher) SearchItem(_ context.Context, q collaborator.ItemQuery) (*collaborator.ItemSearchResult, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.Calls++
	s.Queries = append(s.Queries, q)
	if s.Err != nil {
		return nil, s.Err
	}
	if r, ok := s.Results[q.Code]; ok {
		return r, nil
	}
	return &collaborator.ItemSearchResult{Status: model.MatchNotFound, QueryUsed: q.Code}, nil
}

// Pricer returns Prices[itemCode], or no price when absent.
type Pricer struct {
	mu     sync.Mutex
	Prices map[string]decimal.Decimal
	Err    error
	Calls  int
}

func (p *Pricer) Price(_ context.Context, itemCode, _ string, _ int) (decimal.NullDecimal, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.Calls++
	if p.Err != nil {
		return decimal.NullDecimal{}, p.Err
	}
	if price, ok := p.Prices[itemCode]; ok {
		return decimal.NewNullDecimal(price), nil
	}
	return decimal.NullDecimal{}, nil
}

// Set bundles one instance of every fake.
type Set struct {
	Analyzer *Analyzer
	Matcher  *Matcher
	Searcher *ItemSearcher
	Pricer   *Pricer
}

// NewSet returns fakes that describe a quote request for one line
// "ITEM-A" x5 from client C0001.
func NewSet() *Set {
	return &Set{
		Analyzer: &Analyzer{Result: &collaborator.Analysis{IsQuoteRequest: true}},
		Matcher: &Matcher{Result: &collaborator.MatchResult{
			Clients: []collaborator.ClientCandidate{{Code: "C0001", Name: "ACME", Score: 98}},
			Products: []collaborator.ProductCandidate{{
				Reference:   "ITEM-A",
				ItemCode:    "A-100",
				ItemName:    "Widget A",
				Quantity:    5,
				Score:       100,
				MatchReason: "Code exact",
				UnitPrice:   decimal.NewNullDecimal(decimal.RequireFromString("12.50")),
			}},
		}},
		Searcher: &ItemSearcher{Results: map[string]*collaborator.ItemSearchResult{}},
		Pricer:   &Pricer{Prices: map[string]decimal.Decimal{}},
	}
}

// TotalCalls is the number of calls made to any collaborator.
func (s *Set) TotalCalls() int {
	return s.Analyzer.Calls + s.Matcher.Calls + s.Searcher.Calls + s.Pricer.Calls
}
