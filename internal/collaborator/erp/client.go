// Package erp is the HTTP client of the ERP matching service. It implements
// client and product matching, item search and pricing.
package erp

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"golang.org/x/time/rate"

	"mail-to-quote-go/internal/collaborator"
	"mail-to-quote-go/internal/config"
)

// Client talks to the ERP matching service
type Client struct {
	baseURL    string
	apiKey     string
	httpClient *http.Client
	limiter    *rate.Limiter
}

// NewClient creates an ERP client
func NewClient(cfg config.ERPConfig) *Client {
	timeout := cfg.Timeout
	if timeout == 0 {
		timeout = 30 * time.Second
	}
	limit := rate.Inf
	if cfg.RequestsPerSecond > 0 {
		limit = rate.Limit(cfg.RequestsPerSecond)
	}
	return &Client{
		baseURL:    strings.TrimRight(cfg.BaseURL, "/"),
		apiKey:     cfg.APIKey,
		httpClient: &http.Client{Timeout: timeout},
		limiter:    rate.NewLimiter(limit, 1),
	}
}

type matchRequest struct {
	Body        string `json:"body"`
	SenderEmail string `json:"sender_email"`
	Subject     string `json:"subject"`
}

// Match ranks ERP clients and products for a whole email.
func (c *Client) Match(ctx context.Context, body, senderEmail, subject string) (*collaborator.MatchResult, error) {
	var result collaborator.MatchResult
	if err := c.post(ctx, "/match", matchRequest{Body: body, SenderEmail: senderEmail, Subject: subject}, &result); err != nil {
		return nil, err
	}
	return &result, nil
}

// SearchItem looks up one item, exactly or fuzzily.
func (c *Client) SearchItem(ctx context.Context, q collaborator.ItemQuery) (*collaborator.ItemSearchResult, error) {
	var result collaborator.ItemSearchResult
	if err := c.post(ctx, "/items/search", q, &result); err != nil {
		return nil, err
	}
	if !result.Status.Valid() {
		return nil, fmt.Errorf("item search returned unknown status %q", result.Status)
	}
	return &result, nil
}

type pricingRequest struct {
	ItemCode   string `json:"item_code"`
	ClientCode string `json:"client_code,omitempty"`
	Quantity   int    `json:"quantity"`
}

type pricingResponse struct {
	UnitPrice decimal.NullDecimal `json:"unit_price"`
}

// Price returns the unit price of an item for a client, absent when the ERP
// has no price.
func (c *Client) Price(ctx context.Context, itemCode, clientCode string, quantity int) (decimal.NullDecimal, error) {
	var resp pricingResponse
	if err := c.post(ctx, "/pricing", pricingRequest{ItemCode: itemCode, ClientCode: clientCode, Quantity: quantity}, &resp); err != nil {
		return decimal.NullDecimal{}, err
	}
	return resp.UnitPrice, nil
}

func (c *Client) post(ctx context.Context, path string, in, out any) error {
	if err := c.limiter.Wait(ctx); err != nil {
		return fmt.Errorf("%s request not sent: %w", path, err)
	}

	bodyBytes, err := json.Marshal(in)
	if err != nil {
		return fmt.Errorf("failed to marshal %s request: %w", path, err)
	}

	request, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(bodyBytes))
	if err != nil {
		return fmt.Errorf("failed to create %s request: %w", path, err)
	}
	request.Header.Set("Content-Type", "application/json")
	if c.apiKey != "" {
		request.Header.Set("Authorization", "Bearer "+c.apiKey)
	}

	resp, err := c.httpClient.Do(request)
	if err != nil {
		return fmt.Errorf("%s request failed: %w", path, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < http.StatusOK || resp.StatusCode >= http.StatusMultipleChoices {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return fmt.Errorf("erp %s returned %d: %s", path, resp.StatusCode, string(body))
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("failed to decode %s response: %w", path, err)
	}
	return nil
}
