package chain

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/hashicorp/go-retryablehttp"
	"github.com/shopspring/decimal"
)

// ErrNoRoute means the aggregator found no way to swap the pair.
var ErrNoRoute = errors.New("no swap route")

// Quote is the part of an aggregator quote the safety checks need.
type Quote struct {
	InAmount       decimal.Decimal
	OutAmount      decimal.Decimal
	PriceImpactPct decimal.Decimal
}

type quoteResponse struct {
	InAmount       string            `json:"inAmount"`
	OutAmount      string            `json:"outAmount"`
	PriceImpactPct string            `json:"priceImpactPct"`
	RoutePlan      []json.RawMessage `json:"routePlan"`
	Error          string            `json:"error"`
	ErrorCode      string            `json:"errorCode"`
}

// QuoteClient asks a Jupiter-compatible quote API how a swap would fill.
type QuoteClient struct {
	baseURL     string
	slippageBps int
	http        *retryablehttp.Client
}

// NewQuoteClient creates a quote client for baseURL (e.g. https://quote-api.jup.ag/v6/quote).
func NewQuoteClient(baseURL string, timeout time.Duration) *QuoteClient {
	c := newRetryClient()
	if timeout > 0 {
		c.HTTPClient.Timeout = timeout
	}
	return &QuoteClient{baseURL: baseURL, slippageBps: 100, http: c}
}

// newRetryClient creates a new HTTP client with retry capabilities
func newRetryClient() *retryablehttp.Client {
	c := retryablehttp.NewClient()
	c.RetryMax = 3
	c.RetryWaitMin = 500 * time.Millisecond
	c.RetryWaitMax = 3 * time.Second
	c.Logger = nil
	return c
}

// Quote requests an exact-in quote for amount raw units of inputMint.
func (q *QuoteClient) Quote(ctx context.Context, inputMint, outputMint string, amount decimal.Decimal) (Quote, error) {
	params := url.Values{}
	params.Set("inputMint", inputMint)
	params.Set("outputMint", outputMint)
	params.Set("amount", amount.Truncate(0).String())
	params.Set("slippageBps", fmt.Sprint(q.slippageBps))
	params.Set("swapMode", "ExactIn")

	req, err := retryablehttp.NewRequestWithContext(ctx, http.MethodGet, q.baseURL+"?"+params.Encode(), nil)
	if err != nil {
		return Quote{}, fmt.Errorf("build quote request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := q.http.Do(req)
	if err != nil {
		return Quote{}, fmt.Errorf("quote request: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return Quote{}, fmt.Errorf("read quote: %w", err)
	}

	var out quoteResponse
	if err := json.Unmarshal(body, &out); err != nil {
		return Quote{}, fmt.Errorf("decode quote (status %d): %w", resp.StatusCode, err)
	}

	// The aggregator answers 400 with an error body when the pair cannot be routed.
	if resp.StatusCode == http.StatusBadRequest || resp.StatusCode == http.StatusNotFound {
		return Quote{}, fmt.Errorf("%w: %s", ErrNoRoute, firstNonEmpty(out.ErrorCode, out.Error))
	}
	if resp.StatusCode != http.StatusOK {
		return Quote{}, fmt.Errorf("quote status %d: %s", resp.StatusCode, out.Error)
	}
	if out.Error != "" || len(out.RoutePlan) == 0 {
		return Quote{}, fmt.Errorf("%w: %s", ErrNoRoute, firstNonEmpty(out.Error, "empty route plan"))
	}

	quote := Quote{}
	if quote.InAmount, err = decimalOrZero(out.InAmount); err != nil {
		return Quote{}, fmt.Errorf("decode inAmount: %w", err)
	}
	if quote.OutAmount, err = decimalOrZero(out.OutAmount); err != nil {
		return Quote{}, fmt.Errorf("decode outAmount: %w", err)
	}
	if quote.PriceImpactPct, err = decimalOrZero(out.PriceImpactPct); err != nil {
		return Quote{}, fmt.Errorf("decode priceImpactPct: %w", err)
	}
	if !quote.OutAmount.IsPositive() {
		return Quote{}, fmt.Errorf("%w: zero output", ErrNoRoute)
	}
	return quote, nil
}

func decimalOrZero(s string) (decimal.Decimal, error) {
	if s == "" {
		return decimal.Zero, nil
	}
	return decimal.NewFromString(s)
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}
