// Package feeds fetches newly discovered tokens for the sniper engine.
package feeds

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/hashicorp/go-retryablehttp"

	"github.com/solana-sniper-bot/autotrader/internal/address"
	"github.com/solana-sniper-bot/autotrader/internal/models"
	"github.com/solana-sniper-bot/autotrader/internal/utils"
)

// HTTPCandidateSource polls a discovery endpoint that answers
// GET {endpoint}?since=<unix-ms> with a JSON array of candidate tokens.
type HTTPCandidateSource struct {
	endpoint string
	apiKey   string
	client   *retryablehttp.Client
	logger   *utils.Logger
}

// Option configures an HTTPCandidateSource.
type Option func(*HTTPCandidateSource)

// WithAPIKey sends key as a bearer token.
func WithAPIKey(key string) Option {
	return func(s *HTTPCandidateSource) { s.apiKey = key }
}

// WithLogger sets the logger used for dropped items.
func WithLogger(l *utils.Logger) Option {
	return func(s *HTTPCandidateSource) { s.logger = l }
}

// WithHTTPClient replaces the retrying client, mostly for tests.
func WithHTTPClient(c *retryablehttp.Client) Option {
	return func(s *HTTPCandidateSource) { s.client = c }
}

// NewHTTPCandidateSource creates a source for endpoint.
func NewHTTPCandidateSource(endpoint string, opts ...Option) *HTTPCandidateSource {
	s := &HTTPCandidateSource{
		endpoint: endpoint,
		client:   newRetryClient(),
		logger:   utils.Nop(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
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

// Candidates returns tokens discovered after since, oldest first. Items with
// malformed addresses are dropped and logged.
func (s *HTTPCandidateSource) Candidates(ctx context.Context, since time.Time) ([]models.CandidateToken, error) {
	u, err := url.Parse(s.endpoint)
	if err != nil {
		return nil, fmt.Errorf("parse feed endpoint: %w", err)
	}
	q := u.Query()
	if !since.IsZero() {
		q.Set("since", strconv.FormatInt(since.UnixMilli(), 10))
	}
	u.RawQuery = q.Encode()

	req, err := retryablehttp.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
	if err != nil {
		return nil, fmt.Errorf("build feed request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if s.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+s.apiKey)
	}

	resp, err := s.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("candidate feed request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return nil, fmt.Errorf("candidate feed status %d: %s", resp.StatusCode, body)
	}

	var items []models.CandidateToken
	if err := json.NewDecoder(resp.Body).Decode(&items); err != nil {
		return nil, fmt.Errorf("decode candidate feed: %w", err)
	}

	out := items[:0]
	for _, item := range items {
		if err := address.Validate(item.TokenID); err != nil {
			s.logger.Warn("Dropping candidate with invalid token id", "token_id", item.TokenID, "error", err)
			continue
		}
		if item.DiscoveredAt.IsZero() {
			item.DiscoveredAt = time.Now()
		}
		out = append(out, item)
	}
	return out, nil
}
