// Package executor submits swap requests on behalf of the trading engines.
package executor

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/hashicorp/go-retryablehttp"
	"golang.org/x/time/rate"

	"github.com/solana-sniper-bot/autotrader/internal/models"
)

var (
	// ErrRejected means the swap service refused the request outright.
	ErrRejected = errors.New("swap request rejected")
	// ErrInvalidRequest is returned before anything is sent.
	ErrInvalidRequest = errors.New("invalid swap request")
)

// Executor performs one swap. A returned error means the outcome is unknown or
// the request never reached the venue; a result with Success false is a
// definitive failure.
type Executor interface {
	Execute(ctx context.Context, req models.ActionRequest) (models.ActionResult, error)
}

// ValidateRequest checks the fields every executor relies on.
func ValidateRequest(req models.ActionRequest) error {
	switch {
	case req.UserID == "":
		return fmt.Errorf("%w: missing user", ErrInvalidRequest)
	case req.InputAsset == "" || req.OutputAsset == "":
		return fmt.Errorf("%w: missing asset", ErrInvalidRequest)
	case req.InputAsset == req.OutputAsset:
		return fmt.Errorf("%w: input and output are the same asset", ErrInvalidRequest)
	case req.Amount <= 0:
		return fmt.Errorf("%w: amount must be positive", ErrInvalidRequest)
	}
	return nil
}

// HTTPExecutor posts requests to a swap service as JSON.
type HTTPExecutor struct {
	endpoint string
	apiKey   string
	client   *retryablehttp.Client
}

// NewHTTPExecutor creates an executor for endpoint. A swap POST is sent at
// most once: a timeout or 5xx may hide a fill, so it is reported as an error
// rather than resubmitted.
func NewHTTPExecutor(endpoint, apiKey string, timeout time.Duration) *HTTPExecutor {
	c := retryablehttp.NewClient()
	c.RetryMax = 0
	c.CheckRetry = noRetry
	c.Logger = nil
	if timeout > 0 {
		c.HTTPClient.Timeout = timeout
	}
	return &HTTPExecutor{endpoint: endpoint, apiKey: apiKey, client: c}
}

func noRetry(ctx context.Context, _ *http.Response, _ error) (bool, error) {
	return false, ctx.Err()
}

func (e *HTTPExecutor) Execute(ctx context.Context, req models.ActionRequest) (models.ActionResult, error) {
	if err := ValidateRequest(req); err != nil {
		return models.ActionResult{}, err
	}

	body, err := json.Marshal(req)
	if err != nil {
		return models.ActionResult{}, fmt.Errorf("encode swap request: %w", err)
	}

	httpReq, err := retryablehttp.NewRequestWithContext(ctx, http.MethodPost, e.endpoint, bytes.NewReader(body))
	if err != nil {
		return models.ActionResult{}, fmt.Errorf("build swap request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	if e.apiKey != "" {
		httpReq.Header.Set("X-API-Key", e.apiKey)
	}
	if req.IdempotencyKey != "" {
		httpReq.Header.Set("Idempotency-Key", req.IdempotencyKey)
	}

	resp, err := e.client.Do(httpReq)
	if err != nil {
		return models.ActionResult{}, fmt.Errorf("swap request: %w", err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return models.ActionResult{}, fmt.Errorf("read swap response: %w", err)
	}

	if resp.StatusCode >= 400 && resp.StatusCode < 500 {
		return models.ActionResult{}, fmt.Errorf("%w: status %d: %s", ErrRejected, resp.StatusCode, bytes.TrimSpace(raw))
	}
	if resp.StatusCode != http.StatusOK {
		return models.ActionResult{}, fmt.Errorf("swap service status %d", resp.StatusCode)
	}

	var result models.ActionResult
	if err := json.Unmarshal(raw, &result); err != nil {
		return models.ActionResult{}, fmt.Errorf("decode swap response: %w", err)
	}
	if !result.Success && result.Error == "" {
		result.Error = "swap failed"
	}
	return result, nil
}

// RateLimited throttles another executor with a token bucket.
type RateLimited struct {
	next    Executor
	limiter *rate.Limiter
}

// NewRateLimited allows perSecond requests with the given burst. A non-positive
// rate disables limiting.
func NewRateLimited(next Executor, perSecond float64, burst int) *RateLimited {
	limit := rate.Limit(perSecond)
	if perSecond <= 0 {
		limit = rate.Inf
	}
	if burst <= 0 {
		burst = 1
	}
	return &RateLimited{next: next, limiter: rate.NewLimiter(limit, burst)}
}

func (r *RateLimited) Execute(ctx context.Context, req models.ActionRequest) (models.ActionResult, error) {
	if err := r.limiter.Wait(ctx); err != nil {
		return models.ActionResult{}, fmt.Errorf("rate limit wait: %w", err)
	}
	return r.next.Execute(ctx, req)
}
