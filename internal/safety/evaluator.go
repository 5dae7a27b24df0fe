// Package safety scores tokens for rug-pull risk. Scores start at 100 and each
// failed check subtracts a fixed penalty. Reports are cached per token for a
// fixed TTL and the evaluator never returns an error: when the checks cannot run
// it falls back to a neutral report.
package safety

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"

	"github.com/solana-sniper-bot/autotrader/internal/models"
	"github.com/solana-sniper-bot/autotrader/internal/utils"
)

// ErrTokenNotFound is returned by a Signals implementation for unknown tokens.
var ErrTokenNotFound = errors.New("token not found")

const (
	DefaultCacheTTL     = 5 * time.Minute
	DefaultCheckTimeout = 10 * time.Second
)

// Signals are the chain lookups and simulations behind each check.
type Signals interface {
	// SimulateSwap reports whether a small swap in the given direction would succeed.
	SimulateSwap(ctx context.Context, tokenID string, direction models.TradeAction) (bool, error)
	HasBlacklistPattern(ctx context.Context, tokenID string) (bool, error)
	LiquidityLocked(ctx context.Context, tokenID string) (bool, error)
	MintAuthorityRenounced(ctx context.Context, tokenID string) (bool, error)
	EstimateTaxes(ctx context.Context, tokenID string) (buyPercent, sellPercent float64, err error)
	// AssociatedWallets lists wallets tied to the token (creator, top holders).
	AssociatedWallets(ctx context.Context, tokenID string) ([]string, error)
}

// Recorder receives evaluation outcomes: computed, cached or failed.
type Recorder interface {
	SafetyEvaluation(outcome string, elapsed time.Duration)
}

// Option configures an Evaluator.
type Option func(*Evaluator)

func WithCacheTTL(ttl time.Duration) Option {
	return func(e *Evaluator) { e.ttl = ttl }
}

func WithCheckTimeout(d time.Duration) Option {
	return func(e *Evaluator) { e.checkTimeout = d }
}

func WithHighTaxThreshold(percent float64) Option {
	return func(e *Evaluator) { e.highTax = percent }
}

func WithBadActors(wallets []string) Option {
	return func(e *Evaluator) {
		for _, w := range wallets {
			e.badActors[w] = struct{}{}
		}
	}
}

func WithClock(now func() time.Time) Option {
	return func(e *Evaluator) { e.now = now }
}

func WithLogger(l *utils.Logger) Option {
	return func(e *Evaluator) { e.logger = l }
}

func WithRecorder(r Recorder) Option {
	return func(e *Evaluator) { e.recorder = r }
}

// Evaluator runs the check battery with a read-through cache.
type Evaluator struct {
	signals      Signals
	ttl          time.Duration
	checkTimeout time.Duration
	highTax      float64
	now          func() time.Time
	logger       *utils.Logger
	recorder     Recorder

	mu    sync.RWMutex
	cache map[string]models.SafetyReport

	badMu     sync.RWMutex
	badActors map[string]struct{}
}

// New creates an Evaluator over signals.
func New(signals Signals, opts ...Option) *Evaluator {
	e := &Evaluator{
		signals:      signals,
		ttl:          DefaultCacheTTL,
		checkTimeout: DefaultCheckTimeout,
		highTax:      models.HighTaxThresholdPercent,
		now:          time.Now,
		logger:       utils.Nop(),
		cache:        make(map[string]models.SafetyReport),
		badActors:    make(map[string]struct{}),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Evaluate returns the cached report for tokenID if it is younger than the TTL,
// otherwise runs the checks. It always returns a report.
func (e *Evaluator) Evaluate(ctx context.Context, tokenID string) models.SafetyReport {
	ctx, span := otel.Tracer("autotrader/safety").Start(ctx, "safety.Evaluate")
	span.SetAttributes(attribute.String("token_id", tokenID))
	defer span.End()

	start := e.now()
	if report, ok := e.cached(tokenID, start); ok {
		span.SetAttributes(attribute.Bool("cache_hit", true))
		e.record("cached", start)
		return report
	}

	report, err := e.compute(ctx, tokenID)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "analysis failed")
		e.logger.Warn("Token safety analysis failed", "token_id", tokenID, "error", err)
		e.record("failed", start)
		return models.NeutralSafetyReport(tokenID, e.now())
	}

	span.SetAttributes(attribute.Int("risk_score", report.RiskScore))
	e.mu.Lock()
	e.cache[tokenID] = report
	e.mu.Unlock()

	e.record("computed", start)
	return report.Clone()
}

func (e *Evaluator) cached(tokenID string, now time.Time) (models.SafetyReport, bool) {
	e.mu.RLock()
	defer e.mu.RUnlock()

	report, ok := e.cache[tokenID]
	if !ok || now.Sub(report.ComputedAt) >= e.ttl {
		return models.SafetyReport{}, false
	}
	return report.Clone(), true
}

func (e *Evaluator) record(outcome string, start time.Time) {
	if e.recorder != nil {
		e.recorder.SafetyEvaluation(outcome, e.now().Sub(start))
	}
}

// compute runs the six checks concurrently. Any check error fails the whole
// evaluation.
func (e *Evaluator) compute(ctx context.Context, tokenID string) (models.SafetyReport, error) {
	if e.checkTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, e.checkTimeout)
		defer cancel()
	}

	var (
		outcome CheckOutcome
		wg      sync.WaitGroup
		errs    = make([]error, 6)
	)

	run := func(i int, name string, check func() error) {
		wg.Add(1)
		go func() {
			defer wg.Done()
			defer func() {
				if r := recover(); r != nil {
					errs[i] = fmt.Errorf("%s check panicked: %v", name, r)
				}
			}()
			if err := check(); err != nil {
				errs[i] = fmt.Errorf("%s check: %w", name, err)
			}
		}()
	}

	run(0, "honeypot", func() (err error) {
		outcome.Honeypot, err = e.honeypot(ctx, tokenID)
		return err
	})
	run(1, "blacklist", func() (err error) {
		outcome.Blacklist, err = e.signals.HasBlacklistPattern(ctx, tokenID)
		return err
	})
	run(2, "liquidity lock", func() (err error) {
		outcome.LiquidityLock, err = e.signals.LiquidityLocked(ctx, tokenID)
		return err
	})
	run(3, "mint authority", func() (err error) {
		outcome.MintRenounced, err = e.signals.MintAuthorityRenounced(ctx, tokenID)
		return err
	})
	run(4, "tax", func() (err error) {
		outcome.BuyTax, outcome.SellTax, err = e.signals.EstimateTaxes(ctx, tokenID)
		return err
	})
	run(5, "bad actor", func() (err error) {
		outcome.BadActor, err = e.badActorInvolved(ctx, tokenID)
		return err
	})

	wg.Wait()

	if err := errors.Join(errs...); err != nil {
		return models.SafetyReport{}, err
	}

	report := outcome.Report(tokenID, e.highTax)
	report.ComputedAt = e.now()
	return report, nil
}

// honeypot flags tokens that can be bought but not sold.
func (e *Evaluator) honeypot(ctx context.Context, tokenID string) (bool, error) {
	canBuy, err := e.signals.SimulateSwap(ctx, tokenID, models.ActionBuy)
	if err != nil {
		return false, err
	}
	if !canBuy {
		return false, nil
	}
	canSell, err := e.signals.SimulateSwap(ctx, tokenID, models.ActionSell)
	if err != nil {
		return false, err
	}
	return !canSell, nil
}

func (e *Evaluator) badActorInvolved(ctx context.Context, tokenID string) (bool, error) {
	wallets, err := e.signals.AssociatedWallets(ctx, tokenID)
	if err != nil {
		return false, err
	}

	e.badMu.RLock()
	defer e.badMu.RUnlock()
	for _, w := range wallets {
		if _, ok := e.badActors[w]; ok {
			return true, nil
		}
	}
	return false, nil
}

// AddBadActor flags a wallet. Cached reports are not invalidated.
func (e *Evaluator) AddBadActor(wallet string) {
	e.badMu.Lock()
	e.badActors[wallet] = struct{}{}
	e.badMu.Unlock()
}

func (e *Evaluator) RemoveBadActor(wallet string) {
	e.badMu.Lock()
	delete(e.badActors, wallet)
	e.badMu.Unlock()
}

// BadActors returns the flagged wallets in sorted order.
func (e *Evaluator) BadActors() []string {
	e.badMu.RLock()
	out := make([]string, 0, len(e.badActors))
	for w := range e.badActors {
		out = append(out, w)
	}
	e.badMu.RUnlock()

	sort.Strings(out)
	return out
}

// Invalidate drops the cached report for tokenID.
func (e *Evaluator) Invalidate(tokenID string) {
	e.mu.Lock()
	delete(e.cache, tokenID)
	e.mu.Unlock()
}

// PurgeExpired removes cache entries older than the TTL and returns how many were dropped.
func (e *Evaluator) PurgeExpired() int {
	now := e.now()
	e.mu.Lock()
	defer e.mu.Unlock()

	n := 0
	for id, report := range e.cache {
		if now.Sub(report.ComputedAt) >= e.ttl {
			delete(e.cache, id)
			n++
		}
	}
	return n
}

// RunJanitor purges expired cache entries every interval until ctx is done.
func (e *Evaluator) RunJanitor(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if n := e.PurgeExpired(); n > 0 {
				e.logger.Debug("Purged expired safety reports", "count", n)
			}
		}
	}
}
