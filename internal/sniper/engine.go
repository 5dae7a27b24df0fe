// Package sniper buys newly discovered tokens for users whose sniper policy
// accepts the token's safety report.
package sniper

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"

	"github.com/solana-sniper-bot/autotrader/internal/idhash"
	"github.com/solana-sniper-bot/autotrader/internal/models"
	"github.com/solana-sniper-bot/autotrader/internal/observability"
	"github.com/solana-sniper-bot/autotrader/internal/tradelog"
	"github.com/solana-sniper-bot/autotrader/internal/utils"
)

// Decision labels recorded per (candidate, user) pair.
const (
	DecisionDispatched   = "dispatched"
	DecisionRejected     = "rejected"
	DecisionLowLiquidity = "low_liquidity"
	DecisionDuplicate    = "duplicate"
	DecisionError        = "error"
)

const (
	DefaultScanInterval = 5 * time.Second
	DefaultWorkers      = 16
)

// CandidateSource reports tokens discovered after since.
type CandidateSource interface {
	Candidates(ctx context.Context, since time.Time) ([]models.CandidateToken, error)
}

// SafetyEvaluator never fails: analysis errors come back as a neutral report.
type SafetyEvaluator interface {
	Evaluate(ctx context.Context, tokenID string) models.SafetyReport
}

type PolicySource interface {
	EnabledSniperPolicies() []models.SniperPolicy
	GetSniperPolicy(userID string) (models.SniperPolicy, bool)
}

type Executor interface {
	Execute(ctx context.Context, req models.ActionRequest) (models.ActionResult, error)
}

type Notifier interface {
	Notify(ctx context.Context, userID string, kind models.AlertKind, title, message string)
}

type Publisher interface {
	Publish(ev models.Event)
}

// Positions receives the holdings and exit plans opened by successful buys.
type Positions interface {
	RecordBuy(userID, tokenID string, tokens, cost float64) models.Holding
	RegisterExit(ctx context.Context, plan models.ExitPlan) error
}

// Recorder receives engine metrics. *observability.Metrics satisfies it.
type Recorder interface {
	ScanCompleted(engine string, elapsed time.Duration, err error)
	Decision(engine, decision string)
	DispatchStarted(engine string)
	DispatchFinished(engine, status string, elapsed time.Duration)
}

type nopRecorder struct{}

func (nopRecorder) ScanCompleted(string, time.Duration, error)     {}
func (nopRecorder) Decision(string, string)                        {}
func (nopRecorder) DispatchStarted(string)                         {}
func (nopRecorder) DispatchFinished(string, string, time.Duration) {}

// Deps are the engine's collaborators. Notifier, Publisher, Positions, Logger
// and Metrics are optional.
type Deps struct {
	Candidates CandidateSource
	Safety     SafetyEvaluator
	Policies   PolicySource
	Logs       tradelog.Store
	Executor   Executor
	Notifier   Notifier
	Publisher  Publisher
	Positions  Positions
	Logger     *utils.Logger
	Metrics    Recorder
}

type Config struct {
	ScanInterval time.Duration
	// Workers bounds how many (candidate, user) pairs are evaluated at once.
	Workers int
	// ReferenceMint is the asset spent on buys.
	ReferenceMint string
	// Wallets maps user IDs to the wallet the executor trades from.
	Wallets map[string]string
	Now     func() time.Time
}

// Engine is safe for concurrent use. Start runs the scan loop; ScanOnce and
// OnCandidateToken may also be driven directly.
type Engine struct {
	deps   Deps
	cfg    Config
	logger *utils.Logger

	scanMu sync.Mutex
	since  time.Time

	inflight sync.WaitGroup

	runMu  sync.Mutex
	cancel context.CancelFunc
	done   chan struct{}
}

func New(deps Deps, cfg Config) (*Engine, error) {
	if deps.Candidates == nil || deps.Safety == nil || deps.Policies == nil || deps.Logs == nil || deps.Executor == nil {
		return nil, errors.New("sniper: candidates, safety, policies, logs and executor are required")
	}
	if cfg.ReferenceMint == "" {
		return nil, errors.New("sniper: reference mint is required")
	}
	if cfg.ScanInterval <= 0 {
		cfg.ScanInterval = DefaultScanInterval
	}
	if cfg.Workers <= 0 {
		cfg.Workers = DefaultWorkers
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	if deps.Logger == nil {
		deps.Logger = utils.Nop()
	}
	if deps.Metrics == nil {
		deps.Metrics = nopRecorder{}
	}

	return &Engine{
		deps:   deps,
		cfg:    cfg,
		logger: deps.Logger.With("component", "sniper"),
	}, nil
}

// Start launches the scan loop. It returns an error if the loop is already running.
func (e *Engine) Start(ctx context.Context) error {
	e.runMu.Lock()
	defer e.runMu.Unlock()

	if e.cancel != nil {
		return errors.New("sniper: already running")
	}
	ctx, cancel := context.WithCancel(ctx)
	e.cancel = cancel
	e.done = make(chan struct{})

	go e.loop(ctx, e.done)
	e.logger.Info("Sniper engine started", "interval", e.cfg.ScanInterval.String(), "workers", e.cfg.Workers)
	return nil
}

// Stop ends the scan loop and waits for the current tick. In-flight trades are
// not cancelled; use Wait to drain them.
func (e *Engine) Stop() {
	e.runMu.Lock()
	cancel, done := e.cancel, e.done
	e.cancel, e.done = nil, nil
	e.runMu.Unlock()

	if cancel == nil {
		return
	}
	cancel()
	<-done
	e.logger.Info("Sniper engine stopped")
}

// Wait blocks until every dispatched trade has been resolved.
func (e *Engine) Wait() {
	e.inflight.Wait()
}

func (e *Engine) loop(ctx context.Context, done chan struct{}) {
	defer close(done)

	ticker := time.NewTicker(e.cfg.ScanInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			// Ticks run inline so a slow scan delays the next one instead of overlapping it.
			if err := e.ScanOnce(ctx); err != nil && ctx.Err() == nil {
				e.logger.Warn("Sniper scan failed", "error", err)
			}
		}
	}
}

// ScanOnce pulls candidates discovered since the previous scan and evaluates
// each one against every enabled policy.
func (e *Engine) ScanOnce(ctx context.Context) (err error) {
	e.scanMu.Lock()
	defer e.scanMu.Unlock()

	start := e.cfg.Now()
	ctx, span := observability.Tracer().Start(ctx, "sniper.scan")
	defer func() {
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
		}
		span.End()
		e.deps.Metrics.ScanCompleted(observability.EngineSniper, e.cfg.Now().Sub(start), err)
	}()

	candidates, err := e.deps.Candidates.Candidates(ctx, e.since)
	if err != nil {
		return fmt.Errorf("fetch candidates: %w", err)
	}
	span.SetAttributes(attribute.Int("sniper.candidates", len(candidates)))

	for _, c := range candidates {
		// The watermark only covers candidates that were evaluated.
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if c.DiscoveredAt.After(e.since) {
			e.since = c.DiscoveredAt
		}
		e.OnCandidateToken(ctx, c.TokenID, c.ObservedLiquidity)
	}
	return nil
}

// OnCandidateToken evaluates tokenID for every enabled policy and dispatches a
// buy for each policy that accepts it. liquidity of 0 means unknown. A failure
// for one user never affects another.
func (e *Engine) OnCandidateToken(ctx context.Context, tokenID string, liquidity float64) {
	policies := e.deps.Policies.EnabledSniperPolicies()
	if len(policies) == 0 {
		return
	}

	report := e.deps.Safety.Evaluate(ctx, tokenID)

	sem := make(chan struct{}, e.cfg.Workers)
	var wg sync.WaitGroup
	for _, p := range policies {
		sem <- struct{}{}
		wg.Add(1)
		go func(p models.SniperPolicy) {
			defer func() {
				if r := recover(); r != nil {
					e.logger.Error("Sniper evaluation panicked", "user_id", p.UserID, "token", tokenID, "panic", r)
					e.deps.Metrics.Decision(observability.EngineSniper, DecisionError)
				}
				<-sem
				wg.Done()
			}()

			decision, err := e.consider(ctx, tokenID, liquidity, report, p)
			if err != nil {
				e.logger.Error("Sniper evaluation failed", "user_id", p.UserID, "token", tokenID, "error", err)
			}
			e.deps.Metrics.Decision(observability.EngineSniper, decision)
		}(p)
	}
	wg.Wait()
}

// Accept reports whether report satisfies policy's entry criteria.
func Accept(report models.SafetyReport, p models.SniperPolicy) bool {
	return report.RiskScore >= p.MinRiskScore &&
		report.BuyTaxPercent <= p.MaxTaxPercent &&
		report.SellTaxPercent <= p.MaxTaxPercent &&
		!report.IsHoneypot &&
		report.LiquidityLocked
}

func (e *Engine) consider(ctx context.Context, tokenID string, liquidity float64, report models.SafetyReport, p models.SniperPolicy) (string, error) {
	if liquidity > 0 && liquidity < p.MinLiquidity {
		return DecisionLowLiquidity, nil
	}
	if !Accept(report, p) {
		e.logger.Debug("Candidate rejected", "user_id", p.UserID, "token", tokenID,
			"risk_score", report.RiskScore, "buy_tax", report.BuyTaxPercent, "sell_tax", report.SellTaxPercent)
		return DecisionRejected, nil
	}

	key := idhash.SnipeKey(p.UserID, tokenID)
	claimed, err := e.deps.Logs.Claim(ctx, key)
	if err != nil {
		return DecisionError, fmt.Errorf("claim: %w", err)
	}
	if !claimed {
		return DecisionDuplicate, nil
	}

	entry := &models.SniperLogEntry{
		ID:             uuid.NewString(),
		UserID:         p.UserID,
		TokenID:        tokenID,
		Action:         models.ActionBuy,
		Amount:         p.MaxBuyAmount,
		Status:         models.LogStatusPending,
		IdempotencyKey: key,
		Timestamp:      e.cfg.Now().UTC(),
	}
	if err := e.deps.Logs.AppendSniper(ctx, entry); err != nil {
		if rerr := e.deps.Logs.Release(ctx, key); rerr != nil {
			err = errors.Join(err, fmt.Errorf("release claim: %w", rerr))
		}
		return DecisionError, fmt.Errorf("append log: %w", err)
	}

	req := models.ActionRequest{
		UserID:             p.UserID,
		UserWallet:         e.cfg.Wallets[p.UserID],
		InputAsset:         e.cfg.ReferenceMint,
		OutputAsset:        tokenID,
		Amount:             p.MaxBuyAmount,
		MaxSlippagePercent: p.MaxSlippagePercent,
		MinLiquidity:       p.MinLiquidity,
		IdempotencyKey:     key,
	}

	e.inflight.Add(1)
	go e.execute(context.WithoutCancel(ctx), *entry, p.Clone(), req)
	return DecisionDispatched, nil
}

func (e *Engine) execute(ctx context.Context, entry models.SniperLogEntry, p models.SniperPolicy, req models.ActionRequest) {
	defer e.inflight.Done()

	start := e.cfg.Now()
	e.deps.Metrics.DispatchStarted(observability.EngineSniper)
	ctx, span := observability.Tracer().Start(ctx, "sniper.execute")
	span.SetAttributes(attribute.String("user.id", entry.UserID), attribute.String("token.id", entry.TokenID))
	defer span.End()

	status := models.LogStatusFailed
	defer func() {
		if r := recover(); r != nil {
			e.logger.Error("Sniper dispatch panicked", "user_id", entry.UserID, "token", entry.TokenID, "panic", r)
			e.fail(ctx, entry, fmt.Errorf("panic: %v", r))
		}
		e.deps.Metrics.DispatchFinished(observability.EngineSniper, string(status), e.cfg.Now().Sub(start))
	}()

	res, err := e.deps.Executor.Execute(ctx, req)
	if err == nil && !res.Success {
		err = errors.New(res.Error)
		if res.Error == "" {
			err = errors.New("swap failed")
		}
	}
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		e.fail(ctx, entry, err)
		return
	}

	status = models.LogStatusSuccess
	e.succeed(ctx, entry, p, res)
}

func (e *Engine) succeed(ctx context.Context, entry models.SniperLogEntry, p models.SniperPolicy, res models.ActionResult) {
	resolved, err := e.deps.Logs.ResolveSniper(ctx, entry.ID, models.Resolution{
		Status: models.LogStatusSuccess,
		TxRef:  res.TxRef,
		Price:  res.Price,
		At:     e.cfg.Now().UTC(),
	})
	if err != nil {
		e.logger.Error("Failed to resolve sniper log", "log_id", entry.ID, "error", err)
		resolved = entry
	}

	tokens := res.OutputAmount
	if tokens == 0 && res.Price > 0 {
		tokens = entry.Amount / res.Price
	}
	if e.deps.Positions != nil {
		e.deps.Positions.RecordBuy(entry.UserID, entry.TokenID, tokens, entry.Amount)
	}

	e.logger.Info("Snipe executed", "user_id", entry.UserID, "token", entry.TokenID,
		"amount", entry.Amount, "tx_ref", res.TxRef, "price", res.Price)
	e.publish(models.EventSnipeExecuted, resolved)
	e.notify(ctx, entry.UserID, models.AlertSuccess, "Sniper Bot Success",
		fmt.Sprintf("Successfully sniped %s for %g SOL (tx %s)", entry.TokenID, entry.Amount, res.TxRef))

	if p.HasExitPlan() && e.deps.Positions != nil {
		plan := models.ExitPlan{
			UserID:            entry.UserID,
			TokenID:           entry.TokenID,
			EntryPrice:        res.Price,
			Amount:            tokens,
			TakeProfitPercent: p.TakeProfitPercent,
			StopLossPercent:   p.StopLossPercent,
			Source:            models.ExitSourceSniper,
			TxRef:             res.TxRef,
			CreatedAt:         e.cfg.Now().UTC(),
		}
		if err := e.deps.Positions.RegisterExit(ctx, plan); err != nil {
			e.logger.Warn("Failed to register exit plan", "user_id", entry.UserID, "token", entry.TokenID, "error", err)
		}
	}
}

func (e *Engine) fail(ctx context.Context, entry models.SniperLogEntry, cause error) {
	resolved, err := e.deps.Logs.ResolveSniper(ctx, entry.ID, models.Resolution{
		Status: models.LogStatusFailed,
		Error:  cause.Error(),
		At:     e.cfg.Now().UTC(),
	})
	if err != nil {
		e.logger.Error("Failed to resolve sniper log", "log_id", entry.ID, "error", err)
		resolved = entry
	}

	e.logger.Warn("Snipe failed", "user_id", entry.UserID, "token", entry.TokenID, "error", cause)
	e.publish(models.EventSnipeFailed, resolved)
	e.notify(ctx, entry.UserID, models.AlertError, "Sniper Bot Failed",
		fmt.Sprintf("Buy of %s for %g SOL failed: %s", entry.TokenID, entry.Amount, cause))
}

func (e *Engine) publish(t models.EventType, entry models.SniperLogEntry) {
	if e.deps.Publisher == nil {
		return
	}
	e.deps.Publisher.Publish(models.Event{
		Type:      t,
		UserID:    entry.UserID,
		Payload:   entry,
		Timestamp: e.cfg.Now().UTC(),
	})
}

func (e *Engine) notify(ctx context.Context, userID string, kind models.AlertKind, title, message string) {
	if e.deps.Notifier == nil {
		return
	}
	e.deps.Notifier.Notify(ctx, userID, kind, title, message)
}

// Status summarizes a user's sniper activity.
type Status struct {
	Enabled          bool                    `json:"enabled"`
	Policy           *models.SniperPolicy    `json:"policy,omitempty"`
	TotalSnipes      int                     `json:"total_snipes"`
	SuccessfulSnipes int                     `json:"successful_snipes"`
	SuccessRate      float64                 `json:"success_rate"`
	RecentLogs       []models.SniperLogEntry `json:"recent_logs"`
}

const recentLogCount = 5

// Status reports the user's policy, outcome counts over their whole log and
// the most recent entries.
func (e *Engine) Status(ctx context.Context, userID string) (Status, error) {
	stats, err := e.deps.Logs.SniperStats(ctx, userID)
	if err != nil {
		return Status{}, fmt.Errorf("count sniper logs: %w", err)
	}
	logs, err := e.deps.Logs.SniperLogs(ctx, userID, recentLogCount)
	if err != nil {
		return Status{}, fmt.Errorf("load sniper logs: %w", err)
	}

	st := Status{
		TotalSnipes:      stats.Total,
		SuccessfulSnipes: stats.Successful,
		RecentLogs:       logs,
	}
	if p, ok := e.deps.Policies.GetSniperPolicy(userID); ok {
		st.Enabled = p.Enabled
		st.Policy = &p
	}
	if st.TotalSnipes > 0 {
		st.SuccessRate = float64(st.SuccessfulSnipes) / float64(st.TotalSnipes) * 100
	}
	return st, nil
}
