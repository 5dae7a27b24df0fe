// Package copytrade mirrors the trades of followed leader wallets into their
// followers' accounts, sized by each follower's copy policy.
package copytrade

import (
	"context"
	"errors"
	"fmt"
	"sort"
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

// Decision labels recorded per (activity, follower) pair.
const (
	DecisionDispatched   = "dispatched"
	DecisionNotMirrored  = "not_mirrored"
	DecisionFiltered     = "filtered"
	DecisionNoHolding    = "no_holding"
	DecisionDeferred     = "deferred"
	DecisionZeroSize     = "zero_size"
	DecisionDuplicate    = "duplicate"
	DecisionBeforeFollow = "before_follow"
	DecisionError        = "error"
)

// Skip reasons carried by copyTradeSkipped events.
const (
	SkipNotVerified = "token not verified"
	SkipHighTax     = "high tax"
)

const (
	DefaultScanInterval     = 10 * time.Second
	DefaultActivityLimit    = 10
	DefaultWorkers          = 16
	DefaultVerifiedMinScore = 70
)

// ActivitySource reports a leader's recent trades, newest first.
type ActivitySource interface {
	RecentActivity(ctx context.Context, leader string, limit int) ([]models.LeaderActivity, error)
}

type SafetyEvaluator interface {
	Evaluate(ctx context.Context, tokenID string) models.SafetyReport
}

type PolicySource interface {
	FollowersOf(leader string) []models.CopyTradePolicy
	TrackedLeaders() []string
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

// Positions is the follower holdings book. Mirrored sells are sized from it
// and realize PnL against its cost basis. In-flight buys are tracked so a sell
// can wait for them, and in-flight sells reserve their tokens so a second sell
// sizes off what is left.
type Positions interface {
	Holding(userID, tokenID string) (models.Holding, bool)
	RecordBuy(userID, tokenID string, tokens, cost float64) models.Holding
	RecordSell(userID, tokenID string, tokens, proceeds float64) (float64, error)
	BeginBuy(userID, tokenID string)
	EndBuy(userID, tokenID string)
	PendingBuys(userID, tokenID string) int
	ReserveSell(userID, tokenID string, size func(available float64) float64) float64
	ReleaseSell(userID, tokenID string, tokens float64)
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

// Deps are the engine's collaborators. Notifier, Publisher, Logger and Metrics
// are optional.
type Deps struct {
	Activity  ActivitySource
	Safety    SafetyEvaluator
	Policies  PolicySource
	Logs      tradelog.Store
	Executor  Executor
	Positions Positions
	Notifier  Notifier
	Publisher Publisher
	Logger    *utils.Logger
	Metrics   Recorder
}

type Config struct {
	ScanInterval  time.Duration
	ActivityLimit int
	Workers       int
	ReferenceMint string
	Wallets       map[string]string
	// VerifiedMinScore is the lowest risk score an onlyVerifiedTokens follower accepts.
	VerifiedMinScore int
	// HighTaxPercent is the tax above which skipHighTax followers skip a token.
	HighTaxPercent float64
	Now            func() time.Time
}

type Engine struct {
	deps   Deps
	cfg    Config
	logger *utils.Logger

	scanMu     sync.Mutex
	started    time.Time
	watermarks map[string]time.Time

	inflight sync.WaitGroup

	// deferred holds sells that arrived while the follower's buy of the same
	// token was still in flight, keyed by mirror key.
	deferMu  sync.Mutex
	deferred map[string]deferredSell

	runMu  sync.Mutex
	cancel context.CancelFunc
	done   chan struct{}
}

func New(deps Deps, cfg Config) (*Engine, error) {
	if deps.Activity == nil || deps.Safety == nil || deps.Policies == nil || deps.Logs == nil ||
		deps.Executor == nil || deps.Positions == nil {
		return nil, errors.New("copytrade: activity, safety, policies, logs, executor and positions are required")
	}
	if cfg.ReferenceMint == "" {
		return nil, errors.New("copytrade: reference mint is required")
	}
	if cfg.ScanInterval <= 0 {
		cfg.ScanInterval = DefaultScanInterval
	}
	if cfg.ActivityLimit <= 0 {
		cfg.ActivityLimit = DefaultActivityLimit
	}
	if cfg.Workers <= 0 {
		cfg.Workers = DefaultWorkers
	}
	if cfg.VerifiedMinScore <= 0 {
		cfg.VerifiedMinScore = DefaultVerifiedMinScore
	}
	if cfg.HighTaxPercent <= 0 {
		cfg.HighTaxPercent = models.HighTaxThresholdPercent
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
		deps:       deps,
		cfg:        cfg,
		logger:     deps.Logger.With("component", "copytrade"),
		started:    cfg.Now(),
		watermarks: make(map[string]time.Time),
		deferred:   make(map[string]deferredSell),
	}, nil
}

// Start launches the scan loop. It returns an error if the loop is already running.
func (e *Engine) Start(ctx context.Context) error {
	e.runMu.Lock()
	defer e.runMu.Unlock()

	if e.cancel != nil {
		return errors.New("copytrade: already running")
	}
	ctx, cancel := context.WithCancel(ctx)
	e.cancel = cancel
	e.done = make(chan struct{})

	go e.loop(ctx, e.done)
	e.logger.Info("Copy-trade engine started", "interval", e.cfg.ScanInterval.String())
	return nil
}

// Stop ends the scan loop and waits for the current tick. In-flight trades
// keep running; use Wait to drain them.
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
	e.logger.Info("Copy-trade engine stopped")
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
			if err := e.ScanOnce(ctx); err != nil && ctx.Err() == nil {
				e.logger.Warn("Copy-trade scan failed", "error", err)
			}
		}
	}
}

// ScanOnce retries deferred sells, then fetches recent activity for every
// followed leader and mirrors anything observed since the previous scan.
// Activity from before the engine was created is ignored, and each follower
// only gets trades observed after they started following. A failing leader
// does not stop the others.
func (e *Engine) ScanOnce(ctx context.Context) (err error) {
	e.scanMu.Lock()
	defer e.scanMu.Unlock()

	start := e.cfg.Now()
	ctx, span := observability.Tracer().Start(ctx, "copytrade.scan")
	defer func() {
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
		}
		span.End()
		e.deps.Metrics.ScanCompleted(observability.EngineCopyTrade, e.cfg.Now().Sub(start), err)
	}()

	e.retryDeferred(ctx)

	leaders := e.deps.Policies.TrackedLeaders()
	span.SetAttributes(attribute.Int("copytrade.leaders", len(leaders)))

	var errs []error
	for _, leader := range leaders {
		if ctx.Err() != nil {
			return ctx.Err()
		}

		activity, err := e.deps.Activity.RecentActivity(ctx, leader, e.cfg.ActivityLimit)
		if err != nil {
			errs = append(errs, fmt.Errorf("leader %s: %w", leader, err))
			continue
		}

		mark, ok := e.watermarks[leader]
		if !ok {
			mark = e.started
		}
		newest := mark
		// Oldest first so followers see the leader's trades in order.
		for i := len(activity) - 1; i >= 0; i-- {
			a := activity[i]
			if a.ObservedAt.Before(mark) {
				continue
			}
			if a.ObservedAt.After(newest) {
				newest = a.ObservedAt
			}
			e.OnLeaderActivity(ctx, a)
		}
		e.watermarks[leader] = newest
	}
	return errors.Join(errs...)
}

// OnLeaderActivity mirrors one leader trade to every enabled follower.
// Failures are isolated per follower.
func (e *Engine) OnLeaderActivity(ctx context.Context, a models.LeaderActivity) {
	if !a.Action.Valid() {
		e.logger.Warn("Ignoring leader activity with unknown action", "leader", a.LeaderWalletAddress, "action", string(a.Action))
		return
	}
	followers := e.deps.Policies.FollowersOf(a.LeaderWalletAddress)
	if len(followers) == 0 {
		return
	}

	evaluate := e.evaluator(ctx, a.TokenID)

	sem := make(chan struct{}, e.cfg.Workers)
	var wg sync.WaitGroup
	for _, p := range followers {
		sem <- struct{}{}
		wg.Add(1)
		go func(p models.CopyTradePolicy) {
			defer func() {
				if r := recover(); r != nil {
					e.logger.Error("Copy-trade evaluation panicked", "user_id", p.UserID, "leader", a.LeaderWalletAddress, "panic", r)
					e.deps.Metrics.Decision(observability.EngineCopyTrade, DecisionError)
				}
				<-sem
				wg.Done()
			}()

			decision, err := e.mirror(ctx, a, p, evaluate)
			if err != nil {
				e.logger.Error("Copy-trade evaluation failed", "user_id", p.UserID, "leader", a.LeaderWalletAddress, "error", err)
			}
			e.deps.Metrics.Decision(observability.EngineCopyTrade, decision)
		}(p)
	}
	wg.Wait()
}

// evaluator returns a func that runs the safety check for tokenID at most once.
func (e *Engine) evaluator(ctx context.Context, tokenID string) func() models.SafetyReport {
	var (
		once   sync.Once
		report models.SafetyReport
	)
	return func() models.SafetyReport {
		once.Do(func() { report = e.deps.Safety.Evaluate(ctx, tokenID) })
		return report
	}
}

type deferredSell struct {
	activity models.LeaderActivity
	userID   string
}

func (e *Engine) deferSell(key string, a models.LeaderActivity, userID string) {
	e.deferMu.Lock()
	defer e.deferMu.Unlock()
	e.deferred[key] = deferredSell{activity: a, userID: userID}
}

// retryDeferred mirrors held-back sells again, oldest first. A sell whose
// buy is still in flight is deferred again; one whose follow has ended is
// dropped.
func (e *Engine) retryDeferred(ctx context.Context) {
	e.deferMu.Lock()
	pending := make([]deferredSell, 0, len(e.deferred))
	for key, d := range e.deferred {
		pending = append(pending, d)
		delete(e.deferred, key)
	}
	e.deferMu.Unlock()

	sort.Slice(pending, func(i, j int) bool {
		return pending[i].activity.ObservedAt.Before(pending[j].activity.ObservedAt)
	})
	for _, d := range pending {
		if ctx.Err() != nil {
			e.deferSell(idhash.MirrorKey(d.userID, activityRef(d.activity)), d.activity, d.userID)
			continue
		}
		p, ok := e.followOf(d.activity.LeaderWalletAddress, d.userID)
		if !ok {
			continue
		}
		decision, err := e.mirror(ctx, d.activity, p, e.evaluator(ctx, d.activity.TokenID))
		if err != nil {
			e.logger.Error("Copy-trade evaluation failed", "user_id", d.userID, "leader", d.activity.LeaderWalletAddress, "error", err)
		}
		e.deps.Metrics.Decision(observability.EngineCopyTrade, decision)
	}
}

func (e *Engine) followOf(leader, userID string) (models.CopyTradePolicy, bool) {
	for _, p := range e.deps.Policies.FollowersOf(leader) {
		if p.UserID == userID {
			return p, true
		}
	}
	return models.CopyTradePolicy{}, false
}

// Verified reports whether report meets the onlyVerifiedTokens bar.
func Verified(report models.SafetyReport, minScore int) bool {
	return report.RiskScore >= minScore && !report.IsHoneypot && report.MintAuthorityRenounced
}

func (e *Engine) mirror(ctx context.Context, a models.LeaderActivity, p models.CopyTradePolicy, evaluate func() models.SafetyReport) (decision string, err error) {
	if !p.FollowedAt.IsZero() && a.ObservedAt.Before(p.FollowedAt) {
		return DecisionBeforeFollow, nil
	}
	if a.Action == models.ActionSell && !p.AutoSellWithLeader {
		return DecisionNotMirrored, nil
	}

	key := idhash.MirrorKey(p.UserID, activityRef(a))
	if a.Action == models.ActionSell {
		// Pending buys are read first: a buy records its holding before it
		// stops counting as pending.
		pending := e.deps.Positions.PendingBuys(p.UserID, a.TokenID)
		if _, ok := e.deps.Positions.Holding(p.UserID, a.TokenID); !ok {
			if pending > 0 {
				e.deferSell(key, a, p.UserID)
				return DecisionDeferred, nil
			}
			return DecisionNoHolding, nil
		}
	}

	claimed, err := e.deps.Logs.Claim(ctx, key)
	if err != nil {
		return DecisionError, fmt.Errorf("claim: %w", err)
	}
	if !claimed {
		return DecisionDuplicate, nil
	}

	if p.OnlyVerifiedTokens || p.SkipHighTax {
		report := evaluate()
		reason := ""
		switch {
		case p.OnlyVerifiedTokens && !Verified(report, e.cfg.VerifiedMinScore):
			reason = SkipNotVerified
		case p.SkipHighTax && report.HasHighTax(e.cfg.HighTaxPercent):
			reason = SkipHighTax
		}
		if reason != "" {
			e.skipped(a, p, reason)
			return DecisionFiltered, nil
		}
	}

	var size float64
	req := models.ActionRequest{UserID: p.UserID, UserWallet: e.cfg.Wallets[p.UserID], IdempotencyKey: key}
	switch a.Action {
	case models.ActionBuy:
		size = BuySize(a.Amount, p.CopyPercentage, p.MaxCopyAmount)
		req.InputAsset, req.OutputAsset = e.cfg.ReferenceMint, a.TokenID
	case models.ActionSell:
		size = e.deps.Positions.ReserveSell(p.UserID, a.TokenID, func(available float64) float64 {
			return SellSize(available, p.CopyPercentage)
		})
		req.InputAsset, req.OutputAsset = a.TokenID, e.cfg.ReferenceMint
	}
	if size <= 0 {
		if rerr := e.deps.Logs.Release(ctx, key); rerr != nil {
			return DecisionError, fmt.Errorf("release claim: %w", rerr)
		}
		return DecisionZeroSize, nil
	}
	req.Amount = size
	if a.Action == models.ActionSell {
		defer func() {
			if decision != DecisionDispatched {
				e.deps.Positions.ReleaseSell(p.UserID, a.TokenID, size)
			}
		}()
	}

	entry := &models.CopyTradeLogEntry{
		ID:                   uuid.NewString(),
		UserID:               p.UserID,
		LeaderWalletAddress:  a.LeaderWalletAddress,
		LeaderTxSignature:    a.TxSignature,
		TokenID:              a.TokenID,
		Action:               a.Action,
		LeaderObservedAmount: a.Amount,
		CopiedAmount:         size,
		Amount:               size,
		Status:               models.LogStatusPending,
		IdempotencyKey:       key,
		Timestamp:            e.cfg.Now().UTC(),
	}
	if err := e.deps.Logs.AppendCopyTrade(ctx, entry); err != nil {
		err = fmt.Errorf("append log: %w", err)
		if rerr := e.deps.Logs.Release(ctx, key); rerr != nil {
			err = errors.Join(err, fmt.Errorf("release claim: %w", rerr))
		}
		return DecisionError, err
	}

	if a.Action == models.ActionBuy {
		e.deps.Positions.BeginBuy(p.UserID, a.TokenID)
	}
	e.inflight.Add(1)
	go e.execute(context.WithoutCancel(ctx), *entry, p.Clone(), req)
	return DecisionDispatched, nil
}

// activityRef identifies a leader trade. Activity without a signature falls
// back to a hash of its contents.
func activityRef(a models.LeaderActivity) string {
	if a.TxSignature != "" {
		return a.TxSignature
	}
	return idhash.Key(a.LeaderWalletAddress, a.TokenID, string(a.Action), a.ObservedAt.UTC().Format(time.RFC3339Nano))
}

func (e *Engine) execute(ctx context.Context, entry models.CopyTradeLogEntry, p models.CopyTradePolicy, req models.ActionRequest) {
	defer e.inflight.Done()
	// Runs after the outcome is recorded in the book.
	switch entry.Action {
	case models.ActionBuy:
		defer e.deps.Positions.EndBuy(entry.UserID, entry.TokenID)
	case models.ActionSell:
		defer e.deps.Positions.ReleaseSell(entry.UserID, entry.TokenID, entry.Amount)
	}

	start := e.cfg.Now()
	e.deps.Metrics.DispatchStarted(observability.EngineCopyTrade)
	ctx, span := observability.Tracer().Start(ctx, "copytrade.execute")
	span.SetAttributes(
		attribute.String("user.id", entry.UserID),
		attribute.String("leader.address", entry.LeaderWalletAddress),
		attribute.String("trade.action", string(entry.Action)),
	)
	defer span.End()

	status := models.LogStatusFailed
	defer func() {
		if r := recover(); r != nil {
			e.logger.Error("Copy-trade dispatch panicked", "user_id", entry.UserID, "token", entry.TokenID, "panic", r)
			e.fail(ctx, entry, fmt.Errorf("panic: %v", r))
		}
		e.deps.Metrics.DispatchFinished(observability.EngineCopyTrade, string(status), e.cfg.Now().Sub(start))
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

func (e *Engine) succeed(ctx context.Context, entry models.CopyTradeLogEntry, p models.CopyTradePolicy, res models.ActionResult) {
	var pnl *float64
	switch entry.Action {
	case models.ActionBuy:
		tokens := res.OutputAmount
		if tokens == 0 && res.Price > 0 {
			tokens = entry.Amount / res.Price
		}
		e.deps.Positions.RecordBuy(entry.UserID, entry.TokenID, tokens, entry.Amount)
		if p.HasExitPlan() {
			plan := models.ExitPlan{
				UserID:            entry.UserID,
				TokenID:           entry.TokenID,
				EntryPrice:        res.Price,
				Amount:            tokens,
				TakeProfitPercent: p.TakeProfitPercent,
				StopLossPercent:   p.StopLossPercent,
				Source:            models.ExitSourceCopyTrade,
				TxRef:             res.TxRef,
				CreatedAt:         e.cfg.Now().UTC(),
			}
			if err := e.deps.Positions.RegisterExit(ctx, plan); err != nil {
				e.logger.Warn("Failed to register exit plan", "user_id", entry.UserID, "token", entry.TokenID, "error", err)
			}
		}
	case models.ActionSell:
		proceeds := res.OutputAmount
		if proceeds == 0 && res.Price > 0 {
			proceeds = entry.Amount / res.Price
		}
		realized, err := e.deps.Positions.RecordSell(entry.UserID, entry.TokenID, entry.Amount, proceeds)
		if err != nil {
			e.logger.Warn("Failed to record mirrored sell", "user_id", entry.UserID, "token", entry.TokenID, "error", err)
		} else {
			pnl = &realized
		}
	}

	resolved, err := e.deps.Logs.ResolveCopyTrade(ctx, entry.ID, models.Resolution{
		Status: models.LogStatusSuccess,
		TxRef:  res.TxRef,
		Price:  res.Price,
		PnL:    pnl,
		At:     e.cfg.Now().UTC(),
	})
	if err != nil {
		e.logger.Error("Failed to resolve copy-trade log", "log_id", entry.ID, "error", err)
		resolved = entry
	}

	e.logger.Info("Copy trade executed", "user_id", entry.UserID, "leader", entry.LeaderWalletAddress,
		"action", string(entry.Action), "token", entry.TokenID, "amount", entry.Amount, "tx_ref", res.TxRef)
	e.publish(models.EventCopyTradeExecuted, entry.UserID, resolved)
	e.notify(ctx, entry.UserID, models.AlertSuccess, "Copy Trade Executed",
		fmt.Sprintf("Copied %s of %s from %s", entry.Action, entry.TokenID, entry.LeaderWalletAddress))
}

func (e *Engine) fail(ctx context.Context, entry models.CopyTradeLogEntry, cause error) {
	resolved, err := e.deps.Logs.ResolveCopyTrade(ctx, entry.ID, models.Resolution{
		Status: models.LogStatusFailed,
		Error:  cause.Error(),
		At:     e.cfg.Now().UTC(),
	})
	if err != nil {
		e.logger.Error("Failed to resolve copy-trade log", "log_id", entry.ID, "error", err)
		resolved = entry
	}

	e.logger.Warn("Copy trade failed", "user_id", entry.UserID, "leader", entry.LeaderWalletAddress,
		"token", entry.TokenID, "error", cause)
	e.publish(models.EventCopyTradeFailed, entry.UserID, resolved)
	e.notify(ctx, entry.UserID, models.AlertError, "Copy Trade Failed",
		fmt.Sprintf("Could not copy %s of %s from %s: %s", entry.Action, entry.TokenID, entry.LeaderWalletAddress, cause))
}

// SkippedTrade is the payload of a copyTradeSkipped event.
type SkippedTrade struct {
	LeaderWalletAddress string             `json:"leader_wallet_address"`
	LeaderTxSignature   string             `json:"leader_tx_signature,omitempty"`
	TokenID             string             `json:"token_id"`
	Action              models.TradeAction `json:"action"`
	Reason              string             `json:"reason"`
}

func (e *Engine) skipped(a models.LeaderActivity, p models.CopyTradePolicy, reason string) {
	e.logger.Debug("Copy trade skipped", "user_id", p.UserID, "leader", a.LeaderWalletAddress,
		"token", a.TokenID, "reason", reason)
	e.publish(models.EventCopyTradeSkipped, p.UserID, SkippedTrade{
		LeaderWalletAddress: a.LeaderWalletAddress,
		LeaderTxSignature:   a.TxSignature,
		TokenID:             a.TokenID,
		Action:              a.Action,
		Reason:              reason,
	})
}

func (e *Engine) publish(t models.EventType, userID string, payload interface{}) {
	if e.deps.Publisher == nil {
		return
	}
	e.deps.Publisher.Publish(models.Event{
		Type:      t,
		UserID:    userID,
		Payload:   payload,
		Timestamp: e.cfg.Now().UTC(),
	})
}

func (e *Engine) notify(ctx context.Context, userID string, kind models.AlertKind, title, message string) {
	if e.deps.Notifier == nil {
		return
	}
	e.deps.Notifier.Notify(ctx, userID, kind, title, message)
}
