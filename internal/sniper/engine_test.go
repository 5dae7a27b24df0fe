package sniper

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/solana-sniper-bot/autotrader/internal/models"
	"github.com/solana-sniper-bot/autotrader/internal/policy"
	"github.com/solana-sniper-bot/autotrader/internal/positions"
	"github.com/solana-sniper-bot/autotrader/internal/tradelog"
)

const (
	wsol  = "So11111111111111111111111111111111111111112"
	token = "EPjFWdd5AufqSSqeM2qN1xzybapC8G4wEGGkZwyTDt1v"
)

type fakeCandidates struct {
	mu     sync.Mutex
	batch  []models.CandidateToken
	sinces []time.Time
}

func (f *fakeCandidates) Candidates(_ context.Context, since time.Time) ([]models.CandidateToken, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.sinces = append(f.sinces, since)
	out := f.batch
	f.batch = nil
	return out, nil
}

type fixedSafety map[string]models.SafetyReport

func (f fixedSafety) Evaluate(_ context.Context, tokenID string) models.SafetyReport {
	if r, ok := f[tokenID]; ok {
		return r
	}
	return models.NeutralSafetyReport(tokenID, time.Now())
}

type executorFunc func(ctx context.Context, req models.ActionRequest) (models.ActionResult, error)

func (f executorFunc) Execute(ctx context.Context, req models.ActionRequest) (models.ActionResult, error) {
	return f(ctx, req)
}

type captured struct {
	mu     sync.Mutex
	events []models.Event
	alerts []string
}

func (c *captured) Publish(ev models.Event) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.events = append(c.events, ev)
}

func (c *captured) Notify(_ context.Context, userID string, _ models.AlertKind, title, _ string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.alerts = append(c.alerts, userID+":"+title)
}

func (c *captured) eventTypes() []models.EventType {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]models.EventType, 0, len(c.events))
	for _, ev := range c.events {
		out = append(out, ev.Type)
	}
	return out
}

type harness struct {
	engine   *Engine
	policies *policy.Store
	logs     *tradelog.MemoryStore
	book     *positions.Book
	out      *captured
	feed     *fakeCandidates
}

func newHarness(t *testing.T, safety fixedSafety, exec Executor) *harness {
	t.Helper()
	h := &harness{
		policies: policy.NewStore(),
		logs:     tradelog.NewMemoryStore(),
		book:     positions.NewBook(),
		out:      &captured{},
		feed:     &fakeCandidates{},
	}
	e, err := New(Deps{
		Candidates: h.feed,
		Safety:     safety,
		Policies:   h.policies,
		Logs:       h.logs,
		Executor:   exec,
		Notifier:   h.out,
		Publisher:  h.out,
		Positions:  h.book,
	}, Config{ReferenceMint: wsol, Workers: 4, Wallets: map[string]string{"alice": "wallet-a"}})
	require.NoError(t, err)
	h.engine = e
	return h
}

func (h *harness) setPolicy(t *testing.T, p models.SniperPolicy) {
	t.Helper()
	require.NoError(t, h.policies.SetSniperPolicy(context.Background(), p))
}

func safeReport(score int, buyTax, sellTax float64) models.SafetyReport {
	return models.SafetyReport{
		TokenID:         token,
		RiskScore:       score,
		BuyTaxPercent:   buyTax,
		SellTaxPercent:  sellTax,
		LiquidityLocked: true,
	}
}

func okExecutor(txRef string) Executor {
	return executorFunc(func(_ context.Context, req models.ActionRequest) (models.ActionResult, error) {
		return models.ActionResult{Success: true, TxRef: txRef, Price: 0.001, OutputAmount: req.Amount / 0.001}, nil
	})
}

func TestAccept(t *testing.T) {
	p := models.SniperPolicy{MinRiskScore: 80, MaxTaxPercent: 5}

	tests := []struct {
		name   string
		report models.SafetyReport
		want   bool
	}{
		{"score below minimum", safeReport(79, 0, 0), false},
		{"score and tax at limits", safeReport(80, 5, 5), true},
		{"buy tax over limit", safeReport(90, 5.1, 0), false},
		{"sell tax over limit", safeReport(90, 0, 5.1), false},
		{"honeypot", func() models.SafetyReport { r := safeReport(90, 0, 0); r.IsHoneypot = true; return r }(), false},
		{"unlocked liquidity", func() models.SafetyReport { r := safeReport(90, 0, 0); r.LiquidityLocked = false; return r }(), false},
		{"neutral report", models.NeutralSafetyReport(token, time.Now()), false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Accept(tt.report, p))
		})
	}
}

func TestOnCandidateToken_BuysAndResolves(t *testing.T) {
	release := make(chan struct{})
	var gotReq models.ActionRequest
	exec := executorFunc(func(_ context.Context, req models.ActionRequest) (models.ActionResult, error) {
		gotReq = req
		<-release
		return models.ActionResult{Success: true, TxRef: "tx1", Price: 0.001, OutputAmount: 100}, nil
	})
	report := models.SafetyReport{TokenID: token, RiskScore: 85, BuyTaxPercent: 2, SellTaxPercent: 3, LiquidityLocked: true}
	h := newHarness(t, fixedSafety{token: report}, exec)
	h.setPolicy(t, models.SniperPolicy{UserID: "alice", Enabled: true, MinRiskScore: 70, MaxTaxPercent: 10, MaxBuyAmount: 0.1})

	ctx := context.Background()
	h.engine.OnCandidateToken(ctx, token, 0)

	logs, err := h.logs.SniperLogs(ctx, "alice", 0)
	require.NoError(t, err)
	require.Len(t, logs, 1)
	assert.Equal(t, models.LogStatusPending, logs[0].Status)

	close(release)
	h.engine.Wait()

	logs, err = h.logs.SniperLogs(ctx, "alice", 0)
	require.NoError(t, err)
	require.Len(t, logs, 1)
	assert.Equal(t, models.ActionBuy, logs[0].Action)
	assert.Equal(t, 0.1, logs[0].Amount)
	assert.Equal(t, models.LogStatusSuccess, logs[0].Status)
	assert.Equal(t, "tx1", logs[0].TxRef)

	assert.Equal(t, wsol, gotReq.InputAsset)
	assert.Equal(t, token, gotReq.OutputAsset)
	assert.Equal(t, "wallet-a", gotReq.UserWallet)

	holding, ok := h.book.Holding("alice", token)
	require.True(t, ok)
	assert.Equal(t, 100.0, holding.Amount)
	assert.Equal(t, []models.EventType{models.EventSnipeExecuted}, h.out.eventTypes())
	assert.Equal(t, []string{"alice:Sniper Bot Success"}, h.out.alerts)
	assert.Empty(t, h.book.ExitPlans("alice"))
}

func TestOnCandidateToken_RejectedCreatesNoLog(t *testing.T) {
	h := newHarness(t, fixedSafety{token: safeReport(79, 0, 0)}, okExecutor("tx"))
	h.setPolicy(t, models.SniperPolicy{UserID: "alice", Enabled: true, MinRiskScore: 80, MaxTaxPercent: 5, MaxBuyAmount: 0.1})

	h.engine.OnCandidateToken(context.Background(), token, 0)
	h.engine.Wait()

	logs, err := h.logs.SniperLogs(context.Background(), "alice", 0)
	require.NoError(t, err)
	assert.Empty(t, logs)
	assert.Empty(t, h.out.eventTypes())
}

func TestOnCandidateToken_IsolatesUserFailures(t *testing.T) {
	exec := executorFunc(func(_ context.Context, req models.ActionRequest) (models.ActionResult, error) {
		switch req.UserID {
		case "alice":
			panic("executor blew up")
		case "bob":
			return models.ActionResult{}, errors.New("rpc unavailable")
		}
		return models.ActionResult{Success: true, TxRef: "tx-carol", Price: 0.001}, nil
	})
	h := newHarness(t, fixedSafety{token: safeReport(90, 0, 0)}, exec)
	for _, user := range []string{"alice", "bob", "carol"} {
		h.setPolicy(t, models.SniperPolicy{UserID: user, Enabled: true, MinRiskScore: 50, MaxTaxPercent: 5, MaxBuyAmount: 0.2})
	}

	ctx := context.Background()
	h.engine.OnCandidateToken(ctx, token, 0)
	h.engine.Wait()

	for user, want := range map[string]models.LogStatus{
		"alice": models.LogStatusFailed,
		"bob":   models.LogStatusFailed,
		"carol": models.LogStatusSuccess,
	} {
		logs, err := h.logs.SniperLogs(ctx, user, 0)
		require.NoError(t, err)
		require.Len(t, logs, 1, user)
		assert.Equal(t, want, logs[0].Status, user)
	}

	bob, err := h.logs.SniperLogs(ctx, "bob", 0)
	require.NoError(t, err)
	assert.Equal(t, "rpc unavailable", bob[0].Error)

	carol, ok := h.book.Holding("carol", token)
	require.True(t, ok)
	assert.InDelta(t, 200.0, carol.Amount, 1e-9)
	assert.ElementsMatch(t,
		[]models.EventType{models.EventSnipeFailed, models.EventSnipeFailed, models.EventSnipeExecuted},
		h.out.eventTypes())
}

func TestOnCandidateToken_UnsuccessfulResultFails(t *testing.T) {
	exec := executorFunc(func(context.Context, models.ActionRequest) (models.ActionResult, error) {
		return models.ActionResult{Success: false}, nil
	})
	h := newHarness(t, fixedSafety{token: safeReport(90, 0, 0)}, exec)
	h.setPolicy(t, models.SniperPolicy{UserID: "alice", Enabled: true, MaxBuyAmount: 0.1, MaxTaxPercent: 5})

	h.engine.OnCandidateToken(context.Background(), token, 0)
	h.engine.Wait()

	logs, err := h.logs.SniperLogs(context.Background(), "alice", 0)
	require.NoError(t, err)
	require.Len(t, logs, 1)
	assert.Equal(t, models.LogStatusFailed, logs[0].Status)
	assert.Equal(t, "swap failed", logs[0].Error)
	_, held := h.book.Holding("alice", token)
	assert.False(t, held)
}

func TestOnCandidateToken_BuysOncePerUserAndToken(t *testing.T) {
	h := newHarness(t, fixedSafety{token: safeReport(90, 0, 0)}, okExecutor("tx"))
	h.setPolicy(t, models.SniperPolicy{UserID: "alice", Enabled: true, MaxBuyAmount: 0.1, MaxTaxPercent: 5})

	ctx := context.Background()
	h.engine.OnCandidateToken(ctx, token, 0)
	h.engine.OnCandidateToken(ctx, token, 0)
	h.engine.Wait()

	logs, err := h.logs.SniperLogs(ctx, "alice", 0)
	require.NoError(t, err)
	assert.Len(t, logs, 1)
}

func TestOnCandidateToken_LiquidityGate(t *testing.T) {
	h := newHarness(t, fixedSafety{token: safeReport(90, 0, 0)}, okExecutor("tx"))
	h.setPolicy(t, models.SniperPolicy{UserID: "alice", Enabled: true, MaxBuyAmount: 0.1, MaxTaxPercent: 5, MinLiquidity: 10})

	ctx := context.Background()
	h.engine.OnCandidateToken(ctx, token, 5)
	h.engine.Wait()
	logs, err := h.logs.SniperLogs(ctx, "alice", 0)
	require.NoError(t, err)
	assert.Empty(t, logs)

	h.engine.OnCandidateToken(ctx, token, 0)
	h.engine.Wait()
	logs, err = h.logs.SniperLogs(ctx, "alice", 0)
	require.NoError(t, err)
	assert.Len(t, logs, 1)
}

func TestOnCandidateToken_DisabledOrMissingPolicyIsSkipped(t *testing.T) {
	h := newHarness(t, fixedSafety{token: safeReport(90, 0, 0)}, okExecutor("tx"))
	ctx := context.Background()

	require.NoError(t, h.policies.DisableSniper(ctx, "nobody"))
	_, ok := h.policies.GetSniperPolicy("nobody")
	assert.False(t, ok)

	h.setPolicy(t, models.SniperPolicy{UserID: "alice", Enabled: true, MaxBuyAmount: 0.1, MaxTaxPercent: 5})
	require.NoError(t, h.policies.DisableSniper(ctx, "alice"))

	h.engine.OnCandidateToken(ctx, token, 0)
	h.engine.Wait()
	logs, err := h.logs.SniperLogs(ctx, "alice", 0)
	require.NoError(t, err)
	assert.Empty(t, logs)
}

func TestOnCandidateToken_RegistersExitPlan(t *testing.T) {
	h := newHarness(t, fixedSafety{token: safeReport(90, 0, 0)}, okExecutor("tx-exit"))
	h.setPolicy(t, models.SniperPolicy{
		UserID: "alice", Enabled: true, MaxBuyAmount: 0.1, MaxTaxPercent: 5,
		AutoSellEnabled: true, TakeProfitPercent: models.Float(50), StopLossPercent: models.Float(20),
	})

	h.engine.OnCandidateToken(context.Background(), token, 0)
	h.engine.Wait()

	plans := h.book.ExitPlans("alice")
	require.Len(t, plans, 1)
	assert.Equal(t, models.ExitSourceSniper, plans[0].Source)
	assert.Equal(t, "tx-exit", plans[0].TxRef)
	assert.InDelta(t, 0.0015, plans[0].TakeProfitPrice(), 1e-12)
	assert.InDelta(t, 0.0008, plans[0].StopLossPrice(), 1e-12)
}

func TestScanOnce_AdvancesWatermark(t *testing.T) {
	h := newHarness(t, fixedSafety{token: safeReport(90, 0, 0)}, okExecutor("tx"))
	h.setPolicy(t, models.SniperPolicy{UserID: "alice", Enabled: true, MaxBuyAmount: 0.1, MaxTaxPercent: 5})

	discovered := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)
	h.feed.batch = []models.CandidateToken{{TokenID: token, DiscoveredAt: discovered}}

	ctx := context.Background()
	require.NoError(t, h.engine.ScanOnce(ctx))
	require.NoError(t, h.engine.ScanOnce(ctx))
	h.engine.Wait()

	require.Len(t, h.feed.sinces, 2)
	assert.True(t, h.feed.sinces[0].IsZero())
	assert.Equal(t, discovered, h.feed.sinces[1])

	logs, err := h.logs.SniperLogs(ctx, "alice", 0)
	require.NoError(t, err)
	assert.Len(t, logs, 1)
}

func TestEngine_StartStop(t *testing.T) {
	h := newHarness(t, fixedSafety{token: safeReport(90, 0, 0)}, okExecutor("tx"))
	h.engine.cfg.ScanInterval = 10 * time.Millisecond
	h.setPolicy(t, models.SniperPolicy{UserID: "alice", Enabled: true, MaxBuyAmount: 0.1, MaxTaxPercent: 5})
	h.feed.batch = []models.CandidateToken{{TokenID: token, DiscoveredAt: time.Now()}}

	ctx := context.Background()
	require.NoError(t, h.engine.Start(ctx))
	assert.Error(t, h.engine.Start(ctx))

	require.Eventually(t, func() bool {
		logs, _ := h.logs.SniperLogs(ctx, "alice", 0)
		return len(logs) == 1 && logs[0].Status == models.LogStatusSuccess
	}, 2*time.Second, 10*time.Millisecond)

	h.engine.Stop()
	h.engine.Stop()
	h.engine.Wait()
}

func TestStatus(t *testing.T) {
	exec := executorFunc(func(_ context.Context, req models.ActionRequest) (models.ActionResult, error) {
		if req.OutputAsset == token {
			return models.ActionResult{Success: true, TxRef: "tx", Price: 0.001}, nil
		}
		return models.ActionResult{}, errors.New("no route")
	})
	other := "DezXAZ8z7PnrnRJjz3wXBoRgixCa6xjnB7YaB1pPB263"
	h := newHarness(t, fixedSafety{token: safeReport(90, 0, 0), other: safeReport(90, 0, 0)}, exec)
	h.setPolicy(t, models.SniperPolicy{UserID: "alice", Enabled: true, MaxBuyAmount: 0.1, MaxTaxPercent: 5})

	ctx := context.Background()
	h.engine.OnCandidateToken(ctx, token, 0)
	h.engine.OnCandidateToken(ctx, other, 0)
	h.engine.Wait()

	st, err := h.engine.Status(ctx, "alice")
	require.NoError(t, err)
	assert.True(t, st.Enabled)
	require.NotNil(t, st.Policy)
	assert.Equal(t, 2, st.TotalSnipes)
	assert.Equal(t, 1, st.SuccessfulSnipes)
	assert.Equal(t, 50.0, st.SuccessRate)
	assert.Len(t, st.RecentLogs, 2)

	empty, err := h.engine.Status(ctx, "nobody")
	require.NoError(t, err)
	assert.False(t, empty.Enabled)
	assert.Zero(t, empty.SuccessRate)
}

func TestNew_RequiresCollaborators(t *testing.T) {
	_, err := New(Deps{}, Config{ReferenceMint: wsol})
	assert.Error(t, err)

	_, err = New(Deps{
		Candidates: &fakeCandidates{},
		Safety:     fixedSafety{},
		Policies:   policy.NewStore(),
		Logs:       tradelog.NewMemoryStore(),
		Executor:   okExecutor("tx"),
	}, Config{})
	assert.Error(t, err)
}

func TestScanOnce_CancelledScanKeepsWatermark(t *testing.T) {
	h := newHarness(t, fixedSafety{token: safeReport(90, 0, 0)}, okExecutor("tx"))
	h.setPolicy(t, models.SniperPolicy{UserID: "alice", Enabled: true, MaxBuyAmount: 0.1, MaxTaxPercent: 5})

	discovered := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)
	h.feed.batch = []models.CandidateToken{{TokenID: token, DiscoveredAt: discovered}}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	require.ErrorIs(t, h.engine.ScanOnce(ctx), context.Canceled)
	assert.True(t, h.engine.since.IsZero())

	h.feed.batch = []models.CandidateToken{{TokenID: token, DiscoveredAt: discovered}}
	require.NoError(t, h.engine.ScanOnce(context.Background()))
	h.engine.Wait()

	require.Len(t, h.feed.sinces, 2)
	assert.True(t, h.feed.sinces[1].IsZero())
	assert.Equal(t, discovered, h.engine.since)
	logs, err := h.logs.SniperLogs(context.Background(), "alice", 0)
	require.NoError(t, err)
	assert.Len(t, logs, 1)
}

type flakyLogs struct {
	*tradelog.MemoryStore
	failures atomic.Int32
}

func (f *flakyLogs) AppendSniper(ctx context.Context, e *models.SniperLogEntry) error {
	if f.failures.Add(-1) >= 0 {
		return errors.New("connection reset")
	}
	return f.MemoryStore.AppendSniper(ctx, e)
}

func TestOnCandidateToken_FailedAppendReleasesClaim(t *testing.T) {
	var calls atomic.Int32
	exec := executorFunc(func(_ context.Context, req models.ActionRequest) (models.ActionResult, error) {
		calls.Add(1)
		return models.ActionResult{Success: true, TxRef: "tx", Price: 0.001, OutputAmount: req.Amount / 0.001}, nil
	})
	h := newHarness(t, fixedSafety{token: safeReport(90, 0, 0)}, exec)
	logs := &flakyLogs{MemoryStore: h.logs}
	logs.failures.Store(1)
	h.engine.deps.Logs = logs
	h.setPolicy(t, models.SniperPolicy{UserID: "alice", Enabled: true, MaxBuyAmount: 0.1, MaxTaxPercent: 5})

	ctx := context.Background()
	h.engine.OnCandidateToken(ctx, token, 0)
	h.engine.Wait()
	assert.Zero(t, calls.Load())

	h.engine.OnCandidateToken(ctx, token, 0)
	h.engine.Wait()
	assert.Equal(t, int32(1), calls.Load())

	entries, err := h.logs.SniperLogs(ctx, "alice", 0)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, models.LogStatusSuccess, entries[0].Status)
}

func TestOnCandidateToken_PassesIdempotencyKey(t *testing.T) {
	var got models.ActionRequest
	exec := executorFunc(func(_ context.Context, req models.ActionRequest) (models.ActionResult, error) {
		got = req
		return models.ActionResult{Success: true, TxRef: "tx", Price: 0.001}, nil
	})
	h := newHarness(t, fixedSafety{token: safeReport(90, 0, 0)}, exec)
	h.setPolicy(t, models.SniperPolicy{UserID: "alice", Enabled: true, MaxBuyAmount: 0.1, MaxTaxPercent: 5})

	ctx := context.Background()
	h.engine.OnCandidateToken(ctx, token, 0)
	h.engine.Wait()

	entries, err := h.logs.SniperLogs(ctx, "alice", 0)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.NotEmpty(t, got.IdempotencyKey)
	assert.Equal(t, entries[0].IdempotencyKey, got.IdempotencyKey)
}

func TestStatus_CountsEveryLog(t *testing.T) {
	h := newHarness(t, fixedSafety{}, okExecutor("tx"))
	ctx := context.Background()
	for i := 0; i < 600; i++ {
		status := models.LogStatusFailed
		if i%4 == 0 {
			status = models.LogStatusSuccess
		}
		require.NoError(t, h.logs.AppendSniper(ctx, &models.SniperLogEntry{
			ID:      fmt.Sprintf("log-%d", i),
			UserID:  "alice",
			TokenID: token,
			Action:  models.ActionBuy,
			Status:  status,
		}))
	}

	st, err := h.engine.Status(ctx, "alice")
	require.NoError(t, err)
	assert.Equal(t, 600, st.TotalSnipes)
	assert.Equal(t, 150, st.SuccessfulSnipes)
	assert.Equal(t, 25.0, st.SuccessRate)
	assert.Len(t, st.RecentLogs, recentLogCount)
}
