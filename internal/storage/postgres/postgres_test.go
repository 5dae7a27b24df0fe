package postgres

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	tcpostgres "github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"github.com/solana-sniper-bot/autotrader/internal/models"
	"github.com/solana-sniper-bot/autotrader/internal/policy"
	"github.com/solana-sniper-bot/autotrader/internal/tradelog"
)

const leader = "9WzDXwBbmkg8ZTbNMqUxvQRAyrZzDsGYdLVL9zYtAWWM"

// setupTestStore starts a PostgreSQL container and returns a migrated store.
func setupTestStore(t *testing.T) *Store {
	t.Helper()
	if testing.Short() {
		t.Skip("skipping postgres integration test in short mode")
	}
	testcontainers.SkipIfProviderIsNotHealthy(t)

	ctx := context.Background()
	container, err := tcpostgres.Run(ctx, "postgres:15-alpine",
		tcpostgres.WithDatabase("autotrader"),
		tcpostgres.WithUsername("test"),
		tcpostgres.WithPassword("test"),
		testcontainers.WithWaitStrategy(
			wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2).
				WithStartupTimeout(60*time.Second),
		),
	)
	testcontainers.CleanupContainer(t, container)
	require.NoError(t, err, "failed to start postgres container")

	dsn, err := container.ConnectionString(ctx, "sslmode=disable")
	require.NoError(t, err)

	db, err := gorm.Open(postgres.Open(dsn), &gorm.Config{Logger: gormlogger.Discard})
	require.NoError(t, err)

	s := New(db)
	require.NoError(t, s.Migrate(ctx))
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func TestIsDuplicateKeyError(t *testing.T) {
	dup := &pgconn.PgError{Code: pgErrUniqueViolation}
	assert.True(t, isDuplicateKeyError(dup))
	assert.True(t, isDuplicateKeyError(fmt.Errorf("insert: %w", dup)))
	assert.True(t, isDuplicateKeyError(gorm.ErrDuplicatedKey))
	assert.False(t, isDuplicateKeyError(&pgconn.PgError{Code: "23503"}))
	assert.False(t, isDuplicateKeyError(nil))
}

func TestStore_Policies(t *testing.T) {
	s := setupTestStore(t)
	ctx := context.Background()

	store := policy.NewStore(policy.WithPersister(s))
	require.NoError(t, store.SetSniperPolicy(ctx, models.SniperPolicy{
		UserID: "alice", Enabled: true, MaxBuyAmount: 0.1, MinRiskScore: 70, MaxTaxPercent: 10,
		TakeProfitPercent: models.Float(50),
	}))
	require.NoError(t, store.DisableSniper(ctx, "alice"))
	require.NoError(t, store.FollowLeader(ctx, models.CopyTradePolicy{
		UserID: "alice", LeaderWalletAddress: leader, Enabled: true, CopyPercentage: 10, MaxCopyAmount: 0.1,
	}))
	require.NoError(t, store.FollowLeader(ctx, models.CopyTradePolicy{
		UserID: "bob", LeaderWalletAddress: leader, Enabled: true, CopyPercentage: 25, MaxCopyAmount: 1,
	}))
	require.NoError(t, store.UnfollowLeader(ctx, "bob", leader))

	reloaded := policy.NewStore(policy.WithPersister(s))
	require.NoError(t, reloaded.Load(ctx))

	p, ok := reloaded.GetSniperPolicy("alice")
	require.True(t, ok)
	assert.False(t, p.Enabled)
	require.NotNil(t, p.TakeProfitPercent)
	assert.Equal(t, 50.0, *p.TakeProfitPercent)
	assert.Nil(t, p.StopLossPercent)

	followers := reloaded.FollowersOf(leader)
	require.Len(t, followers, 1)
	assert.Equal(t, "alice", followers[0].UserID)
}

func TestStore_SniperLogLifecycle(t *testing.T) {
	s := setupTestStore(t)
	ctx := context.Background()

	base := time.Date(2026, 5, 1, 0, 0, 0, 0, time.UTC)
	first := &models.SniperLogEntry{ID: uuid.NewString(), UserID: "alice", TokenID: "tok1", Action: models.ActionBuy, Amount: 0.1, Timestamp: base}
	second := &models.SniperLogEntry{ID: uuid.NewString(), UserID: "alice", TokenID: "tok2", Action: models.ActionBuy, Amount: 0.2, Timestamp: base.Add(time.Minute)}
	require.NoError(t, s.AppendSniper(ctx, first))
	require.NoError(t, s.AppendSniper(ctx, second))
	assert.ErrorIs(t, s.AppendSniper(ctx, first), tradelog.ErrDuplicateKey)

	resolved, err := s.ResolveSniper(ctx, first.ID, models.Resolution{
		Status: models.LogStatusSuccess, TxRef: "tx1", Price: 0.001, At: base.Add(time.Second),
	})
	require.NoError(t, err)
	assert.Equal(t, models.LogStatusSuccess, resolved.Status)
	assert.Equal(t, "tx1", resolved.TxRef)

	_, err = s.ResolveSniper(ctx, first.ID, models.Resolution{Status: models.LogStatusFailed, At: base})
	assert.ErrorIs(t, err, tradelog.ErrAlreadyResolved)
	_, err = s.ResolveSniper(ctx, uuid.NewString(), models.Resolution{Status: models.LogStatusFailed, At: base})
	assert.ErrorIs(t, err, tradelog.ErrNotFound)
	_, err = s.ResolveSniper(ctx, second.ID, models.Resolution{Status: models.LogStatusPending})
	assert.ErrorIs(t, err, tradelog.ErrInvalidInput)

	logs, err := s.SniperLogs(ctx, "alice", 0)
	require.NoError(t, err)
	require.Len(t, logs, 2)
	assert.Equal(t, second.ID, logs[0].ID)
	assert.Equal(t, models.LogStatusPending, logs[0].Status)
	assert.Equal(t, models.LogStatusSuccess, logs[1].Status)

	logs, err = s.SniperLogs(ctx, "alice", 1)
	require.NoError(t, err)
	assert.Len(t, logs, 1)
}

func TestStore_CopyTradeLogLifecycle(t *testing.T) {
	s := setupTestStore(t)
	ctx := context.Background()

	entry := &models.CopyTradeLogEntry{
		ID: uuid.NewString(), UserID: "alice", LeaderWalletAddress: leader, LeaderTxSignature: "sig",
		TokenID: "tok", Action: models.ActionSell, LeaderObservedAmount: 3, CopiedAmount: 100, Amount: 100,
	}
	require.NoError(t, s.AppendCopyTrade(ctx, entry))

	resolved, err := s.ResolveCopyTrade(ctx, entry.ID, models.Resolution{
		Status: models.LogStatusSuccess, TxRef: "tx-sell", PnL: models.Float(0.05), At: time.Now().UTC(),
	})
	require.NoError(t, err)
	require.NotNil(t, resolved.PnL)
	assert.InDelta(t, 0.05, *resolved.PnL, 1e-9)

	logs, err := s.CopyTradeLogs(ctx, "alice", 10)
	require.NoError(t, err)
	require.Len(t, logs, 1)
	assert.Equal(t, "tx-sell", logs[0].TxRef)
	assert.NotNil(t, logs[0].ResolvedAt)
}

func TestStore_Claim(t *testing.T) {
	s := setupTestStore(t)
	ctx := context.Background()

	ok, err := s.Claim(ctx, "k1")
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = s.Claim(ctx, "k1")
	require.NoError(t, err)
	assert.False(t, ok)

	_, err = s.Claim(ctx, "")
	assert.ErrorIs(t, err, tradelog.ErrInvalidInput)

	require.NoError(t, s.Release(ctx, "k1"))
	ok, err = s.Claim(ctx, "k1")
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestStore_SniperStats(t *testing.T) {
	s := setupTestStore(t)
	ctx := context.Background()

	base := time.Date(2026, 5, 1, 0, 0, 0, 0, time.UTC)
	var ids []string
	for i := 0; i < 4; i++ {
		e := &models.SniperLogEntry{ID: uuid.NewString(), UserID: "alice", TokenID: "tok", Action: models.ActionBuy, Amount: 0.1, Timestamp: base}
		require.NoError(t, s.AppendSniper(ctx, e))
		ids = append(ids, e.ID)
	}
	_, err := s.ResolveSniper(ctx, ids[0], models.Resolution{Status: models.LogStatusSuccess, At: base})
	require.NoError(t, err)
	_, err = s.ResolveSniper(ctx, ids[1], models.Resolution{Status: models.LogStatusFailed, Error: "no route", At: base})
	require.NoError(t, err)

	st, err := s.SniperStats(ctx, "alice")
	require.NoError(t, err)
	assert.Equal(t, tradelog.Stats{Total: 4, Successful: 1}, st)

	st, err = s.SniperStats(ctx, "bob")
	require.NoError(t, err)
	assert.Zero(t, st)
}
