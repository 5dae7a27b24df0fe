package chain

import (
	"context"
	"encoding/binary"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/gagliardetto/solana-go"
	"github.com/gagliardetto/solana-go/rpc"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/solana-sniper-bot/autotrader/internal/models"
	"github.com/solana-sniper-bot/autotrader/internal/safety"
)

const (
	wsol       = "So11111111111111111111111111111111111111112"
	tokenMint  = "EPjFWdd5AufqSSqeM2qN1xzybapC8G4wEGGkZwyTDt1v"
	leaderAddr = "9WzDXwBbmkg8ZTbNMqUxvQRAyrZzDsGYdLVL9zYtAWWM"
	lockerAddr = "1nc1nerator11111111111111111111111111111111"
	holderAcct = "TokenkegQfeZyiNwAJbNbGKPFXCWuBvf9Ss623VQ5DA"
)

type fakeRPC struct {
	accounts map[string][]byte
	largest  []solana.PublicKey
	health   string
}

func (f *fakeRPC) GetAccountInfoWithOpts(_ context.Context, account solana.PublicKey, _ *rpc.GetAccountInfoOpts) (*rpc.GetAccountInfoResult, error) {
	data, ok := f.accounts[account.String()]
	if !ok {
		return nil, rpc.ErrNotFound
	}
	return &rpc.GetAccountInfoResult{Value: &rpc.Account{Data: rpc.DataBytesOrJSONFromBytes(data)}}, nil
}

func (f *fakeRPC) GetTokenLargestAccounts(context.Context, solana.PublicKey, rpc.CommitmentType) (*rpc.GetTokenLargestAccountsResult, error) {
	out := &rpc.GetTokenLargestAccountsResult{}
	for _, k := range f.largest {
		out.Value = append(out.Value, &rpc.TokenLargestAccountsResult{Address: k})
	}
	return out, nil
}

func (f *fakeRPC) GetSignaturesForAddressWithOpts(context.Context, solana.PublicKey, *rpc.GetSignaturesForAddressOpts) ([]*rpc.TransactionSignature, error) {
	return nil, nil
}

func (f *fakeRPC) GetTransaction(context.Context, solana.Signature, *rpc.GetTransactionOpts) (*rpc.GetTransactionResult, error) {
	return nil, rpc.ErrNotFound
}

func (f *fakeRPC) GetHealth(context.Context) (string, error) {
	return f.health, nil
}

func mintData(mintAuthority, freezeAuthority *solana.PublicKey) []byte {
	data := make([]byte, mintAccountSize)
	if mintAuthority != nil {
		binary.LittleEndian.PutUint32(data[0:4], 1)
		copy(data[4:36], mintAuthority[:])
	}
	if freezeAuthority != nil {
		binary.LittleEndian.PutUint32(data[46:50], 1)
		copy(data[50:82], freezeAuthority[:])
	}
	return data
}

func tokenAccountData(owner solana.PublicKey) []byte {
	data := make([]byte, tokenAccountSize)
	copy(data[tokenOwnerOffset:tokenOwnerOffset+32], owner[:])
	return data
}

// quoteServer answers buys with a fixed output and sells with sellOut lamports,
// or a no-route error when sellOut is empty.
func quoteServer(t *testing.T, sellOut string, calls *int32) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls != nil {
			atomic.AddInt32(calls, 1)
		}
		q := r.URL.Query()
		w.Header().Set("Content-Type", "application/json")

		if q.Get("inputMint") == wsol {
			_ = json.NewEncoder(w).Encode(map[string]interface{}{
				"inAmount": q.Get("amount"), "outAmount": "5000000", "priceImpactPct": "0.01",
				"routePlan": []interface{}{map[string]string{"label": "amm"}},
			})
			return
		}
		if sellOut == "" {
			w.WriteHeader(http.StatusBadRequest)
			_ = json.NewEncoder(w).Encode(map[string]string{
				"error": "Could not find any route", "errorCode": "COULD_NOT_FIND_ANY_ROUTE",
			})
			return
		}
		_ = json.NewEncoder(w).Encode(map[string]interface{}{
			"inAmount": q.Get("amount"), "outAmount": sellOut, "priceImpactPct": "0.01",
			"routePlan": []interface{}{map[string]string{"label": "amm"}},
		})
	}))
}

func newTestSignals(t *testing.T, api *fakeRPC, quoteURL string) *Signals {
	t.Helper()
	client := NewClientWithRPC(api, rpc.CommitmentConfirmed, time.Second)
	return NewSignals(client, NewQuoteClient(quoteURL, time.Second), wsol, 0.01, []string{lockerAddr})
}

func TestSignals_MintAuthorities(t *testing.T) {
	authority := solana.MustPublicKeyFromBase58(leaderAddr)
	api := &fakeRPC{accounts: map[string][]byte{tokenMint: mintData(nil, &authority)}}
	s := newTestSignals(t, api, "http://unused")
	ctx := context.Background()

	renounced, err := s.MintAuthorityRenounced(ctx, tokenMint)
	require.NoError(t, err)
	assert.True(t, renounced)

	frozen, err := s.HasBlacklistPattern(ctx, tokenMint)
	require.NoError(t, err)
	assert.True(t, frozen)

	_, err = s.MintAuthorityRenounced(ctx, lockerAddr)
	assert.ErrorIs(t, err, safety.ErrTokenNotFound)
}

func TestSignals_LiquidityAndWallets(t *testing.T) {
	holder := solana.MustPublicKeyFromBase58(holderAcct)
	locker := solana.MustPublicKeyFromBase58(lockerAddr)
	authority := solana.MustPublicKeyFromBase58(leaderAddr)

	api := &fakeRPC{
		accounts: map[string][]byte{
			tokenMint:  mintData(&authority, nil),
			holderAcct: tokenAccountData(locker),
		},
		largest: []solana.PublicKey{holder},
	}
	s := newTestSignals(t, api, "http://unused")
	ctx := context.Background()

	locked, err := s.LiquidityLocked(ctx, tokenMint)
	require.NoError(t, err)
	assert.True(t, locked)

	wallets, err := s.AssociatedWallets(ctx, tokenMint)
	require.NoError(t, err)
	assert.Equal(t, []string{leaderAddr, lockerAddr}, wallets)

	api.largest = nil
	locked, err = s.LiquidityLocked(ctx, tokenMint)
	require.NoError(t, err)
	assert.False(t, locked)
}

func TestSignals_RoundTripTaxes(t *testing.T) {
	var calls int32
	srv := quoteServer(t, "8000000", &calls)
	defer srv.Close()

	s := newTestSignals(t, &fakeRPC{}, srv.URL)
	ctx := context.Background()

	canSell, err := s.SimulateSwap(ctx, tokenMint, models.ActionSell)
	require.NoError(t, err)
	assert.True(t, canSell)

	buyTax, sellTax, err := s.EstimateTaxes(ctx, tokenMint)
	require.NoError(t, err)
	// 20% round-trip loss minus 2% price impact, split across both legs.
	assert.InDelta(t, 9.0, buyTax, 1e-9)
	assert.InDelta(t, 9.0, sellTax, 1e-9)

	// The second call reused the cached probe.
	assert.Equal(t, int32(2), atomic.LoadInt32(&calls))
}

func TestSignals_Honeypot(t *testing.T) {
	srv := quoteServer(t, "", nil)
	defer srv.Close()

	s := newTestSignals(t, &fakeRPC{}, srv.URL)
	ctx := context.Background()

	canBuy, err := s.SimulateSwap(ctx, tokenMint, models.ActionBuy)
	require.NoError(t, err)
	assert.True(t, canBuy)

	canSell, err := s.SimulateSwap(ctx, tokenMint, models.ActionSell)
	require.NoError(t, err)
	assert.False(t, canSell)

	_, sellTax, err := s.EstimateTaxes(ctx, tokenMint)
	require.NoError(t, err)
	assert.Equal(t, 100.0, sellTax)
}

func TestSplitRoundTripLoss(t *testing.T) {
	buy, sell := splitRoundTripLoss(decimal.NewFromInt(100), decimal.NewFromInt(101), decimal.Zero, decimal.Zero)
	assert.Zero(t, buy)
	assert.Zero(t, sell)

	buy, sell = splitRoundTripLoss(decimal.Zero, decimal.NewFromInt(1), decimal.Zero, decimal.Zero)
	assert.Zero(t, buy)
	assert.Zero(t, sell)
}

func TestClient_Health(t *testing.T) {
	client := NewClientWithRPC(&fakeRPC{health: rpc.HealthOk}, "", 0)
	assert.NoError(t, client.Health(context.Background()))

	client = NewClientWithRPC(&fakeRPC{health: "behind"}, "", 0)
	assert.Error(t, client.Health(context.Background()))
}

func tokenBalance(owner solana.PublicKey, mint, amount string, decimals uint8) rpc.TokenBalance {
	return rpc.TokenBalance{
		Owner:         &owner,
		Mint:          solana.MustPublicKeyFromBase58(mint),
		UiTokenAmount: &rpc.UiTokenAmount{Amount: amount, Decimals: decimals},
	}
}

func TestClassifyTrade(t *testing.T) {
	leader := solana.MustPublicKeyFromBase58(leaderAddr)

	t.Run("buy paid in native SOL", func(t *testing.T) {
		meta := &rpc.TransactionMeta{
			Fee:               5000,
			PreBalances:       []uint64{2_000_000_000},
			PostBalances:      []uint64{1_899_995_000},
			PreTokenBalances:  nil,
			PostTokenBalances: []rpc.TokenBalance{tokenBalance(leader, tokenMint, "1000000", 6)},
		}
		trade, ok := classifyTrade(meta, leader, 0, wsol)
		require.True(t, ok)
		assert.Equal(t, models.ActionBuy, trade.action)
		assert.Equal(t, tokenMint, trade.token)
		assert.InDelta(t, 0.1, trade.amount, 1e-9)
	})

	t.Run("sell received as wrapped SOL", func(t *testing.T) {
		meta := &rpc.TransactionMeta{
			PreTokenBalances: []rpc.TokenBalance{
				tokenBalance(leader, tokenMint, "1000000", 6),
				tokenBalance(leader, wsol, "0", 9),
			},
			PostTokenBalances: []rpc.TokenBalance{
				tokenBalance(leader, tokenMint, "0", 6),
				tokenBalance(leader, wsol, "250000000", 9),
			},
		}
		trade, ok := classifyTrade(meta, leader, -1, wsol)
		require.True(t, ok)
		assert.Equal(t, models.ActionSell, trade.action)
		assert.InDelta(t, 0.25, trade.amount, 1e-9)
	})

	t.Run("plain transfer is ignored", func(t *testing.T) {
		meta := &rpc.TransactionMeta{
			PreTokenBalances:  []rpc.TokenBalance{tokenBalance(leader, tokenMint, "1000000", 6)},
			PostTokenBalances: []rpc.TokenBalance{tokenBalance(leader, tokenMint, "0", 6)},
		}
		_, ok := classifyTrade(meta, leader, -1, wsol)
		assert.False(t, ok)
	})
}
