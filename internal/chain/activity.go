package chain

import (
	"context"
	"fmt"
	"time"

	"github.com/gagliardetto/solana-go"
	"github.com/gagliardetto/solana-go/rpc"
	"github.com/shopspring/decimal"

	"github.com/solana-sniper-bot/autotrader/internal/models"
	"github.com/solana-sniper-bot/autotrader/internal/utils"
)

// ActivityFeed turns a leader wallet's recent transactions into trades.
type ActivityFeed struct {
	client    *Client
	reference string
	logger    *utils.Logger
	now       func() time.Time
}

// NewActivityFeed creates a feed that prices trades in referenceMint (wrapped SOL).
func NewActivityFeed(client *Client, referenceMint string, logger *utils.Logger) *ActivityFeed {
	if logger == nil {
		logger = utils.Nop()
	}
	return &ActivityFeed{client: client, reference: referenceMint, logger: logger, now: time.Now}
}

// RecentActivity returns up to limit trades by leader, newest first. Failed
// transactions and transfers that are not swaps are skipped.
func (f *ActivityFeed) RecentActivity(ctx context.Context, leader string, limit int) ([]models.LeaderActivity, error) {
	key, err := parseKey(leader)
	if err != nil {
		return nil, err
	}

	sigCtx, cancel := f.client.callContext(ctx)
	sigs, err := f.client.rpc.GetSignaturesForAddressWithOpts(sigCtx, key, &rpc.GetSignaturesForAddressOpts{
		Limit:      &limit,
		Commitment: rpc.CommitmentConfirmed,
	})
	cancel()
	if err != nil {
		return nil, fmt.Errorf("signatures for %s: %w", leader, err)
	}

	activity := make([]models.LeaderActivity, 0, len(sigs))
	for _, sig := range sigs {
		if sig == nil || sig.Err != nil {
			continue
		}

		act, ok, err := f.transactionActivity(ctx, key, sig.Signature)
		if err != nil {
			f.logger.Warn("Failed to load leader transaction", "leader", leader, "signature", sig.Signature.String(), "error", err)
			continue
		}
		if ok {
			activity = append(activity, act)
		}
	}
	return activity, nil
}

func (f *ActivityFeed) transactionActivity(ctx context.Context, leader solana.PublicKey, sig solana.Signature) (models.LeaderActivity, bool, error) {
	ctx, cancel := f.client.callContext(ctx)
	defer cancel()

	maxVersion := uint64(0)
	res, err := f.client.rpc.GetTransaction(ctx, sig, &rpc.GetTransactionOpts{
		MaxSupportedTransactionVersion: &maxVersion,
		Commitment:                     rpc.CommitmentConfirmed,
	})
	if err != nil {
		return models.LeaderActivity{}, false, err
	}
	if res == nil || res.Meta == nil || res.Meta.Err != nil {
		return models.LeaderActivity{}, false, nil
	}

	leaderIndex := -1
	if res.Transaction != nil {
		if tx, err := res.Transaction.GetTransaction(); err == nil && tx != nil {
			for i, k := range tx.Message.AccountKeys {
				if k.Equals(leader) {
					leaderIndex = i
					break
				}
			}
		}
	}

	trade, ok := classifyTrade(res.Meta, leader, leaderIndex, f.reference)
	if !ok {
		return models.LeaderActivity{}, false, nil
	}

	observed := f.now()
	if res.BlockTime != nil {
		observed = res.BlockTime.Time()
	}

	return models.LeaderActivity{
		LeaderWalletAddress: leader.String(),
		Action:              trade.action,
		TokenID:             trade.token,
		Amount:              trade.amount,
		ObservedAt:          observed,
		TxSignature:         sig.String(),
	}, true, nil
}

type classifiedTrade struct {
	action models.TradeAction
	token  string
	amount float64
}

// classifyTrade infers a swap from the leader's balance changes. The token with
// the largest balance change decides the direction; the amount is the
// reference asset spent (buy) or received (sell), native SOL plus wrapped SOL.
func classifyTrade(meta *rpc.TransactionMeta, leader solana.PublicKey, leaderIndex int, reference string) (classifiedTrade, bool) {
	deltas := tokenDeltas(meta, leader)

	var (
		token string
		delta decimal.Decimal
	)
	for mint, d := range deltas {
		if mint == reference {
			continue
		}
		if d.Abs().GreaterThan(delta.Abs()) || (d.Abs().Equal(delta.Abs()) && mint < token) {
			token, delta = mint, d
		}
	}
	if token == "" || delta.IsZero() {
		return classifiedTrade{}, false
	}

	refDelta := deltas[reference]
	if leaderIndex >= 0 && leaderIndex < len(meta.PreBalances) && leaderIndex < len(meta.PostBalances) {
		lamports := decimal.NewFromInt(int64(meta.PostBalances[leaderIndex])).
			Sub(decimal.NewFromInt(int64(meta.PreBalances[leaderIndex])))
		if leaderIndex == 0 {
			lamports = lamports.Add(decimal.NewFromInt(int64(meta.Fee)))
		}
		refDelta = refDelta.Add(lamports.Shift(-lamportsPerSOL))
	}

	trade := classifiedTrade{token: token}
	if delta.IsPositive() {
		trade.action = models.ActionBuy
		refDelta = refDelta.Neg()
	} else {
		trade.action = models.ActionSell
	}
	if !refDelta.IsPositive() {
		// Tokens moved without paying or receiving SOL: a transfer, not a swap.
		return classifiedTrade{}, false
	}
	trade.amount = refDelta.InexactFloat64()
	return trade, true
}

// tokenDeltas sums post minus pre balances per mint for accounts owned by leader.
func tokenDeltas(meta *rpc.TransactionMeta, leader solana.PublicKey) map[string]decimal.Decimal {
	deltas := make(map[string]decimal.Decimal)
	apply := func(balances []rpc.TokenBalance, sign int64) {
		for _, b := range balances {
			if b.Owner == nil || !b.Owner.Equals(leader) || b.UiTokenAmount == nil {
				continue
			}
			amount, err := decimal.NewFromString(b.UiTokenAmount.Amount)
			if err != nil {
				continue
			}
			mint := b.Mint.String()
			amount = amount.Shift(-int32(b.UiTokenAmount.Decimals)).Mul(decimal.NewFromInt(sign))
			deltas[mint] = deltas[mint].Add(amount)
		}
	}
	apply(meta.PreTokenBalances, -1)
	apply(meta.PostTokenBalances, 1)
	return deltas
}
