// Package chain reads Solana state for the trading engines: token safety
// signals for the evaluator and trade activity of tracked leader wallets.
package chain

import (
	"context"
	"fmt"
	"time"

	"github.com/gagliardetto/solana-go"
	"github.com/gagliardetto/solana-go/rpc"

	"github.com/solana-sniper-bot/autotrader/internal/config"
)

// RPC is the subset of the solana-go client used by this package.
type RPC interface {
	GetAccountInfoWithOpts(ctx context.Context, account solana.PublicKey, opts *rpc.GetAccountInfoOpts) (*rpc.GetAccountInfoResult, error)
	GetTokenLargestAccounts(ctx context.Context, mint solana.PublicKey, commitment rpc.CommitmentType) (*rpc.GetTokenLargestAccountsResult, error)
	GetSignaturesForAddressWithOpts(ctx context.Context, account solana.PublicKey, opts *rpc.GetSignaturesForAddressOpts) ([]*rpc.TransactionSignature, error)
	GetTransaction(ctx context.Context, sig solana.Signature, opts *rpc.GetTransactionOpts) (*rpc.GetTransactionResult, error)
	GetHealth(ctx context.Context) (string, error)
}

// Client wraps an RPC connection with the configured commitment and per-call timeout.
type Client struct {
	rpc        RPC
	commitment rpc.CommitmentType
	timeout    time.Duration
}

// NewClient dials nothing; solana-go connects lazily on the first request.
func NewClient(cfg config.SolanaConfig) *Client {
	return NewClientWithRPC(rpc.New(cfg.RPCEndpoint), rpc.CommitmentType(cfg.Commitment), cfg.RequestTimeout)
}

// NewClientWithRPC builds a Client over an existing RPC implementation.
func NewClientWithRPC(api RPC, commitment rpc.CommitmentType, timeout time.Duration) *Client {
	if commitment == "" {
		commitment = rpc.CommitmentConfirmed
	}
	return &Client{rpc: api, commitment: commitment, timeout: timeout}
}

func (c *Client) callContext(ctx context.Context) (context.Context, context.CancelFunc) {
	if c.timeout <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, c.timeout)
}

// Health reports whether the RPC node answers getHealth with "ok".
func (c *Client) Health(ctx context.Context) error {
	ctx, cancel := c.callContext(ctx)
	defer cancel()

	status, err := c.rpc.GetHealth(ctx)
	if err != nil {
		return fmt.Errorf("rpc health: %w", err)
	}
	if status != rpc.HealthOk {
		return fmt.Errorf("rpc health: %s", status)
	}
	return nil
}

func (c *Client) accountData(ctx context.Context, account solana.PublicKey) ([]byte, error) {
	ctx, cancel := c.callContext(ctx)
	defer cancel()

	res, err := c.rpc.GetAccountInfoWithOpts(ctx, account, &rpc.GetAccountInfoOpts{
		Encoding:   solana.EncodingBase64,
		Commitment: c.commitment,
	})
	if err != nil {
		return nil, err
	}
	return res.GetBinary(), nil
}

func parseKey(s string) (solana.PublicKey, error) {
	key, err := solana.PublicKeyFromBase58(s)
	if err != nil {
		return solana.PublicKey{}, fmt.Errorf("parse address %q: %w", s, err)
	}
	return key, nil
}
