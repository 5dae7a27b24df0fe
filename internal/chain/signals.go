package chain

import (
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/gagliardetto/solana-go"
	"github.com/gagliardetto/solana-go/rpc"
	"github.com/shopspring/decimal"

	"github.com/solana-sniper-bot/autotrader/internal/models"
	"github.com/solana-sniper-bot/autotrader/internal/safety"
)

// SPL token program account layouts.
const (
	mintAccountSize       = 82
	mintAuthorityOffset   = 0
	freezeAuthorityOffset = 46
	tokenAccountSize      = 165
	tokenOwnerOffset      = 32

	lamportsPerSOL = 9
)

// Quoter prices a swap. QuoteClient is the production implementation.
type Quoter interface {
	Quote(ctx context.Context, inputMint, outputMint string, amount decimal.Decimal) (Quote, error)
}

// SignalsOption configures Signals.
type SignalsOption func(*Signals)

// WithHolderDepth sets how many of the largest holders count as associated wallets.
func WithHolderDepth(n int) SignalsOption {
	return func(s *Signals) { s.holderDepth = n }
}

// WithProbeTTL sets how long a round-trip quote probe is reused.
func WithProbeTTL(d time.Duration) SignalsOption {
	return func(s *Signals) { s.probeTTL = d }
}

// Signals implements safety.Signals from on-chain state and swap quotes.
type Signals struct {
	client      *Client
	quotes      Quoter
	reference   string
	probeAmount decimal.Decimal
	lockers     map[string]struct{}
	holderDepth int
	probeTTL    time.Duration
	now         func() time.Time

	mu     sync.Mutex
	probes map[string]probeResult
}

var _ safety.Signals = (*Signals)(nil)

// NewSignals builds the chain-backed signal source. probeSOL is the reference
// amount used for simulated swaps.
func NewSignals(client *Client, quotes Quoter, referenceMint string, probeSOL float64, lockers []string, opts ...SignalsOption) *Signals {
	s := &Signals{
		client:      client,
		quotes:      quotes,
		reference:   referenceMint,
		probeAmount: decimal.NewFromFloat(probeSOL).Shift(lamportsPerSOL).Truncate(0),
		lockers:     make(map[string]struct{}, len(lockers)),
		holderDepth: 5,
		probeTTL:    30 * time.Second,
		now:         time.Now,
		probes:      make(map[string]probeResult),
	}
	for _, l := range lockers {
		s.lockers[l] = struct{}{}
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

type mintInfo struct {
	mintAuthority   *solana.PublicKey
	freezeAuthority *solana.PublicKey
}

func (s *Signals) mint(ctx context.Context, tokenID string) (mintInfo, error) {
	key, err := parseKey(tokenID)
	if err != nil {
		return mintInfo{}, err
	}

	data, err := s.client.accountData(ctx, key)
	if errors.Is(err, rpc.ErrNotFound) {
		return mintInfo{}, fmt.Errorf("%w: %s", safety.ErrTokenNotFound, tokenID)
	}
	if err != nil {
		return mintInfo{}, fmt.Errorf("fetch mint %s: %w", tokenID, err)
	}
	if len(data) < mintAccountSize {
		return mintInfo{}, fmt.Errorf("%s is not a mint account (%d bytes)", tokenID, len(data))
	}

	return mintInfo{
		mintAuthority:   readCOptionKey(data, mintAuthorityOffset),
		freezeAuthority: readCOptionKey(data, freezeAuthorityOffset),
	}, nil
}

// readCOptionKey decodes a COption<Pubkey>: a little-endian u32 tag followed by 32 bytes.
func readCOptionKey(data []byte, offset int) *solana.PublicKey {
	if binary.LittleEndian.Uint32(data[offset:offset+4]) == 0 {
		return nil
	}
	key := solana.PublicKeyFromBytes(data[offset+4 : offset+36])
	return &key
}

// MintAuthorityRenounced reports whether nobody can mint more supply.
func (s *Signals) MintAuthorityRenounced(ctx context.Context, tokenID string) (bool, error) {
	info, err := s.mint(ctx, tokenID)
	if err != nil {
		return false, err
	}
	return info.mintAuthority == nil, nil
}

// HasBlacklistPattern flags mints with a freeze authority, which can freeze
// any holder's account and block sells.
func (s *Signals) HasBlacklistPattern(ctx context.Context, tokenID string) (bool, error) {
	info, err := s.mint(ctx, tokenID)
	if err != nil {
		return false, err
	}
	return info.freezeAuthority != nil, nil
}

func (s *Signals) largestHolders(ctx context.Context, tokenID string) ([]solana.PublicKey, error) {
	key, err := parseKey(tokenID)
	if err != nil {
		return nil, err
	}

	callCtx, cancel := s.client.callContext(ctx)
	defer cancel()

	res, err := s.client.rpc.GetTokenLargestAccounts(callCtx, key, s.client.commitment)
	if err != nil {
		return nil, fmt.Errorf("largest accounts of %s: %w", tokenID, err)
	}
	if res == nil {
		return nil, nil
	}

	out := make([]solana.PublicKey, 0, len(res.Value))
	for _, acc := range res.Value {
		if acc != nil {
			out = append(out, acc.Address)
		}
	}
	return out, nil
}

func (s *Signals) tokenAccountOwner(ctx context.Context, account solana.PublicKey) (string, error) {
	data, err := s.client.accountData(ctx, account)
	if err != nil {
		return "", fmt.Errorf("fetch token account %s: %w", account, err)
	}
	if len(data) < tokenAccountSize {
		return "", fmt.Errorf("%s is not a token account (%d bytes)", account, len(data))
	}
	return solana.PublicKeyFromBytes(data[tokenOwnerOffset : tokenOwnerOffset+32]).String(), nil
}

// LiquidityLocked reports whether the largest holder of the token is a known
// locker or burn address.
func (s *Signals) LiquidityLocked(ctx context.Context, tokenID string) (bool, error) {
	holders, err := s.largestHolders(ctx, tokenID)
	if err != nil {
		return false, err
	}
	if len(holders) == 0 {
		return false, nil
	}

	owner, err := s.tokenAccountOwner(ctx, holders[0])
	if err != nil {
		return false, err
	}
	_, locked := s.lockers[owner]
	return locked, nil
}

// AssociatedWallets returns the mint and freeze authorities plus the owners of
// the largest holder accounts.
func (s *Signals) AssociatedWallets(ctx context.Context, tokenID string) ([]string, error) {
	info, err := s.mint(ctx, tokenID)
	if err != nil {
		return nil, err
	}

	seen := make(map[string]struct{})
	var wallets []string
	add := func(w string) {
		if _, dup := seen[w]; dup {
			return
		}
		seen[w] = struct{}{}
		wallets = append(wallets, w)
	}

	if info.mintAuthority != nil {
		add(info.mintAuthority.String())
	}
	if info.freezeAuthority != nil {
		add(info.freezeAuthority.String())
	}

	holders, err := s.largestHolders(ctx, tokenID)
	if err != nil {
		return nil, err
	}
	if len(holders) > s.holderDepth {
		holders = holders[:s.holderDepth]
	}
	for _, h := range holders {
		owner, err := s.tokenAccountOwner(ctx, h)
		if err != nil {
			return nil, err
		}
		add(owner)
	}
	return wallets, nil
}

type probeResult struct {
	canBuy   bool
	canSell  bool
	buyTax   float64
	sellTax  float64
	probedAt time.Time
}

// probe quotes reference -> token -> reference and reuses the result for probeTTL.
func (s *Signals) probe(ctx context.Context, tokenID string) (probeResult, error) {
	now := s.now()
	s.mu.Lock()
	cached, ok := s.probes[tokenID]
	s.mu.Unlock()
	if ok && now.Sub(cached.probedAt) < s.probeTTL {
		return cached, nil
	}

	result := probeResult{probedAt: now}

	buy, err := s.quotes.Quote(ctx, s.reference, tokenID, s.probeAmount)
	switch {
	case errors.Is(err, ErrNoRoute):
		return s.storeProbe(tokenID, result), nil
	case err != nil:
		return probeResult{}, fmt.Errorf("buy quote: %w", err)
	}
	result.canBuy = true

	sell, err := s.quotes.Quote(ctx, tokenID, s.reference, buy.OutAmount)
	switch {
	case errors.Is(err, ErrNoRoute):
		// Unsellable: everything is lost on the way out.
		result.sellTax = 100
		return s.storeProbe(tokenID, result), nil
	case err != nil:
		return probeResult{}, fmt.Errorf("sell quote: %w", err)
	}
	result.canSell = true

	result.buyTax, result.sellTax = splitRoundTripLoss(s.probeAmount, sell.OutAmount, buy.PriceImpactPct, sell.PriceImpactPct)
	return s.storeProbe(tokenID, result), nil
}

func (s *Signals) storeProbe(tokenID string, r probeResult) probeResult {
	s.mu.Lock()
	s.probes[tokenID] = r
	s.mu.Unlock()
	return r
}

// splitRoundTripLoss attributes the round-trip loss not explained by price
// impact to transfer taxes, split evenly between the buy and sell legs.
// Price impact is reported as a fraction.
func splitRoundTripLoss(spent, returned, buyImpact, sellImpact decimal.Decimal) (float64, float64) {
	if !spent.IsPositive() {
		return 0, 0
	}
	hundred := decimal.NewFromInt(100)
	loss := decimal.NewFromInt(1).Sub(returned.Div(spent)).Mul(hundred)
	loss = loss.Sub(buyImpact.Add(sellImpact).Mul(hundred))
	if loss.IsNegative() {
		return 0, 0
	}
	each, _ := loss.Div(decimal.NewFromInt(2)).Round(4).Float64()
	return each, each
}

// SimulateSwap reports whether a probe-sized swap would route in the given direction.
func (s *Signals) SimulateSwap(ctx context.Context, tokenID string, direction models.TradeAction) (bool, error) {
	p, err := s.probe(ctx, tokenID)
	if err != nil {
		return false, err
	}
	if direction == models.ActionSell {
		return p.canSell, nil
	}
	return p.canBuy, nil
}

// EstimateTaxes derives buy and sell taxes from a round-trip quote.
func (s *Signals) EstimateTaxes(ctx context.Context, tokenID string) (float64, float64, error) {
	p, err := s.probe(ctx, tokenID)
	if err != nil {
		return 0, 0, err
	}
	if !p.canBuy {
		return 0, 0, fmt.Errorf("%w: cannot buy %s", ErrNoRoute, tokenID)
	}
	return p.buyTax, p.sellTax, nil
}
