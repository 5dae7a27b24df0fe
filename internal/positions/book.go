// Package positions tracks what each user holds after the engines trade, and
// the take-profit / stop-loss plans handed off to the price watcher.
package positions

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"

	"github.com/shopspring/decimal"

	"github.com/solana-sniper-bot/autotrader/internal/models"
)

// ErrNoHolding is returned when selling a token the user does not hold.
var ErrNoHolding = errors.New("no holding for token")

// Book is safe for concurrent use. Besides settled holdings it tracks work in
// flight: buys that have been dispatched but not resolved, and tokens already
// promised to dispatched sells.
type Book struct {
	mu       sync.RWMutex
	holdings map[string]map[string]models.Holding
	plans    map[string]map[string]models.ExitPlan
	buying   map[string]map[string]int
	reserved map[string]map[string]decimal.Decimal
}

func NewBook() *Book {
	return &Book{
		holdings: make(map[string]map[string]models.Holding),
		plans:    make(map[string]map[string]models.ExitPlan),
		buying:   make(map[string]map[string]int),
		reserved: make(map[string]map[string]decimal.Decimal),
	}
}

// Holding returns the user's position in tokenID.
func (b *Book) Holding(userID, tokenID string) (models.Holding, bool) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	h, ok := b.holdings[userID][tokenID]
	if !ok || h.Amount <= 0 {
		return models.Holding{}, false
	}
	return h, true
}

// Holdings lists the user's open positions ordered by token.
func (b *Book) Holdings(userID string) []models.Holding {
	b.mu.RLock()
	out := make([]models.Holding, 0, len(b.holdings[userID]))
	for _, h := range b.holdings[userID] {
		out = append(out, h)
	}
	b.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool { return out[i].TokenID < out[j].TokenID })
	return out
}

// RecordBuy adds tokens bought for cost to the user's position.
func (b *Book) RecordBuy(userID, tokenID string, tokens, cost float64) models.Holding {
	b.mu.Lock()
	defer b.mu.Unlock()

	byToken, ok := b.holdings[userID]
	if !ok {
		byToken = make(map[string]models.Holding)
		b.holdings[userID] = byToken
	}

	h := byToken[tokenID]
	h.UserID = userID
	h.TokenID = tokenID
	h.Amount, _ = decimal.NewFromFloat(h.Amount).Add(decimal.NewFromFloat(tokens)).Float64()
	h.CostBasis, _ = decimal.NewFromFloat(h.CostBasis).Add(decimal.NewFromFloat(cost)).Float64()
	byToken[tokenID] = h
	return h
}

// RecordSell removes tokens sold for proceeds and returns the realized pnl
// against the average cost. Selling more than held closes the position.
func (b *Book) RecordSell(userID, tokenID string, tokens, proceeds float64) (float64, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	h, ok := b.holdings[userID][tokenID]
	if !ok || h.Amount <= 0 {
		return 0, fmt.Errorf("%w: %s/%s", ErrNoHolding, userID, tokenID)
	}

	held := decimal.NewFromFloat(h.Amount)
	sold := decimal.NewFromFloat(tokens)
	if sold.GreaterThan(held) {
		sold = held
	}

	basis := decimal.NewFromFloat(h.CostBasis)
	costOfSold := basis.Mul(sold).Div(held)
	realized, _ := decimal.NewFromFloat(proceeds).Sub(costOfSold).Float64()

	remaining := held.Sub(sold)
	if remaining.IsZero() {
		delete(b.holdings[userID], tokenID)
		delete(b.plans[userID], tokenID)
		return realized, nil
	}

	h.Amount, _ = remaining.Float64()
	h.CostBasis, _ = basis.Sub(costOfSold).Float64()
	b.holdings[userID][tokenID] = h
	return realized, nil
}

// BeginBuy marks a buy of tokenID as dispatched. Every call must be paired
// with EndBuy once the buy is resolved and, on success, recorded.
func (b *Book) BeginBuy(userID, tokenID string) {
	b.mu.Lock()
	defer b.mu.Unlock()

	byToken, ok := b.buying[userID]
	if !ok {
		byToken = make(map[string]int)
		b.buying[userID] = byToken
	}
	byToken[tokenID]++
}

func (b *Book) EndBuy(userID, tokenID string) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.buying[userID][tokenID] <= 1 {
		delete(b.buying[userID], tokenID)
		return
	}
	b.buying[userID][tokenID]--
}

// PendingBuys returns how many buys of tokenID are in flight for the user.
func (b *Book) PendingBuys(userID, tokenID string) int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.buying[userID][tokenID]
}

// ReserveSell sizes a sell against the part of the holding not already
// reserved by other in-flight sells and reserves the result. size receives the
// available amount and returns the amount to sell; it is clamped to what is
// available. The reservation must be released with ReleaseSell.
func (b *Book) ReserveSell(userID, tokenID string, size func(available float64) float64) float64 {
	b.mu.Lock()
	defer b.mu.Unlock()

	h, ok := b.holdings[userID][tokenID]
	if !ok || h.Amount <= 0 {
		return 0
	}
	taken := b.reserved[userID][tokenID]
	available := decimal.NewFromFloat(h.Amount).Sub(taken)
	if !available.IsPositive() {
		return 0
	}

	avail, _ := available.Float64()
	want := decimal.NewFromFloat(size(avail))
	if !want.IsPositive() {
		return 0
	}
	if want.GreaterThan(available) {
		want = available
	}

	byToken, ok := b.reserved[userID]
	if !ok {
		byToken = make(map[string]decimal.Decimal)
		b.reserved[userID] = byToken
	}
	byToken[tokenID] = taken.Add(want)
	out, _ := want.Float64()
	return out
}

// ReleaseSell returns tokens reserved by ReserveSell. Call it after the sell is
// recorded, or when it fails.
func (b *Book) ReleaseSell(userID, tokenID string, tokens float64) {
	b.mu.Lock()
	defer b.mu.Unlock()

	left := b.reserved[userID][tokenID].Sub(decimal.NewFromFloat(tokens))
	if !left.IsPositive() {
		delete(b.reserved[userID], tokenID)
		return
	}
	b.reserved[userID][tokenID] = left
}

// RegisterExit stores the plan, replacing any previous plan for the same token.
func (b *Book) RegisterExit(_ context.Context, plan models.ExitPlan) error {
	if plan.UserID == "" || plan.TokenID == "" {
		return errors.New("exit plan requires user and token")
	}
	if plan.TakeProfitPercent == nil && plan.StopLossPercent == nil {
		return errors.New("exit plan requires take-profit or stop-loss")
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	byToken, ok := b.plans[plan.UserID]
	if !ok {
		byToken = make(map[string]models.ExitPlan)
		b.plans[plan.UserID] = byToken
	}
	byToken[plan.TokenID] = plan
	return nil
}

// ExitPlans lists the user's registered plans ordered by token.
func (b *Book) ExitPlans(userID string) []models.ExitPlan {
	b.mu.RLock()
	out := make([]models.ExitPlan, 0, len(b.plans[userID]))
	for _, p := range b.plans[userID] {
		out = append(out, p)
	}
	b.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool { return out[i].TokenID < out[j].TokenID })
	return out
}

// CancelExit drops the plan for tokenID, if any.
func (b *Book) CancelExit(userID, tokenID string) {
	b.mu.Lock()
	delete(b.plans[userID], tokenID)
	b.mu.Unlock()
}
