// Package models - executor contract and position hand-off types
package models

import "time"

// ActionRequest asks the executor to swap Amount of InputAsset into OutputAsset.
// MaxSlippagePercent and MinLiquidity are advisory limits the executor may enforce.
type ActionRequest struct {
	UserID             string  `json:"user_id"`
	UserWallet         string  `json:"user_wallet,omitempty"`
	InputAsset         string  `json:"input_asset"`
	OutputAsset        string  `json:"output_asset"`
	Amount             float64 `json:"amount"`
	MaxSlippagePercent float64 `json:"max_slippage_percent,omitempty"`
	MinLiquidity       float64 `json:"min_liquidity,omitempty"`
	// IdempotencyKey identifies the logged action; executors pass it on so a
	// repeated submission is not filled twice.
	IdempotencyKey string `json:"-"`
}

// ActionResult is the executor's answer. Price is input units per output unit.
type ActionResult struct {
	Success      bool    `json:"success"`
	TxRef        string  `json:"tx_ref,omitempty"`
	Price        float64 `json:"price,omitempty"`
	OutputAmount float64 `json:"output_amount,omitempty"`
	Error        string  `json:"error,omitempty"`
}

// ExitSource names the engine that opened a position.
type ExitSource string

const (
	ExitSourceSniper    ExitSource = "sniper"
	ExitSourceCopyTrade ExitSource = "copy_trade"
)

// ExitPlan carries take-profit / stop-loss thresholds to the price watcher.
type ExitPlan struct {
	UserID            string     `json:"user_id"`
	TokenID           string     `json:"token_id"`
	EntryPrice        float64    `json:"entry_price"`
	Amount            float64    `json:"amount"`
	TakeProfitPercent *float64   `json:"take_profit_percent,omitempty"`
	StopLossPercent   *float64   `json:"stop_loss_percent,omitempty"`
	Source            ExitSource `json:"source"`
	TxRef             string     `json:"tx_ref,omitempty"`
	CreatedAt         time.Time  `json:"created_at"`
}

// TakeProfitPrice returns the price at which the plan takes profit, or 0 if unset.
func (p ExitPlan) TakeProfitPrice() float64 {
	if p.TakeProfitPercent == nil {
		return 0
	}
	return p.EntryPrice * (1 + *p.TakeProfitPercent/100)
}

// StopLossPrice returns the price at which the plan stops out, or 0 if unset.
func (p ExitPlan) StopLossPrice() float64 {
	if p.StopLossPercent == nil {
		return 0
	}
	return p.EntryPrice * (1 - *p.StopLossPercent/100)
}

// Holding is a follower's current token balance and what it cost.
type Holding struct {
	UserID    string  `json:"user_id"`
	TokenID   string  `json:"token_id"`
	Amount    float64 `json:"amount"`
	CostBasis float64 `json:"cost_basis"`
}

// AveragePrice is cost basis per unit held.
func (h Holding) AveragePrice() float64 {
	if h.Amount == 0 {
		return 0
	}
	return h.CostBasis / h.Amount
}
