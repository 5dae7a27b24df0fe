// Package models - feed items and leader reference data
package models

import "time"

// CandidateToken is a newly discovered token reported by the discovery feed.
type CandidateToken struct {
	TokenID           string    `json:"token_id"`
	ObservedLiquidity float64   `json:"observed_liquidity"`
	DiscoveredAt      time.Time `json:"discovered_at"`
}

// LeaderActivity is one trade observed on a tracked leader wallet.
type LeaderActivity struct {
	LeaderWalletAddress string      `json:"leader_wallet_address"`
	Action              TradeAction `json:"action"`
	TokenID             string      `json:"token_id"`
	Amount              float64     `json:"amount"`
	ObservedAt          time.Time   `json:"observed_at"`
	TxSignature         string      `json:"tx_signature"`
}

// LeaderWallet is read-mostly reference data about a tracked wallet.
type LeaderWallet struct {
	Address               string        `json:"address" yaml:"address"`
	DisplayName           string        `json:"display_name" yaml:"display_name"`
	WinRatePercent        float64       `json:"win_rate_percent" yaml:"win_rate_percent"`
	Trailing30dProfit     float64       `json:"trailing_30d_profit" yaml:"trailing_30d_profit"`
	Trailing30dTradeCount int           `json:"trailing_30d_trade_count" yaml:"trailing_30d_trade_count"`
	FollowerCount         int           `json:"follower_count" yaml:"follower_count"`
	StrategyLabel         string        `json:"strategy_label" yaml:"strategy_label"`
	AvgHoldDuration       time.Duration `json:"avg_hold_duration" yaml:"avg_hold_duration"`
	RugsAvoidedCount      int           `json:"rugs_avoided_count" yaml:"rugs_avoided_count"`
}
