// Package models - per-user trading policies
package models

import (
	"time"

	"gorm.io/gorm"
)

// SniperPolicy is a user's criteria for automatically buying newly discovered tokens.
// There is at most one per user.
type SniperPolicy struct {
	UserID  string `gorm:"primaryKey;type:varchar(64)" json:"user_id" validate:"required,max=64"`
	Enabled bool   `gorm:"default:false" json:"enabled"`

	// Entry criteria
	MaxBuyAmount       float64 `gorm:"type:decimal(30,9);not null" json:"max_buy_amount" validate:"gt=0"`
	MinLiquidity       float64 `gorm:"type:decimal(30,9);default:0" json:"min_liquidity" validate:"gte=0"`
	MaxSlippagePercent float64 `gorm:"type:decimal(5,2)" json:"max_slippage_percent" validate:"gte=0,lte=100"`
	MinRiskScore       int     `gorm:"default:0" json:"min_risk_score" validate:"gte=0,lte=100"`
	MaxTaxPercent      float64 `gorm:"type:decimal(5,2)" json:"max_tax_percent" validate:"gte=0,lte=100"`

	// Exit hand-off
	AutoSellEnabled   bool     `gorm:"default:false" json:"auto_sell_enabled"`
	TakeProfitPercent *float64 `gorm:"type:decimal(10,2)" json:"take_profit_percent,omitempty" validate:"omitempty,gt=0"`
	StopLossPercent   *float64 `gorm:"type:decimal(5,2)" json:"stop_loss_percent,omitempty" validate:"omitempty,gt=0,lte=100"`

	UpdatedAt time.Time `json:"updated_at"`
}

// TableName overrides the gorm table name.
func (SniperPolicy) TableName() string { return "sniper_policies" }

// BeforeSave stamps the modification time.
func (p *SniperPolicy) BeforeSave(tx *gorm.DB) error {
	p.UpdatedAt = time.Now().UTC()
	return nil
}

// Clone returns a deep copy.
func (p SniperPolicy) Clone() SniperPolicy {
	out := p
	out.TakeProfitPercent = cloneFloat(p.TakeProfitPercent)
	out.StopLossPercent = cloneFloat(p.StopLossPercent)
	return out
}

// HasExitPlan reports whether an auto-sell hand-off should follow a successful buy.
func (p SniperPolicy) HasExitPlan() bool {
	return p.AutoSellEnabled && (p.TakeProfitPercent != nil || p.StopLossPercent != nil)
}

// CopyTradePolicy is one user's settings for mirroring one leader wallet.
type CopyTradePolicy struct {
	UserID              string `gorm:"primaryKey;type:varchar(64)" json:"user_id" validate:"required,max=64"`
	LeaderWalletAddress string `gorm:"primaryKey;type:varchar(44);index" json:"leader_wallet_address" validate:"required,solana_address"`
	Enabled             bool   `gorm:"default:true" json:"enabled"`

	// Sizing
	CopyPercentage float64 `gorm:"type:decimal(5,2);not null" json:"copy_percentage" validate:"gte=1,lte=100"`
	MaxCopyAmount  float64 `gorm:"type:decimal(30,9);not null" json:"max_copy_amount" validate:"gt=0"`

	// Exit thresholds
	StopLossPercent   *float64 `gorm:"type:decimal(5,2)" json:"stop_loss_percent,omitempty" validate:"omitempty,gt=0,lte=100"`
	TakeProfitPercent *float64 `gorm:"type:decimal(10,2)" json:"take_profit_percent,omitempty" validate:"omitempty,gt=0"`

	// Filters
	OnlyVerifiedTokens bool `gorm:"default:true" json:"only_verified_tokens"`
	SkipHighTax        bool `gorm:"default:true" json:"skip_high_tax"`
	AutoSellWithLeader bool `gorm:"default:false" json:"auto_sell_with_leader"`

	// FollowedAt is when mirroring became active. Leader trades observed
	// before it are never copied.
	FollowedAt time.Time `json:"followed_at"`
	UpdatedAt  time.Time `json:"updated_at"`
}

// TableName overrides the gorm table name.
func (CopyTradePolicy) TableName() string { return "copy_trade_policies" }

// BeforeSave stamps the modification time.
func (p *CopyTradePolicy) BeforeSave(tx *gorm.DB) error {
	p.UpdatedAt = time.Now().UTC()
	return nil
}

// Clone returns a deep copy.
func (p CopyTradePolicy) Clone() CopyTradePolicy {
	out := p
	out.TakeProfitPercent = cloneFloat(p.TakeProfitPercent)
	out.StopLossPercent = cloneFloat(p.StopLossPercent)
	return out
}

// HasExitPlan reports whether take-profit or stop-loss thresholds are configured.
func (p CopyTradePolicy) HasExitPlan() bool {
	return p.TakeProfitPercent != nil || p.StopLossPercent != nil
}

func cloneFloat(v *float64) *float64 {
	if v == nil {
		return nil
	}
	c := *v
	return &c
}

// Float returns a pointer to v. Handy for optional policy thresholds.
func Float(v float64) *float64 {
	return &v
}
