// Package models holds the domain types shared by the safety evaluator, the
// trading engines, the policy store and the persistence layer.
package models

import "time"

// Score bounds and penalties applied by the safety evaluator.
const (
	MaxRiskScore     = 100
	NeutralRiskScore = 50

	PenaltyHoneypot          = 50
	PenaltyBlacklist         = 30
	PenaltyUnlockedLiquidity = 20
	PenaltyMintAuthority     = 15
	PenaltyHighTax           = 10
	PenaltyBadActor          = 40

	// HighTaxThresholdPercent is the tax above which the high-tax penalty applies.
	HighTaxThresholdPercent = 5.0
)

// Warning texts, in check order.
const (
	WarningHoneypot          = "Potential honeypot detected"
	WarningBlacklist         = "Blacklist functionality detected"
	WarningLiquidityUnlocked = "Liquidity not locked"
	WarningMintAuthority     = "Mint authority not renounced"
	WarningHighTax           = "High transaction taxes"
	WarningBadActor          = "Known rugger wallet involved"
	WarningAnalysisFailed    = "Analysis failed - trade with caution"
)

// SafetyReport is the evaluation of one token at one point in time.
type SafetyReport struct {
	TokenID                string    `json:"token_id"`
	RiskScore              int       `json:"risk_score"`
	IsHoneypot             bool      `json:"is_honeypot"`
	HasBlacklist           bool      `json:"has_blacklist"`
	LiquidityLocked        bool      `json:"liquidity_locked"`
	MintAuthorityRenounced bool      `json:"mint_authority_renounced"`
	BuyTaxPercent          float64   `json:"buy_tax_percent"`
	SellTaxPercent         float64   `json:"sell_tax_percent"`
	Warnings               []string  `json:"warnings"`
	ComputedAt             time.Time `json:"computed_at"`
}

// NeutralSafetyReport is returned when analysis could not complete.
func NeutralSafetyReport(tokenID string, now time.Time) SafetyReport {
	return SafetyReport{
		TokenID:    tokenID,
		RiskScore:  NeutralRiskScore,
		Warnings:   []string{WarningAnalysisFailed},
		ComputedAt: now,
	}
}

// Clone returns a copy that shares no slices with r.
func (r SafetyReport) Clone() SafetyReport {
	out := r
	if r.Warnings != nil {
		out.Warnings = make([]string, len(r.Warnings))
		copy(out.Warnings, r.Warnings)
	}
	return out
}

// IsNeutral reports whether r is the fail-soft placeholder.
func (r SafetyReport) IsNeutral() bool {
	return r.RiskScore == NeutralRiskScore && len(r.Warnings) == 1 && r.Warnings[0] == WarningAnalysisFailed
}

// HasHighTax reports whether either direction exceeds threshold.
func (r SafetyReport) HasHighTax(threshold float64) bool {
	return r.BuyTaxPercent > threshold || r.SellTaxPercent > threshold
}
