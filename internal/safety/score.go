package safety

import "github.com/solana-sniper-bot/autotrader/internal/models"

// CheckOutcome is the raw result of the check battery for one token.
type CheckOutcome struct {
	Honeypot      bool
	Blacklist     bool
	LiquidityLock bool
	MintRenounced bool
	BuyTax        float64
	SellTax       float64
	BadActor      bool
}

// Score applies the fixed penalties to a starting score of 100 and returns the
// floored score with the triggered warnings in check order.
func Score(o CheckOutcome, highTaxPercent float64) (int, []string) {
	score := models.MaxRiskScore
	warnings := make([]string, 0, 6)

	if o.Honeypot {
		score -= models.PenaltyHoneypot
		warnings = append(warnings, models.WarningHoneypot)
	}
	if o.Blacklist {
		score -= models.PenaltyBlacklist
		warnings = append(warnings, models.WarningBlacklist)
	}
	if !o.LiquidityLock {
		score -= models.PenaltyUnlockedLiquidity
		warnings = append(warnings, models.WarningLiquidityUnlocked)
	}
	if !o.MintRenounced {
		score -= models.PenaltyMintAuthority
		warnings = append(warnings, models.WarningMintAuthority)
	}
	if o.BuyTax > highTaxPercent || o.SellTax > highTaxPercent {
		score -= models.PenaltyHighTax
		warnings = append(warnings, models.WarningHighTax)
	}
	if o.BadActor {
		score -= models.PenaltyBadActor
		warnings = append(warnings, models.WarningBadActor)
	}

	if score < 0 {
		score = 0
	}
	return score, warnings
}

// Report builds a SafetyReport from an outcome.
func (o CheckOutcome) Report(tokenID string, highTaxPercent float64) models.SafetyReport {
	score, warnings := Score(o, highTaxPercent)
	return models.SafetyReport{
		TokenID:                tokenID,
		RiskScore:              score,
		IsHoneypot:             o.Honeypot,
		HasBlacklist:           o.Blacklist,
		LiquidityLocked:        o.LiquidityLock,
		MintAuthorityRenounced: o.MintRenounced,
		BuyTaxPercent:          o.BuyTax,
		SellTaxPercent:         o.SellTax,
		Warnings:               warnings,
	}
}
