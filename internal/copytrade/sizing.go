package copytrade

import "github.com/shopspring/decimal"

var hundred = decimal.NewFromInt(100)

// BuySize is the follower's share of a leader buy: observed * pct/100, capped at max.
func BuySize(observed, copyPercentage, maxCopyAmount float64) float64 {
	size := decimal.NewFromFloat(observed).
		Mul(decimal.NewFromFloat(copyPercentage)).
		Div(hundred)
	size = decimal.Min(size, decimal.NewFromFloat(maxCopyAmount))
	if size.IsNegative() {
		return 0
	}
	f, _ := size.Float64()
	return f
}

// SellSize is the share of the follower's holding sold when the leader sells.
func SellSize(holding, copyPercentage float64) float64 {
	size := decimal.NewFromFloat(holding).
		Mul(decimal.NewFromFloat(copyPercentage)).
		Div(hundred)
	if size.IsNegative() {
		return 0
	}
	f, _ := size.Float64()
	return f
}
