// Package guard warns about transfers that leave the wallet (almost) empty.
package guard

import "github.com/shopspring/decimal"

var (
	hundred    = decimal.NewFromInt(100)
	warnAbove  = decimal.NewFromInt(95)
	warnAtMost = decimal.RequireFromString("99.99")
)

// NearExhaustion reports whether amount is more than 95% of balance
// but not the whole balance.
func NearExhaustion(amount, balance decimal.Decimal) bool {
	if !balance.IsPositive() {
		return false
	}
	percentage := amount.DivRound(balance, 4).Mul(hundred).Round(2)
	return percentage.GreaterThan(warnAbove) && percentage.LessThanOrEqual(warnAtMost)
}

// Insufficient reports whether amount exceeds balance.
func Insufficient(amount, balance decimal.Decimal) bool {
	return balance.Sub(amount).IsNegative()
}
