package checkout

import "github.com/shopspring/decimal"

// RoundTotal rounds a cart total to cents for the order payload.
func RoundTotal(total float64) float64 {
	return decimal.NewFromFloat(total).Round(2).InexactFloat64()
}

// FormatMoney renders v with exactly two decimals.
func FormatMoney(v float64) string {
	return decimal.NewFromFloat(v).StringFixed(2)
}
