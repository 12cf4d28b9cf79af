// Package precision rounds exchange prices and quantities to a fixed
// number of decimal places without binary float drift.
package precision

import "github.com/shopspring/decimal"

// Round rounds half up to places decimals.
func Round(v float64, places int32) float64 {
	return decimal.NewFromFloat(v).Round(places).InexactFloat64()
}

// Format renders v with exactly places decimals, as order parameters need.
func Format(v float64, places int32) string {
	return decimal.NewFromFloat(v).StringFixed(places)
}
