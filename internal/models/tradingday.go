package models

import "time"

const DayLayout = "2006-01-02"

// TradingDay returns the trading day (YYYY-MM-DD) for a timestamp. Futures
// trade around the clock; the day rolls at 00:00 UTC, the same boundary
// the daily risk counters reset on.
func TradingDay(ts time.Time) string {
	return ts.UTC().Format(DayLayout)
}
