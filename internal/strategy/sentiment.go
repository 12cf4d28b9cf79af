package strategy

import "fmt"

// SentimentAllows gates scalping entries on the Fear & Greed index. Both
// extremes trade; a dead-neutral market (48..52) waits.
func SentimentAllows(value int) (bool, string) {
	switch {
	case value <= 25:
		return true, fmt.Sprintf("extreme fear (%d)", value)
	case value >= 75:
		return true, fmt.Sprintf("extreme greed (%d)", value)
	case value >= 48 && value <= 52:
		return false, fmt.Sprintf("neutral sentiment (%d), waiting", value)
	}
	return true, fmt.Sprintf("fear & greed %d", value)
}
