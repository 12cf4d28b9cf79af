package strategy

import (
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/kjannette/microtrend-backend/internal/models"
	"github.com/kjannette/microtrend-backend/internal/precision"
)

// DefaultGridRangePct is the half-width used when no bounds are configured.
const DefaultGridRangePct = 3.0

type GridLevel struct {
	Index    int        `json:"index"`
	Price    float64    `json:"price"`
	Side     string     `json:"side"` // "buy" or "sell"
	Filled   bool       `json:"filled"`
	FilledAt *time.Time `json:"filledAt,omitempty"`
	Fills    int        `json:"fills"`
}

// OrderSide maps the level side onto the exchange side.
func (l GridLevel) OrderSide() models.Side {
	if l.Side == "buy" {
		return models.Buy
	}
	return models.Sell
}

type GridStats struct {
	Levels       int      `json:"levels"`
	LowestPrice  *float64 `json:"lowestPrice"`
	HighestPrice *float64 `json:"highestPrice"`
	Step         float64  `json:"step"`
	BuyLevels    int      `json:"buyLevels"`
	SellLevels   int      `json:"sellLevels"`
	FilledLevels int      `json:"filledLevels"`
	TotalFills   int      `json:"totalFills"`
}

type GridParams struct {
	CurrentPrice   float64
	Upper          float64 // 0 = current +3%
	Lower          float64 // 0 = current -3%
	Count          int
	PricePrecision int32
}

// CalculateGridLevels spaces Count+1 levels evenly from Lower to Upper.
// Levels under the current price buy, the rest sell.
func CalculateGridLevels(p GridParams) ([]GridLevel, error) {
	if p.CurrentPrice <= 0 {
		return nil, fmt.Errorf("current price must be positive")
	}
	if p.Count < 1 {
		return nil, fmt.Errorf("grid count must be at least 1")
	}

	upper, lower := p.Upper, p.Lower
	if upper == 0 {
		upper = p.CurrentPrice * (1 + DefaultGridRangePct/100)
	}
	if lower == 0 {
		lower = p.CurrentPrice * (1 - DefaultGridRangePct/100)
	}
	if lower <= 0 || upper <= lower {
		return nil, fmt.Errorf("invalid grid bounds: lower %.2f, upper %.2f", lower, upper)
	}

	step := (upper - lower) / float64(p.Count)
	grid := make([]GridLevel, 0, p.Count+1)
	for i := 0; i <= p.Count; i++ {
		price := precision.Round(lower+step*float64(i), p.PricePrecision)
		side := "sell"
		if price < p.CurrentPrice {
			side = "buy"
		}
		grid = append(grid, GridLevel{Index: i, Price: price, Side: side})
	}
	return grid, nil
}

// TriggerLevels marks every unfilled level the price has crossed as filled
// and returns their indices in grid order.
func TriggerLevels(currentPrice float64, grid []GridLevel, now time.Time) []int {
	var hit []int
	for i := range grid {
		if grid[i].Filled {
			continue
		}
		if (grid[i].Side == "buy" && currentPrice <= grid[i].Price) ||
			(grid[i].Side == "sell" && currentPrice >= grid[i].Price) {
			grid[i].Filled = true
			ts := now
			grid[i].FilledAt = &ts
			hit = append(hit, i)
		}
	}
	return hit
}

// FlipLevel turns a filled level around so it can trigger again from the
// other side.
func FlipLevel(grid []GridLevel, i int) {
	if i < 0 || i >= len(grid) {
		return
	}
	if grid[i].Side == "buy" {
		grid[i].Side = "sell"
	} else {
		grid[i].Side = "buy"
	}
	grid[i].Filled = false
	grid[i].Fills++
}

// UnfillLevel reverts a trigger whose order never went through.
func UnfillLevel(grid []GridLevel, i int) {
	if i < 0 || i >= len(grid) {
		return
	}
	grid[i].Filled = false
	grid[i].FilledAt = nil
}

// GridAllocation splits the investment evenly across levels and applies
// leverage, unrounded.
func GridAllocation(investment float64, count, leverage int, price float64) float64 {
	if count <= 0 || price <= 0 {
		return 0
	}
	if leverage <= 0 {
		leverage = 1
	}
	return investment / float64(count) / price * float64(leverage)
}

// GridOrderQuantity is GridAllocation rounded to the exchange lot precision.
func GridOrderQuantity(investment float64, count, leverage int, price float64, qtyPrecision int32) float64 {
	return precision.Round(GridAllocation(investment, count, leverage, price), qtyPrecision)
}

func GetGridStats(grid []GridLevel) GridStats {
	if len(grid) == 0 {
		return GridStats{}
	}

	s := GridStats{Levels: len(grid)}
	lo := grid[0].Price
	hi := grid[len(grid)-1].Price
	s.LowestPrice = &lo
	s.HighestPrice = &hi
	if len(grid) > 1 {
		s.Step = (hi - lo) / float64(len(grid)-1)
	}

	for _, l := range grid {
		if l.Side == "buy" {
			s.BuyLevels++
		} else {
			s.SellLevels++
		}
		if l.Filled {
			s.FilledLevels++
		}
		s.TotalFills += l.Fills
	}
	return s
}

func FormatGridDisplay(grid []GridLevel, currentPrice float64, symbol string) string {
	if len(grid) == 0 {
		return "No grid levels initialized."
	}

	sorted := make([]GridLevel, len(grid))
	copy(sorted, grid)
	sort.Slice(sorted, func(i, j int) bool {
		return sorted[i].Price > sorted[j].Price
	})

	var b strings.Builder
	b.WriteString("┌──────────────────────────────────────┐\n")
	fmt.Fprintf(&b, "│ GRID %-31s │\n", symbol)
	b.WriteString("├──────────────────────────────────────┤\n")

	marked := false
	for _, level := range sorted {
		if !marked && level.Price < currentPrice {
			fmt.Fprintf(&b, "│  ---- price %12.2f ------------ │\n", currentPrice)
			marked = true
		}
		sideLabel := "BUY "
		if level.Side == "sell" {
			sideLabel = "SELL"
		}
		status := "[ ]"
		if level.Filled {
			status = "[X]"
		}
		fmt.Fprintf(&b, "│ %s %s @ %12.2f  fills %4d │\n", status, sideLabel, level.Price, level.Fills)
	}
	if !marked {
		fmt.Fprintf(&b, "│  ---- price %12.2f ------------ │\n", currentPrice)
	}
	b.WriteString("└──────────────────────────────────────┘")
	return b.String()
}

func IsPriceOutsideGrid(currentPrice float64, grid []GridLevel) bool {
	if len(grid) == 0 {
		return true
	}
	lo := grid[0].Price
	hi := grid[0].Price
	for _, l := range grid[1:] {
		if l.Price < lo {
			lo = l.Price
		}
		if l.Price > hi {
			hi = l.Price
		}
	}
	return currentPrice < lo || currentPrice > hi
}
