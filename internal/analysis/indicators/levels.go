package indicators

import (
	"math"

	"gold-scalper/internal/models"
)

// FibonacciRatios are the retracement ratios used for confluence.
var FibonacciRatios = []float64{0.382, 0.5, 0.618}

// FibonacciLevels holds retracement levels of one swing leg.
type FibonacciLevels struct {
	SwingHigh float64
	SwingLow  float64
	Direction models.Direction
	Levels    []float64 // same order as FibonacciRatios
}

// Nearest returns the distance from price to the closest level.
func (f *FibonacciLevels) Nearest(price float64) float64 {
	best := math.Inf(1)
	for _, l := range f.Levels {
		best = math.Min(best, math.Abs(price-l))
	}
	return best
}

// Ratio returns the position of price inside the leg, measured from the
// swing low for BUY and from the swing high for SELL.
func (f *FibonacciLevels) Ratio(price float64) float64 {
	span := f.SwingHigh - f.SwingLow
	if span <= 0 {
		return 0
	}
	if f.Direction == models.Sell {
		return (f.SwingHigh - price) / span
	}
	return (price - f.SwingLow) / span
}

// Retracements computes the levels of the swing leg [low, high]. BUY levels
// are measured up from the low, SELL levels down from the high.
func Retracements(low, high float64, dir models.Direction) (*FibonacciLevels, error) {
	span := high - low
	if span <= 0 {
		return nil, ErrInsufficientData
	}
	f := &FibonacciLevels{SwingHigh: high, SwingLow: low, Direction: dir}
	for _, r := range FibonacciRatios {
		if dir == models.Sell {
			f.Levels = append(f.Levels, high-span*r)
		} else {
			f.Levels = append(f.Levels, low+span*r)
		}
	}
	return f, nil
}
