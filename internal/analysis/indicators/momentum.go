package indicators

import (
	"gold-scalper/internal/models"
)

// Change returns close[last] - close[last-n], the plain momentum over n bars.
// It returns false when fewer than n+1 candles are available.
func Change(candles []models.Candle, n int) (float64, bool) {
	if n <= 0 || len(candles) < n+1 {
		return 0, false
	}
	last := len(candles) - 1
	return candles[last].Close - candles[last-n].Close, true
}
