package indicators

import (
	"gold-scalper/internal/models"
)

// AverageVolume returns the mean volume of the n candles preceding the last
// one, or of all preceding candles when fewer are available.
func AverageVolume(candles []models.Candle, n int) float64 {
	if len(candles) < 2 {
		return 0
	}
	prev := candles[:len(candles)-1]
	if len(prev) > n {
		prev = prev[len(prev)-n:]
	}
	var total float64
	for _, c := range prev {
		total += float64(c.Volume)
	}
	return total / float64(len(prev))
}

// VolumeSpike reports whether the last candle traded at least mult times the
// average of the previous lookback candles. Needs five candles.
func VolumeSpike(candles []models.Candle, lookback int, mult float64) bool {
	if len(candles) < 5 {
		return false
	}
	avg := AverageVolume(candles, lookback)
	if avg <= 0 {
		return false
	}
	return float64(candles[len(candles)-1].Volume) >= mult*avg
}
