package confluence

import (
	"gold-scalper/internal/analysis/indicators"
	"gold-scalper/internal/models"
)

// FiboParams configures the Fibonacci confluence bonus.
type FiboParams struct {
	Enabled      bool    `mapstructure:"fibo_enabled" default:"false"`
	ZoneMin      float64 `mapstructure:"fibo_zone_min" default:"0.382"`
	ZoneMax      float64 `mapstructure:"fibo_zone_max" default:"0.618"`
	TolerancePct float64 `mapstructure:"fibo_tolerance_atr" default:"0.15"`
	BonusPoints  int     `mapstructure:"fibo_bonus_points" default:"3"`
}

// Fibonacci reports whether entry sits within TolerancePct × ATR of a
// retracement level of the swing leg, or inside the [ZoneMin, ZoneMax] band.
// It also returns the distance to the nearest level (0 inside the band).
func Fibonacci(p FiboParams, dir models.Direction, entry float64, swingLow, swingHigh *float64, atr float64) (bool, float64) {
	if swingLow == nil || swingHigh == nil || atr <= 0 {
		return false, -1
	}
	levels, err := indicators.Retracements(*swingLow, *swingHigh, dir)
	if err != nil {
		return false, -1
	}

	dist := levels.Nearest(entry)
	if dist <= p.TolerancePct*atr {
		return true, dist
	}
	ratio := levels.Ratio(entry)
	if ratio >= p.ZoneMin && ratio <= p.ZoneMax {
		return true, 0
	}
	return false, dist
}
