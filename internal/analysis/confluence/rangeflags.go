package confluence

import (
	"math"

	"gold-scalper/internal/analysis"
	"gold-scalper/internal/analysis/indicators"
	"gold-scalper/internal/models"
)

// RangeFlags are the edge signals scored when H1 is ranging.
type RangeFlags struct {
	RejectionAtBound bool
	Sweep            bool
	BreakStructure   bool
	VolumeSpike      bool
}

// RangeInput is what EvaluateRange needs.
type RangeInput struct {
	Candles     []models.Candle // M15
	Direction   models.Direction
	Entry       float64
	SwingLow    *float64
	SwingHigh   *float64
	ATR         float64
	TimingReady bool
	SetupType   analysis.SetupType
}

const (
	rangeMinCandles     = 6
	rangeSweepLookback  = 6
	rangeSweepATRMargin = 0.1
	rangeBoundATRTol    = 0.35
	rangeBoundMinTol    = 2.0
	rangeBoundFallback  = 5.0
	rangeBreakMin       = 10
	rangeBreakWindow    = 5
	volumeLookback      = 20
	volumeSpikeMult     = 1.4
)

// EvaluateRange computes the four range-mode flags.
func EvaluateRange(in RangeInput) RangeFlags {
	var out RangeFlags
	candles := in.Candles
	if len(candles) < rangeMinCandles {
		return out
	}

	tol := rangeBoundFallback
	if in.ATR > 0 {
		tol = math.Max(rangeBoundMinTol, in.ATR*rangeBoundATRTol)
	}
	structural := in.SetupType == analysis.BreakoutRetest || in.SetupType == analysis.PullbackSR

	if in.SwingLow != nil && in.SwingHigh != nil {
		bound := *in.SwingLow
		if in.Direction == models.Sell {
			bound = *in.SwingHigh
		}
		out.RejectionAtBound = math.Abs(in.Entry-bound) <= tol && (structural || in.TimingReady)
	}

	lookback := min(rangeSweepLookback, len(candles)-1)
	margin := in.ATR * rangeSweepATRMargin
	for _, c := range candles[len(candles)-lookback:] {
		if in.Direction == models.Sell && in.SwingHigh != nil &&
			c.High > *in.SwingHigh+margin && c.Close < *in.SwingHigh {
			out.Sweep = true
			break
		}
		if in.Direction == models.Buy && in.SwingLow != nil &&
			c.Low < *in.SwingLow-margin && c.Close > *in.SwingLow {
			out.Sweep = true
			break
		}
	}

	if structural {
		out.BreakStructure = true
	} else if len(candles) >= rangeBreakMin && in.SwingLow != nil && in.SwingHigh != nil {
		recent := models.Last(candles, rangeBreakWindow)
		lastClose := candles[len(candles)-1].Close
		switch in.Direction {
		case models.Buy:
			out.BreakStructure = indicators.MinOf(models.Lows(recent)) < *in.SwingLow && lastClose > *in.SwingLow
		case models.Sell:
			out.BreakStructure = indicators.MaxOf(models.Highs(recent)) > *in.SwingHigh && lastClose < *in.SwingHigh
		}
	}

	out.VolumeSpike = indicators.VolumeSpike(candles, volumeLookback, volumeSpikeMult)
	return out
}
