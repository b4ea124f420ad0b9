// Package confluence computes the secondary signals the scoring engine
// weighs: market phase, range-mode flags, room to target and Fibonacci
// confluence.
package confluence

import (
	"math"

	"gold-scalper/internal/analysis"
	"gold-scalper/internal/analysis/indicators"
	"gold-scalper/internal/analysis/structure"
	"gold-scalper/internal/models"
)

// Phase is the market phase label.
type Phase string

const (
	PhaseImpulse       Phase = "IMPULSE"
	PhasePullback      Phase = "PULLBACK"
	PhaseConsolidation Phase = "CONSOLIDATION"
	PhaseReversal      Phase = "REVERSAL"
)

// PhaseResult is a phase with the rule that produced it.
type PhaseResult struct {
	Phase  Phase
	Reason string
}

const (
	phaseMinCandles   = 10
	phaseWindow       = 8
	phaseTightRatio   = 0.5
	phasePullbackPct  = 0.003
	phasePullbackSlip = 10.0
	phaseMomentumPts  = 5.0
)

// MarketPhase classifies the M15 series. m15 is the structure of candles; h1
// may be nil, in which case the M15 structure stands in for it.
func MarketPhase(candles []models.Candle, m15, h1 *structure.Result) PhaseResult {
	if len(candles) == 0 || m15 == nil {
		return PhaseResult{PhaseConsolidation, "Pas de données"}
	}
	if len(candles) < phaseMinCandles {
		return PhaseResult{PhaseConsolidation, "Historique insuffisant"}
	}
	if h1 == nil {
		h1 = m15
	}

	if (h1.Label == analysis.Bullish && m15.Label == analysis.Bearish) ||
		(h1.Label == analysis.Bearish && m15.Label == analysis.Bullish) {
		return PhaseResult{PhaseReversal, "Structure H1 vs M15 divergente"}
	}

	recent := span(models.Last(candles, phaseWindow))
	older := recent
	if len(candles) >= 2*phaseWindow {
		older = span(candles[len(candles)-2*phaseWindow : len(candles)-phaseWindow])
	}
	avg := recent
	if older > 0 {
		avg = (recent + older) / 2
	}
	if avg > 0 && recent < avg*phaseTightRatio {
		return PhaseResult{PhaseConsolidation, "Range serré"}
	}
	if m15.Label == analysis.Range {
		return PhaseResult{PhaseConsolidation, "Structure range"}
	}

	lastClose := candles[len(candles)-1].Close
	if m15.Label == analysis.Bullish && m15.LastSwingLow != nil && *m15.LastSwingLow != 0 {
		hl := *m15.LastSwingLow
		if math.Abs(lastClose-hl)/hl <= phasePullbackPct && lastClose >= hl-phasePullbackSlip {
			return PhaseResult{PhasePullback, "Prix proche swing low (pullback BUY)"}
		}
	}
	if m15.Label == analysis.Bearish && m15.LastSwingHigh != nil && *m15.LastSwingHigh != 0 {
		lh := *m15.LastSwingHigh
		if math.Abs(lastClose-lh)/lh <= phasePullbackPct && lastClose <= lh+phasePullbackSlip {
			return PhaseResult{PhasePullback, "Prix proche swing high (pullback SELL)"}
		}
	}

	short, _ := indicators.Change(candles, 4)
	medium, _ := indicators.Change(candles, 12)
	if m15.Label == analysis.Bullish && short > phaseMomentumPts && medium > phaseMomentumPts {
		return PhaseResult{PhaseImpulse, "Momentum haussier aligné"}
	}
	if m15.Label == analysis.Bearish && short < -phaseMomentumPts && medium < -phaseMomentumPts {
		return PhaseResult{PhaseImpulse, "Momentum baissier aligné"}
	}
	return PhaseResult{PhaseConsolidation, "Phase indéterminée"}
}

// Directional reports whether the phase is IMPULSE or PULLBACK.
func (p PhaseResult) Directional() bool {
	return p.Phase == PhaseImpulse || p.Phase == PhasePullback
}

func span(candles []models.Candle) float64 {
	if len(candles) == 0 {
		return 0
	}
	return indicators.MaxOf(models.Highs(candles)) - indicators.MinOf(models.Lows(candles))
}

// Trend is the short-term M15 drift.
type Trend string

const (
	TrendUp      Trend = "up"
	TrendDown    Trend = "down"
	TrendNeutral Trend = "neutral"
)

// RecentTrend compares the mean of the last five closes with the five before.
func RecentTrend(candles []models.Candle) Trend {
	recent, older, ok := indicators.Momentum(candles, 5)
	switch {
	case !ok:
		return TrendNeutral
	case recent > older:
		return TrendUp
	case recent < older:
		return TrendDown
	default:
		return TrendNeutral
	}
}

// Aligned reports whether the drift agrees with dir.
func (t Trend) Aligned(dir models.Direction) bool {
	return (t == TrendUp && dir == models.Buy) || (t == TrendDown && dir == models.Sell)
}
