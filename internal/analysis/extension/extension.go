// Package extension blocks entries that chase a move too far from its
// reference level. The reference is the structural level, the anchor of the
// most recent impulse candle, or the pivot of a strong trend.
package extension

import (
	"fmt"
	"math"
	"time"

	"github.com/creasty/defaults"

	"gold-scalper/internal/analysis"
	"gold-scalper/internal/analysis/indicators"
	"gold-scalper/internal/analysis/structure"
	"gold-scalper/internal/models"
)

// ReferenceSource names the level a distance was measured from.
type ReferenceSource string

const (
	SourceNone      ReferenceSource = ""
	SourceStructure ReferenceSource = "structure"
	SourceImpulse   ReferenceSource = "impulse_anchor"
	SourcePivot     ReferenceSource = "strong_trend_pivot"
)

// Params configures the impulse memory and the guard.
type Params struct {
	ImpulseMinCandles int     `mapstructure:"impulse_min_candles" default:"15"`
	ImpulseLookback   int     `mapstructure:"impulse_lookback" default:"20" validate:"gt=0"`
	ImpulseATRMult    float64 `mapstructure:"impulse_atr_mult" default:"1.8" validate:"gt=0"`
	ATRPeriod         int     `mapstructure:"atr_period" default:"14"`
	BlockATRMult      float64 `mapstructure:"block_atr_mult" default:"0.8" validate:"gt=0"`
	RetestTolATR      float64 `mapstructure:"retest_tol_atr" default:"0.35"`
}

// DefaultParams returns the production defaults.
func DefaultParams() Params {
	var p Params
	_ = defaults.Set(&p)
	return p
}

// Impulse is the most recent large candle in the lookback window.
type Impulse struct {
	Direction models.Direction
	Anchor    float64 // origin side of the move
	Range     float64
	Timestamp time.Time
	KeyLevels []float64
}

// Input is what one check needs.
type Input struct {
	Price             float64
	Direction         models.Direction
	ATR               float64
	SetupType         analysis.SetupType
	TimingReady       bool
	StructureLevel    *float64
	Impulse           *Impulse
	StrongTrend       structure.StrongTrend
	PullbackConfirmed bool
}

// Result is the outcome of a check.
type Result struct {
	Blocked           bool
	Distance          float64
	Reference         *float64
	ReferenceSource   ReferenceSource
	ImpulseAnchor     *float64
	StrongTrend       bool
	PullbackConfirmed bool
	PivotUsed         bool
	RetestException   bool
	Reason            string
}

// Guard is the extension guard.
type Guard struct {
	params Params
}

// NewGuard creates a guard.
func NewGuard(params Params) *Guard {
	return &Guard{params: params}
}

// Params returns the guard parameters.
func (g *Guard) Params() Params {
	return g.params
}

// DetectImpulse scans from the newest candle back through the lookback and
// returns the first candle whose range is at least ATR × ImpulseATRMult.
func (g *Guard) DetectImpulse(candles []models.Candle) *Impulse {
	if len(candles) < g.params.ImpulseMinCandles || len(candles) == 0 {
		return nil
	}
	atr := indicators.ATRWithFallback(candles, g.params.ATRPeriod)
	threshold := atr * g.params.ImpulseATRMult

	window := models.Last(candles, g.params.ImpulseLookback)
	for i := len(window) - 1; i >= 0; i-- {
		c := window[i]
		r := c.Range()
		if r < threshold {
			continue
		}
		imp := &Impulse{Range: math.Round(r*10) / 10, Timestamp: c.Timestamp}
		if c.Close >= c.Open {
			imp.Direction = models.Buy
			imp.Anchor = c.Low
			imp.KeyLevels = []float64{c.Low, c.High}
		} else {
			imp.Direction = models.Sell
			imp.Anchor = c.High
			imp.KeyLevels = []float64{c.High, c.Low}
		}
		return imp
	}
	return nil
}

// Check measures the distance between price and the reference level and
// decides whether the entry chases the move.
func (g *Guard) Check(in Input) Result {
	res := Result{
		StrongTrend:       in.StrongTrend.Present(),
		PullbackConfirmed: in.PullbackConfirmed,
	}

	ref := in.StructureLevel
	res.ReferenceSource = SourceStructure
	if in.Impulse != nil && in.StructureLevel != nil && in.Impulse.Direction == in.Direction {
		anchor := in.Impulse.Anchor
		ref = &anchor
		res.ImpulseAnchor = &anchor
		res.ReferenceSource = SourceImpulse
	}
	if res.StrongTrend && in.PullbackConfirmed && in.StrongTrend.Pivot != nil {
		pivot := *in.StrongTrend.Pivot
		ref = &pivot
		res.ReferenceSource = SourcePivot
		res.PivotUsed = true
	}

	if ref == nil {
		res.ReferenceSource = SourceNone
		return res
	}
	res.Reference = ref
	res.Distance = math.Abs(in.Price - *ref)
	maxDistance := in.ATR * g.params.BlockATRMult

	if res.ImpulseAnchor != nil && in.TimingReady &&
		(in.SetupType == analysis.BreakoutRetest || in.SetupType == analysis.PullbackSR) {
		toAnchor := math.Abs(in.Price - *res.ImpulseAnchor)
		if toAnchor <= in.ATR*g.params.RetestTolATR {
			res.RetestException = true
			res.Reason = fmt.Sprintf("Retest confirmé (dist ancre %.1f pts <= ATR*%.2f)", toAnchor, g.params.RetestTolATR)
			return res
		}
	}

	if res.Distance <= maxDistance {
		return res
	}
	if res.StrongTrend && in.PullbackConfirmed {
		res.Reason = fmt.Sprintf("Continuation tendance forte (ref %.2f, dist %.1f pts)", *ref, res.Distance)
		return res
	}
	res.Blocked = true
	res.Reason = fmt.Sprintf("Extension (%.1f pts > ATR*%.2f)", res.Distance, g.params.BlockATRMult)
	return res
}
