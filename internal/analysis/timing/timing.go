// Package timing decides whether the current moment is a good entry: price
// inside an entry zone around the nominal entry plus a confirmation.
package timing

import (
	"fmt"
	"slices"

	"github.com/creasty/defaults"

	"gold-scalper/internal/analysis"
	"gold-scalper/internal/analysis/indicators"
	"gold-scalper/internal/analysis/patterns"
	"gold-scalper/internal/models"
)

// Mode selects the confirmation rule set.
type Mode string

const (
	// ModeClassic confirms on primary or secondary rejection candles.
	ModeClassic Mode = "classic"
	// ModePullbackM5 additionally requires price inside the retracement band
	// of the last large candle with a secondary rejection in that band.
	ModePullbackM5 Mode = "pullback_m5"
)

// ReasonPullbackRejection tags a confirmation obtained in pullback mode.
const ReasonPullbackRejection = "PULLBACK_REJECTION_M5"

// Params configures the evaluator.
type Params struct {
	ZoneATRMult     float64 `mapstructure:"zone_atr_mult" default:"0.5"`
	ZoneMinPts      float64 `mapstructure:"zone_min_pts" default:"5"`
	ZoneMaxPts      float64 `mapstructure:"zone_max_pts" default:"15"`
	ZoneFallbackPts float64 `mapstructure:"zone_pts" default:"15"`

	ConfirmLookback int `mapstructure:"confirm_lookback" default:"3"`
	MinConfirmBars  int `mapstructure:"min_confirm_bars" default:"1"`
	M5Lookback      int `mapstructure:"m5_lookback" default:"3"`
	M5MinRejections int `mapstructure:"m5_min_rejections" default:"1"`

	Mode                  Mode                 `mapstructure:"mode" default:"classic"`
	PullbackMinRatio      float64              `mapstructure:"pullback_min_ratio" default:"0.30"`
	PullbackMaxRatio      float64              `mapstructure:"pullback_max_ratio" default:"0.50"`
	LargeCandleATRMult    float64              `mapstructure:"large_candle_atr_mult" default:"1.5"`
	LargeCandleLookback   int                  `mapstructure:"large_candle_lookback" default:"20"`
	PullbackRequireSetups []analysis.SetupType `mapstructure:"pullback_require_setups" default:"[\"BREAKOUT_RETEST\",\"PULLBACK_SR\"]"`
}

// DefaultParams returns the production defaults.
func DefaultParams() Params {
	var p Params
	_ = defaults.Set(&p)
	return p
}

// Input is everything one evaluation needs.
type Input struct {
	Candles   []models.Candle // primary timeframe
	Confirm   []models.Candle // optional finer timeframe
	Direction models.Direction
	Entry     float64
	SwingLow  *float64
	SwingHigh *float64
	Price     *float64 // live price; the last close is used when nil
	ATR       float64
}

// Band is a price interval.
type Band struct {
	Low  float64
	High float64
}

// Contains reports whether p lies inside the band.
func (b Band) Contains(p float64) bool {
	return p >= b.Low && p <= b.High
}

// Result is the outcome of one evaluation. Ready=false is a normal outcome.
type Result struct {
	SetupType         analysis.SetupType
	Zone              float64
	ZoneLow           float64
	ZoneHigh          float64
	Ready             bool
	Reason            string
	PrimaryRejections int
	ConfirmRejections int
	M5Confirmed       bool
	PullbackBand      *Band
	InZone            bool
}

// Contains reports whether p is inside the entry zone.
func (r Result) Contains(p float64) bool {
	return p >= r.ZoneLow && p <= r.ZoneHigh
}

// Evaluator is the entry timing evaluator.
type Evaluator struct {
	params   Params
	detector *patterns.CandlestickDetector
}

// NewEvaluator creates an evaluator.
func NewEvaluator(params Params) *Evaluator {
	return &Evaluator{params: params, detector: patterns.NewCandlestickDetector()}
}

// ZoneWidth returns the half-width of the entry zone for a given ATR.
func (e *Evaluator) ZoneWidth(atr float64) float64 {
	if atr <= 0 {
		return e.params.ZoneFallbackPts
	}
	return indicators.Clamp(atr*e.params.ZoneATRMult, e.params.ZoneMinPts, e.params.ZoneMaxPts)
}

// Classify tags the setup. BREAKOUT_RETEST when the close already cleared the
// opposing swing by more than the zone, PULLBACK_SR when a swing anchors the
// entry, ZONE_CONFIRMATION otherwise.
func Classify(dir models.Direction, lastClose, zone float64, swingLow, swingHigh *float64) analysis.SetupType {
	if dir == models.Sell {
		if swingHigh == nil {
			return analysis.ZoneConfirmation
		}
		if lastClose < *swingHigh-zone {
			return analysis.BreakoutRetest
		}
		return analysis.PullbackSR
	}
	if swingLow == nil {
		return analysis.ZoneConfirmation
	}
	if lastClose > *swingLow+zone {
		return analysis.BreakoutRetest
	}
	return analysis.PullbackSR
}

// Evaluate runs the evaluator.
func (e *Evaluator) Evaluate(in Input) Result {
	zone := e.ZoneWidth(in.ATR)
	res := Result{
		SetupType: analysis.ZoneConfirmation,
		Zone:      zone,
		ZoneLow:   in.Entry - zone,
		ZoneHigh:  in.Entry + zone,
	}
	if len(in.Candles) == 0 {
		res.Reason = "Pas de données"
		return res
	}

	lastClose := in.Candles[len(in.Candles)-1].Close
	ref := lastClose
	if in.Price != nil {
		ref = *in.Price
	}

	res.SetupType = Classify(in.Direction, lastClose, zone, in.SwingLow, in.SwingHigh)
	res.InZone = res.Contains(ref)
	res.PrimaryRejections = e.detector.CountRejections(in.Candles, in.Direction, e.params.ConfirmLookback)
	res.ConfirmRejections = e.detector.CountRejections(in.Confirm, in.Direction, e.params.M5Lookback)
	res.M5Confirmed = len(in.Confirm) > 0 && res.ConfirmRejections >= e.params.M5MinRejections

	if !res.InZone {
		if res.SetupType == analysis.BreakoutRetest {
			res.Reason = "En attente du pullback"
		} else {
			res.Reason = fmt.Sprintf("Prix hors zone d'entrée (%.2f-%.2f)", res.ZoneLow, res.ZoneHigh)
		}
		return res
	}

	if e.params.Mode == ModePullbackM5 && slices.Contains(e.params.PullbackRequireSetups, res.SetupType) {
		return e.evaluatePullback(in, ref, res)
	}

	switch {
	case res.PrimaryRejections >= e.params.MinConfirmBars && res.PrimaryRejections > 0:
		res.Ready = true
		if res.SetupType == analysis.BreakoutRetest {
			res.Reason = "Pullback + " + rejectionLabel(in.Direction)
		} else {
			res.Reason = fmt.Sprintf("Rejet S/R x%d", res.PrimaryRejections)
		}
	case res.M5Confirmed:
		res.Ready = true
		res.Reason = fmt.Sprintf("Prix dans zone + rejet M5 x%d", res.ConfirmRejections)
	default:
		res.Reason = "Prix dans zone, en attente d'une bougie de rejet"
	}
	return res
}

func (e *Evaluator) evaluatePullback(in Input, ref float64, res Result) Result {
	band, ok := e.PullbackBand(in.Candles, in.Direction, in.ATR)
	if !ok {
		res.Reason = "Pas de bougie d'impulsion récente pour mesurer le pullback"
		return res
	}
	res.PullbackBand = &band

	if !band.Contains(ref) {
		res.Reason = fmt.Sprintf("Prix hors bande de pullback %.0f-%.0f%% (%.2f-%.2f)",
			e.params.PullbackMinRatio*100, e.params.PullbackMaxRatio*100, band.Low, band.High)
		return res
	}

	inBand := 0
	for _, c := range models.Last(in.Confirm, e.params.M5Lookback) {
		if !e.detector.IsRejection(c, in.Direction) {
			continue
		}
		extreme := c.Low
		if in.Direction == models.Sell {
			extreme = c.High
		}
		if band.Contains(extreme) {
			inBand++
		}
	}
	res.M5Confirmed = inBand >= max(1, e.params.M5MinRejections)
	if !res.M5Confirmed {
		res.Reason = "Prix dans la bande de pullback, en attente d'un rejet M5"
		return res
	}

	res.Ready = true
	res.Reason = fmt.Sprintf("%s (bande %.2f-%.2f)", ReasonPullbackRejection, band.Low, band.High)
	return res
}

// PullbackBand returns the retracement band of the most recent large candle
// (range ≥ ATR × LargeCandleATRMult) within the lookback. For BUY the band is
// measured down from the candle high, for SELL up from its low.
func (e *Evaluator) PullbackBand(candles []models.Candle, dir models.Direction, atr float64) (Band, bool) {
	if atr <= 0 {
		atr = indicators.ATRWithFallback(candles, 14)
	}
	threshold := atr * e.params.LargeCandleATRMult
	window := models.Last(candles, e.params.LargeCandleLookback)

	for i := len(window) - 1; i >= 0; i-- {
		c := window[i]
		r := c.Range()
		if r <= 0 || r < threshold {
			continue
		}
		if dir == models.Sell {
			return Band{Low: c.Low + r*e.params.PullbackMinRatio, High: c.Low + r*e.params.PullbackMaxRatio}, true
		}
		return Band{Low: c.High - r*e.params.PullbackMaxRatio, High: c.High - r*e.params.PullbackMinRatio}, true
	}
	return Band{}, false
}

func rejectionLabel(dir models.Direction) string {
	if dir == models.Sell {
		return "rejet baissier"
	}
	return "rejet haussier"
}
