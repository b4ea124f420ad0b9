// Package setup composes a concrete trade proposal (entry, stop, two targets)
// from market structure and entry timing.
package setup

import (
	"math"
	"time"

	"github.com/creasty/defaults"

	"gold-scalper/internal/analysis"
	"gold-scalper/internal/analysis/indicators"
	"gold-scalper/internal/analysis/structure"
	"gold-scalper/internal/analysis/timing"
	apperrors "gold-scalper/internal/errors"
	"gold-scalper/internal/models"
)

// Params configures stop and target placement. Distances are in price points.
type Params struct {
	ATRPeriod        int     `mapstructure:"atr_period" default:"14"`
	SLMinPts         float64 `mapstructure:"sl_min_pts" default:"20" validate:"gt=0"`
	SLMaxPts         float64 `mapstructure:"sl_max_pts" default:"25" validate:"gtefield=SLMinPts"`
	TP1MinPts        float64 `mapstructure:"tp1_min_pts" default:"10" validate:"gt=0"`
	TP1MaxPts        float64 `mapstructure:"tp1_max_pts" default:"20" validate:"gtefield=TP1MinPts"`
	RRMinTP1         float64 `mapstructure:"rr_min_tp1" default:"0.5" validate:"gt=0"`
	TP2Mult          float64 `mapstructure:"tp2_mult" default:"2"`
	TP2MaxBonusPts   float64 `mapstructure:"tp2_max_bonus_pts" default:"60"`
	TP2MinStepPts    float64 `mapstructure:"tp2_min_step_pts" default:"5" validate:"gt=0"`
	ATRMarginMult    float64 `mapstructure:"atr_margin_mult" default:"0.5"`
	AnchorMaxDist    float64 `mapstructure:"anchor_max_dist_pts" default:"30"`
	BufferMinPts     float64 `mapstructure:"buffer_min_pts" default:"2"`
	BufferRangePct   float64 `mapstructure:"buffer_range_pct" default:"0.02"`
	BufferFallback   float64 `mapstructure:"buffer_fallback_pts" default:"5"`
	DirectionBandPct float64 `mapstructure:"direction_band_pct" default:"0.001"`
	Scalp            bool    `mapstructure:"scalp_mode" default:"true"`
}

// DefaultParams returns the production defaults.
func DefaultParams() Params {
	var p Params
	_ = defaults.Set(&p)
	return p
}

// Input carries the candle series of one cycle.
type Input struct {
	Signal  []models.Candle // M15
	Context []models.Candle // H1, optional
	Confirm []models.Candle // M5, optional
	Price   *float64
}

// Proposal is a concrete trade idea. For BUY stop < entry < tp1 < tp2, for
// SELL the mirror; the risk and tp1 distances lie in their configured bands.
type Proposal struct {
	Direction    models.Direction
	Entry        float64
	StopLoss     float64
	TP1          float64
	TP2          float64
	RRTP1        float64
	RRTP2        float64
	NominalEntry float64
	SetupType    analysis.SetupType
	TimingReady  bool
	Reason       string
	Setups       []string
	ATR          float64
	Buffer       float64
	Favourable   bool
	Reanchored   bool
	BarTime      *time.Time

	StructureH1  analysis.StructureLabel
	StructureM15 *structure.Result
	Timing       timing.Result
	SwingLow     float64
	SwingHigh    float64
}

// Risk returns |entry - stop|.
func (p *Proposal) Risk() float64 {
	return math.Abs(p.Entry - p.StopLoss)
}

// Composer builds proposals.
type Composer struct {
	params   Params
	analyzer *structure.Analyzer
	timing   *timing.Evaluator
}

// NewComposer creates a composer.
func NewComposer(params Params, analyzer *structure.Analyzer, evaluator *timing.Evaluator) *Composer {
	return &Composer{params: params, analyzer: analyzer, timing: evaluator}
}

// Params returns the placement parameters.
func (c *Composer) Params() Params {
	return c.params
}

// InferDirection takes the H1 structure when it is directional; in a range
// it compares the mean of the last five closes with the five before.
func InferDirection(label analysis.StructureLabel, candles []models.Candle, band float64) models.Direction {
	switch label {
	case analysis.Bullish:
		return models.Buy
	case analysis.Bearish:
		return models.Sell
	}

	closes := models.Closes(candles)
	if len(closes) < 5 {
		return models.Buy
	}
	recent := closes[len(closes)-5:]
	var older []float64
	if len(closes) >= 10 {
		older = closes[len(closes)-10 : len(closes)-5]
	} else {
		older = closes[:len(closes)-5]
	}
	if len(older) == 0 {
		return models.Buy
	}

	avgRecent, avgOlder := indicators.Mean(recent), indicators.Mean(older)
	switch {
	case avgRecent > avgOlder*(1+band):
		return models.Buy
	case avgRecent < avgOlder*(1-band):
		return models.Sell
	default:
		return models.Buy
	}
}

// Compose builds the proposal for the current cycle.
func (c *Composer) Compose(in Input) (*Proposal, error) {
	if len(in.Signal) == 0 {
		return nil, apperrors.ErrInsufficientCandles
	}

	p := &Proposal{}
	atr := indicators.ATRWithFallback(in.Signal, c.params.ATRPeriod)
	m15 := c.analyzer.Analyze(in.Signal)
	h1 := m15
	if len(in.Context) > 0 {
		h1 = c.analyzer.Analyze(in.Context)
	}

	last := in.Signal[len(in.Signal)-1]
	lastClose := last.Close
	barTime := last.Timestamp
	if !barTime.IsZero() {
		p.BarTime = &barTime
	}

	dir := InferDirection(h1.Label, in.Signal, c.params.DirectionBandPct)
	swingLow, swingHigh := c.swings(m15, in.Signal, lastClose)
	buffer := c.params.BufferFallback
	if swingHigh > swingLow {
		buffer = math.Max(c.params.BufferMinPts, (swingHigh-swingLow)*c.params.BufferRangePct)
	}
	favourable := h1.Label != analysis.Range

	var level, entryStructure, stopRaw float64
	if dir == models.Buy {
		level = swingLow
		entryStructure = level + buffer
	} else {
		level = swingHigh
		entryStructure = level - buffer
	}

	entry := lastClose
	if math.Abs(lastClose-entryStructure) < c.params.AnchorMaxDist {
		entry = entryStructure
	}
	entry = models.Round2(entry)

	margin := atr * c.params.ATRMarginMult
	if dir == models.Buy {
		stopRaw = math.Min(level-buffer-margin, entry-c.params.SLMinPts)
	} else {
		stopRaw = math.Max(level+buffer+margin, entry+c.params.SLMinPts)
	}
	c.place(p, dir, entry, math.Abs(entry-stopRaw), favourable)
	p.NominalEntry = entry

	tr := c.timing.Evaluate(timing.Input{
		Candles:   in.Signal,
		Confirm:   in.Confirm,
		Direction: dir,
		Entry:     entry,
		SwingLow:  m15.LastSwingLow,
		SwingHigh: m15.LastSwingHigh,
		Price:     in.Price,
		ATR:       atr,
	})

	if in.Price != nil && (c.params.Scalp || (tr.Ready && tr.Contains(*in.Price))) {
		live := models.Round2(*in.Price)
		c.place(p, dir, live, math.Abs(live-p.StopLoss), favourable)
		p.Reanchored = true
	}

	setups := []string{string(tr.SetupType)}
	if h1.Label != analysis.Range {
		setups = append(setups, "Structure H1 "+string(h1.Label))
	}
	if m15.HasLevels() {
		setups = append(setups, "S/R détectés")
	}

	p.Direction = dir
	p.SetupType = tr.SetupType
	p.TimingReady = tr.Ready
	p.Reason = tr.Reason
	p.Setups = setups
	p.ATR = atr
	p.Buffer = buffer
	p.Favourable = favourable
	p.StructureH1 = h1.Label
	p.StructureM15 = m15
	p.Timing = tr
	p.SwingLow = swingLow
	p.SwingHigh = swingHigh
	return p, nil
}

// place fills stop, targets and ratios around entry with the risk clamped
// into [SLMinPts, SLMaxPts].
func (c *Composer) place(p *Proposal, dir models.Direction, entry, riskRaw float64, favourable bool) {
	risk := models.Round2(indicators.Clamp(riskRaw, c.params.SLMinPts, c.params.SLMaxPts))
	reward1 := models.Round2(indicators.Clamp(risk*c.params.RRMinTP1, c.params.TP1MinPts, c.params.TP1MaxPts))
	reward2 := c.reward2(reward1, favourable)

	sign := dir.Sign()
	p.Entry = entry
	p.StopLoss = models.Round2(entry - sign*risk)
	p.TP1 = models.Round2(entry + sign*reward1)
	p.TP2 = models.Round2(entry + sign*reward2)

	actual := math.Abs(p.Entry - p.StopLoss)
	if actual > 0.01 {
		p.RRTP1 = math.Abs(p.TP1-p.Entry) / actual
		p.RRTP2 = math.Abs(p.TP2-p.Entry) / actual
	} else {
		p.RRTP1, p.RRTP2 = 0, 0
	}
}

// reward2 is a multiple of reward1 capped by the bonus limit; it always ends
// strictly beyond reward1, by at least the minimum step when the context is
// not favourable.
func (c *Composer) reward2(reward1 float64, favourable bool) float64 {
	capped := math.Min(c.params.TP2MaxBonusPts, reward1*c.params.TP2Mult)
	var bonus float64
	if favourable {
		bonus = math.Max(reward1, capped)
	} else {
		bonus = math.Max(reward1+c.params.TP2MinStepPts, capped)
	}
	if bonus <= reward1 {
		bonus = reward1 + c.params.TP2MinStepPts
	}
	return models.Round2(bonus)
}

func (c *Composer) swings(m15 *structure.Result, candles []models.Candle, lastClose float64) (low, high float64) {
	switch {
	case m15.LastSwingLow != nil:
		low = *m15.LastSwingLow
	case len(candles) >= 5:
		low = indicators.MinOf(models.Lows(models.Last(candles, 5)))
	default:
		low = lastClose - 20
	}
	switch {
	case m15.LastSwingHigh != nil:
		high = *m15.LastSwingHigh
	case len(candles) >= 5:
		high = indicators.MaxOf(models.Highs(models.Last(candles, 5)))
	default:
		high = lastClose + 20
	}
	return low, high
}
