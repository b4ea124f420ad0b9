package trading

import (
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/creasty/defaults"

	"gold-scalper/internal/analysis"
	"gold-scalper/internal/analysis/indicators"
	"gold-scalper/internal/analysis/patterns"
	"gold-scalper/internal/analysis/structure"
	"gold-scalper/internal/models"
)

// SuiviParams configures the trade lifecycle monitor.
type SuiviParams struct {
	BEEnabled            bool    `mapstructure:"be_enabled" default:"true"`
	BEOffsetPts          float64 `mapstructure:"be_offset_pts" validate:"gte=0"`
	TP1PartialPct        float64 `mapstructure:"tp1_partial_pct" default:"0.5" validate:"gte=0,lte=1"`
	SRBufferPts          float64 `mapstructure:"sr_buffer_pts" default:"25" validate:"gte=0"`
	MinGainForBE         float64 `mapstructure:"min_gain_for_be_pts" default:"5" validate:"gte=0"`
	AlertCooldownMinutes int     `mapstructure:"alert_cooldown_minutes" default:"15" validate:"gte=0"`
	StagnationBars       int     `mapstructure:"stagnation_bars" default:"4" validate:"gte=2"`
	StagnationATRMult    float64 `mapstructure:"stagnation_atr_mult" default:"0.5" validate:"gt=0"`
	NewsHorizonMinutes   int     `mapstructure:"news_horizon_minutes" default:"30" validate:"gte=0"`
	AutoApplyBE          bool    `mapstructure:"auto_apply_be"`
	ClosePartial         bool    `mapstructure:"close_partial"`
}

// DefaultSuiviParams returns the production defaults.
func DefaultSuiviParams() SuiviParams {
	var p SuiviParams
	_ = defaults.Set(&p)
	return p
}

// AlertCooldown returns the minimum spacing between two ALERTE messages.
func (p SuiviParams) AlertCooldown() time.Duration {
	return time.Duration(p.AlertCooldownMinutes) * time.Minute
}

// SuiviStatus is the verdict of one monitoring cycle.
type SuiviStatus string

const (
	SuiviHold      SuiviStatus = "MAINTIEN"
	SuiviAlert     SuiviStatus = "ALERTE"
	SuiviBreakeven SuiviStatus = "TP1_BE"
	SuiviExit      SuiviStatus = "SORTIE"
)

// Exit reasons recorded in the outcome log.
const (
	ExitStop          = "SL"
	ExitStopBreakeven = "SL_BE"
	ExitTP1           = "TP1"
	ExitTP2           = "TP2"
)

// SuiviInput is one snapshot of the active trade and the market.
type SuiviInput struct {
	Trade   models.ActiveTrade
	Price   float64
	Candles []models.Candle
	H1      analysis.StructureLabel
	News    models.NewsState
	Now     time.Time
}

// SuiviResult is the verdict. Exactly one of the exit, breakeven and hold
// shapes is filled.
type SuiviResult struct {
	Status        SuiviStatus
	Message       string
	Closed        bool
	Outcome       *float64
	ExitPrice     float64
	ExitReason    string
	NewStop       *float64
	PartialPoints *float64
	Alerts        []string
	NewsAlert     bool
	Invalidated   bool
	Signature     string
	Gain          float64
}

// Suivi evaluates an active trade. It has no side effects; Monitor applies
// them.
type Suivi struct {
	params   SuiviParams
	analyzer *structure.Analyzer
	candles  *patterns.CandlestickDetector
}

// NewSuivi creates an evaluator.
func NewSuivi(params SuiviParams) *Suivi {
	return &Suivi{
		params:   params,
		analyzer: structure.NewAnalyzer(),
		candles:  patterns.NewCandlestickDetector(),
	}
}

// Params returns the monitor parameters.
func (s *Suivi) Params() SuiviParams {
	return s.params
}

type probe struct {
	high, low, price float64
}

// Evaluate runs exit detection first (completed candle, then live price),
// then invalidation, alerts and hold. A stop touched in the same probe as a
// target wins.
func (s *Suivi) Evaluate(in SuiviInput) SuiviResult {
	t := in.Trade
	for _, p := range s.probes(in) {
		if res, ok := s.checkExit(t, p); ok {
			return res
		}
	}

	gain := models.Round2(t.Direction.Sign() * (in.Price - t.Entry))
	res := SuiviResult{Status: SuiviHold, Gain: gain}

	if s.invalidated(t, in) {
		res.Status = SuiviAlert
		res.Invalidated = true
		res.Alerts = []string{"invalidation"}
		res.Message = s.invalidationMessage(t, in)
		return res
	}

	alerts := s.marketAlerts(t, in)
	if len(alerts) > 0 {
		res.Status = SuiviAlert
		res.Alerts = alerts
		res.Message = s.alertMessage(t, in.Price, gain)
		return res
	}
	if s.newsImminent(in.News) {
		res.Status = SuiviAlert
		res.NewsAlert = true
		res.Alerts = []string{"news"}
		res.Message = fmt.Sprintf("⚠️ ALERTE — News HIGH imminente\n\nPrix: %.2f | SL: %.2f | TP1: %.2f\nSécurisation conseillée (BE / partiel).",
			in.Price, t.StopLoss, t.TP1)
		return res
	}

	res.Signature = s.signature(t, in.H1, gain)
	res.Message = holdMessage(t, in.Price)
	return res
}

// probes returns the last completed candle opened at or after the trade
// start (or the breakeven move) minus one minute, then the live price.
func (s *Suivi) probes(in SuiviInput) []probe {
	since := in.Trade.StartedAt
	if in.Trade.BEApplied && in.Trade.BEAppliedAt != nil {
		since = *in.Trade.BEAppliedAt
	}
	since = since.Add(-time.Minute)

	out := make([]probe, 0, 2)
	if n := len(in.Candles); n > 0 {
		last := in.Candles[n-1]
		if !last.Timestamp.Before(since) {
			out = append(out, probe{high: last.High, low: last.Low, price: last.Close})
		}
	}
	if in.Price > 0 {
		out = append(out, probe{high: in.Price, low: in.Price, price: in.Price})
	}
	return out
}

func (s *Suivi) checkExit(t models.ActiveTrade, p probe) (SuiviResult, bool) {
	sign := t.Direction.Sign()
	var stopHit, tp1Hit, tp2Hit bool
	if t.Direction == models.Sell {
		stopHit = p.high >= t.StopLoss
		tp1Hit = p.low <= t.TP1
		tp2Hit = t.TP2 > 0 && p.low <= t.TP2
	} else {
		stopHit = p.low <= t.StopLoss
		tp1Hit = p.high >= t.TP1
		tp2Hit = t.TP2 > 0 && p.high >= t.TP2
	}
	partialPct := s.params.TP1PartialPct

	switch {
	case stopHit:
		if t.BEApplied {
			outcome := models.Round2(t.TP1PartialPoints + (1-partialPct)*sign*(t.StopLoss-t.Entry))
			return exitResult(ExitStopBreakeven, t.StopLoss, outcome, fmt.Sprintf(
				"🛡️ Stop break-even touché\n\n📊 Résultat du trade: %+.1f point (partiel TP1 sécurisé)\n\nPrix: %.2f | SL: %.2f\nTrade clôturé sans perte. Prochaine opportunité.",
				outcome, p.price, t.StopLoss)), true
		}
		outcome := models.Round2(-math.Abs(t.Entry - t.StopLoss))
		return exitResult(ExitStop, t.StopLoss, outcome, fmt.Sprintf(
			"😔 SL touché — trade raté\n\n📊 Résultat du trade: PERTE — %.1f point\n\nPrix: %.2f | SL: %.2f\nOn va récupérer dans la journée, on va faire mieux !\nTrade clôturé. Prochaine opportunité.",
			math.Abs(outcome), p.price, t.StopLoss)), true

	case t.BEApplied && tp2Hit:
		outcome := models.Round2(t.TP1PartialPoints + (1-partialPct)*math.Abs(t.TP2-t.Entry))
		return exitResult(ExitTP2, t.TP2, outcome, fmt.Sprintf(
			"🎉 Bravo ! TP2 atteint\n\n📊 Résultat du trade: PROFIT +%.1f point\n\nPrix: %.2f | TP2: %.2f\nTrade réussi, objectif bonus. À la prochaine !",
			outcome, p.price, t.TP2)), true

	case !t.BEApplied && tp1Hit:
		tp1Pts := math.Abs(t.TP1 - t.Entry)
		if !s.params.BEEnabled {
			outcome := models.Round2(sign * (t.TP1 - t.Entry))
			return exitResult(ExitTP1, t.TP1, outcome, fmt.Sprintf(
				"🎉 Bravo ! TP1 atteint\n\n📊 Résultat du trade: PROFIT +%.1f point\n\nPrix: %.2f | TP1: %.2f\nObjectif principal atteint. À la prochaine !",
				outcome, p.price, t.TP1)), true
		}
		newStop := models.Round2(t.Entry + sign*s.params.BEOffsetPts)
		partial := models.Round2(tp1Pts * partialPct)
		return SuiviResult{
			Status:        SuiviBreakeven,
			NewStop:       &newStop,
			PartialPoints: &partial,
			Gain:          models.Round2(tp1Pts),
			Message: fmt.Sprintf(
				"🎉 Bravo ! TP1 atteint — passage Break-even\n\n📊 Gain TP1: +%.1f point\n\nPrix: %.2f | Entrée: %.2f\n🛡️ Break-even: SL déplacé à %.2f\n🎯 TP2: %.2f — on laisse courir le reste (%.0f%%).",
				tp1Pts, p.price, t.Entry, newStop, t.TP2, (1-partialPct)*100),
		}, true
	}
	return SuiviResult{}, false
}

func exitResult(reason string, exit, outcome float64, msg string) SuiviResult {
	return SuiviResult{
		Status:     SuiviExit,
		Closed:     true,
		Outcome:    &outcome,
		ExitPrice:  exit,
		ExitReason: reason,
		Message:    msg,
	}
}

// invalidated reports a close through the stored invalidation level plus
// its buffer against the trade.
func (s *Suivi) invalidated(t models.ActiveTrade, in SuiviInput) bool {
	if t.InvalidLevel == nil {
		return false
	}
	closePrice := in.Price
	if n := len(in.Candles); n > 0 {
		closePrice = in.Candles[n-1].Close
	}
	if t.Direction == models.Sell {
		return closePrice > *t.InvalidLevel+t.InvalidBuffer
	}
	return closePrice < *t.InvalidLevel-t.InvalidBuffer
}

func (s *Suivi) invalidationMessage(t models.ActiveTrade, in SuiviInput) string {
	side := "sous"
	if t.Direction == models.Sell {
		side = "au-dessus de"
	}
	return fmt.Sprintf("⚠️ ALERTE — Invalidation du setup\n\nClôture %s %.2f (buffer %.1f)\nPrix: %.2f | Entrée: %.2f | SL: %.2f\nLe scénario d'entrée n'est plus valide, envisager une sortie.",
		side, *t.InvalidLevel, t.InvalidBuffer, in.Price, t.Entry, t.StopLoss)
}

// marketAlerts lists the conditions that warrant attention, in a stable
// order.
func (s *Suivi) marketAlerts(t models.ActiveTrade, in SuiviInput) []string {
	var alerts []string
	dir := t.Direction
	st := s.analyzer.Analyze(in.Candles)

	if s.adverseLevelNear(dir, in.Price, st.Levels) {
		alerts = append(alerts, "sr_proche")
	}
	if dir == models.Buy && st.LastSwingLow != nil && in.Price < *st.LastSwingLow {
		alerts = append(alerts, "structure_cassee")
	}
	if dir == models.Sell && st.LastSwingHigh != nil && in.Price > *st.LastSwingHigh {
		alerts = append(alerts, "structure_cassee")
	}
	if s.candles.PinBarAgainst(in.Candles, dir, 3) {
		alerts = append(alerts, "pin_bar_contraire")
	}
	if patterns.EngulfingAgainst(in.Candles, dir) {
		alerts = append(alerts, "engulfing_contraire")
	}
	if s.stagnating(in.Candles) && s.nearKeyZone(in.Price, st.Levels) {
		alerts = append(alerts, "stagnation_zone")
	}
	if in.H1.Against(dir) {
		alerts = append(alerts, "h1_contre")
	}
	return alerts
}

// adverseLevelNear reports a resistance above a BUY (support below a SELL)
// within the S/R buffer.
func (s *Suivi) adverseLevelNear(dir models.Direction, price float64, levels []float64) bool {
	for _, lvl := range levels {
		d := dir.Sign() * (lvl - price)
		if d > 0 && d <= s.params.SRBufferPts {
			return true
		}
	}
	return false
}

func (s *Suivi) nearKeyZone(price float64, levels []float64) bool {
	for _, lvl := range levels {
		if math.Abs(lvl-price) <= s.params.SRBufferPts {
			return true
		}
	}
	return false
}

func (s *Suivi) stagnating(candles []models.Candle) bool {
	n := s.params.StagnationBars
	if len(candles) < n {
		return false
	}
	last := models.Last(candles, n)
	span := indicators.MaxOf(models.Highs(last)) - indicators.MinOf(models.Lows(last))
	atr := indicators.ATRWithFallback(candles, 14)
	return atr > 0 && span < atr*s.params.StagnationATRMult
}

// newsImminent reports a HIGH impact event within the horizon, or an active
// lock when the provider gave no countdown.
func (s *Suivi) newsImminent(ns models.NewsState) bool {
	if ns.MinutesToEvent == nil {
		return ns.LockActive
	}
	if ns.NextEvent == nil || !strings.EqualFold(ns.NextEvent.Impact, "HIGH") {
		return false
	}
	m := *ns.MinutesToEvent
	return m > 0 && m <= s.params.NewsHorizonMinutes
}

func (s *Suivi) alertMessage(t models.ActiveTrade, price, gain float64) string {
	if gain < s.params.MinGainForBE {
		return fmt.Sprintf("⚠️ ALERTE — Mur / faiblesse proche\n\nPrix: %.2f | Entrée: %.2f | SL: %.2f | TP1: %.2f\nSurveiller le trade, zone sensible, mais pas encore de marge pour passer BE.",
			price, t.Entry, t.StopLoss, t.TP1)
	}
	return fmt.Sprintf("⚠️ ALERTE — Attention mur / faiblesse\n\nPrix: %.2f | Entrée: %.2f | SL: %.2f | TP1: %.2f\nGain actuel ≈ %.1f pts — sécurisation conseillée (BE / partiel).",
		price, t.Entry, t.StopLoss, t.TP1, gain)
}

// signature identifies the hold situation so the same one is announced once.
func (s *Suivi) signature(t models.ActiveTrade, h1 analysis.StructureLabel, gain float64) string {
	side := "neg"
	if gain >= 0 {
		side = "pos"
	}
	return fmt.Sprintf("%s|%s|be=%t|sl=%.2f|%s", t.Direction, h1, t.BEApplied, t.StopLoss, side)
}

func holdMessage(t models.ActiveTrade, price float64) string {
	prefix := "🛫🟦 MAINTIEN BUY"
	if t.Direction == models.Sell {
		prefix = "📉🟥 MAINTIEN SELL"
	}
	return fmt.Sprintf("%s\n\nPrix: %.2f | Entrée: %.2f\nSL: %.2f | TP1: %.2f | TP2: %.2f\nPlan inchangé, structure OK, pas de mur proche, objectif TP maintenu.",
		prefix, price, t.Entry, t.StopLoss, t.TP1, t.TP2)
}
