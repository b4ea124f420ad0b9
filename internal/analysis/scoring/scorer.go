// Package scoring provides the three-block rule score (structural edge,
// entry quality, risk and execution) behind every decision.
package scoring

import (
	"fmt"
	"math"
	"strings"

	"github.com/creasty/defaults"

	"gold-scalper/internal/analysis"
	"gold-scalper/internal/analysis/confluence"
	"gold-scalper/internal/models"
)

// Points is the configurable point table.
type Points struct {
	PhaseAligned   int `mapstructure:"phase_aligned" default:"10"`
	PhaseUnknown   int `mapstructure:"phase_unknown" default:"5"`
	H1Clear        int `mapstructure:"h1_clear" default:"10"`
	Breakout       int `mapstructure:"breakout" default:"8"`
	Room           int `mapstructure:"room" default:"6"`
	Momentum       int `mapstructure:"momentum" default:"4"`
	FiboMax        int `mapstructure:"fibo_max" default:"3"`
	RangeRejection int `mapstructure:"range_rejection" default:"10"`
	RangeSweep     int `mapstructure:"range_sweep" default:"8"`
	RangeBreak     int `mapstructure:"range_break" default:"8"`
	RangeVolume    int `mapstructure:"range_volume" default:"6"`
	RangeBreakout  int `mapstructure:"range_breakout" default:"4"`
	RangeRoom      int `mapstructure:"range_room" default:"4"`
	PullbackRatio  int `mapstructure:"pullback_ratio" default:"10"`
	M5Rejection    int `mapstructure:"m5_rejection" default:"8"`
	TimingReady    int `mapstructure:"timing_ready" default:"6"`
	NoExtension    int `mapstructure:"no_extension" default:"6"`
	RR             int `mapstructure:"rr" default:"10"`
	Spread         int `mapstructure:"spread" default:"6"`
	ATR            int `mapstructure:"atr" default:"6"`
	StopBand       int `mapstructure:"stop_band" default:"8"`

	EdgeCap              int `mapstructure:"edge_cap" default:"40"`
	ConsolidationEdgeCap int `mapstructure:"consolidation_edge_cap" default:"25"`
	EntryCap             int `mapstructure:"entry_cap" default:"30"`
	RiskCap              int `mapstructure:"risk_cap" default:"30"`
	CriticalEdge         int `mapstructure:"critical_edge" default:"28"`
	CriticalCap          int `mapstructure:"critical_cap" default:"85"`

	TrendPullbackMin      float64 `mapstructure:"trend_pullback_min" default:"0.30"`
	TrendPullbackMax      float64 `mapstructure:"trend_pullback_max" default:"0.50"`
	RangePullbackMin      float64 `mapstructure:"range_pullback_min" default:"0.20"`
	RangePullbackMax      float64 `mapstructure:"range_pullback_max" default:"0.70"`
	ExtensionOKATR        float64 `mapstructure:"extension_ok_atr" default:"0.8"`
	ExtensionExcessiveATR float64 `mapstructure:"extension_excessive_atr" default:"1.0"`
}

// DefaultPoints returns the production point table.
func DefaultPoints() Points {
	var p Points
	_ = defaults.Set(&p)
	return p
}

// Input gathers every fact the score looks at.
type Input struct {
	Direction models.Direction
	Bias      models.Bias

	// Trend mode. An empty Phase means it was not evaluated.
	Phase       confluence.Phase
	SetupType   analysis.SetupType
	HasSetups   bool
	RoomOK      bool
	RecentTrend confluence.Trend
	FiboEnabled bool
	FiboSignal  bool

	// Range mode.
	Range confluence.RangeFlags

	Entry             float64
	StopLoss          float64
	SwingLow          *float64
	SwingHigh         *float64
	TimingReady       bool
	M5Confirmed       bool
	ExtensionDistance *float64
	ATR               float64

	RRTP1     float64
	RRHardMin float64
	Spread    float64
	SpreadMax float64
	ATRMax    float64
	SLMinPts  float64
	SLMaxPts  float64

	SpreadPenalty int
}

// Reason is one scored line.
type Reason struct {
	Delta int
	Text  string
}

// Result is the score with its breakdown.
type Result struct {
	Score   int
	Edge    int
	Entry   int
	Risk    int
	Raw     int
	Penalty int
	Capped  bool

	EdgeReasons  []Reason
	EntryReasons []Reason
	RiskReasons  []Reason
}

// Lines renders the breakdown the way it is shown to the trader.
func (r Result) Lines() []string {
	out := make([]string, 0, len(r.EdgeReasons)+len(r.EntryReasons)+len(r.RiskReasons)+5)
	out = append(out, fmt.Sprintf("🏗️ EDGE STRUCTUREL : %d/40", r.Edge))
	out = appendReasons(out, r.EdgeReasons)
	out = append(out, fmt.Sprintf("🎯 QUALITÉ ENTRÉE : %d/30", r.Entry))
	out = appendReasons(out, r.EntryReasons)
	out = append(out, fmt.Sprintf("⚠️ RISK & EXECUTION : %d/30", r.Risk))
	out = appendReasons(out, r.RiskReasons)
	if r.Penalty > 0 {
		out = append(out, fmt.Sprintf("🔴 • Pénalité spread (-%d)", r.Penalty))
	}
	out = append(out, fmt.Sprintf("📊 Score total : %d/100", r.Score))
	return out
}

func appendReasons(out []string, reasons []Reason) []string {
	for _, r := range reasons {
		icon := "🔴"
		if r.Delta > 0 || strings.Contains(r.Text, "✓") {
			icon = "✅"
		}
		out = append(out, icon+" "+r.Text)
	}
	return out
}

// Scorer computes the rule score.
type Scorer struct {
	points Points
}

// NewScorer creates a scorer with the given point table.
func NewScorer(points Points) *Scorer {
	return &Scorer{points: points}
}

// Points returns the point table.
func (s *Scorer) Points() Points {
	return s.points
}

// Score computes the three blocks and the capped total.
func (s *Scorer) Score(in Input) Result {
	var res Result
	if in.Bias == models.BiasRange {
		res.Edge, res.EdgeReasons = s.edgeRange(in)
	} else {
		res.Edge, res.EdgeReasons = s.edgeTrend(in)
	}
	res.Entry, res.EntryReasons = s.entry(in)
	res.Risk, res.RiskReasons = s.risk(in)

	total := res.Edge + res.Entry + res.Risk
	res.Raw = total
	if res.Edge < s.points.CriticalEdge && total > s.points.CriticalCap {
		total = s.points.CriticalCap
		res.Capped = true
	}
	if in.SpreadPenalty > 0 {
		res.Penalty = in.SpreadPenalty
		total -= in.SpreadPenalty
	}
	res.Score = max(0, min(100, total))
	return res
}

type block struct {
	pts     int
	reasons []Reason
}

func (b *block) add(ok bool, pts int, hit, miss string) {
	if ok {
		b.pts += pts
		b.reasons = append(b.reasons, Reason{Delta: pts, Text: fmt.Sprintf("• %s (+%d)", hit, pts)})
		return
	}
	b.reasons = append(b.reasons, Reason{Text: fmt.Sprintf("• %s (0 pt)", miss)})
}

func (b *block) note(text string) {
	b.reasons = append(b.reasons, Reason{Text: "• " + text})
}

func (s *Scorer) edgeTrend(in Input) (int, []Reason) {
	p := s.points
	var b block

	aligned := (in.Direction == models.Buy && in.Bias == models.BiasUp) ||
		(in.Direction == models.Sell && in.Bias == models.BiasDown)

	switch in.Phase {
	case confluence.PhaseImpulse, confluence.PhasePullback:
		b.add(aligned, p.PhaseAligned, "Market Phase alignée", "Market Phase non alignée")
	case confluence.PhaseConsolidation:
		b.add(false, 0, "", "Market Phase CONSOLIDATION")
	default:
		b.add(true, p.PhaseUnknown, "Market Phase non évaluée", "")
	}

	if in.Bias == models.BiasRange {
		b.add(false, 0, "", "Structure H1 RANGE")
	} else {
		b.add(aligned, p.H1Clear, "Structure H1 claire", "Structure H1 contre tendance")
	}

	b.add(breakoutValid(in), p.Breakout, "Breakout validé", "Breakout non validé")
	b.add(in.RoomOK, p.Room, "Room to target valide", "Room to target insuffisant")

	switch {
	case in.RecentTrend.Aligned(in.Direction):
		b.add(true, p.Momentum, "Momentum M15 confirmé", "")
	case in.RecentTrend == confluence.TrendNeutral || in.RecentTrend == "":
		b.add(false, 0, "", "Momentum M15 neutre")
	default:
		b.add(false, 0, "", "Momentum M15 non aligné")
	}

	if in.FiboEnabled {
		b.add(in.FiboSignal, min(p.FiboMax, 3), "Fibo confluence ✓", "Fibo hors zone 38-62%")
	} else {
		b.add(false, 0, "", "Fibo non évalué")
	}

	edge := b.pts
	if in.Phase == confluence.PhaseConsolidation {
		edge = min(edge, p.ConsolidationEdgeCap)
	}
	return min(edge, p.EdgeCap), b.reasons
}

func (s *Scorer) edgeRange(in Input) (int, []Reason) {
	p := s.points
	var b block
	b.note("Mode RANGE (H1 range)")
	b.add(in.Range.RejectionAtBound, p.RangeRejection, "Rejet borne extrême", "Rejet borne extrême")
	b.add(in.Range.Sweep, p.RangeSweep, "Sweep high/low", "Sweep high/low")
	b.add(in.Range.BreakStructure, p.RangeBreak, "Break structure interne", "Break structure interne")
	b.add(in.Range.VolumeSpike, p.RangeVolume, "Volume spike", "Volume spike")
	b.add(breakoutValid(in), p.RangeBreakout, "Breakout validé", "Breakout non validé")
	b.add(in.RoomOK, p.RangeRoom, "Room to target valide", "Room to target insuffisant")
	return min(b.pts, p.EdgeCap), b.reasons
}

func (s *Scorer) entry(in Input) (int, []Reason) {
	p := s.points
	var b block

	if ratio, ok := pullbackRatio(in); ok {
		lo, hi := p.TrendPullbackMin, p.TrendPullbackMax
		if in.Bias == models.BiasRange {
			lo, hi = p.RangePullbackMin, p.RangePullbackMax
		}
		b.add(ratio >= lo && ratio <= hi, p.PullbackRatio, "Pullback ratio propre",
			fmt.Sprintf("Pullback hors zone %.0f%%-%.0f%%", lo*100, hi*100))
	} else {
		b.add(false, 0, "", "Pullback non évalué")
	}

	b.add(in.M5Confirmed || in.TimingReady, p.M5Rejection, "Rejet M5 clair", "Rejet M5 non confirmé")
	b.add(in.TimingReady, p.TimingReady, "timing_ready", "timing non prêt")

	excessive := in.ExtensionDistance != nil && in.ATR > 0 &&
		*in.ExtensionDistance > in.ATR*p.ExtensionExcessiveATR && !in.TimingReady
	switch {
	case excessive:
		b.add(false, 0, "", "Extension excessive")
	case in.ExtensionDistance == nil || (in.ATR > 0 && *in.ExtensionDistance < in.ATR*p.ExtensionOKATR):
		b.add(true, p.NoExtension, "Pas d'extension excessive", "")
	default:
		b.add(false, 0, "", "Extension proche seuil")
	}
	return min(b.pts, p.EntryCap), b.reasons
}

func (s *Scorer) risk(in Input) (int, []Reason) {
	p := s.points
	var b block

	b.add(in.RRTP1 >= in.RRHardMin, p.RR, fmt.Sprintf("RR TP1 >= %.2f", in.RRHardMin), "RR TP1 insuffisant")
	b.add(in.Spread <= in.SpreadMax, p.Spread, fmt.Sprintf("Spread OK (<= %.0f)", in.SpreadMax), "Spread trop élevé")
	b.add(in.ATR <= in.ATRMax, p.ATR, fmt.Sprintf("ATR OK (<= %.1f)", in.ATRMax), "Volatilité trop élevée")

	stop := math.Abs(in.Entry - in.StopLoss)
	switch {
	case stop >= in.SLMinPts && stop <= in.SLMaxPts:
		b.add(true, p.StopBand, "SL cohérent", "")
	case stop > in.SLMaxPts:
		b.add(false, 0, "", "SL > SL_MAX")
	default:
		b.add(false, 0, "", "SL hors fourchette")
	}
	return max(0, min(b.pts, p.RiskCap)), b.reasons
}

func breakoutValid(in Input) bool {
	return in.HasSetups && (in.SetupType == analysis.BreakoutRetest || in.SetupType == analysis.PullbackSR)
}

// pullbackRatio is the retracement depth of entry inside the swing leg,
// measured from the swing high for BUY and from the swing low for SELL.
func pullbackRatio(in Input) (float64, bool) {
	if in.SwingLow == nil || in.SwingHigh == nil {
		return 0, false
	}
	span := *in.SwingHigh - *in.SwingLow
	if span <= 0 {
		return 0, false
	}
	if in.Direction == models.Sell {
		return (in.Entry - *in.SwingLow) / span, true
	}
	return (*in.SwingHigh - in.Entry) / span, true
}
