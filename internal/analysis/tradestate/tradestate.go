// Package tradestate is the IDLE → WATCHING → READY gate in front of the
// scoring stage. GO decisions are only reachable from READY.
package tradestate

import (
	"fmt"

	"gold-scalper/internal/analysis"
	"gold-scalper/internal/models"
)

// State is one of IDLE, WATCHING or READY.
type State string

const (
	Idle     State = "IDLE"
	Watching State = "WATCHING"
	Ready    State = "READY"
)

// Result is the classifier outcome.
type Result struct {
	State  State
	Reason string
}

// Classify maps (setups, timing, structure) to a state.
func Classify(setups []string, timingReady bool, h1 analysis.StructureLabel, setupType analysis.SetupType, dir models.Direction) Result {
	if len(setups) == 0 {
		return Result{State: Idle, Reason: "Aucun setup détecté"}
	}
	if !timingReady {
		return Result{State: Watching, Reason: fmt.Sprintf("Setup détecté (%s), timing non confirmé", setupType)}
	}
	switch h1 {
	case analysis.Bullish, analysis.Bearish, analysis.Range:
	default:
		return Result{State: Watching, Reason: "Structure H1 non validée"}
	}
	return Result{State: Ready, Reason: fmt.Sprintf("Confluence validée: %s %s", setupType, dir)}
}

// PullbackParams bounds an acceptable retracement.
type PullbackParams struct {
	MinRatio  float64 `mapstructure:"pullback_confirm_min_ratio" default:"0.30"`
	MaxRatio  float64 `mapstructure:"pullback_confirm_max_ratio" default:"0.62"`
	BufferPts float64 `mapstructure:"pullback_break_buffer_pts" default:"1.5"`
}

// PullbackInput is what PullbackConfirmed inspects.
type PullbackInput struct {
	Direction   models.Direction
	Entry       float64
	SwingLow    *float64
	SwingHigh   *float64
	TimingReady bool
	M5Confirmed bool
}

// PullbackConfirmed reports whether the entry sits on a clean retracement of
// the last swing leg: ratio inside [MinRatio, MaxRatio], the last higher low
// (BUY) or lower high (SELL) not broken by more than BufferPts, timing ready
// and a secondary rejection present.
func PullbackConfirmed(p PullbackParams, in PullbackInput) bool {
	if !in.TimingReady || in.SwingLow == nil || in.SwingHigh == nil {
		return false
	}
	low, high := *in.SwingLow, *in.SwingHigh
	span := high - low
	if span <= 0 {
		return false
	}

	var ratio float64
	var intact bool
	switch in.Direction {
	case models.Buy:
		ratio = (high - in.Entry) / span
		intact = in.Entry >= low-p.BufferPts
	case models.Sell:
		ratio = (in.Entry - low) / span
		intact = in.Entry <= high+p.BufferPts
	default:
		return false
	}
	return ratio >= p.MinRatio && ratio <= p.MaxRatio && intact && in.M5Confirmed
}
