package scoring

import (
	"math"
)

// SpreadParams configures the soft spread penalty. The penalty grows
// linearly from the soft start to the hard cap, measured both in raw points
// and as a ratio of the stop distance; the larger of the two applies.
type SpreadParams struct {
	SoftStartPoints float64 `mapstructure:"soft_spread_start_points" default:"20"`
	HardMaxPoints   float64 `mapstructure:"hard_spread_max_points" default:"40"`
	SoftStartRatio  float64 `mapstructure:"soft_spread_start_ratio" default:"0.06"`
	HardMaxRatio    float64 `mapstructure:"hard_spread_max_ratio" default:"0.12"`
	MaxPenalty      int     `mapstructure:"soft_spread_max_penalty" default:"30"`
	TickSize        float64 `mapstructure:"tick_size" default:"0.01"`
}

// SpreadEvaluation is the outcome of EvaluateSpread.
type SpreadEvaluation struct {
	Points        float64
	StopPoints    float64 // zero when unknown
	Ratio         float64 // zero when unknown
	PointsPenalty int
	RatioPenalty  int
	Penalty       int
}

// EvaluateSpread computes the soft penalty for spread given the stop
// distance in price units.
func EvaluateSpread(p SpreadParams, spread, stopDistance float64) SpreadEvaluation {
	ev := SpreadEvaluation{Points: spread}
	if stopDistance > 0 && p.TickSize > 0 {
		ev.StopPoints = stopDistance / p.TickSize
		ev.Ratio = spread / ev.StopPoints
	}
	ev.PointsPenalty = linearPenalty(spread, p.SoftStartPoints, p.HardMaxPoints, p.MaxPenalty)
	if ev.StopPoints > 0 {
		ev.RatioPenalty = linearPenalty(ev.Ratio, p.SoftStartRatio, p.HardMaxRatio, p.MaxPenalty)
	}
	ev.Penalty = max(ev.PointsPenalty, ev.RatioPenalty)
	return ev
}

func linearPenalty(value, start, end float64, maxPenalty int) int {
	switch {
	case end <= start, value <= start:
		return 0
	case value >= end:
		return maxPenalty
	}
	return int(math.RoundToEven((value - start) / (end - start) * float64(maxPenalty)))
}
