// Package analysis provides the shared types of the signal-processing stages:
// swing points, structure labels, setup tags and pattern interfaces.
package analysis

import (
	"gold-scalper/internal/models"
)

// PatternDetector defines the interface for candle pattern detection.
type PatternDetector interface {
	Name() string
	Detect(candles []models.Candle, dir models.Direction) []Pattern
}

// Pattern represents a detected candlestick pattern.
type Pattern struct {
	Name      string
	Direction PatternDirection
	Index     int
	Strength  float64
}

// PatternDirection represents the expected direction of a pattern.
type PatternDirection string

const (
	PatternBullish PatternDirection = "bullish"
	PatternBearish PatternDirection = "bearish"
	PatternNeutral PatternDirection = "neutral"
)

// Against reports whether a pattern opposes a position in dir.
func (d PatternDirection) Against(dir models.Direction) bool {
	if dir == models.Buy {
		return d == PatternBearish
	}
	return d == PatternBullish
}

// SwingKind distinguishes swing highs from swing lows.
type SwingKind string

const (
	SwingHigh SwingKind = "high"
	SwingLow  SwingKind = "low"
)

// SwingPoint is a local fractal extreme. It is never mutated once produced.
type SwingPoint struct {
	Index int
	Kind  SwingKind
	Price float64
}

// StructureLabel classifies market structure.
type StructureLabel string

const (
	Bullish StructureLabel = "BULLISH"
	Bearish StructureLabel = "BEARISH"
	Range   StructureLabel = "RANGE"
)

// Bias maps a structure label to the packet bias.
func (s StructureLabel) Bias() models.Bias {
	switch s {
	case Bullish:
		return models.BiasUp
	case Bearish:
		return models.BiasDown
	default:
		return models.BiasRange
	}
}

// Aligned reports whether the label agrees with a trade direction.
func (s StructureLabel) Aligned(dir models.Direction) bool {
	return (s == Bullish && dir == models.Buy) || (s == Bearish && dir == models.Sell)
}

// Against reports whether the label opposes a trade direction.
func (s StructureLabel) Against(dir models.Direction) bool {
	return (s == Bearish && dir == models.Buy) || (s == Bullish && dir == models.Sell)
}

// SetupType tags how an entry is expected to be triggered.
type SetupType string

const (
	BreakoutRetest   SetupType = "BREAKOUT_RETEST"
	PullbackSR       SetupType = "PULLBACK_SR"
	ZoneConfirmation SetupType = "ZONE_CONFIRMATION"
)

// Level represents a support or resistance level.
type Level struct {
	Price      float64
	Type       LevelType
	TouchCount int
}

// LevelType represents the type of price level.
type LevelType string

const (
	LevelSupport    LevelType = "support"
	LevelResistance LevelType = "resistance"
)
