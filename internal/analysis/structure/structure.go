// Package structure detects swing points, clusters them into support and
// resistance levels and classifies market structure.
package structure

import (
	"math"
	"sort"

	"gold-scalper/internal/analysis"
	"gold-scalper/internal/analysis/indicators"
	"gold-scalper/internal/models"
)

// Analyzer identifies swing points and support/resistance levels.
type Analyzer struct {
	lookback          int     // Bars on each side for fractal confirmation
	clusterTolerance  float64 // Relative tolerance for merging levels
	pullbackTolerance float64 // Relative distance for "pulling back to a level"
	maxLevels         int
	pullbackLevels    int
}

// NewAnalyzer creates an analyzer with the default settings.
func NewAnalyzer() *Analyzer {
	return &Analyzer{
		lookback:          2,
		clusterTolerance:  0.003,
		pullbackTolerance: 0.0015,
		maxLevels:         10,
		pullbackLevels:    6,
	}
}

// WithLookback overrides the fractal lookback.
func (a *Analyzer) WithLookback(n int) *Analyzer {
	if n > 0 {
		a.lookback = n
	}
	return a
}

func (a *Analyzer) Name() string {
	return "StructureAnalyzer"
}

// Result is recomputed every cycle and has no persisted identity.
type Result struct {
	Swings          []analysis.SwingPoint
	Highs           []analysis.SwingPoint
	Lows            []analysis.SwingPoint
	Levels          []float64
	Label           analysis.StructureLabel
	LastSwingHigh   *float64
	LastSwingLow    *float64
	PullbackToLevel *float64
	LastClose       float64
}

// HasLevels reports whether any support/resistance level was found.
func (r *Result) HasLevels() bool {
	return len(r.Levels) > 0
}

// LevelsAround tags every level as support or resistance relative to price.
func (r *Result) LevelsAround(price float64) []analysis.Level {
	out := make([]analysis.Level, 0, len(r.Levels))
	for _, lvl := range r.Levels {
		typ := analysis.LevelSupport
		if lvl > price {
			typ = analysis.LevelResistance
		}
		touches := 0
		for _, s := range r.Swings {
			if lvl != 0 && math.Abs(s.Price-lvl)/lvl <= 0.003 {
				touches++
			}
		}
		out = append(out, analysis.Level{Price: lvl, Type: typ, TouchCount: touches})
	}
	return out
}

// DetectSwings finds fractal highs and lows. A high at i is a swing high when
// no high in the window [i-lookback, i+lookback] exceeds it; lows mirror.
func (a *Analyzer) DetectSwings(candles []models.Candle) []analysis.SwingPoint {
	n := len(candles)
	lb := a.lookback
	if n < 2*lb+1 {
		return nil
	}

	var swings []analysis.SwingPoint
	for i := lb; i < n-lb; i++ {
		isHigh, isLow := true, true
		for j := i - lb; j <= i+lb; j++ {
			if j == i {
				continue
			}
			if candles[j].High > candles[i].High {
				isHigh = false
			}
			if candles[j].Low < candles[i].Low {
				isLow = false
			}
		}
		if isHigh {
			swings = append(swings, analysis.SwingPoint{Index: i, Kind: analysis.SwingHigh, Price: candles[i].High})
		}
		if isLow {
			swings = append(swings, analysis.SwingPoint{Index: i, Kind: analysis.SwingLow, Price: candles[i].Low})
		}
	}
	return swings
}

// ClusterLevels merges prices closer than tolerance (relative) into levels.
// Prices are visited in descending order and merged into a running average.
func ClusterLevels(prices []float64, tolerance float64) []float64 {
	if len(prices) == 0 {
		return nil
	}

	seen := make(map[float64]bool, len(prices))
	unique := make([]float64, 0, len(prices))
	for _, p := range prices {
		if !seen[p] {
			seen[p] = true
			unique = append(unique, p)
		}
	}
	sort.Sort(sort.Reverse(sort.Float64Slice(unique)))

	levels := make([]float64, 0, len(unique))
	for _, p := range unique {
		if len(levels) == 0 {
			levels = append(levels, p)
			continue
		}
		last := levels[len(levels)-1]
		if last != 0 && math.Abs(p-last)/last <= tolerance {
			levels[len(levels)-1] = (last + p) / 2
		} else {
			levels = append(levels, p)
		}
	}
	return levels
}

// Classify compares the two most recent swing highs and lows.
func Classify(swings []analysis.SwingPoint) analysis.StructureLabel {
	highs, lows := split(swings)
	if len(highs) < 2 || len(lows) < 2 {
		return analysis.Range
	}
	h1, h2 := highs[len(highs)-2], highs[len(highs)-1]
	l1, l2 := lows[len(lows)-2], lows[len(lows)-1]

	switch {
	case h2.Price > h1.Price && l2.Price > l1.Price:
		return analysis.Bullish
	case h2.Price < h1.Price && l2.Price < l1.Price:
		return analysis.Bearish
	default:
		return analysis.Range
	}
}

// Analyze runs swing detection, level clustering and classification. Empty
// or short input yields a RANGE result with no levels.
func (a *Analyzer) Analyze(candles []models.Candle) *Result {
	result := &Result{Label: analysis.Range}
	if len(candles) == 0 {
		return result
	}

	swings := a.DetectSwings(candles)
	highs, lows := split(swings)

	prices := make([]float64, len(swings))
	for i, s := range swings {
		prices[i] = s.Price
	}
	levels := ClusterLevels(prices, a.clusterTolerance)

	result.Swings = swings
	result.Highs = highs
	result.Lows = lows
	result.Label = Classify(swings)
	result.LastClose = candles[len(candles)-1].Close

	if len(highs) > 0 {
		p := highs[len(highs)-1].Price
		result.LastSwingHigh = &p
	}
	if len(lows) > 0 {
		p := lows[len(lows)-1].Price
		result.LastSwingLow = &p
	}

	for _, lvl := range tail(levels, a.pullbackLevels) {
		if lvl != 0 && math.Abs(result.LastClose-lvl)/lvl <= a.pullbackTolerance {
			p := lvl
			result.PullbackToLevel = &p
			break
		}
	}

	result.Levels = tail(levels, a.maxLevels)
	return result
}

// StrongTrend is the outcome of the multi-swing trend detector. Direction is
// empty when no strong trend is present.
type StrongTrend struct {
	Direction models.Direction
	Pivot     *float64
}

// Present reports whether a strong trend was detected.
func (s StrongTrend) Present() bool {
	return s.Direction != ""
}

// DetectStrongTrend looks for two consecutive higher highs and higher lows
// (or lower lows and lower highs) with aligned momentum. The pivot is the
// latest higher low for BUY and the latest lower high for SELL.
func (a *Analyzer) DetectStrongTrend(candles []models.Candle) StrongTrend {
	if len(candles) < 10 {
		return StrongTrend{}
	}
	highs, lows := split(a.DetectSwings(candles))
	if len(highs) < 3 || len(lows) < 3 {
		return StrongTrend{}
	}

	h := highs[len(highs)-3:]
	l := lows[len(lows)-3:]
	recent, older, ok := indicators.Momentum(candles, 5)
	if !ok {
		return StrongTrend{}
	}

	risingHighs := h[1].Price > h[0].Price && h[2].Price > h[1].Price
	risingLows := l[1].Price > l[0].Price && l[2].Price > l[1].Price
	fallingHighs := h[1].Price < h[0].Price && h[2].Price < h[1].Price
	fallingLows := l[1].Price < l[0].Price && l[2].Price < l[1].Price

	if risingHighs && risingLows && recent > older {
		p := l[2].Price
		return StrongTrend{Direction: models.Buy, Pivot: &p}
	}
	if fallingHighs && fallingLows && recent < older {
		p := h[2].Price
		return StrongTrend{Direction: models.Sell, Pivot: &p}
	}
	return StrongTrend{}
}

// MomentumAligned reports whether the last five closes average beyond the
// five before them in the direction of dir.
func MomentumAligned(candles []models.Candle, dir models.Direction) bool {
	recent, older, ok := indicators.Momentum(candles, 5)
	if !ok {
		return false
	}
	if dir == models.Buy {
		return recent > older
	}
	return recent < older
}

func split(swings []analysis.SwingPoint) (highs, lows []analysis.SwingPoint) {
	for _, s := range swings {
		if s.Kind == analysis.SwingHigh {
			highs = append(highs, s)
		} else {
			lows = append(lows, s)
		}
	}
	return highs, lows
}

func tail(levels []float64, n int) []float64 {
	if len(levels) <= n {
		return levels
	}
	return levels[len(levels)-n:]
}
