// Package patterns provides candlestick pattern detection.
package patterns

import (
	"gold-scalper/internal/analysis"
	"gold-scalper/internal/models"
)

var _ analysis.PatternDetector = (*CandlestickDetector)(nil)

// CandlestickDetector detects rejection (pin bar) and engulfing candles.
type CandlestickDetector struct {
	wickBodyRatio  float64 // Wick must exceed body × ratio
	wickRangeRatio float64 // Wick must exceed range × ratio
}

// NewCandlestickDetector creates a detector with the default wick ratios.
func NewCandlestickDetector() *CandlestickDetector {
	return &CandlestickDetector{
		wickBodyRatio:  1.5,
		wickRangeRatio: 0.4,
	}
}

func (d *CandlestickDetector) Name() string {
	return "CandlestickDetector"
}

// Detect returns every rejection and engulfing pattern in the series. dir is
// only used to set the strength of patterns that agree with it.
func (d *CandlestickDetector) Detect(candles []models.Candle, dir models.Direction) []analysis.Pattern {
	var patterns []analysis.Pattern

	for i, c := range candles {
		if d.IsBullishRejection(c) {
			patterns = append(patterns, analysis.Pattern{
				Name:      "Bullish Rejection",
				Direction: analysis.PatternBullish,
				Index:     i,
				Strength:  d.strength(c.LowerWick(), c.Range(), dir == models.Buy),
			})
		}
		if d.IsBearishRejection(c) {
			patterns = append(patterns, analysis.Pattern{
				Name:      "Bearish Rejection",
				Direction: analysis.PatternBearish,
				Index:     i,
				Strength:  d.strength(c.UpperWick(), c.Range(), dir == models.Sell),
			})
		}
	}

	for i := 1; i < len(candles); i++ {
		prev, curr := candles[i-1], candles[i]
		if IsBullishEngulfing(prev, curr) {
			patterns = append(patterns, analysis.Pattern{
				Name:      "Bullish Engulfing",
				Direction: analysis.PatternBullish,
				Index:     i,
				Strength:  d.strength(curr.Body(), curr.Range(), dir == models.Buy),
			})
		}
		if IsBearishEngulfing(prev, curr) {
			patterns = append(patterns, analysis.Pattern{
				Name:      "Bearish Engulfing",
				Direction: analysis.PatternBearish,
				Index:     i,
				Strength:  d.strength(curr.Body(), curr.Range(), dir == models.Sell),
			})
		}
	}

	return patterns
}

func (d *CandlestickDetector) strength(part, total float64, aligned bool) float64 {
	if total <= 0 {
		return 0
	}
	s := part / total * 100
	if !aligned {
		s *= 0.5
	}
	return min(s, 100)
}

// IsBullishRejection reports a long lower wick: buyers pushed price back up.
func (d *CandlestickDetector) IsBullishRejection(c models.Candle) bool {
	total := c.Range()
	if total <= 0 {
		return false
	}
	wick := c.LowerWick()
	return wick > c.Body()*d.wickBodyRatio && wick > total*d.wickRangeRatio
}

// IsBearishRejection reports a long upper wick.
func (d *CandlestickDetector) IsBearishRejection(c models.Candle) bool {
	total := c.Range()
	if total <= 0 {
		return false
	}
	wick := c.UpperWick()
	return wick > c.Body()*d.wickBodyRatio && wick > total*d.wickRangeRatio
}

// IsRejection reports a rejection candle in favour of dir.
func (d *CandlestickDetector) IsRejection(c models.Candle, dir models.Direction) bool {
	if dir == models.Sell {
		return d.IsBearishRejection(c)
	}
	return d.IsBullishRejection(c)
}

// CountRejections counts rejection candles in favour of dir among the last n.
func (d *CandlestickDetector) CountRejections(candles []models.Candle, dir models.Direction, n int) int {
	count := 0
	for _, c := range models.Last(candles, n) {
		if d.IsRejection(c, dir) {
			count++
		}
	}
	return count
}

// PinBarAgainst reports a rejection candle opposing dir among the last n.
func (d *CandlestickDetector) PinBarAgainst(candles []models.Candle, dir models.Direction, n int) bool {
	return d.CountRejections(candles, dir.Opposite(), n) > 0
}

// IsBearishEngulfing reports a bearish candle whose body covers a bullish one.
func IsBearishEngulfing(prev, curr models.Candle) bool {
	if prev.Open <= prev.Close && curr.Open >= curr.Close {
		return curr.Open >= prev.Close && curr.Close <= prev.Open
	}
	return false
}

// IsBullishEngulfing reports a bullish candle whose body covers a bearish one.
func IsBullishEngulfing(prev, curr models.Candle) bool {
	if prev.Open >= prev.Close && curr.Open <= curr.Close {
		return curr.Open <= prev.Close && curr.Close >= prev.Open
	}
	return false
}

// EngulfingAgainst reports an engulfing pair opposing dir on the last two candles.
func EngulfingAgainst(candles []models.Candle, dir models.Direction) bool {
	if len(candles) < 2 {
		return false
	}
	prev, curr := candles[len(candles)-2], candles[len(candles)-1]
	if dir == models.Buy {
		return IsBearishEngulfing(prev, curr)
	}
	return IsBullishEngulfing(prev, curr)
}
