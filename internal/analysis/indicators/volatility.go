// Package indicators provides volatility measures and numeric helpers used by
// the analysis stages.
package indicators

import (
	"fmt"

	"gold-scalper/internal/models"
)

// DefaultATRFallback is used when there are too few candles for any estimate.
const DefaultATRFallback = 20.0

// ATR calculates the Average True Range with Wilder smoothing.
type ATR struct {
	period int
}

// NewATR creates a new ATR indicator.
func NewATR(period int) *ATR {
	return &ATR{period: period}
}

func (a *ATR) Name() string {
	return fmt.Sprintf("ATR_%d", a.period)
}

func (a *ATR) Period() int {
	return a.period
}

// Calculate returns the Wilder-smoothed ATR series.
func (a *ATR) Calculate(candles []models.Candle) ([]float64, error) {
	if a.period <= 0 {
		return nil, ErrInvalidPeriod
	}
	if len(candles) < a.period+1 {
		return nil, ErrInsufficientData
	}

	n := len(candles)
	result := make([]float64, n)
	tr := make([]float64, n)

	tr[0] = candles[0].High - candles[0].Low
	for i := 1; i < n; i++ {
		tr[i] = TrueRange(candles[i], candles[i-1])
	}

	result[a.period-1] = Mean(tr[:a.period])
	for i := a.period; i < n; i++ {
		result[i] = (result[i-1]*float64(a.period-1) + tr[i]) / float64(a.period)
	}

	return result, nil
}

// SimpleATR returns the plain mean of the last period true ranges. This is
// the volatility figure the decision pipeline reports and scores against.
func SimpleATR(candles []models.Candle, period int) (float64, error) {
	if period <= 0 {
		return 0, ErrInvalidPeriod
	}
	if len(candles) < period+1 {
		return 0, ErrInsufficientData
	}
	trs := make([]float64, 0, len(candles)-1)
	for i := 1; i < len(candles); i++ {
		trs = append(trs, TrueRange(candles[i], candles[i-1]))
	}
	return Mean(trs[len(trs)-period:]), nil
}

// ATRWithFallback returns SimpleATR, or with too few candles the average
// range of the last five bars, or DefaultATRFallback.
func ATRWithFallback(candles []models.Candle, period int) float64 {
	if atr, err := SimpleATR(candles, period); err == nil {
		return atr
	}
	if len(candles) >= 5 {
		last := models.Last(candles, 5)
		return (MaxOf(models.Highs(last)) - MinOf(models.Lows(last))) / 5
	}
	return DefaultATRFallback
}
