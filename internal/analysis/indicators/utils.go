package indicators

import (
	"errors"
	"math"

	"gold-scalper/internal/models"
)

var (
	// ErrInsufficientData is returned when there's not enough data for calculation.
	ErrInsufficientData = errors.New("insufficient data for calculation")
	// ErrInvalidPeriod is returned when the period is invalid.
	ErrInvalidPeriod = errors.New("invalid period")
)

// Sum calculates the sum of a slice of float64.
func Sum(values []float64) float64 {
	var total float64
	for _, v := range values {
		total += v
	}
	return total
}

// Mean calculates the arithmetic mean of a slice of float64.
func Mean(values []float64) float64 {
	if len(values) == 0 {
		return 0
	}
	return Sum(values) / float64(len(values))
}

// MaxOf returns the largest value, or 0 for an empty slice.
func MaxOf(values []float64) float64 {
	if len(values) == 0 {
		return 0
	}
	m := values[0]
	for _, v := range values[1:] {
		m = max(m, v)
	}
	return m
}

// MinOf returns the smallest value, or 0 for an empty slice.
func MinOf(values []float64) float64 {
	if len(values) == 0 {
		return 0
	}
	m := values[0]
	for _, v := range values[1:] {
		m = min(m, v)
	}
	return m
}

// Clamp bounds v into [lo, hi].
func Clamp(v, lo, hi float64) float64 {
	return math.Max(lo, math.Min(hi, v))
}

// TrueRange calculates the true range for a candle.
func TrueRange(current, previous models.Candle) float64 {
	highLow := current.High - current.Low
	highClose := math.Abs(current.High - previous.Close)
	lowClose := math.Abs(current.Low - previous.Close)
	return max(highLow, highClose, lowClose)
}

// Momentum compares the mean of the last n closes with the mean of the n
// closes before them. It returns false when there is not enough data.
func Momentum(candles []models.Candle, n int) (recent, older float64, ok bool) {
	if n <= 0 || len(candles) < 2*n {
		return 0, 0, false
	}
	closes := models.Closes(candles)
	recent = Mean(closes[len(closes)-n:])
	older = Mean(closes[len(closes)-2*n : len(closes)-n])
	return recent, older, true
}
