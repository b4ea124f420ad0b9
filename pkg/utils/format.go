// Package utils provides shared utility functions.
package utils

import (
	"fmt"
	"math"
	"time"
)

// FormatPrice formats a gold price with two decimals.
func FormatPrice(v float64) string {
	return fmt.Sprintf("%.2f", v)
}

// FormatPoints formats a signed result in points with one decimal.
func FormatPoints(points float64) string {
	if points == 0 {
		return "0.0"
	}
	return fmt.Sprintf("%+.1f", points)
}

// FormatPercent formats a percentage with sign.
func FormatPercent(value float64) string {
	sign := ""
	if value > 0 {
		sign = "+"
	}
	return fmt.Sprintf("%s%.2f%%", sign, value)
}

// FormatMinutes renders a duration as "45 min" or "2h05".
func FormatMinutes(d time.Duration) string {
	m := int(math.Round(d.Minutes()))
	if m < 0 {
		m = -m
	}
	if m < 60 {
		return fmt.Sprintf("%d min", m)
	}
	return fmt.Sprintf("%dh%02d", m/60, m%60)
}

// RoundTo rounds v to the given number of decimals.
func RoundTo(v float64, decimals int) float64 {
	p := math.Pow(10, float64(decimals))
	return math.Round(v*p) / p
}
