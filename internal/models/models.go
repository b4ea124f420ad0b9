// Package models provides domain models for the signal bot.
package models

import (
	"math"
	"time"
)

// Direction is the side of a proposed or active trade.
type Direction string

const (
	Buy  Direction = "BUY"
	Sell Direction = "SELL"
)

// Sign returns +1 for BUY and -1 for SELL.
func (d Direction) Sign() float64 {
	if d == Sell {
		return -1
	}
	return 1
}

// Opposite returns the other side.
func (d Direction) Opposite() Direction {
	if d == Sell {
		return Buy
	}
	return Sell
}

// Valid reports whether d is BUY or SELL.
func (d Direction) Valid() bool {
	return d == Buy || d == Sell
}

// Timeframe identifies a candle period as used by the bridge.
type Timeframe string

const (
	M1  Timeframe = "M1"
	M5  Timeframe = "M5"
	M15 Timeframe = "M15"
	H1  Timeframe = "H1"
)

// Duration returns the candle period.
func (tf Timeframe) Duration() time.Duration {
	switch tf {
	case M1:
		return time.Minute
	case M5:
		return 5 * time.Minute
	case M15:
		return 15 * time.Minute
	case H1:
		return time.Hour
	default:
		return 15 * time.Minute
	}
}

// Bias is the higher-timeframe directional bias exposed in the decision packet.
type Bias string

const (
	BiasUp    Bias = "UP"
	BiasDown  Bias = "DOWN"
	BiasRange Bias = "RANGE"
)

// Candle represents OHLCV data for a time period.
type Candle struct {
	Timestamp time.Time `json:"ts"`
	Open      float64   `json:"open"`
	High      float64   `json:"high"`
	Low       float64   `json:"low"`
	Close     float64   `json:"close"`
	Volume    int64     `json:"volume"`
}

// Range returns high minus low.
func (c Candle) Range() float64 {
	return c.High - c.Low
}

// Body returns the absolute open-close distance.
func (c Candle) Body() float64 {
	return math.Abs(c.Close - c.Open)
}

// UpperWick returns the distance between the high and the top of the body.
func (c Candle) UpperWick() float64 {
	return c.High - math.Max(c.Open, c.Close)
}

// LowerWick returns the distance between the bottom of the body and the low.
func (c Candle) LowerWick() float64 {
	return math.Min(c.Open, c.Close) - c.Low
}

// IsBullish reports whether the candle closed at or above its open.
func (c Candle) IsBullish() bool {
	return c.Close >= c.Open
}

// Tick is the latest quote for a symbol.
type Tick struct {
	Symbol    string    `json:"symbol"`
	Bid       float64   `json:"bid"`
	Ask       float64   `json:"ask"`
	Timestamp time.Time `json:"ts"`
}

// Mid returns the mid price.
func (t Tick) Mid() float64 {
	return (t.Bid + t.Ask) / 2
}

// PriceFor returns the price a position of the given direction is valued at.
// Long positions exit on the bid, short positions on the ask.
func (t Tick) PriceFor(dir Direction) float64 {
	if dir == Sell {
		return t.Ask
	}
	return t.Bid
}

// Closes extracts closing prices.
func Closes(candles []Candle) []float64 {
	out := make([]float64, len(candles))
	for i, c := range candles {
		out[i] = c.Close
	}
	return out
}

// Highs extracts high prices.
func Highs(candles []Candle) []float64 {
	out := make([]float64, len(candles))
	for i, c := range candles {
		out[i] = c.High
	}
	return out
}

// Lows extracts low prices.
func Lows(candles []Candle) []float64 {
	out := make([]float64, len(candles))
	for i, c := range candles {
		out[i] = c.Low
	}
	return out
}

// Last returns the last n candles (or all of them when fewer).
func Last(candles []Candle, n int) []Candle {
	if n <= 0 {
		return nil
	}
	if len(candles) <= n {
		return candles
	}
	return candles[len(candles)-n:]
}

// Round2 rounds a price to two decimals.
func Round2(v float64) float64 {
	return math.Round(v*100) / 100
}
