package broker

import (
	"context"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	apperrors "gold-scalper/internal/errors"
	"gold-scalper/internal/models"
)

var paperNow = time.Date(2026, 3, 10, 14, 7, 30, 0, time.UTC)

func newTestPaper(mutate func(*PaperConfig)) *Paper {
	cfg := DefaultConfig().Paper
	cfg.Clock = func() time.Time { return paperNow }
	if mutate != nil {
		mutate(&cfg)
	}
	return NewPaper(cfg, zerolog.Nop())
}

func TestPaper_CandlesEndWithFormingBar(t *testing.T) {
	p := newTestPaper(nil)
	candles, err := p.Candles(context.Background(), "XAUUSD", models.M15, 8)
	require.NoError(t, err)
	require.Len(t, candles, 8)

	assert.Equal(t, time.Date(2026, 3, 10, 14, 0, 0, 0, time.UTC), candles[7].Timestamp)
	assert.Equal(t, time.Date(2026, 3, 10, 12, 15, 0, 0, time.UTC), candles[0].Timestamp)
	for i := 1; i < len(candles); i++ {
		assert.Equal(t, 15*time.Minute, candles[i].Timestamp.Sub(candles[i-1].Timestamp))
		// Continuous path: each bar opens where the previous closed.
		assert.InDelta(t, candles[i-1].Close, candles[i].Open, 0.011)
	}
}

func TestPaper_Deterministic(t *testing.T) {
	a, err := newTestPaper(nil).Candles(context.Background(), "XAUUSD", models.H1, 24)
	require.NoError(t, err)
	b, err := newTestPaper(nil).Candles(context.Background(), "XAUUSD", models.H1, 24)
	require.NoError(t, err)
	assert.Equal(t, a, b)
}

func TestPaper_TickAndSpread(t *testing.T) {
	p := newTestPaper(nil)
	ctx := context.Background()

	spread, err := p.Spread(ctx, "XAUUSD")
	require.NoError(t, err)
	assert.Equal(t, 12.0, spread)

	tick, err := p.Tick(ctx, "XAUUSD")
	require.NoError(t, err)
	assert.InDelta(t, 0.12, tick.Ask-tick.Bid, 0.011)
	assert.Equal(t, paperNow, tick.Timestamp)
	assert.InDelta(t, 4672, tick.Mid(), 30)

	at, err := p.ServerTime(ctx)
	require.NoError(t, err)
	assert.Equal(t, paperNow, at)
}

func TestPaper_Fail(t *testing.T) {
	p := newTestPaper(func(c *PaperConfig) { c.Fail = true })
	ctx := context.Background()

	_, err := p.Candles(ctx, "XAUUSD", models.M15, 10)
	assert.True(t, apperrors.IsDataUnavailable(err))
	_, err = p.Spread(ctx, "XAUUSD")
	assert.True(t, apperrors.IsDataUnavailable(err))
	_, err = p.Tick(ctx, "XAUUSD")
	assert.True(t, apperrors.IsDataUnavailable(err))
}

func TestPaper_Bridge(t *testing.T) {
	p := newTestPaper(nil)
	ctx := context.Background()

	_, _, ok := p.Position("XAUUSD")
	assert.False(t, ok)

	assert.True(t, p.ModifyStopToBreakeven(ctx, "XAUUSD", 5027, models.Buy))
	assert.True(t, p.ClosePartial(ctx, "XAUUSD", models.Buy, 50))
	assert.True(t, p.ClosePartial(ctx, "XAUUSD", models.Buy, 50))
	assert.False(t, p.ClosePartial(ctx, "XAUUSD", models.Buy, 0))
	assert.False(t, p.ClosePartial(ctx, "XAUUSD", models.Buy, 120))

	stop, closed, ok := p.Position("XAUUSD")
	require.True(t, ok)
	assert.Equal(t, 5027.0, stop)
	assert.Equal(t, 75.0, closed)

	// A new direction is a new position.
	assert.True(t, p.ClosePartial(ctx, "XAUUSD", models.Sell, 50))
	stop, closed, _ = p.Position("XAUUSD")
	assert.Zero(t, stop)
	assert.Equal(t, 50.0, closed)
}
