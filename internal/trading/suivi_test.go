package trading

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"gold-scalper/internal/analysis"
	"gold-scalper/internal/models"
)

var tradeStart = time.Date(2026, 3, 10, 14, 0, 0, 0, time.UTC)

func buyTrade() models.ActiveTrade {
	return models.ActiveTrade{
		Symbol: "XAUUSD", Direction: models.Buy,
		Entry: 5027, StopLoss: 5012, TP1: 5032, TP2: 5045,
		StartedAt: tradeStart,
	}
}

func sellTrade() models.ActiveTrade {
	return models.ActiveTrade{
		Symbol: "XAUUSD", Direction: models.Sell,
		Entry: 5027, StopLoss: 5042, TP1: 5020, TP2: 5005,
		StartedAt: tradeStart,
	}
}

func TestSuivi_TP1Breakeven_Buy(t *testing.T) {
	s := NewSuivi(DefaultSuiviParams())
	res := s.Evaluate(SuiviInput{Trade: buyTrade(), Price: 5035, Now: tradeStart.Add(time.Hour)})

	assert.Equal(t, SuiviBreakeven, res.Status)
	assert.False(t, res.Closed)
	require.NotNil(t, res.NewStop)
	assert.Equal(t, 5027.0, *res.NewStop)
	require.NotNil(t, res.PartialPoints)
	assert.Equal(t, 2.5, *res.PartialPoints)
	for _, want := range []string{"Bravo", "TP1 atteint", "Break-even", "5027.00", "5045.00", "+5", "TP2"} {
		assert.Contains(t, res.Message, want)
	}
}

func TestSuivi_TP1Breakeven_Sell(t *testing.T) {
	s := NewSuivi(DefaultSuiviParams())
	res := s.Evaluate(SuiviInput{Trade: sellTrade(), Price: 5015, Now: tradeStart.Add(time.Hour)})

	assert.Equal(t, SuiviBreakeven, res.Status)
	require.NotNil(t, res.NewStop)
	assert.Equal(t, 5027.0, *res.NewStop)
	assert.Contains(t, res.Message, "TP1 atteint")
}

func TestSuivi_BreakevenOffset(t *testing.T) {
	p := DefaultSuiviParams()
	p.BEOffsetPts = 1.5
	res := NewSuivi(p).Evaluate(SuiviInput{Trade: sellTrade(), Price: 5015})

	require.NotNil(t, res.NewStop)
	assert.Equal(t, 5025.5, *res.NewStop)
}

func TestSuivi_TP1WithoutBreakevenCloses(t *testing.T) {
	p := DefaultSuiviParams()
	p.BEEnabled = false
	res := NewSuivi(p).Evaluate(SuiviInput{Trade: buyTrade(), Price: 5035})

	assert.Equal(t, SuiviExit, res.Status)
	assert.True(t, res.Closed)
	require.NotNil(t, res.Outcome)
	assert.Equal(t, 5.0, *res.Outcome)
	assert.Equal(t, ExitTP1, res.ExitReason)
}

func TestSuivi_SecondCycleAfterBreakevenHolds(t *testing.T) {
	s := NewSuivi(DefaultSuiviParams())
	first := s.Evaluate(SuiviInput{Trade: buyTrade(), Price: 5035})
	require.Equal(t, SuiviBreakeven, first.Status)

	trade := buyTrade()
	at := tradeStart.Add(30 * time.Minute)
	trade.BEApplied = true
	trade.BEAppliedAt = &at
	trade.StopLoss = *first.NewStop
	trade.TP1PartialPoints = *first.PartialPoints

	second := s.Evaluate(SuiviInput{Trade: trade, Price: 5035})
	assert.Equal(t, SuiviHold, second.Status)
	assert.False(t, second.Closed)
	assert.Contains(t, second.Message, "MAINTIEN BUY")
	assert.NotEmpty(t, second.Signature)
}

func TestSuivi_StopWinsTie(t *testing.T) {
	s := NewSuivi(DefaultSuiviParams())
	candles := []models.Candle{{
		Timestamp: tradeStart,
		Open:      5027, High: 5050, Low: 5010, Close: 5030,
	}}
	res := s.Evaluate(SuiviInput{Trade: buyTrade(), Price: 5030, Candles: candles})

	assert.Equal(t, SuiviExit, res.Status)
	assert.Equal(t, ExitStop, res.ExitReason)
	require.NotNil(t, res.Outcome)
	assert.Equal(t, -15.0, *res.Outcome)
	assert.Contains(t, res.Message, "SL touché")
	assert.Contains(t, res.Message, "PERTE — 15.0 point")
}

func TestSuivi_IgnoresCandlesBeforeStart(t *testing.T) {
	s := NewSuivi(DefaultSuiviParams())
	candles := []models.Candle{{
		Timestamp: tradeStart.Add(-15 * time.Minute),
		Open:      5020, High: 5028, Low: 5000, Close: 5027,
	}}
	res := s.Evaluate(SuiviInput{Trade: buyTrade(), Price: 5028, Candles: candles})

	assert.NotEqual(t, SuiviExit, res.Status)
}

func TestSuivi_StopAfterBreakevenBanksPartial(t *testing.T) {
	trade := buyTrade()
	at := tradeStart.Add(30 * time.Minute)
	trade.BEApplied = true
	trade.BEAppliedAt = &at
	trade.StopLoss = 5027
	trade.TP1PartialPoints = 2.5

	res := NewSuivi(DefaultSuiviParams()).Evaluate(SuiviInput{Trade: trade, Price: 5026})
	assert.Equal(t, SuiviExit, res.Status)
	assert.Equal(t, ExitStopBreakeven, res.ExitReason)
	require.NotNil(t, res.Outcome)
	assert.Equal(t, 2.5, *res.Outcome)
}

func TestSuivi_TP2AfterBreakeven(t *testing.T) {
	trade := buyTrade()
	at := tradeStart.Add(30 * time.Minute)
	trade.BEApplied = true
	trade.BEAppliedAt = &at
	trade.StopLoss = 5027
	trade.TP1PartialPoints = 2.5

	res := NewSuivi(DefaultSuiviParams()).Evaluate(SuiviInput{Trade: trade, Price: 5046})
	assert.Equal(t, SuiviExit, res.Status)
	assert.Equal(t, ExitTP2, res.ExitReason)
	require.NotNil(t, res.Outcome)
	assert.Equal(t, 11.5, *res.Outcome)
	assert.Contains(t, res.Message, "TP2 atteint")
}

func TestSuivi_AlertWithoutBreakevenMargin(t *testing.T) {
	res := NewSuivi(DefaultSuiviParams()).Evaluate(SuiviInput{
		Trade: buyTrade(), Price: 5029, H1: analysis.Bearish,
	})
	assert.Equal(t, SuiviAlert, res.Status)
	assert.Contains(t, res.Alerts, "h1_contre")
	assert.Contains(t, res.Message, "pas encore de marge pour passer BE")
}

func TestSuivi_AlertRecommendsSecuring(t *testing.T) {
	trade := buyTrade()
	trade.TP1 = 5040
	res := NewSuivi(DefaultSuiviParams()).Evaluate(SuiviInput{
		Trade: trade, Price: 5033, H1: analysis.Bearish,
	})
	assert.Equal(t, SuiviAlert, res.Status)
	assert.Contains(t, res.Message, "sécurisation conseillée")
	assert.Contains(t, res.Message, "6.0 pts")
}

func TestSuivi_NewsImminent(t *testing.T) {
	minutes := 10
	news := models.NewsState{
		MinutesToEvent: &minutes,
		NextEvent:      &models.NewsEvent{Title: "CPI", Impact: "HIGH", Currency: "USD"},
	}
	res := NewSuivi(DefaultSuiviParams()).Evaluate(SuiviInput{Trade: buyTrade(), Price: 5029, News: news})
	assert.Equal(t, SuiviAlert, res.Status)
	assert.True(t, res.NewsAlert)
	assert.Contains(t, res.Message, "News HIGH imminente")

	far := 45
	news.MinutesToEvent = &far
	res = NewSuivi(DefaultSuiviParams()).Evaluate(SuiviInput{Trade: buyTrade(), Price: 5029, News: news})
	assert.Equal(t, SuiviHold, res.Status)
}

func TestSuivi_Invalidation(t *testing.T) {
	trade := buyTrade()
	level := 5020.0
	trade.InvalidLevel = &level
	trade.InvalidBuffer = 1

	res := NewSuivi(DefaultSuiviParams()).Evaluate(SuiviInput{Trade: trade, Price: 5018})
	assert.Equal(t, SuiviAlert, res.Status)
	assert.True(t, res.Invalidated)
	assert.Contains(t, res.Message, "Invalidation")

	res = NewSuivi(DefaultSuiviParams()).Evaluate(SuiviInput{Trade: trade, Price: 5019.5})
	assert.False(t, res.Invalidated)
}

func TestSuivi_HoldSignatureStable(t *testing.T) {
	s := NewSuivi(DefaultSuiviParams())
	a := s.Evaluate(SuiviInput{Trade: buyTrade(), Price: 5029, H1: analysis.Bullish})
	b := s.Evaluate(SuiviInput{Trade: buyTrade(), Price: 5030, H1: analysis.Bullish})
	c := s.Evaluate(SuiviInput{Trade: buyTrade(), Price: 5025, H1: analysis.Bullish})

	assert.Equal(t, SuiviHold, a.Status)
	assert.Equal(t, a.Signature, b.Signature)
	assert.NotEqual(t, a.Signature, c.Signature)
}

func TestSuivi_SellHoldPrefix(t *testing.T) {
	res := NewSuivi(DefaultSuiviParams()).Evaluate(SuiviInput{Trade: sellTrade(), Price: 5025})
	assert.Equal(t, SuiviHold, res.Status)
	assert.Contains(t, res.Message, "MAINTIEN SELL")
}
