package trading

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"gold-scalper/internal/analysis"
	"gold-scalper/internal/analysis/confluence"
	"gold-scalper/internal/analysis/extension"
	"gold-scalper/internal/analysis/scoring"
	"gold-scalper/internal/analysis/setup"
	"gold-scalper/internal/analysis/timing"
	"gold-scalper/internal/analysis/tradestate"
	"gold-scalper/internal/models"
	"gold-scalper/internal/store"
)

type pipelineFixture struct {
	store    *store.SQLiteStore
	market   *fakeMarket
	news     *fakeNews
	notifier *fakeNotifier
	clock    *testClock
	pipeline *Pipeline
}

// newPipelineFixture starts the clock at 15:00 Paris, inside the afternoon
// window, with fresh quiet candles on every timeframe.
func newPipelineFixture(t *testing.T) *pipelineFixture {
	t.Helper()
	now := paris(15, 0)
	f := &pipelineFixture{
		store: newTradingStore(t),
		market: &fakeMarket{
			candles: map[models.Timeframe][]models.Candle{
				models.M15: flatCandles(120, 5027, models.M15, now),
				models.H1:  flatCandles(120, 5027, models.H1, now),
				models.M5:  flatCandles(60, 5027, models.M5, now),
			},
			price:  5027,
			spread: 5,
			server: now,
		},
		news:     &fakeNews{state: models.NewsState{ProviderOK: true}},
		notifier: &fakeNotifier{},
		clock:    &testClock{t: now},
	}
	p, err := NewPipeline(PipelineConfig{
		MarketProvider: "mt5",
		NewsProvider:   "static",
		Risk:           DefaultRiskParams(),
		Setup:          setup.DefaultParams(),
		Timing:         timing.DefaultParams(),
		Extension:      extension.DefaultParams(),
		Points:         scoring.DefaultPoints(),
		Notify:         DefaultNotifyPolicy(),
		Store:          f.store,
		Market:         f.market,
		News:           f.news,
		Notifier:       f.notifier,
		Clock:          f.clock.Now,
		Logger:         zerolog.Nop(),
	})
	require.NoError(t, err)
	f.pipeline = p
	return f
}

func TestNewPipeline_RequiresStoreAndMarket(t *testing.T) {
	_, err := NewPipeline(PipelineConfig{Market: &fakeMarket{}})
	assert.Error(t, err)
	_, err = NewPipeline(PipelineConfig{Store: newTradingStore(t)})
	assert.Error(t, err)
}

func TestPipeline_DataOffWhenMarketDown(t *testing.T) {
	f := newPipelineFixture(t)
	ctx := context.Background()
	f.market.err = errors.New("bridge unreachable")

	res, err := f.pipeline.Analyze(ctx)
	require.NoError(t, err)
	d := res.Packet.Decision
	assert.Equal(t, models.StatusNoGo, d.Status)
	assert.Equal(t, models.BlockedDataOff, d.BlockedBy)
	assert.Equal(t, []string{"Données marché indisponibles"}, d.Why)
	assert.Zero(t, d.ScoreEffective)
	assert.Equal(t, int64(9999), res.Packet.DataLatencyMs)
	assert.True(t, res.Sent)
	assert.Contains(t, f.notifier.last(), "Bloqué par : DATA_OFF")

	// Same hour: the card is not repeated.
	f.clock.Advance(time.Minute)
	res, err = f.pipeline.Analyze(ctx)
	require.NoError(t, err)
	assert.False(t, res.Sent)
	assert.Equal(t, 1, f.notifier.count())

	f.clock.Advance(time.Hour)
	res, err = f.pipeline.Analyze(ctx)
	require.NoError(t, err)
	assert.True(t, res.Sent)
	assert.Equal(t, 2, f.notifier.count())

	signals, err := f.store.RecentSignals(ctx, store.SignalFilter{Day: res.Day})
	require.NoError(t, err)
	assert.Len(t, signals, 3)
}

func TestPipeline_StaleDataForcesDataOff(t *testing.T) {
	f := newPipelineFixture(t)
	old := f.clock.Now().Add(-time.Hour)
	f.market.candles[models.M15] = flatCandles(120, 5027, models.M15, old)
	f.market.server = old

	res, err := f.pipeline.Analyze(context.Background())
	require.NoError(t, err)
	assert.Equal(t, models.BlockedDataOff, res.Packet.Decision.BlockedBy)
	assert.Equal(t, time.Hour.Milliseconds(), res.Packet.DataLatencyMs)
}

func TestPipeline_OutOfSessionIsSilent(t *testing.T) {
	f := newPipelineFixture(t)
	f.clock.t = paris(10, 0)
	f.market.candles[models.M15] = flatCandles(120, 5027, models.M15, paris(10, 0))
	f.market.server = paris(10, 0)

	res, err := f.pipeline.Analyze(context.Background())
	require.NoError(t, err)
	d := res.Packet.Decision
	assert.Equal(t, models.BlockedOutOfSession, d.BlockedBy)
	assert.Equal(t, []string{"Hors fenêtre de trading"}, d.Why)
	assert.False(t, res.Packet.SessionOK)
	assert.False(t, res.Sent)
	assert.Zero(t, f.notifier.count())
}

func TestPipeline_CooldownIsDuplicateAndSilent(t *testing.T) {
	f := newPipelineFixture(t)
	ctx := context.Background()
	day := f.pipeline.Session().Day(f.clock.Now())
	last := f.clock.Now().Add(-5 * time.Minute)
	require.NoError(t, f.store.WithDay(ctx, day, func(st *models.DayState) error {
		st.LastDecisionAt = &last
		return nil
	}))

	res, err := f.pipeline.Analyze(ctx)
	require.NoError(t, err)
	d := res.Packet.Decision
	assert.Equal(t, models.StatusNoGo, d.Status)
	assert.Equal(t, models.BlockedDuplicateSignal, d.BlockedBy)
	assert.Zero(t, d.ScoreEffective)
	assert.False(t, res.Packet.State.CooldownOK)
	assert.False(t, res.Sent)

	st, err := f.store.GetDay(ctx, day)
	require.NoError(t, err)
	assert.Equal(t, 1, st.SetupConfirmCount)
	assert.Nil(t, st.Active)
	require.NotNil(t, st.LastDecisionAt)
	assert.True(t, st.LastDecisionAt.Equal(last))
}

func TestPipeline_NewsLockSentOncePerEvent(t *testing.T) {
	f := newPipelineFixture(t)
	ctx := context.Background()
	minutes := 10
	f.news.state = models.NewsState{
		ProviderOK:     true,
		LockActive:     true,
		MinutesToEvent: &minutes,
		NextEvent: &models.NewsEvent{
			Title: "CPI", Impact: "HIGH", Currency: "USD",
			Time: f.clock.Now().Add(10 * time.Minute),
		},
	}

	res, err := f.pipeline.Analyze(ctx)
	require.NoError(t, err)
	assert.Equal(t, models.BlockedNewsLock, res.Packet.Decision.BlockedBy)
	assert.True(t, res.Packet.NewsLock)
	assert.True(t, res.Sent)

	f.clock.Advance(time.Minute)
	res, err = f.pipeline.Analyze(ctx)
	require.NoError(t, err)
	assert.False(t, res.Sent)
	assert.Equal(t, 1, f.notifier.count())
}

func TestPipeline_PreAlertOncePerBucket(t *testing.T) {
	f := newPipelineFixture(t)
	ctx := context.Background()
	minutes := 45
	f.news.state = models.NewsState{
		ProviderOK:     true,
		MinutesToEvent: &minutes,
		ShouldPreAlert: true,
		BucketLabel:    "60m",
		Moment:         "PRE_NEWS",
		HorizonMinutes: 60,
		NextEvent: &models.NewsEvent{
			Title: "FOMC", Impact: "HIGH", Currency: "USD",
			Time: f.clock.Now().Add(45 * time.Minute),
		},
	}

	res, err := f.pipeline.Analyze(ctx)
	require.NoError(t, err)
	assert.NotEmpty(t, res.AlertKey)
	assert.Contains(t, res.AlertKey, "prealert:")
	assert.Contains(t, f.notifier.last(), "PRÉ-ALERTE XAUUSD")

	sentBefore := f.notifier.count()
	f.clock.Advance(time.Minute)
	res, err = f.pipeline.Analyze(ctx)
	require.NoError(t, err)
	assert.Empty(t, res.AlertKey)
	assert.Equal(t, sentBefore, f.notifier.count())
}

func TestPipeline_DegradedNewsFlagsPacket(t *testing.T) {
	f := newPipelineFixture(t)
	f.news.err = errors.New("calendar timeout")

	res, err := f.pipeline.Analyze(context.Background())
	require.NoError(t, err)
	assert.False(t, res.Packet.NewsState.ProviderOK)
	assert.Contains(t, res.Packet.SourcesUsed, "NEWS_PROVIDER_DOWN")
	assert.Contains(t, res.Packet.SourcesUsed, "news:static")
	assert.Contains(t, res.Packet.SourcesUsed, "market:mt5")
}

func TestPipeline_PacketIsComplete(t *testing.T) {
	f := newPipelineFixture(t)

	res, err := f.pipeline.Analyze(context.Background())
	require.NoError(t, err)
	p := res.Packet
	require.NotNil(t, p.Decision)
	assert.NotEmpty(t, p.DecisionID)
	assert.Equal(t, "XAUUSD", p.Symbol)
	assert.True(t, p.SessionOK)
	assert.Equal(t, "2026-03-10T14:00:00Z", p.Timestamps.UTC)
	assert.Equal(t, "2026-03-10T15:00:00+01:00", p.Timestamps.Local)
	assert.Equal(t, SignalKey("XAUUSD", p.Timestamps.UTC), res.SignalKey)
	assert.Equal(t, 5.0, p.Spread)
	require.NotNil(t, p.CurrentPrice)
	assert.Greater(t, p.Entry, 0.0)
	assert.NotEqual(t, p.Entry, p.StopLoss)
	assert.GreaterOrEqual(t, p.Score, 0)
	assert.LessOrEqual(t, p.Score, 100)
	assert.Zero(t, p.DataLatencyMs)
	if p.Decision.Status == models.StatusNoGo {
		assert.NotEqual(t, models.BlockedNone, p.Decision.BlockedBy)
	}
}

// trendCandles builds a rising zigzag of ten-point candles ending just
// before end. Each four-bar cycle climbs 8 and gives back 2, so every cycle
// prints a higher high and a higher low. The three closing bars confirm the
// last swing low at base+6*cycles-5.
func trendCandles(cycles int, base float64, tf models.Timeframe, end time.Time) []models.Candle {
	type bar struct {
		offset float64
		bull   bool
	}
	cycle := []bar{{0, true}, {4, true}, {8, false}, {7, false}}
	tail := []bar{{0, true}, {1, true}, {2, false}}

	var out []models.Candle
	add := func(mid float64, bull bool) {
		o, c := mid+2, mid-2
		if bull {
			o, c = mid-2, mid+2
		}
		out = append(out, models.Candle{Open: o, High: mid + 5, Low: mid - 5, Close: c, Volume: 100})
	}
	for k := 0; k < cycles; k++ {
		for _, b := range cycle {
			add(base+6*float64(k)+b.offset, b.bull)
		}
	}
	for _, b := range tail {
		add(base+6*float64(cycles)+b.offset, b.bull)
	}
	step := tf.Duration()
	for i := range out {
		out[i].Timestamp = end.Add(-time.Duration(len(out)-i) * step)
	}
	return out
}

// An H1 and M15 uptrend, price back in the lower half of the last M15 leg
// (swing low 5019, swing high 5031) and a bullish pin bar on M5.
func TestPipeline_PullbackInUptrendGoes(t *testing.T) {
	f := newPipelineFixture(t)
	ctx := context.Background()
	now := f.clock.Now()

	m5 := flatCandles(60, 5025, models.M5, now)
	pin := &m5[len(m5)-1]
	pin.Open, pin.High, pin.Low, pin.Close = 5024.8, 5026, 5020, 5025.6
	f.market.candles = map[models.Timeframe][]models.Candle{
		models.H1:  trendCandles(29, 4850, models.H1, now),
		models.M15: trendCandles(29, 4850, models.M15, now),
		models.M5:  m5,
	}
	f.market.setPrice(5025.5)

	res, err := f.pipeline.Analyze(ctx)
	require.NoError(t, err)
	p := res.Packet
	d := p.Decision
	require.Equal(t, models.StatusGo, d.Status, d.Why)
	assert.Equal(t, models.BlockedNone, d.BlockedBy)
	assert.GreaterOrEqual(t, d.ScoreTotal, 80)
	assert.Equal(t, models.Buy, p.Direction)
	assert.Equal(t, models.BiasUp, p.BiasH1)
	assert.Equal(t, 10.0, p.ATR)
	assert.Equal(t, 5025.5, p.Entry)
	assert.Equal(t, 5001.0, p.StopLoss)
	assert.Equal(t, 5037.75, p.TP1)
	assert.Equal(t, 5050.0, p.TP2)
	assert.Equal(t, string(tradestate.Ready), p.State.TradeState)
	assert.Equal(t, string(confluence.PhasePullback), p.State.MarketPhase)
	assert.True(t, p.State.TimingReady)
	assert.False(t, p.State.ExtensionBlocked)
	assert.True(t, res.Sent)
	assert.Equal(t, 1, f.notifier.count())

	st, err := f.store.GetDay(ctx, res.Day)
	require.NoError(t, err)
	trade := st.Active
	require.NotNil(t, trade)
	assert.Equal(t, models.Buy, trade.Direction)
	assert.Equal(t, 5025.5, trade.Entry)
	assert.Equal(t, 5001.0, trade.StopLoss)
	assert.Equal(t, 5037.75, trade.TP1)
	assert.Equal(t, 5050.0, trade.TP2)
	assert.True(t, trade.StartedAt.Equal(now))
	require.NotNil(t, trade.InvalidLevel)
	assert.Equal(t, 5019.0, *trade.InvalidLevel)
	assert.Equal(t, 2.0, trade.InvalidBuffer)
	assert.Equal(t, res.SignalKey, st.LastSignalKey)
	require.NotNil(t, st.LastDecisionAt)

	// A minute later the trade is followed, not announced again.
	f.clock.Advance(time.Minute)
	res, err = f.pipeline.Analyze(ctx)
	require.NoError(t, err)
	assert.Equal(t, models.BlockedActiveTrade, res.Packet.Decision.BlockedBy)
	assert.False(t, res.Sent)
	assert.Equal(t, 1, f.notifier.count())
}

func TestSignalKey(t *testing.T) {
	a := SignalKey("XAUUSD", "2026-03-10T14:00:00Z")
	assert.Len(t, a, 40)
	assert.Equal(t, a, SignalKey("XAUUSD", "2026-03-10T14:00:00Z"))
	assert.NotEqual(t, a, SignalKey("XAUUSD", "2026-03-10T14:01:00Z"))
}

// goEvaluation is a READY proposal that clears every veto.
func goEvaluation() *evaluation {
	bar := paris(14, 45)
	return &evaluation{
		proposal: &setup.Proposal{
			Direction: models.Buy,
			Entry:     5027, StopLoss: 5007, TP1: 5037, TP2: 5047,
			RRTP1: 0.5, RRTP2: 1,
			SetupType: analysis.PullbackSR,
			Buffer:    2,
			SwingLow:  5015, SwingHigh: 5040,
			BarTime:   &bar,
		},
		state: tradestate.Result{State: tradestate.Ready, Reason: "Confluence validée"},
		phase: confluence.PhaseResult{Phase: confluence.PhasePullback},
		score: scoring.Result{
			Score:       86,
			EdgeReasons: []scoring.Reason{{Delta: 20, Text: "• Structure H1 alignée"}},
			EntryReasons: []scoring.Reason{
				{Delta: 0, Text: "• Timing M5 manquant"},
				{Delta: 15, Text: "• Pullback sur S/R"},
			},
			RiskReasons: []scoring.Reason{{Delta: 10, Text: "• RR correct"}},
		},
	}
}

func goPacket(ev *evaluation) *models.DecisionPacket {
	p := passingPacket()
	prop := ev.proposal
	p.Direction = prop.Direction
	p.Entry, p.StopLoss, p.TP1, p.TP2 = prop.Entry, prop.StopLoss, prop.TP1, prop.TP2
	p.RRTP1 = prop.RRTP1
	p.Score = ev.score.Score
	return p
}

func TestDecide_GoCreatesActiveTrade(t *testing.T) {
	f := newPipelineFixture(t)
	now := f.clock.Now()
	ev := goEvaluation()
	packet := goPacket(ev)
	// Follow-up markers left by the previous trade of the day.
	alerted := now.Add(-5 * time.Minute)
	st := &models.DayState{
		DailyBudget:            20,
		LastSuiviAlertAt:       &alerted,
		LastSituationAt:        &alerted,
		LastSituationSignature: "BUY|BULL|be=false|sl=5012.00|pos",
	}

	f.pipeline.decide(packet, ev, st, now, nil)
	d := packet.Decision
	require.Equal(t, models.StatusGo, d.Status, d.Why)
	assert.Equal(t, models.BlockedNone, d.BlockedBy)
	assert.Equal(t, 86, d.ScoreEffective)
	assert.Equal(t, models.QualityA, d.Quality)
	assert.Equal(t, []string{"Structure H1 alignée", "Pullback sur S/R", "RR correct"}, d.Why)

	f.pipeline.commit(packet, ev, st, now, "sig-1")
	require.NotNil(t, st.Active)
	assert.Equal(t, models.Buy, st.Active.Direction)
	assert.Equal(t, 5027.0, st.Active.Entry)
	assert.Equal(t, 5007.0, st.Active.StopLoss)
	assert.True(t, st.Active.StartedAt.Equal(now))
	require.NotNil(t, st.Active.InvalidLevel)
	assert.Equal(t, 5015.0, *st.Active.InvalidLevel)
	assert.Equal(t, 2.0, st.Active.InvalidBuffer)
	assert.Equal(t, "sig-1", st.LastSignalKey)
	assert.Zero(t, st.SetupConfirmCount)
	require.NotNil(t, st.LastDecisionAt)
	assert.Nil(t, st.LastSuiviAlertAt)
	assert.Nil(t, st.LastSituationAt)
	assert.Empty(t, st.LastSituationSignature)
}

func TestDecide_ActiveTradeVetoesAndFreezesState(t *testing.T) {
	f := newPipelineFixture(t)
	now := f.clock.Now()
	ev := goEvaluation()
	packet := goPacket(ev)
	existing := sellTrade()
	last := now.Add(-time.Hour)
	st := &models.DayState{
		DailyBudget:       20,
		Active:            &existing,
		LastDecisionAt:    &last,
		LastSignalKey:     "sig-1",
		SetupConfirmCount: 1,
	}

	f.pipeline.decide(packet, ev, st, now, nil)
	d := packet.Decision
	assert.Equal(t, models.StatusNoGo, d.Status)
	assert.Equal(t, models.BlockedActiveTrade, d.BlockedBy)
	assert.Zero(t, d.ScoreEffective)
	assert.Equal(t, []string{"Trade SELL actif depuis 14:00, suivi en cours"}, d.Why)

	f.pipeline.commit(packet, ev, st, now, "sig-2")
	require.NotNil(t, st.Active)
	assert.Equal(t, existing, *st.Active)
	assert.Equal(t, "sig-1", st.LastSignalKey)
	assert.True(t, st.LastDecisionAt.Equal(last))
	assert.Equal(t, 1, st.SetupConfirmCount)
	assert.Nil(t, st.LastSetupBarAt)
	assert.Empty(t, st.TradeState)
}

func TestPipeline_ActiveTradeIsSilent(t *testing.T) {
	f := newPipelineFixture(t)
	ctx := context.Background()
	day := f.pipeline.Session().Day(f.clock.Now())
	existing := buyTrade()
	require.NoError(t, f.store.WithDay(ctx, day, func(st *models.DayState) error {
		st.OpenTrade(&existing)
		return nil
	}))

	res, err := f.pipeline.Analyze(ctx)
	require.NoError(t, err)
	assert.Equal(t, models.BlockedActiveTrade, res.Packet.Decision.BlockedBy)
	assert.False(t, res.Sent)
	assert.Zero(t, f.notifier.count())

	st, err := f.store.GetDay(ctx, day)
	require.NoError(t, err)
	require.NotNil(t, st.Active)
	assert.Equal(t, existing.Key(), st.Active.Key())
	assert.Nil(t, st.LastDecisionAt)
	assert.Empty(t, st.LastSignalKey)
	assert.Zero(t, st.SetupConfirmCount)
}

func TestPipeline_TradeFromPreviousDayVetoes(t *testing.T) {
	f := newPipelineFixture(t)
	ctx := context.Background()
	today := f.pipeline.Session().Day(f.clock.Now())
	yesterday := f.pipeline.Session().Day(f.clock.Now().Add(-24 * time.Hour))
	trade := buyTrade()
	trade.StartedAt = f.clock.Now().Add(-20 * time.Hour)
	require.NoError(t, f.store.WithDay(ctx, yesterday, func(st *models.DayState) error {
		st.OpenTrade(&trade)
		return nil
	}))

	res, err := f.pipeline.Analyze(ctx)
	require.NoError(t, err)
	assert.Equal(t, models.BlockedActiveTrade, res.Packet.Decision.BlockedBy)
	assert.False(t, res.Sent)

	st, err := f.store.GetDay(ctx, today)
	require.NoError(t, err)
	assert.Nil(t, st.Active)
	assert.Nil(t, st.LastDecisionAt)
}

func TestDecide_VetoOrder(t *testing.T) {
	f := newPipelineFixture(t)
	now := f.clock.Now()

	tests := []struct {
		name    string
		mutate  func(ev *evaluation, p *models.DecisionPacket)
		blocked models.BlockedBy
		why     string
	}{
		{
			"extension beats state",
			func(ev *evaluation, _ *models.DecisionPacket) {
				ev.extension = extension.Result{Blocked: true, Reason: "Prix trop loin de la structure"}
				ev.state = tradestate.Result{State: tradestate.Watching, Reason: "timing"}
			},
			models.BlockedExtension, "Prix trop loin de la structure",
		},
		{
			"state not ready",
			func(ev *evaluation, _ *models.DecisionPacket) {
				ev.state = tradestate.Result{State: tradestate.Watching, Reason: "timing non confirmé"}
			},
			models.BlockedStateNotReady, "State machine non prête: timing non confirmé",
		},
		{
			"score below threshold",
			func(_ *evaluation, p *models.DecisionPacket) { p.Score = 79 },
			models.BlockedNoSetup, "Score insuffisant",
		},
		{
			"gate beats extension",
			func(ev *evaluation, p *models.DecisionPacket) {
				ev.extension = extension.Result{Blocked: true, Reason: "loin"}
				p.ATR = 45
			},
			models.BlockedVolatilityTooHigh, "Volatilité trop élevée",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ev := goEvaluation()
			packet := goPacket(ev)
			tt.mutate(ev, packet)
			st := &models.DayState{DailyBudget: 20}

			f.pipeline.decide(packet, ev, st, now, nil)
			assert.Equal(t, models.StatusNoGo, packet.Decision.Status)
			assert.Equal(t, tt.blocked, packet.Decision.BlockedBy)
			assert.Equal(t, []string{tt.why}, packet.Decision.Why)
			assert.Zero(t, packet.Decision.ScoreEffective)

			f.pipeline.commit(packet, ev, st, now, "sig")
			assert.Nil(t, st.Active)
			assert.Nil(t, st.LastDecisionAt)
		})
	}
}

func TestVerdict_Confidence(t *testing.T) {
	assert.Equal(t, 50, verdict(models.StatusNoGo, models.BlockedNoSetup, 12, nil).Confidence)
	assert.Equal(t, 92, verdict(models.StatusGo, models.BlockedNone, 92, nil).Confidence)
	assert.Equal(t, models.QualityAPlus, verdict(models.StatusGo, models.BlockedNone, 92, nil).Quality)
}
