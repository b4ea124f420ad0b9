package store

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"gold-scalper/internal/models"
)

const testDay = "2026-02-02"

func newTestStore(t *testing.T) *SQLiteStore {
	t.Helper()
	s, err := NewSQLiteStore(Options{
		Path:        filepath.Join(t.TempDir(), "test.db"),
		DailyBudget: 100,
	}, nil)
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

var started = time.Date(2026, 2, 2, 10, 0, 0, 0, time.UTC)

func openTrade(t *testing.T, s *SQLiteStore, dir models.Direction, entry, sl, tp1, tp2 float64) {
	t.Helper()
	err := s.WithDay(context.Background(), testDay, func(st *models.DayState) error {
		st.Active = &models.ActiveTrade{
			Symbol:    "XAUUSD",
			Direction: dir,
			Entry:     entry,
			StopLoss:  sl,
			TP1:       tp1,
			TP2:       tp2,
			StartedAt: started,
		}
		return nil
	})
	require.NoError(t, err)
}

func TestGetDay_FreshRecord(t *testing.T) {
	s := newTestStore(t)
	st, err := s.GetDay(context.Background(), testDay)
	require.NoError(t, err)
	assert.Equal(t, testDay, st.Day)
	assert.Equal(t, 100.0, st.DailyBudget)
	assert.Nil(t, st.Active)
}

func TestWithDay_RollsBackOnError(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	boom := errors.New("boom")
	err := s.WithDay(ctx, testDay, func(st *models.DayState) error {
		st.DailyLoss = 12
		return boom
	})
	require.ErrorIs(t, err, boom)

	st, err := s.GetDay(ctx, testDay)
	require.NoError(t, err)
	assert.Zero(t, st.DailyLoss)
}

func TestActiveTradeRoundTrip(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	openTrade(t, s, models.Buy, 5027, 5012, 5032, 5045)

	st, err := s.GetDay(ctx, testDay)
	require.NoError(t, err)
	require.NotNil(t, st.Active)
	assert.Equal(t, models.Buy, st.Active.Direction)
	assert.Equal(t, 5012.0, st.Active.StopLoss)
	assert.True(t, st.Active.StartedAt.Equal(started))

	require.NoError(t, s.WithDay(ctx, testDay, func(st *models.DayState) error {
		st.Active = nil
		return nil
	}))
	st, err = s.GetDay(ctx, testDay)
	require.NoError(t, err)
	assert.Nil(t, st.Active)
}

func TestApplyBreakeven_Buy(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	openTrade(t, s, models.Buy, 5027, 5012, 5032, 5045)

	ok, err := s.ApplyBreakeven(ctx, testDay, started, 5027+2, 2.5, started.Add(time.Hour))
	require.NoError(t, err)
	assert.True(t, ok)

	st, err := s.GetDay(ctx, testDay)
	require.NoError(t, err)
	assert.Equal(t, 5029.0, st.Active.StopLoss)
	assert.True(t, st.Active.BEApplied)
	assert.Equal(t, 2.5, st.Active.TP1PartialPoints)
}

func TestApplyBreakeven_Sell(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	openTrade(t, s, models.Sell, 5027, 5042, 5020, 5005)

	ok, err := s.ApplyBreakeven(ctx, testDay, started, 5027-1.5, 3.5, started.Add(time.Hour))
	require.NoError(t, err)
	assert.True(t, ok)

	st, err := s.GetDay(ctx, testDay)
	require.NoError(t, err)
	assert.Equal(t, 5025.5, st.Active.StopLoss)
}

func TestApplyBreakeven_Idempotent(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	openTrade(t, s, models.Buy, 5027, 5012, 5032, 5045)

	first, err := s.ApplyBreakeven(ctx, testDay, started, 5027, 2.5, started)
	require.NoError(t, err)
	second, err := s.ApplyBreakeven(ctx, testDay, started, 5027, 2.5, started)
	require.NoError(t, err)
	assert.True(t, first)
	assert.False(t, second)
}

func TestWithDay_StaleCopyKeepsBreakeven(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	openTrade(t, s, models.Buy, 5027, 5012, 5032, 5045)

	stale, err := s.GetDay(ctx, testDay)
	require.NoError(t, err)
	_, err = s.ApplyBreakeven(ctx, testDay, started, 5027, 2.5, started)
	require.NoError(t, err)

	require.NoError(t, s.WithDay(ctx, testDay, func(st *models.DayState) error {
		st.Active = stale.Active
		return nil
	}))

	st, err := s.GetDay(ctx, testDay)
	require.NoError(t, err)
	assert.True(t, st.Active.BEApplied)
	assert.Equal(t, 5027.0, st.Active.StopLoss)
}

func TestAppendOutcome_OncePerTrade(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	o := &models.TradeOutcome{
		Day: testDay, Symbol: "XAUUSD", Direction: models.Buy,
		StartedAt: started, ClosedAt: started.Add(30 * time.Minute),
		Entry: 5027, Exit: 5012, Points: -15, Reason: "SL",
	}

	ok, err := s.AppendOutcome(ctx, o)
	require.NoError(t, err)
	assert.True(t, ok)
	dup := *o
	ok, err = s.AppendOutcome(ctx, &dup)
	require.NoError(t, err)
	assert.False(t, ok)

	outs, err := s.Outcomes(ctx, testDay)
	require.NoError(t, err)
	require.Len(t, outs, 1)
	assert.Equal(t, -15.0, outs[0].Points)
}

func TestSignalsAndSummary(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	goRec := &models.SignalRecord{
		Timestamp: started, Day: testDay, Symbol: "XAUUSD", Status: models.StatusGo,
		Direction: models.Buy, SignalKey: "abc", TelegramSent: true, Why: []string{"Score 92"},
	}
	noGo := &models.SignalRecord{
		Timestamp: started.Add(15 * time.Minute), Day: testDay, Symbol: "XAUUSD",
		Status: models.StatusNoGo, BlockedBy: models.BlockedDuplicateSignal, SignalKey: "def",
	}
	_, err := s.SaveSignal(ctx, goRec)
	require.NoError(t, err)
	_, err = s.SaveSignal(ctx, noGo)
	require.NoError(t, err)

	sent, err := s.WasTelegramSent(ctx, "abc")
	require.NoError(t, err)
	assert.True(t, sent)
	sent, err = s.WasTelegramSent(ctx, "def")
	require.NoError(t, err)
	assert.False(t, sent)

	recent, err := s.RecentSignals(ctx, SignalFilter{Day: testDay, Limit: 10})
	require.NoError(t, err)
	require.Len(t, recent, 2)
	assert.Equal(t, models.BlockedDuplicateSignal, recent[0].BlockedBy)
	assert.Equal(t, []string{"Score 92"}, recent[1].Why)

	_, err = s.AppendOutcome(ctx, &models.TradeOutcome{
		Day: testDay, Symbol: "XAUUSD", Direction: models.Buy,
		StartedAt: started, ClosedAt: started.Add(time.Hour), Points: 5,
	})
	require.NoError(t, err)

	sum, err := s.Summary(ctx, testDay)
	require.NoError(t, err)
	assert.Equal(t, 1, sum.GoCount)
	assert.Equal(t, 1, sum.NoGoCount)
	assert.Equal(t, []float64{5}, sum.Outcomes)
	assert.Equal(t, 1, sum.Wins)
	assert.Equal(t, 1.0, sum.WinRate)
}

func TestMarkOnce(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	first, err := s.MarkOnce(ctx, "prealert:2026-02-02T14:30:00Z:30", started)
	require.NoError(t, err)
	second, err := s.MarkOnce(ctx, "prealert:2026-02-02T14:30:00Z:30", started)
	require.NoError(t, err)
	assert.True(t, first)
	assert.False(t, second)

	require.NoError(t, s.SetMeta(ctx, "k", "v1"))
	require.NoError(t, s.SetMeta(ctx, "k", "v2"))
	v, ok, err := s.GetMeta(ctx, "k")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, "v2", v)
}

func TestResetDay(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	openTrade(t, s, models.Buy, 5027, 5012, 5032, 5045)
	require.NoError(t, s.WithDay(ctx, testDay, func(st *models.DayState) error {
		now := started
		st.LastDecisionAt = &now
		st.LastSignalKey = "abc"
		return nil
	}))

	require.NoError(t, s.ResetDay(ctx, testDay, ResetOptions{ClearActive: true, ClearCooldown: true}))
	st, err := s.GetDay(ctx, testDay)
	require.NoError(t, err)
	assert.Nil(t, st.Active)
	assert.Nil(t, st.LastDecisionAt)
	assert.Empty(t, st.LastSignalKey)
}

func TestMutexLocker(t *testing.T) {
	l := NewMutexLocker()
	unlock, err := l.Lock(context.Background(), "day:x")
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	_, err = l.Lock(ctx, "day:x")
	assert.ErrorIs(t, err, context.DeadlineExceeded)

	other, err := l.Lock(context.Background(), "day:y")
	require.NoError(t, err)
	other()

	unlock()
	unlock()
	again, err := l.Lock(context.Background(), "day:x")
	require.NoError(t, err)
	again()
}
