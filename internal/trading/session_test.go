package trading

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newSession(t *testing.T, mutate func(p *SessionParams)) *SessionManager {
	t.Helper()
	p := DefaultSessionParams()
	if mutate != nil {
		mutate(&p)
	}
	sm, err := NewSessionManager(p)
	require.NoError(t, err)
	return sm
}

// paris builds a winter (UTC+1) Paris wall-clock time as UTC.
func paris(hour, minute int) time.Time {
	return time.Date(2026, 3, 10, hour-1, minute, 0, 0, time.UTC)
}

func TestSession_Windows(t *testing.T) {
	sm := newSession(t, nil)

	tests := []struct {
		name string
		at   time.Time
		open bool
	}{
		{"before afternoon window", paris(14, 29), false},
		{"afternoon start", paris(14, 30), true},
		{"afternoon", paris(16, 0), true},
		{"afternoon end inclusive", paris(18, 30), true},
		{"between windows", paris(19, 0), false},
		{"evening", paris(21, 15), true},
		{"after evening", paris(22, 1), false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.open, sm.InSession(tt.at))
		})
	}
}

func TestSession_WindowDescription(t *testing.T) {
	sm := newSession(t, nil)
	info := sm.GetSessionAt(paris(15, 0))
	require.NotNil(t, info.Window)
	assert.Equal(t, "Fenêtre 14:30-18:30", info.Description)
	assert.Equal(t, 15, info.LocalTime.Hour())

	info = sm.GetSessionAt(paris(10, 0))
	assert.False(t, info.Open)
	assert.Equal(t, "Hors fenêtre de trading", info.Description)
}

func TestSession_MarketCloseWrapsMidnight(t *testing.T) {
	sm := newSession(t, func(p *SessionParams) { p.Mode = SessionMarketClose })

	assert.True(t, sm.InSession(paris(23, 54)))
	assert.False(t, sm.InSession(paris(23, 58)))
	assert.False(t, sm.InSession(time.Date(2026, 3, 10, 23, 3, 0, 0, time.UTC))) // 00:03 Paris
	assert.True(t, sm.InSession(time.Date(2026, 3, 10, 23, 6, 0, 0, time.UTC)))
}

func TestSession_AlwaysOpen(t *testing.T) {
	sm := newSession(t, func(p *SessionParams) { p.AlwaysInSession = true })
	assert.True(t, sm.InSession(paris(3, 0)))

	off := newSession(t, func(p *SessionParams) { p.Mode = SessionOff })
	assert.True(t, off.InSession(paris(3, 0)))
}

func TestSession_Liquidity(t *testing.T) {
	sm := newSession(t, nil)

	ok, reason := sm.LiquidityCheck(paris(15, 0))
	assert.True(t, ok)
	assert.Empty(t, reason)

	ok, reason = sm.LiquidityCheck(paris(6, 0))
	assert.False(t, ok)
	assert.Equal(t, "Hors heures liquides (6h Paris, fenêtre 8h-23h)", reason)
}

func TestSession_LiquidityNightWindow(t *testing.T) {
	sm := newSession(t, func(p *SessionParams) {
		p.LiquidStartHour = 22
		p.LiquidEndHour = 6
	})

	ok, _ := sm.LiquidityCheck(paris(23, 0))
	assert.True(t, ok)
	ok, _ = sm.LiquidityCheck(time.Date(2026, 3, 10, 3, 0, 0, 0, time.UTC)) // 04:00 Paris
	assert.True(t, ok)
	ok, reason := sm.LiquidityCheck(paris(12, 0))
	assert.False(t, ok)
	assert.Equal(t, "Hors heures liquides (12h Paris)", reason)
}

func TestSession_DayUsesParisDate(t *testing.T) {
	sm := newSession(t, nil)
	// 23:30 UTC is already the next day in Paris.
	assert.Equal(t, "2026-03-11", sm.Day(time.Date(2026, 3, 10, 23, 30, 0, 0, time.UTC)))
	assert.Equal(t, "2026-03-10", sm.Day(time.Date(2026, 3, 10, 22, 30, 0, 0, time.UTC)))
}

func TestSession_NextOpen(t *testing.T) {
	sm := newSession(t, nil)
	next := sm.NextOpen(paris(10, 7))
	assert.Equal(t, paris(14, 30), next)

	open := paris(15, 0)
	assert.Equal(t, open, sm.NextOpen(open))
}

func TestParseWindow(t *testing.T) {
	w, err := ParseWindow("20:00-22:00")
	require.NoError(t, err)
	assert.Equal(t, Window{Start: 20 * 60, End: 22 * 60}, w)
	assert.Equal(t, "20:00-22:00", w.String())

	for _, raw := range []string{"", "20:00", "25:00-26:00", "20:61-21:00", "ab:cd-ef:gh"} {
		_, err := ParseWindow(raw)
		assert.Error(t, err, raw)
	}
}

func TestNewSessionManager_BadTimezone(t *testing.T) {
	p := DefaultSessionParams()
	p.Timezone = "Mars/Olympus"
	_, err := NewSessionManager(p)
	assert.Error(t, err)
}
