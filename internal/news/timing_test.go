package news

import (
	"strconv"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"gold-scalper/internal/models"
)

var now = time.Date(2026, 3, 10, 13, 0, 0, 0, time.UTC)

func event(title, impact string, in time.Duration) models.NewsEvent {
	return models.NewsEvent{ID: title, Title: title, Impact: impact, Currency: "USD", Time: now.Add(in)}
}

func TestComputeState_NoEvents(t *testing.T) {
	st := ComputeState(DefaultParams(), nil, now)
	assert.Equal(t, MomentNone, st.Moment)
	assert.Nil(t, st.NextEvent)
	assert.Nil(t, st.MinutesToEvent)
	assert.False(t, st.LockActive)
	assert.Equal(t, 30, st.HorizonMinutes)
}

func TestComputeState_HighLockWindow(t *testing.T) {
	p := DefaultParams()
	tests := []struct {
		name   string
		in     time.Duration
		locked bool
	}{
		{"45 min before", 45 * time.Minute, false},
		{"30 min before", 30 * time.Minute, true},
		{"at release", 0, true},
		{"89 min after", -89 * time.Minute, true},
		{"90 min after", -90 * time.Minute, true},
		{"91 min after", -91 * time.Minute, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			st := ComputeState(p, []models.NewsEvent{event("NFP", "HIGH", tt.in)}, now)
			assert.Equal(t, tt.locked, st.LockActive)
			assert.Equal(t, -30, st.LockWindowStartMin)
			assert.Equal(t, 90, st.LockWindowEndMin)
			if tt.locked {
				assert.Contains(t, st.LockReason, "NFP")
			}
		})
	}
}

func TestComputeState_MediumAndLow(t *testing.T) {
	p := DefaultParams()

	st := ComputeState(p, []models.NewsEvent{event("PMI", "MED", 8*time.Minute)}, now)
	assert.True(t, st.LockActive)
	assert.Equal(t, ImpactMedium, st.NextEvent.Impact)
	assert.Equal(t, 5, st.HorizonMinutes)

	st = ComputeState(p, []models.NewsEvent{event("PMI", "MEDIUM", 12*time.Minute)}, now)
	assert.False(t, st.LockActive)

	st = ComputeState(p, []models.NewsEvent{event("Speech", "LOW", 0)}, now)
	assert.False(t, st.LockActive)
	assert.Equal(t, MomentNow, st.Moment)
	assert.Equal(t, 30, st.HorizonMinutes)
}

func TestComputeState_PastLockedEventBeatsUpcoming(t *testing.T) {
	events := []models.NewsEvent{
		event("Claims", "LOW", 20*time.Minute),
		event("CPI", "HIGH", -40*time.Minute),
	}
	st := ComputeState(DefaultParams(), events, now)
	require.NotNil(t, st.NextEvent)
	assert.Equal(t, "CPI", st.NextEvent.Title)
	assert.True(t, st.LockActive)
	assert.Equal(t, -40, *st.MinutesToEvent)
	assert.Equal(t, 2, st.RawCount)
}

func TestComputeState_NextUpcoming(t *testing.T) {
	events := []models.NewsEvent{
		event("Late", "HIGH", 5*time.Hour),
		event("Old", "HIGH", -3*time.Hour),
		event("Soon", "HIGH", 2*time.Hour),
	}
	st := ComputeState(DefaultParams(), events, now)
	require.NotNil(t, st.NextEvent)
	assert.Equal(t, "Soon", st.NextEvent.Title)
	assert.Equal(t, 120, *st.MinutesToEvent)
	assert.Equal(t, MomentLater, st.Moment)
	assert.Equal(t, 90, st.HorizonMinutes)
}

func TestComputeState_PreAlertBuckets(t *testing.T) {
	p := DefaultParams()
	for _, m := range []int{60, 30, 15} {
		st := ComputeState(p, []models.NewsEvent{event("NFP", "HIGH", time.Duration(m)*time.Minute)}, now)
		assert.True(t, st.ShouldPreAlert, "T-%d", m)
		assert.Equal(t, "T-"+strconv.Itoa(m), st.BucketLabel)
	}

	st := ComputeState(p, []models.NewsEvent{event("NFP", "HIGH", 45*time.Minute)}, now)
	assert.False(t, st.ShouldPreAlert)

	st = ComputeState(p, []models.NewsEvent{event("Speech", "LOW", 30*time.Minute)}, now)
	assert.False(t, st.ShouldPreAlert)
}

func TestMoment(t *testing.T) {
	tests := []struct {
		minutes int
		moment  string
		horizon int
	}{
		{-5, MomentNow, 30},
		{0, MomentNow, 30},
		{1, MomentNext, 90},
		{90, MomentNext, 90},
		{91, MomentLater, 240},
		{600, MomentLater, 240},
		{601, MomentSwing, 1440},
	}
	for _, tt := range tests {
		m, h := Moment(tt.minutes)
		assert.Equal(t, tt.moment, m, "minutes=%d", tt.minutes)
		assert.Equal(t, tt.horizon, h, "minutes=%d", tt.minutes)
	}
}

func TestMinutesToRounds(t *testing.T) {
	assert.Equal(t, 15, MinutesTo(now, now.Add(14*time.Minute+40*time.Second)))
	assert.Equal(t, -2, MinutesTo(now, now.Add(-2*time.Minute-10*time.Second)))
}

func TestNormalizeImpact(t *testing.T) {
	for in, want := range map[string]string{
		"H": ImpactHigh, "high": ImpactHigh, "MED": ImpactMedium, "m": ImpactMedium,
		"Medium": ImpactMedium, "low": ImpactLow, "": ImpactLow, "holiday": ImpactLow,
	} {
		assert.Equal(t, want, NormalizeImpact(in), in)
	}
}
