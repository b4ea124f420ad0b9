package news

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	apperrors "gold-scalper/internal/errors"
	"gold-scalper/internal/models"
	"gold-scalper/internal/resilience"
)

type fakeSource struct {
	name   string
	events []models.NewsEvent
	err    error
	calls  int
}

func (f *fakeSource) Name() string { return f.name }

func (f *fakeSource) Events(context.Context, time.Time) ([]models.NewsEvent, error) {
	f.calls++
	return f.events, f.err
}

func TestDefaultParams(t *testing.T) {
	p := DefaultParams()
	assert.Equal(t, ProviderStatic, p.Provider)
	assert.Equal(t, 300, p.CacheTTLSec)
	assert.Equal(t, 4, p.TimeoutSec)
	assert.Equal(t, 1, p.Retry)
	assert.True(t, p.FallbackToStatic)
	assert.Equal(t, []string{"USD"}, p.Currencies)
	assert.Equal(t, []string{"united states"}, p.Countries)
	assert.Equal(t, []int{60, 30, 15}, p.PreAlertMinutes)
	assert.Equal(t, "https://api.tradingeconomics.com", p.TEBaseURL)
}

func TestProvider_Healthy(t *testing.T) {
	src := &fakeSource{name: "calendar_api", events: []models.NewsEvent{event("NFP", "HIGH", 10*time.Minute)}}
	p := NewProvider(DefaultParams(), src, nil, zerolog.Nop())

	st, err := p.Lock(context.Background(), now)
	require.NoError(t, err)
	assert.True(t, st.ProviderOK)
	assert.True(t, st.LockActive)
	assert.Equal(t, 1, st.RawCount)
	assert.Equal(t, "calendar_api", p.Name())
}

func TestProvider_DegradedUsesFallback(t *testing.T) {
	primary := &fakeSource{name: "calendar_api", err: apperrors.ErrProviderDown}
	fallback := &fakeSource{name: "static", events: []models.NewsEvent{event("CPI", "HIGH", 5*time.Minute)}}
	p := NewProvider(DefaultParams(), primary, fallback, zerolog.Nop())

	st, err := p.Lock(context.Background(), now)
	require.Error(t, err)
	assert.True(t, apperrors.IsProviderDegraded(err))
	assert.True(t, errors.Is(err, apperrors.ErrProviderDown))

	var pd *apperrors.ProviderDegradedError
	require.ErrorAs(t, err, &pd)
	assert.True(t, pd.Fallback)

	assert.False(t, st.ProviderOK)
	assert.True(t, st.LockActive)
	require.NotNil(t, st.NextEvent)
	assert.Equal(t, "CPI", st.NextEvent.Title)
}

func TestProvider_DegradedWithoutFallback(t *testing.T) {
	params := DefaultParams()
	params.FallbackToStatic = false
	primary := &fakeSource{name: "api", err: apperrors.ErrProviderDown}
	fallback := &fakeSource{name: "static", events: []models.NewsEvent{event("CPI", "HIGH", 5*time.Minute)}}
	p := NewProvider(params, primary, fallback, zerolog.Nop())

	st, err := p.Lock(context.Background(), now)
	assert.True(t, apperrors.IsProviderDegraded(err))
	assert.False(t, st.ProviderOK)
	assert.False(t, st.LockActive)
	assert.Zero(t, st.RawCount)
	assert.Zero(t, fallback.calls)
}

func TestProvider_BreakerOpensAfterFailures(t *testing.T) {
	primary := &fakeSource{name: "api", err: apperrors.ErrProviderDown}
	p := NewProvider(DefaultParams(), primary, nil, zerolog.Nop())

	for i := 0; i < 8; i++ {
		_, err := p.Lock(context.Background(), now)
		require.Error(t, err)
	}
	// Five failures open the circuit; later calls never reach the source.
	assert.Equal(t, 5, primary.calls)

	snap := p.Circuit()
	assert.Equal(t, "news:api", snap.Name)
	assert.Equal(t, resilience.StateOpen, snap.State)
}

func TestBuild(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "calendar.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
- id: nfp
  datetime_iso: "2026-03-10T13:20:00Z"
  impact: HIGH
  title: Non-Farm Payrolls
  currency: USD
`), 0o644))

	t.Run("static", func(t *testing.T) {
		params := DefaultParams()
		params.CalendarPath = path
		p, err := Build(params, nil, zerolog.Nop())
		require.NoError(t, err)
		assert.Equal(t, ProviderStatic, p.Name())

		st, err := p.Lock(context.Background(), now)
		require.NoError(t, err)
		assert.True(t, st.LockActive)
		assert.True(t, st.ProviderOK)
	})

	t.Run("none", func(t *testing.T) {
		params := DefaultParams()
		params.Provider = ProviderNone
		p, err := Build(params, nil, zerolog.Nop())
		require.NoError(t, err)
		st, err := p.Lock(context.Background(), now)
		require.NoError(t, err)
		assert.False(t, st.LockActive)
		assert.Zero(t, st.RawCount)
	})

	t.Run("tradingeconomics needs a key", func(t *testing.T) {
		params := DefaultParams()
		params.Provider = ProviderTradingEconomics
		_, err := Build(params, nil, zerolog.Nop())
		assert.ErrorIs(t, err, apperrors.ErrConfigInvalid)
	})

	t.Run("unknown", func(t *testing.T) {
		params := DefaultParams()
		params.Provider = "rss"
		_, err := Build(params, nil, zerolog.Nop())
		assert.ErrorIs(t, err, apperrors.ErrConfigInvalid)
	})

	t.Run("calendar api without url falls back to file", func(t *testing.T) {
		params := DefaultParams()
		params.Provider = ProviderCalendarAPI
		params.CalendarPath = path
		p, err := Build(params, NewMemoryCache(nil), zerolog.Nop())
		require.NoError(t, err)

		st, err := p.Lock(context.Background(), now)
		assert.True(t, apperrors.IsProviderDegraded(err))
		assert.False(t, st.ProviderOK)
		assert.True(t, st.LockActive)
	})
}
