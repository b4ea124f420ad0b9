package news

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	apperrors "gold-scalper/internal/errors"
)

const calendarBody = `{"source": "fx-calendar", "events": [
	{"id": 101, "datetime_utc": "2026-03-10T13:30:00Z", "currency": "USD", "impact": "H", "title": "CPI y/y", "forecast": 3.1, "previous": "3.0"},
	{"event_id": "ecb", "datetime": "2026-03-10T13:15:00Z", "ccy": "EUR", "impact": "HIGH", "event": "ECB rate"},
	{"datetime_iso": "2026-03-10T15:00:00Z", "currency": "USD", "impact_level": "M", "name": "ISM"},
	{"time": "2026-03-10T16:00:00Z", "currency": "USD", "impact": "HIGH", "title": "Fed speech"},
	{"currency": "USD", "impact": "HIGH", "title": "no time"}
]}`

func TestCalendarSource_FiltersAndNormalizes(t *testing.T) {
	var query, auth, path string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		path = r.URL.Path
		query = r.URL.RawQuery
		auth = r.Header.Get("Authorization")
		_, _ = w.Write([]byte(calendarBody))
	}))
	defer srv.Close()

	src := NewCalendarSource(CalendarConfig{
		Name: ProviderCalendarAPI, BaseURL: srv.URL + "/", Path: "/calendar", APIKey: "k3y",
		Currencies: []string{"usd", " "}, ImpactMin: "HIGH",
	}, srv.Client(), zerolog.Nop())

	events, err := src.Events(context.Background(), now)
	require.NoError(t, err)

	assert.Equal(t, "/calendar", path)
	assert.Equal(t, "Bearer k3y", auth)
	assert.Equal(t, "currencies=USD&impact_min=HIGH", query)

	require.Len(t, events, 2)
	assert.Equal(t, "101", events[0].ID)
	assert.Equal(t, "CPI y/y", events[0].Title)
	assert.Equal(t, ImpactHigh, events[0].Impact)
	assert.Equal(t, "3.1", events[0].Forecast)
	assert.Equal(t, "fx-calendar", events[0].Source)
	assert.Equal(t, "USD-Fed speech-2026-03-10T16:00:00Z", events[1].ID)
}

func TestCalendarSource_EventsEndpointUnfiltered(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/events", r.URL.Path)
		assert.Empty(t, r.URL.RawQuery)
		_, _ = w.Write([]byte(calendarBody))
	}))
	defer srv.Close()

	src := NewCalendarSource(CalendarConfig{Name: ProviderAPI, BaseURL: srv.URL, Path: "/events"}, srv.Client(), zerolog.Nop())
	events, err := src.Events(context.Background(), now)
	require.NoError(t, err)
	assert.Len(t, events, 4)
	assert.Equal(t, "ecb", events[1].ID)
	assert.Equal(t, ImpactMedium, events[2].Impact)
}

func TestCalendarSource_BareList(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte(`[{"id": "a", "datetime_utc": "2026-03-10T13:30:00Z", "currency": "USD", "impact": "HIGH", "title": "NFP"}]`))
	}))
	defer srv.Close()

	src := NewCalendarSource(CalendarConfig{Name: ProviderAPI, BaseURL: srv.URL, Path: "/events"}, srv.Client(), zerolog.Nop())
	events, err := src.Events(context.Background(), now)
	require.NoError(t, err)
	require.Len(t, events, 1)
	assert.Equal(t, ProviderAPI, events[0].Source)
}

func TestCalendarSource_RetriesServerErrors(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		if calls.Add(1) == 1 {
			http.Error(w, "busy", http.StatusBadGateway)
			return
		}
		_, _ = w.Write([]byte(`{"events": []}`))
	}))
	defer srv.Close()

	src := NewCalendarSource(CalendarConfig{Name: ProviderAPI, BaseURL: srv.URL, Path: "/events", Retry: 1}, srv.Client(), zerolog.Nop())
	events, err := src.Events(context.Background(), now)
	require.NoError(t, err)
	assert.Empty(t, events)
	assert.Equal(t, int32(2), calls.Load())
}

func TestCalendarSource_ClientErrorNotRetried(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		calls.Add(1)
		http.Error(w, "bad key", http.StatusUnauthorized)
	}))
	defer srv.Close()

	src := NewCalendarSource(CalendarConfig{Name: ProviderAPI, BaseURL: srv.URL, Path: "/events", Retry: 3}, srv.Client(), zerolog.Nop())
	_, err := src.Events(context.Background(), now)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "401")
	assert.Equal(t, int32(1), calls.Load())
}

func TestCalendarSource_Malformed(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte(`<html>maintenance</html>`))
	}))
	defer srv.Close()

	src := NewCalendarSource(CalendarConfig{Name: ProviderAPI, BaseURL: srv.URL, Path: "/events"}, srv.Client(), zerolog.Nop())
	_, err := src.Events(context.Background(), now)
	var mr *apperrors.MalformedResponseError
	assert.ErrorAs(t, err, &mr)
}

func TestCalendarSource_Unreachable(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	url := srv.URL
	srv.Close()

	src := NewCalendarSource(CalendarConfig{Name: ProviderAPI, BaseURL: url, Path: "/events"}, nil, zerolog.Nop())
	_, err := src.Events(context.Background(), now)
	assert.ErrorIs(t, err, apperrors.ErrProviderDown)
}
