package broker

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	apperrors "gold-scalper/internal/errors"
	"gold-scalper/internal/models"
)

func newTestClient(t *testing.T, handler http.HandlerFunc) *MT5Client {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	cfg := DefaultConfig()
	cfg.Provider = ProviderRemoteMT5
	cfg.BridgeURL = srv.URL + "/"
	return NewMT5Client(cfg, zerolog.Nop())
}

func TestMT5_Candles(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/candles", r.URL.Path)
		assert.Equal(t, "XAUUSD", r.URL.Query().Get("symbol"))
		assert.Equal(t, "M15", r.URL.Query().Get("timeframe"))
		assert.Equal(t, "3", r.URL.Query().Get("count"))
		_, _ = w.Write([]byte(`{"symbol": "XAUUSD", "candles": [
			{"time": 1773151200, "open": 5027, "high": 5030, "low": 5025, "close": 5029, "tick_volume": 812},
			{"ts": "2026-03-10T13:45:00+00:00", "open": 5020, "high": 5028, "low": 5019, "close": 5027, "volume": 640},
			{"open": 1, "high": 1, "low": 1, "close": 1}
		]}`))
	})

	candles, err := c.Candles(context.Background(), "XAUUSD", models.M15, 3)
	require.NoError(t, err)
	require.Len(t, candles, 2)
	assert.Equal(t, time.Date(2026, 3, 10, 13, 45, 0, 0, time.UTC), candles[0].Timestamp)
	assert.Equal(t, int64(640), candles[0].Volume)
	assert.Equal(t, time.Date(2026, 3, 10, 14, 0, 0, 0, time.UTC), candles[1].Timestamp)
	assert.Equal(t, 5029.0, candles[1].Close)
	assert.Equal(t, int64(812), candles[1].Volume)
}

func TestMT5_CandlesLegacyParams(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Query().Get("tf") == "" {
			http.Error(w, `{"detail": "timeframe is required"}`, http.StatusUnprocessableEntity)
			return
		}
		assert.Equal(t, "H1", r.URL.Query().Get("tf"))
		assert.Equal(t, "10", r.URL.Query().Get("n"))
		_, _ = w.Write([]byte(`{"candles": [{"time": 1773151200, "open": 1, "high": 2, "low": 0.5, "close": 1.5}]}`))
	})

	candles, err := c.Candles(context.Background(), "XAUUSD", models.H1, 10)
	require.NoError(t, err)
	assert.Len(t, candles, 1)
}

func TestMT5_CandlesUnavailable(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, _ *http.Request) {
		http.Error(w, "no candles", http.StatusServiceUnavailable)
	})
	_, err := c.Candles(context.Background(), "XAUUSD", models.M15, 10)
	assert.True(t, apperrors.IsDataUnavailable(err))
}

func TestMT5_SpreadAndTick(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/spread":
			_, _ = w.Write([]byte(`{"symbol": "XAUUSD", "spread_price": 0.18, "spread_points": 18.0}`))
		case "/tick":
			_, _ = w.Write([]byte(`{"symbol": "XAUUSD", "bid": 5027.1, "ask": 5027.28, "ts": "2026-03-10T14:03:12.250000+00:00"}`))
		default:
			http.NotFound(w, r)
		}
	})
	ctx := context.Background()

	spread, err := c.Spread(ctx, "XAUUSD")
	require.NoError(t, err)
	assert.Equal(t, 18.0, spread)

	tick, err := c.Tick(ctx, "XAUUSD")
	require.NoError(t, err)
	assert.Equal(t, 5027.1, tick.Bid)
	assert.Equal(t, 5027.28, tick.Ask)
	assert.Equal(t, time.Date(2026, 3, 10, 14, 3, 12, 250000000, time.UTC), tick.Timestamp)

	at, err := c.ServerTime(ctx)
	require.NoError(t, err)
	assert.Equal(t, tick.Timestamp, at)
}

func TestMT5_SpreadMissing(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte(`{"symbol": "XAUUSD"}`))
	})
	_, err := c.Spread(context.Background(), "XAUUSD")
	assert.True(t, apperrors.IsDataUnavailable(err))
}

func TestMT5_TickWithoutQuote(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte(`{"symbol": "XAUUSD", "bid": 5027.1}`))
	})
	_, err := c.Tick(context.Background(), "XAUUSD")
	assert.True(t, apperrors.IsDataUnavailable(err))
}

func TestMT5_RetriesOnce(t *testing.T) {
	var calls atomic.Int32
	c := newTestClient(t, func(w http.ResponseWriter, _ *http.Request) {
		if calls.Add(1) == 1 {
			http.Error(w, "busy", http.StatusBadGateway)
			return
		}
		_, _ = w.Write([]byte(`{"spread_points": 9}`))
	})
	spread, err := c.Spread(context.Background(), "XAUUSD")
	require.NoError(t, err)
	assert.Equal(t, 9.0, spread)
	assert.Equal(t, int32(2), calls.Load())
}

func TestMT5_ModifyStop(t *testing.T) {
	var got map[string]any
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/position/modify-sl", r.URL.Path)
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"ok": true}`))
	})
	c.positionSymbol = "XAUUSDm"

	ok := c.ModifyStopToBreakeven(context.Background(), "XAUUSD", 5027, models.Buy)
	assert.True(t, ok)
	assert.Equal(t, "XAUUSDm", got["symbol"])
	assert.Equal(t, 5027.0, got["new_sl"])
	assert.Equal(t, "BUY", got["direction"])
}

func TestMT5_ActionFailures(t *testing.T) {
	tests := []struct {
		name    string
		handler http.HandlerFunc
	}{
		{"refused by terminal", func(w http.ResponseWriter, _ *http.Request) {
			w.Header().Set("Content-Type", "application/json")
			_, _ = w.Write([]byte(`{"ok": false, "error": "invalid stops", "retcode": 10016}`))
		}},
		{"server error without json", func(w http.ResponseWriter, _ *http.Request) {
			http.Error(w, "boom", http.StatusInternalServerError)
		}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := newTestClient(t, tt.handler)
			assert.False(t, c.ModifyStopToBreakeven(context.Background(), "XAUUSD", 5027, models.Sell))
			assert.False(t, c.ClosePartial(context.Background(), "XAUUSD", models.Sell, 50))
		})
	}
}

func TestMT5_ClosePartialNotRetried(t *testing.T) {
	var calls atomic.Int32
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		var body map[string]any
		_ = json.NewDecoder(r.Body).Decode(&body)
		assert.Equal(t, 50.0, body["percent"])
		http.Error(w, "timeout", http.StatusGatewayTimeout)
	})
	assert.False(t, c.ClosePartial(context.Background(), "XAUUSD", models.Buy, 50))
	assert.Equal(t, int32(1), calls.Load())
}

func TestNewMarketAndBridge(t *testing.T) {
	cfg := DefaultConfig()
	m, err := NewMarket(cfg, zerolog.Nop())
	require.NoError(t, err)
	assert.Equal(t, ProviderMock, m.Name())
	_, isPaper := NewBridge(cfg, m, zerolog.Nop()).(*Paper)
	assert.True(t, isPaper)

	cfg.Provider = ProviderRemoteMT5
	_, err = NewMarket(cfg, zerolog.Nop())
	assert.ErrorIs(t, err, apperrors.ErrBridgeDisabled)

	cfg.BridgeURL = "http://127.0.0.1:8787"
	m, err = NewMarket(cfg, zerolog.Nop())
	require.NoError(t, err)
	assert.Same(t, m, NewBridge(cfg, m, zerolog.Nop()))

	cfg.Provider = "csv"
	_, err = NewMarket(cfg, zerolog.Nop())
	assert.ErrorIs(t, err, apperrors.ErrConfigInvalid)

	b := NewBridge(Config{}, &MT5Client{}, zerolog.Nop())
	assert.False(t, b.ModifyStopToBreakeven(context.Background(), "XAUUSD", 1, models.Buy))
	assert.False(t, b.ClosePartial(context.Background(), "XAUUSD", models.Buy, 50))
}
