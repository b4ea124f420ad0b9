package trading

import (
	"context"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"gold-scalper/internal/models"
	"gold-scalper/internal/notify"
	"gold-scalper/internal/store"
)

type fakeMarket struct {
	mu      sync.Mutex
	candles map[models.Timeframe][]models.Candle
	price   float64
	spread  float64
	server  time.Time
	err     error
	tickErr error
}

func (f *fakeMarket) Candles(_ context.Context, _ string, tf models.Timeframe, count int) ([]models.Candle, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return nil, f.err
	}
	return models.Last(f.candles[tf], count), nil
}

func (f *fakeMarket) Tick(_ context.Context, symbol string) (models.Tick, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.tickErr != nil {
		return models.Tick{}, f.tickErr
	}
	return models.Tick{Symbol: symbol, Bid: f.price, Ask: f.price, Timestamp: f.server}, nil
}

func (f *fakeMarket) Spread(context.Context, string) (float64, error) {
	if f.err != nil {
		return 0, f.err
	}
	return f.spread, nil
}

func (f *fakeMarket) ServerTime(context.Context) (time.Time, error) {
	return f.server, f.err
}

func (f *fakeMarket) setPrice(p float64) {
	f.mu.Lock()
	f.price = p
	f.mu.Unlock()
}

type fakeNews struct {
	state models.NewsState
	err   error
}

func (f *fakeNews) Lock(context.Context, time.Time) (models.NewsState, error) {
	return f.state, f.err
}

type fakeNotifier struct {
	mu       sync.Mutex
	messages []string
	fail     bool
}

func (f *fakeNotifier) Send(_ context.Context, text string) notify.Result {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.messages = append(f.messages, text)
	if f.fail {
		return notify.Result{Err: context.DeadlineExceeded}
	}
	return notify.Result{Sent: true, Channels: []string{"fake"}}
}

func (f *fakeNotifier) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.messages)
}

func (f *fakeNotifier) last() string {
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.messages) == 0 {
		return ""
	}
	return f.messages[len(f.messages)-1]
}

type fakeBridge struct {
	modify  int
	partial int
	lastSL  float64
}

func (f *fakeBridge) ModifyStopToBreakeven(_ context.Context, _ string, newStop float64, _ models.Direction) bool {
	f.modify++
	f.lastSL = newStop
	return true
}

func (f *fakeBridge) ClosePartial(context.Context, string, models.Direction, float64) bool {
	f.partial++
	return true
}

type testClock struct {
	mu sync.Mutex
	t  time.Time
}

func (c *testClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *testClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.t = c.t.Add(d)
	c.mu.Unlock()
}

func newTradingStore(t *testing.T) *store.SQLiteStore {
	t.Helper()
	s, err := store.NewSQLiteStore(store.Options{
		Path:        filepath.Join(t.TempDir(), "trading.db"),
		DailyBudget: 20,
	}, nil)
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

// flatCandles builds n quiet candles around price ending just before end.
func flatCandles(n int, price float64, tf models.Timeframe, end time.Time) []models.Candle {
	out := make([]models.Candle, n)
	step := tf.Duration()
	for i := range out {
		out[i] = models.Candle{
			Timestamp: end.Add(-time.Duration(n-i) * step),
			Open:      price,
			High:      price + 1,
			Low:       price - 1,
			Close:     price,
			Volume:    100,
		}
	}
	return out
}
