package broker

import (
	"context"
	"fmt"
	"sync"
	"time"

	"gold-scalper/internal/models"
	"gold-scalper/pkg/utils"
)

// TickSource is the part of a Market the poller needs.
type TickSource interface {
	Tick(ctx context.Context, symbol string) (models.Tick, error)
	Spread(ctx context.Context, symbol string) (float64, error)
}

// Quote is one poll result.
type Quote struct {
	Tick   models.Tick
	Spread float64
}

// TickerConfig configures the poller.
type TickerConfig struct {
	Symbol   string        `mapstructure:"-"`
	Enabled  bool          `mapstructure:"enabled" default:"true"`
	Interval time.Duration `mapstructure:"interval" default:"5s"`
	// MaxFailures consecutive failures are reported once through OnError,
	// then polling slows down with exponential backoff.
	MaxFailures int           `mapstructure:"max_failures" default:"5" validate:"gte=1"`
	BaseDelay   time.Duration `mapstructure:"base_delay" default:"1s"`
	MaxDelay    time.Duration `mapstructure:"max_delay" default:"30s"`
}

// Ticker polls the market for quotes. The bridge has no streaming API, so
// it stands in for a websocket feed.
type Ticker struct {
	source TickSource
	cfg    TickerConfig

	onTick  func(Quote)
	onError func(error)

	mu       sync.RWMutex
	running  bool
	last     *Quote
	failures int
	stop     chan struct{}
}

// NewTicker creates a poller.
func NewTicker(source TickSource, cfg TickerConfig) *Ticker {
	if cfg.Interval <= 0 {
		cfg.Interval = 5 * time.Second
	}
	if cfg.MaxFailures <= 0 {
		cfg.MaxFailures = 5
	}
	if cfg.BaseDelay <= 0 {
		cfg.BaseDelay = time.Second
	}
	if cfg.MaxDelay <= 0 {
		cfg.MaxDelay = 30 * time.Second
	}
	return &Ticker{source: source, cfg: cfg, stop: make(chan struct{})}
}

// OnTick registers the quote handler.
func (t *Ticker) OnTick(handler func(Quote)) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.onTick = handler
}

// OnError registers the error handler.
func (t *Ticker) OnError(handler func(error)) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.onError = handler
}

// Run polls until ctx is done or Stop is called.
func (t *Ticker) Run(ctx context.Context) error {
	t.mu.Lock()
	if t.running {
		t.mu.Unlock()
		return fmt.Errorf("ticker already running")
	}
	t.running = true
	stop := t.stop
	t.mu.Unlock()

	defer func() {
		t.mu.Lock()
		t.running = false
		t.mu.Unlock()
	}()

	for {
		delay := t.poll(ctx)
		timer := time.NewTimer(delay)
		select {
		case <-ctx.Done():
			timer.Stop()
			return nil
		case <-stop:
			timer.Stop()
			return nil
		case <-timer.C:
		}
	}
}

// Stop ends Run.
func (t *Ticker) Stop() {
	t.mu.Lock()
	defer t.mu.Unlock()
	if !t.running {
		return
	}
	close(t.stop)
	t.stop = make(chan struct{})
}

// poll fetches one quote and returns how long to wait before the next.
func (t *Ticker) poll(ctx context.Context) time.Duration {
	tick, err := t.source.Tick(ctx, t.cfg.Symbol)
	var spread float64
	if err == nil {
		spread, err = t.source.Spread(ctx, t.cfg.Symbol)
	}

	t.mu.Lock()
	if err != nil {
		t.failures++
		failures := t.failures
		onError := t.onError
		t.mu.Unlock()

		if failures == t.cfg.MaxFailures && onError != nil {
			onError(fmt.Errorf("quote polling failed %d times: %w", failures, err))
		}
		if failures < t.cfg.MaxFailures {
			return t.cfg.Interval
		}
		return utils.CalculateBackoff(failures-t.cfg.MaxFailures, t.cfg.BaseDelay, t.cfg.MaxDelay, 2)
	}

	q := Quote{Tick: tick, Spread: spread}
	t.failures = 0
	t.last = &q
	onTick := t.onTick
	t.mu.Unlock()

	if onTick != nil {
		onTick(q)
	}
	return t.cfg.Interval
}

// Last returns the latest quote, if any.
func (t *Ticker) Last() (Quote, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	if t.last == nil {
		return Quote{}, false
	}
	return *t.last, true
}

// IsRunning reports whether Run is active.
func (t *Ticker) IsRunning() bool {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.running
}
