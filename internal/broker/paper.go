package broker

import (
	"context"
	"hash/fnv"
	"math"
	"sync"
	"time"

	"github.com/rs/zerolog"

	apperrors "gold-scalper/internal/errors"
	"gold-scalper/internal/logging"
	"gold-scalper/internal/models"
	"gold-scalper/pkg/utils"
)

// PaperConfig tunes the synthetic market.
type PaperConfig struct {
	// Price is the level the synthetic market oscillates around.
	Price float64 `mapstructure:"price" default:"4672"`
	// Spread is quoted in points (0.01).
	Spread    float64 `mapstructure:"spread" default:"12"`
	Amplitude float64 `mapstructure:"amplitude" default:"18"`
	// Period of the main swing.
	Period time.Duration `mapstructure:"period" default:"6h"`
	// Fail makes every call fail, to rehearse DATA_OFF.
	Fail  bool             `mapstructure:"fail"`
	Clock func() time.Time `mapstructure:"-"`
}

const pointSize = 0.01

func round2(v float64) float64 { return utils.RoundTo(v, 2) }

// simPosition is the simulated open position the bridge acts on.
type simPosition struct {
	Stop          float64
	ClosedPercent float64
	Direction     models.Direction
}

// Paper is a deterministic synthetic market for dry runs. The same bar
// always has the same prices, so repeated cycles see a stable history.
// It also acts as the bridge for its simulated position.
type Paper struct {
	cfg    PaperConfig
	now    func() time.Time
	logger zerolog.Logger

	mu        sync.RWMutex
	positions map[string]*simPosition
}

// NewPaper creates a paper market. Zero fields take the defaults.
func NewPaper(cfg PaperConfig, logger zerolog.Logger) *Paper {
	if cfg.Price <= 0 {
		cfg.Price = 4672
	}
	if cfg.Spread <= 0 {
		cfg.Spread = 12
	}
	if cfg.Amplitude < 0 {
		cfg.Amplitude = 0
	}
	if cfg.Period <= 0 {
		cfg.Period = 6 * time.Hour
	}
	now := cfg.Clock
	if now == nil {
		now = time.Now
	}
	return &Paper{
		cfg:       cfg,
		now:       now,
		logger:    logging.WithComponent(logger, "paper"),
		positions: make(map[string]*simPosition),
	}
}

func (p *Paper) Name() string { return ProviderMock }

func (p *Paper) fail(symbol, what string) error {
	if p.cfg.Fail {
		return apperrors.NewDataUnavailableError("paper", symbol, what, apperrors.ErrProviderDown)
	}
	return nil
}

// Candles returns count bars ending with the one in progress.
func (p *Paper) Candles(_ context.Context, symbol string, tf models.Timeframe, count int) ([]models.Candle, error) {
	if err := p.fail(symbol, "candles"); err != nil {
		return nil, err
	}
	d := tf.Duration()
	if d <= 0 {
		d = 15 * time.Minute
	}
	now := p.now().UTC()
	last := now.Truncate(d)

	out := make([]models.Candle, 0, max(count, 0))
	for i := count - 1; i >= 0; i-- {
		open := last.Add(-time.Duration(i) * d)
		closeAt := open.Add(d)
		if closeAt.After(now) {
			closeAt = now
		}
		o, c := p.priceAt(symbol, open), p.priceAt(symbol, closeAt)
		wick := p.noise(symbol, open, 1) * p.cfg.Amplitude * 0.15
		out = append(out, models.Candle{
			Timestamp: open,
			Open:      round2(o),
			High:      round2(math.Max(o, c) + wick),
			Low:       round2(math.Min(o, c) - wick),
			Close:     round2(c),
			Volume:    int64(500 + 1000*p.noise(symbol, open, 2)),
		})
	}
	return out, nil
}

// Tick quotes around the current synthetic price.
func (p *Paper) Tick(_ context.Context, symbol string) (models.Tick, error) {
	if err := p.fail(symbol, "tick"); err != nil {
		return models.Tick{}, err
	}
	now := p.now().UTC()
	mid := p.priceAt(symbol, now)
	half := p.cfg.Spread * pointSize / 2
	return models.Tick{Symbol: symbol, Bid: round2(mid - half), Ask: round2(mid + half), Timestamp: now}, nil
}

// Spread returns the configured spread in points.
func (p *Paper) Spread(_ context.Context, symbol string) (float64, error) {
	if err := p.fail(symbol, "spread"); err != nil {
		return 0, err
	}
	return p.cfg.Spread, nil
}

// ServerTime is the paper clock.
func (p *Paper) ServerTime(context.Context) (time.Time, error) {
	if err := p.fail("", "server time"); err != nil {
		return time.Time{}, err
	}
	return p.now().UTC(), nil
}

// priceAt is a slow sine swing plus a faster one and a small per-minute
// jitter.
func (p *Paper) priceAt(symbol string, t time.Time) float64 {
	phase := float64(t.Unix()) / p.cfg.Period.Seconds() * 2 * math.Pi
	swing := p.cfg.Amplitude * math.Sin(phase)
	ripple := p.cfg.Amplitude * 0.3 * math.Sin(phase*5)
	jitter := (p.noise(symbol, t.Truncate(time.Minute), 0) - 0.5) * p.cfg.Amplitude * 0.05
	return p.cfg.Price + swing + ripple + jitter
}

// noise is a deterministic value in [0, 1).
func (p *Paper) noise(symbol string, t time.Time, salt byte) float64 {
	h := fnv.New64a()
	_, _ = h.Write([]byte(symbol))
	var buf [9]byte
	u := uint64(t.Unix())
	for i := 0; i < 8; i++ {
		buf[i] = byte(u >> (8 * i))
	}
	buf[8] = salt
	_, _ = h.Write(buf[:])
	return float64(h.Sum64()%1_000_000) / 1_000_000
}

// ModifyStopToBreakeven records the new stop on the simulated position.
func (p *Paper) ModifyStopToBreakeven(_ context.Context, symbol string, newStop float64, dir models.Direction) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	pos := p.position(symbol, dir)
	pos.Stop = newStop
	p.logger.Info().Str("symbol", symbol).Float64("new_sl", newStop).Msg("paper stop moved")
	return true
}

// ClosePartial records a partial close; the closed share never exceeds 100%.
func (p *Paper) ClosePartial(_ context.Context, symbol string, dir models.Direction, percent float64) bool {
	if percent <= 0 || percent > 100 {
		return false
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	pos := p.position(symbol, dir)
	remaining := 100 - pos.ClosedPercent
	pos.ClosedPercent += remaining * percent / 100
	p.logger.Info().Str("symbol", symbol).Float64("percent", percent).Float64("closed_total", pos.ClosedPercent).Msg("paper partial close")
	return true
}

func (p *Paper) position(symbol string, dir models.Direction) *simPosition {
	pos, ok := p.positions[symbol]
	if !ok || pos.Direction != dir {
		pos = &simPosition{Direction: dir}
		p.positions[symbol] = pos
	}
	return pos
}

// Position returns the simulated position state for symbol.
func (p *Paper) Position(symbol string) (stop, closedPercent float64, ok bool) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	pos, ok := p.positions[symbol]
	if !ok {
		return 0, 0, false
	}
	return pos.Stop, pos.ClosedPercent, true
}
