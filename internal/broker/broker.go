// Package broker connects the scalper to market data and to the live
// position: the MT5 bridge in production and a deterministic paper market
// for dry runs.
package broker

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/creasty/defaults"
	"github.com/rs/zerolog"

	apperrors "gold-scalper/internal/errors"
	"gold-scalper/internal/models"
	"gold-scalper/internal/resilience"
)

// Market data providers.
const (
	ProviderMock      = "mock"
	ProviderRemoteMT5 = "remote_mt5"
)

// Market provides candles, ticks and spread for one instrument.
type Market interface {
	Name() string
	Candles(ctx context.Context, symbol string, tf models.Timeframe, count int) ([]models.Candle, error)
	Tick(ctx context.Context, symbol string) (models.Tick, error)
	Spread(ctx context.Context, symbol string) (float64, error)
	ServerTime(ctx context.Context) (time.Time, error)
}

// Bridge acts on the open position. Failures are logged and reported as
// false, never returned.
type Bridge interface {
	ModifyStopToBreakeven(ctx context.Context, symbol string, newStop float64, dir models.Direction) bool
	ClosePartial(ctx context.Context, symbol string, dir models.Direction, percent float64) bool
}

// Config selects and tunes the market provider and the bridge.
type Config struct {
	Provider string `mapstructure:"provider" default:"mock" validate:"oneof=mock remote_mt5"`
	// BridgeURL is the MT5 bridge. Required for remote_mt5; with the mock
	// provider it still routes position actions to a real terminal.
	BridgeURL string `mapstructure:"bridge_url" validate:"omitempty,url"`
	// PositionSymbol overrides the symbol sent with position actions for
	// brokers that suffix it (XAUUSDm, GOLD).
	PositionSymbol string                   `mapstructure:"position_symbol"`
	Timeout        time.Duration            `mapstructure:"timeout" default:"4s"`
	ActionTimeout  time.Duration            `mapstructure:"action_timeout" default:"5s"`
	Retry          int                      `mapstructure:"retry" default:"1" validate:"gte=0,lte=5"`
	ServerSymbol   string                   `mapstructure:"server_symbol" default:"XAUUSD"`
	Breaker        resilience.BreakerConfig `mapstructure:"breaker"`
	Paper          PaperConfig              `mapstructure:"paper"`
}

// DefaultConfig returns the defaults.
func DefaultConfig() Config {
	var c Config
	_ = defaults.Set(&c)
	return c
}

// NewMarket builds the configured market provider.
func NewMarket(cfg Config, logger zerolog.Logger) (Market, error) {
	switch strings.ToLower(cfg.Provider) {
	case ProviderMock, "":
		return NewPaper(cfg.Paper, logger), nil
	case ProviderRemoteMT5:
		if cfg.BridgeURL == "" {
			return nil, fmt.Errorf("%w: remote_mt5 needs market.bridge_url", apperrors.ErrBridgeDisabled)
		}
		return NewMT5Client(cfg, logger), nil
	}
	return nil, fmt.Errorf("%w: unknown market provider %q", apperrors.ErrConfigInvalid, cfg.Provider)
}

// NewBridge returns the position bridge. The bridge URL wins; a paper
// market acts on its own simulated position; otherwise actions are
// disabled.
func NewBridge(cfg Config, market Market, logger zerolog.Logger) Bridge {
	if cfg.BridgeURL != "" {
		if c, ok := market.(*MT5Client); ok {
			return c
		}
		return NewMT5Client(cfg, logger)
	}
	if p, ok := market.(*Paper); ok {
		return p
	}
	return disabledBridge{logger: logger}
}

type disabledBridge struct {
	logger zerolog.Logger
}

func (b disabledBridge) ModifyStopToBreakeven(_ context.Context, symbol string, _ float64, _ models.Direction) bool {
	b.logger.Debug().Str("symbol", symbol).Msg("bridge url not set, skipping stop modification")
	return false
}

func (b disabledBridge) ClosePartial(_ context.Context, symbol string, _ models.Direction, _ float64) bool {
	b.logger.Debug().Str("symbol", symbol).Msg("bridge url not set, skipping partial close")
	return false
}
