package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"gold-scalper/internal/api"
	"gold-scalper/internal/broker"
	"gold-scalper/internal/config"
	"gold-scalper/internal/logging"
	"gold-scalper/internal/metrics"
	"gold-scalper/internal/news"
	"gold-scalper/internal/notify"
	"gold-scalper/internal/store"
	"gold-scalper/internal/trading"
)

// App holds the application dependencies. Everything past Config and Logger
// is built lazily by Init so that version and config commands never touch
// the database or the network.
type App struct {
	Config *config.Config
	Logger zerolog.Logger

	// ConsoleOut receives decision messages when console notifications are
	// enabled; nil disables them.
	ConsoleOut io.Writer

	Store    *store.SQLiteStore
	Redis    *redis.Client
	Market   broker.Market
	Bridge   broker.Bridge
	News     *news.Provider
	Notifier *notify.MultiNotifier
	Metrics  *metrics.Recorder
	Session  *trading.SessionManager
	Pipeline *trading.Pipeline
	Monitor  *trading.Monitor
	Runner   *trading.Runner

	ready bool
}

// Init builds the runtime from the configuration. It is idempotent.
func (a *App) Init() error {
	if a.ready {
		return nil
	}
	cfg := a.Config
	logger := a.Logger

	session, err := trading.NewSessionManager(cfg.Session)
	if err != nil {
		return fmt.Errorf("session: %w", err)
	}
	a.Session = session

	// Redis is optional: when it is down the poller still runs on a local
	// lock and an in-memory news cache.
	var locker store.Locker
	var cache news.Cache = news.NewMemoryCache(time.Now)
	if cfg.Redis.Enabled {
		client, err := store.NewRedisClient(cfg.Redis)
		if err != nil {
			logger.Warn().Err(err).Str("addr", cfg.Redis.Addr).Msg("Redis unavailable, using local lock and cache")
		} else {
			a.Redis = client
			locker = store.NewRedisLocker(client, cfg.Redis.Prefix, cfg.Redis.LockTTL, logger)
			cache = news.NewRedisCache(client, cfg.Redis.Prefix, logger)
			logger.Debug().Str("addr", cfg.Redis.Addr).Msg("Redis connected")
		}
	}

	st, err := store.NewSQLiteStore(cfg.Store, locker)
	if err != nil {
		a.closeRedis()
		return fmt.Errorf("store: %w", err)
	}
	a.Store = st

	market, err := broker.NewMarket(cfg.Market, logger)
	if err != nil {
		a.Close()
		return fmt.Errorf("market: %w", err)
	}
	a.Market = market
	a.Bridge = broker.NewBridge(cfg.Market, market, logger)

	provider, err := news.Build(cfg.News, cache, logger)
	if err != nil {
		a.Close()
		return fmt.Errorf("news: %w", err)
	}
	a.News = provider

	channels := []notify.Channel{
		notify.NewTelegramNotifier(cfg.Telegram),
		notify.NewWebhookNotifier(cfg.Webhook),
	}
	if a.ConsoleOut != nil {
		channels = append(channels, notify.NewConsoleNotifier(a.ConsoleOut, true))
	}
	a.Notifier = notify.NewMultiNotifier(logger, channels...)

	var recorder trading.Recorder
	if cfg.Metrics.Enabled {
		a.Metrics = metrics.New(cfg.Metrics.Namespace)
		recorder = a.Metrics
	}

	a.Pipeline, err = trading.NewPipeline(trading.PipelineConfig{
		Symbol:         cfg.Instrument.Symbol,
		MarketProvider: market.Name(),
		NewsProvider:   provider.Name(),
		TFSignal:       cfg.Instrument.TFSignal,
		TFContext:      cfg.Instrument.TFContext,
		TFConfirm:      cfg.Instrument.TFConfirm,
		CandleCount:    cfg.Instrument.CandleCount,
		Risk:           cfg.Risk,
		Setup:          cfg.Engine.Setup,
		Timing:         cfg.Engine.Timing,
		Extension:      cfg.Engine.Extension,
		Pullback:       cfg.Engine.Pullback,
		Points:         cfg.Scoring.Points,
		Spread:         cfg.Scoring.Spread,
		Room:           cfg.Engine.Room,
		Fibo:           cfg.Engine.Fibo,
		Notify:         cfg.Notify,
		Session:        session,
		Store:          st,
		Market:         market,
		News:           provider,
		Notifier:       a.Notifier,
		Recorder:       recorder,
		Logger:         logger,
	})
	if err != nil {
		a.Close()
		return fmt.Errorf("pipeline: %w", err)
	}

	a.Monitor = trading.NewMonitor(trading.MonitorConfig{
		Symbol:      cfg.Instrument.Symbol,
		TFSignal:    cfg.Instrument.TFSignal,
		TFContext:   cfg.Instrument.TFContext,
		CandleCount: cfg.Instrument.CandleCount,
		Params:      cfg.Suivi,
		Store:       st,
		Market:      market,
		News:        provider,
		Notifier:    a.Notifier,
		Bridge:      a.Bridge,
		Recorder:    recorder,
		Logger:      logger,
	})

	a.Runner, err = trading.NewRunner(trading.RunnerConfig{
		Interval: cfg.Runner.Interval,
		Pipeline: a.Pipeline,
		Monitor:  a.Monitor,
		Store:    st,
		Logger:   logger,
	})
	if err != nil {
		a.Close()
		return fmt.Errorf("runner: %w", err)
	}

	logger.Debug().
		Str("market", market.Name()).
		Str("news", provider.Name()).
		Str("db", cfg.Store.Path).
		Bool("paper", cfg.IsPaperMode()).
		Msg("runtime initialized")
	a.ready = true
	return nil
}

// NewServer builds the HTTP server over the initialized runtime.
func (a *App) NewServer() (*api.Server, error) {
	if err := a.Init(); err != nil {
		return nil, err
	}
	deps := api.Deps{
		Runner:      a.Runner,
		Symbol:      a.Config.Instrument.Symbol,
		Store:       a.Store,
		Session:     a.Session,
		News:        a.News,
		NewsSource:  a.News.Name(),
		Notifier:    a.Notifier,
		MetricsPath: a.Config.Metrics.Path,
		Logger:      a.Logger,
	}
	if a.Metrics != nil {
		deps.Metrics = a.Metrics
	}
	if hc, ok := a.Market.(api.HealthChecker); ok {
		deps.Bridge = hc
	}
	return api.NewServer(a.Config.API, deps)
}

// NewTicker builds the quote poller. Quotes feed the price gauges and are
// logged at debug level.
func (a *App) NewTicker() *broker.Ticker {
	qc := a.Config.Quotes
	qc.Symbol = a.Config.Instrument.Symbol
	t := broker.NewTicker(a.Market, qc)
	logger := logging.WithComponent(a.Logger, "quotes")
	t.OnTick(func(q broker.Quote) {
		if a.Metrics != nil {
			a.Metrics.RecordQuote(qc.Symbol, q.Tick.Mid(), q.Spread)
		}
		logger.Debug().Float64("bid", q.Tick.Bid).Float64("ask", q.Tick.Ask).Float64("spread", q.Spread).Msg("quote")
	})
	t.OnError(func(err error) {
		logger.Warn().Err(err).Msg("quote polling failing")
	})
	return t
}

// Close releases the store and the Redis client.
func (a *App) Close() error {
	var errs []error
	if a.Store != nil {
		errs = append(errs, a.Store.Close())
		a.Store = nil
	}
	errs = append(errs, a.closeRedis())
	a.ready = false
	return errors.Join(errs...)
}

func (a *App) closeRedis() error {
	if a.Redis == nil {
		return nil
	}
	err := a.Redis.Close()
	a.Redis = nil
	return err
}

// today returns the local trading day.
func (a *App) today() string {
	return a.Session.Day(time.Now())
}

// withTimeout bounds one-shot commands.
func withTimeout(parent context.Context, d time.Duration) (context.Context, context.CancelFunc) {
	if parent == nil {
		parent = context.Background()
	}
	return context.WithTimeout(parent, d)
}
