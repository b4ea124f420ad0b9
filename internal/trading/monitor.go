package trading

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"gold-scalper/internal/analysis"
	"gold-scalper/internal/analysis/structure"
	apperrors "gold-scalper/internal/errors"
	"gold-scalper/internal/logging"
	"gold-scalper/internal/models"
	"gold-scalper/internal/store"
)

// MonitorConfig wires the monitor.
type MonitorConfig struct {
	Symbol      string
	TFSignal    models.Timeframe
	TFContext   models.Timeframe
	CandleCount int
	Params      SuiviParams
	Store       store.DayStore
	Market      MarketData
	News        NewsLock
	Notifier    Notifier
	Bridge      Bridge
	Recorder    Recorder
	Clock       Clock
	Logger      zerolog.Logger
}

// MonitorReport summarizes one monitoring cycle.
type MonitorReport struct {
	Day     string
	Status  SuiviStatus
	Price   float64
	Sent    bool
	Closed  bool
	Outcome *float64
	Alerts  []string
}

// Monitor applies the side effects of a Suivi verdict exactly once per
// idempotency key: exit per trade, breakeven per trade, alert per cooldown
// window, hold per situation signature.
type Monitor struct {
	cfg      MonitorConfig
	suivi    *Suivi
	h1       *structure.Analyzer
	recorder Recorder
	now      Clock
	logger   zerolog.Logger
}

// NewMonitor creates a monitor.
func NewMonitor(cfg MonitorConfig) *Monitor {
	if cfg.TFSignal == "" {
		cfg.TFSignal = models.M15
	}
	if cfg.TFContext == "" {
		cfg.TFContext = models.H1
	}
	if cfg.CandleCount <= 0 {
		cfg.CandleCount = 200
	}
	now := cfg.Clock
	if now == nil {
		now = time.Now
	}
	return &Monitor{
		cfg:      cfg,
		suivi:    NewSuivi(cfg.Params),
		h1:       structure.NewAnalyzer(),
		recorder: recorderOrNop(cfg.Recorder),
		now:      now,
		logger:   logging.WithComponent(cfg.Logger, "suivi"),
	}
}

// Run evaluates the active trade stored under day.
func (m *Monitor) Run(ctx context.Context, day string) (*MonitorReport, error) {
	st, err := m.cfg.Store.GetDay(ctx, day)
	if err != nil {
		return nil, fmt.Errorf("failed to load day %s: %w", day, err)
	}
	if st.Active == nil {
		return nil, apperrors.ErrNoActiveTrade
	}
	trade := *st.Active
	now := m.now()

	in, err := m.snapshot(ctx, trade, now)
	if err != nil {
		return nil, err
	}
	res := m.suivi.Evaluate(in)
	m.recorder.RecordSuivi(string(res.Status))
	logging.LogSuivi(m.logger, trade.Symbol, string(res.Status), res.Closed, in.Price)

	report := &MonitorReport{
		Day:     day,
		Status:  res.Status,
		Price:   in.Price,
		Closed:  res.Closed,
		Outcome: res.Outcome,
		Alerts:  res.Alerts,
	}

	switch res.Status {
	case SuiviExit:
		report.Sent, err = m.applyExit(ctx, day, trade, res, now)
	case SuiviBreakeven:
		report.Sent, err = m.applyBreakeven(ctx, day, trade, res, now)
	case SuiviAlert:
		report.Sent, err = m.applyAlert(ctx, day, trade, res, in.Price, now)
	default:
		report.Sent, err = m.applyHold(ctx, day, res, now)
	}
	return report, err
}

// snapshot gathers the live price, the signal candles, the H1 structure and
// the news state. Only a missing price is fatal.
func (m *Monitor) snapshot(ctx context.Context, trade models.ActiveTrade, now time.Time) (SuiviInput, error) {
	in := SuiviInput{Trade: trade, Now: now}
	symbol := trade.Symbol
	if symbol == "" {
		symbol = m.cfg.Symbol
	}

	candles, cerr := m.cfg.Market.Candles(ctx, symbol, m.cfg.TFSignal, m.cfg.CandleCount)
	if cerr != nil {
		m.logger.Warn().Err(cerr).Msg("signal candles unavailable")
	}
	in.Candles = candles

	tick, terr := m.cfg.Market.Tick(ctx, symbol)
	switch {
	case terr == nil:
		in.Price = tick.PriceFor(trade.Direction)
	case len(candles) > 0:
		in.Price = candles[len(candles)-1].Close
	default:
		return in, apperrors.NewDataUnavailableError("suivi", symbol, "no price for active trade", terr)
	}

	h1, err := m.cfg.Market.Candles(ctx, symbol, m.cfg.TFContext, m.cfg.CandleCount)
	if err != nil {
		m.logger.Warn().Err(err).Msg("context candles unavailable")
		in.H1 = analysis.Range
	} else {
		in.H1 = m.h1.Analyze(h1).Label
	}

	if m.cfg.News != nil {
		ns, err := m.cfg.News.Lock(ctx, now)
		if err != nil {
			m.logger.Warn().Err(err).Msg("news state unavailable")
		}
		in.News = ns
	}
	return in, nil
}

func (m *Monitor) applyExit(ctx context.Context, day string, trade models.ActiveTrade, res SuiviResult, now time.Time) (bool, error) {
	key := trade.Key()
	first := false
	err := m.cfg.Store.WithDay(ctx, day, func(st *models.DayState) error {
		if st.Active != nil && st.Active.Key() == key {
			st.Active = nil
		}
		if st.SortieSentKey == key {
			return nil
		}
		first = true
		st.SortieSentKey = key
		closed := now
		st.LastTradeClosedAt = &closed
		// The loss is booked on day, the record that opened the trade, even
		// when it closes on a later trading day.
		if res.Outcome != nil && *res.Outcome < 0 {
			st.DailyLoss = models.Round2(st.DailyLoss - *res.Outcome)
			st.ConsecutiveLosses++
		} else {
			st.ConsecutiveLosses = 0
		}
		return nil
	})
	if err != nil {
		return false, fmt.Errorf("failed to close trade: %w", err)
	}

	outcome := 0.0
	if res.Outcome != nil {
		outcome = *res.Outcome
	}
	if _, err := m.cfg.Store.AppendOutcome(ctx, &models.TradeOutcome{
		Day:       day,
		Symbol:    trade.Symbol,
		Direction: trade.Direction,
		StartedAt: trade.StartedAt,
		ClosedAt:  now,
		Entry:     trade.Entry,
		Exit:      res.ExitPrice,
		Points:    outcome,
		Reason:    res.ExitReason,
	}); err != nil {
		m.logger.Error().Err(err).Str("trade", key).Msg("failed to append outcome")
	}

	if !first {
		m.logger.Debug().Str("trade", key).Msg("exit already notified")
		return false, nil
	}
	m.logger.Info().
		Str("trade", key).
		Str("reason", res.ExitReason).
		Float64("outcome", outcome).
		Msg("Trade closed")
	return m.send(ctx, "sortie", res.Message), nil
}

func (m *Monitor) applyBreakeven(ctx context.Context, day string, trade models.ActiveTrade, res SuiviResult, now time.Time) (bool, error) {
	if res.NewStop == nil || res.PartialPoints == nil {
		return false, nil
	}
	changed, err := m.cfg.Store.ApplyBreakeven(ctx, day, trade.StartedAt, *res.NewStop, *res.PartialPoints, now)
	if err != nil {
		return false, fmt.Errorf("failed to apply breakeven: %w", err)
	}
	if !changed {
		return false, nil
	}

	sent := m.send(ctx, "tp1_be", res.Message)
	if m.cfg.Bridge == nil {
		return sent, nil
	}
	if m.cfg.Params.AutoApplyBE {
		ok := m.cfg.Bridge.ModifyStopToBreakeven(ctx, trade.Symbol, *res.NewStop, trade.Direction)
		m.recorder.RecordBridge("modify_sl", ok)
	}
	if m.cfg.Params.ClosePartial && m.cfg.Params.TP1PartialPct > 0 {
		ok := m.cfg.Bridge.ClosePartial(ctx, trade.Symbol, trade.Direction, m.cfg.Params.TP1PartialPct*100)
		m.recorder.RecordBridge("close_partial", ok)
	}
	return sent, nil
}

func (m *Monitor) applyAlert(ctx context.Context, day string, trade models.ActiveTrade, res SuiviResult, price float64, now time.Time) (bool, error) {
	due := false
	key := trade.Key()
	err := m.cfg.Store.WithDay(ctx, day, func(st *models.DayState) error {
		at := now
		if res.Invalidated {
			if st.InvalidationSentKey == key {
				return nil
			}
			st.InvalidationSentKey = key
			st.LastInvalidationAlertAt = &at
			due = true
			return nil
		}
		if st.LastSuiviAlertAt != nil && now.Sub(*st.LastSuiviAlertAt) < m.cfg.Params.AlertCooldown() {
			return nil
		}
		st.LastSuiviAlertAt = &at
		due = true
		return nil
	})
	if err != nil {
		return false, fmt.Errorf("failed to record alert: %w", err)
	}
	if !due {
		return false, nil
	}
	logging.LogAlert(m.logger, key, trade.Symbol, strings.Join(res.Alerts, ","), price)
	return m.send(ctx, "alerte", res.Message), nil
}

func (m *Monitor) applyHold(ctx context.Context, day string, res SuiviResult, now time.Time) (bool, error) {
	changed := false
	err := m.cfg.Store.WithDay(ctx, day, func(st *models.DayState) error {
		if st.LastSituationSignature == res.Signature {
			return nil
		}
		at := now
		st.LastSituationSignature = res.Signature
		st.LastSituationAt = &at
		changed = true
		return nil
	})
	if err != nil {
		return false, fmt.Errorf("failed to record situation: %w", err)
	}
	if !changed {
		return false, nil
	}
	return m.send(ctx, "maintien", res.Message), nil
}

func (m *Monitor) send(ctx context.Context, kind, text string) bool {
	if m.cfg.Notifier == nil {
		return false
	}
	res := m.cfg.Notifier.Send(ctx, text)
	m.recorder.RecordNotification(kind, res)
	if res.Err != nil {
		m.logger.Warn().Err(res.Err).Str("kind", kind).Msg("suivi notification failed")
	}
	return res.Sent
}
