package trading

import (
	"context"
	"crypto/sha1"
	"encoding/hex"
	"fmt"
	"strings"
	"time"

	"github.com/creasty/defaults"
	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"gold-scalper/internal/analysis/confluence"
	"gold-scalper/internal/analysis/extension"
	"gold-scalper/internal/analysis/scoring"
	"gold-scalper/internal/analysis/setup"
	"gold-scalper/internal/analysis/structure"
	"gold-scalper/internal/analysis/timing"
	"gold-scalper/internal/analysis/tradestate"
	apperrors "gold-scalper/internal/errors"
	"gold-scalper/internal/logging"
	"gold-scalper/internal/models"
	"gold-scalper/internal/notify"
	"gold-scalper/internal/store"
)

// NotifyPolicy decides which decisions reach the trader.
type NotifyPolicy struct {
	SendGo            bool     `mapstructure:"send_go" default:"true"`
	SendNoGoImportant bool     `mapstructure:"send_no_go_important" default:"true"`
	ImportantBlocks   []string `mapstructure:"no_go_important_blocks" default:"[\"NEWS_LOCK\",\"DATA_OFF\",\"DAILY_BUDGET_REACHED\"]"`
	PreAlert          bool     `mapstructure:"prealert" default:"true"`
}

// DefaultNotifyPolicy returns the production policy.
func DefaultNotifyPolicy() NotifyPolicy {
	var p NotifyPolicy
	_ = defaults.Set(&p)
	return p
}

func (p NotifyPolicy) important(b models.BlockedBy) bool {
	for _, s := range p.ImportantBlocks {
		if strings.EqualFold(strings.TrimSpace(s), string(b)) {
			return true
		}
	}
	return false
}

// PipelineConfig wires the decision pipeline.
type PipelineConfig struct {
	Symbol         string
	MarketProvider string
	NewsProvider   string
	TFSignal       models.Timeframe
	TFContext      models.Timeframe
	TFConfirm      models.Timeframe
	CandleCount    int

	Risk      RiskParams
	Setup     setup.Params
	Timing    timing.Params
	Extension extension.Params
	Pullback  tradestate.PullbackParams
	Points    scoring.Points
	Spread    scoring.SpreadParams
	Room      confluence.RoomParams
	Fibo      confluence.FiboParams
	Notify    NotifyPolicy

	Session  *SessionManager
	Store    store.DayStore
	Market   MarketData
	News     NewsLock
	Notifier Notifier
	Recorder Recorder
	Clock    Clock
	Logger   zerolog.Logger
}

// Analysis is the outcome of one pipeline cycle.
type Analysis struct {
	Day       string
	Packet    *models.DecisionPacket
	Message   string
	SignalKey string
	AlertKey  string
	Sent      bool
	SendError string
	Latency   time.Duration
}

// Pipeline runs Structure → Timing → Setup → Extension → Trade state →
// Scoring → Hard rules for one cycle and persists the outcome.
type Pipeline struct {
	cfg      PipelineConfig
	analyzer *structure.Analyzer
	composer *setup.Composer
	guard    *extension.Guard
	scorer   *scoring.Scorer
	gate     *Gate
	recorder Recorder
	now      Clock
	logger   zerolog.Logger
}

// NewPipeline creates a pipeline.
func NewPipeline(cfg PipelineConfig) (*Pipeline, error) {
	if cfg.Store == nil || cfg.Market == nil {
		return nil, fmt.Errorf("%w: pipeline needs a store and market data", apperrors.ErrConfigInvalid)
	}
	if cfg.Session == nil {
		sm, err := NewSessionManager(DefaultSessionParams())
		if err != nil {
			return nil, err
		}
		cfg.Session = sm
	}
	if cfg.Symbol == "" {
		cfg.Symbol = "XAUUSD"
	}
	if cfg.TFSignal == "" {
		cfg.TFSignal = models.M15
	}
	if cfg.TFContext == "" {
		cfg.TFContext = models.H1
	}
	if cfg.TFConfirm == "" {
		cfg.TFConfirm = models.M5
	}
	if cfg.CandleCount <= 0 {
		cfg.CandleCount = 200
	}
	// Unset tuning blocks fall back to their tag defaults.
	for _, v := range []any{&cfg.Pullback, &cfg.Spread, &cfg.Room, &cfg.Fibo} {
		if err := defaults.Set(v); err != nil {
			return nil, fmt.Errorf("failed to apply defaults: %w", err)
		}
	}
	now := cfg.Clock
	if now == nil {
		now = time.Now
	}

	analyzer := structure.NewAnalyzer()
	return &Pipeline{
		cfg:      cfg,
		analyzer: analyzer,
		composer: setup.NewComposer(cfg.Setup, analyzer, timing.NewEvaluator(cfg.Timing)),
		guard:    extension.NewGuard(cfg.Extension),
		scorer:   scoring.NewScorer(cfg.Points),
		gate:     NewGate(cfg.Risk, cfg.Session),
		recorder: recorderOrNop(cfg.Recorder),
		now:      now,
		logger:   logging.WithComponent(cfg.Logger, "pipeline"),
	}, nil
}

// Session returns the session manager.
func (p *Pipeline) Session() *SessionManager {
	return p.cfg.Session
}

// marketSnapshot is everything fetched from the market port in one cycle.
type marketSnapshot struct {
	signal  []models.Candle
	context []models.Candle
	confirm []models.Candle
	tick    *models.Tick
	spread  float64
	latency time.Duration
	age     time.Duration
}

// evaluation is the analysis chain output before the verdict.
type evaluation struct {
	proposal  *setup.Proposal
	extension extension.Result
	state     tradestate.Result
	phase     confluence.PhaseResult
	score     scoring.Result
}

// Analyze runs one decision cycle.
func (p *Pipeline) Analyze(ctx context.Context) (*Analysis, error) {
	start := time.Now()
	now := p.now().UTC()
	day := p.cfg.Session.Day(now)
	logger := logging.WithCycle(p.logger, uuid.NewString())

	packet := p.basePacket(now)
	p.applyNews(ctx, now, packet)

	snap, dataErr := p.fetch(ctx, now)
	if snap != nil {
		packet.DataLatencyMs = snap.age.Milliseconds()
		logger.Debug().
			Dur("fetch", snap.latency).
			Dur("age", snap.age).
			Float64("spread", snap.spread).
			Msg("market snapshot")
	}
	var ev *evaluation
	if dataErr == nil {
		ev, dataErr = p.evaluate(snap, packet)
	}
	if dataErr != nil {
		logger.Warn().Err(dataErr).Msg("market data unavailable, forcing DATA_OFF")
	}

	signalKey := SignalKey(p.cfg.Symbol, packet.Timestamps.UTC)
	carried := p.carriedTrade(ctx, day, now)
	err := p.cfg.Store.WithDay(ctx, day, func(st *models.DayState) error {
		if st.Active == nil && carried != nil {
			holdFor(packet, carried)
			return nil
		}
		p.decide(packet, ev, st, now, dataErr)
		p.commit(packet, ev, st, now, signalKey)
		return nil
	})
	if err != nil {
		p.recorder.RecordCycle("pipeline", time.Since(start), err)
		return nil, fmt.Errorf("failed to record decision: %w", err)
	}

	d := packet.Decision
	p.recorder.RecordDecision(d.Status, d.BlockedBy, d.ScoreTotal)
	logging.LogDecision(logger, p.cfg.Symbol, string(d.Status), string(d.BlockedBy), d.ScoreTotal, strings.Join(d.Why, " | "))

	res := &Analysis{
		Day:       day,
		Packet:    packet,
		Message:   notify.FormatDecision(packet, p.cfg.MarketProvider),
		SignalKey: signalKey,
	}
	p.dispatch(ctx, res, day, now)
	p.preAlert(ctx, res, now)

	rec := &models.SignalRecord{
		Timestamp:         now,
		Day:               day,
		Symbol:            p.cfg.Symbol,
		TFSignal:          string(p.cfg.TFSignal),
		TFContext:         string(p.cfg.TFContext),
		Status:            d.Status,
		BlockedBy:         d.BlockedBy,
		Direction:         packet.Direction,
		Entry:             packet.Entry,
		StopLoss:          packet.StopLoss,
		TP1:               packet.TP1,
		TP2:               packet.TP2,
		RRTP2:             packet.RRTP2,
		ScoreTotal:        d.ScoreTotal,
		ScoreEffective:    d.ScoreEffective,
		TelegramSent:      res.Sent,
		TelegramError:     res.SendError,
		TelegramLatencyMs: res.Latency.Milliseconds(),
		AlertKey:          res.AlertKey,
		SignalKey:         signalKey,
		Why:               d.Why,
		Message:           res.Message,
		DataLatencyMs:     packet.DataLatencyMs,
		Packet:            packet,
	}
	if _, err := p.cfg.Store.SaveSignal(ctx, rec); err != nil {
		logger.Error().Err(err).Msg("failed to save signal")
	}

	p.recorder.RecordCycle("pipeline", time.Since(start), nil)
	return res, nil
}

// SignalKey identifies one decision for the sent-message guard.
func SignalKey(symbol, tsUTC string) string {
	sum := sha1.Sum([]byte(symbol + ":" + tsUTC))
	return hex.EncodeToString(sum[:])
}

func (p *Pipeline) basePacket(now time.Time) *models.DecisionPacket {
	local := now.In(p.cfg.Session.Location())
	return &models.DecisionPacket{
		DecisionID: uuid.NewString(),
		Symbol:     p.cfg.Symbol,
		SessionOK:  p.cfg.Session.InSession(now),
		SpreadMax:  p.cfg.Risk.SpreadMax,
		ATRMax:     p.cfg.Risk.ATRMax,
		RRMin:      p.cfg.Risk.RRMin,
		Setups:     []string{},
		Reasons:    []string{},
		Timestamps: models.Timestamps{
			UTC:   now.Format(time.RFC3339),
			Local: local.Format(time.RFC3339),
		},
		SourcesUsed: []string{
			"news:" + strings.ToLower(orDefault(p.cfg.NewsProvider, "none")),
			"market:" + strings.ToLower(orDefault(p.cfg.MarketProvider, "mock")),
		},
		DataLatencyMs: 9999,
	}
}

// applyNews fills the news fields. A degraded provider only flags the
// packet.
func (p *Pipeline) applyNews(ctx context.Context, now time.Time, packet *models.DecisionPacket) {
	if p.cfg.News == nil {
		packet.NewsState = models.NewsState{ProviderOK: true}
		return
	}
	ns, err := p.cfg.News.Lock(ctx, now)
	if err != nil {
		p.logger.Warn().Err(err).Msg("news provider degraded")
		ns.ProviderOK = false
	}
	if !ns.ProviderOK {
		packet.SourcesUsed = append(packet.SourcesUsed, "NEWS_PROVIDER_DOWN")
	}
	packet.NewsState = ns
	packet.NewsLock = ns.LockActive
	packet.NewsNextEvent = ns.NextEvent
}

// fetch reads the signal, context and confirmation candles, the spread and
// the tick. Signal candles and spread are mandatory.
func (p *Pipeline) fetch(ctx context.Context, now time.Time) (*marketSnapshot, error) {
	start := time.Now()
	symbol := p.cfg.Symbol
	snap := &marketSnapshot{}

	signal, err := p.cfg.Market.Candles(ctx, symbol, p.cfg.TFSignal, p.cfg.CandleCount)
	if err != nil {
		return nil, apperrors.NewDataUnavailableError("market", symbol, "signal candles", err)
	}
	if len(signal) == 0 {
		return nil, apperrors.NewDataUnavailableError("market", symbol, "no signal candles", apperrors.ErrInsufficientCandles)
	}
	snap.signal = signal

	if snap.context, err = p.cfg.Market.Candles(ctx, symbol, p.cfg.TFContext, p.cfg.CandleCount); err != nil {
		p.logger.Warn().Err(err).Msg("context candles unavailable, using signal structure")
		snap.context = nil
	}
	if snap.confirm, err = p.cfg.Market.Candles(ctx, symbol, p.cfg.TFConfirm, 60); err != nil {
		p.logger.Debug().Err(err).Msg("confirmation candles unavailable")
		snap.confirm = nil
	}

	if snap.spread, err = p.cfg.Market.Spread(ctx, symbol); err != nil {
		return nil, apperrors.NewDataUnavailableError("market", symbol, "spread", err)
	}
	if tick, err := p.cfg.Market.Tick(ctx, symbol); err == nil && tick.Bid > 0 {
		snap.tick = &tick
	}
	snap.latency = time.Since(start)

	snap.age = p.dataAge(snap, now)
	if snap.age > time.Duration(p.cfg.Risk.DataMaxAgeSec)*time.Second {
		return snap, apperrors.NewDataUnavailableError("market", symbol,
			fmt.Sprintf("Data trop ancienne (%s)", snap.age.Round(time.Second)), apperrors.ErrStaleData)
	}
	return snap, nil
}

// dataAge is the time since the freshest observation: the tick, or the close
// of the last signal candle.
func (p *Pipeline) dataAge(snap *marketSnapshot, now time.Time) time.Duration {
	last := snap.signal[len(snap.signal)-1]
	freshest := last.Timestamp.Add(p.cfg.TFSignal.Duration())
	if snap.tick != nil && !snap.tick.Timestamp.IsZero() && snap.tick.Timestamp.After(freshest) {
		freshest = snap.tick.Timestamp
	}
	if freshest.After(now) {
		return 0
	}
	return now.Sub(freshest)
}

// evaluate runs the analysis chain and fills the packet.
func (p *Pipeline) evaluate(snap *marketSnapshot, packet *models.DecisionPacket) (*evaluation, error) {
	var price *float64
	if snap.tick != nil {
		mid := models.Round2(snap.tick.Mid())
		price = &mid
	}

	prop, err := p.composer.Compose(setup.Input{
		Signal:  snap.signal,
		Context: snap.context,
		Confirm: snap.confirm,
		Price:   price,
	})
	if err != nil {
		return nil, apperrors.NewDataUnavailableError("setup", p.cfg.Symbol, "compose", err)
	}
	dir := prop.Direction
	live := snap.signal[len(snap.signal)-1].Close
	if snap.tick != nil {
		live = snap.tick.PriceFor(dir)
	}
	m15 := prop.StructureM15
	h1 := m15
	if len(snap.context) > 0 {
		h1 = p.analyzer.Analyze(snap.context)
	}

	strong := p.analyzer.DetectStrongTrend(snap.signal)
	pullbackOK := tradestate.PullbackConfirmed(p.cfg.Pullback, tradestate.PullbackInput{
		Direction:   dir,
		Entry:       prop.Entry,
		SwingLow:    m15.LastSwingLow,
		SwingHigh:   m15.LastSwingHigh,
		TimingReady: prop.TimingReady,
		M5Confirmed: prop.Timing.M5Confirmed,
	})
	structureLevel := m15.LastSwingLow
	if dir == models.Sell {
		structureLevel = m15.LastSwingHigh
	}
	ext := p.guard.Check(extension.Input{
		Price:             live,
		Direction:         dir,
		ATR:               prop.ATR,
		SetupType:         prop.SetupType,
		TimingReady:       prop.TimingReady,
		StructureLevel:    structureLevel,
		Impulse:           p.guard.DetectImpulse(snap.signal),
		StrongTrend:       strong,
		PullbackConfirmed: pullbackOK,
	})

	state := tradestate.Classify(prop.Setups, prop.TimingReady, prop.StructureH1, prop.SetupType, dir)
	phase := confluence.MarketPhase(snap.signal, m15, h1)
	room := confluence.RoomToTarget(p.cfg.Room, dir, prop.Entry, prop.TP1, m15.Levels)
	fiboOK, _ := confluence.Fibonacci(p.cfg.Fibo, dir, prop.Entry, m15.LastSwingLow, m15.LastSwingHigh, prop.ATR)
	bias := prop.StructureH1.Bias()

	var rangeFlags confluence.RangeFlags
	if bias == models.BiasRange {
		rangeFlags = confluence.EvaluateRange(confluence.RangeInput{
			Candles:     snap.signal,
			Direction:   dir,
			Entry:       prop.Entry,
			SwingLow:    m15.LastSwingLow,
			SwingHigh:   m15.LastSwingHigh,
			ATR:         prop.ATR,
			TimingReady: prop.TimingReady,
			SetupType:   prop.SetupType,
		})
	}

	spreadEval := scoring.EvaluateSpread(p.cfg.Spread, snap.spread, prop.Risk())
	var extDistance *float64
	if ext.Reference != nil {
		d := ext.Distance
		extDistance = &d
	}
	score := p.scorer.Score(scoring.Input{
		Direction:         dir,
		Bias:              bias,
		Phase:             phase.Phase,
		SetupType:         prop.SetupType,
		HasSetups:         len(prop.Setups) > 0,
		RoomOK:            room.OK,
		RecentTrend:       confluence.RecentTrend(snap.signal),
		FiboEnabled:       p.cfg.Fibo.Enabled,
		FiboSignal:        fiboOK,
		Range:             rangeFlags,
		Entry:             prop.Entry,
		StopLoss:          prop.StopLoss,
		SwingLow:          m15.LastSwingLow,
		SwingHigh:         m15.LastSwingHigh,
		TimingReady:       prop.TimingReady,
		M5Confirmed:       prop.Timing.M5Confirmed,
		ExtensionDistance: extDistance,
		ATR:               prop.ATR,
		RRTP1:             prop.RRTP1,
		RRHardMin:         p.cfg.Risk.RRHardMinTP1,
		Spread:            snap.spread,
		SpreadMax:         p.cfg.Risk.SpreadMax,
		ATRMax:            p.cfg.Risk.ATRMax,
		SLMinPts:          p.cfg.Setup.SLMinPts,
		SLMaxPts:          p.cfg.Setup.SLMaxPts,
		SpreadPenalty:     spreadEval.Penalty,
	})

	packet.CurrentPrice = &live
	packet.Spread = snap.spread
	packet.ATR = models.Round2(prop.ATR)
	packet.BiasH1 = bias
	packet.Direction = dir
	packet.Setups = prop.Setups
	packet.Entry = prop.Entry
	packet.StopLoss = prop.StopLoss
	packet.TP1 = prop.TP1
	packet.TP2 = prop.TP2
	packet.RRTP1 = models.Round2(prop.RRTP1)
	packet.RRTP2 = models.Round2(prop.RRTP2)
	packet.Score = score.Score
	packet.Reasons = score.Lines()
	packet.BarTime = prop.BarTime

	ref := ""
	if ext.Reference != nil {
		ref = fmt.Sprintf("%s@%.2f", ext.ReferenceSource, *ext.Reference)
	}
	packet.State = models.PacketState{
		Direction:          dir,
		SetupType:          string(prop.SetupType),
		TimingReady:        prop.TimingReady,
		TimingReason:       prop.Reason,
		Structure:          string(m15.Label),
		StructureH1:        string(prop.StructureH1),
		ExtensionDistance:  models.Round2(ext.Distance),
		ExtensionBlocked:   ext.Blocked,
		ExtensionReference: ref,
		TradeState:         string(state.State),
		MarketPhase:        string(phase.Phase),
		Extra: map[string]string{
			"phase_reason":     phase.Reason,
			"room":             room.Reason,
			"spread_penalty":   fmt.Sprintf("%d", spreadEval.Penalty),
			"extension_reason": ext.Reason,
		},
	}
	if pullbackOK {
		packet.State.Extra["pullback_confirmed"] = "true"
	}

	return &evaluation{
		proposal:  prop,
		extension: ext,
		state:     state,
		phase:     phase,
		score:     score,
	}, nil
}

// decide fills packet.Decision from the open trade, the data error, the hard
// rules, the extension guard, the trade state and the score, in that order.
func (p *Pipeline) decide(packet *models.DecisionPacket, ev *evaluation, st *models.DayState, now time.Time, dataErr error) {
	packet.State.DailyBudgetUsed = st.DailyLoss
	packet.State.CooldownOK = st.CooldownOK(now, p.cfg.Risk.Cooldown())
	packet.State.LastSignalKey = st.LastSignalKey
	packet.State.ConsecutiveLosses = st.ConsecutiveLosses

	if st.Active != nil {
		holdFor(packet, st.Active)
		return
	}
	if dataErr != nil || ev == nil {
		why := []string{"Données marché indisponibles"}
		packet.Reasons = why
		packet.Decision = verdict(models.StatusNoGo, models.BlockedDataOff, packet.Score, why)
		return
	}

	prop := ev.proposal
	confirm := NextConfirmCount(st, prop.Direction, prop.Entry, prop.BarTime, p.cfg.Risk.ConfirmEntryTolPts)
	packet.State.SetupConfirmCount = confirm

	gate := p.gate.Evaluate(GateInput{Packet: packet, Day: st, Now: now, SetupConfirmCount: confirm})
	switch {
	case gate.Blocked():
		packet.Decision = verdict(models.StatusNoGo, gate.BlockedBy, packet.Score, []string{gate.Reason})
	case ev.extension.Blocked:
		packet.Decision = verdict(models.StatusNoGo, models.BlockedExtension, packet.Score, []string{ev.extension.Reason})
	case ev.state.State != tradestate.Ready:
		packet.Decision = verdict(models.StatusNoGo, models.BlockedStateNotReady, packet.Score,
			[]string{"State machine non prête: " + ev.state.Reason})
	case packet.Score < p.cfg.Risk.GoThreshold:
		packet.Decision = verdict(models.StatusNoGo, models.BlockedNoSetup, packet.Score, []string{"Score insuffisant"})
	default:
		why := topReasons(ev.score, 3)
		packet.Decision = verdict(models.StatusGo, models.BlockedNone, packet.Score, why)
	}
}

// holdFor vetoes the cycle while trade is followed by the monitor.
func holdFor(packet *models.DecisionPacket, trade *models.ActiveTrade) {
	why := []string{fmt.Sprintf("Trade %s actif depuis %s, suivi en cours", trade.Direction, trade.StartedAt.UTC().Format("15:04"))}
	packet.Reasons = why
	packet.Decision = verdict(models.StatusNoGo, models.BlockedActiveTrade, packet.Score, why)
}

// carriedTrade returns a trade still open on the previous trading day.
func (p *Pipeline) carriedTrade(ctx context.Context, day string, now time.Time) *models.ActiveTrade {
	prev := p.cfg.Session.Day(now.Add(-24 * time.Hour))
	if prev == day {
		return nil
	}
	st, err := p.cfg.Store.GetDay(ctx, prev)
	if err != nil {
		p.logger.Warn().Err(err).Str("day", prev).Msg("failed to read previous day")
		return nil
	}
	return st.Active
}

// verdict builds a Decision. A NO_GO with a block reason has an effective
// score of zero.
func verdict(status models.DecisionStatus, blocked models.BlockedBy, score int, why []string) *models.Decision {
	effective := score
	if status == models.StatusNoGo && blocked != models.BlockedNone {
		effective = 0
	}
	return &models.Decision{
		Status:         status,
		BlockedBy:      blocked,
		ScoreTotal:     score,
		ScoreEffective: effective,
		Confidence:     min(100, max(50, score)),
		Quality:        models.QualityFor(score),
		Why:            why,
	}
}

// topReasons returns the first n scored lines that earned points.
func topReasons(res scoring.Result, n int) []string {
	var out []string
	for _, group := range [][]scoring.Reason{res.EdgeReasons, res.EntryReasons, res.RiskReasons} {
		for _, r := range group {
			if r.Delta > 0 && len(out) < n {
				out = append(out, strings.TrimPrefix(r.Text, "• "))
			}
		}
	}
	if len(out) == 0 {
		out = []string{fmt.Sprintf("Score %d/100", res.Score)}
	}
	return out
}

// commit writes the counters of a fully formed decision. The pipeline only
// creates the active trade; the monitor owns it afterwards.
func (p *Pipeline) commit(packet *models.DecisionPacket, ev *evaluation, st *models.DayState, now time.Time, signalKey string) {
	// An open trade freezes the setup counters until the monitor closes it.
	if ev == nil || packet.Decision.BlockedBy == models.BlockedActiveTrade {
		return
	}
	prop := ev.proposal
	st.SetupConfirmCount = packet.State.SetupConfirmCount
	st.LastSetupDirection = prop.Direction
	st.LastSetupEntry = prop.Entry
	if prop.BarTime != nil {
		bar := *prop.BarTime
		st.LastSetupBarAt = &bar
	}
	st.TradeState = string(ev.state.State)
	st.MarketPhase = string(ev.phase.Phase)

	if packet.Decision.Status != models.StatusGo {
		return
	}
	at := now
	st.LastDecisionAt = &at
	st.LastSignalKey = signalKey
	st.SetupConfirmCount = 0
	trade := &models.ActiveTrade{
		Symbol:    p.cfg.Symbol,
		Direction: prop.Direction,
		Entry:     prop.Entry,
		StopLoss:  prop.StopLoss,
		TP1:       prop.TP1,
		TP2:       prop.TP2,
		StartedAt: now,
	}
	level := prop.SwingLow
	if prop.Direction == models.Sell {
		level = prop.SwingHigh
	}
	trade.InvalidLevel = &level
	trade.InvalidBuffer = prop.Buffer
	st.OpenTrade(trade)
}

// dispatch sends the decision card when the policy asks for it.
func (p *Pipeline) dispatch(ctx context.Context, res *Analysis, day string, now time.Time) {
	d := res.Packet.Decision
	should := false
	switch {
	case d.Status == models.StatusGo:
		should = p.cfg.Notify.SendGo
	case d.BlockedBy == models.BlockedDuplicateSignal:
		should = false
	case p.cfg.Notify.SendNoGoImportant && p.cfg.Notify.important(d.BlockedBy):
		should = p.markNoGo(ctx, day, d.BlockedBy, res.Packet, now)
	}
	if !should || p.cfg.Notifier == nil {
		return
	}

	sent, err := p.cfg.Store.WasTelegramSent(ctx, res.SignalKey)
	if err != nil {
		p.logger.Warn().Err(err).Msg("failed to check sent guard")
	}
	if sent {
		return
	}

	out := p.cfg.Notifier.Send(ctx, res.Message)
	p.recorder.RecordNotification(strings.ToLower(string(d.Status)), out)
	res.Sent = out.Sent
	res.SendError = out.ErrorString()
	res.Latency = out.Latency
	if out.Err != nil {
		p.logger.Warn().Err(out.Err).Str("signal_key", res.SignalKey).Msg("decision notification failed")
	}
}

// markNoGo limits important NO_GO cards to one per block reason and event
// (news), hour (data) or day (budget).
func (p *Pipeline) markNoGo(ctx context.Context, day string, blocked models.BlockedBy, packet *models.DecisionPacket, now time.Time) bool {
	detail := day
	switch blocked {
	case models.BlockedNewsLock:
		if ev := packet.NewsNextEvent; ev != nil {
			detail = ev.Time.UTC().Format(time.RFC3339)
		}
	case models.BlockedDataOff:
		detail = now.UTC().Format("2006-01-02T15")
	}
	first, err := p.cfg.Store.MarkOnce(ctx, fmt.Sprintf("nogo:%s:%s", blocked, detail), now)
	if err != nil {
		p.logger.Warn().Err(err).Msg("failed to mark NO_GO notification")
		return false
	}
	return first
}

// preAlert sends the news pre-alert once per event and bucket.
func (p *Pipeline) preAlert(ctx context.Context, res *Analysis, now time.Time) {
	ns := res.Packet.NewsState
	if !p.cfg.Notify.PreAlert || !ns.ShouldPreAlert || ns.BucketLabel == "" || ns.NextEvent == nil {
		return
	}
	key := fmt.Sprintf("prealert:%s:%s", ns.NextEvent.Time.UTC().Format(time.RFC3339), ns.BucketLabel)
	first, err := p.cfg.Store.MarkOnce(ctx, key, now)
	if err != nil {
		p.logger.Warn().Err(err).Msg("failed to mark pre-alert")
		return
	}
	if !first {
		return
	}
	res.AlertKey = key
	if p.cfg.Notifier == nil {
		return
	}
	out := p.cfg.Notifier.Send(ctx, notify.FormatPreAlert(p.cfg.Symbol, ns))
	p.recorder.RecordNotification("prealert", out)
	if out.Err != nil {
		p.logger.Warn().Err(out.Err).Str("alert_key", key).Msg("pre-alert failed")
	}
}
