package models

import "time"

// DecisionStatus is the final verdict of a pipeline cycle.
type DecisionStatus string

const (
	StatusGo   DecisionStatus = "GO"
	StatusNoGo DecisionStatus = "NO_GO"
)

// BlockedBy names the veto that produced a NO_GO.
type BlockedBy string

const (
	BlockedNone              BlockedBy = ""
	BlockedDataOff           BlockedBy = "DATA_OFF"
	BlockedOutOfSession      BlockedBy = "OUT_OF_SESSION"
	BlockedLowLiquidity      BlockedBy = "LOW_LIQUIDITY"
	BlockedNewsLock          BlockedBy = "NEWS_LOCK"
	BlockedSpreadTooHigh     BlockedBy = "SPREAD_TOO_HIGH"
	BlockedSLTooLarge        BlockedBy = "SL_TOO_LARGE"
	BlockedVolatilityTooHigh BlockedBy = "VOLATILITY_TOO_HIGH"
	BlockedRRTooLow          BlockedBy = "RR_TOO_LOW"
	BlockedDailyBudget       BlockedBy = "DAILY_BUDGET_REACHED"
	BlockedDuplicateSignal   BlockedBy = "DUPLICATE_SIGNAL"
	BlockedSetupNotConfirmed BlockedBy = "SETUP_NOT_CONFIRMED"
	BlockedExtension         BlockedBy = "EXTENSION_TOO_FAR"
	BlockedStateNotReady     BlockedBy = "STATE_NOT_READY"
	BlockedNoSetup           BlockedBy = "NO_SETUP"
	BlockedActiveTrade       BlockedBy = "ACTIVE_TRADE"
)

// Quality grades a GO.
type Quality string

const (
	QualityAPlus Quality = "A+"
	QualityA     Quality = "A"
	QualityB     Quality = "B"
)

// QualityFor grades a score.
func QualityFor(score int) Quality {
	switch {
	case score >= 90:
		return QualityAPlus
	case score >= 80:
		return QualityA
	default:
		return QualityB
	}
}

// Decision is the verdict attached to a decision packet.
type Decision struct {
	Status         DecisionStatus `json:"status"`
	BlockedBy      BlockedBy      `json:"blocked_by,omitempty"`
	ScoreTotal     int            `json:"score_total"`
	ScoreEffective int            `json:"score_effective"`
	Confidence     int            `json:"confidence"`
	Quality        Quality        `json:"quality"`
	Why            []string       `json:"why"`
}

// NewsEvent is a calendar event as normalized from any news provider.
type NewsEvent struct {
	ID       string    `json:"id,omitempty" yaml:"id"`
	Time     time.Time `json:"datetime_iso" yaml:"datetime_iso"`
	Impact   string    `json:"impact" yaml:"impact"`
	Title    string    `json:"title" yaml:"title"`
	Currency string    `json:"currency,omitempty" yaml:"currency"`
	Country  string    `json:"country,omitempty" yaml:"country"`
	Actual   string    `json:"actual,omitempty" yaml:"actual"`
	Forecast string    `json:"forecast,omitempty" yaml:"forecast"`
	Previous string    `json:"previous,omitempty" yaml:"previous"`
	Source   string    `json:"source,omitempty" yaml:"source"`
}

// NewsState summarizes the news lock and timing for one cycle.
type NewsState struct {
	MinutesToEvent     *int       `json:"minutes_to_event"`
	Moment             string     `json:"moment"`
	HorizonMinutes     int        `json:"horizon_minutes"`
	LockActive         bool       `json:"lock_active"`
	LockReason         string     `json:"lock_reason,omitempty"`
	LockWindowStartMin int        `json:"lock_window_start_min"`
	LockWindowEndMin   int        `json:"lock_window_end_min"`
	ProviderOK         bool       `json:"provider_ok"`
	RawCount           int        `json:"raw_count"`
	ShouldPreAlert     bool       `json:"should_pre_alert"`
	BucketLabel        string     `json:"bucket_label,omitempty"`
	NextEvent          *NewsEvent `json:"next_event,omitempty"`
}

// PacketState carries the per-stage fields consumers of the packet need.
type PacketState struct {
	Direction          Direction         `json:"direction"`
	SetupType          string            `json:"setup_type"`
	TimingReady        bool              `json:"timing_ready"`
	TimingReason       string            `json:"timing_reason,omitempty"`
	Structure          string            `json:"structure"`
	StructureH1        string            `json:"structure_h1"`
	ExtensionDistance  float64           `json:"extension_distance"`
	ExtensionBlocked   bool              `json:"extension_blocked"`
	ExtensionReference string            `json:"extension_reference,omitempty"`
	TradeState         string            `json:"trade_state"`
	MarketPhase        string            `json:"market_phase,omitempty"`
	SetupConfirmCount  int               `json:"setup_confirm_count"`
	DailyBudgetUsed    float64           `json:"daily_budget_used"`
	CooldownOK         bool              `json:"cooldown_ok"`
	LastSignalKey      string            `json:"last_signal_key,omitempty"`
	ConsecutiveLosses  int               `json:"consecutive_losses"`
	Extra              map[string]string `json:"extra,omitempty"`
}

// Timestamps holds the cycle time in UTC and local (Paris) time.
type Timestamps struct {
	UTC   string `json:"ts_utc"`
	Local string `json:"ts_paris"`
}

// DecisionPacket is the wire contract produced by every pipeline cycle.
type DecisionPacket struct {
	DecisionID    string      `json:"decision_id"`
	Symbol        string      `json:"symbol"`
	SessionOK     bool        `json:"session_ok"`
	NewsLock      bool        `json:"news_lock"`
	NewsNextEvent *NewsEvent  `json:"news_next_event,omitempty"`
	NewsState     NewsState   `json:"news_state"`
	CurrentPrice  *float64    `json:"current_price,omitempty"`
	Spread        float64     `json:"spread"`
	SpreadMax     float64     `json:"spread_max"`
	ATR           float64     `json:"atr"`
	ATRMax        float64     `json:"atr_max"`
	BiasH1        Bias        `json:"bias_h1"`
	Direction     Direction   `json:"direction"`
	Setups        []string    `json:"setups_detected"`
	Entry         float64     `json:"proposed_entry"`
	StopLoss      float64     `json:"sl"`
	TP1           float64     `json:"tp1"`
	TP2           float64     `json:"tp2"`
	RRTP1         float64     `json:"rr_tp1"`
	RRTP2         float64     `json:"rr_tp2"`
	RRMin         float64     `json:"rr_min"`
	Score         int         `json:"score_rules"`
	Reasons       []string    `json:"reasons_rules"`
	State         PacketState `json:"state"`
	SourcesUsed   []string    `json:"sources_used"`
	Timestamps    Timestamps  `json:"timestamps"`
	DataLatencyMs int64       `json:"data_latency_ms"`
	BarTime       *time.Time  `json:"bar_ts,omitempty"`
	Decision      *Decision   `json:"decision,omitempty"`
}

// RiskPoints returns |entry - stop|.
func (p *DecisionPacket) RiskPoints() float64 {
	d := p.Entry - p.StopLoss
	if d < 0 {
		return -d
	}
	return d
}
