package models

import "time"

// ActiveTrade is the live trade of a trading day. It is created when a GO is
// dispatched and mutated only by the lifecycle monitor.
type ActiveTrade struct {
	Symbol           string     `json:"symbol"`
	Direction        Direction  `json:"direction"`
	Entry            float64    `json:"entry"`
	StopLoss         float64    `json:"sl"`
	TP1              float64    `json:"tp1"`
	TP2              float64    `json:"tp2"`
	StartedAt        time.Time  `json:"started_at"`
	BEApplied        bool       `json:"be_applied"`
	BEAppliedAt      *time.Time `json:"be_applied_at,omitempty"`
	TP1PartialPoints float64    `json:"tp1_partial_pts"`
	InvalidLevel     *float64   `json:"invalid_level,omitempty"`
	InvalidBuffer    float64    `json:"invalid_buffer_pts"`
}

// Key identifies the trade for idempotency markers.
func (t *ActiveTrade) Key() string {
	return t.StartedAt.UTC().Format(time.RFC3339Nano)
}

// DayState is the per-trading-day record. It is the only mutable shared
// resource and is read-modify-written under a day lock.
type DayState struct {
	Day               string     `json:"day"`
	DailyLoss         float64    `json:"daily_loss"`
	DailyBudget       float64    `json:"daily_budget"`
	LastSignalKey     string     `json:"last_signal_key,omitempty"`
	LastDecisionAt    *time.Time `json:"last_ts,omitempty"`
	ConsecutiveLosses int        `json:"consecutive_losses"`

	SetupConfirmCount  int        `json:"setup_confirm_count"`
	LastSetupDirection Direction  `json:"last_setup_direction,omitempty"`
	LastSetupEntry     float64    `json:"last_setup_entry"`
	LastSetupBarAt     *time.Time `json:"last_setup_bar_ts,omitempty"`

	Active *ActiveTrade `json:"active,omitempty"`

	LastSuiviAlertAt        *time.Time `json:"last_suivi_alerte_ts,omitempty"`
	LastSituationAt         *time.Time `json:"last_suivi_situation_ts,omitempty"`
	LastSituationSignature  string     `json:"last_suivi_situation_signature,omitempty"`
	LastTradeClosedAt       *time.Time `json:"last_trade_closed_ts,omitempty"`
	LastInvalidationAlertAt *time.Time `json:"last_invalidation_alert_ts,omitempty"`
	SortieSentKey           string     `json:"suivi_sortie_sent,omitempty"`
	InvalidationSentKey     string     `json:"suivi_invalidation_sent,omitempty"`

	TradeState  string `json:"trade_state_machine,omitempty"`
	MarketPhase string `json:"market_phase,omitempty"`
}

// BudgetReached reports whether the daily loss budget is used up.
func (s *DayState) BudgetReached() bool {
	return s.DailyBudget > 0 && s.DailyLoss >= s.DailyBudget
}

// OpenTrade makes trade the active trade. The alert cooldown and the hold
// signature belong to the previous trade and are cleared.
func (s *DayState) OpenTrade(trade *ActiveTrade) {
	s.Active = trade
	s.LastSuiviAlertAt = nil
	s.LastSituationAt = nil
	s.LastSituationSignature = ""
}

// CooldownOK reports whether enough time has passed since the last GO.
func (s *DayState) CooldownOK(now time.Time, cooldown time.Duration) bool {
	if s.LastDecisionAt == nil {
		return true
	}
	return now.Sub(*s.LastDecisionAt) >= cooldown
}

// TradeOutcome is one closed trade in the append-only outcome log.
type TradeOutcome struct {
	ID        int64     `json:"id"`
	Day       string    `json:"day"`
	Symbol    string    `json:"symbol"`
	Direction Direction `json:"direction"`
	StartedAt time.Time `json:"started_at"`
	ClosedAt  time.Time `json:"closed_at"`
	Entry     float64   `json:"entry"`
	Exit      float64   `json:"exit"`
	Points    float64   `json:"points"`
	Reason    string    `json:"reason"`
}

// SignalRecord is one row of the signal log, written for every cycle.
type SignalRecord struct {
	ID                int64           `json:"id"`
	Timestamp         time.Time       `json:"ts_utc"`
	Day               string          `json:"day_paris"`
	Symbol            string          `json:"symbol"`
	TFSignal          string          `json:"tf_signal"`
	TFContext         string          `json:"tf_context"`
	Status            DecisionStatus  `json:"status"`
	BlockedBy         BlockedBy       `json:"blocked_by,omitempty"`
	Direction         Direction       `json:"direction"`
	Entry             float64         `json:"entry"`
	StopLoss          float64         `json:"sl"`
	TP1               float64         `json:"tp1"`
	TP2               float64         `json:"tp2"`
	RRTP2             float64         `json:"rr_tp2"`
	ScoreTotal        int             `json:"score_total"`
	ScoreEffective    int             `json:"score_effective"`
	TelegramSent      bool            `json:"telegram_sent"`
	TelegramError     string          `json:"telegram_error,omitempty"`
	TelegramLatencyMs int64           `json:"telegram_latency_ms"`
	AlertKey          string          `json:"alert_key,omitempty"`
	SignalKey         string          `json:"signal_key"`
	Why               []string        `json:"why"`
	Message           string          `json:"message"`
	DataLatencyMs     int64           `json:"data_latency_ms"`
	Packet            *DecisionPacket `json:"decision_packet,omitempty"`
}

// DaySummary aggregates the signal and outcome logs for one day.
type DaySummary struct {
	Day          string     `json:"day_paris"`
	GoCount      int        `json:"n_go"`
	NoGoCount    int        `json:"n_no_go"`
	Outcomes     []float64  `json:"outcomes_pts"`
	TotalPoints  float64    `json:"total_pts"`
	Wins         int        `json:"wins"`
	Losses       int        `json:"losses"`
	WinRate      float64    `json:"win_rate"`
	DailyLoss    float64    `json:"daily_loss"`
	DailyBudget  float64    `json:"daily_budget"`
	LastSignalAt *time.Time `json:"last_signal_ts,omitempty"`
}
