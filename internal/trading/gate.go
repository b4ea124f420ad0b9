package trading

import (
	"fmt"
	"math"
	"time"

	"github.com/creasty/defaults"

	"gold-scalper/internal/models"
)

// RiskParams are the hard limits checked by the gate and the thresholds of
// the final verdict.
type RiskParams struct {
	SpreadMax           float64 `mapstructure:"spread_max" default:"20" validate:"gt=0"`
	HardSpreadMaxPoints float64 `mapstructure:"hard_spread_max_points" default:"40" validate:"gtefield=SpreadMax"`
	HardSpreadMaxRatio  float64 `mapstructure:"hard_spread_max_ratio" default:"0.12" validate:"gt=0"`
	ATRMax              float64 `mapstructure:"atr_max" default:"40" validate:"gt=0"`
	SLMaxPoints         float64 `mapstructure:"sl_max_pts" default:"25" validate:"gt=0"`
	RRHardMinTP1        float64 `mapstructure:"rr_hard_min_tp1" default:"0.25" validate:"gte=0"`
	RRMin               float64 `mapstructure:"rr_min" default:"1.5"`
	CooldownMinutes     int     `mapstructure:"cooldown_minutes" default:"20" validate:"gte=0"`
	DailyBudget         float64 `mapstructure:"daily_budget" default:"20" validate:"gte=0"`
	SetupConfirmMinBars int     `mapstructure:"setup_confirm_min_bars" default:"1" validate:"gte=0"`
	ConfirmEntryTolPts  float64 `mapstructure:"setup_confirm_entry_tol_pts" default:"5" validate:"gte=0"`
	GoThreshold         int     `mapstructure:"go_threshold" default:"80" validate:"gte=0,lte=100"`
	DataMaxAgeSec       int     `mapstructure:"data_max_age_sec" default:"120" validate:"gt=0"`
}

// DefaultRiskParams returns the production limits.
func DefaultRiskParams() RiskParams {
	var p RiskParams
	_ = defaults.Set(&p)
	return p
}

// Cooldown returns the cooldown window.
func (p RiskParams) Cooldown() time.Duration {
	return time.Duration(p.CooldownMinutes) * time.Minute
}

// GateInput is what the hard rules look at.
type GateInput struct {
	Packet            *models.DecisionPacket
	Day               *models.DayState
	Now               time.Time
	SetupConfirmCount int
}

// GateResult is the first failing rule, or the zero value when every rule
// passed.
type GateResult struct {
	BlockedBy models.BlockedBy
	Reason    string
}

// Blocked reports whether a rule vetoed the proposal.
func (r GateResult) Blocked() bool {
	return r.BlockedBy != models.BlockedNone
}

// Gate evaluates the ordered hard rules. The first failing rule wins.
type Gate struct {
	params  RiskParams
	session *SessionManager
}

// NewGate creates a gate.
func NewGate(params RiskParams, session *SessionManager) *Gate {
	return &Gate{params: params, session: session}
}

// Params returns the risk parameters.
func (g *Gate) Params() RiskParams {
	return g.params
}

type rule func(in GateInput) GateResult

// Evaluate runs the rules in order: session, liquidity, news, hard spread,
// stop size, spread/risk ratio, spread, volatility, RR floor, budget,
// cooldown, setup confirmation.
func (g *Gate) Evaluate(in GateInput) GateResult {
	rules := []rule{
		g.checkSession,
		g.checkLiquidity,
		g.checkNews,
		g.checkHardSpread,
		g.checkStopSize,
		g.checkSpreadRatio,
		g.checkSpread,
		g.checkVolatility,
		g.checkRR,
		g.checkBudget,
		g.checkCooldown,
		g.checkConfirmation,
	}
	for _, r := range rules {
		if res := r(in); res.Blocked() {
			return res
		}
	}
	return GateResult{}
}

func (g *Gate) checkSession(in GateInput) GateResult {
	if !in.Packet.SessionOK {
		return GateResult{models.BlockedOutOfSession, "Hors fenêtre de trading"}
	}
	return GateResult{}
}

func (g *Gate) checkLiquidity(in GateInput) GateResult {
	if g.session == nil {
		return GateResult{}
	}
	if ok, reason := g.session.LiquidityCheck(in.Now); !ok {
		return GateResult{models.BlockedLowLiquidity, reason}
	}
	return GateResult{}
}

func (g *Gate) checkNews(in GateInput) GateResult {
	if in.Packet.NewsState.LockActive || in.Packet.NewsLock {
		return GateResult{models.BlockedNewsLock, "News high impact"}
	}
	return GateResult{}
}

func (g *Gate) checkHardSpread(in GateInput) GateResult {
	if in.Packet.Spread >= g.params.HardSpreadMaxPoints {
		return GateResult{models.BlockedSpreadTooHigh,
			fmt.Sprintf("Spread trop élevé (hard block: %.0f >= %v)", in.Packet.Spread, g.params.HardSpreadMaxPoints)}
	}
	return GateResult{}
}

func (g *Gate) checkStopSize(in GateInput) GateResult {
	risk := in.Packet.RiskPoints()
	if risk > g.params.SLMaxPoints {
		return GateResult{models.BlockedSLTooLarge,
			fmt.Sprintf("SL trop large (risque %.0f > %v pts)", risk, g.params.SLMaxPoints)}
	}
	return GateResult{}
}

// checkSpreadRatio only applies once the spread is above its soft maximum.
func (g *Gate) checkSpreadRatio(in GateInput) GateResult {
	p := in.Packet
	risk := p.RiskPoints()
	if p.Spread > p.SpreadMax && risk > 0.01 && p.Spread > risk*g.params.HardSpreadMaxRatio {
		return GateResult{models.BlockedSpreadTooHigh,
			fmt.Sprintf("Spread/risque trop élevé (ratio %.2f > %v)", p.Spread/risk, g.params.HardSpreadMaxRatio)}
	}
	return GateResult{}
}

func (g *Gate) checkSpread(in GateInput) GateResult {
	if in.Packet.Spread > in.Packet.SpreadMax {
		return GateResult{models.BlockedSpreadTooHigh, "Spread trop élevé"}
	}
	return GateResult{}
}

func (g *Gate) checkVolatility(in GateInput) GateResult {
	if in.Packet.ATR > in.Packet.ATRMax {
		return GateResult{models.BlockedVolatilityTooHigh, "Volatilité trop élevée"}
	}
	return GateResult{}
}

func (g *Gate) checkRR(in GateInput) GateResult {
	if in.Packet.RRTP1 < g.params.RRHardMinTP1 {
		return GateResult{models.BlockedRRTooLow,
			fmt.Sprintf("RR TP1 extrêmement faible (%.2f < %.2f)", in.Packet.RRTP1, g.params.RRHardMinTP1)}
	}
	return GateResult{}
}

func (g *Gate) checkBudget(in GateInput) GateResult {
	if in.Day != nil && in.Day.BudgetReached() {
		return GateResult{models.BlockedDailyBudget, "Budget journalier atteint"}
	}
	return GateResult{}
}

func (g *Gate) checkCooldown(in GateInput) GateResult {
	if in.Day != nil && !in.Day.CooldownOK(in.Now, g.params.Cooldown()) {
		return GateResult{models.BlockedDuplicateSignal, "Cooldown actif"}
	}
	return GateResult{}
}

func (g *Gate) checkConfirmation(in GateInput) GateResult {
	if in.SetupConfirmCount < g.params.SetupConfirmMinBars {
		return GateResult{models.BlockedSetupNotConfirmed,
			fmt.Sprintf("Setup non confirmé (%d/%d barres)", in.SetupConfirmCount, g.params.SetupConfirmMinBars)}
	}
	return GateResult{}
}

// NextConfirmCount advances the setup confirmation counter. The count grows
// by one per new bar while the direction holds and the entry stays within
// tol points; it restarts at one otherwise. The same bar never counts twice.
func NextConfirmCount(st *models.DayState, dir models.Direction, entry float64, barTime *time.Time, tol float64) int {
	same := st.LastSetupDirection == dir && math.Abs(st.LastSetupEntry-entry) <= tol
	switch {
	case !same:
		return 1
	case barTime != nil && st.LastSetupBarAt != nil && barTime.Equal(*st.LastSetupBarAt):
		return max(st.SetupConfirmCount, 1)
	default:
		return st.SetupConfirmCount + 1
	}
}
