package api

import (
	"context"
	"errors"
	"io"
	"net/http"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	"gold-scalper/internal/models"
	"gold-scalper/internal/resilience"
	"gold-scalper/internal/store"
	"gold-scalper/internal/trading"
)

// AnalyzeRequest is the optional body of POST /analyze.
type AnalyzeRequest struct {
	Symbol string `json:"symbol"`
}

// AnalyzeResponse is the result of one decision cycle.
type AnalyzeResponse struct {
	Decision          *models.Decision       `json:"decision"`
	Message           string                 `json:"message"`
	Packet            *models.DecisionPacket `json:"decision_packet"`
	DataLatencyMs     int64                  `json:"data_latency_ms"`
	SignalKey         string                 `json:"signal_key"`
	TelegramSent      bool                   `json:"telegram_sent"`
	TelegramError     string                 `json:"telegram_error,omitempty"`
	TelegramLatencyMs int64                  `json:"telegram_latency_ms"`
}

func newAnalyzeResponse(a *trading.Analysis) AnalyzeResponse {
	resp := AnalyzeResponse{
		Message:           a.Message,
		Packet:            a.Packet,
		SignalKey:         a.SignalKey,
		TelegramSent:      a.Sent,
		TelegramError:     a.SendError,
		TelegramLatencyMs: a.Latency.Milliseconds(),
	}
	if a.Packet != nil {
		resp.Decision = a.Packet.Decision
		resp.DataLatencyMs = a.Packet.DataLatencyMs
	}
	return resp
}

// ResetRequest selects what POST /admin/reset clears. An empty body clears
// the active trade and the cooldown of today.
type ResetRequest struct {
	Day           string `json:"day"`
	ClearActive   *bool  `json:"clear_active"`
	ClearCooldown *bool  `json:"clear_cooldown"`
	ClearLoss     bool   `json:"clear_loss"`
}

func (s *Server) handleHealth(c *gin.Context) {
	resp := gin.H{"status": "ok", "ts_utc": s.now().UTC().Format(time.RFC3339)}
	if s.deps.Bridge != nil {
		ctx, cancel := context.WithTimeout(c.Request.Context(), 3*time.Second)
		defer cancel()
		if err := s.deps.Bridge.Health(ctx); err != nil {
			resp["bridge"] = "down"
			resp["bridge_error"] = err.Error()
		} else {
			resp["bridge"] = "ok"
		}
	}
	var circuits []resilience.Snapshot
	for _, dep := range []any{s.deps.Bridge, s.deps.News} {
		if r, ok := dep.(CircuitReporter); ok {
			circuits = append(circuits, r.Circuit())
		}
	}
	if len(circuits) > 0 {
		resp["circuits"] = circuits
	}
	c.JSON(http.StatusOK, resp)
}

func (s *Server) handleAnalyze(c *gin.Context) {
	var req AnalyzeRequest
	if err := c.ShouldBindJSON(&req); err != nil && !errors.Is(err, io.EOF) {
		errorResponse(c, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.Symbol != "" && s.deps.Symbol != "" && !strings.EqualFold(req.Symbol, s.deps.Symbol) {
		errorResponse(c, http.StatusBadRequest, "symbol not served: "+req.Symbol)
		return
	}

	a, err := s.deps.Runner.Analyze(c.Request.Context())
	if err != nil {
		s.logger.Error().Err(err).Msg("analyze failed")
		errorResponse(c, http.StatusInternalServerError, err.Error())
		return
	}
	c.JSON(http.StatusOK, newAnalyzeResponse(a))
}

func (s *Server) handleLastDecision(c *gin.Context) {
	a := s.deps.Runner.LastAnalysis()
	if a == nil {
		errorResponse(c, http.StatusNotFound, "no decision yet")
		return
	}
	c.JSON(http.StatusOK, newAnalyzeResponse(a))
}

func (s *Server) handleRunnerStatus(c *gin.Context) {
	st := s.deps.Runner.Status()
	var eta *int
	if st.NextRunAt != nil {
		sec := int(st.NextRunAt.Sub(s.now()).Seconds())
		if sec < 0 {
			sec = 0
		}
		eta = &sec
	}
	c.JSON(http.StatusOK, gin.H{
		"runner":           st,
		"next_run_eta_sec": eta,
	})
}

func (s *Server) handleNewsNext(c *gin.Context) {
	now := s.now().UTC()
	if s.deps.News == nil {
		c.JSON(http.StatusOK, gin.H{
			"provider":    "none",
			"ts_now":      now.Format(time.RFC3339),
			"news_lock":   false,
			"provider_ok": true,
		})
		return
	}
	ns, err := s.deps.News.Lock(c.Request.Context(), now)
	if err != nil {
		s.logger.Warn().Err(err).Msg("news provider degraded")
		ns.ProviderOK = false
	}
	c.JSON(http.StatusOK, gin.H{
		"provider":              s.deps.NewsSource,
		"ts_now":                now.Format(time.RFC3339),
		"next_event":            ns.NextEvent,
		"lock_window_start_min": ns.LockWindowStartMin,
		"lock_window_end_min":   ns.LockWindowEndMin,
		"news_lock":             ns.LockActive,
		"raw_count":             ns.RawCount,
		"provider_ok":           ns.ProviderOK,
		"news_state":            ns,
	})
}

// day returns the ?day= parameter, today by default.
func (s *Server) day(c *gin.Context) string {
	if d := c.Query("day"); d != "" {
		return d
	}
	return s.deps.Session.Day(s.now())
}

func validDay(day string) bool {
	_, err := time.Parse("2006-01-02", day)
	return err == nil
}

func (s *Server) handleSummary(c *gin.Context) {
	day := s.day(c)
	if !validDay(day) {
		errorResponse(c, http.StatusBadRequest, "day must be YYYY-MM-DD")
		return
	}
	sum, err := s.deps.Store.Summary(c.Request.Context(), day)
	if err != nil {
		errorResponse(c, http.StatusInternalServerError, err.Error())
		return
	}
	c.JSON(http.StatusOK, sum)
}

func (s *Server) handleReset(c *gin.Context) {
	var req ResetRequest
	if err := c.ShouldBindJSON(&req); err != nil && !errors.Is(err, io.EOF) {
		errorResponse(c, http.StatusBadRequest, "invalid request body")
		return
	}
	day := req.Day
	if day == "" {
		day = s.deps.Session.Day(s.now())
	}
	if !validDay(day) {
		errorResponse(c, http.StatusBadRequest, "day must be YYYY-MM-DD")
		return
	}
	opts := store.ResetOptions{
		ClearActive:   req.ClearActive == nil || *req.ClearActive,
		ClearCooldown: req.ClearCooldown == nil || *req.ClearCooldown,
		ClearLoss:     req.ClearLoss,
	}
	if err := s.deps.Store.ResetDay(c.Request.Context(), day, opts); err != nil {
		errorResponse(c, http.StatusInternalServerError, err.Error())
		return
	}
	s.logger.Info().Str("day", day).Bool("active", opts.ClearActive).Bool("cooldown", opts.ClearCooldown).Bool("loss", opts.ClearLoss).Msg("day reset")
	c.JSON(http.StatusOK, gin.H{"ok": true, "day": day, "reset": opts})
}

func (s *Server) handleTelegramTest(c *gin.Context) {
	if s.deps.Notifier == nil {
		errorResponse(c, http.StatusBadRequest, "no notifier configured")
		return
	}
	var req struct {
		Text string `json:"text"`
	}
	if err := c.ShouldBindJSON(&req); err != nil && !errors.Is(err, io.EOF) {
		errorResponse(c, http.StatusBadRequest, "invalid request body")
		return
	}
	text := req.Text
	if text == "" {
		text = "Test Telegram ✅"
	}
	res := s.deps.Notifier.Send(c.Request.Context(), text)
	c.JSON(http.StatusOK, gin.H{
		"sent":       res.Sent,
		"latency_ms": res.Latency.Milliseconds(),
		"error":      res.ErrorString(),
		"channels":   res.Channels,
	})
}

func limitParam(c *gin.Context, def, maxLimit int) int {
	n, err := strconv.Atoi(c.DefaultQuery("limit", strconv.Itoa(def)))
	if err != nil || n < 1 {
		return def
	}
	return min(n, maxLimit)
}

func (s *Server) handleOutcomes(c *gin.Context) {
	day := s.day(c)
	if !validDay(day) {
		errorResponse(c, http.StatusBadRequest, "day must be YYYY-MM-DD")
		return
	}
	outcomes, err := s.deps.Store.Outcomes(c.Request.Context(), day)
	if err != nil {
		errorResponse(c, http.StatusInternalServerError, err.Error())
		return
	}
	sort.Slice(outcomes, func(i, j int) bool { return outcomes[i].ClosedAt.After(outcomes[j].ClosedAt) })
	if limit := limitParam(c, 50, 200); len(outcomes) > limit {
		outcomes = outcomes[:limit]
	}
	if outcomes == nil {
		outcomes = []models.TradeOutcome{}
	}
	c.JSON(http.StatusOK, outcomes)
}

func (s *Server) handleSignals(c *gin.Context) {
	filter := store.SignalFilter{
		Day:    c.Query("day"),
		Status: models.DecisionStatus(c.Query("status")),
		Limit:  limitParam(c, 50, 200),
	}
	if filter.Day != "" && !validDay(filter.Day) {
		errorResponse(c, http.StatusBadRequest, "day must be YYYY-MM-DD")
		return
	}
	signals, err := s.deps.Store.RecentSignals(c.Request.Context(), filter)
	if err != nil {
		errorResponse(c, http.StatusInternalServerError, err.Error())
		return
	}
	if signals == nil {
		signals = []models.SignalRecord{}
	}
	c.JSON(http.StatusOK, signals)
}
