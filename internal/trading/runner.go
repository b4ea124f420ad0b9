package trading

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"

	apperrors "gold-scalper/internal/errors"
	"gold-scalper/internal/logging"
	"gold-scalper/internal/store"
)

// Cycle kinds.
const (
	CyclePipeline = "pipeline"
	CycleSuivi    = "suivi"
)

// RunnerConfig wires the runner.
type RunnerConfig struct {
	Interval time.Duration
	Pipeline *Pipeline
	Monitor  *Monitor
	Store    store.DayStore
	Clock    Clock
	Logger   zerolog.Logger
}

// RunnerStatus is a snapshot of the runner for the status endpoint and the
// state command.
type RunnerStatus struct {
	Running       bool       `json:"running"`
	Interval      string     `json:"interval"`
	Cycles        int        `json:"cycles"`
	LastRunAt     *time.Time `json:"last_run_ts,omitempty"`
	LastKind      string     `json:"last_kind,omitempty"`
	LastStatus    string     `json:"last_status,omitempty"`
	LastBlockedBy string     `json:"last_blocked_by,omitempty"`
	LastScore     int        `json:"last_score"`
	LastError     string     `json:"last_error,omitempty"`
	NextRunAt     *time.Time `json:"next_run_eta,omitempty"`
	ActiveDay     string     `json:"active_day,omitempty"`
}

// CycleResult is what one RunOnce did. Exactly one of Analysis and Suivi is
// set.
type CycleResult struct {
	Kind     string
	Day      string
	Analysis *Analysis
	Suivi    *MonitorReport
}

// Runner alternates between the decision pipeline and the trade monitor:
// while a trade is active only the monitor runs.
type Runner struct {
	cfg    RunnerConfig
	now    Clock
	logger zerolog.Logger

	// cycle serializes RunOnce between the loop and on-demand callers.
	cycle sync.Mutex

	mu       sync.RWMutex
	running  bool
	status   RunnerStatus
	last     *Analysis
	stopChan chan struct{}
}

// NewRunner creates a runner.
func NewRunner(cfg RunnerConfig) (*Runner, error) {
	if cfg.Pipeline == nil || cfg.Monitor == nil || cfg.Store == nil {
		return nil, fmt.Errorf("%w: runner needs a pipeline, a monitor and a store", apperrors.ErrConfigInvalid)
	}
	if cfg.Interval <= 0 {
		cfg.Interval = time.Minute
	}
	now := cfg.Clock
	if now == nil {
		now = time.Now
	}
	return &Runner{
		cfg:      cfg,
		now:      now,
		logger:   logging.WithComponent(cfg.Logger, "runner"),
		status:   RunnerStatus{Interval: cfg.Interval.String()},
		stopChan: make(chan struct{}),
	}, nil
}

// RunOnce runs one cycle. A trade opened before midnight is still followed
// on the next trading day.
func (r *Runner) RunOnce(ctx context.Context) (*CycleResult, error) {
	r.cycle.Lock()
	defer r.cycle.Unlock()

	now := r.now()
	res, err := r.runCycle(ctx, now)
	r.record(now, res, err)
	return res, err
}

// Analyze runs the decision pipeline on demand. While a trade is followed
// the pipeline answers ACTIVE_TRADE and leaves the day untouched. It is
// serialized with the loop and counts as a cycle in the status.
func (r *Runner) Analyze(ctx context.Context) (*Analysis, error) {
	r.cycle.Lock()
	defer r.cycle.Unlock()

	now := r.now()
	analysis, err := r.cfg.Pipeline.Analyze(ctx)
	if err != nil {
		err = fmt.Errorf("pipeline cycle failed: %w", err)
		r.record(now, nil, err)
		return nil, err
	}
	r.mu.Lock()
	r.last = analysis
	r.mu.Unlock()
	r.record(now, &CycleResult{Kind: CyclePipeline, Day: analysis.Day, Analysis: analysis}, nil)
	return analysis, nil
}

func (r *Runner) runCycle(ctx context.Context, now time.Time) (*CycleResult, error) {
	day, err := r.activeDay(ctx, now)
	if err != nil {
		return nil, err
	}
	if day != "" {
		report, err := r.cfg.Monitor.Run(ctx, day)
		switch {
		case err == nil:
			return &CycleResult{Kind: CycleSuivi, Day: day, Suivi: report}, nil
		case !errors.Is(err, apperrors.ErrNoActiveTrade):
			return nil, fmt.Errorf("suivi cycle failed: %w", err)
		}
		// Closed between the lookup and the run; analyze instead.
	}

	analysis, err := r.cfg.Pipeline.Analyze(ctx)
	if err != nil {
		return nil, fmt.Errorf("pipeline cycle failed: %w", err)
	}
	r.mu.Lock()
	r.last = analysis
	r.mu.Unlock()
	return &CycleResult{Kind: CyclePipeline, Day: analysis.Day, Analysis: analysis}, nil
}

// activeDay returns the trading day holding the active trade, today first.
func (r *Runner) activeDay(ctx context.Context, now time.Time) (string, error) {
	session := r.cfg.Pipeline.Session()
	today := session.Day(now)
	for _, day := range []string{today, session.Day(now.Add(-24 * time.Hour))} {
		st, err := r.cfg.Store.GetDay(ctx, day)
		if err != nil {
			return "", fmt.Errorf("failed to load day %s: %w", day, err)
		}
		if st.Active != nil {
			return day, nil
		}
	}
	return "", nil
}

func (r *Runner) record(now time.Time, res *CycleResult, err error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	at := now
	r.status.LastRunAt = &at
	r.status.Cycles++
	r.status.LastError = ""
	r.status.ActiveDay = ""
	if r.running {
		next := now.Add(r.cfg.Interval)
		r.status.NextRunAt = &next
	}
	if err != nil {
		r.status.LastError = err.Error()
		r.logger.Error().Err(err).Msg("cycle failed")
		return
	}

	r.status.LastKind = res.Kind
	switch res.Kind {
	case CycleSuivi:
		r.status.ActiveDay = res.Day
		r.status.LastStatus = string(res.Suivi.Status)
		r.status.LastBlockedBy = ""
		r.status.LastScore = 0
	case CyclePipeline:
		d := res.Analysis.Packet.Decision
		r.status.LastStatus = string(d.Status)
		r.status.LastBlockedBy = string(d.BlockedBy)
		r.status.LastScore = d.ScoreTotal
	}
}

// Run loops until ctx is cancelled or Stop is called, one cycle per
// interval starting immediately.
func (r *Runner) Run(ctx context.Context) error {
	r.mu.Lock()
	if r.running {
		r.mu.Unlock()
		return fmt.Errorf("runner already running")
	}
	r.running = true
	r.status.Running = true
	stop := r.stopChan
	r.mu.Unlock()

	defer func() {
		r.mu.Lock()
		r.running = false
		r.status.Running = false
		r.status.NextRunAt = nil
		r.mu.Unlock()
	}()

	r.logger.Info().Dur("interval", r.cfg.Interval).Msg("Runner started")
	ticker := time.NewTicker(r.cfg.Interval)
	defer ticker.Stop()

	for {
		// Cycle errors are recorded in the status; the loop keeps going.
		_, _ = r.RunOnce(ctx)

		select {
		case <-ctx.Done():
			r.logger.Info().Msg("Runner stopped")
			return nil
		case <-stop:
			r.logger.Info().Msg("Runner stopped")
			return nil
		case <-ticker.C:
		}
	}
}

// Stop ends a running loop.
func (r *Runner) Stop() error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if !r.running {
		return fmt.Errorf("runner not running")
	}
	close(r.stopChan)
	r.stopChan = make(chan struct{})
	return nil
}

// Status returns the current runner status.
func (r *Runner) Status() RunnerStatus {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.status
}

// LastAnalysis returns the most recent pipeline outcome, nil before the
// first pipeline cycle.
func (r *Runner) LastAnalysis() *Analysis {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.last
}

// Pipeline returns the decision pipeline.
func (r *Runner) Pipeline() *Pipeline {
	return r.cfg.Pipeline
}
