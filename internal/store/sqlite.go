package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	_ "github.com/mattn/go-sqlite3"

	apperrors "gold-scalper/internal/errors"
	"gold-scalper/internal/models"
)

const tsLayout = time.RFC3339Nano

// SQLiteStore implements DayStore using SQLite.
type SQLiteStore struct {
	db     *sql.DB
	locker Locker
	budget float64
}

// NewSQLiteStore opens (and creates) the database at opts.Path. A nil
// locker means an in-process mutex per day.
func NewSQLiteStore(opts Options, locker Locker) (*SQLiteStore, error) {
	if opts.Path == "" {
		return nil, fmt.Errorf("%w: store path is empty", apperrors.ErrConfigInvalid)
	}
	if opts.Path != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(opts.Path), 0o755); err != nil {
			return nil, fmt.Errorf("failed to create database directory: %w", err)
		}
	}
	busy := opts.BusyTimeoutMS
	if busy <= 0 {
		busy = 5000
	}
	db, err := sql.Open("sqlite3", fmt.Sprintf("%s?_journal_mode=WAL&_busy_timeout=%d&_txlock=immediate", opts.Path, busy))
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	maxOpen := opts.MaxOpenConns
	if maxOpen <= 0 {
		maxOpen = 4
	}
	db.SetMaxOpenConns(maxOpen)
	db.SetMaxIdleConns(maxOpen)
	db.SetConnMaxLifetime(time.Hour)

	if locker == nil {
		locker = NewMutexLocker()
	}
	s := &SQLiteStore{db: db, locker: locker, budget: opts.DailyBudget}
	if err := s.initSchema(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}
	return s, nil
}

// initSchema creates all required tables and indexes.
func (s *SQLiteStore) initSchema() error {
	schema := `
	-- One JSON document per Paris trading day (everything but the active trade)
	CREATE TABLE IF NOT EXISTS day_state (
		day TEXT PRIMARY KEY,
		data TEXT NOT NULL,
		updated_at TEXT NOT NULL
	);

	-- Trades opened by a GO; closed_at is set when the monitor exits them
	CREATE TABLE IF NOT EXISTS active_trades (
		started_at TEXT PRIMARY KEY,
		day TEXT NOT NULL,
		symbol TEXT NOT NULL,
		direction TEXT NOT NULL,
		entry REAL NOT NULL,
		sl REAL NOT NULL,
		tp1 REAL NOT NULL,
		tp2 REAL NOT NULL,
		be_applied INTEGER NOT NULL DEFAULT 0,
		be_applied_at TEXT,
		tp1_partial_pts REAL NOT NULL DEFAULT 0,
		invalid_level REAL,
		invalid_buffer REAL NOT NULL DEFAULT 0,
		closed_at TEXT
	);

	-- Signal log: one row per pipeline cycle
	CREATE TABLE IF NOT EXISTS signals (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		ts_utc TEXT NOT NULL,
		day TEXT NOT NULL,
		symbol TEXT NOT NULL,
		tf_signal TEXT,
		tf_context TEXT,
		status TEXT NOT NULL,
		blocked_by TEXT,
		direction TEXT,
		entry REAL,
		sl REAL,
		tp1 REAL,
		tp2 REAL,
		rr_tp2 REAL,
		score_total INTEGER,
		score_effective INTEGER,
		telegram_sent INTEGER NOT NULL DEFAULT 0,
		telegram_error TEXT,
		telegram_latency_ms INTEGER,
		alert_key TEXT,
		signal_key TEXT,
		why TEXT,
		message TEXT,
		data_latency_ms INTEGER,
		decision_packet TEXT
	);

	-- Append-only log of closed trades
	CREATE TABLE IF NOT EXISTS trade_outcomes (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		day TEXT NOT NULL,
		symbol TEXT NOT NULL,
		direction TEXT NOT NULL,
		started_at TEXT NOT NULL UNIQUE,
		closed_at TEXT NOT NULL,
		entry REAL NOT NULL,
		exit REAL NOT NULL,
		points REAL NOT NULL,
		reason TEXT
	);

	-- Idempotency keys and small settings
	CREATE TABLE IF NOT EXISTS meta (
		key TEXT PRIMARY KEY,
		value TEXT NOT NULL,
		updated_at TEXT NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_active_day ON active_trades(day, closed_at);
	CREATE INDEX IF NOT EXISTS idx_signals_day ON signals(day, status);
	CREATE INDEX IF NOT EXISTS idx_signals_key ON signals(signal_key);
	CREATE INDEX IF NOT EXISTS idx_outcomes_day ON trade_outcomes(day);
	`
	_, err := s.db.Exec(schema)
	return err
}

// Close closes the database connection.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// DB exposes the handle for health checks.
func (s *SQLiteStore) DB() *sql.DB {
	return s.db
}

type querier interface {
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

// WithDay implements DayStore.
func (s *SQLiteStore) WithDay(ctx context.Context, day string, fn func(st *models.DayState) error) error {
	unlock, err := s.locker.Lock(ctx, "day:"+day)
	if err != nil {
		return fmt.Errorf("%w: %s: %v", apperrors.ErrLockNotAcquired, day, err)
	}
	defer unlock()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	st, err := s.loadDay(ctx, tx, day)
	if err != nil {
		return err
	}
	if err := fn(st); err != nil {
		return err
	}
	if err := s.saveDay(ctx, tx, st); err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit day %s: %w", day, err)
	}
	return nil
}

// GetDay implements DayStore. A day never written reads as a fresh record.
func (s *SQLiteStore) GetDay(ctx context.Context, day string) (*models.DayState, error) {
	return s.loadDay(ctx, s.db, day)
}

func (s *SQLiteStore) loadDay(ctx context.Context, q querier, day string) (*models.DayState, error) {
	st := &models.DayState{Day: day, DailyBudget: s.budget}

	var data string
	err := q.QueryRowContext(ctx, `SELECT data FROM day_state WHERE day = ?`, day).Scan(&data)
	switch {
	case errors.Is(err, sql.ErrNoRows):
	case err != nil:
		return nil, fmt.Errorf("%w: failed to load day %s: %v", apperrors.ErrDatabaseError, day, err)
	default:
		if err := json.Unmarshal([]byte(data), st); err != nil {
			return nil, fmt.Errorf("failed to decode day %s: %w", day, err)
		}
	}
	st.Day = day
	if st.DailyBudget == 0 {
		st.DailyBudget = s.budget
	}

	active, err := s.loadActive(ctx, q, day)
	if err != nil {
		return nil, err
	}
	st.Active = active
	return st, nil
}

func (s *SQLiteStore) loadActive(ctx context.Context, q querier, day string) (*models.ActiveTrade, error) {
	var (
		t              models.ActiveTrade
		startedAt, dir string
		beApplied      int
		beAt           sql.NullString
		invalidLevel   sql.NullFloat64
	)
	err := q.QueryRowContext(ctx, `
		SELECT started_at, symbol, direction, entry, sl, tp1, tp2, be_applied, be_applied_at,
			tp1_partial_pts, invalid_level, invalid_buffer
		FROM active_trades
		WHERE day = ? AND closed_at IS NULL
		ORDER BY started_at DESC LIMIT 1`, day).Scan(
		&startedAt, &t.Symbol, &dir, &t.Entry, &t.StopLoss, &t.TP1, &t.TP2, &beApplied, &beAt,
		&t.TP1PartialPoints, &invalidLevel, &t.InvalidBuffer,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("%w: failed to load active trade: %v", apperrors.ErrDatabaseError, err)
	}

	t.Direction = models.Direction(dir)
	t.StartedAt, _ = time.Parse(tsLayout, startedAt)
	t.BEApplied = beApplied == 1
	if beAt.Valid {
		if at, err := time.Parse(tsLayout, beAt.String); err == nil {
			t.BEAppliedAt = &at
		}
	}
	if invalidLevel.Valid {
		v := invalidLevel.Float64
		t.InvalidLevel = &v
	}
	return &t, nil
}

func (s *SQLiteStore) saveDay(ctx context.Context, q querier, st *models.DayState) error {
	doc := *st
	doc.Active = nil
	data, err := json.Marshal(doc)
	if err != nil {
		return fmt.Errorf("failed to encode day %s: %w", st.Day, err)
	}
	now := time.Now().UTC().Format(tsLayout)
	if _, err := q.ExecContext(ctx, `
		INSERT INTO day_state (day, data, updated_at) VALUES (?, ?, ?)
		ON CONFLICT(day) DO UPDATE SET data = excluded.data, updated_at = excluded.updated_at`,
		st.Day, string(data), now); err != nil {
		return fmt.Errorf("%w: failed to save day %s: %v", apperrors.ErrDatabaseError, st.Day, err)
	}

	if st.Active == nil {
		if _, err := q.ExecContext(ctx,
			`UPDATE active_trades SET closed_at = ? WHERE day = ? AND closed_at IS NULL`, now, st.Day); err != nil {
			return fmt.Errorf("%w: failed to close active trade: %v", apperrors.ErrDatabaseError, err)
		}
		return nil
	}

	a := st.Active
	var beAt any
	if a.BEAppliedAt != nil {
		beAt = a.BEAppliedAt.UTC().Format(tsLayout)
	}
	var invalid any
	if a.InvalidLevel != nil {
		invalid = *a.InvalidLevel
	}
	// A breakeven applied concurrently by ApplyBreakeven is never undone by a
	// stale in-memory copy.
	_, err = q.ExecContext(ctx, `
		INSERT INTO active_trades (started_at, day, symbol, direction, entry, sl, tp1, tp2,
			be_applied, be_applied_at, tp1_partial_pts, invalid_level, invalid_buffer)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(started_at) DO UPDATE SET
			sl = CASE WHEN active_trades.be_applied = 1 AND excluded.be_applied = 0 THEN active_trades.sl ELSE excluded.sl END,
			tp1_partial_pts = CASE WHEN active_trades.be_applied = 1 AND excluded.be_applied = 0 THEN active_trades.tp1_partial_pts ELSE excluded.tp1_partial_pts END,
			be_applied_at = COALESCE(active_trades.be_applied_at, excluded.be_applied_at),
			be_applied = MAX(active_trades.be_applied, excluded.be_applied),
			invalid_level = excluded.invalid_level,
			invalid_buffer = excluded.invalid_buffer,
			closed_at = NULL`,
		a.StartedAt.UTC().Format(tsLayout), st.Day, a.Symbol, string(a.Direction), a.Entry, a.StopLoss, a.TP1, a.TP2,
		boolInt(a.BEApplied), beAt, a.TP1PartialPoints, invalid, a.InvalidBuffer)
	if err != nil {
		return fmt.Errorf("%w: failed to save active trade: %v", apperrors.ErrDatabaseError, err)
	}
	// Only one open trade per day.
	_, err = q.ExecContext(ctx, `UPDATE active_trades SET closed_at = ? WHERE day = ? AND closed_at IS NULL AND started_at <> ?`,
		now, st.Day, a.StartedAt.UTC().Format(tsLayout))
	if err != nil {
		return fmt.Errorf("%w: failed to close superseded trade: %v", apperrors.ErrDatabaseError, err)
	}
	return nil
}

// ApplyBreakeven implements DayStore.
func (s *SQLiteStore) ApplyBreakeven(ctx context.Context, day string, startedAt time.Time, newStop, partialPts float64, at time.Time) (bool, error) {
	res, err := s.db.ExecContext(ctx, `
		UPDATE active_trades
		SET sl = ?, be_applied = 1, be_applied_at = ?, tp1_partial_pts = ?
		WHERE day = ? AND started_at = ? AND be_applied = 0 AND closed_at IS NULL`,
		newStop, at.UTC().Format(tsLayout), partialPts, day, startedAt.UTC().Format(tsLayout))
	if err != nil {
		return false, fmt.Errorf("%w: failed to apply breakeven: %v", apperrors.ErrDatabaseError, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to read affected rows: %w", err)
	}
	return n == 1, nil
}

// AppendOutcome implements DayStore.
func (s *SQLiteStore) AppendOutcome(ctx context.Context, o *models.TradeOutcome) (bool, error) {
	res, err := s.db.ExecContext(ctx, `
		INSERT OR IGNORE INTO trade_outcomes (day, symbol, direction, started_at, closed_at, entry, exit, points, reason)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		o.Day, o.Symbol, string(o.Direction), o.StartedAt.UTC().Format(tsLayout), o.ClosedAt.UTC().Format(tsLayout),
		o.Entry, o.Exit, o.Points, o.Reason)
	if err != nil {
		return false, fmt.Errorf("%w: failed to append outcome: %v", apperrors.ErrDatabaseError, err)
	}
	n, _ := res.RowsAffected()
	if n == 1 {
		o.ID, _ = res.LastInsertId()
	}
	return n == 1, nil
}

// Outcomes implements DayStore.
func (s *SQLiteStore) Outcomes(ctx context.Context, day string) ([]models.TradeOutcome, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, day, symbol, direction, started_at, closed_at, entry, exit, points, reason
		FROM trade_outcomes WHERE day = ? ORDER BY closed_at ASC`, day)
	if err != nil {
		return nil, fmt.Errorf("%w: failed to query outcomes: %v", apperrors.ErrDatabaseError, err)
	}
	defer rows.Close()

	var out []models.TradeOutcome
	for rows.Next() {
		var (
			o                    models.TradeOutcome
			dir, started, closed string
			reason               sql.NullString
		)
		if err := rows.Scan(&o.ID, &o.Day, &o.Symbol, &dir, &started, &closed, &o.Entry, &o.Exit, &o.Points, &reason); err != nil {
			return nil, fmt.Errorf("failed to scan outcome: %w", err)
		}
		o.Direction = models.Direction(dir)
		o.StartedAt, _ = time.Parse(tsLayout, started)
		o.ClosedAt, _ = time.Parse(tsLayout, closed)
		o.Reason = reason.String
		out = append(out, o)
	}
	return out, rows.Err()
}

// SaveSignal implements DayStore.
func (s *SQLiteStore) SaveSignal(ctx context.Context, rec *models.SignalRecord) (int64, error) {
	why, err := json.Marshal(rec.Why)
	if err != nil {
		return 0, fmt.Errorf("failed to encode why: %w", err)
	}
	var packet any
	if rec.Packet != nil {
		raw, err := json.Marshal(rec.Packet)
		if err != nil {
			return 0, fmt.Errorf("failed to encode decision packet: %w", err)
		}
		packet = string(raw)
	}

	res, err := s.db.ExecContext(ctx, `
		INSERT INTO signals (ts_utc, day, symbol, tf_signal, tf_context, status, blocked_by, direction,
			entry, sl, tp1, tp2, rr_tp2, score_total, score_effective, telegram_sent, telegram_error,
			telegram_latency_ms, alert_key, signal_key, why, message, data_latency_ms, decision_packet)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		rec.Timestamp.UTC().Format(tsLayout), rec.Day, rec.Symbol, rec.TFSignal, rec.TFContext,
		string(rec.Status), string(rec.BlockedBy), string(rec.Direction),
		rec.Entry, rec.StopLoss, rec.TP1, rec.TP2, rec.RRTP2, rec.ScoreTotal, rec.ScoreEffective,
		boolInt(rec.TelegramSent), rec.TelegramError, rec.TelegramLatencyMs, rec.AlertKey, rec.SignalKey,
		string(why), rec.Message, rec.DataLatencyMs, packet)
	if err != nil {
		return 0, fmt.Errorf("%w: failed to save signal: %v", apperrors.ErrDatabaseError, err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("failed to read signal id: %w", err)
	}
	rec.ID = id
	return id, nil
}

// RecentSignals implements DayStore. Newest first.
func (s *SQLiteStore) RecentSignals(ctx context.Context, filter SignalFilter) ([]models.SignalRecord, error) {
	query := `SELECT id, ts_utc, day, symbol, tf_signal, tf_context, status, blocked_by, direction,
		entry, sl, tp1, tp2, rr_tp2, score_total, score_effective, telegram_sent, telegram_error,
		telegram_latency_ms, alert_key, signal_key, why, message, data_latency_ms
		FROM signals WHERE 1=1`
	var args []any
	if filter.Day != "" {
		query += " AND day = ?"
		args = append(args, filter.Day)
	}
	if filter.Status != "" {
		query += " AND status = ?"
		args = append(args, string(filter.Status))
	}
	query += " ORDER BY id DESC"
	if filter.Limit > 0 {
		query += fmt.Sprintf(" LIMIT %d", filter.Limit)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("%w: failed to query signals: %v", apperrors.ErrDatabaseError, err)
	}
	defer rows.Close()

	var out []models.SignalRecord
	for rows.Next() {
		var (
			r                                            models.SignalRecord
			ts, status, blocked, dir                     string
			tfSignal, tfContext, tgErr, alertKey, sigKey sql.NullString
			why, message                                 sql.NullString
			sent                                         int
			tgLatency, dataLatency                       sql.NullInt64
		)
		if err := rows.Scan(&r.ID, &ts, &r.Day, &r.Symbol, &tfSignal, &tfContext, &status, &blocked, &dir,
			&r.Entry, &r.StopLoss, &r.TP1, &r.TP2, &r.RRTP2, &r.ScoreTotal, &r.ScoreEffective, &sent, &tgErr,
			&tgLatency, &alertKey, &sigKey, &why, &message, &dataLatency); err != nil {
			return nil, fmt.Errorf("failed to scan signal: %w", err)
		}
		r.Timestamp, _ = time.Parse(tsLayout, ts)
		r.TFSignal, r.TFContext = tfSignal.String, tfContext.String
		r.Status = models.DecisionStatus(status)
		r.BlockedBy = models.BlockedBy(blocked)
		r.Direction = models.Direction(dir)
		r.TelegramSent = sent == 1
		r.TelegramError = tgErr.String
		r.TelegramLatencyMs = tgLatency.Int64
		r.AlertKey, r.SignalKey = alertKey.String, sigKey.String
		r.Message = message.String
		r.DataLatencyMs = dataLatency.Int64
		if why.Valid && why.String != "" {
			_ = json.Unmarshal([]byte(why.String), &r.Why)
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

// WasTelegramSent implements DayStore.
func (s *SQLiteStore) WasTelegramSent(ctx context.Context, signalKey string) (bool, error) {
	if signalKey == "" {
		return false, nil
	}
	var one int
	err := s.db.QueryRowContext(ctx,
		`SELECT 1 FROM signals WHERE signal_key = ? AND telegram_sent = 1 LIMIT 1`, signalKey).Scan(&one)
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("%w: failed to check signal key: %v", apperrors.ErrDatabaseError, err)
	}
	return true, nil
}

// MarkOnce implements DayStore.
func (s *SQLiteStore) MarkOnce(ctx context.Context, key string, at time.Time) (bool, error) {
	res, err := s.db.ExecContext(ctx,
		`INSERT OR IGNORE INTO meta (key, value, updated_at) VALUES (?, ?, ?)`,
		key, at.UTC().Format(tsLayout), time.Now().UTC().Format(tsLayout))
	if err != nil {
		return false, fmt.Errorf("%w: failed to mark %s: %v", apperrors.ErrDatabaseError, key, err)
	}
	n, _ := res.RowsAffected()
	return n == 1, nil
}

// GetMeta implements DayStore.
func (s *SQLiteStore) GetMeta(ctx context.Context, key string) (string, bool, error) {
	var v string
	err := s.db.QueryRowContext(ctx, `SELECT value FROM meta WHERE key = ?`, key).Scan(&v)
	if errors.Is(err, sql.ErrNoRows) {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("%w: failed to read meta %s: %v", apperrors.ErrDatabaseError, key, err)
	}
	return v, true, nil
}

// SetMeta implements DayStore.
func (s *SQLiteStore) SetMeta(ctx context.Context, key, value string) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO meta (key, value, updated_at) VALUES (?, ?, ?)
		ON CONFLICT(key) DO UPDATE SET value = excluded.value, updated_at = excluded.updated_at`,
		key, value, time.Now().UTC().Format(tsLayout))
	if err != nil {
		return fmt.Errorf("%w: failed to write meta %s: %v", apperrors.ErrDatabaseError, key, err)
	}
	return nil
}

// Summary implements DayStore.
func (s *SQLiteStore) Summary(ctx context.Context, day string) (*models.DaySummary, error) {
	sum := &models.DaySummary{Day: day, Outcomes: []float64{}}

	rows, err := s.db.QueryContext(ctx, `SELECT status, COUNT(*), MAX(ts_utc) FROM signals WHERE day = ? GROUP BY status`, day)
	if err != nil {
		return nil, fmt.Errorf("%w: failed to count signals: %v", apperrors.ErrDatabaseError, err)
	}
	for rows.Next() {
		var status, last string
		var n int
		if err := rows.Scan(&status, &n, &last); err != nil {
			rows.Close()
			return nil, fmt.Errorf("failed to scan signal counts: %w", err)
		}
		switch models.DecisionStatus(status) {
		case models.StatusGo:
			sum.GoCount = n
		case models.StatusNoGo:
			sum.NoGoCount = n
		}
		if ts, err := time.Parse(tsLayout, last); err == nil && (sum.LastSignalAt == nil || ts.After(*sum.LastSignalAt)) {
			sum.LastSignalAt = &ts
		}
	}
	rows.Close()

	outcomes, err := s.Outcomes(ctx, day)
	if err != nil {
		return nil, err
	}
	for _, o := range outcomes {
		sum.Outcomes = append(sum.Outcomes, o.Points)
		sum.TotalPoints += o.Points
		switch {
		case o.Points > 0:
			sum.Wins++
		case o.Points < 0:
			sum.Losses++
		}
	}
	if len(outcomes) > 0 {
		sum.WinRate = float64(sum.Wins) / float64(len(outcomes))
	}
	sum.TotalPoints = models.Round2(sum.TotalPoints)

	st, err := s.GetDay(ctx, day)
	if err != nil {
		return nil, err
	}
	sum.DailyLoss = st.DailyLoss
	sum.DailyBudget = st.DailyBudget
	return sum, nil
}

// ResetDay implements DayStore.
func (s *SQLiteStore) ResetDay(ctx context.Context, day string, opts ResetOptions) error {
	return s.WithDay(ctx, day, func(st *models.DayState) error {
		if opts.ClearActive {
			st.Active = nil
			st.SortieSentKey = ""
			st.LastSuiviAlertAt = nil
			st.LastSituationAt = nil
			st.LastSituationSignature = ""
		}
		if opts.ClearCooldown {
			st.LastDecisionAt = nil
			st.LastSignalKey = ""
			st.SetupConfirmCount = 0
		}
		if opts.ClearLoss {
			st.DailyLoss = 0
			st.ConsecutiveLosses = 0
		}
		return nil
	})
}

// Days lists the days that have a record, newest first.
func (s *SQLiteStore) Days(ctx context.Context, limit int) ([]string, error) {
	if limit <= 0 {
		limit = 30
	}
	rows, err := s.db.QueryContext(ctx, `SELECT day FROM day_state ORDER BY day DESC LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("%w: failed to list days: %v", apperrors.ErrDatabaseError, err)
	}
	defer rows.Close()
	var days []string
	for rows.Next() {
		var d string
		if err := rows.Scan(&d); err != nil {
			return nil, err
		}
		days = append(days, strings.TrimSpace(d))
	}
	return days, rows.Err()
}

func boolInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
