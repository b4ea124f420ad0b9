package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	apperrors "gold-scalper/internal/errors"
	"gold-scalper/internal/models"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "config.toml"), []byte(body), 0o600))
	return dir
}

func TestDefault_Validates(t *testing.T) {
	cfg := Default()
	cfg.normalize()
	require.NoError(t, cfg.Validate())

	assert.Equal(t, "XAUUSD", cfg.Instrument.Symbol)
	assert.Equal(t, models.M15, cfg.Instrument.TFSignal)
	assert.Equal(t, 20.0, cfg.Risk.SpreadMax)
	assert.Equal(t, 80, cfg.Risk.GoThreshold)
	assert.Equal(t, 20.0, cfg.Engine.Setup.SLMinPts)
	assert.Equal(t, time.Minute, cfg.Runner.Interval)
	assert.Equal(t, "static", cfg.News.Provider)
	assert.True(t, cfg.IsPaperMode())
}

func TestLoad_MissingFileWritesTemplate(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "cfg")

	cfg, err := Load(dir)
	require.NoError(t, err)
	assert.Equal(t, "XAUUSD", cfg.Instrument.Symbol)

	body, err := os.ReadFile(filepath.Join(dir, "config.toml"))
	require.NoError(t, err)
	assert.Equal(t, Template(), string(body))

	// The template itself loads cleanly.
	again, err := Load(dir)
	require.NoError(t, err)
	assert.Equal(t, cfg.Risk, again.Risk)
	assert.Equal(t, 3, again.News.Breaker.FailureThreshold)
	assert.Equal(t, 2*time.Minute, again.News.Breaker.OpenFor)
	assert.Equal(t, 5, again.Market.Breaker.FailureThreshold)
}

func TestLoad_FileValues(t *testing.T) {
	dir := writeConfig(t, `
[instrument]
symbol = "xauusd"

[risk]
spread_max = 25.0
hard_spread_max_points = 45.0
cooldown_minutes = 30

[engine.timing]
mode = "pullback_m5"

[news]
provider = "none"
impact_min = "med"

[runner]
interval = "90s"
`)
	cfg, err := Load(dir)
	require.NoError(t, err)

	assert.Equal(t, "XAUUSD", cfg.Instrument.Symbol)
	assert.Equal(t, "XAUUSD", cfg.Quotes.Symbol)
	assert.Equal(t, 25.0, cfg.Risk.SpreadMax)
	assert.Equal(t, 30, cfg.Risk.CooldownMinutes)
	// Untouched keys keep their defaults.
	assert.Equal(t, 40.0, cfg.Risk.ATRMax)
	assert.Equal(t, "pullback_m5", string(cfg.Engine.Timing.Mode))
	assert.Equal(t, "MEDIUM", cfg.News.ImpactMin)
	assert.Equal(t, 90*time.Second, cfg.Runner.Interval)
	assert.Equal(t, cfg.Risk.DailyBudget, cfg.Store.DailyBudget)
}

func TestLoad_EnvOverrides(t *testing.T) {
	dir := writeConfig(t, "[risk]\nspread_max = 25.0\n")
	t.Setenv("GOLD_SCALPER_RISK_SPREAD_MAX", "30")
	t.Setenv("GOLD_SCALPER_TELEGRAM_ENABLED", "true")
	t.Setenv("GOLD_SCALPER_TELEGRAM_BOT_TOKEN", "123:abc")
	t.Setenv("GOLD_SCALPER_TELEGRAM_CHAT_ID", "-100")
	t.Setenv("GOLD_SCALPER_SUIVI_ALERT_COOLDOWN_MINUTES", "5")

	cfg, err := Load(dir)
	require.NoError(t, err)

	assert.Equal(t, 30.0, cfg.Risk.SpreadMax)
	assert.True(t, cfg.Telegram.Enabled)
	assert.Equal(t, "123:abc", cfg.Telegram.BotToken)
	assert.Equal(t, "-100", cfg.Telegram.ChatID)
	assert.Equal(t, 5, cfg.Suivi.AlertCooldownMinutes)
}

func TestLoadFile(t *testing.T) {
	dir := writeConfig(t, "[api]\nlisten = \":9090\"\n")

	cfg, err := LoadFile(filepath.Join(dir, "config.toml"))
	require.NoError(t, err)
	assert.Equal(t, ":9090", cfg.API.Listen)

	_, err = LoadFile(filepath.Join(dir, "missing.toml"))
	assert.Error(t, err)
}

func TestLoad_Invalid(t *testing.T) {
	tests := []struct {
		name string
		body string
	}{
		{"sl band inverted", "[engine.setup]\nsl_min_pts = 30.0\nsl_max_pts = 20.0\n"},
		{"unknown provider", "[market]\nprovider = \"ib\"\n"},
		{"remote without url", "[market]\nprovider = \"remote_mt5\"\n"},
		{"telegram without token", "[telegram]\nenabled = true\n"},
		{"tradingeconomics without key", "[news]\nprovider = \"tradingeconomics\"\n"},
		{"calendar without url", "[news]\nprovider = \"calendar_api\"\n"},
		{"bad window", "[session]\nwindows = [\"25:00-26:00\"]\n"},
		{"go threshold out of range", "[risk]\ngo_threshold = 120\n"},
		{"interval too short", "[runner]\ninterval = \"10ms\"\n"},
		{"soft spread above hard", "[scoring.spread]\nsoft_spread_start_points = 50.0\n"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Load(writeConfig(t, tt.body))
			require.Error(t, err)
			assert.ErrorIs(t, err, apperrors.ErrConfigInvalid)
		})
	}
}

func TestLoad_MalformedFile(t *testing.T) {
	_, err := Load(writeConfig(t, "[risk\nspread_max = "))
	require.Error(t, err)
	assert.NotErrorIs(t, err, apperrors.ErrConfigInvalid)
}
