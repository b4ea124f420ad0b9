package config

import (
	"fmt"
	"os"
	"path/filepath"
)

const configTemplate = `# gold-scalper configuration
# Every key is optional; environment variables override it as
# GOLD_SCALPER_<SECTION>_<KEY>, e.g. GOLD_SCALPER_RISK_SPREAD_MAX=25.

[instrument]
symbol = "XAUUSD"
tf_signal = "M15"
tf_context = "H1"
tf_confirm = "M5"

[market]
# mock: deterministic synthetic candles. remote_mt5: the MT5 bridge.
provider = "mock"
bridge_url = ""
# Symbol sent with position actions when the broker suffixes it (XAUUSDm).
position_symbol = ""
timeout = "4s"
retry = 1

[market.breaker]
# Consecutive failures before calls to the bridge fail fast.
failure_threshold = 5
open_for = "30s"

[session]
# windows, market_close or off
mode = "windows"
windows = ["14:30-18:30", "20:00-22:00"]
timezone = "Europe/Paris"
always_in_session = false

[risk]
spread_max = 20.0
hard_spread_max_points = 40.0
atr_max = 40.0
sl_max_pts = 25.0
rr_hard_min_tp1 = 0.25
cooldown_minutes = 20
# Daily loss budget in points; 0 disables it.
daily_budget = 20.0
setup_confirm_min_bars = 1
go_threshold = 80
data_max_age_sec = 120

[engine.setup]
sl_min_pts = 20.0
sl_max_pts = 25.0
tp1_min_pts = 10.0
tp1_max_pts = 20.0
scalp_mode = true

[engine.timing]
# classic or pullback_m5
mode = "classic"

[suivi]
be_enabled = true
be_offset_pts = 0.0
tp1_partial_pct = 0.5
alert_cooldown_minutes = 15
# Apply breakeven and the partial close through the bridge.
auto_apply_be = false
close_partial = false

[notify]
send_go = true
send_no_go_important = true
no_go_important_blocks = ["NEWS_LOCK", "DATA_OFF", "DAILY_BUDGET_REACHED"]
prealert = true

[news]
# none, static, api, calendar_api or tradingeconomics
provider = "static"
calendar_path = "data/news_calendar.yaml"
api_base_url = ""
api_key = ""
te_api_key = ""
fallback_to_static = true
prealert_minutes = [60, 30, 15]

[news.breaker]
failure_threshold = 3
open_for = "2m"

[telegram]
enabled = false
bot_token = ""
chat_id = ""

[webhook]
enabled = false
url = ""

[store]
path = "data/gold_scalper.db"

[redis]
# Shares the day lock and the news cache between several pollers.
enabled = false
addr = "localhost:6379"

[runner]
interval = "60s"

[api]
listen = "127.0.0.1:8080"
# Required by POST /admin/reset; empty disables the endpoint.
admin_token = ""

[metrics]
enabled = true
path = "/metrics"

[logging]
level = "info"
format = "console"
`

// createTemplateConfig writes a commented config.toml unless one exists.
func createTemplateConfig(configDir string) error {
	if err := os.MkdirAll(configDir, 0700); err != nil {
		return fmt.Errorf("creating config directory: %w", err)
	}

	path := filepath.Join(configDir, "config.toml")
	if _, err := os.Stat(path); err == nil {
		return nil
	}

	if err := os.WriteFile(path, []byte(configTemplate), 0600); err != nil {
		return fmt.Errorf("writing config template: %w", err)
	}
	return nil
}

// Template returns the commented default configuration.
func Template() string {
	return configTemplate
}
