// Package config provides configuration management for the scalper.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"reflect"
	"strings"
	"time"

	"github.com/creasty/defaults"
	"github.com/go-playground/validator/v10"
	"github.com/spf13/viper"

	"gold-scalper/internal/analysis/confluence"
	"gold-scalper/internal/analysis/extension"
	"gold-scalper/internal/analysis/scoring"
	"gold-scalper/internal/analysis/setup"
	"gold-scalper/internal/analysis/timing"
	"gold-scalper/internal/analysis/tradestate"
	"gold-scalper/internal/api"
	"gold-scalper/internal/broker"
	apperrors "gold-scalper/internal/errors"
	"gold-scalper/internal/logging"
	"gold-scalper/internal/models"
	"gold-scalper/internal/news"
	"gold-scalper/internal/notify"
	"gold-scalper/internal/store"
	"gold-scalper/internal/trading"
)

// EnvPrefix prefixes every environment override: GOLD_SCALPER_RISK_SPREAD_MAX
// overrides risk.spread_max.
const EnvPrefix = "GOLD_SCALPER"

// Config holds all application configuration.
type Config struct {
	Instrument InstrumentConfig      `mapstructure:"instrument"`
	Market     broker.Config         `mapstructure:"market"`
	Quotes     broker.TickerConfig   `mapstructure:"quotes"`
	Session    trading.SessionParams `mapstructure:"session"`
	Risk       trading.RiskParams    `mapstructure:"risk"`
	Engine     EngineConfig          `mapstructure:"engine"`
	Scoring    ScoringConfig         `mapstructure:"scoring"`
	Suivi      trading.SuiviParams   `mapstructure:"suivi"`
	Notify     trading.NotifyPolicy  `mapstructure:"notify"`
	News       news.Params           `mapstructure:"news"`
	Telegram   notify.TelegramConfig `mapstructure:"telegram"`
	Webhook    notify.WebhookConfig  `mapstructure:"webhook"`
	Store      store.Options         `mapstructure:"store"`
	Redis      store.RedisConfig     `mapstructure:"redis"`
	Runner     RunnerConfig          `mapstructure:"runner"`
	API        api.Options           `mapstructure:"api"`
	Metrics    MetricsConfig         `mapstructure:"metrics"`
	Logging    logging.LogConfig     `mapstructure:"logging"`
}

// InstrumentConfig names the traded symbol and its timeframes.
type InstrumentConfig struct {
	Symbol      string           `mapstructure:"symbol" default:"XAUUSD" validate:"required"`
	TFSignal    models.Timeframe `mapstructure:"tf_signal" default:"M15" validate:"oneof=M1 M5 M15 H1"`
	TFContext   models.Timeframe `mapstructure:"tf_context" default:"H1" validate:"oneof=M1 M5 M15 H1"`
	TFConfirm   models.Timeframe `mapstructure:"tf_confirm" default:"M5" validate:"oneof=M1 M5 M15 H1"`
	CandleCount int              `mapstructure:"candle_count" default:"200" validate:"gte=50,lte=2000"`
}

// EngineConfig groups the analysis engine tuning.
type EngineConfig struct {
	Setup     setup.Params              `mapstructure:"setup"`
	Timing    timing.Params             `mapstructure:"timing"`
	Extension extension.Params          `mapstructure:"extension"`
	Pullback  tradestate.PullbackParams `mapstructure:"pullback"`
	Room      confluence.RoomParams     `mapstructure:"room"`
	Fibo      confluence.FiboParams     `mapstructure:"fibo"`
}

// ScoringConfig holds the point table and the soft spread penalty.
type ScoringConfig struct {
	Points scoring.Points       `mapstructure:"points"`
	Spread scoring.SpreadParams `mapstructure:"spread"`
}

// RunnerConfig configures the polling loop.
type RunnerConfig struct {
	Interval time.Duration `mapstructure:"interval" default:"60s" validate:"gte=1s"`
}

// MetricsConfig configures the Prometheus endpoint.
type MetricsConfig struct {
	Enabled   bool   `mapstructure:"enabled" default:"true"`
	Namespace string `mapstructure:"namespace" default:"gold_scalper"`
	Path      string `mapstructure:"path" default:"/metrics" validate:"startswith=/"`
}

// Default returns the configuration with every default applied.
func Default() *Config {
	cfg := &Config{}
	_ = defaults.Set(cfg)
	cfg.Logging = logging.DefaultLogConfig()
	return cfg
}

// DefaultConfigDir returns the default configuration directory.
func DefaultConfigDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ".config/gold-scalper"
	}
	return filepath.Join(home, ".config", "gold-scalper")
}

// Load reads config.toml from configDir (the default directory when empty),
// applies GOLD_SCALPER_* environment overrides and validates the result. A
// missing file is replaced by a commented template and the defaults apply.
func Load(configDir string) (*Config, error) {
	if configDir == "" {
		configDir = DefaultConfigDir()
	}

	v := newViper()
	v.AddConfigPath(configDir)

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("loading config.toml: %w", err)
		}
		// Best effort: a read-only home still runs on defaults.
		_ = createTemplateConfig(configDir)
	}

	return decode(v)
}

// LoadFile reads one explicit TOML file.
func LoadFile(path string) (*Config, error) {
	v := newViper()
	v.SetConfigFile(path)
	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("loading %s: %w", path, err)
	}
	return decode(v)
}

func newViper() *viper.Viper {
	v := viper.New()
	v.SetConfigName("config")
	v.SetConfigType("toml")
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	setDefaults(v, "", reflect.ValueOf(Default()).Elem())
	return v
}

func decode(v *viper.Viper) (*Config, error) {
	cfg := Default()
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("decoding config: %w", err)
	}
	cfg.normalize()
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}
	return cfg, nil
}

// setDefaults registers every leaf key so environment overrides apply to
// keys absent from the file.
func setDefaults(v *viper.Viper, prefix string, rv reflect.Value) {
	rt := rv.Type()
	for i := 0; i < rt.NumField(); i++ {
		f := rt.Field(i)
		if !f.IsExported() {
			continue
		}
		name := strings.Split(f.Tag.Get("mapstructure"), ",")[0]
		if name == "" || name == "-" {
			continue
		}
		key := name
		if prefix != "" {
			key = prefix + "." + name
		}
		switch f.Type.Kind() {
		case reflect.Struct:
			setDefaults(v, key, rv.Field(i))
		case reflect.Func, reflect.Chan, reflect.Interface:
		default:
			v.SetDefault(key, rv.Field(i).Interface())
		}
	}
}

// normalize copies shared values into the blocks that need them.
func (c *Config) normalize() {
	c.Instrument.Symbol = strings.ToUpper(strings.TrimSpace(c.Instrument.Symbol))
	c.Quotes.Symbol = c.Instrument.Symbol
	c.Store.DailyBudget = c.Risk.DailyBudget
	c.News.ImpactMin = news.NormalizeImpact(c.News.ImpactMin)
	c.Market.Provider = strings.ToLower(c.Market.Provider)
	c.News.Provider = strings.ToLower(c.News.Provider)
}

var validate = validator.New()

// Validate validates the configuration.
func (c *Config) Validate() error {
	if err := validate.Struct(c); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) && len(verrs) > 0 {
			fe := verrs[0]
			return apperrors.NewValidationError(fieldKey(fe.Namespace()), fe.Value(), "failed "+fe.Tag()+" "+fe.Param())
		}
		return err
	}

	if c.Market.Provider == broker.ProviderRemoteMT5 && c.Market.BridgeURL == "" {
		return apperrors.NewValidationError("market.bridge_url", "", "required by the remote_mt5 provider")
	}
	if c.Telegram.Enabled && (c.Telegram.BotToken == "" || c.Telegram.ChatID == "") {
		return apperrors.NewValidationError("telegram", "", "bot_token and chat_id are required when enabled")
	}
	if c.Webhook.Enabled && c.Webhook.URL == "" {
		return apperrors.NewValidationError("webhook.url", "", "required when enabled")
	}
	if c.News.Provider == news.ProviderTradingEconomics && c.News.TEAPIKey == "" {
		return apperrors.NewValidationError("news.te_api_key", "", "required by the tradingeconomics provider")
	}
	if (c.News.Provider == news.ProviderAPI || c.News.Provider == news.ProviderCalendarAPI) && c.News.APIBaseURL == "" {
		return apperrors.NewValidationError("news.api_base_url", "", "required by the "+c.News.Provider+" provider")
	}
	if c.Scoring.Spread.SoftStartPoints > c.Scoring.Spread.HardMaxPoints {
		return apperrors.NewValidationError("scoring.spread.soft_spread_start_points", c.Scoring.Spread.SoftStartPoints, "exceeds hard_spread_max_points")
	}
	if _, err := trading.NewSessionManager(c.Session); err != nil {
		return apperrors.NewValidationError("session", c.Session.Windows, err.Error())
	}
	return nil
}

// fieldKey turns "Config.Risk.SpreadMax" into "Risk.SpreadMax".
func fieldKey(ns string) string {
	if i := strings.IndexByte(ns, '.'); i >= 0 {
		return ns[i+1:]
	}
	return ns
}

// IsPaperMode reports whether the synthetic market is in use.
func (c *Config) IsPaperMode() bool {
	return c.Market.Provider == broker.ProviderMock
}
