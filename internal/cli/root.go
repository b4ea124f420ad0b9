package cli

import (
	"fmt"
	"os"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"gold-scalper/internal/config"
	"gold-scalper/internal/logging"
)

// Version information, overridden at link time.
var (
	Version   = "0.1.0"
	BuildDate = "unknown"
)

// NewRootCmd creates the root command. The configuration is loaded before
// any subcommand runs, from --config-file, --config or the default
// directory, in that order.
func NewRootCmd() *cobra.Command {
	// Console only until the configuration says where logs go.
	app := &App{Logger: logging.NewLoggerWithConfig(logging.LogConfig{Level: "info", Format: "console", Console: true})}

	rootCmd := &cobra.Command{
		Use:   "gold-scalper",
		Short: "XAUUSD M15 scalping signals and trade follow-up",
		Long: `gold-scalper analyzes XAUUSD on M15 with H1 context, decides GO or NO GO
under hard risk rules, notifies the trader, and follows the active trade
until exit (breakeven, partial close, invalidation).

Use 'gold-scalper run' to start the polling loop with the HTTP API, or
'gold-scalper analyze' for one decision cycle.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return app.load(cmd)
		},
		PersistentPostRunE: func(cmd *cobra.Command, args []string) error {
			return app.Close()
		},
	}

	rootCmd.PersistentFlags().String("config", "", "config directory (default: ~/.config/gold-scalper)")
	rootCmd.PersistentFlags().String("config-file", "", "explicit config file, overrides --config")
	rootCmd.PersistentFlags().Bool("json", false, "output in JSON format")
	rootCmd.PersistentFlags().Bool("debug", false, "enable debug logging")

	rootCmd.AddCommand(newVersionCmd())
	rootCmd.AddCommand(newConfigCmd(app))
	addEngineCommands(rootCmd, app)
	addStateCommands(rootCmd, app)

	return rootCmd
}

// Execute runs the root command and returns the process exit code.
func Execute() int {
	if err := NewRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		return 1
	}
	return 0
}

// load reads the configuration and sets up the logger.
func (a *App) load(cmd *cobra.Command) error {
	file, _ := cmd.Flags().GetString("config-file")
	dir, _ := cmd.Flags().GetString("config")

	var cfg *config.Config
	var err error
	if file != "" {
		cfg, err = config.LoadFile(file)
	} else {
		cfg, err = config.Load(dir)
	}
	if err != nil {
		return err
	}
	a.Config = cfg

	debug, _ := cmd.Flags().GetBool("debug")
	if debug {
		cfg.Logging.Level = "debug"
	}
	a.Logger = logging.NewLoggerWithConfig(cfg.Logging)
	if debug {
		logging.SetDebugLevel()
		a.Logger = a.Logger.Level(zerolog.DebugLevel)
	}
	a.Logger = logging.WithSymbol(a.Logger, cfg.Instrument.Symbol)
	return nil
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		// Runs without a configuration.
		PersistentPreRunE:  func(*cobra.Command, []string) error { return nil },
		PersistentPostRunE: func(*cobra.Command, []string) error { return nil },
		Run: func(cmd *cobra.Command, args []string) {
			output := NewOutput(cmd)
			if output.IsJSON() {
				_ = output.JSON(map[string]string{
					"version":    Version,
					"build_date": BuildDate,
				})
				return
			}
			output.Printf("gold-scalper v%s\n", Version)
			output.Dim("Build date: %s", BuildDate)
		},
	}
}

func newConfigCmd(app *App) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Configuration management",
		Long:  "View and validate the configuration.",
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "show",
		Short: "Show the effective configuration",
		RunE: func(cmd *cobra.Command, args []string) error {
			output := NewOutput(cmd)
			if output.IsJSON() {
				return output.JSON(redacted(app.Config))
			}
			return showConfig(output, app.Config)
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "path",
		Short: "Show configuration directory path",
		Run: func(cmd *cobra.Command, args []string) {
			output := NewOutput(cmd)
			if output.IsJSON() {
				_ = output.JSON(map[string]string{"path": config.DefaultConfigDir()})
			} else {
				output.Println(config.DefaultConfigDir())
			}
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "validate",
		Short: "Validate the configuration",
		RunE: func(cmd *cobra.Command, args []string) error {
			// Loading already validated; reaching here means it is valid.
			output := NewOutput(cmd)
			if output.IsJSON() {
				return output.JSON(map[string]bool{"valid": true})
			}
			output.Success("✓ Configuration is valid")
			return nil
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "template",
		Short: "Print the commented configuration template",
		Run: func(cmd *cobra.Command, args []string) {
			NewOutput(cmd).Printf("%s", config.Template())
		},
	})

	return cmd
}

// redacted returns a copy of cfg without secrets.
func redacted(cfg *config.Config) config.Config {
	c := *cfg
	mask := func(s *string) {
		if *s != "" {
			*s = "***"
		}
	}
	mask(&c.Telegram.BotToken)
	mask(&c.News.APIKey)
	mask(&c.News.TEAPIKey)
	mask(&c.Redis.Password)
	mask(&c.API.AdminToken)
	return c
}

func showConfig(output *Output, cfg *config.Config) error {
	c := redacted(cfg)
	mode := "paper"
	if !c.IsPaperMode() {
		mode = "live bridge"
	}

	output.Bold("Instrument")
	output.Printf("  %s  signal %s  context %s  confirm %s\n", c.Instrument.Symbol, c.Instrument.TFSignal, c.Instrument.TFContext, c.Instrument.TFConfirm)
	output.Bold("Market")
	output.Printf("  provider %s (%s)  bridge %q\n", c.Market.Provider, mode, c.Market.BridgeURL)
	output.Bold("Session")
	output.Printf("  mode %s  windows %v  tz %s\n", c.Session.Mode, c.Session.Windows, c.Session.Timezone)
	output.Bold("Risk")
	output.Printf("  spread ≤ %.1f (hard %.1f)  ATR ≤ %.1f  SL ≤ %.1f  RR TP1 ≥ %.2f\n",
		c.Risk.SpreadMax, c.Risk.HardSpreadMaxPoints, c.Risk.ATRMax, c.Risk.SLMaxPoints, c.Risk.RRHardMinTP1)
	output.Printf("  GO ≥ %d  cooldown %d min  daily budget %.1f pts\n", c.Risk.GoThreshold, c.Risk.CooldownMinutes, c.Risk.DailyBudget)
	output.Bold("News")
	output.Printf("  provider %s  impact ≥ %s  fallback %v\n", c.News.Provider, c.News.ImpactMin, c.News.FallbackToStatic)
	output.Bold("Notifications")
	output.Printf("  telegram %v  webhook %v\n", c.Telegram.Enabled, c.Webhook.Enabled)
	output.Bold("Runtime")
	output.Printf("  interval %s  db %s  api %s  metrics %v\n", c.Runner.Interval, c.Store.Path, c.API.Listen, c.Metrics.Enabled)
	return nil
}
