package cli

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"gold-scalper/internal/trading"
	"gold-scalper/pkg/utils"
)

func addEngineCommands(rootCmd *cobra.Command, app *App) {
	rootCmd.AddCommand(newRunCmd(app))
	rootCmd.AddCommand(newServeCmd(app))
	rootCmd.AddCommand(newAnalyzeCmd(app))
	rootCmd.AddCommand(newCycleCmd(app))
}

func newRunCmd(app *App) *cobra.Command {
	var noAPI, console bool

	cmd := &cobra.Command{
		Use:   "run",
		Short: "Start the polling loop",
		Long: `Start the polling loop: one decision cycle per interval while flat, the
trade monitor while a trade is active. The HTTP API and the quote poller
run alongside unless disabled.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			if console {
				app.ConsoleOut = cmd.OutOrStdout()
			}
			if err := app.Init(); err != nil {
				return err
			}
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			return runServices(ctx, app, !noAPI, true)
		},
	}

	cmd.Flags().BoolVar(&noAPI, "no-api", false, "do not start the HTTP API")
	cmd.Flags().BoolVar(&console, "console", false, "also print notifications to stdout")
	return cmd
}

func newServeCmd(app *App) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Serve the HTTP API without the polling loop",
		Long:  "Serve the HTTP API only. Decisions run on demand through POST /analyze.",
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := app.Init(); err != nil {
				return err
			}
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			return runServices(ctx, app, true, false)
		},
	}
}

// runServices runs the API, the runner loop and the quote poller until ctx
// is done or one of them fails.
func runServices(ctx context.Context, app *App, withAPI, withLoop bool) error {
	logger := app.Logger
	errCh := make(chan error, 3)

	if withAPI {
		srv, err := app.NewServer()
		if err != nil {
			return err
		}
		go func() { errCh <- srv.Start() }()
		defer func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			if err := srv.Shutdown(shutdownCtx); err != nil {
				logger.Warn().Err(err).Msg("HTTP server shutdown")
			}
		}()
	}

	if app.Config.Quotes.Enabled {
		ticker := app.NewTicker()
		go func() {
			if err := ticker.Run(ctx); err != nil {
				logger.Warn().Err(err).Msg("quote poller stopped")
			}
		}()
		defer ticker.Stop()
	}

	if withLoop {
		go func() { errCh <- app.Runner.Run(ctx) }()
		defer func() { _ = app.Runner.Stop() }()
	}

	logger.Info().
		Bool("api", withAPI).
		Bool("loop", withLoop).
		Str("listen", app.Config.API.Listen).
		Bool("paper", app.Config.IsPaperMode()).
		Msg("gold-scalper started")

	select {
	case <-ctx.Done():
		logger.Info().Msg("shutting down")
		return nil
	case err := <-errCh:
		if err != nil {
			return err
		}
		// The runner returns nil only when stopped.
		return nil
	}
}

func newAnalyzeCmd(app *App) *cobra.Command {
	var console bool

	cmd := &cobra.Command{
		Use:   "analyze",
		Short: "Run one decision cycle and print the packet",
		Long: `Run the decision pipeline once, whatever the trade state, and print the
decision packet. Notifications follow the configured policy.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			if console {
				app.ConsoleOut = cmd.OutOrStdout()
			}
			if err := app.Init(); err != nil {
				return err
			}
			ctx, cancel := withTimeout(cmd.Context(), time.Minute)
			defer cancel()

			a, err := app.Runner.Analyze(ctx)
			if err != nil {
				return err
			}
			return printAnalysis(NewOutput(cmd), app, a)
		},
	}
	cmd.Flags().BoolVar(&console, "console", false, "also print the notification text")
	return cmd
}

func newCycleCmd(app *App) *cobra.Command {
	return &cobra.Command{
		Use:   "cycle",
		Short: "Run one runner cycle (decision or trade follow-up)",
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := app.Init(); err != nil {
				return err
			}
			ctx, cancel := withTimeout(cmd.Context(), time.Minute)
			defer cancel()

			res, err := app.Runner.RunOnce(ctx)
			if err != nil {
				return err
			}
			output := NewOutput(cmd)
			if res == nil {
				output.Warning("nothing to do")
				return nil
			}
			if res.Analysis != nil {
				return printAnalysis(output, app, res.Analysis)
			}
			return printReport(output, res.Suivi)
		},
	}
}

func printAnalysis(output *Output, app *App, a *trading.Analysis) error {
	if output.IsJSON() {
		return output.JSON(map[string]any{
			"decision_packet": a.Packet,
			"message":         a.Message,
			"signal_key":      a.SignalKey,
			"telegram_sent":   a.Sent,
			"telegram_error":  a.SendError,
		})
	}
	if a.Packet == nil {
		output.Warning("no packet produced")
		return nil
	}
	output.Box(app.Config.Instrument.Symbol+" "+a.Day, packetLines(output, a.Packet))
	switch {
	case a.Sent:
		output.Success("Notified (%s)", FormatDuration(a.Latency))
	case a.SendError != "":
		output.Error("Notification failed: %s", a.SendError)
	}
	return nil
}

func printReport(output *Output, r *trading.MonitorReport) error {
	if output.IsJSON() {
		return output.JSON(r)
	}
	if r == nil {
		return nil
	}
	output.Bold("Suivi %s: %s", r.Day, r.Status)
	output.Printf("  price %s\n", utils.FormatPrice(r.Price))
	if r.Closed && r.Outcome != nil {
		output.Printf("  closed %s pts\n", output.Points(*r.Outcome))
	}
	for _, alert := range r.Alerts {
		output.Warning("  %s", alert)
	}
	if r.Sent {
		output.Dim("  notified")
	}
	return nil
}
