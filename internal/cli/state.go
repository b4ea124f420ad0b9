package cli

import (
	"fmt"
	"strconv"
	"time"

	"github.com/spf13/cobra"

	"gold-scalper/internal/models"
	"gold-scalper/internal/store"
	"gold-scalper/pkg/utils"
)

func addStateCommands(rootCmd *cobra.Command, app *App) {
	rootCmd.AddCommand(newStateCmd(app))
	rootCmd.AddCommand(newSummaryCmd(app))
	rootCmd.AddCommand(newResetCmd(app))
	rootCmd.AddCommand(newSignalsCmd(app))
	rootCmd.AddCommand(newOutcomesCmd(app))
	rootCmd.AddCommand(newNewsCmd(app))
	rootCmd.AddCommand(newQuoteCmd(app))
}

// dayFlag resolves --day, today by default.
func dayFlag(cmd *cobra.Command, app *App) (string, error) {
	day, _ := cmd.Flags().GetString("day")
	if day == "" {
		return app.today(), nil
	}
	if _, err := time.Parse("2006-01-02", day); err != nil {
		return "", fmt.Errorf("--day must be YYYY-MM-DD: %q", day)
	}
	return day, nil
}

func newStateCmd(app *App) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "state",
		Short: "Show the day state: active trade, cooldown, budget, session",
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := app.Init(); err != nil {
				return err
			}
			day, err := dayFlag(cmd, app)
			if err != nil {
				return err
			}
			ctx, cancel := withTimeout(cmd.Context(), 10*time.Second)
			defer cancel()

			st, err := app.Store.GetDay(ctx, day)
			if err != nil {
				return err
			}
			output := NewOutput(cmd)
			if output.IsJSON() {
				return output.JSON(st)
			}
			return showState(output, app, st)
		},
	}
	cmd.Flags().String("day", "", "trading day YYYY-MM-DD (default: today)")
	return cmd
}

func showState(output *Output, app *App, st *models.DayState) error {
	now := time.Now()
	loc := app.Session.Location()
	info := app.Session.GetSessionAt(now)

	session := output.Red("closed")
	if info.Open {
		session = output.Green("open")
	}
	output.Bold("Day %s", st.Day)
	output.Printf("  Session: %s  %s\n", session, info.Description)
	if !info.Open {
		if next := app.Session.NextOpen(now); !next.IsZero() {
			output.Printf("  Next window in %s (%s)\n", utils.FormatMinutes(next.Sub(now)), FormatTime(next, loc))
		}
	}

	budget := "disabled"
	if st.DailyBudget > 0 {
		budget = fmt.Sprintf("%.1f / %.1f pts", st.DailyLoss, st.DailyBudget)
		if st.BudgetReached() {
			budget = output.Red(budget + " reached")
		}
	}
	output.Printf("  Daily loss: %s  Consecutive losses: %d\n", budget, st.ConsecutiveLosses)

	cooldown := time.Duration(app.Config.Risk.CooldownMinutes) * time.Minute
	if st.LastDecisionAt != nil {
		if st.CooldownOK(now, cooldown) {
			output.Printf("  Last GO: %s (cooldown over)\n", FormatDateTime(*st.LastDecisionAt, loc))
		} else {
			left := st.LastDecisionAt.Add(cooldown).Sub(now)
			output.Printf("  Last GO: %s (cooldown %s left)\n", FormatDateTime(*st.LastDecisionAt, loc), utils.FormatMinutes(left))
		}
	}
	if st.SetupConfirmCount > 0 {
		output.Printf("  Setup confirmations: %d (%s)\n", st.SetupConfirmCount, st.LastSetupDirection)
	}
	if st.TradeState != "" {
		output.Printf("  Trade state: %s  Phase: %s\n", st.TradeState, st.MarketPhase)
	}

	if st.Active == nil {
		output.Dim("  No active trade")
		return nil
	}
	t := st.Active
	lines := []string{
		fmt.Sprintf("%s %s since %s (%s)", t.Direction, t.Symbol, FormatTime(t.StartedAt, loc), FormatDuration(now.Sub(t.StartedAt))),
		fmt.Sprintf("Entry %s  SL %s  TP1 %s  TP2 %s",
			utils.FormatPrice(t.Entry), utils.FormatPrice(t.StopLoss), utils.FormatPrice(t.TP1), utils.FormatPrice(t.TP2)),
	}
	if t.BEApplied {
		lines = append(lines, output.Green("Breakeven applied")+fmt.Sprintf("  partial %s pts", utils.FormatPoints(t.TP1PartialPoints)))
	}
	if t.InvalidLevel != nil {
		lines = append(lines, fmt.Sprintf("Invalidation %s (buffer %.1f)", utils.FormatPrice(*t.InvalidLevel), t.InvalidBuffer))
	}
	output.Box("Active trade", lines)
	return nil
}

func newSummaryCmd(app *App) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "summary",
		Short: "Show the day summary: signals, outcomes, win rate",
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := app.Init(); err != nil {
				return err
			}
			day, err := dayFlag(cmd, app)
			if err != nil {
				return err
			}
			ctx, cancel := withTimeout(cmd.Context(), 10*time.Second)
			defer cancel()

			sum, err := app.Store.Summary(ctx, day)
			if err != nil {
				return err
			}
			output := NewOutput(cmd)
			if output.IsJSON() {
				return output.JSON(sum)
			}
			output.Bold("Summary %s", sum.Day)
			output.Printf("  Signals: %d GO / %d NO GO\n", sum.GoCount, sum.NoGoCount)
			output.Printf("  Trades: %d  wins %d  losses %d  win rate %.0f%%\n", len(sum.Outcomes), sum.Wins, sum.Losses, sum.WinRate*100)
			output.Printf("  Total: %s pts\n", output.Points(sum.TotalPoints))
			if sum.DailyBudget > 0 {
				output.Printf("  Daily loss: %.1f / %.1f pts\n", sum.DailyLoss, sum.DailyBudget)
			}
			return nil
		},
	}
	cmd.Flags().String("day", "", "trading day YYYY-MM-DD (default: today)")
	return cmd
}

func newResetCmd(app *App) *cobra.Command {
	var keepActive, keepCooldown, clearLoss bool

	cmd := &cobra.Command{
		Use:   "reset",
		Short: "Clear the active trade and the cooldown of a day",
		Long: `Clear the active trade and the cooldown of a day. The daily loss is kept
unless --loss is given.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := app.Init(); err != nil {
				return err
			}
			day, err := dayFlag(cmd, app)
			if err != nil {
				return err
			}
			ctx, cancel := withTimeout(cmd.Context(), 10*time.Second)
			defer cancel()

			opts := store.ResetOptions{ClearActive: !keepActive, ClearCooldown: !keepCooldown, ClearLoss: clearLoss}
			if err := app.Store.ResetDay(ctx, day, opts); err != nil {
				return err
			}
			app.Logger.Info().Str("day", day).Interface("reset", opts).Msg("day reset from cli")

			output := NewOutput(cmd)
			if output.IsJSON() {
				return output.JSON(map[string]any{"ok": true, "day": day, "reset": opts})
			}
			output.Success("✓ Day %s reset", day)
			return nil
		},
	}
	cmd.Flags().String("day", "", "trading day YYYY-MM-DD (default: today)")
	cmd.Flags().BoolVar(&keepActive, "keep-active", false, "keep the active trade")
	cmd.Flags().BoolVar(&keepCooldown, "keep-cooldown", false, "keep the cooldown and setup confirmations")
	cmd.Flags().BoolVar(&clearLoss, "loss", false, "also clear the daily loss")
	return cmd
}

func newSignalsCmd(app *App) *cobra.Command {
	var limit int
	var status string

	cmd := &cobra.Command{
		Use:   "signals",
		Short: "List recent decision cycles",
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := app.Init(); err != nil {
				return err
			}
			day, _ := cmd.Flags().GetString("day")
			ctx, cancel := withTimeout(cmd.Context(), 10*time.Second)
			defer cancel()

			signals, err := app.Store.RecentSignals(ctx, store.SignalFilter{
				Day:    day,
				Status: models.DecisionStatus(status),
				Limit:  limit,
			})
			if err != nil {
				return err
			}
			output := NewOutput(cmd)
			if output.IsJSON() {
				if signals == nil {
					signals = []models.SignalRecord{}
				}
				return output.JSON(signals)
			}
			if len(signals) == 0 {
				output.Dim("No signals")
				return nil
			}
			loc := app.Session.Location()
			table := NewTable(output, "Time", "Status", "Blocked", "Dir", "Entry", "Score", "Sent")
			for _, s := range signals {
				sent := ""
				if s.TelegramSent {
					sent = "✓"
				}
				table.AddRow(
					FormatDateTime(s.Timestamp, loc),
					output.Status(s.Status),
					string(s.BlockedBy),
					string(s.Direction),
					utils.FormatPrice(s.Entry),
					strconv.Itoa(s.ScoreTotal),
					sent,
				)
			}
			table.Render()
			return nil
		},
	}
	cmd.Flags().String("day", "", "only this trading day")
	cmd.Flags().IntVar(&limit, "limit", 20, "maximum rows")
	cmd.Flags().StringVar(&status, "status", "", "GO or NO_GO")
	return cmd
}

func newOutcomesCmd(app *App) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "outcomes",
		Short: "List the closed trades of a day",
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := app.Init(); err != nil {
				return err
			}
			day, err := dayFlag(cmd, app)
			if err != nil {
				return err
			}
			ctx, cancel := withTimeout(cmd.Context(), 10*time.Second)
			defer cancel()

			outcomes, err := app.Store.Outcomes(ctx, day)
			if err != nil {
				return err
			}
			output := NewOutput(cmd)
			if output.IsJSON() {
				if outcomes == nil {
					outcomes = []models.TradeOutcome{}
				}
				return output.JSON(outcomes)
			}
			if len(outcomes) == 0 {
				output.Dim("No closed trade on %s", day)
				return nil
			}
			loc := app.Session.Location()
			table := NewTable(output, "Opened", "Closed", "Dir", "Entry", "Exit", "Points", "Reason")
			for _, o := range outcomes {
				table.AddRow(
					FormatTime(o.StartedAt, loc),
					FormatTime(o.ClosedAt, loc),
					string(o.Direction),
					utils.FormatPrice(o.Entry),
					utils.FormatPrice(o.Exit),
					output.Points(o.Points),
					o.Reason,
				)
			}
			table.Render()
			return nil
		},
	}
	cmd.Flags().String("day", "", "trading day YYYY-MM-DD (default: today)")
	return cmd
}

func newNewsCmd(app *App) *cobra.Command {
	return &cobra.Command{
		Use:   "news",
		Short: "Show the next economic event and the news lock",
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := app.Init(); err != nil {
				return err
			}
			ctx, cancel := withTimeout(cmd.Context(), 15*time.Second)
			defer cancel()

			ns, err := app.News.Lock(ctx, time.Now().UTC())
			output := NewOutput(cmd)
			if err != nil {
				output.Warning("provider degraded: %v", err)
			}
			if output.IsJSON() {
				return output.JSON(ns)
			}
			output.Bold("News (%s)", app.News.Name())
			if ns.NextEvent == nil {
				output.Dim("  No upcoming event (%d loaded)", ns.RawCount)
			} else {
				ev := ns.NextEvent
				output.Printf("  %s  %s  %s\n", FormatDateTime(ev.Time, app.Session.Location()), ev.Impact, ev.Title)
				if ns.MinutesToEvent != nil {
					output.Printf("  in %s (%s)\n", utils.FormatMinutes(time.Duration(*ns.MinutesToEvent)*time.Minute), ns.Moment)
				}
			}
			if ns.LockActive {
				output.Error("  LOCK active [%d, +%d] min: %s", ns.LockWindowStartMin, ns.LockWindowEndMin, ns.LockReason)
			} else {
				output.Success("  No lock")
			}
			return nil
		},
	}
}

func newQuoteCmd(app *App) *cobra.Command {
	return &cobra.Command{
		Use:   "quote",
		Short: "Show the current bid, ask and spread",
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := app.Init(); err != nil {
				return err
			}
			ctx, cancel := withTimeout(cmd.Context(), 10*time.Second)
			defer cancel()

			symbol := app.Config.Instrument.Symbol
			tick, err := app.Market.Tick(ctx, symbol)
			if err != nil {
				return err
			}
			spread, err := app.Market.Spread(ctx, symbol)
			if err != nil {
				return err
			}
			output := NewOutput(cmd)
			if output.IsJSON() {
				return output.JSON(map[string]any{"tick": tick, "spread": spread, "provider": app.Market.Name()})
			}
			output.Printf("%s  bid %s  ask %s  spread %.1f pts  %s\n",
				output.BoldText(symbol), utils.FormatPrice(tick.Bid), utils.FormatPrice(tick.Ask), spread,
				output.DimText(app.Market.Name()))
			return nil
		},
	}
}
