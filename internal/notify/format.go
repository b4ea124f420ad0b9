package notify

import (
	"fmt"
	"strings"

	"gold-scalper/internal/models"
	"gold-scalper/pkg/utils"
)

func blockEmoji(dir models.Direction) string {
	if dir == models.Sell {
		return "🟥"
	}
	return "🟦"
}

// SourceLabel tells the trader where prices come from.
func SourceLabel(provider string) string {
	switch strings.ToLower(provider) {
	case "remote_mt5":
		return "MT5 (live)"
	case "mock", "paper":
		return "MOCK"
	case "":
		return "?"
	default:
		return provider
	}
}

var errorMarkers = []string{"error", "exception", "traceback", "panic", "nil pointer"}

func isErrorString(s string) bool {
	lower := strings.ToLower(s)
	for _, m := range errorMarkers {
		if strings.Contains(lower, m) {
			return true
		}
	}
	return false
}

func isScoreHeader(line string) bool {
	return (strings.Contains(line, "EDGE STRUCTUREL") && strings.Contains(line, "/40")) ||
		(strings.Contains(line, "QUALITÉ ENTRÉE") && strings.Contains(line, "/30")) ||
		(strings.Contains(line, "RISK & EXECUTION") && strings.Contains(line, "/30")) ||
		(strings.Contains(line, "Score total") && strings.Contains(line, "/100"))
}

// scoreDetails lays out the score breakdown with a blank line before each
// block header.
func scoreDetails(reasons []string) string {
	var lines []string
	for _, r := range reasons {
		if isErrorString(r) {
			continue
		}
		switch {
		case isScoreHeader(r):
			if len(lines) > 0 {
				lines = append(lines, "")
			}
			lines = append(lines, r)
		case strings.Contains(r, "•"):
			lines = append(lines, r)
		default:
			lines = append(lines, "• "+r)
		}
	}
	return strings.Join(lines, "\n")
}

func contextBlock(p *models.DecisionPacket) string {
	var parts []string
	if p.BiasH1 != "" {
		parts = append(parts, fmt.Sprintf("Bias H1: %s (direction dominante)", p.BiasH1))
	}
	if len(p.Setups) > 0 {
		parts = append(parts, "Setups M15: "+strings.Join(p.Setups, ", "))
	}
	if len(parts) == 0 {
		return ""
	}
	return "🧭 Contexte\n• " + strings.Join(parts, "\n• ") + "\n\n"
}

func newsBlock(st models.NewsState) string {
	var title, impact string
	if st.NextEvent != nil {
		title, impact = st.NextEvent.Title, st.NextEvent.Impact
	}
	lines := []string{"📰 News"}
	if title != "" {
		line := "• " + title
		if impact != "" {
			line += " (" + impact + ")"
		}
		lines = append(lines, line)
	}
	if st.Moment != "" {
		lines = append(lines, "• Moment "+st.Moment)
	}
	switch {
	case st.MinutesToEvent != nil && st.HorizonMinutes > 0:
		lines = append(lines, fmt.Sprintf("• Dans %d min — horizon %d min", *st.MinutesToEvent, st.HorizonMinutes))
	case st.MinutesToEvent != nil:
		lines = append(lines, fmt.Sprintf("• Dans %d min", *st.MinutesToEvent))
	case st.HorizonMinutes > 0:
		lines = append(lines, fmt.Sprintf("• Horizon %d min", st.HorizonMinutes))
	}
	if len(lines) <= 1 {
		return ""
	}
	return strings.Join(lines, "\n") + "\n\n"
}

// FormatDecision renders the GO or NO_GO card of a decided packet.
func FormatDecision(p *models.DecisionPacket, provider string) string {
	d := p.Decision
	if d == nil {
		d = &models.Decision{Status: models.StatusNoGo}
	}
	dir := p.Direction
	if dir == "" {
		dir = models.Buy
	}
	emoji := strings.Repeat(blockEmoji(dir), 3)
	details := scoreDetails(p.Reasons)
	ctx := contextBlock(p)
	news := newsBlock(p.NewsState)

	var sb strings.Builder
	if d.Status != models.StatusGo {
		blocked := string(d.BlockedBy)
		if blocked == "" {
			blocked = "UNKNOWN"
		}
		why := "Voir logs"
		if len(d.Why) > 0 {
			why = d.Why[0]
		}
		if isErrorString(why) {
			why = "Données ou analyse indisponibles."
		}
		fmt.Fprintf(&sb, "%s %s — NO GO ❌\n\n", emoji, dir)
		fmt.Fprintf(&sb, "%s (M15)\n%s%s", p.Symbol, ctx, news)
		fmt.Fprintf(&sb, "Bloqué par : %s\n%s\n\n", blocked, why)
		fmt.Fprintf(&sb, "📊 Score global : %d/100", d.ScoreTotal)
		if details != "" {
			sb.WriteString("\n🔴 = manquant (0 pt)  |  ✅ = obtenu\n\n")
			sb.WriteString(details)
		}
		return strings.TrimRight(sb.String(), "\n ")
	}

	quality, qualityEmoji := "A", "✅"
	if d.Quality == models.QualityAPlus {
		quality, qualityEmoji = "A+", "⚡"
	}
	tp2Line := fmt.Sprintf("🎯 TP2 : %s → Prendre le reste\n\n", utils.FormatPrice(p.TP2))
	if (dir == models.Buy && p.TP2 > p.TP1) || (dir == models.Sell && p.TP2 < p.TP1) {
		tp2Line = fmt.Sprintf("🎯 TP2 : %s 🎁 Bonus (optionnel)\n\n", utils.FormatPrice(p.TP2))
	}

	fmt.Fprintf(&sb, "%s GO %s NOW ✅\n\n", emoji, dir)
	fmt.Fprintf(&sb, "%s (M15)\n\n%s%s", p.Symbol, ctx, news)
	if p.CurrentPrice != nil {
		fmt.Fprintf(&sb, "💰 Prix actuel %s : %s\n\n", SourceLabel(provider), utils.FormatPrice(*p.CurrentPrice))
	}
	fmt.Fprintf(&sb, "➡️ Entrée : %s\n", utils.FormatPrice(p.Entry))
	fmt.Fprintf(&sb, "⛔ SL : %s\n", utils.FormatPrice(p.StopLoss))
	fmt.Fprintf(&sb, "🎯 TP1 : %s → Objectif principal (BE/fermé)\n", utils.FormatPrice(p.TP1))
	sb.WriteString(tp2Line)
	sb.WriteString("📋 SUIVI\n")
	sb.WriteString("• TP1 atteint → réduire 50%, SL à l'entrée (BE)\n")
	sb.WriteString("• TP2 atteint → fermer le reste\n")
	sb.WriteString("• SL touché → sortie complète\n\n")
	fmt.Fprintf(&sb, "💎 Setup de qualité %s %s\n", quality, qualityEmoji)
	fmt.Fprintf(&sb, "Score global : %d/100\n\n", d.ScoreEffective)
	sb.WriteString(details)
	return strings.TrimRight(sb.String(), "\n ")
}

// FormatPreAlert renders the heads-up sent ahead of a high-impact event.
func FormatPreAlert(symbol string, st models.NewsState) string {
	var title, impact string
	if st.NextEvent != nil {
		title, impact = st.NextEvent.Title, st.NextEvent.Impact
	}
	minutes := "?"
	if st.MinutesToEvent != nil {
		minutes = fmt.Sprintf("%d", *st.MinutesToEvent)
	}
	return fmt.Sprintf(
		"🟠 PRÉ-ALERTE %s (M15)\n📰 News: %s (%s)\n⏳ Moment %s — dans %s min — horizon %d min\n⚠️ Attention à la volatilité autour de la publication.",
		symbol, title, impact, st.Moment, minutes, st.HorizonMinutes,
	)
}

// FormatDaySummary renders the end-of-day report.
func FormatDaySummary(s models.DaySummary) string {
	emoji := "📊"
	switch {
	case s.TotalPoints > 0:
		emoji = "💰"
	case s.TotalPoints < 0:
		emoji = "📉"
	}

	var sb strings.Builder
	fmt.Fprintf(&sb, "%s Bilan du jour — %s\n\n", emoji, s.Day)
	fmt.Fprintf(&sb, "Signaux GO: %d | NO GO: %d\n", s.GoCount, s.NoGoCount)
	fmt.Fprintf(&sb, "Trades clôturés: %d (✅ %d / ❌ %d)\n", len(s.Outcomes), s.Wins, s.Losses)
	if len(s.Outcomes) > 0 {
		fmt.Fprintf(&sb, "Taux de réussite: %.0f%%\n", s.WinRate*100)
	}
	fmt.Fprintf(&sb, "Résultat: %s pts\n", utils.FormatPoints(s.TotalPoints))
	fmt.Fprintf(&sb, "Perte journalière: %.1f / %.1f pts", s.DailyLoss, s.DailyBudget)
	return sb.String()
}
