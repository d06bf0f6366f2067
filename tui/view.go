package tui

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/charmbracelet/lipgloss"
	humanize "github.com/dustin/go-humanize"

	"github.com/forgekit/forge/internal/domain"
	"github.com/forgekit/forge/internal/plan"
)

var (
	titleStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("205")).
			Padding(0, 1)

	headerStyle = lipgloss.NewStyle().
			Background(lipgloss.Color("236")).
			Foreground(lipgloss.Color("255")).
			Padding(0, 1)

	sectionStyle = lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(lipgloss.Color("240")).
			Padding(0, 1)

	alertSectionStyle = lipgloss.NewStyle().
				Border(lipgloss.RoundedBorder()).
				BorderForeground(lipgloss.Color("196")).
				Padding(0, 1)

	runningStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("42"))

	warningStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("214"))

	alertStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("196"))

	dimmedStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("244"))

	statusBarStyle = lipgloss.NewStyle().
			Background(lipgloss.Color("236")).
			Foreground(lipgloss.Color("255"))
)

// View renders the TUI
func (m Model) View() string {
	if m.width == 0 {
		return "Loading..."
	}

	now := domain.EpochNow()
	var b strings.Builder

	header := fmt.Sprintf(" forge │ state: %s │ loop: %d │ refreshed %s ",
		m.status.State, m.status.CurrentLoop, humanize.Time(m.lastRefresh))
	b.WriteString(headerStyle.Width(m.width).Render(header))
	b.WriteString("\n")

	statusSection := m.renderStatus(now)
	if m.runnerDead || m.stalled(now) {
		b.WriteString(alertSectionStyle.Width(m.width - 2).Render(statusSection))
	} else {
		b.WriteString(sectionStyle.Width(m.width - 2).Render(statusSection))
	}
	b.WriteString("\n")

	b.WriteString(sectionStyle.Width(m.width - 2).Render(m.renderProgress()))
	b.WriteString("\n")

	b.WriteString(sectionStyle.Width(m.width - 2).Render(m.renderPlan()))
	b.WriteString("\n")

	b.WriteString(sectionStyle.Width(m.width - 2).Render(m.renderActivity()))
	b.WriteString("\n")

	b.WriteString(statusBarStyle.Width(m.width).Render(" [r]efresh [x]stop run [q]uit "))

	return b.String()
}

func (m Model) renderStatus(now int64) string {
	var b strings.Builder
	b.WriteString(titleStyle.Render("STATUS"))
	b.WriteString("\n")

	runTimer := "-"
	if m.status.RunStartedAtEpoch > 0 {
		runTimer = formatElapsed(now - m.status.RunStartedAtEpoch)
	}
	commandTimer := "-"
	if m.status.CurrentLoopStartedAtEpoch > 0 {
		commandTimer = formatElapsed(now - m.status.CurrentLoopStartedAtEpoch)
	}

	heartbeat := "-"
	if age := m.heartbeatAgeSecs(now); age >= 0 {
		heartbeat = formatElapsed(age)
	}

	session := m.status.SessionID
	if session == "" {
		session = "-"
	}

	stateLine := fmt.Sprintf("  state: %s │ thinking_mode: %s", m.status.State, m.status.ThinkingMode)
	if m.status.State == domain.StateRunning {
		b.WriteString(runningStyle.Render(stateLine))
	} else {
		b.WriteString(stateLine)
	}
	b.WriteString("\n")
	b.WriteString(fmt.Sprintf("  run_timer: %s │ command_timer: %s\n", runTimer, commandTimer))
	b.WriteString(fmt.Sprintf("  loop: %d │ total_loops_executed: %d\n",
		m.status.CurrentLoop, m.status.TotalLoopsExecuted))
	b.WriteString(fmt.Sprintf("  heartbeat_age: %s │ circuit: %s\n", heartbeat, m.status.CircuitState))
	b.WriteString(fmt.Sprintf("  completion_indicators: %d │ exit_signal_seen: %v\n",
		m.status.CompletionIndicators, m.status.ExitSignalSeen))
	b.WriteString(fmt.Sprintf("  session_id: %s", session))

	if m.status.LastError != "" {
		b.WriteString("\n")
		b.WriteString(warningStyle.Render("  last_error: " + truncate(m.status.LastError, 120)))
	}

	if m.runnerDead {
		b.WriteString("\n")
		b.WriteString(alertStyle.Render("  ALERT: runner process not found (stale status)"))
	} else if m.stalled(now) {
		b.WriteString("\n")
		b.WriteString(alertStyle.Render("  ALERT: heartbeat stale (no recent events)"))
	}

	if m.actionNote != "" {
		b.WriteString("\n")
		b.WriteString(warningStyle.Render("  action: " + m.actionNote))
	}

	return b.String()
}

func (m Model) renderProgress() string {
	var b strings.Builder
	b.WriteString(titleStyle.Render("PROGRESS"))
	b.WriteString("\n")

	b.WriteString(fmt.Sprintf("  loops_with_progress: %d │ loops_without_progress: %d\n",
		m.progress.LoopsWithProgress, m.progress.LoopsWithoutProgress))

	summary := strings.TrimSpace(m.progress.LastSummary)
	if summary == "" {
		summary = "(none)"
	}
	b.WriteString("  last_summary: " + truncate(summary, 100))

	if m.progress.UpdatedAtEpoch > 0 {
		b.WriteString("\n")
		b.WriteString(dimmedStyle.Render("  updated " +
			humanize.Time(epochTime(m.progress.UpdatedAtEpoch))))
	}

	return b.String()
}

func (m Model) renderPlan() string {
	var b strings.Builder

	if m.planFound {
		b.WriteString(titleStyle.Render(fmt.Sprintf("PLAN (%d/%d done)",
			m.planSummary.CheckedItems, m.planSummary.TotalItems)))
	} else {
		b.WriteString(titleStyle.Render("PLAN"))
	}
	b.WriteString("\n")

	for _, line := range strings.Split(m.planPreview, "\n") {
		b.WriteString(dimmedStyle.Render("  " + line))
		b.WriteString("\n")
	}

	return strings.TrimSuffix(b.String(), "\n")
}

func (m Model) renderActivity() string {
	var b strings.Builder
	b.WriteString(titleStyle.Render("ACTIVITY"))
	b.WriteString("\n")

	if len(m.activity) == 0 {
		b.WriteString(dimmedStyle.Render("  No activity captured yet"))
		return b.String()
	}

	// Newest entries first
	for _, line := range m.activity {
		b.WriteString("  " + truncate(line, 160))
		b.WriteString("\n")
	}

	return strings.TrimSuffix(b.String(), "\n")
}

func readPlanPreview(runtimeDir string, maxLines int) string {
	raw, err := os.ReadFile(filepath.Join(runtimeDir, plan.PlanFile))
	if err != nil {
		return "(plan.md not found in runtime directory)"
	}

	lines := strings.Split(strings.TrimRight(string(raw), "\n"), "\n")
	if len(lines) == 1 && lines[0] == "" {
		return "(plan.md is empty)"
	}
	for i, line := range lines {
		lines[i] = truncate(line, 220)
	}
	if len(lines) > maxLines {
		lines = append(lines[:maxLines], "...")
	}
	return strings.Join(lines, "\n")
}

func epochTime(epoch int64) time.Time {
	return time.Unix(epoch, 0)
}

func truncate(s string, max int) string {
	runes := []rune(s)
	if len(runes) <= max {
		return s
	}
	return string(runes[:max-3]) + "..."
}

// formatElapsed renders a second count the way a wall clock reads: seconds
// under a minute, then minutes and seconds, then hours and minutes.
func formatElapsed(secs int64) string {
	if secs < 0 {
		secs = 0
	}
	switch {
	case secs < 60:
		return fmt.Sprintf("%ds", secs)
	case secs < 3600:
		return fmt.Sprintf("%dm%02ds", secs/60, secs%60)
	default:
		return fmt.Sprintf("%dh%02dm", secs/3600, (secs%3600)/60)
	}
}
