package main

import (
	"fmt"
	"strconv"
	"strings"

	"cogkernel/internal/core"
	"cogkernel/internal/ledger"

	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/lipgloss/table"
)

var (
	titleStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#7D56F4")).
			Bold(true).
			MarginBottom(1)

	labelStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#888888")).
			Width(24)

	valueStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#FAFAFA")).
			Bold(true)

	sectionStyle = lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(lipgloss.Color("#5A5A5A")).
			Padding(0, 1)

	mutedStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#888888")).
			Italic(true)
)

type row struct {
	label string
	value string
}

func section(title string, rows []row) string {
	lines := make([]string, 0, len(rows)+1)
	lines = append(lines, titleStyle.Render(title))
	for _, r := range rows {
		lines = append(lines, lipgloss.JoinHorizontal(lipgloss.Top, labelStyle.Render(r.label), valueStyle.Render(r.value)))
	}
	return sectionStyle.Render(lipgloss.JoinVertical(lipgloss.Left, lines...))
}

func itoa(n int) string { return strconv.Itoa(n) }

// renderStatistics lays the kernel counters out in three panels.
func renderStatistics(s core.Statistics, digest string) string {
	memory := section("Memory", []row{
		{"tick", fmt.Sprintf("%d", s.Tick)},
		{"formulas", itoa(s.Formulas)},
		{"active rules", itoa(s.ActiveRules)},
		{"canvas items", fmt.Sprintf("%d (%d pushed)", s.CanvasItems, s.CanvasPushed)},
		{"pending tasks", itoa(s.PendingTasks)},
		{"dropped tasks", itoa(s.DroppedTasks)},
		{"strongest rule", fmt.Sprintf("#%d", s.StrongestRule)},
	})

	levels := make([]string, len(s.MetaEventsPerLevel))
	for i, n := range s.MetaEventsPerLevel {
		levels[i] = itoa(n)
	}
	reasoning := section("Reasoning", []row{
		{"contradictions", itoa(s.Contradictions)},
		{"tasks resolved", itoa(s.TasksResolved)},
		{"rules invalidated", itoa(s.RulesInvalidated)},
		{"shortcuts", itoa(s.ShortcutsMaterialized)},
		{"rules proposed", itoa(s.RulesProposed)},
		{"abstract rules", itoa(s.AbstractRules)},
		{"patterns", fmt.Sprintf("%d (%d evicted)", s.Patterns, s.PatternsEvicted)},
		{"meta events by level", strings.Join(levels, " / ")},
	})

	plan := "none"
	if s.LastPlan != nil {
		plan = fmt.Sprintf("%s (q=%.2f)", s.LastPlan.Branch.Action, s.LastPlan.Outcome.Quality)
	}
	learning := section("Learning", []row{
		{"agents", fmt.Sprintf("%d (%d rejected)", s.AgentsTracked, s.AgentsRejected)},
		{"coordination events", itoa(s.CoordinationEvents)},
		{"sync rate", fmt.Sprintf("%.3f", s.SyncRate)},
		{"scenarios", itoa(s.ScenariosExplored)},
		{"causal links", itoa(s.CausalLinks)},
		{"avg divergence", fmt.Sprintf("%.3f", s.AverageDivergence)},
		{"granularity", fmt.Sprintf("%d (%d switches)", s.GranularityLevel, s.GranularitySwitches)},
		{"policies", fmt.Sprintf("%d (%d updates)", s.PoliciesLearned, s.PolicyUpdates)},
		{"confirmed edges", itoa(s.ConfirmedCausalEdges)},
		{"avg entropy", fmt.Sprintf("%.3f bits", s.AverageEntropy)},
		{"plans", itoa(s.PlansMade)},
		{"last plan", plan},
		{"random draws", fmt.Sprintf("%d", s.RandomDraws)},
	})

	return lipgloss.JoinVertical(lipgloss.Left,
		lipgloss.JoinHorizontal(lipgloss.Top, memory, reasoning, learning),
		mutedStyle.Render("digest "+digest),
	)
}

// renderRuns tabulates ledger runs.
func renderRuns(runs []ledger.Run) string {
	if len(runs) == 0 {
		return mutedStyle.Render("no runs recorded")
	}
	t := table.New().
		Border(lipgloss.RoundedBorder()).
		BorderStyle(lipgloss.NewStyle().Foreground(lipgloss.Color("#5A5A5A"))).
		Headers("RUN", "SEED", "TICKS", "CREATED").
		StyleFunc(func(r, c int) lipgloss.Style {
			if r == table.HeaderRow {
				return titleStyle.UnsetMarginBottom()
			}
			return lipgloss.NewStyle().Padding(0, 1)
		})
	for _, r := range runs {
		t.Row(r.ID.String(), fmt.Sprintf("%d", r.Seed), fmt.Sprintf("%d", r.Ticks), r.CreatedAt.Format("2006-01-02 15:04:05"))
	}
	return t.Render()
}
