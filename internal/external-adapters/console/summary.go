// Package console prints the gate summary for humans reading the job log.
package console

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/lipgloss"

	"github.com/ochairo/prgate/internal/domain/entities"
)

// Severity and status colors
var (
	critical = lipgloss.Color("#FF0000")
	high     = lipgloss.Color("#FF6B6B")
	medium   = lipgloss.Color("#FFD93D")
	low      = lipgloss.Color("#6BCB77")
	muted    = lipgloss.Color("#6B7280")
	success  = lipgloss.Color("#00D26A")
	failure  = lipgloss.Color("#FF3838")
)

var (
	titleStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("#FAFAFA")).
			Background(lipgloss.Color("#7D56F4")).
			Padding(0, 1)

	labelStyle = lipgloss.NewStyle().Width(9)
	cellStyle  = lipgloss.NewStyle().Width(10).Align(lipgloss.Right)
	mutedStyle = lipgloss.NewStyle().Foreground(muted)
)

// Summary renders the per-tool counts and the gate decision
func Summary(title string, outcomes entities.Outcomes, result entities.GateResult, policy entities.ThresholdPolicy) string {
	var b strings.Builder

	b.WriteString(titleStyle.Render(title))
	b.WriteString("\n\n")

	b.WriteString(row(mutedStyle.Render("Tool"),
		mutedStyle.Render("Critical"), mutedStyle.Render("High"),
		mutedStyle.Render("Medium"), mutedStyle.Render("Low"), mutedStyle.Render("Status")))

	for _, tool := range []entities.ToolName{entities.ToolTrivy, entities.ToolCheckov} {
		o := outcomes.Trivy
		if tool == entities.ToolCheckov {
			o = outcomes.Checkov
		}
		b.WriteString(row(tool.DisplayName(),
			count(o.Critical, critical), count(o.High, high),
			count(o.Medium, medium), count(o.Low, low),
			status(result.StatusOf(tool))))
	}

	dash := mutedStyle.Render("-")
	b.WriteString(row(entities.ToolOPA.DisplayName(),
		dash, dash, dash, dash, status(result.StatusOf(entities.ToolOPA))))
	if outcomes.OPA.DenyCount > 0 {
		b.WriteString(mutedStyle.Render(fmt.Sprintf("  %d policy denies", outcomes.OPA.DenyCount)))
		b.WriteString("\n")
	}

	b.WriteString("\n")
	switch {
	case result.Blocking:
		b.WriteString(lipgloss.NewStyle().Foreground(failure).Bold(true).
			Render(fmt.Sprintf("Merge blocked: findings at or above %s", strings.ToUpper(string(policy)))))
	case policy == entities.ThresholdOff:
		b.WriteString(mutedStyle.Render("Gate disabled (fail-on: off)"))
	default:
		b.WriteString(lipgloss.NewStyle().Foreground(success).Bold(true).Render("All security checks passed"))
	}
	b.WriteString("\n")

	return b.String()
}

func row(label string, cells ...string) string {
	var b strings.Builder
	b.WriteString(labelStyle.Render(label))
	for _, c := range cells {
		b.WriteString(cellStyle.Render(c))
	}
	b.WriteString("\n")
	return b.String()
}

func count(n uint, color lipgloss.Color) string {
	if n == 0 {
		return mutedStyle.Render("0")
	}
	return lipgloss.NewStyle().Foreground(color).Bold(true).Render(fmt.Sprint(n))
}

func status(s entities.Status) string {
	color := success
	if s == entities.StatusFail {
		color = failure
	}
	return lipgloss.NewStyle().Foreground(color).Render(string(s))
}
