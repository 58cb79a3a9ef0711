package handlers

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/lipgloss"
)

var (
	summaryBoxStyle   = lipgloss.NewStyle().Border(lipgloss.RoundedBorder()).Padding(0, 1)
	summaryTitleStyle = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("205"))
	summaryLabelStyle = lipgloss.NewStyle().Width(14).Foreground(lipgloss.Color("241"))
	summaryValueStyle = lipgloss.NewStyle().Bold(true)
)

type summaryRow struct {
	Label string
	Value int
}

// runSummary is the table printed at the end of a command run.
type runSummary struct {
	Title  string
	Rows   []summaryRow
	Footer string
}

func (s runSummary) Total() int {
	total := 0
	for _, r := range s.Rows {
		total += r.Value
	}
	return total
}

func (s runSummary) Render() string {
	var b strings.Builder
	b.WriteString(summaryTitleStyle.Render(fmt.Sprintf("%s summary (%d items)", s.Title, s.Total())))
	for _, r := range s.Rows {
		b.WriteString("\n")
		b.WriteString(summaryLabelStyle.Render(r.Label))
		b.WriteString(summaryValueStyle.Render(fmt.Sprintf("%d", r.Value)))
	}
	if s.Footer != "" {
		b.WriteString("\n\n" + s.Footer)
	}
	return summaryBoxStyle.Render(b.String())
}
