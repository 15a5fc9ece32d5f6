package cli

import (
	"fmt"
	"sort"
	"strings"

	"github.com/charmbracelet/lipgloss"

	"github.com/maastricht-university/edmo-emotion/orchestrator"
)

const barWidth = 24

type Theme struct {
	Primary lipgloss.Color
	Dim     lipgloss.Color
	Error   lipgloss.Color
}

var DefaultTheme = Theme{
	Primary: lipgloss.Color("#00ff9f"),
	Dim:     lipgloss.Color("#6e7681"),
	Error:   lipgloss.Color("#ff5f87"),
}

type Styles struct {
	Title lipgloss.Style
	Label lipgloss.Style
	Bar   lipgloss.Style
	Dim   lipgloss.Style
	Error lipgloss.Style
	Box   lipgloss.Style
}

func NewStyles(t Theme) Styles {
	return Styles{
		Title: lipgloss.NewStyle().Bold(true).Foreground(t.Primary),
		Label: lipgloss.NewStyle().Width(12),
		Bar:   lipgloss.NewStyle().Foreground(t.Primary),
		Dim:   lipgloss.NewStyle().Foreground(t.Dim),
		Error: lipgloss.NewStyle().Bold(true).Foreground(t.Error),
		Box: lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(t.Dim).
			Padding(0, 1),
	}
}

// Render formats one report for the terminal.
func (s Styles) Render(r orchestrator.Report) string {
	var b strings.Builder
	b.WriteString(s.Dim.Render(r.Video))
	b.WriteByte('\n')

	if r.Prediction == nil {
		b.WriteString(s.Error.Render(fmt.Sprintf("failed at %s", r.Stage)))
		b.WriteByte('\n')
		b.WriteString(r.Error)
		return s.Box.Render(b.String())
	}

	p := r.Prediction
	b.WriteString(s.Title.Render(fmt.Sprintf("%s  %.1f%%", p.Emotion, p.Confidence*100)))
	b.WriteByte('\n')
	b.WriteString(s.Dim.Render(fmt.Sprintf("%q", p.Text)))
	b.WriteString("\n\n")

	names := make([]string, 0, len(p.Probabilities))
	for name := range p.Probabilities {
		names = append(names, name)
	}
	sort.Slice(names, func(i, j int) bool {
		pi, pj := p.Probabilities[names[i]], p.Probabilities[names[j]]
		if pi != pj {
			return pi > pj
		}
		return names[i] < names[j]
	})
	for i, name := range names {
		v := p.Probabilities[name]
		n := int(v*barWidth + 0.5)
		row := s.Label.Render(name) +
			s.Bar.Render(strings.Repeat("█", n)) +
			s.Dim.Render(strings.Repeat("░", barWidth-n)) +
			fmt.Sprintf(" %5.1f%%", v*100)
		b.WriteString(row)
		if i < len(names)-1 {
			b.WriteByte('\n')
		}
	}
	return s.Box.Render(b.String())
}
