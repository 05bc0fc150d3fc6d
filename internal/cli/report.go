package cli

import (
	"errors"
	"fmt"
	"maps"
	"slices"
	"strings"

	"github.com/charmbracelet/lipgloss"

	coded "github.com/matzehuels/stacklock/pkg/errors"
	"github.com/matzehuels/stacklock/pkg/resolver"
)

var (
	styleReportBox = lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(colorRed).
			Padding(0, 1)
	styleReportKey   = lipgloss.NewStyle().Bold(true).Foreground(colorWhite)
	styleReportCause = lipgloss.NewStyle().Foreground(colorGray).Italic(true)
)

// renderFailure formats resolution errors for the terminal. Other errors
// render as their user message.
func renderFailure(err error) string {
	var impossible *resolver.ImpossibleError
	if errors.As(err, &impossible) {
		return renderImpossible(impossible)
	}
	var deep *resolver.TooDeepError
	if errors.As(err, &deep) {
		return renderTooDeep(deep)
	}
	return styleIconError.Render(iconError) + " " + coded.UserMessage(err)
}

func renderImpossible(e *resolver.ImpossibleError) string {
	var b strings.Builder
	b.WriteString(StyleError.Render("Could not find a consistent set of versions"))
	for _, r := range e.Reports {
		b.WriteString("\n\n")
		b.WriteString(styleReportKey.Render(r.Key.String()))
		for _, ri := range r.Requirements {
			b.WriteString("\n  • " + ri.String())
		}
		if len(r.Requirements) == 1 {
			b.WriteString("\n  • no candidate matches")
		}
		for _, cause := range r.Causes {
			b.WriteString("\n  " + styleReportCause.Render(cause.Error()))
		}
	}
	return styleReportBox.Render(b.String())
}

func renderTooDeep(e *resolver.TooDeepError) string {
	var b strings.Builder
	b.WriteString(StyleError.Render(fmt.Sprintf("Gave up after %d rounds", e.Rounds)))
	b.WriteString("\n" + StyleDim.Render("Raise max_rounds or pin more roots. Deepest partial resolution:"))
	for _, name := range slices.Sorted(maps.Keys(e.Partial)) {
		b.WriteString(fmt.Sprintf("\n  %s %s", name, StyleHighlight.Render(e.Partial[name].Version().String())))
	}
	return styleReportBox.Render(b.String())
}
