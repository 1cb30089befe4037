package report

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/lipgloss"
)

const failIcon = "✗ "

var summaryStyle = lipgloss.NewStyle().Bold(true)

var okCountStyle = lipgloss.NewStyle().
	Foreground(lipgloss.AdaptiveColor{Light: "#51bd73", Dark: "#51bd73"})

var failCountStyle = lipgloss.NewStyle().
	Foreground(lipgloss.Color("#de613e"))

var sessionDetailStyle = lipgloss.NewStyle().
	Foreground(lipgloss.AdaptiveColor{Light: "#A49FA5", Dark: "#777777"})

// Render returns the end-of-run report text. Plain output is the two summary
// lines scripts scrape; styled output colors the counts and lists each failed
// subject on its own line for interactive terminals.
func Render(s *Summary, styled bool) string {
	if !styled {
		if detail := s.DetailLine(); detail != "" {
			return s.Line() + "\n" + detail + "\n"
		}
		return s.Line() + "\n"
	}

	var b strings.Builder
	b.WriteString(summaryStyle.Render("Summary:"))
	b.WriteString(" ")
	b.WriteString(okCountStyle.Render(fmt.Sprintf("OK=%d", s.ok)))
	b.WriteString(", ")
	b.WriteString(failCountStyle.Render(fmt.Sprintf("FAIL=%d", s.fail)))
	b.WriteString("\n")

	for _, o := range s.Failed() {
		b.WriteString(failCountStyle.Render(failIcon + o.Subject))
		if len(o.FailedSessions) > 0 {
			b.WriteString(sessionDetailStyle.Render(" (" + strings.Join(o.FailedSessions, " ") + ")"))
		}
		b.WriteString("\n")
	}
	return b.String()
}
