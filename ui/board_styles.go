package ui

import (
	"github.com/charmbracelet/lipgloss"
)

const okIcon = "✓ "
const failIcon = "✗ "

var titleStyle = lipgloss.NewStyle().
	Bold(true).
	Foreground(lipgloss.AdaptiveColor{Light: "#1a1a1a", Dark: "#dddddd"})

var planStyle = lipgloss.NewStyle().
	Foreground(lipgloss.AdaptiveColor{Light: "#A49FA5", Dark: "#777777"})

var okStyle = lipgloss.NewStyle().
	Foreground(lipgloss.AdaptiveColor{Light: "#51bd73", Dark: "#51bd73"})

var failStyle = lipgloss.NewStyle().
	Foreground(lipgloss.Color("#de613e"))

var sessionStyle = lipgloss.NewStyle().
	Foreground(lipgloss.AdaptiveColor{Light: "#A49FA5", Dark: "#777777"})

var footerStyle = lipgloss.NewStyle().
	Foreground(lipgloss.AdaptiveColor{Light: "#999999", Dark: "#777777"})

var cancelStyle = lipgloss.NewStyle().
	Foreground(lipgloss.Color("#F0A868"))

var spinnerStyle = lipgloss.NewStyle().
	Foreground(lipgloss.Color("#7EC8D8"))
