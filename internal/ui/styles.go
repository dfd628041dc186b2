package ui

import "github.com/charmbracelet/lipgloss"

var (
	titleStyle    = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("205"))
	quitTextStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("241"))
	spinnerStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("205"))
	textStyle     = lipgloss.NewStyle().Foreground(lipgloss.Color("252"))

	// SubtitleStyle renders the tagline under the banner.
	SubtitleStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("245"))
)
