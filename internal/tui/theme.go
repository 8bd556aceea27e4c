package tui

import "github.com/charmbracelet/lipgloss"

var (
	colorAccent = lipgloss.AdaptiveColor{Light: "25", Dark: "39"}
	colorMuted  = lipgloss.AdaptiveColor{Light: "245", Dark: "243"}
	colorError  = lipgloss.AdaptiveColor{Light: "124", Dark: "203"}

	titleStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(colorAccent).
			Padding(0, 1)

	statusStyle = lipgloss.NewStyle().
			Foreground(colorMuted).
			Padding(0, 1)

	errorStyle = lipgloss.NewStyle().
			Foreground(colorError).
			Padding(0, 1)

	helpStyle = lipgloss.NewStyle().
			Foreground(colorMuted).
			Padding(0, 1)

	fieldLabelStyle = lipgloss.NewStyle().
			Bold(true).
			MarginTop(1)

	fieldErrorStyle = lipgloss.NewStyle().
			Foreground(colorError)

	detailMetaStyle = lipgloss.NewStyle().
			Foreground(colorMuted)
)
