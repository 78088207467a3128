package tui

import "github.com/charmbracelet/lipgloss"

var (
	colorPrimary   = lipgloss.Color("36")
	colorSecondary = lipgloss.Color("214")
	colorSuccess   = lipgloss.Color("42")
	colorWarning   = lipgloss.Color("220")
	colorDim       = lipgloss.Color("241")

	messageBoxStyle = lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(colorDim).
			Padding(0, 1)

	userBoxStyle = lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(colorPrimary).
			Padding(0, 1)

	planBoxStyle = lipgloss.NewStyle().
			Border(lipgloss.NormalBorder()).
			BorderForeground(colorSecondary).
			Padding(0, 1)

	headerStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(colorPrimary)

	sectionHeaderStyle = lipgloss.NewStyle().
				Bold(true).
				Foreground(colorSecondary)

	planTitleStyle = lipgloss.NewStyle().
			Bold(true).
			Underline(true)

	dayStyle = lipgloss.NewStyle().
			Foreground(colorPrimary)

	gemStyle = lipgloss.NewStyle().
			Foreground(colorSuccess)

	textStyle = lipgloss.NewStyle()

	dimStyle = lipgloss.NewStyle().
			Foreground(colorDim)

	warningStyle = lipgloss.NewStyle().
			Foreground(colorWarning).
			Italic(true)

	chipStyle = lipgloss.NewStyle().
			Foreground(colorPrimary).
			Border(lipgloss.RoundedBorder()).
			BorderForeground(colorDim).
			Padding(0, 1).
			MarginRight(1)

	statusStyle = lipgloss.NewStyle().
			Background(lipgloss.Color("235")).
			Foreground(lipgloss.Color("255")).
			Padding(0, 1)

	promptBarStyle = lipgloss.NewStyle().
			Background(lipgloss.Color("237")).
			Padding(0, 1)

	welcomeStyle = lipgloss.NewStyle().
			Foreground(colorDim).
			Italic(true).
			Align(lipgloss.Center)
)
