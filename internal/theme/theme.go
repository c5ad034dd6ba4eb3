// Package theme renders connection status for the terminal.
package theme

import "github.com/charmbracelet/lipgloss"

// Color palette.
var (
	ColorPrimary = lipgloss.Color("63")  // Purple
	ColorSuccess = lipgloss.Color("42")  // Green
	ColorWarning = lipgloss.Color("214") // Orange
	ColorError   = lipgloss.Color("196") // Red
	ColorMuted   = lipgloss.Color("245") // Light gray
)

// Shared styles.
var (
	StyleTitle = lipgloss.NewStyle().
			Foreground(ColorPrimary).
			Bold(true)

	StyleMuted = lipgloss.NewStyle().
			Foreground(ColorMuted)

	StyleError = lipgloss.NewStyle().
			Foreground(ColorError)

	StyleStatusBar = lipgloss.NewStyle().
			Background(lipgloss.Color("236")).
			Foreground(lipgloss.Color("252")).
			Padding(0, 1)
)
