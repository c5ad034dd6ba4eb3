package theme

import (
	"strings"

	"github.com/charmbracelet/lipgloss"

	"github.com/joacominatel/minaconn/internal/app"
	"github.com/joacominatel/minaconn/internal/database"
)

// StateColor returns the indicator color for a ready state.
func StateColor(state database.ReadyState) lipgloss.Color {
	switch state {
	case database.Connected:
		return ColorSuccess
	case database.Connecting, database.Disconnecting:
		return ColorWarning
	default:
		return ColorError
	}
}

// StatusLine renders a one-line status bar for st, padded to width.
// The message, when set, is right-aligned.
func StatusLine(st app.Status, width int, message string) string {
	style := StyleStatusBar
	if width > 0 {
		style = style.Width(width)
	}

	label := st.State.String()
	if st.Display != "" {
		label += " " + st.Display
	}
	indicator := lipgloss.NewStyle().
		Foreground(StateColor(st.State)).
		Render("●") + " " + label

	padding := width - lipgloss.Width(indicator) - lipgloss.Width(message) - 4 // borders + spacing
	if padding < 1 {
		padding = 1
	}

	bar := indicator
	if message != "" {
		bar += strings.Repeat(" ", padding) + StyleMuted.Render(message)
	}
	return style.Render(bar)
}
