package theme

import (
	"testing"

	"github.com/charmbracelet/lipgloss"
	"github.com/stretchr/testify/assert"

	"github.com/joacominatel/minaconn/internal/app"
	"github.com/joacominatel/minaconn/internal/database"
)

func TestStateColor(t *testing.T) {
	assert.Equal(t, ColorSuccess, StateColor(database.Connected))
	assert.Equal(t, ColorWarning, StateColor(database.Connecting))
	assert.Equal(t, ColorWarning, StateColor(database.Disconnecting))
	assert.Equal(t, ColorError, StateColor(database.Disconnected))
	assert.Equal(t, ColorError, StateColor(database.Uninitialized))
}

func TestStatusLine(t *testing.T) {
	st := app.Status{State: database.Connected, Display: "app@localhost:5432/orders"}

	line := StatusLine(st, 80, "pong")
	assert.Contains(t, line, "connected app@localhost:5432/orders")
	assert.Contains(t, line, "pong")
	assert.Equal(t, 80, lipgloss.Width(line))

	bare := StatusLine(app.Status{State: database.Uninitialized}, 0, "")
	assert.Contains(t, bare, "uninitialized")
}
