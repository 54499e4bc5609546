// Package tui implements the interactive terminal cockpit for a playbook
// run: task history, host summary, inspector, variable editing, and the AI
// chat overlay, rendered as a Bubble Tea app around a Controller it owns.
package tui

import "github.com/charmbracelet/lipgloss"

// Task status glyphs. Meaning survives without color.
const (
	GlyphOk          = "✓"
	GlyphChanged     = "~"
	GlyphFailed      = "✗"
	GlyphCurrent     = "▸"
	GlyphBreakpoint  = "●"
	GlyphUnreachable = "⚠"
)

// Palette adapts to terminal capabilities via lipgloss.
var (
	colorGreen  = lipgloss.Color("42")
	colorRed    = lipgloss.Color("196")
	colorYellow = lipgloss.Color("214")
	colorBlue   = lipgloss.Color("39")
	colorCyan   = lipgloss.Color("51")
	colorDim    = lipgloss.Color("240")
	colorWhite  = lipgloss.Color("255")
)

// --- Header styles ---

var headerStyle = lipgloss.NewStyle().
	Bold(true).
	Foreground(colorCyan).
	Padding(0, 1)

var connectedBadge = lipgloss.NewStyle().
	Bold(true).
	Foreground(lipgloss.Color("0")).
	Background(colorGreen).
	Padding(0, 1)

var disconnectedBadge = lipgloss.NewStyle().
	Bold(true).
	Foreground(lipgloss.Color("0")).
	Background(colorRed).
	Padding(0, 1)

// --- Task list styles ---

var (
	taskNormal = lipgloss.NewStyle().
			Foreground(colorWhite)

	taskCurrent = lipgloss.NewStyle().
			Bold(true).
			Foreground(colorYellow)

	taskOk = lipgloss.NewStyle().
		Foreground(colorGreen)

	taskChanged = lipgloss.NewStyle().
			Foreground(colorYellow)

	taskFailed = lipgloss.NewStyle().
			Foreground(colorRed)
)

// --- Panel styles ---

var (
	panelBorder = lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(colorDim)

	panelTitle = lipgloss.NewStyle().
			Bold(true).
			Foreground(colorCyan).
			Padding(0, 1)

	labelStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(colorBlue)

	valueStyle = lipgloss.NewStyle().
			Foreground(colorWhite)
)

// --- Status bar styles ---

var (
	statusWaitingStyle = lipgloss.NewStyle().
				Foreground(colorYellow).
				Bold(true)

	statusFailedStyle = lipgloss.NewStyle().
				Foreground(colorRed).
				Bold(true)

	notificationStyle = lipgloss.NewStyle().
				Foreground(lipgloss.Color("0")).
				Background(colorYellow).
				Padding(0, 1)

	spinnerStyle = lipgloss.NewStyle().
			Foreground(colorYellow)
)

// --- Key bar styles ---

var (
	keyStyle = lipgloss.NewStyle().
			Foreground(colorCyan).
			Bold(true)

	keyDescStyle = lipgloss.NewStyle().
			Foreground(colorDim)
)

// --- Overlay styles ---

var overlayBorder = lipgloss.NewStyle().
	Border(lipgloss.DoubleBorder()).
	BorderForeground(colorCyan).
	Padding(1, 2)

// --- Error style ---

var errorStyle = lipgloss.NewStyle().
	Foreground(colorRed).
	Bold(true)
