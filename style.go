package main

import (
	"os"

	"github.com/charmbracelet/lipgloss"
	"github.com/mangarecapmsc-coder/mangarecapmsc/internal/ttypes"
	"golang.org/x/term"
)

var (
	keyword = lipgloss.NewStyle().
		Foreground(lipgloss.Color("#04B575")).
		Render

	paragraph = lipgloss.NewStyle().
			Width(78).
			Padding(0, 0, 0, 2).
			Render

	headerStyle = lipgloss.NewStyle().Bold(true)
	faintStyle  = lipgloss.NewStyle().Faint(true)
	doneStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("#04B575"))
	errorStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("#FF5F87"))
	warnStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("#FFAF00"))
)

// statusStyle colors a status for the summary.
func statusStyle(s ttypes.Status) lipgloss.Style {
	switch s {
	case ttypes.StatusDone:
		return doneStyle
	case ttypes.StatusError:
		return errorStyle
	case ttypes.StatusConverting:
		return warnStyle
	default:
		return faintStyle
	}
}

// terminalWidth returns the stdout width, or 80 when it is not a terminal.
func terminalWidth() int {
	fd := int(os.Stdout.Fd()) //nolint:gosec
	if !term.IsTerminal(fd) {
		return 80
	}
	w, _, err := term.GetSize(fd)
	if err != nil || w <= 0 {
		return 80
	}
	if w > 120 {
		w = 120
	}
	return w
}
