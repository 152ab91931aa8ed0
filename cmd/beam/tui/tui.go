// Package tui holds the shared styling, key bindings and helpers for the
// beam terminal interface.
package tui

import (
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/key"
	"github.com/charmbracelet/bubbles/progress"
	"github.com/charmbracelet/bubbles/spinner"
	"github.com/charmbracelet/lipgloss"
)

const (
	PADDING   = 2
	MAX_WIDTH = 80

	PRIMARY_COLOR           = "#B8BABA"
	SECONDARY_COLOR         = "#626262"
	ELEMENT_COLOR           = "#40A5EE"
	SECONDARY_ELEMENT_COLOR = "#70C0EE"
	ERROR_COLOR             = "#CC0000"
	CHECK_COLOR             = "#34B233"
)

var PadText = strings.Repeat(" ", PADDING)

var Progressbar = progress.New(progress.WithGradient(SECONDARY_ELEMENT_COLOR, ELEMENT_COLOR))

var baseStyle = lipgloss.NewStyle()
var InfoStyle = baseStyle.Copy().Foreground(lipgloss.Color(PRIMARY_COLOR)).Render
var HelpStyle = baseStyle.Copy().Foreground(lipgloss.Color(SECONDARY_COLOR)).Render
var ItalicText = baseStyle.Copy().Italic(true).Render
var BoldText = baseStyle.Copy().Bold(true).Render
var ErrorText = baseStyle.Copy().Foreground(lipgloss.Color(ERROR_COLOR)).Render
var CheckText = baseStyle.Copy().Foreground(lipgloss.Color(CHECK_COLOR)).Render

var ErrorBoxStyle = baseStyle.Copy().
	Border(lipgloss.RoundedBorder()).
	BorderForeground(lipgloss.Color(ERROR_COLOR)).
	Padding(1, 2)

var WaitingSpinner = spinner.Spinner{
	Frames: []string{"⠋ ", "⠙ ", "⠹ ", "⠸ ", "⠼ ", "⠴ ", "⠦ ", "⠧ ", "⠇ ", "⠏ "},
	FPS:    time.Second / 12,
}

var ImportingSpinner = spinner.Spinner{
	Frames: []string{"┉┉┉", "┅┅┅", "┄┄┄", "┉ ┉", "┅ ┅", "┄ ┄", " ┉ ", " ┉ ", " ┅ ", " ┅ ", " ┄ "},
	FPS:    time.Second / 3,
}

var TransferSpinner = spinner.Spinner{
	Frames: []string{"»  ", "»» ", "»»»", "   "},
	FPS:    time.Millisecond * 400,
}

// KeyMap specifies the key bindings of the interface.
type KeyMap struct {
	Quit         key.Binding
	NextField    key.Binding
	Confirm      key.Binding
	CopyTicket   key.Binding
	DismissError key.Binding
}

func (k KeyMap) ShortHelp() []key.Binding {
	return []key.Binding{k.NextField, k.Confirm, k.CopyTicket, k.Quit}
}

func (k KeyMap) FullHelp() [][]key.Binding {
	return [][]key.Binding{{k.NextField, k.Confirm}, {k.CopyTicket, k.DismissError, k.Quit}}
}

var Keys = KeyMap{
	Quit: key.NewBinding(
		key.WithKeys("ctrl+c", "esc"),
		key.WithHelp("ctrl+c", "quit"),
	),
	NextField: key.NewBinding(
		key.WithKeys("tab", "shift+tab"),
		key.WithHelp("tab", "next field"),
	),
	Confirm: key.NewBinding(
		key.WithKeys("enter"),
		key.WithHelp("enter", "confirm"),
	),
	CopyTicket: key.NewBinding(
		key.WithKeys("ctrl+t"),
		key.WithHelp("ctrl+t", "copy ticket"),
		key.WithDisabled(),
	),
	DismissError: key.NewBinding(
		key.WithKeys("enter", "esc"),
		key.WithHelp("enter", "dismiss"),
		key.WithDisabled(),
	),
}

// LogSeparator returns a separator line sized to the current width.
func LogSeparator(width int) string {
	width = int(math.Min(float64(width-2*PADDING), MAX_WIDTH))
	if width < 0 {
		width = 0
	}
	return HelpStyle(strings.Repeat("─", width)) + "\n\n"
}

// ByteCountSI renders a byte count in SI units.
func ByteCountSI(b int64) string {
	const unit = 1000
	if b < unit {
		return fmt.Sprintf("%d B", b)
	}
	div, exp := int64(unit), 0
	for n := b / unit; n >= unit; n /= unit {
		div *= unit
		exp++
	}
	return fmt.Sprintf("%.1f %cB", float64(b)/float64(div), "kMGTPE"[exp])
}
