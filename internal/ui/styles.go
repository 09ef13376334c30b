package ui

import (
	"os"
	"strings"

	"github.com/charmbracelet/lipgloss"
	"golang.org/x/term"
)

// Palette. Adaptive colors keep the output readable on light terminals.
var (
	PrimaryColor = lipgloss.AdaptiveColor{Light: "#1B5FB8", Dark: "#2F80ED"}
	SuccessColor = lipgloss.AdaptiveColor{Light: "#1E8449", Dark: "#3DD68C"}
	ErrorColor   = lipgloss.AdaptiveColor{Light: "#B03A2E", Dark: "#F25F5C"}
	WarningColor = lipgloss.AdaptiveColor{Light: "#B9770E", Dark: "#F5B041"}
	MutedColor   = lipgloss.AdaptiveColor{Light: "#7B7D7D", Dark: "#808B96"}
	TextColor    = lipgloss.AdaptiveColor{Light: "#17202A", Dark: "#F4F6F6"}
)

// Content width is clamped to [MinTerminalWidth, MaxContentWidth].
const (
	MinTerminalWidth = 60
	MaxContentWidth  = 100
)

var (
	// TitleStyle is for banner and box titles
	TitleStyle = lipgloss.NewStyle().
			Foreground(TextColor).
			Bold(true).
			PaddingLeft(2)

	// SubtitleStyle is for the command line under a title
	SubtitleStyle = lipgloss.NewStyle().
			Foreground(MutedColor).
			PaddingLeft(2)

	// KeyStyle is for parameter and detail keys
	KeyStyle = lipgloss.NewStyle().
			Foreground(MutedColor).
			PaddingLeft(2)

	// ValueStyle is for parameter and detail values
	ValueStyle = lipgloss.NewStyle().
			Foreground(TextColor)

	SuccessTitleStyle = lipgloss.NewStyle().
				Foreground(SuccessColor).
				Bold(true)

	ErrorTitleStyle = lipgloss.NewStyle().
			Foreground(ErrorColor).
			Bold(true)

	ErrorMessageStyle = lipgloss.NewStyle().
				Foreground(ErrorColor)

	// HintStyle is for tips and key bindings
	HintStyle = lipgloss.NewStyle().
			Foreground(MutedColor).
			Italic(true)

	// TableHeaderStyle is for column headings
	TableHeaderStyle = lipgloss.NewStyle().
				Foreground(PrimaryColor).
				Bold(true)

	// SentStyle and ReceivedStyle mark the direction of monitor lines
	SentStyle     = lipgloss.NewStyle().Foreground(WarningColor)
	ReceivedStyle = lipgloss.NewStyle().Foreground(SuccessColor)
)

// Markers
const (
	SuccessMarker = "✓"
	FailureMarker = "✗"
	WarningMarker = "⚠"
)

// GetTerminalWidth returns the stdout width clamped to the content limits.
// Pipes and files get MinTerminalWidth.
func GetTerminalWidth() int {
	width, _, err := term.GetSize(int(os.Stdout.Fd()))
	if err != nil {
		return MinTerminalWidth
	}
	return min(max(width, MinTerminalWidth), MaxContentWidth)
}

// IsTerminal reports whether stdout is a terminal
func IsTerminal() bool {
	return term.IsTerminal(int(os.Stdout.Fd()))
}

// BoxStyle returns a bordered box of width in color
func BoxStyle(width int, color lipgloss.TerminalColor, border lipgloss.Border) lipgloss.Style {
	return lipgloss.NewStyle().
		Border(border).
		BorderForeground(color).
		Width(width-2). // Account for border characters
		Padding(0, 1)
}

// Divider renders a horizontal line width cells wide
func Divider(width int) string {
	if width < 10 {
		width = 10
	}
	return lipgloss.NewStyle().
		Foreground(PrimaryColor).
		Render(strings.Repeat("─", width))
}
