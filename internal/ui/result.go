package ui

import (
	"strings"

	"github.com/charmbracelet/lipgloss"
)

// ResultType indicates success or failure
type ResultType int

const (
	ResultSuccess ResultType = iota
	ResultFailure
)

// Result is a box reporting the outcome of a command.
type Result struct {
	Type    ResultType
	Title   string   // e.g., "Configuration written"
	Details []Detail // shown in order
	Error   error    // failure only
	Hints   []string // failure only
	Width   int
}

// NewSuccessResult creates a success box
func NewSuccessResult(title string, details ...Detail) *Result {
	return &Result{Type: ResultSuccess, Title: title, Details: details, Width: GetTerminalWidth()}
}

// NewFailureResult creates a failure box with optional hints
func NewFailureResult(title string, err error, hints ...string) *Result {
	return &Result{Type: ResultFailure, Title: title, Error: err, Hints: hints, Width: GetTerminalWidth()}
}

// Render returns the styled box
func (r *Result) Render() string {
	width := max(r.Width, MinTerminalWidth)

	lines := []string{""}
	color := SuccessColor
	if r.Type == ResultFailure {
		color = ErrorColor
		lines = append(lines, ErrorTitleStyle.Render("  "+FailureMarker+"  FAILED  ─  "+r.Title), "")
		if r.Error != nil {
			lines = append(lines, ErrorMessageStyle.Render("  Error: "+r.Error.Error()), "")
		}
		for _, h := range r.Hints {
			lines = append(lines, HintStyle.Render("  • "+h))
		}
	} else {
		lines = append(lines, SuccessTitleStyle.Render("  "+SuccessMarker+"  "+r.Title), "")
		for _, d := range r.Details {
			lines = append(lines, KeyStyle.Render(padRight(d.Key+":", 14))+" "+ValueStyle.Render(d.Value))
		}
	}
	lines = append(lines, "")

	return BoxStyle(width, color, lipgloss.DoubleBorder()).Render(strings.Join(lines, "\n"))
}

// String implements fmt.Stringer
func (r *Result) String() string { return r.Render() }
