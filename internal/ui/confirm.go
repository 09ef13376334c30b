package ui

import (
	"bufio"
	"fmt"
	"io"
	"strings"

	"github.com/charmbracelet/lipgloss"
)

// Confirm shows a warning box on out and reads a yes/no answer from in.
// Anything but "y" or "yes" declines.
func Confirm(in io.Reader, out io.Writer, title string, warnings ...string) bool {
	width := GetTerminalWidth()

	lines := []string{"", lipgloss.NewStyle().
		Foreground(WarningColor).
		Bold(true).
		Render("  " + WarningMarker + "  " + title), ""}
	for _, w := range warnings {
		lines = append(lines, ValueStyle.Render("  • "+w))
	}
	lines = append(lines, "")

	box := BoxStyle(width, WarningColor, lipgloss.DoubleBorder()).Render(strings.Join(lines, "\n"))
	_, _ = fmt.Fprintln(out, box)
	_, _ = fmt.Fprint(out, lipgloss.NewStyle().Foreground(WarningColor).Bold(true).Render("Proceed? [y/N]: "))

	answer, err := bufio.NewReader(in).ReadString('\n')
	_, _ = fmt.Fprintln(out)
	if err != nil && answer == "" {
		return false
	}
	switch strings.ToLower(strings.TrimSpace(answer)) {
	case "y", "yes":
		return true
	}
	_, _ = fmt.Fprintln(out, HintStyle.Render("  Cancelled."))
	return false
}
