package ui

import (
	"strings"

	"github.com/charmbracelet/lipgloss"
)

// Detail is one key/value line of a banner or result box.
type Detail struct {
	Key   string
	Value string
}

// Banner is the box printed when a command starts.
type Banner struct {
	Title   string   // e.g., "APRSGATE"
	Command string   // e.g., "aprsgate serve"
	Params  []Detail // shown in order
	Width   int
}

// NewBanner creates a banner sized to the terminal.
func NewBanner(title, command string, params ...Detail) *Banner {
	return &Banner{
		Title:   title,
		Command: command,
		Params:  params,
		Width:   GetTerminalWidth(),
	}
}

// Render returns the styled banner.
func (b *Banner) Render() string {
	width := max(b.Width, MinTerminalWidth)

	top := lipgloss.JoinVertical(lipgloss.Left,
		TitleStyle.Render(strings.ToUpper(b.Title)),
		SubtitleStyle.Render(b.Command),
	)
	if len(b.Params) == 0 {
		return BoxStyle(width, PrimaryColor, lipgloss.RoundedBorder()).Render(top)
	}

	keyWidth := 0
	for _, p := range b.Params {
		keyWidth = max(keyWidth, len(p.Key)+1)
	}
	lines := make([]string, 0, len(b.Params))
	for _, p := range b.Params {
		key := KeyStyle.Render(padRight(p.Key+":", keyWidth))
		lines = append(lines, key+" "+ValueStyle.Render(p.Value))
	}

	content := lipgloss.JoinVertical(lipgloss.Left, top, Divider(width-6), strings.Join(lines, "\n"))
	return BoxStyle(width, PrimaryColor, lipgloss.RoundedBorder()).Render(content)
}

// String implements fmt.Stringer
func (b *Banner) String() string { return b.Render() }

func padRight(s string, n int) string {
	if len(s) >= n {
		return s
	}
	return s + strings.Repeat(" ", n-len(s))
}
