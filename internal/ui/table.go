package ui

import (
	"strconv"
	"strings"

	"github.com/charmbracelet/lipgloss"

	"github.com/aprsair/aprsgate/internal/discovery"
)

// RenderGateways renders a discovery result as an aligned table.
func RenderGateways(gateways []*discovery.Gateway) string {
	if len(gateways) == 0 {
		return HintStyle.Render("  No gateways found.")
	}

	headers := []string{"INSTANCE", "ADDRESS", "APRS-IS", "VERSION", "HOST"}
	rows := make([][]string, 0, len(gateways))
	for _, g := range gateways {
		aprsis := "-"
		if p := g.APRSISPort(); p > 0 {
			aprsis = strconv.Itoa(p)
		}
		version := g.GetMetadata("version")
		if version == "" {
			version = "-"
		}
		rows = append(rows, []string{g.Instance, g.BaseURL(), aprsis, version, g.Hostname})
	}

	widths := make([]int, len(headers))
	for i, h := range headers {
		widths[i] = lipgloss.Width(h)
	}
	for _, row := range rows {
		for i, cell := range row {
			widths[i] = max(widths[i], lipgloss.Width(cell))
		}
	}

	var b strings.Builder
	b.WriteString(renderRow(headers, widths, TableHeaderStyle))
	for _, row := range rows {
		b.WriteString("\n")
		b.WriteString(renderRow(row, widths, ValueStyle))
	}
	return b.String()
}

func renderRow(cells []string, widths []int, style lipgloss.Style) string {
	parts := make([]string, len(cells))
	for i, c := range cells {
		parts[i] = style.Width(widths[i]).Render(c)
	}
	return "  " + strings.Join(parts, "  ")
}
