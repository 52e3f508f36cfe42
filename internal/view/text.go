package view

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/lipgloss"

	"github.com/vyrodovalexey/itemtracker/internal/model"
)

var (
	titleStyle    = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("39"))
	nameStyle     = lipgloss.NewStyle().Bold(true)
	quantityStyle = lipgloss.NewStyle().Italic(true).Foreground(lipgloss.Color("244"))
	totalStyle    = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("42"))
	editingStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("214"))
	emptyStyle    = lipgloss.NewStyle().Faint(true)
)

// RenderText formats a snapshot for a terminal. unit labels the quantity
// column, e.g. "Calories".
func RenderText(state model.ViewState, unit string) string {
	var b strings.Builder

	b.WriteString(titleStyle.Render("Items"))
	b.WriteString("\n")

	if !state.ListVisible || len(state.Rows) == 0 {
		b.WriteString(emptyStyle.Render("  (no items)"))
		b.WriteString("\n")
	}
	if state.ListVisible {
		for _, row := range state.Rows {
			fmt.Fprintf(&b, "  %3d  %s %s\n",
				row.ItemID,
				nameStyle.Render(row.Name+":"),
				quantityStyle.Render(fmt.Sprintf("%d %s", row.Quantity, unit)),
			)
		}
	}

	if state.Mode == model.ModeEditing {
		b.WriteString(editingStyle.Render(fmt.Sprintf("Editing: %s (%s)", state.Input.Name, state.Input.Quantity)))
		b.WriteString("\n")
	}

	b.WriteString(totalStyle.Render(fmt.Sprintf("Total %s: %d", unit, state.Total)))
	b.WriteString("\n")

	return b.String()
}
