package cli

import (
	"fmt"
	"sort"
	"strings"

	"github.com/Veraticus/spice-audit/internal/engine"
	"github.com/Veraticus/spice-audit/internal/model"
	"github.com/charmbracelet/lipgloss"
)

// RenderSummary renders the batch outcome counts and the category breakdown
// in a box.
func RenderSummary(batch *model.BatchResult) string {
	var b strings.Builder

	fmt.Fprintf(&b, "%s %s\n", SubtleStyle.Render("Batch:"), batch.ID)
	if batch.Source != "" {
		fmt.Fprintf(&b, "%s %s\n", SubtleStyle.Render("Source:"), batch.Source)
	}
	fmt.Fprintf(&b, "%s %d\n\n", SubtleStyle.Render("Rows:"), batch.Rows())

	b.WriteString(FormatSuccess(fmt.Sprintf("%d classified", batch.Classified)) + "\n")
	if batch.Degraded > 0 {
		b.WriteString(FormatWarning(fmt.Sprintf("%d degraded (default classification)", batch.Degraded)) + "\n")
	}
	if len(batch.Skipped) > 0 {
		b.WriteString(FormatError(fmt.Sprintf("%d skipped", len(batch.Skipped))) + "\n")
	}

	if table := renderCategoryTable(batch.Expenses); table != "" {
		b.WriteString("\n" + table)
	}

	return RenderBox(ChartIcon+" Expense Audit", strings.TrimRight(b.String(), "\n"))
}

func renderCategoryTable(expenses []model.EnrichedExpense) string {
	totals := engine.CategoryTotals(expenses)
	if len(totals) == 0 {
		return ""
	}

	categories := make([]string, 0, len(totals))
	width := len("Category")
	for category := range totals {
		categories = append(categories, category)
		width = max(width, lipgloss.Width(category))
	}
	sort.Slice(categories, func(i, j int) bool {
		a, b := totals[categories[i]], totals[categories[j]]
		if a.Amount != b.Amount {
			return a.Amount > b.Amount
		}
		return categories[i] < categories[j]
	})

	nameCell := TableCellStyle.Width(width + 2)
	numCell := TableCellStyle.Width(12).Align(lipgloss.Right)

	rows := []string{lipgloss.JoinHorizontal(lipgloss.Top,
		TableHeaderStyle.Render(nameCell.Render("Category")),
		TableHeaderStyle.Render(numCell.Render("Count")),
		TableHeaderStyle.Render(numCell.Render("Amount")),
	)}
	for _, category := range categories {
		s := totals[category]
		rows = append(rows, lipgloss.JoinHorizontal(lipgloss.Top,
			nameCell.Render(category),
			numCell.Render(fmt.Sprintf("%d", s.Count)),
			numCell.Render(fmt.Sprintf("$%.2f", s.Amount)),
		))
	}

	return lipgloss.JoinVertical(lipgloss.Left, rows...)
}
