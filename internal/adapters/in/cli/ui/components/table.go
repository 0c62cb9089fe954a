// Package components holds the terminal widgets of the CLI.
package components

import (
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/lipgloss/table"
	"github.com/mattn/go-runewidth"
	"github.com/rivo/uniseg"

	"github.com/bnema/courseimages/internal/adapters/in/cli/ui/styles"
)

const (
	ellipsis    = "..."
	cellPadding = 1
)

// Column is a table header with an optional fixed display width. Width
// counts the cell padding.
type Column struct {
	Title string
	Width int // 0 means as wide as the content
}

// Table is a rounded-border table. Cells wider than their column are cut
// at a grapheme boundary and end in an ellipsis.
type Table struct {
	Columns []Column
	Rows    [][]string
	Plain   bool // no colors, for piping
}

// String renders the table. A table without columns renders as "".
func (t Table) String() string {
	if len(t.Columns) == 0 {
		return ""
	}

	headers := make([]string, len(t.Columns))
	for i, c := range t.Columns {
		headers[i] = fit(c.Title, t.content(i))
	}
	rows := make([][]string, len(t.Rows))
	for i, row := range t.Rows {
		rows[i] = make([]string, len(row))
		for j, cell := range row {
			rows[i][j] = fit(cell, t.content(j))
		}
	}

	head := lipgloss.NewStyle().Bold(true).Padding(0, cellPadding)
	cell := lipgloss.NewStyle().Padding(0, cellPadding)
	if !t.Plain {
		head = head.Foreground(styles.ColorAccent)
		cell = cell.Foreground(styles.ColorText)
	}

	return table.New().
		Border(lipgloss.RoundedBorder()).
		BorderStyle(lipgloss.NewStyle().Foreground(styles.ColorBorder)).
		Headers(headers...).
		Rows(rows...).
		StyleFunc(func(row, col int) lipgloss.Style {
			s := cell
			if row == table.HeaderRow {
				s = head
			}
			if w := t.width(col); w > 0 {
				s = s.Width(w).MaxWidth(w)
			}
			return s
		}).
		String()
}

func (t Table) width(col int) int {
	if col < 0 || col >= len(t.Columns) {
		return 0
	}
	return t.Columns[col].Width
}

// content is the room left for text in col once padding is taken. At least
// one cell stays so a narrow column still shows something.
func (t Table) content(col int) int {
	w := t.width(col)
	if w == 0 {
		return 0
	}
	return max(w-2*cellPadding, 1)
}

// fit shortens s to max display cells. Styled strings are left alone since
// their escape sequences would be cut.
func fit(s string, max int) string {
	if max <= 0 || strings.Contains(s, "\x1b[") || runewidth.StringWidth(s) <= max {
		return s
	}
	if max <= len(ellipsis) {
		return ellipsis[:max]
	}

	var b strings.Builder
	room := max - len(ellipsis)
	g := uniseg.NewGraphemes(s)
	for g.Next() {
		w := runewidth.StringWidth(g.Str())
		if w > room {
			break
		}
		b.WriteString(g.Str())
		room -= w
	}
	if b.Len() == 0 {
		return ellipsis[:min(max, len(ellipsis))]
	}
	return b.String() + ellipsis
}

// DigestTable lists digests next to what a deletion did with them.
func DigestTable(rows [][]string) string {
	return Table{
		Columns: []Column{{Title: "DIGEST"}, {Title: "ACTION"}},
		Rows:    rows,
	}.String()
}
