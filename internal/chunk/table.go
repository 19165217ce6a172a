package chunk

import (
	"strings"

	"github.com/fieldwise/agrokb/internal/types"
)

// FormatTable renders one extracted table as a single chunk: the heading
// and caption lines first, then pipe-delimited rows with a header separator
// row. The first data row is treated as the header. Returns "" for tables
// with no rows.
func FormatTable(t types.Table) string {
	if len(t.Rows) == 0 {
		return ""
	}

	var b strings.Builder
	heading := strings.TrimSpace(t.Heading)
	caption := strings.TrimSpace(t.Caption)
	if heading != "" {
		b.WriteString(heading)
		b.WriteString("\n")
	}
	if caption != "" && caption != heading {
		b.WriteString(caption)
		b.WriteString("\n")
	}

	writeRow(&b, t.Rows[0])
	b.WriteString("|")
	for range t.Rows[0] {
		b.WriteString(" --- |")
	}
	b.WriteString("\n")
	for _, row := range t.Rows[1:] {
		writeRow(&b, row)
	}

	return strings.TrimRight(b.String(), "\n")
}

func writeRow(b *strings.Builder, cells []string) {
	b.WriteString("|")
	for _, cell := range cells {
		b.WriteString(" ")
		b.WriteString(strings.ReplaceAll(strings.TrimSpace(cell), "|", "/"))
		b.WriteString(" |")
	}
	b.WriteString("\n")
}
