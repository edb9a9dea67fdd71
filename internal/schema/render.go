package schema

import (
	"fmt"
	"strings"
	"time"

	"github.com/sqlscout/sqlscout/internal/store"
)

// Snapshot is one introspection pass over the store, plus its prompt-ready
// text rendering. Snapshots are immutable once built.
type Snapshot struct {
	Tables    []store.Table
	Text      string
	CreatedAt time.Time
}

// Render produces the schema block handed to the generation backend: table
// names, columns with declared types, and sample rows. Values are flattened
// to single lines with backtick runs collapsed so sample data cannot open a
// markdown fence inside the prompt.
func Render(tables []store.Table) string {
	var b strings.Builder
	b.WriteString("Database schema:\n")
	for _, table := range tables {
		fmt.Fprintf(&b, "\nTable: %s\n", table.Name)
		for _, column := range table.Columns {
			fmt.Fprintf(&b, "  - %s (%s)\n", column.Name, column.Type)
		}
		if len(table.SampleRows) > 0 {
			b.WriteString("  Sample rows:\n")
			for _, row := range table.SampleRows {
				fmt.Fprintf(&b, "    (%s)\n", renderRow(row))
			}
		}
	}
	return b.String()
}

func renderRow(row []any) string {
	parts := make([]string, 0, len(row))
	for _, value := range row {
		parts = append(parts, renderValue(value))
	}
	return strings.Join(parts, ", ")
}

func renderValue(value any) string {
	if value == nil {
		return "NULL"
	}
	switch typed := value.(type) {
	case string:
		return "'" + Neutralize(typed) + "'"
	case time.Time:
		return "'" + typed.UTC().Format(time.RFC3339) + "'"
	default:
		return Neutralize(fmt.Sprintf("%v", typed))
	}
}

// Neutralize flattens untrusted text destined for a prompt: newlines become
// spaces and backtick runs collapse to a single backtick. This blunts the
// obvious fence/instruction injections; it is a mitigation, not a guarantee.
func Neutralize(value string) string {
	value = strings.ReplaceAll(value, "\r", " ")
	value = strings.ReplaceAll(value, "\n", " ")
	for strings.Contains(value, "``") {
		value = strings.ReplaceAll(value, "``", "`")
	}
	return strings.TrimSpace(value)
}
