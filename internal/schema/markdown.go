package schema

import (
	"fmt"
	"strings"

	"github.com/dustin/go-humanize"

	"github.com/phobologic/repotrim/internal/model"
)

// Markdown renders s as a section suitable for the trace report. The
// token line is always present so readers know the cost of opening the
// original.
func Markdown(s *model.Schema) string {
	if s == nil {
		return ""
	}
	var b strings.Builder
	fmt.Fprintf(&b, "#### `%s` (%s)\n\n", s.File, s.Type)
	fmt.Fprintf(&b, "- Size: %s\n", humanize.Bytes(uint64(s.SizeBytes)))
	fmt.Fprintf(&b, "- Estimated tokens: ~%s\n", humanize.Comma(int64(s.EstimatedTokens)))

	switch s.Type {
	case "json":
		b.WriteString("\n```\n")
		writeShape(&b, "root", s.Shape, 0)
		b.WriteString("```\n")
	case "jsonl":
		fmt.Fprintf(&b, "- Records: %s\n", humanize.Comma(int64(s.Records)))
		b.WriteString("\n```\n")
		writeShape(&b, "record", s.Shape, 0)
		b.WriteString("```\n")
	case "csv":
		writeTable(&b, s.Table)
	case "sqlite":
		writeDatabase(&b, s.Database)
	}
	return b.String()
}

// Summary is a single-line description of s for compact tables.
func Summary(s *model.Schema) string {
	if s == nil {
		return "-"
	}
	switch s.Type {
	case "json":
		return ShapeSummary(s.Shape)
	case "jsonl":
		return fmt.Sprintf("%d records of %s", s.Records, ShapeSummary(s.Shape))
	case "csv":
		if s.Table == nil {
			return "csv"
		}
		parts := make([]string, 0, len(s.Table.Columns))
		for _, c := range s.Table.Columns {
			parts = append(parts, c+":"+s.Table.Types[c])
		}
		return fmt.Sprintf("%s (%d rows)", strings.Join(parts, " "), s.Table.RowCount)
	case "sqlite":
		if s.Database == nil {
			return "sqlite"
		}
		parts := make([]string, 0, len(s.Database.Tables))
		for _, t := range s.Database.Tables {
			parts = append(parts, fmt.Sprintf("%s(%d cols %d rows)", t.Name, len(t.Columns), t.RowCount))
		}
		return strings.Join(parts, " ")
	}
	return s.Type
}

// ShapeSummary is a single-line rendering of a shape, used where a table
// cell has to hold the structure.
func ShapeSummary(s *model.Shape) string {
	if s == nil {
		return "unknown"
	}
	switch s.Type {
	case "object":
		keys := sortedKeys(s.Keys)
		parts := make([]string, 0, len(keys))
		for _, k := range keys {
			parts = append(parts, k+":"+ShapeSummary(s.Keys[k]))
		}
		return "{" + strings.Join(parts, ",") + "}"
	case "array":
		n := 0
		if s.Length != nil {
			n = *s.Length
		}
		return fmt.Sprintf("[%d]%s", n, ShapeSummary(s.Items))
	}
	return s.Type
}

func writeShape(b *strings.Builder, name string, s *model.Shape, indent int) {
	pad := strings.Repeat("  ", indent)
	if s == nil {
		fmt.Fprintf(b, "%s%s: unknown\n", pad, name)
		return
	}
	switch s.Type {
	case "object":
		fmt.Fprintf(b, "%s%s: object (%d keys)\n", pad, name, len(s.Keys))
		for _, k := range sortedKeys(s.Keys) {
			writeShape(b, k, s.Keys[k], indent+1)
		}
	case "array":
		n := 0
		if s.Length != nil {
			n = *s.Length
		}
		fmt.Fprintf(b, "%s%s: array[%s]\n", pad, name, humanize.Comma(int64(n)))
		writeShape(b, "[]", s.Items, indent+1)
	default:
		fmt.Fprintf(b, "%s%s: %s\n", pad, name, s.Type)
	}
}

func writeTable(b *strings.Builder, t *model.TableSchema) {
	if t == nil {
		return
	}
	fmt.Fprintf(b, "- Rows: %s\n", humanize.Comma(int64(t.RowCount)))
	fmt.Fprintf(b, "- Columns: %d\n\n", len(t.Columns))
	if len(t.Columns) == 0 {
		return
	}
	b.WriteString("| Column | Type |\n|---|---|\n")
	for _, c := range t.Columns {
		fmt.Fprintf(b, "| %s | %s |\n", cell(c), t.Types[c])
	}
	if len(t.Sample) == 0 {
		return
	}
	b.WriteString("\nSample:\n\n| ")
	b.WriteString(strings.Join(cells(t.Columns), " | "))
	b.WriteString(" |\n|")
	b.WriteString(strings.Repeat("---|", len(t.Columns)))
	b.WriteString("\n")
	for _, row := range t.Sample {
		padded := make([]string, len(t.Columns))
		copy(padded, row)
		fmt.Fprintf(b, "| %s |\n", strings.Join(cells(padded), " | "))
	}
}

func writeDatabase(b *strings.Builder, d *model.DatabaseSchema) {
	if d == nil {
		return
	}
	fmt.Fprintf(b, "- Tables: %d\n", len(d.Tables))
	for _, t := range d.Tables {
		fmt.Fprintf(b, "\n**%s** (%s rows)\n\n", t.Name, humanize.Comma(t.RowCount))
		b.WriteString("| Column | Type | PK |\n|---|---|---|\n")
		for _, c := range t.Columns {
			pk := ""
			if c.PK {
				pk = "yes"
			}
			fmt.Fprintf(b, "| %s | %s | %s |\n", cell(c.Name), c.Type, pk)
		}
	}
}

func cells(in []string) []string {
	out := make([]string, len(in))
	for i, s := range in {
		out[i] = cell(s)
	}
	return out
}

// cell keeps a value from breaking the markdown table.
func cell(s string) string {
	s = strings.ReplaceAll(s, "|", `\|`)
	s = strings.ReplaceAll(s, "\n", " ")
	if len(s) > 40 {
		s = s[:37] + "..."
	}
	return s
}
