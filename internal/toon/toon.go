// Package toon implements TOON (Token-Oriented Object Notation) encoding.
package toon

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"github.com/phobologic/repotrim/internal/model"
	"github.com/phobologic/repotrim/internal/schema"
)

var (
	needsQuoting = regexp.MustCompile(`[,:"\\{}\[\]]`)
	looksNumeric = regexp.MustCompile(`^-?(?:0|[1-9]\d*)(?:\.\d+)?$`)
	keywords     = map[string]struct{}{
		"true":  {},
		"false": {},
		"null":  {},
	}
)

var (
	fileColumns  = []string{"original", "category", "tokens", "schema", "used_in"}
	usageColumns = []string{"original", "file", "line", "type"}
)

// Encode converts a TraceMap into TOON format: one row per moved file and
// one row per usage site.
func Encode(tm *model.TraceMap) string {
	return EncodeCapped(tm, 0)
}

// EncodeCapped encodes tm in at most maxChars characters (0 means no cap).
// Usage rows are dropped first, then the lightest files; the number of
// omitted rows is recorded in an "omitted" field.
func EncodeCapped(tm *model.TraceMap, maxChars int) string {
	files, usages := fileRows(tm), usageRows(tm)
	omitted := 0

	for {
		out := render(tm, files, usages, omitted)
		if maxChars <= 0 || len(out) <= maxChars {
			return out
		}
		switch {
		case len(usages) > 0:
			usages = usages[:len(usages)-1]
		case len(files) > 0:
			files = files[:len(files)-1]
		default:
			return out
		}
		omitted++
	}
}

func render(tm *model.TraceMap, files, usages [][]string, omitted int) string {
	parts := []string{
		fmt.Sprintf("project: %s", encodeValue(tm.Project)),
		fmt.Sprintf("tokens_saved: %d", tm.TokensSaved()),
		"resolver: " + encodeValue(`get_path("<original>")`),
		formatTabular("moved", fileColumns, files),
	}
	if len(usages) > 0 {
		parts = append(parts, formatTabular("usages", usageColumns, usages))
	}
	if omitted > 0 {
		parts = append(parts, fmt.Sprintf("omitted: %d", omitted))
	}
	return strings.Join(parts, "\n")
}

func fileRows(tm *model.TraceMap) [][]string {
	var rows [][]string
	for i := range tm.Files {
		tf := &tm.Files[i]
		rows = append(rows, []string{
			tf.Original,
			string(tf.Category),
			strconv.Itoa(tf.Tokens),
			schema.Summary(tf.Schema),
			strconv.Itoa(len(tf.Usages)),
		})
	}
	return rows
}

func usageRows(tm *model.TraceMap) [][]string {
	var rows [][]string
	for i := range tm.Files {
		tf := &tm.Files[i]
		for _, u := range tf.Usages {
			rows = append(rows, []string{tf.Original, u.File, strconv.Itoa(u.Line), string(u.Type)})
		}
	}
	return rows
}

func formatTabular(name string, columns []string, rows [][]string) string {
	var b strings.Builder
	fmt.Fprintf(&b, "%s[%d]{%s}:", name, len(rows), strings.Join(columns, ","))
	for _, row := range rows {
		encoded := make([]string, len(row))
		for i, cell := range row {
			encoded[i] = encodeValue(cell)
		}
		fmt.Fprintf(&b, "\n  %s", strings.Join(encoded, ","))
	}
	return b.String()
}

func encodeValue(value string) string {
	if value == "" {
		return `""`
	}

	if value != strings.TrimSpace(value) {
		return quote(value)
	}

	if strings.ContainsAny(value, "\n\r\t") {
		return quote(value)
	}

	if _, ok := keywords[strings.ToLower(value)]; ok {
		return quote(value)
	}

	if looksNumeric.MatchString(value) {
		return value
	}

	if needsQuoting.MatchString(value) {
		return quote(value)
	}

	if strings.HasPrefix(value, "-") {
		return quote(value)
	}

	return value
}

func quote(value string) string {
	escaped := strings.ReplaceAll(value, `\`, `\\`)
	escaped = strings.ReplaceAll(escaped, `"`, `\"`)
	escaped = strings.ReplaceAll(escaped, "\n", `\n`)
	escaped = strings.ReplaceAll(escaped, "\r", `\r`)
	escaped = strings.ReplaceAll(escaped, "\t", `\t`)
	return `"` + escaped + `"`
}
