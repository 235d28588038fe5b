package trace

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/dustin/go-humanize"

	"github.com/phobologic/repotrim/internal/model"
	"github.com/phobologic/repotrim/internal/toon"
)

const convention = "Heavy data files of this project live outside the repository. " +
	"Never open them by relative path. Import the resolver and pass the original path:\n\n" +
	"```python\nfrom config_paths import get_path\n\nwith open(get_path(\"data/example.json\")) as f:\n    ...\n```\n\n" +
	"`get_path` returns the external location for moved files and the in-project path for anything else. " +
	"Read the schemas below instead of the files; run `repotrim restore` to bring everything back.\n"

// Markdown renders the full report.
func Markdown(tm *model.TraceMap) string {
	var b strings.Builder
	b.WriteString("# AST Fox Trace Map\n\n")
	fmt.Fprintf(&b, "Project **%s**, generated %s.\n\n", tm.Project, tm.Generated.Format("2006-01-02 15:04 MST"))
	fmt.Fprintf(&b, "%d files moved, ~%s tokens removed from context.\n\n",
		len(tm.Files), humanize.Comma(int64(tm.TokensSaved())))

	b.WriteString("## Convention\n\n")
	b.WriteString(convention)

	if len(tm.Files) == 0 {
		return b.String()
	}

	b.WriteString("\n## Moved files\n\n| File | Category | Tokens | Usages |\n|---|---|---|---|\n")
	for _, tf := range tm.Files {
		fmt.Fprintf(&b, "| `%s` | %s | ~%s | %d |\n", tf.Original, tf.Category,
			humanize.Comma(int64(tf.Tokens)), len(tf.Usages))
	}

	for _, tf := range tm.Files {
		fmt.Fprintf(&b, "\n## `%s`\n\n", tf.Original)
		fmt.Fprintf(&b, "- External: `%s`\n", tf.External)
		fmt.Fprintf(&b, "- Access: `get_path(%q)`\n", tf.Original)
		fmt.Fprintf(&b, "- Tokens saved: ~%s\n", humanize.Comma(int64(tf.Tokens)))

		if tf.SchemaMarkdown != "" {
			b.WriteString("\n### Schema\n\n")
			b.WriteString(tf.SchemaMarkdown)
		}

		b.WriteString("\n### Used in\n\n")
		if len(tf.Usages) == 0 {
			b.WriteString("No literal references found.\n")
			continue
		}
		for _, u := range tf.Usages {
			fmt.Fprintf(&b, "- `%s:%d` (%s): `%s`\n", u.File, u.Line, u.Type, u.Snippet)
		}
	}
	return b.String()
}

// WriteMarkdown writes the full report to the project root.
func WriteMarkdown(tm *model.TraceMap, root string) (string, error) {
	path := filepath.Join(root, ReportFileName)
	return path, os.WriteFile(path, []byte(Markdown(tm)), 0o644)
}

// CompactContext is the size-capped TOON table for assistant rules.
func CompactContext(tm *model.TraceMap, maxChars int) string {
	return toon.EncodeCapped(tm, maxChars)
}

// Rules renders the companion rules file.
func Rules(tm *model.TraceMap, maxChars int) string {
	var b strings.Builder
	b.WriteString("# External data\n\n")
	b.WriteString(convention)
	fmt.Fprintf(&b, "\nFull schemas and usage sites: `%s`.\n\n", ReportFileName)
	b.WriteString("```toon\n")
	b.WriteString(CompactContext(tm, maxChars))
	b.WriteString("\n```\n")
	return b.String()
}

// WriteRules writes the rules file, creating its directory.
func WriteRules(tm *model.TraceMap, root string, maxChars int) (string, error) {
	path := filepath.Join(root, filepath.FromSlash(RulesFile))
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return "", err
	}
	return path, os.WriteFile(path, []byte(Rules(tm, maxChars)), 0o644)
}

// Remove deletes both generated documents and any rules directories left
// empty. Missing files are not an error.
func Remove(root string) error {
	for _, rel := range []string{ReportFileName, RulesFile} {
		if err := os.Remove(filepath.Join(root, filepath.FromSlash(rel))); err != nil && !errors.Is(err, os.ErrNotExist) {
			return err
		}
	}
	rules := filepath.Join(root, filepath.FromSlash(filepath.Dir(RulesFile)))
	_ = os.Remove(rules) // only succeeds when empty
	_ = os.Remove(filepath.Dir(rules))
	return nil
}
