// Package docs maintains the repotrim section of a project's CLAUDE.md. The
// section is wrapped in sentinel comments so it can be replaced in place on
// later runs without touching the surrounding content.
package docs

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/dustin/go-humanize"

	"github.com/phobologic/repotrim/internal/model"
	"github.com/phobologic/repotrim/internal/mover"
	"github.com/phobologic/repotrim/internal/scan"
	"github.com/phobologic/repotrim/internal/trace"
)

const (
	// FileName is the assistant instructions file updated at the project root.
	FileName = "CLAUDE.md"

	SentinelStart = "<!-- repotrim:start -->"
	SentinelEnd   = "<!-- repotrim:end -->"
)

// State is what the section documents about a project.
type State struct {
	// Manifest is the current restore manifest, nil when nothing is moved.
	Manifest    *model.Manifest
	ExternalDir string
	TraceMap    bool // AST_FOX_TRACE.md exists
	Archive     bool // the garbage archive exists
}

// Inspect reads the documented state of root from disk. A manifest that
// cannot be read is reported as an error.
func Inspect(root string) (State, error) {
	var st State
	if path, ok := mover.ManifestPath(root); ok {
		m, err := mover.LoadManifest(path)
		if err != nil {
			return st, err
		}
		st.Manifest = m
		st.ExternalDir = filepath.Dir(path)
	}
	st.TraceMap = fileExists(filepath.Join(root, trace.ReportFileName))
	st.Archive = fileExists(filepath.Join(root, scan.ArchiveDirName))
	return st, nil
}

// Section returns the sentinel-wrapped block for st.
func Section(st State) string {
	var b strings.Builder
	b.WriteString("## repotrim: project hygiene\n\n")
	b.WriteString("Run `repotrim doctor --report` to see what weighs on the context window, " +
		"`repotrim doctor --auto` to fix it, and `repotrim restore` to undo a deep clean.\n")

	if st.Manifest != nil && len(st.Manifest.Files) > 0 {
		fmt.Fprintf(&b, "\n**Moved data (%d files, ~%s tokens).** Heavy files live in `%s`. "+
			"Never open them by relative path; use the resolver:\n\n",
			len(st.Manifest.Files), humanize.Comma(int64(st.Manifest.TotalTokens)), st.ExternalDir)
		b.WriteString("```python\nfrom config_paths import get_path\n\npath = get_path(\"data/example.json\")\n```\n")
		if st.TraceMap {
			fmt.Fprintf(&b, "\nSchemas and usage sites of every moved file are in `%s`; "+
				"read it instead of the data.\n", trace.ReportFileName)
		}
	}

	if st.Archive {
		fmt.Fprintf(&b, "\n`%s/` holds archived garbage. Ignore it; it may be deleted at any time.\n",
			scan.ArchiveDirName)
	}

	return SentinelStart + "\n" + strings.TrimRight(b.String(), "\n") + "\n" + SentinelEnd
}

// Apply inserts section into content, replacing an existing sentinel block
// if present or appending if not.
func Apply(content, section string) string {
	start := strings.Index(content, SentinelStart)
	end := strings.Index(content, SentinelEnd)

	if start >= 0 && end > start {
		return content[:start] + section + content[end+len(SentinelEnd):]
	}

	// Append, ensuring a blank line separator.
	if len(content) > 0 && !strings.HasSuffix(content, "\n") {
		content += "\n"
	}
	if content == "" {
		return section + "\n"
	}
	return content + "\n" + section + "\n"
}

// Write applies the section for st to the file at path, creating it if
// needed, and returns the new content.
func Write(path string, st State) (string, error) {
	existing, err := os.ReadFile(path)
	if err != nil && !errors.Is(err, os.ErrNotExist) {
		return "", fmt.Errorf("reading %s: %w", path, err)
	}
	updated := Apply(string(existing), Section(st))
	if err := os.WriteFile(path, []byte(updated), 0o644); err != nil {
		return "", fmt.Errorf("writing %s: %w", path, err)
	}
	return updated, nil
}

// Update refreshes the section of root's CLAUDE.md from the project's
// current state. It is called after every run that changed the project.
func Update(root string) (string, error) {
	st, err := Inspect(root)
	if err != nil {
		return "", err
	}
	path := filepath.Join(root, FileName)
	_, err = Write(path, st)
	return path, err
}

func fileExists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}
