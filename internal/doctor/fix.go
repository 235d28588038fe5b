package doctor

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/dustin/go-humanize"
	"go.uber.org/zap"

	"github.com/phobologic/repotrim/internal/garbage"
	"github.com/phobologic/repotrim/internal/lang"
	"github.com/phobologic/repotrim/internal/model"
	"github.com/phobologic/repotrim/internal/mover"
	"github.com/phobologic/repotrim/internal/patch"
)

// ErrNoFix is returned for issues without an automated remedy.
var ErrNoFix = errors.New("no automated fix")

// Fix backs the project up if this run has not done so yet, then applies
// the remedy for is.
func (d *Doctor) Fix(is model.Issue) error {
	if is.Fix.Mutating() {
		if _, err := d.Backup(); err != nil {
			return err
		}
	}
	return d.apply(is)
}

// apply dispatches is to its fix routine. Every model.FixKind has a case.
func (d *Doctor) apply(is model.Issue) error {
	switch is.Fix {
	case model.FixNone:
		return ErrNoFix
	case model.FixEmbeddedEnv:
		return d.fixEmbeddedEnv(is)
	case model.FixCaches:
		return d.fixCaches()
	case model.FixLogDir:
		return d.fixLogDir(is)
	case model.FixLogFiles:
		return d.archivePaths(is.Paths, "logs")
	case model.FixNodeModules:
		return d.appendIgnore([]string{"node_modules/"}, "Node modules")
	case model.FixLargeData, model.FixExportArtifacts:
		return d.fixRelocate(is)
	case model.FixOversizedDocs:
		return d.archivePaths(is.Paths, "docs")
	case model.FixIgnoreFile:
		return d.fixIgnoreFile()
	case model.FixIgnoreEntries:
		var lines []string
		for _, e := range d.missingIgnoreEntries() {
			lines = append(lines, e.Line)
		}
		return d.appendIgnore(lines, "Added by repotrim doctor")
	case model.FixAIInclude:
		return d.fixAIInclude()
	case model.FixBootstrap:
		return d.fixBootstrap()
	}
	return fmt.Errorf("fix kind %d: %w", is.Fix, ErrNoFix)
}

// envDestination is where an embedded environment is relocated.
func (d *Doctor) envDestination(env string) string {
	return filepath.Join(filepath.Dir(d.root), venvsDirName, d.name+"-"+strings.TrimPrefix(filepath.Base(env), "."))
}

func (d *Doctor) fixEmbeddedEnv(is model.Issue) error {
	if is.Path == "" || !exists(is.Path) {
		return fmt.Errorf("%s: environment no longer exists", d.rel(is.Path))
	}
	dst := d.envDestination(is.Path)
	if exists(dst) {
		return fmt.Errorf("%s: %w", dst, mover.ErrConflict)
	}
	size := dirSize(is.Path)
	if err := os.MkdirAll(filepath.Dir(dst), 0o755); err != nil {
		return err
	}
	if err := os.Rename(is.Path, dst); err != nil {
		return err
	}
	d.record(model.ChangeRecord{
		Action:      model.ActionMoved,
		ItemType:    "venv",
		Source:      is.Path,
		Destination: dst,
		SizeBytes:   size,
		Description: fmt.Sprintf("Moved %s/ out of the project", d.rel(is.Path)),
	})
	d.okf("Moved %s/ to %s (%s)", d.rel(is.Path), dst, humanize.Bytes(uint64(size)))
	return nil
}

// garbageOptions keeps patcher backups while a deep clean can still be
// restored, since revert needs them.
func (d *Doctor) garbageOptions(dryRun bool) garbage.Options {
	restorable := mover.HasManifest(d.root)
	return garbage.Options{
		DryRun:        dryRun,
		MaxLogAgeDays: d.cfg.MaxLogAgeDays,
		Logger:        d.log,
		Now:           d.now,
		Keep: func(rel string) bool {
			if !restorable {
				return false
			}
			src, ok := strings.CutSuffix(rel, patch.BackupSuffix)
			return ok && lang.ForFile(src) != nil
		},
	}
}

// CleanGarbage archives the project's garbage into _AI_ARCHIVE, keeping
// patcher backups a restore still needs.
func (d *Doctor) CleanGarbage(dryRun bool) (*garbage.Result, error) {
	res, err := garbage.Clean(d.root, d.garbageOptions(dryRun))
	if err != nil || dryRun {
		return res, err
	}
	for _, it := range res.Moved {
		kind := "file"
		if it.Dir {
			kind = "cache"
		}
		d.record(model.ChangeRecord{
			Action:      model.ActionArchived,
			ItemType:    kind,
			Source:      d.abs(it.Path),
			Destination: filepath.Join(res.ArchiveDir, filepath.FromSlash(it.Path)),
			SizeBytes:   it.SizeBytes,
			Description: it.Reason,
		})
	}
	return res, nil
}

func (d *Doctor) fixCaches() error {
	res, err := d.CleanGarbage(false)
	if err != nil {
		return err
	}
	d.okf("Archived %d items to %s (%s)", len(res.Moved), d.rel(res.ArchiveDir), humanize.Bytes(uint64(res.MovedBytes)))
	if len(res.Failed) > 0 {
		return fmt.Errorf("%d of %d items not archived: %w", len(res.Failed), len(res.Found), res.Failed[0].Err)
	}
	return nil
}

func (d *Doctor) fixLogDir(is model.Issue) error {
	if !exists(is.Path) {
		return fmt.Errorf("%s: no longer exists", d.rel(is.Path))
	}
	size := dirSize(is.Path)
	dst := filepath.Join(d.archiveDir(), logsDirName)
	if err := moveInto(is.Path, dst); err != nil {
		return err
	}
	if err := os.MkdirAll(is.Path, 0o755); err != nil {
		return err
	}
	if err := os.WriteFile(filepath.Join(is.Path, ".gitkeep"), nil, 0o644); err != nil {
		return err
	}
	d.record(model.ChangeRecord{
		Action:      model.ActionMoved,
		ItemType:    "logs",
		Source:      is.Path,
		Destination: dst,
		SizeBytes:   size,
		Description: "Moved logs/ to the archive",
	})
	d.okf("Moved logs/ to archive (%s)", humanize.Bytes(uint64(size)))
	return nil
}

// archivePaths moves each path into the run's archive, keeping its
// relative layout. Paths that vanished since diagnosis are skipped.
func (d *Doctor) archivePaths(paths []string, kind string) error {
	var errs []error
	moved := 0
	var total int64
	for _, p := range paths {
		info, err := os.Stat(p)
		if errors.Is(err, os.ErrNotExist) {
			continue
		}
		if err != nil {
			errs = append(errs, err)
			continue
		}
		dst := filepath.Join(d.archiveDir(), filepath.FromSlash(d.rel(p)))
		if err := moveInto(p, dst); err != nil {
			d.log.Warn("not archived", zap.String("path", d.rel(p)), zap.Error(err))
			errs = append(errs, err)
			continue
		}
		moved++
		total += info.Size()
		d.record(model.ChangeRecord{
			Action:      model.ActionMoved,
			ItemType:    kind,
			Source:      p,
			Destination: dst,
			SizeBytes:   info.Size(),
			Description: fmt.Sprintf("Moved %s to the archive", d.rel(p)),
		})
	}
	d.okf("Moved %d %s files to archive (%s)", moved, kind, humanize.Bytes(uint64(total)))
	return errors.Join(errs...)
}

// fixRelocate moves only the issue's files through the deep clean
// pipeline, so code that opens them keeps working.
func (d *Doctor) fixRelocate(is model.Issue) error {
	rels := make([]string, 0, len(is.Paths))
	for _, p := range is.Paths {
		rels = append(rels, d.rel(p))
	}
	res, err := d.DeepClean(DeepCleanOptions{Paths: rels, Narrow: true})
	if err != nil {
		return err
	}
	if n := len(res.Move.Failed); n > 0 {
		return fmt.Errorf("%d files not moved: %w", n, res.Move.Failed[0].Err)
	}
	return nil
}

const defaultIgnore = `# Virtual environments
venv/
.venv/
**/site-packages/

# Python cache
**/__pycache__/
**/*.pyc
**/*.pyo

# Logs
logs/
*.log

# Data
**/*.csv
**/*.db
**/*.sqlite
**/*.sqlite3

# Node
node_modules/

# repotrim archive
_AI_ARCHIVE/

# Git
.git/

# IDE
.idea/
.vscode/
`

func (d *Doctor) fixIgnoreFile() error {
	path := filepath.Join(d.root, ignoreFileName)
	if exists(path) {
		return fmt.Errorf("%s: %w", ignoreFileName, mover.ErrConflict)
	}
	if err := os.WriteFile(path, []byte(defaultIgnore), 0o644); err != nil {
		return err
	}
	d.record(model.ChangeRecord{Action: model.ActionCreated, ItemType: "config", Source: path, Description: "Created " + ignoreFileName})
	d.okf("Created %s", ignoreFileName)
	return nil
}

// appendIgnore adds lines to the ignore file under a comment header,
// creating the file if needed. Lines already present are not repeated.
func (d *Doctor) appendIgnore(lines []string, header string) error {
	path := filepath.Join(d.root, ignoreFileName)
	existing, err := os.ReadFile(path)
	if err != nil && !errors.Is(err, os.ErrNotExist) {
		return err
	}
	present := make(map[string]struct{})
	for _, l := range strings.Split(string(existing), "\n") {
		present[strings.TrimSpace(l)] = struct{}{}
	}
	var add []string
	for _, l := range lines {
		if _, ok := present[l]; !ok {
			add = append(add, l)
		}
	}
	if len(add) == 0 {
		return nil
	}

	var b strings.Builder
	b.Write(existing)
	if len(existing) > 0 && !strings.HasSuffix(string(existing), "\n") {
		b.WriteString("\n")
	}
	fmt.Fprintf(&b, "\n# %s\n%s\n", header, strings.Join(add, "\n"))
	if err := os.WriteFile(path, []byte(b.String()), 0o644); err != nil {
		return err
	}

	action := model.ActionRestructured
	if len(existing) == 0 {
		action = model.ActionCreated
	}
	d.record(model.ChangeRecord{
		Action:      action,
		ItemType:    "config",
		Source:      path,
		Description: fmt.Sprintf("Added %s to %s", strings.Join(add, " "), ignoreFileName),
	})
	d.okf("Added %s to %s", strings.Join(add, " "), ignoreFileName)
	return nil
}

func (d *Doctor) fixAIInclude() error {
	dir := filepath.Join(d.root, aiIncludeDir)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return err
	}
	files := []struct{ name, content string }{
		{"PROJECT_CONVENTIONS.md", fmt.Sprintf(`# Project Conventions: %s

## Key Rules

1. **venv**: always in `+"`../%s/%s-main/`"+`
2. **Data**: large files live outside the project; open them with `+"`get_path()`"+`
3. **Structure**: follow existing patterns
`, d.name, venvsDirName, d.name)},
		{"WHERE_THINGS_LIVE.md", fmt.Sprintf(`# Where Things Live: %s

## External Locations
- `+"`../%s/%s-main`"+`: virtual environment
- `+"`../%s_data/`"+`: relocated data files (see AST_FOX_TRACE.md)
- `+"`../%s/%s/`"+`: archived logs and caches

## Never Create Inside Project
- `+"`venv/`, `.venv/`"+`
- Large data files, exports and dumps
- Log archives
`, d.name, venvsDirName, d.name, d.name, deletionDirName, d.name)},
	}
	for _, f := range files {
		path := filepath.Join(dir, f.name)
		if exists(path) {
			continue
		}
		if err := os.WriteFile(path, []byte(f.content), 0o644); err != nil {
			return err
		}
		d.record(model.ChangeRecord{
			Action:      model.ActionCreated,
			ItemType:    "config",
			Source:      path,
			Description: "Created " + aiIncludeDir + "/" + f.name,
		})
	}
	d.okf("Created %s/ with conventions", aiIncludeDir)
	return nil
}

func (d *Doctor) fixBootstrap() error {
	dir := filepath.Join(d.root, "scripts")
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return err
	}
	path := filepath.Join(dir, "bootstrap.sh")
	script := fmt.Sprintf(`#!/usr/bin/env bash
set -euo pipefail

PROJ=%q
VENV_DIR="../%s/${PROJ}-main"

mkdir -p "../%s"
if [ ! -d "$VENV_DIR" ]; then
    echo "Creating venv: $VENV_DIR"
    python3 -m venv "$VENV_DIR"
fi

source "$VENV_DIR/bin/activate"
python -m pip install -U pip wheel setuptools --quiet
if [ -f requirements.txt ]; then
    pip install -r requirements.txt --quiet
fi

echo "Done. Activate: source $VENV_DIR/bin/activate"
`, d.name, venvsDirName, venvsDirName)
	if err := os.WriteFile(path, []byte(script), 0o755); err != nil {
		return err
	}
	d.record(model.ChangeRecord{Action: model.ActionCreated, ItemType: "script", Source: path, Description: "Created scripts/bootstrap.sh"})
	d.okf("Created scripts/bootstrap.sh")
	return nil
}

// moveInto renames src to dst, creating dst's parent. An existing dst is an
// error.
func moveInto(src, dst string) error {
	if exists(dst) {
		return fmt.Errorf("%s: %w", dst, mover.ErrConflict)
	}
	if err := os.MkdirAll(filepath.Dir(dst), 0o755); err != nil {
		return err
	}
	return os.Rename(src, dst)
}
