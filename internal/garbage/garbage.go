// Package garbage finds transient and stale files (editor swap files, OS
// metadata, caches, rotated logs) and moves them into a disposable archive
// under the project root. Nothing references these files by path, so unlike
// a deep clean no manifest or patching is involved.
package garbage

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/bmatcuk/doublestar/v4"
	"go.uber.org/zap"

	"github.com/phobologic/repotrim/internal/logging"
	"github.com/phobologic/repotrim/internal/scan"
)

// DefaultMaxLogAgeDays is the age after which *.log files count as stale.
const DefaultMaxLogAgeDays = 30

// Pattern is a glob matched against a file or directory name.
type Pattern struct {
	Glob   string
	Reason string
	Dir    bool // matches directories, moved as a unit
}

// Patterns is the fixed garbage table.
var Patterns = []Pattern{
	{Glob: "*.tmp", Reason: "Temporary file"},
	{Glob: "*.temp", Reason: "Temporary file"},
	{Glob: "*.bak", Reason: "Backup file"},
	{Glob: "*.swp", Reason: "Vim swap file"},
	{Glob: "*.swo", Reason: "Vim swap file"},
	{Glob: "*~", Reason: "Editor backup"},
	{Glob: "*.old", Reason: "Old version"},
	{Glob: "*.orig", Reason: "Merge leftover"},
	{Glob: ".DS_Store", Reason: "macOS metadata"},
	{Glob: "Thumbs.db", Reason: "Windows thumbnail cache"},
	{Glob: "desktop.ini", Reason: "Windows folder settings"},
	{Glob: "*.pyc", Reason: "Python bytecode"},
	{Glob: "*.pyo", Reason: "Python bytecode"},
	{Glob: "__pycache__", Reason: "Python cache", Dir: true},
	{Glob: ".pytest_cache", Reason: "Pytest cache", Dir: true},
	{Glob: ".mypy_cache", Reason: "Mypy cache", Dir: true},
	{Glob: ".ruff_cache", Reason: "Ruff cache", Dir: true},
}

// Item is one garbage file or directory.
type Item struct {
	Path      string // relative to the project root, slash-separated
	Reason    string
	SizeBytes int64
	Dir       bool
}

// Failure is an item that could not be moved.
type Failure struct {
	Item Item
	Err  error
}

// Options configures Scan and Clean.
type Options struct {
	DryRun        bool
	MaxLogAgeDays int
	// Keep reports paths that must stay even if they match a pattern.
	Keep   func(rel string) bool
	Logger *zap.Logger
	Now    func() time.Time
}

func (o Options) now() time.Time {
	if o.Now != nil {
		return o.Now()
	}
	return time.Now()
}

// Result summarizes a Clean.
type Result struct {
	ArchiveDir string
	DryRun     bool
	Found      []Item
	Moved      []Item
	Failed     []Failure
	TotalBytes int64
	MovedBytes int64
}

// Scan lists garbage under root, largest first. Embedded environments, VCS
// metadata, dependency folders and the archive itself are never entered.
func Scan(root string, opts Options) ([]Item, error) {
	log := logging.OrNop(opts.Logger)
	maxAge := opts.MaxLogAgeDays
	if maxAge <= 0 {
		maxAge = DefaultMaxLogAgeDays
	}
	now := opts.now()

	info, err := os.Stat(root)
	if err != nil {
		return nil, fmt.Errorf("root path: %w", err)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("%s: not a directory", root)
	}

	var items []Item
	err = filepath.WalkDir(root, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			log.Debug("skipping unreadable entry", zap.String("path", p), zap.Error(err))
			if d != nil && d.IsDir() && p != root {
				return filepath.SkipDir
			}
			return nil
		}
		if p == root {
			return nil
		}
		rel := filepath.ToSlash(mustRel(root, p))
		name := d.Name()

		if d.IsDir() {
			if reason, ok := match(name, true); ok {
				if !kept(rel, opts) {
					items = append(items, Item{Path: rel, Reason: reason, SizeBytes: dirSize(p), Dir: true})
				}
				return filepath.SkipDir
			}
			if scan.SkipDir(p, name) {
				return filepath.SkipDir
			}
			return nil
		}
		if !d.Type().IsRegular() || kept(rel, opts) {
			return nil
		}

		fi, err := d.Info()
		if err != nil {
			return nil
		}
		reason, ok := match(name, false)
		if !ok {
			reason, ok = IsOldLog(name, fi.ModTime(), now, maxAge)
		}
		if !ok {
			return nil
		}
		items = append(items, Item{Path: rel, Reason: reason, SizeBytes: fi.Size()})
		return nil
	})
	if err != nil {
		return nil, err
	}

	sort.SliceStable(items, func(i, j int) bool {
		if items[i].SizeBytes != items[j].SizeBytes {
			return items[i].SizeBytes > items[j].SizeBytes
		}
		return items[i].Path < items[j].Path
	})
	return items, nil
}

// Clean scans root and, unless DryRun is set, moves every item into a new
// timestamped folder under the archive directory, preserving relative paths.
func Clean(root string, opts Options) (*Result, error) {
	log := logging.OrNop(opts.Logger)

	items, err := Scan(root, opts)
	if err != nil {
		return nil, err
	}
	res := &Result{
		ArchiveDir: filepath.Join(root, scan.ArchiveDirName, "garbage_"+opts.now().Format("20060102_150405")),
		DryRun:     opts.DryRun,
		Found:      items,
	}
	for _, it := range items {
		res.TotalBytes += it.SizeBytes
	}
	if opts.DryRun {
		return res, nil
	}

	for _, it := range items {
		dst := filepath.Join(res.ArchiveDir, filepath.FromSlash(it.Path))
		if err := archive(filepath.Join(root, filepath.FromSlash(it.Path)), dst); err != nil {
			log.Warn("not archived", zap.String("path", it.Path), zap.Error(err))
			res.Failed = append(res.Failed, Failure{Item: it, Err: err})
			continue
		}
		res.Moved = append(res.Moved, it)
		res.MovedBytes += it.SizeBytes
	}
	return res, nil
}

// IsOldLog reports whether a log-like file is stale: a rotated name
// (app.log.1, app.log.old, app.1.log) or a *.log older than maxAgeDays.
func IsOldLog(name string, modTime, now time.Time, maxAgeDays int) (reason string, ok bool) {
	lower := strings.ToLower(name)
	if scan.IsRotatedLog(lower) {
		return "Rotated log", true
	}
	if path.Ext(lower) != ".log" {
		return "", false
	}
	if age := FileAgeDays(modTime, now); age > maxAgeDays {
		return fmt.Sprintf("Old log (%d days)", age), true
	}
	return "", false
}

// FileAgeDays returns the whole days between modTime and now.
func FileAgeDays(modTime, now time.Time) int {
	if now.Before(modTime) {
		return 0
	}
	return int(now.Sub(modTime).Hours() / 24)
}

func match(name string, dir bool) (string, bool) {
	for _, p := range Patterns {
		if p.Dir != dir {
			continue
		}
		if ok, _ := doublestar.Match(p.Glob, name); ok {
			return p.Reason, true
		}
	}
	return "", false
}

func kept(rel string, opts Options) bool {
	if scan.IsProtected(rel) {
		return true
	}
	return opts.Keep != nil && opts.Keep(rel)
}

// archive moves src to dst, replacing anything already at dst.
func archive(src, dst string) error {
	if err := os.MkdirAll(filepath.Dir(dst), 0o755); err != nil {
		return err
	}
	if err := os.RemoveAll(dst); err != nil && !errors.Is(err, os.ErrNotExist) {
		return err
	}
	return os.Rename(src, dst)
}

func dirSize(dir string) int64 {
	var total int64
	_ = filepath.WalkDir(dir, func(_ string, d fs.DirEntry, err error) error {
		if err != nil || d.IsDir() {
			return nil
		}
		if fi, err := d.Info(); err == nil {
			total += fi.Size()
		}
		return nil
	})
	return total
}

func mustRel(root, p string) string {
	rel, err := filepath.Rel(root, p)
	if err != nil {
		return p
	}
	return rel
}
