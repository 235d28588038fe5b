// Package scan walks a project, estimates the token weight of every file and
// classifies it, producing the candidates a deep clean may relocate.
package scan

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	pathpkg "path"
	"path/filepath"
	"sort"
	"strings"

	"github.com/bmatcuk/doublestar/v4"
	"go.uber.org/zap"

	"github.com/phobologic/repotrim/internal/logging"
	"github.com/phobologic/repotrim/internal/model"
)

// ArchiveDirName is the disposable garbage archive at the project root.
const ArchiveDirName = "_AI_ARCHIVE"

// ResolverFileName is the generated path resolver module.
const ResolverFileName = "config_paths.py"

// Files above this size are weighed by byte count instead of being read.
const maxReadBytes = 32 << 20

// ErrProtected is returned for any attempt to relocate a protected path.
var ErrProtected = errors.New("protected path")

var skipDirs = map[string]struct{}{
	"__pycache__":   {},
	"node_modules":  {},
	"venv":          {},
	"env":           {},
	"virtualenv":    {},
	"site-packages": {},
	"build":         {},
	"dist":          {},
	"egg-info":      {},
	"_AI_INCLUDE":   {},
	"_FOR_DELETION": {},
	ArchiveDirName:  {},
}

var moveable = map[model.Category]struct{}{
	model.Data:    {},
	model.Log:     {},
	model.Archive: {},
}

// Options configures a scan.
type Options struct {
	Threshold int
	Exclude   []string // doublestar globs matched against relative paths
	Logger    *zap.Logger
}

// Result holds every scanned file, heaviest first.
type Result struct {
	Root        string
	Threshold   int
	Files       []model.CandidateFile
	TotalTokens int
	TotalBytes  int64
	Skipped     []string // Unreadable paths, relative to Root
}

// Scan walks root and weighs every regular file outside excluded directories.
// Unreadable entries are recorded in Result.Skipped and never abort the walk.
func Scan(root string, opts Options) (*Result, error) {
	log := logging.OrNop(opts.Logger)

	info, err := os.Stat(root)
	if err != nil {
		return nil, fmt.Errorf("root path: %w", err)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("%s: not a directory", root)
	}

	res := &Result{Root: root, Threshold: opts.Threshold}

	err = filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		rel := relPath(root, path)
		if err != nil {
			log.Debug("skipping unreadable entry", zap.String("path", rel), zap.Error(err))
			res.Skipped = append(res.Skipped, rel)
			if d != nil && d.IsDir() && path != root {
				return filepath.SkipDir
			}
			return nil
		}

		if d.IsDir() {
			if path != root && (SkipDir(path, d.Name()) || Excluded(rel, opts.Exclude)) {
				return filepath.SkipDir
			}
			return nil
		}
		if Excluded(rel, opts.Exclude) {
			return nil
		}

		if !d.Type().IsRegular() || strings.HasPrefix(d.Name(), ".") {
			return nil
		}

		fi, err := d.Info()
		if err != nil {
			res.Skipped = append(res.Skipped, rel)
			return nil
		}
		tokens, err := fileTokens(path, fi.Size())
		if err != nil {
			log.Debug("skipping unreadable file", zap.String("path", rel), zap.Error(err))
			res.Skipped = append(res.Skipped, rel)
			return nil
		}

		res.Files = append(res.Files, model.CandidateFile{
			Path:      rel,
			SizeBytes: fi.Size(),
			Tokens:    tokens,
			Category:  Classify(d.Name()),
		})
		res.TotalTokens += tokens
		res.TotalBytes += fi.Size()
		return nil
	})
	if err != nil {
		return nil, err
	}

	sort.SliceStable(res.Files, func(i, j int) bool {
		if res.Files[i].Tokens != res.Files[j].Tokens {
			return res.Files[i].Tokens > res.Files[j].Tokens
		}
		return res.Files[i].Path < res.Files[j].Path
	})
	return res, nil
}

// Moveable returns the candidates that are opaque data at or above the
// threshold and not protected.
func Moveable(res *Result) []model.CandidateFile {
	var out []model.CandidateFile
	for _, f := range res.Files {
		if _, ok := moveable[f.Category]; !ok {
			continue
		}
		if f.Tokens < res.Threshold || IsProtected(f.Path) {
			continue
		}
		out = append(out, f)
	}
	return out
}

// SkipDir reports whether the directory at path (named name) is excluded from
// every walk: VCS metadata, caches, embedded environments, hidden directories
// and repotrim's own archive and context folders.
func SkipDir(path, name string) bool {
	if _, ok := skipDirs[name]; ok {
		return true
	}
	if strings.HasPrefix(name, ".") {
		return true
	}
	return HasInterpreter(path)
}

// HasInterpreter reports whether dir looks like an embedded Python
// environment: it holds pyvenv.cfg or an interpreter launcher.
func HasInterpreter(dir string) bool {
	for _, marker := range []string{
		"pyvenv.cfg",
		filepath.Join("bin", "python"),
		filepath.Join("bin", "python3"),
		filepath.Join("Scripts", "python.exe"),
	} {
		if _, err := os.Lstat(filepath.Join(dir, marker)); err == nil {
			return true
		}
	}
	return false
}

// Excluded reports whether rel matches any of the glob patterns. A pattern
// without a slash also matches the base name, so "*.log" excludes logs at
// any depth.
func Excluded(rel string, patterns []string) bool {
	for _, p := range patterns {
		if ok, _ := doublestar.Match(p, rel); ok {
			return true
		}
		if !strings.Contains(p, "/") {
			if ok, _ := doublestar.Match(p, pathpkg.Base(rel)); ok {
				return true
			}
		}
	}
	return false
}

// CheckMoveable returns ErrProtected if rel must never be relocated.
func CheckMoveable(rel string) error {
	if IsProtected(rel) {
		return fmt.Errorf("%s: %w", rel, ErrProtected)
	}
	return nil
}

func relPath(root, path string) string {
	rel, err := filepath.Rel(root, path)
	if err != nil {
		return filepath.ToSlash(path)
	}
	return filepath.ToSlash(rel)
}

func fileTokens(path string, size int64) (int, error) {
	if size > maxReadBytes {
		f, err := os.Open(path)
		if err != nil {
			return 0, err
		}
		_ = f.Close()
		return model.EstimateTokens(int(size)), nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return 0, err
	}
	return model.EstimateTextTokens(data), nil
}
