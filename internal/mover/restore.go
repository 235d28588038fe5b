package mover

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"sort"
	"strings"

	"go.uber.org/zap"

	"github.com/phobologic/repotrim/internal/logging"
	"github.com/phobologic/repotrim/internal/model"
	"github.com/phobologic/repotrim/internal/scan"
)

// RestoreOptions configures Restore.
type RestoreOptions struct {
	DryRun bool
	Logger *zap.Logger
}

// RestoreResult summarizes a Restore.
type RestoreResult struct {
	ManifestPath string
	Restored     []string
	Failed       []Failure
	// Complete is true when every entry was resolved and the manifest and
	// resolver were removed.
	Complete bool
}

// Restore moves every file in the manifest back to its original path. An
// entry whose original path exists again is skipped and reported rather than
// overwritten. When all entries resolve, the resolver module and manifest
// are deleted; otherwise the manifest is rewritten with the remaining ones.
func Restore(root string, opts RestoreOptions) (*RestoreResult, error) {
	log := logging.OrNop(opts.Logger)

	root, err := filepath.Abs(root)
	if err != nil {
		return nil, err
	}
	path, ok := ManifestPath(root)
	if !ok {
		return nil, fmt.Errorf("%s: %w", root, ErrNoManifest)
	}
	m, err := LoadManifest(path)
	if err != nil {
		return nil, err
	}

	ext := filepath.Dir(path)
	res := &RestoreResult{ManifestPath: path}

	for _, f := range slices.Clone(m.Files) {
		if err := restoreOne(root, ext, f, opts.DryRun); err != nil {
			log.Warn("not restored", zap.String("path", f.OriginalRelative), zap.Error(err))
			res.Failed = append(res.Failed, Failure{Path: f.OriginalRelative, Err: err})
			continue
		}
		res.Restored = append(res.Restored, f.OriginalRelative)
		m.Remove(f.OriginalRelative)
	}

	if opts.DryRun {
		return res, nil
	}

	if len(m.Files) > 0 {
		if err := SaveManifest(path, m); err != nil {
			return res, fmt.Errorf("rewriting manifest: %w", err)
		}
		if err := WriteResolver(root, ext, m); err != nil {
			return res, fmt.Errorf("rewriting resolver: %w", err)
		}
		return res, nil
	}

	if err := os.Remove(filepath.Join(root, scan.ResolverFileName)); err != nil && !errors.Is(err, os.ErrNotExist) {
		return res, err
	}
	if err := os.Remove(path); err != nil && !errors.Is(err, os.ErrNotExist) {
		return res, err
	}
	pruneEmptyDirs(ext)
	res.Complete = true
	return res, nil
}

func restoreOne(root, ext string, f model.MovedFile, dryRun bool) error {
	if err := scan.CheckMoveable(f.OriginalRelative); err != nil {
		return err
	}
	src := filepath.Join(ext, filepath.FromSlash(f.ExternalRelative))
	dst := filepath.Join(root, filepath.FromSlash(f.OriginalRelative))

	if _, err := os.Lstat(dst); err == nil {
		return fmt.Errorf("%s: %w", f.OriginalRelative, ErrConflict)
	}
	if _, err := os.Stat(src); err != nil {
		return fmt.Errorf("moved copy missing: %w", err)
	}
	if dryRun {
		return nil
	}
	if err := os.MkdirAll(filepath.Dir(dst), 0o755); err != nil {
		return err
	}
	return moveFile(src, dst)
}

// pruneEmptyDirs removes dir and any directories below it that are empty,
// deepest first.
func pruneEmptyDirs(dir string) {
	var dirs []string
	_ = filepath.WalkDir(dir, func(path string, d os.DirEntry, err error) error {
		if err == nil && d.IsDir() {
			dirs = append(dirs, path)
		}
		return nil
	})
	sort.Slice(dirs, func(i, j int) bool {
		return strings.Count(dirs[i], string(filepath.Separator)) > strings.Count(dirs[j], string(filepath.Separator))
	})
	for _, d := range dirs {
		_ = os.Remove(d) // fails on non-empty dirs
	}
}
