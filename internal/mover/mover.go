// Package mover relocates heavy files to a sibling directory outside the
// project, records every move in a manifest and restores from it.
package mover

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"go.uber.org/zap"

	"github.com/phobologic/repotrim/internal/logging"
	"github.com/phobologic/repotrim/internal/model"
	"github.com/phobologic/repotrim/internal/scan"
	"github.com/phobologic/repotrim/internal/schema"
)

// ManifestFileName is the manifest stored at the root of the external dir.
const ManifestFileName = "manifest.json"

var (
	// ErrConflict means the destination of a move or restore already exists.
	ErrConflict = errors.New("destination exists")
	// ErrNoManifest means restore found no manifest in either location.
	ErrNoManifest = errors.New("no manifest found")
)

// Options configures Move.
type Options struct {
	DryRun  bool
	Version string // recorded as the manifest's toolkit version
	Schema  schema.Options
	Logger  *zap.Logger
	Now     func() time.Time
}

// Failure is a per-file error that did not abort the batch.
type Failure struct {
	Path string
	Err  error
}

// Result summarizes a Move.
type Result struct {
	ExternalDir  string
	ManifestPath string
	ResolverPath string
	DryRun       bool
	Moved        []model.MovedFile
	Failed       []Failure
	TokensMoved  int
	BytesMoved   int64
	Manifest     *model.Manifest
}

// Move relocates files (paths relative to root) into the external
// directory, mirroring their relative layout. The manifest is rewritten after
// every committed move, so an interrupted run leaves a manifest describing
// exactly what was moved. With DryRun nothing on disk changes.
func Move(root string, files []model.CandidateFile, opts Options) (*Result, error) {
	log := logging.OrNop(opts.Logger)
	now := opts.Now
	if now == nil {
		now = time.Now
	}

	root, err := filepath.Abs(root)
	if err != nil {
		return nil, err
	}
	if info, err := os.Stat(root); err != nil {
		return nil, fmt.Errorf("root path: %w", err)
	} else if !info.IsDir() {
		return nil, fmt.Errorf("%s: not a directory", root)
	}

	ext := ExternalDir(root)
	res := &Result{
		ExternalDir:  ext,
		ManifestPath: filepath.Join(ext, ManifestFileName),
		ResolverPath: filepath.Join(root, scan.ResolverFileName),
		DryRun:       opts.DryRun,
	}

	manifest, err := LoadManifest(res.ManifestPath)
	switch {
	case errors.Is(err, os.ErrNotExist):
		manifest = &model.Manifest{
			Project:        filepath.Base(root),
			Created:        now().UTC(),
			ToolkitVersion: opts.Version,
		}
	case err != nil:
		return nil, err
	}
	res.Manifest = manifest

	for _, f := range files {
		mf, err := moveOne(root, ext, f, manifest, opts)
		if err != nil {
			log.Warn("not moved", zap.String("path", f.Path), zap.Error(err))
			res.Failed = append(res.Failed, Failure{Path: f.Path, Err: err})
			continue
		}
		res.Moved = append(res.Moved, mf)
		res.TokensMoved += mf.EstimatedTokens
		res.BytesMoved += mf.SizeBytes
		if opts.DryRun {
			continue
		}

		manifest.Add(mf)
		if err := SaveManifest(res.ManifestPath, manifest); err != nil {
			return res, fmt.Errorf("writing manifest: %w", err)
		}
		log.Debug("moved", zap.String("path", mf.OriginalRelative), zap.Int("tokens", mf.EstimatedTokens))
	}

	if !opts.DryRun && len(manifest.Files) > 0 {
		if err := WriteResolver(root, ext, manifest); err != nil {
			return res, fmt.Errorf("writing resolver: %w", err)
		}
	}
	return res, nil
}

func moveOne(root, ext string, f model.CandidateFile, m *model.Manifest, opts Options) (model.MovedFile, error) {
	var mf model.MovedFile
	if err := scan.CheckMoveable(f.Path); err != nil {
		return mf, err
	}
	if m.Index(f.Path) >= 0 {
		return mf, fmt.Errorf("%s: already in manifest: %w", f.Path, ErrConflict)
	}

	src := filepath.Join(root, filepath.FromSlash(f.Path))
	dst := filepath.Join(ext, filepath.FromSlash(f.Path))
	info, err := os.Stat(src)
	if err != nil {
		return mf, err
	}
	if _, err := os.Lstat(dst); err == nil {
		return mf, fmt.Errorf("%s: %w", dst, ErrConflict)
	}

	mf = model.MovedFile{
		OriginalRelative: f.Path,
		ExternalRelative: f.Path,
		SizeBytes:        info.Size(),
		EstimatedTokens:  f.Tokens,
		Category:         f.Category,
		Schema:           f.Schema,
	}
	if mf.Schema == nil && schema.Supported(src) {
		s, err := schema.Extract(src, opts.Schema)
		if err != nil {
			logging.OrNop(opts.Logger).Debug("no schema", zap.String("path", f.Path), zap.Error(err))
		}
		mf.Schema = s
	}

	if opts.DryRun {
		return mf, nil
	}
	if err := os.MkdirAll(filepath.Dir(dst), 0o755); err != nil {
		return mf, err
	}
	if err := moveFile(src, dst); err != nil {
		return mf, err
	}
	return mf, nil
}

// moveFile renames src to dst, falling back to copy and remove when the
// two are on different devices.
func moveFile(src, dst string) error {
	if err := os.Rename(src, dst); err == nil {
		return nil
	} else if err := copyFile(src, dst); err != nil {
		return err
	}
	return os.Remove(src)
}

func copyFile(src, dst string) error {
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()

	info, err := in.Stat()
	if err != nil {
		return err
	}
	out, err := os.OpenFile(dst, os.O_WRONLY|os.O_CREATE|os.O_EXCL, info.Mode().Perm())
	if err != nil {
		return err
	}
	if _, err := io.Copy(out, in); err != nil {
		out.Close()
		os.Remove(dst)
		return err
	}
	if err := out.Close(); err != nil {
		os.Remove(dst)
		return err
	}
	return os.Chtimes(dst, info.ModTime(), info.ModTime())
}
