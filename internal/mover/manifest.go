package mover

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/phobologic/repotrim/internal/model"
)

// legacyDirName holds per-project data dirs from older layouts:
// <parent>/_data/<project>/LARGE_TOKENS.
const legacyDirName = "_data"

// ExternalDir returns the directory that receives moved files for the
// project at root. The sibling <project>_data is used unless it holds no
// manifest and the legacy <parent>/_data/<project>/LARGE_TOKENS directory is
// non-empty, in which case the legacy location stays in use.
func ExternalDir(root string) string {
	if abs, err := filepath.Abs(root); err == nil {
		root = abs
	}
	current := currentDir(root)
	if exists(filepath.Join(current, ManifestFileName)) {
		return current
	}
	legacy := legacyDir(root)
	if nonEmpty(legacy) {
		return legacy
	}
	return current
}

// ManifestPath locates the manifest for root, checking the current location
// first and then the legacy one. The bool is false when neither exists; the
// returned path is then where a new manifest would be written.
func ManifestPath(root string) (string, bool) {
	if abs, err := filepath.Abs(root); err == nil {
		root = abs
	}
	current := filepath.Join(currentDir(root), ManifestFileName)
	if exists(current) {
		return current, true
	}
	legacy := filepath.Join(legacyDir(root), ManifestFileName)
	if exists(legacy) {
		return legacy, true
	}
	return filepath.Join(ExternalDir(root), ManifestFileName), false
}

// HasManifest reports whether a deep clean of root can be restored.
func HasManifest(root string) bool {
	_, ok := ManifestPath(root)
	return ok
}

// LoadManifest reads a manifest file. A missing file yields an error
// wrapping os.ErrNotExist.
func LoadManifest(path string) (*model.Manifest, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var m model.Manifest
	if err := json.Unmarshal(data, &m); err != nil {
		return nil, fmt.Errorf("parsing %s: %w", path, err)
	}
	return &m, nil
}

// SaveManifest writes m to path through a temporary file and a rename, so
// readers never observe a partial manifest.
func SaveManifest(path string, m *model.Manifest) error {
	data, err := json.MarshalIndent(m, "", "  ")
	if err != nil {
		return err
	}
	data = append(data, '\n')

	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	tmp, err := os.CreateTemp(filepath.Dir(path), ".manifest-*.json")
	if err != nil {
		return err
	}
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmp.Name())
		return err
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmp.Name())
		return err
	}
	return os.Rename(tmp.Name(), path)
}

func currentDir(root string) string {
	return filepath.Join(filepath.Dir(root), filepath.Base(root)+"_data")
}

func legacyDir(root string) string {
	return filepath.Join(filepath.Dir(root), legacyDirName, filepath.Base(root), "LARGE_TOKENS")
}

func exists(path string) bool {
	_, err := os.Lstat(path)
	return err == nil
}

func nonEmpty(dir string) bool {
	entries, err := os.ReadDir(dir)
	return err == nil && len(entries) > 0
}
