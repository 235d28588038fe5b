package doctor

import (
	"archive/tar"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/klauspost/compress/gzip"
	"go.uber.org/zap"

	"github.com/phobologic/repotrim/internal/scan"
)

// backupSkip names directories left out of the backup along with embedded
// environments: they are large, regenerable or versioned elsewhere.
var backupSkip = map[string]struct{}{
	".git":          {},
	"node_modules":  {},
	"__pycache__":   {},
	".pytest_cache": {},
	".mypy_cache":   {},
	".ruff_cache":   {},
}

// Backup writes <parent>/<project>_backup_<timestamp>.tar.gz once per run
// and returns its path. Later calls return the same path. Any failure is
// wrapped in ErrBackup and leaves no partial archive behind.
func (d *Doctor) Backup() (string, error) {
	if d.backup != "" {
		return d.backup, nil
	}
	path := filepath.Join(filepath.Dir(d.root), fmt.Sprintf("%s_backup_%s.tar.gz", d.name, d.now().Format(stampLayout)))
	if err := d.writeBackup(path); err != nil {
		return "", fmt.Errorf("%w: %v", ErrBackup, err)
	}
	d.backup = path
	d.log.Debug("backup written", zap.String("path", path))
	return path, nil
}

func (d *Doctor) writeBackup(path string) (err error) {
	tmp, err := os.CreateTemp(filepath.Dir(path), ".backup-*.tar.gz")
	if err != nil {
		return err
	}
	defer func() {
		if err != nil {
			tmp.Close()
			os.Remove(tmp.Name())
		}
	}()

	zw := gzip.NewWriter(tmp)
	tw := tar.NewWriter(zw)
	if err := filepath.WalkDir(d.root, func(p string, e fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if p == d.root {
			return nil
		}
		if e.IsDir() {
			if _, skip := backupSkip[e.Name()]; skip || e.Name() == scan.ArchiveDirName || IsEmbeddedEnv(p, e.Name()) {
				return filepath.SkipDir
			}
		}
		return addToTar(tw, p, d.rel(p), e)
	}); err != nil {
		return err
	}
	if err := tw.Close(); err != nil {
		return err
	}
	if err := zw.Close(); err != nil {
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	return os.Rename(tmp.Name(), path)
}

func addToTar(tw *tar.Writer, path, name string, e fs.DirEntry) error {
	info, err := e.Info()
	if err != nil {
		return err
	}
	mode := info.Mode()
	if !mode.IsRegular() && !mode.IsDir() && mode&fs.ModeSymlink == 0 {
		return nil // sockets, pipes, devices
	}
	link := ""
	if mode&fs.ModeSymlink != 0 {
		if link, err = os.Readlink(path); err != nil {
			return err
		}
	}
	hdr, err := tar.FileInfoHeader(info, link)
	if err != nil {
		return err
	}
	hdr.Name = name
	if info.IsDir() {
		hdr.Name += "/"
	}
	if err := tw.WriteHeader(hdr); err != nil {
		return err
	}
	if !info.Mode().IsRegular() {
		return nil
	}
	f, err := os.Open(path)
	if err != nil {
		return err
	}
	defer f.Close()
	_, err = io.Copy(tw, f)
	return err
}
