package doctor

import (
	"archive/tar"
	"errors"
	"io"
	"os"
	"path/filepath"
	"sort"
	"testing"

	"github.com/klauspost/compress/gzip"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func readBackup(t *testing.T, path string) map[string]string {
	t.Helper()
	f, err := os.Open(path)
	require.NoError(t, err)
	defer f.Close()
	zr, err := gzip.NewReader(f)
	require.NoError(t, err)
	defer zr.Close()

	out := make(map[string]string)
	tr := tar.NewReader(zr)
	for {
		hdr, err := tr.Next()
		if errors.Is(err, io.EOF) {
			break
		}
		require.NoError(t, err)
		data, err := io.ReadAll(tr)
		require.NoError(t, err)
		out[hdr.Name] = string(data)
	}
	return out
}

func TestBackup(t *testing.T) {
	t.Parallel()

	root := newProject(t)
	writeFile(t, root, "main.py", "print('hi')\n")
	writeFile(t, root, "data/products.json", "[]")
	writeFile(t, root, "venv/bin/python", "#!/bin/sh\n")
	writeFile(t, root, "venv/pyvenv.cfg", "home = /usr/bin\n")
	writeFile(t, root, ".git/HEAD", "ref: refs/heads/main\n")
	writeFile(t, root, "node_modules/x/index.js", "")
	writeFile(t, root, "_AI_ARCHIVE/garbage_1/a.tmp", "")

	d := newDoctor(t, root)
	path, err := d.Backup()
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(filepath.Dir(root), "shop_backup_20260510_093000.tar.gz"), path)
	assert.Equal(t, path, d.BackupPath())

	got := readBackup(t, path)
	names := make([]string, 0, len(got))
	for n := range got {
		names = append(names, n)
	}
	sort.Strings(names)
	assert.Equal(t, []string{"data/", "data/products.json", "main.py"}, names)
	assert.Equal(t, "print('hi')\n", got["main.py"])

	// Once per run.
	writeFile(t, root, "later.py", "")
	again, err := d.Backup()
	require.NoError(t, err)
	assert.Equal(t, path, again)
	assert.NotContains(t, readBackup(t, path), "later.py")
}
