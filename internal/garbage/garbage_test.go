package garbage

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var fixedNow = time.Date(2026, 5, 10, 9, 30, 0, 0, time.UTC)

func clock() time.Time { return fixedNow }

func messyProject(t *testing.T) string {
	t.Helper()
	root := t.TempDir()
	writeFile(t, root, "main.py", "print('hi')\n")
	writeFile(t, root, "config.json", "{}\n")
	writeFile(t, root, "scratch.tmp", "x")
	writeFile(t, root, "src/module.py.bak", strings.Repeat("b", 500))
	writeFile(t, root, ".DS_Store", "meta")
	writeFile(t, root, "assets/Thumbs.db", "thumbs")
	writeFile(t, root, "logs/app.log.1", strings.Repeat("l", 50))
	writeFile(t, root, "src/__pycache__/module.cpython-312.pyc", strings.Repeat("c", 100))
	return root
}

func paths(items []Item) []string {
	out := make([]string, 0, len(items))
	for _, it := range items {
		out = append(out, it.Path)
	}
	return out
}

func TestScanFindsGarbage(t *testing.T) {
	t.Parallel()

	root := messyProject(t)
	items, err := Scan(root, Options{Now: clock})
	require.NoError(t, err)

	got := paths(items)
	assert.ElementsMatch(t, []string{
		"scratch.tmp",
		"src/module.py.bak",
		".DS_Store",
		"assets/Thumbs.db",
		"logs/app.log.1",
		"src/__pycache__",
	}, got)
	assert.NotContains(t, got, "main.py")
	assert.NotContains(t, got, "config.json")
	assert.NotContains(t, got, "src/__pycache__/module.cpython-312.pyc", "cache dirs are reported as a unit")

	for i := 1; i < len(items); i++ {
		assert.GreaterOrEqual(t, items[i-1].SizeBytes, items[i].SizeBytes, "largest first")
	}
	assert.Equal(t, "src/module.py.bak", items[0].Path)
	assert.Equal(t, "Backup file", items[0].Reason)
}

func TestScanSkipsEnvironmentsAndArchive(t *testing.T) {
	t.Parallel()

	root := t.TempDir()
	writeFile(t, root, "venv/pyvenv.cfg", "home = /usr/bin\n")
	writeFile(t, root, "venv/lib/stale.tmp", "x")
	writeFile(t, root, "node_modules/pkg/old.bak", "x")
	writeFile(t, root, "_AI_ARCHIVE/garbage_20250101_000000/a.tmp", "x")
	writeFile(t, root, ".git/index.orig", "x")

	items, err := Scan(root, Options{Now: clock})
	require.NoError(t, err)
	assert.Empty(t, items)
}

func TestScanKeep(t *testing.T) {
	t.Parallel()

	root := t.TempDir()
	writeFile(t, root, "app.py.bak", "original source")
	writeFile(t, root, "scratch.tmp", "x")

	items, err := Scan(root, Options{
		Now:  clock,
		Keep: func(rel string) bool { return strings.HasSuffix(rel, ".py.bak") },
	})
	require.NoError(t, err)
	assert.Equal(t, []string{"scratch.tmp"}, paths(items))
}

func TestScanOldLogs(t *testing.T) {
	t.Parallel()

	root := t.TempDir()
	writeFile(t, root, "logs/stale.log", "old")
	writeFile(t, root, "logs/fresh.log", "new")
	old := fixedNow.AddDate(0, 0, -60)
	require.NoError(t, os.Chtimes(filepath.Join(root, "logs", "stale.log"), old, old))
	fresh := fixedNow.AddDate(0, 0, -2)
	require.NoError(t, os.Chtimes(filepath.Join(root, "logs", "fresh.log"), fresh, fresh))

	items, err := Scan(root, Options{Now: clock})
	require.NoError(t, err)
	require.Len(t, items, 1)
	assert.Equal(t, "logs/stale.log", items[0].Path)
	assert.Equal(t, "Old log (60 days)", items[0].Reason)

	items, err = Scan(root, Options{Now: clock, MaxLogAgeDays: 90})
	require.NoError(t, err)
	assert.Empty(t, items)
}

func TestScanBadRoot(t *testing.T) {
	t.Parallel()

	_, err := Scan(filepath.Join(t.TempDir(), "missing"), Options{})
	require.Error(t, err)

	file := filepath.Join(t.TempDir(), "f.txt")
	require.NoError(t, os.WriteFile(file, nil, 0o644))
	_, err = Scan(file, Options{})
	require.Error(t, err)
}

func TestCleanDryRun(t *testing.T) {
	t.Parallel()

	root := messyProject(t)
	res, err := Clean(root, Options{DryRun: true, Now: clock})
	require.NoError(t, err)

	assert.True(t, res.DryRun)
	assert.Len(t, res.Found, 6)
	assert.Empty(t, res.Moved)
	assert.FileExists(t, filepath.Join(root, "scratch.tmp"))
	assert.NoDirExists(t, filepath.Join(root, "_AI_ARCHIVE"))
}

func TestCleanPreservesStructure(t *testing.T) {
	t.Parallel()

	root := messyProject(t)
	res, err := Clean(root, Options{Now: clock})
	require.NoError(t, err)

	assert.Equal(t, filepath.Join(root, "_AI_ARCHIVE", "garbage_20260510_093000"), res.ArchiveDir)
	assert.Len(t, res.Moved, 6)
	assert.Empty(t, res.Failed)
	assert.Equal(t, res.TotalBytes, res.MovedBytes)

	assert.NoFileExists(t, filepath.Join(root, "src", "module.py.bak"))
	assert.FileExists(t, filepath.Join(res.ArchiveDir, "src", "module.py.bak"))
	assert.FileExists(t, filepath.Join(res.ArchiveDir, "src", "__pycache__", "module.cpython-312.pyc"))
	assert.FileExists(t, filepath.Join(res.ArchiveDir, "logs", "app.log.1"))
	assert.FileExists(t, filepath.Join(root, "main.py"))
	assert.FileExists(t, filepath.Join(root, "config.json"))

	again, err := Scan(root, Options{Now: clock})
	require.NoError(t, err)
	assert.Empty(t, again, "the archive is never rescanned")
}

func TestIsOldLog(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name   string
		file   string
		age    int
		want   bool
		reason string
	}{
		{"rotated number", "app.log.1", 0, true, "Rotated log"},
		{"rotated old", "app.log.old", 0, true, "Rotated log"},
		{"rotated infix", "app.1.log", 0, true, "Rotated log"},
		{"fresh log", "app.log", 5, false, ""},
		{"stale log", "APP.LOG", 31, true, "Old log (31 days)"},
		{"boundary", "app.log", 30, false, ""},
		{"not a log", "data.csv", 400, false, ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			mod := fixedNow.AddDate(0, 0, -tt.age)
			reason, ok := IsOldLog(tt.file, mod, fixedNow, DefaultMaxLogAgeDays)
			assert.Equal(t, tt.want, ok)
			assert.Equal(t, tt.reason, reason)
		})
	}
}

func TestFileAgeDays(t *testing.T) {
	t.Parallel()

	assert.Equal(t, 0, FileAgeDays(fixedNow.Add(time.Hour), fixedNow), "future mtime")
	assert.Equal(t, 0, FileAgeDays(fixedNow.Add(-23*time.Hour), fixedNow))
	assert.Equal(t, 7, FileAgeDays(fixedNow.AddDate(0, 0, -7), fixedNow))
}

func TestFormatReport(t *testing.T) {
	t.Parallel()

	root := messyProject(t)
	dry, err := Clean(root, Options{DryRun: true, Now: clock})
	require.NoError(t, err)
	out := FormatReport(dry)
	assert.Contains(t, out, "GARBAGE SCAN (Dry Run)")
	assert.Contains(t, out, "Found 6 items")
	assert.Contains(t, out, "src/__pycache__/")
	assert.Contains(t, out, "Nothing moved")

	res, err := Clean(root, Options{Now: clock})
	require.NoError(t, err)
	out = FormatReport(res)
	assert.Contains(t, out, "GARBAGE CLEAN")
	assert.Contains(t, out, "Moved 6 items")
	assert.NotContains(t, out, "FAILED")

	empty := FormatReport(&Result{})
	assert.Contains(t, empty, "No garbage found.")
}

func writeFile(t *testing.T, root, rel, content string) {
	t.Helper()
	path := filepath.Join(root, filepath.FromSlash(rel))
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
}
