package scan

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/phobologic/repotrim/internal/model"
)

func TestScanWeighsAndSorts(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	writeFile(t, dir, "data/products.json", strings.Repeat("x", 40000))
	writeFile(t, dir, "handlers/shop.py", "print('hi')\n")
	writeFile(t, dir, "logs/app.log", strings.Repeat("line\n", 100))

	res, err := Scan(dir, Options{Threshold: 500})
	if err != nil {
		t.Fatalf("Scan: %v", err)
	}
	if len(res.Files) != 3 {
		t.Fatalf("expected 3 files, got %d: %+v", len(res.Files), res.Files)
	}

	top := res.Files[0]
	if top.Path != "data/products.json" {
		t.Errorf("heaviest file = %q", top.Path)
	}
	if top.Tokens != 10000 {
		t.Errorf("tokens = %d, want 10000", top.Tokens)
	}
	if top.Category != model.Data {
		t.Errorf("category = %q, want data", top.Category)
	}
	if res.TotalTokens != top.Tokens+res.Files[1].Tokens+res.Files[2].Tokens {
		t.Errorf("TotalTokens = %d does not sum files", res.TotalTokens)
	}
}

func TestScanSkipsExcludedDirs(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	writeFile(t, dir, "main.py", "pass")
	writeFile(t, dir, ".git/objects/pack.bin", "binary")
	writeFile(t, dir, "node_modules/lib/index.json", "{}")
	writeFile(t, dir, "__pycache__/main.cpython-312.pyc", "cache")
	writeFile(t, dir, "_AI_ARCHIVE/old.bak", "old")
	// Custom-named environment detected by its marker.
	writeFile(t, dir, "pyenv_custom/pyvenv.cfg", "home = /usr/bin")
	writeFile(t, dir, "pyenv_custom/lib/data.json", "{}")

	res, err := Scan(dir, Options{})
	if err != nil {
		t.Fatalf("Scan: %v", err)
	}
	if len(res.Files) != 1 || res.Files[0].Path != "main.py" {
		t.Fatalf("expected only main.py, got %+v", res.Files)
	}
}

func TestScanExcludeGlobs(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	writeFile(t, dir, "main.py", "pass")
	writeFile(t, dir, "fixtures/big.json", "{}")
	writeFile(t, dir, "logs/app.log", "x")

	res, err := Scan(dir, Options{Exclude: []string{"fixtures/**", "*.log"}})
	if err != nil {
		t.Fatalf("Scan: %v", err)
	}
	if len(res.Files) != 1 || res.Files[0].Path != "main.py" {
		t.Fatalf("expected only main.py, got %+v", res.Files)
	}
}

func TestScanRejectsFile(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	writeFile(t, dir, "a.txt", "x")
	if _, err := Scan(filepath.Join(dir, "a.txt"), Options{}); err == nil {
		t.Fatal("expected error for non-directory root")
	}
}

func TestMoveable(t *testing.T) {
	t.Parallel()

	res := &Result{
		Threshold: 500,
		Files: []model.CandidateFile{
			{Path: "data/big.json", Tokens: 9000, Category: model.Data},
			{Path: "package-lock.json", Tokens: 9000, Category: model.Data},
			{Path: "data/small.csv", Tokens: 10, Category: model.Data},
			{Path: "src/huge.py", Tokens: 9000, Category: model.Other},
			{Path: "_AI_INCLUDE/schema.json", Tokens: 9000, Category: model.Data},
			{Path: "logs/app.log", Tokens: 600, Category: model.Log},
		},
	}

	got := Moveable(res)
	var paths []string
	for _, f := range got {
		paths = append(paths, f.Path)
	}
	want := []string{"data/big.json", "logs/app.log"}
	if strings.Join(paths, ",") != strings.Join(want, ",") {
		t.Errorf("Moveable = %v, want %v", paths, want)
	}
}

func TestClassify(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		want model.Category
	}{
		{"products.JSON", model.Data},
		{"users.csv", model.Data},
		{"app.db", model.Data},
		{"app.log", model.Log},
		{"app.log.1", model.Log},
		{"app.log.old", model.Log},
		{"logo.png", model.Image},
		{"dump.tar", model.Archive},
		{"lib.so", model.Binary},
		{"module.pyc", model.Cache},
		{"main.py", model.Other},
		{"Makefile", model.Other},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			if got := Classify(tt.name); got != tt.want {
				t.Errorf("Classify(%q) = %q, want %q", tt.name, got, tt.want)
			}
		})
	}
}

func TestIsProtected(t *testing.T) {
	t.Parallel()

	tests := []struct {
		path string
		want bool
	}{
		{"README.md", true},
		{"docs/readme.txt", true},
		{"requirements-dev.txt", true},
		{"package.json", true},
		{"src/app/__init__.py", true},
		{"config_paths.py", true},
		{"_AI_INCLUDE/rules.json", true},
		{".cursor/rules/data.json", true},
		{"data/products.json", false},
		{"./data/users.csv", false},
	}
	for _, tt := range tests {
		if got := IsProtected(tt.path); got != tt.want {
			t.Errorf("IsProtected(%q) = %v, want %v", tt.path, got, tt.want)
		}
	}
	if err := CheckMoveable("README.md"); err == nil {
		t.Error("CheckMoveable(README.md) should fail")
	}
}

func TestHasInterpreter(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	writeFile(t, dir, "venv/bin/python", "")
	writeFile(t, dir, "venv_backup/notes.txt", "")

	if !HasInterpreter(filepath.Join(dir, "venv")) {
		t.Error("venv with bin/python not detected")
	}
	if HasInterpreter(filepath.Join(dir, "venv_backup")) {
		t.Error("venv_backup without marker detected")
	}
}

func writeFile(t *testing.T, root, rel, content string) {
	t.Helper()
	path := filepath.Join(root, rel)
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
}

func TestIsRotatedLog(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		want bool
	}{
		{"app.log.1", true},
		{"APP.LOG.OLD", true},
		{"app.20.log", true},
		{"app.log", false},
		{"catalog.json", false},
		{"app.log.bak", false},
	}
	for _, tt := range tests {
		if got := IsRotatedLog(tt.name); got != tt.want {
			t.Errorf("IsRotatedLog(%q) = %v, want %v", tt.name, got, tt.want)
		}
	}
}
