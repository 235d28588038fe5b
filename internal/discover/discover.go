// Package discover finds the source files of a project that may reference
// relocated data.
package discover

import (
	"context"
	"os"
	"os/exec"
	"path/filepath"
	"sort"
	"strings"
	"time"

	ignore "github.com/sabhiram/go-gitignore"

	"github.com/phobologic/repotrim/internal/lang"
	"github.com/phobologic/repotrim/internal/scan"
)

// FileEntry represents a discovered source file.
type FileEntry struct {
	Path     string // Relative to repo root, slash-separated
	Language string // "" for plain text files
}

// TextExtensions are non-code files that commonly carry data paths:
// notebooks, shell scripts and config files.
var TextExtensions = []string{".ipynb", ".sh", ".yaml", ".yml", ".toml", ".cfg", ".ini", ".txt"}

// Options filters discovery.
type Options struct {
	// Languages restricts results to the named languages. Empty means all
	// registered languages.
	Languages []string
	// Text also returns files with one of these extensions.
	Text []string
	// Exclude holds doublestar globs matched against relative paths.
	Exclude []string
}

// Files discovers source files under root. Files ignored by git, hidden
// files, symlinks, excluded directories and the generated resolver module
// are never returned.
func Files(root string, opts Options) ([]FileEntry, error) {
	langSet := make(map[string]struct{}, len(opts.Languages))
	for _, l := range opts.Languages {
		langSet[l] = struct{}{}
	}
	textSet := make(map[string]struct{}, len(opts.Text))
	for _, ext := range opts.Text {
		textSet[strings.ToLower(ext)] = struct{}{}
	}
	gitFiles := gitLsFiles(root)
	var gi *ignore.GitIgnore
	if gitFiles == nil {
		gi = loadGitignore(root)
	}

	var results []FileEntry

	err := filepath.WalkDir(root, func(path string, d os.DirEntry, err error) error {
		if err != nil {
			return nil // skip errors
		}

		name := d.Name()

		if d.IsDir() {
			if path == root {
				return nil
			}
			if scan.SkipDir(path, name) {
				return filepath.SkipDir
			}
			return nil
		}

		if strings.HasPrefix(name, ".") || name == scan.ResolverFileName {
			return nil
		}

		// Skip symlinks
		if d.Type()&os.ModeSymlink != 0 {
			return nil
		}

		rel, err := filepath.Rel(root, path)
		if err != nil {
			return nil
		}
		rel = filepath.ToSlash(rel)

		if gitFiles != nil {
			if _, ok := gitFiles[rel]; !ok {
				return nil
			}
		} else if gi != nil && gi.MatchesPath(rel) {
			return nil
		}
		if scan.Excluded(rel, opts.Exclude) {
			return nil
		}

		ext := strings.ToLower(filepath.Ext(name))
		langName := lang.ForExtension(ext)
		if langName == "" {
			if _, ok := textSet[ext]; ok {
				results = append(results, FileEntry{Path: rel})
			}
			return nil
		}

		if len(langSet) > 0 {
			if _, ok := langSet[langName]; !ok {
				return nil
			}
		}

		results = append(results, FileEntry{Path: rel, Language: langName})
		return nil
	})
	if err != nil {
		return nil, err
	}

	sort.Slice(results, func(i, j int) bool {
		return results[i].Path < results[j].Path
	})

	return results, nil
}

func gitLsFiles(root string) map[string]struct{} {
	gitDir := filepath.Join(root, ".git")
	info, err := os.Stat(gitDir)
	if err != nil || !info.IsDir() {
		return nil
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	cmd := exec.CommandContext(ctx, "git", "ls-files", "--cached", "--others", "--exclude-standard")
	cmd.Dir = root
	out, err := cmd.Output()
	if err != nil {
		return nil
	}

	files := make(map[string]struct{})
	for _, line := range strings.Split(strings.TrimRight(string(out), "\n"), "\n") {
		if line != "" {
			files[line] = struct{}{}
		}
	}
	return files
}

func loadGitignore(root string) *ignore.GitIgnore {
	path := filepath.Join(root, ".gitignore")
	gi, err := ignore.CompileIgnoreFile(path)
	if err != nil {
		return nil
	}
	return gi
}
