// Package patch rewrites Python source that opens relocated files so it goes
// through the generated resolver instead of a hard-coded relative path.
package patch

import (
	"errors"
	"fmt"
	"os"
	"strings"

	"go.uber.org/zap"

	"github.com/phobologic/repotrim/internal/lang"
	"github.com/phobologic/repotrim/internal/logging"
	"github.com/phobologic/repotrim/internal/model"
	"github.com/phobologic/repotrim/internal/parse"
)

const (
	// ImportModule and ImportName make up the import added to patched files.
	ImportModule = "config_paths"
	ImportName   = "get_path"
	// ImportLine is the statement inserted into patched files.
	ImportLine = "from " + ImportModule + " import " + ImportName

	// BackupSuffix is appended to a file's name for its pristine copy.
	BackupSuffix = ".bak"
)

// ErrParse means a file does not parse, before or after rewriting.
var ErrParse = errors.New("source does not parse")

// Options configures file and project passes.
type Options struct {
	DryRun  bool
	Exclude []string // doublestar globs, relative to the project root
	Logger  *zap.Logger
}

// Patcher rewrites access calls whose literal names a moved file.
type Patcher struct {
	// Moved holds original relative paths, slash-separated.
	Moved map[string]struct{}
}

// PatchSource rewrites src (the contents of file) in memory. The result is
// successful only if the rewritten text parses; otherwise Content holds the
// untouched source.
func (p *Patcher) PatchSource(file string, src []byte) model.PatchResult {
	res := model.PatchResult{File: file, Content: string(src)}

	l := lang.ForFile(file)
	if l == nil {
		res.Err = fmt.Errorf("%s: unsupported language", file)
		return res
	}
	if !l.Valid(src) {
		res.Err = fmt.Errorf("%s: %w", file, ErrParse)
		return res
	}
	query, err := l.GetAccessQuery()
	if err != nil {
		res.Err = err
		return res
	}

	accesses := parse.ExtractAccesses(l, l.NewParser(), query, src)
	var matched []parse.Access
	for _, a := range accesses {
		if _, ok := p.Moved[parse.NormalizePath(a.Value)]; ok {
			matched = append(matched, a)
		}
	}
	if len(matched) == 0 {
		res.Success = true
		return res
	}

	out := []byte(string(src))
	// Back to front keeps earlier offsets valid.
	for i := len(matched) - 1; i >= 0; i-- {
		a := matched[i]
		repl := replacement(a.Value)
		call := string(src[a.CallStart:a.LitStart]) + repl + string(src[a.LitEnd:a.CallEnd])
		res.Records = append(res.Records, model.PatchRecord{
			File:        file,
			Pattern:     a.Pattern,
			Original:    string(src[a.CallStart:a.CallEnd]),
			Replacement: call,
			Line:        a.Line,
		})
		out = append(out[:a.LitStart:a.LitStart], append([]byte(repl), out[a.LitEnd:]...)...)
	}
	reverse(res.Records)

	out, _, err = AddImport(out)
	if err != nil {
		res.Records = nil
		res.Err = fmt.Errorf("%s: %w", file, err)
		return res
	}
	if !l.Valid(out) {
		res.Records = nil
		res.Err = fmt.Errorf("%s: rewritten source: %w", file, ErrParse)
		return res
	}

	res.Success = true
	res.Content = string(out)
	return res
}

// PatchFile patches the file at path. Unless DryRun is set, a successful
// patch with at least one record first saves the original as path.bak (only
// if no backup exists yet) and then overwrites the file.
func (p *Patcher) PatchFile(path string, opts Options) model.PatchResult {
	log := logging.OrNop(opts.Logger)

	src, err := os.ReadFile(path)
	if err != nil {
		return model.PatchResult{File: path, Err: err}
	}
	res := p.PatchSource(path, src)
	if res.Err != nil {
		log.Warn("not patched", zap.String("path", path), zap.Error(res.Err))
	}
	if !res.Success || len(res.Records) == 0 || opts.DryRun {
		return res
	}

	info, err := os.Stat(path)
	if err != nil {
		return fail(res, err)
	}
	bak := path + BackupSuffix
	if _, err := os.Lstat(bak); errors.Is(err, os.ErrNotExist) {
		if err := os.WriteFile(bak, src, info.Mode().Perm()); err != nil {
			return fail(res, fmt.Errorf("writing backup: %w", err))
		}
	}
	if err := os.WriteFile(path, []byte(res.Content), info.Mode().Perm()); err != nil {
		return fail(res, err)
	}
	log.Debug("patched", zap.String("path", path), zap.Int("patches", len(res.Records)))
	return res
}

// AddImport inserts the resolver import after the module docstring and the
// leading import block. Source that already imports get_path from the
// resolver is returned unchanged with added=false.
func AddImport(src []byte) (out []byte, added bool, err error) {
	l := lang.Languages["python"]
	tree, _, err := l.Parse(src)
	if err != nil {
		return src, false, err
	}
	defer tree.Close()

	root := tree.RootNode()
	if l.HasImport(root, src, ImportModule, ImportName) {
		return src, false, nil
	}

	off := l.ImportOffset(root, src)
	var b strings.Builder
	b.Grow(len(src) + len(ImportLine) + 2)
	if off == 0 {
		b.WriteString(ImportLine)
		b.WriteByte('\n')
		b.Write(src)
	} else {
		b.Write(src[:off])
		b.WriteByte('\n')
		b.WriteString(ImportLine)
		b.Write(src[off:])
	}
	return []byte(b.String()), true, nil
}

func replacement(value string) string {
	return ImportName + `("` + parse.NormalizePath(value) + `")`
}

func fail(res model.PatchResult, err error) model.PatchResult {
	res.Success = false
	res.Records = nil
	res.Err = err
	return res
}

func reverse(records []model.PatchRecord) {
	for i, j := 0, len(records)-1; i < j; i, j = i+1, j-1 {
		records[i], records[j] = records[j], records[i]
	}
}
