package patch

import (
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/dustin/go-humanize"
	"go.uber.org/zap"

	"github.com/phobologic/repotrim/internal/discover"
	"github.com/phobologic/repotrim/internal/lang"
	"github.com/phobologic/repotrim/internal/logging"
	"github.com/phobologic/repotrim/internal/model"
	"github.com/phobologic/repotrim/internal/scan"
)

// PatchProject patches every Python source under root that is not
// gitignored, excluded by opts.Exclude, or the resolver module itself.
// Report.Results lists only files that were patched or failed.
func PatchProject(root string, moved map[string]struct{}, opts Options) (*model.PatchReport, error) {
	files, err := discover.Files(root, discover.Options{
		Languages: []string{"python"},
		Exclude:   opts.Exclude,
	})
	if err != nil {
		return nil, fmt.Errorf("discovering sources: %w", err)
	}

	p := &Patcher{Moved: moved}
	rep := &model.PatchReport{}
	for _, f := range files {
		rep.FilesScanned++
		res := p.PatchFile(filepath.Join(root, filepath.FromSlash(f.Path)), opts)
		res.File = f.Path
		for i := range res.Records {
			res.Records[i].File = f.Path
		}
		if res.Success && len(res.Records) > 0 {
			rep.FilesPatched++
			rep.TotalPatches += len(res.Records)
		}
		if len(res.Records) > 0 || res.Err != nil {
			rep.Results = append(rep.Results, res)
		}
	}
	return rep, nil
}

// Revert restores every patched source from its .bak sibling and removes
// the backup. Backups in excluded directories and backups of files the
// patcher never handles are left alone. It returns the number reverted.
func Revert(root string, opts Options) (int, error) {
	log := logging.OrNop(opts.Logger)

	info, err := os.Stat(root)
	if err != nil {
		return 0, fmt.Errorf("root path: %w", err)
	}
	if !info.IsDir() {
		return 0, fmt.Errorf("%s: not a directory", root)
	}

	reverted := 0
	err = filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return nil
		}
		if d.IsDir() {
			if path != root && scan.SkipDir(path, d.Name()) {
				return filepath.SkipDir
			}
			return nil
		}
		src, ok := strings.CutSuffix(path, BackupSuffix)
		if !ok || !d.Type().IsRegular() || lang.ForFile(src) == nil {
			return nil
		}
		if opts.DryRun {
			reverted++
			return nil
		}
		if err := os.Rename(path, src); err != nil {
			log.Warn("revert failed", zap.String("path", src), zap.Error(err))
			return nil
		}
		log.Debug("reverted", zap.String("path", src))
		reverted++
		return nil
	})
	return reverted, err
}


// FormatReport renders a project pass for the terminal.
func FormatReport(rep *model.PatchReport, dryRun bool) string {
	var b strings.Builder
	title := "AST PATCHER"
	if dryRun {
		title += " (dry run)"
	}
	b.WriteString("============================================================\n")
	b.WriteString(title + "\n")
	b.WriteString("============================================================\n")
	fmt.Fprintf(&b, "Files scanned: %s\n", humanize.Comma(int64(rep.FilesScanned)))
	fmt.Fprintf(&b, "Files patched: %s\n", humanize.Comma(int64(rep.FilesPatched)))
	fmt.Fprintf(&b, "Total patches: %s\n", humanize.Comma(int64(rep.TotalPatches)))

	var failed []model.PatchResult
	if rep.TotalPatches > 0 {
		b.WriteString("\nPATCHES APPLIED:\n")
	}
	for _, res := range rep.Results {
		if !res.Success {
			failed = append(failed, res)
			continue
		}
		for _, r := range res.Records {
			fmt.Fprintf(&b, "  %s:%d [%s]\n    - %s\n    + %s\n", r.File, r.Line, r.Pattern,
				lang.CollapseWhitespace(r.Original), lang.CollapseWhitespace(r.Replacement))
		}
	}
	if len(failed) > 0 {
		fmt.Fprintf(&b, "\nNOT PATCHED (%d):\n", len(failed))
		for _, res := range failed {
			fmt.Fprintf(&b, "  %s: %v\n", res.File, res.Err)
		}
	}
	if rep.TotalPatches > 0 && !dryRun {
		fmt.Fprintf(&b, "\nOriginals saved as *%s; run restore to revert.\n", BackupSuffix)
	}
	return b.String()
}
