// Package trace cross-references moved files with the source that uses them
// and renders the navigation documents an AI assistant reads instead of the
// files themselves.
package trace

import (
	"bufio"
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"sync"
	"unicode/utf8"
	"time"

	"go.uber.org/zap"

	"github.com/phobologic/repotrim/internal/discover"
	"github.com/phobologic/repotrim/internal/lang"
	"github.com/phobologic/repotrim/internal/logging"
	"github.com/phobologic/repotrim/internal/model"
	"github.com/phobologic/repotrim/internal/schema"
)

const (
	// ReportFileName is the full report at the project root.
	ReportFileName = "AST_FOX_TRACE.md"
	// RulesFile is the compact convention file for assistant auto-loading.
	RulesFile = ".cursor/rules/external_data.md"

	maxSnippet = 120
	window     = 2 // lines of context on each side for usage classification
)

// Options configures Generate.
type Options struct {
	ExternalDir string
	Exclude     []string
	Logger      *zap.Logger
	Now         func() time.Time
}

// Sources returns the project files searched for usages: code plus common
// text formats, never Markdown or the resolver module.
func Sources(root string, exclude []string) ([]string, error) {
	entries, err := discover.Files(root, discover.Options{
		Text:    discover.TextExtensions,
		Exclude: exclude,
	})
	if err != nil {
		return nil, err
	}
	paths := make([]string, 0, len(entries))
	for _, e := range entries {
		paths = append(paths, e.Path)
	}
	return paths, nil
}

// FindUsages scans sources (relative to root) for lines containing the
// original relative path. Unreadable sources are skipped.
func FindUsages(root, original string, sources []string) []model.FileUsage {
	var usages []model.FileUsage
	for _, rel := range sources {
		data, err := os.ReadFile(filepath.Join(root, filepath.FromSlash(rel)))
		if err != nil || !bytes.Contains(data, []byte(original)) {
			continue
		}
		lines := splitLines(data)
		for i, line := range lines {
			if !strings.Contains(line, original) {
				continue
			}
			usages = append(usages, model.FileUsage{
				File:    rel,
				Line:    i + 1,
				Snippet: snippet(line),
				Type:    classify(lines, i),
			})
		}
	}
	return usages
}

// Generate builds the trace map for files, attaching schemas and usage
// sites.
func Generate(root string, files []model.MovedFile, opts Options) (*model.TraceMap, error) {
	log := logging.OrNop(opts.Logger)
	now := opts.Now
	if now == nil {
		now = time.Now
	}

	abs, err := filepath.Abs(root)
	if err != nil {
		return nil, err
	}
	sources, err := Sources(abs, opts.Exclude)
	if err != nil {
		return nil, fmt.Errorf("discovering sources: %w", err)
	}

	tm := &model.TraceMap{Project: filepath.Base(abs), Generated: now().UTC()}
	tm.Files = traceConcurrent(abs, files, sources, opts.ExternalDir)
	for _, tf := range tm.Files {
		log.Debug("traced", zap.String("path", tf.Original), zap.Int("usages", len(tf.Usages)))
	}
	return tm, nil
}

// traceConcurrent searches sources for every moved file on a bounded pool
// of workers. The result keeps the order of files.
func traceConcurrent(root string, files []model.MovedFile, sources []string, externalDir string) []model.TracedFile {
	if len(files) == 0 {
		return nil
	}
	type result struct {
		index int
		tf    model.TracedFile
	}

	numWorkers := min(runtime.GOMAXPROCS(0), len(files))
	work := make(chan int, len(files))
	results := make(chan result, len(files))

	var wg sync.WaitGroup
	for range numWorkers {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for idx := range work {
				f := files[idx]
				tf := model.TracedFile{
					Original: f.OriginalRelative,
					External: filepath.ToSlash(filepath.Join(externalDir, filepath.FromSlash(f.ExternalRelative))),
					Category: f.Category,
					Tokens:   f.EstimatedTokens,
					Schema:   f.Schema,
					Usages:   FindUsages(root, f.OriginalRelative, sources),
				}
				if tf.Schema != nil {
					tf.SchemaMarkdown = schema.Markdown(tf.Schema)
				}
				results <- result{index: idx, tf: tf}
			}
		}()
	}

	for i := range files {
		work <- i
	}
	close(work)

	go func() {
		wg.Wait()
		close(results)
	}()

	out := make([]model.TracedFile, len(files))
	for r := range results {
		out[r.index] = r.tf
	}
	return out
}

func classify(lines []string, i int) model.UsageType {
	lo, hi := max(0, i-window), min(len(lines), i+window+1)
	ctx := strings.ToLower(strings.Join(lines[lo:hi], "\n"))
	switch {
	case strings.Contains(ctx, "pd.") || strings.Contains(ctx, "pandas") || strings.Contains(ctx, "read_csv") ||
		strings.Contains(ctx, "read_parquet") || strings.Contains(ctx, "dataframe"):
		return model.UsagePandas
	case strings.Contains(ctx, "json.") || strings.Contains(ctx, "json_"):
		return model.UsageJSON
	case strings.Contains(ctx, "sqlite") || strings.Contains(ctx, ".execute(") || strings.Contains(ctx, "cursor"):
		return model.UsageSQLite
	}
	return model.UsageRead
}

func snippet(line string) string {
	s := lang.CollapseWhitespace(line)
	if utf8.RuneCountInString(s) > maxSnippet {
		s = string([]rune(s)[:maxSnippet-3]) + "..."
	}
	return s
}

func splitLines(data []byte) []string {
	var lines []string
	sc := bufio.NewScanner(bytes.NewReader(data))
	sc.Buffer(make([]byte, 64*1024), 16<<20)
	for sc.Scan() {
		lines = append(lines, sc.Text())
	}
	return lines
}
