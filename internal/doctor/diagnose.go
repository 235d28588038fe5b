package doctor

import (
	"fmt"
	"io/fs"
	"os"
	"path"
	"path/filepath"
	"regexp"
	"sort"
	"strings"

	"github.com/dustin/go-humanize"
	ignore "github.com/sabhiram/go-gitignore"
	"go.uber.org/zap"

	"github.com/phobologic/repotrim/internal/garbage"
	"github.com/phobologic/repotrim/internal/model"
	"github.com/phobologic/repotrim/internal/scan"
)

// Total scanned bytes above which a project is HIGH or CRITICAL weight,
// roughly 100K and 1M tokens.
const (
	weightHighBytes     = 400_000
	weightCriticalBytes = 4_000_000
)

var envNames = map[string]struct{}{
	"venv":        {},
	".venv":       {},
	"env":         {},
	".env":        {},
	"virtualenv":  {},
	".virtualenv": {},
}

// export_2024.csv, db-dump.sql, backup.zip, users.backup.json
var exportRe = regexp.MustCompile(`(?i)(^|[._-])(exports?|dumps?|backups?)([._-]|$)`)

var docExts = map[string]struct{}{
	".md":  {},
	".rst": {},
	".txt": {},
}

// ignoreEntry is a standard ignore-file line and a path it must cover.
type ignoreEntry struct {
	Line  string
	Probe string
}

var ignoreEntries = []ignoreEntry{
	{"venv/", "venv/bin/python"},
	{".venv/", ".venv/bin/python"},
	{"**/__pycache__/", "pkg/__pycache__/mod.pyc"},
	{"*.log", "logs/app.log"},
	{"node_modules/", "node_modules/pkg/index.js"},
	{scan.ArchiveDirName + "/", scan.ArchiveDirName + "/garbage/x.tmp"},
	{".git/", ".git/HEAD"},
}

type issueList struct {
	next   int
	issues []model.Issue
}

func (l *issueList) add(is model.Issue) {
	l.next++
	is.ID = l.next
	l.issues = append(l.issues, is)
}

// Diagnose runs every checker against the current state of the project.
// Issue ids start at 1 on each call.
func (d *Doctor) Diagnose() (*model.DiagnosticReport, error) {
	res, err := scan.Scan(d.root, scan.Options{
		Threshold: d.cfg.Threshold,
		Exclude:   d.cfg.ExcludePatterns,
		Logger:    d.log,
	})
	if err != nil {
		return nil, err
	}

	rep := &model.DiagnosticReport{
		RunID:       d.runID,
		ProjectPath: d.root,
		ProjectName: d.name,
		TotalTokens: res.TotalTokens,
		TotalBytes:  res.TotalBytes,
		Weight:      WeightOf(res.TotalBytes),
	}
	for _, f := range res.Files {
		rep.FileTokens = append(rep.FileTokens, model.FileTokens{Path: f.Path, Tokens: f.Tokens})
	}

	envs, nodeModules := d.walkStructure()

	var l issueList
	d.checkEmbeddedEnvs(&l, envs)
	d.checkGarbage(&l)
	d.checkLogDir(&l)
	d.checkLogFiles(&l, res)
	d.checkNodeModules(&l, nodeModules)
	d.checkLargeData(&l, res)
	d.checkExports(&l, res)
	d.checkDocs(&l, res)
	d.checkScaffolding(&l)
	rep.Issues = l.issues

	rep.ExternalEnvPath, rep.ExternalEnv = d.externalEnv()
	rep.Changes = d.Changes()
	d.log.Debug("diagnosed", zap.Int("issues", len(rep.Issues)), zap.Int("tokens", rep.TotalTokens))
	return rep, nil
}

// WeightOf classifies a project's total scanned size.
func WeightOf(totalBytes int64) model.Weight {
	switch {
	case totalBytes > weightCriticalBytes:
		return model.WeightCritical
	case totalBytes > weightHighBytes:
		return model.WeightHigh
	}
	return model.WeightOK
}

// IsEmbeddedEnv reports whether the directory at path (named name) is a
// Python environment. An interpreter marker is required; the name must
// follow an environment convention unless pyvenv.cfg is present.
func IsEmbeddedEnv(path, name string) bool {
	if !scan.HasInterpreter(path) {
		return false
	}
	return isEnvName(name) || exists(filepath.Join(path, "pyvenv.cfg"))
}

func isEnvName(name string) bool {
	lower := strings.ToLower(name)
	if _, ok := envNames[lower]; ok {
		return true
	}
	for _, p := range []string{"venv_", "venv-", ".venv_", ".venv-"} {
		if strings.HasPrefix(lower, p) {
			return true
		}
	}
	return strings.HasSuffix(lower, "_venv") || strings.HasSuffix(lower, "-venv")
}

// IsExportArtifact reports whether a file name marks an export, dump or
// backup of data.
func IsExportArtifact(name string) bool {
	switch scan.Classify(name) {
	case model.Data, model.Archive:
		return exportRe.MatchString(name)
	}
	return false
}

// walkStructure finds embedded environments and node_modules directories,
// which the token scan never enters.
func (d *Doctor) walkStructure() (envs, nodeModules []string) {
	_ = filepath.WalkDir(d.root, func(p string, e fs.DirEntry, err error) error {
		if err != nil {
			if e != nil && e.IsDir() && p != d.root {
				return filepath.SkipDir
			}
			return nil
		}
		if !e.IsDir() || p == d.root {
			return nil
		}
		switch {
		case IsEmbeddedEnv(p, e.Name()):
			envs = append(envs, p)
			return filepath.SkipDir
		case e.Name() == "node_modules":
			nodeModules = append(nodeModules, p)
			return filepath.SkipDir
		case scan.SkipDir(p, e.Name()):
			return filepath.SkipDir
		}
		return nil
	})
	return envs, nodeModules
}

func (d *Doctor) checkEmbeddedEnvs(l *issueList, envs []string) {
	for _, env := range envs {
		size := dirSize(env)
		tokens := model.EstimateTokens(int(size))
		l.add(model.Issue{
			Severity: model.Critical,
			Title:    d.rel(env) + "/ inside project",
			Description: fmt.Sprintf("Virtual environment of %s (~%s tokens); keep it in %s",
				humanize.Bytes(uint64(size)), humanize.Comma(int64(tokens)), d.envDestination(env)),
			Path:         env,
			Paths:        []string{env},
			TokensImpact: tokens,
			Fix:          model.FixEmbeddedEnv,
		})
	}
}

func (d *Doctor) checkGarbage(l *issueList) {
	items, err := garbage.Scan(d.root, d.garbageOptions(true))
	if err != nil {
		d.log.Warn("garbage scan failed", zap.Error(err))
		return
	}
	if len(items) == 0 {
		return
	}
	var size int64
	paths := make([]string, 0, len(items))
	for _, it := range items {
		size += it.SizeBytes
		paths = append(paths, d.abs(it.Path))
	}
	l.add(model.Issue{
		Severity:     model.Warning,
		Title:        fmt.Sprintf("%d cache and temp items", len(items)),
		Description:  fmt.Sprintf("Caches, editor leftovers and rotated logs (%s)", humanize.Bytes(uint64(size))),
		Paths:        paths,
		TokensImpact: model.EstimateTokens(int(size)),
		Fix:          model.FixCaches,
	})
}

func (d *Doctor) checkLogDir(l *issueList) {
	dir := filepath.Join(d.root, logsDirName)
	if info, err := os.Stat(dir); err != nil || !info.IsDir() {
		return
	}
	files, size := 0, int64(0)
	_ = filepath.WalkDir(dir, func(_ string, e fs.DirEntry, err error) error {
		if err != nil || e.IsDir() || e.Name() == ".gitkeep" {
			return nil
		}
		if fi, err := e.Info(); err == nil {
			files++
			size += fi.Size()
		}
		return nil
	})
	if files == 0 {
		return
	}
	tokens := model.EstimateTokens(int(size))
	l.add(model.Issue{
		Severity:     model.Warning,
		Title:        fmt.Sprintf("logs/ folder (%d files)", files),
		Description:  fmt.Sprintf("Log files consuming ~%s tokens (%s)", humanize.Comma(int64(tokens)), humanize.Bytes(uint64(size))),
		Path:         dir,
		Paths:        []string{dir},
		TokensImpact: tokens,
		Fix:          model.FixLogDir,
	})
}

func (d *Doctor) checkLogFiles(l *issueList, res *scan.Result) {
	var paths []string
	tokens := 0
	for _, f := range res.Files {
		if f.Category != model.Log || strings.HasPrefix(f.Path, logsDirName+"/") || scan.IsProtected(f.Path) {
			continue
		}
		paths = append(paths, d.abs(f.Path))
		tokens += f.Tokens
	}
	if len(paths) == 0 {
		return
	}
	l.add(model.Issue{
		Severity:     model.Warning,
		Title:        fmt.Sprintf("%d scattered log files", len(paths)),
		Description:  fmt.Sprintf("Log files outside logs/ consuming ~%s tokens", humanize.Comma(int64(tokens))),
		Paths:        paths,
		TokensImpact: tokens,
		Fix:          model.FixLogFiles,
	})
}

func (d *Doctor) checkNodeModules(l *issueList, dirs []string) {
	if len(dirs) == 0 {
		return
	}
	if gi := d.ignoreFile(); gi != nil && gi.MatchesPath("node_modules/pkg/index.js") {
		return
	}
	var size int64
	for _, dir := range dirs {
		size += dirSize(dir)
	}
	l.add(model.Issue{
		Severity:    model.Warning,
		Title:       "node_modules/ inside project",
		Description: fmt.Sprintf("Node dependencies (%s) are not in %s", humanize.Bytes(uint64(size)), ignoreFileName),
		Path:        dirs[0],
		Paths:       dirs,
		Fix:         model.FixNodeModules,
	})
}

func (d *Doctor) checkLargeData(l *issueList, res *scan.Result) {
	var paths []string
	var size int64
	tokens := 0
	for _, f := range res.Files {
		if f.Category != model.Data || f.SizeBytes <= d.cfg.LargeDataBytes || scan.IsProtected(f.Path) {
			continue
		}
		if IsExportArtifact(path.Base(f.Path)) {
			continue
		}
		paths = append(paths, d.abs(f.Path))
		size += f.SizeBytes
		tokens += f.Tokens
	}
	if len(paths) == 0 {
		return
	}
	l.add(model.Issue{
		Severity: model.Warning,
		Title:    fmt.Sprintf("%d large data files (> %s)", len(paths), humanize.Bytes(uint64(d.cfg.LargeDataBytes))),
		Description: fmt.Sprintf("Data files (%s, ~%s tokens) belong outside the project",
			humanize.Bytes(uint64(size)), humanize.Comma(int64(tokens))),
		Paths:        paths,
		TokensImpact: tokens,
		Fix:          model.FixLargeData,
	})
}

func (d *Doctor) checkExports(l *issueList, res *scan.Result) {
	var paths []string
	var size int64
	tokens := 0
	for _, f := range res.Files {
		if !IsExportArtifact(path.Base(f.Path)) || scan.IsProtected(f.Path) {
			continue
		}
		paths = append(paths, d.abs(f.Path))
		size += f.SizeBytes
		tokens += f.Tokens
	}
	if len(paths) == 0 {
		return
	}
	l.add(model.Issue{
		Severity:     model.Critical,
		Title:        fmt.Sprintf("%d export/dump/backup artifacts", len(paths)),
		Description:  fmt.Sprintf("Exported data (%s) inside the project", humanize.Bytes(uint64(size))),
		Path:         paths[0],
		Paths:        paths,
		TokensImpact: tokens,
		Fix:          model.FixExportArtifacts,
	})
}

func (d *Doctor) checkDocs(l *issueList, res *scan.Result) {
	var paths []string
	tokens := 0
	for _, f := range res.Files {
		if _, ok := docExts[strings.ToLower(path.Ext(f.Path))]; !ok {
			continue
		}
		if f.Tokens <= d.cfg.DocTokenLimit || scan.IsProtected(f.Path) {
			continue
		}
		paths = append(paths, d.abs(f.Path))
		tokens += f.Tokens
	}
	if len(paths) == 0 {
		return
	}
	l.add(model.Issue{
		Severity: model.Warning,
		Title:    fmt.Sprintf("%d oversized docs (> %s tokens)", len(paths), humanize.Comma(int64(d.cfg.DocTokenLimit))),
		Description: fmt.Sprintf("Documentation and changelogs consuming ~%s tokens",
			humanize.Comma(int64(tokens))),
		Path:         paths[0],
		Paths:        paths,
		TokensImpact: tokens,
		Fix:          model.FixOversizedDocs,
	})
}

func (d *Doctor) checkScaffolding(l *issueList) {
	ignorePath := filepath.Join(d.root, ignoreFileName)
	if !exists(ignorePath) {
		l.add(model.Issue{
			Severity:    model.Suggestion,
			Title:       "Missing " + ignoreFileName,
			Description: "The assistant indexes everything, garbage included",
			Path:        ignorePath,
			Fix:         model.FixIgnoreFile,
		})
	} else if missing := d.missingIgnoreEntries(); len(missing) > 0 {
		lines := make([]string, 0, len(missing))
		for _, e := range missing {
			lines = append(lines, e.Line)
		}
		l.add(model.Issue{
			Severity:    model.Suggestion,
			Title:       fmt.Sprintf("%s misses %d standard entries", ignoreFileName, len(missing)),
			Description: "Not ignored: " + strings.Join(lines, " "),
			Path:        ignorePath,
			Fix:         model.FixIgnoreEntries,
		})
	}

	if !exists(filepath.Join(d.root, aiIncludeDir)) {
		l.add(model.Issue{
			Severity:    model.Suggestion,
			Title:       "Missing " + aiIncludeDir + "/ folder",
			Description: "Project conventions for the assistant are not written down",
			Path:        filepath.Join(d.root, aiIncludeDir),
			Fix:         model.FixAIInclude,
		})
	}

	scripts := filepath.Join(d.root, "scripts")
	if !exists(filepath.Join(scripts, "bootstrap.sh")) && !exists(filepath.Join(scripts, "bootstrap.ps1")) {
		l.add(model.Issue{
			Severity:    model.Suggestion,
			Title:       "Missing bootstrap script",
			Description: fmt.Sprintf("No scripts/bootstrap.sh to create the environment in ../%s/", venvsDirName),
			Path:        filepath.Join(scripts, "bootstrap.sh"),
			Fix:         model.FixBootstrap,
		})
	}
}

// ignoreFile compiles the project's ignore file, or returns nil.
func (d *Doctor) ignoreFile() *ignore.GitIgnore {
	gi, err := ignore.CompileIgnoreFile(filepath.Join(d.root, ignoreFileName))
	if err != nil {
		return nil
	}
	return gi
}

func (d *Doctor) missingIgnoreEntries() []ignoreEntry {
	gi := d.ignoreFile()
	if gi == nil {
		return ignoreEntries
	}
	var missing []ignoreEntry
	for _, e := range ignoreEntries {
		if !gi.MatchesPath(e.Probe) {
			missing = append(missing, e)
		}
	}
	return missing
}

// externalEnv looks for the project's environment outside the tree.
func (d *Doctor) externalEnv() (string, bool) {
	venvs := filepath.Join(filepath.Dir(d.root), venvsDirName)
	main := filepath.Join(venvs, d.name+"-main")
	if exists(main) {
		return main, true
	}
	entries, err := os.ReadDir(venvs)
	if err != nil {
		return "", false
	}
	names := make([]string, 0, len(entries))
	for _, e := range entries {
		if e.IsDir() && strings.HasPrefix(e.Name(), d.name+"-") {
			names = append(names, e.Name())
		}
	}
	if len(names) == 0 {
		return "", false
	}
	sort.Strings(names)
	return filepath.Join(venvs, names[0]), true
}

func exists(path string) bool {
	_, err := os.Lstat(path)
	return err == nil
}

func dirSize(dir string) int64 {
	var total int64
	_ = filepath.WalkDir(dir, func(_ string, e fs.DirEntry, err error) error {
		if err != nil || e.IsDir() {
			return nil
		}
		if fi, err := e.Info(); err == nil {
			total += fi.Size()
		}
		return nil
	})
	return total
}
