package scan

import (
	"path"
	"regexp"
	"strings"

	"github.com/phobologic/repotrim/internal/model"
)

var categories = map[string]model.Category{
	".json":    model.Data,
	".jsonl":   model.Data,
	".ndjson":  model.Data,
	".csv":     model.Data,
	".tsv":     model.Data,
	".xml":     model.Data,
	".parquet": model.Data,
	".feather": model.Data,
	".db":      model.Data,
	".sqlite":  model.Data,
	".sqlite3": model.Data,
	".sql":     model.Data,
	".xls":     model.Data,
	".xlsx":    model.Data,
	".pkl":     model.Data,
	".pickle":  model.Data,
	".npy":     model.Data,
	".npz":     model.Data,
	".h5":      model.Data,
	".log":     model.Log,
	".out":     model.Log,
	".pyc":     model.Cache,
	".pyo":     model.Cache,
	".cache":   model.Cache,
	".png":     model.Image,
	".jpg":     model.Image,
	".jpeg":    model.Image,
	".gif":     model.Image,
	".bmp":     model.Image,
	".webp":    model.Image,
	".svg":     model.Image,
	".ico":     model.Image,
	".tiff":    model.Image,
	".zip":     model.Archive,
	".tar":     model.Archive,
	".gz":      model.Archive,
	".tgz":     model.Archive,
	".bz2":     model.Archive,
	".xz":      model.Archive,
	".7z":      model.Archive,
	".rar":     model.Archive,
	".exe":     model.Binary,
	".dll":     model.Binary,
	".so":      model.Binary,
	".dylib":   model.Binary,
	".bin":     model.Binary,
	".dat":     model.Binary,
	".whl":     model.Binary,
	".o":       model.Binary,
	".a":       model.Binary,
}

var rotatedLogRe = regexp.MustCompile(`\.log\.(\d+|old)$|\.\d+\.log$`)

// IsRotatedLog reports whether name is a rotated log: app.log.1,
// app.log.old or app.1.log.
func IsRotatedLog(name string) bool {
	return rotatedLogRe.MatchString(strings.ToLower(name))
}

var protectedNames = map[string]struct{}{
	"license":           {},
	"license.md":        {},
	"license.txt":       {},
	"package.json":      {},
	"package-lock.json": {},
	"yarn.lock":         {},
	"pnpm-lock.yaml":    {},
	"poetry.lock":       {},
	"pipfile":           {},
	"pipfile.lock":      {},
	"pyproject.toml":    {},
	"setup.py":          {},
	"setup.cfg":         {},
	"main.py":           {},
	"app.py":            {},
	"manage.py":         {},
	"__init__.py":       {},
	"__main__.py":       {},
	"tsconfig.json":     {},
	"composer.json":     {},
	"composer.lock":     {},
	"cargo.lock":        {},
	"go.mod":            {},
	"go.sum":            {},
	"dockerfile":        {},
	"claude.md":         {},
	"ast_fox_trace.md":  {},
	".repotrim.yaml":    {},
	ResolverFileName:    {},
}

var protectedSegments = map[string]struct{}{
	"_AI_INCLUDE": {},
	".cursor":     {},
	".github":     {},
}

// Classify returns the category for a file name.
func Classify(name string) model.Category {
	lower := strings.ToLower(name)
	if c, ok := categories[path.Ext(lower)]; ok {
		return c
	}
	if IsRotatedLog(lower) {
		return model.Log
	}
	return model.Other
}

// IsProtected reports whether rel (slash-separated, relative to the project
// root) names a file that must stay in place: READMEs, licenses, lockfiles,
// package manifests, entry points, repotrim's own generated files, and
// anything under an AI-context folder.
func IsProtected(rel string) bool {
	rel = strings.TrimPrefix(rel, "./")
	segments := strings.Split(rel, "/")
	for _, s := range segments[:len(segments)-1] {
		if _, ok := protectedSegments[s]; ok {
			return true
		}
	}

	base := strings.ToLower(segments[len(segments)-1])
	if strings.HasPrefix(base, "readme") || strings.HasPrefix(base, "requirements") {
		return true
	}
	_, ok := protectedNames[base]
	return ok
}
