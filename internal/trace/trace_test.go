package trace

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
	"unicode/utf8"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/phobologic/repotrim/internal/model"
)

func TestFindUsagesClassifies(t *testing.T) {
	t.Parallel()

	root := t.TempDir()
	writeFile(t, root, "handlers/shop.py", strings.Join([]string{
		"import json",
		"",
		`with open(get_path("data/products.json")) as f:`,
		"    products = json.load(f)",
	}, "\n"))
	writeFile(t, root, "reports/sales.py", strings.Join([]string{
		"import pandas as pd",
		"",
		"",
		"",
		`df = pd.read_csv("data/sales.csv")`,
	}, "\n"))
	writeFile(t, root, "db.py", strings.Join([]string{
		"import sqlite3",
		`conn = sqlite3.connect("app.db")`,
	}, "\n"))
	writeFile(t, root, "run.sh", "cat data/products.json | head\n")

	sources, err := Sources(root, nil)
	require.NoError(t, err)
	assert.Equal(t, []string{"db.py", "handlers/shop.py", "reports/sales.py", "run.sh"}, sources)

	got := FindUsages(root, "data/products.json", sources)
	require.Len(t, got, 2)
	assert.Equal(t, model.FileUsage{File: "handlers/shop.py", Line: 3, Type: model.UsageJSON,
		Snippet: `with open(get_path("data/products.json")) as f:`}, got[0])
	assert.Equal(t, "run.sh", got[1].File)
	assert.Equal(t, model.UsageRead, got[1].Type)

	sales := FindUsages(root, "data/sales.csv", sources)
	require.Len(t, sales, 1)
	assert.Equal(t, model.UsagePandas, sales[0].Type)

	db := FindUsages(root, "app.db", sources)
	require.Len(t, db, 1)
	assert.Equal(t, model.UsageSQLite, db[0].Type)
}

func TestGenerateAndWrite(t *testing.T) {
	t.Parallel()

	root := t.TempDir()
	writeFile(t, root, "main.py", `open("data/products.json")`+"\n")
	writeFile(t, root, "README.md", "see data/products.json\n")
	writeFile(t, root, "config_paths.py", `FILES_MAP = {"data/products.json": "/x"}`+"\n")

	files := []model.MovedFile{
		{
			OriginalRelative: "data/products.json",
			ExternalRelative: "data/products.json",
			EstimatedTokens:  10000,
			Category:         model.Data,
			Schema:           &model.Schema{Type: "json", File: "products.json", Shape: &model.Shape{Type: "object"}},
		},
		{OriginalRelative: "logs/app.log", ExternalRelative: "logs/app.log", EstimatedTokens: 900, Category: model.Log},
	}
	now := func() time.Time { return time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC) }

	tm, err := Generate(root, files, Options{ExternalDir: "/ext/shop_data", Now: now})
	require.NoError(t, err)
	require.Len(t, tm.Files, 2)
	assert.Equal(t, 10900, tm.TokensSaved())
	assert.Equal(t, "/ext/shop_data/data/products.json", tm.Files[0].External)
	require.Len(t, tm.Files[0].Usages, 1, "README and resolver are not sources")
	assert.Equal(t, "main.py", tm.Files[0].Usages[0].File)
	assert.NotEmpty(t, tm.Files[0].SchemaMarkdown)
	assert.Empty(t, tm.Files[1].Usages)

	path, err := WriteMarkdown(tm, root)
	require.NoError(t, err)
	report := readFile(t, path)
	assert.Contains(t, report, "# AST Fox Trace Map")
	assert.Contains(t, report, "## `data/products.json`")
	assert.Contains(t, report, "get_path(\"data/products.json\")")
	assert.Contains(t, report, "`main.py:1` (read)")
	assert.Contains(t, report, "~10,900 tokens")
	assert.Contains(t, report, "No literal references found.")

	rulesPath, err := WriteRules(tm, root, 2000)
	require.NoError(t, err)
	rules := readFile(t, rulesPath)
	assert.Contains(t, rules, "```toon\nproject: ")
	assert.Contains(t, rules, "data/products.json,data,10000")
	assert.Contains(t, rules, ReportFileName)

	require.NoError(t, Remove(root))
	assert.NoFileExists(t, filepath.Join(root, ReportFileName))
	assert.NoDirExists(t, filepath.Join(root, ".cursor"))
	require.NoError(t, Remove(root), "removing twice is fine")
}

func TestCompactContextIsCapped(t *testing.T) {
	t.Parallel()

	tm := &model.TraceMap{Project: "shop"}
	for i := 0; i < 100; i++ {
		tm.Files = append(tm.Files, model.TracedFile{
			Original: strings.Repeat("d", 20) + "/file.json",
			Category: model.Data,
			Tokens:   1000,
		})
	}
	assert.LessOrEqual(t, len(CompactContext(tm, 500)), 500)
}

func TestRemoveKeepsOtherRules(t *testing.T) {
	t.Parallel()

	root := t.TempDir()
	writeFile(t, root, ".cursor/rules/style.md", "keep")
	_, err := WriteRules(&model.TraceMap{Project: "p"}, root, 0)
	require.NoError(t, err)

	require.NoError(t, Remove(root))
	assert.FileExists(t, filepath.Join(root, ".cursor", "rules", "style.md"))
	assert.NoFileExists(t, filepath.Join(root, ".cursor", "rules", "external_data.md"))
}

func writeFile(t *testing.T, root, rel, content string) {
	t.Helper()
	path := filepath.Join(root, filepath.FromSlash(rel))
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
}

func readFile(t *testing.T, path string) string {
	t.Helper()
	data, err := os.ReadFile(path)
	require.NoError(t, err)
	return string(data)
}

func TestSnippetKeepsRunesWhole(t *testing.T) {
	t.Parallel()

	got := snippet(`label = "` + strings.Repeat("é", 200) + `"`)
	assert.True(t, utf8.ValidString(got), "snippet must stay valid UTF-8")
	assert.Equal(t, maxSnippet, utf8.RuneCountInString(got))
	assert.True(t, strings.HasSuffix(got, "é..."))

	assert.Equal(t, "x = 1", snippet("  x   =  1 "))
}
