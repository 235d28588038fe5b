// Package lang provides a language registry mapping file extensions to
// tree-sitter languages and their embedded file-access queries.
package lang

import (
	"context"
	"embed"
	"fmt"
	"regexp"
	"strings"
	"sync"

	sitter "github.com/smacker/go-tree-sitter"
)

//go:embed queries/*.scm
var queryFS embed.FS

var whitespaceRe = regexp.MustCompile(`\s+`)

// Language holds tree-sitter configuration for a supported language.
type Language struct {
	Name       string
	Extensions []string
	lang       *sitter.Language
	queryOnce  sync.Once
	query      *sitter.Query
	queryErr   error

	// StringValue returns the value of a plain string literal node. ok is
	// false for prefixed, escaped, interpolated or multi-line literals.
	StringValue func(node *sitter.Node, source []byte) (value string, ok bool)

	// ImportOffset returns the byte offset where a new module-level import
	// belongs: after the module docstring and the leading import block.
	ImportOffset func(root *sitter.Node, source []byte) uint32

	// HasImport reports whether the module already imports name from module.
	HasImport func(root *sitter.Node, source []byte, module, name string) bool
}

// GetLanguage returns the tree-sitter Language pointer.
func (l *Language) GetLanguage() *sitter.Language {
	return l.lang
}

// NewParser creates a fresh tree-sitter parser for this language.
// Each goroutine must use its own parser (not thread-safe).
func (l *Language) NewParser() *sitter.Parser {
	p := sitter.NewParser()
	p.SetLanguage(l.lang)
	return p
}

// Parse parses source and reports whether the tree is free of syntax errors.
// The caller must Close the returned tree.
func (l *Language) Parse(source []byte) (tree *sitter.Tree, valid bool, err error) {
	tree, err = l.NewParser().ParseCtx(context.Background(), nil, source)
	if err != nil {
		return nil, false, err
	}
	return tree, !tree.RootNode().HasError(), nil
}

// Valid reports whether source parses without syntax errors.
func (l *Language) Valid(source []byte) bool {
	tree, ok, err := l.Parse(source)
	if err != nil {
		return false
	}
	tree.Close()
	return ok
}

// GetAccessQuery returns the compiled file-access query (safe to share
// across goroutines).
func (l *Language) GetAccessQuery() (*sitter.Query, error) {
	l.queryOnce.Do(func() {
		data, err := queryFS.ReadFile(fmt.Sprintf("queries/%s.scm", l.Name))
		if err != nil {
			l.queryErr = fmt.Errorf("reading query file: %w", err)
			return
		}
		q, err := sitter.NewQuery(data, l.lang)
		if err != nil {
			l.queryErr = fmt.Errorf("compiling query: %w", err)
			return
		}
		l.query = q
	})
	return l.query, l.queryErr
}

// Languages maps language names to their configuration.
// Populated by init() functions in per-language files.
var Languages = map[string]*Language{}

// extensionMap is built lazily after all init() functions have run.
var extensionMap map[string]string
var extensionOnce sync.Once

func getExtensionMap() map[string]string {
	extensionOnce.Do(func() {
		extensionMap = make(map[string]string)
		for _, l := range Languages {
			for _, ext := range l.Extensions {
				extensionMap[ext] = l.Name
			}
		}
	})
	return extensionMap
}

// ForExtension returns the language name for a file extension, or "" if unsupported.
func ForExtension(ext string) string {
	return getExtensionMap()[ext]
}

// ForFile returns the language for a file name, or nil if unsupported.
func ForFile(name string) *Language {
	i := strings.LastIndexByte(name, '.')
	if i < 0 {
		return nil
	}
	return Languages[ForExtension(strings.ToLower(name[i:]))]
}

// NodeText returns the source text of a tree-sitter node.
func NodeText(node *sitter.Node, source []byte) string {
	return string(source[node.StartByte():node.EndByte()])
}

// CollapseWhitespace replaces runs of whitespace with a single space and trims.
func CollapseWhitespace(s string) string {
	return strings.TrimSpace(whitespaceRe.ReplaceAllString(s, " "))
}
