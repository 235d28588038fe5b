// Package parse finds file-access calls in source files using tree-sitter.
package parse

import (
	"context"
	"sort"
	"strings"

	sitter "github.com/smacker/go-tree-sitter"

	"github.com/phobologic/repotrim/internal/lang"
	"github.com/phobologic/repotrim/internal/model"
)

var captureMap = map[string]model.PatternType{
	"call.open":   model.PatternOpen,
	"call.path":   model.PatternPath,
	"call.pandas": model.PatternPandas,
	"call.sqlite": model.PatternSQLite,
}

// Access is one recognized call whose first positional argument is a plain
// string literal. Offsets are byte offsets into the parsed source.
type Access struct {
	Pattern   model.PatternType
	Value     string // literal value, without quotes
	CallStart uint32
	CallEnd   uint32
	LitStart  uint32 // literal including its quotes
	LitEnd    uint32
	Line      int // 1-based
}

// ExtractAccesses parses source and returns every recognized access call in
// source order. Literals that are prefixed, escaped or otherwise not plain are
// dropped. The parser must be created for l.
func ExtractAccesses(l *lang.Language, parser *sitter.Parser, query *sitter.Query, source []byte) []Access {
	if len(source) == 0 {
		return nil
	}

	tree, err := parser.ParseCtx(context.Background(), nil, source)
	if err != nil {
		return nil
	}
	defer tree.Close()

	qc := sitter.NewQueryCursor()
	defer qc.Close()
	qc.Exec(query, tree.RootNode())

	var accesses []Access
	seen := make(map[uint32]bool)

	for {
		match, ok := qc.NextMatch()
		if !ok {
			break
		}
		match = qc.FilterPredicates(match, source)

		var (
			pathNode *sitter.Node
			callNode *sitter.Node
			pattern  model.PatternType
		)
		for _, c := range match.Captures {
			cname := query.CaptureNameForId(c.Index)
			if cname == "path" {
				pathNode = c.Node
			} else if p, ok := captureMap[cname]; ok {
				pattern = p
				callNode = c.Node
			}
		}
		if pathNode == nil || callNode == nil || seen[pathNode.StartByte()] {
			continue
		}

		value, ok := l.StringValue(pathNode, source)
		if !ok {
			continue
		}
		seen[pathNode.StartByte()] = true
		accesses = append(accesses, Access{
			Pattern:   pattern,
			Value:     value,
			CallStart: callNode.StartByte(),
			CallEnd:   callNode.EndByte(),
			LitStart:  pathNode.StartByte(),
			LitEnd:    pathNode.EndByte(),
			Line:      int(pathNode.StartPoint().Row) + 1,
		})
	}

	sort.Slice(accesses, func(i, j int) bool { return accesses[i].LitStart < accesses[j].LitStart })
	return accesses
}

// NormalizePath strips a leading "./" (repeated) and converts backslashes,
// so literals compare equal to manifest paths.
func NormalizePath(p string) string {
	p = strings.ReplaceAll(p, `\`, "/")
	for strings.HasPrefix(p, "./") {
		p = p[2:]
	}
	return p
}
