package lang

import (
	"strings"

	sitter "github.com/smacker/go-tree-sitter"
	"github.com/smacker/go-tree-sitter/python"
)

func init() {
	Languages["python"] = &Language{
		Name:         "python",
		Extensions:   []string{".py"},
		lang:         python.GetLanguage(),
		StringValue:  pythonStringValue,
		ImportOffset: pythonImportOffset,
		HasImport:    pythonHasImport,
	}
}

// pythonStringValue accepts only unprefixed, single-line, escape-free
// literals such as "data/x.json" or 'data/x.json'.
func pythonStringValue(node *sitter.Node, source []byte) (string, bool) {
	if node == nil || node.Type() != "string" {
		return "", false
	}
	text := NodeText(node, source)
	if len(text) < 2 {
		return "", false
	}
	q := text[0]
	if q != '"' && q != '\'' {
		// Prefixed: f"", b"", r"", u"".
		return "", false
	}
	if strings.HasPrefix(text, `"""`) || strings.HasPrefix(text, `'''`) {
		return "", false
	}
	if text[len(text)-1] != q {
		return "", false
	}
	inner := text[1 : len(text)-1]
	if strings.ContainsAny(inner, "\\\n\r") || strings.IndexByte(inner, q) >= 0 {
		return "", false
	}
	return inner, true
}

func pythonImportOffset(root *sitter.Node, source []byte) uint32 {
	var (
		offset     uint32
		commentEnd uint32
		seenCode   bool
	)
loop:
	for i := 0; i < int(root.NamedChildCount()); i++ {
		child := root.NamedChild(i)
		switch child.Type() {
		case "comment":
			if !seenCode {
				commentEnd = child.EndByte()
			}
			continue
		case "import_statement", "import_from_statement", "future_import_statement":
			offset = child.EndByte()
			seenCode = true
			continue
		case "expression_statement":
			if !seenCode && isDocstring(child) {
				offset = child.EndByte()
				seenCode = true
				continue
			}
		}
		break loop
	}
	if offset == 0 {
		return commentEnd
	}
	return offset
}

func isDocstring(stmt *sitter.Node) bool {
	return stmt.NamedChildCount() == 1 && stmt.NamedChild(0).Type() == "string"
}

func pythonHasImport(root *sitter.Node, source []byte, module, name string) bool {
	for i := 0; i < int(root.NamedChildCount()); i++ {
		child := root.NamedChild(i)
		if child.Type() != "import_from_statement" {
			continue
		}
		mod := child.ChildByFieldName("module_name")
		if mod == nil || NodeText(mod, source) != module {
			continue
		}
		for j := 0; j < int(child.NamedChildCount()); j++ {
			n := child.NamedChild(j)
			switch n.Type() {
			case "wildcard_import":
				return true
			case "dotted_name":
				if n.StartByte() != mod.StartByte() && NodeText(n, source) == name {
					return true
				}
			case "aliased_import":
				if alias := n.ChildByFieldName("alias"); alias != nil && NodeText(alias, source) == name {
					return true
				}
			}
		}
	}
	return false
}
