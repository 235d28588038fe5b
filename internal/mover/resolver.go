package mover

import (
	"bytes"
	"os"
	"path/filepath"
	"strconv"
	"text/template"

	"github.com/phobologic/repotrim/internal/model"
	"github.com/phobologic/repotrim/internal/scan"
)

var resolverTmpl = template.Must(template.New("resolver").Funcs(template.FuncMap{
	"py": strconv.Quote,
}).Parse(`"""Path resolver generated by repotrim. Do not edit.

Heavy files of {{.Project}} were moved outside the project to keep AI
context small. Code reaches them through get_path("<original path>").
Run "repotrim restore" to move everything back.
"""
from pathlib import Path

PROJECT_ROOT = Path(__file__).resolve().parent

FILES_MAP = {
{{- range .Entries}}
    {{py .Original}}: {{py .Absolute}},
{{- end}}
}


def get_path(name, check_exists=False):
    """Return the current location of name, a project-relative path.

    Unmapped names resolve against the project root and never raise.
    With check_exists, a mapped file that is missing raises FileNotFoundError.
    """
    key = str(name).replace("\\", "/")
    while key.startswith("./"):
        key = key[2:]
    mapped = FILES_MAP.get(key)
    if mapped is None:
        return str(PROJECT_ROOT / key)
    if check_exists and not Path(mapped).exists():
        raise FileNotFoundError(
            "%s was moved to %s but is missing; run repotrim restore" % (key, mapped)
        )
    return mapped
`))

type resolverEntry struct {
	Original string
	Absolute string
}

// RenderResolver returns the Python source of the resolver module mapping
// every manifest entry to its absolute location under ext.
func RenderResolver(ext string, m *model.Manifest) ([]byte, error) {
	data := struct {
		Project string
		Entries []resolverEntry
	}{Project: m.Project}
	for _, f := range m.Files {
		data.Entries = append(data.Entries, resolverEntry{
			Original: f.OriginalRelative,
			Absolute: filepath.ToSlash(filepath.Join(ext, filepath.FromSlash(f.ExternalRelative))),
		})
	}
	var buf bytes.Buffer
	if err := resolverTmpl.Execute(&buf, data); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// WriteResolver writes config_paths.py at the project root.
func WriteResolver(root, ext string, m *model.Manifest) error {
	src, err := RenderResolver(ext, m)
	if err != nil {
		return err
	}
	return os.WriteFile(filepath.Join(root, scan.ResolverFileName), src, 0o644)
}
