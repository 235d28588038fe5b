// Package schema infers the structure of data files without reading out any
// of their values: JSON shapes, delimited-table columns and SQLite tables.
package schema

import (
	"bufio"
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/phobologic/repotrim/internal/model"
)

const (
	defaultMaxDepth   = 3
	defaultSampleRows = 3
)

// Options bounds extraction.
type Options struct {
	MaxDepth   int // JSON nesting depth before "truncated"
	SampleRows int // CSV illustration rows
}

func (o Options) withDefaults() Options {
	if o.MaxDepth <= 0 {
		o.MaxDepth = defaultMaxDepth
	}
	if o.SampleRows <= 0 {
		o.SampleRows = defaultSampleRows
	}
	return o
}

// Supported reports whether Extract understands files with this name.
func Supported(name string) bool {
	switch strings.ToLower(filepath.Ext(name)) {
	case ".json", ".jsonl", ".ndjson", ".csv", ".tsv", ".db", ".sqlite", ".sqlite3":
		return true
	}
	return false
}

// Extract dispatches on the file extension. Unsupported files return
// (nil, nil); missing or unreadable files return an error.
func Extract(path string, opts Options) (*model.Schema, error) {
	opts = opts.withDefaults()

	info, err := os.Stat(path)
	if err != nil {
		return nil, err
	}
	if info.IsDir() {
		return nil, fmt.Errorf("%s: is a directory", path)
	}
	if !Supported(path) {
		return nil, nil
	}

	s := &model.Schema{
		File:      filepath.Base(path),
		SizeBytes: info.Size(),
	}

	switch strings.ToLower(filepath.Ext(path)) {
	case ".json":
		s.Type = "json"
		s.Shape, err = jsonShape(path, opts.MaxDepth)
	case ".jsonl", ".ndjson":
		s.Type = "jsonl"
		s.Shape, s.Records, err = jsonLinesShape(path, opts.MaxDepth)
	case ".csv":
		s.Type = "csv"
		s.Table, err = tableSchema(path, ',', opts.SampleRows)
	case ".tsv":
		s.Type = "csv"
		s.Table, err = tableSchema(path, '\t', opts.SampleRows)
	default:
		s.Type = "sqlite"
		s.Database, err = databaseSchema(path)
	}
	if err != nil {
		return nil, fmt.Errorf("%s: %w", s.File, err)
	}

	if s.Type == "sqlite" {
		s.EstimatedTokens = model.EstimateTokens(int(info.Size()))
	} else {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, err
		}
		s.EstimatedTokens = model.EstimateTextTokens(data)
	}
	return s, nil
}

// InferShape describes v structurally. Containers deeper than maxDepth
// collapse to "truncated"; arrays are summarized by their first element.
func InferShape(v any, depth, maxDepth int) *model.Shape {
	if depth >= maxDepth {
		return &model.Shape{Type: "truncated"}
	}

	switch val := v.(type) {
	case map[string]any:
		keys := make(map[string]*model.Shape, len(val))
		for k, child := range val {
			keys[k] = InferShape(child, depth+1, maxDepth)
		}
		return &model.Shape{Type: "object", Keys: keys}
	case []any:
		n := len(val)
		shape := &model.Shape{Type: "array", Length: &n}
		if n == 0 {
			shape.Items = &model.Shape{Type: "empty"}
		} else {
			shape.Items = InferShape(val[0], depth+1, maxDepth)
		}
		return shape
	}
	return &model.Shape{Type: ScalarType(v)}
}

// ScalarType names the JSON type of a decoded value.
func ScalarType(v any) string {
	switch val := v.(type) {
	case nil:
		return "null"
	case bool:
		return "boolean"
	case string:
		return "string"
	case json.Number:
		if _, err := val.Int64(); err == nil {
			return "integer"
		}
		return "number"
	case float64, float32:
		return "number"
	case int, int64, int32:
		return "integer"
	case map[string]any:
		return "object"
	case []any:
		return "array"
	}
	return "unknown"
}

func jsonShape(path string, maxDepth int) (*model.Shape, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	dec := json.NewDecoder(bufio.NewReader(f))
	dec.UseNumber()
	var v any
	if err := dec.Decode(&v); err != nil {
		return nil, fmt.Errorf("decoding json: %w", err)
	}
	return InferShape(v, 0, maxDepth), nil
}

// jsonLinesShape returns the shape of the first record and the exact number
// of non-blank records.
func jsonLinesShape(path string, maxDepth int) (*model.Shape, int, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, 0, err
	}
	defer f.Close()

	var (
		shape   *model.Shape
		records int
	)
	r := bufio.NewReader(f)
	for {
		line, err := r.ReadBytes('\n')
		if trimmed := bytes.TrimSpace(line); len(trimmed) > 0 {
			records++
			if shape == nil {
				dec := json.NewDecoder(bytes.NewReader(trimmed))
				dec.UseNumber()
				var v any
				if derr := dec.Decode(&v); derr == nil {
					shape = InferShape(v, 0, maxDepth)
				}
			}
		}
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, 0, err
		}
	}
	if shape == nil {
		shape = &model.Shape{Type: "empty"}
	}
	return shape, records, nil
}

func sortedKeys(m map[string]*model.Shape) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
