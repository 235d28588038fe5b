// Package model defines core data structures shared by repotrim's components.
package model

import (
	"time"
	"unicode/utf8"
)

// EstimateTokens returns the heuristic token count for a text of chars
// characters: ceil(chars/4). It is never a real tokenizer.
func EstimateTokens(chars int) int {
	if chars <= 0 {
		return 0
	}
	return (chars + 3) / 4
}

// EstimateTextTokens counts characters in data (invalid UTF-8 bytes count as
// one character each) and returns EstimateTokens of that count.
func EstimateTextTokens(data []byte) int {
	return EstimateTokens(utf8.RuneCount(data))
}

// Category classifies a file by extension.
type Category string

const (
	Data    Category = "data"
	Log     Category = "log"
	Cache   Category = "cache"
	Image   Category = "image"
	Archive Category = "archive"
	Binary  Category = "binary"
	Other   Category = "other"
)

// CandidateFile is a scanned file with its estimated weight.
type CandidateFile struct {
	Path      string // Relative to project root, slash-separated
	SizeBytes int64
	Tokens    int
	Category  Category
	Schema    *Schema
}

// Schema describes the structure of a data file without any of its values.
// Exactly one of Shape, Table or Database is set, depending on Type.
type Schema struct {
	Type            string          `json:"type"`
	File            string          `json:"file"`
	SizeBytes       int64           `json:"size_bytes"`
	EstimatedTokens int             `json:"estimated_tokens"`
	Shape           *Shape          `json:"shape,omitempty"`
	Records         int             `json:"records,omitempty"`
	Table           *TableSchema    `json:"table,omitempty"`
	Database        *DatabaseSchema `json:"database,omitempty"`
}

// Shape is the inferred structure of a JSON value.
type Shape struct {
	Type   string            `json:"type"`
	Keys   map[string]*Shape `json:"keys,omitempty"`
	Length *int              `json:"length,omitempty"`
	Items  *Shape            `json:"items,omitempty"`
}

// TableSchema describes a delimited text file.
type TableSchema struct {
	Columns  []string          `json:"columns"`
	Types    map[string]string `json:"types"`
	RowCount int               `json:"row_count"`
	Sample   [][]string        `json:"sample"`
}

// DatabaseSchema describes an SQLite database.
type DatabaseSchema struct {
	Tables []Table `json:"tables"`
}

// Table is a single database table.
type Table struct {
	Name     string   `json:"name"`
	Columns  []Column `json:"columns"`
	RowCount int64    `json:"row_count"`
}

// Column is a single table column.
type Column struct {
	Name string `json:"name"`
	Type string `json:"type"`
	PK   bool   `json:"pk"`
}

// PatternType names a recognized file-access pattern.
type PatternType string

const (
	PatternOpen   PatternType = "open"
	PatternPath   PatternType = "path"
	PatternPandas PatternType = "pandas"
	PatternSQLite PatternType = "sqlite"
)

// PatchRecord is one rewritten expression.
type PatchRecord struct {
	File        string
	Pattern     PatternType
	Original    string
	Replacement string
	Line        int
}

// PatchResult is the outcome of patching one source file.
type PatchResult struct {
	File    string
	Success bool
	Records []PatchRecord
	Content string // Full patched text
	Err     error
}

// PatchReport aggregates the results of a project-level patch pass.
type PatchReport struct {
	FilesScanned int
	FilesPatched int
	TotalPatches int
	Results      []PatchResult
}

// UsageType classifies how a source line consumes a moved file.
type UsageType string

const (
	UsagePandas UsageType = "pandas"
	UsageJSON   UsageType = "json"
	UsageSQLite UsageType = "sqlite"
	UsageRead   UsageType = "read"
)

// FileUsage is a single source location referencing a moved file.
type FileUsage struct {
	File    string
	Line    int
	Snippet string
	Type    UsageType
}

// TracedFile bundles a moved file's schema with its usage sites.
type TracedFile struct {
	Original       string
	External       string
	Category       Category
	Tokens         int
	Schema         *Schema
	SchemaMarkdown string
	Usages         []FileUsage
}

// TraceMap is the cross-reference of every moved file in a project.
type TraceMap struct {
	Project   string
	Generated time.Time
	Files     []TracedFile
}

// TokensSaved sums the estimated tokens of every traced file.
func (tm *TraceMap) TokensSaved() int {
	total := 0
	for i := range tm.Files {
		total += tm.Files[i].Tokens
	}
	return total
}
