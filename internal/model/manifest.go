package model

import "time"

// MovedFile records one relocated file.
type MovedFile struct {
	OriginalRelative string   `json:"original_relative"`
	ExternalRelative string   `json:"external_relative"`
	SizeBytes        int64    `json:"size_bytes"`
	EstimatedTokens  int      `json:"estimated_tokens"`
	Category         Category `json:"category"`
	Schema           *Schema  `json:"schema"`
}

// Manifest is the single record of truth for a move; restore requires it.
// OriginalRelative is unique across Files.
type Manifest struct {
	Project        string      `json:"project"`
	Created        time.Time   `json:"created"`
	ToolkitVersion string      `json:"toolkit_version"`
	TotalTokens    int         `json:"total_tokens"`
	Files          []MovedFile `json:"files"`
}

// Index returns the position of the entry for original, or -1.
func (m *Manifest) Index(original string) int {
	for i := range m.Files {
		if m.Files[i].OriginalRelative == original {
			return i
		}
	}
	return -1
}

// Add appends mf unless an entry with the same original path exists.
// It reports whether the entry was added.
func (m *Manifest) Add(mf MovedFile) bool {
	if m.Index(mf.OriginalRelative) >= 0 {
		return false
	}
	m.Files = append(m.Files, mf)
	m.TotalTokens += mf.EstimatedTokens
	return true
}

// Remove deletes the entry for original, if present.
func (m *Manifest) Remove(original string) {
	i := m.Index(original)
	if i < 0 {
		return
	}
	m.TotalTokens -= m.Files[i].EstimatedTokens
	m.Files = append(m.Files[:i], m.Files[i+1:]...)
}

// Originals returns the set of original relative paths.
func (m *Manifest) Originals() map[string]struct{} {
	set := make(map[string]struct{}, len(m.Files))
	for i := range m.Files {
		set[m.Files[i].OriginalRelative] = struct{}{}
	}
	return set
}
