package model

// Severity ranks an issue. Lower values are fixed first.
type Severity int

const (
	Critical Severity = iota
	Warning
	Suggestion
)

func (s Severity) String() string {
	switch s {
	case Critical:
		return "CRITICAL"
	case Warning:
		return "WARNING"
	case Suggestion:
		return "SUGGESTION"
	}
	return "UNKNOWN"
}

// FixKind names the remedy for an issue. The set is closed; the doctor maps
// every kind to exactly one fix routine.
type FixKind int

const (
	FixNone FixKind = iota
	FixEmbeddedEnv
	FixCaches
	FixLogDir
	FixLogFiles
	FixNodeModules
	FixLargeData
	FixExportArtifacts
	FixOversizedDocs
	FixIgnoreFile
	FixIgnoreEntries
	FixAIInclude
	FixBootstrap
)

var fixKindNames = [...]string{
	FixNone:            "none",
	FixEmbeddedEnv:     "embedded-env",
	FixCaches:          "caches",
	FixLogDir:          "log-dir",
	FixLogFiles:        "log-files",
	FixNodeModules:     "node-modules",
	FixLargeData:       "large-data",
	FixExportArtifacts: "export-artifacts",
	FixOversizedDocs:   "oversized-docs",
	FixIgnoreFile:      "ignore-file",
	FixIgnoreEntries:   "ignore-entries",
	FixAIInclude:       "ai-include",
	FixBootstrap:       "bootstrap",
}

func (k FixKind) String() string {
	if k >= 0 && int(k) < len(fixKindNames) {
		return fixKindNames[k]
	}
	return "unknown"
}

// Mutating reports whether applying the fix changes the filesystem.
func (k FixKind) Mutating() bool {
	return k != FixNone
}

// SubsumedByDeepClean reports whether a deep clean already remedies issues of
// this kind, so they must not be fixed a second time.
func (k FixKind) SubsumedByDeepClean() bool {
	return k == FixLargeData || k == FixExportArtifacts
}

// Issue is one diagnosed hygiene problem.
type Issue struct {
	ID           int
	Severity     Severity
	Title        string
	Description  string
	Path         string   // Absolute path of the primary offender, if any
	Paths        []string // Every affected path, absolute
	TokensImpact int
	Fix          FixKind
}

// ChangeAction is the kind of mutation a ChangeRecord describes.
type ChangeAction string

const (
	ActionMoved        ChangeAction = "moved"
	ActionArchived     ChangeAction = "archived"
	ActionCreated      ChangeAction = "created"
	ActionRestructured ChangeAction = "restructured"
)

// ChangeRecord is one entry in a doctor run's append-only audit log.
type ChangeRecord struct {
	Action      ChangeAction
	ItemType    string
	Source      string
	Destination string
	SizeBytes   int64
	Description string
}

// FileTokens is the token weight of one project file.
type FileTokens struct {
	Path   string // Relative to project root
	Tokens int
}

// Weight classifies a project's overall size.
type Weight string

const (
	WeightOK       Weight = "OK"
	WeightHigh     Weight = "HIGH"
	WeightCritical Weight = "CRITICAL"
)

// DiagnosticReport is the result of one diagnosis run.
type DiagnosticReport struct {
	RunID           string
	ProjectPath     string
	ProjectName     string
	TotalTokens     int
	TotalBytes      int64
	Weight          Weight
	Issues          []Issue
	FileTokens      []FileTokens // Sorted by tokens, descending
	ExternalEnv     bool
	ExternalEnvPath string
	Changes         []ChangeRecord
}

// Count returns the number of issues with severity s.
func (r *DiagnosticReport) Count(s Severity) int {
	n := 0
	for i := range r.Issues {
		if r.Issues[i].Severity == s {
			n++
		}
	}
	return n
}

// Issue returns the issue with the given id.
func (r *DiagnosticReport) Issue(id int) (Issue, bool) {
	for _, is := range r.Issues {
		if is.ID == id {
			return is, true
		}
	}
	return Issue{}, false
}

// HighTokenFiles returns files above min tokens, heaviest first.
func (r *DiagnosticReport) HighTokenFiles(min int) []FileTokens {
	var out []FileTokens
	for _, ft := range r.FileTokens {
		if ft.Tokens > min {
			out = append(out, ft)
		}
	}
	return out
}
