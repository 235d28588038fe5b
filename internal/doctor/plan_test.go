package doctor

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/phobologic/repotrim/internal/model"
)

func ids(issues []model.Issue) []int {
	out := make([]int, 0, len(issues))
	for _, is := range issues {
		out = append(out, is.ID)
	}
	return out
}

func TestNewPlanOrdersBySeverity(t *testing.T) {
	t.Parallel()

	rep := &model.DiagnosticReport{Issues: []model.Issue{
		{ID: 1, Severity: model.Suggestion, Fix: model.FixIgnoreFile},
		{ID: 2, Severity: model.Warning, Fix: model.FixCaches},
		{ID: 3, Severity: model.Critical, Fix: model.FixEmbeddedEnv},
		{ID: 4, Severity: model.Suggestion, Fix: model.FixBootstrap},
		{ID: 5, Severity: model.Warning, Fix: model.FixLogDir},
		{ID: 6, Severity: model.Critical, Fix: model.FixEmbeddedEnv},
	}}

	p := NewPlan(rep, true)
	assert.True(t, p.DeepClean)
	assert.Empty(t, p.Subsumed)
	if diff := cmp.Diff([]int{3, 6, 2, 5, 1, 4}, ids(p.Steps)); diff != "" {
		t.Errorf("step order mismatch (-want +got):\n%s", diff)
	}
}

func TestNewPlanSubsumption(t *testing.T) {
	t.Parallel()

	rep := &model.DiagnosticReport{Issues: []model.Issue{
		{ID: 1, Severity: model.Warning, Fix: model.FixCaches},
		{ID: 2, Severity: model.Warning, Fix: model.FixLargeData},
		{ID: 3, Severity: model.Critical, Fix: model.FixExportArtifacts},
		{ID: 4, Severity: model.Suggestion, Fix: model.FixAIInclude},
	}}

	tests := []struct {
		name      string
		deepClean bool
		wantDeep  bool
		steps     []int
		subsumed  []int
	}{
		{"with deep clean", true, true, []int{1, 4}, []int{2, 3}},
		{"declined", false, false, []int{3, 1, 2, 4}, nil},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := NewPlan(rep, tt.deepClean)
			assert.Equal(t, tt.wantDeep, p.DeepClean)
			assert.Equal(t, tt.steps, ids(p.Steps))
			if tt.subsumed == nil {
				assert.Empty(t, p.Subsumed)
			} else {
				assert.Equal(t, tt.subsumed, ids(p.Subsumed))
			}
		})
	}
}

func TestNeedsDeepClean(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name   string
		issues []model.Issue
		want   bool
	}{
		{"empty", nil, false},
		{"embedded env", []model.Issue{{Severity: model.Critical, Fix: model.FixEmbeddedEnv}}, true},
		{"exports", []model.Issue{{Severity: model.Critical, Fix: model.FixExportArtifacts}}, true},
		{"warnings only", []model.Issue{{Severity: model.Warning, Fix: model.FixLargeData}}, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, NeedsDeepClean(&model.DiagnosticReport{Issues: tt.issues}))
		})
	}
}

func TestFixAllNothingToDo(t *testing.T) {
	t.Parallel()

	root := newProject(t)
	d := newDoctor(t, root)
	rep := &model.DiagnosticReport{}

	res, err := d.FixAll(rep, FixAllOptions{})
	require.NoError(t, err)
	assert.Same(t, rep, res.After)
	assert.Empty(t, d.BackupPath(), "no backup without fixes")
}

func TestFixAllBackupFailureBlocksFixes(t *testing.T) {
	t.Parallel()

	root := newProject(t)
	writeFile(t, root, "main.py", "")
	writeFile(t, root, "scratch.tmp", "x")
	// A directory squatting on the backup path makes the final rename fail.
	squat := filepath.Join(filepath.Dir(root), "shop_backup_20260510_093000.tar.gz")
	writeFile(t, squat, "keep", "")
	before := snapshot(t, root)

	d := newDoctor(t, root)
	rep, err := d.Diagnose()
	require.NoError(t, err)
	require.NotEmpty(t, rep.Issues)

	_, err = d.FixAll(rep, FixAllOptions{})
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrBackup))
	assert.Empty(t, d.Changes())
	if diff := cmp.Diff(before, snapshot(t, root)); diff != "" {
		t.Errorf("project changed (-before +after):\n%s", diff)
	}

	entries, err := os.ReadDir(filepath.Dir(root))
	require.NoError(t, err)
	for _, e := range entries {
		assert.NotContains(t, e.Name(), ".backup-", "temporary archive left behind")
	}

	// Single fixes are blocked too.
	assert.ErrorIs(t, d.Fix(rep.Issues[0]), ErrBackup)
}

func TestFixAllAuto(t *testing.T) {
	t.Parallel()

	root := newProject(t)
	writeFile(t, root, "main.py", "print('hi')\n")
	writeFile(t, root, "scratch.tmp", "x")
	writeFile(t, root, "venv/bin/python", "#!/bin/sh\n")
	writeFile(t, root, "venv/pyvenv.cfg", "home = /usr/bin\n")

	d := newDoctor(t, root)
	rep, err := d.Diagnose()
	require.NoError(t, err)

	res, err := d.FixAll(rep, FixAllOptions{})
	require.NoError(t, err)
	assert.True(t, res.Plan.DeepClean)
	require.NoError(t, res.DeepCleanErr)
	assert.FileExists(t, res.Backup)

	// Outcomes never go back to a more severe issue.
	for i := 1; i < len(res.Outcomes); i++ {
		assert.LessOrEqual(t, res.Outcomes[i-1].Issue.Severity, res.Outcomes[i].Issue.Severity)
	}
	assert.Equal(t, len(res.Outcomes), res.Fixed())

	assert.NoDirExists(t, filepath.Join(root, "venv"))
	assert.NoFileExists(t, filepath.Join(root, "scratch.tmp"))
	assert.FileExists(t, filepath.Join(root, ignoreFileName))
	assert.FileExists(t, filepath.Join(root, "CLAUDE.md"))
	assert.Equal(t, filepath.Join(root, "CLAUDE.md"), res.DocsPath)

	require.NotNil(t, res.After)
	assert.Empty(t, res.After.Issues)
	assert.True(t, res.After.ExternalEnv)
	assert.NotEmpty(t, res.Changes)
	assert.LessOrEqual(t, res.After.TotalTokens, res.Before.TotalTokens+model.EstimateTokens(4000),
		"only the small generated docs are added")
}
