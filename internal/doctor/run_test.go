package doctor

import (
	"bytes"
	"path/filepath"
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/phobologic/repotrim/internal/model"
)

// messyProject has at least one issue of every severity.
func messyProject(t *testing.T) string {
	t.Helper()
	root := newProject(t)
	writeFile(t, root, "main.py", "print('hi')\n")
	writeFile(t, root, "venv/bin/python", "#!/bin/sh\n")
	writeFile(t, root, "venv/pyvenv.cfg", "home = /usr/bin\n")
	writeFile(t, root, "scratch.tmp", "x")
	writeFile(t, root, "src/__pycache__/mod.cpython-312.pyc", "\x00\x01")
	writeFile(t, root, "logs/app.log", strings.Repeat("GET /\n", 100))
	writeFile(t, root, "data/export_2024.csv", "id,name\n1,mug\n")
	return root
}

func TestRunReportNeverModifies(t *testing.T) {
	t.Parallel()

	root := messyProject(t)
	parent := filepath.Dir(root)
	before := snapshot(t, parent)

	var out bytes.Buffer
	res, err := newDoctor(t, root).Run(ModeReport, IO{In: &scriptedInput{lines: []string{"A"}}, Out: &out})
	require.NoError(t, err)
	assert.Nil(t, res.Fix)
	assert.Positive(t, res.Report.Count(model.Critical))
	assert.Positive(t, res.Report.Count(model.Warning))
	assert.Positive(t, res.Report.Count(model.Suggestion))

	if diff := cmp.Diff(before, snapshot(t, parent)); diff != "" {
		t.Errorf("report mode changed files (-before +after):\n%s", diff)
	}
	assert.Contains(t, out.String(), "CRITICAL")
	assert.NotContains(t, out.String(), "[A] Fix ALL", "no menu in report mode")
}

func TestRunAuto(t *testing.T) {
	t.Parallel()

	root := messyProject(t)
	var out bytes.Buffer
	res, err := newDoctor(t, root).Run(ModeAuto, IO{Out: &out})
	require.NoError(t, err)
	require.NotNil(t, res.Fix)
	assert.True(t, res.Fix.Plan.DeepClean)
	require.NoError(t, res.Fix.DeepCleanErr)

	assert.Empty(t, res.Fix.After.Issues)
	assert.NoDirExists(t, filepath.Join(root, "venv"))
	assert.NoFileExists(t, filepath.Join(root, "data", "export_2024.csv"))
	assert.Contains(t, out.String(), "Before / after")
	assert.Contains(t, out.String(), "Changes (")
}

func TestRunInteractiveWithoutInput(t *testing.T) {
	t.Parallel()

	root := messyProject(t)
	before := snapshot(t, filepath.Dir(root))

	var out bytes.Buffer
	res, err := newDoctor(t, root).Run(ModeInteractive, IO{Out: &out})
	require.NoError(t, err)
	assert.Nil(t, res.Fix)
	assert.Contains(t, out.String(), "Cannot read input")
	assert.Equal(t, before, snapshot(t, filepath.Dir(root)))
}

func TestRunInteractive(t *testing.T) {
	t.Parallel()

	d, _ := bareProject(t)
	var out bytes.Buffer
	res, err := d.Run(ModeInteractive, IO{In: &scriptedInput{lines: []string{"3", "q"}}, Out: &out})
	require.NoError(t, err)
	assert.Nil(t, res.Fix)
	assert.Contains(t, out.String(), "[A] Fix ALL")
	assert.FileExists(t, filepath.Join(d.Root(), "scripts", "bootstrap.sh"))
	assert.Len(t, res.Report.Issues, 2)
}

func TestRunCleanProject(t *testing.T) {
	t.Parallel()

	root := newProject(t)
	writeFile(t, root, "main.py", "")
	scaffolded(t, root)

	var out bytes.Buffer
	res, err := newDoctor(t, root).Run(ModeAuto, IO{Out: &out})
	require.NoError(t, err)
	assert.Empty(t, res.Report.Issues)
	assert.Nil(t, res.Fix)
	assert.Contains(t, out.String(), "No issues found")
}
