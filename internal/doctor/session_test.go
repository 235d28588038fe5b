package doctor

import (
	"bytes"
	"io"
	"path/filepath"
	"strings"
	"testing"

	"github.com/chzyer/readline"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/phobologic/repotrim/internal/model"
)

// scriptedInput replays lines, then returns end.
type scriptedInput struct {
	lines []string
	end   error
}

func (s *scriptedInput) Readline() (string, error) {
	if len(s.lines) == 0 {
		if s.end == nil {
			return "", io.EOF
		}
		return "", s.end
	}
	line := s.lines[0]
	s.lines = s.lines[1:]
	return line, nil
}

// bareProject has only the scaffolding suggestions: ignore file, include
// folder and bootstrap script, numbered 1 to 3.
func bareProject(t *testing.T) (*Doctor, *model.DiagnosticReport) {
	t.Helper()
	root := newProject(t)
	writeFile(t, root, "main.py", "print('hi')\n")
	d := newDoctor(t, root)
	rep, err := d.Diagnose()
	require.NoError(t, err)
	require.Len(t, rep.Issues, 3)
	return d, rep
}

func TestSessionTransitions(t *testing.T) {
	t.Parallel()

	d, rep := bareProject(t)
	var out bytes.Buffer
	s := NewSession(d, rep, &scriptedInput{}, &out)
	assert.Equal(t, AwaitingChoice, s.State())

	steps := []struct {
		input string
		state State
		shown string
	}{
		{"", AwaitingChoice, ""},
		{"x", AwaitingChoice, "Invalid choice"},
		{"99", AwaitingChoice, "Issue 99 not found"},
		{"t", AwaitingChoice, "Token breakdown"},
		{"1", AwaitingChoice, "Fixing: Missing .cursorignore"},
		{"r", AwaitingChoice, "Updated CLAUDE.md"},
		{"Q", Done, ""},
	}
	for _, st := range steps {
		out.Reset()
		require.NoError(t, s.Handle(st.input), "input %q", st.input)
		assert.Equal(t, st.state, s.State(), "input %q", st.input)
		if st.shown != "" {
			assert.Contains(t, out.String(), st.shown, "input %q", st.input)
		}
	}

	// Ids were refreshed after the fix: what was issue 2 is now issue 1.
	require.Len(t, s.Report().Issues, 2)
	first, ok := s.Report().Issue(1)
	require.True(t, ok)
	assert.Equal(t, model.FixAIInclude, first.Fix)
	assert.FileExists(t, filepath.Join(d.Root(), ignoreFileName))
	assert.FileExists(t, filepath.Join(d.Root(), "CLAUDE.md"))
	assert.Nil(t, s.Result())
}

func TestSessionFixAll(t *testing.T) {
	t.Parallel()

	d, rep := bareProject(t)
	var out bytes.Buffer
	s := NewSession(d, rep, &scriptedInput{lines: []string{"a"}}, &out)

	require.NoError(t, s.Loop())
	assert.Equal(t, Done, s.State())
	require.NotNil(t, s.Result())
	assert.Equal(t, 3, s.Result().Fixed())
	assert.Empty(t, s.Result().After.Issues)
	assert.Contains(t, out.String(), "Fixed 3 of 3 issues")
	assert.NotContains(t, out.String(), "Run deep clean first?")
}

func TestSessionConfirmsDeepClean(t *testing.T) {
	t.Parallel()

	root := newProject(t)
	writeFile(t, root, "main.py", "")
	writeFile(t, root, "venv/bin/python", "#!/bin/sh\n")
	writeFile(t, root, "venv/pyvenv.cfg", "home = /usr/bin\n")
	d := newDoctor(t, root)
	rep, err := d.Diagnose()
	require.NoError(t, err)

	var out bytes.Buffer
	s := NewSession(d, rep, &scriptedInput{lines: []string{"A", "n"}}, &out)
	require.NoError(t, s.Loop())

	assert.Contains(t, out.String(), "Run deep clean first?")
	require.NotNil(t, s.Result())
	assert.False(t, s.Result().Plan.DeepClean)
	assert.Nil(t, s.Result().DeepClean)
	assert.NoDirExists(t, filepath.Join(root, "venv"), "the environment is still relocated")
}

func TestSessionDegradesWithoutInput(t *testing.T) {
	t.Parallel()

	for name, end := range map[string]error{"eof": io.EOF, "interrupt": readline.ErrInterrupt} {
		t.Run(name, func(t *testing.T) {
			d, rep := bareProject(t)
			var out bytes.Buffer
			s := NewSession(d, rep, &scriptedInput{lines: []string{"t"}, end: end}, &out)

			require.NoError(t, s.Loop())
			assert.Equal(t, Done, s.State())
			assert.Contains(t, out.String(), "Cannot read input. Use --auto or --report instead.")
			assert.Empty(t, d.BackupPath())
		})
	}
}

func TestNewLineReader(t *testing.T) {
	t.Parallel()

	r := NewLineReader(strings.NewReader("1\nq\n"))
	for _, want := range []string{"1", "q"} {
		got, err := r.Readline()
		require.NoError(t, err)
		assert.Equal(t, want, got)
	}
	_, err := r.Readline()
	assert.ErrorIs(t, err, io.EOF)
}
