package doctor

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/chzyer/readline"

	"github.com/phobologic/repotrim/internal/docs"
	"github.com/phobologic/repotrim/internal/model"
)

// State is a step of the interactive session.
type State int

const (
	AwaitingChoice State = iota
	Fixing
	Done
)

func (s State) String() string {
	switch s {
	case AwaitingChoice:
		return "awaiting-choice"
	case Fixing:
		return "fixing"
	case Done:
		return "done"
	}
	return "unknown"
}

// LineReader yields one line of user input per call. It returns io.EOF
// when input is exhausted; *readline.Instance satisfies it.
type LineReader interface {
	Readline() (string, error)
}

type bufLineReader struct {
	sc *bufio.Scanner
}

// NewLineReader reads lines from r, for input that is not a terminal.
func NewLineReader(r io.Reader) LineReader {
	return &bufLineReader{sc: bufio.NewScanner(r)}
}

func (b *bufLineReader) Readline() (string, error) {
	if b.sc.Scan() {
		return b.sc.Text(), nil
	}
	if err := b.sc.Err(); err != nil {
		return "", err
	}
	return "", io.EOF
}

// Session is the interactive menu loop over a diagnostic report.
type Session struct {
	d      *Doctor
	in     LineReader
	out    io.Writer
	report *model.DiagnosticReport
	state  State
	result *FixResult
}

// NewSession starts a session in AwaitingChoice over rep.
func NewSession(d *Doctor, rep *model.DiagnosticReport, in LineReader, out io.Writer) *Session {
	return &Session{d: d, in: in, out: out, report: rep}
}

// State returns the current state.
func (s *Session) State() State { return s.state }

// Report returns the latest diagnosis, refreshed after each single fix.
func (s *Session) Report() *model.DiagnosticReport { return s.report }

// Result returns the fix-all result once the A choice ran.
func (s *Session) Result() *FixResult { return s.result }

// Loop reads choices until the session is done. Input that ends or cannot
// be read ends the session with a warning instead of an error.
func (s *Session) Loop() error {
	for s.state != Done {
		line, err := s.in.Readline()
		if err != nil {
			if errors.Is(err, io.EOF) || errors.Is(err, readline.ErrInterrupt) {
				warnColor.Fprintln(s.out, "\nCannot read input. Use --auto or --report instead.")
				s.state = Done
				return nil
			}
			return err
		}
		if err := s.Handle(line); err != nil {
			return err
		}
	}
	return nil
}

// Handle applies one line of input.
//
//	Q      quit
//	1..N   fix that issue, re-diagnose, show the refreshed report
//	A      fix everything, then quit
//	T      show the token breakdown
//	R      refresh the CLAUDE.md section
//
// Anything else is reported as invalid. Only a failed fix-all backup is
// returned as an error.
func (s *Session) Handle(input string) error {
	choice := strings.ToUpper(strings.TrimSpace(input))
	switch {
	case choice == "":
		return nil
	case choice == "Q":
		s.state = Done
	case choice == "T":
		fmt.Fprint(s.out, FormatBreakdown(s.report))
	case choice == "R":
		path, err := docs.Update(s.d.root)
		if err != nil {
			warnColor.Fprintf(s.out, "Could not update %s: %v\n", docs.FileName, err)
			return nil
		}
		okColor.Fprintf(s.out, "Updated %s\n", s.d.rel(path))
	case choice == "A":
		return s.fixAll()
	case isDigits(choice):
		id, _ := strconv.Atoi(choice)
		s.fixOne(id)
	default:
		warnColor.Fprintf(s.out, "Invalid choice %q\n", input)
	}
	return nil
}

func (s *Session) fixOne(id int) {
	is, ok := s.report.Issue(id)
	if !ok {
		warnColor.Fprintf(s.out, "Issue %d not found\n", id)
		return
	}
	s.state = Fixing
	fmt.Fprintf(s.out, "\n   Fixing: %s\n", is.Title)
	if err := s.d.Fix(is); err != nil {
		warnColor.Fprintf(s.out, "Could not fix %s: %v\n", is.Title, err)
	}

	rep, err := s.d.Diagnose()
	if err != nil {
		warnColor.Fprintf(s.out, "Diagnosis failed: %v\n", err)
	} else {
		s.report = rep
	}
	fmt.Fprint(s.out, FormatReport(s.report, true))
	s.state = AwaitingChoice
}

func (s *Session) fixAll() error {
	s.state = Fixing
	opts := FixAllOptions{}
	if NeedsDeepClean(s.report) && !s.confirmDeepClean() {
		opts.SkipDeepClean = true
	}
	res, err := s.d.FixAll(s.report, opts)
	s.result = res
	s.state = Done
	if err != nil {
		return err
	}
	fmt.Fprint(s.out, FormatResult(res))
	fmt.Fprint(s.out, FormatChanges(res.Changes, s.d.root))
	return nil
}

func (s *Session) confirmDeepClean() bool {
	fmt.Fprintln(s.out, "\nCritical issues call for a deep clean: data files move outside the project,")
	fmt.Fprintln(s.out, "sources are patched to use get_path(), and everything stays restorable.")
	fmt.Fprint(s.out, "Run deep clean first? [Y/n] ")
	line, err := s.in.Readline()
	if err != nil {
		return false
	}
	answer := strings.ToLower(strings.TrimSpace(line))
	return answer == "" || answer == "y" || answer == "yes"
}

func isDigits(s string) bool {
	if s == "" {
		return false
	}
	for _, r := range s {
		if r < '0' || r > '9' {
			return false
		}
	}
	return true
}
