package doctor

import (
	"fmt"
	"io"

	"go.uber.org/zap"

	"github.com/phobologic/repotrim/internal/model"
)

// Mode selects how Run treats the issues it finds.
type Mode int

const (
	// ModeInteractive prints the report and a menu, then reads choices.
	ModeInteractive Mode = iota
	// ModeAuto fixes everything without asking, deep clean included.
	ModeAuto
	// ModeReport prints the report and never touches the filesystem.
	ModeReport
)

func (m Mode) String() string {
	switch m {
	case ModeInteractive:
		return "interactive"
	case ModeAuto:
		return "auto"
	case ModeReport:
		return "report"
	}
	return "unknown"
}

// IO carries the session streams. A nil In makes an interactive run
// degrade to a printed report.
type IO struct {
	In  LineReader
	Out io.Writer
}

// RunResult is what a Run produced.
type RunResult struct {
	Report *model.DiagnosticReport
	// Fix is set when fix-all ran, from auto mode or the A choice.
	Fix *FixResult
}

// Run diagnoses the project and then reports, fixes or starts a session
// depending on mode.
func (d *Doctor) Run(mode Mode, rio IO) (*RunResult, error) {
	out := rio.Out
	if out == nil {
		out = io.Discard
	}
	d.log.Debug("doctor run", zap.String("run_id", d.runID), zap.Stringer("mode", mode), zap.String("root", d.root))

	rep, err := d.Diagnose()
	if err != nil {
		return nil, err
	}
	res := &RunResult{Report: rep}
	fmt.Fprint(out, FormatReport(rep, mode == ModeInteractive && rio.In != nil))

	if mode == ModeReport || len(rep.Issues) == 0 {
		return res, nil
	}

	switch mode {
	case ModeAuto:
		res.Fix, err = d.FixAll(rep, FixAllOptions{})
		if err != nil {
			return res, err
		}
		fmt.Fprint(out, FormatResult(res.Fix))
		fmt.Fprint(out, FormatChanges(res.Fix.Changes, d.root))
		return res, nil
	case ModeInteractive:
		if rio.In == nil {
			warnColor.Fprintln(out, "\nCannot read input. Use --auto or --report instead.")
			return res, nil
		}
		s := NewSession(d, rep, rio.In, out)
		err := s.Loop()
		res.Report = s.Report()
		res.Fix = s.Result()
		return res, err
	}
	return res, fmt.Errorf("unknown mode %d", mode)
}
