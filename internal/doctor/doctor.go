// Package doctor diagnoses the context hygiene of a project and remedies
// what it finds.
//
// A run has three phases:
//
//   - Diagnose walks the project once for token accounting and runs every
//     checker, producing a [model.DiagnosticReport] whose issues are numbered
//     from 1 in discovery order.
//
//   - FixAll backs the project up, runs the deep clean pipeline first when a
//     critical issue calls for it, then fixes the remaining issues strictly
//     by severity. A failing fix is reported and never stops the others.
//
//   - The project is diagnosed again so the report can show a before and
//     after delta, and the CLAUDE.md section is refreshed.
//
// Each fix is one value of the closed [model.FixKind] enum; [Doctor.Fix]
// maps kinds to routines with an exhaustive switch.
package doctor

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"github.com/fatih/color"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/phobologic/repotrim/internal/config"
	"github.com/phobologic/repotrim/internal/logging"
	"github.com/phobologic/repotrim/internal/model"
)

const (
	venvsDirName    = "_venvs"
	deletionDirName = "_FOR_DELETION"
	aiIncludeDir    = "_AI_INCLUDE"
	ignoreFileName  = ".cursorignore"
	logsDirName     = "logs"

	stampLayout = "20060102_150405"
)

// ErrBackup means the pre-fix backup could not be written. No fix runs
// after it.
var ErrBackup = errors.New("backup failed")

// Options configures a Doctor.
type Options struct {
	Config  config.Config
	Version string
	// Out receives the colored status lines printed while fixing. Nil
	// discards them.
	Out    io.Writer
	Logger *zap.Logger
	Now    func() time.Time
}

// Doctor diagnoses and fixes one project. Its change log and backup are
// scoped to the Doctor's lifetime, which is one run.
type Doctor struct {
	root    string
	name    string
	cfg     config.Config
	version string
	out     io.Writer
	log     *zap.Logger
	now     func() time.Time

	runID   string
	started time.Time
	backup  string
	changes []model.ChangeRecord
}

// New returns a Doctor for the project at root.
func New(root string, opts Options) (*Doctor, error) {
	abs, err := filepath.Abs(root)
	if err != nil {
		return nil, err
	}
	info, err := os.Stat(abs)
	if err != nil {
		return nil, fmt.Errorf("project path: %w", err)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("%s: not a directory", abs)
	}

	now := opts.Now
	if now == nil {
		now = time.Now
	}
	out := opts.Out
	if out == nil {
		out = io.Discard
	}
	return &Doctor{
		root:    abs,
		name:    filepath.Base(abs),
		cfg:     opts.Config,
		version: opts.Version,
		out:     out,
		log:     logging.OrNop(opts.Logger),
		now:     now,
		runID:   uuid.NewString(),
		started: now(),
	}, nil
}

// Root returns the absolute project path.
func (d *Doctor) Root() string { return d.root }

// RunID identifies this run in reports and logs.
func (d *Doctor) RunID() string { return d.runID }

// BackupPath returns the backup written during this run, if any.
func (d *Doctor) BackupPath() string { return d.backup }

// Changes returns a copy of the run's change log.
func (d *Doctor) Changes() []model.ChangeRecord {
	return append([]model.ChangeRecord(nil), d.changes...)
}

func (d *Doctor) record(c model.ChangeRecord) {
	d.changes = append(d.changes, c)
	d.log.Debug("change",
		zap.String("action", string(c.Action)),
		zap.String("source", c.Source),
		zap.String("destination", c.Destination))
}

// archiveDir receives whatever this run moves out of the project without a
// manifest: caches, logs, oversized docs.
func (d *Doctor) archiveDir() string {
	return filepath.Join(filepath.Dir(d.root), deletionDirName, d.name, "doctor_"+d.started.Format(stampLayout))
}

func (d *Doctor) rel(path string) string {
	r, err := filepath.Rel(d.root, path)
	if err != nil {
		return path
	}
	return filepath.ToSlash(r)
}

func (d *Doctor) abs(rel string) string {
	return filepath.Join(d.root, filepath.FromSlash(rel))
}

var (
	okColor   = color.New(color.FgGreen)
	warnColor = color.New(color.FgYellow)
	infoColor = color.New(color.FgCyan)
)

func (d *Doctor) okf(format string, args ...any) {
	okColor.Fprintf(d.out, "   [OK] "+format+"\n", args...)
}

func (d *Doctor) warnf(format string, args ...any) {
	warnColor.Fprintf(d.out, "   [WARN] "+format+"\n", args...)
}

func (d *Doctor) infof(format string, args ...any) {
	infoColor.Fprintf(d.out, format+"\n", args...)
}
