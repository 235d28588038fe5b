package doctor

import (
	"sort"

	"go.uber.org/zap"

	"github.com/phobologic/repotrim/internal/docs"
	"github.com/phobologic/repotrim/internal/model"
)

// Plan is the order in which FixAll remedies a report.
type Plan struct {
	// DeepClean is set when a critical issue calls for the full pipeline,
	// which then runs before any other fix.
	DeepClean bool
	// Steps are the issues fixed one by one, by severity.
	Steps []model.Issue
	// Subsumed are issues the deep clean already remedies.
	Subsumed []model.Issue
}

// NewPlan orders the issues of rep. When deepClean is false the narrower
// issues are fixed on their own instead of being subsumed.
func NewPlan(rep *model.DiagnosticReport, deepClean bool) Plan {
	var p Plan
	p.DeepClean = deepClean && NeedsDeepClean(rep)
	for _, is := range rep.Issues {
		if p.DeepClean && is.Fix.SubsumedByDeepClean() {
			p.Subsumed = append(p.Subsumed, is)
			continue
		}
		p.Steps = append(p.Steps, is)
	}
	sort.SliceStable(p.Steps, func(i, j int) bool {
		return p.Steps[i].Severity < p.Steps[j].Severity
	})
	return p
}

// NeedsDeepClean reports whether a critical issue concerns an embedded
// environment or exported data, the cases that warrant restructuring.
func NeedsDeepClean(rep *model.DiagnosticReport) bool {
	for _, is := range rep.Issues {
		if is.Severity != model.Critical {
			continue
		}
		if is.Fix == model.FixEmbeddedEnv || is.Fix == model.FixExportArtifacts {
			return true
		}
	}
	return false
}

// Outcome is the result of one planned fix.
type Outcome struct {
	Issue model.Issue
	Err   error
}

// FixResult summarizes FixAll.
type FixResult struct {
	Plan      Plan
	Backup    string
	DeepClean *DeepCleanResult
	// DeepCleanErr is set when the pipeline failed; the remaining fixes
	// still ran.
	DeepCleanErr error
	Outcomes     []Outcome
	Before       *model.DiagnosticReport
	After        *model.DiagnosticReport
	Changes      []model.ChangeRecord
	DocsPath     string
}

// Fixed counts successful outcomes.
func (r *FixResult) Fixed() int {
	n := 0
	for _, o := range r.Outcomes {
		if o.Err == nil {
			n++
		}
	}
	return n
}

// FixAllOptions configures FixAll.
type FixAllOptions struct {
	// SkipDeepClean declines the restructuring step.
	SkipDeepClean bool
}

// FixAll remedies every issue in rep. The backup is written before the
// first mutation; if it fails nothing is changed and ErrBackup is
// returned. Afterwards the project is diagnosed again and, if anything
// changed, the CLAUDE.md section is refreshed.
func (d *Doctor) FixAll(rep *model.DiagnosticReport, opts FixAllOptions) (*FixResult, error) {
	res := &FixResult{Plan: NewPlan(rep, !opts.SkipDeepClean), Before: rep}
	if !res.Plan.DeepClean && len(res.Plan.Steps) == 0 {
		res.After = rep
		return res, nil
	}

	backup, err := d.Backup()
	if err != nil {
		return res, err
	}
	res.Backup = backup

	if res.Plan.DeepClean {
		d.infof("\n   Deep clean: relocating data and patching sources...")
		var paths []string
		for _, is := range res.Plan.Subsumed {
			for _, p := range is.Paths {
				paths = append(paths, d.rel(p))
			}
		}
		res.DeepClean, res.DeepCleanErr = d.DeepClean(DeepCleanOptions{Paths: paths})
		if res.DeepCleanErr != nil {
			d.warnf("Deep clean failed: %v", res.DeepCleanErr)
		} else {
			d.okf("Deep clean moved %d files", len(res.DeepClean.Move.Moved))
		}
	}

	for _, is := range res.Plan.Steps {
		d.infof("\n   [%d] Fixing: %s", is.ID, is.Title)
		err := d.apply(is)
		if err != nil {
			d.warnf("Could not fix %s: %v", is.Title, err)
			d.log.Warn("fix failed", zap.Int("issue", is.ID), zap.Stringer("fix", is.Fix), zap.Error(err))
		}
		res.Outcomes = append(res.Outcomes, Outcome{Issue: is, Err: err})
	}

	return res, d.finish(res)
}

// finish re-diagnoses and refreshes the docs section after changes.
func (d *Doctor) finish(res *FixResult) error {
	after, err := d.Diagnose()
	if err != nil {
		return err
	}
	res.After = after
	res.Changes = d.Changes()
	if len(res.Changes) == 0 {
		return nil
	}
	path, err := docs.Update(d.root)
	if err != nil {
		d.warnf("Could not update %s: %v", docs.FileName, err)
		return nil
	}
	res.DocsPath = path
	return nil
}
