package doctor

import (
	"fmt"
	"path/filepath"

	"go.uber.org/zap"

	"github.com/phobologic/repotrim/internal/model"
	"github.com/phobologic/repotrim/internal/mover"
	"github.com/phobologic/repotrim/internal/patch"
	"github.com/phobologic/repotrim/internal/scan"
	"github.com/phobologic/repotrim/internal/schema"
	"github.com/phobologic/repotrim/internal/trace"
)

// DeepCleanOptions configures the move, patch and trace pipeline.
type DeepCleanOptions struct {
	DryRun  bool
	NoPatch bool
	// Threshold overrides the configured token threshold when positive.
	Threshold int
	// Exclude adds globs to the configured exclude patterns.
	Exclude []string
	// Paths are relative paths moved regardless of threshold.
	Paths []string
	// Narrow moves only Paths instead of Paths plus every moveable file.
	Narrow bool
}

// DeepCleanResult collects the output of each pipeline stage. Patch and
// Trace are nil when the stage did not run.
type DeepCleanResult struct {
	Scan      *scan.Result
	Move      *mover.Result
	Patch     *model.PatchReport
	Trace     *model.TraceMap
	TracePath string
	RulesPath string
}

// DeepClean scans the project, relocates heavy files with a manifest,
// rewrites the Python sources that open them and writes the trace map.
// Stages run in that order; a stage error stops the pipeline, leaving the
// earlier stages committed.
func (d *Doctor) DeepClean(opts DeepCleanOptions) (*DeepCleanResult, error) {
	threshold := d.cfg.Threshold
	if opts.Threshold > 0 {
		threshold = opts.Threshold
	}
	exclude := append(append([]string(nil), d.cfg.ExcludePatterns...), opts.Exclude...)

	res := &DeepCleanResult{}
	var err error
	res.Scan, err = scan.Scan(d.root, scan.Options{Threshold: threshold, Exclude: exclude, Logger: d.log})
	if err != nil {
		return nil, fmt.Errorf("scanning: %w", err)
	}

	candidates := selectCandidates(res.Scan, opts.Paths, opts.Narrow)
	res.Move, err = mover.Move(d.root, candidates, mover.Options{
		DryRun:  opts.DryRun,
		Version: d.version,
		Schema:  schema.Options{MaxDepth: d.cfg.SchemaMaxDepth, SampleRows: d.cfg.CSVSampleRows},
		Logger:  d.log,
		Now:     d.now,
	})
	if err != nil {
		return res, fmt.Errorf("moving: %w", err)
	}
	if !opts.DryRun {
		for _, mf := range res.Move.Moved {
			d.record(model.ChangeRecord{
				Action:      model.ActionMoved,
				ItemType:    string(mf.Category),
				Source:      d.abs(mf.OriginalRelative),
				Destination: filepath.Join(res.Move.ExternalDir, filepath.FromSlash(mf.ExternalRelative)),
				SizeBytes:   mf.SizeBytes,
				Description: fmt.Sprintf("Moved %s (~%d tokens)", mf.OriginalRelative, mf.EstimatedTokens),
			})
		}
	}

	// Every file in the manifest is patchable, including earlier runs'.
	moved := res.Move.Manifest.Originals()
	if opts.DryRun {
		for _, mf := range res.Move.Moved {
			moved[mf.OriginalRelative] = struct{}{}
		}
	}
	if len(moved) == 0 {
		return res, nil
	}

	if !opts.NoPatch {
		res.Patch, err = patch.PatchProject(d.root, moved, patch.Options{DryRun: opts.DryRun, Exclude: exclude, Logger: d.log})
		if err != nil {
			return res, fmt.Errorf("patching: %w", err)
		}
		if !opts.DryRun {
			for _, pr := range res.Patch.Results {
				if !pr.Success || len(pr.Records) == 0 {
					continue
				}
				d.record(model.ChangeRecord{
					Action:      model.ActionRestructured,
					ItemType:    "source",
					Source:      d.abs(pr.File),
					Description: fmt.Sprintf("Rewrote %d file accesses in %s", len(pr.Records), pr.File),
				})
			}
		}
	}

	if opts.DryRun {
		return res, nil
	}
	res.Trace, err = trace.Generate(d.root, res.Move.Manifest.Files, trace.Options{
		ExternalDir: res.Move.ExternalDir,
		Exclude:     exclude,
		Logger:      d.log,
		Now:         d.now,
	})
	if err != nil {
		return res, fmt.Errorf("tracing: %w", err)
	}
	if res.TracePath, err = trace.WriteMarkdown(res.Trace, d.root); err != nil {
		return res, fmt.Errorf("writing trace map: %w", err)
	}
	if res.RulesPath, err = trace.WriteRules(res.Trace, d.root, d.cfg.ContextMaxChars); err != nil {
		return res, fmt.Errorf("writing rules: %w", err)
	}
	for _, p := range []string{res.TracePath, res.RulesPath} {
		d.record(model.ChangeRecord{Action: model.ActionCreated, ItemType: "docs", Source: p, Description: "Wrote " + d.rel(p)})
	}
	return res, nil
}

// selectCandidates returns the files to move: the listed paths, plus every
// moveable file unless narrow is set. Listed paths skip the threshold but
// never the protected-name check, which the mover enforces.
func selectCandidates(res *scan.Result, paths []string, narrow bool) []model.CandidateFile {
	want := make(map[string]struct{}, len(paths))
	for _, p := range paths {
		want[p] = struct{}{}
	}
	seen := make(map[string]struct{})
	var out []model.CandidateFile
	if !narrow {
		for _, f := range scan.Moveable(res) {
			seen[f.Path] = struct{}{}
			out = append(out, f)
		}
	}
	for _, f := range res.Files {
		if _, ok := want[f.Path]; !ok {
			continue
		}
		if _, dup := seen[f.Path]; dup {
			continue
		}
		seen[f.Path] = struct{}{}
		out = append(out, f)
	}
	return out
}

// RestoreResult summarizes Doctor.Restore.
type RestoreResult struct {
	Reverted int
	Move     *mover.RestoreResult
}

// Restore undoes a deep clean: moved files return to their original paths
// first, and only when every entry is back are patched sources reverted
// from their backups and the trace map and rules file removed. A partial
// restore leaves sources patched; the rewritten resolver still maps the
// files that stayed outside and falls back to the project for the rest.
// A missing or unreadable manifest is reported before anything changes.
func (d *Doctor) Restore(dryRun bool) (*RestoreResult, error) {
	path, ok := mover.ManifestPath(d.root)
	if !ok {
		return nil, fmt.Errorf("%s: %w", d.root, mover.ErrNoManifest)
	}
	if _, err := mover.LoadManifest(path); err != nil {
		return nil, err
	}

	res := &RestoreResult{}
	var err error
	res.Move, err = mover.Restore(d.root, mover.RestoreOptions{DryRun: dryRun, Logger: d.log})
	if err != nil {
		return res, err
	}
	if !dryRun {
		for _, p := range res.Move.Restored {
			d.record(model.ChangeRecord{Action: model.ActionMoved, ItemType: "file", Destination: d.abs(p), Description: "Restored " + p})
		}
	}
	if len(res.Move.Failed) > 0 {
		d.log.Warn("restore incomplete, sources stay patched", zap.Int("failed", len(res.Move.Failed)))
		return res, nil
	}

	res.Reverted, err = patch.Revert(d.root, patch.Options{DryRun: dryRun, Logger: d.log})
	if err != nil {
		return res, fmt.Errorf("reverting patches: %w", err)
	}
	if dryRun || !res.Move.Complete {
		return res, nil
	}
	if err := trace.Remove(d.root); err != nil {
		d.log.Warn("removing trace map", zap.Error(err))
		return res, err
	}
	return res, nil
}
