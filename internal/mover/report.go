package mover

import (
	"fmt"
	"strings"

	"github.com/dustin/go-humanize"

	"github.com/phobologic/repotrim/internal/scan"
)

const rule = "============================================================"

// FormatReport renders a Move result for the terminal.
func FormatReport(res *Result) string {
	var b strings.Builder
	title := "DEEP CLEAN"
	if res.DryRun {
		title += " (dry run)"
	}
	fmt.Fprintf(&b, "%s\n%s\n%s\n", rule, title, rule)
	fmt.Fprintf(&b, "External dir: %s\n\n", res.ExternalDir)

	if len(res.Moved) == 0 {
		b.WriteString("Nothing to move.\n")
	} else {
		verb := "MOVED"
		if res.DryRun {
			verb = "WOULD MOVE"
		}
		fmt.Fprintf(&b, "%s (%d files, %s, ~%s tokens):\n", verb, len(res.Moved),
			humanize.Bytes(uint64(res.BytesMoved)), humanize.Comma(int64(res.TokensMoved)))
		for _, f := range res.Moved {
			fmt.Fprintf(&b, "  %-50s %10s  ~%s tokens\n", f.OriginalRelative,
				humanize.Bytes(uint64(f.SizeBytes)), humanize.Comma(int64(f.EstimatedTokens)))
		}
	}

	if len(res.Failed) > 0 {
		fmt.Fprintf(&b, "\nSKIPPED (%d):\n", len(res.Failed))
		for _, f := range res.Failed {
			fmt.Fprintf(&b, "  %s: %v\n", f.Path, f.Err)
		}
	}

	if !res.DryRun && len(res.Moved) > 0 {
		fmt.Fprintf(&b, "\nGenerated %s\nManifest: %s\n", scan.ResolverFileName, res.ManifestPath)
	}
	return b.String()
}

// FormatRestoreReport renders a Restore result.
func FormatRestoreReport(res *RestoreResult) string {
	var b strings.Builder
	fmt.Fprintf(&b, "%s\nRESTORE\n%s\n", rule, rule)
	fmt.Fprintf(&b, "Restored %d files\n", len(res.Restored))
	for _, p := range res.Restored {
		fmt.Fprintf(&b, "  %s\n", p)
	}
	if len(res.Failed) > 0 {
		fmt.Fprintf(&b, "\nFAILED (%d), kept in %s:\n", len(res.Failed), ManifestFileName)
		for _, f := range res.Failed {
			fmt.Fprintf(&b, "  %s: %v\n", f.Path, f.Err)
		}
	}
	if res.Complete {
		fmt.Fprintf(&b, "\nRemoved %s and %s\n", scan.ResolverFileName, ManifestFileName)
	}
	return b.String()
}
