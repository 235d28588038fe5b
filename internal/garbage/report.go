package garbage

import (
	"fmt"
	"strings"

	"github.com/dustin/go-humanize"
)

// FormatReport renders a Clean result.
func FormatReport(res *Result) string {
	var b strings.Builder
	b.WriteString("============================================================\n")
	if res.DryRun {
		b.WriteString("GARBAGE SCAN (Dry Run)\n")
	} else {
		b.WriteString("GARBAGE CLEAN\n")
	}
	b.WriteString("============================================================\n")

	if len(res.Found) == 0 {
		b.WriteString("No garbage found.\n")
		return b.String()
	}

	fmt.Fprintf(&b, "Found %d items (%s)\n\n", len(res.Found), humanize.Bytes(uint64(res.TotalBytes)))
	for _, it := range res.Found {
		name := it.Path
		if it.Dir {
			name += "/"
		}
		fmt.Fprintf(&b, "  %-50s %10s  %s\n", name, humanize.Bytes(uint64(it.SizeBytes)), it.Reason)
	}

	if res.DryRun {
		b.WriteString("\nNothing moved. Run without --dry-run to archive.\n")
		return b.String()
	}
	fmt.Fprintf(&b, "\nMoved %d items (%s) to %s\n", len(res.Moved),
		humanize.Bytes(uint64(res.MovedBytes)), res.ArchiveDir)
	if len(res.Failed) > 0 {
		fmt.Fprintf(&b, "\nFAILED (%d):\n", len(res.Failed))
		for _, f := range res.Failed {
			fmt.Fprintf(&b, "  %s: %v\n", f.Item.Path, f.Err)
		}
	}
	return b.String()
}
