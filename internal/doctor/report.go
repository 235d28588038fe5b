package doctor

import (
	"fmt"
	"path"
	"sort"
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/dustin/go-humanize"

	"github.com/phobologic/repotrim/internal/model"
)

var (
	boxStyle = lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			Padding(0, 1)
	titleStyle = lipgloss.NewStyle().Bold(true)

	severityStyles = map[model.Severity]lipgloss.Style{
		model.Critical:   lipgloss.NewStyle().Foreground(lipgloss.Color("#e53935")).Bold(true),
		model.Warning:    lipgloss.NewStyle().Foreground(lipgloss.Color("#FFC107")),
		model.Suggestion: lipgloss.NewStyle().Foreground(lipgloss.Color("#2196F3")),
	}
)

const (
	topConsumers    = 5
	breakdownFiles  = 20
	breakdownExts   = 10
	breakdownMinTok = 1000
)

// FormatReport renders a diagnosis: a header box, issues grouped by
// severity, the heaviest files and, when menu is set, the interactive menu.
func FormatReport(rep *model.DiagnosticReport, menu bool) string {
	var b strings.Builder

	header := fmt.Sprintf("%s\n%s\nRun %s",
		titleStyle.Render("Project doctor: "+rep.ProjectName),
		fmt.Sprintf("~%s tokens, %s, weight %s",
			humanize.Comma(int64(rep.TotalTokens)), humanize.Bytes(uint64(rep.TotalBytes)), rep.Weight),
		shortID(rep.RunID))
	b.WriteString(boxStyle.Render(header))
	b.WriteString("\n")

	if rep.ExternalEnv {
		fmt.Fprintf(&b, "\nExternal environment: %s\n", rep.ExternalEnvPath)
	}

	if len(rep.Issues) == 0 {
		b.WriteString("\nNo issues found. The project is clean.\n")
	}
	for _, sev := range []model.Severity{model.Critical, model.Warning, model.Suggestion} {
		if rep.Count(sev) == 0 {
			continue
		}
		fmt.Fprintf(&b, "\n%s (%d)\n", severityStyles[sev].Render(sev.String()), rep.Count(sev))
		for _, is := range rep.Issues {
			if is.Severity != sev {
				continue
			}
			fmt.Fprintf(&b, "  [%d] %s\n", is.ID, is.Title)
			if is.Description != "" {
				fmt.Fprintf(&b, "      %s\n", is.Description)
			}
		}
	}

	if top := rep.FileTokens; len(top) > 0 {
		if len(top) > topConsumers {
			top = top[:topConsumers]
		}
		b.WriteString("\nTop token consumers:\n")
		for _, ft := range top {
			fmt.Fprintf(&b, "  %8s  %s\n", humanize.Comma(int64(ft.Tokens)), ft.Path)
		}
	}

	if menu && len(rep.Issues) > 0 {
		b.WriteString("\n[1-9] Fix issue  [A] Fix ALL  [T] Tokens  [R] Docs  [Q] Quit\n")
	}
	return b.String()
}

// FormatBreakdown lists the files above 1000 tokens and the token share
// per extension.
func FormatBreakdown(rep *model.DiagnosticReport) string {
	var b strings.Builder
	fmt.Fprintf(&b, "\nToken breakdown (~%s total)\n", humanize.Comma(int64(rep.TotalTokens)))

	files := rep.HighTokenFiles(breakdownMinTok)
	if len(files) > breakdownFiles {
		files = files[:breakdownFiles]
	}
	if len(files) == 0 {
		fmt.Fprintf(&b, "  No files above %s tokens.\n", humanize.Comma(breakdownMinTok))
	}
	for _, ft := range files {
		fmt.Fprintf(&b, "  %8s  %5.1f%%  %s\n", humanize.Comma(int64(ft.Tokens)), percent(ft.Tokens, rep.TotalTokens), ft.Path)
	}

	type extTotal struct {
		ext    string
		tokens int
	}
	byExt := make(map[string]int)
	for _, ft := range rep.FileTokens {
		ext := strings.ToLower(path.Ext(ft.Path))
		if ext == "" {
			ext = "(none)"
		}
		byExt[ext] += ft.Tokens
	}
	exts := make([]extTotal, 0, len(byExt))
	for e, t := range byExt {
		exts = append(exts, extTotal{e, t})
	}
	sort.Slice(exts, func(i, j int) bool {
		if exts[i].tokens != exts[j].tokens {
			return exts[i].tokens > exts[j].tokens
		}
		return exts[i].ext < exts[j].ext
	})
	if len(exts) > breakdownExts {
		exts = exts[:breakdownExts]
	}
	if len(exts) > 0 {
		b.WriteString("\nBy extension:\n")
	}
	for _, e := range exts {
		fmt.Fprintf(&b, "  %8s  %5.1f%%  %s\n", humanize.Comma(int64(e.tokens)), percent(e.tokens, rep.TotalTokens), e.ext)
	}
	return b.String()
}

// FormatChanges renders the change log with paths relative to root where
// possible.
func FormatChanges(changes []model.ChangeRecord, root string) string {
	if len(changes) == 0 {
		return ""
	}
	var b strings.Builder
	fmt.Fprintf(&b, "\nChanges (%d):\n", len(changes))
	for _, c := range changes {
		fmt.Fprintf(&b, "  %-12s %s", c.Action, c.Description)
		if c.SizeBytes > 0 {
			fmt.Fprintf(&b, " (%s)", humanize.Bytes(uint64(c.SizeBytes)))
		}
		b.WriteString("\n")
	}
	return b.String()
}

// FormatDelta compares two diagnoses.
func FormatDelta(before, after *model.DiagnosticReport, backup string) string {
	var b strings.Builder
	saved := before.TotalTokens - after.TotalTokens
	lines := []string{
		titleStyle.Render("Before / after"),
		fmt.Sprintf("Tokens:  %s -> %s", humanize.Comma(int64(before.TotalTokens)), humanize.Comma(int64(after.TotalTokens))),
		fmt.Sprintf("Issues:  %d -> %d", len(before.Issues), len(after.Issues)),
		fmt.Sprintf("Weight:  %s -> %s", before.Weight, after.Weight),
	}
	if saved > 0 {
		lines = append(lines, fmt.Sprintf("Saved:   ~%s tokens (%.1f%%)", humanize.Comma(int64(saved)), percent(saved, before.TotalTokens)))
	}
	if backup != "" {
		lines = append(lines, "Backup:  "+backup)
	}
	b.WriteString("\n")
	b.WriteString(boxStyle.Render(strings.Join(lines, "\n")))
	b.WriteString("\n")
	return b.String()
}

// FormatResult summarizes a FixAll run.
func FormatResult(res *FixResult) string {
	var b strings.Builder
	if res.DeepCleanErr != nil {
		fmt.Fprintf(&b, "\nDeep clean failed: %v\n", res.DeepCleanErr)
	}
	failed := len(res.Outcomes) - res.Fixed()
	fmt.Fprintf(&b, "\nFixed %d of %d issues", res.Fixed(), len(res.Outcomes))
	if n := len(res.Plan.Subsumed); n > 0 && res.DeepCleanErr == nil {
		fmt.Fprintf(&b, ", %d more by deep clean", n)
	}
	b.WriteString("\n")
	for _, o := range res.Outcomes {
		if o.Err != nil {
			fmt.Fprintf(&b, "  [%d] %s: %v\n", o.Issue.ID, o.Issue.Title, o.Err)
		}
	}
	if failed > 0 {
		fmt.Fprintf(&b, "%d fixes failed; the backup is intact.\n", failed)
	}
	if res.After != nil {
		b.WriteString(FormatDelta(res.Before, res.After, res.Backup))
	}
	if res.DocsPath != "" {
		fmt.Fprintf(&b, "Updated %s\n", res.DocsPath)
	}
	return b.String()
}

func percent(part, total int) float64 {
	if total == 0 {
		return 0
	}
	return float64(part) * 100 / float64(total)
}

func shortID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}
