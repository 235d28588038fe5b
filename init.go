package main

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/phobologic/repotrim/internal/docs"
)

// initCommand writes (or updates) the repotrim section of a CLAUDE.md file.
func (a *app) initCommand() *cobra.Command {
	var dryRun bool
	cmd := &cobra.Command{
		Use:   "init [path-to-CLAUDE.md]",
		Short: "Write the repotrim section to a CLAUDE.md file",
		Long: `Write a repotrim section to a CLAUDE.md file. The section is wrapped in
sentinel comments so it can be updated in place on subsequent runs without
touching surrounding content. Creates the file if it does not exist.

The section describes the project the file lives in: moved data, the
resolver and the trace map when a deep clean ran.

path-to-CLAUDE.md defaults to ./CLAUDE.md.`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			path := docs.FileName
			if len(args) > 0 {
				path = args[0]
			}
			st, err := docs.Inspect(filepath.Dir(path))
			if err != nil {
				return err
			}
			section := docs.Section(st)

			// --dry-run with no path: just print the section itself.
			if dryRun && len(args) == 0 {
				_, _ = fmt.Fprintln(a.stdout, section)
				return nil
			}

			if dryRun {
				existing, err := os.ReadFile(path)
				if err != nil && !errors.Is(err, os.ErrNotExist) {
					return fmt.Errorf("reading %s: %w", path, err)
				}
				_, _ = fmt.Fprint(a.stdout, docs.Apply(string(existing), section))
				return nil
			}

			if _, err := docs.Write(path, st); err != nil {
				return err
			}
			_, _ = fmt.Fprintf(a.stderr, "wrote repotrim section to %s\n", path)
			return nil
		},
	}
	cmd.Flags().BoolVar(&dryRun, "dry-run", false, "print what would be written without modifying the file")
	return cmd
}
