// repotrim keeps a project's context window lean: it moves heavy data out of
// the tree, patches the code that opens it and diagnoses everything else an
// AI assistant should not have to read.
package main

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/chzyer/readline"
	"github.com/mattn/go-isatty"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/phobologic/repotrim/internal/config"
	"github.com/phobologic/repotrim/internal/docs"
	"github.com/phobologic/repotrim/internal/doctor"
	"github.com/phobologic/repotrim/internal/garbage"
	"github.com/phobologic/repotrim/internal/logging"
	"github.com/phobologic/repotrim/internal/mover"
	"github.com/phobologic/repotrim/internal/patch"
)

var version = "dev"

func main() {
	if err := run(os.Args[1:], os.Stdin, os.Stdout, os.Stderr); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

// app carries what every subcommand shares.
type app struct {
	stdin          io.Reader
	stdout, stderr io.Writer
	verbose        bool
	log            *zap.Logger
}

func run(args []string, stdin io.Reader, stdout, stderr io.Writer) error {
	a := &app{stdin: stdin, stdout: stdout, stderr: stderr}
	root := a.rootCommand()
	root.SetArgs(args)
	root.SetIn(stdin)
	root.SetOut(stdout)
	root.SetErr(stderr)
	defer func() {
		if a.log != nil {
			_ = a.log.Sync()
		}
	}()
	return root.Execute()
}

func (a *app) rootCommand() *cobra.Command {
	root := &cobra.Command{
		Use:   "repotrim",
		Short: "Keep a project lean for AI coding assistants",
		Long: `repotrim diagnoses what weighs on an assistant's context window and fixes it:
heavy data files move outside the project behind a restore manifest, the
Python code that opens them is rewritten to use get_path(), and caches, logs
and stray environments are archived.

Every destructive step is preceded by a backup and can be undone.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			log, err := logging.New(a.verbose)
			if err != nil {
				return fmt.Errorf("creating logger: %w", err)
			}
			a.log = log
			return nil
		},
	}
	root.PersistentFlags().BoolVarP(&a.verbose, "verbose", "v", false, "log every file handled")

	root.AddCommand(
		a.doctorCommand(),
		a.deepCleanCommand(),
		a.restoreCommand(),
		a.cleanCommand(),
		a.initCommand(),
		&cobra.Command{
			Use:   "version",
			Short: "Print the version",
			Args:  cobra.NoArgs,
			Run: func(cmd *cobra.Command, _ []string) {
				fmt.Fprintf(a.stdout, "repotrim %s\n", version)
			},
		},
	)
	return root
}

// projectPath resolves the optional path argument and loads its settings.
func projectPath(args []string) (string, config.Config, error) {
	root := "."
	if len(args) > 0 {
		root = args[0]
	}
	root, err := filepath.Abs(root)
	if err != nil {
		return "", config.Config{}, fmt.Errorf("resolving root: %w", err)
	}
	info, err := os.Stat(root)
	if err != nil {
		return "", config.Config{}, fmt.Errorf("root path: %w", err)
	}
	if !info.IsDir() {
		return "", config.Config{}, fmt.Errorf("%s: not a directory", root)
	}
	cfg, err := config.Load(root)
	if err != nil {
		return "", config.Config{}, err
	}
	return root, cfg, nil
}

func (a *app) newDoctor(root string, cfg config.Config) (*doctor.Doctor, error) {
	return doctor.New(root, doctor.Options{
		Config:  cfg,
		Version: version,
		Out:     a.stdout,
		Logger:  a.log,
	})
}

func (a *app) doctorCommand() *cobra.Command {
	var auto, report bool
	cmd := &cobra.Command{
		Use:   "doctor [path]",
		Short: "Diagnose the project and fix what it finds",
		Long: `Diagnose the project and list issues by severity.

Without flags the doctor asks what to fix. --auto fixes everything,
including a deep clean when a critical issue calls for one. --report only
prints the diagnosis and never touches the filesystem.`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if auto && report {
				return errors.New("--auto and --report are mutually exclusive")
			}
			root, cfg, err := projectPath(args)
			if err != nil {
				return err
			}
			d, err := a.newDoctor(root, cfg)
			if err != nil {
				return err
			}

			mode := doctor.ModeInteractive
			switch {
			case auto:
				mode = doctor.ModeAuto
			case report:
				mode = doctor.ModeReport
			}
			rio := doctor.IO{Out: a.stdout}
			if mode == doctor.ModeInteractive {
				in, closeIn := a.lineReader()
				defer closeIn()
				rio.In = in
			}
			_, err = d.Run(mode, rio)
			return err
		},
	}
	cmd.Flags().BoolVar(&auto, "auto", false, "fix every issue without asking")
	cmd.Flags().BoolVar(&report, "report", false, "print the diagnosis only")
	return cmd
}

// lineReader picks the input for an interactive session: readline on a
// terminal, plain lines otherwise.
func (a *app) lineReader() (doctor.LineReader, func()) {
	f, ok := a.stdin.(*os.File)
	if ok && isatty.IsTerminal(f.Fd()) {
		rl, err := readline.NewEx(&readline.Config{
			Prompt:          "> ",
			Stdout:          a.stdout,
			InterruptPrompt: "^C",
		})
		if err == nil {
			return rl, func() { _ = rl.Close() }
		}
		a.log.Warn("readline unavailable", zap.Error(err))
	}
	if a.stdin == nil {
		return nil, func() {}
	}
	return doctor.NewLineReader(a.stdin), func() {}
}

func (a *app) deepCleanCommand() *cobra.Command {
	var opts doctor.DeepCleanOptions
	cmd := &cobra.Command{
		Use:   "deep-clean [path]",
		Short: "Move heavy files out of the project and patch the code that opens them",
		Long: `Move every data or log file above the token threshold into
../<project>_data, record it in a restore manifest, write config_paths.py,
rewrite Python sources to open moved files through get_path(), and generate
the AST_FOX_TRACE.md navigation map.

A backup of the project is written first unless --dry-run is set.`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			root, cfg, err := projectPath(args)
			if err != nil {
				return err
			}
			d, err := a.newDoctor(root, cfg)
			if err != nil {
				return err
			}
			if !opts.DryRun {
				backup, err := d.Backup()
				if err != nil {
					return err
				}
				fmt.Fprintf(a.stdout, "Backup: %s\n", backup)
			}

			res, err := d.DeepClean(opts)
			if res != nil && res.Move != nil {
				fmt.Fprint(a.stdout, mover.FormatReport(res.Move))
			}
			if res != nil && res.Patch != nil {
				fmt.Fprint(a.stdout, patch.FormatReport(res.Patch, opts.DryRun))
			}
			if err != nil {
				return err
			}
			if res.TracePath != "" {
				fmt.Fprintf(a.stdout, "Trace map: %s\n", res.TracePath)
			}
			if !opts.DryRun && len(d.Changes()) > 0 {
				a.updateDocs(root)
			}
			return nil
		},
	}
	cmd.Flags().IntVar(&opts.Threshold, "threshold", 0, "minimum estimated tokens for a file to move (default from config)")
	cmd.Flags().BoolVar(&opts.DryRun, "dry-run", false, "report what would happen without changing anything")
	cmd.Flags().BoolVar(&opts.NoPatch, "no-patch", false, "move files but leave sources untouched")
	cmd.Flags().StringSliceVar(&opts.Exclude, "exclude", nil, "glob of paths never moved or patched (repeatable)")
	return cmd
}

func (a *app) restoreCommand() *cobra.Command {
	var dryRun bool
	cmd := &cobra.Command{
		Use:   "restore [path]",
		Short: "Undo a deep clean",
		Long: `Revert patched sources from their .bak copies and move every file in the
restore manifest back to its original path. Entries whose original path is
occupied again are skipped and stay in the manifest.`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			root, cfg, err := projectPath(args)
			if err != nil {
				return err
			}
			d, err := a.newDoctor(root, cfg)
			if err != nil {
				return err
			}
			res, err := d.Restore(dryRun)
			if res != nil {
				fmt.Fprintf(a.stdout, "Reverted %d patched sources\n", res.Reverted)
				if res.Move != nil {
					fmt.Fprint(a.stdout, mover.FormatRestoreReport(res.Move))
				}
			}
			if err != nil {
				return err
			}
			if !dryRun {
				a.updateDocs(root)
			}
			return nil
		},
	}
	cmd.Flags().BoolVar(&dryRun, "dry-run", false, "report what would be restored")
	return cmd
}

func (a *app) cleanCommand() *cobra.Command {
	var (
		dryRun bool
		maxAge int
	)
	cmd := &cobra.Command{
		Use:   "clean [path]",
		Short: "Archive caches, temp files and stale logs into _AI_ARCHIVE",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			root, cfg, err := projectPath(args)
			if err != nil {
				return err
			}
			if maxAge > 0 {
				cfg.MaxLogAgeDays = maxAge
			}
			d, err := a.newDoctor(root, cfg)
			if err != nil {
				return err
			}
			res, err := d.CleanGarbage(dryRun)
			if err != nil {
				return err
			}
			fmt.Fprint(a.stdout, garbage.FormatReport(res))
			if len(res.Failed) > 0 {
				return fmt.Errorf("%d items not archived", len(res.Failed))
			}
			return nil
		},
	}
	cmd.Flags().BoolVar(&dryRun, "dry-run", false, "list garbage without moving it")
	cmd.Flags().IntVar(&maxAge, "max-age", 0, "days after which *.log files count as garbage (default from config)")
	return cmd
}

// updateDocs refreshes the CLAUDE.md section. Failure is only a warning:
// the command itself succeeded.
func (a *app) updateDocs(root string) {
	path, err := docs.Update(root)
	if err != nil {
		a.log.Warn("updating docs", zap.String("file", docs.FileName), zap.Error(err))
		return
	}
	fmt.Fprintf(a.stdout, "Updated %s\n", path)
}
