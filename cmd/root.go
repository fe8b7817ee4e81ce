// Package cmd implements the libbundler command line.
package cmd

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"slices"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/thediveo/enumflag/v2"

	"github.com/libbundler/libbundler/internal/bundle"
	"github.com/libbundler/libbundler/internal/config"
	"github.com/libbundler/libbundler/internal/inspect"
	"github.com/libbundler/libbundler/internal/inspect/macho"
	"github.com/libbundler/libbundler/internal/logging"
	"github.com/libbundler/libbundler/internal/report"
)

// Version is set at build time with -ldflags "-X".
var Version = "dev"

const (
	ExitOK = iota
	ExitInternal
	ExitNoChanges   // failed before anything was modified
	ExitApplyFailed // some copy or rewrite failed
)

// ExitError carries the process exit code of a failed run.
type ExitError struct {
	Code int
	Err  error
}

func (e *ExitError) Error() string {
	return e.Err.Error()
}

func (e *ExitError) Unwrap() error { return e.Err }

// InspectorFunc creates the inspector used for a run. The error is fatal only
// when the run has to modify binaries.
type InspectorFunc func(*logging.Logger) (inspect.Inspector, error)

var formatIDs = map[report.Format][]string{
	report.Table: {"table"},
	report.JSON:  {"json"},
	report.YAML:  {"yaml"},
}

type options struct {
	list            bool
	verbose         bool
	diff            bool
	keepRPaths      bool
	strict          bool
	exclude         []string
	excludePatterns []string
	libDir          string
	jobs            int
	format          report.Format
	logLevel        logging.Level
	logFormat       logging.Format
	configFiles     []string
}

func machoInspector(l *logging.Logger) (inspect.Inspector, error) {
	i, err := macho.New()
	return i.WithLogger(l), err
}

// New returns the root command writing results to stdout and diagnostics to
// stderr. A nil newInspector selects the Mach-O inspector.
func New(stdout, stderr io.Writer, newInspector InspectorFunc) *cobra.Command {
	if newInspector == nil {
		newInspector = machoInspector
	}

	var opts options
	cmd := &cobra.Command{
		Use:   "libbundler [flags] EXECUTABLE",
		Short: "Bundle the shared libraries of an executable next to it",
		Long: `libbundler copies the non-system shared libraries an executable loads,
recursively, into a directory next to it and rewrites the load commands of the
executable and of every copied library to point at the copies.`,
		Version:       Version,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return run(cmd, args[0], &opts, newInspector)
		},
	}
	cmd.SetOut(stdout)
	cmd.SetErr(stderr)

	f := cmd.Flags()
	f.BoolVarP(&opts.list, "list", "l", false, "list the libraries that would be bundled, change nothing")
	f.BoolVarP(&opts.verbose, "verbose", "v", false, "log every step to stderr; with --list, also print every reference")
	f.BoolVar(&opts.diff, "diff", false, "with --list, print the planned load command changes")
	f.StringSliceVarP(&opts.exclude, "exclude", "x", slices.Clone(bundle.DefaultExcludes), "path prefixes of system libraries, never bundled")
	f.StringSliceVar(&opts.excludePatterns, "exclude-pattern", nil, "glob patterns of libraries never bundled")
	f.StringVarP(&opts.libDir, "lib-dir", "L", bundle.DefaultLibDir, "destination directory, relative to the executable's directory")
	f.BoolVar(&opts.keepRPaths, "keep-rpaths", false, "keep the executable's existing search directories")
	f.BoolVar(&opts.strict, "strict", false, "stop at the first unresolvable or unreadable library")
	f.IntVarP(&opts.jobs, "jobs", "j", 1, "libraries to modify concurrently")
	f.VarP(enumflag.New(&opts.format, "format", formatIDs, enumflag.EnumCaseInsensitive),
		"format", "o", "list output format: table, json or yaml")
	opts.logLevel = logging.Warn
	f.Var(enumflag.New(&opts.logLevel, "level", logging.LevelIDs, enumflag.EnumCaseInsensitive),
		"log-level", "log level: debug, info, warn or error")
	f.Var(enumflag.New(&opts.logFormat, "format", logging.FormatIDs, enumflag.EnumCaseInsensitive),
		"log-format", "log format: text or json")
	f.StringSliceVarP(&opts.configFiles, "config", "c", nil, "configuration files or directories, merged in order")

	return cmd
}

// Execute runs the command line and returns the process exit code.
func Execute() int {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	return Run(ctx, os.Args[1:], os.Stdout, os.Stderr, nil)
}

// Run executes the command line with args and returns the exit code.
func Run(ctx context.Context, args []string, stdout, stderr io.Writer, newInspector InspectorFunc) int {
	cmd := New(stdout, stderr, newInspector)
	cmd.SetArgs(args)

	err := cmd.ExecuteContext(ctx)
	if err == nil {
		return ExitOK
	}

	fmt.Fprintf(stderr, "libbundler: %v\n", err)
	var ee *ExitError
	if errors.As(err, &ee) {
		return ee.Code
	}
	fmt.Fprintf(stderr, "Run '%s --help' for usage.\n", cmd.CommandPath())
	return ExitInternal
}

// settings resolves every option: flags override the configuration file,
// which overrides the defaults.
func settings(f *pflag.FlagSet, opts *options) error {
	cfg, err := config.Load(opts.configFiles)
	if err != nil {
		return err
	}

	if !f.Changed("exclude") {
		if ps, ok := cfg.Excludes(); ok {
			opts.exclude = ps
		}
	}
	opts.exclude = slices.DeleteFunc(opts.exclude, func(s string) bool { return s == "" })
	opts.excludePatterns = append(slices.Clone(cfg.ExcludePatterns), opts.excludePatterns...)

	if !f.Changed("lib-dir") {
		opts.libDir = cfg.LibDirOr(opts.libDir)
	}
	if !f.Changed("jobs") {
		opts.jobs = cfg.JobsOr(opts.jobs)
	}
	if !f.Changed("keep-rpaths") {
		opts.keepRPaths = cfg.KeepRPaths
	}
	if !f.Changed("strict") {
		opts.strict = cfg.Strict
	}
	if !f.Changed("format") && cfg.Format != "" {
		for v, ids := range formatIDs {
			if slices.Contains(ids, cfg.Format) {
				opts.format = v
			}
		}
	}
	if !f.Changed("log-level") && cfg.LogLevel() != "" {
		if opts.logLevel, err = logging.ParseLevel(cfg.LogLevel()); err != nil {
			return err
		}
	}
	if !f.Changed("log-format") && cfg.LogFormat() != "" {
		if opts.logFormat, err = logging.ParseFormat(cfg.LogFormat()); err != nil {
			return err
		}
	}
	if opts.verbose {
		opts.logLevel = logging.Debug
	}
	if opts.jobs < 1 {
		return fmt.Errorf("--jobs must be at least 1")
	}
	if opts.diff && !opts.list {
		return fmt.Errorf("--diff requires --list")
	}

	return nil
}

func run(cmd *cobra.Command, executable string, opts *options, newInspector InspectorFunc) error {
	ctx := cmd.Context()
	if err := settings(cmd.Flags(), opts); err != nil {
		return err
	}

	logger := logging.NewLogger(logging.Config{
		Level:  opts.logLevel,
		Format: opts.logFormat,
		Output: cmd.ErrOrStderr(),
	})

	rules, err := bundle.NewRules(opts.exclude, opts.excludePatterns)
	if err != nil {
		return err
	}

	inner, err := newInspector(logger)
	if inner == nil {
		return &ExitError{Code: ExitNoChanges, Err: err}
	}
	if err != nil {
		if !opts.list {
			return &ExitError{Code: ExitNoChanges, Err: err}
		}
		logger.Debugf("%v", err)
	}
	inspector, err := inspect.NewCache(inner, 0)
	if err != nil {
		return err
	}

	b := bundle.New().
		WithInspector(inspector).
		WithRules(rules).
		WithLibDir(opts.libDir).
		WithLogger(logger).
		WithStrict(opts.strict).
		WithKeepRPaths(opts.keepRPaths).
		WithJobs(opts.jobs).
		WithProgress(!opts.verbose)

	g, derr := b.Discover(ctx, executable)
	if g == nil {
		return &ExitError{Code: ExitNoChanges, Err: derr}
	}

	var p *bundle.Plan
	var perr error
	if derr == nil || opts.list {
		p, perr = b.Plan(g)
	}

	if opts.list {
		if err := report.New(g, p, opts.verbose, derr, perr).Write(cmd.OutOrStdout(), opts.format); err != nil {
			return err
		}
		if opts.diff && p != nil {
			if err := report.Diff(cmd.OutOrStdout(), p); err != nil {
				return err
			}
		}
		if err := errors.Join(derr, perr); err != nil {
			return &ExitError{Code: ExitNoChanges, Err: err}
		}
		return nil
	}

	if err := errors.Join(derr, perr); err != nil {
		return &ExitError{Code: ExitNoChanges, Err: err}
	}
	if !p.Pending() {
		logger.Infof("%s: already bundled", g.Root.Path)
		return nil
	}
	if err := b.Apply(ctx, p); err != nil {
		return &ExitError{Code: ExitApplyFailed, Err: err}
	}
	logger.Infof("%s: bundled %d libraries into %s", g.Root.Path, len(p.Copies), p.LibDir)
	return nil
}
