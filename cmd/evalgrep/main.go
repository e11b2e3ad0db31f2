// Command evalgrep searches eval log archives for transcript messages.
package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/term"

	"github.com/asheshgoplani/evalgrep/internal/aggregate"
	"github.com/asheshgoplani/evalgrep/internal/config"
	"github.com/asheshgoplani/evalgrep/internal/discovery"
	"github.com/asheshgoplani/evalgrep/internal/dispatch"
	"github.com/asheshgoplani/evalgrep/internal/filter"
	"github.com/asheshgoplani/evalgrep/internal/logging"
	"github.com/asheshgoplani/evalgrep/internal/progress"
	"github.com/asheshgoplani/evalgrep/internal/render"
	"github.com/asheshgoplani/evalgrep/internal/search"
)

// Version is the evalgrep release.
const Version = "0.4.0"

var cliLog = logging.ForComponent(logging.CompCLI)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	// A second interrupt kills the process.
	go func() {
		<-ctx.Done()
		stop()
	}()

	a := &app{
		stdout:    os.Stdout,
		stderr:    os.Stderr,
		stdoutTTY: term.IsTerminal(int(os.Stdout.Fd())),
		stderrTTY: term.IsTerminal(int(os.Stderr.Fd())),
	}
	code := a.execute(ctx, os.Args[1:])
	stop()
	os.Exit(code)
}

// flags holds the raw command-line values.
type flags struct {
	message    string
	samples    string
	epochs     string
	roles      []string
	threads    int
	ignoreCase bool
	json       bool
	color      string
	truncate   int
	noProgress bool
	configPath string
	debug      bool
}

type app struct {
	stdout    io.Writer
	stderr    io.Writer
	stdoutTTY bool
	stderrTTY bool

	flags flags
	code  int
	ran   bool
}

// execute runs the command line and returns the process exit status.
func (a *app) execute(ctx context.Context, args []string) int {
	cmd := a.newRootCmd()
	// cobra falls back to os.Args when given nil.
	if args == nil {
		args = []string{}
	}
	cmd.SetArgs(args)
	cmd.SetOut(a.stdout)
	cmd.SetErr(a.stderr)

	if err := cmd.ExecuteContext(ctx); err != nil {
		fmt.Fprintf(a.stderr, "evalgrep: %v\n", err)
		if !a.ran {
			return search.ExitFatal
		}
	}
	return a.code
}

func (a *app) newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:   "evalgrep PATH...",
		Short: "Search eval log archives for transcript messages",
		Long: `evalgrep scans .eval archives (zip files of JSON sample transcripts) and
prints every message that passes the filters. A PATH may be a single archive
or a directory, which is searched recursively for *.eval files.

Exit status: 0 matches found, 1 no matches, 2 fatal error,
3 matches with skipped files or entries, 4 no matches with skipped
files or entries, 130 interrupted.`,
		Args:          cobra.MinimumNArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE:          a.run,
	}

	f := root.Flags()
	f.StringVarP(&a.flags.message, "message", "m", "", "regex a message's content must match")
	f.StringVarP(&a.flags.samples, "samples", "s", "", "regex a sample id must match")
	f.StringVarP(&a.flags.epochs, "epochs", "e", "all", `epochs to include: "all", "N", "A,B,C" or "A-B"`)
	f.StringArrayVarP(&a.flags.roles, "roles", "r", nil, "roles to include: system, user, assistant, tool (comma list or repeated)")
	f.IntVarP(&a.flags.threads, "threads", "t", 0, "archives scanned at once (default: number of CPUs)")
	f.BoolVarP(&a.flags.ignoreCase, "ignore-case", "i", false, "case-insensitive sample and message patterns")
	f.BoolVar(&a.flags.json, "json", false, "print one JSON object per match")
	f.StringVar(&a.flags.color, "color", "", "color output: auto, always or never")
	f.IntVar(&a.flags.truncate, "truncate", 0, "limit each message to N display columns")
	f.BoolVar(&a.flags.noProgress, "no-progress", false, "hide the progress bar")
	f.StringVar(&a.flags.configPath, "config", "", "settings file (default $EVALGREP_CONFIG or ~/.evalgrep/config.toml)")
	f.BoolVar(&a.flags.debug, "debug", false, "write debug logs to stderr, or to logging.dir when set")

	root.AddCommand(&cobra.Command{
		Use:   "version",
		Short: "Print the evalgrep version",
		Args:  cobra.NoArgs,
		Run: func(cmd *cobra.Command, _ []string) {
			fmt.Fprintf(cmd.OutOrStdout(), "evalgrep v%s\n", Version)
		},
	})
	return root
}

// loadConfig reads the settings file and applies explicitly set flags on top.
func (a *app) loadConfig(cmd *cobra.Command) (*config.Config, error) {
	path := a.flags.configPath
	if path == "" {
		p, err := config.Path()
		if err != nil {
			return nil, err
		}
		path = p
	}
	cfg, err := config.Load(path)
	if err != nil {
		return nil, err
	}

	changed := cmd.Flags().Changed
	if changed("threads") {
		cfg.Search.Threads = a.flags.threads
	}
	if a.flags.ignoreCase {
		cfg.Search.IgnoreCase = true
	}
	if a.flags.json {
		cfg.Output.Format = config.FormatJSON
	}
	if changed("color") {
		cfg.Output.Color = a.flags.color
	}
	if changed("truncate") {
		cfg.Output.Truncate = a.flags.truncate
	}
	if a.flags.noProgress {
		cfg.Output.Progress = config.ModeNever
	}
	if a.flags.debug {
		cfg.Logging.Debug = true
		cfg.Logging.Level = "debug"
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (a *app) run(cmd *cobra.Command, args []string) error {
	cfg, err := a.loadConfig(cmd)
	if err != nil {
		return err
	}

	logCfg := cfg.LogConfig()
	logCfg.Stderr = a.stderr
	logging.Init(logCfg)
	defer logging.Shutdown()

	cliLog.Info("run_start",
		slog.String("version", Version),
		slog.Int("pid", os.Getpid()),
		slog.Any("paths", args))

	spec, err := filter.New(filter.Options{
		SampleID:   a.flags.samples,
		Epochs:     a.flags.epochs,
		Roles:      a.flags.roles,
		Message:    a.flags.message,
		IgnoreCase: cfg.Search.IgnoreCase,
	})
	if err != nil {
		return err
	}

	paths, err := discovery.CollectAll(args)
	if err != nil {
		return err
	}

	renderer, err := a.newRenderer(cfg)
	if err != nil {
		return err
	}

	opts := search.Options{Dispatch: dispatch.Options{
		Workers:        cfg.Search.Threads,
		FilesPerSecond: cfg.Search.FilesPerSecond,
	}}
	bar := a.newProgress(cfg)
	if bar != nil {
		opts.Dispatch.OnFileDone = bar.Update
		bar.Update(0, len(paths))
	}

	a.ran = true
	sum, runErr := search.Run(cmd.Context(), paths, spec, opts, renderer.Render)
	if bar != nil {
		bar.Finish()
	}
	flushErr := renderer.Flush()

	a.report(sum, runErr)
	a.code = sum.ExitCode(runErr)
	if runErr == nil && flushErr != nil {
		a.code = search.ExitFatal
		return fmt.Errorf("write output: %w", flushErr)
	}
	return nil
}

func (a *app) newRenderer(cfg *config.Config) (render.Renderer, error) {
	if cfg.Output.Format == config.FormatJSON {
		return render.NewJSON(a.stdout), nil
	}
	profile, err := render.DetectProfile(cfg.Output.Color, a.stdoutTTY)
	if err != nil {
		return nil, err
	}
	return render.NewText(a.stdout, render.TextOptions{
		Profile:  profile,
		Truncate: cfg.Output.Truncate,
	}), nil
}

func (a *app) newProgress(cfg *config.Config) *progress.Bar {
	switch cfg.Output.Progress {
	case config.ModeNever:
		return nil
	case config.ModeAuto:
		if !a.stderrTTY {
			return nil
		}
	}
	profile, err := render.DetectProfile(cfg.Output.Color, a.stderrTTY)
	if err != nil {
		return nil
	}
	return progress.New(a.stderr, progress.Options{Profile: profile})
}

// report prints skipped files and entries after the matches, then the
// run-level outcome.
func (a *app) report(sum *search.Summary, runErr error) {
	for _, err := range sum.Errors() {
		fmt.Fprintf(a.stderr, "evalgrep: skipped %v\n", err)
	}
	if n := len(sum.Errors()); n > 0 {
		fmt.Fprintf(a.stderr, "evalgrep: %d of %d files scanned, %d errors\n", sum.FilesScanned, sum.Files, n)
	}
	if runErr == nil {
		return
	}

	var ie *aggregate.InternalError
	switch {
	case dispatch.Interrupted(runErr):
		fmt.Fprintln(a.stderr, "evalgrep: interrupted")
	case errors.As(runErr, &ie):
		fmt.Fprintf(a.stderr, "evalgrep: %v\n", runErr)
		if path, err := logging.DumpCrashReport(time.Now()); err == nil {
			fmt.Fprintf(a.stderr, "evalgrep: this is a bug; please report it with %s\n", path)
		}
	default:
		fmt.Fprintf(a.stderr, "evalgrep: %v\n", runErr)
	}
}
