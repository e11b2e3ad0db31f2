// Package search runs one evalgrep invocation: it scans every archive on a
// bounded pool, restores input order and hands matches to the caller.
package search

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/asheshgoplani/evalgrep/internal/aggregate"
	"github.com/asheshgoplani/evalgrep/internal/dispatch"
	"github.com/asheshgoplani/evalgrep/internal/filter"
	"github.com/asheshgoplani/evalgrep/internal/logging"
	"github.com/asheshgoplani/evalgrep/internal/scan"
)

var searchLog = logging.ForComponent(logging.CompSearch)

// beforeSubmit, when set, runs on the worker goroutine just before a
// completed file enters the reorder buffer. Tests use it to fix completion
// order.
var beforeSubmit func(index int)

// Process exit statuses.
const (
	ExitMatch             = 0
	ExitNoMatch           = 1
	ExitFatal             = 2
	ExitMatchWithErrors   = 3
	ExitNoMatchWithErrors = 4
	ExitCancelled         = 130
)

// Options configures a run.
type Options struct {
	Dispatch dispatch.Options
}

// Summary describes a finished (or stopped) run. FileErrors and EntryErrors
// are in output order.
type Summary struct {
	Files        int
	FilesScanned int
	Matches      int
	FileErrors   []error
	EntryErrors  []error
	Stats        scan.Stats
	Cancelled    bool
	Discarded    int // completed files dropped because an earlier file never finished
	Elapsed      time.Duration
}

// Recovered reports whether any file or entry was skipped because of an
// error.
func (s *Summary) Recovered() bool {
	return len(s.FileErrors) > 0 || len(s.EntryErrors) > 0
}

// Errors returns file and entry errors together, file errors first.
func (s *Summary) Errors() []error {
	out := make([]error, 0, len(s.FileErrors)+len(s.EntryErrors))
	out = append(out, s.FileErrors...)
	return append(out, s.EntryErrors...)
}

// ExitCode maps the outcome of Run to a process exit status. s may be nil
// when err stopped the run before scanning.
func (s *Summary) ExitCode(err error) int {
	switch {
	case err == nil:
	case dispatch.Interrupted(err):
		return ExitCancelled
	default:
		return ExitFatal
	}
	if s == nil {
		return ExitNoMatch
	}
	switch {
	case s.Matches > 0 && s.Recovered():
		return ExitMatchWithErrors
	case s.Matches > 0:
		return ExitMatch
	case s.Recovered():
		return ExitNoMatchWithErrors
	default:
		return ExitNoMatch
	}
}

// Run scans paths with spec and calls emit for every match, in input-path
// order, then archive-stored entry order, then transcript message order.
// emit is called from the calling goroutine only.
//
// Archives that cannot be opened and entries that cannot be decoded are
// recorded in the summary and skipped. An error from emit stops the run and
// is returned. When ctx is cancelled, matches of files completed before the
// first unfinished one are still emitted and Run returns ctx.Err().
func Run(ctx context.Context, paths []string, spec filter.Spec, opts Options, emit func(scan.Match) error) (*Summary, error) {
	start := time.Now()
	sum := &Summary{Files: len(paths)}

	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	ev := scan.NewEvaluator(spec)
	agg := aggregate.New[dispatch.FileResult](len(paths))
	d := dispatch.New(opts.Dispatch)

	searchLog.Info("search_start",
		slog.Int("files", len(paths)),
		slog.Int("workers", d.Workers()),
		slog.Bool("match_all", spec.MatchAll()))

	done := make(chan error, 1)
	go func() {
		err := d.Run(runCtx, paths, ev, func(fr dispatch.FileResult) error {
			if beforeSubmit != nil {
				beforeSubmit(fr.Index)
			}
			return agg.Submit(fr.Index, fr)
		})
		if err == nil && !agg.Complete() {
			err = &aggregate.InternalError{
				Index:  -1,
				Reason: fmt.Sprintf("dispatch finished with %d results still buffered", agg.Pending()),
			}
		}
		if err != nil {
			sum.Discarded = agg.Discard()
		}
		done <- err
	}()

	var emitErr error
	for fr := range agg.Results() {
		if emitErr != nil {
			continue
		}
		if fr.Err != nil {
			sum.FileErrors = append(sum.FileErrors, fr.Err)
			continue
		}
		sum.FilesScanned++
		sum.Stats.Add(fr.Stats)
		for _, de := range fr.EntryErrors {
			sum.EntryErrors = append(sum.EntryErrors, de)
		}
		for _, m := range fr.Matches {
			if err := emit(m); err != nil {
				emitErr = err
				cancel()
				break
			}
			sum.Matches++
		}
	}
	runErr := <-done
	sum.Elapsed = time.Since(start)

	attrs := []any{
		slog.Int("files", sum.Files),
		slog.Int("files_scanned", sum.FilesScanned),
		slog.Int("matches", sum.Matches),
		slog.Int("file_errors", len(sum.FileErrors)),
		slog.Int("entry_errors", len(sum.EntryErrors)),
		slog.Int("entries", sum.Stats.Entries),
		slog.Int("decoded", sum.Stats.Decoded),
		slog.Duration("elapsed", sum.Elapsed),
	}

	if emitErr != nil {
		searchLog.Warn("search_output_failed", append(attrs, slog.String("error", emitErr.Error()))...)
		return sum, emitErr
	}
	if runErr != nil {
		var ie *aggregate.InternalError
		switch {
		case errors.As(runErr, &ie):
			searchLog.Error("search_internal_error", append(attrs, slog.String("error", runErr.Error()))...)
		case dispatch.Interrupted(runErr):
			sum.Cancelled = true
			searchLog.Info("search_cancelled", append(attrs, slog.Int("discarded", sum.Discarded))...)
		default:
			searchLog.Error("search_failed", append(attrs, slog.String("error", runErr.Error()))...)
		}
		return sum, runErr
	}

	searchLog.Info("search_complete", attrs...)
	return sum, nil
}
