// Package dispatch fans archive paths out over a bounded pool of workers,
// one archive per worker at a time.
package dispatch

import (
	"context"
	"errors"
	"log/slog"
	"runtime"
	"sync/atomic"

	"golang.org/x/sync/errgroup"
	"golang.org/x/time/rate"

	"github.com/asheshgoplani/evalgrep/internal/logging"
	"github.com/asheshgoplani/evalgrep/internal/scan"
)

var dispatchLog = logging.ForComponent(logging.CompDispatch)

// Options configures a Dispatcher.
type Options struct {
	// Workers bounds how many archives are scanned at once (default: NumCPU).
	Workers int

	// FilesPerSecond throttles how fast new archives are opened; 0 disables.
	FilesPerSecond float64

	// OnFileDone is called after each archive finishes, from the worker
	// goroutine that scanned it. It must be safe for concurrent use.
	OnFileDone func(done, total int)
}

// FileResult is the completion event for one input path. Index is the
// path's position in the input order. Err is set when the archive could not
// be opened; the embedded Result is then nil.
type FileResult struct {
	Index int
	Path  string
	*scan.Result
	Err error
}

// Dispatcher runs one scan.ScanFile per path on a bounded pool.
type Dispatcher struct {
	workers    int
	limiter    *rate.Limiter
	onFileDone func(done, total int)
}

// New returns a dispatcher. The pool itself lives only for the duration of
// each Run call.
func New(opts Options) *Dispatcher {
	workers := opts.Workers
	if workers <= 0 {
		workers = runtime.NumCPU()
	}
	d := &Dispatcher{workers: workers, onFileDone: opts.OnFileDone}
	if opts.FilesPerSecond > 0 {
		burst := int(opts.FilesPerSecond)
		if burst < 1 {
			burst = 1
		}
		d.limiter = rate.NewLimiter(rate.Limit(opts.FilesPerSecond), burst)
	}
	return d
}

// Workers returns the pool size.
func (d *Dispatcher) Workers() int { return d.workers }

// Run scans every path and hands each completion to submit, in completion
// order. A file that cannot be opened is submitted with Err set and does not
// affect the others. submit may be called concurrently; an error from it
// aborts the run.
//
// After ctx is cancelled no new archive is started and archives in flight
// stop after their current entry. Interrupted archives are not submitted.
func (d *Dispatcher) Run(ctx context.Context, paths []string, ev *scan.Evaluator, submit func(FileResult) error) error {
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(d.workers)

	total := len(paths)
	var done atomic.Int64

	dispatchLog.Debug("dispatch_start",
		slog.Int("files", total),
		slog.Int("workers", d.workers))

	for i, path := range paths {
		if gctx.Err() != nil {
			break
		}
		g.Go(func() error {
			if gctx.Err() != nil {
				return nil
			}
			if d.limiter != nil {
				if err := d.limiter.Wait(gctx); err != nil {
					return nil
				}
			}

			fr := FileResult{Index: i, Path: path}
			res, err := scan.ScanFile(gctx, path, ev)
			if err != nil {
				fr.Err = err
				logging.Aggregate(logging.CompDispatch, "file_failed", slog.String("path", path))
				dispatchLog.Warn("file_failed",
					slog.String("path", path),
					slog.String("error", err.Error()))
			} else {
				if res.Interrupted {
					return nil
				}
				fr.Result = res
			}

			if err := submit(fr); err != nil {
				return err
			}
			if d.onFileDone != nil {
				d.onFileDone(int(done.Add(1)), total)
			}
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return err
	}
	if err := ctx.Err(); err != nil {
		dispatchLog.Info("dispatch_cancelled", slog.Int64("files_done", done.Load()))
		return err
	}
	return nil
}

// Interrupted reports whether err means the run was stopped from outside.
func Interrupted(err error) bool {
	return errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded)
}
