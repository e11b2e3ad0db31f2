package scan

import (
	"context"
	"errors"
	"iter"
	"log/slog"

	"github.com/asheshgoplani/evalgrep/internal/archive"
	"github.com/asheshgoplani/evalgrep/internal/logging"
)

var scanLog = logging.ForComponent(logging.CompScan)

// Scanner walks the entries of one open archive.
type Scanner struct {
	h           *archive.Handle
	ev          *Evaluator
	stats       Stats
	interrupted bool
	used        bool
}

// NewScanner returns a scanner over h. The caller keeps ownership of h.
func NewScanner(h *archive.Handle, ev *Evaluator) *Scanner {
	return &Scanner{h: h, ev: ev}
}

// All returns the matches of the archive lazily: entries are evaluated one at
// a time as the sequence is consumed, in archive order, and messages within
// an entry in transcript order. A corrupt entry is yielded as
// (Match{}, *EntryDecodeError) and iteration continues with the next entry.
//
// Cancellation is checked between entries, so the entry in progress always
// completes. The sequence is single-pass.
func (s *Scanner) All(ctx context.Context) iter.Seq2[Match, error] {
	return func(yield func(Match, error) bool) {
		if s.used {
			return
		}
		s.used = true

		for _, entry := range s.h.Entries() {
			if ctx.Err() != nil {
				s.interrupted = true
				return
			}
			matches, err := s.ev.Evaluate(s.h, entry, &s.stats)
			if err != nil {
				if !yield(Match{}, err) {
					return
				}
				continue
			}
			for _, m := range matches {
				if !yield(m, nil) {
					return
				}
			}
		}
	}
}

// Stats returns the stage counters accumulated so far.
func (s *Scanner) Stats() Stats { return s.stats }

// Interrupted reports whether iteration stopped because ctx was cancelled.
func (s *Scanner) Interrupted() bool { return s.interrupted }

// Result is everything one archive contributed to a search.
type Result struct {
	Path        string
	Matches     []Match
	EntryErrors []*EntryDecodeError
	Stats       Stats
	Interrupted bool
}

// ScanFile opens path, scans it to completion (or cancellation) and closes
// it. An archive that cannot be opened returns *archive.FormatError and no
// result; entry-level failures are collected in Result.EntryErrors.
func ScanFile(ctx context.Context, path string, ev *Evaluator) (*Result, error) {
	h, err := archive.Open(path)
	if err != nil {
		return nil, err
	}
	defer h.Close()

	sc := NewScanner(h, ev)
	res := &Result{Path: path}
	for m, err := range sc.All(ctx) {
		if err != nil {
			var de *EntryDecodeError
			if !errors.As(err, &de) {
				return nil, err
			}
			res.EntryErrors = append(res.EntryErrors, de)
			logging.Aggregate(logging.CompScan, "entry_decode_failed",
				slog.String("path", de.Path),
				slog.String("entry", de.Entry))
			scanLog.Debug("entry_decode_failed",
				slog.String("path", de.Path),
				slog.String("entry", de.Entry),
				slog.String("error", de.Err.Error()))
			continue
		}
		res.Matches = append(res.Matches, m)
	}
	res.Stats = sc.Stats()
	res.Interrupted = sc.Interrupted()

	scanLog.Debug("file_scanned",
		slog.String("path", path),
		slog.Int("entries", res.Stats.Entries),
		slog.Int("decoded", res.Stats.Decoded),
		slog.Int("matches", res.Stats.Matches),
		slog.Int("decode_errors", res.Stats.DecodeErrors),
		slog.Bool("interrupted", res.Interrupted))
	return res, nil
}
