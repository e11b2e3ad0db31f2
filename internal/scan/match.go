// Package scan evaluates filters against the entries of one eval archive,
// cheapest checks first, and yields the matching messages in archive order.
package scan

import (
	"fmt"

	"github.com/asheshgoplani/evalgrep/internal/evallog"
)

// Span is a byte range [Start, End) of a message regex match within Content.
type Span struct {
	Start int
	End   int
}

// Match is one message that passed every filter.
type Match struct {
	Path     string
	SampleID string
	Epoch    int
	Role     evallog.Role
	Content  string
	Spans    []Span // nil when no message pattern was given
}

// EntryDecodeError reports an entry whose body could not be decoded. Only
// that entry is skipped; the rest of the archive is still scanned.
type EntryDecodeError struct {
	Path  string
	Entry string
	Err   error
}

func (e *EntryDecodeError) Error() string {
	return fmt.Sprintf("%s: entry %s: %v", e.Path, e.Entry, e.Err)
}

func (e *EntryDecodeError) Unwrap() error { return e.Err }

// Stats counts how far entries progressed through the evaluation stages.
type Stats struct {
	Entries             int // entries examined
	NotSamples          int // non-transcript entries (header, summaries, journal)
	RejectedBySampleID  int // rejected from the entry name, body untouched
	RejectedByEpochHint int // rejected from the entry name, body untouched
	Decoded             int // bodies decompressed and parsed successfully
	DecodeErrors        int
	RejectedByEpoch     int // rejected after decode
	Matches             int
}

// Add accumulates o into s.
func (s *Stats) Add(o Stats) {
	s.Entries += o.Entries
	s.NotSamples += o.NotSamples
	s.RejectedBySampleID += o.RejectedBySampleID
	s.RejectedByEpochHint += o.RejectedByEpochHint
	s.Decoded += o.Decoded
	s.DecodeErrors += o.DecodeErrors
	s.RejectedByEpoch += o.RejectedByEpoch
	s.Matches += o.Matches
}
