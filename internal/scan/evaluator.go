package scan

import (
	"fmt"
	"io"

	"github.com/asheshgoplani/evalgrep/internal/archive"
	"github.com/asheshgoplani/evalgrep/internal/evallog"
	"github.com/asheshgoplani/evalgrep/internal/filter"
)

// EntrySource opens entry bodies. *archive.Handle implements it.
type EntrySource interface {
	Path() string
	OpenEntry(archive.Entry) (io.ReadCloser, error)
}

// verdict is the outcome of one stage.
type verdict uint8

const (
	proceed verdict = iota
	reject
)

// candidate carries one entry through the stages. sample stays nil until the
// decode stage runs.
type candidate struct {
	src    EntrySource
	entry  archive.Entry
	sample *evallog.Sample
}

// stage is one predicate of the pipeline. Stages run in slice order and the
// first reject ends evaluation of the entry.
type stage struct {
	name string
	run  func(ev *Evaluator, c *candidate, st *Stats) (verdict, error)
}

// stages is ordered by cost: name checks, then decompress+parse, then checks
// against decoded content.
var stages = []stage{
	{name: "sample_entry", run: (*Evaluator).stageSampleEntry},
	{name: "sample_id", run: (*Evaluator).stageSampleID},
	{name: "epoch_hint", run: (*Evaluator).stageEpochHint},
	{name: "decode", run: (*Evaluator).stageDecode},
	{name: "epoch", run: (*Evaluator).stageEpoch},
}

// Evaluator applies a filter.Spec to archive entries. It holds no mutable
// state and may be shared by every worker.
type Evaluator struct {
	spec filter.Spec
}

// NewEvaluator returns an evaluator for spec.
func NewEvaluator(spec filter.Spec) *Evaluator {
	return &Evaluator{spec: spec}
}

// Evaluate runs entry through the stages and returns its matching messages
// in transcript order. A decode failure is returned as *EntryDecodeError; a
// rejected entry returns (nil, nil).
func (ev *Evaluator) Evaluate(src EntrySource, entry archive.Entry, st *Stats) ([]Match, error) {
	st.Entries++
	c := &candidate{src: src, entry: entry}
	for _, s := range stages {
		v, err := s.run(ev, c, st)
		if err != nil {
			return nil, err
		}
		if v == reject {
			return nil, nil
		}
	}
	matches := ev.matchMessages(c)
	st.Matches += len(matches)
	return matches, nil
}

func (ev *Evaluator) stageSampleEntry(c *candidate, st *Stats) (verdict, error) {
	if !c.entry.IsSample {
		st.NotSamples++
		return reject, nil
	}
	return proceed, nil
}

func (ev *Evaluator) stageSampleID(c *candidate, st *Stats) (verdict, error) {
	if !ev.spec.MatchSampleID(c.entry.SampleID) {
		st.RejectedBySampleID++
		return reject, nil
	}
	return proceed, nil
}

// stageEpochHint rejects from the name-derived epoch. Entries without an
// epoch in their name are deferred to the post-decode check.
func (ev *Evaluator) stageEpochHint(c *candidate, st *Stats) (verdict, error) {
	if ev.spec.Epochs.IsAll() || c.entry.Epoch == 0 {
		return proceed, nil
	}
	if !ev.spec.Epochs.Contains(c.entry.Epoch) {
		st.RejectedByEpochHint++
		return reject, nil
	}
	return proceed, nil
}

func (ev *Evaluator) stageDecode(c *candidate, st *Stats) (verdict, error) {
	sample, err := decodeEntry(c.src, c.entry)
	if err != nil {
		st.DecodeErrors++
		return reject, &EntryDecodeError{Path: c.src.Path(), Entry: c.entry.Name, Err: err}
	}
	// The decoded epoch is authoritative; the name is only a fallback.
	if sample.Epoch == 0 {
		sample.Epoch = c.entry.Epoch
	}
	if sample.Epoch == 0 {
		st.DecodeErrors++
		return reject, &EntryDecodeError{
			Path:  c.src.Path(),
			Entry: c.entry.Name,
			Err:   fmt.Errorf("%w: absent from body and entry name", evallog.ErrInvalidEpoch),
		}
	}
	st.Decoded++
	c.sample = sample
	return proceed, nil
}

func (ev *Evaluator) stageEpoch(c *candidate, st *Stats) (verdict, error) {
	if !ev.spec.Epochs.Contains(c.sample.Epoch) {
		st.RejectedByEpoch++
		return reject, nil
	}
	return proceed, nil
}

func decodeEntry(src EntrySource, entry archive.Entry) (*evallog.Sample, error) {
	rc, err := src.OpenEntry(entry)
	if err != nil {
		return nil, fmt.Errorf("open entry: %w", err)
	}
	defer rc.Close()
	return evallog.Decode(rc)
}

// matchMessages keeps the messages whose role is selected and whose content
// matches the message pattern.
func (ev *Evaluator) matchMessages(c *candidate) []Match {
	var out []Match
	for _, msg := range c.sample.Messages {
		if !ev.spec.Roles.Contains(msg.Role) {
			continue
		}
		var spans []Span
		if ev.spec.Message != nil {
			locs := ev.spec.Message.FindAllStringIndex(msg.Content, -1)
			if locs == nil {
				continue
			}
			spans = make([]Span, len(locs))
			for i, loc := range locs {
				spans[i] = Span{Start: loc[0], End: loc[1]}
			}
		}
		out = append(out, Match{
			Path:     c.src.Path(),
			SampleID: c.sample.ID,
			Epoch:    c.sample.Epoch,
			Role:     msg.Role,
			Content:  msg.Content,
			Spans:    spans,
		})
	}
	return out
}
