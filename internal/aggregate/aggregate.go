// Package aggregate restores input order over results that complete out of
// order.
package aggregate

import (
	"fmt"
	"log/slog"
	"sync"

	"github.com/asheshgoplani/evalgrep/internal/logging"
)

var aggLog = logging.ForComponent(logging.CompAggregate)

// InternalError reports a broken reorder-buffer invariant. It indicates a
// bug in the caller, never bad input data.
type InternalError struct {
	Index  int
	Reason string
}

func (e *InternalError) Error() string {
	return fmt.Sprintf("internal aggregation error at index %d: %s", e.Index, e.Reason)
}

// Aggregator is a reorder buffer keyed by input index. Values are submitted
// in any order from any goroutine and leave through Results strictly in index
// order. A value waits in the buffer until every lower index has been
// emitted.
//
// Results is buffered for the full input size, so Submit never blocks on a
// slow consumer.
type Aggregator[T any] struct {
	mu      sync.Mutex
	pending map[int]T
	next    int
	total   int
	out     chan T
	closed  bool
}

// New returns an aggregator expecting exactly one value for each index in
// [0, total).
func New[T any](total int) *Aggregator[T] {
	a := &Aggregator[T]{
		pending: make(map[int]T),
		total:   total,
		out:     make(chan T, total),
	}
	if total == 0 {
		a.closed = true
		close(a.out)
	}
	return a
}

// Submit stores v for index and emits every value that is now in order. It
// returns *InternalError for an index outside [0, total) or one already
// submitted. After Discard, submissions are dropped.
func (a *Aggregator[T]) Submit(index int, v T) error {
	a.mu.Lock()
	defer a.mu.Unlock()

	if a.closed {
		if a.next >= a.total {
			return &InternalError{Index: index, Reason: "submitted after every index was emitted"}
		}
		return nil
	}
	if index < 0 || index >= a.total {
		return &InternalError{Index: index, Reason: fmt.Sprintf("outside input range [0, %d)", a.total)}
	}
	if _, dup := a.pending[index]; dup || index < a.next {
		return &InternalError{Index: index, Reason: "submitted twice"}
	}

	a.pending[index] = v
	for {
		head, ok := a.pending[a.next]
		if !ok {
			break
		}
		delete(a.pending, a.next)
		a.out <- head
		a.next++
	}

	if a.next == a.total {
		a.closed = true
		close(a.out)
	}
	return nil
}

// Results yields values in index order. It is closed once every index has
// been emitted or Discard is called.
func (a *Aggregator[T]) Results() <-chan T { return a.out }

// Complete reports whether every index has been emitted.
func (a *Aggregator[T]) Complete() bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.next == a.total
}

// Pending returns how many values are buffered waiting for a predecessor.
func (a *Aggregator[T]) Pending() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return len(a.pending)
}

// Discard drops every buffered value that cannot be emitted in order and
// closes Results. Values already emitted are unaffected. It returns the
// number of values dropped.
func (a *Aggregator[T]) Discard() int {
	a.mu.Lock()
	defer a.mu.Unlock()

	if a.closed {
		return 0
	}
	dropped := len(a.pending)
	a.pending = make(map[int]T)
	a.closed = true
	close(a.out)

	aggLog.Info("aggregator_discarded",
		slog.Int("dropped", dropped),
		slog.Int("emitted", a.next),
		slog.Int("total", a.total))
	return dropped
}
