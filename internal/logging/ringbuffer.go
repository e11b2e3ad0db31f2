package logging

import (
	"os"
	"sync"
)

// RingBuffer keeps the most recent log records in memory for crash reports.
// Each Write is one record (slog handlers emit one Write per record); when
// the byte budget is exceeded the oldest whole records are evicted, so a dump
// never starts mid-record. A single record larger than the budget is kept
// clipped to its tail.
type RingBuffer struct {
	mu      sync.Mutex
	records [][]byte
	head    int // index of the oldest live record
	bytes   int
	size    int
	evicted int
}

// NewRingBuffer creates a ring buffer holding at most size bytes.
func NewRingBuffer(size int) *RingBuffer {
	if size <= 0 {
		size = 1024 * 1024
	}
	return &RingBuffer{size: size}
}

// Write implements io.Writer.
func (rb *RingBuffer) Write(p []byte) (int, error) {
	n := len(p)
	if n == 0 {
		return 0, nil
	}
	if n > rb.size {
		p = p[n-rb.size:]
	}
	rec := make([]byte, len(p))
	copy(rec, p)

	rb.mu.Lock()
	defer rb.mu.Unlock()

	rb.records = append(rb.records, rec)
	rb.bytes += len(rec)
	for rb.bytes > rb.size {
		rb.bytes -= len(rb.records[rb.head])
		rb.records[rb.head] = nil
		rb.head++
		rb.evicted++
	}
	if rb.head > len(rb.records)/2 {
		rb.records = append([][]byte(nil), rb.records[rb.head:]...)
		rb.head = 0
	}
	return n, nil
}

// Len returns the number of buffered bytes.
func (rb *RingBuffer) Len() int {
	rb.mu.Lock()
	defer rb.mu.Unlock()
	return rb.bytes
}

// Evicted returns how many records were dropped to stay within budget.
func (rb *RingBuffer) Evicted() int {
	rb.mu.Lock()
	defer rb.mu.Unlock()
	return rb.evicted
}

// Bytes returns the buffered records oldest first.
func (rb *RingBuffer) Bytes() []byte {
	rb.mu.Lock()
	defer rb.mu.Unlock()

	out := make([]byte, 0, rb.bytes)
	for _, rec := range rb.records[rb.head:] {
		out = append(out, rec...)
	}
	return out
}

// DumpToFile writes the buffered records to path, oldest first.
func (rb *RingBuffer) DumpToFile(path string) error {
	return os.WriteFile(path, rb.Bytes(), 0o600)
}
