package logging

import (
	"bytes"
	"encoding/json"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// syncBuffer guards a bytes.Buffer shared with the flush goroutine.
type syncBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (b *syncBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Write(p)
}

func (b *syncBuffer) records(t *testing.T) []map[string]any {
	t.Helper()
	b.mu.Lock()
	defer b.mu.Unlock()
	var out []map[string]any
	for _, line := range bytes.Split(b.buf.Bytes(), []byte("\n")) {
		if len(line) == 0 {
			continue
		}
		var r map[string]any
		require.NoError(t, json.Unmarshal(line, &r))
		out = append(out, r)
	}
	return out
}

func TestAggregatorFlushesSummaries(t *testing.T) {
	var buf syncBuffer
	agg := NewAggregator(slog.New(slog.NewJSONHandler(&buf, nil)), 1)
	agg.Start()

	agg.Record(CompScan, "entry_decode_failed", slog.String("path", "a.eval"))
	agg.Record(CompScan, "entry_decode_failed", slog.String("path", "b.eval"))
	agg.Record(CompScan, "entry_decode_failed", slog.String("path", "c.eval"))
	agg.Record(CompDispatch, "file_failed")

	time.Sleep(1500 * time.Millisecond)
	agg.Stop()

	var summary map[string]any
	for _, r := range buf.records(t) {
		if r["msg"] == "event_summary" && r["event"] == "entry_decode_failed" {
			summary = r
		}
	}
	require.NotNil(t, summary, "entry_decode_failed summary not found")
	assert.Equal(t, float64(3), summary["count"])
	assert.Equal(t, "c.eval", summary["path"], "fields come from the most recent record")
}

func TestAggregatorTotalsSurviveFlush(t *testing.T) {
	var buf syncBuffer
	agg := NewAggregator(slog.New(slog.NewJSONHandler(&buf, nil)), 60)
	agg.Start()

	agg.Record(CompScan, "entry_decode_failed")
	agg.flush()
	agg.Record(CompScan, "entry_decode_failed")
	assert.Equal(t, int64(2), agg.Total(CompScan, "entry_decode_failed"))
	assert.Zero(t, agg.Total(CompScan, "never_recorded"))

	agg.Stop()

	var total map[string]any
	for _, r := range buf.records(t) {
		if r["msg"] == "event_total" {
			total = r
		}
	}
	require.NotNil(t, total)
	assert.Equal(t, float64(2), total["count"])
}

func TestAggregatorNilLogger(t *testing.T) {
	agg := NewAggregator(nil, 1)
	agg.Start()
	agg.Record(CompScan, "test_event")
	agg.Stop()
	assert.Equal(t, int64(1), agg.Total(CompScan, "test_event"))
}

func TestAggregatorStopWithoutStart(t *testing.T) {
	var buf syncBuffer
	agg := NewAggregator(slog.New(slog.NewJSONHandler(&buf, nil)), 60)
	agg.Record(CompSearch, "run")
	agg.Stop()
	assert.NotEmpty(t, buf.records(t), "Stop flushes even when the loop never ran")
}
