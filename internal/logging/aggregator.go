package logging

import (
	"log/slog"
	"sort"
	"sync"
	"time"
)

// aggregateKey identifies an event type for batching.
type aggregateKey struct {
	Component string
	Event     string
}

// aggregateEntry tracks a batched event's count within the current window and
// the fields of its most recent occurrence.
type aggregateEntry struct {
	Count  int64
	Fields []slog.Attr
}

// Aggregator batches high-frequency events (one corrupt sample in a large
// archive set can repeat thousands of times) and emits one summary line per
// event type per window. It also keeps run-wide totals.
type Aggregator struct {
	logger   *slog.Logger
	interval time.Duration

	mu      sync.Mutex
	window  map[aggregateKey]*aggregateEntry
	totals  map[aggregateKey]int64
	started bool

	done chan struct{}
	wg   sync.WaitGroup
}

// NewAggregator creates an aggregator that flushes every intervalSecs seconds.
// If logger is nil, recorded events are only counted.
func NewAggregator(logger *slog.Logger, intervalSecs int) *Aggregator {
	if intervalSecs <= 0 {
		intervalSecs = 30
	}
	return &Aggregator{
		logger:   logger,
		interval: time.Duration(intervalSecs) * time.Second,
		window:   make(map[aggregateKey]*aggregateEntry),
		totals:   make(map[aggregateKey]int64),
		done:     make(chan struct{}),
	}
}

// Start begins the background flush goroutine.
func (a *Aggregator) Start() {
	a.mu.Lock()
	a.started = true
	a.mu.Unlock()
	a.wg.Add(1)
	go a.flushLoop()
}

// Stop flushes the open window, logs run totals and stops the background
// goroutine. Safe to call on an aggregator that was never started.
func (a *Aggregator) Stop() {
	a.mu.Lock()
	started := a.started
	a.started = false
	a.mu.Unlock()

	if started {
		close(a.done)
		a.wg.Wait()
	}
	a.flush()
	a.logTotals()
}

// Record increments the counter for an event type. fields are kept from the
// most recent call.
func (a *Aggregator) Record(component, event string, fields ...slog.Attr) {
	a.mu.Lock()
	defer a.mu.Unlock()

	key := aggregateKey{Component: component, Event: event}
	entry, ok := a.window[key]
	if !ok {
		entry = &aggregateEntry{}
		a.window[key] = entry
	}
	entry.Count++
	if len(fields) > 0 {
		entry.Fields = fields
	}
	a.totals[key]++
}

// Total returns how many times component/event was recorded since creation.
func (a *Aggregator) Total(component, event string) int64 {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.totals[aggregateKey{Component: component, Event: event}]
}

func (a *Aggregator) flushLoop() {
	defer a.wg.Done()
	ticker := time.NewTicker(a.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			a.flush()
		case <-a.done:
			return
		}
	}
}

func (a *Aggregator) flush() {
	a.mu.Lock()
	if len(a.window) == 0 {
		a.mu.Unlock()
		return
	}
	window := a.window
	a.window = make(map[aggregateKey]*aggregateEntry)
	a.mu.Unlock()

	if a.logger == nil {
		return
	}

	for _, key := range sortedKeys(window) {
		entry := window[key]
		attrs := []any{
			slog.String("component", key.Component),
			slog.String("event", key.Event),
			slog.Int64("count", entry.Count),
			slog.Int("window_seconds", int(a.interval.Seconds())),
		}
		for _, f := range entry.Fields {
			attrs = append(attrs, f)
		}
		a.logger.Info("event_summary", attrs...)
	}
}

func (a *Aggregator) logTotals() {
	if a.logger == nil {
		return
	}
	a.mu.Lock()
	totals := make(map[aggregateKey]int64, len(a.totals))
	for k, v := range a.totals {
		totals[k] = v
	}
	a.mu.Unlock()

	for _, key := range sortedKeys(totals) {
		a.logger.Info("event_total",
			slog.String("component", key.Component),
			slog.String("event", key.Event),
			slog.Int64("count", totals[key]))
	}
}

func sortedKeys[V any](m map[aggregateKey]V) []aggregateKey {
	keys := make([]aggregateKey, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool {
		if keys[i].Component != keys[j].Component {
			return keys[i].Component < keys[j].Component
		}
		return keys[i].Event < keys[j].Event
	})
	return keys
}
