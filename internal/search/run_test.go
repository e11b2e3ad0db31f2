package search

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/asheshgoplani/evalgrep/internal/archive"
	"github.com/asheshgoplani/evalgrep/internal/dispatch"
	"github.com/asheshgoplani/evalgrep/internal/evallog"
	"github.com/asheshgoplani/evalgrep/internal/evaltest"
	"github.com/asheshgoplani/evalgrep/internal/filter"
	"github.com/asheshgoplani/evalgrep/internal/scan"
)

func mustSpec(t *testing.T, opts filter.Options) filter.Spec {
	t.Helper()
	spec, err := filter.New(opts)
	require.NoError(t, err)
	return spec
}

func runCollect(t *testing.T, paths []string, spec filter.Spec, workers int) ([]scan.Match, *Summary, error) {
	t.Helper()
	var got []scan.Match
	sum, err := Run(context.Background(), paths, spec, Options{Dispatch: dispatch.Options{Workers: workers}},
		func(m scan.Match) error {
			got = append(got, m)
			return nil
		})
	return got, sum, err
}

func TestRunScenarios(t *testing.T) {
	path := evaltest.Scenario(t, t.TempDir(), "log.eval")

	tests := []struct {
		name string
		opts filter.Options
		want []string
	}{
		{"match all", filter.Options{}, []string{"hello", "world", "error: x"}},
		{"epoch and role", filter.Options{Epochs: "2", Roles: []string{"user"}}, []string{"error: x"}},
		{"message regex", filter.Options{Message: "err"}, []string{"error: x"}},
		{"epoch range", filter.Options{Epochs: "1-1"}, []string{"hello", "world"}},
		{"no match", filter.Options{SampleID: "^nope$"}, nil},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, sum, err := runCollect(t, []string{path}, mustSpec(t, tt.opts), 2)
			require.NoError(t, err)

			var contents []string
			for _, m := range got {
				contents = append(contents, m.Content)
			}
			assert.Equal(t, tt.want, contents)
			assert.Equal(t, len(tt.want), sum.Matches)
		})
	}
}

func TestRunEmitsInInputOrder(t *testing.T) {
	dir := t.TempDir()
	var paths []string
	for i := range 16 {
		var entries []evaltest.Entry
		// Earlier files are larger so later files tend to finish first.
		for j := range 40 - 2*i {
			entries = append(entries, evaltest.Sample(fmt.Sprintf("f%d-s%d", i, j), 1, evaltest.User("m")))
		}
		paths = append(paths, evaltest.Write(t, dir, fmt.Sprintf("%02d.eval", 15-i), entries...))
	}

	got, sum, err := runCollect(t, paths, mustSpec(t, filter.Options{}), 8)
	require.NoError(t, err)
	assert.Equal(t, 16, sum.FilesScanned)

	var order []string
	for _, m := range got {
		if len(order) == 0 || order[len(order)-1] != m.Path {
			order = append(order, m.Path)
		}
	}
	assert.Equal(t, paths, order)
}

func TestRunLaterFileFinishingFirst(t *testing.T) {
	dir := t.TempDir()
	b := evaltest.Write(t, dir, "b.eval", evaltest.Sample("b0", 1, evaltest.User("from b")))
	a := evaltest.Write(t, dir, "a.eval", evaltest.Sample("a0", 1, evaltest.User("from a")))

	// b.eval (index 0) is held back until a.eval (index 1) has been
	// submitted and counted.
	firstDone := make(chan struct{})
	var completed []int
	var mu sync.Mutex
	beforeSubmit = func(index int) {
		if index == 0 {
			<-firstDone
		}
		mu.Lock()
		completed = append(completed, index)
		mu.Unlock()
	}
	t.Cleanup(func() { beforeSubmit = nil })

	var got []scan.Match
	opts := Options{Dispatch: dispatch.Options{
		Workers: 2,
		OnFileDone: func(done, _ int) {
			if done == 1 {
				close(firstDone)
			}
		},
	}}
	_, err := Run(context.Background(), []string{b, a}, mustSpec(t, filter.Options{}), opts,
		func(m scan.Match) error {
			got = append(got, m)
			return nil
		})
	require.NoError(t, err)

	assert.Equal(t, []int{1, 0}, completed)
	require.Len(t, got, 2)
	assert.Equal(t, b, got[0].Path)
	assert.Equal(t, a, got[1].Path)
}

func TestRunPartialFailure(t *testing.T) {
	dir := t.TempDir()
	bad := evaltest.WriteCorrupt(t, dir, "bad.eval")
	good := evaltest.Write(t, dir, "good.eval",
		evaltest.Header(),
		evaltest.Sample("s1", 1, evaltest.User("hello")),
		evaltest.Entry{Name: "samples/s2_epoch_1.json", Body: `{"id": "s2", "epoch": 1, "messages": [`},
		evaltest.Sample("s3", 1, evaltest.Assistant("bye")),
	)

	got, sum, err := runCollect(t, []string{bad, good}, mustSpec(t, filter.Options{}), 2)
	require.NoError(t, err)

	require.Len(t, got, 2)
	assert.Equal(t, "s1", got[0].SampleID)
	assert.Equal(t, "s3", got[1].SampleID)
	assert.Equal(t, evallog.RoleAssistant, got[1].Role)

	require.Len(t, sum.FileErrors, 1)
	var fe *archive.FormatError
	require.ErrorAs(t, sum.FileErrors[0], &fe)
	assert.Equal(t, bad, fe.Path)

	require.Len(t, sum.EntryErrors, 1)
	var de *scan.EntryDecodeError
	require.ErrorAs(t, sum.EntryErrors[0], &de)
	assert.Equal(t, "samples/s2_epoch_1.json", de.Entry)

	assert.Len(t, sum.Errors(), 2)
	assert.Equal(t, 1, sum.FilesScanned)
	assert.Equal(t, ExitMatchWithErrors, sum.ExitCode(nil))
}

func TestRunIsIdempotent(t *testing.T) {
	dir := t.TempDir()
	paths := []string{
		evaltest.Scenario(t, dir, "one.eval"),
		evaltest.Scenario(t, dir, "two.eval"),
	}
	spec := mustSpec(t, filter.Options{Message: "o"})

	first, _, err := runCollect(t, paths, spec, 4)
	require.NoError(t, err)
	second, _, err := runCollect(t, paths, spec, 1)
	require.NoError(t, err)
	assert.Equal(t, first, second)
}

func TestRunNoPaths(t *testing.T) {
	got, sum, err := runCollect(t, nil, mustSpec(t, filter.Options{}), 2)
	require.NoError(t, err)
	assert.Empty(t, got)
	assert.Equal(t, ExitNoMatch, sum.ExitCode(nil))
}

func TestRunEmitErrorStopsRun(t *testing.T) {
	dir := t.TempDir()
	paths := []string{
		evaltest.Scenario(t, dir, "one.eval"),
		evaltest.Scenario(t, dir, "two.eval"),
	}
	boom := errors.New("broken pipe")

	calls := 0
	sum, err := Run(context.Background(), paths, mustSpec(t, filter.Options{}), Options{},
		func(scan.Match) error {
			calls++
			return boom
		})
	require.ErrorIs(t, err, boom)
	assert.Equal(t, 1, calls)
	assert.Zero(t, sum.Matches)
	assert.Equal(t, ExitFatal, sum.ExitCode(err))
}

func TestRunCancelled(t *testing.T) {
	path := evaltest.Scenario(t, t.TempDir(), "log.eval")
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	sum, err := Run(ctx, []string{path}, mustSpec(t, filter.Options{}), Options{},
		func(scan.Match) error { return nil })
	require.ErrorIs(t, err, context.Canceled)
	assert.True(t, sum.Cancelled)
	assert.Zero(t, sum.Matches)
	assert.Equal(t, ExitCancelled, sum.ExitCode(err))
}

func TestExitCode(t *testing.T) {
	fileErr := &archive.FormatError{Path: filepath.Join("x", "bad.eval"), Err: errors.New("not a zip")}
	entryErr := &scan.EntryDecodeError{Path: "a.eval", Entry: "samples/x.json", Err: evallog.ErrMissingID}

	tests := []struct {
		name string
		sum  *Summary
		err  error
		want int
	}{
		{"matches", &Summary{Matches: 2}, nil, ExitMatch},
		{"no matches", &Summary{}, nil, ExitNoMatch},
		{"matches with file error", &Summary{Matches: 1, FileErrors: []error{fileErr}}, nil, ExitMatchWithErrors},
		{"no matches with entry error", &Summary{EntryErrors: []error{entryErr}}, nil, ExitNoMatchWithErrors},
		{"fatal", nil, &filter.InvalidFilterError{Field: "epochs", Value: "x"}, ExitFatal},
		{"cancelled", &Summary{Matches: 3}, context.Canceled, ExitCancelled},
		{"nil summary", nil, nil, ExitNoMatch},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.sum.ExitCode(tt.err))
		})
	}
}
