package main

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/goccy/go-json"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/asheshgoplani/evalgrep/internal/evaltest"
	"github.com/asheshgoplani/evalgrep/internal/search"
)

type result struct {
	code   int
	stdout string
	stderr string
}

func runCLI(t *testing.T, ctx context.Context, args ...string) result {
	t.Helper()
	var stdout, stderr bytes.Buffer
	a := &app{stdout: &stdout, stderr: &stderr}
	code := a.execute(ctx, args)
	return result{code: code, stdout: stdout.String(), stderr: stderr.String()}
}

func TestCLIScenarioEpochAndRole(t *testing.T) {
	path := evaltest.Scenario(t, t.TempDir(), "log.eval")

	res := runCLI(t, context.Background(), path, "-e", "2", "-r", "user")
	assert.Equal(t, search.ExitMatch, res.code, res.stderr)
	assert.Equal(t, "\nlog.eval sample s1 epoch 2 | [user]\nerror: x\n\n", res.stdout)
	assert.Empty(t, res.stderr)
}

func TestCLIMessageRegexOverDirectory(t *testing.T) {
	dir := t.TempDir()
	evaltest.Scenario(t, dir, "b.eval")
	evaltest.Scenario(t, filepath.Join(dir, "nested"), "a.eval")

	res := runCLI(t, context.Background(), dir, "-m", "ERR", "-i", "-t", "2")
	assert.Equal(t, search.ExitMatch, res.code, res.stderr)
	assert.Equal(t,
		"\nb.eval sample s1 epoch 2 | [user]\nerror: x\n\n"+
			"\na.eval sample s1 epoch 2 | [user]\nerror: x\n\n",
		res.stdout)
}

func TestCLINoMatches(t *testing.T) {
	path := evaltest.Scenario(t, t.TempDir(), "log.eval")

	res := runCLI(t, context.Background(), path, "-m", "nothing-like-this")
	assert.Equal(t, search.ExitNoMatch, res.code)
	assert.Empty(t, res.stdout)
}

func TestCLIJSONOutput(t *testing.T) {
	path := evaltest.Scenario(t, t.TempDir(), "log.eval")

	res := runCLI(t, context.Background(), path, "--json", "-r", "assistant,user", "-e", "1")
	require.Equal(t, search.ExitMatch, res.code, res.stderr)

	lines := strings.Split(strings.TrimSpace(res.stdout), "\n")
	require.Len(t, lines, 2)
	var rec struct {
		Path     string `json:"path"`
		SampleID string `json:"sample_id"`
		Epoch    int    `json:"epoch"`
		Role     string `json:"role"`
		Content  string `json:"content"`
	}
	require.NoError(t, json.Unmarshal([]byte(lines[1]), &rec))
	assert.Equal(t, path, rec.Path)
	assert.Equal(t, "assistant", rec.Role)
	assert.Equal(t, "world", rec.Content)
	assert.Equal(t, 1, rec.Epoch)
}

func TestCLIPartialFailure(t *testing.T) {
	dir := t.TempDir()
	evaltest.WriteCorrupt(t, dir, "bad.eval")
	evaltest.Scenario(t, dir, "good.eval")

	res := runCLI(t, context.Background(), dir, "-m", "hello")
	assert.Equal(t, search.ExitMatchWithErrors, res.code)
	assert.Contains(t, res.stdout, "hello")
	assert.Contains(t, res.stderr, "bad.eval")
	assert.Contains(t, res.stderr, "1 of 2 files scanned")
}

func TestCLINoMatchesWithErrors(t *testing.T) {
	bad := evaltest.WriteCorrupt(t, t.TempDir(), "bad.eval")

	res := runCLI(t, context.Background(), bad)
	assert.Equal(t, search.ExitNoMatchWithErrors, res.code)
}

func TestCLIFatalErrors(t *testing.T) {
	path := evaltest.Scenario(t, t.TempDir(), "log.eval")

	tests := []struct {
		name string
		args []string
		want string
	}{
		{"missing path", []string{filepath.Join(t.TempDir(), "missing")}, "path not found"},
		{"bad epochs", []string{path, "-e", "3-1"}, "invalid epochs filter"},
		{"bad role", []string{path, "-r", "narrator"}, "invalid roles filter"},
		{"bad regex", []string{path, "-m", "("}, "invalid message filter"},
		{"bad color", []string{path, "--color", "rainbow"}, "output.color"},
		{"unknown flag", []string{path, "--frobnicate"}, "unknown flag"},
		{"no path", nil, "requires at least 1 arg"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			res := runCLI(t, context.Background(), tt.args...)
			assert.Equal(t, search.ExitFatal, res.code)
			assert.Contains(t, res.stderr, tt.want)
			assert.Empty(t, res.stdout)
		})
	}
}

func TestCLICancelled(t *testing.T) {
	path := evaltest.Scenario(t, t.TempDir(), "log.eval")
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	res := runCLI(t, ctx, path)
	assert.Equal(t, search.ExitCancelled, res.code)
	assert.Contains(t, res.stderr, "interrupted")
}

func TestCLIConfigFile(t *testing.T) {
	dir := t.TempDir()
	path := evaltest.Scenario(t, dir, "log.eval")
	cfgPath := filepath.Join(dir, "config.toml")
	require.NoError(t, os.WriteFile(cfgPath, []byte("[output]\nformat = \"json\"\n"), 0o644))

	res := runCLI(t, context.Background(), path, "--config", cfgPath, "-m", "world")
	require.Equal(t, search.ExitMatch, res.code, res.stderr)
	assert.True(t, strings.HasPrefix(res.stdout, "{"), res.stdout)
	assert.Contains(t, res.stdout, `"content":"world"`)
}

func TestCLITruncate(t *testing.T) {
	path := evaltest.Write(t, t.TempDir(), "log.eval",
		evaltest.Sample("s1", 1, evaltest.User("a very long message body")))

	res := runCLI(t, context.Background(), path, "--truncate", "8")
	require.Equal(t, search.ExitMatch, res.code, res.stderr)
	assert.Contains(t, res.stdout, "\na very …\n")
}

func TestCLIDebugLogsToStderr(t *testing.T) {
	path := evaltest.Scenario(t, t.TempDir(), "log.eval")

	res := runCLI(t, context.Background(), path, "--debug", "-e", "9")
	assert.Equal(t, search.ExitNoMatch, res.code)
	assert.Contains(t, res.stderr, "search_complete")
}

func TestVersion(t *testing.T) {
	res := runCLI(t, context.Background(), "version")
	assert.Equal(t, 0, res.code)
	assert.Equal(t, "evalgrep v"+Version+"\n", res.stdout)
}
