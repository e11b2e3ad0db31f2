// Package evaltest builds small eval archives for tests.
package evaltest

import (
	"fmt"
	"os"
	"path/filepath"
	"testing"

	"github.com/goccy/go-json"
	"github.com/klauspost/compress/zip"
)

// Entry is one archive member. Body is written verbatim.
type Entry struct {
	Name string
	Body string
}

// Msg is a transcript message in a generated sample.
type Msg struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type sampleDoc struct {
	ID       string `json:"id"`
	Epoch    int    `json:"epoch"`
	Input    string `json:"input"`
	Messages []Msg  `json:"messages"`
}

// Sample returns a well-formed sample entry named by the eval log convention.
func Sample(id string, epoch int, msgs ...Msg) Entry {
	if msgs == nil {
		msgs = []Msg{}
	}
	body, err := json.Marshal(sampleDoc{ID: id, Epoch: epoch, Input: "input for " + id, Messages: msgs})
	if err != nil {
		panic(err)
	}
	return Entry{Name: fmt.Sprintf("samples/%s_epoch_%d.json", id, epoch), Body: string(body)}
}

// Header returns the non-sample header entry every eval log carries.
func Header() Entry {
	return Entry{
		Name: "header.json",
		Body: `{"eval": {"run_id": "run-1", "task": "test_task"}, "dataset": {"name": "ds", "sample_ids": []}, "config": {"epochs": 1, "message_limit": 10}}`,
	}
}

// User, Assistant, System and Tool are shorthands for messages.
func User(content string) Msg      { return Msg{Role: "user", Content: content} }
func Assistant(content string) Msg { return Msg{Role: "assistant", Content: content} }
func System(content string) Msg    { return Msg{Role: "system", Content: content} }
func Tool(content string) Msg      { return Msg{Role: "tool", Content: content} }

// Write creates dir/name as a zip archive containing entries in order and
// returns its path.
func Write(t testing.TB, dir, name string, entries ...Entry) string {
	t.Helper()
	path := filepath.Join(dir, name)
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		t.Fatalf("mkdir: %v", err)
	}
	f, err := os.Create(path)
	if err != nil {
		t.Fatalf("create archive: %v", err)
	}
	defer f.Close()

	zw := zip.NewWriter(f)
	for _, e := range entries {
		w, err := zw.Create(e.Name)
		if err != nil {
			t.Fatalf("create entry %s: %v", e.Name, err)
		}
		if _, err := w.Write([]byte(e.Body)); err != nil {
			t.Fatalf("write entry %s: %v", e.Name, err)
		}
	}
	if err := zw.Close(); err != nil {
		t.Fatalf("close archive: %v", err)
	}
	return path
}

// WriteCorrupt creates a file with the archive extension that is not a zip.
func WriteCorrupt(t testing.TB, dir, name string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	if err := os.WriteFile(path, []byte("this is not a zip archive"), 0o644); err != nil {
		t.Fatalf("write corrupt archive: %v", err)
	}
	return path
}

// Scenario writes the two-entry archive used throughout the tests:
// s1 epoch 1 (user "hello", assistant "world") and s1 epoch 2 (user "error: x").
func Scenario(t testing.TB, dir, name string) string {
	t.Helper()
	return Write(t, dir, name,
		Sample("s1", 1, User("hello"), Assistant("world")),
		Sample("s1", 2, User("error: x")),
	)
}
