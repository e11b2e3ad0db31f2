package render

import (
	"bufio"
	"io"

	"github.com/goccy/go-json"

	"github.com/asheshgoplani/evalgrep/internal/evallog"
	"github.com/asheshgoplani/evalgrep/internal/scan"
)

type jsonMatch struct {
	Path     string       `json:"path"`
	SampleID string       `json:"sample_id"`
	Epoch    int          `json:"epoch"`
	Role     evallog.Role `json:"role"`
	Content  string       `json:"content"`
	Spans    [][2]int     `json:"spans,omitempty"`
}

// JSON renders one JSON object per line.
type JSON struct {
	w   *bufio.Writer
	enc *json.Encoder
}

// NewJSON returns a JSON-lines renderer writing to w.
func NewJSON(w io.Writer) *JSON {
	bw := bufio.NewWriter(w)
	enc := json.NewEncoder(bw)
	enc.SetEscapeHTML(false)
	return &JSON{w: bw, enc: enc}
}

// Render writes one match.
func (j *JSON) Render(m scan.Match) error {
	rec := jsonMatch{
		Path:     m.Path,
		SampleID: m.SampleID,
		Epoch:    m.Epoch,
		Role:     m.Role,
		Content:  m.Content,
	}
	for _, sp := range m.Spans {
		rec.Spans = append(rec.Spans, [2]int{sp.Start, sp.End})
	}
	return j.enc.Encode(rec)
}

// Flush writes any buffered output.
func (j *JSON) Flush() error { return j.w.Flush() }
