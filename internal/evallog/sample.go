package evallog

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/goccy/go-json"
)

// Sentinel errors for malformed sample bodies.
var (
	ErrMissingID     = errors.New("sample has no id")
	ErrInvalidEpoch  = errors.New("sample epoch must be a positive integer")
	ErrContentShape  = errors.New("message content is neither text nor a list of content parts")
	ErrNotAnObject   = errors.New("sample body is not a JSON object")
	ErrMissingRole   = errors.New("message has no role")
	ErrInvalidSample = errors.New("invalid sample id")
)

// Message is one role-tagged piece of a sample transcript.
type Message struct {
	Role    Role
	Content string
}

// Sample is the decoded body of one archive entry. Epoch is 0 when the body
// does not record one; callers fall back to the entry name in that case.
type Sample struct {
	ID       string
	Epoch    int
	Messages []Message
}

// sampleJSON mirrors the subset of the eval sample schema we read. Every
// other key (scores, metadata, events, ...) is skipped by the decoder.
type sampleJSON struct {
	ID       json.RawMessage `json:"id"`
	Epoch    *int            `json:"epoch"`
	Messages []messageJSON   `json:"messages"`
}

type messageJSON struct {
	Role    *string         `json:"role"`
	Content json.RawMessage `json:"content"`
}

// contentPart is one element of a list-valued message content.
type contentPart struct {
	Type      string `json:"type"`
	Text      string `json:"text"`
	Reasoning string `json:"reasoning"`
}

// Decode reads one sample body.
func Decode(r io.Reader) (*Sample, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("read sample: %w", err)
	}
	return DecodeBytes(data)
}

// DecodeBytes parses a sample body that is already in memory.
func DecodeBytes(data []byte) (*Sample, error) {
	trimmed := bytes.TrimSpace(data)
	if len(trimmed) == 0 || trimmed[0] != '{' {
		return nil, ErrNotAnObject
	}

	var raw sampleJSON
	if err := json.Unmarshal(trimmed, &raw); err != nil {
		return nil, fmt.Errorf("parse sample: %w", err)
	}

	id, err := parseSampleID(raw.ID)
	if err != nil {
		return nil, err
	}

	sample := &Sample{ID: id}
	if raw.Epoch != nil {
		if *raw.Epoch < 1 {
			return nil, fmt.Errorf("%w: got %d", ErrInvalidEpoch, *raw.Epoch)
		}
		sample.Epoch = *raw.Epoch
	}

	sample.Messages = make([]Message, 0, len(raw.Messages))
	for i, m := range raw.Messages {
		if m.Role == nil {
			return nil, fmt.Errorf("message %d: %w", i, ErrMissingRole)
		}
		role, err := roleFromWire(*m.Role)
		if err != nil {
			return nil, fmt.Errorf("message %d: %w", i, err)
		}
		content, err := ContentText(m.Content)
		if err != nil {
			return nil, fmt.Errorf("message %d: %w", i, err)
		}
		sample.Messages = append(sample.Messages, Message{Role: role, Content: content})
	}
	return sample, nil
}

// parseSampleID accepts ids written either as JSON strings or as numbers.
func parseSampleID(raw json.RawMessage) (string, error) {
	s := strings.TrimSpace(string(raw))
	if s == "" || s == "null" {
		return "", ErrMissingID
	}
	if s[0] == '"' {
		var id string
		if err := json.Unmarshal(raw, &id); err != nil {
			return "", fmt.Errorf("%w: %v", ErrInvalidSample, err)
		}
		return id, nil
	}
	if _, err := strconv.ParseFloat(s, 64); err != nil {
		return "", fmt.Errorf("%w: %s", ErrInvalidSample, s)
	}
	return s, nil
}

// ContentText flattens message content into searchable text. A plain string
// is returned as-is; a list of content parts contributes its text and
// reasoning parts joined by newlines. Images, audio and other parts carry no
// text and are skipped.
func ContentText(raw json.RawMessage) (string, error) {
	s := bytes.TrimSpace(raw)
	if len(s) == 0 || bytes.Equal(s, []byte("null")) {
		return "", nil
	}

	switch s[0] {
	case '"':
		var text string
		if err := json.Unmarshal(s, &text); err != nil {
			return "", fmt.Errorf("%w: %v", ErrContentShape, err)
		}
		return text, nil
	case '[':
		var parts []contentPart
		if err := json.Unmarshal(s, &parts); err != nil {
			return "", fmt.Errorf("%w: %v", ErrContentShape, err)
		}
		var sb strings.Builder
		for _, p := range parts {
			text := p.Text
			if p.Type == "reasoning" && text == "" {
				text = p.Reasoning
			}
			if text == "" {
				continue
			}
			if sb.Len() > 0 {
				sb.WriteString("\n")
			}
			sb.WriteString(text)
		}
		return sb.String(), nil
	}
	return "", ErrContentShape
}
