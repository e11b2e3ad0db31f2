// Package filter holds the validated search criteria shared read-only by
// every scanning goroutine.
package filter

import (
	"regexp"
)

// Options are the raw, unvalidated criteria as typed by the user.
type Options struct {
	SampleID   string   // regex over sample ids; empty matches all
	Epochs     string   // "all", "n", "a,b,c" or "a-b"; empty means all
	Roles      []string // role names, comma lists allowed; empty means all
	Message    string   // regex over message content; empty matches all
	IgnoreCase bool     // applies to both regexes
}

// Spec is an immutable, validated filter. A nil regex matches everything.
type Spec struct {
	SampleID *regexp.Regexp
	Epochs   EpochSelector
	Roles    RoleSet
	Message  *regexp.Regexp
}

// New validates opts. Any malformed criterion yields *InvalidFilterError.
func New(opts Options) (Spec, error) {
	var spec Spec
	var err error

	if spec.SampleID, err = compile("sample", opts.SampleID, opts.IgnoreCase); err != nil {
		return Spec{}, err
	}
	if spec.Message, err = compile("message", opts.Message, opts.IgnoreCase); err != nil {
		return Spec{}, err
	}
	if spec.Epochs, err = ParseEpochs(opts.Epochs); err != nil {
		return Spec{}, err
	}
	if spec.Roles, err = ParseRoles(opts.Roles); err != nil {
		return Spec{}, err
	}
	return spec, nil
}

// compile builds an unanchored regex; patterns match anywhere in the subject.
func compile(field, pattern string, ignoreCase bool) (*regexp.Regexp, error) {
	if pattern == "" {
		return nil, nil
	}
	expr := pattern
	if ignoreCase {
		expr = "(?i)" + pattern
	}
	re, err := regexp.Compile(expr)
	if err != nil {
		return nil, &InvalidFilterError{Field: field, Value: pattern, Err: err}
	}
	return re, nil
}

// MatchAll reports whether s accepts every message of every sample.
func (s Spec) MatchAll() bool {
	return s.SampleID == nil && s.Message == nil && s.Epochs.IsAll() && s.Roles.IsAll()
}

// MatchSampleID reports whether id passes the sample-id pattern.
func (s Spec) MatchSampleID(id string) bool {
	return s.SampleID == nil || s.SampleID.MatchString(id)
}
