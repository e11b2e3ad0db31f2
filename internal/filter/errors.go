package filter

import "fmt"

// InvalidFilterError reports a malformed search criterion. It is raised
// before any archive is opened.
type InvalidFilterError struct {
	Field string // "epochs", "roles", "sample", "message"
	Value string
	Err   error
}

func (e *InvalidFilterError) Error() string {
	return fmt.Sprintf("invalid %s filter %q: %v", e.Field, e.Value, e.Err)
}

func (e *InvalidFilterError) Unwrap() error { return e.Err }
