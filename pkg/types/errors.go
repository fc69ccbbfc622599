package types

import (
	"errors"
	"fmt"
	"strings"
)

// ConfigurationError reports invalid or missing model parameters.
// It is raised before any simulation run starts.
type ConfigurationError struct {
	Asset  string // empty for document-level problems
	Field  string
	Reason string
	Err    error
}

func (e *ConfigurationError) Error() string {
	var b strings.Builder
	b.WriteString("configuration error")
	if e.Asset != "" {
		fmt.Fprintf(&b, ": asset %q", e.Asset)
	}
	if e.Field != "" {
		fmt.Fprintf(&b, ": %s", e.Field)
	}
	if e.Reason != "" {
		fmt.Fprintf(&b, ": %s", e.Reason)
	}
	if e.Err != nil {
		fmt.Fprintf(&b, ": %v", e.Err)
	}
	return b.String()
}

// Unwrap returns the underlying cause, if any.
func (e *ConfigurationError) Unwrap() error { return e.Err }

// InternalError reports a broken invariant inside the engine. It always
// points at a defect rather than at user input, and aborts the batch.
type InternalError struct {
	Asset  string
	Policy Policy
	Run    int
	Year   int
	Reason string
}

func (e *InternalError) Error() string {
	return fmt.Sprintf("internal error: asset %q policy %s run %d year %d: %s",
		e.Asset, e.Policy, e.Run, e.Year, e.Reason)
}

// IsConfigurationError reports whether err wraps a ConfigurationError.
func IsConfigurationError(err error) bool {
	var target *ConfigurationError
	return errors.As(err, &target)
}

// IsInternalError reports whether err wraps an InternalError.
func IsInternalError(err error) bool {
	var target *InternalError
	return errors.As(err, &target)
}
