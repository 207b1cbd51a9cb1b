// Package coreerrors defines the closed set of error kinds the execution
// core can raise, each wrapped with the tool and underlying cause so
// callers can use errors.As/errors.Is instead of matching strings.
package coreerrors

import (
	"errors"
	"fmt"
)

// Kind names one of the eight recognized error categories.
type Kind string

const (
	KindUnknownTool        Kind = "unknown_tool"
	KindCyclicDependency   Kind = "cyclic_dependency"
	KindStalledExecution   Kind = "stalled_execution"
	KindResourceDenied     Kind = "resource_denied"
	KindToolFailure        Kind = "tool_failure"
	KindTimeout            Kind = "timeout"
	KindUpstreamFailure    Kind = "upstream_failure"
	KindContractConflict   Kind = "contract_conflict"
)

// fatal marks kinds that must abort the whole run rather than being
// captured per-step and propagated as a ToolOutcome.
var fatal = map[Kind]bool{
	KindUnknownTool:      true,
	KindCyclicDependency: true,
	KindStalledExecution: true,
	KindContractConflict: true,
}

// IsFatal reports whether an error of this kind must abort the run.
func (k Kind) IsFatal() bool { return fatal[k] }

// CoreError wraps an underlying error with the kind and the tool it
// occurred against, if any.
type CoreError struct {
	Kind    Kind
	ToolID  string
	Wrapped error
}

func (e *CoreError) Error() string {
	if e.ToolID != "" {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.ToolID, e.Wrapped)
	}
	return fmt.Sprintf("%s: %v", e.Kind, e.Wrapped)
}

func (e *CoreError) Unwrap() error { return e.Wrapped }

// New builds a CoreError for the given kind, tool, and cause.
func New(kind Kind, toolID string, cause error) *CoreError {
	return &CoreError{Kind: kind, ToolID: toolID, Wrapped: cause}
}

// Newf builds a CoreError from a format string the way the rest of the
// codebase wraps errors with fmt.Errorf.
func Newf(kind Kind, toolID, format string, args ...interface{}) *CoreError {
	return &CoreError{Kind: kind, ToolID: toolID, Wrapped: fmt.Errorf(format, args...)}
}

// KindOf extracts the Kind from err if it (or something it wraps) is a
// *CoreError, and reports whether one was found.
func KindOf(err error) (Kind, bool) {
	var ce *CoreError
	if errors.As(err, &ce) {
		return ce.Kind, true
	}
	return "", false
}
