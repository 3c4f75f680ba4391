package errors

import (
	"fmt"
	"strings"
)

// Phase indicates where in the load the error occurred
type Phase string

const (
	PhaseConfig      Phase = "config"      // configuration loading
	PhaseFetch       Phase = "fetch"       // artifact request
	PhaseSize        Phase = "size"        // side-channel size resolution
	PhaseTap         Phase = "tap"         // stream observation
	PhaseInstantiate Phase = "instantiate" // compile and instantiate
	PhaseRun         Phase = "run"         // guest entry point
)

// Kind categorizes the error
type Kind string

const (
	KindNotFound          Kind = "not_found"
	KindStatus            Kind = "status"
	KindInvalidData       Kind = "invalid_data"
	KindInvalidInput      Kind = "invalid_input"
	KindOvershoot         Kind = "overshoot"
	KindInstantiation     Kind = "instantiation"
	KindDuplicateCallback Kind = "duplicate_callback"
	KindIO                Kind = "io"
	KindExit              Kind = "exit"
)

// Error is the structured error type used throughout the loader
type Error struct {
	Value  any
	Cause  error
	Phase  Phase
	Kind   Kind
	Source string
	Detail string
}

// Error implements the error interface
func (e *Error) Error() string {
	var b strings.Builder

	b.WriteByte('[')
	b.WriteString(string(e.Phase))
	b.WriteString("] ")
	b.WriteString(string(e.Kind))

	if e.Source != "" {
		b.WriteString(" at ")
		b.WriteString(e.Source)
	}

	if e.Detail != "" {
		b.WriteString(": ")
		b.WriteString(e.Detail)
	}

	if e.Cause != nil {
		b.WriteString(" (caused by: ")
		b.WriteString(e.Cause.Error())
		b.WriteByte(')')
	}

	return b.String()
}

// Unwrap returns the underlying error
func (e *Error) Unwrap() error {
	return e.Cause
}

// Is reports whether target matches this error
func (e *Error) Is(target error) bool {
	if t, ok := target.(*Error); ok {
		return e.Phase == t.Phase && e.Kind == t.Kind
	}
	return false
}

// Builder provides structured error construction
type Builder struct {
	err Error
}

// New creates a new error builder
func New(phase Phase, kind Kind) *Builder {
	return &Builder{
		err: Error{
			Phase: phase,
			Kind:  kind,
		},
	}
}

// Source sets the resource the error relates to (URL or path)
func (b *Builder) Source(s string) *Builder {
	b.err.Source = s
	return b
}

// Value sets the offending value
func (b *Builder) Value(v any) *Builder {
	b.err.Value = v
	return b
}

// Cause sets the underlying error
func (b *Builder) Cause(err error) *Builder {
	b.err.Cause = err
	return b
}

// Detail sets the human-readable detail message
func (b *Builder) Detail(msg string, args ...any) *Builder {
	if len(args) > 0 {
		b.err.Detail = fmt.Sprintf(msg, args...)
	} else {
		b.err.Detail = msg
	}
	return b
}

// Build returns the constructed error
func (b *Builder) Build() *Error {
	return &b.err
}

// Convenience constructors for common error patterns

// Status creates an unexpected HTTP status error
func Status(phase Phase, source string, code int) *Error {
	kind := KindStatus
	if code == 404 {
		kind = KindNotFound
	}
	return &Error{
		Phase:  phase,
		Kind:   kind,
		Source: source,
		Detail: fmt.Sprintf("unexpected status %d", code),
		Value:  code,
	}
}

// Fetch creates a transport failure error
func Fetch(phase Phase, source string, cause error) *Error {
	return &Error{
		Phase:  phase,
		Kind:   KindIO,
		Source: source,
		Detail: "request failed",
		Cause:  cause,
	}
}

// InvalidData creates an invalid data error
func InvalidData(phase Phase, source, detail string) *Error {
	return &Error{
		Phase:  phase,
		Kind:   KindInvalidData,
		Source: source,
		Detail: detail,
	}
}

// InvalidInput creates an invalid input error
func InvalidInput(phase Phase, detail string) *Error {
	return &Error{
		Phase:  phase,
		Kind:   KindInvalidInput,
		Detail: detail,
	}
}

// Overshoot creates an error describing observed bytes beyond the expected size
func Overshoot(source string, observed, expected int64) *Error {
	return &Error{
		Phase:  PhaseTap,
		Kind:   KindOvershoot,
		Source: source,
		Detail: fmt.Sprintf("downloaded %d bytes, expected %d", observed, expected),
		Value:  observed,
	}
}

// Instantiation creates an instantiation error
func Instantiation(detail string, cause error) *Error {
	return &Error{
		Phase:  PhaseInstantiate,
		Kind:   KindInstantiation,
		Detail: detail,
		Cause:  cause,
	}
}

// DuplicateCallback creates an error for a success callback delivered twice
func DuplicateCallback() *Error {
	return &Error{
		Phase:  PhaseInstantiate,
		Kind:   KindDuplicateCallback,
		Detail: "success callback invoked more than once",
	}
}

// Exit creates an error for a guest that exited with a non-zero code
func Exit(code uint32, cause error) *Error {
	return &Error{
		Phase:  PhaseRun,
		Kind:   KindExit,
		Detail: fmt.Sprintf("guest exited with code %d", code),
		Value:  code,
		Cause:  cause,
	}
}

// Wrap wraps an existing error with additional context
func Wrap(phase Phase, kind Kind, cause error, detail string) *Error {
	return &Error{
		Phase:  phase,
		Kind:   kind,
		Detail: detail,
		Cause:  cause,
	}
}
