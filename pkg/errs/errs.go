// Package errs implements the engine's error taxonomy (spec §4.8) and
// the stack-trace extraction used to surface a failed Process's call
// stack to a host (spec §7). ErrorSummary.Extract is an introspection
// utility built from data the interpreter already tracks; it is not
// itself part of execution semantics.
package errs

import (
	"fmt"
	"strings"

	"github.com/go-stack/stack"
	"github.com/kristofer/scriptvm/pkg/values"
)

// Cause enumerates the engine's error kinds. Every one flows through
// the Process handler machinery identically (spec §4.8).
type Cause int

const (
	UndefinedVariable Cause = iota
	ConversionError
	VariadicConversionError
	Incomparable
	EmptyList
	IndexOutOfBounds
	IndexNotInteger
	InvalidSize
	InvalidUnicode
	CallDepthLimit
	ClosureArgCount
	CyclicValue
	NotCsv
	NotJson
	ToJsonErrorCause
	FromJsonErrorCause
	NumberError
	NotSupported
	Promoted
	Custom
)

var causeNames = map[Cause]string{
	UndefinedVariable:       "UndefinedVariable",
	ConversionError:         "ConversionError",
	VariadicConversionError: "VariadicConversionError",
	Incomparable:            "Incomparable",
	EmptyList:               "EmptyList",
	IndexOutOfBounds:        "IndexOutOfBounds",
	IndexNotInteger:         "IndexNotInteger",
	InvalidSize:             "InvalidSize",
	InvalidUnicode:          "InvalidUnicode",
	CallDepthLimit:          "CallDepthLimit",
	ClosureArgCount:         "ClosureArgCount",
	CyclicValue:             "CyclicValue",
	NotCsv:                  "NotCsv",
	NotJson:                 "NotJson",
	ToJsonErrorCause:        "ToJsonError",
	FromJsonErrorCause:      "FromJsonError",
	NumberError:             "NumberError",
	NotSupported:            "NotSupported",
	Promoted:                "Promoted",
	Custom:                  "Custom",
}

func (c Cause) String() string {
	if n, ok := causeNames[c]; ok {
		return n
	}
	return "Unknown"
}

// ErrorCause pairs a Cause with a human-readable detail, e.g. the
// offending variable name or out-of-bounds index.
type ErrorCause struct {
	Kind   Cause
	Detail string
}

// New constructs an ErrorCause.
func New(kind Cause, detail string) *ErrorCause {
	return &ErrorCause{Kind: kind, Detail: detail}
}

// Newf is New with a formatted detail.
func Newf(kind Cause, format string, args ...interface{}) *ErrorCause {
	return New(kind, fmt.Sprintf(format, args...))
}

func (e *ErrorCause) Error() string {
	if e.Detail == "" {
		return e.Kind.String()
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Detail)
}

// DebugString renders e the way a `Throw`'s handler variable is bound
// for any non-Custom cause: the cause's Go-ish debug form, not just the
// detail string.
func (e *ErrorCause) DebugString() string {
	return fmt.Sprintf("%s{%q}", e.Kind, e.Detail)
}

// HandlerBinding is the text an unwound handler binds to its variable
// (spec §9 open question): the literal message for Custom (a user
// Throw), the Debug form for everything else.
func (e *ErrorCause) HandlerBinding() string {
	if e.Kind == Custom {
		return e.Detail
	}
	return e.DebugString()
}

// ProcessError pairs an ErrorCause with the bytecode position it
// occurred at (spec §7).
type ProcessError struct {
	Cause *ErrorCause
	Pos   int
}

func (e *ProcessError) Error() string {
	return fmt.Sprintf("%s (at pos %d)", e.Cause, e.Pos)
}

// Scheme selects how soft errors (from RPC/Syscall only) are surfaced:
// Hard always raises Promoted; Soft pushes the error as a String value
// and records it in the Process's last-* slot instead (spec §4.8,
// glossary "Soft/hard error").
type Scheme int

const (
	Hard Scheme = iota
	Soft
)

// Location is a source line/column, resolved through a locations table
// (spec §6 "Locations table"). It supplements the bare bytecode offset
// that spec.md requires with the finer-grained detail
// original_source/src/runtime.rs and process.rs track for every call
// stack frame.
type Location struct {
	Line   int
	Column int
}

// StackSample is one frame of interpreter-tracked call-stack state, as
// the Process assembles it for ErrorSummary.Extract. CalledFrom is a
// bytecode offset (spec §3 Process.call_stack); Locals is the frame's
// local bindings at time of capture; Location is the optional resolved
// source location for CalledFrom (nil if no locations table is wired).
type StackSample struct {
	Name       string
	CalledFrom int
	Locals     map[string]values.Value
	Location   *Location
}

// ErrorSummary is the end-user-facing trace: the failing cause, the
// position it occurred at, and every call frame walked outward from
// the point of failure.
type ErrorSummary struct {
	Cause  *ErrorCause
	Pos    int
	Frames []StackSample
}

// Extract builds an ErrorSummary from a Process's call_stack as it
// stood at the moment cause was raised at pos. frames is ordered
// outermost-first (bottom frame first, innermost last), matching how
// Process.call_stack is laid out.
func Extract(cause *ErrorCause, pos int, frames []StackSample) *ErrorSummary {
	return &ErrorSummary{Cause: cause, Pos: pos, Frames: frames}
}

// String renders a human-readable trace, innermost frame first.
func (s *ErrorSummary) String() string {
	var b strings.Builder
	fmt.Fprintf(&b, "%s at pos %d", s.Cause, s.Pos)
	for i := len(s.Frames) - 1; i >= 0; i-- {
		f := s.Frames[i]
		fmt.Fprintf(&b, "\n  in %s (called_from=%d", f.Name, f.CalledFrom)
		if f.Location != nil {
			fmt.Fprintf(&b, ", line %d:%d", f.Location.Line, f.Location.Column)
		}
		b.WriteString(")")
	}
	return b.String()
}

// InternalBug reports a violation of an engine invariant (e.g. polling
// an AsyncResult a second time after it was already Consumed) rather
// than a program-level ErrorCause: something the host embedding the
// engine got wrong, not something the interpreted program did. It
// captures the *host's* Go call stack via go-stack/stack, which is a
// different axis from the interpreted Process's own call_stack trace.
func InternalBug(msg string) error {
	return fmt.Errorf("engine bug: %s\n%s", msg, stack.Trace().TrimRuntime())
}
