// Package ipeerr defines the unified error kinds shared by the compilation
// pipeline and the approval/relationship stores.
package ipeerr

import (
	"errors"
	"fmt"
)

// Kind identifies which family of failure an error belongs to. Kinds are
// closed (no caller ever defines a new one) so dispatch on Kind is total.
type Kind int

const (
	// KindParse means the lexer or parser rejected the input source text.
	KindParse Kind = iota
	// KindType means the type checker flagged incompatible operands.
	KindType
	// KindCompile means AST-to-bytecode lowering failed.
	KindCompile
	// KindEvaluation means a runtime failure occurred inside a running policy.
	KindEvaluation
	// KindJIT means native/closure codegen failed; never fatal to the caller.
	KindJIT
	// KindStorage means the KV backend reported a failure.
	KindStorage
	// KindSerialization means a stored record or bytecode blob failed to decode.
	KindSerialization
	// KindNotFound means a "must exist" lookup found nothing.
	KindNotFound
	// KindExpired means a record exists but is past its expiration.
	KindExpired
	// KindInvalidInput means a caller-supplied field violated a non-empty or
	// well-formed invariant.
	KindInvalidInput
	// KindCycleDetected is reserved for traversal implementations that choose
	// to report cycles explicitly (the BFS visited-set design never needs it).
	KindCycleDetected
	// KindMaxDepthExceeded means a bounded traversal reached its depth limit
	// without reaching the target.
	KindMaxDepthExceeded
)

func (k Kind) String() string {
	switch k {
	case KindParse:
		return "parse_error"
	case KindType:
		return "type_error"
	case KindCompile:
		return "compile_error"
	case KindEvaluation:
		return "evaluation_error"
	case KindJIT:
		return "jit_error"
	case KindStorage:
		return "storage_error"
	case KindSerialization:
		return "serialization_error"
	case KindNotFound:
		return "not_found"
	case KindExpired:
		return "expired"
	case KindInvalidInput:
		return "invalid_input"
	case KindCycleDetected:
		return "cycle_detected"
	case KindMaxDepthExceeded:
		return "max_depth_exceeded"
	default:
		return "unknown_error"
	}
}

// Error is the concrete error type carried through the engine. It keeps the
// Kind alongside a message and an optional wrapped cause so callers can both
// branch on Kind (via errors.As) and use %w-style wrapping.
type Error struct {
	Kind    Kind
	Message string
	Cause   error
}

func (e *Error) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Message, e.Cause)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

func (e *Error) Unwrap() error { return e.Cause }

// New creates an *Error with no wrapped cause.
func New(kind Kind, message string) error {
	return &Error{Kind: kind, Message: message}
}

// Wrap creates an *Error that wraps cause, preserving %w chains.
func Wrap(kind Kind, message string, cause error) error {
	return &Error{Kind: kind, Message: message, Cause: cause}
}

// Is reports whether err (or anything it wraps) carries the given Kind.
func Is(err error, kind Kind) bool {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind == kind
	}
	return false
}

// Sentinel errors for membership-style APIs that return false rather than an
// error when a record is simply absent (spec: "Missing records are false,
// never errors, for the membership-style APIs").
var (
	// ErrNotConfigured is returned by EvaluationContext convenience predicates
	// when the backing store was never supplied.
	ErrNotConfigured = errors.New("ipe: required store not configured")
)
