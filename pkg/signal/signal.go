// Package signal implements the Cb Return Signal: the
// non-local exit a `return` statement raises to unwind the statement
// executor back to the call dispatcher, carrying whichever payload kind
// the returned expression produced.
//
// Using C++ exceptions for this kind of control transfer is a
// portability hazard; this is the explicit Go sum type instead,
// following the same closed-variant shape as pkg/value.Value and
// pkg/cberrors.Error rather than a panic/recover pair, so the
// dispatcher's writeback, copyback, impl-context-pop, and frame-leave
// steps run as ordinary deferred cleanup on every exit path instead of
// inside a recover().
package signal

import "github.com/shadowlink0122/cb/pkg/value"

// Return carries a function's result back to its caller, or reports a
// bare `return;` (Void true).
type Return struct {
	Void bool

	Value value.Value // scalar / pointer / function-pointer payload

	IsStruct bool
	Struct   *value.Struct

	IsArray bool
	Array   *value.Array

	IsString bool
	String   string

	IsFunctionPointer bool

	IsReference bool
	Reference   *value.Variable

	TypeName string // struct/interface/typedef name, when applicable
}

// FromValue wraps a plain scalar/pointer result.
func FromValue(v value.Value) Return { return Return{Value: v} }

// FromStruct wraps a returned struct/interface/union instance.
func FromStruct(s *value.Struct, typeName string) Return {
	return Return{IsStruct: true, Struct: s, TypeName: typeName}
}

// FromArray wraps a returned array (by value; caller decides whether to
// Clone before attaching it, mirroring struct pass-by-value semantics).
func FromArray(a *value.Array) Return { return Return{IsArray: true, Array: a} }

// FromString wraps a returned string.
func FromString(s string) Return { return Return{IsString: true, String: s} }

// FromReference wraps a returned reference to a still-live Variable.
// The referent must outlive the reference; that is enforced lexically
// by the dispatcher, not here.
func FromReference(v *value.Variable) Return { return Return{IsReference: true, Reference: v} }

// VoidReturn is a bare `return;`.
func VoidReturn() Return { return Return{Void: true} }

// AsValue materializes the signal's payload as a single value.Value for
// callers that only need a scalar result (e.g. assigning a function
// call's result into a scalar variable).
func (r Return) AsValue() value.Value {
	switch {
	case r.IsString:
		return value.NewString(r.String)
	case r.IsStruct:
		return value.NewStructValue(r.Struct, value.TagStruct)
	case r.IsArray:
		return value.NewArrayValue(r.Array)
	default:
		return r.Value
	}
}
