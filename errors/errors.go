package errors

import (
	"fmt"
	"strings"
)

// Phase indicates where in processing the error occurred
type Phase string

const (
	PhaseRegister Phase = "register" // type registration
	PhaseFreeze   Phase = "freeze"   // live graph to sections
	PhaseFlatten  Phase = "flatten"  // sections to final buffer
	PhasePatch    Phase = "patch"    // load-time fixup application
	PhaseThaw     Phase = "thaw"     // frozen/live to heap copy
	PhaseDecode   Phase = "decode"   // artifact reading
)

// Kind categorizes the error
type Kind string

const (
	KindTypeMismatch     Kind = "type_mismatch"
	KindNotRegistered    Kind = "not_registered"
	KindUnknownTypeHash  Kind = "unknown_type_hash"
	KindUnsupportedWidth Kind = "unsupported_width"
	KindAbstractType     Kind = "abstract_type"
	KindNotABase         Kind = "not_a_base"
	KindInvalidData      Kind = "invalid_data"
	KindUnsupported      Kind = "unsupported"
	KindNilPointer       Kind = "nil_pointer"
	KindOutOfBounds      Kind = "out_of_bounds"
	KindOverflow         Kind = "overflow"
	KindDuplicate        Kind = "duplicate"
	KindMergeUnsafe      Kind = "merge_unsafe"
	KindNoPointerTable   Kind = "no_pointer_table"
	KindBadMagic         Kind = "bad_magic"
	KindBadVersion       Kind = "bad_version"
)

// Fatal kinds signal a broken contract between the writer and the reader of
// a frozen image. Callers must not retry them; the producing or consuming
// build has to be fixed instead.
var fatalKinds = map[Kind]bool{
	KindNotRegistered:    true,
	KindUnknownTypeHash:  true,
	KindUnsupportedWidth: true,
	KindAbstractType:     true,
	KindNotABase:         true,
}

// Error is the structured error type used throughout the library
type Error struct {
	Value    any
	Cause    error
	Phase    Phase
	Kind     Kind
	GoType   string
	TypeName string
	Detail   string
	Path     []string
}

// Error implements the error interface
func (e *Error) Error() string {
	var b strings.Builder

	b.WriteByte('[')
	b.WriteString(string(e.Phase))
	b.WriteString("] ")
	b.WriteString(string(e.Kind))

	if len(e.Path) > 0 {
		b.WriteString(" at ")
		b.WriteString(strings.Join(e.Path, "."))
	}

	if e.GoType != "" || e.TypeName != "" {
		b.WriteString(": ")
		if e.GoType != "" && e.TypeName != "" {
			b.WriteString("Go type ")
			b.WriteString(e.GoType)
			b.WriteString(", layout type ")
			b.WriteString(e.TypeName)
		} else if e.GoType != "" {
			b.WriteString("Go type ")
			b.WriteString(e.GoType)
		} else {
			b.WriteString("layout type ")
			b.WriteString(e.TypeName)
		}
	}

	if e.Detail != "" {
		if e.GoType != "" || e.TypeName != "" {
			b.WriteString(" - ")
		} else {
			b.WriteString(": ")
		}
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

// Fatal reports whether this error is a writer/reader contract violation
// that must not be retried.
func (e *Error) Fatal() bool {
	return fatalKinds[e.Kind]
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

// Path sets the field path
func (b *Builder) Path(path ...string) *Builder {
	b.err.Path = path
	return b
}

// GoType sets the Go type name
func (b *Builder) GoType(t string) *Builder {
	b.err.GoType = t
	return b
}

// TypeName sets the layout type name
func (b *Builder) TypeName(t string) *Builder {
	b.err.TypeName = t
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

// TypeMismatch creates a type mismatch error
func TypeMismatch(phase Phase, path []string, goType, typeName string) *Error {
	return &Error{
		Phase:    phase,
		Kind:     KindTypeMismatch,
		Path:     path,
		GoType:   goType,
		TypeName: typeName,
	}
}

// NotRegistered creates an error for a type missing from the registry
func NotRegistered(phase Phase, goType string) *Error {
	return &Error{
		Phase:  phase,
		Kind:   KindNotRegistered,
		GoType: goType,
		Detail: "type has no layout registration",
	}
}

// UnknownTypeHash creates an error for a hashed type name absent from the
// loading registry. Signals the image was produced by an incompatible build.
func UnknownTypeHash(phase Phase, hash uint64) *Error {
	return &Error{
		Phase:  phase,
		Kind:   KindUnknownTypeHash,
		Detail: fmt.Sprintf("no registered type with name hash %#016x", hash),
		Value:  hash,
	}
}

// UnsupportedWidth creates an error for an unsupported target pointer width
func UnsupportedWidth(phase Phase, width uint32) *Error {
	return &Error{
		Phase:  phase,
		Kind:   KindUnsupportedWidth,
		Detail: fmt.Sprintf("unsupported target pointer width %d (want 4 or 8)", width),
		Value:  width,
	}
}

// AbstractType creates an error for freezing or thawing through a type that
// has no concrete layout
func AbstractType(phase Phase, typeName string) *Error {
	return &Error{
		Phase:    phase,
		Kind:     KindAbstractType,
		TypeName: typeName,
		Detail:   "abstract type has no instance layout",
	}
}

// NilPointer creates a nil pointer error
func NilPointer(phase Phase, path []string, goType string) *Error {
	return &Error{
		Phase:  phase,
		Kind:   KindNilPointer,
		Path:   path,
		GoType: goType,
		Detail: "nil pointer",
	}
}

// OutOfBounds creates an out of bounds error
func OutOfBounds(phase Phase, path []string, index, length int) *Error {
	return &Error{
		Phase:  phase,
		Kind:   KindOutOfBounds,
		Path:   path,
		Detail: fmt.Sprintf("offset %d out of bounds (length %d)", index, length),
		Value:  index,
	}
}

// Overflow creates an overflow error
func Overflow(phase Phase, path []string, value any, targetType string) *Error {
	return &Error{
		Phase:    phase,
		Kind:     KindOverflow,
		Path:     path,
		TypeName: targetType,
		Detail:   fmt.Sprintf("value %v overflows %s", value, targetType),
		Value:    value,
	}
}

// Unsupported creates an unsupported operation error
func Unsupported(phase Phase, what string) *Error {
	return &Error{
		Phase:  phase,
		Kind:   KindUnsupported,
		Detail: what,
	}
}
