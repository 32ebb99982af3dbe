package memimage

import (
	"unsafe"

	"github.com/wippyai/memimage/errors"
)

// LayoutParams describes one freeze target. The same type can have several
// valid frozen layouts, one per distinct LayoutParams value; the value also
// seeds layout hashes, so two targets never share a cache entry by accident.
//
// LayoutParams is a plain value: compare with ==, use as a map key.
type LayoutParams struct {
	// PointerWidth is the frozen pointer size in bytes: 4 or 8.
	PointerWidth uint32

	// Force64BitOffsets widens relocatable pointer fields to 8 bytes even
	// on a 4-byte target, for images shared across both widths.
	Force64BitOffsets bool

	// MaxAlign caps field alignment in the frozen layout. Zero means no cap.
	MaxAlign uint32

	// WithEditorData includes fields flagged FieldEditorOnly.
	WithEditorData bool

	// WithOptionalData includes fields flagged FieldOptional.
	WithOptionalData bool
}

// HostParams returns the layout parameters of the running process: native
// pointer width, no alignment cap, no editor or optional data.
func HostParams() LayoutParams {
	return LayoutParams{PointerWidth: uint32(unsafe.Sizeof(uintptr(0)))}
}

// PointerSize returns the byte size of a frozen relocatable pointer field
// under these parameters.
func (p LayoutParams) PointerSize() uint32 {
	if p.Force64BitOffsets {
		return 8
	}
	return p.PointerWidth
}

// Validate reports whether the target width is supported. Anything but 4 or
// 8 is a contract violation, not a recoverable condition.
func (p LayoutParams) Validate() error {
	if p.PointerWidth != 4 && p.PointerWidth != 8 {
		return errors.UnsupportedWidth(errors.PhaseFreeze, p.PointerWidth)
	}
	return nil
}

// FieldFlags controls which targets a field is frozen into.
type FieldFlags uint8

const (
	// FieldAlways includes the field in every target.
	FieldAlways FieldFlags = 0

	// FieldEditorOnly includes the field only when the target carries
	// editor data.
	FieldEditorOnly FieldFlags = 1 << 0

	// FieldOptional includes the field only when the target carries
	// optional-feature data.
	FieldOptional FieldFlags = 1 << 1

	// FieldTransient excludes the field from every frozen layout. The live
	// side keeps it; thawed copies leave it zero.
	FieldTransient FieldFlags = 1 << 2
)

// IncludedIn reports whether a field with these flags occupies bytes (and
// contributes to the layout hash) under the given parameters.
func (f FieldFlags) IncludedIn(p LayoutParams) bool {
	if f&FieldTransient != 0 {
		return false
	}
	if f&FieldEditorOnly != 0 && !p.WithEditorData {
		return false
	}
	if f&FieldOptional != 0 && !p.WithOptionalData {
		return false
	}
	return true
}
