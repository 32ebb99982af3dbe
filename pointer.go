package memimage

import (
	"unsafe"
)

// Relocatable pointer states. The zero value of every pointer type below is
// the null state, so freshly allocated objects start with null references.
const (
	tagNull   uint8 = iota
	tagLive         // points at an ordinary heap object
	tagFrozen       // points into a frozen image resident in this process
	tagIndex        // pointer-table index, resolved through a PointerTable
)

// refHeader is the runtime view shared by every Ref[T] instantiation. The
// generic parameter never changes the struct layout, so descriptor-driven
// code can address any Ref field through this type.
type refHeader struct {
	p   unsafe.Pointer
	tag uint8
}

// Ref is a relocatable pointer to a frozen-aware type. In a frozen image
// the field occupies one target pointer width and stores the self-relative
// byte offset of the pointee (zero for null); live objects hold a tagged
// pointer instead.
type Ref[T any] struct {
	p   unsafe.Pointer
	tag uint8
}

// NewRef returns a live reference to v, or a null reference for nil.
func NewRef[T any](v *T) Ref[T] {
	if v == nil {
		return Ref[T]{}
	}
	return Ref[T]{p: unsafe.Pointer(v), tag: tagLive}
}

// FrozenRefTo returns a reference addressing frozen bytes directly. The
// pointee must keep its live layout in frozen form (scalar-only types under
// host parameters); otherwise use a ThawContext to materialize it.
func FrozenRefTo[T any](p unsafe.Pointer) Ref[T] {
	if p == nil {
		return Ref[T]{}
	}
	return Ref[T]{p: p, tag: tagFrozen}
}

// Get resolves the reference in either state. Null returns nil.
func (r Ref[T]) Get() *T {
	if r.tag == tagNull {
		return nil
	}
	return (*T)(r.p)
}

// IsNull reports whether the reference is null.
func (r Ref[T]) IsNull() bool {
	return r.tag == tagNull
}

// IsFrozen reports whether the reference addresses frozen bytes.
func (r Ref[T]) IsFrozen() bool {
	return r.tag == tagFrozen
}

// Set points the reference at a live object.
func (r *Ref[T]) Set(v *T) {
	*r = NewRef(v)
}

// PolyRef is a relocatable pointer whose pointee's concrete type is known
// only at freeze time, by inspecting the stored value. It freezes to a
// pointer-width offset addressing the full derived object, whose leading
// vtable slot identifies the concrete type after patching.
type PolyRef struct {
	v   any
	tag uint8
}

// NewPolyRef returns a live polymorphic reference. v must be a non-nil
// pointer to a registered virtual type; nil yields the null reference.
func NewPolyRef(v any) PolyRef {
	if v == nil {
		return PolyRef{}
	}
	return PolyRef{v: v, tag: tagLive}
}

// Get returns the stored value, nil when null.
func (r PolyRef) Get() any {
	if r.tag == tagNull {
		return nil
	}
	return r.v
}

// IsNull reports whether the reference is null.
func (r PolyRef) IsNull() bool {
	return r.tag == tagNull
}

// TableRef is a relocatable pointer resolved through a PointerTable: it
// freezes to a small index rather than an offset, for objects whose
// identity is shared across images (reference-counted resources). The
// frozen field is always 4 bytes, index zero meaning null.
type TableRef struct {
	v   any
	idx uint32
	tag uint8
}

// NewTableRef returns a live table reference to v, or null for nil.
func NewTableRef(v any) TableRef {
	if v == nil {
		return TableRef{}
	}
	return TableRef{v: v, tag: tagLive}
}

// Get returns the referenced value. An index-state reference resolves
// through the given table; a nil table yields nil.
func (r TableRef) Get(table PointerTable) any {
	switch r.tag {
	case tagLive:
		return r.v
	case tagIndex:
		if table == nil {
			return nil
		}
		v, err := table.LoadIndex(r.idx)
		if err != nil {
			return nil
		}
		return v
	default:
		return nil
	}
}

// IsNull reports whether the reference is null.
func (r TableRef) IsNull() bool {
	return r.tag == tagNull
}
