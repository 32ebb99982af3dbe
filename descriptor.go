package memimage

import (
	"reflect"
	"sync"
	"unsafe"

	"github.com/wippyai/memimage/errors"
	"github.com/wippyai/memimage/internal/layout"
)

// BitFieldOffset is the live-offset sentinel carried by continuation
// members of a bit-field run. Only the first member of a run records the
// carrier's byte offset.
const BitFieldOffset = ^uintptr(0)

// InterfaceKind classifies how instances of a type are referenced.
type InterfaceKind uint8

const (
	// NonVirtual types are always referenced through their exact type.
	NonVirtual InterfaceKind = iota
	// Virtual types may be referenced through a base and carry a vtable
	// slot in frozen form so the concrete type survives the round trip.
	Virtual
	// Abstract types declare an interface only; they have no instance
	// layout and cannot be frozen directly.
	Abstract
)

var interfaceKindNames = [...]string{
	NonVirtual: "non-virtual",
	Virtual:    "virtual",
	Abstract:   "abstract",
}

func (k InterfaceKind) String() string {
	if int(k) < len(interfaceKindNames) {
		return interfaceKindNames[k]
	}
	return "unknown"
}

type fieldMode uint8

const (
	fieldPlain fieldMode = iota
	fieldRef
	fieldPoly
	fieldTable
)

// FieldWriteFunc overrides how one field is frozen. src addresses the field
// inside the live object.
type FieldWriteFunc func(w *Writer, f *FieldDescriptor, src unsafe.Pointer) error

// FieldDescriptor describes one member of a composite type.
type FieldDescriptor struct {
	Name string
	// Type is the referenced descriptor: the scalar or struct stored
	// inline, or the pointee for reference fields.
	Type *TypeDescriptor
	// GoOffset is the member's byte offset in the live Go struct, or
	// BitFieldOffset for bit-field run continuations.
	GoOffset uintptr
	// Arity is the contiguous element count for array members; zero and
	// one both mean a single element.
	Arity uint32
	Flags FieldFlags
	// Bits is the bit-field width, zero for plain fields.
	Bits uint8
	// Write, when set, replaces the default freeze step for this field.
	// Polymorphic and table-indexed fields install one at registration.
	Write FieldWriteFunc

	mode fieldMode
}

// BaseDescriptor records one base of a derived type.
type BaseDescriptor struct {
	Type *TypeDescriptor
	// GoOffset is where the base subobject is embedded in the live struct.
	GoOffset uintptr
	// Virtual marks virtually inherited bases; they are counted separately
	// in the layout hash.
	Virtual bool
}

// TypeDescriptor is the per-type singleton holding layout metadata and
// behavior dispatch. Descriptors are constructed at most once per registry
// and are immutable afterwards, so unbounded concurrent readers are safe.
type TypeDescriptor struct {
	Name      string
	NameHash  uint64
	GoType    reflect.Type
	Size      uintptr
	Align     uintptr
	Kind      Kind
	Interface InterfaceKind
	Fields    []FieldDescriptor
	Bases     []BaseDescriptor
	Behavior  TypeBehavior

	registry  *Registry
	token     uint32
	frozen    sync.Map // LayoutParams -> *FrozenLayout
	hashCache sync.Map // LayoutParams -> uint64
}

// Invalid is the sentinel returned when an unregistered abstract interface
// type is requested. Every operation on it fails.
var Invalid = &TypeDescriptor{
	Name:      "<invalid>",
	Kind:      KindInvalid,
	Interface: Abstract,
	Behavior:  invalidBehavior{},
}

// IsValid reports whether the descriptor describes a real type.
func (d *TypeDescriptor) IsValid() bool {
	return d != nil && d.Kind != KindInvalid
}

// String returns the display name.
func (d *TypeDescriptor) String() string {
	if d == nil {
		return "<nil>"
	}
	return d.Name
}

// NumBases returns the base-class count.
func (d *TypeDescriptor) NumBases() int {
	return len(d.Bases)
}

// NumVirtualBases returns the virtual-base count.
func (d *TypeDescriptor) NumVirtualBases() int {
	n := 0
	for _, b := range d.Bases {
		if b.Virtual {
			n++
		}
	}
	return n
}

// OffsetToBase returns the live pointer adjustment from an object of this
// type to its subobject typed as static. The second result is false when
// static is not a base of this type.
func (d *TypeDescriptor) OffsetToBase(static *TypeDescriptor) (uintptr, bool) {
	if static == d {
		return 0, true
	}
	for _, b := range d.Bases {
		if off, ok := b.Type.OffsetToBase(static); ok {
			return b.GoOffset + off, true
		}
	}
	return 0, false
}

// GetOffsetToBase computes the adjustment needed to go from a reference
// typed as static to the full runtime-derived object. Every polymorphic
// write records the full derived object, never the statically visible
// slice, so this adjustment must exist for any (static, derived) pair that
// reaches a writer.
func GetOffsetToBase(static, derived *TypeDescriptor) (uintptr, error) {
	off, ok := derived.OffsetToBase(static)
	if !ok {
		return 0, errors.New(errors.PhaseFreeze, errors.KindNotABase).
			TypeName(derived.Name).
			Detail("%s is not a base of %s", static.Name, derived.Name).
			Build()
	}
	return off, nil
}

// frozenEntry is one slot of a frozen layout: either a field (base fields
// folded in with combined live offsets) or a vtable word.
type frozenEntry struct {
	field *FieldDescriptor // nil for a vtable slot
	live  uintptr          // offset from the live object start
	off   uint32           // offset from the frozen object start
}

type frozenBase struct {
	desc *TypeDescriptor
	off  uint32
}

// FrozenLayout is the binary layout of a type under one set of layout
// parameters. Cached per descriptor; immutable.
type FrozenLayout struct {
	Size  uint32
	Align uint32

	entries     []frozenEntry
	frozenBases []frozenBase
}

// NumEntries returns the number of layout slots, vtable words included.
func (fl *FrozenLayout) NumEntries() int {
	return len(fl.entries)
}

// FrozenLayout returns (building and caching on first use) the layout of d
// under p.
func (d *TypeDescriptor) FrozenLayout(p LayoutParams) (*FrozenLayout, error) {
	if !d.IsValid() || d.Interface == Abstract {
		return nil, errors.AbstractType(errors.PhaseFreeze, d.String())
	}
	if v, ok := d.frozen.Load(p); ok {
		return v.(*FrozenLayout), nil
	}
	if err := p.Validate(); err != nil {
		return nil, err
	}
	fl, err := buildFrozenLayout(d, p)
	if err != nil {
		return nil, err
	}
	actual, _ := d.frozen.LoadOrStore(p, fl)
	return actual.(*FrozenLayout), nil
}

// FrozenOffsetToBase returns the frozen-layout offset of the static base
// subobject inside an object of this type.
func (d *TypeDescriptor) FrozenOffsetToBase(static *TypeDescriptor, p LayoutParams) (uint32, error) {
	if static == d {
		return 0, nil
	}
	fl, err := d.FrozenLayout(p)
	if err != nil {
		return 0, err
	}
	for _, b := range fl.frozenBases {
		if b.desc == static {
			return b.off, nil
		}
	}
	return 0, errors.New(errors.PhaseFreeze, errors.KindNotABase).
		TypeName(d.Name).
		Detail("%s has no frozen subobject of %s", d.Name, static.Name).
		Build()
}

type protoEntry struct {
	field *FieldDescriptor
	live  uintptr
	shape layout.Shape
}

type pendingBase struct {
	desc  *TypeDescriptor
	proto int
}

func buildFrozenLayout(d *TypeDescriptor, p LayoutParams) (*FrozenLayout, error) {
	var protos []protoEntry
	var vbases []pendingBase
	if err := collectEntries(d, p, 0, &protos, &vbases); err != nil {
		return nil, err
	}

	shapes := make([]layout.Shape, len(protos))
	for i := range protos {
		shapes[i] = protos[i].shape
	}
	info := layout.Calc(shapes, p.MaxAlign)

	fl := &FrozenLayout{
		Size:    info.Size,
		Align:   info.Align,
		entries: make([]frozenEntry, len(protos)),
	}
	for i, pr := range protos {
		fl.entries[i] = frozenEntry{field: pr.field, live: pr.live, off: info.FieldOffsets[i]}
	}
	for _, b := range vbases {
		fl.frozenBases = append(fl.frozenBases, frozenBase{desc: b.desc, off: info.FieldOffsets[b.proto]})
	}
	return fl, nil
}

// collectEntries folds d's bases and included fields into a flat entry
// list. Virtual descriptors contribute a vtable word at their fold point;
// at write time every such word is keyed by the outermost (runtime) type,
// which is how base subobjects end up carrying the derived identity.
func collectEntries(d *TypeDescriptor, p LayoutParams, liveBase uintptr, protos *[]protoEntry, vbases *[]pendingBase) error {
	ps := p.PointerSize()
	if d.Interface == Virtual {
		*vbases = append(*vbases, pendingBase{desc: d, proto: len(*protos)})
		*protos = append(*protos, protoEntry{
			field: nil,
			live:  liveBase,
			shape: layout.Shape{Size: ps, Align: ps},
		})
	}

	for _, b := range d.Bases {
		if b.Type.Interface == Abstract {
			continue // conformance declaration only
		}
		if err := collectEntries(b.Type, p, liveBase+b.GoOffset, protos, vbases); err != nil {
			return err
		}
	}

	for i := range d.Fields {
		f := &d.Fields[i]
		if !f.Flags.IncludedIn(p) {
			continue
		}
		if f.Bits > 0 && f.GoOffset == BitFieldOffset {
			continue // covered by the run head's carrier
		}
		shape, err := fieldShape(f, p)
		if err != nil {
			return err
		}
		*protos = append(*protos, protoEntry{field: f, live: liveBase + f.GoOffset, shape: shape})
	}
	return nil
}

func fieldShape(f *FieldDescriptor, p LayoutParams) (layout.Shape, error) {
	switch f.mode {
	case fieldRef, fieldPoly:
		ps := p.PointerSize()
		return layout.Shape{Size: ps, Align: ps}, nil
	case fieldTable:
		return layout.Shape{Size: 4, Align: 4}, nil
	}

	t := f.Type
	switch {
	case t.Kind.IsScalar():
		s := t.Kind.ScalarSize()
		return layout.Shape{Size: s, Align: s, Arity: f.Arity}, nil
	case t.Kind == KindName:
		return layout.Shape{Size: nameFrozenSize, Align: nameFrozenAlign, Arity: f.Arity}, nil
	case t.Kind == KindStruct:
		size, align, err := t.Behavior.FrozenExtent(t, p)
		if err != nil {
			return layout.Shape{}, err
		}
		return layout.Shape{Size: size, Align: align, Arity: f.Arity}, nil
	default:
		return layout.Shape{}, errors.New(errors.PhaseFreeze, errors.KindUnsupported).
			TypeName(t.String()).
			Detail("field %s has no frozen form", f.Name).
			Build()
	}
}

// Frozen footprint of a Name field: interned index plus instance number.
const (
	nameFrozenSize  = 8
	nameFrozenAlign = 4
)
