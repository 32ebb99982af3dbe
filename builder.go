package memimage

import (
	"fmt"
	"reflect"

	"github.com/wippyai/memimage/errors"
)

// TypeSpec accumulates a type description for Registry.Register. Build one
// with Describe, DescribeVirtual, or DescribeAbstract and chain field calls;
// construction errors are deferred and surface from Register.
type TypeSpec struct {
	name     string
	goType   reflect.Type
	iface    InterfaceKind
	fields   []FieldDescriptor
	bases    []BaseDescriptor
	behavior TypeBehavior
	err      error
}

// Describe starts the description of a non-virtual struct type T.
func Describe[T any](name string) *TypeSpec {
	return describe[T](name, NonVirtual)
}

// DescribeVirtual starts the description of a type that is referenced
// polymorphically. Its frozen form carries a vtable slot so the concrete
// type is recoverable after a round trip.
func DescribeVirtual[T any](name string) *TypeSpec {
	return describe[T](name, Virtual)
}

// DescribeAbstract starts the description of an interface-only type. It
// has no layout of its own and exists as the static type of polymorphic
// references; T is the Go interface the implementations satisfy.
func DescribeAbstract[T any](name string) *TypeSpec {
	s := &TypeSpec{
		name:   name,
		goType: reflect.TypeOf((*T)(nil)).Elem(),
		iface:  Abstract,
	}
	if s.goType.Kind() != reflect.Interface {
		s.fail("abstract type %s must be described by an interface, got %s", name, s.goType)
	}
	return s
}

func describe[T any](name string, iface InterfaceKind) *TypeSpec {
	s := &TypeSpec{
		name:   name,
		goType: reflect.TypeOf((*T)(nil)).Elem(),
		iface:  iface,
	}
	if s.goType.Kind() != reflect.Struct {
		s.fail("type %s must be described by a struct, got %s", name, s.goType)
	}
	return s
}

func (s *TypeSpec) fail(format string, args ...any) *TypeSpec {
	if s.err == nil {
		s.err = errors.New(errors.PhaseRegister, errors.KindInvalidData).
			TypeName(s.name).
			Detail(format, args...).
			Build()
	}
	return s
}

func foldFlags(flags []FieldFlags) FieldFlags {
	var f FieldFlags
	for _, x := range flags {
		f |= x
	}
	return f
}

func (s *TypeSpec) addField(f FieldDescriptor) *TypeSpec {
	if s.iface == Abstract {
		return s.fail("abstract type %s cannot declare fields", s.name)
	}
	for i := range s.fields {
		if s.fields[i].Name == f.Name {
			return s.fail("duplicate field %s", f.Name)
		}
	}
	s.fields = append(s.fields, f)
	return s
}

// Field declares a scalar member stored inline.
func (s *TypeSpec) Field(name string, kind Kind, offset uintptr, flags ...FieldFlags) *TypeSpec {
	t := ScalarType(kind)
	if t == nil {
		return s.fail("field %s: kind %s is not scalar", name, kind)
	}
	return s.addField(FieldDescriptor{
		Name: name, Type: t, GoOffset: offset, Flags: foldFlags(flags),
	})
}

// Struct declares a registered composite member stored inline by value.
func (s *TypeSpec) Struct(name string, t *TypeDescriptor, offset uintptr, flags ...FieldFlags) *TypeSpec {
	if !t.IsValid() || t.Kind != KindStruct || t.Interface == Abstract {
		return s.fail("field %s: %s cannot be stored inline", name, t)
	}
	return s.addField(FieldDescriptor{
		Name: name, Type: t, GoOffset: offset, Flags: foldFlags(flags),
	})
}

// Array declares a fixed-count inline array member. elem may be a scalar
// or struct descriptor.
func (s *TypeSpec) Array(name string, elem *TypeDescriptor, offset uintptr, arity uint32, flags ...FieldFlags) *TypeSpec {
	if arity == 0 {
		return s.fail("field %s: zero arity", name)
	}
	if !elem.IsValid() || elem.Interface == Abstract {
		return s.fail("field %s: %s cannot be an array element", name, elem)
	}
	return s.addField(FieldDescriptor{
		Name: name, Type: elem, GoOffset: offset, Arity: arity, Flags: foldFlags(flags),
	})
}

// Ref declares a Ref[T] member pointing at objects of type t.
func (s *TypeSpec) Ref(name string, t *TypeDescriptor, offset uintptr, flags ...FieldFlags) *TypeSpec {
	if !t.IsValid() || t.Interface == Abstract {
		return s.fail("field %s: cannot reference %s directly, use Poly", name, t)
	}
	return s.addField(FieldDescriptor{
		Name: name, Type: t, GoOffset: offset, Flags: foldFlags(flags), mode: fieldRef,
	})
}

// SelfRef declares a Ref member pointing back at the type being described,
// for recursive structures whose descriptor does not exist yet.
func (s *TypeSpec) SelfRef(name string, offset uintptr, flags ...FieldFlags) *TypeSpec {
	return s.addField(FieldDescriptor{
		Name: name, GoOffset: offset, Flags: foldFlags(flags), mode: fieldRef,
	})
}

// Poly declares a PolyRef member whose static type is t (abstract or
// virtual). The concrete type of the pointee is looked up at freeze time
// and restored through the vtable patch.
func (s *TypeSpec) Poly(name string, t *TypeDescriptor, offset uintptr, flags ...FieldFlags) *TypeSpec {
	if t == nil || (t.IsValid() && t.Interface == NonVirtual) {
		return s.fail("field %s: polymorphic reference needs a virtual or abstract static type", name)
	}
	return s.addField(FieldDescriptor{
		Name: name, Type: t, GoOffset: offset, Flags: foldFlags(flags), mode: fieldPoly,
	})
}

// Table declares a TableRef member resolved through the image's
// PointerTable instead of being frozen inline.
func (s *TypeSpec) Table(name string, offset uintptr, flags ...FieldFlags) *TypeSpec {
	return s.addField(FieldDescriptor{
		Name: name, GoOffset: offset, Flags: foldFlags(flags), mode: fieldTable,
	})
}

// NameField declares an interned Name member.
func (s *TypeSpec) NameField(name string, offset uintptr, flags ...FieldFlags) *TypeSpec {
	return s.addField(FieldDescriptor{
		Name: name, Type: NameType, GoOffset: offset, Flags: foldFlags(flags),
	})
}

// Bits declares one member of a bit-field run. The first member of a run
// passes the byte offset of the shared carrier; continuations pass
// BitFieldOffset. A run ends at the first non-bit field or at a member
// carrying a fresh offset. All members of one run must share flags.
func (s *TypeSpec) Bits(name string, kind Kind, offset uintptr, bits uint8, flags ...FieldFlags) *TypeSpec {
	t := ScalarType(kind)
	if t == nil {
		return s.fail("field %s: kind %s is not scalar", name, kind)
	}
	if bits == 0 || uint32(bits) > kind.ScalarSize()*8 {
		return s.fail("field %s: %d bits does not fit %s", name, bits, kind)
	}
	if offset == BitFieldOffset {
		n := len(s.fields)
		if n == 0 || s.fields[n-1].Bits == 0 {
			return s.fail("field %s: bit-field continuation without a run head", name)
		}
		if s.fields[n-1].Flags != foldFlags(flags) {
			return s.fail("field %s: bit-field run members must share flags", name)
		}
	}
	return s.addField(FieldDescriptor{
		Name: name, Type: t, GoOffset: offset, Flags: foldFlags(flags), Bits: bits,
	})
}

// Base declares t as a base of the described type, embedded at the given
// live offset. Pass an abstract descriptor with offset zero to declare
// interface conformance only.
func (s *TypeSpec) Base(t *TypeDescriptor, offset uintptr) *TypeSpec {
	if !t.IsValid() {
		return s.fail("invalid base descriptor")
	}
	s.bases = append(s.bases, BaseDescriptor{Type: t, GoOffset: offset})
	return s
}

// VirtualBase declares a virtually inherited base.
func (s *TypeSpec) VirtualBase(t *TypeDescriptor, offset uintptr) *TypeSpec {
	if !t.IsValid() || t.Interface == Abstract {
		return s.fail("invalid virtual base descriptor")
	}
	s.bases = append(s.bases, BaseDescriptor{Type: t, GoOffset: offset, Virtual: true})
	return s
}

// Implements declares conformance to an abstract type, making the described
// type a valid pointee for polymorphic references with that static type.
func (s *TypeSpec) Implements(t *TypeDescriptor) *TypeSpec {
	if t == nil || t.Interface != Abstract {
		return s.fail("Implements needs an abstract descriptor")
	}
	s.bases = append(s.bases, BaseDescriptor{Type: t})
	return s
}

// CustomWrite installs a freeze override for a previously declared field.
func (s *TypeSpec) CustomWrite(fieldName string, fn FieldWriteFunc) *TypeSpec {
	for i := range s.fields {
		if s.fields[i].Name == fieldName {
			s.fields[i].Write = fn
			return s
		}
	}
	return s.fail("CustomWrite: no field %s", fieldName)
}

// WithBehavior replaces the default behavior for the described type.
func (s *TypeSpec) WithBehavior(b TypeBehavior) *TypeSpec {
	s.behavior = b
	return s
}

// build materializes the descriptor. Called under the registry's
// registration lock.
func (s *TypeSpec) build(reg *Registry) (*TypeDescriptor, error) {
	if s.err != nil {
		return nil, s.err
	}

	d := &TypeDescriptor{
		Name:      s.name,
		NameHash:  HashName(s.name),
		GoType:    s.goType,
		Kind:      KindStruct,
		Interface: s.iface,
		Fields:    append([]FieldDescriptor(nil), s.fields...),
		Bases:     append([]BaseDescriptor(nil), s.bases...),
		Behavior:  s.behavior,
		registry:  reg,
	}
	if s.iface != Abstract {
		d.Size = s.goType.Size()
		d.Align = uintptr(s.goType.Align())
	}
	if d.Behavior == nil {
		d.Behavior = structBehavior{}
	}

	// Resolve self-references and check field extents against the live
	// struct footprint.
	for i := range d.Fields {
		f := &d.Fields[i]
		if f.Type == nil && f.mode == fieldRef {
			f.Type = d
		}
		if f.GoOffset != BitFieldOffset && f.GoOffset >= d.Size && d.Size > 0 {
			return nil, errors.New(errors.PhaseRegister, errors.KindOutOfBounds).
				TypeName(s.name).
				Detail("field %s at offset %d exceeds struct size %d", f.Name, f.GoOffset, d.Size).
				Build()
		}
	}
	return d, nil
}

func (s *TypeSpec) String() string {
	return fmt.Sprintf("spec(%s, %s)", s.name, s.iface)
}
