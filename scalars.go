package memimage

import "reflect"

// Package-level descriptors for the primitive kinds. They carry no
// registry state and are shared by every registry in the process.
var (
	BoolType    = newScalarType("bool", KindBool, reflect.TypeOf(false))
	Int8Type    = newScalarType("int8", KindInt8, reflect.TypeOf(int8(0)))
	Uint8Type   = newScalarType("uint8", KindUInt8, reflect.TypeOf(uint8(0)))
	Int16Type   = newScalarType("int16", KindInt16, reflect.TypeOf(int16(0)))
	Uint16Type  = newScalarType("uint16", KindUInt16, reflect.TypeOf(uint16(0)))
	Int32Type   = newScalarType("int32", KindInt32, reflect.TypeOf(int32(0)))
	Uint32Type  = newScalarType("uint32", KindUInt32, reflect.TypeOf(uint32(0)))
	Int64Type   = newScalarType("int64", KindInt64, reflect.TypeOf(int64(0)))
	Uint64Type  = newScalarType("uint64", KindUInt64, reflect.TypeOf(uint64(0)))
	Float32Type = newScalarType("float32", KindFloat32, reflect.TypeOf(float32(0)))
	Float64Type = newScalarType("float64", KindFloat64, reflect.TypeOf(float64(0)))

	// NameType is the descriptor for interned Name fields.
	NameType = &TypeDescriptor{
		Name:     "name",
		NameHash: HashName("name"),
		GoType:   reflect.TypeOf(Name{}),
		Size:     nameFrozenSize,
		Align:    nameFrozenAlign,
		Kind:     KindName,
		Behavior: nameBehavior{},
	}
)

var scalarTypes [KindFloat64 + 1]*TypeDescriptor

func newScalarType(name string, k Kind, t reflect.Type) *TypeDescriptor {
	d := &TypeDescriptor{
		Name:     name,
		NameHash: HashName(name),
		GoType:   t,
		Size:     uintptr(k.ScalarSize()),
		Align:    uintptr(k.ScalarSize()),
		Kind:     k,
		Behavior: scalarBehavior{},
	}
	scalarTypes[k] = d
	return d
}

// ScalarType returns the shared descriptor for a scalar kind, or nil when
// k is not scalar.
func ScalarType(k Kind) *TypeDescriptor {
	if !k.IsScalar() {
		return nil
	}
	return scalarTypes[k]
}

func builtinTypes() []*TypeDescriptor {
	out := make([]*TypeDescriptor, 0, len(scalarTypes)+1)
	for _, d := range scalarTypes {
		if d != nil {
			out = append(out, d)
		}
	}
	return append(out, NameType)
}
