package memimage

// Kind discriminates type descriptors.
type Kind uint8

const (
	KindBool Kind = iota
	KindInt8
	KindUInt8
	KindInt16
	KindUInt16
	KindInt32
	KindUInt32
	KindInt64
	KindUInt64
	KindFloat32
	KindFloat64
	KindStruct
	KindName
	KindInvalid
)

var kindNames = [...]string{
	KindBool:    "bool",
	KindInt8:    "int8",
	KindUInt8:   "uint8",
	KindInt16:   "int16",
	KindUInt16:  "uint16",
	KindInt32:   "int32",
	KindUInt32:  "uint32",
	KindInt64:   "int64",
	KindUInt64:  "uint64",
	KindFloat32: "float32",
	KindFloat64: "float64",
	KindStruct:  "struct",
	KindName:    "name",
	KindInvalid: "invalid",
}

func (k Kind) String() string {
	if int(k) < len(kindNames) {
		return kindNames[k]
	}
	return "unknown"
}

// IsScalar reports whether the kind is bit-copied, with identical live and
// frozen footprints.
func (k Kind) IsScalar() bool {
	return k <= KindFloat64
}

var scalarSizes = [...]uint32{
	KindBool:    1,
	KindInt8:    1,
	KindUInt8:   1,
	KindInt16:   2,
	KindUInt16:  2,
	KindInt32:   4,
	KindUInt32:  4,
	KindInt64:   8,
	KindUInt64:  8,
	KindFloat32: 4,
	KindFloat64: 8,
}

// ScalarSize returns the byte size of a scalar kind, zero otherwise.
func (k Kind) ScalarSize() uint32 {
	if k.IsScalar() {
		return scalarSizes[k]
	}
	return 0
}
