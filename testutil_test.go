package memimage

import (
	"fmt"
	"unsafe"
)

// Object graph fixtures shared across the package tests. Registration
// mirrors how a consumer describes its types: explicit offsets, one
// registry per test so nothing leaks between cases.

type childObj struct {
	X int32
}

type holderObj struct {
	A int32
	B Ref[childObj]
}

type pairObj struct {
	L Ref[childObj]
	R Ref[childObj]
}

type nodeObj struct {
	Val  int32
	Next Ref[nodeObj]
}

type baseObj struct {
	ID int32
}

type sideObj struct {
	Tag int32
}

type shapeIface interface {
	isShape()
}

type derivedObj struct {
	baseObj
	sideObj
	V int32
}

func (*derivedObj) isShape() {}

type sceneObj struct {
	P PolyRef
	Q PolyRef
}

type namedObj struct {
	N Name
	V int32
}

type resHolderObj struct {
	R TableRef
}

type testTypes struct {
	child   *TypeDescriptor
	holder  *TypeDescriptor
	pair    *TypeDescriptor
	node    *TypeDescriptor
	base    *TypeDescriptor
	side    *TypeDescriptor
	shape   *TypeDescriptor
	derived *TypeDescriptor
	scene   *TypeDescriptor
	named   *TypeDescriptor
	res     *TypeDescriptor
}

func registerTestTypes(reg *Registry) testTypes {
	var tt testTypes
	tt.child = reg.MustRegister(Describe[childObj]("test.child").
		Field("x", KindInt32, unsafe.Offsetof(childObj{}.X)))

	tt.holder = reg.MustRegister(Describe[holderObj]("test.holder").
		Field("a", KindInt32, unsafe.Offsetof(holderObj{}.A)).
		Ref("b", tt.child, unsafe.Offsetof(holderObj{}.B)))

	tt.pair = reg.MustRegister(Describe[pairObj]("test.pair").
		Ref("l", tt.child, unsafe.Offsetof(pairObj{}.L)).
		Ref("r", tt.child, unsafe.Offsetof(pairObj{}.R)))

	tt.node = reg.MustRegister(Describe[nodeObj]("test.node").
		Field("val", KindInt32, unsafe.Offsetof(nodeObj{}.Val)).
		SelfRef("next", unsafe.Offsetof(nodeObj{}.Next)))

	tt.base = reg.MustRegister(DescribeVirtual[baseObj]("test.base").
		Field("id", KindInt32, unsafe.Offsetof(baseObj{}.ID)))

	tt.side = reg.MustRegister(DescribeVirtual[sideObj]("test.side").
		Field("tag", KindInt32, unsafe.Offsetof(sideObj{}.Tag)))

	tt.shape = reg.MustRegister(DescribeAbstract[shapeIface]("test.shape"))

	tt.derived = reg.MustRegister(DescribeVirtual[derivedObj]("test.derived").
		Base(tt.base, unsafe.Offsetof(derivedObj{}.baseObj)).
		Base(tt.side, unsafe.Offsetof(derivedObj{}.sideObj)).
		Implements(tt.shape).
		Field("v", KindInt32, unsafe.Offsetof(derivedObj{}.V)))

	tt.scene = reg.MustRegister(Describe[sceneObj]("test.scene").
		Poly("p", tt.side, unsafe.Offsetof(sceneObj{}.P)).
		Poly("q", tt.shape, unsafe.Offsetof(sceneObj{}.Q)))

	tt.named = reg.MustRegister(Describe[namedObj]("test.named").
		NameField("n", unsafe.Offsetof(namedObj{}.N)).
		Field("v", KindInt32, unsafe.Offsetof(namedObj{}.V)))

	tt.res = reg.MustRegister(Describe[resHolderObj]("test.res").
		Table("r", unsafe.Offsetof(resHolderObj{}.R)))

	return tt
}

// freezeRoot freezes a single root object and flattens with defaults.
func freezeRoot[T any](reg *Registry, params LayoutParams, v *T, opts ...ImageOption) (*Result, error) {
	img, err := NewImage(reg, params, opts...)
	if err != nil {
		return nil, err
	}
	if err := FreezeObject(img, v); err != nil {
		return nil, err
	}
	return img.Flatten(FlattenOptions{})
}

// fakeTable is an identity-keyed PointerTable.
type fakeTable struct {
	objs []any
}

func (t *fakeTable) SaveIndex(v any) (uint32, error) {
	for i, o := range t.objs {
		if o == v {
			return uint32(i), nil
		}
	}
	t.objs = append(t.objs, v)
	return uint32(len(t.objs) - 1), nil
}

func (t *fakeTable) LoadIndex(index uint32) (any, error) {
	if int(index) >= len(t.objs) {
		return nil, fmt.Errorf("no object at index %d", index)
	}
	return t.objs[index], nil
}

// intVec is a minimal FrozenContainer: a raw int32 backing store plus a
// count, frozen through ContainerBehavior.
type intVec struct {
	data  unsafe.Pointer
	count int32
}

func newIntVec(vals ...int32) intVec {
	var v intVec
	v.Resize(0, len(vals), 4)
	for i, x := range vals {
		*(*int32)(unsafe.Add(v.data, uintptr(i)*4)) = x
	}
	return v
}

func (v *intVec) values() []int32 {
	out := make([]int32, v.count)
	for i := range out {
		out[i] = *(*int32)(unsafe.Add(v.data, uintptr(i)*4))
	}
	return out
}

func (v *intVec) SupportsFreezing() bool { return true }

func (v *intVec) AllocationPtr() unsafe.Pointer { return v.data }

func (v *intVec) Resize(oldCount, newCount int, elemSize uintptr) {
	if newCount == 0 {
		v.data = nil
		v.count = 0
		return
	}
	buf := make([]byte, uintptr(newCount)*elemSize)
	p := unsafe.Pointer(unsafe.SliceData(buf))
	if v.data != nil && oldCount > 0 {
		keep := oldCount
		if newCount < keep {
			keep = newCount
		}
		copyMem(p, v.data, uintptr(keep)*elemSize)
	}
	v.data = p
	v.count = int32(newCount)
}

func (v *intVec) WriteMemoryImage(w *Writer, elem *TypeDescriptor, count int) error {
	child := w.WritePointer(0)
	child.Align(elem.Kind.ScalarSize())
	child.WriteBytes(unsafe.Slice((*byte)(v.data), count*int(elem.Size)))
	return nil
}

func (v *intVec) CopyUnfrozen(c *ThawContext, elem *TypeDescriptor, count int, src unsafe.Pointer) error {
	v.Resize(0, count, elem.Size)
	copyMem(v.data, src, uintptr(count)*elem.Size)
	return nil
}

type vecHolderObj struct {
	Tag int32
	V   intVec
}

func vecCount(p unsafe.Pointer) int {
	return int((*intVec)(p).count)
}

func registerVecTypes(reg *Registry) (vecT, holderT *TypeDescriptor) {
	vecT = reg.MustRegister(Describe[intVec]("test.intvec").
		WithBehavior(ContainerBehavior{Elem: Int32Type, Count: vecCount}))
	holderT = reg.MustRegister(Describe[vecHolderObj]("test.vecholder").
		Field("tag", KindInt32, unsafe.Offsetof(vecHolderObj{}.Tag)).
		Struct("v", vecT, unsafe.Offsetof(vecHolderObj{}.V)))
	return vecT, holderT
}
