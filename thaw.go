package memimage

import (
	"encoding/binary"
	"reflect"
	"unsafe"

	"github.com/wippyai/memimage/errors"
	"github.com/wippyai/memimage/internal/layout"
)

// ThawContext reconstructs live heap objects. In frozen mode it reads a
// patched relocatable buffer, following self-relative deltas; in live mode
// it deep-copies an existing object graph, which is how frozen references
// embedded in live objects get resolved back to heap form.
//
// Objects are memoized by source address, so shared pointees thaw once and
// reference cycles terminate.
type ThawContext struct {
	Registry *Registry
	Table    PointerTable
	// Params describes the layout of the frozen source.
	Params LayoutParams
	// FromFrozen selects frozen-buffer traversal over live-object
	// traversal.
	FromFrozen bool

	buf  []byte
	memo map[objectKey]reflect.Value
}

// NewThawContext prepares reconstruction from a frozen buffer laid out
// under params.
func NewThawContext(reg *Registry, params LayoutParams) *ThawContext {
	return &ThawContext{
		Registry:   reg,
		Params:     params,
		FromFrozen: true,
		memo:       make(map[objectKey]reflect.Value, 8),
	}
}

// WithTable attaches the table that resolves frozen TableRef indices.
func (c *ThawContext) WithTable(t PointerTable) *ThawContext {
	c.Table = t
	return c
}

// WithBuffer enables bounds checking of followed deltas against the given
// frozen buffer.
func (c *ThawContext) WithBuffer(buf []byte) *ThawContext {
	c.buf = buf
	return c
}

// frozenView returns a context that traverses frozen bytes while sharing
// this context's memo table.
func (c *ThawContext) frozenView() *ThawContext {
	if c.FromFrozen {
		return c
	}
	cf := *c
	cf.FromFrozen = true
	return &cf
}

func (c *ThawContext) inBounds(p unsafe.Pointer, n uintptr) bool {
	if len(c.buf) == 0 {
		return true
	}
	start := uintptr(unsafe.Pointer(unsafe.SliceData(c.buf)))
	x := uintptr(p)
	return x >= start && x-start+n <= uintptr(len(c.buf))
}

// readWord reads one relocatable pointer word.
func (c *ThawContext) readWord(p unsafe.Pointer) int64 {
	if c.Params.PointerSize() == 4 {
		return int64(int32(binary.LittleEndian.Uint32(unsafe.Slice((*byte)(p), 4))))
	}
	return int64(binary.LittleEndian.Uint64(unsafe.Slice((*byte)(p), 8)))
}

// UnfrozenCopy reconstructs one object of type d from src, returning a
// pointer to a fresh heap copy as any.
func (c *ThawContext) UnfrozenCopy(d *TypeDescriptor, src unsafe.Pointer) (any, error) {
	v, err := c.thawValue(d, src)
	if err != nil {
		return nil, err
	}
	return v.Interface(), nil
}

func (c *ThawContext) thawValue(d *TypeDescriptor, src unsafe.Pointer) (reflect.Value, error) {
	if !d.IsValid() || d.Interface == Abstract {
		return reflect.Value{}, errors.AbstractType(errors.PhaseThaw, d.String())
	}
	key := objectKey{ptr: src, desc: d}
	if v, ok := c.memo[key]; ok {
		return v, nil
	}

	dst := reflect.New(d.GoType)
	if c.memo == nil {
		c.memo = make(map[objectKey]reflect.Value, 8)
	}
	// Memoized before the copy so cycles resolve to the in-progress object.
	c.memo[key] = dst
	if err := d.Behavior.CopyUnfrozen(c, d, src, dst.UnsafePointer()); err != nil {
		return reflect.Value{}, err
	}
	return dst, nil
}

// copyStruct is the structBehavior thaw path.
func (c *ThawContext) copyStruct(d *TypeDescriptor, src, dst unsafe.Pointer) error {
	if !c.FromFrozen {
		return c.copyLiveStruct(d, src, dst)
	}

	fl, err := d.FrozenLayout(c.Params)
	if err != nil {
		return err
	}
	for i := range fl.entries {
		e := &fl.entries[i]
		if e.field == nil {
			continue // vtable word, identity already resolved by the caller
		}
		if err := c.copyFrozenField(e.field, unsafe.Add(src, e.off), unsafe.Add(dst, e.live)); err != nil {
			return err
		}
	}
	return nil
}

func (c *ThawContext) copyFrozenField(f *FieldDescriptor, src, dst unsafe.Pointer) error {
	switch f.mode {
	case fieldRef:
		return c.copyFrozenRef(f, src, dst)
	case fieldPoly:
		return c.copyFrozenPoly(f, src, dst)
	case fieldTable:
		return c.copyFrozenTable(src, dst)
	}

	t := f.Type
	switch {
	case t.Kind.IsScalar():
		copyMem(dst, src, uintptr(t.Kind.ScalarSize()*arityOf(f)))
		return nil

	case t.Kind == KindName:
		for k := uintptr(0); k < uintptr(arityOf(f)); k++ {
			if err := c.copyName(unsafe.Add(src, k*nameFrozenSize), unsafe.Add(dst, k*unsafe.Sizeof(Name{}))); err != nil {
				return err
			}
		}
		return nil

	case t.Kind == KindStruct:
		size, align, err := t.Behavior.FrozenExtent(t, c.Params)
		if err != nil {
			return err
		}
		stride := uintptr(layout.AlignTo(size, align))
		for k := uintptr(0); k < uintptr(arityOf(f)); k++ {
			if err := t.Behavior.CopyUnfrozen(c, t, unsafe.Add(src, k*stride), unsafe.Add(dst, k*t.Size)); err != nil {
				return err
			}
		}
		return nil

	default:
		return errors.Unsupported(errors.PhaseThaw, "field kind "+t.Kind.String())
	}
}

func (c *ThawContext) followDelta(f *FieldDescriptor, src unsafe.Pointer, delta int64) (unsafe.Pointer, error) {
	target, err := c.followStorage(src, delta)
	if err != nil {
		if e, ok := err.(*errors.Error); ok {
			e.Path = []string{f.Name}
		}
		return nil, err
	}
	return target, nil
}

// followStorage resolves a self-relative delta read at src, bounds-checked
// against the frozen buffer when one is attached.
func (c *ThawContext) followStorage(src unsafe.Pointer, delta int64) (unsafe.Pointer, error) {
	target := unsafe.Add(src, int(delta))
	if !c.inBounds(target, 1) {
		return nil, errors.New(errors.PhaseThaw, errors.KindOutOfBounds).
			Value(delta).
			Detail("pointer delta escapes the frozen buffer").
			Build()
	}
	return target, nil
}

func (c *ThawContext) copyFrozenRef(f *FieldDescriptor, src, dst unsafe.Pointer) error {
	delta := c.readWord(src)
	if delta == 0 {
		*(*refHeader)(dst) = refHeader{}
		return nil
	}
	target, err := c.followDelta(f, src, delta)
	if err != nil {
		return err
	}
	v, err := c.thawValue(f.Type, target)
	if err != nil {
		return err
	}
	*(*refHeader)(dst) = refHeader{p: v.UnsafePointer(), tag: tagLive}
	return nil
}

// copyFrozenPoly recovers the concrete type from the pointee's leading
// vtable word, patched to this process's registry token.
func (c *ThawContext) copyFrozenPoly(f *FieldDescriptor, src, dst unsafe.Pointer) error {
	delta := c.readWord(src)
	if delta == 0 {
		*(*PolyRef)(dst) = PolyRef{}
		return nil
	}
	target, err := c.followDelta(f, src, delta)
	if err != nil {
		return err
	}
	tok := uint32(c.readWord(target))
	derived, ok := c.Registry.descriptorByToken(tok)
	if !ok {
		return errors.New(errors.PhaseThaw, errors.KindInvalidData).
			Path(f.Name).
			Value(tok).
			Detail("vtable word holds no known type token; was the buffer patched?").
			Build()
	}
	v, err := c.thawValue(derived, target)
	if err != nil {
		return err
	}
	*(*PolyRef)(dst) = PolyRef{v: v.Interface(), tag: tagLive}
	return nil
}

func (c *ThawContext) copyFrozenTable(src, dst unsafe.Pointer) error {
	stored := binary.LittleEndian.Uint32(unsafe.Slice((*byte)(src), 4))
	if stored == 0 {
		*(*TableRef)(dst) = TableRef{}
		return nil
	}
	idx := stored - 1
	if c.Table != nil {
		v, err := c.Table.LoadIndex(idx)
		if err != nil {
			return errors.New(errors.PhaseThaw, errors.KindNoPointerTable).
				Value(idx).
				Cause(err).
				Build()
		}
		*(*TableRef)(dst) = TableRef{v: v, idx: idx, tag: tagLive}
		return nil
	}
	*(*TableRef)(dst) = TableRef{idx: idx, tag: tagIndex}
	return nil
}

func (c *ThawContext) copyName(src, dst unsafe.Pointer) error {
	if !c.FromFrozen {
		*(*Name)(dst) = *(*Name)(src)
		return nil
	}
	b := unsafe.Slice((*byte)(src), nameFrozenSize)
	*(*Name)(dst) = Name{
		Index:  binary.LittleEndian.Uint32(b),
		Number: binary.LittleEndian.Uint32(b[4:]),
	}
	return nil
}

// copyLiveStruct deep-copies a live object through its descriptor: bases
// first, then included fields at their Go offsets.
func (c *ThawContext) copyLiveStruct(d *TypeDescriptor, src, dst unsafe.Pointer) error {
	for _, b := range d.Bases {
		if b.Type.Interface == Abstract {
			continue
		}
		if err := c.copyLiveStruct(b.Type, unsafe.Add(src, b.GoOffset), unsafe.Add(dst, b.GoOffset)); err != nil {
			return err
		}
	}
	for i := range d.Fields {
		f := &d.Fields[i]
		if !f.Flags.IncludedIn(c.Params) {
			continue
		}
		if f.Bits > 0 && f.GoOffset == BitFieldOffset {
			continue
		}
		if err := c.copyLiveField(f, unsafe.Add(src, f.GoOffset), unsafe.Add(dst, f.GoOffset)); err != nil {
			return err
		}
	}
	return nil
}

func (c *ThawContext) copyLiveField(f *FieldDescriptor, src, dst unsafe.Pointer) error {
	switch f.mode {
	case fieldRef:
		h := (*refHeader)(src)
		switch h.tag {
		case tagNull:
			*(*refHeader)(dst) = refHeader{}
			return nil
		case tagLive:
			v, err := c.thawValue(f.Type, h.p)
			if err != nil {
				return err
			}
			*(*refHeader)(dst) = refHeader{p: v.UnsafePointer(), tag: tagLive}
			return nil
		default:
			// A frozen reference embedded in a live object resolves
			// through the frozen traversal of its pointee.
			v, err := c.frozenView().thawValue(f.Type, h.p)
			if err != nil {
				return err
			}
			*(*refHeader)(dst) = refHeader{p: v.UnsafePointer(), tag: tagLive}
			return nil
		}

	case fieldPoly:
		r := (*PolyRef)(src)
		if r.IsNull() {
			*(*PolyRef)(dst) = PolyRef{}
			return nil
		}
		rv := reflect.ValueOf(r.v)
		if rv.Kind() != reflect.Pointer || rv.IsNil() {
			return errors.New(errors.PhaseThaw, errors.KindTypeMismatch).
				Path(f.Name).
				Detail("polymorphic reference must hold a non-nil pointer").
				Build()
		}
		derived, ok := c.Registry.Lookup(rv.Type().Elem())
		if !ok {
			return errors.NotRegistered(errors.PhaseThaw, rv.Type().Elem().String())
		}
		v, err := c.thawValue(derived, unsafe.Pointer(rv.Pointer()))
		if err != nil {
			return err
		}
		*(*PolyRef)(dst) = PolyRef{v: v.Interface(), tag: tagLive}
		return nil

	case fieldTable:
		// Table references carry shared identity, so the copy keeps the
		// same reference rather than duplicating the resource.
		*(*TableRef)(dst) = *(*TableRef)(src)
		return nil
	}

	t := f.Type
	switch {
	case t.Kind.IsScalar():
		copyMem(dst, src, uintptr(t.Kind.ScalarSize()*arityOf(f)))
		return nil
	case t.Kind == KindName:
		copyMem(dst, src, unsafe.Sizeof(Name{})*uintptr(arityOf(f)))
		return nil
	case t.Kind == KindStruct:
		for k := uintptr(0); k < uintptr(arityOf(f)); k++ {
			if err := t.Behavior.CopyUnfrozen(c, t, unsafe.Add(src, k*t.Size), unsafe.Add(dst, k*t.Size)); err != nil {
				return err
			}
		}
		return nil
	default:
		return errors.Unsupported(errors.PhaseThaw, "field kind "+t.Kind.String())
	}
}

// Materialize reconstructs the root object of a patched frozen buffer laid
// out under params. T must be the registered root type.
func Materialize[T any](reg *Registry, buf []byte, params LayoutParams) (*T, error) {
	t := reflect.TypeOf((*T)(nil)).Elem()
	d, ok := reg.Lookup(t)
	if !ok {
		return nil, errors.NotRegistered(errors.PhaseThaw, t.String())
	}
	if len(buf) == 0 {
		return nil, errors.New(errors.PhaseThaw, errors.KindInvalidData).
			Detail("empty frozen buffer").
			Build()
	}
	c := NewThawContext(reg, params).WithBuffer(buf)
	v, err := c.thawValue(d, unsafe.Pointer(unsafe.SliceData(buf)))
	if err != nil {
		return nil, err
	}
	return v.Interface().(*T), nil
}

// MaterializeWithTable is Materialize with a pointer table for TableRef
// resolution.
func MaterializeWithTable[T any](reg *Registry, buf []byte, params LayoutParams, table PointerTable) (*T, error) {
	t := reflect.TypeOf((*T)(nil)).Elem()
	d, ok := reg.Lookup(t)
	if !ok {
		return nil, errors.NotRegistered(errors.PhaseThaw, t.String())
	}
	if len(buf) == 0 {
		return nil, errors.New(errors.PhaseThaw, errors.KindInvalidData).
			Detail("empty frozen buffer").
			Build()
	}
	c := NewThawContext(reg, params).WithBuffer(buf).WithTable(table)
	v, err := c.thawValue(d, unsafe.Pointer(unsafe.SliceData(buf)))
	if err != nil {
		return nil, err
	}
	return v.Interface().(*T), nil
}

// CloneObject deep-copies a live object graph through its descriptors.
// Frozen references inside the source are resolved back to heap objects,
// so the clone is fully live.
func CloneObject[T any](reg *Registry, v *T) (*T, error) {
	if v == nil {
		return nil, errors.NilPointer(errors.PhaseThaw, nil, reflect.TypeOf(v).String())
	}
	t := reflect.TypeOf(*v)
	d, ok := reg.Lookup(t)
	if !ok {
		return nil, errors.NotRegistered(errors.PhaseThaw, t.String())
	}
	c := &ThawContext{
		Registry: reg,
		Params:   HostParams(),
		memo:     make(map[objectKey]reflect.Value, 8),
	}
	out, err := c.thawValue(d, unsafe.Pointer(v))
	if err != nil {
		return nil, err
	}
	return out.Interface().(*T), nil
}
