package memimage

import (
	"encoding/binary"
	"reflect"
	"unsafe"

	"github.com/wippyai/memimage/errors"

	"github.com/wippyai/memimage/internal/layout"
)

// Writer appends frozen bytes to one section. All multi-byte values are
// little-endian; pointer words are written as zero placeholders and filled
// in during flattening.
type Writer struct {
	img *Image
	sec *Section
}

// Params returns the image's target layout parameters.
func (w *Writer) Params() LayoutParams {
	return w.img.params
}

// Offset returns the current write position within the section.
func (w *Writer) Offset() uint32 {
	return w.sec.Len()
}

// effectiveAlign applies the target's alignment cap.
func (w *Writer) effectiveAlign(a uint32) uint32 {
	if m := w.img.params.MaxAlign; m != 0 && a > m {
		return m
	}
	return a
}

// Align pads with zeros so the next write lands on an a-byte boundary,
// subject to the target's alignment cap.
func (w *Writer) Align(a uint32) {
	a = w.effectiveAlign(a)
	w.sec.requireAlign(a)
	w.padTo(layout.AlignTo(w.Offset(), a))
}

func (w *Writer) padTo(off uint32) {
	for w.sec.Len() < off {
		w.sec.buf = append(w.sec.buf, 0)
	}
}

// WriteBytes appends raw bytes.
func (w *Writer) WriteBytes(b []byte) {
	w.sec.buf = append(w.sec.buf, b...)
}

// WriteZeros appends n zero bytes.
func (w *Writer) WriteZeros(n uint32) {
	w.padTo(w.Offset() + n)
}

func (w *Writer) appendU32(v uint32) {
	w.sec.buf = binary.LittleEndian.AppendUint32(w.sec.buf, v)
}

// WriteObject freezes one object of type d at the current position,
// aligned per the type's frozen layout.
func (w *Writer) WriteObject(d *TypeDescriptor, src unsafe.Pointer) error {
	if src == nil {
		return errors.NilPointer(errors.PhaseFreeze, nil, d.String())
	}
	_, a, err := d.Behavior.FrozenExtent(d, w.img.params)
	if err != nil {
		return err
	}
	w.Align(a)
	w.img.addDependency(d)
	return d.Behavior.WriteFrozen(w, d, src)
}

// WriteChild freezes an out-of-line object in its own section and emits a
// relocatable pointer word to it here. targetOff points inside the child
// for interior references; zero addresses the child's start.
func (w *Writer) WriteChild(d *TypeDescriptor, src unsafe.Pointer, targetOff uint32) error {
	if src == nil {
		w.WriteNullPointer()
		return nil
	}
	key := objectKey{ptr: src, desc: d}
	sec, seen := w.img.objects[key]
	if !seen {
		// Memoized before the content is written so reference cycles
		// terminate; the pointer fixup only needs the section identity.
		sec = w.img.newSection()
		w.img.objects[key] = sec
		child := &Writer{img: w.img, sec: sec}
		if err := child.WriteObject(d, src); err != nil {
			return err
		}
	}
	w.WritePointerTo(sec, targetOff)
	return nil
}

// WritePointer starts a fresh section, emits a relocatable pointer word to
// it here, and returns a writer for the new section's content. Custom
// behaviors use this for out-of-line payloads that are not registered
// objects, such as container element storage.
func (w *Writer) WritePointer(targetOff uint32) *Writer {
	sec := w.img.newSection()
	w.WritePointerTo(sec, targetOff)
	return &Writer{img: w.img, sec: sec}
}

// WriteVTable emits a vtable word keyed by the runtime type and the slot's
// offset within the frozen object. Descriptor-driven structs get their slots
// written automatically; this is the escape hatch for custom behaviors.
func (w *Writer) WriteVTable(derived *TypeDescriptor, slot uint32) {
	w.writeVTableSlot(derived, slot)
}

// WritePointerTo emits a relocatable pointer word addressing targetOff
// bytes into an existing section.
func (w *Writer) WritePointerTo(target *Section, targetOff uint32) {
	ps := w.img.params.PointerSize()
	w.Align(ps)
	w.sec.ptrs = append(w.sec.ptrs, ptrFixup{at: w.Offset(), target: target, targetOff: targetOff})
	w.WriteZeros(ps)
}

// WriteNullPointer emits a null relocatable pointer word.
func (w *Writer) WriteNullPointer() {
	ps := w.img.params.PointerSize()
	w.Align(ps)
	w.WriteZeros(ps)
}

// writeVTableSlot emits a zero pointer word whose patch key is the runtime
// type's name hash plus the slot offset within the frozen object.
func (w *Writer) writeVTableSlot(d *TypeDescriptor, slot uint32) {
	ps := w.img.params.PointerSize()
	w.Align(ps)
	w.sec.vtbs = append(w.sec.vtbs, vtbFixup{at: w.Offset(), hash: d.NameHash, slot: slot})
	w.WriteZeros(ps)
}

// WriteName emits an interned name: a u32 index cell rewritten at load
// time, then the instance number.
func (w *Writer) WriteName(n Name) {
	w.Align(4)
	if !n.IsNone() {
		w.sec.names = append(w.sec.names, nameFixup{
			at:  w.Offset(),
			str: w.img.reg.Names().String(n),
		})
	}
	w.appendU32(0)
	w.appendU32(n.Number)
}

func arityOf(f *FieldDescriptor) uint32 {
	if f.Arity > 1 {
		return f.Arity
	}
	return 1
}

// writeField freezes one field at absolute section offset at. src
// addresses the field inside the live object.
func (w *Writer) writeField(f *FieldDescriptor, src unsafe.Pointer, at uint32) error {
	if f.Write != nil {
		w.padTo(at)
		return f.Write(w, f, src)
	}

	switch f.mode {
	case fieldRef:
		w.padTo(at)
		return w.writeRefField(f, (*refHeader)(src))
	case fieldPoly:
		w.padTo(at)
		return w.writePolyField(f, (*PolyRef)(src))
	case fieldTable:
		w.padTo(at)
		return w.writeTableField(f, (*TableRef)(src))
	}

	t := f.Type
	switch {
	case t.Kind.IsScalar():
		n := t.Kind.ScalarSize() * arityOf(f)
		w.padTo(at)
		w.WriteBytes(unsafe.Slice((*byte)(src), n))
		return nil

	case t.Kind == KindName:
		for k := uint32(0); k < arityOf(f); k++ {
			w.padTo(at + k*nameFrozenSize)
			w.WriteName(*(*Name)(unsafe.Add(src, uintptr(k)*unsafe.Sizeof(Name{}))))
		}
		return nil

	case t.Kind == KindStruct:
		size, align, err := t.Behavior.FrozenExtent(t, w.img.params)
		if err != nil {
			return err
		}
		stride := layout.AlignTo(size, align)
		for k := uint32(0); k < arityOf(f); k++ {
			w.padTo(at + k*stride)
			if err := t.Behavior.WriteFrozen(w, t, unsafe.Add(src, uintptr(k)*t.Size)); err != nil {
				return err
			}
		}
		return nil

	default:
		return errors.Unsupported(errors.PhaseFreeze, "field kind "+t.Kind.String())
	}
}

func (w *Writer) writeRefField(f *FieldDescriptor, h *refHeader) error {
	switch h.tag {
	case tagNull:
		w.WriteNullPointer()
		return nil
	case tagLive:
		return w.WriteChild(f.Type, h.p, 0)
	default:
		return errors.Unsupported(errors.PhaseFreeze, "refreezing a frozen reference without thawing")
	}
}

// writePolyField resolves the pointee's concrete type and freezes the full
// derived object; the static type only validates conformance. The frozen
// word addresses the derived object's start, whose leading vtable slots
// restore the concrete identity at load time.
func (w *Writer) writePolyField(f *FieldDescriptor, r *PolyRef) error {
	if r.IsNull() {
		w.WriteNullPointer()
		return nil
	}
	rv := reflect.ValueOf(r.v)
	if rv.Kind() != reflect.Pointer || rv.IsNil() {
		return errors.New(errors.PhaseFreeze, errors.KindTypeMismatch).
			Path(f.Name).
			GoType(rv.Type().String()).
			Detail("polymorphic reference must hold a non-nil pointer").
			Build()
	}
	derived, ok := w.img.reg.Lookup(rv.Type().Elem())
	if !ok {
		return errors.NotRegistered(errors.PhaseFreeze, rv.Type().Elem().String())
	}
	if derived.Interface != Virtual {
		return errors.New(errors.PhaseFreeze, errors.KindTypeMismatch).
			Path(f.Name).
			TypeName(derived.Name).
			Detail("polymorphic pointee must be a virtual type").
			Build()
	}
	if f.Type.IsValid() {
		if _, err := GetOffsetToBase(f.Type, derived); err != nil {
			return err
		}
	}
	return w.WriteChild(derived, unsafe.Pointer(rv.Pointer()), 0)
}

func (w *Writer) writeTableField(f *FieldDescriptor, r *TableRef) error {
	if r.IsNull() {
		w.appendU32(0)
		return nil
	}
	if w.img.table == nil {
		return errors.New(errors.PhaseFreeze, errors.KindNoPointerTable).
			Path(f.Name).
			Detail("image has no pointer table attached").
			Build()
	}
	v := r.Get(w.img.table)
	if v == nil {
		return errors.New(errors.PhaseFreeze, errors.KindInvalidData).
			Path(f.Name).
			Detail("table reference resolves to nothing").
			Build()
	}
	idx, err := w.img.table.SaveIndex(v)
	if err != nil {
		return errors.New(errors.PhaseFreeze, errors.KindNoPointerTable).
			Path(f.Name).
			Cause(err).
			Build()
	}
	w.appendU32(idx + 1)
	return nil
}
