package memimage

import (
	"fmt"
	"reflect"
	"unsafe"

	"github.com/wippyai/memimage/errors"
)

// TypeBehavior is the per-type hook set the freeze and thaw machinery
// dispatches through. Built-in behaviors cover scalars, names, and
// descriptor-driven structs; container types install custom behaviors that
// use the Writer and ThawContext primitives directly.
type TypeBehavior interface {
	// WriteFrozen appends the frozen form of the object at src. The writer
	// is already aligned per FrozenExtent.
	WriteFrozen(w *Writer, d *TypeDescriptor, src unsafe.Pointer) error

	// CopyUnfrozen reconstructs a live object at dst from the frozen bytes
	// at src.
	CopyUnfrozen(c *ThawContext, d *TypeDescriptor, src, dst unsafe.Pointer) error

	// AppendHash folds the type's frozen layout into h.
	AppendHash(h *LayoutHasher, d *TypeDescriptor, p LayoutParams)

	// FrozenExtent returns the frozen size and alignment of one instance.
	FrozenExtent(d *TypeDescriptor, p LayoutParams) (size, align uint32, err error)

	// Stringify renders a live instance for diagnostics.
	Stringify(d *TypeDescriptor, src unsafe.Pointer) string
}

func copyMem(dst, src unsafe.Pointer, n uintptr) {
	copy(unsafe.Slice((*byte)(dst), n), unsafe.Slice((*byte)(src), n))
}

type scalarBehavior struct{}

func (scalarBehavior) WriteFrozen(w *Writer, d *TypeDescriptor, src unsafe.Pointer) error {
	w.WriteBytes(unsafe.Slice((*byte)(src), d.Size))
	return nil
}

func (scalarBehavior) CopyUnfrozen(_ *ThawContext, d *TypeDescriptor, src, dst unsafe.Pointer) error {
	copyMem(dst, src, d.Size)
	return nil
}

func (scalarBehavior) AppendHash(h *LayoutHasher, d *TypeDescriptor, _ LayoutParams) {
	h.Mix(d.NameHash)
	h.Mix(uint64(d.Size))
}

func (scalarBehavior) FrozenExtent(d *TypeDescriptor, _ LayoutParams) (uint32, uint32, error) {
	s := d.Kind.ScalarSize()
	return s, s, nil
}

func (scalarBehavior) Stringify(d *TypeDescriptor, src unsafe.Pointer) string {
	return fmt.Sprintf("%v", reflect.NewAt(d.GoType, src).Elem().Interface())
}

type nameBehavior struct{}

func (nameBehavior) WriteFrozen(w *Writer, _ *TypeDescriptor, src unsafe.Pointer) error {
	w.WriteName(*(*Name)(src))
	return nil
}

func (nameBehavior) CopyUnfrozen(c *ThawContext, _ *TypeDescriptor, src, dst unsafe.Pointer) error {
	return c.copyName(src, dst)
}

func (nameBehavior) AppendHash(h *LayoutHasher, d *TypeDescriptor, _ LayoutParams) {
	h.Mix(d.NameHash)
	h.Mix(nameFrozenSize)
}

func (nameBehavior) FrozenExtent(_ *TypeDescriptor, _ LayoutParams) (uint32, uint32, error) {
	return nameFrozenSize, nameFrozenAlign, nil
}

func (nameBehavior) Stringify(_ *TypeDescriptor, src unsafe.Pointer) string {
	n := *(*Name)(src)
	return fmt.Sprintf("name(%d:%d)", n.Index, n.Number)
}

// structBehavior drives freezing and thawing off the cached frozen layout:
// bases folded flat, vtable slots keyed by the outermost type, fields
// written at their computed offsets.
type structBehavior struct{}

func (structBehavior) WriteFrozen(w *Writer, d *TypeDescriptor, src unsafe.Pointer) error {
	fl, err := d.FrozenLayout(w.Params())
	if err != nil {
		return err
	}
	start := w.Offset()
	for i := range fl.entries {
		e := &fl.entries[i]
		if e.field == nil {
			w.padTo(start + e.off)
			w.writeVTableSlot(d, e.off)
			continue
		}
		if err := w.writeField(e.field, unsafe.Add(src, e.live), start+e.off); err != nil {
			return err
		}
	}
	w.padTo(start + fl.Size)
	return nil
}

func (structBehavior) CopyUnfrozen(c *ThawContext, d *TypeDescriptor, src, dst unsafe.Pointer) error {
	return c.copyStruct(d, src, dst)
}

func (structBehavior) AppendHash(h *LayoutHasher, d *TypeDescriptor, p LayoutParams) {
	if !h.enter(d) {
		return
	}
	defer h.leave(d)

	h.Mix(d.NameHash)
	h.Mix(uint64(d.Interface))
	if fl, err := d.FrozenLayout(p); err == nil {
		h.Mix(uint64(fl.Size))
		h.Mix(uint64(fl.Align))
	} else {
		h.Mix(0xbadc0de) // unbuildable layout marker
	}

	for _, b := range d.Bases {
		if b.Type.Interface == Abstract {
			continue
		}
		h.MixBool(b.Virtual)
		AppendLayoutHash(b.Type, p, h)
	}

	for i := range d.Fields {
		f := &d.Fields[i]
		if !f.Flags.IncludedIn(p) {
			continue
		}
		h.Mix(HashName(f.Name))
		h.Mix(uint64(f.mode))
		h.Mix(uint64(arityOf(f)))
		h.Mix(uint64(f.Bits))
		if f.Type != nil {
			AppendLayoutHash(f.Type, p, h)
		}
	}
}

func (structBehavior) FrozenExtent(d *TypeDescriptor, p LayoutParams) (uint32, uint32, error) {
	fl, err := d.FrozenLayout(p)
	if err != nil {
		return 0, 0, err
	}
	return fl.Size, fl.Align, nil
}

func (structBehavior) Stringify(d *TypeDescriptor, _ unsafe.Pointer) string {
	return d.Name
}

type invalidBehavior struct{}

func (invalidBehavior) WriteFrozen(_ *Writer, d *TypeDescriptor, _ unsafe.Pointer) error {
	return errors.AbstractType(errors.PhaseFreeze, d.String())
}

func (invalidBehavior) CopyUnfrozen(_ *ThawContext, d *TypeDescriptor, _, _ unsafe.Pointer) error {
	return errors.AbstractType(errors.PhaseThaw, d.String())
}

func (invalidBehavior) AppendHash(h *LayoutHasher, _ *TypeDescriptor, _ LayoutParams) {
	h.Mix(0xfffe) // invalid marker
}

func (invalidBehavior) FrozenExtent(d *TypeDescriptor, _ LayoutParams) (uint32, uint32, error) {
	return 0, 0, errors.AbstractType(errors.PhaseFreeze, d.String())
}

func (invalidBehavior) Stringify(_ *TypeDescriptor, _ unsafe.Pointer) string {
	return "<invalid>"
}
