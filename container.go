package memimage

import (
	"encoding/binary"
	"reflect"
	"unsafe"

	"github.com/wippyai/memimage/errors"
	"github.com/wippyai/memimage/internal/layout"
)

// ContainerBehavior freezes types whose Go representation implements
// FrozenContainer. The frozen form is a u32 element count followed by a
// pointer-aligned word the container's WriteMemoryImage fills in, so the
// engine stays agnostic to the container's growth policy and backing
// store.
//
// Register the container type with a descriptor that carries this behavior:
//
//	reg.MustRegister(Describe[intVec]("int-vec").
//		WithBehavior(ContainerBehavior{Elem: Int32Type, Count: countOf}))
type ContainerBehavior struct {
	// Elem is the element type descriptor.
	Elem *TypeDescriptor
	// Count returns the live element count of the container at src.
	Count func(src unsafe.Pointer) int
}

func (b ContainerBehavior) container(d *TypeDescriptor, p unsafe.Pointer) (FrozenContainer, error) {
	v := reflect.NewAt(d.GoType, p).Interface()
	cont, ok := v.(FrozenContainer)
	if !ok {
		return nil, errors.New(errors.PhaseFreeze, errors.KindTypeMismatch).
			TypeName(d.Name).
			GoType(d.GoType.String()).
			Detail("container behavior requires *%s to implement FrozenContainer", d.GoType).
			Build()
	}
	return cont, nil
}

// wordOffset locates the storage word in the frozen header: the count cell
// sits at zero, the word after padding to the capped pointer alignment.
func (b ContainerBehavior) wordOffset(p LayoutParams) uint32 {
	a := p.PointerSize()
	if p.MaxAlign != 0 && a > p.MaxAlign {
		a = p.MaxAlign
	}
	return layout.AlignTo(4, a)
}

func (b ContainerBehavior) WriteFrozen(w *Writer, d *TypeDescriptor, src unsafe.Pointer) error {
	cont, err := b.container(d, src)
	if err != nil {
		return err
	}
	if !cont.SupportsFreezing() {
		return errors.Unsupported(errors.PhaseFreeze, "container "+d.Name+" does not support freezing")
	}
	count := b.Count(src)

	var cell [4]byte
	binary.LittleEndian.PutUint32(cell[:], uint32(count))
	w.WriteBytes(cell[:])
	w.Align(w.Params().PointerSize())
	if count == 0 {
		w.WriteNullPointer()
		return nil
	}
	return cont.WriteMemoryImage(w, b.Elem, count)
}

func (b ContainerBehavior) CopyUnfrozen(c *ThawContext, d *TypeDescriptor, src, dst unsafe.Pointer) error {
	cont, err := b.container(d, dst)
	if err != nil {
		return err
	}
	if !c.FromFrozen {
		// Live-to-live copies round through the container itself: the
		// source backing store is addressed directly.
		srcCont, err := b.container(d, src)
		if err != nil {
			return err
		}
		return cont.CopyUnfrozen(c, b.Elem, b.Count(src), srcCont.AllocationPtr())
	}

	count := int(binary.LittleEndian.Uint32(unsafe.Slice((*byte)(src), 4)))
	if count == 0 {
		return nil
	}
	word := unsafe.Add(src, b.wordOffset(c.Params))
	delta := c.readWord(word)
	if delta == 0 {
		return errors.New(errors.PhaseThaw, errors.KindInvalidData).
			TypeName(d.Name).
			Detail("container claims %d elements but has no storage", count).
			Build()
	}
	target, err := c.followStorage(word, delta)
	if err != nil {
		return err
	}
	return cont.CopyUnfrozen(c, b.Elem, count, target)
}

func (b ContainerBehavior) AppendHash(h *LayoutHasher, d *TypeDescriptor, p LayoutParams) {
	if !h.enter(d) {
		return
	}
	defer h.leave(d)
	h.Mix(d.NameHash)
	h.Mix(0xc047a14e4) // container marker
	AppendLayoutHash(b.Elem, p, h)
}

func (b ContainerBehavior) FrozenExtent(_ *TypeDescriptor, p LayoutParams) (uint32, uint32, error) {
	ps := p.PointerSize()
	return b.wordOffset(p) + ps, ps, nil
}

func (b ContainerBehavior) Stringify(d *TypeDescriptor, src unsafe.Pointer) string {
	return d.Name
}
