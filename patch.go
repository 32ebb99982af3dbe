package memimage

import (
	"encoding/binary"

	"github.com/wippyai/memimage/errors"
)

// VTablePatch lists every vtable word for one (runtime type, slot) pair.
// The writing process stores zeros there; the loading process writes its
// own token for the type, restoring concrete identity without ever
// persisting an address.
type VTablePatch struct {
	TypeNameHash uint64
	SlotOffset   uint32
	Offsets      []uint32
}

// NamePatch lists every interned-name index cell for one string.
type NamePatch struct {
	Name    string
	Offsets []uint32
}

// ApplyPatches rewrites a flattened buffer for use in this process:
// vtable words receive the registry's token for the named type, name
// index cells receive the registry's interned index. A vtable hash with
// no registered type is a fatal mismatch between the artifact and the
// running binary.
func ApplyPatches(buf []byte, p LayoutParams, vtables []VTablePatch, names []NamePatch, reg *Registry) error {
	ps := p.PointerSize()
	for _, vp := range vtables {
		d, ok := reg.LookupHash(vp.TypeNameHash)
		if !ok {
			return errors.UnknownTypeHash(errors.PhasePatch, vp.TypeNameHash)
		}
		for _, off := range vp.Offsets {
			if uint64(off)+uint64(ps) > uint64(len(buf)) {
				return errors.OutOfBounds(errors.PhasePatch, []string{d.Name}, int(off), len(buf))
			}
			// The token occupies the full pointer word, zero-extended.
			if ps == 4 {
				binary.LittleEndian.PutUint32(buf[off:], d.token)
			} else {
				binary.LittleEndian.PutUint64(buf[off:], uint64(d.token))
			}
		}
	}

	for _, np := range names {
		n := reg.Names().Intern(np.Name)
		for _, off := range np.Offsets {
			if uint64(off)+4 > uint64(len(buf)) {
				return errors.OutOfBounds(errors.PhasePatch, []string{"name", np.Name}, int(off), len(buf))
			}
			binary.LittleEndian.PutUint32(buf[off:], n.Index)
		}
	}
	return nil
}
