package memimage

// ptrFixup records a relocatable pointer word awaiting its self-relative
// delta. The word itself stays zero until flattening.
type ptrFixup struct {
	at        uint32 // offset of the pointer word in the owning section
	target    *Section
	targetOff uint32 // offset inside the target section
}

// vtbFixup records a vtable slot. The patch key is the runtime type's name
// hash plus the slot's offset within the frozen object.
type vtbFixup struct {
	at   uint32
	hash uint64
	slot uint32
}

// nameFixup records an interned-name index cell to be rewritten by the
// loading process against its own name table.
type nameFixup struct {
	at  uint32
	str string
}

// Section is one contiguous run of frozen bytes: a single pointed-to
// object plus everything stored inline in it. Sections become adjacent
// spans of the final buffer during flattening, which is when pointer
// fixups turn into self-relative deltas.
type Section struct {
	img   *Image
	id    int
	buf   []byte
	align uint32

	ptrs  []ptrFixup
	vtbs  []vtbFixup
	names []nameFixup
}

// Len returns the section's current byte length.
func (s *Section) Len() uint32 {
	return uint32(len(s.buf))
}

// leaf reports whether the section references no other section. Only leaf
// sections are candidates for duplicate merging: merging a section that
// carries pointers could conflate distinct pointees behind equal local
// bytes.
func (s *Section) isLeaf() bool {
	return len(s.ptrs) == 0
}

func (s *Section) requireAlign(a uint32) {
	if a > s.align {
		s.align = a
	}
}
