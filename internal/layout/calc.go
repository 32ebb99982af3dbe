package layout

// Info describes the frozen footprint of a composite under one set of layout
// parameters.
type Info struct {
	Size         uint32
	Align        uint32
	FieldOffsets []uint32 // parallel to the shapes passed to Calc
}

// Shape is the frozen footprint of one included field. Arity is the
// contiguous element count; zero is treated as one.
type Shape struct {
	Size  uint32
	Align uint32
	Arity uint32
}

// AlignTo rounds offset up to the next multiple of align. Align zero or one
// is a no-op.
func AlignTo(offset, align uint32) uint32 {
	if align <= 1 {
		return offset
	}
	return (offset + align - 1) &^ (align - 1)
}

// Calc packs shapes in declaration order with natural alignment. A non-zero
// maxAlign caps every field's effective alignment, matching targets that
// restrict over-aligned members.
func Calc(shapes []Shape, maxAlign uint32) Info {
	if len(shapes) == 0 {
		return Info{Size: 0, Align: 1}
	}

	offsets := make([]uint32, len(shapes))
	structAlign := uint32(1)
	offset := uint32(0)

	for i, s := range shapes {
		align := s.Align
		if align == 0 {
			align = 1
		}
		if maxAlign != 0 && align > maxAlign {
			align = maxAlign
		}

		offset = AlignTo(offset, align)
		offsets[i] = offset

		if align > structAlign {
			structAlign = align
		}

		arity := s.Arity
		if arity == 0 {
			arity = 1
		}
		// Trailing elements of an array start at stride boundaries.
		stride := AlignTo(s.Size, align)
		if arity > 1 {
			offset += stride*(arity-1) + s.Size
		} else {
			offset += s.Size
		}
	}

	return Info{
		Size:         AlignTo(offset, structAlign),
		Align:        structAlign,
		FieldOffsets: offsets,
	}
}
