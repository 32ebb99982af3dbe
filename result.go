package memimage

import (
	"bufio"
	"bytes"
	"io"

	"go.uber.org/zap"

	"github.com/wippyai/memimage/errors"
	"github.com/wippyai/memimage/internal/binary"
)

// TypeDependency records one type whose objects an artifact contains. The
// layout hash versions the artifact: when the running binary computes a
// different hash for the same name, the artifact is stale.
type TypeDependency struct {
	NameHash   uint64
	LayoutHash uint64
}

// Result is a flattened image: the relocatable buffer plus everything a
// loading process needs to patch and validate it. A Result round-trips
// through WriteTo and ReadResult unchanged.
type Result struct {
	Buffer   []byte
	Params   LayoutParams
	ReadOnly bool

	Dependencies []TypeDependency
	VTables      []VTablePatch
	Names        []NamePatch
}

// Apply patches the buffer against a registry, making it consumable in
// this process. Call once per loaded copy.
func (r *Result) Apply(reg *Registry) error {
	return ApplyPatches(r.Buffer, r.Params, r.VTables, r.Names, reg)
}

// ValidateLayouts reports whether every type the artifact depends on is
// registered with an identical layout. A false result means the artifact
// was built against different type definitions and must be regenerated.
func (r *Result) ValidateLayouts(reg *Registry) bool {
	for _, dep := range r.Dependencies {
		d, ok := reg.LookupHash(dep.NameHash)
		if !ok {
			Logger().Debug("layout validation failed: type not registered",
				zap.Uint64("nameHash", dep.NameHash))
			return false
		}
		if got := cachedLayoutHash(d, r.Params); got != dep.LayoutHash {
			Logger().Debug("layout validation failed: layout changed",
				zap.String("type", d.Name),
				zap.Uint64("want", dep.LayoutHash),
				zap.Uint64("got", got))
			return false
		}
	}
	return true
}

// Persisted artifact framing.
const (
	resultMagic   = "FIMG"
	resultVersion = 1
)

const (
	flagForce64  = 1 << 0
	flagEditor   = 1 << 1
	flagOptional = 1 << 2
	flagReadOnly = 1 << 3
)

// WriteTo serializes the result in the FIMG framing.
func (r *Result) WriteTo(out io.Writer) (int64, error) {
	w := binary.NewWriter()
	w.WriteBytes([]byte(resultMagic))
	w.WriteU32(resultVersion)

	w.WriteU32(r.Params.PointerWidth)
	var flags byte
	if r.Params.Force64BitOffsets {
		flags |= flagForce64
	}
	if r.Params.WithEditorData {
		flags |= flagEditor
	}
	if r.Params.WithOptionalData {
		flags |= flagOptional
	}
	if r.ReadOnly {
		flags |= flagReadOnly
	}
	w.Byte(flags)
	w.WriteU32(r.Params.MaxAlign)

	w.WriteU32(uint32(len(r.Buffer)))
	w.WriteBytes(r.Buffer)

	w.WriteU32(uint32(len(r.VTables)))
	for _, vp := range r.VTables {
		w.WriteU64(vp.TypeNameHash)
		w.WriteU32(vp.SlotOffset)
		w.WriteU32(uint32(len(vp.Offsets)))
		for _, off := range vp.Offsets {
			w.WriteU32(off)
		}
	}

	w.WriteU32(uint32(len(r.Names)))
	for _, np := range r.Names {
		w.WriteName(np.Name)
		w.WriteU32(uint32(len(np.Offsets)))
		for _, off := range np.Offsets {
			w.WriteU32(off)
		}
	}

	w.WriteU32(uint32(len(r.Dependencies)))
	for _, dep := range r.Dependencies {
		w.WriteU64(dep.NameHash)
		w.WriteU64(dep.LayoutHash)
	}

	n, err := out.Write(w.Bytes())
	return int64(n), err
}

// ReadResult parses a FIMG artifact.
func ReadResult(in io.Reader) (*Result, error) {
	r := binary.NewReader(bufio.NewReader(in))

	magic, err := r.ReadBytes(len(resultMagic))
	if err != nil {
		return nil, err
	}
	if !bytes.Equal(magic, []byte(resultMagic)) {
		return nil, errors.New(errors.PhaseDecode, errors.KindBadMagic).
			Detail("not a frozen image artifact").
			Build()
	}
	version, err := r.ReadU32()
	if err != nil {
		return nil, err
	}
	if version != resultVersion {
		return nil, errors.New(errors.PhaseDecode, errors.KindBadVersion).
			Value(version).
			Detail("unsupported artifact version %d", version).
			Build()
	}

	res := &Result{}
	if res.Params.PointerWidth, err = r.ReadU32(); err != nil {
		return nil, err
	}
	flags, err := r.ReadByte()
	if err != nil {
		return nil, err
	}
	res.Params.Force64BitOffsets = flags&flagForce64 != 0
	res.Params.WithEditorData = flags&flagEditor != 0
	res.Params.WithOptionalData = flags&flagOptional != 0
	res.ReadOnly = flags&flagReadOnly != 0
	if res.Params.MaxAlign, err = r.ReadU32(); err != nil {
		return nil, err
	}
	if err := res.Params.Validate(); err != nil {
		return nil, err
	}

	blen, err := r.ReadU32()
	if err != nil {
		return nil, err
	}
	if res.Buffer, err = r.ReadBytes(int(blen)); err != nil {
		return nil, err
	}

	nvt, err := r.ReadU32()
	if err != nil {
		return nil, err
	}
	res.VTables = make([]VTablePatch, 0, preallocCap(nvt))
	for i := uint32(0); i < nvt; i++ {
		var vp VTablePatch
		if vp.TypeNameHash, err = r.ReadU64(); err != nil {
			return nil, err
		}
		if vp.SlotOffset, err = r.ReadU32(); err != nil {
			return nil, err
		}
		if vp.Offsets, err = readOffsets(r); err != nil {
			return nil, err
		}
		res.VTables = append(res.VTables, vp)
	}

	nnm, err := r.ReadU32()
	if err != nil {
		return nil, err
	}
	res.Names = make([]NamePatch, 0, preallocCap(nnm))
	for i := uint32(0); i < nnm; i++ {
		var np NamePatch
		if np.Name, err = r.ReadName(); err != nil {
			return nil, err
		}
		if np.Offsets, err = readOffsets(r); err != nil {
			return nil, err
		}
		res.Names = append(res.Names, np)
	}

	ndeps, err := r.ReadU32()
	if err != nil {
		return nil, err
	}
	res.Dependencies = make([]TypeDependency, 0, preallocCap(ndeps))
	for i := uint32(0); i < ndeps; i++ {
		var dep TypeDependency
		if dep.NameHash, err = r.ReadU64(); err != nil {
			return nil, err
		}
		if dep.LayoutHash, err = r.ReadU64(); err != nil {
			return nil, err
		}
		res.Dependencies = append(res.Dependencies, dep)
	}
	return res, nil
}

// preallocCap bounds slice preallocation for counts read from the artifact,
// so a corrupt count fails at end of input instead of committing the
// declared size up front.
func preallocCap(n uint32) int {
	const limit = 4096
	if n > limit {
		return limit
	}
	return int(n)
}

func readOffsets(r *binary.Reader) ([]uint32, error) {
	n, err := r.ReadU32()
	if err != nil {
		return nil, err
	}
	offs := make([]uint32, 0, preallocCap(n))
	for i := uint32(0); i < n; i++ {
		off, err := r.ReadU32()
		if err != nil {
			return nil, err
		}
		offs = append(offs, off)
	}
	return offs, nil
}
