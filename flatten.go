package memimage

import (
	"encoding/binary"
	"fmt"
	"math"
	"sort"
	"strings"

	"go.uber.org/zap"

	"github.com/wippyai/memimage/errors"
	"github.com/wippyai/memimage/internal/layout"
)

// FlattenOptions controls the final assembly of an image.
type FlattenOptions struct {
	// MergeDuplicateSections folds byte-identical leaf sections into one
	// span. Merged objects alias, so this requires ReadOnly: a mutable
	// consumer writing through one reference would see the change through
	// every other.
	MergeDuplicateSections bool

	// ReadOnly declares that no consumer will mutate thawed views of the
	// buffer in place.
	ReadOnly bool
}

// Flatten lays the image's sections into one contiguous buffer in
// depth-first order from the root, resolves every pointer word to a
// self-relative delta, and collects the patch lists the loading process
// applies. The root object always starts at offset zero.
func (img *Image) Flatten(opts FlattenOptions) (*Result, error) {
	if opts.MergeDuplicateSections && !opts.ReadOnly {
		return nil, errors.New(errors.PhaseFlatten, errors.KindMergeUnsafe).
			Detail("duplicate merging aliases objects and needs a read-only buffer").
			Build()
	}

	order := img.sectionOrder()

	alias := make(map[*Section]*Section, len(order))
	if opts.MergeDuplicateSections {
		seen := make(map[string]*Section, len(order))
		for _, s := range order {
			if !s.isLeaf() {
				continue
			}
			key := leafKey(s)
			if canon, ok := seen[key]; ok {
				alias[s] = canon
			} else {
				seen[key] = s
			}
		}
	}

	// Assign final positions, skipping merged-away sections.
	pos := make(map[*Section]uint32, len(order))
	total := uint32(0)
	for _, s := range order {
		if _, merged := alias[s]; merged {
			continue
		}
		total = layout.AlignTo(total, s.align)
		pos[s] = total
		total += s.Len()
	}

	buf := make([]byte, total)
	for _, s := range order {
		if _, merged := alias[s]; merged {
			continue
		}
		copy(buf[pos[s]:], s.buf)
	}

	res := &Result{
		Buffer:   buf,
		Params:   img.params,
		ReadOnly: opts.ReadOnly,
	}

	vtGroups := make(map[vtKey][]uint32)
	nameGroups := make(map[string][]uint32)
	for _, s := range order {
		if _, merged := alias[s]; merged {
			continue
		}
		base := pos[s]
		for _, f := range s.ptrs {
			target := f.target
			if canon, ok := alias[target]; ok {
				target = canon
			}
			at := base + f.at
			to := pos[target] + f.targetOff
			if err := writeDelta(buf, at, int64(to)-int64(at), img.params); err != nil {
				return nil, err
			}
		}
		for _, f := range s.vtbs {
			k := vtKey{hash: f.hash, slot: f.slot}
			vtGroups[k] = append(vtGroups[k], base+f.at)
		}
		for _, f := range s.names {
			nameGroups[f.str] = append(nameGroups[f.str], base+f.at)
		}
	}

	res.VTables = sortedVTablePatches(vtGroups)
	res.Names = sortedNamePatches(nameGroups)
	res.Dependencies = img.dependencySnapshot()

	Logger().Debug("flattened image",
		zap.Int("sections", len(order)),
		zap.Int("merged", len(alias)),
		zap.Uint32("bytes", total),
		zap.Int("vtablePatches", len(res.VTables)),
		zap.Int("namePatches", len(res.Names)))
	return res, nil
}

// sectionOrder returns the sections in depth-first preorder from the root,
// following pointer fixups in field order.
func (img *Image) sectionOrder() []*Section {
	order := make([]*Section, 0, len(img.sections))
	visited := make(map[*Section]bool, len(img.sections))
	var visit func(s *Section)
	visit = func(s *Section) {
		if visited[s] {
			return
		}
		visited[s] = true
		order = append(order, s)
		for _, f := range s.ptrs {
			visit(f.target)
		}
	}
	visit(img.sections[0])
	for _, s := range img.sections {
		visit(s)
	}
	return order
}

// leafKey identifies a leaf section's full content: bytes plus the patch
// entries that will rewrite some of those bytes at load time.
func leafKey(s *Section) string {
	var b strings.Builder
	b.Write(s.buf)
	for _, f := range s.vtbs {
		fmt.Fprintf(&b, "|v%d:%x:%d", f.at, f.hash, f.slot)
	}
	for _, f := range s.names {
		fmt.Fprintf(&b, "|n%d:%s", f.at, f.str)
	}
	fmt.Fprintf(&b, "|a%d", s.align)
	return b.String()
}

// writeDelta stores a self-relative pointer delta. Zero is reserved for
// null; a genuine zero delta would mean a word pointing at itself, which
// the section model cannot produce.
func writeDelta(buf []byte, at uint32, delta int64, p LayoutParams) error {
	if p.PointerSize() == 4 {
		if delta < math.MinInt32 || delta > math.MaxInt32 {
			return errors.Overflow(errors.PhaseFlatten, nil, delta, "32-bit pointer delta")
		}
		binary.LittleEndian.PutUint32(buf[at:], uint32(int32(delta)))
		return nil
	}
	binary.LittleEndian.PutUint64(buf[at:], uint64(delta))
	return nil
}

// readDelta is the inverse of writeDelta.
func readDelta(buf []byte, at uint32, p LayoutParams) int64 {
	if p.PointerSize() == 4 {
		return int64(int32(binary.LittleEndian.Uint32(buf[at:])))
	}
	return int64(binary.LittleEndian.Uint64(buf[at:]))
}

type vtKey struct {
	hash uint64
	slot uint32
}

func sortedVTablePatches(groups map[vtKey][]uint32) []VTablePatch {
	keys := make([]vtKey, 0, len(groups))
	for k := range groups {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool {
		if keys[i].hash != keys[j].hash {
			return keys[i].hash < keys[j].hash
		}
		return keys[i].slot < keys[j].slot
	})
	out := make([]VTablePatch, len(keys))
	for i, k := range keys {
		offs := groups[k]
		sort.Slice(offs, func(a, b int) bool { return offs[a] < offs[b] })
		out[i] = VTablePatch{TypeNameHash: k.hash, SlotOffset: k.slot, Offsets: offs}
	}
	return out
}

func sortedNamePatches(groups map[string][]uint32) []NamePatch {
	strs := make([]string, 0, len(groups))
	for s := range groups {
		strs = append(strs, s)
	}
	sort.Strings(strs)
	out := make([]NamePatch, len(strs))
	for i, s := range strs {
		offs := groups[s]
		sort.Slice(offs, func(a, b int) bool { return offs[a] < offs[b] })
		out[i] = NamePatch{Name: s, Offsets: offs}
	}
	return out
}

func (img *Image) dependencySnapshot() []TypeDependency {
	out := make([]TypeDependency, 0, len(img.deps))
	for nh, lh := range img.deps {
		out = append(out, TypeDependency{NameHash: nh, LayoutHash: lh})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].NameHash < out[j].NameHash })
	return out
}
