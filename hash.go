package memimage

// Layout hashes version frozen artifacts: any edit that changes a type's
// included fields under a given set of layout parameters changes the hash,
// while process restarts and unrelated registrations leave it alone. FNV-1a
// keeps the result reproducible with no seed state.

const (
	fnvOffset64 = 1469598103934665603
	fnvPrime64  = 1099511628211
)

// HashName returns the stable hash of a type or field name. Name hashes
// identify types in vtable patches, so they must agree between the writing
// and loading process.
func HashName(s string) uint64 {
	hash := uint64(fnvOffset64)
	for i := 0; i < len(s); i++ {
		hash ^= uint64(s[i])
		hash *= fnvPrime64
	}
	return hash
}

// LayoutHasher folds type layout facts into a running FNV-1a hash. It
// tracks in-progress descriptors so self-referential types terminate.
type LayoutHasher struct {
	hash     uint64
	visiting map[*TypeDescriptor]bool
}

// NewLayoutHasher returns a hasher in its initial state.
func NewLayoutHasher() *LayoutHasher {
	return &LayoutHasher{hash: fnvOffset64}
}

// Mix folds one value into the hash.
func (h *LayoutHasher) Mix(x uint64) {
	h.hash ^= x
	h.hash *= fnvPrime64
}

// MixBool folds a flag into the hash.
func (h *LayoutHasher) MixBool(b bool) {
	if b {
		h.Mix(1)
	} else {
		h.Mix(0)
	}
}

// Sum returns the current hash value.
func (h *LayoutHasher) Sum() uint64 {
	return h.hash
}

// enter marks d in progress. When d is already being hashed the cycle is
// recorded with a marker instead of recursing.
func (h *LayoutHasher) enter(d *TypeDescriptor) bool {
	if h.visiting == nil {
		h.visiting = make(map[*TypeDescriptor]bool, 8)
	}
	if h.visiting[d] {
		h.Mix(0x9e3779b97f4a7c15) // cycle marker
		return false
	}
	h.visiting[d] = true
	return true
}

func (h *LayoutHasher) leave(d *TypeDescriptor) {
	delete(h.visiting, d)
}

// mixParams folds the layout parameters that can change a frozen layout.
func (h *LayoutHasher) mixParams(p LayoutParams) {
	h.Mix(uint64(p.PointerSize()))
	h.Mix(uint64(p.MaxAlign))
}

// AppendLayoutHash folds the layout of d under p into h, dispatching
// through the descriptor's behavior.
func AppendLayoutHash(d *TypeDescriptor, p LayoutParams, h *LayoutHasher) {
	d.Behavior.AppendHash(h, d, p)
}

// LayoutHash returns the layout hash of one (type, parameters) pair. This
// is the versioning key downstream caches of frozen artifacts must use.
func LayoutHash(d *TypeDescriptor, p LayoutParams) uint64 {
	h := NewLayoutHasher()
	h.mixParams(p)
	AppendLayoutHash(d, p, h)
	return h.Sum()
}
