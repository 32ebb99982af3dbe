package memimage

import (
	"sync"
)

// Name is an interned string identity plus an instance number. The index is
// only meaningful against the NameTable that issued it; frozen images
// therefore carry the string in a name patch and have the index rewritten
// at load time. The number travels in the frozen bytes unchanged.
type Name struct {
	Index  uint32
	Number uint32
}

// NameNone is the zero Name.
var NameNone = Name{}

// IsNone reports whether the name is the empty identity.
func (n Name) IsNone() bool {
	return n.Index == 0
}

// NameTable interns strings to stable-for-this-process indices. Index 0 is
// reserved for the empty name. Safe for concurrent use.
type NameTable struct {
	mu     sync.RWMutex
	byName map[string]uint32
	names  []string
}

// NewNameTable creates a table with the empty name pre-interned.
func NewNameTable() *NameTable {
	return &NameTable{
		byName: map[string]uint32{"": 0},
		names:  []string{""},
	}
}

// Intern returns the Name for s, adding it to the table on first use.
func (t *NameTable) Intern(s string) Name {
	t.mu.RLock()
	idx, ok := t.byName[s]
	t.mu.RUnlock()
	if ok {
		return Name{Index: idx}
	}

	t.mu.Lock()
	defer t.mu.Unlock()
	if idx, ok := t.byName[s]; ok {
		return Name{Index: idx}
	}
	idx = uint32(len(t.names))
	t.names = append(t.names, s)
	t.byName[s] = idx
	return Name{Index: idx}
}

// MakeName interns s and attaches an instance number.
func (t *NameTable) MakeName(s string, number uint32) Name {
	n := t.Intern(s)
	n.Number = number
	return n
}

// String returns the interned string for n, or "" for an unknown index.
func (t *NameTable) String(n Name) string {
	t.mu.RLock()
	defer t.mu.RUnlock()
	if int(n.Index) >= len(t.names) {
		return ""
	}
	return t.names[n.Index]
}

// Lookup returns the Name for s without interning it.
func (t *NameTable) Lookup(s string) (Name, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	idx, ok := t.byName[s]
	return Name{Index: idx}, ok
}

// Len returns the number of interned names, including the empty name.
func (t *NameTable) Len() int {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return len(t.names)
}
