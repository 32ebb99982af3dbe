// Package memimage freezes object graphs into relocatable byte buffers.
//
// A frozen image is a single contiguous buffer that can be written to disk,
// mapped back at any address, and used without per-field deserialization:
// internal references are stored as self-relative offsets instead of
// absolute pointers.
//
//	┌──────────────┐  Freeze   ┌───────────────────┐  Flatten  ┌────────────────┐
//	│ live objects │ ────────> │ Image (sections + │ ────────> │ Result (bytes   │
//	│  (heap, Go)  │           │  deferred fixups) │           │  + patch lists) │
//	└──────────────┘           └───────────────────┘           └────────────────┘
//	       ^                                                            │
//	       │                 Materialize / UnfrozenCopy                 │
//	       └────────────────────────────────────────────────────────────┘
//
// # Key Types
//
//	Registry        - process-local type layout registry
//	TypeDescriptor  - per-type metadata and behavior dispatch
//	LayoutParams    - target description (pointer width, optional fields)
//	Image / Writer  - graph building: one section per pointed-to object
//	Result          - flattened buffer plus vtable and name patch lists
//	ThawContext     - inverse transform back to heap-owned objects
//
// # Freezing Flow
//
//  1. reg.Register(Describe[T](...)) once per type
//  2. img, _ := NewImage(reg, params)
//  3. FreezeObject(img, &obj)
//  4. res, _ := img.Flatten(FlattenOptions{})
//
// # Loading Flow
//
//  1. res, _ := ReadResult(r)
//  2. res.ValidateLayouts(reg) - treat false as a cache miss
//  3. res.Apply(reg) - resolves vtable and name patches in place
//  4. obj, _ := Materialize[T](reg, res.Buffer, res.Params)
//
// Plain relocatable pointers never need patching; only vtable identities
// and interned names, which cannot be known ahead of load, are deferred.
package memimage
