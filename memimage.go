package memimage

import "unsafe"

// PointerTable maps between live object identities and small integer
// indices. Writers use it for pointer fields whose target type can only be
// determined by inspecting the object at freeze time; loaders use it to
// turn indices back into local identities. Index values are stable only
// between one writer/loader pair sharing table contents.
type PointerTable interface {
	// SaveIndex returns the index for v, adding it on first sight.
	SaveIndex(v any) (uint32, error)
	// LoadIndex resolves an index issued by SaveIndex in the writing
	// process to this process's identity for the same object.
	LoadIndex(index uint32) (any, error)
}

// FrozenContainer is the contract an element-storage collaborator must
// satisfy to participate in freezing. The engine is agnostic to how the
// container grows or shrinks its backing store; it only needs the
// operations below. Containers register their own TypeDescriptor with a
// behavior that delegates to this interface.
type FrozenContainer interface {
	// SupportsFreezing reports whether the container can be frozen at all.
	SupportsFreezing() bool

	// AllocationPtr returns the current backing allocation.
	AllocationPtr() unsafe.Pointer

	// Resize replaces the backing allocation for newCount elements of the
	// given size, preserving min(oldCount, newCount) elements.
	Resize(oldCount, newCount int, elemSize uintptr)

	// WriteMemoryImage freezes count elements through w, typically by
	// starting a child section with w.WritePointer and writing the
	// element storage there.
	WriteMemoryImage(w *Writer, elem *TypeDescriptor, count int) error

	// CopyUnfrozen reconstructs count elements from the frozen storage at
	// src into the receiver, allocating backing storage sized exactly to
	// count.
	CopyUnfrozen(c *ThawContext, elem *TypeDescriptor, count int, src unsafe.Pointer) error
}
