// Package layout provides frozen-image layout calculations.
//
// This package packs an ordered list of field shapes (size, alignment,
// arity) into a struct footprint: sequential placement with padding for
// alignment, an optional cap on per-field alignment, and tail padding to
// the struct's own alignment.
//
// It is deliberately free of type descriptors: the root package translates
// descriptor fields into shapes under a given set of layout parameters and
// hands them here, so the arithmetic stays independently testable.
//
// This package is internal to memimage.
package layout
