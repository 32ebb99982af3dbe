// Package errors provides structured error types for the memimage library.
//
// Errors are categorized by Phase (where the error occurred) and Kind (error
// category). The Error type includes rich context: field path, Go/layout type
// names, and cause chain.
//
// Use the Builder for structured error construction:
//
//	err := errors.New(errors.PhaseFreeze, errors.KindTypeMismatch).
//		Path("mesh", "vertices").
//		GoType("[]float32").
//		TypeName("VertexBuffer").
//		Detail("element descriptor does not match slice element").
//		Build()
//
// Or use convenience constructors for common patterns:
//
//	err := errors.NotRegistered(errors.PhaseFreeze, "main.Mesh")
//	err := errors.UnknownTypeHash(errors.PhasePatch, hash)
//
// Kinds split into two taxonomies. Contract violations between the producer
// and consumer of a frozen image (unregistered types, unknown name hashes,
// unsupported widths) report Fatal() == true and must not be retried.
// Everything else is an ordinary error the caller can react to.
//
// All errors implement the standard error interface and support errors.Is/As.
package errors
