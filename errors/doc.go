// Package errors provides structured error types for the wren-runtime library.
//
// Errors are categorized by Phase (where the error occurred) and Kind (error category).
// The Error type includes rich context: member path, Go/Wren type names, and cause chain.
//
// Use the Builder for structured error construction:
//
//	err := errors.New(errors.PhaseBind, errors.KindDuplicateSignature).
//		Path("math", "Math", "sin(_)").
//		GoType("*Math").
//		Detail("signature declared twice").
//		Build()
//
// Protocol and binding failures have sentinels that match by Phase and Kind:
//
//	if errors.Is(err, errors.ErrStaleHandle) { ... }
//
// All errors implement the standard error interface and support errors.Is/As.
package errors
