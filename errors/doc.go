// Package errors provides structured error types for the wasm-loader library.
//
// Errors are categorized by Phase (where in the load the error occurred) and
// Kind (error category). The Error type carries the source resource, a detail
// message and a cause chain.
//
// Use the Builder for structured error construction:
//
//	err := errors.New(errors.PhaseSize, errors.KindInvalidData).
//		Source("app.wasm.size").
//		Detail("not a decimal integer: %q", body).
//		Build()
//
// Or use convenience constructors for common patterns:
//
//	err := errors.Status(errors.PhaseFetch, url, resp.StatusCode)
//	err := errors.Overshoot(source, observed, expected)
//
// All errors implement the standard error interface and support errors.Is/As.
// Two errors match under errors.Is when their Phase and Kind are equal.
package errors
