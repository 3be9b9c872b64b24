// Package suppress implements the iterative latent-revelation suppression
// engine: given a pre-aggregated count table broken down by categorical
// dimensions, it marks small cells redacted and propagates redaction to any
// additional cell that would let a reader recover a small cell by summing
// or differencing along a summable dimension.
//
// The engine is synchronous, in-memory, and deterministic: the same rows,
// dimension order, and configuration always produce byte-identical output.
package suppress
