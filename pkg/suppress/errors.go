package suppress

import (
	"errors"
	"fmt"
)

// Sentinel error kinds. Callers use errors.Is to classify a failure; the
// wrapped message carries the detail. None of these are retryable: the
// computation is deterministic and performs no I/O.
var (
	// ErrInvalidConfig is returned when a Config fails validation:
	// threshold <= 0, missing incidence column, empty dimension list, or a
	// non-summable dimension absent from the dimension list.
	ErrInvalidConfig = errors.New("suppress: invalid config")

	// ErrMalformedInput is returned when the raw aggregate cannot be
	// ingested: a non-integer or negative incidence value, or a duplicate
	// dimension tuple.
	ErrMalformedInput = errors.New("suppress: malformed input")

	// ErrInvariantViolation is returned when the fixed-point loop exceeds
	// its safety iteration bound. It indicates a bug in the engine, not a
	// property of the input.
	ErrInvariantViolation = errors.New("suppress: internal invariant violation")
)

func dupTupleError(key string) error {
	return fmt.Errorf("%w: duplicate dimension tuple %q", ErrMalformedInput, key)
}
