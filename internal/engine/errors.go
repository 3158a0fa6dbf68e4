package engine

import "errors"

// Sentinel errors surfaced by the fallback chain. Callers match them with
// errors.Is; the chain wraps them with backend context.
var (
	// ErrBackendUnavailable marks a candidate skipped or failed before
	// producing a response.
	ErrBackendUnavailable = errors.New("backend unavailable")

	// ErrBackendTimeout marks an attempt that exceeded its per-backend
	// budget.
	ErrBackendTimeout = errors.New("backend timed out")

	// ErrDeadlineExceeded means the overall routing deadline expired with
	// candidates still untried.
	ErrDeadlineExceeded = errors.New("routing deadline exceeded")

	// ErrAllCandidatesExhausted means every candidate was attempted or
	// skipped without a successful response.
	ErrAllCandidatesExhausted = errors.New("all candidates exhausted")
)
