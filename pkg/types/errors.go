package types

import "errors"

// Error taxonomy for the retrieval pipeline.
var (
	// ErrProviderUnavailable marks a transient provider failure: the
	// provider is disabled, unreachable, timed out, or returned a
	// malformed response. It triggers fallback and is never surfaced as a
	// user-facing failure.
	ErrProviderUnavailable = errors.New("embedding provider unavailable")

	// ErrProviderError marks a well-formed rejection from a reachable
	// provider (e.g. bad request). Logged, and treated as unavailable for
	// fallback purposes.
	ErrProviderError = errors.New("embedding provider error")

	// ErrConfigInvalid marks malformed environment configuration. Fails
	// fast at config load, not per request.
	ErrConfigInvalid = errors.New("invalid configuration")

	// ErrDimensionMismatch marks a stored embedding whose dimension
	// disagrees with the active provider. The block is excluded from
	// semantic candidates; the search itself does not fail.
	ErrDimensionMismatch = errors.New("embedding dimension mismatch")

	// ErrNotFound is returned when a requested entity doesn't exist.
	ErrNotFound = errors.New("not found")

	// ErrNoCandidates is returned when every retrieval strategy failed
	// and no candidates could be produced at all.
	ErrNoCandidates = errors.New("all retrieval strategies failed")
)
