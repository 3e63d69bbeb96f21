// Package types contains the shared domain types for agentmem: memory
// blocks, search queries and their expanded variants, ranked results, and
// the error taxonomy used across the retrieval pipeline.
//
// Types here are consumed read-only by the search pipeline; ownership of
// persistence belongs to internal/store.
package types
