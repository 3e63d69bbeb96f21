// Package embedder is the gateway to embedding providers. It exposes a
// uniform Provider interface over heterogeneous backends and maps each
// backend's failure modes onto the shared error taxonomy so the search
// pipeline can decide fallback without knowing which provider is active.
//
// The gateway never retries internally. A failed embed surfaces
// immediately so the caller can fall back within its own latency budget;
// batch callers that want retries bring their own (see internal/backfill).
package embedder

import (
	"context"
	"crypto/sha256"
	"encoding/hex"

	lru "github.com/hashicorp/golang-lru/v2"
)

// Provider generates embeddings for text. Implementations must be safe
// for concurrent use.
//
// Error contract: a provider that is disabled, unreachable, timed out,
// or returned a malformed response wraps types.ErrProviderUnavailable.
// A reachable provider that rejected a well-formed request wraps
// types.ErrProviderError. Callers treat both as "no embedding" and fall
// back; the distinction exists for logs and metrics.
type Provider interface {
	// Embed returns the embedding vector for text.
	Embed(ctx context.Context, text string) ([]float32, error)

	// Dimension is the fixed output dimension of this provider.
	Dimension() int

	// Name identifies the provider in logs and stored embeddings.
	Name() string

	// Model is the model identifier used for embedding.
	Model() string

	// Close releases any resources held by the provider.
	Close() error
}

// ComputeHash is the cache key for a piece of text.
func ComputeHash(text string) string {
	h := sha256.Sum256([]byte(text))
	return hex.EncodeToString(h[:])
}

// Cached wraps a Provider with an in-memory LRU cache keyed by content
// hash. Repeated embeds of identical text (common for query vectors)
// skip the backend entirely.
type Cached struct {
	inner Provider
	cache *lru.Cache[string, []float32]
}

// NewCached wraps provider with a cache of up to size entries. size <= 0
// disables caching and returns the provider unchanged.
func NewCached(provider Provider, size int) Provider {
	if size <= 0 {
		return provider
	}
	cache, err := lru.New[string, []float32](size)
	if err != nil {
		return provider
	}
	return &Cached{inner: provider, cache: cache}
}

func (c *Cached) Embed(ctx context.Context, text string) ([]float32, error) {
	hash := ComputeHash(text)
	if vector, ok := c.cache.Get(hash); ok {
		out := make([]float32, len(vector))
		copy(out, vector)
		return out, nil
	}

	vector, err := c.inner.Embed(ctx, text)
	if err != nil {
		return nil, err
	}

	stored := make([]float32, len(vector))
	copy(stored, vector)
	c.cache.Add(hash, stored)
	return vector, nil
}

func (c *Cached) Dimension() int { return c.inner.Dimension() }
func (c *Cached) Name() string   { return c.inner.Name() }
func (c *Cached) Model() string  { return c.inner.Model() }
func (c *Cached) Close() error   { return c.inner.Close() }

// CacheLen reports the number of cached vectors, for tests and metrics.
func (c *Cached) CacheLen() int { return c.cache.Len() }
