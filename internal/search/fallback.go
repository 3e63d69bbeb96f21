package search

import (
	"context"
	"fmt"

	lru "github.com/hashicorp/golang-lru/v2"
	"github.com/rs/zerolog"

	"github.com/dshills/agentmem/internal/embedder"
	"github.com/dshills/agentmem/internal/retriever"
	"github.com/dshills/agentmem/internal/store"
	"github.com/dshills/agentmem/pkg/types"
)

// State is the semantic-retrieval tier a request ended up on.
type State string

const (
	// StateSemantic means the embedding provider answered and vector
	// similarity ran on its primary path.
	StateSemantic State = "semantic"

	// StateCosineFallback means similarity was computed in process,
	// either because SQL-side similarity is unavailable in this build
	// or because the provider failed and a cached query vector was
	// reused.
	StateCosineFallback State = "cosine-fallback"

	// StateKeywordOnly means no semantic component could be produced;
	// the semantic weight is redistributed to full-text.
	StateKeywordOnly State = "keyword-only"
)

// Decision is the outcome of the fallback chain for one request: the
// terminal state, the human-readable reason trail, and the semantic
// candidates if any were produced.
type Decision struct {
	State      State
	Reason     string
	Candidates []retriever.Candidate
}

// FallbackController walks the tier chain Semantic, Cosine-Fallback,
// Keyword-Only. Each tier is attempted at most once per request; the
// first that produces candidates is terminal. Query vectors from
// successful embeds are cached so Cosine-Fallback can serve repeat
// queries through a provider outage.
type FallbackController struct {
	semantic     *retriever.Semantic
	queryVectors *lru.Cache[string, []float32]
	log          zerolog.Logger
}

// queryVectorCacheSize bounds the per-process cache of embedded query
// vectors kept for provider-outage fallback.
const queryVectorCacheSize = 1024

// NewFallbackController creates the controller around the semantic
// retriever.
func NewFallbackController(semantic *retriever.Semantic, log zerolog.Logger) *FallbackController {
	cache, _ := lru.New[string, []float32](queryVectorCacheSize)
	return &FallbackController{
		semantic:     semantic,
		queryVectors: cache,
		log:          log,
	}
}

// Run attempts semantic retrieval through the tier chain. It never
// returns an error: the worst outcome is Keyword-Only with an empty
// candidate set and a reason explaining why.
func (f *FallbackController) Run(ctx context.Context, queryText string, filters types.Filters, limit int) Decision {
	vector, embedErr := f.semantic.EmbedQuery(ctx, queryText)
	if embedErr == nil {
		f.cacheVector(queryText, vector)

		candidates, err := f.semantic.RetrieveWithVector(ctx, vector, filters, limit)
		if err == nil {
			if store.VectorExtensionAvailable {
				return Decision{State: StateSemantic, Reason: "semantic search ok", Candidates: candidates}
			}
			return Decision{
				State:      StateCosineFallback,
				Reason:     "vector extension unavailable; used cosine fallback",
				Candidates: candidates,
			}
		}
		f.log.Warn().Err(err).Msg("vector search failed")
		return Decision{
			State:  StateKeywordOnly,
			Reason: fmt.Sprintf("vector search failed: %v; keyword-only", err),
		}
	}

	// Provider gone. One more tier: reuse a previously-cached vector
	// for this exact query text and score in process.
	reason := describeEmbedFailure(embedErr)
	if cached, ok := f.queryVectors.Get(embedder.ComputeHash(queryText)); ok {
		candidates, err := f.semantic.RetrieveWithVector(ctx, cached, filters, limit)
		if err == nil {
			return Decision{
				State:      StateCosineFallback,
				Reason:     reason + "; used cosine fallback with cached query vector",
				Candidates: candidates,
			}
		}
		f.log.Warn().Err(err).Msg("cosine fallback failed")
	}

	return Decision{
		State:  StateKeywordOnly,
		Reason: reason + "; keyword-only",
	}
}

func (f *FallbackController) cacheVector(queryText string, vector []float32) {
	stored := make([]float32, len(vector))
	copy(stored, vector)
	f.queryVectors.Add(embedder.ComputeHash(queryText), stored)
}

func describeEmbedFailure(err error) string {
	if embedder.IsUnavailable(err) {
		return fmt.Sprintf("semantic unavailable: %v", err)
	}
	return fmt.Sprintf("semantic rejected query: %v", err)
}
