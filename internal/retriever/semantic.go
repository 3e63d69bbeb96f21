package retriever

import (
	"context"

	"github.com/dshills/agentmem/internal/embedder"
	"github.com/dshills/agentmem/internal/store"
	"github.com/dshills/agentmem/pkg/types"
)

// Semantic retrieves candidates by embedding similarity. Only the
// original query text is embedded: variants help lexical recall, but a
// good embedding model already captures paraphrases, and one provider
// round-trip per request keeps the latency budget predictable.
//
// Blocks without a stored embedding of the active dimension simply
// never appear among semantic candidates.
type Semantic struct {
	store    *store.SQLiteStore
	provider embedder.Provider
}

// NewSemantic creates the embedding-similarity retriever.
func NewSemantic(s *store.SQLiteStore, provider embedder.Provider) *Semantic {
	return &Semantic{store: s, provider: provider}
}

func (s *Semantic) Strategy() types.SearchStrategy { return types.StrategySemantic }

func (s *Semantic) Retrieve(ctx context.Context, variants []types.QueryVariant, filters types.Filters, limit int) ([]Candidate, error) {
	if len(variants) == 0 {
		return nil, nil
	}

	vector, err := s.provider.Embed(ctx, variants[0].Text)
	if err != nil {
		return nil, err
	}
	return s.RetrieveWithVector(ctx, vector, filters, limit)
}

// RetrieveWithVector searches with an already-computed query vector.
// Used by the cosine-fallback path, which reuses a cached vector when
// the provider has gone away mid-session.
func (s *Semantic) RetrieveWithVector(ctx context.Context, vector []float32, filters types.Filters, limit int) ([]Candidate, error) {
	matches, err := s.store.SearchVector(ctx, vector, filters, limit)
	if err != nil {
		return nil, err
	}

	candidates := make([]Candidate, 0, len(matches))
	for _, m := range matches {
		candidates = append(candidates, Candidate{
			BlockID:  m.BlockID,
			Raw:      m.Similarity,
			Strategy: types.StrategySemantic,
		})
	}
	return candidates, nil
}

// EmbedQuery exposes the provider round-trip so the pipeline can cache
// the query vector for later cosine fallback.
func (s *Semantic) EmbedQuery(ctx context.Context, text string) ([]float32, error) {
	return s.provider.Embed(ctx, text)
}
