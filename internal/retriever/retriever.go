// Package retriever implements the candidate-producing strategies the
// hybrid pipeline blends: basic keyword overlap, FTS5 full-text, and
// embedding similarity. Each retriever returns raw, strategy-local
// scores; normalization and blending happen in internal/rank.
package retriever

import (
	"context"

	"github.com/dshills/agentmem/pkg/types"
)

// Candidate is one block produced by a retrieval strategy, with the
// strategy's raw score attached. Higher raw scores are better within a
// strategy; raw scores are not comparable across strategies.
type Candidate struct {
	BlockID  string
	Raw      float64
	Strategy types.SearchStrategy
}

// Retriever produces candidates for a set of query variants. Variants
// are already expanded and deduplicated; a retriever scores each block
// once, keeping its best score across variants.
type Retriever interface {
	Retrieve(ctx context.Context, variants []types.QueryVariant, filters types.Filters, limit int) ([]Candidate, error)
	Strategy() types.SearchStrategy
}

// mergeBest folds per-variant hits into one candidate per block,
// keeping the highest raw score.
func mergeBest(strategy types.SearchStrategy, hits map[string]float64) []Candidate {
	candidates := make([]Candidate, 0, len(hits))
	for id, raw := range hits {
		candidates = append(candidates, Candidate{BlockID: id, Raw: raw, Strategy: strategy})
	}
	return candidates
}
