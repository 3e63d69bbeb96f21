package retriever

import (
	"context"

	"github.com/rs/zerolog"

	"github.com/dshills/agentmem/internal/store"
	"github.com/dshills/agentmem/pkg/types"
)

// Fulltext retrieves candidates through the FTS5 index. Every query
// variant is searched; a block hit by several variants keeps its best
// score.
type Fulltext struct {
	store *store.SQLiteStore
	log   zerolog.Logger
}

// NewFulltext creates the FTS5-backed retriever.
func NewFulltext(s *store.SQLiteStore, log zerolog.Logger) *Fulltext {
	return &Fulltext{store: s, log: log}
}

func (f *Fulltext) Strategy() types.SearchStrategy { return types.StrategyFulltext }

func (f *Fulltext) Retrieve(ctx context.Context, variants []types.QueryVariant, filters types.Filters, limit int) ([]Candidate, error) {
	best := make(map[string]float64)
	for _, variant := range variants {
		matches, err := f.store.SearchText(ctx, variant.Text, filters, limit)
		if err != nil {
			// One bad variant must not sink the others; the original
			// query is variant 0 and fails the whole call if it errors.
			if variant.Origin == types.OriginOriginal {
				return nil, err
			}
			f.log.Debug().Str("variant", variant.Text).Err(err).Msg("variant search failed, skipping")
			continue
		}
		for _, m := range matches {
			if m.Score > best[m.BlockID] {
				best[m.BlockID] = m.Score
			}
		}
	}
	return mergeBest(types.StrategyFulltext, best), nil
}
