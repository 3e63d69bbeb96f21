package retriever

import (
	"context"
	"strings"

	"github.com/dshills/agentmem/internal/store"
	"github.com/dshills/agentmem/pkg/types"
)

// basicScanLimit bounds how many blocks the in-process scan considers.
const basicScanLimit = 2000

// Basic scores blocks by keyword overlap with the query, computed in
// process without any index. It is the retrieval path of last resort:
// always available, no SQL extensions, no provider.
type Basic struct {
	store *store.SQLiteStore
}

// NewBasic creates the keyword-overlap retriever.
func NewBasic(s *store.SQLiteStore) *Basic {
	return &Basic{store: s}
}

func (b *Basic) Strategy() types.SearchStrategy { return types.StrategyBasic }

func (b *Basic) Retrieve(ctx context.Context, variants []types.QueryVariant, filters types.Filters, limit int) ([]Candidate, error) {
	blocks, err := b.store.ListBlocks(ctx, filters, basicScanLimit)
	if err != nil {
		return nil, err
	}

	best := make(map[string]float64)
	for _, variant := range variants {
		terms := tokenize(variant.Text)
		if len(terms) == 0 {
			continue
		}
		for _, block := range blocks {
			score := overlapScore(terms, block)
			if score <= 0 {
				continue
			}
			if score > best[block.ID] {
				best[block.ID] = score
			}
		}
	}

	return mergeBest(types.StrategyBasic, best), nil
}

// overlapScore is the fraction of query terms found in the block's
// keywords or content. Keyword hits count double: explicit keywords are
// a stronger signal than incidental content mentions.
func overlapScore(terms []string, block *types.MemoryBlock) float64 {
	keywords := make(map[string]bool, len(block.Keywords))
	for _, kw := range block.Keywords {
		keywords[strings.ToLower(kw)] = true
	}
	content := strings.ToLower(block.Content)

	var hits float64
	for _, term := range terms {
		switch {
		case keywords[term]:
			hits += 2
		case strings.Contains(content, term):
			hits++
		}
	}
	return hits / float64(2*len(terms))
}

func tokenize(text string) []string {
	fields := strings.Fields(strings.ToLower(text))
	terms := make([]string, 0, len(fields))
	for _, f := range fields {
		f = strings.Trim(f, `.,;:!?"'()[]{}`)
		if len(f) > 1 {
			terms = append(terms, f)
		}
	}
	return terms
}
