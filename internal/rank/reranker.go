package rank

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"github.com/dshills/agentmem/internal/config"
	"github.com/dshills/agentmem/pkg/types"
)

// Reranker reorders a top-K window of already-scored results. It must
// return exactly the results it was given, reordered; it never adds,
// drops, or rescores beyond the window.
type Reranker interface {
	Rerank(ctx context.Context, window []*types.RankedResult) ([]*types.RankedResult, error)
}

// NewReranker builds the configured reranker, or nil when disabled.
func NewReranker(cfg *config.Ranking) (Reranker, error) {
	if !cfg.RerankerEnabled {
		return nil, nil
	}
	switch cfg.RerankerProvider {
	case "mock":
		return MockReranker{}, nil
	default:
		return nil, fmt.Errorf("%w: unknown reranker provider %q", types.ErrConfigInvalid, cfg.RerankerProvider)
	}
}

// MockReranker is a deterministic stand-in for a cross-encoder model.
// It promotes results whose content is shorter, a crude proxy for
// focused answers, breaking ties by the existing score order.
type MockReranker struct{}

func (MockReranker) Rerank(_ context.Context, window []*types.RankedResult) ([]*types.RankedResult, error) {
	out := make([]*types.RankedResult, len(window))
	copy(out, window)

	sort.SliceStable(out, func(i, j int) bool {
		li := len(strings.TrimSpace(out[i].Block.Content))
		lj := len(strings.TrimSpace(out[j].Block.Content))
		if li != lj {
			return li < lj
		}
		return out[i].Score > out[j].Score
	})
	return out, nil
}
