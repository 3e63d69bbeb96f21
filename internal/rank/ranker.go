package rank

import (
	"context"
	"math"
	"sort"
	"time"

	"github.com/rs/zerolog"

	"github.com/dshills/agentmem/internal/config"
	"github.com/dshills/agentmem/pkg/types"
)

// Input is everything the ranker needs for one request: normalized
// scores per strategy and the blocks they refer to. A strategy with no
// entry in Normalized is treated as "produced zero candidates" and its
// weight is redistributed to the strategies that did.
type Input struct {
	Normalized map[types.SearchStrategy]map[string]float64
	Blocks     map[string]*types.MemoryBlock
}

// Ranker blends per-strategy scores and applies the heuristic
// adjustments. Stateless between requests; the config snapshot is
// passed per call so a refresh takes effect on the next request.
type Ranker struct {
	reranker Reranker
	log      zerolog.Logger
}

// New creates a Ranker. reranker may be nil when reranking is disabled.
func New(reranker Reranker, log zerolog.Logger) *Ranker {
	return &Ranker{reranker: reranker, log: log}
}

// EffectiveWeights resolves the fulltext/semantic weights for one
// request. Caller overrides apply only when the config allows them;
// otherwise the configured weights win silently. The returned pair
// always sums to 1.
func EffectiveWeights(cfg *config.Ranking, overrides *types.WeightOverrides) (fulltext, semantic float64) {
	fulltext, semantic = cfg.FulltextWeight, cfg.SemanticWeight
	if overrides != nil && cfg.AllowWeightOverrides {
		fulltext, semantic = overrides.Fulltext, overrides.Semantic
	}
	sum := fulltext + semantic
	if sum <= 0 {
		return 1, 0
	}
	return fulltext / sum, semantic / sum
}

// Rank produces the final ordered result list.
//
// Per candidate: weighted blend of the normalized component scores,
// then recency multiplier, then additive feedback and scope bonuses,
// then the floor clamp. A candidate missing from one strategy simply
// contributes 0 for that component; weights are redistributed only when
// a whole strategy came back empty.
func (r *Ranker) Rank(ctx context.Context, in Input, cfg *config.Ranking, fulltextWeight, semanticWeight float64, now time.Time) []*types.RankedResult {
	fulltext := in.Normalized[types.StrategyFulltext]
	semantic := in.Normalized[types.StrategySemantic]
	basic := in.Normalized[types.StrategyBasic]

	// Redistribute when one side produced nothing at all.
	fw, sw := fulltextWeight, semanticWeight
	switch {
	case len(fulltext) == 0 && len(basic) == 0 && len(semantic) > 0:
		fw, sw = 0, 1
	case len(semantic) == 0 && (len(fulltext) > 0 || len(basic) > 0):
		fw, sw = 1, 0
	}

	results := make([]*types.RankedResult, 0, len(in.Blocks))
	for id, block := range in.Blocks {
		components := make(map[types.SearchStrategy]float64, 2)

		// Basic and fulltext are both lexical strategies; whichever
		// scored the block higher carries the fulltext component.
		lexical, hasLexical := fulltext[id]
		if b, ok := basic[id]; ok && (!hasLexical || b > lexical) {
			lexical = b
			hasLexical = true
		}
		if hasLexical {
			components[types.StrategyFulltext] = lexical
		}
		if s, ok := semantic[id]; ok {
			components[types.StrategySemantic] = s
		}

		score := fw*components[types.StrategyFulltext] + sw*components[types.StrategySemantic]
		result := &types.RankedResult{
			Block:      block,
			Components: components,
		}

		if cfg.RecencyEnabled {
			mult := recencyMultiplier(now, block.UpdatedAt, cfg)
			score *= mult
			result.Adjustments.RecencyMultiplier = mult
		}
		if cfg.FeedbackEnabled {
			bonus := cfg.FeedbackWeight * math.Min(block.FeedbackScore, cfg.FeedbackMaxScore)
			score += bonus
			result.Adjustments.FeedbackBonus = bonus
		}
		if cfg.ScopeBonusEnabled {
			bonus := scopeBonus(block.Scope, cfg)
			score += bonus
			result.Adjustments.ScopeBonus = bonus
		}
		if score < cfg.ScoreFloor {
			score = cfg.ScoreFloor
		}

		result.Score = score
		results = append(results, result)
	}

	sortResults(results)

	if cfg.RerankerEnabled && r.reranker != nil {
		results = r.applyReranker(ctx, results, cfg.RerankerTopK)
	}
	return results
}

// sortResults orders by score descending, ties broken by most recent
// update, then block ID. The full chain makes ranking deterministic for
// identical inputs.
func sortResults(results []*types.RankedResult) {
	sort.Slice(results, func(i, j int) bool {
		if results[i].Score != results[j].Score {
			return results[i].Score > results[j].Score
		}
		if !results[i].Block.UpdatedAt.Equal(results[j].Block.UpdatedAt) {
			return results[i].Block.UpdatedAt.After(results[j].Block.UpdatedAt)
		}
		return results[i].Block.ID < results[j].Block.ID
	})
}

// recencyMultiplier decays exponentially with half-life H days from the
// block's updated_at, clamped to the configured band.
func recencyMultiplier(now, updatedAt time.Time, cfg *config.Ranking) float64 {
	ageDays := now.Sub(updatedAt).Hours() / 24
	if ageDays < 0 {
		ageDays = 0
	}

	mult := math.Pow(0.5, ageDays/cfg.RecencyHalfLifeDays)
	if mult < cfg.RecencyMinMult {
		mult = cfg.RecencyMinMult
	}
	if mult > cfg.RecencyMaxMult {
		mult = cfg.RecencyMaxMult
	}
	return mult
}

func scopeBonus(scope types.VisibilityScope, cfg *config.Ranking) float64 {
	switch scope {
	case types.ScopePersonal:
		return cfg.ScopeBonusPersonal
	case types.ScopeOrganization:
		return cfg.ScopeBonusOrganization
	case types.ScopePublic:
		return cfg.ScopeBonusPublic
	}
	return 0
}

// applyReranker reorders the top-K window and appends the tail
// unchanged. A reranker failure keeps the heuristic ordering.
func (r *Ranker) applyReranker(ctx context.Context, results []*types.RankedResult, topK int) []*types.RankedResult {
	if topK <= 0 || len(results) <= 1 {
		return results
	}
	if topK > len(results) {
		topK = len(results)
	}

	window := make([]*types.RankedResult, topK)
	copy(window, results[:topK])

	reordered, err := r.reranker.Rerank(ctx, window)
	if err != nil {
		r.log.Warn().Err(err).Msg("reranker failed, keeping heuristic order")
		return results
	}
	if len(reordered) != topK {
		r.log.Warn().Int("want", topK).Int("got", len(reordered)).Msg("reranker changed result count, keeping heuristic order")
		return results
	}

	for _, res := range reordered {
		res.Adjustments.Reranked = true
	}
	return append(reordered, results[topK:]...)
}
