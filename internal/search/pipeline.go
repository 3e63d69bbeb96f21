// Package search wires the retrieval pipeline together: query
// expansion, the fallback controller, concurrent retrievers, score
// normalization, and hybrid ranking.
package search

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"github.com/dshills/agentmem/internal/config"
	"github.com/dshills/agentmem/internal/expand"
	"github.com/dshills/agentmem/internal/rank"
	"github.com/dshills/agentmem/internal/retriever"
	"github.com/dshills/agentmem/internal/store"
	"github.com/dshills/agentmem/pkg/types"
)

// Metadata describes how a search was actually served, surfaced to the
// caller in the X-Search-Metadata header.
type Metadata struct {
	Strategy      types.SearchStrategy
	State         State
	Reason        string
	VariantCount  int
	ElapsedMillis int64
}

// String renders the metadata as the structured header value.
func (m Metadata) String() string {
	return fmt.Sprintf("strategy=%s state=%s variants=%d elapsed_ms=%d reason=%q",
		m.Strategy, m.State, m.VariantCount, m.ElapsedMillis, m.Reason)
}

// Service runs search requests end to end.
type Service struct {
	cfgStore *config.Store
	store    *store.SQLiteStore
	expander *expand.Expander
	basic    *retriever.Basic
	fulltext *retriever.Fulltext
	fallback *FallbackController
	ranker   *rank.Ranker
	metrics  *Metrics
	log      zerolog.Logger
}

// NewService assembles the pipeline. metrics may be nil.
func NewService(
	cfgStore *config.Store,
	st *store.SQLiteStore,
	expander *expand.Expander,
	basic *retriever.Basic,
	fulltext *retriever.Fulltext,
	fallback *FallbackController,
	ranker *rank.Ranker,
	metrics *Metrics,
	log zerolog.Logger,
) *Service {
	return &Service{
		cfgStore: cfgStore,
		store:    st,
		expander: expander,
		basic:    basic,
		fulltext: fulltext,
		fallback: fallback,
		ranker:   ranker,
		metrics:  metrics,
		log:      log,
	}
}

// defaultLimit applies when the caller did not bound the result count.
const defaultLimit = 20

// retrievalFanout over-fetches per strategy so blending and score
// filters still leave enough results after the merge.
const retrievalFanout = 3

// Search runs one request through the full pipeline. A degraded search
// still succeeds with a 2xx-worthy result and an explanatory metadata
// reason; only a total inability to produce candidates errors out.
func (s *Service) Search(ctx context.Context, query types.Query) ([]*types.RankedResult, Metadata, error) {
	started := time.Now()

	cfg, err := s.cfgStore.Snapshot()
	if err != nil {
		return nil, Metadata{}, err
	}

	if query.Strategy == "" {
		query.Strategy = types.StrategyBasic
	}
	if !types.ValidStrategy(query.Strategy) {
		return nil, Metadata{}, fmt.Errorf("%w: unknown strategy %q", types.ErrConfigInvalid, query.Strategy)
	}
	if query.Limit <= 0 {
		query.Limit = defaultLimit
	}

	ctx, cancel := context.WithTimeout(ctx, cfg.SearchTimeout)
	defer cancel()

	variants := s.expander.Expand(ctx, query.Text, expand.Options{
		MaxVariants: cfg.Expansion.MaxVariants,
		Stemming:    true,
		Synonyms:    true,
		Rewrites:    cfg.Expansion.RewriteProvider != config.RewriteOff,
	})

	meta := Metadata{
		Strategy:     query.Strategy,
		State:        StateKeywordOnly,
		Reason:       "lexical strategy requested",
		VariantCount: len(variants),
	}

	raw, decision, err := s.retrieve(ctx, query, variants)
	if decision != nil {
		meta.State = decision.State
		meta.Reason = decision.Reason
	}
	if err != nil {
		return nil, meta, err
	}

	results, err := s.rankCandidates(ctx, query, cfg, raw, meta.State)
	if err != nil {
		return nil, meta, err
	}

	if len(results) > query.Limit {
		results = results[:query.Limit]
	}

	meta.ElapsedMillis = time.Since(started).Milliseconds()
	s.metrics.observe(string(query.Strategy), string(meta.State), time.Since(started).Seconds())
	s.log.Debug().
		Str("strategy", string(query.Strategy)).
		Str("state", string(meta.State)).
		Int("results", len(results)).
		Int64("elapsed_ms", meta.ElapsedMillis).
		Msg("search served")
	return results, meta, nil
}

// retrieve runs the strategies the request calls for. Hybrid fans out
// the fulltext, basic, and semantic legs concurrently; a failed
// fulltext leg is tolerated as long as another leg produced candidates.
func (s *Service) retrieve(ctx context.Context, query types.Query, variants []types.QueryVariant) (map[types.SearchStrategy][]retriever.Candidate, *Decision, error) {
	fetchLimit := query.Limit * retrievalFanout
	raw := make(map[types.SearchStrategy][]retriever.Candidate)

	switch query.Strategy {
	case types.StrategyBasic:
		candidates, err := s.basic.Retrieve(ctx, variants, query.Filters, fetchLimit)
		if err != nil {
			return nil, nil, err
		}
		raw[types.StrategyBasic] = candidates
		return raw, nil, nil

	case types.StrategyFulltext:
		candidates, err := s.fulltext.Retrieve(ctx, variants, query.Filters, fetchLimit)
		if err != nil {
			return nil, nil, err
		}
		raw[types.StrategyFulltext] = candidates
		return raw, nil, nil

	case types.StrategySemantic:
		decision := s.fallback.Run(ctx, query.Text, query.Filters, fetchLimit)
		if decision.State == StateKeywordOnly {
			// Degrade to full-text with the whole weight.
			candidates, err := s.fulltext.Retrieve(ctx, variants, query.Filters, fetchLimit)
			if err != nil {
				return nil, &decision, types.ErrNoCandidates
			}
			raw[types.StrategyFulltext] = candidates
			return raw, &decision, nil
		}
		raw[types.StrategySemantic] = filterFloor(decision.Candidates, query.SimilarityFloor)
		return raw, &decision, nil

	case types.StrategyHybrid:
		var (
			textCandidates  []retriever.Candidate
			basicCandidates []retriever.Candidate
			decision        Decision
		)

		g, gctx := errgroup.WithContext(ctx)
		g.Go(func() error {
			var err error
			textCandidates, err = s.fulltext.Retrieve(gctx, variants, query.Filters, fetchLimit)
			return err
		})
		g.Go(func() error {
			// Supplementary lexical signal; a failure here never aborts
			// the merge.
			candidates, err := s.basic.Retrieve(gctx, variants, query.Filters, fetchLimit)
			if err != nil {
				s.log.Warn().Err(err).Msg("basic leg failed")
				return nil
			}
			basicCandidates = candidates
			return nil
		})
		g.Go(func() error {
			decision = s.fallback.Run(gctx, query.Text, query.Filters, fetchLimit)
			return nil
		})
		textErr := g.Wait()

		if ctx.Err() != nil {
			// Cancelled mid-flight: no partial merge.
			return nil, nil, ctx.Err()
		}

		if len(basicCandidates) > 0 {
			raw[types.StrategyBasic] = basicCandidates
		}
		semanticCandidates := filterFloor(decision.Candidates, query.SimilarityFloor)
		if textErr != nil {
			if len(semanticCandidates) == 0 && len(basicCandidates) == 0 {
				return nil, &decision, fmt.Errorf("%w: fulltext: %v; semantic: %s",
					types.ErrNoCandidates, textErr, decision.Reason)
			}
			s.log.Warn().Err(textErr).Msg("fulltext leg failed, continuing without it")
			decision.Reason += "; fulltext leg failed"
		} else {
			raw[types.StrategyFulltext] = textCandidates
		}
		if len(semanticCandidates) > 0 || decision.State != StateKeywordOnly {
			raw[types.StrategySemantic] = semanticCandidates
		}
		return raw, &decision, nil
	}

	return nil, nil, fmt.Errorf("%w: unknown strategy %q", types.ErrConfigInvalid, query.Strategy)
}

// rankCandidates normalizes per strategy, loads the blocks, and runs
// the hybrid ranker.
func (s *Service) rankCandidates(ctx context.Context, query types.Query, cfg *config.Config, raw map[types.SearchStrategy][]retriever.Candidate, state State) ([]*types.RankedResult, error) {
	normalized := make(map[types.SearchStrategy]map[string]float64, len(raw))
	idSet := make(map[string]bool)

	for strategy, candidates := range raw {
		if len(candidates) == 0 {
			continue
		}
		scores := make(map[string]float64, len(candidates))
		for _, c := range candidates {
			if prev, ok := scores[c.BlockID]; !ok || c.Raw > prev {
				scores[c.BlockID] = c.Raw
			}
			idSet[c.BlockID] = true
		}
		norm, err := rank.NormalizeByID(scores, cfg.Ranking.Normalization, cfg.Ranking.ScoreFloor)
		if err != nil {
			return nil, err
		}
		normalized[strategy] = norm
	}

	if len(idSet) == 0 {
		return nil, nil
	}

	ids := make([]string, 0, len(idSet))
	for id := range idSet {
		ids = append(ids, id)
	}
	blocks, err := s.store.GetBlocks(ctx, ids)
	if err != nil {
		return nil, err
	}
	byID := make(map[string]*types.MemoryBlock, len(blocks))
	for _, b := range blocks {
		byID[b.ID] = b
	}

	fw, sw := rank.EffectiveWeights(&cfg.Ranking, query.Overrides)
	if state == StateKeywordOnly {
		fw, sw = 1, 0
	}

	results := s.ranker.Rank(ctx, rank.Input{Normalized: normalized, Blocks: byID}, &cfg.Ranking, fw, sw, time.Now())

	if query.MinCombinedScore > 0 {
		filtered := results[:0]
		for _, r := range results {
			if r.Score >= query.MinCombinedScore {
				filtered = append(filtered, r)
			}
		}
		results = filtered
	}
	return results, nil
}

// filterFloor drops semantic candidates below the caller's similarity
// threshold. Applied to raw cosine values, before normalization.
func filterFloor(candidates []retriever.Candidate, floor float64) []retriever.Candidate {
	if floor <= 0 {
		return candidates
	}
	kept := candidates[:0]
	for _, c := range candidates {
		if c.Raw >= floor {
			kept = append(kept, c)
		}
	}
	return kept
}
