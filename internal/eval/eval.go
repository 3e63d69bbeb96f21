// Package eval is an offline harness for comparing retrieval quality
// between a baseline strategy and the hybrid pipeline. It consumes the
// same search entry points as live requests and has no side effects on
// stored data.
package eval

import (
	"context"
	"fmt"

	"github.com/rs/zerolog"

	"github.com/dshills/agentmem/internal/search"
	"github.com/dshills/agentmem/pkg/types"
)

// Case is one labeled evaluation query: the text to search for and the
// block IDs a good result list should contain.
type Case struct {
	Query       string               `json:"query"`
	Strategy    types.SearchStrategy `json:"strategy,omitempty"`
	RelevantIDs []string             `json:"relevant_ids"`
}

// QueryResult holds per-case metrics for one strategy.
type QueryResult struct {
	Query     string  `json:"query"`
	Retrieved int     `json:"retrieved"`
	Relevant  int     `json:"relevant"`
	Hits      int     `json:"hits"`
	Precision float64 `json:"precision"`
	Recall    float64 `json:"recall"`
}

// Comparison is the full report: per-query metrics for baseline and
// hybrid plus the aggregate deltas.
type Comparison struct {
	Baseline       []QueryResult `json:"baseline"`
	Hybrid         []QueryResult `json:"hybrid"`
	PrecisionDelta float64       `json:"precision_delta"`
	RecallDelta    float64       `json:"recall_delta"`
}

// Harness evaluates labeled cases against the live search service.
type Harness struct {
	service *search.Service
	limit   int
	log     zerolog.Logger
}

// NewHarness creates a harness evaluating the top limit results per
// query.
func NewHarness(service *search.Service, limit int, log zerolog.Logger) *Harness {
	if limit <= 0 {
		limit = 10
	}
	return &Harness{service: service, limit: limit, log: log}
}

// Evaluate runs every case twice, once with the case's baseline
// strategy (default basic) and once with hybrid, and reports the
// aggregate precision and recall deltas of hybrid over baseline.
func (h *Harness) Evaluate(ctx context.Context, cases []Case) (*Comparison, error) {
	if len(cases) == 0 {
		return nil, fmt.Errorf("no evaluation cases")
	}

	cmp := &Comparison{
		Baseline: make([]QueryResult, 0, len(cases)),
		Hybrid:   make([]QueryResult, 0, len(cases)),
	}

	for _, c := range cases {
		baseline := c.Strategy
		if baseline == "" {
			baseline = types.StrategyBasic
		}

		baseRes, err := h.run(ctx, c, baseline)
		if err != nil {
			return nil, fmt.Errorf("baseline %q for %q: %w", baseline, c.Query, err)
		}
		hybridRes, err := h.run(ctx, c, types.StrategyHybrid)
		if err != nil {
			return nil, fmt.Errorf("hybrid for %q: %w", c.Query, err)
		}

		cmp.Baseline = append(cmp.Baseline, baseRes)
		cmp.Hybrid = append(cmp.Hybrid, hybridRes)
	}

	cmp.PrecisionDelta = mean(cmp.Hybrid, precisionOf) - mean(cmp.Baseline, precisionOf)
	cmp.RecallDelta = mean(cmp.Hybrid, recallOf) - mean(cmp.Baseline, recallOf)
	return cmp, nil
}

func (h *Harness) run(ctx context.Context, c Case, strategy types.SearchStrategy) (QueryResult, error) {
	results, _, err := h.service.Search(ctx, types.Query{
		Text:     c.Query,
		Strategy: strategy,
		Limit:    h.limit,
	})
	if err != nil {
		return QueryResult{}, err
	}

	relevant := make(map[string]bool, len(c.RelevantIDs))
	for _, id := range c.RelevantIDs {
		relevant[id] = true
	}

	hits := 0
	for _, r := range results {
		if relevant[r.Block.ID] {
			hits++
		}
	}

	qr := QueryResult{
		Query:     c.Query,
		Retrieved: len(results),
		Relevant:  len(c.RelevantIDs),
		Hits:      hits,
	}
	if qr.Retrieved > 0 {
		qr.Precision = float64(hits) / float64(qr.Retrieved)
	}
	if qr.Relevant > 0 {
		qr.Recall = float64(hits) / float64(qr.Relevant)
	}
	return qr, nil
}

func precisionOf(r QueryResult) float64 { return r.Precision }
func recallOf(r QueryResult) float64    { return r.Recall }

func mean(results []QueryResult, metric func(QueryResult) float64) float64 {
	if len(results) == 0 {
		return 0
	}
	var sum float64
	for _, r := range results {
		sum += metric(r)
	}
	return sum / float64(len(results))
}
