package types

// ComponentScore is the contribution of one retrieval strategy to a
// candidate, before and after normalization. Ephemeral: produced and
// consumed within a single search request, never persisted.
type ComponentScore struct {
	BlockID    string
	Strategy   SearchStrategy
	Raw        float64
	Normalized float64
}

// Adjustments records the heuristic deltas applied to a result's combined
// score, for explainability.
type Adjustments struct {
	RecencyMultiplier float64 `json:"recency_multiplier,omitempty"`
	FeedbackBonus     float64 `json:"feedback_bonus,omitempty"`
	ScopeBonus        float64 `json:"scope_bonus,omitempty"`
	Reranked          bool    `json:"reranked,omitempty"`
}

// RankedResult is one entry of a ranked search response.
//
// Ordering invariant: results are sorted by Score descending, ties broken
// by most recent UpdatedAt, then by block ID for full determinism.
type RankedResult struct {
	Block       *MemoryBlock               `json:"block"`
	Score       float64                    `json:"score"`
	Components  map[SearchStrategy]float64 `json:"components,omitempty"`
	Adjustments Adjustments                `json:"adjustments"`
}
