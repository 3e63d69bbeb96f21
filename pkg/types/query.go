package types

// SearchStrategy selects the retrieval strategy for a search request.
type SearchStrategy string

const (
	StrategyBasic    SearchStrategy = "basic"
	StrategyFulltext SearchStrategy = "fulltext"
	StrategySemantic SearchStrategy = "semantic"
	StrategyHybrid   SearchStrategy = "hybrid"
)

// ValidStrategy reports whether s is one of the known search strategies.
func ValidStrategy(s SearchStrategy) bool {
	switch s {
	case StrategyBasic, StrategyFulltext, StrategySemantic, StrategyHybrid:
		return true
	}
	return false
}

// Filters narrows retrieval to a subset of memory blocks. Zero values mean
// "no filter".
type Filters struct {
	AgentID         string
	ConversationID  string
	IncludeArchived bool
}

// WeightOverrides carries caller-supplied component weights. They are
// honored only when the active config allows overrides; otherwise the
// configured weights win silently.
type WeightOverrides struct {
	Fulltext float64
	Semantic float64
}

// Query is one search request against the memory store.
type Query struct {
	Text             string
	Strategy         SearchStrategy
	Filters          Filters
	Limit            int
	MinCombinedScore float64
	SimilarityFloor  float64
	Overrides        *WeightOverrides
}

// VariantOrigin tags how a query variant was produced, for traceability.
type VariantOrigin string

const (
	OriginOriginal VariantOrigin = "original"
	OriginStem     VariantOrigin = "stem"
	OriginSynonym  VariantOrigin = "synonym"
	OriginRewrite  VariantOrigin = "rewrite"
)

// QueryVariant is one expanded form of a query. Variant 0 is always the
// original query text.
type QueryVariant struct {
	Text   string
	Origin VariantOrigin
}
