package types

import "time"

// VisibilityScope controls who can retrieve a memory block.
type VisibilityScope string

const (
	ScopePersonal     VisibilityScope = "personal"
	ScopeOrganization VisibilityScope = "organization"
	ScopePublic       VisibilityScope = "public"
)

// ValidScope reports whether s is one of the known visibility scopes.
func ValidScope(s VisibilityScope) bool {
	switch s {
	case ScopePersonal, ScopeOrganization, ScopePublic:
		return true
	}
	return false
}

// MemoryBlock is a stored unit of agent experience: a task outcome, a
// lesson learned, an error encountered. Blocks are created by agents and
// retrieved later by relevance to a new query.
//
// Embedding is nil when the block has not been embedded, or when the stored
// vector's dimension disagrees with the active provider. A dimension
// mismatch is always treated as "no embedding available", never truncated
// or padded.
type MemoryBlock struct {
	ID             string          `json:"id"`
	AgentID        string          `json:"agent_id,omitempty"`
	ConversationID string          `json:"conversation_id,omitempty"`
	Content        string          `json:"content"`
	Keywords       []string        `json:"keywords,omitempty"`
	Embedding      []float32       `json:"-"`
	FeedbackScore  float64         `json:"feedback_score"`
	Scope          VisibilityScope `json:"visibility_scope"`
	Archived       bool            `json:"archived"`
	CreatedAt      time.Time       `json:"created_at"`
	UpdatedAt      time.Time       `json:"updated_at"`
}

// HasEmbedding reports whether the block carries a usable embedding of the
// given dimension. dim <= 0 accepts any non-empty vector.
func (b *MemoryBlock) HasEmbedding(dim int) bool {
	if len(b.Embedding) == 0 {
		return false
	}
	return dim <= 0 || len(b.Embedding) == dim
}
