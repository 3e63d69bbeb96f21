package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/dshills/agentmem/pkg/types"
)

// SearchMetadataHeader carries the fallback state and reason for a
// search response.
const SearchMetadataHeader = "X-Search-Metadata"

type searchRequest struct {
	Query           string   `json:"query"`
	Keywords        []string `json:"keywords,omitempty"`
	Strategy        string   `json:"strategy,omitempty"`
	AgentID         string   `json:"agent_id,omitempty"`
	ConversationID  string   `json:"conversation_id,omitempty"`
	IncludeArchived bool     `json:"include_archived,omitempty"`
	Limit           int      `json:"limit,omitempty"`

	SimilarityThreshold float64  `json:"similarity_threshold,omitempty"`
	MinCombinedScore    float64  `json:"min_combined_score,omitempty"`
	FulltextWeight      *float64 `json:"fulltext_weight,omitempty"`
	SemanticWeight      *float64 `json:"semantic_weight,omitempty"`
}

type searchResponse struct {
	Results []*types.RankedResult `json:"results"`
	Count   int                   `json:"count"`
}

func (s *Server) handleSearch(w http.ResponseWriter, r *http.Request) {
	req, err := decodeSearchRequest(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}

	query := types.Query{
		Text:     req.Query,
		Strategy: types.SearchStrategy(req.Strategy),
		Filters: types.Filters{
			AgentID:         req.AgentID,
			ConversationID:  req.ConversationID,
			IncludeArchived: req.IncludeArchived,
		},
		Limit:            req.Limit,
		MinCombinedScore: req.MinCombinedScore,
		SimilarityFloor:  req.SimilarityThreshold,
	}
	if query.Text == "" && len(req.Keywords) > 0 {
		query.Text = joinKeywords(req.Keywords)
	}
	if query.Text == "" {
		writeError(w, http.StatusBadRequest, errors.New("query or keywords required"))
		return
	}
	if req.FulltextWeight != nil || req.SemanticWeight != nil {
		overrides := &types.WeightOverrides{}
		if req.FulltextWeight != nil {
			overrides.Fulltext = *req.FulltextWeight
		}
		if req.SemanticWeight != nil {
			overrides.Semantic = *req.SemanticWeight
		}
		query.Overrides = overrides
	}

	results, meta, err := s.search.Search(r.Context(), query)
	if err != nil {
		if errors.Is(err, types.ErrConfigInvalid) {
			writeError(w, http.StatusBadRequest, err)
			return
		}
		if errors.Is(err, types.ErrNoCandidates) {
			w.Header().Set(SearchMetadataHeader, meta.String())
			writeError(w, http.StatusServiceUnavailable, err)
			return
		}
		writeError(w, http.StatusInternalServerError, err)
		return
	}

	w.Header().Set(SearchMetadataHeader, meta.String())
	writeJSON(w, http.StatusOK, searchResponse{Results: results, Count: len(results)})
}

// decodeSearchRequest accepts the same shape as JSON body or query
// parameters, so simple integrations can GET.
func decodeSearchRequest(r *http.Request) (*searchRequest, error) {
	var req searchRequest

	if r.Method == http.MethodPost {
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			return nil, errors.New("malformed request body")
		}
		return &req, nil
	}

	q := r.URL.Query()
	req.Query = q.Get("query")
	req.Strategy = q.Get("strategy")
	req.AgentID = q.Get("agent_id")
	req.ConversationID = q.Get("conversation_id")
	if kw := q.Get("keywords"); kw != "" {
		req.Keywords = []string{kw}
	}
	req.IncludeArchived = q.Get("include_archived") == "true"

	var err error
	if v := q.Get("limit"); v != "" {
		if req.Limit, err = strconv.Atoi(v); err != nil {
			return nil, errors.New("limit must be an integer")
		}
	}
	if v := q.Get("similarity_threshold"); v != "" {
		if req.SimilarityThreshold, err = strconv.ParseFloat(v, 64); err != nil {
			return nil, errors.New("similarity_threshold must be a number")
		}
	}
	if v := q.Get("min_combined_score"); v != "" {
		if req.MinCombinedScore, err = strconv.ParseFloat(v, 64); err != nil {
			return nil, errors.New("min_combined_score must be a number")
		}
	}
	if v := q.Get("fulltext_weight"); v != "" {
		f, err := strconv.ParseFloat(v, 64)
		if err != nil {
			return nil, errors.New("fulltext_weight must be a number")
		}
		req.FulltextWeight = &f
	}
	if v := q.Get("semantic_weight"); v != "" {
		f, err := strconv.ParseFloat(v, 64)
		if err != nil {
			return nil, errors.New("semantic_weight must be a number")
		}
		req.SemanticWeight = &f
	}
	return &req, nil
}

type createBlockRequest struct {
	AgentID        string   `json:"agent_id,omitempty"`
	ConversationID string   `json:"conversation_id,omitempty"`
	Content        string   `json:"content"`
	Keywords       []string `json:"keywords,omitempty"`
	Scope          string   `json:"visibility_scope,omitempty"`
}

func (s *Server) handleCreateBlock(w http.ResponseWriter, r *http.Request) {
	var req createBlockRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, errors.New("malformed request body"))
		return
	}
	if req.Content == "" {
		writeError(w, http.StatusBadRequest, errors.New("content required"))
		return
	}

	block := &types.MemoryBlock{
		AgentID:        req.AgentID,
		ConversationID: req.ConversationID,
		Content:        req.Content,
		Keywords:       req.Keywords,
		Scope:          types.VisibilityScope(req.Scope),
	}
	if err := s.store.CreateBlock(r.Context(), block); err != nil {
		if errors.Is(err, types.ErrConfigInvalid) {
			writeError(w, http.StatusBadRequest, err)
			return
		}
		writeError(w, http.StatusInternalServerError, err)
		return
	}

	// Best effort: embed immediately so the block is semantically
	// searchable without waiting for backfill. A failed embed leaves
	// the block pending for the backfill batch.
	if vector, err := s.provider.Embed(r.Context(), block.Content); err == nil {
		if err := s.store.UpsertEmbedding(r.Context(), block.ID, vector, s.provider.Name(), s.provider.Model()); err != nil {
			s.log.Warn().Str("block_id", block.ID).Err(err).Msg("store embedding failed")
		}
	} else if !errors.Is(err, types.ErrProviderUnavailable) {
		s.log.Warn().Str("block_id", block.ID).Err(err).Msg("embed on create failed")
	}

	writeJSON(w, http.StatusCreated, block)
}

func (s *Server) handleGetBlock(w http.ResponseWriter, r *http.Request) {
	block, err := s.store.GetBlock(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		if errors.Is(err, types.ErrNotFound) {
			writeError(w, http.StatusNotFound, err)
			return
		}
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	writeJSON(w, http.StatusOK, block)
}

func (s *Server) handleArchiveBlock(w http.ResponseWriter, r *http.Request) {
	if err := s.store.ArchiveBlock(r.Context(), chi.URLParam(r, "id")); err != nil {
		if errors.Is(err, types.ErrNotFound) {
			writeError(w, http.StatusNotFound, err)
			return
		}
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

type feedbackRequest struct {
	Delta float64 `json:"delta"`
}

func (s *Server) handleFeedback(w http.ResponseWriter, r *http.Request) {
	var req feedbackRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, errors.New("malformed request body"))
		return
	}
	if req.Delta == 0 {
		writeError(w, http.StatusBadRequest, errors.New("delta must be non-zero"))
		return
	}

	if err := s.store.RecordFeedback(r.Context(), chi.URLParam(r, "id"), req.Delta); err != nil {
		if errors.Is(err, types.ErrNotFound) {
			writeError(w, http.StatusNotFound, err)
			return
		}
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleConfigRefresh(w http.ResponseWriter, r *http.Request) {
	cfg, err := s.cfgStore.Refresh()
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	s.log.Info().Msg("configuration refreshed")
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"fulltext_weight": cfg.Ranking.FulltextWeight,
		"semantic_weight": cfg.Ranking.SemanticWeight,
		"normalization":   cfg.Ranking.Normalization,
	})
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, err error) {
	writeJSON(w, status, map[string]string{"error": err.Error()})
}

func joinKeywords(keywords []string) string {
	return strings.Join(keywords, " ")
}
