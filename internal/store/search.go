package store

import (
	"context"
	"fmt"
	"math"
	"sort"
	"strings"

	"github.com/dshills/agentmem/pkg/types"
)

// TextMatch is one full-text search hit. Score is a raw relevance value
// derived from BM25; higher is better. Normalization happens downstream.
type TextMatch struct {
	BlockID string
	Score   float64
}

// VectorMatch is one vector similarity hit. Similarity is cosine
// similarity in [-1, 1]; higher is better.
type VectorMatch struct {
	BlockID    string
	Similarity float64
}

// SearchText runs an FTS5 match over block content and keywords and
// returns raw BM25-derived scores. Filters apply before the limit.
func (s *SQLiteStore) SearchText(ctx context.Context, queryText string, filters types.Filters, limit int) ([]TextMatch, error) {
	sanitized := sanitizeFTSQuery(queryText)
	if sanitized == "" {
		return nil, nil
	}
	if limit <= 0 {
		limit = 50
	}

	var (
		where = []string{"blocks_fts MATCH ?"}
		args  = []interface{}{sanitized}
	)
	if !filters.IncludeArchived {
		where = append(where, "b.archived = 0")
	}
	if filters.AgentID != "" {
		where = append(where, "b.agent_id = ?")
		args = append(args, filters.AgentID)
	}
	if filters.ConversationID != "" {
		where = append(where, "b.conversation_id = ?")
		args = append(args, filters.ConversationID)
	}
	args = append(args, limit)

	query := `
		SELECT b.id, bm25(blocks_fts) AS rank
		FROM blocks_fts
		JOIN memory_blocks b ON b.rowid = blocks_fts.rowid
		WHERE ` + strings.Join(where, " AND ") + `
		ORDER BY rank ASC
		LIMIT ?`

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("fulltext search: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var matches []TextMatch
	for rows.Next() {
		var (
			id   string
			rank float64
		)
		if err := rows.Scan(&id, &rank); err != nil {
			return nil, fmt.Errorf("scan fulltext match: %w", err)
		}
		// bm25() returns negative values, more negative meaning more
		// relevant. Fold into a positive, bounded relevance score.
		matches = append(matches, TextMatch{
			BlockID: id,
			Score:   1.0 / (1.0 + math.Abs(rank)/50.0),
		})
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate fulltext matches: %w", err)
	}
	return matches, nil
}

// SearchVector returns the blocks most similar to the query vector.
// With the sqlite-vec extension the distance is computed in SQL;
// otherwise candidate embeddings are fetched and cosine similarity is
// computed in Go. Stored vectors whose dimension disagrees with the
// query vector are skipped, never padded or truncated.
func (s *SQLiteStore) SearchVector(ctx context.Context, queryVector []float32, filters types.Filters, limit int) ([]VectorMatch, error) {
	if len(queryVector) == 0 {
		return nil, fmt.Errorf("empty query vector")
	}
	if limit <= 0 {
		limit = 50
	}

	if VectorExtensionAvailable {
		return s.searchVectorSQL(ctx, queryVector, filters, limit)
	}
	return s.searchVectorGo(ctx, queryVector, filters, limit)
}

// searchVectorSQL pushes cosine distance into SQL via sqlite-vec.
func (s *SQLiteStore) searchVectorSQL(ctx context.Context, queryVector []float32, filters types.Filters, limit int) ([]VectorMatch, error) {
	blob, err := serializeVector(queryVector)
	if err != nil {
		return nil, fmt.Errorf("serialize query vector: %w", err)
	}

	var (
		where = []string{"e.dimension = ?"}
		args  = []interface{}{blob, len(queryVector)}
	)
	if !filters.IncludeArchived {
		where = append(where, "b.archived = 0")
	}
	if filters.AgentID != "" {
		where = append(where, "b.agent_id = ?")
		args = append(args, filters.AgentID)
	}
	if filters.ConversationID != "" {
		where = append(where, "b.conversation_id = ?")
		args = append(args, filters.ConversationID)
	}
	args = append(args, limit)

	query := `
		SELECT e.block_id, vec_distance_cosine(e.vector, ?) AS distance
		FROM block_embeddings e
		JOIN memory_blocks b ON b.id = e.block_id
		WHERE ` + strings.Join(where, " AND ") + `
		ORDER BY distance ASC
		LIMIT ?`

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("vector search: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var matches []VectorMatch
	for rows.Next() {
		var (
			id       string
			distance float64
		)
		if err := rows.Scan(&id, &distance); err != nil {
			return nil, fmt.Errorf("scan vector match: %w", err)
		}
		matches = append(matches, VectorMatch{BlockID: id, Similarity: 1.0 - distance})
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate vector matches: %w", err)
	}
	return matches, nil
}

// searchVectorGo fetches matching embeddings and computes cosine
// similarity in process. This is the Cosine-Fallback path.
func (s *SQLiteStore) searchVectorGo(ctx context.Context, queryVector []float32, filters types.Filters, limit int) ([]VectorMatch, error) {
	var (
		where = []string{"e.dimension = ?"}
		args  = []interface{}{len(queryVector)}
	)
	if !filters.IncludeArchived {
		where = append(where, "b.archived = 0")
	}
	if filters.AgentID != "" {
		where = append(where, "b.agent_id = ?")
		args = append(args, filters.AgentID)
	}
	if filters.ConversationID != "" {
		where = append(where, "b.conversation_id = ?")
		args = append(args, filters.ConversationID)
	}

	query := `
		SELECT e.block_id, e.vector
		FROM block_embeddings e
		JOIN memory_blocks b ON b.id = e.block_id
		WHERE ` + strings.Join(where, " AND ")

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("fetch embeddings: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var matches []VectorMatch
	for rows.Next() {
		var (
			id   string
			blob []byte
		)
		if err := rows.Scan(&id, &blob); err != nil {
			return nil, fmt.Errorf("scan embedding: %w", err)
		}
		stored, err := deserializeVector(blob)
		if err != nil {
			s.log.Warn().Str("block_id", id).Err(err).Msg("corrupt embedding blob, skipping")
			continue
		}
		sim, err := cosineSimilarity(queryVector, stored)
		if err != nil {
			continue
		}
		matches = append(matches, VectorMatch{BlockID: id, Similarity: sim})
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate embeddings: %w", err)
	}

	sort.Slice(matches, func(i, j int) bool {
		if matches[i].Similarity != matches[j].Similarity {
			return matches[i].Similarity > matches[j].Similarity
		}
		return matches[i].BlockID < matches[j].BlockID
	})
	if len(matches) > limit {
		matches = matches[:limit]
	}
	return matches, nil
}

// sanitizeFTSQuery escapes user input for an FTS5 MATCH expression.
// Each token is double-quoted so FTS operators in user text are treated
// as literals; tokens are OR-ed for recall.
func sanitizeFTSQuery(query string) string {
	fields := strings.Fields(query)
	if len(fields) == 0 {
		return ""
	}

	quoted := make([]string, 0, len(fields))
	for _, field := range fields {
		field = strings.ReplaceAll(field, `"`, `""`)
		if field == "" {
			continue
		}
		quoted = append(quoted, `"`+field+`"`)
	}
	return strings.Join(quoted, " OR ")
}
