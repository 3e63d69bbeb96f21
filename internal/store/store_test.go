package store

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dshills/agentmem/pkg/types"
)

func openTestStore(t *testing.T) *SQLiteStore {
	t.Helper()
	s, err := Open(context.Background(), filepath.Join(t.TempDir(), "test.db"), zerolog.Nop())
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func createTestBlock(t *testing.T, s *SQLiteStore, content string, keywords []string) *types.MemoryBlock {
	t.Helper()
	block := &types.MemoryBlock{
		AgentID:  "agent-1",
		Content:  content,
		Keywords: keywords,
	}
	require.NoError(t, s.CreateBlock(context.Background(), block))
	return block
}

func TestCreateAndGetBlock(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	block := &types.MemoryBlock{
		AgentID:        "agent-1",
		ConversationID: "conv-1",
		Content:        "migration failed due to missing index",
		Keywords:       []string{"migration", "index"},
		FeedbackScore:  2.5,
	}
	require.NoError(t, s.CreateBlock(ctx, block))
	require.NotEmpty(t, block.ID)
	assert.Equal(t, types.ScopePersonal, block.Scope)

	got, err := s.GetBlock(ctx, block.ID)
	require.NoError(t, err)
	assert.Equal(t, block.Content, got.Content)
	assert.Equal(t, block.Keywords, got.Keywords)
	assert.Equal(t, "conv-1", got.ConversationID)
	assert.Equal(t, 2.5, got.FeedbackScore)
	assert.False(t, got.Archived)
	assert.Nil(t, got.Embedding)
}

func TestCreateBlockRejectsUnknownScope(t *testing.T) {
	s := openTestStore(t)
	err := s.CreateBlock(context.Background(), &types.MemoryBlock{
		Content: "x",
		Scope:   types.VisibilityScope("team"),
	})
	require.Error(t, err)
	assert.True(t, errors.Is(err, types.ErrConfigInvalid))
}

func TestGetBlockNotFound(t *testing.T) {
	s := openTestStore(t)
	_, err := s.GetBlock(context.Background(), "missing")
	require.Error(t, err)
	assert.True(t, errors.Is(err, types.ErrNotFound))
}

func TestGetBlocksPreservesInputOrder(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	a := createTestBlock(t, s, "first", nil)
	b := createTestBlock(t, s, "second", nil)
	c := createTestBlock(t, s, "third", nil)

	got, err := s.GetBlocks(ctx, []string{c.ID, "missing", a.ID, b.ID})
	require.NoError(t, err)
	require.Len(t, got, 3)
	assert.Equal(t, c.ID, got[0].ID)
	assert.Equal(t, a.ID, got[1].ID)
	assert.Equal(t, b.ID, got[2].ID)
}

func TestListBlocksFilters(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	mine := &types.MemoryBlock{AgentID: "me", Content: "mine"}
	theirs := &types.MemoryBlock{AgentID: "them", Content: "theirs"}
	require.NoError(t, s.CreateBlock(ctx, mine))
	require.NoError(t, s.CreateBlock(ctx, theirs))
	require.NoError(t, s.ArchiveBlock(ctx, theirs.ID))

	got, err := s.ListBlocks(ctx, types.Filters{AgentID: "me"}, 0)
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, mine.ID, got[0].ID)

	// Archived blocks are hidden unless explicitly included.
	got, err = s.ListBlocks(ctx, types.Filters{}, 0)
	require.NoError(t, err)
	assert.Len(t, got, 1)

	got, err = s.ListBlocks(ctx, types.Filters{IncludeArchived: true}, 0)
	require.NoError(t, err)
	assert.Len(t, got, 2)
}

func TestArchiveBlock(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	block := createTestBlock(t, s, "to archive", nil)
	require.NoError(t, s.ArchiveBlock(ctx, block.ID))

	got, err := s.GetBlock(ctx, block.ID)
	require.NoError(t, err)
	assert.True(t, got.Archived)

	err = s.ArchiveBlock(ctx, "missing")
	assert.True(t, errors.Is(err, types.ErrNotFound))
}

func TestRecordFeedbackAccumulates(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	block := createTestBlock(t, s, "feedback target", nil)
	require.NoError(t, s.RecordFeedback(ctx, block.ID, 1))
	require.NoError(t, s.RecordFeedback(ctx, block.ID, 2))
	require.NoError(t, s.RecordFeedback(ctx, block.ID, -0.5))

	got, err := s.GetBlock(ctx, block.ID)
	require.NoError(t, err)
	assert.InDelta(t, 2.5, got.FeedbackScore, 1e-9)
}

func TestSearchTextMatchesContentAndKeywords(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	hit := createTestBlock(t, s, "database deadlock during checkout", []string{"postgres"})
	createTestBlock(t, s, "frontend styling issue", []string{"css"})

	matches, err := s.SearchText(ctx, "deadlock", types.Filters{}, 10)
	require.NoError(t, err)
	require.Len(t, matches, 1)
	assert.Equal(t, hit.ID, matches[0].BlockID)
	assert.Greater(t, matches[0].Score, 0.0)
	assert.LessOrEqual(t, matches[0].Score, 1.0)

	matches, err = s.SearchText(ctx, "postgres", types.Filters{}, 10)
	require.NoError(t, err)
	require.Len(t, matches, 1)
	assert.Equal(t, hit.ID, matches[0].BlockID)
}

func TestSearchTextSkipsArchived(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	block := createTestBlock(t, s, "unique archived content", nil)
	require.NoError(t, s.ArchiveBlock(ctx, block.ID))

	matches, err := s.SearchText(ctx, "archived", types.Filters{}, 10)
	require.NoError(t, err)
	assert.Empty(t, matches)

	matches, err = s.SearchText(ctx, "archived", types.Filters{IncludeArchived: true}, 10)
	require.NoError(t, err)
	assert.Len(t, matches, 1)
}

func TestSearchTextSanitizesOperators(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	createTestBlock(t, s, "plain content", nil)

	// FTS operators in user input must not cause query errors.
	for _, q := range []string{`"unclosed`, "a AND", "NEAR(", "col:value"} {
		_, err := s.SearchText(ctx, q, types.Filters{}, 10)
		assert.NoError(t, err, "query %q", q)
	}
}

func TestUpsertEmbeddingAndGetBlock(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	block := createTestBlock(t, s, "embedded block", nil)
	vector := []float32{0.1, 0.2, 0.3, 0.4}
	require.NoError(t, s.UpsertEmbedding(ctx, block.ID, vector, "mock", "mock-embeddings"))

	got, err := s.GetBlock(ctx, block.ID)
	require.NoError(t, err)
	assert.Equal(t, vector, got.Embedding)

	// Replacing is idempotent per block.
	replacement := []float32{1, 0, 0, 0}
	require.NoError(t, s.UpsertEmbedding(ctx, block.ID, replacement, "mock", "mock-embeddings"))
	got, err = s.GetBlock(ctx, block.ID)
	require.NoError(t, err)
	assert.Equal(t, replacement, got.Embedding)
}

func TestSearchVectorOrdersBySimilarity(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	near := createTestBlock(t, s, "near", nil)
	far := createTestBlock(t, s, "far", nil)
	require.NoError(t, s.UpsertEmbedding(ctx, near.ID, []float32{1, 0, 0}, "mock", "m"))
	require.NoError(t, s.UpsertEmbedding(ctx, far.ID, []float32{0, 1, 0}, "mock", "m"))

	matches, err := s.SearchVector(ctx, []float32{0.9, 0.1, 0}, types.Filters{}, 10)
	require.NoError(t, err)
	require.Len(t, matches, 2)
	assert.Equal(t, near.ID, matches[0].BlockID)
	assert.Greater(t, matches[0].Similarity, matches[1].Similarity)
}

func TestSearchVectorSkipsMismatchedDimension(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	ok := createTestBlock(t, s, "right size", nil)
	wrong := createTestBlock(t, s, "wrong size", nil)
	require.NoError(t, s.UpsertEmbedding(ctx, ok.ID, []float32{1, 0, 0}, "mock", "m"))
	require.NoError(t, s.UpsertEmbedding(ctx, wrong.ID, []float32{1, 0}, "mock", "m"))

	matches, err := s.SearchVector(ctx, []float32{1, 0, 0}, types.Filters{}, 10)
	require.NoError(t, err)
	require.Len(t, matches, 1)
	assert.Equal(t, ok.ID, matches[0].BlockID)
}

func TestListUnembedded(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	embedded := createTestBlock(t, s, "has vector", nil)
	pending := createTestBlock(t, s, "needs vector", nil)
	staleDim := createTestBlock(t, s, "old dimension", nil)
	require.NoError(t, s.UpsertEmbedding(ctx, embedded.ID, []float32{1, 2, 3}, "mock", "m"))
	require.NoError(t, s.UpsertEmbedding(ctx, staleDim.ID, []float32{1, 2}, "mock", "m"))

	got, err := s.ListUnembedded(ctx, 3, 0)
	require.NoError(t, err)
	require.Len(t, got, 2)

	ids := []string{got[0].ID, got[1].ID}
	assert.Contains(t, ids, pending.ID)
	assert.Contains(t, ids, staleDim.ID)

	n, err := s.CountEmbedded(ctx, 3)
	require.NoError(t, err)
	assert.Equal(t, 1, n)
}

func TestVectorCodecRoundTrip(t *testing.T) {
	vector := []float32{0.5, -1.25, 3.75, 0}
	blob, err := serializeVector(vector)
	require.NoError(t, err)

	got, err := deserializeVector(blob)
	require.NoError(t, err)
	assert.Equal(t, vector, got)

	_, err = deserializeVector([]byte{1, 2, 3})
	assert.Error(t, err)
}

func TestCosineSimilarity(t *testing.T) {
	same, err := cosineSimilarity([]float32{1, 2, 3}, []float32{1, 2, 3})
	require.NoError(t, err)
	assert.InDelta(t, 1.0, same, 1e-6)

	orthogonal, err := cosineSimilarity([]float32{1, 0}, []float32{0, 1})
	require.NoError(t, err)
	assert.InDelta(t, 0.0, orthogonal, 1e-6)

	opposite, err := cosineSimilarity([]float32{1, 0}, []float32{-1, 0})
	require.NoError(t, err)
	assert.InDelta(t, -1.0, opposite, 1e-6)

	_, err = cosineSimilarity([]float32{1, 0}, []float32{1, 0, 0})
	require.Error(t, err)
	assert.True(t, errors.Is(err, types.ErrDimensionMismatch))

	zero, err := cosineSimilarity([]float32{0, 0}, []float32{1, 0})
	require.NoError(t, err)
	assert.Equal(t, 0.0, zero)
}

func TestSanitizeFTSQuery(t *testing.T) {
	assert.Equal(t, `"hello" OR "world"`, sanitizeFTSQuery("hello world"))
	assert.Equal(t, "", sanitizeFTSQuery("   "))
	assert.Equal(t, `"a""b"`, sanitizeFTSQuery(`a"b`))
}

func TestTimestampsSetOnCreate(t *testing.T) {
	s := openTestStore(t)
	before := time.Now().UTC().Add(-time.Second)

	block := createTestBlock(t, s, "timestamped", nil)
	assert.True(t, block.CreatedAt.After(before))
	assert.Equal(t, block.CreatedAt, block.UpdatedAt)
}
