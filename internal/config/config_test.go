package config

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dshills/agentmem/pkg/types"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "agentmem.db", cfg.DBPath)
	assert.Equal(t, NormalizeMinMax, cfg.Ranking.Normalization)
	assert.Equal(t, ProviderDisabled, cfg.Embedding.Provider)
	assert.InDelta(t, 1.0, cfg.Ranking.FulltextWeight+cfg.Ranking.SemanticWeight, 1e-9)
}

func TestLoadEnvOverrides(t *testing.T) {
	t.Setenv("AGENTMEM_DB_PATH", "/tmp/mem.db")
	t.Setenv("AGENTMEM_RANKING_FULLTEXT_WEIGHT", "3")
	t.Setenv("AGENTMEM_RANKING_SEMANTIC_WEIGHT", "1")
	t.Setenv("AGENTMEM_EXPANSION_MAX_QUERY_VARIANTS", "2")
	t.Setenv("AGENTMEM_EMBEDDING_EMBEDDING_PROVIDER", "mock")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "/tmp/mem.db", cfg.DBPath)
	// Weights are re-normalized to sum to 1.
	assert.InDelta(t, 0.75, cfg.Ranking.FulltextWeight, 1e-9)
	assert.InDelta(t, 0.25, cfg.Ranking.SemanticWeight, 1e-9)
	assert.Equal(t, 2, cfg.Expansion.MaxVariants)
	assert.Equal(t, ProviderMock, cfg.Embedding.Provider)
}

func TestLoadFlatEnvNames(t *testing.T) {
	t.Setenv("AGENTMEM_FULLTEXT_WEIGHT", "1")
	t.Setenv("AGENTMEM_SEMANTIC_WEIGHT", "1")
	t.Setenv("AGENTMEM_NORMALIZATION", "max")
	t.Setenv("AGENTMEM_MAX_QUERY_VARIANTS", "2")
	t.Setenv("AGENTMEM_SYNONYMS_PATH", "/etc/agentmem/synonyms.yaml")
	t.Setenv("AGENTMEM_EMBEDDING_PROVIDER", "mock")
	t.Setenv("AGENTMEM_REWRITE_MODEL", "qwen2.5")

	cfg, err := Load()
	require.NoError(t, err)

	assert.InDelta(t, 0.5, cfg.Ranking.FulltextWeight, 1e-9)
	assert.InDelta(t, 0.5, cfg.Ranking.SemanticWeight, 1e-9)
	assert.Equal(t, NormalizeMax, cfg.Ranking.Normalization)
	assert.Equal(t, 2, cfg.Expansion.MaxVariants)
	assert.Equal(t, "/etc/agentmem/synonyms.yaml", cfg.Expansion.SynonymsPath)
	assert.Equal(t, ProviderMock, cfg.Embedding.Provider)
	assert.Equal(t, "qwen2.5", cfg.Expansion.RewriteModel)
}

func TestLoadFlatProviderRejectsUnknownValue(t *testing.T) {
	t.Setenv("AGENTMEM_EMBEDDING_PROVIDER", "openai")

	_, err := Load()
	require.Error(t, err)
	assert.True(t, errors.Is(err, types.ErrConfigInvalid))
}

func TestLoadInvalidNormalization(t *testing.T) {
	t.Setenv("AGENTMEM_RANKING_NORMALIZATION", "zscore")

	_, err := Load()
	require.Error(t, err)
	assert.True(t, errors.Is(err, types.ErrConfigInvalid))
}

func TestLoadInvalidProvider(t *testing.T) {
	t.Setenv("AGENTMEM_EMBEDDING_EMBEDDING_PROVIDER", "openai")

	_, err := Load()
	require.Error(t, err)
	assert.True(t, errors.Is(err, types.ErrConfigInvalid))
}

func TestLoadZeroWeightSum(t *testing.T) {
	t.Setenv("AGENTMEM_RANKING_FULLTEXT_WEIGHT", "0")
	t.Setenv("AGENTMEM_RANKING_SEMANTIC_WEIGHT", "0")

	_, err := Load()
	require.Error(t, err)
	assert.True(t, errors.Is(err, types.ErrConfigInvalid))
}

func TestLoadRecencyBandOrder(t *testing.T) {
	t.Setenv("AGENTMEM_RANKING_RECENCY_MIN_MULT", "1.5")
	t.Setenv("AGENTMEM_RANKING_RECENCY_MAX_MULT", "1.0")

	_, err := Load()
	require.Error(t, err)
	assert.True(t, errors.Is(err, types.ErrConfigInvalid))
}

func TestStoreSnapshotIsCachedUntilRefresh(t *testing.T) {
	store := NewStore()

	first, err := store.Snapshot()
	require.NoError(t, err)

	// Env changes are invisible until an explicit refresh.
	t.Setenv("AGENTMEM_RANKING_FULLTEXT_WEIGHT", "1")
	t.Setenv("AGENTMEM_RANKING_SEMANTIC_WEIGHT", "1")

	cached, err := store.Snapshot()
	require.NoError(t, err)
	assert.Same(t, first, cached)

	refreshed, err := store.Refresh()
	require.NoError(t, err)
	assert.NotSame(t, first, refreshed)
	assert.InDelta(t, 0.5, refreshed.Ranking.FulltextWeight, 1e-9)
}

func TestStoreRefreshKeepsOldSnapshotOnFailure(t *testing.T) {
	store := NewStore()
	good, err := store.Snapshot()
	require.NoError(t, err)

	t.Setenv("AGENTMEM_RANKING_NORMALIZATION", "bogus")
	_, err = store.Refresh()
	require.Error(t, err)

	// The cached snapshot is untouched by a failed refresh.
	cached, err := store.Snapshot()
	require.NoError(t, err)
	assert.Same(t, good, cached)
}
