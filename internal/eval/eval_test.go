package eval

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dshills/agentmem/internal/config"
	"github.com/dshills/agentmem/internal/embedder"
	"github.com/dshills/agentmem/internal/expand"
	"github.com/dshills/agentmem/internal/rank"
	"github.com/dshills/agentmem/internal/retriever"
	"github.com/dshills/agentmem/internal/search"
	"github.com/dshills/agentmem/internal/store"
	"github.com/dshills/agentmem/pkg/types"
)

func newTestService(t *testing.T) (*search.Service, *store.SQLiteStore) {
	t.Helper()

	st, err := store.Open(context.Background(), filepath.Join(t.TempDir(), "test.db"), zerolog.Nop())
	require.NoError(t, err)
	t.Cleanup(func() { _ = st.Close() })

	cfg := config.Default()
	cfgStore := config.NewStore()
	cfgStore.Set(&cfg)

	log := zerolog.Nop()
	provider := embedder.MockProvider{}

	svc := search.NewService(
		cfgStore,
		st,
		expand.New(nil, nil, log),
		retriever.NewBasic(st),
		retriever.NewFulltext(st, log),
		search.NewFallbackController(retriever.NewSemantic(st, provider), log),
		rank.New(nil, log),
		nil,
		log,
	)
	return svc, st
}

func TestEvaluateComputesPrecisionRecall(t *testing.T) {
	svc, st := newTestService(t)
	ctx := context.Background()

	relevant := &types.MemoryBlock{Content: "database index missing on orders table", Keywords: []string{"database"}}
	noise := &types.MemoryBlock{Content: "team offsite agenda"}
	require.NoError(t, st.CreateBlock(ctx, relevant))
	require.NoError(t, st.CreateBlock(ctx, noise))

	harness := NewHarness(svc, 5, zerolog.Nop())
	cmp, err := harness.Evaluate(ctx, []Case{
		{Query: "database index", RelevantIDs: []string{relevant.ID}},
	})
	require.NoError(t, err)
	require.Len(t, cmp.Baseline, 1)
	require.Len(t, cmp.Hybrid, 1)

	assert.Equal(t, 1, cmp.Baseline[0].Hits)
	assert.Equal(t, 1.0, cmp.Baseline[0].Recall)
	assert.Equal(t, 1, cmp.Hybrid[0].Hits)
	assert.Equal(t, 1.0, cmp.Hybrid[0].Recall)
}

func TestEvaluateEmptyCases(t *testing.T) {
	svc, _ := newTestService(t)
	harness := NewHarness(svc, 5, zerolog.Nop())
	_, err := harness.Evaluate(context.Background(), nil)
	require.Error(t, err)
}

func TestEvaluateZeroHits(t *testing.T) {
	svc, st := newTestService(t)
	ctx := context.Background()

	block := &types.MemoryBlock{Content: "something searchable", Keywords: []string{"searchable"}}
	require.NoError(t, st.CreateBlock(ctx, block))

	harness := NewHarness(svc, 5, zerolog.Nop())
	cmp, err := harness.Evaluate(ctx, []Case{
		{Query: "searchable", RelevantIDs: []string{"some-other-id"}},
	})
	require.NoError(t, err)
	assert.Equal(t, 0, cmp.Baseline[0].Hits)
	assert.Equal(t, 0.0, cmp.Baseline[0].Precision)
	assert.Equal(t, 0.0, cmp.Baseline[0].Recall)
}
