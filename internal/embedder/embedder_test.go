package embedder

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dshills/agentmem/internal/config"
	"github.com/dshills/agentmem/pkg/types"
)

func TestDisabledAlwaysUnavailable(t *testing.T) {
	_, err := DisabledProvider{}.Embed(context.Background(), "anything")
	require.Error(t, err)
	assert.True(t, errors.Is(err, types.ErrProviderUnavailable))
}

func TestMockDeterministic(t *testing.T) {
	p := MockProvider{}

	first, err := p.Embed(context.Background(), "postgres deadlock")
	require.NoError(t, err)
	second, err := p.Embed(context.Background(), "postgres deadlock")
	require.NoError(t, err)
	other, err := p.Embed(context.Background(), "redis eviction")
	require.NoError(t, err)

	assert.Equal(t, first, second)
	assert.NotEqual(t, first, other)
	assert.Len(t, first, MockDimension)
	assert.Equal(t, MockDimension, p.Dimension())
}

func TestMockEmptyTextRejected(t *testing.T) {
	_, err := MockProvider{}.Embed(context.Background(), "")
	require.Error(t, err)
	assert.True(t, errors.Is(err, types.ErrProviderError))
}

func TestCachedSkipsBackend(t *testing.T) {
	var calls atomic.Int64
	inner := countingProvider{calls: &calls}
	cached := NewCached(inner, 16)

	first, err := cached.Embed(context.Background(), "same text")
	require.NoError(t, err)
	second, err := cached.Embed(context.Background(), "same text")
	require.NoError(t, err)

	assert.Equal(t, first, second)
	assert.Equal(t, int64(1), calls.Load())

	// Mutating a returned vector must not poison the cache.
	first[0] = 99
	third, err := cached.Embed(context.Background(), "same text")
	require.NoError(t, err)
	assert.NotEqual(t, float32(99), third[0])
}

func TestCachedZeroSizeDisablesCache(t *testing.T) {
	p := NewCached(MockProvider{}, 0)
	_, ok := p.(MockProvider)
	assert.True(t, ok)
}

type countingProvider struct {
	calls *atomic.Int64
}

func (c countingProvider) Embed(_ context.Context, text string) ([]float32, error) {
	c.calls.Add(1)
	return MockProvider{}.Embed(context.Background(), text)
}

func (countingProvider) Dimension() int { return MockDimension }
func (countingProvider) Name() string   { return "counting" }
func (countingProvider) Model() string  { return "counting" }
func (countingProvider) Close() error   { return nil }

func TestOllamaUnreachableIsUnavailable(t *testing.T) {
	p := NewOllamaProvider("http://127.0.0.1:1", "nomic-embed-text", 0, 100*time.Millisecond)
	_, err := p.Embed(context.Background(), "text")
	require.Error(t, err)
	assert.True(t, errors.Is(err, types.ErrProviderUnavailable))
}

func TestOllamaServerErrorIsUnavailable(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	p := NewOllamaProvider(srv.URL, "nomic-embed-text", 0, time.Second)
	_, err := p.Embed(context.Background(), "text")
	require.Error(t, err)
	assert.True(t, errors.Is(err, types.ErrProviderUnavailable))
}

func TestOllamaBadRequestIsProviderError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "unknown model", http.StatusBadRequest)
	}))
	defer srv.Close()

	p := NewOllamaProvider(srv.URL, "nope", 0, time.Second)
	_, err := p.Embed(context.Background(), "text")
	require.Error(t, err)
	assert.True(t, errors.Is(err, types.ErrProviderError))
	assert.False(t, errors.Is(err, types.ErrProviderUnavailable))
}

func TestOllamaMalformedResponseIsUnavailable(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte("not json"))
	}))
	defer srv.Close()

	p := NewOllamaProvider(srv.URL, "nomic-embed-text", 0, time.Second)
	_, err := p.Embed(context.Background(), "text")
	require.Error(t, err)
	assert.True(t, errors.Is(err, types.ErrProviderUnavailable))
}

func TestOllamaDimensionMismatchIsUnavailable(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"embedding":[0.1,0.2,0.3]}`))
	}))
	defer srv.Close()

	p := NewOllamaProvider(srv.URL, "nomic-embed-text", 768, time.Second)
	_, err := p.Embed(context.Background(), "text")
	require.Error(t, err)
	assert.True(t, errors.Is(err, types.ErrProviderUnavailable))
}

func TestHuggingFaceHappyPath(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`[[0.1, 0.2, 0.3]]`))
	}))
	defer srv.Close()

	p := NewHuggingFaceProvider(srv.URL, "token", "some-model", 3, time.Second)
	vec, err := p.Embed(context.Background(), "text")
	require.NoError(t, err)
	assert.Equal(t, []float32{0.1, 0.2, 0.3}, vec)
}

func TestFactoryClosedEnum(t *testing.T) {
	cfg := config.Default().Embedding

	cfg.Provider = config.ProviderMock
	p, err := New(cfg)
	require.NoError(t, err)
	assert.Equal(t, "mock", p.Name())

	cfg.Provider = config.EmbeddingProvider("openai")
	_, err = New(cfg)
	require.Error(t, err)
	assert.True(t, errors.Is(err, types.ErrConfigInvalid))
}
