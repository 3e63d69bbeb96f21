package embedder

import (
	"fmt"

	"github.com/dshills/agentmem/internal/config"
	"github.com/dshills/agentmem/pkg/types"
)

// Default dimensions per built-in model. Overridable only by changing
// the model, never by padding or truncating vectors.
const (
	ollamaDimension      = 768
	huggingfaceDimension = 384
)

// New builds the configured embedding provider, wrapped in the LRU
// cache. The provider enumeration is closed: an unknown value is a
// configuration error, never a silent default.
func New(cfg config.Embedding) (Provider, error) {
	var provider Provider

	switch cfg.Provider {
	case config.ProviderDisabled:
		provider = DisabledProvider{}
	case config.ProviderMock:
		provider = MockProvider{}
	case config.ProviderOllama:
		provider = NewOllamaProvider(cfg.OllamaURL, cfg.OllamaModel, ollamaDimension, cfg.RequestTimeout)
	case config.ProviderHuggingFace:
		provider = NewHuggingFaceProvider(cfg.HFURL, cfg.HFToken, cfg.HFModel, huggingfaceDimension, cfg.RequestTimeout)
	default:
		return nil, fmt.Errorf("%w: unknown embedding provider %q", types.ErrConfigInvalid, cfg.Provider)
	}

	return NewCached(provider, cfg.CacheSize), nil
}
