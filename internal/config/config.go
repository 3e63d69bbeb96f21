// Package config holds the process-wide ranking configuration.
//
// Configuration is read once from AGENTMEM_* environment variables, cached,
// and exposed as an immutable snapshot. Refresh replaces the snapshot
// wholesale; readers never observe a partially-updated config.
package config

import (
	"fmt"
	"strings"
	"sync/atomic"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/knadh/koanf/providers/confmap"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/v2"

	"github.com/dshills/agentmem/pkg/types"
)

const (
	// EnvPrefix is the prefix for environment variables.
	EnvPrefix = "AGENTMEM_"
	// Delimiter is the key delimiter for nested config.
	Delimiter = "."
)

// NormalizationMode selects how raw retriever scores are rescaled.
type NormalizationMode string

const (
	NormalizeMinMax NormalizationMode = "min_max"
	NormalizeMax    NormalizationMode = "max"
)

// EmbeddingProvider is the closed enumeration of embedding backends.
type EmbeddingProvider string

const (
	ProviderDisabled    EmbeddingProvider = "disabled"
	ProviderMock        EmbeddingProvider = "mock"
	ProviderOllama      EmbeddingProvider = "ollama"
	ProviderHuggingFace EmbeddingProvider = "huggingface"
)

// RewriteProvider selects the LLM query-rewrite backend, or off.
type RewriteProvider string

const (
	RewriteOff    RewriteProvider = "off"
	RewriteMock   RewriteProvider = "mock"
	RewriteOllama RewriteProvider = "ollama"
)

// Ranking holds the weights and heuristics of the hybrid ranker.
type Ranking struct {
	FulltextWeight float64           `koanf:"fulltext_weight" validate:"min=0"`
	SemanticWeight float64           `koanf:"semantic_weight" validate:"min=0"`
	Normalization  NormalizationMode `koanf:"normalization" validate:"oneof=min_max max"`
	ScoreFloor     float64           `koanf:"score_floor" validate:"min=0,max=1"`

	RecencyEnabled      bool    `koanf:"recency_enabled"`
	RecencyHalfLifeDays float64 `koanf:"recency_half_life_days" validate:"gt=0"`
	RecencyMinMult      float64 `koanf:"recency_min_mult" validate:"min=0"`
	RecencyMaxMult      float64 `koanf:"recency_max_mult" validate:"min=0"`

	FeedbackEnabled  bool    `koanf:"feedback_enabled"`
	FeedbackWeight   float64 `koanf:"feedback_weight" validate:"min=0"`
	FeedbackMaxScore float64 `koanf:"feedback_max_score" validate:"min=0"`

	ScopeBonusEnabled      bool    `koanf:"scope_bonus_enabled"`
	ScopeBonusPersonal     float64 `koanf:"scope_bonus_personal"`
	ScopeBonusOrganization float64 `koanf:"scope_bonus_organization"`
	ScopeBonusPublic       float64 `koanf:"scope_bonus_public"`

	RerankerEnabled  bool   `koanf:"reranker_enabled"`
	RerankerProvider string `koanf:"reranker_provider"`
	RerankerTopK     int    `koanf:"reranker_top_k" validate:"min=1"`

	AllowWeightOverrides bool `koanf:"allow_weight_overrides"`
}

// Expansion holds the query expander settings.
type Expansion struct {
	MaxVariants     int             `koanf:"max_query_variants" validate:"min=1"`
	SynonymsPath    string          `koanf:"synonyms_path"`
	RewriteProvider RewriteProvider `koanf:"rewrite_provider" validate:"oneof=off mock ollama"`
	RewriteURL      string          `koanf:"rewrite_url"`
	RewriteModel    string          `koanf:"rewrite_model"`
	RewriteTimeout  time.Duration   `koanf:"rewrite_timeout" validate:"gt=0"`
}

// Embedding holds the embedding gateway settings.
type Embedding struct {
	Provider       EmbeddingProvider `koanf:"embedding_provider" validate:"oneof=disabled mock ollama huggingface"`
	OllamaURL      string            `koanf:"ollama_url"`
	OllamaModel    string            `koanf:"ollama_model"`
	HFURL          string            `koanf:"hf_url"`
	HFToken        string            `koanf:"hf_token"`
	HFModel        string            `koanf:"hf_model"`
	RequestTimeout time.Duration     `koanf:"embedding_timeout" validate:"gt=0"`
	CacheSize      int               `koanf:"embedding_cache_size" validate:"min=0"`
}

// Config is the full process configuration.
type Config struct {
	DBPath        string        `koanf:"db_path" validate:"required"`
	HTTPAddr      string        `koanf:"http_addr" validate:"required"`
	SearchTimeout time.Duration `koanf:"search_timeout" validate:"gt=0"`
	LogLevel      string        `koanf:"log_level" validate:"oneof=trace debug info warn error"`

	Ranking   Ranking   `koanf:"ranking"`
	Expansion Expansion `koanf:"expansion"`
	Embedding Embedding `koanf:"embedding"`
}

// Default returns the built-in configuration, applied before env overrides.
func Default() Config {
	return Config{
		DBPath:        "agentmem.db",
		HTTPAddr:      ":8080",
		SearchTimeout: 10 * time.Second,
		LogLevel:      "info",
		Ranking: Ranking{
			FulltextWeight:      0.7,
			SemanticWeight:      0.3,
			Normalization:       NormalizeMinMax,
			ScoreFloor:          0,
			RecencyEnabled:      false,
			RecencyHalfLifeDays: 30,
			RecencyMinMult:      0.5,
			RecencyMaxMult:      1.0,
			FeedbackEnabled:     false,
			FeedbackWeight:      0.05,
			FeedbackMaxScore:    10,
			ScopeBonusEnabled:   false,
			RerankerEnabled:     false,
			RerankerProvider:    "mock",
			RerankerTopK:        10,
		},
		Expansion: Expansion{
			MaxVariants:     4,
			RewriteProvider: RewriteOff,
			RewriteModel:    "llama3.2",
			RewriteTimeout:  5 * time.Second,
		},
		Embedding: Embedding{
			Provider:       ProviderDisabled,
			OllamaURL:      "http://localhost:11434",
			OllamaModel:    "nomic-embed-text",
			HFURL:          "https://api-inference.huggingface.co",
			HFModel:        "sentence-transformers/all-MiniLM-L6-v2",
			RequestTimeout: 10 * time.Second,
			CacheSize:      10000,
		},
	}
}

var validate = validator.New()

// envKeys maps flat environment names (lowercased, prefix stripped) onto
// their nested koanf keys, so AGENTMEM_EMBEDDING_PROVIDER reaches
// embedding.embedding_provider without spelling out the section.
var envKeys = buildEnvKeys()

func buildEnvKeys() map[string]string {
	keys := make(map[string]string)
	for key := range flatten(Default()) {
		if i := strings.Index(key, Delimiter); i >= 0 {
			keys[key[i+1:]] = key
		}
	}
	return keys
}

// Load reads configuration from defaults plus AGENTMEM_* environment
// variables. Malformed values return ErrConfigInvalid; nothing is loaded
// lazily per request.
func Load() (*Config, error) {
	k := koanf.New(Delimiter)

	defaults := Default()
	if err := k.Load(confmap.Provider(flatten(defaults), Delimiter), nil); err != nil {
		return nil, fmt.Errorf("%w: defaults: %v", types.ErrConfigInvalid, err)
	}

	// AGENTMEM_FULLTEXT_WEIGHT -> ranking.fulltext_weight: flat names
	// resolve through the lookup built from the key map. Sectioned names
	// (AGENTMEM_RANKING_FULLTEXT_WEIGHT) and single-segment keys
	// (AGENTMEM_DB_PATH) are also accepted.
	err := k.Load(env.Provider(EnvPrefix, Delimiter, func(s string) string {
		key := strings.ToLower(strings.TrimPrefix(s, EnvPrefix))
		if full, ok := envKeys[key]; ok {
			return full
		}
		for _, section := range []string{"ranking_", "expansion_", "embedding_"} {
			if strings.HasPrefix(key, section) {
				return strings.TrimSuffix(section, "_") + Delimiter + strings.TrimPrefix(key, section)
			}
		}
		return key
	}), nil)
	if err != nil {
		return nil, fmt.Errorf("%w: environment: %v", types.ErrConfigInvalid, err)
	}

	var cfg Config
	if err := k.Unmarshal("", &cfg); err != nil {
		return nil, fmt.Errorf("%w: %v", types.ErrConfigInvalid, err)
	}

	if err := validate.Struct(&cfg); err != nil {
		return nil, fmt.Errorf("%w: %v", types.ErrConfigInvalid, err)
	}
	if err := cfg.normalize(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// normalize re-normalizes component weights to sum to 1 and checks the
// cross-field constraints the struct tags can't express.
func (c *Config) normalize() error {
	sum := c.Ranking.FulltextWeight + c.Ranking.SemanticWeight
	if sum <= 0 {
		return fmt.Errorf("%w: fulltext and semantic weights sum to zero", types.ErrConfigInvalid)
	}
	c.Ranking.FulltextWeight /= sum
	c.Ranking.SemanticWeight /= sum

	if c.Ranking.RecencyMinMult > c.Ranking.RecencyMaxMult {
		return fmt.Errorf("%w: recency min multiplier %v exceeds max %v",
			types.ErrConfigInvalid, c.Ranking.RecencyMinMult, c.Ranking.RecencyMaxMult)
	}
	return nil
}

// flatten maps a Config onto koanf keys for the confmap provider.
func flatten(c Config) map[string]interface{} {
	return map[string]interface{}{
		"db_path":        c.DBPath,
		"http_addr":      c.HTTPAddr,
		"search_timeout": c.SearchTimeout,
		"log_level":      c.LogLevel,

		"ranking.fulltext_weight":          c.Ranking.FulltextWeight,
		"ranking.semantic_weight":          c.Ranking.SemanticWeight,
		"ranking.normalization":            string(c.Ranking.Normalization),
		"ranking.score_floor":              c.Ranking.ScoreFloor,
		"ranking.recency_enabled":          c.Ranking.RecencyEnabled,
		"ranking.recency_half_life_days":   c.Ranking.RecencyHalfLifeDays,
		"ranking.recency_min_mult":         c.Ranking.RecencyMinMult,
		"ranking.recency_max_mult":         c.Ranking.RecencyMaxMult,
		"ranking.feedback_enabled":         c.Ranking.FeedbackEnabled,
		"ranking.feedback_weight":          c.Ranking.FeedbackWeight,
		"ranking.feedback_max_score":       c.Ranking.FeedbackMaxScore,
		"ranking.scope_bonus_enabled":      c.Ranking.ScopeBonusEnabled,
		"ranking.scope_bonus_personal":     c.Ranking.ScopeBonusPersonal,
		"ranking.scope_bonus_organization": c.Ranking.ScopeBonusOrganization,
		"ranking.scope_bonus_public":       c.Ranking.ScopeBonusPublic,
		"ranking.reranker_enabled":         c.Ranking.RerankerEnabled,
		"ranking.reranker_provider":        c.Ranking.RerankerProvider,
		"ranking.reranker_top_k":           c.Ranking.RerankerTopK,
		"ranking.allow_weight_overrides":   c.Ranking.AllowWeightOverrides,

		"expansion.max_query_variants": c.Expansion.MaxVariants,
		"expansion.synonyms_path":      c.Expansion.SynonymsPath,
		"expansion.rewrite_provider":   string(c.Expansion.RewriteProvider),
		"expansion.rewrite_url":        c.Expansion.RewriteURL,
		"expansion.rewrite_model":      c.Expansion.RewriteModel,
		"expansion.rewrite_timeout":    c.Expansion.RewriteTimeout,

		"embedding.embedding_provider":   string(c.Embedding.Provider),
		"embedding.ollama_url":           c.Embedding.OllamaURL,
		"embedding.ollama_model":         c.Embedding.OllamaModel,
		"embedding.hf_url":               c.Embedding.HFURL,
		"embedding.hf_token":             c.Embedding.HFToken,
		"embedding.hf_model":             c.Embedding.HFModel,
		"embedding.embedding_timeout":    c.Embedding.RequestTimeout,
		"embedding.embedding_cache_size": c.Embedding.CacheSize,
	}
}

// Store caches one Config snapshot for the whole process. The snapshot is
// computed lazily on first Snapshot call and replaced wholesale by Refresh.
type Store struct {
	current atomic.Pointer[Config]
}

// NewStore returns an empty store; the first Snapshot call loads from env.
func NewStore() *Store {
	return &Store{}
}

// Snapshot returns the cached config, loading it on first use. The returned
// pointer must be treated as immutable.
func (s *Store) Snapshot() (*Config, error) {
	if cfg := s.current.Load(); cfg != nil {
		return cfg, nil
	}
	return s.Refresh()
}

// Refresh re-reads the environment and atomically replaces the cached
// snapshot. Concurrent readers keep their old snapshot until their next
// Snapshot call.
func (s *Store) Refresh() (*Config, error) {
	cfg, err := Load()
	if err != nil {
		return nil, err
	}
	s.current.Store(cfg)
	return cfg, nil
}

// Set installs a pre-built config snapshot. Intended for tests.
func (s *Store) Set(cfg *Config) {
	s.current.Store(cfg)
}
