package embedder

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"time"

	"github.com/dshills/agentmem/pkg/types"
)

const (
	// MockDimension is the output size of the deterministic mock provider.
	MockDimension = 384
)

// DisabledProvider is the active provider when embedding is turned off.
// Every Embed reports unavailability so the pipeline degrades to
// keyword-only retrieval.
type DisabledProvider struct{}

func (DisabledProvider) Embed(context.Context, string) ([]float32, error) {
	return nil, fmt.Errorf("%w: embedding disabled", types.ErrProviderUnavailable)
}

func (DisabledProvider) Dimension() int { return 0 }
func (DisabledProvider) Name() string   { return "disabled" }
func (DisabledProvider) Model() string  { return "" }
func (DisabledProvider) Close() error   { return nil }

// MockProvider derives a deterministic vector from the text's hash.
// Identical text always embeds identically, which makes cosine
// comparisons stable in tests and offline environments.
type MockProvider struct{}

func (MockProvider) Embed(_ context.Context, text string) ([]float32, error) {
	if text == "" {
		return nil, fmt.Errorf("%w: empty text", types.ErrProviderError)
	}

	vector := make([]float32, MockDimension)
	seed := sha256.Sum256([]byte(text))
	for i := range vector {
		// Stretch the 32-byte digest across the full vector by
		// re-hashing per 32-element chunk.
		if i > 0 && i%len(seed) == 0 {
			seed = sha256.Sum256(seed[:])
		}
		vector[i] = float32(seed[i%len(seed)])/255.0 - 0.5
	}
	return vector, nil
}

func (MockProvider) Dimension() int { return MockDimension }
func (MockProvider) Name() string   { return "mock" }
func (MockProvider) Model() string  { return "mock-embeddings" }
func (MockProvider) Close() error   { return nil }

// OllamaProvider embeds via a local Ollama instance.
type OllamaProvider struct {
	baseURL   string
	model     string
	dimension int
	client    *http.Client
}

// NewOllamaProvider creates an Ollama-backed provider. dimension is the
// expected output size; responses of any other size are treated as
// malformed.
func NewOllamaProvider(baseURL, model string, dimension int, timeout time.Duration) *OllamaProvider {
	return &OllamaProvider{
		baseURL:   baseURL,
		model:     model,
		dimension: dimension,
		client:    &http.Client{Timeout: timeout},
	}
}

func (o *OllamaProvider) Embed(ctx context.Context, text string) ([]float32, error) {
	if text == "" {
		return nil, fmt.Errorf("%w: empty text", types.ErrProviderError)
	}

	reqBody, err := json.Marshal(map[string]interface{}{
		"model":  o.model,
		"prompt": text,
	})
	if err != nil {
		return nil, fmt.Errorf("marshal embed request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, o.baseURL+"/api/embeddings", bytes.NewReader(reqBody))
	if err != nil {
		return nil, fmt.Errorf("create embed request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := o.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: ollama: %v", types.ErrProviderUnavailable, err)
	}
	defer func() { _ = resp.Body.Close() }()

	if err := classifyStatus("ollama", resp); err != nil {
		return nil, err
	}

	var apiResp struct {
		Embedding []float32 `json:"embedding"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&apiResp); err != nil {
		return nil, fmt.Errorf("%w: ollama: malformed response: %v", types.ErrProviderUnavailable, err)
	}
	if len(apiResp.Embedding) == 0 {
		return nil, fmt.Errorf("%w: ollama: empty embedding", types.ErrProviderUnavailable)
	}
	if o.dimension > 0 && len(apiResp.Embedding) != o.dimension {
		return nil, fmt.Errorf("%w: ollama returned %d dims, want %d",
			types.ErrProviderUnavailable, len(apiResp.Embedding), o.dimension)
	}
	return apiResp.Embedding, nil
}

func (o *OllamaProvider) Dimension() int { return o.dimension }
func (o *OllamaProvider) Name() string   { return "ollama" }
func (o *OllamaProvider) Model() string  { return o.model }

func (o *OllamaProvider) Close() error {
	o.client.CloseIdleConnections()
	return nil
}

// HuggingFaceProvider embeds via the Hugging Face inference API
// feature-extraction pipeline.
type HuggingFaceProvider struct {
	baseURL   string
	token     string
	model     string
	dimension int
	client    *http.Client
}

// NewHuggingFaceProvider creates a Hugging Face backed provider. An
// empty token falls back to the HF_TOKEN environment variable.
func NewHuggingFaceProvider(baseURL, token, model string, dimension int, timeout time.Duration) *HuggingFaceProvider {
	if token == "" {
		token = os.Getenv("HF_TOKEN")
	}
	return &HuggingFaceProvider{
		baseURL:   baseURL,
		token:     token,
		model:     model,
		dimension: dimension,
		client:    &http.Client{Timeout: timeout},
	}
}

func (h *HuggingFaceProvider) Embed(ctx context.Context, text string) ([]float32, error) {
	if text == "" {
		return nil, fmt.Errorf("%w: empty text", types.ErrProviderError)
	}

	reqBody, err := json.Marshal(map[string]interface{}{
		"inputs": []string{text},
	})
	if err != nil {
		return nil, fmt.Errorf("marshal embed request: %w", err)
	}

	url := fmt.Sprintf("%s/pipeline/feature-extraction/%s", h.baseURL, h.model)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(reqBody))
	if err != nil {
		return nil, fmt.Errorf("create embed request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if h.token != "" {
		req.Header.Set("Authorization", "Bearer "+h.token)
	}

	resp, err := h.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: huggingface: %v", types.ErrProviderUnavailable, err)
	}
	defer func() { _ = resp.Body.Close() }()

	if err := classifyStatus("huggingface", resp); err != nil {
		return nil, err
	}

	var vectors [][]float32
	if err := json.NewDecoder(resp.Body).Decode(&vectors); err != nil {
		return nil, fmt.Errorf("%w: huggingface: malformed response: %v", types.ErrProviderUnavailable, err)
	}
	if len(vectors) == 0 || len(vectors[0]) == 0 {
		return nil, fmt.Errorf("%w: huggingface: empty embedding", types.ErrProviderUnavailable)
	}
	if h.dimension > 0 && len(vectors[0]) != h.dimension {
		return nil, fmt.Errorf("%w: huggingface returned %d dims, want %d",
			types.ErrProviderUnavailable, len(vectors[0]), h.dimension)
	}
	return vectors[0], nil
}

func (h *HuggingFaceProvider) Dimension() int { return h.dimension }
func (h *HuggingFaceProvider) Name() string   { return "huggingface" }
func (h *HuggingFaceProvider) Model() string  { return h.model }

func (h *HuggingFaceProvider) Close() error {
	h.client.CloseIdleConnections()
	return nil
}

// classifyStatus maps an HTTP status onto the error taxonomy. 4xx means
// the provider is up but rejected the request; everything else non-200
// counts as unavailable.
func classifyStatus(name string, resp *http.Response) error {
	if resp.StatusCode == http.StatusOK {
		return nil
	}

	body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
	if resp.StatusCode >= 400 && resp.StatusCode < 500 && resp.StatusCode != http.StatusTooManyRequests {
		return fmt.Errorf("%w: %s status %d: %s", types.ErrProviderError, name, resp.StatusCode, string(body))
	}
	return fmt.Errorf("%w: %s status %d: %s", types.ErrProviderUnavailable, name, resp.StatusCode, string(body))
}

// IsUnavailable reports whether err means the provider could not serve
// at all, as opposed to rejecting this particular request.
func IsUnavailable(err error) bool {
	return errors.Is(err, types.ErrProviderUnavailable)
}
