package expand

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

// Rewriter produces alternative phrasings of a query via an external model.
// Implementations must be safe for concurrent use.
type Rewriter interface {
	Rewrite(ctx context.Context, query string) ([]string, error)
}

// MockRewriter is a deterministic rewriter for tests and offline use. It
// derives stable pseudo-rewrites from the query text itself.
type MockRewriter struct{}

func (MockRewriter) Rewrite(_ context.Context, query string) ([]string, error) {
	query = strings.TrimSpace(query)
	if query == "" {
		return nil, nil
	}
	sum := sha256.Sum256([]byte(query))
	return []string{
		"how to " + strings.ToLower(query),
		fmt.Sprintf("%s v%x", strings.ToLower(query), sum[:2]),
	}, nil
}

// OllamaRewriter asks a local Ollama instance for query rewrites.
type OllamaRewriter struct {
	baseURL string
	model   string
	client  *http.Client
}

// NewOllamaRewriter creates a rewriter against the given Ollama base URL.
func NewOllamaRewriter(baseURL, model string, timeout time.Duration) *OllamaRewriter {
	return &OllamaRewriter{
		baseURL: strings.TrimRight(baseURL, "/"),
		model:   model,
		client:  &http.Client{Timeout: timeout},
	}
}

const rewritePrompt = "Rewrite the following search query two different ways, one per line, no numbering:\n\n"

func (o *OllamaRewriter) Rewrite(ctx context.Context, query string) ([]string, error) {
	reqBody, err := json.Marshal(map[string]interface{}{
		"model":  o.model,
		"prompt": rewritePrompt + query,
		"stream": false,
	})
	if err != nil {
		return nil, fmt.Errorf("marshal rewrite request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, o.baseURL+"/api/generate", bytes.NewReader(reqBody))
	if err != nil {
		return nil, fmt.Errorf("create rewrite request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := o.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("rewrite call: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return nil, fmt.Errorf("rewrite provider status %d: %s", resp.StatusCode, string(body))
	}

	var apiResp struct {
		Response string `json:"response"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&apiResp); err != nil {
		return nil, fmt.Errorf("decode rewrite response: %w", err)
	}

	var rewrites []string
	for _, line := range strings.Split(apiResp.Response, "\n") {
		line = strings.TrimSpace(line)
		if line != "" {
			rewrites = append(rewrites, line)
		}
	}
	return rewrites, nil
}
