package embedder

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"time"

	"github.com/ollama/ollama/api"
)

// OllamaProvider implements Embedder against a local or remote Ollama server
type OllamaProvider struct {
	baseProvider
	client     *api.Client
	httpClient *http.Client
}

// NewOllamaProvider creates a new Ollama embedder
func NewOllamaProvider(cfg Config, cache *Cache) (*OllamaProvider, error) {
	base, err := url.Parse(orDefault(cfg.BaseURL, DefaultOllamaURL))
	if err != nil {
		return nil, fmt.Errorf("%w: invalid ollama url: %v", ErrInvalidInput, err)
	}

	httpClient := &http.Client{Timeout: 60 * time.Second}

	return &OllamaProvider{
		baseProvider: baseProvider{
			name:      ProviderOllama,
			model:     orDefault(cfg.Model, DefaultOllamaModel),
			dimension: orDefaultInt(cfg.Dimension, OllamaDimension),
			cache:     cache,
			retry:     DefaultRetryConfig(),
		},
		client:     api.NewClient(base, httpClient),
		httpClient: httpClient,
	}, nil
}

func (o *OllamaProvider) GenerateEmbedding(ctx context.Context, req EmbeddingRequest) (*Embedding, error) {
	return o.generateOne(ctx, req, o.callAPI)
}

func (o *OllamaProvider) GenerateBatch(ctx context.Context, req BatchEmbeddingRequest) (*BatchEmbeddingResponse, error) {
	return o.generateBatch(ctx, req, o.callAPI)
}

func (o *OllamaProvider) callAPI(ctx context.Context, texts []string, model string) ([][]float32, error) {
	resp, err := o.client.Embed(ctx, &api.EmbedRequest{
		Model: model,
		Input: texts,
	})
	if err != nil {
		var statusErr api.StatusError
		if errors.As(err, &statusErr) && isClientError(statusErr.StatusCode) {
			return nil, permanent(err)
		}
		return nil, fmt.Errorf("api call: %w", err)
	}

	return resp.Embeddings, nil
}

func (o *OllamaProvider) Close() error {
	o.httpClient.CloseIdleConnections()
	return nil
}
