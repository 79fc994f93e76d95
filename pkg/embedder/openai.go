package embedder

import (
	"context"
	"fmt"

	openai "github.com/sashabaranov/go-openai"
)

// OpenAIClient implements Client against an OpenAI-compatible /embeddings
// endpoint.
type OpenAIClient struct {
	client *openai.Client
	config *Config
}

// NewOpenAIClient creates an embedding client. BaseURL may point at any
// OpenAI-compatible gateway; Dimensions defaults to 1024.
func NewOpenAIClient(config *Config) (*OpenAIClient, error) {
	if config == nil || config.APIKey == "" {
		return nil, fmt.Errorf("embedder requires an API key")
	}
	if config.Dimensions <= 0 {
		config.Dimensions = 1024
	}

	clientConfig := openai.DefaultConfig(config.APIKey)
	if config.BaseURL != "" {
		clientConfig.BaseURL = config.BaseURL
	}

	return &OpenAIClient{
		client: openai.NewClientWithConfig(clientConfig),
		config: config,
	}, nil
}

// Embed generates embeddings for the given texts in one batched model call.
func (c *OpenAIClient) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return [][]float32{}, nil
	}

	resp, err := c.client.CreateEmbeddings(ctx, openai.EmbeddingRequest{
		Input:      texts,
		Model:      openai.EmbeddingModel(c.config.Model),
		Dimensions: c.config.Dimensions,
	})
	if err != nil {
		return nil, fmt.Errorf("embedding request failed: %w", err)
	}
	if len(resp.Data) != len(texts) {
		return nil, fmt.Errorf("embedding response has %d vectors for %d inputs", len(resp.Data), len(texts))
	}

	vectors := make([][]float32, len(resp.Data))
	for i, item := range resp.Data {
		vectors[i] = item.Embedding
	}
	return vectors, nil
}

// Dimensions returns the configured embedding dimensionality.
func (c *OpenAIClient) Dimensions() int {
	return c.config.Dimensions
}

// Close is a no-op; the HTTP client holds no persistent resources.
func (c *OpenAIClient) Close() error { return nil }
