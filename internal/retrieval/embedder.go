package retrieval

import (
	"context"
	"fmt"

	lcembeddings "github.com/tmc/langchaingo/embeddings"
	"github.com/tmc/langchaingo/llms/openai"
)

// Embedder turns text into fixed-dimension vectors.
type Embedder interface {
	EmbedDocuments(ctx context.Context, texts []string) ([][]float32, error)
	EmbedQuery(ctx context.Context, text string) ([]float32, error)
}

// EmbedderConfig holds configuration for the OpenAI embedding provider.
type EmbedderConfig struct {
	// APIKey is the OpenAI credential. Empty means no provider is
	// configured and retrieval runs in degraded (no-op) mode.
	APIKey string `koanf:"api_key"`

	// Model is the embedding model name.
	Model string `koanf:"model"`
}

// ApplyDefaults sets default values for unset fields.
func (c *EmbedderConfig) ApplyDefaults() {
	if c.Model == "" {
		c.Model = "text-embedding-3-small"
	}
}

// NewOpenAIEmbedder creates an embedding provider backed by the OpenAI
// embeddings API. Returns (nil, nil) when no API key is configured; the
// caller wires the nil provider into NewService, which degrades silently.
func NewOpenAIEmbedder(cfg EmbedderConfig) (Embedder, error) {
	if cfg.APIKey == "" {
		return nil, nil
	}
	cfg.ApplyDefaults()

	client, err := openai.New(
		openai.WithToken(cfg.APIKey),
		openai.WithEmbeddingModel(cfg.Model),
	)
	if err != nil {
		return nil, fmt.Errorf("creating openai client: %w", err)
	}

	embedder, err := lcembeddings.NewEmbedder(client)
	if err != nil {
		return nil, fmt.Errorf("creating embedder: %w", err)
	}

	return embedder, nil
}
