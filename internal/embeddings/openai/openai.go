// Package openai provides an embedding provider using OpenAI's embedding models.
package openai

import (
	"context"
	"fmt"
	"time"

	"github.com/sashabaranov/go-openai"

	"github.com/haasonsaas/corpus/internal/embeddings"
)

// Provider implements embeddings.Provider using OpenAI.
type Provider struct {
	client    *openai.Client
	model     string
	dimension int
	timeout   time.Duration
}

var _ embeddings.Provider = (*Provider)(nil)

// Config contains configuration for the OpenAI provider.
type Config struct {
	APIKey  string
	BaseURL string // Optional custom base URL

	// Model is the embedding model, text-embedding-3-small or
	// text-embedding-3-large.
	Model string

	// Dimension overrides the model's native dimension. The v3 models
	// support server-side truncation to smaller dimensions.
	Dimension int

	// Timeout bounds each API request.
	// Default: 60s
	Timeout time.Duration
}

// New creates a new OpenAI embedding provider.
func New(cfg Config) (*Provider, error) {
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("OpenAI API key is required")
	}
	if cfg.Model == "" {
		cfg.Model = "text-embedding-3-small"
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 60 * time.Second
	}

	config := openai.DefaultConfig(cfg.APIKey)
	if cfg.BaseURL != "" {
		config.BaseURL = cfg.BaseURL
	}

	dimension := cfg.Dimension
	if dimension <= 0 {
		dimension = modelDimension(cfg.Model)
	}

	return &Provider{
		client:    openai.NewClientWithConfig(config),
		model:     cfg.Model,
		dimension: dimension,
		timeout:   cfg.Timeout,
	}, nil
}

func modelDimension(model string) int {
	switch model {
	case "text-embedding-3-small":
		return 1536
	case "text-embedding-3-large":
		return 3072
	case "text-embedding-ada-002":
		return 1536
	default:
		return 1536
	}
}

// Name returns the provider name.
func (p *Provider) Name() string {
	return "openai"
}

// Dimension returns the embedding dimension for the configured model.
func (p *Provider) Dimension() int {
	return p.dimension
}

// MaxBatchSize returns the maximum number of texts per batch.
func (p *Provider) MaxBatchSize() int {
	return 2048 // OpenAI supports up to 2048 inputs per request
}

// Embed generates an embedding for a single text.
func (p *Provider) Embed(ctx context.Context, text string) ([]float32, error) {
	results, err := p.EmbedBatch(ctx, []string{text})
	if err != nil {
		return nil, err
	}
	if len(results) == 0 {
		return nil, fmt.Errorf("no embedding returned")
	}
	return results[0], nil
}

// EmbedBatch generates embeddings for multiple texts.
func (p *Provider) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, nil
	}

	ctx, cancel := context.WithTimeout(ctx, p.timeout)
	defer cancel()

	req := openai.EmbeddingRequest{
		Input: texts,
		Model: openai.EmbeddingModel(p.model),
	}
	// Only request truncation when deviating from the model's native size
	if p.dimension != modelDimension(p.model) {
		req.Dimensions = p.dimension
	}

	resp, err := p.client.CreateEmbeddings(ctx, req)
	if err != nil {
		return nil, fmt.Errorf("failed to create embeddings: %w", err)
	}
	if len(resp.Data) != len(texts) {
		return nil, fmt.Errorf("embedding count mismatch: sent %d texts, got %d embeddings", len(texts), len(resp.Data))
	}

	results := make([][]float32, len(resp.Data))
	for _, data := range resp.Data {
		if data.Index < 0 || data.Index >= len(results) {
			return nil, fmt.Errorf("embedding index %d out of range", data.Index)
		}
		results[data.Index] = data.Embedding
	}

	return results, nil
}
