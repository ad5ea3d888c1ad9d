package embedding

import (
	"context"
	"fmt"
	"sort"

	openai "github.com/sashabaranov/go-openai"
)

// DefaultOpenAIModel is used when no model is configured.
const DefaultOpenAIModel = string(openai.SmallEmbedding3)

// OpenAIConfig configures the OpenAI-compatible embedder.
type OpenAIConfig struct {
	APIKey     string
	BaseURL    string
	Model      string
	Dimensions int
}

// OpenAIEmbedder calls the embeddings endpoint of an OpenAI-compatible API.
type OpenAIEmbedder struct {
	client     *openai.Client
	model      openai.EmbeddingModel
	dimensions int
}

// NewOpenAIEmbedder creates an embedder. Dimensions is sent to the API so
// models that support shortening return vectors of the configured size.
func NewOpenAIEmbedder(cfg OpenAIConfig) (*OpenAIEmbedder, error) {
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("OpenAI API key is required")
	}
	if cfg.Dimensions <= 0 {
		return nil, fmt.Errorf("embedding dimension must be positive")
	}
	if cfg.Model == "" {
		cfg.Model = DefaultOpenAIModel
	}

	clientCfg := openai.DefaultConfig(cfg.APIKey)
	if cfg.BaseURL != "" {
		clientCfg.BaseURL = cfg.BaseURL
	}
	return &OpenAIEmbedder{
		client:     openai.NewClientWithConfig(clientCfg),
		model:      openai.EmbeddingModel(cfg.Model),
		dimensions: cfg.Dimensions,
	}, nil
}

func (e *OpenAIEmbedder) Dimension() int { return e.dimensions }

func (e *OpenAIEmbedder) Model() string { return string(e.model) }

// Embed implements Embedder with a single batched request.
func (e *OpenAIEmbedder) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, nil
	}
	resp, err := e.client.CreateEmbeddings(ctx, openai.EmbeddingRequestStrings{
		Input:      texts,
		Model:      e.model,
		Dimensions: e.dimensions,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create embeddings: %w", err)
	}

	data := resp.Data
	sort.Slice(data, func(i, j int) bool { return data[i].Index < data[j].Index })
	vectors := make([][]float32, len(data))
	for i, d := range data {
		vectors[i] = d.Embedding
	}
	if err := checkVectors(vectors, len(texts), e.dimensions); err != nil {
		return nil, err
	}
	return vectors, nil
}
