package embedder

import (
	"context"

	"document-rag-platform/internal/config"

	"github.com/tmc/langchaingo/embeddings"
	"github.com/tmc/langchaingo/llms/openai"
)

// OpenAIProvider embeds through an OpenAI-compatible API, including local
// services that accept any token.
type OpenAIProvider struct {
	embedder  embeddings.Embedder
	model     string
	dimension int
}

func NewOpenAIProvider(cfg *config.Config) (*OpenAIProvider, error) {
	token := cfg.OpenAIAPIKey
	if token == "" {
		// Local OpenAI-compatible services ignore the token but the
		// client requires one.
		token = "none"
	}

	opts := []openai.Option{
		openai.WithToken(token),
		openai.WithEmbeddingModel(cfg.OpenAIEmbeddingsModel),
	}
	if cfg.OpenAIBaseURL != "" {
		opts = append(opts, openai.WithBaseURL(cfg.OpenAIBaseURL))
	}

	client, err := openai.New(opts...)
	if err != nil {
		return nil, err
	}

	embedder, err := embeddings.NewEmbedder(client, embeddings.WithStripNewLines(true))
	if err != nil {
		return nil, err
	}

	return &OpenAIProvider{
		embedder:  embedder,
		model:     cfg.OpenAIEmbeddingsModel,
		dimension: cfg.VectorDimensions,
	}, nil
}

func (p *OpenAIProvider) Name() string   { return "openai" }
func (p *OpenAIProvider) Model() string  { return p.model }
func (p *OpenAIProvider) Dimension() int { return p.dimension }

func (p *OpenAIProvider) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	return p.embedder.EmbedDocuments(ctx, texts)
}
