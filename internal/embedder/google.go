package embedder

import (
	"context"
	"fmt"

	"document-rag-platform/internal/config"

	"github.com/google/generative-ai-go/genai"
	"google.golang.org/api/option"
)

// GoogleProvider embeds through the Google Generative AI API
// (text-embedding-004 by default).
type GoogleProvider struct {
	client    *genai.Client
	model     string
	dimension int
}

func NewGoogleProvider(cfg *config.Config) (*GoogleProvider, error) {
	if cfg.GeminiAPIKey == "" {
		return nil, fmt.Errorf("missing GEMINI_API_KEY for embeddings")
	}
	client, err := genai.NewClient(context.Background(), option.WithAPIKey(cfg.GeminiAPIKey))
	if err != nil {
		return nil, err
	}
	return &GoogleProvider{
		client:    client,
		model:     cfg.GoogleEmbeddingsModel,
		dimension: cfg.VectorDimensions,
	}, nil
}

func (p *GoogleProvider) Name() string   { return "google" }
func (p *GoogleProvider) Model() string  { return p.model }
func (p *GoogleProvider) Dimension() int { return p.dimension }

func (p *GoogleProvider) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	em := p.client.EmbeddingModel(p.model)
	batch := em.NewBatch()
	for _, text := range texts {
		batch.AddContent(genai.Text(text))
	}

	resp, err := em.BatchEmbedContents(ctx, batch)
	if err != nil {
		return nil, err
	}
	if resp == nil || len(resp.Embeddings) == 0 {
		return nil, fmt.Errorf("no embeddings returned")
	}

	vectors := make([][]float32, len(resp.Embeddings))
	for i, emb := range resp.Embeddings {
		if emb == nil {
			return nil, fmt.Errorf("empty embedding at index %d", i)
		}
		vectors[i] = emb.Values
	}
	return vectors, nil
}

func (p *GoogleProvider) Close() error {
	if p.client != nil {
		return p.client.Close()
	}
	return nil
}
