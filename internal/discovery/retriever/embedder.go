package retriever

import (
	"context"
	"fmt"

	"manifold/internal/llm"
)

// HTTPEmbedder adapts manifold's OpenAI-compatible embeddings endpoint
// (internal/llm.FetchEmbeddings) to the Embedder interface the Qdrant-backed
// semantic leg needs.
type HTTPEmbedder struct {
	Host   string
	APIKey string
	Model  string
}

func (e *HTTPEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	vectors, err := llm.FetchEmbeddings(e.Host, llm.EmbeddingRequest{
		Input:          []string{text},
		Model:          e.Model,
		EncodingFormat: "float",
	}, e.APIKey)
	if err != nil {
		return nil, fmt.Errorf("fetch embedding: %w", err)
	}
	if len(vectors) == 0 {
		return nil, fmt.Errorf("embedding service returned no vectors")
	}
	return vectors[0], nil
}
