package cliplib

import (
	"context"
	"fmt"
	"hash/fnv"
	"net/http"
	"time"

	chromem "github.com/philippgille/chromem-go"
	"github.com/tmc/langchaingo/embeddings"
	"github.com/tmc/langchaingo/llms/ollama"
)

// NewOllamaEmbedding returns an embedding function backed by an Ollama
// embedding model.
func NewOllamaEmbedding(baseURL, model string, timeout time.Duration) (chromem.EmbeddingFunc, error) {
	opts := []ollama.Option{
		ollama.WithModel(model),
		ollama.WithHTTPClient(&http.Client{Timeout: timeout}),
	}
	if baseURL != "" {
		opts = append(opts, ollama.WithServerURL(baseURL))
	}

	llm, err := ollama.New(opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to create ollama client: %w", err)
	}
	embedder, err := embeddings.NewEmbedder(llm)
	if err != nil {
		return nil, fmt.Errorf("failed to create embedder: %w", err)
	}

	return func(ctx context.Context, text string) ([]float32, error) {
		vec, err := embedder.EmbedQuery(ctx, text)
		if err != nil {
			return nil, fmt.Errorf("failed to embed text: %w", err)
		}
		return vec, nil
	}, nil
}

// HashEmbedding returns a deterministic embedding function. Equal texts map
// to equal vectors; it needs no model server.
func HashEmbedding(dimensions int) chromem.EmbeddingFunc {
	if dimensions <= 0 {
		dimensions = 64
	}
	return func(_ context.Context, text string) ([]float32, error) {
		h := fnv.New32a()
		h.Write([]byte(text))
		seed := h.Sum32()

		vec := make([]float32, dimensions)
		for i := range vec {
			seed = seed*1664525 + 1013904223 // LCG
			vec[i] = float32(seed%1000)/1000.0 - 0.5
		}
		return vec, nil
	}
}
