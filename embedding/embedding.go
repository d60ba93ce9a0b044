// Package embedding turns text into vectors for similarity search.
//
// Embedders are external collaborators of the search service: OpenAI calls
// the hosted embeddings API, Hashing is a deterministic offline embedder for
// demos and tests.
package embedding

import (
	"context"
	"errors"
	"fmt"
)

// ErrEmptyResponse is returned when a provider returns no embedding.
var ErrEmptyResponse = errors.New("embedding: provider returned no embeddings")

// Embedder converts text to a fixed-dimension vector.
type Embedder interface {
	// Embed returns the embedding of text.
	Embed(ctx context.Context, text string) ([]float32, error)
	// Dimension returns the length of every embedding.
	Dimension() int
}

// BatchEmbedder is implemented by embedders that embed many texts per call.
type BatchEmbedder interface {
	Embedder
	// EmbedBatch returns one embedding per text, in input order.
	EmbedBatch(ctx context.Context, texts []string) ([][]float32, error)
}

// EmbedAll embeds texts with a single batch call when e supports it and one
// call per text otherwise.
func EmbedAll(ctx context.Context, e Embedder, texts []string) ([][]float32, error) {
	if be, ok := e.(BatchEmbedder); ok {
		return be.EmbedBatch(ctx, texts)
	}
	out := make([][]float32, len(texts))
	for i, text := range texts {
		vec, err := e.Embed(ctx, text)
		if err != nil {
			return nil, fmt.Errorf("embedding: text %d: %w", i, err)
		}
		out[i] = vec
	}
	return out, nil
}
