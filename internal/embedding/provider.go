// Package embedding implements the Embedding Worker (C5, spec.md §4.4):
// a budget-gated selector that turns pending Items into vectors.
package embedding

import (
	"context"

	"github.com/pgvector/pgvector-go"
)

// Provider generates vector embeddings from text. Mirrors the interface
// shape used across the retrieval pack's embedding integrations so a
// provider can be swapped without touching the worker.
type Provider interface {
	// Embed generates a single embedding vector from text.
	Embed(ctx context.Context, text string) (pgvector.Vector, error)
	// Model identifies the embedding model for Item.embedding_model.
	Model() string
	// Dimensions returns the embedding vector dimensionality (1024 or 1536,
	// spec.md §6).
	Dimensions() int
}

// EstimateTokens approximates token usage as ceil(len(text)/4)
// (spec.md §4.4).
func EstimateTokens(text string) int {
	if len(text) == 0 {
		return 0
	}
	return (len(text) + 3) / 4
}
