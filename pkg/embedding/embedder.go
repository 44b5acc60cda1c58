// Package embedding produces fixed-dimension vectors for text, the
// shared representation that both the document and image collections of
// a VectorStore are indexed in.
package embedding

import "context"

// TextEmbedder turns text into vectors. All vectors from one instance
// share a dimension, discoverable by calling EmbedQuery on a sentinel
// and measuring the result; a query embedding and a passage embedding of
// the same text must be near-identical (cosine similarity close to 1) —
// callers may use either path interchangeably for the same text.
type TextEmbedder interface {
	// EmbedQuery embeds a single search query.
	EmbedQuery(ctx context.Context, text string) ([]float32, error)

	// EmbedPassages embeds a batch of passages (chunk contents or image
	// captions) in one call, preserving order.
	EmbedPassages(ctx context.Context, texts []string) ([][]float32, error)

	// Dimension returns the vector length this embedder produces.
	Dimension(ctx context.Context) (int, error)
}
