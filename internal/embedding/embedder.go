// Package embedding turns text into fixed-length vectors for similarity
// search. Implementations are pluggable: a remote OpenAI embedder for
// production and a deterministic local embedder for tests and offline use.
package embedding

import "context"

// DefaultDimension matches text-embedding-3-small (vector(1536)).
const DefaultDimension = 1536

// Embedder generates fixed-length embedding vectors for text.
type Embedder interface {
	// Embed returns the embedding for a single text.
	Embed(ctx context.Context, text string) ([]float32, error)
	// EmbedBatch returns one embedding per input text, in order.
	EmbedBatch(ctx context.Context, texts []string) ([][]float32, error)
	// Dimension is the configured output dimensionality.
	Dimension() int
}

// PadToDimension normalizes vec to exactly dim entries. Shorter vectors
// are zero-padded, longer ones truncated, so every stored embedding fits
// the collection's vector(dim) column.
func PadToDimension(vec []float32, dim int) []float32 {
	if len(vec) == dim {
		return vec
	}
	out := make([]float32, dim)
	copy(out, vec)
	return out
}
