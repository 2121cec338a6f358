// Package embedding defines the text-to-vector port and its retry policy.
package embedding

import "context"

// DefaultDimension is the vector size produced by text-embedding-3-small.
const DefaultDimension = 1536

// Embedder converts texts into fixed-dimension vectors, one per input, same order.
type Embedder interface {
	Name() string
	Dimension() int
	Embed(ctx context.Context, texts []string) ([][]float32, error)
}

// EmbedOne embeds a single text with one call.
func EmbedOne(ctx context.Context, e Embedder, text string) ([]float32, error) {
	vecs, err := e.Embed(ctx, []string{text})
	if err != nil {
		return nil, err
	}
	return vecs[0], nil
}
