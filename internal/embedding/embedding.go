// Package embedding turns text into fixed-length vectors.
package embedding

import (
	"context"
	"errors"
	"fmt"
)

// ErrDimensionMismatch is returned when a provider yields vectors of a length
// other than the one it was configured for.
var ErrDimensionMismatch = errors.New("embedding dimension mismatch")

// Embedder produces one vector per input text. Ingestion and querying must use
// the same Embedder configuration.
type Embedder interface {
	Embed(ctx context.Context, texts []string) ([][]float32, error)
	Dimension() int
	Model() string
}

// EmbedOne is a convenience wrapper for single-text queries.
func EmbedOne(ctx context.Context, e Embedder, text string) ([]float32, error) {
	vectors, err := e.Embed(ctx, []string{text})
	if err != nil {
		return nil, err
	}
	if len(vectors) != 1 {
		return nil, fmt.Errorf("embedding count mismatch: got %d, want 1", len(vectors))
	}
	return vectors[0], nil
}

func checkVectors(vectors [][]float32, want, dim int) error {
	if len(vectors) != want {
		return fmt.Errorf("embedding count mismatch: got %d, want %d", len(vectors), want)
	}
	for _, v := range vectors {
		if len(v) != dim {
			return fmt.Errorf("%w: got %d, want %d", ErrDimensionMismatch, len(v), dim)
		}
	}
	return nil
}
