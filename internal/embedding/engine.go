// Package embedding turns text into vectors for semantic retrieval.
package embedding

import (
	"context"
	"errors"
	"math"
)

// Encoder generates vector embeddings for text. Implementations are safe for
// concurrent read-only use once constructed.
type Encoder interface {
	Embed(ctx context.Context, text string) ([]float32, error)
	Dimensions() int
	Name() string
}

var ErrDimensionMismatch = errors.New("vector dimension mismatch")

// CosineSimilarity returns a value in [-1, 1]; zero vectors score 0.
func CosineSimilarity(a, b []float32) (float64, error) {
	if len(a) != len(b) {
		return 0, ErrDimensionMismatch
	}
	var dot, na, nb float64
	for i := range a {
		x, y := float64(a[i]), float64(b[i])
		dot += x * y
		na += x * x
		nb += y * y
	}
	if na == 0 || nb == 0 {
		return 0, nil
	}
	return dot / (math.Sqrt(na) * math.Sqrt(nb)), nil
}
