package vectorstore

import (
	"context"
	"errors"
	"fmt"

	"pdfchat/internal/domain"
)

// Backend builds a new, independent similarity index from pre-computed
// vectors. Building never touches indexes built earlier.
type Backend interface {
	Build(ctx context.Context, chunks []domain.Chunk, vectors [][]float32) (Index, error)
}

// Index is a built vector index.
type Index interface {
	// Search returns up to topK chunks ordered by descending similarity.
	Search(ctx context.Context, vector []float32, topK int) ([]domain.SearchResult, error)
	Len() int
	// Close releases whatever the backend holds for this index.
	Close() error
}

// ErrEmptyIndex is returned when Build is called without chunks.
var ErrEmptyIndex = errors.New("cannot build an index without chunks")

// CheckInput validates the shape of a Build call and returns the common
// vector dimension.
func CheckInput(chunks []domain.Chunk, vectors [][]float32) (int, error) {
	if len(chunks) == 0 {
		return 0, ErrEmptyIndex
	}
	if len(chunks) != len(vectors) {
		return 0, fmt.Errorf("chunks and vectors length mismatch: %d != %d", len(chunks), len(vectors))
	}
	dim := len(vectors[0])
	if dim == 0 {
		return 0, errors.New("empty embedding vector")
	}
	for i, v := range vectors {
		if len(v) != dim {
			return 0, fmt.Errorf("vector %d has dimension %d, want %d", i, len(v), dim)
		}
	}
	return dim, nil
}

// ClampTopK bounds k to [1, n]; it returns 0 when n is 0.
func ClampTopK(k, n int) int {
	if k <= 0 {
		k = 4
	}
	if k > n {
		k = n
	}
	return k
}
