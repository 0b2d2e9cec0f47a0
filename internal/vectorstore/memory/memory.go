package memory

import (
	"context"
	"fmt"
	"math"
	"sort"

	"pdfchat/internal/domain"
	"pdfchat/internal/vectorstore"
)

// Backend builds in-memory indexes searched by brute-force cosine similarity.
type Backend struct{}

// NewBackend returns the brute-force backend.
func NewBackend() *Backend { return &Backend{} }

// Build implements vectorstore.Backend.
func (Backend) Build(_ context.Context, chunks []domain.Chunk, vectors [][]float32) (vectorstore.Index, error) {
	dim, err := vectorstore.CheckInput(chunks, vectors)
	if err != nil {
		return nil, err
	}
	s := &Storage{
		dimension: dim,
		chunks:    append([]domain.Chunk(nil), chunks...),
		vectors:   make([][]float32, len(vectors)),
	}
	for i, v := range vectors {
		s.vectors[i] = normalize(v)
	}
	return s, nil
}

// Storage is one built in-memory index. It is never mutated after Build.
type Storage struct {
	dimension int
	vectors   [][]float32
	chunks    []domain.Chunk
}

// Search implements vectorstore.Index.
func (s *Storage) Search(_ context.Context, vector []float32, topK int) ([]domain.SearchResult, error) {
	if len(vector) != s.dimension {
		return nil, fmt.Errorf("query dimension %d does not match index dimension %d", len(vector), s.dimension)
	}
	q := normalize(vector)
	scores := make([]float64, len(s.vectors))
	for i := range s.vectors {
		scores[i] = dot(s.vectors[i], q)
	}
	idxs := make([]int, len(scores))
	for i := range idxs {
		idxs[i] = i
	}
	sort.SliceStable(idxs, func(a, b int) bool { return scores[idxs[a]] > scores[idxs[b]] })
	topK = vectorstore.ClampTopK(topK, len(idxs))
	results := make([]domain.SearchResult, 0, topK)
	for _, j := range idxs[:topK] {
		results = append(results, domain.SearchResult{Chunk: s.chunks[j], Score: scores[j]})
	}
	return results, nil
}

// Len implements vectorstore.Index.
func (s *Storage) Len() int { return len(s.chunks) }

// Close implements vectorstore.Index.
func (s *Storage) Close() error { return nil }

func normalize(v []float32) []float32 {
	norm := 0.0
	for _, x := range v {
		norm += float64(x) * float64(x)
	}
	out := make([]float32, len(v))
	if norm == 0 {
		return out
	}
	norm = math.Sqrt(norm)
	for i, x := range v {
		out[i] = float32(float64(x) / norm)
	}
	return out
}

func dot(a, b []float32) float64 {
	sum := 0.0
	for i := range a {
		sum += float64(a[i]) * float64(b[i])
	}
	return sum
}
