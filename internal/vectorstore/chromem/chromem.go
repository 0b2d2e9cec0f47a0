package chromem

import (
	"context"
	"errors"
	"fmt"
	"runtime"
	"strconv"

	"github.com/philippgille/chromem-go"

	"pdfchat/internal/domain"
	"pdfchat/internal/vectorstore"
)

const collectionName = "chunks"

// Backend builds one in-memory chromem database per index.
type Backend struct {
	concurrency int
}

// NewBackend returns a chromem backend that inserts with the given
// concurrency (defaults to the number of CPUs).
func NewBackend(concurrency int) *Backend {
	if concurrency <= 0 {
		concurrency = runtime.NumCPU()
	}
	return &Backend{concurrency: concurrency}
}

// precomputed refuses to embed: every document and query arrives with its
// vector already computed by the indexer.
func precomputed(context.Context, string) ([]float32, error) {
	return nil, errors.New("chromem: embeddings must be precomputed")
}

// Build implements vectorstore.Backend.
func (b *Backend) Build(ctx context.Context, chunks []domain.Chunk, vectors [][]float32) (vectorstore.Index, error) {
	if _, err := vectorstore.CheckInput(chunks, vectors); err != nil {
		return nil, err
	}
	db := chromem.NewDB()
	c, err := db.CreateCollection(collectionName, nil, precomputed)
	if err != nil {
		return nil, fmt.Errorf("failed to create collection: %v", err)
	}
	docs := make([]chromem.Document, len(chunks))
	byID := make(map[string]domain.Chunk, len(chunks))
	for i, ch := range chunks {
		id := strconv.Itoa(i)
		docs[i] = chromem.Document{
			ID:        id,
			Content:   ch.Text,
			Metadata:  map[string]string{"index": strconv.Itoa(ch.Index)},
			Embedding: vectors[i],
		}
		byID[id] = ch
	}
	if err := c.AddDocuments(ctx, docs, b.concurrency); err != nil {
		return nil, fmt.Errorf("failed to add documents: %w", err)
	}
	return &Index{db: db, collection: c, chunks: byID}, nil
}

// Index is a chromem collection holding one document set.
type Index struct {
	db         *chromem.DB
	collection *chromem.Collection
	chunks     map[string]domain.Chunk
}

// Search implements vectorstore.Index.
func (x *Index) Search(ctx context.Context, vector []float32, topK int) ([]domain.SearchResult, error) {
	n := vectorstore.ClampTopK(topK, x.collection.Count())
	if n == 0 {
		return nil, nil
	}
	res, err := x.collection.QueryEmbedding(ctx, vector, n, nil, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to query by similarity: %w", err)
	}
	out := make([]domain.SearchResult, 0, len(res))
	for _, r := range res {
		ch, ok := x.chunks[r.ID]
		if !ok {
			continue
		}
		out = append(out, domain.SearchResult{Chunk: ch, Score: float64(r.Similarity)})
	}
	return out, nil
}

// Len implements vectorstore.Index.
func (x *Index) Len() int { return x.collection.Count() }

// Close drops the collection.
func (x *Index) Close() error {
	if err := x.db.DeleteCollection(collectionName); err != nil {
		return fmt.Errorf("failed to drop collection: %v", err)
	}
	return nil
}
