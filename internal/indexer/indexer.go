package indexer

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/tmc/langchaingo/embeddings"

	"pdfchat/internal/domain"
	"pdfchat/internal/embedding"
	"pdfchat/internal/vectorstore"
)

// Indexer embeds chunks and hands them to a vector store backend.
type Indexer struct {
	embedder embeddings.Embedder
	backend  vectorstore.Backend
}

// New creates an Indexer.
func New(embedder embeddings.Embedder, backend vectorstore.Backend) *Indexer {
	return &Indexer{embedder: embedder, backend: backend}
}

// Build embeds every chunk and returns a fresh index over them. Indexes built
// earlier are left untouched.
func (ix *Indexer) Build(ctx context.Context, chunks []domain.Chunk) (domain.Index, error) {
	if len(chunks) == 0 {
		return nil, vectorstore.ErrEmptyIndex
	}
	texts := make([]string, len(chunks))
	for i, c := range chunks {
		texts[i] = c.Text
	}

	emb := ix.embedder
	if f, ok := emb.(embedding.Fitter); ok {
		fitted, err := f.Fit(texts)
		if err != nil {
			return nil, fmt.Errorf("fit embedder: %w", err)
		}
		emb = fitted
	}

	started := time.Now()
	vectors, err := emb.EmbedDocuments(ctx, texts)
	if err != nil {
		return nil, fmt.Errorf("embed chunks: %w", err)
	}
	if len(vectors) != len(chunks) {
		return nil, fmt.Errorf("embed chunks: got %d vectors for %d chunks", len(vectors), len(chunks))
	}
	log.Debug().Int("chunks", len(chunks)).Dur("took", time.Since(started)).Msg("Embedded chunks")

	idx, err := ix.backend.Build(ctx, chunks, vectors)
	if err != nil {
		return nil, fmt.Errorf("build vector index: %w", err)
	}
	return &Index{
		embedder: emb,
		store:    idx,
		lexical:  newLexical(chunks),
	}, nil
}

// Index answers nearest-neighbour queries for one processed document set.
type Index struct {
	embedder embeddings.Embedder
	store    vectorstore.Index
	lexical  *lexical
}

// Nearest embeds query and returns up to k chunks. When the vector search
// finds nothing similar at all, chunks are ranked by word overlap instead.
func (x *Index) Nearest(ctx context.Context, query string, k int) ([]domain.SearchResult, error) {
	vec, err := x.embedder.EmbedQuery(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("embed query: %w", err)
	}
	res, err := x.store.Search(ctx, vec, k)
	if err != nil {
		return nil, fmt.Errorf("search index: %w", err)
	}
	if allZero(res) {
		log.Debug().Msg("Vector search found no signal, falling back to lexical ranking")
		return x.lexical.rank(query, vectorstore.ClampTopK(k, x.store.Len())), nil
	}
	return res, nil
}

// Len returns the number of indexed chunks.
func (x *Index) Len() int { return x.store.Len() }

// Close releases the underlying vector index.
func (x *Index) Close() error { return x.store.Close() }

func allZero(res []domain.SearchResult) bool {
	for _, r := range res {
		if r.Score > 1e-9 {
			return false
		}
	}
	return true
}
