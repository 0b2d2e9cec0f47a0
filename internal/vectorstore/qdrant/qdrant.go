package qdrant

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"pdfchat/internal/domain"
	"pdfchat/internal/vectorstore"
)

const upsertBatch = 256

// Config contains connection details for a Qdrant server.
type Config struct {
	URL     string
	APIKey  string
	Prefix  string
	Timeout time.Duration
}

// Backend is a minimal REST client to Qdrant. Every built index lives in
// its own collection, created with cosine distance.
type Backend struct {
	url    string
	apiKey string
	prefix string
	client *http.Client
}

// NewBackend returns a Qdrant backend.
func NewBackend(cfg Config) *Backend {
	timeout := cfg.Timeout
	if timeout == 0 {
		timeout = 15 * time.Second
	}
	prefix := cfg.Prefix
	if prefix == "" {
		prefix = "pdfchat"
	}
	return &Backend{
		url:    cfg.URL,
		apiKey: cfg.APIKey,
		prefix: prefix,
		client: &http.Client{Timeout: timeout},
	}
}

// Build implements vectorstore.Backend.
func (b *Backend) Build(ctx context.Context, chunks []domain.Chunk, vectors [][]float32) (vectorstore.Index, error) {
	dim, err := vectorstore.CheckInput(chunks, vectors)
	if err != nil {
		return nil, err
	}
	idx := &Index{backend: b, collection: b.prefix + "_" + uuid.NewString(), count: len(chunks)}
	body := map[string]any{
		"vectors": map[string]any{
			"size":     dim,
			"distance": "Cosine",
		},
	}
	if err := b.do(ctx, http.MethodPut, idx.path(""), body, nil); err != nil {
		return nil, err
	}
	for lo := 0; lo < len(chunks); lo += upsertBatch {
		hi := min(lo+upsertBatch, len(chunks))
		points := make([]map[string]any, 0, hi-lo)
		for i := lo; i < hi; i++ {
			points = append(points, map[string]any{
				"id":     uuid.NewString(),
				"vector": vectors[i],
				"payload": map[string]any{
					"index":   chunks[i].Index,
					"text":    chunks[i].Text,
					"start":   chunks[i].Start,
					"end":     chunks[i].End,
					"overlap": chunks[i].Overlap,
				},
			})
		}
		if err := b.do(ctx, http.MethodPut, idx.path("/points?wait=true"), map[string]any{"points": points}, nil); err != nil {
			if cerr := idx.Close(); cerr != nil {
				log.Warn().Err(cerr).Str("collection", idx.collection).Msg("Failed to drop partial collection")
			}
			return nil, err
		}
	}
	return idx, nil
}

// Index is one Qdrant collection.
type Index struct {
	backend    *Backend
	collection string
	count      int
}

func (x *Index) path(suffix string) string {
	return "/collections/" + url.PathEscape(x.collection) + suffix
}

// Search implements vectorstore.Index.
func (x *Index) Search(ctx context.Context, vector []float32, topK int) ([]domain.SearchResult, error) {
	req := map[string]any{
		"vector":       vector,
		"limit":        vectorstore.ClampTopK(topK, x.count),
		"with_payload": true,
	}
	var resp struct {
		Result []struct {
			Score   float64 `json:"score"`
			Payload struct {
				Index   int    `json:"index"`
				Text    string `json:"text"`
				Start   int    `json:"start"`
				End     int    `json:"end"`
				Overlap int    `json:"overlap"`
			} `json:"payload"`
		} `json:"result"`
	}
	if err := x.backend.do(ctx, http.MethodPost, x.path("/points/search"), req, &resp); err != nil {
		return nil, err
	}
	results := make([]domain.SearchResult, 0, len(resp.Result))
	for _, r := range resp.Result {
		p := r.Payload
		results = append(results, domain.SearchResult{
			Chunk: domain.Chunk{Index: p.Index, Text: p.Text, Start: p.Start, End: p.End, Overlap: p.Overlap},
			Score: r.Score,
		})
	}
	return results, nil
}

// Len implements vectorstore.Index.
func (x *Index) Len() int { return x.count }

// Close drops the collection.
func (x *Index) Close() error {
	return x.backend.do(context.Background(), http.MethodDelete, x.path(""), nil, nil)
}

func (b *Backend) do(ctx context.Context, method, path string, body, out any) error {
	var payload *bytes.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return err
		}
		payload = bytes.NewReader(data)
	} else {
		payload = bytes.NewReader(nil)
	}
	req, err := http.NewRequestWithContext(ctx, method, b.url+path, payload)
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	if b.apiKey != "" {
		req.Header.Set("api-key", b.apiKey)
	}
	resp, err := b.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		return fmt.Errorf("qdrant %s %s failed: %s", method, path, resp.Status)
	}
	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return errors.Join(errors.New("decode qdrant response"), err)
	}
	return nil
}
