package tfidf

import (
	"context"
	"errors"
	"math"
	"regexp"
	"sort"
	"strings"

	"github.com/tmc/langchaingo/embeddings"
)

// Embedder is an offline TF-IDF vectorizer. It has no vector space of its
// own until Fit builds one from the corpus being indexed.
type Embedder struct {
	tokenPattern *regexp.Regexp
	stopwords    map[string]struct{}
}

// NewEmbedder creates an unfitted TF-IDF embedder.
func NewEmbedder() *Embedder {
	return &Embedder{
		tokenPattern: regexp.MustCompile(`\p{L}+(?:['’]\p{L}+)*|\p{N}+`),
		stopwords:    defaultStopwords(),
	}
}

// Fit builds the vocabulary and IDF values from corpus and returns an
// embedder bound to them.
func (e *Embedder) Fit(corpus []string) (embeddings.Embedder, error) {
	if len(corpus) == 0 {
		return nil, errors.New("empty corpus for TF-IDF fit")
	}
	// Build vocabulary and document frequencies
	df := make(map[string]int)
	for _, text := range corpus {
		seen := make(map[string]struct{})
		for _, tok := range e.tokenize(text) {
			if _, ok := seen[tok]; ok {
				continue
			}
			seen[tok] = struct{}{}
			df[tok]++
		}
	}
	// Create stable ordering for vocabulary
	terms := make([]string, 0, len(df))
	for term := range df {
		terms = append(terms, term)
	}
	sort.Strings(terms)
	f := &Fitted{
		parent:     e,
		vocabulary: make(map[string]int, len(terms)),
		idf:        make([]float64, len(terms)),
	}
	n := float64(len(corpus))
	for i, term := range terms {
		f.vocabulary[term] = i
		// Smoothed IDF
		f.idf[i] = math.Log((1+n)/(1+float64(df[term]))) + 1.0
	}
	return f, nil
}

// EmbedDocuments fits on texts and embeds them. Prefer Fit when the query
// side needs the same vector space.
func (e *Embedder) EmbedDocuments(ctx context.Context, texts []string) ([][]float32, error) {
	f, err := e.Fit(texts)
	if err != nil {
		return nil, err
	}
	return f.EmbedDocuments(ctx, texts)
}

// EmbedQuery always fails: an unfitted embedder has no vocabulary.
func (e *Embedder) EmbedQuery(context.Context, string) ([]float32, error) {
	return nil, errors.New("tfidf embedder not fitted")
}

func (e *Embedder) tokenize(text string) []string {
	raw := e.tokenPattern.FindAllString(strings.ToLower(text), -1)
	if len(raw) == 0 {
		return nil
	}
	out := raw[:0]
	for _, t := range raw {
		if _, isStop := e.stopwords[t]; isStop {
			continue
		}
		out = append(out, t)
	}
	return out
}

// Fitted embeds text in the vector space of one corpus. The last dimension
// collects out-of-vocabulary text so no vector is ever all zeros.
type Fitted struct {
	parent     *Embedder
	vocabulary map[string]int
	idf        []float64
}

// Dimension returns the dimensionality of the produced embedding vectors.
func (f *Fitted) Dimension() int { return len(f.idf) + 1 }

// EmbedDocuments implements embeddings.Embedder.
func (f *Fitted) EmbedDocuments(_ context.Context, texts []string) ([][]float32, error) {
	out := make([][]float32, len(texts))
	for i, t := range texts {
		out[i] = f.embed(t)
	}
	return out, nil
}

// EmbedQuery implements embeddings.Embedder.
func (f *Fitted) EmbedQuery(_ context.Context, text string) ([]float32, error) {
	return f.embed(text), nil
}

func (f *Fitted) embed(text string) []float32 {
	vec := make([]float64, f.Dimension())
	tf := make(map[int]int)
	total := 0
	for _, tok := range f.parent.tokenize(text) {
		if idx, ok := f.vocabulary[tok]; ok {
			tf[idx]++
			total++
		}
	}
	if total == 0 {
		vec[len(vec)-1] = 1
		return toFloat32(vec)
	}
	for idx, count := range tf {
		vec[idx] = float64(count) / float64(total) * f.idf[idx]
	}
	// L2 normalize
	norm := 0.0
	for _, v := range vec {
		norm += v * v
	}
	norm = math.Sqrt(norm)
	for i := range vec {
		vec[i] /= norm
	}
	return toFloat32(vec)
}

func toFloat32(v []float64) []float32 {
	out := make([]float32, len(v))
	for i, x := range v {
		out[i] = float32(x)
	}
	return out
}

func defaultStopwords() map[string]struct{} {
	words := []string{
		"a", "an", "the", "and", "or", "but", "if", "then", "else", "for", "to", "of", "in", "on", "at", "by", "with", "as", "is", "are", "was", "were", "be", "been", "being", "it", "this", "that", "these", "those", "from", "up", "down", "over", "under", "again", "further", "than", "so", "such", "into", "about", "between", "through", "during", "before", "after", "above", "below", "out", "off", "own", "same", "too", "very", "can", "will", "just", "don", "should", "now",
		"what", "which", "who", "how", "does", "do", "did",
	}
	m := make(map[string]struct{}, len(words))
	for _, w := range words {
		m[w] = struct{}{}
	}
	return m
}
