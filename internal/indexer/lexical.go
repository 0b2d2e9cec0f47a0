package indexer

import (
	"math"
	"regexp"
	"sort"
	"strings"

	"pdfchat/internal/domain"
)

var wordRe = regexp.MustCompile(`\p{L}+(?:['’]\p{L}+)*|\p{N}+`)

// lexical ranks chunks by the Ochiai coefficient of their word sets.
type lexical struct {
	chunks []domain.Chunk
	words  []map[string]struct{}
}

func newLexical(chunks []domain.Chunk) *lexical {
	l := &lexical{
		chunks: append([]domain.Chunk(nil), chunks...),
		words:  make([]map[string]struct{}, len(chunks)),
	}
	for i, c := range chunks {
		l.words[i] = wordSet(c.Text)
	}
	return l
}

func (l *lexical) rank(query string, k int) []domain.SearchResult {
	q := wordSet(query)
	out := make([]domain.SearchResult, len(l.chunks))
	for i, c := range l.chunks {
		out[i] = domain.SearchResult{Chunk: c, Score: ochiai(q, l.words[i])}
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].Score > out[j].Score })
	if k > len(out) {
		k = len(out)
	}
	return out[:k]
}

func wordSet(s string) map[string]struct{} {
	tokens := wordRe.FindAllString(strings.ToLower(s), -1)
	m := make(map[string]struct{}, len(tokens))
	for _, t := range tokens {
		m[t] = struct{}{}
	}
	return m
}

// ochiai returns |A∩B| / sqrt(|A||B|).
func ochiai(a, b map[string]struct{}) float64 {
	if len(a) == 0 || len(b) == 0 {
		return 0
	}
	inter := 0
	for t := range a {
		if _, ok := b[t]; ok {
			inter++
		}
	}
	return float64(inter) / math.Sqrt(float64(len(a))*float64(len(b)))
}
