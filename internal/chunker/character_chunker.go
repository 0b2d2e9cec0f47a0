package chunker

import (
	"fmt"
	"strings"

	"pdfchat/internal/domain"
)

// Config configures how corpus text is split into chunks. Sizes are counted
// in characters (runes), not bytes or tokens.
type Config struct {
	Separator    string
	ChunkSize    int
	ChunkOverlap int
}

// CharacterChunker splits text into fixed-size windows with overlap,
// preferring to end a window right after a separator.
type CharacterChunker struct {
	separator []rune
	size      int
	overlap   int
}

// New validates cfg and returns a chunker.
func New(cfg Config) (*CharacterChunker, error) {
	if cfg.ChunkSize <= 0 {
		return nil, fmt.Errorf("%w: chunk size must be greater than zero, got %d", domain.ErrInvalidChunkConfig, cfg.ChunkSize)
	}
	if cfg.ChunkOverlap < 0 {
		return nil, fmt.Errorf("%w: chunk overlap cannot be negative, got %d", domain.ErrInvalidChunkConfig, cfg.ChunkOverlap)
	}
	if cfg.ChunkOverlap >= cfg.ChunkSize {
		return nil, fmt.Errorf("%w: chunk overlap %d must be smaller than chunk size %d", domain.ErrInvalidChunkConfig, cfg.ChunkOverlap, cfg.ChunkSize)
	}
	return &CharacterChunker{
		separator: []rune(cfg.Separator),
		size:      cfg.ChunkSize,
		overlap:   cfg.ChunkOverlap,
	}, nil
}

// Split returns the chunks covering text in order. Every chunk after the
// first starts ChunkOverlap characters before the previous chunk's end.
func (c *CharacterChunker) Split(text string) []domain.Chunk {
	runes := []rune(text)
	n := len(runes)
	if n == 0 {
		return nil
	}
	var chunks []domain.Chunk
	start, overlap := 0, 0
	for {
		end := start + c.size
		if end >= n {
			end = n
		} else if b := c.boundary(runes, start, end); b > 0 {
			end = b
		}
		chunks = append(chunks, domain.Chunk{
			Index:   len(chunks),
			Text:    string(runes[start:end]),
			Start:   start,
			End:     end,
			Overlap: overlap,
		})
		if end == n {
			return chunks
		}
		start = end - c.overlap
		overlap = c.overlap
	}
}

// boundary returns the offset just past the last separator inside
// runes[start:end] that still leaves the chunk longer than the overlap,
// or -1 if there is none.
func (c *CharacterChunker) boundary(runes []rune, start, end int) int {
	k := len(c.separator)
	if k == 0 {
		return -1
	}
	for e := end; e > start+c.overlap && e-k >= start; e-- {
		if equalRunes(runes[e-k:e], c.separator) {
			return e
		}
	}
	return -1
}

func equalRunes(a, b []rune) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

// Reassemble concatenates chunks, dropping each chunk's declared overlap.
// For chunks produced by Split it returns the original text.
func Reassemble(chunks []domain.Chunk) string {
	var b strings.Builder
	for _, ch := range chunks {
		r := []rune(ch.Text)
		skip := ch.Overlap
		if skip > len(r) {
			skip = len(r)
		}
		b.WriteString(string(r[skip:]))
	}
	return b.String()
}
