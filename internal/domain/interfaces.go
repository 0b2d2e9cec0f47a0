package domain

import "context"

// Upload is one file handed to the application, in upload order.
type Upload struct {
	Name string
	Data []byte
}

// Chunk is a contiguous slice of the corpus text used as a retrieval unit.
// Start and End are rune offsets into the corpus; Overlap is the number of
// leading runes shared with the previous chunk.
type Chunk struct {
	Index   int    `json:"index"`
	Text    string `json:"text"`
	Start   int    `json:"start"`
	End     int    `json:"end"`
	Overlap int    `json:"overlap"`
}

// SearchResult represents a matching chunk with a relevance score.
type SearchResult struct {
	Chunk Chunk   `json:"chunk"`
	Score float64 `json:"score"`
}

// Role tags a dialogue message with its author.
type Role string

const (
	RoleSystem    Role = "system"
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// Message is one side of a dialogue turn.
type Message struct {
	Role    Role   `json:"role"`
	Content string `json:"content"`
}

// Index is a built, immutable similarity index over chunks.
type Index interface {
	// Nearest returns up to k chunks ordered from most to least similar.
	Nearest(ctx context.Context, query string, k int) ([]SearchResult, error)
	Len() int
	Close() error
}

// Chunker splits corpus text into chunks suitable for retrieval indexing.
type Chunker interface {
	Split(text string) []Chunk
}

// Summarizer produces a brief summary of the provided text.
type Summarizer interface {
	Summarize(text string, maxSentences int) (string, error)
}
