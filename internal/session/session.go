package session

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog/log"

	"pdfchat/internal/chat"
	"pdfchat/internal/domain"
	"pdfchat/internal/extract"
)

const (
	previewRunes  = 1000
	previewChunks = 3
)

// Extractor turns uploads into corpus text.
type Extractor interface {
	Extract(uploads []domain.Upload) (extract.Result, error)
}

// IndexBuilder embeds chunks into a new similarity index.
type IndexBuilder interface {
	Build(ctx context.Context, chunks []domain.Chunk) (domain.Index, error)
}

// Deps are the collaborators a session drives. They are shared between
// sessions and must be safe for concurrent use.
type Deps struct {
	Extractor  Extractor
	Chunker    domain.Chunker
	Indexer    IndexBuilder
	Summarizer domain.Summarizer
	Chat       chat.Model
}

// Options tune retrieval and prompting.
type Options struct {
	TopK             int
	CondenseQuestion bool
	// HistoryWindow is the number of most recent turns sent to the model;
	// 0 sends the whole history.
	HistoryWindow    int
	SummarySentences int
}

// State is the lifecycle state of a session.
type State int

const (
	Idle State = iota
	Ready
)

func (s State) String() string {
	if s == Ready {
		return "ready"
	}
	return "idle"
}

// SkippedDocument names an upload that contributed no text.
type SkippedDocument struct {
	Name   string `json:"name"`
	Reason string `json:"reason"`
}

// ProcessResult is what a successful Process reports back for display.
type ProcessResult struct {
	Preview     string                   `json:"preview"`
	ChunkCount  int                      `json:"chunk_count"`
	FirstChunks []string                 `json:"first_chunks"`
	Summary     string                   `json:"summary,omitempty"`
	Documents   []extract.DocumentReport `json:"documents"`
	Skipped     []SkippedDocument        `json:"skipped,omitempty"`
	Elapsed     time.Duration            `json:"elapsed_ns"`
}

// Answer is the model's reply together with the chunks it was grounded on.
type Answer struct {
	Text    string                `json:"answer"`
	Sources []domain.SearchResult `json:"sources"`
}

// Info is a snapshot of a session for listings.
type Info struct {
	ID        string    `json:"id"`
	CreatedAt time.Time `json:"created_at"`
	State     string    `json:"state"`
	Chunks    int       `json:"chunks"`
	Turns     int       `json:"turns"`
}

// Session is one conversation over one processed document set. Process and
// Ask are serialized; History and State may be called at any time.
type Session struct {
	id      string
	created time.Time
	deps    Deps
	opts    Options

	mu      sync.Mutex
	index   domain.Index
	corpus  string
	history []domain.Message
}

// New creates an Idle session.
func New(id string, deps Deps, opts Options) *Session {
	return &Session{id: id, created: time.Now(), deps: deps, opts: opts}
}

// ID returns the session identifier.
func (s *Session) ID() string { return s.id }

// State reports whether documents have been processed.
func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.stateLocked()
}

func (s *Session) stateLocked() State {
	if s.index == nil {
		return Idle
	}
	return Ready
}

// Info returns a snapshot of the session.
func (s *Session) Info() Info {
	s.mu.Lock()
	defer s.mu.Unlock()
	info := Info{
		ID:        s.id,
		CreatedAt: s.created,
		State:     s.stateLocked().String(),
		Turns:     len(s.history) / 2,
	}
	if s.index != nil {
		info.Chunks = s.index.Len()
	}
	return info
}

// History returns a copy of the dialogue so far.
func (s *Session) History() []domain.Message {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]domain.Message(nil), s.history...)
}

// Corpus returns the text of the last successful Process.
func (s *Session) Corpus() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.corpus
}

// Process extracts, chunks and indexes uploads. On success the new index
// replaces the previous one; on failure the session keeps its prior state.
func (s *Session) Process(ctx context.Context, uploads []domain.Upload) (ProcessResult, error) {
	if len(uploads) == 0 {
		return ProcessResult{}, domain.ErrNoDocuments
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	started := time.Now()
	extracted, err := s.deps.Extractor.Extract(uploads)
	if err != nil {
		return ProcessResult{}, err
	}
	chunks := s.deps.Chunker.Split(extracted.Corpus)
	if len(chunks) == 0 {
		return ProcessResult{}, domain.ErrNoText
	}
	index, err := s.deps.Indexer.Build(ctx, chunks)
	if err != nil {
		return ProcessResult{}, err
	}

	previous := s.index
	s.index = index
	s.corpus = extracted.Corpus
	if previous != nil {
		if err := previous.Close(); err != nil {
			log.Warn().Err(err).Str("session", s.id).Msg("Failed to release previous index")
		}
	}

	res := ProcessResult{
		Preview:    Preview(extracted.Corpus),
		ChunkCount: len(chunks),
		Documents:  extracted.Documents,
		Elapsed:    time.Since(started),
	}
	for i := 0; i < len(chunks) && i < previewChunks; i++ {
		res.FirstChunks = append(res.FirstChunks, chunks[i].Text)
	}
	for _, d := range extracted.Skipped() {
		res.Skipped = append(res.Skipped, SkippedDocument{Name: d.Name, Reason: d.Err.Error()})
	}
	if s.deps.Summarizer != nil {
		summary, err := s.deps.Summarizer.Summarize(extracted.Corpus, s.opts.SummarySentences)
		if err != nil {
			log.Warn().Err(err).Str("session", s.id).Msg("Summary failed")
		}
		res.Summary = summary
	}
	log.Info().
		Str("session", s.id).
		Int("documents", len(uploads)).
		Int("chunks", len(chunks)).
		Dur("elapsed", res.Elapsed).
		Msg("Processed documents")
	return res, nil
}

// Ask answers question from the processed documents and records the turn.
// A blank question returns ErrEmptyQuestion and changes nothing.
func (s *Session) Ask(ctx context.Context, question string) (Answer, error) {
	q := strings.TrimSpace(question)
	if q == "" {
		return Answer{}, domain.ErrEmptyQuestion
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.index == nil {
		return Answer{}, domain.ErrNotInitialized
	}

	history := s.window()
	lookup := q
	if s.opts.CondenseQuestion && len(history) > 0 {
		standalone, err := s.deps.Chat.Complete(ctx, chat.CondenseMessages(history, q))
		if err != nil {
			return Answer{}, fmt.Errorf("condense question: %w", err)
		}
		if t := strings.TrimSpace(standalone); t != "" {
			lookup = t
		}
		log.Debug().Str("session", s.id).Str("standalone", lookup).Msg("Condensed question")
	}

	sources, err := s.index.Nearest(ctx, lookup, s.opts.TopK)
	if err != nil {
		return Answer{}, fmt.Errorf("retrieve context: %w", err)
	}
	text, err := s.deps.Chat.Complete(ctx, chat.QAMessages(sources, history, q))
	if err != nil {
		return Answer{}, fmt.Errorf("chat completion: %w", err)
	}
	s.history = append(s.history,
		domain.Message{Role: domain.RoleUser, Content: q},
		domain.Message{Role: domain.RoleAssistant, Content: text},
	)
	log.Debug().Str("session", s.id).Int("sources", len(sources)).Int("turns", len(s.history)/2).Msg("Answered question")
	return Answer{Text: text, Sources: sources}, nil
}

// window returns the turns sent to the model.
func (s *Session) window() []domain.Message {
	n := s.opts.HistoryWindow * 2
	if n <= 0 || n >= len(s.history) {
		return s.history
	}
	return s.history[len(s.history)-n:]
}

// Close releases the session's index.
func (s *Session) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.index == nil {
		return nil
	}
	err := s.index.Close()
	s.index = nil
	return err
}

// Preview returns the first 1000 characters of corpus, with "..." appended
// when the corpus is longer.
func Preview(corpus string) string {
	runes := []rune(corpus)
	if len(runes) <= previewRunes {
		return corpus
	}
	return string(runes[:previewRunes]) + "..."
}
