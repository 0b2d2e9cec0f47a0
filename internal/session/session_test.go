package session

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"pdfchat/internal/chunker"
	"pdfchat/internal/domain"
	"pdfchat/internal/extract"
)

type fakeExtractor struct {
	calls int
	err   error
}

func (f *fakeExtractor) Extract(uploads []domain.Upload) (extract.Result, error) {
	f.calls++
	if f.err != nil {
		return extract.Result{}, f.err
	}
	var sb strings.Builder
	res := extract.Result{}
	for _, u := range uploads {
		sb.Write(u.Data)
		res.Documents = append(res.Documents, extract.DocumentReport{Name: u.Name, Pages: 1})
	}
	res.Corpus = sb.String()
	return res, nil
}

type fakeIndex struct {
	chunks  []domain.Chunk
	queries []string
	closed  bool
	err     error
}

func (f *fakeIndex) Nearest(_ context.Context, query string, k int) ([]domain.SearchResult, error) {
	f.queries = append(f.queries, query)
	if f.err != nil {
		return nil, f.err
	}
	var out []domain.SearchResult
	for i := 0; i < len(f.chunks) && i < k; i++ {
		out = append(out, domain.SearchResult{Chunk: f.chunks[i], Score: 1})
	}
	return out, nil
}

func (f *fakeIndex) Len() int { return len(f.chunks) }

func (f *fakeIndex) Close() error {
	f.closed = true
	return nil
}

type fakeIndexer struct {
	calls int
	built []*fakeIndex
	err   error
}

func (f *fakeIndexer) Build(_ context.Context, chunks []domain.Chunk) (domain.Index, error) {
	f.calls++
	if f.err != nil {
		return nil, f.err
	}
	idx := &fakeIndex{chunks: chunks}
	f.built = append(f.built, idx)
	return idx, nil
}

type fakeChat struct {
	mu      sync.Mutex
	calls   [][]domain.Message
	replies []string
	err     error
}

func (f *fakeChat) Complete(_ context.Context, msgs []domain.Message) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, msgs)
	if f.err != nil {
		return "", f.err
	}
	if len(f.replies) == 0 {
		return "answer", nil
	}
	r := f.replies[0]
	f.replies = f.replies[1:]
	return r, nil
}

type fakeSummarizer struct{}

func (fakeSummarizer) Summarize(text string, _ int) (string, error) {
	return "summary of " + text[:min(5, len(text))], nil
}

type twoPageScan struct{}

func (twoPageScan) NumPage() int { return 2 }

func (twoPageScan) PageText(i int) (string, error) {
	if i == 2 {
		return "", errors.New("page has no text layer")
	}
	return "Invoices are due in thirty days.", nil
}

type fixture struct {
	extractor *fakeExtractor
	indexer   *fakeIndexer
	chat      *fakeChat
	session   *Session
}

func newFixture(t *testing.T, opts Options) *fixture {
	t.Helper()
	ch, err := chunker.New(chunker.Config{Separator: "\n", ChunkSize: 10, ChunkOverlap: 2})
	require.NoError(t, err)
	f := &fixture{extractor: &fakeExtractor{}, indexer: &fakeIndexer{}, chat: &fakeChat{}}
	f.session = New("test", Deps{
		Extractor:  f.extractor,
		Chunker:    ch,
		Indexer:    f.indexer,
		Summarizer: fakeSummarizer{},
		Chat:       f.chat,
	}, opts)
	return f
}

func upload(name, text string) domain.Upload {
	return domain.Upload{Name: name, Data: []byte(text)}
}

func TestProcess(t *testing.T) {
	ctx := context.Background()

	t.Run("ShouldRejectEmptyUploadsWithoutRunningPipeline", func(t *testing.T) {
		f := newFixture(t, Options{})
		_, err := f.session.Process(ctx, nil)
		require.ErrorIs(t, err, domain.ErrNoDocuments)
		assert.Zero(t, f.extractor.calls)
		assert.Zero(t, f.indexer.calls)
		assert.Equal(t, Idle, f.session.State())
	})

	t.Run("ShouldBecomeReadyAndReportPreview", func(t *testing.T) {
		f := newFixture(t, Options{})
		res, err := f.session.Process(ctx, []domain.Upload{
			upload("a.pdf", "first line\n"),
			upload("b.pdf", "second line\nthird line"),
		})
		require.NoError(t, err)
		assert.Equal(t, Ready, f.session.State())
		assert.Equal(t, "first line\nsecond line\nthird line", res.Preview)
		assert.Equal(t, "first line\nsecond line\nthird line", f.session.Corpus())
		assert.Equal(t, len(f.indexer.built[0].chunks), res.ChunkCount)
		assert.LessOrEqual(t, len(res.FirstChunks), 3)
		assert.Equal(t, f.indexer.built[0].chunks[0].Text, res.FirstChunks[0])
		assert.Equal(t, "summary of first", res.Summary)
		assert.Len(t, res.Documents, 2)
	})

	t.Run("ShouldReplaceIndexAndCloseThePreviousOne", func(t *testing.T) {
		f := newFixture(t, Options{})
		_, err := f.session.Process(ctx, []domain.Upload{upload("a.txt", "alpha")})
		require.NoError(t, err)
		_, err = f.session.Process(ctx, []domain.Upload{upload("b.txt", "beta")})
		require.NoError(t, err)
		require.Len(t, f.indexer.built, 2)
		assert.True(t, f.indexer.built[0].closed)
		assert.False(t, f.indexer.built[1].closed)
		assert.Equal(t, "beta", f.session.Corpus())
	})

	t.Run("ShouldKeepPriorStateWhenIndexingFails", func(t *testing.T) {
		f := newFixture(t, Options{})
		_, err := f.session.Process(ctx, []domain.Upload{upload("a.txt", "alpha")})
		require.NoError(t, err)

		boom := errors.New("embedding service down")
		f.indexer.err = boom
		_, err = f.session.Process(ctx, []domain.Upload{upload("b.txt", "beta")})
		require.ErrorIs(t, err, boom)

		assert.Equal(t, Ready, f.session.State())
		assert.Equal(t, "alpha", f.session.Corpus())
		assert.False(t, f.indexer.built[0].closed)
	})

	t.Run("ShouldStayIdleWhenExtractionFails", func(t *testing.T) {
		f := newFixture(t, Options{})
		f.extractor.err = domain.ErrNoText
		_, err := f.session.Process(ctx, []domain.Upload{upload("scan.pdf", "")})
		require.ErrorIs(t, err, domain.ErrNoText)
		assert.Equal(t, Idle, f.session.State())
		assert.Zero(t, f.indexer.calls)
	})

	t.Run("ShouldSucceedWhenOnePageCannotBeRead", func(t *testing.T) {
		ext := extract.New()
		ext.Register(".scan", extract.Paged(func([]byte) (extract.PageSource, error) {
			return twoPageScan{}, nil
		}))
		ch, err := chunker.New(chunker.Config{Separator: "\n", ChunkSize: 10, ChunkOverlap: 2})
		require.NoError(t, err)
		indexer := &fakeIndexer{}
		sess := New("scan", Deps{Extractor: ext, Chunker: ch, Indexer: indexer, Chat: &fakeChat{}}, Options{})

		res, err := sess.Process(ctx, []domain.Upload{{Name: "report.scan"}})
		require.NoError(t, err)
		assert.Equal(t, Ready, sess.State())
		assert.Equal(t, "Invoices are due in thirty days.", sess.Corpus())
		require.Len(t, res.Documents, 1)
		assert.Equal(t, 2, res.Documents[0].Pages)
		assert.Equal(t, 1, res.Documents[0].EmptyPages)
		assert.Empty(t, res.Skipped)
		assert.Equal(t, 1, indexer.calls)
	})

	t.Run("ShouldTruncateLongPreview", func(t *testing.T) {
		long := strings.Repeat("é", 1500)
		assert.Equal(t, strings.Repeat("é", 1000)+"...", Preview(long))
		assert.Equal(t, "short", Preview("short"))
	})
}

func TestAsk(t *testing.T) {
	ctx := context.Background()
	docs := []domain.Upload{upload("a.txt", "the sky is blue\ngrass is green")}

	t.Run("ShouldRefuseWhenIdleWithoutCallingChat", func(t *testing.T) {
		f := newFixture(t, Options{})
		_, err := f.session.Ask(ctx, "what colour is the sky?")
		require.ErrorIs(t, err, domain.ErrNotInitialized)
		assert.Empty(t, f.chat.calls)
		assert.Empty(t, f.session.History())
	})

	t.Run("ShouldIgnoreBlankQuestion", func(t *testing.T) {
		f := newFixture(t, Options{})
		_, err := f.session.Process(ctx, docs)
		require.NoError(t, err)
		_, err = f.session.Ask(ctx, "   \n\t")
		require.ErrorIs(t, err, domain.ErrEmptyQuestion)
		assert.Empty(t, f.chat.calls)
		assert.Empty(t, f.session.History())
	})

	t.Run("ShouldAnswerAndRecordRoleTaggedTurns", func(t *testing.T) {
		f := newFixture(t, Options{TopK: 2})
		f.chat.replies = []string{"Blue.", "Green."}
		_, err := f.session.Process(ctx, docs)
		require.NoError(t, err)

		a, err := f.session.Ask(ctx, "sky?")
		require.NoError(t, err)
		assert.Equal(t, "Blue.", a.Text)
		assert.Len(t, a.Sources, 2)

		_, err = f.session.Ask(ctx, "grass?")
		require.NoError(t, err)

		assert.Equal(t, []domain.Message{
			{Role: domain.RoleUser, Content: "sky?"},
			{Role: domain.RoleAssistant, Content: "Blue."},
			{Role: domain.RoleUser, Content: "grass?"},
			{Role: domain.RoleAssistant, Content: "Green."},
		}, f.session.History())

		// Second prompt: system, previous turn, new question.
		second := f.chat.calls[1]
		require.Len(t, second, 4)
		assert.Equal(t, domain.RoleSystem, second[0].Role)
		assert.Equal(t, "sky?", second[1].Content)
		assert.Equal(t, "Blue.", second[2].Content)
		assert.Equal(t, domain.Message{Role: domain.RoleUser, Content: "grass?"}, second[3])
		assert.Equal(t, 2, f.session.Info().Turns)
	})

	t.Run("ShouldLeaveHistoryUntouchedWhenChatFails", func(t *testing.T) {
		f := newFixture(t, Options{})
		_, err := f.session.Process(ctx, docs)
		require.NoError(t, err)
		_, err = f.session.Ask(ctx, "first")
		require.NoError(t, err)

		boom := errors.New("model overloaded")
		f.chat.err = boom
		_, err = f.session.Ask(ctx, "second")
		require.ErrorIs(t, err, boom)
		assert.Len(t, f.session.History(), 2)
	})

	t.Run("ShouldPropagateRetrievalErrors", func(t *testing.T) {
		f := newFixture(t, Options{})
		_, err := f.session.Process(ctx, docs)
		require.NoError(t, err)
		boom := errors.New("index gone")
		f.indexer.built[0].err = boom
		_, err = f.session.Ask(ctx, "q")
		require.ErrorIs(t, err, boom)
		assert.Empty(t, f.chat.calls)
	})

	t.Run("ShouldBoundPromptByHistoryWindow", func(t *testing.T) {
		f := newFixture(t, Options{HistoryWindow: 1})
		_, err := f.session.Process(ctx, docs)
		require.NoError(t, err)
		for _, q := range []string{"one", "two", "three"} {
			_, err := f.session.Ask(ctx, q)
			require.NoError(t, err)
		}
		last := f.chat.calls[2]
		require.Len(t, last, 4)
		assert.Equal(t, "two", last[1].Content)
		assert.Len(t, f.session.History(), 6)
	})

	t.Run("ShouldRetrieveWithCondensedQuestion", func(t *testing.T) {
		f := newFixture(t, Options{CondenseQuestion: true})
		f.chat.replies = []string{"Blue.", "What colour is the grass?", "Green."}
		_, err := f.session.Process(ctx, docs)
		require.NoError(t, err)

		_, err = f.session.Ask(ctx, "What colour is the sky?")
		require.NoError(t, err)
		a, err := f.session.Ask(ctx, "and the grass?")
		require.NoError(t, err)
		assert.Equal(t, "Green.", a.Text)

		idx := f.indexer.built[0]
		assert.Equal(t, []string{"What colour is the sky?", "What colour is the grass?"}, idx.queries)
		// The follow-up is recorded as the user typed it.
		h := f.session.History()
		assert.Equal(t, "and the grass?", h[2].Content)
		assert.Len(t, f.chat.calls, 3)
	})
}

func TestManager(t *testing.T) {
	ctx := context.Background()
	deps := func() (Deps, *fakeIndexer) {
		ch, err := chunker.New(chunker.Config{Separator: "\n", ChunkSize: 10, ChunkOverlap: 2})
		require.NoError(t, err)
		ix := &fakeIndexer{}
		return Deps{Extractor: &fakeExtractor{}, Chunker: ch, Indexer: ix, Chat: &fakeChat{}}, ix
	}

	t.Run("ShouldIsolateSessions", func(t *testing.T) {
		d, _ := deps()
		m := NewManager(d, Options{})
		a := m.Create()
		b := m.Create()
		require.NotEqual(t, a.ID(), b.ID())

		_, err := a.Process(ctx, []domain.Upload{upload("a.txt", "alpha")})
		require.NoError(t, err)
		_, err = a.Ask(ctx, "q")
		require.NoError(t, err)

		assert.Equal(t, Ready, a.State())
		assert.Equal(t, Idle, b.State())
		assert.Empty(t, b.History())
		assert.Len(t, m.List(), 2)
	})

	t.Run("ShouldCloseIndexOnDelete", func(t *testing.T) {
		d, ix := deps()
		m := NewManager(d, Options{})
		s := m.Create()
		_, err := s.Process(ctx, []domain.Upload{upload("a.txt", "alpha")})
		require.NoError(t, err)

		require.NoError(t, m.Delete(s.ID()))
		assert.True(t, ix.built[0].closed)
		_, err = m.Get(s.ID())
		require.ErrorIs(t, err, ErrNotFound)
		require.ErrorIs(t, m.Delete(s.ID()), ErrNotFound)
	})

	t.Run("ShouldSerializeConcurrentAsks", func(t *testing.T) {
		d, _ := deps()
		m := NewManager(d, Options{})
		s := m.Create()
		_, err := s.Process(ctx, []domain.Upload{upload("a.txt", "alpha")})
		require.NoError(t, err)

		var wg sync.WaitGroup
		for i := 0; i < 8; i++ {
			wg.Add(1)
			go func() {
				defer wg.Done()
				_, _ = s.Ask(ctx, "q")
			}()
		}
		wg.Wait()
		h := s.History()
		require.Len(t, h, 16)
		for i, msg := range h {
			if i%2 == 0 {
				assert.Equal(t, domain.RoleUser, msg.Role)
			} else {
				assert.Equal(t, domain.RoleAssistant, msg.Role)
			}
		}
	})

	t.Run("ShouldCloseAllSessions", func(t *testing.T) {
		d, ix := deps()
		m := NewManager(d, Options{})
		for i := 0; i < 3; i++ {
			s := m.Create()
			_, err := s.Process(ctx, []domain.Upload{upload("a.txt", "alpha")})
			require.NoError(t, err)
		}
		require.NoError(t, m.Close())
		assert.Empty(t, m.List())
		for _, idx := range ix.built {
			assert.True(t, idx.closed)
		}
	})
}
