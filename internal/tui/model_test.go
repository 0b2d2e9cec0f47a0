package tui

import (
	"context"
	"errors"
	"testing"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"pdfchat/internal/domain"
	"pdfchat/internal/session"
)

type fakeConversation struct {
	processed [][]domain.Upload
	asked     []string
	history   []domain.Message
	askErr    error
}

func (f *fakeConversation) Process(_ context.Context, uploads []domain.Upload) (session.ProcessResult, error) {
	f.processed = append(f.processed, uploads)
	return session.ProcessResult{
		Preview:     "hello world",
		ChunkCount:  2,
		FirstChunks: []string{"hello", "world"},
		Summary:     "A greeting.",
		Documents:   nil,
	}, nil
}

func (f *fakeConversation) Ask(_ context.Context, q string) (session.Answer, error) {
	f.asked = append(f.asked, q)
	if f.askErr != nil {
		return session.Answer{}, f.askErr
	}
	f.history = append(f.history,
		domain.Message{Role: domain.RoleUser, Content: q},
		domain.Message{Role: domain.RoleAssistant, Content: "reply to " + q},
	)
	return session.Answer{
		Text:    "reply to " + q,
		Sources: []domain.SearchResult{{Chunk: domain.Chunk{Index: 1, Text: "world. Something else."}, Score: 0.9}},
	}, nil
}

func (f *fakeConversation) History() []domain.Message {
	return append([]domain.Message(nil), f.history...)
}

func newTestModel(conv *fakeConversation, loaded []domain.Upload) Model {
	m := New(context.Background(), conv, Config{
		NewConversation: func() Conversation { return &fakeConversation{} },
		Load:            func([]string) ([]domain.Upload, error) { return loaded, nil },
	})
	next, _ := m.Update(tea.WindowSizeMsg{Width: 100, Height: 40})
	return next.(Model)
}

func typeLine(t *testing.T, m Model, line string) (Model, tea.Cmd) {
	t.Helper()
	m.input.SetValue(line)
	next, cmd := m.Update(tea.KeyMsg{Type: tea.KeyEnter})
	return next.(Model), cmd
}

// drain runs cmd and feeds every non-spinner message back into the model.
func drain(t *testing.T, m Model, cmd tea.Cmd) Model {
	t.Helper()
	if cmd == nil {
		return m
	}
	switch msg := cmd().(type) {
	case tea.BatchMsg:
		for _, c := range msg {
			m = drain(t, m, c)
		}
	case processDoneMsg, answerMsg:
		next, _ := m.Update(msg)
		m = next.(Model)
	}
	return m
}

func TestModel(t *testing.T) {
	docs := []domain.Upload{{Name: "a.pdf", Data: []byte("x")}}

	t.Run("ShouldWarnWhenProcessingWithoutFiles", func(t *testing.T) {
		conv := &fakeConversation{}
		m, cmd := typeLine(t, newTestModel(conv, nil), ":process")
		assert.Nil(t, cmd)
		assert.True(t, m.warn)
		assert.Contains(t, m.status, "at least one document")
		assert.Empty(t, conv.processed)
	})

	t.Run("ShouldStageAndProcessFiles", func(t *testing.T) {
		conv := &fakeConversation{}
		m, _ := typeLine(t, newTestModel(conv, docs), ":add *.pdf")
		require.Len(t, m.staged, 1)

		m, cmd := typeLine(t, m, ":process")
		require.NotNil(t, cmd)
		assert.True(t, m.busy)
		m = drain(t, m, cmd)

		assert.False(t, m.busy)
		require.Len(t, conv.processed, 1)
		require.NotNil(t, m.processed)
		assert.Equal(t, 2, m.processed.ChunkCount)
		assert.Contains(t, m.View(), "A greeting.")
	})

	t.Run("ShouldAppendAnswersToTranscript", func(t *testing.T) {
		conv := &fakeConversation{}
		m, cmd := typeLine(t, newTestModel(conv, nil), "what is this?")
		m = drain(t, m, cmd)

		assert.Equal(t, []string{"what is this?"}, conv.asked)
		require.Len(t, m.history, 2)
		assert.Equal(t, domain.RoleUser, m.history[0].Role)
		assert.Contains(t, m.lastSources, "#1 (0.90)")
	})

	t.Run("ShouldIgnoreBlankInput", func(t *testing.T) {
		conv := &fakeConversation{}
		m, cmd := typeLine(t, newTestModel(conv, nil), "   ")
		assert.Nil(t, cmd)
		assert.False(t, m.busy)
		assert.Empty(t, conv.asked)
	})

	t.Run("ShouldRefuseActionsWhileBusy", func(t *testing.T) {
		conv := &fakeConversation{}
		m, _ := typeLine(t, newTestModel(conv, nil), "first")
		require.True(t, m.busy)
		m, cmd := typeLine(t, m, "second")
		assert.Nil(t, cmd)
		assert.True(t, m.warn)
	})

	t.Run("ShouldExplainAskBeforeProcess", func(t *testing.T) {
		conv := &fakeConversation{askErr: domain.ErrNotInitialized}
		m, cmd := typeLine(t, newTestModel(conv, nil), "anything?")
		m = drain(t, m, cmd)
		assert.True(t, m.warn)
		assert.Contains(t, m.status, "Process documents first")
		assert.Empty(t, m.history)
	})

	t.Run("ShouldShowCollaboratorErrors", func(t *testing.T) {
		conv := &fakeConversation{askErr: errors.New("rate limited")}
		m, cmd := typeLine(t, newTestModel(conv, nil), "anything?")
		m = drain(t, m, cmd)
		assert.Equal(t, "Error: rate limited", m.status)
	})

	t.Run("ShouldResetOnNewSession", func(t *testing.T) {
		conv := &fakeConversation{}
		m, cmd := typeLine(t, newTestModel(conv, nil), "hello")
		m = drain(t, m, cmd)
		require.NotEmpty(t, m.history)

		m, _ = typeLine(t, m, ":new")
		assert.Empty(t, m.history)
		assert.Nil(t, m.processed)
		assert.NotSame(t, conv, m.conv)
	})

	t.Run("ShouldProcessStartupFilesOnInit", func(t *testing.T) {
		conv := &fakeConversation{}
		m := New(context.Background(), conv, Config{Files: docs})
		assert.True(t, m.busy)
		m = drain(t, m, m.Init())
		require.Len(t, conv.processed, 1)
		assert.False(t, m.busy)
	})
}

func TestHighlightBestSentence(t *testing.T) {
	out := highlightBestSentence("Cats sleep a lot. Dogs bark loudly", "why do dogs bark")
	assert.Contains(t, out, "Cats sleep a lot.")
	assert.Contains(t, out, "Dogs bark loudly")
	assert.Equal(t, "plain", highlightBestSentence("plain", "nothing shared"))
}
