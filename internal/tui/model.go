package tui

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/charmbracelet/bubbles/spinner"
	"github.com/charmbracelet/bubbles/textinput"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"pdfchat/internal/domain"
	"pdfchat/internal/session"
)

// Conversation is the TUI-facing subset of a session.
type Conversation interface {
	Process(ctx context.Context, uploads []domain.Upload) (session.ProcessResult, error)
	Ask(ctx context.Context, question string) (session.Answer, error)
	History() []domain.Message
}

// Loader reads the files named by command arguments.
type Loader func(paths []string) ([]domain.Upload, error)

// Config wires the TUI to the application.
type Config struct {
	// NewConversation replaces the current conversation with a fresh one.
	NewConversation func() Conversation
	Load            Loader
	// Files are staged at startup and processed right away.
	Files []domain.Upload
}

type processDoneMsg struct {
	result session.ProcessResult
	err    error
}

type answerMsg struct {
	question string
	answer   session.Answer
	err      error
}

const helpText = "Commands: :add <path|glob>...  :files  :clear  :process  :preview  :new  :quit"

// Model is the Bubble Tea model for the chat application.
type Model struct {
	ctx      context.Context
	cfg      Config
	conv     Conversation
	input    textinput.Model
	viewport viewport.Model
	spinner  spinner.Model

	staged      []domain.Upload
	processed   *session.ProcessResult
	showPreview bool
	history     []domain.Message
	lastSources string
	status      string
	warn        bool
	busy        bool
	ready       bool
}

// New creates a new TUI model instance.
func New(ctx context.Context, conv Conversation, cfg Config) Model {
	ti := textinput.New()
	ti.Prompt = "> "
	ti.Placeholder = "Ask a question about your documents, or :help"
	ti.Focus()
	ti.CharLimit = 0
	sp := spinner.New()
	sp.Spinner = spinner.Dot
	m := Model{
		ctx:      ctx,
		cfg:      cfg,
		conv:     conv,
		input:    ti,
		viewport: viewport.New(0, 0),
		spinner:  sp,
		staged:   cfg.Files,
		status:   "Add documents with :add <path>, then :process.",
	}
	if len(m.staged) > 0 {
		m.busy = true
		m.status = fmt.Sprintf("Processing %d document(s)...", len(m.staged))
	}
	return m
}

// Init starts cursor blinking and, when files were given on startup,
// processes them.
func (m Model) Init() tea.Cmd {
	if m.busy {
		return tea.Batch(textinput.Blink, m.spinner.Tick, m.processCmd(m.staged))
	}
	return textinput.Blink
}

// Update handles key, window and completion events.
func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.ready = true
		_, th := transcriptBox.GetFrameSize()
		_, ih := inputBox.GetFrameSize()
		reserved := 2 + 1 + ih + th + 1 // header + summary, status, spacer
		m.viewport.Width = max(20, msg.Width-2)
		m.viewport.Height = max(3, msg.Height-reserved)
		m.refresh()
		return m, nil

	case spinner.TickMsg:
		if !m.busy {
			return m, nil
		}
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		return m, cmd

	case processDoneMsg:
		m.busy = false
		if msg.err != nil {
			m.setWarn(describe(msg.err))
			return m, nil
		}
		res := msg.result
		m.processed = &res
		m.showPreview = true
		m.history = m.conv.History()
		m.lastSources = ""
		m.setStatus(fmt.Sprintf("Processed %d document(s) into %d chunks. Ask away.", len(res.Documents)-len(res.Skipped), res.ChunkCount))
		m.refresh()
		return m, nil

	case answerMsg:
		m.busy = false
		if msg.err != nil {
			if errors.Is(msg.err, domain.ErrEmptyQuestion) {
				m.setStatus("")
				return m, nil
			}
			m.setWarn(describe(msg.err))
			return m, nil
		}
		m.history = m.conv.History()
		m.lastSources = renderSources(msg.question, msg.answer.Sources)
		m.showPreview = false
		m.setStatus("")
		m.refresh()
		m.viewport.GotoBottom()
		return m, nil

	case tea.KeyMsg:
		if msg.Type == tea.KeyCtrlC || msg.Type == tea.KeyCtrlD {
			return m, tea.Quit
		}
		switch msg.String() {
		case "enter":
			line := strings.TrimSpace(m.input.Value())
			m.input.SetValue("")
			if line == "" {
				return m, nil
			}
			if m.busy {
				m.setWarn("Still working, please wait.")
				return m, nil
			}
			if strings.HasPrefix(line, ":") {
				return m.command(line)
			}
			m.busy = true
			m.setStatus("Thinking...")
			return m, tea.Batch(m.spinner.Tick, m.askCmd(line))
		case "pgup", "pgdown", "up", "down":
			var cmd tea.Cmd
			m.viewport, cmd = m.viewport.Update(msg)
			return m, cmd
		}
	}
	var cmd tea.Cmd
	m.input, cmd = m.input.Update(msg)
	return m, cmd
}

func (m Model) command(line string) (tea.Model, tea.Cmd) {
	fields := strings.Fields(line)
	switch fields[0] {
	case ":quit", ":q":
		return m, tea.Quit
	case ":help", ":h":
		m.setStatus(helpText)
	case ":add":
		if len(fields) < 2 {
			m.setWarn("Usage: :add <path|glob>...")
			return m, nil
		}
		uploads, err := m.cfg.Load(fields[1:])
		if err != nil {
			m.setWarn("Error: " + err.Error())
			return m, nil
		}
		m.staged = append(m.staged, uploads...)
		m.setStatus(fmt.Sprintf("Staged %d file(s), %d in total. Run :process when ready.", len(uploads), len(m.staged)))
	case ":files":
		if len(m.staged) == 0 {
			m.setStatus("No files staged.")
			return m, nil
		}
		names := make([]string, len(m.staged))
		for i, u := range m.staged {
			names[i] = u.Name
		}
		m.setStatus("Staged: " + strings.Join(names, ", "))
	case ":clear":
		m.staged = nil
		m.setStatus("Cleared staged files.")
	case ":process":
		if len(m.staged) == 0 {
			m.setWarn("Please upload at least one document before processing.")
			return m, nil
		}
		m.busy = true
		m.setStatus(fmt.Sprintf("Processing %d document(s)...", len(m.staged)))
		return m, tea.Batch(m.spinner.Tick, m.processCmd(m.staged))
	case ":preview":
		if m.processed == nil {
			m.setWarn("Nothing processed yet.")
			return m, nil
		}
		m.showPreview = !m.showPreview
		m.refresh()
	case ":new":
		m.conv = m.cfg.NewConversation()
		m.processed = nil
		m.history = nil
		m.lastSources = ""
		m.showPreview = false
		m.setStatus("Started a new session. Staged files were kept; run :process.")
		m.refresh()
	default:
		m.setWarn(fmt.Sprintf("Unknown command %s. %s", fields[0], helpText))
	}
	return m, nil
}

func (m Model) processCmd(uploads []domain.Upload) tea.Cmd {
	conv, ctx := m.conv, m.ctx
	files := append([]domain.Upload(nil), uploads...)
	return func() tea.Msg {
		res, err := conv.Process(ctx, files)
		return processDoneMsg{result: res, err: err}
	}
}

func (m Model) askCmd(question string) tea.Cmd {
	conv, ctx := m.conv, m.ctx
	return func() tea.Msg {
		ans, err := conv.Ask(ctx, question)
		return answerMsg{question: question, answer: ans, err: err}
	}
}

func (m *Model) setStatus(s string) {
	m.status = s
	m.warn = false
}

func (m *Model) setWarn(s string) {
	m.status = s
	m.warn = true
}

func (m *Model) refresh() {
	var parts []string
	if m.processed != nil && m.showPreview {
		parts = append(parts, renderProcessResult(m.processed))
	}
	if t := renderTranscript(m.history); t != "" {
		parts = append(parts, t)
	}
	if m.lastSources != "" {
		parts = append(parts, m.lastSources)
	}
	content := strings.Join(parts, "\n\n")
	if content == "" {
		content = dimStyle.Render("No conversation yet.")
	}
	m.viewport.SetContent(lipgloss.NewStyle().Width(m.viewport.Width).Render(content))
}

// describe turns an action error into a user-facing message.
func describe(err error) string {
	switch {
	case errors.Is(err, domain.ErrNotInitialized):
		return "Process documents first (:add <path>, then :process)."
	case errors.Is(err, domain.ErrNoDocuments):
		return "Please upload at least one document before processing."
	case errors.Is(err, domain.ErrNoText):
		return "No text could be extracted from the documents. Scanned PDFs need OCR first."
	default:
		return "Error: " + err.Error()
	}
}

// View renders the layout.
func (m Model) View() string {
	if !m.ready {
		return "Loading..."
	}
	header := titleStyle.Render("Chat with your documents")
	summary := dimStyle.Render("No documents processed.")
	if m.processed != nil && m.processed.Summary != "" {
		summary = dimStyle.Render(m.processed.Summary)
	}
	status := statusStyle.Render(m.status)
	if m.warn {
		status = warnStyle.Render(m.status)
	}
	if m.busy {
		status = m.spinner.View() + " " + status
	}
	return header + "\n" + summary + "\n" +
		transcriptBox.Render(m.viewport.View()) + "\n" +
		inputBox.Render(m.input.View()) + "\n" + status
}
