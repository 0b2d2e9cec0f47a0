package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"

	"github.com/alecthomas/kong"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/joho/godotenv"
	"github.com/rs/zerolog/log"

	"pdfchat/internal/config"
	"pdfchat/internal/domain"
	"pdfchat/internal/extract"
	"pdfchat/internal/server"
	"pdfchat/internal/session"
	"pdfchat/internal/tui"
)

// Globals are flags shared by every command.
type Globals struct {
	Config   string `help:"Path to YAML config file (default: ./config.yaml, then ~/.config/pdfchat/config.yaml)." type:"path"`
	LogLevel string `help:"Override log.level from the config file." name:"log-level"`
}

func (g *Globals) load() (*config.AppConfig, error) {
	var (
		cfg *config.AppConfig
		err error
	)
	if g.Config == "" {
		cfg, _, err = config.LoadDefault()
	} else {
		cfg, err = config.Load(g.Config)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}
	if g.LogLevel != "" {
		cfg.Log.Level = g.LogLevel
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// ChatCmd runs the terminal chat.
type ChatCmd struct {
	Files []string `arg:"" optional:"" help:"Documents or glob patterns to process on startup."`
}

// Run implements the chat command.
func (c *ChatCmd) Run(g *Globals) error {
	cfg, err := g.load()
	if err != nil {
		return err
	}
	if cfg.Log.File == "" {
		dir, err := config.Dir()
		if err != nil {
			return err
		}
		cfg.Log.File = filepath.Join(dir, "pdfchat.log")
	}
	closeLog, err := setupLogging(cfg.Log, false)
	if err != nil {
		return err
	}
	defer closeLog()

	ctx := context.Background()
	deps, cleanup, err := buildDeps(ctx, cfg)
	if err != nil {
		return err
	}
	defer cleanup()

	files, err := extract.LoadFiles(c.Files)
	if err != nil {
		return err
	}

	mgr := session.NewManager(deps, sessionOptions(cfg))
	defer mgr.Close()
	current := mgr.Create()
	model := tui.New(ctx, current, tui.Config{
		NewConversation: func() tui.Conversation {
			if err := mgr.Delete(current.ID()); err != nil {
				log.Warn().Err(err).Msg("Failed to close session")
			}
			current = mgr.Create()
			return current
		},
		Load:  extract.LoadFiles,
		Files: files,
	})
	_, err = tea.NewProgram(model, tea.WithAltScreen()).Run()
	return err
}

// ServeCmd runs the HTTP API.
type ServeCmd struct {
	Addr string `help:"Listen address (overrides server.addr)."`
}

// Run implements the serve command.
func (c *ServeCmd) Run(g *Globals) error {
	cfg, err := g.load()
	if err != nil {
		return err
	}
	closeLog, err := setupLogging(cfg.Log, true)
	if err != nil {
		return err
	}
	defer closeLog()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	deps, cleanup, err := buildDeps(ctx, cfg)
	if err != nil {
		return err
	}
	defer cleanup()

	mgr := session.NewManager(deps, sessionOptions(cfg))
	defer mgr.Close()
	addr := cfg.Server.Addr
	if c.Addr != "" {
		addr = c.Addr
	}
	return server.New(mgr, server.NewMetrics()).ListenAndServe(ctx, addr)
}

// AskCmd answers one question without the interactive UI.
type AskCmd struct {
	File     []string `short:"f" required:"" help:"Document or glob pattern to process (repeatable)."`
	Question []string `arg:"" help:"Question to ask about the documents."`
	Sources  bool     `help:"Print the retrieved chunks after the answer."`
}

// Run implements the ask command.
func (c *AskCmd) Run(g *Globals) error {
	cfg, err := g.load()
	if err != nil {
		return err
	}
	closeLog, err := setupLogging(cfg.Log, true)
	if err != nil {
		return err
	}
	defer closeLog()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	deps, cleanup, err := buildDeps(ctx, cfg)
	if err != nil {
		return err
	}
	defer cleanup()

	uploads, err := extract.LoadFiles(c.File)
	if err != nil {
		return err
	}
	sess := session.New("cli", deps, sessionOptions(cfg))
	defer sess.Close()
	res, err := sess.Process(ctx, uploads)
	if err != nil {
		return err
	}
	for _, s := range res.Skipped {
		log.Warn().Str("document", s.Name).Str("reason", s.Reason).Msg("Skipped document")
	}
	return printAnswer(ctx, sess, strings.Join(c.Question, " "), c.Sources, os.Stdout)
}

type asker interface {
	Ask(ctx context.Context, question string) (session.Answer, error)
}

// printAnswer writes the reply to question, and optionally its sources, to
// out. A blank question prints nothing.
func printAnswer(ctx context.Context, sess asker, question string, sources bool, out io.Writer) error {
	ans, err := sess.Ask(ctx, question)
	if errors.Is(err, domain.ErrEmptyQuestion) {
		log.Warn().Msg("No question asked")
		return nil
	}
	if err != nil {
		return err
	}
	fmt.Fprintln(out, ans.Text)
	if sources {
		for _, src := range ans.Sources {
			fmt.Fprintf(out, "\n[chunk %d, score %.3f]\n%s\n", src.Chunk.Index, src.Score, src.Chunk.Text)
		}
	}
	return nil
}

// CLI is the command-line grammar.
type CLI struct {
	Globals

	Chat  ChatCmd  `cmd:"" default:"withargs" help:"Chat with documents in the terminal."`
	Serve ServeCmd `cmd:"" help:"Serve the HTTP API."`
	Ask   AskCmd   `cmd:"" help:"Process documents and answer a single question."`
}

func main() {
	_ = godotenv.Load()

	var cli CLI
	kctx := kong.Parse(&cli,
		kong.Name("pdfchat"),
		kong.Description("Chat with your PDF documents."),
		kong.UsageOnError(),
	)
	kctx.FatalIfErrorf(kctx.Run(&cli.Globals))
}
