package chat

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/tmc/langchaingo/llms"
	"github.com/tmc/langchaingo/llms/ollama"
	"github.com/tmc/langchaingo/llms/openai"

	"pdfchat/internal/domain"
)

// Options are the sampling settings shared by every provider.
type Options struct {
	Temperature float64
	MaxTokens   int
}

// LangChain adapts a langchaingo llms.Model.
type LangChain struct {
	llm  llms.Model
	opts Options
}

// NewLangChain wraps an existing langchaingo model.
func NewLangChain(llm llms.Model, opts Options) *LangChain {
	return &LangChain{llm: llm, opts: opts}
}

// OpenAIConfig configures an OpenAI-compatible chat endpoint.
type OpenAIConfig struct {
	BaseURL string
	APIKey  string
	Model   string
	Options
}

// NewOpenAI returns a chat model backed by an OpenAI-compatible API.
func NewOpenAI(cfg OpenAIConfig) (*LangChain, error) {
	opts := []openai.Option{
		openai.WithToken(strings.TrimPrefix(cfg.APIKey, "Bearer ")),
		openai.WithModel(cfg.Model),
	}
	if cfg.BaseURL != "" {
		opts = append(opts, openai.WithBaseURL(cfg.BaseURL))
	}
	llm, err := openai.New(opts...)
	if err != nil {
		return nil, fmt.Errorf("init openai chat client: %w", err)
	}
	return NewLangChain(llm, cfg.Options), nil
}

// OllamaConfig configures a local Ollama chat model.
type OllamaConfig struct {
	ServerURL string
	Model     string
	Options
}

// NewOllama returns a chat model backed by an Ollama server.
func NewOllama(cfg OllamaConfig) (*LangChain, error) {
	opts := []ollama.Option{ollama.WithModel(cfg.Model)}
	if cfg.ServerURL != "" {
		opts = append(opts, ollama.WithServerURL(cfg.ServerURL))
	}
	llm, err := ollama.New(opts...)
	if err != nil {
		return nil, fmt.Errorf("init ollama chat client: %w", err)
	}
	return NewLangChain(llm, cfg.Options), nil
}

// Complete implements Model.
func (l *LangChain) Complete(ctx context.Context, messages []domain.Message) (string, error) {
	content := make([]llms.MessageContent, 0, len(messages))
	for _, m := range messages {
		content = append(content, llms.TextParts(messageType(m.Role), m.Content))
	}
	callOpts := []llms.CallOption{llms.WithTemperature(l.opts.Temperature)}
	if l.opts.MaxTokens > 0 {
		callOpts = append(callOpts, llms.WithMaxTokens(l.opts.MaxTokens))
	}
	resp, err := l.llm.GenerateContent(ctx, content, callOpts...)
	if err != nil {
		return "", fmt.Errorf("generate content: %w", err)
	}
	if resp == nil || len(resp.Choices) == 0 {
		return "", errors.New("empty response from chat model")
	}
	return resp.Choices[0].Content, nil
}

func messageType(r domain.Role) llms.ChatMessageType {
	switch r {
	case domain.RoleSystem:
		return llms.ChatMessageTypeSystem
	case domain.RoleAssistant:
		return llms.ChatMessageTypeAI
	default:
		return llms.ChatMessageTypeHuman
	}
}
