package chat

import (
	"context"
	"errors"
	"strings"

	anthropic "github.com/anthropics/anthropic-sdk-go"
	anthropicopt "github.com/anthropics/anthropic-sdk-go/option"

	"pdfchat/internal/domain"
)

const defaultAnthropicMaxTokens = 1024

// AnthropicConfig configures the Anthropic Messages API.
type AnthropicConfig struct {
	BaseURL string
	APIKey  string
	Model   string
	Options
}

// Anthropic is a Model backed by the Anthropic Messages API.
type Anthropic struct {
	client *anthropic.Client
	model  string
	opts   Options
}

// NewAnthropic creates an Anthropic chat model. Extra request options are
// applied after the ones derived from cfg.
func NewAnthropic(cfg AnthropicConfig, extra ...anthropicopt.RequestOption) *Anthropic {
	reqOpts := []anthropicopt.RequestOption{anthropicopt.WithAPIKey(cfg.APIKey)}
	if cfg.BaseURL != "" {
		reqOpts = append(reqOpts, anthropicopt.WithBaseURL(cfg.BaseURL))
	}
	reqOpts = append(reqOpts, extra...)
	client := anthropic.NewClient(reqOpts...)
	return &Anthropic{client: &client, model: cfg.Model, opts: cfg.Options}
}

// Complete implements Model.
func (a *Anthropic) Complete(ctx context.Context, messages []domain.Message) (string, error) {
	system, dialogue := splitSystem(messages)
	maxTokens := int64(a.opts.MaxTokens)
	if maxTokens <= 0 {
		maxTokens = defaultAnthropicMaxTokens
	}
	req := anthropic.MessageNewParams{
		Model:       anthropic.Model(a.model),
		MaxTokens:   maxTokens,
		Temperature: anthropic.Float(a.opts.Temperature),
		Messages:    make([]anthropic.MessageParam, 0, len(dialogue)),
	}
	if system != "" {
		req.System = []anthropic.TextBlockParam{{Text: system}}
	}
	for _, m := range dialogue {
		block := anthropic.NewTextBlock(m.Content)
		if m.Role == domain.RoleAssistant {
			req.Messages = append(req.Messages, anthropic.NewAssistantMessage(block))
		} else {
			req.Messages = append(req.Messages, anthropic.NewUserMessage(block))
		}
	}

	rsp, err := a.client.Messages.New(ctx, req)
	if err != nil {
		return "", err
	}
	var b strings.Builder
	for _, content := range rsp.Content {
		if text, ok := content.AsAny().(anthropic.TextBlock); ok {
			b.WriteString(text.Text)
		}
	}
	result := b.String()
	if len(result) == 0 {
		return "", errors.New("no response from Anthropic")
	}
	return result, nil
}
