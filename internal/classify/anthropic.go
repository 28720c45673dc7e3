package classify

import (
	"context"
	"errors"
	"strings"

	anthropic "github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
)

const DefaultAnthropicModel = string(anthropic.ModelClaudeSonnet4_20250514)

type anthropicMessager interface {
	New(ctx context.Context, params anthropic.MessageNewParams, opts ...option.RequestOption) (*anthropic.Message, error)
}

// Anthropic completes prompts with the Anthropic Messages API.
type Anthropic struct {
	messages anthropicMessager
	model    string
}

func NewAnthropic(cfg BackendConfig) *Anthropic {
	opts := []option.RequestOption{option.WithAPIKey(strings.TrimSpace(cfg.APIKey))}
	if strings.TrimSpace(cfg.BaseURL) != "" {
		opts = append(opts, option.WithBaseURL(strings.TrimSpace(cfg.BaseURL)))
	}
	c := anthropic.NewClient(opts...)
	return newAnthropicWith(&c.Messages, cfg.Model)
}

func newAnthropicWith(messages anthropicMessager, model string) *Anthropic {
	model = strings.TrimSpace(model)
	if model == "" {
		model = DefaultAnthropicModel
	}
	return &Anthropic{messages: messages, model: model}
}

func (a *Anthropic) Complete(ctx context.Context, system, user string) (string, error) {
	resp, err := a.messages.New(ctx, anthropic.MessageNewParams{
		Model:     anthropic.Model(a.model),
		MaxTokens: 1024,
		System:    []anthropic.TextBlockParam{{Text: system}},
		Messages:  []anthropic.MessageParam{anthropic.NewUserMessage(anthropic.NewTextBlock(user))},
	})
	if err != nil {
		return "", err
	}
	var sb strings.Builder
	for _, b := range resp.Content {
		if b.Type == "text" {
			sb.WriteString(b.Text)
		}
	}
	if sb.Len() == 0 {
		return "", errors.New("anthropic: no text content in response")
	}
	return sb.String(), nil
}
