package classify

import (
	"context"
	"fmt"
	"strings"
)

// Supported completion providers.
const (
	ProviderOpenAI    = "openai"
	ProviderGemini    = "gemini"
	ProviderAnthropic = "anthropic"
)

// BackendConfig selects and configures the chat-completion backend.
type BackendConfig struct {
	Provider string
	APIKey   string
	Model    string

	// BaseURL overrides the provider API base URL. Useful for proxies/testing.
	BaseURL string
}

// NewCompleter constructs the Completer for cfg.Provider (default: openai).
func NewCompleter(ctx context.Context, cfg BackendConfig) (Completer, error) {
	switch strings.ToLower(strings.TrimSpace(cfg.Provider)) {
	case "", ProviderOpenAI:
		return NewOpenAI(cfg), nil
	case ProviderGemini:
		return NewGemini(ctx, cfg)
	case ProviderAnthropic:
		return NewAnthropic(cfg), nil
	default:
		return nil, fmt.Errorf("unknown classifier provider %q (want %s, %s or %s)", cfg.Provider, ProviderOpenAI, ProviderGemini, ProviderAnthropic)
	}
}
