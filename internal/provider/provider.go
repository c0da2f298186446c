package provider

import (
	"context"
	"fmt"
)

// Role identifies who authored a conversation message.
type Role string

const (
	RoleSystem    Role = "system"
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// Message is one turn of a conversation, system prompt included.
type Message struct {
	Role    Role   `json:"role"`
	Content string `json:"content"`
}

// Token is one streamed fragment of a model reply. The final token has Done
// set; a failed stream carries the error on its final token.
type Token struct {
	Content string
	Done    bool
	Err     error
}

// Client is a minimal chat interface to allow pluggable providers.
type Client interface {
	Complete(ctx context.Context, messages []Message) (string, error)
	Stream(ctx context.Context, messages []Message) (<-chan Token, error)
	Close() error
}

// Config selects a provider, model, and credential for one conversation.
type Config struct {
	Provider Name
	Model    string
	APIKey   string
}

// Factory builds a Client for a provider configuration. Tests substitute
// their own to avoid network calls.
type Factory func(ctx context.Context, cfg Config) (Client, error)

// Normalize validates cfg against the catalog, filling in the provider's
// default model when none is set. Every provider requires an API key.
func Normalize(cfg Config) (Config, error) {
	if _, ok := Models[cfg.Provider]; !ok {
		return Config{}, fmt.Errorf("unknown provider %q", cfg.Provider)
	}
	if cfg.Model == "" {
		cfg.Model = DefaultModel(cfg.Provider)
	}
	if !Supported(cfg.Provider, cfg.Model) {
		return Config{}, fmt.Errorf("model %q is not available for provider %q", cfg.Model, cfg.Provider)
	}
	if cfg.APIKey == "" {
		return Config{}, fmt.Errorf("api key required for provider %q", cfg.Provider)
	}
	return cfg, nil
}

// New builds the real client for cfg. The model must be one the provider's
// catalog lists; an empty model falls back to the provider's default.
func New(ctx context.Context, cfg Config) (Client, error) {
	cfg, err := Normalize(cfg)
	if err != nil {
		return nil, err
	}

	switch cfg.Provider {
	case Groq:
		return NewGroqClient(cfg.APIKey, cfg.Model)
	case OpenAI:
		return NewOpenAIClient(cfg.APIKey, cfg.Model)
	case Anthropic:
		return NewAnthropicClient(cfg.APIKey, cfg.Model)
	default:
		return NewGeminiClient(ctx, cfg.APIKey, cfg.Model)
	}
}

// sendToken delivers t unless ctx is cancelled first.
func sendToken(ctx context.Context, ch chan<- Token, t Token) bool {
	select {
	case ch <- t:
		return true
	case <-ctx.Done():
		return false
	}
}
