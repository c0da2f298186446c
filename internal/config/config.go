package config

import (
	"log/slog"
	"strings"

	"github.com/caarlos0/env/v10"
)

// Config holds runtime configuration for the oracle and ingest binaries.
type Config struct {
	// Server
	Port     int    `env:"PORT" envDefault:"8080"`
	LogLevel string `env:"LOG_LEVEL" envDefault:"info"`

	// Upload limits
	MaxUploadSize int64 `env:"MAX_UPLOAD_SIZE" envDefault:"10485760"` // 10MB in bytes

	// Store
	StoreProvider string `env:"STORE_PROVIDER" envDefault:"memory"`
	DBURL         string `env:"DB_URL"`

	// Queue
	QueueProvider string `env:"QUEUE_PROVIDER" envDefault:"memory"`
	QueueURL      string `env:"QUEUE_URL"`

	// Source cache
	CacheProvider string `env:"CACHE_PROVIDER" envDefault:"noop"`
	RedisAddr     string `env:"REDIS_ADDR"`
	RedisPassword string `env:"REDIS_PASSWORD"`
	CacheTTL      int    `env:"CACHE_TTL" envDefault:"3600"` // seconds

	// Chat providers. Keys prefill the form; the value typed in the UI wins
	// per conversation.
	DefaultProvider string `env:"DEFAULT_PROVIDER" envDefault:"groq"`
	DefaultModel    string `env:"DEFAULT_MODEL"`
	GroqKey         string `env:"GROQ_API_KEY"`
	OpenAIKey       string `env:"OPENAI_API_KEY"`
	AnthropicKey    string `env:"ANTHROPIC_API_KEY"`
	GeminiKey       string `env:"GEMINI_API_KEY"`

	// Document context. Documents above InlineWordLimit words switch from
	// full-prompt mode to retrieval (or truncation when no embedder key exists).
	EmbeddingModel  string `env:"EMBEDDING_MODEL" envDefault:"text-embedding-3-small"`
	InlineWordLimit int    `env:"INLINE_WORD_LIMIT" envDefault:"8000"`
	TopK            int    `env:"TOP_K" envDefault:"5"`

	// Loaders
	YoutubeLanguages string `env:"YOUTUBE_LANGUAGES" envDefault:"pt,en"`
	UserAgent        string `env:"USER_AGENT" envDefault:"Mozilla/5.0 (compatible; doc-oracle/1.0)"`
}

// Load reads configuration from environment variables with defaults.
func Load() Config {
	var cfg Config
	if err := env.Parse(&cfg); err != nil {
		slog.Warn("failed to parse env; using defaults where set", "err", err)
	}
	return cfg
}

// TranscriptLanguages returns the preferred YouTube caption languages in order.
func (c Config) TranscriptLanguages() []string {
	parts := strings.Split(c.YoutubeLanguages, ",")
	langs := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			langs = append(langs, p)
		}
	}
	return langs
}

// EmbedderKey returns the OpenAI key available for embeddings, if any.
func (c Config) EmbedderKey() string {
	return c.OpenAIKey
}
