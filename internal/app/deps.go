package app

import (
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"time"

	"github.com/joho/godotenv"
	"github.com/nats-io/nats.go"
	"github.com/openai/openai-go/v3"

	"doc-oracle/internal/cache"
	"doc-oracle/internal/config"
	"doc-oracle/internal/embeddings"
	"doc-oracle/internal/loader"
	"doc-oracle/internal/logger"
	"doc-oracle/internal/oracle"
	"doc-oracle/internal/provider"
	"doc-oracle/internal/queue"
	"doc-oracle/internal/store"
)

// Deps bundles common runtime dependencies for the binaries.
type Deps struct {
	Config config.Config
	Log    *slog.Logger
	Store  store.Store
	Queue  queue.Queue
	Cache  cache.Cache
	Engine *oracle.Engine
}

// Build loads env, config, and shared components.
func Build() (Deps, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return Deps{}, fmt.Errorf("failed to load environment variables: %w", err)
	}
	cfg := config.Load()
	log := logger.New(cfg.LogLevel)

	st, err := buildStore(cfg, log)
	if err != nil {
		return Deps{}, fmt.Errorf("failed to initialize store: %w", err)
	}
	q, err := buildQueue(cfg, log)
	if err != nil {
		return Deps{}, fmt.Errorf("failed to initialize queue: %w", err)
	}
	c := buildCache(cfg, log)

	deps := Deps{
		Config: cfg,
		Log:    log,
		Store:  st,
		Queue:  q,
		Cache:  c,
	}
	deps.Engine = buildEngine(deps)
	return deps, nil
}

// BuildIngest builds dependencies for the standalone ingest worker. The
// worker needs a shared queue: with the in-process queue the web binary runs
// its own worker and a separate ingest process would never see a task.
func BuildIngest() (Deps, error) {
	deps, err := Build()
	if err != nil {
		return Deps{}, err
	}
	if deps.Config.QueueProvider != "nats" {
		return Deps{}, fmt.Errorf("QUEUE_PROVIDER=nats is required for the ingest worker (got %q)", deps.Config.QueueProvider)
	}
	return deps, nil
}

func buildStore(cfg config.Config, log *slog.Logger) (store.Store, error) {
	switch cfg.StoreProvider {
	case "postgres":
		if cfg.DBURL == "" {
			return nil, fmt.Errorf("DB_URL is required when STORE_PROVIDER=postgres")
		}
		db, err := store.NewPostgres(cfg.DBURL)
		if err != nil {
			return nil, fmt.Errorf("failed to initialize Postgres: %w", err)
		}
		log.Info("using Postgres store")
		return db, nil
	case "memory":
		log.Info("using in-memory store; conversations are lost on restart")
		return store.NewMemory(), nil
	default:
		return nil, fmt.Errorf("invalid STORE_PROVIDER: %s (valid options: memory, postgres)", cfg.StoreProvider)
	}
}

func buildQueue(cfg config.Config, log *slog.Logger) (queue.Queue, error) {
	switch cfg.QueueProvider {
	case "nats":
		if cfg.QueueURL == "" {
			return nil, fmt.Errorf("QUEUE_URL is required when QUEUE_PROVIDER=nats")
		}
		nc, err := nats.Connect(cfg.QueueURL)
		if err != nil {
			return nil, fmt.Errorf("failed to connect to NATS: %w", err)
		}
		log.Info("using NATS queue")
		return queue.NewNATS(log, nc), nil
	case "memory":
		log.Info("using in-process queue")
		return queue.NewMemory(log), nil
	default:
		return nil, fmt.Errorf("invalid QUEUE_PROVIDER: %s (valid options: memory, nats)", cfg.QueueProvider)
	}
}

// buildCache never fails startup: a missing Redis degrades to refetching
// sources every time.
func buildCache(cfg config.Config, log *slog.Logger) cache.Cache {
	if cfg.CacheProvider != "redis" {
		return cache.NewNoOpCache()
	}
	c, err := cache.NewRedisCache(cfg.RedisAddr, cfg.RedisPassword)
	if err != nil {
		log.Warn("redis unavailable; continuing without source cache", "err", err)
		return cache.NewNoOpCache()
	}
	log.Info("using Redis source cache", "addr", cfg.RedisAddr)
	return c
}

func buildEngine(deps Deps) *oracle.Engine {
	cfg := deps.Config

	var embedder embeddings.Embedder
	if key := cfg.EmbedderKey(); key != "" {
		e, err := embeddings.NewOpenAIEmbedder(key, openai.EmbeddingModel(cfg.EmbeddingModel))
		if err != nil {
			deps.Log.Warn("failed to initialize embedder; oversized documents will be truncated", "err", err)
		} else {
			embedder = e
			deps.Log.Info("retrieval enabled", "embedding_model", cfg.EmbeddingModel)
		}
	} else {
		deps.Log.Warn("OPENAI_API_KEY not set; oversized documents will be truncated instead of indexed")
	}

	languages := cfg.TranscriptLanguages()
	return &oracle.Engine{
		Log:      deps.Log,
		Store:    deps.Store,
		Queue:    deps.Queue,
		Cache:    deps.Cache,
		Loaders:  loader.NewRegistry(nil, cfg.UserAgent, languages),
		Factory:  provider.New,
		Embedder: embedder,
		Config: oracle.Config{
			InlineWordLimit: cfg.InlineWordLimit,
			TopK:            cfg.TopK,
			CacheTTL:        time.Duration(cfg.CacheTTL) * time.Second,
			EmbeddingModel:  cfg.EmbeddingModel,
			Languages:       languages,
		},
	}
}
