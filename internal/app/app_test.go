package app

import (
	"strings"
	"testing"

	"doc-oracle/internal/queue"
	"doc-oracle/internal/store"
)

func TestBuildMemoryProviders(t *testing.T) {
	t.Setenv("STORE_PROVIDER", "memory")
	t.Setenv("QUEUE_PROVIDER", "memory")
	t.Setenv("CACHE_PROVIDER", "noop")
	t.Setenv("OPENAI_API_KEY", "")

	deps, err := Build()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if _, ok := deps.Store.(*store.MemoryStore); !ok {
		t.Errorf("expected memory store, got %T", deps.Store)
	}
	if _, ok := deps.Queue.(*queue.MemoryQueue); !ok {
		t.Errorf("expected memory queue, got %T", deps.Queue)
	}
	if deps.Engine == nil {
		t.Fatal("expected engine to be wired")
	}
	if deps.Engine.Embedder != nil {
		t.Error("expected no embedder without an OpenAI key")
	}
}

func TestBuildPostgresRequiresURL(t *testing.T) {
	t.Setenv("STORE_PROVIDER", "postgres")
	t.Setenv("DB_URL", "")

	_, err := Build()
	if err == nil || !strings.Contains(err.Error(), "DB_URL is required") {
		t.Fatalf("expected DB_URL error, got %v", err)
	}
}

func TestBuildNATSRequiresURL(t *testing.T) {
	t.Setenv("STORE_PROVIDER", "memory")
	t.Setenv("QUEUE_PROVIDER", "nats")
	t.Setenv("QUEUE_URL", "")

	_, err := Build()
	if err == nil || !strings.Contains(err.Error(), "QUEUE_URL is required") {
		t.Fatalf("expected QUEUE_URL error, got %v", err)
	}
}

func TestBuildIngestRequiresNATS(t *testing.T) {
	t.Setenv("STORE_PROVIDER", "memory")
	t.Setenv("QUEUE_PROVIDER", "memory")
	t.Setenv("CACHE_PROVIDER", "noop")

	_, err := BuildIngest()
	if err == nil || !strings.Contains(err.Error(), "QUEUE_PROVIDER=nats") {
		t.Fatalf("expected nats requirement error, got %v", err)
	}
}
