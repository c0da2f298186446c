package store

import (
	"context"
	"errors"
	"testing"

	"github.com/google/uuid"

	"doc-oracle/internal/embeddings"
)

func TestMemoryStoreConversationLifecycle(t *testing.T) {
	s := NewMemory()
	ctx := context.Background()

	conv, err := s.CreateConversation(ctx, "groq", "llama-3.1-70b-versatile", "key-123")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if conv.ID == uuid.Nil {
		t.Fatal("expected conversation id to be assigned")
	}

	got, err := s.GetConversation(ctx, conv.ID)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got.Provider != "groq" || got.Model != "llama-3.1-70b-versatile" || got.APIKey != "key-123" {
		t.Errorf("conversation fields not preserved: %+v", got)
	}

	_, err = s.GetConversation(ctx, uuid.New())
	if !errors.Is(err, ErrConversationNotFound) {
		t.Errorf("expected ErrConversationNotFound, got %v", err)
	}
}

func TestMemoryStoreMessagesOrdered(t *testing.T) {
	s := NewMemory()
	ctx := context.Background()
	conv, _ := s.CreateConversation(ctx, "groq", "", "")

	contents := []string{"first", "second", "third"}
	for i, c := range contents {
		role := "user"
		if i%2 == 1 {
			role = "assistant"
		}
		msg, err := s.AppendMessage(ctx, Message{ConversationID: conv.ID, Role: role, Content: c})
		if err != nil {
			t.Fatalf("append %q: %v", c, err)
		}
		if msg.Seq != i+1 {
			t.Errorf("message %q: expected seq %d, got %d", c, i+1, msg.Seq)
		}
	}

	msgs, err := s.ListMessages(ctx, conv.ID)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(msgs) != 3 {
		t.Fatalf("expected 3 messages, got %d", len(msgs))
	}
	for i, m := range msgs {
		if m.Content != contents[i] {
			t.Errorf("position %d: expected %q, got %q", i, contents[i], m.Content)
		}
		if m.Seq != i+1 {
			t.Errorf("position %d: expected seq %d, got %d", i, i+1, m.Seq)
		}
	}

	if err := s.ClearMessages(ctx, conv.ID); err != nil {
		t.Fatalf("clear: %v", err)
	}
	msgs, _ = s.ListMessages(ctx, conv.ID)
	if len(msgs) != 0 {
		t.Errorf("expected empty transcript after clear, got %d messages", len(msgs))
	}

	msg, _ := s.AppendMessage(ctx, Message{ConversationID: conv.ID, Role: "user", Content: "fresh"})
	if msg.Seq != 1 {
		t.Errorf("expected seq to restart at 1 after clear, got %d", msg.Seq)
	}
}

func TestMemoryStoreDocumentReplace(t *testing.T) {
	s := NewMemory()
	ctx := context.Background()
	conv, _ := s.CreateConversation(ctx, "openai", "gpt-4o-mini", "k")

	first, err := s.CreateDocument(ctx, Document{
		ConversationID: conv.ID,
		SourceType:     "Website",
		Location:       "https://example.com",
	})
	if err != nil {
		t.Fatalf("create first document: %v", err)
	}
	if first.Status != StatusLoading {
		t.Errorf("expected new document status loading, got %q", first.Status)
	}

	chunks, _ := s.SaveChunks(ctx, first.ID, []Chunk{{Index: 0, Text: "old text", WordCount: 2}})
	_ = s.SaveEmbeddings(ctx, []Embedding{{ChunkID: chunks[0].ID, Vector: embeddings.Vector{1, 0}}})

	second, err := s.CreateDocument(ctx, Document{
		ConversationID: conv.ID,
		SourceType:     "Txt",
		Filename:       "notes.txt",
	})
	if err != nil {
		t.Fatalf("create second document: %v", err)
	}

	got, err := s.GetDocument(ctx, conv.ID)
	if err != nil {
		t.Fatalf("get document: %v", err)
	}
	if got.ID != second.ID || got.SourceType != "Txt" {
		t.Errorf("expected active document replaced, got %+v", got)
	}

	results, _ := s.TopK(ctx, first.ID, embeddings.Vector{1, 0}, 5)
	if len(results) != 0 {
		t.Errorf("expected old document chunks removed, got %d results", len(results))
	}
}

func TestMemoryStoreDocumentStatus(t *testing.T) {
	s := NewMemory()
	ctx := context.Background()
	conv, _ := s.CreateConversation(ctx, "groq", "", "")
	doc, _ := s.CreateDocument(ctx, Document{ConversationID: conv.ID, SourceType: "Youtube", Location: "dQw4w9WgXcQ"})

	if err := s.SetDocumentText(ctx, doc.ID, "transcript text"); err != nil {
		t.Fatalf("set text: %v", err)
	}
	if err := s.UpdateDocumentStatus(ctx, doc.ID, StatusReady, ""); err != nil {
		t.Fatalf("update status: %v", err)
	}

	got, _ := s.GetDocument(ctx, conv.ID)
	if got.Status != StatusReady || got.Text != "transcript text" {
		t.Errorf("document not updated: %+v", got)
	}

	if err := s.UpdateDocumentStatus(ctx, doc.ID, StatusFailed, "no transcript"); err != nil {
		t.Fatalf("update status: %v", err)
	}
	got, _ = s.GetDocument(ctx, conv.ID)
	if got.Status != StatusFailed || got.Error != "no transcript" {
		t.Errorf("expected failed status with error, got %+v", got)
	}

	if err := s.UpdateDocumentStatus(ctx, uuid.New(), StatusReady, ""); !errors.Is(err, ErrDocumentNotFound) {
		t.Errorf("expected ErrDocumentNotFound, got %v", err)
	}
}

func TestMemoryStoreTopK(t *testing.T) {
	s := NewMemory()
	ctx := context.Background()
	conv, _ := s.CreateConversation(ctx, "groq", "", "")
	doc, _ := s.CreateDocument(ctx, Document{ConversationID: conv.ID, SourceType: "Txt", Filename: "a.txt"})

	chunks, err := s.SaveChunks(ctx, doc.ID, []Chunk{
		{Index: 0, Text: "about cats", WordCount: 2},
		{Index: 1, Text: "about dogs", WordCount: 2},
		{Index: 2, Text: "about fish", WordCount: 2},
	})
	if err != nil {
		t.Fatalf("save chunks: %v", err)
	}

	embs := []Embedding{
		{ChunkID: chunks[0].ID, Vector: embeddings.Vector{1, 0}},
		{ChunkID: chunks[1].ID, Vector: embeddings.Vector{0.9, 0.1}},
		{ChunkID: chunks[2].ID, Vector: embeddings.Vector{0, 1}},
	}
	if err := s.SaveEmbeddings(ctx, embs); err != nil {
		t.Fatalf("save embeddings: %v", err)
	}

	results, err := s.TopK(ctx, doc.ID, embeddings.Vector{1, 0}, 2)
	if err != nil {
		t.Fatalf("topk: %v", err)
	}
	if len(results) != 2 {
		t.Fatalf("expected 2 results, got %d", len(results))
	}
	if results[0].Chunk.Text != "about cats" {
		t.Errorf("expected closest chunk first, got %q", results[0].Chunk.Text)
	}
	if results[1].Chunk.Text != "about dogs" {
		t.Errorf("expected second closest chunk, got %q", results[1].Chunk.Text)
	}
	if results[0].Score < results[1].Score {
		t.Error("expected scores in descending order")
	}
}

func TestVectorToString(t *testing.T) {
	tests := []struct {
		vec      embeddings.Vector
		expected string
	}{
		{nil, "[]"},
		{embeddings.Vector{0.5}, "[0.5]"},
		{embeddings.Vector{1, -2.25, 0}, "[1,-2.25,0]"},
	}

	for _, tt := range tests {
		if got := vectorToString(tt.vec); got != tt.expected {
			t.Errorf("vectorToString(%v): got %q, want %q", tt.vec, got, tt.expected)
		}
	}
}
