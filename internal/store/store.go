package store

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"

	"doc-oracle/internal/embeddings"
)

type DocumentStatus string

const (
	StatusLoading DocumentStatus = "loading"
	StatusReady   DocumentStatus = "ready"
	StatusFailed  DocumentStatus = "failed"
)

var (
	ErrConversationNotFound = errors.New("conversation not found")
	ErrDocumentNotFound     = errors.New("document not found")
)

// Conversation is one oracle session: a provider selection plus an ordered
// transcript, grounded on a single document.
type Conversation struct {
	ID        uuid.UUID
	Provider  string
	Model     string
	APIKey    string
	CreatedAt time.Time
}

// Document is the source a conversation is grounded on. URL sources carry
// Location; uploads carry Filename. Text holds the extracted plain text once
// ingestion finishes.
type Document struct {
	ID             uuid.UUID
	ConversationID uuid.UUID
	SourceType     string
	Location       string
	Filename       string
	Languages      []string
	Status         DocumentStatus
	Error          string
	Text           string
	CreatedAt      time.Time
}

// Message is one transcript entry. Seq starts at 1 and increases in
// insertion order within a conversation.
type Message struct {
	ID             uuid.UUID
	ConversationID uuid.UUID
	Seq            int
	Role           string
	Content        string
	CreatedAt      time.Time
}

type Chunk struct {
	ID         uuid.UUID
	DocumentID uuid.UUID
	Index      int
	Text       string
	WordCount  int
}

type Embedding struct {
	ChunkID uuid.UUID
	Vector  embeddings.Vector
	Model   string
}

type SearchResult struct {
	Chunk Chunk
	Score float32
}

// Store defines persistence contract; an external DB implementation can replace this.
type Store interface {
	CreateConversation(ctx context.Context, provider, model, apiKey string) (Conversation, error)
	GetConversation(ctx context.Context, id uuid.UUID) (Conversation, error)

	// CreateDocument replaces any previous document of the conversation;
	// a conversation is grounded on at most one document.
	CreateDocument(ctx context.Context, doc Document) (Document, error)
	GetDocument(ctx context.Context, conversationID uuid.UUID) (Document, error)
	UpdateDocumentStatus(ctx context.Context, id uuid.UUID, status DocumentStatus, errMsg string) error
	SetDocumentText(ctx context.Context, id uuid.UUID, text string) error

	AppendMessage(ctx context.Context, msg Message) (Message, error)
	ListMessages(ctx context.Context, conversationID uuid.UUID) ([]Message, error)
	ClearMessages(ctx context.Context, conversationID uuid.UUID) error

	SaveChunks(ctx context.Context, docID uuid.UUID, chunks []Chunk) ([]Chunk, error)
	SaveEmbeddings(ctx context.Context, embs []Embedding) error
	TopK(ctx context.Context, docID uuid.UUID, vector embeddings.Vector, k int) ([]SearchResult, error)

	Close() error
}
