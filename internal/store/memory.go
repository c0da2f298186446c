package store

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"doc-oracle/internal/embeddings"
)

// MemoryStore keeps everything in process. It backs the standalone
// single-binary mode and the tests; state is lost on restart.
type MemoryStore struct {
	mu            sync.RWMutex
	conversations map[uuid.UUID]Conversation
	documents     map[uuid.UUID]Document  // by document id
	activeDoc     map[uuid.UUID]uuid.UUID // conversation id -> document id
	messages      map[uuid.UUID][]Message // conversation id -> ordered transcript
	chunks        map[uuid.UUID][]Chunk   // document id -> chunks
	embeddings    map[uuid.UUID]Embedding // chunk id -> embedding
	seq           map[uuid.UUID]int       // conversation id -> last message seq
}

func NewMemory() *MemoryStore {
	return &MemoryStore{
		conversations: make(map[uuid.UUID]Conversation),
		documents:     make(map[uuid.UUID]Document),
		activeDoc:     make(map[uuid.UUID]uuid.UUID),
		messages:      make(map[uuid.UUID][]Message),
		chunks:        make(map[uuid.UUID][]Chunk),
		embeddings:    make(map[uuid.UUID]Embedding),
		seq:           make(map[uuid.UUID]int),
	}
}

func (s *MemoryStore) CreateConversation(ctx context.Context, provider, model, apiKey string) (Conversation, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	conv := Conversation{
		ID:        uuid.New(),
		Provider:  provider,
		Model:     model,
		APIKey:    apiKey,
		CreatedAt: time.Now(),
	}
	s.conversations[conv.ID] = conv
	return conv, nil
}

func (s *MemoryStore) GetConversation(ctx context.Context, id uuid.UUID) (Conversation, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	conv, ok := s.conversations[id]
	if !ok {
		return Conversation{}, ErrConversationNotFound
	}
	return conv, nil
}

func (s *MemoryStore) CreateDocument(ctx context.Context, doc Document) (Document, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if old, ok := s.activeDoc[doc.ConversationID]; ok {
		for _, c := range s.chunks[old] {
			delete(s.embeddings, c.ID)
		}
		delete(s.chunks, old)
		delete(s.documents, old)
	}

	doc.ID = uuid.New()
	doc.Status = StatusLoading
	doc.Error = ""
	doc.CreatedAt = time.Now()
	s.documents[doc.ID] = doc
	s.activeDoc[doc.ConversationID] = doc.ID
	return doc, nil
}

func (s *MemoryStore) GetDocument(ctx context.Context, conversationID uuid.UUID) (Document, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	id, ok := s.activeDoc[conversationID]
	if !ok {
		return Document{}, ErrDocumentNotFound
	}
	return s.documents[id], nil
}

func (s *MemoryStore) UpdateDocumentStatus(ctx context.Context, id uuid.UUID, status DocumentStatus, errMsg string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	doc, ok := s.documents[id]
	if !ok {
		return ErrDocumentNotFound
	}
	doc.Status = status
	doc.Error = errMsg
	s.documents[id] = doc
	return nil
}

func (s *MemoryStore) SetDocumentText(ctx context.Context, id uuid.UUID, text string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	doc, ok := s.documents[id]
	if !ok {
		return ErrDocumentNotFound
	}
	doc.Text = text
	s.documents[id] = doc
	return nil
}

func (s *MemoryStore) AppendMessage(ctx context.Context, msg Message) (Message, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.seq[msg.ConversationID]++
	msg.ID = uuid.New()
	msg.Seq = s.seq[msg.ConversationID]
	msg.CreatedAt = time.Now()
	s.messages[msg.ConversationID] = append(s.messages[msg.ConversationID], msg)
	return msg, nil
}

func (s *MemoryStore) ListMessages(ctx context.Context, conversationID uuid.UUID) ([]Message, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	msgs := s.messages[conversationID]
	out := make([]Message, len(msgs))
	copy(out, msgs)
	return out, nil
}

func (s *MemoryStore) ClearMessages(ctx context.Context, conversationID uuid.UUID) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	delete(s.messages, conversationID)
	delete(s.seq, conversationID)
	return nil
}

func (s *MemoryStore) SaveChunks(ctx context.Context, docID uuid.UUID, chunks []Chunk) ([]Chunk, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]Chunk, 0, len(chunks))
	for _, c := range chunks {
		c.ID = uuid.New()
		c.DocumentID = docID
		out = append(out, c)
	}
	s.chunks[docID] = out
	return out, nil
}

func (s *MemoryStore) SaveEmbeddings(ctx context.Context, embs []Embedding) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, e := range embs {
		s.embeddings[e.ChunkID] = e
	}
	return nil
}

func (s *MemoryStore) TopK(ctx context.Context, docID uuid.UUID, vector embeddings.Vector, k int) ([]SearchResult, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var results []SearchResult
	for _, c := range s.chunks[docID] {
		emb, ok := s.embeddings[c.ID]
		if !ok {
			continue
		}
		results = append(results, SearchResult{
			Chunk: c,
			Score: embeddings.CosineSimilarity(vector, emb.Vector),
		})
	}
	sort.Slice(results, func(i, j int) bool { return results[i].Score > results[j].Score })
	if k > 0 && len(results) > k {
		results = results[:k]
	}
	return results, nil
}

func (s *MemoryStore) Close() error { return nil }
