package oracle

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"doc-oracle/internal/cache"
	"doc-oracle/internal/chunker"
	"doc-oracle/internal/embeddings"
	"doc-oracle/internal/loader"
	"doc-oracle/internal/provider"
	"doc-oracle/internal/queue"
	"doc-oracle/internal/store"
)

var (
	ErrEmptyQuestion = errors.New("question is empty")
	ErrNotReady      = errors.New("no document is loaded")
	ErrLoading       = errors.New("document is still loading")
	ErrSourceFailed  = errors.New("document failed to load")
)

const (
	chunkMaxWords = 400
	chunkOverlap  = 80

	// embedBatchSize bounds how many chunk texts go into one embedding call.
	embedBatchSize = 100

	enqueueAttempts = 3
	enqueueBackoff  = 200 * time.Millisecond
)

// Config tunes document context assembly and ingestion.
type Config struct {
	// InlineWordLimit is the largest document that still rides whole in the
	// system prompt. Above it, retrieval or truncation kicks in.
	InlineWordLimit int
	TopK            int
	CacheTTL        time.Duration
	EmbeddingModel  string
	// Languages are the preferred transcript languages, in order.
	Languages []string
}

// Engine drives the oracle: it initializes conversations, ingests their source
// documents, and answers questions grounded on them.
type Engine struct {
	Log      *slog.Logger
	Store    store.Store
	Queue    queue.Queue
	Cache    cache.Cache
	Loaders  loader.Loader
	Factory  provider.Factory
	Embedder embeddings.Embedder // nil disables retrieval mode
	Config   Config
}

// IngestPayload is the task body workers receive for TaskTypeIngest.
type IngestPayload struct {
	ConversationID string `json:"conversation_id"`
}

// InitRequest carries everything the setup form submits.
type InitRequest struct {
	Provider string
	Model    string
	APIKey   string
	Source   loader.Source
}

// CreateConversation validates the request, persists the conversation and its
// document, and schedules ingestion. Upload sources are parsed to text here;
// URL sources are fetched by the ingest worker.
func (e *Engine) CreateConversation(ctx context.Context, req InitRequest) (store.Conversation, error) {
	pcfg, err := provider.Normalize(provider.Config{
		Provider: provider.Name(req.Provider),
		Model:    req.Model,
		APIKey:   req.APIKey,
	})
	if err != nil {
		return store.Conversation{}, err
	}
	if err := req.Source.Validate(); err != nil {
		return store.Conversation{}, err
	}

	conv, err := e.Store.CreateConversation(ctx, string(pcfg.Provider), pcfg.Model, pcfg.APIKey)
	if err != nil {
		return store.Conversation{}, fmt.Errorf("create conversation: %w", err)
	}

	doc := store.Document{
		ConversationID: conv.ID,
		SourceType:     string(req.Source.Type),
		Location:       req.Source.Location,
		Filename:       req.Source.Filename,
	}
	if req.Source.Type == loader.TypeYoutube {
		doc.Languages = e.Config.Languages
	}
	doc, err = e.Store.CreateDocument(ctx, doc)
	if err != nil {
		return store.Conversation{}, fmt.Errorf("create document: %w", err)
	}

	// Upload bytes never travel through the queue; extract them now.
	if !req.Source.Type.NeedsFetch() {
		text, lerr := e.Loaders.Load(ctx, req.Source)
		if lerr != nil {
			e.failDocument(ctx, doc.ID, lerr)
			return store.Conversation{}, lerr
		}
		if err := e.Store.SetDocumentText(ctx, doc.ID, text); err != nil {
			return store.Conversation{}, fmt.Errorf("store document text: %w", err)
		}
	}

	task, err := queue.NewTask(queue.TaskTypeIngest, IngestPayload{ConversationID: conv.ID.String()})
	if err != nil {
		return store.Conversation{}, err
	}
	if err := queue.EnqueueWithRetry(ctx, e.Queue, task, enqueueAttempts, enqueueBackoff); err != nil {
		err = fmt.Errorf("enqueue ingest: %w", err)
		e.failDocument(ctx, doc.ID, err)
		return store.Conversation{}, err
	}

	e.Log.Info("conversation created",
		"conversation_id", conv.ID,
		"provider", conv.Provider,
		"model", conv.Model,
		"source_type", doc.SourceType)
	return conv, nil
}

// HandleIngest finalizes a conversation's document: resolves its text, indexes
// it for retrieval when it exceeds the inline budget, and flips the status.
// Load failures are recorded on the document rather than returned, so the
// queue does not redeliver work that will fail the same way again.
func (e *Engine) HandleIngest(ctx context.Context, conversationID uuid.UUID) error {
	doc, err := e.Store.GetDocument(ctx, conversationID)
	if err != nil {
		return err
	}
	if doc.Status == store.StatusReady {
		return nil
	}

	if err := e.ingest(ctx, doc); err != nil {
		e.Log.Error("ingest failed",
			"conversation_id", conversationID,
			"document_id", doc.ID,
			"source_type", doc.SourceType,
			"err", err)
		e.failDocument(ctx, doc.ID, err)
		return nil
	}

	if err := e.Store.UpdateDocumentStatus(ctx, doc.ID, store.StatusReady, ""); err != nil {
		return fmt.Errorf("mark document ready: %w", err)
	}
	e.Log.Info("document ready", "conversation_id", conversationID, "document_id", doc.ID)
	return nil
}

func (e *Engine) ingest(ctx context.Context, doc store.Document) error {
	text := doc.Text
	if text == "" {
		var err error
		text, err = e.loadSource(ctx, doc)
		if err != nil {
			return err
		}
		if err := e.Store.SetDocumentText(ctx, doc.ID, text); err != nil {
			return fmt.Errorf("store document text: %w", err)
		}
	}

	words := chunker.CountWords(text)
	if words <= e.Config.InlineWordLimit {
		return nil
	}
	if e.Embedder == nil {
		e.Log.Warn("document exceeds the inline budget and no embedder is configured; answers will see a truncated document",
			"document_id", doc.ID, "words", words, "limit", e.Config.InlineWordLimit)
		return nil
	}
	return e.index(ctx, doc.ID, text)
}

// loadSource resolves a URL source to text, consulting the source cache first.
// Cache failures are logged, never fatal.
func (e *Engine) loadSource(ctx context.Context, doc store.Document) (string, error) {
	key := cache.Key(doc.SourceType, doc.Location, doc.Languages)
	if text, found, err := e.Cache.GetSource(ctx, key); err != nil {
		e.Log.Warn("source cache read failed", "err", err)
	} else if found {
		e.Log.Info("source cache hit", "document_id", doc.ID)
		return text, nil
	}

	text, err := e.Loaders.Load(ctx, loader.Source{
		Type:     loader.Type(doc.SourceType),
		Location: doc.Location,
	})
	if err != nil {
		return "", err
	}
	if err := e.Cache.SetSource(ctx, key, text, e.Config.CacheTTL); err != nil {
		e.Log.Warn("failed to cache source text", "err", err)
	}
	return text, nil
}

// index chunks the text and stores chunk embeddings for retrieval.
func (e *Engine) index(ctx context.Context, docID uuid.UUID, text string) error {
	chunks := chunker.ChunkText(text, chunker.Options{MaxWords: chunkMaxWords, Overlap: chunkOverlap})
	storeChunks := make([]store.Chunk, 0, len(chunks))
	for _, c := range chunks {
		storeChunks = append(storeChunks, store.Chunk{Index: c.Index, Text: c.Text, WordCount: c.WordCount})
	}
	saved, err := e.Store.SaveChunks(ctx, docID, storeChunks)
	if err != nil {
		return fmt.Errorf("save chunks: %w", err)
	}

	embs := make([]store.Embedding, 0, len(saved))
	for start := 0; start < len(saved); start += embedBatchSize {
		end := min(start+embedBatchSize, len(saved))
		texts := make([]string, 0, end-start)
		for _, c := range saved[start:end] {
			texts = append(texts, c.Text)
		}
		vectors, err := e.Embedder.EmbedBatch(ctx, texts)
		if err != nil {
			return fmt.Errorf("embed chunks: %w", err)
		}
		for i, vec := range vectors {
			embs = append(embs, store.Embedding{
				ChunkID: saved[start+i].ID,
				Vector:  vec,
				Model:   e.Config.EmbeddingModel,
			})
		}
	}
	if err := e.Store.SaveEmbeddings(ctx, embs); err != nil {
		return fmt.Errorf("save embeddings: %w", err)
	}
	e.Log.Info("document indexed", "document_id", docID, "chunks", len(saved))
	return nil
}

// Ask answers one question and appends the exchange to the transcript. The
// exchange persists only after the provider call succeeds, so a failed call
// leaves the transcript untouched.
func (e *Engine) Ask(ctx context.Context, conversationID uuid.UUID, question string) (string, error) {
	prep, err := e.prepare(ctx, conversationID, question)
	if err != nil {
		return "", err
	}
	defer prep.client.Close()

	answer, err := prep.client.Complete(ctx, prep.messages)
	if err != nil {
		return "", fmt.Errorf("%s completion: %w", prep.conv.Provider, err)
	}
	if err := e.recordExchange(ctx, conversationID, question, answer); err != nil {
		return "", err
	}
	return answer, nil
}

// AskStream streams the reply token by token. The final token carries Done and
// any error; the exchange persists only when the stream finishes cleanly.
func (e *Engine) AskStream(ctx context.Context, conversationID uuid.UUID, question string) (<-chan provider.Token, error) {
	prep, err := e.prepare(ctx, conversationID, question)
	if err != nil {
		return nil, err
	}

	src, err := prep.client.Stream(ctx, prep.messages)
	if err != nil {
		prep.client.Close()
		return nil, fmt.Errorf("%s stream: %w", prep.conv.Provider, err)
	}

	out := make(chan provider.Token)
	go func() {
		defer close(out)
		defer prep.client.Close()

		var reply strings.Builder
		for tok := range src {
			reply.WriteString(tok.Content)
			if tok.Done && tok.Err == nil {
				if err := e.recordExchange(ctx, conversationID, question, reply.String()); err != nil {
					tok.Err = err
				}
			}
			select {
			case out <- tok:
			case <-ctx.Done():
				return
			}
			if tok.Done {
				return
			}
		}
	}()
	return out, nil
}

// ClearHistory drops the transcript. The document and model selection stay.
func (e *Engine) ClearHistory(ctx context.Context, conversationID uuid.UUID) error {
	if _, err := e.Store.GetConversation(ctx, conversationID); err != nil {
		return err
	}
	return e.Store.ClearMessages(ctx, conversationID)
}

type prepared struct {
	conv     store.Conversation
	messages []provider.Message
	client   provider.Client
}

// prepare assembles the full provider payload for one question: system prompt
// with document context, the transcript so far, and the question last.
func (e *Engine) prepare(ctx context.Context, conversationID uuid.UUID, question string) (prepared, error) {
	if strings.TrimSpace(question) == "" {
		return prepared{}, ErrEmptyQuestion
	}
	conv, err := e.Store.GetConversation(ctx, conversationID)
	if err != nil {
		return prepared{}, err
	}
	doc, err := e.Store.GetDocument(ctx, conversationID)
	if err != nil {
		if errors.Is(err, store.ErrDocumentNotFound) {
			return prepared{}, ErrNotReady
		}
		return prepared{}, err
	}
	switch doc.Status {
	case store.StatusLoading:
		return prepared{}, ErrLoading
	case store.StatusFailed:
		return prepared{}, fmt.Errorf("%w: %s", ErrSourceFailed, doc.Error)
	}

	history, err := e.Store.ListMessages(ctx, conversationID)
	if err != nil {
		return prepared{}, fmt.Errorf("list messages: %w", err)
	}

	docText, err := e.documentContext(ctx, doc, question)
	if err != nil {
		return prepared{}, err
	}

	messages := make([]provider.Message, 0, len(history)+2)
	messages = append(messages, provider.Message{
		Role:    provider.RoleSystem,
		Content: SystemPrompt(doc.SourceType, docText),
	})
	for _, m := range history {
		messages = append(messages, provider.Message{Role: provider.Role(m.Role), Content: m.Content})
	}
	messages = append(messages, provider.Message{Role: provider.RoleUser, Content: question})

	client, err := e.Factory(ctx, provider.Config{
		Provider: provider.Name(conv.Provider),
		Model:    conv.Model,
		APIKey:   conv.APIKey,
	})
	if err != nil {
		return prepared{}, fmt.Errorf("build %s client: %w", conv.Provider, err)
	}
	return prepared{conv: conv, messages: messages, client: client}, nil
}

// documentContext picks what of the document the prompt carries: the whole
// text when it fits the inline budget, the chunks closest to the question when
// an embedder indexed it, the leading words otherwise.
func (e *Engine) documentContext(ctx context.Context, doc store.Document, question string) (string, error) {
	if chunker.CountWords(doc.Text) <= e.Config.InlineWordLimit {
		return doc.Text, nil
	}
	if e.Embedder != nil {
		text, err := e.retrieve(ctx, doc, question)
		if err != nil {
			return "", err
		}
		if text != "" {
			return text, nil
		}
		// Nothing indexed to draw from; fall through to truncation.
	}
	return chunker.TruncateWords(doc.Text, e.Config.InlineWordLimit), nil
}

func (e *Engine) retrieve(ctx context.Context, doc store.Document, question string) (string, error) {
	vec, err := e.Embedder.Embed(ctx, question)
	if err != nil {
		return "", fmt.Errorf("embed question: %w", err)
	}
	results, err := e.Store.TopK(ctx, doc.ID, vec, e.Config.TopK)
	if err != nil {
		return "", fmt.Errorf("search chunks: %w", err)
	}
	if len(results) == 0 {
		return "", nil
	}

	parts := make([]string, 0, len(results))
	indexes := make([]int, 0, len(results))
	for _, r := range results {
		parts = append(parts, r.Chunk.Text)
		indexes = append(indexes, r.Chunk.Index)
	}
	e.Log.Info("retrieved context", "document_id", doc.ID, "chunks", indexes)
	return strings.Join(parts, "\n\n"), nil
}

func (e *Engine) recordExchange(ctx context.Context, conversationID uuid.UUID, question, answer string) error {
	if _, err := e.Store.AppendMessage(ctx, store.Message{
		ConversationID: conversationID,
		Role:           string(provider.RoleUser),
		Content:        question,
	}); err != nil {
		return fmt.Errorf("append user message: %w", err)
	}
	if _, err := e.Store.AppendMessage(ctx, store.Message{
		ConversationID: conversationID,
		Role:           string(provider.RoleAssistant),
		Content:        answer,
	}); err != nil {
		return fmt.Errorf("append assistant message: %w", err)
	}
	return nil
}

func (e *Engine) failDocument(ctx context.Context, docID uuid.UUID, cause error) {
	if err := e.Store.UpdateDocumentStatus(ctx, docID, store.StatusFailed, cause.Error()); err != nil {
		e.Log.Error("failed to mark document failed", "document_id", docID, "err", err)
	}
}
