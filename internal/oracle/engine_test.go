package oracle

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/mock"

	"doc-oracle/internal/cache"
	"doc-oracle/internal/embeddings"
	"doc-oracle/internal/loader"
	"doc-oracle/internal/provider"
	"doc-oracle/internal/queue"
	"doc-oracle/internal/store"
)

type engineFixture struct {
	engine *Engine
	store  *store.MemoryStore
	queue  *queue.MockQueue
	loader *loader.MockLoader
	client *provider.MockClient
}

func newFixture() *engineFixture {
	f := &engineFixture{
		store:  store.NewMemory(),
		queue:  new(queue.MockQueue),
		loader: new(loader.MockLoader),
		client: new(provider.MockClient),
	}
	f.engine = &Engine{
		Log:     slog.New(slog.NewTextHandler(io.Discard, nil)),
		Store:   f.store,
		Queue:   f.queue,
		Cache:   cache.NewNoOpCache(),
		Loaders: f.loader,
		Factory: func(ctx context.Context, cfg provider.Config) (provider.Client, error) {
			return f.client, nil
		},
		Config: Config{
			InlineWordLimit: 50,
			TopK:            2,
			CacheTTL:        time.Minute,
			EmbeddingModel:  "text-embedding-3-small",
			Languages:       []string{"pt"},
		},
	}
	return f
}

// seedReady puts a conversation with a ready Txt document in the store,
// bypassing the ingest pipeline.
func (f *engineFixture) seedReady(t *testing.T, text string) store.Conversation {
	t.Helper()
	ctx := context.Background()
	conv, err := f.store.CreateConversation(ctx, "groq", "llama-3.1-70b-versatile", "gsk-test")
	if err != nil {
		t.Fatalf("seed conversation: %v", err)
	}
	doc, err := f.store.CreateDocument(ctx, store.Document{
		ConversationID: conv.ID,
		SourceType:     "Txt",
		Filename:       "notes.txt",
	})
	if err != nil {
		t.Fatalf("seed document: %v", err)
	}
	if err := f.store.SetDocumentText(ctx, doc.ID, text); err != nil {
		t.Fatalf("seed text: %v", err)
	}
	if err := f.store.UpdateDocumentStatus(ctx, doc.ID, store.StatusReady, ""); err != nil {
		t.Fatalf("seed status: %v", err)
	}
	return conv
}

func TestCreateConversationValidation(t *testing.T) {
	txtSource := loader.Source{Type: loader.TypeTxt, Filename: "a.txt", Data: []byte("hi")}

	tests := []struct {
		name    string
		req     InitRequest
		wantErr string
	}{
		{
			name:    "unknown provider",
			req:     InitRequest{Provider: "mistral", APIKey: "k", Source: txtSource},
			wantErr: "unknown provider",
		},
		{
			name:    "model not in catalog",
			req:     InitRequest{Provider: "openai", Model: "gpt-2", APIKey: "k", Source: txtSource},
			wantErr: "not available",
		},
		{
			name:    "missing api key",
			req:     InitRequest{Provider: "groq", Source: txtSource},
			wantErr: "api key required",
		},
		{
			name:    "website without url",
			req:     InitRequest{Provider: "groq", APIKey: "k", Source: loader.Source{Type: loader.TypeWebsite}},
			wantErr: "url is required",
		},
		{
			name:    "upload without file",
			req:     InitRequest{Provider: "groq", APIKey: "k", Source: loader.Source{Type: loader.TypeTxt}},
			wantErr: "file is required",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture()
			_, err := f.engine.CreateConversation(context.Background(), tt.req)
			if err == nil || !strings.Contains(err.Error(), tt.wantErr) {
				t.Fatalf("expected error containing %q, got %v", tt.wantErr, err)
			}
		})
	}
}

func TestCreateConversationUpload(t *testing.T) {
	f := newFixture()
	ctx := context.Background()

	f.loader.On("Load", mock.Anything, mock.MatchedBy(func(src loader.Source) bool {
		return src.Type == loader.TypeTxt && src.Filename == "notes.txt"
	})).Return("plain text body", nil).Once()
	f.queue.On("Enqueue", mock.Anything, mock.MatchedBy(func(task queue.Task) bool {
		if task.Type != queue.TaskTypeIngest {
			return false
		}
		var p IngestPayload
		if err := json.Unmarshal(task.Payload, &p); err != nil {
			return false
		}
		return p.ConversationID != ""
	})).Return(nil).Once()

	conv, err := f.engine.CreateConversation(ctx, InitRequest{
		Provider: "groq",
		APIKey:   "gsk-test",
		Source:   loader.Source{Type: loader.TypeTxt, Filename: "notes.txt", Data: []byte("plain text body")},
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if conv.Model != "llama-3.1-70b-versatile" {
		t.Errorf("expected default groq model, got %q", conv.Model)
	}

	doc, err := f.store.GetDocument(ctx, conv.ID)
	if err != nil {
		t.Fatalf("get document: %v", err)
	}
	if doc.Text != "plain text body" {
		t.Errorf("expected upload parsed inline, got %q", doc.Text)
	}
	if doc.Status != store.StatusLoading {
		t.Errorf("expected status loading until the worker finishes, got %q", doc.Status)
	}
	f.loader.AssertExpectations(t)
	f.queue.AssertExpectations(t)
}

func TestCreateConversationURLDefersFetch(t *testing.T) {
	f := newFixture()
	ctx := context.Background()

	f.queue.On("Enqueue", mock.Anything, mock.Anything).Return(nil).Once()

	conv, err := f.engine.CreateConversation(ctx, InitRequest{
		Provider: "openai",
		Model:    "gpt-4o-mini",
		APIKey:   "sk-test",
		Source:   loader.Source{Type: loader.TypeWebsite, Location: "https://example.com"},
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	doc, _ := f.store.GetDocument(ctx, conv.ID)
	if doc.Text != "" {
		t.Errorf("expected url source left for the worker, got text %q", doc.Text)
	}
	f.loader.AssertNotCalled(t, "Load", mock.Anything, mock.Anything)
	f.queue.AssertExpectations(t)
}

func TestHandleIngestFetchesURL(t *testing.T) {
	f := newFixture()
	ctx := context.Background()

	conv, _ := f.store.CreateConversation(ctx, "groq", "llama-3.1-70b-versatile", "k")
	_, err := f.store.CreateDocument(ctx, store.Document{
		ConversationID: conv.ID,
		SourceType:     "Website",
		Location:       "https://example.com",
	})
	if err != nil {
		t.Fatalf("seed document: %v", err)
	}

	f.loader.On("Load", mock.Anything, mock.MatchedBy(func(src loader.Source) bool {
		return src.Type == loader.TypeWebsite && src.Location == "https://example.com"
	})).Return("site text", nil).Once()

	if err := f.engine.HandleIngest(ctx, conv.ID); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	doc, _ := f.store.GetDocument(ctx, conv.ID)
	if doc.Status != store.StatusReady {
		t.Errorf("expected status ready, got %q (%s)", doc.Status, doc.Error)
	}
	if doc.Text != "site text" {
		t.Errorf("expected fetched text stored, got %q", doc.Text)
	}
	f.loader.AssertExpectations(t)
}

func TestHandleIngestLoadFailure(t *testing.T) {
	f := newFixture()
	ctx := context.Background()

	conv, _ := f.store.CreateConversation(ctx, "groq", "llama-3.1-70b-versatile", "k")
	f.store.CreateDocument(ctx, store.Document{
		ConversationID: conv.ID,
		SourceType:     "Youtube",
		Location:       "dQw4w9WgXcQ",
	})

	f.loader.On("Load", mock.Anything, mock.Anything).
		Return("", errors.New("no transcript available for video dQw4w9WgXcQ")).Once()

	// Load failures are terminal; the error lands on the document instead of
	// bouncing the task back to the queue.
	if err := f.engine.HandleIngest(ctx, conv.ID); err != nil {
		t.Fatalf("expected nil so the task is not redelivered, got %v", err)
	}

	doc, _ := f.store.GetDocument(ctx, conv.ID)
	if doc.Status != store.StatusFailed {
		t.Errorf("expected status failed, got %q", doc.Status)
	}
	if !strings.Contains(doc.Error, "no transcript available") {
		t.Errorf("expected load error recorded, got %q", doc.Error)
	}
}

func TestHandleIngestCacheFailuresNonFatal(t *testing.T) {
	f := newFixture()
	ctx := context.Background()

	conv, _ := f.store.CreateConversation(ctx, "groq", "llama-3.1-70b-versatile", "k")
	f.store.CreateDocument(ctx, store.Document{
		ConversationID: conv.ID,
		SourceType:     "Website",
		Location:       "https://example.com",
	})

	flaky := new(cache.MockCache)
	flaky.On("GetSource", mock.Anything, mock.Anything).
		Return("", false, errors.New("redis: connection refused")).Once()
	flaky.On("SetSource", mock.Anything, mock.Anything, "site text", time.Minute).
		Return(errors.New("redis: connection refused")).Once()
	f.engine.Cache = flaky

	f.loader.On("Load", mock.Anything, mock.Anything).Return("site text", nil).Once()

	if err := f.engine.HandleIngest(ctx, conv.ID); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	doc, _ := f.store.GetDocument(ctx, conv.ID)
	if doc.Status != store.StatusReady {
		t.Errorf("expected cache failures to be non-fatal, got status %q (%s)", doc.Status, doc.Error)
	}
	flaky.AssertExpectations(t)
	f.loader.AssertExpectations(t)
}

func TestCreateConversationStoreFailure(t *testing.T) {
	f := newFixture()
	st := new(store.MockStore)
	st.On("CreateConversation", mock.Anything, "groq", "llama-3.1-70b-versatile", "k").
		Return(store.Conversation{}, errors.New("connection refused")).Once()
	f.engine.Store = st

	_, err := f.engine.CreateConversation(context.Background(), InitRequest{
		Provider: "groq",
		APIKey:   "k",
		Source:   loader.Source{Type: loader.TypeTxt, Filename: "a.txt", Data: []byte("hi")},
	})
	if err == nil || !strings.Contains(err.Error(), "create conversation") {
		t.Fatalf("expected wrapped store error, got %v", err)
	}
	st.AssertExpectations(t)
	f.queue.AssertNotCalled(t, "Enqueue", mock.Anything, mock.Anything)
}

func TestHandleIngestSkipsReadyDocument(t *testing.T) {
	f := newFixture()
	conv := f.seedReady(t, "already ingested")

	if err := f.engine.HandleIngest(context.Background(), conv.ID); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	f.loader.AssertNotCalled(t, "Load", mock.Anything, mock.Anything)
}

func TestHandleIngestIndexesOversizedDocument(t *testing.T) {
	f := newFixture()
	f.engine.Config.InlineWordLimit = 5
	emb := new(embeddings.MockEmbedder)
	f.engine.Embedder = emb
	ctx := context.Background()

	text := "one two three four five six seven eight nine ten"
	conv, _ := f.store.CreateConversation(ctx, "openai", "gpt-4o-mini", "k")
	doc, _ := f.store.CreateDocument(ctx, store.Document{
		ConversationID: conv.ID,
		SourceType:     "Txt",
		Filename:       "big.txt",
	})
	f.store.SetDocumentText(ctx, doc.ID, text)

	emb.On("EmbedBatch", mock.Anything, mock.MatchedBy(func(ts []string) bool {
		return len(ts) == 1 && ts[0] == text
	})).Return([]embeddings.Vector{{1, 0}}, nil).Once()

	if err := f.engine.HandleIngest(ctx, conv.ID); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	got, _ := f.store.GetDocument(ctx, conv.ID)
	if got.Status != store.StatusReady {
		t.Fatalf("expected status ready, got %q (%s)", got.Status, got.Error)
	}
	results, err := f.store.TopK(ctx, doc.ID, embeddings.Vector{1, 0}, 5)
	if err != nil {
		t.Fatalf("topk: %v", err)
	}
	if len(results) != 1 || results[0].Chunk.Text != text {
		t.Errorf("expected one indexed chunk, got %+v", results)
	}
	emb.AssertExpectations(t)
}

func TestAskAnswersAndRecords(t *testing.T) {
	f := newFixture()
	ctx := context.Background()
	conv := f.seedReady(t, "the capital of France is Paris")

	f.client.On("Complete", mock.Anything, mock.MatchedBy(func(msgs []provider.Message) bool {
		if len(msgs) != 2 {
			return false
		}
		sys := msgs[0]
		if sys.Role != provider.RoleSystem ||
			!strings.Contains(sys.Content, "document of type Txt") ||
			!strings.Contains(sys.Content, "the capital of France is Paris") {
			return false
		}
		return msgs[1].Role == provider.RoleUser && msgs[1].Content == "What is the capital?"
	})).Return("Paris.", nil).Once()
	f.client.On("Close").Return(nil)

	answer, err := f.engine.Ask(ctx, conv.ID, "What is the capital?")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if answer != "Paris." {
		t.Errorf("expected answer %q, got %q", "Paris.", answer)
	}

	msgs, _ := f.store.ListMessages(ctx, conv.ID)
	if len(msgs) != 2 {
		t.Fatalf("expected 2 transcript messages, got %d", len(msgs))
	}
	if msgs[0].Role != "user" || msgs[0].Content != "What is the capital?" {
		t.Errorf("unexpected user message: %+v", msgs[0])
	}
	if msgs[1].Role != "assistant" || msgs[1].Content != "Paris." {
		t.Errorf("unexpected assistant message: %+v", msgs[1])
	}
	f.client.AssertExpectations(t)
}

func TestAskSendsHistoryInOrder(t *testing.T) {
	f := newFixture()
	ctx := context.Background()
	conv := f.seedReady(t, "doc")

	f.store.AppendMessage(ctx, store.Message{ConversationID: conv.ID, Role: "user", Content: "first question"})
	f.store.AppendMessage(ctx, store.Message{ConversationID: conv.ID, Role: "assistant", Content: "first answer"})

	f.client.On("Complete", mock.Anything, mock.MatchedBy(func(msgs []provider.Message) bool {
		return len(msgs) == 4 &&
			msgs[0].Role == provider.RoleSystem &&
			msgs[1].Role == provider.RoleUser && msgs[1].Content == "first question" &&
			msgs[2].Role == provider.RoleAssistant && msgs[2].Content == "first answer" &&
			msgs[3].Role == provider.RoleUser && msgs[3].Content == "second question"
	})).Return("second answer", nil).Once()
	f.client.On("Close").Return(nil)

	if _, err := f.engine.Ask(ctx, conv.ID, "second question"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	msgs, _ := f.store.ListMessages(ctx, conv.ID)
	if len(msgs) != 4 {
		t.Errorf("expected 4 transcript messages, got %d", len(msgs))
	}
	f.client.AssertExpectations(t)
}

func TestAskNotReadyStates(t *testing.T) {
	tests := []struct {
		name     string
		setup    func(t *testing.T, f *engineFixture) uuid.UUID
		question string
		want     error
	}{
		{
			name:     "missing conversation",
			setup:    func(t *testing.T, f *engineFixture) uuid.UUID { return uuid.New() },
			question: "hello",
			want:     store.ErrConversationNotFound,
		},
		{
			name: "no document",
			setup: func(t *testing.T, f *engineFixture) uuid.UUID {
				conv, _ := f.store.CreateConversation(context.Background(), "groq", "llama-3.1-70b-versatile", "k")
				return conv.ID
			},
			question: "hello",
			want:     ErrNotReady,
		},
		{
			name: "document loading",
			setup: func(t *testing.T, f *engineFixture) uuid.UUID {
				ctx := context.Background()
				conv, _ := f.store.CreateConversation(ctx, "groq", "llama-3.1-70b-versatile", "k")
				f.store.CreateDocument(ctx, store.Document{ConversationID: conv.ID, SourceType: "Website", Location: "https://example.com"})
				return conv.ID
			},
			question: "hello",
			want:     ErrLoading,
		},
		{
			name: "document failed",
			setup: func(t *testing.T, f *engineFixture) uuid.UUID {
				ctx := context.Background()
				conv, _ := f.store.CreateConversation(ctx, "groq", "llama-3.1-70b-versatile", "k")
				doc, _ := f.store.CreateDocument(ctx, store.Document{ConversationID: conv.ID, SourceType: "Website", Location: "https://example.com"})
				f.store.UpdateDocumentStatus(ctx, doc.ID, store.StatusFailed, "fetch https://example.com: status 403")
				return conv.ID
			},
			question: "hello",
			want:     ErrSourceFailed,
		},
		{
			name: "empty question",
			setup: func(t *testing.T, f *engineFixture) uuid.UUID {
				return f.seedReady(t, "doc").ID
			},
			question: "   ",
			want:     ErrEmptyQuestion,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture()
			id := tt.setup(t, f)
			_, err := f.engine.Ask(context.Background(), id, tt.question)
			if !errors.Is(err, tt.want) {
				t.Errorf("expected %v, got %v", tt.want, err)
			}
		})
	}
}

func TestAskProviderFailurePersistsNothing(t *testing.T) {
	f := newFixture()
	ctx := context.Background()
	conv := f.seedReady(t, "doc")

	f.client.On("Complete", mock.Anything, mock.Anything).Return("", errors.New("rate limited")).Once()
	f.client.On("Close").Return(nil)

	if _, err := f.engine.Ask(ctx, conv.ID, "hello"); err == nil {
		t.Fatal("expected provider error")
	}

	msgs, _ := f.store.ListMessages(ctx, conv.ID)
	if len(msgs) != 0 {
		t.Errorf("expected empty transcript after provider failure, got %d messages", len(msgs))
	}
}

func TestAskStreamDeliversAndRecords(t *testing.T) {
	f := newFixture()
	ctx := context.Background()
	conv := f.seedReady(t, "doc")

	src := make(chan provider.Token, 3)
	src <- provider.Token{Content: "Hel"}
	src <- provider.Token{Content: "lo"}
	src <- provider.Token{Done: true}
	close(src)
	f.client.On("Stream", mock.Anything, mock.Anything).Return((<-chan provider.Token)(src), nil).Once()
	f.client.On("Close").Return(nil)

	ch, err := f.engine.AskStream(ctx, conv.ID, "greet me")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	var reply strings.Builder
	var final provider.Token
	for tok := range ch {
		reply.WriteString(tok.Content)
		if tok.Done {
			final = tok
		}
	}
	if reply.String() != "Hello" {
		t.Errorf("expected streamed reply %q, got %q", "Hello", reply.String())
	}
	if !final.Done || final.Err != nil {
		t.Errorf("unexpected final token: %+v", final)
	}

	msgs, _ := f.store.ListMessages(ctx, conv.ID)
	if len(msgs) != 2 {
		t.Fatalf("expected exchange persisted, got %d messages", len(msgs))
	}
	if msgs[1].Content != "Hello" {
		t.Errorf("expected assistant message %q, got %q", "Hello", msgs[1].Content)
	}
}

func TestAskStreamErrorPersistsNothing(t *testing.T) {
	f := newFixture()
	ctx := context.Background()
	conv := f.seedReady(t, "doc")

	src := make(chan provider.Token, 2)
	src <- provider.Token{Content: "par"}
	src <- provider.Token{Done: true, Err: errors.New("connection reset")}
	close(src)
	f.client.On("Stream", mock.Anything, mock.Anything).Return((<-chan provider.Token)(src), nil).Once()
	f.client.On("Close").Return(nil)

	ch, err := f.engine.AskStream(ctx, conv.ID, "greet me")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	var final provider.Token
	for tok := range ch {
		if tok.Done {
			final = tok
		}
	}
	if final.Err == nil {
		t.Fatal("expected the final token to carry the stream error")
	}

	msgs, _ := f.store.ListMessages(ctx, conv.ID)
	if len(msgs) != 0 {
		t.Errorf("expected nothing persisted after a broken stream, got %d messages", len(msgs))
	}
}

func TestAskRetrievesOversizedDocument(t *testing.T) {
	f := newFixture()
	f.engine.Config.InlineWordLimit = 5
	emb := new(embeddings.MockEmbedder)
	f.engine.Embedder = emb
	ctx := context.Background()

	text := "alpha bravo charlie delta echo foxtrot golf hotel india juliett kilo lima mike november oscar papa quebec romeo sierra tango"
	conv, _ := f.store.CreateConversation(ctx, "openai", "gpt-4o-mini", "k")
	doc, _ := f.store.CreateDocument(ctx, store.Document{ConversationID: conv.ID, SourceType: "Txt", Filename: "big.txt"})
	f.store.SetDocumentText(ctx, doc.ID, text)

	emb.On("EmbedBatch", mock.Anything, mock.Anything).Return([]embeddings.Vector{{1, 0}}, nil).Once()
	if err := f.engine.HandleIngest(ctx, conv.ID); err != nil {
		t.Fatalf("ingest: %v", err)
	}

	emb.On("Embed", mock.Anything, "where is tango?").Return(embeddings.Vector{1, 0}, nil).Once()
	f.client.On("Complete", mock.Anything, mock.MatchedBy(func(msgs []provider.Message) bool {
		// Retrieval injects the matching chunk; truncation would stop at "echo".
		return strings.Contains(msgs[0].Content, "tango")
	})).Return("at the end", nil).Once()
	f.client.On("Close").Return(nil)

	if _, err := f.engine.Ask(ctx, conv.ID, "where is tango?"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	emb.AssertExpectations(t)
	f.client.AssertExpectations(t)
}

func TestAskTruncatesWithoutEmbedder(t *testing.T) {
	f := newFixture()
	f.engine.Config.InlineWordLimit = 5
	ctx := context.Background()

	text := "alpha bravo charlie delta echo foxtrot golf hotel india juliett kilo lima mike november oscar papa quebec romeo sierra tango"
	conv := f.seedReady(t, text)

	f.client.On("Complete", mock.Anything, mock.MatchedBy(func(msgs []provider.Message) bool {
		return strings.Contains(msgs[0].Content, "echo") && !strings.Contains(msgs[0].Content, "tango")
	})).Return("ok", nil).Once()
	f.client.On("Close").Return(nil)

	if _, err := f.engine.Ask(ctx, conv.ID, "where is tango?"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	f.client.AssertExpectations(t)
}

func TestClearHistoryKeepsDocument(t *testing.T) {
	f := newFixture()
	ctx := context.Background()
	conv := f.seedReady(t, "doc text")

	f.store.AppendMessage(ctx, store.Message{ConversationID: conv.ID, Role: "user", Content: "q"})
	f.store.AppendMessage(ctx, store.Message{ConversationID: conv.ID, Role: "assistant", Content: "a"})

	if err := f.engine.ClearHistory(ctx, conv.ID); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	msgs, _ := f.store.ListMessages(ctx, conv.ID)
	if len(msgs) != 0 {
		t.Errorf("expected empty transcript, got %d messages", len(msgs))
	}
	doc, err := f.store.GetDocument(ctx, conv.ID)
	if err != nil || doc.Status != store.StatusReady || doc.Text != "doc text" {
		t.Errorf("expected document untouched, got %+v (%v)", doc, err)
	}

	if err := f.engine.ClearHistory(ctx, uuid.New()); !errors.Is(err, store.ErrConversationNotFound) {
		t.Errorf("expected ErrConversationNotFound, got %v", err)
	}
}
