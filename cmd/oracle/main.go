package main

import (
	"context"
	"embed"
	"encoding/json"
	"errors"
	"fmt"
	"html/template"
	"io"
	"log/slog"
	"net/http"
	"os"
	"path/filepath"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"doc-oracle/internal/app"
	"doc-oracle/internal/httputil"
	"doc-oracle/internal/loader"
	"doc-oracle/internal/oracle"
	"doc-oracle/internal/provider"
	"doc-oracle/internal/queue"
	"doc-oracle/internal/store"
)

//go:embed templates/*
var templatesFS embed.FS

// conversationCookie lets a reloaded page pick its session back up.
const conversationCookie = "oracle_conversation"

// uploadExts maps upload source types to the one extension each accepts.
var uploadExts = map[loader.Type]string{
	loader.TypePdf: ".pdf",
	loader.TypeCsv: ".csv",
	loader.TypeTxt: ".txt",
}

func main() {
	deps, err := app.Build()
	if err != nil {
		slog.Default().Error("failed to build dependencies", "err", err)
		os.Exit(1)
	}

	tmpl, err := template.ParseFS(templatesFS, "templates/*.html")
	if err != nil {
		deps.Log.Error("failed to parse templates", "err", err)
		os.Exit(1)
	}

	r := httputil.NewRouter(deps.Log)

	r.Get("/", pageHandler(deps, tmpl))
	r.Post("/api/conversations", initHandler(deps))
	r.Get("/api/conversations/{id}", statusHandler(deps))
	r.Get("/api/conversations/{id}/messages", historyHandler(deps))
	r.Post("/api/conversations/{id}/messages", askHandler(deps))
	r.Get("/api/conversations/{id}/stream", streamHandler(deps))
	r.Post("/api/conversations/{id}/clear", clearHandler(deps))
	r.Get("/healthz", httputil.HealthHandler(deps))

	g, ctx := errgroup.WithContext(context.Background())

	// With the in-process queue there is no separate ingest binary, so run
	// the worker alongside the server.
	if deps.Config.QueueProvider == "memory" {
		g.Go(func() error {
			return deps.Queue.Worker(ctx, queue.TaskTypeIngest, func(ctx context.Context, task queue.Task) error {
				var payload oracle.IngestPayload
				if err := json.Unmarshal(task.Payload, &payload); err != nil {
					return fmt.Errorf("decode ingest payload: %w", err)
				}
				id, err := uuid.Parse(payload.ConversationID)
				if err != nil {
					return fmt.Errorf("parse conversation id: %w", err)
				}
				return deps.Engine.HandleIngest(ctx, id)
			})
		})
	}

	g.Go(func() error {
		addr := fmt.Sprintf(":%d", deps.Config.Port)
		deps.Log.Info("oracle listening", "addr", addr)
		return http.ListenAndServe(addr, r)
	})

	if err := g.Wait(); err != nil {
		deps.Log.Error("oracle stopped", "err", err)
	}
}

// pageData feeds the single-page template.
type pageData struct {
	Providers      []providerOption
	SourceTypes    []loader.Type
	ConversationID string
}

type providerOption struct {
	Name   provider.Name
	Models []string
	APIKey string
}

func pageHandler(deps app.Deps, tmpl *template.Template) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		data := pageData{SourceTypes: loader.Types()}
		for _, name := range provider.Names() {
			data.Providers = append(data.Providers, providerOption{
				Name:   name,
				Models: provider.Models[name],
				APIKey: configuredKey(deps, name),
			})
		}
		if c, err := r.Cookie(conversationCookie); err == nil {
			if id, err := uuid.Parse(c.Value); err == nil {
				if _, err := deps.Store.GetConversation(r.Context(), id); err == nil {
					data.ConversationID = id.String()
				}
			}
		}

		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		if err := tmpl.ExecuteTemplate(w, "index.html", data); err != nil {
			deps.Log.Error("failed to render page", "err", err)
		}
	}
}

// configuredKey prefills the API key field from the environment; the value
// typed in the form wins per conversation.
func configuredKey(deps app.Deps, name provider.Name) string {
	switch name {
	case provider.Groq:
		return deps.Config.GroqKey
	case provider.OpenAI:
		return deps.Config.OpenAIKey
	case provider.Anthropic:
		return deps.Config.AnthropicKey
	case provider.Gemini:
		return deps.Config.GeminiKey
	default:
		return ""
	}
}

func initHandler(deps app.Deps) http.HandlerFunc {
	maxFileSize := deps.Config.MaxUploadSize

	return func(w http.ResponseWriter, r *http.Request) {
		// Validate file size before parsing
		if r.ContentLength > maxFileSize {
			httputil.Fail(deps.Log, w, fmt.Sprintf("file too large (max %d bytes)", maxFileSize), nil, http.StatusBadRequest)
			return
		}

		src := loader.Source{
			Type:     loader.Type(r.FormValue("source_type")),
			Location: strings.TrimSpace(r.FormValue("url")),
		}
		if !src.Type.Valid() {
			httputil.Fail(deps.Log, w, fmt.Sprintf("unsupported source type %q", src.Type), nil, http.StatusBadRequest)
			return
		}

		if !src.Type.NeedsFetch() {
			file, header, err := r.FormFile("file")
			if err != nil {
				httputil.Fail(deps.Log, w, "file is required", err, http.StatusBadRequest)
				return
			}
			defer file.Close()

			if header.Size > maxFileSize {
				httputil.Fail(deps.Log, w, fmt.Sprintf("file too large (max %d bytes)", maxFileSize), nil, http.StatusBadRequest)
				return
			}
			if ext := strings.ToLower(filepath.Ext(header.Filename)); ext != uploadExts[src.Type] {
				httputil.Fail(deps.Log, w, fmt.Sprintf("unsupported file type (expected %s)", uploadExts[src.Type]), nil, http.StatusBadRequest)
				return
			}

			content, err := io.ReadAll(file)
			if err != nil {
				httputil.Fail(deps.Log, w, "failed to read file", err, http.StatusInternalServerError)
				return
			}
			src.Filename = header.Filename
			src.Data = content
		}

		conv, err := deps.Engine.CreateConversation(r.Context(), oracle.InitRequest{
			Provider: r.FormValue("provider"),
			Model:    r.FormValue("model"),
			APIKey:   strings.TrimSpace(r.FormValue("api_key")),
			Source:   src,
		})
		if err != nil {
			httputil.Fail(deps.Log, w, err.Error(), err, initStatus(err))
			return
		}

		http.SetCookie(w, &http.Cookie{
			Name:     conversationCookie,
			Value:    conv.ID.String(),
			Path:     "/",
			SameSite: http.SameSiteLaxMode,
		})
		httputil.WriteJSON(w, http.StatusAccepted, map[string]any{
			"conversation_id": conv.ID,
			"status":          string(store.StatusLoading),
		})
	}
}

// initStatus distinguishes bad form input from infrastructure failure.
// Validation and load errors surface verbatim so the page can show them.
func initStatus(err error) int {
	msg := err.Error()
	switch {
	case strings.Contains(msg, "enqueue ingest"),
		strings.Contains(msg, "create conversation"),
		strings.Contains(msg, "create document"),
		strings.Contains(msg, "store document text"):
		return http.StatusInternalServerError
	default:
		return http.StatusBadRequest
	}
}

func statusHandler(deps app.Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, ok := conversationID(deps, w, r)
		if !ok {
			return
		}
		doc, err := deps.Store.GetDocument(r.Context(), id)
		if err != nil {
			httputil.Fail(deps.Log, w, "conversation not found", err, http.StatusNotFound)
			return
		}
		body := map[string]any{
			"conversation_id": id,
			"status":          string(doc.Status),
			"source_type":     doc.SourceType,
		}
		if doc.Error != "" {
			body["error"] = doc.Error
		}
		httputil.WriteJSON(w, http.StatusOK, body)
	}
}

func historyHandler(deps app.Deps) http.HandlerFunc {
	type entry struct {
		Role    string `json:"role"`
		Content string `json:"content"`
	}
	return func(w http.ResponseWriter, r *http.Request) {
		id, ok := conversationID(deps, w, r)
		if !ok {
			return
		}
		msgs, err := deps.Store.ListMessages(r.Context(), id)
		if err != nil {
			httputil.Fail(deps.Log, w, "failed to list messages", err, http.StatusInternalServerError)
			return
		}
		entries := make([]entry, 0, len(msgs))
		for _, m := range msgs {
			entries = append(entries, entry{Role: m.Role, Content: m.Content})
		}
		httputil.WriteJSON(w, http.StatusOK, map[string]any{"messages": entries})
	}
}

type askRequest struct {
	Question string `json:"question" validate:"required,max=4000"`
}

func askHandler(deps app.Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, ok := conversationID(deps, w, r)
		if !ok {
			return
		}

		var req askRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			httputil.Fail(deps.Log, w, "invalid payload", err, http.StatusBadRequest)
			return
		}
		if err := httputil.Validator.Struct(&req); err != nil {
			httputil.ValidationError(deps.Log, w, err)
			return
		}

		answer, err := deps.Engine.Ask(r.Context(), id, req.Question)
		if err != nil {
			status, msg := askError(err)
			httputil.Fail(deps.Log, w, msg, err, status)
			return
		}
		httputil.WriteJSON(w, http.StatusOK, map[string]any{"answer": answer})
	}
}

// streamEvent is one SSE frame. A failed stream ends with Error set.
type streamEvent struct {
	Delta string `json:"delta,omitempty"`
	Done  bool   `json:"done,omitempty"`
	Error string `json:"error,omitempty"`
}

func streamHandler(deps app.Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, ok := conversationID(deps, w, r)
		if !ok {
			return
		}

		flusher, fok := w.(http.Flusher)
		if !fok {
			httputil.Fail(deps.Log, w, "streaming not supported", nil, http.StatusInternalServerError)
			return
		}

		w.Header().Set("Content-Type", "text/event-stream")
		w.Header().Set("Cache-Control", "no-cache")
		w.Header().Set("Connection", "keep-alive")

		// Errors travel inside the stream; EventSource clients cannot read
		// an HTTP error body.
		tokens, err := deps.Engine.AskStream(r.Context(), id, r.URL.Query().Get("question"))
		if err != nil {
			_, msg := askError(err)
			deps.Log.Error("stream setup failed", "err", err, "conversation_id", id)
			sendEvent(w, flusher, streamEvent{Done: true, Error: msg})
			return
		}

		for tok := range tokens {
			ev := streamEvent{Delta: tok.Content, Done: tok.Done}
			if tok.Err != nil {
				ev.Error = tok.Err.Error()
			}
			sendEvent(w, flusher, ev)
			if tok.Done {
				return
			}
		}
	}
}

func sendEvent(w http.ResponseWriter, flusher http.Flusher, ev streamEvent) {
	data, _ := json.Marshal(ev)
	fmt.Fprintf(w, "data: %s\n\n", data)
	flusher.Flush()
}

func clearHandler(deps app.Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, ok := conversationID(deps, w, r)
		if !ok {
			return
		}
		if err := deps.Engine.ClearHistory(r.Context(), id); err != nil {
			if errors.Is(err, store.ErrConversationNotFound) {
				httputil.Fail(deps.Log, w, "conversation not found", err, http.StatusNotFound)
				return
			}
			httputil.Fail(deps.Log, w, "failed to clear history", err, http.StatusInternalServerError)
			return
		}
		httputil.WriteJSON(w, http.StatusOK, map[string]any{"cleared": true})
	}
}

func conversationID(deps app.Deps, w http.ResponseWriter, r *http.Request) (uuid.UUID, bool) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		httputil.Fail(deps.Log, w, "invalid conversation id", err, http.StatusBadRequest)
		return uuid.Nil, false
	}
	return id, true
}

// askError maps engine failures to a status and a message the page shows in
// the chat pane.
func askError(err error) (int, string) {
	switch {
	case errors.Is(err, oracle.ErrEmptyQuestion):
		return http.StatusBadRequest, "question is required"
	case errors.Is(err, store.ErrConversationNotFound), errors.Is(err, oracle.ErrNotReady):
		return http.StatusConflict, "Load the Oracle"
	case errors.Is(err, oracle.ErrLoading):
		return http.StatusConflict, "document is still loading"
	case errors.Is(err, oracle.ErrSourceFailed):
		return http.StatusConflict, err.Error()
	default:
		return http.StatusInternalServerError, "failed to answer"
	}
}
