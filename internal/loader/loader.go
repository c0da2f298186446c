package loader

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"

	"doc-oracle/internal/retry"
)

// Type identifies the kind of document behind a conversation.
type Type string

const (
	TypeWebsite Type = "Website"
	TypeYoutube Type = "Youtube"
	TypePdf     Type = "Pdf"
	TypeCsv     Type = "Csv"
	TypeTxt     Type = "Txt"
)

// Types returns the supported source types in display order.
func Types() []Type {
	return []Type{TypeWebsite, TypeYoutube, TypePdf, TypeCsv, TypeTxt}
}

func (t Type) Valid() bool {
	switch t {
	case TypeWebsite, TypeYoutube, TypePdf, TypeCsv, TypeTxt:
		return true
	}
	return false
}

// NeedsFetch reports whether the type takes a URL rather than an upload.
func (t Type) NeedsFetch() bool {
	return t == TypeWebsite || t == TypeYoutube
}

// Source describes one document to load. URL types carry Location, upload
// types carry Data.
type Source struct {
	Type     Type   `json:"type"`
	Location string `json:"location,omitempty"`
	Filename string `json:"filename,omitempty"`
	Data     []byte `json:"-"`
}

// Validate checks that the source carries what its type requires.
func (s Source) Validate() error {
	if !s.Type.Valid() {
		return fmt.Errorf("unsupported source type %q", s.Type)
	}
	if s.Type.NeedsFetch() && strings.TrimSpace(s.Location) == "" {
		return fmt.Errorf("url is required for %s sources", s.Type)
	}
	if !s.Type.NeedsFetch() && len(s.Data) == 0 {
		return fmt.Errorf("file is required for %s sources", s.Type)
	}
	return nil
}

// Loader resolves one source to plain text.
type Loader interface {
	Load(ctx context.Context, src Source) (string, error)
}

// Registry dispatches sources to the loader for their type.
type Registry struct {
	Website *WebsiteLoader
	Youtube *YoutubeLoader
}

// NewRegistry builds loaders sharing one HTTP client. A nil client gets a
// 30 second timeout default.
func NewRegistry(client *http.Client, userAgent string, languages []string) *Registry {
	if client == nil {
		client = &http.Client{Timeout: 30 * time.Second}
	}
	return &Registry{
		Website: NewWebsiteLoader(client, userAgent),
		Youtube: NewYoutubeLoader(client, userAgent, languages),
	}
}

// Load resolves src to plain text.
func (r *Registry) Load(ctx context.Context, src Source) (string, error) {
	if err := src.Validate(); err != nil {
		return "", err
	}
	switch src.Type {
	case TypeWebsite:
		return r.Website.Load(ctx, src.Location)
	case TypeYoutube:
		return r.Youtube.Load(ctx, src.Location)
	case TypePdf:
		return ExtractPDF(src.Data)
	case TypeCsv:
		return ExtractCSV(src.Data)
	default:
		return ExtractText(src.Data)
	}
}

// maxFetchBytes caps how much of a remote response gets read.
const maxFetchBytes = 10 << 20

const (
	fetchAttempts    = 3
	fetchBackoffBase = 500 * time.Millisecond
	fetchBackoffMax  = 5 * time.Second
)

// doWithRetry issues the request up to fetchAttempts times, backing off on
// transport errors and 5xx responses. build must return a fresh request each
// call since bodies cannot be replayed.
func doWithRetry(ctx context.Context, client *http.Client, build func() (*http.Request, error)) (*http.Response, error) {
	var lastErr error
	for attempt := 0; attempt < fetchAttempts; attempt++ {
		if attempt > 0 {
			select {
			case <-time.After(retry.CappedBackoff(attempt-1, fetchBackoffBase, fetchBackoffMax)):
			case <-ctx.Done():
				return nil, ctx.Err()
			}
		}
		req, err := build()
		if err != nil {
			return nil, err
		}
		resp, err := client.Do(req)
		if err != nil {
			lastErr = err
			continue
		}
		if resp.StatusCode >= http.StatusInternalServerError {
			resp.Body.Close()
			lastErr = fmt.Errorf("%s %s: status %d", req.Method, req.URL, resp.StatusCode)
			continue
		}
		return resp, nil
	}
	return nil, lastErr
}
