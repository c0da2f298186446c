package chunker

import (
	"strings"
)

// Options controls how text is chunked.
type Options struct {
	MaxWords int
	Overlap  int
}

// Chunk represents a slice of the document text.
type Chunk struct {
	Index     int
	Text      string
	WordCount int
}

// ChunkText performs a word-based sliding window with overlap. Paragraph
// breaks (blank lines) are preferred cut points, so a chunk never straddles
// a paragraph boundary unless a single paragraph exceeds MaxWords.
func ChunkText(text string, opts Options) []Chunk {
	if opts.MaxWords <= 0 {
		opts.MaxWords = 400
	}
	if opts.Overlap < 0 || opts.Overlap >= opts.MaxWords {
		opts.Overlap = 0
	}

	var chunks []Chunk
	var cur []string
	fresh := 0 // words in cur not carried over from the previous chunk

	emit := func() {
		if fresh == 0 {
			return
		}
		chunks = append(chunks, Chunk{
			Index:     len(chunks),
			Text:      strings.Join(cur, " "),
			WordCount: len(cur),
		})
		if opts.Overlap > 0 && len(cur) > opts.Overlap {
			cur = append([]string(nil), cur[len(cur)-opts.Overlap:]...)
		} else {
			cur = nil
		}
		fresh = 0
	}

	for _, para := range strings.Split(text, "\n\n") {
		words := strings.Fields(para)
		if len(words) == 0 {
			continue
		}
		if fresh > 0 && len(cur)+len(words) > opts.MaxWords {
			emit()
		}
		for len(cur)+len(words) > opts.MaxWords {
			take := opts.MaxWords - len(cur)
			cur = append(cur, words[:take]...)
			fresh += take
			words = words[take:]
			emit()
		}
		cur = append(cur, words...)
		fresh += len(words)
	}
	emit()

	return chunks
}

// CountWords returns the number of whitespace-delimited words in text.
func CountWords(text string) int {
	return len(strings.Fields(text))
}

// TruncateWords returns the first limit words of text, keeping paragraph
// breaks so the result still reads like the source. Text already within the
// limit is returned unchanged.
func TruncateWords(text string, limit int) string {
	if limit <= 0 {
		return ""
	}
	if CountWords(text) <= limit {
		return text
	}

	var parts []string
	remaining := limit
	for _, para := range strings.Split(text, "\n\n") {
		words := strings.Fields(para)
		if len(words) == 0 {
			continue
		}
		if len(words) >= remaining {
			parts = append(parts, strings.Join(words[:remaining], " "))
			break
		}
		parts = append(parts, strings.Join(words, " "))
		remaining -= len(words)
	}
	return strings.Join(parts, "\n\n")
}
