package loader

import (
	"fmt"
	"strings"
	"unicode/utf8"
)

// ExtractText returns the upload as a string, rejecting non-UTF-8 content.
func ExtractText(content []byte) (string, error) {
	if !utf8.Valid(content) {
		return "", fmt.Errorf("file is not valid utf-8")
	}
	text := strings.TrimSpace(string(content))
	if text == "" {
		return "", fmt.Errorf("text file is empty")
	}
	return text, nil
}
