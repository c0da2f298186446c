package oracle

import (
	"strings"
	"testing"
)

func TestSystemPrompt(t *testing.T) {
	got := SystemPrompt("Youtube", "transcript body")

	for _, want := range []string{
		"friendly assistant named Oracle",
		"document of type Youtube",
		"####\ntranscript body\n####",
		"replace it with S",
		`"Just a moment...Enable JavaScript and cookies to continue"`,
	} {
		if !strings.Contains(got, want) {
			t.Errorf("prompt missing %q", want)
		}
	}
}
