package provider

// Name identifies a hosted chat provider.
type Name string

const (
	Groq      Name = "groq"
	OpenAI    Name = "openai"
	Anthropic Name = "anthropic"
	Gemini    Name = "gemini"
)

// Models lists the selectable models per provider. The first entry is the
// provider's default.
var Models = map[Name][]string{
	Groq:      {"llama-3.1-70b-versatile", "gemma2-9b-it", "mixtral-8x7b-32768"},
	OpenAI:    {"gpt-4o-mini", "gpt-4o", "o1-preview", "o1-mini"},
	Anthropic: {"claude-sonnet-4-20250514", "claude-3-5-haiku-20241022"},
	Gemini:    {"gemini-1.5-flash", "gemini-1.5-pro"},
}

// Names returns providers in display order.
func Names() []Name {
	return []Name{Groq, OpenAI, Anthropic, Gemini}
}

// DefaultModel returns the first cataloged model for the provider, or "" if
// the provider is unknown.
func DefaultModel(name Name) string {
	models := Models[name]
	if len(models) == 0 {
		return ""
	}
	return models[0]
}

// Supported reports whether the provider's catalog lists model.
func Supported(name Name, model string) bool {
	for _, m := range Models[name] {
		if m == model {
			return true
		}
	}
	return false
}
