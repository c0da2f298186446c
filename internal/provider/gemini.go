package provider

import (
	"context"
	"fmt"
	"strings"

	"github.com/google/generative-ai-go/genai"
	"google.golang.org/api/iterator"
	"google.golang.org/api/option"
)

// GeminiClient calls the Gemini API through the generative-ai SDK.
type GeminiClient struct {
	model  string
	client *genai.Client
}

// NewGeminiClient builds a client; the SDK wants a context at construction.
func NewGeminiClient(ctx context.Context, apiKey, model string) (*GeminiClient, error) {
	if apiKey == "" {
		return nil, fmt.Errorf("api key required")
	}
	cli, err := genai.NewClient(ctx, option.WithAPIKey(apiKey))
	if err != nil {
		return nil, fmt.Errorf("create gemini client: %w", err)
	}
	return &GeminiClient{model: model, client: cli}, nil
}

func (c *GeminiClient) Complete(ctx context.Context, messages []Message) (string, error) {
	if c == nil || c.client == nil {
		return "", fmt.Errorf("nil gemini client")
	}
	session, last, err := c.session(messages)
	if err != nil {
		return "", err
	}
	resp, err := session.SendMessage(ctx, genai.Text(last))
	if err != nil {
		return "", err
	}
	text := geminiText(resp)
	if text == "" {
		return "", fmt.Errorf("empty response")
	}
	return text, nil
}

func (c *GeminiClient) Stream(ctx context.Context, messages []Message) (<-chan Token, error) {
	if c == nil || c.client == nil {
		return nil, fmt.Errorf("nil gemini client")
	}
	session, last, err := c.session(messages)
	if err != nil {
		return nil, err
	}
	iter := session.SendMessageStream(ctx, genai.Text(last))

	ch := make(chan Token)
	go func() {
		defer close(ch)
		for {
			resp, err := iter.Next()
			if err == iterator.Done {
				sendToken(ctx, ch, Token{Done: true})
				return
			}
			if err != nil {
				sendToken(ctx, ch, Token{Err: err, Done: true})
				return
			}
			if text := geminiText(resp); text != "" {
				if !sendToken(ctx, ch, Token{Content: text}) {
					return
				}
			}
		}
	}()
	return ch, nil
}

func (c *GeminiClient) Close() error { return c.client.Close() }

// session maps the transcript onto a chat session: the system prompt becomes
// a system instruction, prior turns become history, and the trailing user
// message is returned to be sent live.
func (c *GeminiClient) session(messages []Message) (*genai.ChatSession, string, error) {
	model := c.client.GenerativeModel(c.model)

	var turns []*genai.Content
	for _, m := range messages {
		switch m.Role {
		case RoleSystem:
			model.SystemInstruction = &genai.Content{Parts: []genai.Part{genai.Text(m.Content)}}
		case RoleAssistant:
			turns = append(turns, &genai.Content{Role: "model", Parts: []genai.Part{genai.Text(m.Content)}})
		default:
			turns = append(turns, &genai.Content{Role: "user", Parts: []genai.Part{genai.Text(m.Content)}})
		}
	}
	n := len(turns)
	if n == 0 || turns[n-1].Role != "user" {
		return nil, "", fmt.Errorf("conversation must end with a user message")
	}
	last, _ := turns[n-1].Parts[0].(genai.Text)

	session := model.StartChat()
	session.History = turns[:n-1]
	return session, string(last), nil
}

func geminiText(resp *genai.GenerateContentResponse) string {
	if resp == nil || len(resp.Candidates) == 0 || resp.Candidates[0].Content == nil {
		return ""
	}
	var b strings.Builder
	for _, part := range resp.Candidates[0].Content.Parts {
		if t, ok := part.(genai.Text); ok {
			b.WriteString(string(t))
		}
	}
	return b.String()
}
