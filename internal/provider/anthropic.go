package provider

import (
	"context"
	"fmt"
	"strings"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
)

// AnthropicClient calls Anthropic's Messages API.
type AnthropicClient struct {
	model  anthropic.Model
	client *anthropic.Client
}

// The Messages API requires an explicit reply cap.
const anthropicMaxTokens = 4096

// NewAnthropicClient builds a client against api.anthropic.com.
func NewAnthropicClient(apiKey, model string) (*AnthropicClient, error) {
	if apiKey == "" {
		return nil, fmt.Errorf("api key required")
	}
	cli := anthropic.NewClient(option.WithAPIKey(apiKey))
	return &AnthropicClient{
		model:  anthropic.Model(model),
		client: &cli,
	}, nil
}

func (c *AnthropicClient) Complete(ctx context.Context, messages []Message) (string, error) {
	if c == nil || c.client == nil {
		return "", fmt.Errorf("nil anthropic client")
	}
	msg, err := c.client.Messages.New(ctx, anthropicParams(c.model, messages))
	if err != nil {
		return "", err
	}
	var b strings.Builder
	for _, cb := range msg.Content {
		if tb, ok := cb.AsAny().(anthropic.TextBlock); ok {
			b.WriteString(tb.Text)
		}
	}
	if b.Len() == 0 {
		return "", fmt.Errorf("no content returned")
	}
	return b.String(), nil
}

func (c *AnthropicClient) Stream(ctx context.Context, messages []Message) (<-chan Token, error) {
	if c == nil || c.client == nil {
		return nil, fmt.Errorf("nil anthropic client")
	}
	stream := c.client.Messages.NewStreaming(ctx, anthropicParams(c.model, messages))

	ch := make(chan Token)
	go func() {
		defer close(ch)
		defer stream.Close()
		for stream.Next() {
			event := stream.Current()
			delta, ok := event.AsAny().(anthropic.ContentBlockDeltaEvent)
			if !ok {
				continue
			}
			text, ok := delta.Delta.AsAny().(anthropic.TextDelta)
			if !ok || text.Text == "" {
				continue
			}
			if !sendToken(ctx, ch, Token{Content: text.Text}) {
				return
			}
		}
		if err := stream.Err(); err != nil {
			sendToken(ctx, ch, Token{Err: err, Done: true})
			return
		}
		sendToken(ctx, ch, Token{Done: true})
	}()
	return ch, nil
}

func (c *AnthropicClient) Close() error { return nil }

// anthropicParams separates the system prompt from the turn list; the
// Messages API takes it as a top-level field rather than a message role.
func anthropicParams(model anthropic.Model, messages []Message) anthropic.MessageNewParams {
	params := anthropic.MessageNewParams{
		Model:     model,
		MaxTokens: anthropicMaxTokens,
	}
	for _, m := range messages {
		switch m.Role {
		case RoleSystem:
			params.System = []anthropic.TextBlockParam{{Text: m.Content}}
		case RoleAssistant:
			params.Messages = append(params.Messages, anthropic.NewAssistantMessage(anthropic.NewTextBlock(m.Content)))
		default:
			params.Messages = append(params.Messages, anthropic.NewUserMessage(anthropic.NewTextBlock(m.Content)))
		}
	}
	return params
}
