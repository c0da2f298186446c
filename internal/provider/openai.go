package provider

import (
	"context"
	"fmt"

	"github.com/openai/openai-go/v3"
	"github.com/openai/openai-go/v3/option"
)

// OpenAIClient calls an OpenAI-compatible Chat Completions API. Groq exposes
// the same wire surface, so both providers share this client.
type OpenAIClient struct {
	model  openai.ChatModel
	client *openai.Client
}

const groqBaseURL = "https://api.groq.com/openai/v1"

// NewOpenAIClient builds a client with defaults against api.openai.com.
func NewOpenAIClient(apiKey, model string, opts ...option.RequestOption) (*OpenAIClient, error) {
	if apiKey == "" {
		return nil, fmt.Errorf("api key required")
	}
	opts = append([]option.RequestOption{option.WithAPIKey(apiKey)}, opts...)
	cli := openai.NewClient(opts...)
	return &OpenAIClient{
		model:  openai.ChatModel(model),
		client: &cli,
	}, nil
}

// NewGroqClient builds an OpenAIClient pointed at Groq's endpoint.
func NewGroqClient(apiKey, model string) (*OpenAIClient, error) {
	return NewOpenAIClient(apiKey, model, option.WithBaseURL(groqBaseURL))
}

func (c *OpenAIClient) Complete(ctx context.Context, messages []Message) (string, error) {
	if c == nil || c.client == nil {
		return "", fmt.Errorf("nil openai client")
	}
	resp, err := c.client.Chat.Completions.New(ctx, openai.ChatCompletionNewParams{
		Model:    c.model,
		Messages: buildMessages(messages),
	})
	if err != nil {
		return "", err
	}
	if len(resp.Choices) == 0 || resp.Choices[0].Message.Content == "" {
		return "", fmt.Errorf("no choices returned")
	}
	return resp.Choices[0].Message.Content, nil
}

func (c *OpenAIClient) Stream(ctx context.Context, messages []Message) (<-chan Token, error) {
	if c == nil || c.client == nil {
		return nil, fmt.Errorf("nil openai client")
	}
	stream := c.client.Chat.Completions.NewStreaming(ctx, openai.ChatCompletionNewParams{
		Model:    c.model,
		Messages: buildMessages(messages),
	})

	ch := make(chan Token)
	go func() {
		defer close(ch)
		defer stream.Close()
		for stream.Next() {
			chunk := stream.Current()
			if len(chunk.Choices) == 0 {
				continue
			}
			delta := chunk.Choices[0].Delta.Content
			if delta == "" {
				continue
			}
			if !sendToken(ctx, ch, Token{Content: delta}) {
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

func (c *OpenAIClient) Close() error { return nil }

func buildMessages(messages []Message) []openai.ChatCompletionMessageParamUnion {
	params := make([]openai.ChatCompletionMessageParamUnion, 0, len(messages))
	for _, m := range messages {
		switch m.Role {
		case RoleSystem:
			params = append(params, openai.ChatCompletionMessageParamUnion{
				OfSystem: &openai.ChatCompletionSystemMessageParam{
					Content: openai.ChatCompletionSystemMessageParamContentUnion{
						OfString: openai.String(m.Content),
					},
				},
			})
		case RoleAssistant:
			params = append(params, openai.ChatCompletionMessageParamUnion{
				OfAssistant: &openai.ChatCompletionAssistantMessageParam{
					Content: openai.ChatCompletionAssistantMessageParamContentUnion{
						OfString: openai.String(m.Content),
					},
				},
			})
		default:
			params = append(params, openai.ChatCompletionMessageParamUnion{
				OfUser: &openai.ChatCompletionUserMessageParam{
					Content: openai.ChatCompletionUserMessageParamContentUnion{
						OfString: openai.String(m.Content),
					},
				},
			})
		}
	}
	return params
}
