package external

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
)

const defaultMaxTokens = 1500

// AnthropicClient sends single-turn prompts to the Messages API.
type AnthropicClient struct {
	model  string
	client anthropic.Client
}

// NewAnthropicClient builds a client for model. Extra options are applied
// after the defaults, so tests can point it at another base URL.
func NewAnthropicClient(apiKey, model string, opts ...option.RequestOption) *AnthropicClient {
	all := []option.RequestOption{
		option.WithAPIKey(apiKey),
		option.WithMaxRetries(2),
		option.WithRequestTimeout(60 * time.Second),
	}
	all = append(all, opts...)
	return &AnthropicClient{model: model, client: anthropic.NewClient(all...)}
}

// Complete sends a single user prompt and returns the concatenated text blocks.
func (c *AnthropicClient) Complete(ctx context.Context, prompt string) (string, error) {
	msg, err := c.client.Messages.New(ctx, anthropic.MessageNewParams{
		Model:     anthropic.Model(c.model),
		MaxTokens: defaultMaxTokens,
		Messages: []anthropic.MessageParam{
			anthropic.NewUserMessage(anthropic.NewTextBlock(prompt)),
		},
	})
	if err != nil {
		return "", fmt.Errorf("anthropic request: %w", err)
	}

	var sb strings.Builder
	for _, block := range msg.Content {
		if block.Type == "text" {
			sb.WriteString(block.Text)
		}
	}
	if sb.Len() == 0 {
		return "", errors.New("anthropic response had no text content")
	}
	return sb.String(), nil
}
