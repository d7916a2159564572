package ocr

import (
	"context"
	"encoding/base64"
	"strings"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
)

const defaultAnthropicModel = "claude-sonnet-4-5"

// AnthropicExtractor asks a Claude vision model to transcribe the page
type AnthropicExtractor struct {
	client anthropic.Client
	model  string
}

// NewAnthropicExtractor creates the extractor. baseURL overrides the API
// endpoint when set.
func NewAnthropicExtractor(apiKey, model, baseURL string) *AnthropicExtractor {
	opts := []option.RequestOption{
		option.WithAPIKey(apiKey),
		option.WithMaxRetries(0),
	}
	if baseURL != "" {
		opts = append(opts, option.WithBaseURL(strings.TrimRight(baseURL, "/")))
	}
	if model == "" {
		model = defaultAnthropicModel
	}
	return &AnthropicExtractor{client: anthropic.NewClient(opts...), model: model}
}

func (a *AnthropicExtractor) Name() string {
	return "anthropic"
}

func (a *AnthropicExtractor) Extract(ctx context.Context, image []byte, mimeType string) (string, error) {
	msg, err := a.client.Messages.New(ctx, anthropic.MessageNewParams{
		Model:     anthropic.Model(a.model),
		MaxTokens: 4096,
		Messages: []anthropic.MessageParam{
			anthropic.NewUserMessage(
				anthropic.NewImageBlockBase64(mimeType, base64.StdEncoding.EncodeToString(image)),
				anthropic.NewTextBlock(transcribePrompt),
			),
		},
	})
	if err != nil {
		return "", err
	}

	var sb strings.Builder
	for _, block := range msg.Content {
		if block.Type == "text" {
			sb.WriteString(block.Text)
		}
	}
	return strings.TrimSpace(sb.String()), nil
}
