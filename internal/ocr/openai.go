package ocr

import (
	"context"
	"encoding/base64"
	"strings"

	"github.com/openai/openai-go/v2"
	"github.com/openai/openai-go/v2/option"
)

const defaultOpenAIModel = "gpt-4o-mini"

// OpenAIExtractor asks an OpenAI vision model to transcribe the page
type OpenAIExtractor struct {
	client openai.Client
	model  string
}

func NewOpenAIExtractor(apiKey, model, baseURL string) *OpenAIExtractor {
	opts := []option.RequestOption{
		option.WithAPIKey(apiKey),
		option.WithMaxRetries(0),
	}
	if baseURL != "" {
		opts = append(opts, option.WithBaseURL(strings.TrimRight(baseURL, "/")+"/"))
	}
	if model == "" {
		model = defaultOpenAIModel
	}
	return &OpenAIExtractor{client: openai.NewClient(opts...), model: model}
}

func (o *OpenAIExtractor) Name() string {
	return "openai"
}

func (o *OpenAIExtractor) Extract(ctx context.Context, image []byte, mimeType string) (string, error) {
	dataURL := "data:" + mimeType + ";base64," + base64.StdEncoding.EncodeToString(image)

	resp, err := o.client.Chat.Completions.New(ctx, openai.ChatCompletionNewParams{
		Model: openai.ChatModel(o.model),
		Messages: []openai.ChatCompletionMessageParamUnion{
			openai.UserMessage([]openai.ChatCompletionContentPartUnionParam{
				openai.TextContentPart(transcribePrompt),
				openai.ImageContentPart(openai.ChatCompletionContentPartImageImageURLParam{URL: dataURL}),
			}),
		},
	})
	if err != nil {
		return "", err
	}
	if len(resp.Choices) == 0 {
		return "", nil
	}
	return strings.TrimSpace(resp.Choices[0].Message.Content), nil
}
