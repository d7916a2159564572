// Package ocr turns photographed book pages into text.
package ocr

import (
	"context"
	"fmt"
	"strings"
)

// Extractor reads the text in an image
type Extractor interface {
	Name() string
	// Extract returns the provider's best single text annotation, or ""
	// when the image holds no text
	Extract(ctx context.Context, image []byte, mimeType string) (string, error)
}

// transcribePrompt is sent to the vision models
const transcribePrompt = "Transcribe all text visible in this photo of a book page exactly as printed. " +
	"Reply with the text only. If there is no text, reply with nothing."

// ExtractionError is returned when the extraction provider fails or times out
type ExtractionError struct {
	Provider string
	Err      error
}

func (e *ExtractionError) Error() string {
	return fmt.Sprintf("text extraction via %s failed: %v", e.Provider, e.Err)
}

func (e *ExtractionError) Unwrap() error {
	return e.Err
}

// Normalize collapses every run of whitespace, newlines included, into a
// single space and trims the ends
func Normalize(raw string) string {
	return strings.Join(strings.Fields(raw), " ")
}

// NewExtractor builds an extractor by provider name
func NewExtractor(provider, apiKey, model string) (Extractor, error) {
	switch provider {
	case "", "google":
		return NewGoogleVisionExtractor(apiKey), nil
	case "anthropic":
		return NewAnthropicExtractor(apiKey, model, ""), nil
	case "openai":
		return NewOpenAIExtractor(apiKey, model, ""), nil
	default:
		return nil, fmt.Errorf("unknown ocr provider %q", provider)
	}
}
