package ocr

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"time"
)

// GoogleVisionExtractor calls the Cloud Vision images:annotate endpoint
// with TEXT_DETECTION
type GoogleVisionExtractor struct {
	client  *http.Client
	baseURL string
	apiKey  string
}

func NewGoogleVisionExtractor(apiKey string) *GoogleVisionExtractor {
	return &GoogleVisionExtractor{
		client:  &http.Client{Timeout: 30 * time.Second},
		baseURL: "https://vision.googleapis.com/v1",
		apiKey:  apiKey,
	}
}

func (g *GoogleVisionExtractor) Name() string {
	return "google"
}

type annotateRequest struct {
	Requests []annotateImageRequest `json:"requests"`
}

type annotateImageRequest struct {
	Image struct {
		Content string `json:"content"`
	} `json:"image"`
	Features []annotateFeature `json:"features"`
}

type annotateFeature struct {
	Type string `json:"type"`
}

type annotateResponse struct {
	Responses []struct {
		TextAnnotations []struct {
			Description string `json:"description"`
		} `json:"textAnnotations"`
		Error *struct {
			Code    int    `json:"code"`
			Message string `json:"message"`
		} `json:"error"`
	} `json:"responses"`
}

func (g *GoogleVisionExtractor) Extract(ctx context.Context, image []byte, _ string) (string, error) {
	var req annotateImageRequest
	req.Image.Content = base64.StdEncoding.EncodeToString(image)
	req.Features = []annotateFeature{{Type: "TEXT_DETECTION"}}

	body, err := json.Marshal(annotateRequest{Requests: []annotateImageRequest{req}})
	if err != nil {
		return "", err
	}

	endpoint := g.baseURL + "/images:annotate"
	if g.apiKey != "" {
		endpoint += "?" + url.Values{"key": {g.apiKey}}.Encode()
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(body))
	if err != nil {
		return "", err
	}
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := g.client.Do(httpReq)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("vision api returned status %d", resp.StatusCode)
	}

	var data annotateResponse
	if err := json.NewDecoder(resp.Body).Decode(&data); err != nil {
		return "", fmt.Errorf("decode vision response: %w", err)
	}
	if len(data.Responses) == 0 {
		return "", nil
	}

	first := data.Responses[0]
	if first.Error != nil {
		return "", fmt.Errorf("vision api error %d: %s", first.Error.Code, first.Error.Message)
	}
	if len(first.TextAnnotations) == 0 {
		return "", nil
	}
	return first.TextAnnotations[0].Description, nil
}
