package metadata

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/justyntemme/readlog/internal/models"
)

// googleBooksMaxResults is the largest page the volumes endpoint accepts
const googleBooksMaxResults = 40

// GoogleBooksProvider searches the Google Books volumes API
type GoogleBooksProvider struct {
	client  *http.Client
	baseURL string
	apiKey  string
}

// NewGoogleBooksProvider creates a provider. apiKey is optional.
func NewGoogleBooksProvider(apiKey string) *GoogleBooksProvider {
	return &GoogleBooksProvider{
		client:  &http.Client{Timeout: 10 * time.Second},
		baseURL: "https://www.googleapis.com/books/v1",
		apiKey:  apiKey,
	}
}

func (p *GoogleBooksProvider) Name() string {
	return "googlebooks"
}

// googleBooksResponse matches the Google Books API response structure
type googleBooksResponse struct {
	TotalItems int `json:"totalItems"`
	Items      []struct {
		ID         string `json:"id"`
		VolumeInfo struct {
			Title         string   `json:"title"`
			Authors       []string `json:"authors"`
			Publisher     string   `json:"publisher"`
			PublishedDate string   `json:"publishedDate"`
			ImageLinks    struct {
				Thumbnail      string `json:"thumbnail"`
				SmallThumbnail string `json:"smallThumbnail"`
			} `json:"imageLinks"`
		} `json:"volumeInfo"`
	} `json:"items"`
}

func (p *GoogleBooksProvider) Search(ctx context.Context, query string, limit int) (*SearchPage, error) {
	if limit <= 0 || limit > googleBooksMaxResults {
		limit = googleBooksMaxResults
	}

	params := url.Values{}
	params.Set("q", query)
	params.Set("maxResults", strconv.Itoa(limit))
	if p.apiKey != "" {
		params.Set("key", p.apiKey)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, p.baseURL+"/volumes?"+params.Encode(), nil)
	if err != nil {
		return nil, &ProviderError{Provider: p.Name(), Err: err}
	}

	resp, err := p.client.Do(req)
	if err != nil {
		return nil, &ProviderError{Provider: p.Name(), Err: err}
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		return nil, statusError(p.Name(), resp.StatusCode)
	}

	var result googleBooksResponse
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return nil, &ProviderError{Provider: p.Name(), Err: fmt.Errorf("decode response: %w", err)}
	}

	page := &SearchPage{
		Results: make([]models.SearchResult, 0, len(result.Items)),
		Total:   result.TotalItems,
	}
	for _, item := range result.Items {
		info := item.VolumeInfo
		if info.Title == "" {
			continue
		}
		cover := info.ImageLinks.Thumbnail
		if cover == "" {
			cover = info.ImageLinks.SmallThumbnail
		}
		page.Results = append(page.Results, models.SearchResult{
			ID:            item.ID,
			Title:         info.Title,
			Author:        strings.Join(info.Authors, ", "),
			CoverURL:      strings.Replace(cover, "http://", "https://", 1),
			Publisher:     info.Publisher,
			PublishedDate: info.PublishedDate,
		})
	}
	if page.Total < len(page.Results) {
		page.Total = len(page.Results)
	}
	return page, nil
}
