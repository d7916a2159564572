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

// OpenLibraryProvider implements the Provider interface for Open Library API
type OpenLibraryProvider struct {
	client  *http.Client
	baseURL string
}

// NewOpenLibraryProvider creates a new Open Library provider
func NewOpenLibraryProvider() *OpenLibraryProvider {
	return &OpenLibraryProvider{
		client: &http.Client{
			Timeout: 10 * time.Second,
		},
		baseURL: "https://openlibrary.org",
	}
}

// Name returns the provider identifier
func (p *OpenLibraryProvider) Name() string {
	return "openlibrary"
}

// olSearchResponse represents an Open Library search response
type olSearchResponse struct {
	NumFound int           `json:"numFound"`
	Docs     []olSearchDoc `json:"docs"`
}

// olSearchDoc represents a document in search results
type olSearchDoc struct {
	Key              string   `json:"key"`
	Title            string   `json:"title"`
	AuthorName       []string `json:"author_name"`
	Publisher        []string `json:"publisher"`
	FirstPublishYear int      `json:"first_publish_year"`
	ISBN             []string `json:"isbn"`
	CoverI           int      `json:"cover_i"`
}

// Search queries /search.json with a free-text q
func (p *OpenLibraryProvider) Search(ctx context.Context, query string, limit int) (*SearchPage, error) {
	params := url.Values{}
	params.Set("q", query)
	params.Set("limit", strconv.Itoa(limit))
	params.Set("fields", "key,title,author_name,publisher,first_publish_year,isbn,cover_i")

	searchURL := fmt.Sprintf("%s/search.json?%s", p.baseURL, params.Encode())
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, searchURL, nil)
	if err != nil {
		return nil, &ProviderError{Provider: p.Name(), Err: err}
	}
	req.Header.Set("Accept", "application/json")

	resp, err := p.client.Do(req)
	if err != nil {
		return nil, &ProviderError{Provider: p.Name(), Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, statusError(p.Name(), resp.StatusCode)
	}

	var data olSearchResponse
	if err := json.NewDecoder(resp.Body).Decode(&data); err != nil {
		return nil, &ProviderError{Provider: p.Name(), Err: fmt.Errorf("decode response: %w", err)}
	}

	page := &SearchPage{
		Results: make([]models.SearchResult, 0, len(data.Docs)),
		Total:   data.NumFound,
	}
	for _, doc := range data.Docs {
		if doc.Title == "" {
			continue
		}
		page.Results = append(page.Results, p.convertSearchDoc(&doc))
	}
	if page.Total < len(page.Results) {
		page.Total = len(page.Results)
	}
	return page, nil
}

// coverURL returns the medium cover for an ISBN
func (p *OpenLibraryProvider) coverURL(isbn string) string {
	isbn = normalizeISBN(isbn)
	if isbn == "" {
		return ""
	}
	return fmt.Sprintf("https://covers.openlibrary.org/b/isbn/%s-M.jpg", isbn)
}

// convertSearchDoc converts a search result to a SearchResult
func (p *OpenLibraryProvider) convertSearchDoc(doc *olSearchDoc) models.SearchResult {
	result := models.SearchResult{
		ID:        strings.TrimPrefix(doc.Key, "/works/"),
		Title:     doc.Title,
		Author:    strings.Join(doc.AuthorName, ", "),
		Publisher: firstOrEmpty(doc.Publisher),
	}

	if doc.FirstPublishYear > 0 {
		result.PublishedDate = strconv.Itoa(doc.FirstPublishYear)
	}

	if doc.CoverI > 0 {
		result.CoverURL = fmt.Sprintf("https://covers.openlibrary.org/b/id/%d-M.jpg", doc.CoverI)
	} else if len(doc.ISBN) > 0 {
		result.CoverURL = p.coverURL(doc.ISBN[0])
	}

	return result
}

// normalizeISBN removes hyphens and spaces from ISBN
func normalizeISBN(isbn string) string {
	isbn = strings.ReplaceAll(isbn, "-", "")
	isbn = strings.ReplaceAll(isbn, " ", "")
	// Handle URN format
	isbn = strings.TrimPrefix(strings.ToLower(isbn), "urn:isbn:")
	return strings.TrimSpace(isbn)
}

// firstOrEmpty returns the first element or empty string
func firstOrEmpty(s []string) string {
	if len(s) > 0 {
		return s[0]
	}
	return ""
}
