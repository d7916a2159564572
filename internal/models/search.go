package models

// SearchResult is a book as returned by a search provider, normalized
type SearchResult struct {
	ID            string `json:"id,omitempty"`
	Title         string `json:"title"`
	Author        string `json:"author"`
	CoverURL      string `json:"coverUrl"`
	Publisher     string `json:"publisher,omitempty"`
	PublishedDate string `json:"publishedDate,omitempty"`
}

// SearchResponse is the body of a search call. Error is set when results
// come from the offline catalog instead of the provider.
type SearchResponse struct {
	Results []SearchResult `json:"results"`
	Total   int            `json:"total"`
	Error   string         `json:"error,omitempty"`
	Source  string         `json:"source,omitempty"`
}

// ExtractedText is the result of running OCR over an uploaded page
type ExtractedText struct {
	OriginalText  string `json:"originalText"`
	ProcessedText string `json:"processedText"`
}
