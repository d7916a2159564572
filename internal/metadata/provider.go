package metadata

import (
	"context"
	"errors"
	"fmt"

	"github.com/justyntemme/readlog/internal/models"
)

// Common errors
var (
	ErrRateLimited  = errors.New("rate limited by provider")
	ErrProviderDown = errors.New("metadata provider unavailable")
)

// ProviderError is returned by providers for transport failures and
// non-2xx responses. The service absorbs it; handlers never see it.
type ProviderError struct {
	Provider   string
	StatusCode int
	Err        error
}

func (e *ProviderError) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("%s: unexpected status %d", e.Provider, e.StatusCode)
	}
	return fmt.Sprintf("%s: %v", e.Provider, e.Err)
}

func (e *ProviderError) Unwrap() error {
	return e.Err
}

// statusError maps an HTTP status to a ProviderError
func statusError(provider string, status int) *ProviderError {
	perr := &ProviderError{Provider: provider, StatusCode: status}
	switch {
	case status == 429:
		perr.Err = ErrRateLimited
	case status >= 500:
		perr.Err = ErrProviderDown
	}
	return perr
}

// SearchPage is one page of provider results. Total is the provider's
// reported match count and may exceed len(Results).
type SearchPage struct {
	Results []models.SearchResult
	Total   int
}

// Provider defines the interface for book search services
type Provider interface {
	// Name returns the provider identifier (e.g., "openlibrary", "googlebooks")
	Name() string

	// Search finds books matching a free-text query
	Search(ctx context.Context, query string, limit int) (*SearchPage, error)
}

// NewProvider builds a provider by name. "catalog" and "" return nil,
// meaning the static catalog answers every search.
func NewProvider(name, apiKey string) (Provider, error) {
	switch name {
	case "", "catalog":
		return nil, nil
	case "openlibrary":
		return NewOpenLibraryProvider(), nil
	case "googlebooks":
		return NewGoogleBooksProvider(apiKey), nil
	default:
		return nil, fmt.Errorf("unknown search provider %q", name)
	}
}
