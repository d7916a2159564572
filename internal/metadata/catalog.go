package metadata

import (
	_ "embed"
	"fmt"
	"hash/fnv"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/justyntemme/readlog/internal/models"
)

//go:embed catalog.yaml
var defaultCatalog []byte

type catalogFile struct {
	Covers []string      `yaml:"covers"`
	Books  []catalogBook `yaml:"books"`
}

type catalogBook struct {
	Title  string `yaml:"title"`
	Author string `yaml:"author"`
	Cover  int    `yaml:"cover"`
}

// Catalog is the static book list used when no provider answers
type Catalog struct {
	covers []string
	books  []models.SearchResult
}

// DefaultCatalog parses the embedded catalog
func DefaultCatalog() (*Catalog, error) {
	return ParseCatalog(defaultCatalog)
}

// ParseCatalog parses catalog YAML. Cover indexes must point into covers.
func ParseCatalog(data []byte) (*Catalog, error) {
	var f catalogFile
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("parse catalog: %w", err)
	}
	if len(f.Covers) == 0 {
		return nil, fmt.Errorf("parse catalog: no covers")
	}

	c := &Catalog{covers: f.Covers, books: make([]models.SearchResult, 0, len(f.Books))}
	for i, b := range f.Books {
		if b.Cover < 0 || b.Cover >= len(f.Covers) {
			return nil, fmt.Errorf("parse catalog: book %d has cover index %d out of range", i, b.Cover)
		}
		c.books = append(c.books, models.SearchResult{
			Title:    b.Title,
			Author:   b.Author,
			CoverURL: f.Covers[b.Cover],
		})
	}
	return c, nil
}

// Search returns books whose title or author contains query, case-insensitively
func (c *Catalog) Search(query string) []models.SearchResult {
	q := strings.ToLower(strings.TrimSpace(query))
	results := []models.SearchResult{}
	if q == "" {
		return results
	}

	for _, b := range c.books {
		if strings.Contains(strings.ToLower(b.Title), q) || strings.Contains(strings.ToLower(b.Author), q) {
			b.ID = fmt.Sprintf("search-%d", len(results))
			results = append(results, b)
		}
	}
	return results
}

// CoverFor picks a stable placeholder cover for a key such as a title
func (c *Catalog) CoverFor(key string) string {
	h := fnv.New32a()
	h.Write([]byte(key))
	return c.covers[h.Sum32()%uint32(len(c.covers))]
}

// Len returns the number of catalog books
func (c *Catalog) Len() int {
	return len(c.books)
}
