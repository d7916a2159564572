package metadata

import (
	"context"
	"encoding/json"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/justyntemme/readlog/internal/cache"
	"github.com/justyntemme/readlog/internal/models"
	"github.com/justyntemme/readlog/internal/ratelimit"
)

// DegradedMessage is set as the response error when the catalog answers
// because every provider failed
const DegradedMessage = "search provider unavailable; showing offline results"

// Service runs searches against a primary provider, an optional
// secondary provider and finally the static catalog
type Service struct {
	primary   Provider
	secondary Provider
	catalog   *Catalog
	cache     cache.Cache
	limiter   *ratelimit.Limiter
	timeout   time.Duration
	limit     int
	cacheTTL  time.Duration
	log       *zap.Logger
}

// ServiceOption configures a Service
type ServiceOption func(*Service)

// WithSecondary sets the provider tried after the primary fails
func WithSecondary(p Provider) ServiceOption {
	return func(s *Service) { s.secondary = p }
}

// WithCache stores successful provider responses for ttl
func WithCache(c cache.Cache, ttl time.Duration) ServiceOption {
	return func(s *Service) {
		if c != nil {
			s.cache = c
			s.cacheTTL = ttl
		}
	}
}

// WithLimiter throttles outgoing provider calls
func WithLimiter(l *ratelimit.Limiter) ServiceOption {
	return func(s *Service) { s.limiter = l }
}

// WithTimeout bounds each provider call
func WithTimeout(d time.Duration) ServiceOption {
	return func(s *Service) {
		if d > 0 {
			s.timeout = d
		}
	}
}

// WithLimit sets the page size requested from providers
func WithLimit(n int) ServiceOption {
	return func(s *Service) {
		if n > 0 {
			s.limit = n
		}
	}
}

// WithLogger sets the logger
func WithLogger(log *zap.Logger) ServiceOption {
	return func(s *Service) {
		if log != nil {
			s.log = log
		}
	}
}

// NewService creates a search service. primary may be nil, in which
// case the catalog answers every query.
func NewService(primary Provider, catalog *Catalog, opts ...ServiceOption) *Service {
	s := &Service{
		primary: primary,
		catalog: catalog,
		cache:   cache.Nop{},
		limiter: ratelimit.New("search", 0),
		timeout: 8 * time.Second,
		limit:   20,
		log:     zap.NewNop(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Search never fails because of a provider. The only error returned is
// the caller's own context error.
func (s *Service) Search(ctx context.Context, query string) (*models.SearchResponse, error) {
	query = strings.TrimSpace(query)
	if query == "" {
		return &models.SearchResponse{Results: []models.SearchResult{}, Total: 0}, nil
	}

	providers := make([]Provider, 0, 2)
	for _, p := range []Provider{s.primary, s.secondary} {
		if p != nil {
			providers = append(providers, p)
		}
	}

	if len(providers) == 0 {
		results := s.catalog.Search(query)
		return &models.SearchResponse{Results: results, Total: len(results), Source: "catalog"}, nil
	}

	key := cacheKey(providers[0].Name(), query)
	if resp, ok := s.cached(ctx, key); ok {
		return resp, nil
	}

	for _, p := range providers {
		page, err := s.call(ctx, p, query)
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, ctxErr
		}
		if err != nil {
			s.log.Warn("search provider failed",
				zap.String("provider", p.Name()),
				zap.String("query", query),
				zap.Error(err),
			)
			continue
		}

		resp := &models.SearchResponse{Results: page.Results, Total: page.Total, Source: p.Name()}
		s.fillCovers(resp.Results)
		s.store(ctx, key, resp)
		return resp, nil
	}

	results := s.catalog.Search(query)
	return &models.SearchResponse{
		Results: results,
		Total:   len(results),
		Error:   DegradedMessage,
		Source:  "catalog",
	}, nil
}

// call runs one provider under the limiter and the per-call timeout
func (s *Service) call(ctx context.Context, p Provider, query string) (*SearchPage, error) {
	callCtx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	if err := s.limiter.Wait(callCtx); err != nil {
		return nil, &ProviderError{Provider: p.Name(), Err: err}
	}

	page, err := p.Search(callCtx, query, s.limit)
	if err != nil {
		return nil, err
	}
	if page.Results == nil {
		page.Results = []models.SearchResult{}
	}
	return page, nil
}

// fillCovers gives results without artwork a placeholder so they can be
// added to a library, which requires a cover
func (s *Service) fillCovers(results []models.SearchResult) {
	for i := range results {
		if results[i].CoverURL == "" {
			results[i].CoverURL = s.catalog.CoverFor(results[i].Title)
		}
	}
}

func (s *Service) cached(ctx context.Context, key string) (*models.SearchResponse, bool) {
	data, ok, err := s.cache.Get(ctx, key)
	if err != nil {
		s.log.Warn("search cache read failed", zap.Error(err))
		return nil, false
	}
	if !ok {
		return nil, false
	}

	var resp models.SearchResponse
	if err := json.Unmarshal(data, &resp); err != nil {
		s.log.Warn("search cache entry unreadable", zap.String("key", key), zap.Error(err))
		return nil, false
	}
	if resp.Results == nil {
		resp.Results = []models.SearchResult{}
	}
	return &resp, true
}

func (s *Service) store(ctx context.Context, key string, resp *models.SearchResponse) {
	data, err := json.Marshal(resp)
	if err != nil {
		return
	}
	if err := s.cache.Set(ctx, key, data, s.cacheTTL); err != nil {
		s.log.Warn("search cache write failed", zap.Error(err))
	}
}

func cacheKey(provider, query string) string {
	return "search:" + provider + ":" + strings.ToLower(query)
}
