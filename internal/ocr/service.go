package ocr

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"strings"
	"time"

	"github.com/gabriel-vasile/mimetype"
	"go.uber.org/zap"

	"github.com/justyntemme/readlog/internal/cache"
	"github.com/justyntemme/readlog/internal/library"
	"github.com/justyntemme/readlog/internal/models"
	"github.com/justyntemme/readlog/internal/ratelimit"
)

// DefaultMaxImageBytes caps uploads at 5 MB
const DefaultMaxImageBytes = 5 << 20

// Service validates images and runs them through an Extractor
type Service struct {
	extractor Extractor
	cache     cache.Cache
	cacheTTL  time.Duration
	limiter   *ratelimit.Limiter
	timeout   time.Duration
	maxBytes  int64
	log       *zap.Logger
}

// ServiceOption configures a Service
type ServiceOption func(*Service)

func WithCache(c cache.Cache, ttl time.Duration) ServiceOption {
	return func(s *Service) {
		if c != nil {
			s.cache = c
			s.cacheTTL = ttl
		}
	}
}

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

// WithMaxBytes sets the upload size cap
func WithMaxBytes(n int64) ServiceOption {
	return func(s *Service) {
		if n > 0 {
			s.maxBytes = n
		}
	}
}

func WithLogger(log *zap.Logger) ServiceOption {
	return func(s *Service) {
		if log != nil {
			s.log = log
		}
	}
}

// NewService creates an extraction service around extractor
func NewService(extractor Extractor, opts ...ServiceOption) *Service {
	s := &Service{
		extractor: extractor,
		cache:     cache.Nop{},
		limiter:   ratelimit.New("ocr", 0),
		timeout:   10 * time.Second,
		maxBytes:  DefaultMaxImageBytes,
		log:       zap.NewNop(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// MaxBytes returns the upload size cap
func (s *Service) MaxBytes() int64 {
	return s.maxBytes
}

// Extract returns the raw and normalized text of image. Bad input is a
// *library.ValidationError; provider failures are an *ExtractionError.
func (s *Service) Extract(ctx context.Context, image []byte) (*models.ExtractedText, error) {
	if len(image) == 0 {
		return nil, library.NewValidationError("image", "is required")
	}
	if int64(len(image)) > s.maxBytes {
		return nil, library.NewValidationError("image", fmt.Sprintf("must be at most %d bytes", s.maxBytes))
	}

	mime := mimetype.Detect(image)
	if !strings.HasPrefix(mime.String(), "image/") {
		return nil, library.NewValidationError("image", fmt.Sprintf("unsupported content type %s", mime.String()))
	}

	sum := sha256.Sum256(image)
	key := "ocr:" + s.extractor.Name() + ":" + hex.EncodeToString(sum[:])

	if data, ok, err := s.cache.Get(ctx, key); err != nil {
		s.log.Warn("ocr cache read failed", zap.Error(err))
	} else if ok {
		raw := string(data)
		return &models.ExtractedText{OriginalText: raw, ProcessedText: Normalize(raw)}, nil
	}

	raw, err := s.call(ctx, image, mime.String())
	if err != nil {
		s.log.Error("text extraction failed",
			zap.String("provider", s.extractor.Name()),
			zap.String("mime", mime.String()),
			zap.Int("bytes", len(image)),
			zap.Error(err),
		)
		return nil, &ExtractionError{Provider: s.extractor.Name(), Err: err}
	}

	if err := s.cache.Set(ctx, key, []byte(raw), s.cacheTTL); err != nil {
		s.log.Warn("ocr cache write failed", zap.Error(err))
	}
	return &models.ExtractedText{OriginalText: raw, ProcessedText: Normalize(raw)}, nil
}

func (s *Service) call(ctx context.Context, image []byte, mimeType string) (string, error) {
	callCtx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	if err := s.limiter.Wait(callCtx); err != nil {
		return "", err
	}
	return s.extractor.Extract(callCtx, image, mimeType)
}
