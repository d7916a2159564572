// Package app wires configuration into stores, services and the router.
package app

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/justyntemme/readlog/internal/api"
	"github.com/justyntemme/readlog/internal/cache"
	"github.com/justyntemme/readlog/internal/config"
	"github.com/justyntemme/readlog/internal/library"
	"github.com/justyntemme/readlog/internal/metadata"
	"github.com/justyntemme/readlog/internal/ocr"
	"github.com/justyntemme/readlog/internal/ratelimit"
	"github.com/justyntemme/readlog/internal/storage"
)

// App holds all application dependencies
type App struct {
	cfg    *config.Config
	log    *zap.Logger
	store  storage.Store
	redis  *cache.Redis
	router *gin.Engine
}

// New initializes the application: store → cache → services → routes
func New(cfg *config.Config, log *zap.Logger) (*App, error) {
	if cfg == nil {
		return nil, errors.New("config is nil")
	}
	if log == nil {
		log = zap.NewNop()
	}
	gin.SetMode(cfg.Server.Mode)

	store, err := OpenStore(cfg.Database)
	if err != nil {
		return nil, fmt.Errorf("database: %w", err)
	}

	a := &App{cfg: cfg, log: log, store: store}

	c, err := a.openCache()
	if err != nil {
		a.Close()
		return nil, fmt.Errorf("redis: %w", err)
	}

	policy, err := library.ParseNotePolicy(cfg.Library.NotePolicy)
	if err != nil {
		a.Close()
		return nil, err
	}
	lib := library.NewService(store, library.WithNotePolicy(policy), library.WithLogger(log))

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	user, err := lib.EnsureUser(ctx, cfg.Library.DefaultUser, cfg.Library.DefaultPassword)
	if err != nil {
		a.Close()
		return nil, fmt.Errorf("default user: %w", err)
	}

	search, err := NewSearchService(cfg.Search, c, log)
	if err != nil {
		a.Close()
		return nil, err
	}
	extract, err := NewExtractService(cfg.OCR, c, log)
	if err != nil {
		a.Close()
		return nil, err
	}

	handler := api.NewHandler(lib, search, extract, store, log)
	a.router = api.NewRouter(handler, api.RouterConfig{
		AllowedOrigins: cfg.Server.AllowedOrigins,
		UserID:         user.ID,
		Log:            log,
	})

	log.Info("application ready",
		zap.String("driver", cfg.Database.Driver),
		zap.String("note_policy", string(policy)),
		zap.String("search_provider", cfg.Search.Provider),
		zap.String("ocr_provider", cfg.OCR.Provider),
		zap.Bool("cache", a.redis != nil),
	)
	return a, nil
}

// OpenStore opens the configured backing store
func OpenStore(cfg config.DatabaseConfig) (storage.Store, error) {
	if cfg.Driver == "memory" {
		return storage.NewMemoryStore(), nil
	}
	db, err := storage.Open(cfg.Driver, cfg.DSN)
	if err != nil {
		return nil, err
	}
	return db, nil
}

func (a *App) openCache() (cache.Cache, error) {
	if a.cfg.Redis.URL == "" {
		return cache.Nop{}, nil
	}
	r, err := cache.NewRedis(a.cfg.Redis.URL)
	if err != nil {
		return nil, err
	}
	a.redis = r
	return r, nil
}

// NewSearchService builds the search chain from configuration
func NewSearchService(cfg config.SearchConfig, c cache.Cache, log *zap.Logger) (*metadata.Service, error) {
	catalog, err := metadata.DefaultCatalog()
	if err != nil {
		return nil, err
	}

	primary, err := metadata.NewProvider(cfg.Provider, cfg.GoogleAPIKey)
	if err != nil {
		return nil, err
	}
	secondary, err := metadata.NewProvider(cfg.FallbackProvider, cfg.GoogleAPIKey)
	if err != nil {
		return nil, err
	}

	return metadata.NewService(primary, catalog,
		metadata.WithSecondary(secondary),
		metadata.WithCache(c, cfg.CacheTTL),
		metadata.WithLimiter(ratelimit.New("search", cfg.RequestsPerSecond)),
		metadata.WithTimeout(cfg.Timeout),
		metadata.WithLimit(cfg.Limit),
		metadata.WithLogger(log),
	), nil
}

// NewExtractService builds the text extraction service from configuration
func NewExtractService(cfg config.OCRConfig, c cache.Cache, log *zap.Logger) (*ocr.Service, error) {
	extractor, err := ocr.NewExtractor(cfg.Provider, cfg.APIKey, cfg.Model)
	if err != nil {
		return nil, err
	}
	if cfg.APIKey == "" && log != nil {
		log.Warn("no ocr api key configured; text extraction requests will fail", zap.String("provider", cfg.Provider))
	}

	return ocr.NewService(extractor,
		ocr.WithCache(c, cfg.CacheTTL),
		ocr.WithLimiter(ratelimit.New("ocr", cfg.RequestsPerSecond)),
		ocr.WithTimeout(cfg.Timeout),
		ocr.WithMaxBytes(cfg.MaxImageBytes),
		ocr.WithLogger(log),
	), nil
}

// Router returns the HTTP handler
func (a *App) Router() http.Handler { return a.router }

// Addr returns the listen address
func (a *App) Addr() string { return a.cfg.Server.Addr }

// Close releases the store and cache connections
func (a *App) Close() error {
	var errs []error
	if a.redis != nil {
		errs = append(errs, a.redis.Close())
	}
	if a.store != nil {
		errs = append(errs, a.store.Close())
	}
	return errors.Join(errs...)
}
