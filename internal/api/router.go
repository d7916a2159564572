package api

import (
	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/justyntemme/readlog/internal/auth"
)

// RouterConfig holds the HTTP surface settings
type RouterConfig struct {
	// AllowedOrigins limits CORS; empty allows any origin
	AllowedOrigins []string
	// UserID is attached to every request
	UserID int64
	Log    *zap.Logger
}

// NewRouter wires middleware and routes
func NewRouter(h *Handler, cfg RouterConfig) *gin.Engine {
	log := cfg.Log
	if log == nil {
		log = zap.NewNop()
	}
	useJSONFieldNames()

	router := gin.New()
	router.HandleMethodNotAllowed = true
	router.Use(gin.Recovery())
	router.Use(RequestID())
	router.Use(Logger(log))
	router.Use(cors.New(corsConfig(cfg.AllowedOrigins)))

	router.GET("/health", h.HealthCheck)

	api := router.Group("/api")
	api.Use(auth.DefaultUser(cfg.UserID))
	{
		api.GET("/books/search", h.SearchBooks)
		api.GET("/books", h.ListBooks)
		api.POST("/books", h.CreateBook)
		api.GET("/books/:id", h.GetBook)
		api.PATCH("/books/:id", h.UpdateBookStatus)
		api.DELETE("/books/:id", h.DeleteBook)
		api.GET("/books/:id/notes", h.ListNotes)
		api.POST("/books/:id/notes", h.CreateNote)
		api.DELETE("/notes/:id", h.DeleteNote)
		api.POST("/extract-text", h.ExtractText)
	}

	return router
}

func corsConfig(origins []string) cors.Config {
	cfg := cors.Config{
		AllowMethods:  []string{"GET", "POST", "PATCH", "DELETE", "OPTIONS"},
		AllowHeaders:  []string{"Origin", "Content-Type", "Authorization", RequestIDHeader},
		ExposeHeaders: []string{"Content-Length", RequestIDHeader},
	}
	if len(origins) > 0 {
		cfg.AllowOrigins = origins
	} else {
		cfg.AllowAllOrigins = true
	}
	return cfg
}
