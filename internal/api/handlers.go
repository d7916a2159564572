package api

import (
	"context"
	"errors"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/justyntemme/readlog/internal/auth"
	"github.com/justyntemme/readlog/internal/library"
	"github.com/justyntemme/readlog/internal/metadata"
	"github.com/justyntemme/readlog/internal/ocr"
)

// Pinger reports whether the backing store is reachable
type Pinger interface {
	Ping(ctx context.Context) error
}

// Handler contains all HTTP handlers
type Handler struct {
	library *library.Service
	search  *metadata.Service
	extract *ocr.Service
	store   Pinger
	log     *zap.Logger
}

// NewHandler creates a new handler instance
func NewHandler(lib *library.Service, search *metadata.Service, extract *ocr.Service, store Pinger, log *zap.Logger) *Handler {
	if log == nil {
		log = zap.NewNop()
	}
	return &Handler{
		library: lib,
		search:  search,
		extract: extract,
		store:   store,
		log:     log,
	}
}

// parseID reads a positive integer path parameter
func parseID(c *gin.Context, name string) (int64, error) {
	id, err := strconv.ParseInt(c.Param(name), 10, 64)
	if err != nil || id <= 0 {
		return 0, library.NewValidationError(name, "must be a positive integer")
	}
	return id, nil
}

// SearchBooks handles GET /api/books/search?q=
func (h *Handler) SearchBooks(c *gin.Context) {
	resp, err := h.search.Search(c.Request.Context(), c.Query("q"))
	if err != nil {
		h.writeError(c, err, "Failed to search books")
		return
	}
	c.JSON(http.StatusOK, resp)
}

// ListBooks handles GET /api/books?status=
func (h *Handler) ListBooks(c *gin.Context) {
	books, err := h.library.ListBooks(c.Request.Context(), auth.GetUserID(c), c.Query("status"))
	if err != nil {
		h.writeError(c, err, "Failed to get books")
		return
	}
	c.JSON(http.StatusOK, books)
}

// GetBook handles GET /api/books/:id
func (h *Handler) GetBook(c *gin.Context) {
	id, err := parseID(c, "id")
	if err != nil {
		h.writeError(c, err, "")
		return
	}

	book, err := h.library.GetBook(c.Request.Context(), id)
	if err != nil {
		h.writeError(c, err, "Failed to get book")
		return
	}
	c.JSON(http.StatusOK, book)
}

// CreateBook handles POST /api/books
func (h *Handler) CreateBook(c *gin.Context) {
	var req createBookRequest
	if err := bindJSON(c, &req); err != nil {
		h.writeError(c, err, "")
		return
	}

	input, err := req.toInput()
	if err != nil {
		h.writeError(c, err, "")
		return
	}

	book, err := h.library.CreateBook(c.Request.Context(), auth.GetUserID(c), input)
	if err != nil {
		h.writeError(c, err, "Failed to add book")
		return
	}
	c.JSON(http.StatusCreated, book)
}

// UpdateBookStatus handles PATCH /api/books/:id
func (h *Handler) UpdateBookStatus(c *gin.Context) {
	id, err := parseID(c, "id")
	if err != nil {
		h.writeError(c, err, "")
		return
	}

	var req updateStatusRequest
	if err := bindJSON(c, &req); err != nil {
		h.writeError(c, err, "")
		return
	}

	update, err := req.toUpdate()
	if err != nil {
		h.writeError(c, err, "")
		return
	}

	book, err := h.library.UpdateStatus(c.Request.Context(), id, update)
	if err != nil {
		h.writeError(c, err, "Failed to update book")
		return
	}
	c.JSON(http.StatusOK, book)
}

// DeleteBook handles DELETE /api/books/:id
func (h *Handler) DeleteBook(c *gin.Context) {
	id, err := parseID(c, "id")
	if err != nil {
		h.writeError(c, err, "")
		return
	}

	deleted, err := h.library.DeleteBook(c.Request.Context(), id)
	if err != nil {
		h.writeError(c, err, "Failed to delete book")
		return
	}
	if !deleted {
		h.writeError(c, &library.NotFoundError{Resource: "book", ID: id}, "")
		return
	}
	c.Status(http.StatusNoContent)
}

// ListNotes handles GET /api/books/:id/notes
func (h *Handler) ListNotes(c *gin.Context) {
	id, err := parseID(c, "id")
	if err != nil {
		h.writeError(c, err, "")
		return
	}

	notes, err := h.library.ListNotes(c.Request.Context(), id)
	if err != nil {
		h.writeError(c, err, "Failed to get notes")
		return
	}
	c.JSON(http.StatusOK, notes)
}

// CreateNote handles POST /api/books/:id/notes
func (h *Handler) CreateNote(c *gin.Context) {
	id, err := parseID(c, "id")
	if err != nil {
		h.writeError(c, err, "")
		return
	}

	var req createNoteRequest
	if err := bindJSON(c, &req); err != nil {
		h.writeError(c, err, "")
		return
	}

	note, err := h.library.AddNote(c.Request.Context(), id, library.NewNote{
		Content:     req.Content,
		QuoteText:   req.QuoteText,
		ThoughtText: req.ThoughtText,
	})
	if err != nil {
		h.writeError(c, err, "Failed to add note")
		return
	}
	c.JSON(http.StatusCreated, note)
}

// DeleteNote handles DELETE /api/notes/:id
func (h *Handler) DeleteNote(c *gin.Context) {
	id, err := parseID(c, "id")
	if err != nil {
		h.writeError(c, err, "")
		return
	}

	deleted, err := h.library.DeleteNote(c.Request.Context(), id)
	if err != nil {
		h.writeError(c, err, "Failed to delete note")
		return
	}
	if !deleted {
		h.writeError(c, &library.NotFoundError{Resource: "note", ID: id}, "")
		return
	}
	c.Status(http.StatusNoContent)
}

// ExtractText handles POST /api/extract-text with a multipart "image" file
func (h *Handler) ExtractText(c *gin.Context) {
	maxBytes := h.extract.MaxBytes()
	// Leave room for multipart framing around the file itself
	c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, maxBytes+1<<20)

	file, header, err := c.Request.FormFile("image")
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			h.writeError(c, library.NewValidationError("image", "is too large"), "")
			return
		}
		c.JSON(http.StatusBadRequest, gin.H{"error": "No image provided"})
		return
	}
	defer file.Close()

	if header.Size > maxBytes {
		h.writeError(c, library.NewValidationError("image", "is too large"), "")
		return
	}

	data, err := io.ReadAll(io.LimitReader(file, maxBytes+1))
	if err != nil {
		h.writeError(c, err, "Failed to read image")
		return
	}

	text, err := h.extract.Extract(c.Request.Context(), data)
	if err != nil {
		h.writeError(c, err, "Failed to extract text from image")
		return
	}
	c.JSON(http.StatusOK, text)
}

// HealthCheck returns server health status
func (h *Handler) HealthCheck(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), 2*time.Second)
	defer cancel()

	if err := h.store.Ping(ctx); err != nil {
		h.log.Warn("health check failed", zap.Error(err))
		c.JSON(http.StatusServiceUnavailable, gin.H{"status": "unavailable", "store": "down"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "ok", "store": "up"})
}

