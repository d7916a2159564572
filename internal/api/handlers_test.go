package api_test

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"net/url"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/justyntemme/readlog/internal/api"
	"github.com/justyntemme/readlog/internal/library"
	"github.com/justyntemme/readlog/internal/metadata"
	"github.com/justyntemme/readlog/internal/models"
	"github.com/justyntemme/readlog/internal/ocr"
	"github.com/justyntemme/readlog/internal/storage"
)

var pngImage = append([]byte("\x89PNG\r\n\x1a\n\x00\x00\x00\rIHDR"), make([]byte, 32)...)

// MockExtractor is a mock implementation of ocr.Extractor
type MockExtractor struct {
	mock.Mock
}

func (m *MockExtractor) Name() string { return "mock" }

func (m *MockExtractor) Extract(ctx context.Context, image []byte, mimeType string) (string, error) {
	args := m.Called(ctx, image, mimeType)
	return args.String(0), args.Error(1)
}

// downProvider always fails, forcing the catalog fallback
type downProvider struct{}

func (downProvider) Name() string { return "down" }

func (downProvider) Search(context.Context, string, int) (*metadata.SearchPage, error) {
	return nil, &metadata.ProviderError{Provider: "down", StatusCode: http.StatusServiceUnavailable, Err: metadata.ErrProviderDown}
}

type testServer struct {
	router    *gin.Engine
	store     *storage.MemoryStore
	extractor *MockExtractor
}

func setupServer(t *testing.T, opts ...library.Option) *testServer {
	t.Helper()
	gin.SetMode(gin.TestMode)

	catalog, err := metadata.DefaultCatalog()
	require.NoError(t, err)

	store := storage.NewMemoryStore()
	extractor := &MockExtractor{}
	h := api.NewHandler(
		library.NewService(store, opts...),
		metadata.NewService(downProvider{}, catalog),
		ocr.NewService(extractor),
		store,
		nil,
	)

	return &testServer{
		router:    api.NewRouter(h, api.RouterConfig{UserID: 1}),
		store:     store,
		extractor: extractor,
	}
}

func (s *testServer) do(t *testing.T, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()

	var reader *bytes.Reader
	switch b := body.(type) {
	case nil:
		reader = bytes.NewReader(nil)
	case string:
		reader = bytes.NewReader([]byte(b))
	default:
		data, err := json.Marshal(b)
		require.NoError(t, err)
		reader = bytes.NewReader(data)
	}

	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	s.router.ServeHTTP(w, req)
	return w
}

func (s *testServer) createBook(t *testing.T, title string) models.Book {
	t.Helper()
	w := s.do(t, http.MethodPost, "/api/books", map[string]any{
		"title":    title,
		"author":   "Hermann Hesse",
		"coverUrl": "https://example.com/cover.jpg",
	})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())

	var book models.Book
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &book))
	return book
}

func decode[T any](t *testing.T, w *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &v), w.Body.String())
	return v
}

type errorBody struct {
	Error  string `json:"error"`
	Fields []struct {
		Field   string `json:"field"`
		Message string `json:"message"`
	} `json:"fields"`
}

func (e errorBody) fieldNames() []string {
	names := make([]string, 0, len(e.Fields))
	for _, f := range e.Fields {
		names = append(names, f.Field)
	}
	return names
}

func TestHealthCheck(t *testing.T) {
	s := setupServer(t)
	w := s.do(t, http.MethodGet, "/health", nil)

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"status":"ok"`)
	assert.NotEmpty(t, w.Header().Get(api.RequestIDHeader))
}

func TestRequestIDIsEchoed(t *testing.T) {
	s := setupServer(t)
	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	req.Header.Set(api.RequestIDHeader, "abc-123")
	w := httptest.NewRecorder()
	s.router.ServeHTTP(w, req)

	assert.Equal(t, "abc-123", w.Header().Get(api.RequestIDHeader))
}

func TestCreateBookDefaultsStatusAndProgress(t *testing.T) {
	s := setupServer(t)
	created := s.createBook(t, "Demian")
	assert.Equal(t, models.StatusWant, created.Status)

	w := s.do(t, http.MethodGet, "/api/books", nil)
	require.Equal(t, http.StatusOK, w.Code)

	books := decode[[]models.Book](t, w)
	require.Len(t, books, 1)
	assert.Equal(t, created.ID, books[0].ID)
	assert.Equal(t, models.StatusWant, books[0].Status)
	require.NotNil(t, books[0].Progress)
	assert.Equal(t, 0, *books[0].Progress)
}

func TestCreateBookValidation(t *testing.T) {
	s := setupServer(t)

	tests := []struct {
		name   string
		body   any
		fields []string
	}{
		{"missing fields", map[string]any{"title": "Demian"}, []string{"author", "coverUrl"}},
		{"bad status", map[string]any{"title": "t", "author": "a", "coverUrl": "c", "status": "paused"}, []string{"status"}},
		{"rating type", map[string]any{"title": "t", "author": "a", "coverUrl": "c", "rating": "five"}, []string{"rating"}},
		{"rating step", map[string]any{"title": "t", "author": "a", "coverUrl": "c", "rating": 3.3}, []string{"rating"}},
		{"progress range", map[string]any{"title": "t", "author": "a", "coverUrl": "c", "progress": 101}, []string{"progress"}},
		{"bad date", map[string]any{"title": "t", "author": "a", "coverUrl": "c", "completedDate": "yesterday"}, []string{"completedDate"}},
		{"malformed json", `{"title":`, []string{"body"}},
		{"empty body", nil, []string{"body"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := s.do(t, http.MethodPost, "/api/books", tt.body)
			require.Equal(t, http.StatusBadRequest, w.Code, w.Body.String())

			body := decode[errorBody](t, w)
			assert.Equal(t, "Validation failed", body.Error)
			assert.ElementsMatch(t, tt.fields, body.fieldNames())
		})
	}
}

func TestGetBook(t *testing.T) {
	s := setupServer(t)
	book := s.createBook(t, "Cosmos")

	w := s.do(t, http.MethodGet, "/api/books/1", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, book, decode[models.Book](t, w))

	w = s.do(t, http.MethodGet, "/api/books/abc", nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = s.do(t, http.MethodGet, "/api/books/999", nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
	assert.Contains(t, w.Body.String(), "book 999 not found")
}

func TestListBooksStatusFilter(t *testing.T) {
	s := setupServer(t)
	first := s.createBook(t, "A")
	s.createBook(t, "B")

	w := s.do(t, http.MethodPatch, "/api/books/1", map[string]any{"status": "reading"})
	require.Equal(t, http.StatusOK, w.Code)

	w = s.do(t, http.MethodGet, "/api/books?status=reading", nil)
	require.Equal(t, http.StatusOK, w.Code)
	books := decode[[]models.Book](t, w)
	require.Len(t, books, 1)
	assert.Equal(t, first.ID, books[0].ID)

	w = s.do(t, http.MethodGet, "/api/books?status=completed", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `[]`, w.Body.String())

	w = s.do(t, http.MethodGet, "/api/books?status=bogus", nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestUpdateStatusChangesOnlyNamedFields(t *testing.T) {
	s := setupServer(t)
	before := s.createBook(t, "Demian")

	w := s.do(t, http.MethodPatch, "/api/books/1", map[string]any{
		"status":        "completed",
		"rating":        4.5,
		"completedDate": "2024-01-01",
	})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	w = s.do(t, http.MethodGet, "/api/books/1", nil)
	require.Equal(t, http.StatusOK, w.Code)
	after := decode[models.Book](t, w)

	assert.Equal(t, models.StatusCompleted, after.Status)
	require.NotNil(t, after.Rating)
	assert.Equal(t, 4.5, *after.Rating)
	require.NotNil(t, after.CompletedDate)
	assert.Equal(t, time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC), after.CompletedDate.UTC())

	expected := before
	expected.Status = after.Status
	expected.Rating = after.Rating
	expected.CompletedDate = after.CompletedDate
	assert.Equal(t, expected, after)
}

func TestUpdateStatusKeepsRatingAcrossUpdates(t *testing.T) {
	s := setupServer(t)
	s.createBook(t, "Sapiens")

	w := s.do(t, http.MethodPatch, "/api/books/1", map[string]any{"status": "completed", "rating": 4.5})
	require.Equal(t, http.StatusOK, w.Code)

	w = s.do(t, http.MethodPatch, "/api/books/1", map[string]any{"status": "reading"})
	require.Equal(t, http.StatusOK, w.Code)

	book := decode[models.Book](t, w)
	assert.Equal(t, models.StatusReading, book.Status)
	require.NotNil(t, book.Rating)
	assert.Equal(t, 4.5, *book.Rating)
}

func TestUpdateStatusIsIdempotent(t *testing.T) {
	s := setupServer(t)
	s.createBook(t, "Cosmos")
	body := map[string]any{"status": "reading", "progress": 40}

	first := s.do(t, http.MethodPatch, "/api/books/1", body)
	second := s.do(t, http.MethodPatch, "/api/books/1", body)
	require.Equal(t, http.StatusOK, first.Code)
	require.Equal(t, http.StatusOK, second.Code)
	assert.JSONEq(t, first.Body.String(), second.Body.String())
}

func TestUpdateStatusErrors(t *testing.T) {
	s := setupServer(t)
	s.createBook(t, "Cosmos")

	tests := []struct {
		name   string
		path   string
		body   any
		status int
	}{
		{"missing status", "/api/books/1", map[string]any{"rating": 3}, http.StatusBadRequest},
		{"unknown status", "/api/books/1", map[string]any{"status": "done"}, http.StatusBadRequest},
		{"rating too high", "/api/books/1", map[string]any{"status": "completed", "rating": 5.5}, http.StatusBadRequest},
		{"progress not integer", "/api/books/1", map[string]any{"status": "reading", "progress": 12.5}, http.StatusBadRequest},
		{"bad id", "/api/books/x", map[string]any{"status": "reading"}, http.StatusBadRequest},
		{"missing book", "/api/books/42", map[string]any{"status": "reading"}, http.StatusNotFound},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := s.do(t, http.MethodPatch, tt.path, tt.body)
			assert.Equal(t, tt.status, w.Code, w.Body.String())
		})
	}
}

func TestBodyTypeErrorsUseJSONNames(t *testing.T) {
	s := setupServer(t)
	s.createBook(t, "Cosmos")

	tests := []struct {
		name    string
		body    string
		field   string
		message string
	}{
		{"array body", `[]`, "body", "must be a JSON object"},
		{"string body", `"reading"`, "body", "must be a JSON object"},
		{"progress as string", `{"status":"reading","progress":"ten"}`, "progress", "must be of type integer"},
		{"rating as bool", `{"status":"completed","rating":true}`, "rating", "must be of type number"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := s.do(t, http.MethodPatch, "/api/books/1", tt.body)
			require.Equal(t, http.StatusBadRequest, w.Code)

			var resp struct {
				Fields []library.FieldError `json:"fields"`
			}
			require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
			require.Len(t, resp.Fields, 1)
			assert.Equal(t, tt.field, resp.Fields[0].Field)
			assert.Equal(t, tt.message, resp.Fields[0].Message)
			assert.NotContains(t, w.Body.String(), "api.")
		})
	}
}

func TestDeleteBook(t *testing.T) {
	s := setupServer(t)
	s.createBook(t, "Cosmos")

	w := s.do(t, http.MethodDelete, "/api/books/1", nil)
	assert.Equal(t, http.StatusNoContent, w.Code)
	assert.Empty(t, w.Body.String())

	w = s.do(t, http.MethodGet, "/api/books/1", nil)
	assert.Equal(t, http.StatusNotFound, w.Code)

	w = s.do(t, http.MethodDelete, "/api/books/1", nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestDeleteBookWithNotesKeepsNotes(t *testing.T) {
	s := setupServer(t)
	s.createBook(t, "Demian")
	w := s.do(t, http.MethodPost, "/api/books/1/notes", map[string]any{"content": "Abraxas"})
	require.Equal(t, http.StatusCreated, w.Code)

	w = s.do(t, http.MethodDelete, "/api/books/1", nil)
	assert.Equal(t, http.StatusNoContent, w.Code)

	count, err := s.store.CountNotes(context.Background(), 1)
	require.NoError(t, err)
	assert.Equal(t, 1, count)

	w = s.do(t, http.MethodGet, "/api/books/1/notes", nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestDeleteBookRestrictPolicy(t *testing.T) {
	s := setupServer(t, library.WithNotePolicy(library.NotePolicyRestrict))
	s.createBook(t, "Demian")
	w := s.do(t, http.MethodPost, "/api/books/1/notes", map[string]any{"content": "Abraxas"})
	require.Equal(t, http.StatusCreated, w.Code)

	w = s.do(t, http.MethodDelete, "/api/books/1", nil)
	assert.Equal(t, http.StatusConflict, w.Code)
}

func TestNotesFlow(t *testing.T) {
	s := setupServer(t)
	s.createBook(t, "Demian")

	w := s.do(t, http.MethodPost, "/api/books/1/notes", map[string]any{"content": ""})
	require.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, []string{"content"}, decode[errorBody](t, w).fieldNames())

	w = s.do(t, http.MethodPost, "/api/books/1/notes", map[string]any{"content": "first thought"})
	require.Equal(t, http.StatusCreated, w.Code)
	first := decode[models.ReadingNote](t, w)
	assert.Equal(t, int64(1), first.BookID)

	w = s.do(t, http.MethodPost, "/api/books/1/notes", map[string]any{
		"bookId":      1,
		"type":        "quote",
		"quoteText":   "Who would be born must first destroy a world",
		"thoughtText": "Growing up hurts",
		"page":        "88",
	})
	require.Equal(t, http.StatusCreated, w.Code)
	second := decode[models.ReadingNote](t, w)
	assert.Equal(t, "\"Who would be born must first destroy a world\"\n\nGrowing up hurts", second.Content)

	w = s.do(t, http.MethodGet, "/api/books/1/notes", nil)
	require.Equal(t, http.StatusOK, w.Code)
	notes := decode[[]models.ReadingNote](t, w)
	require.Len(t, notes, 2)
	assert.Equal(t, second.ID, notes[0].ID)
	assert.Equal(t, first.ID, notes[1].ID)

	w = s.do(t, http.MethodDelete, "/api/notes/1", nil)
	assert.Equal(t, http.StatusNoContent, w.Code)

	w = s.do(t, http.MethodDelete, "/api/notes/1", nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestNotesForMissingBook(t *testing.T) {
	s := setupServer(t)

	w := s.do(t, http.MethodGet, "/api/books/9/notes", nil)
	assert.Equal(t, http.StatusNotFound, w.Code)

	w = s.do(t, http.MethodPost, "/api/books/9/notes", map[string]any{"content": "x"})
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestSearchFallsBackWhenProviderDown(t *testing.T) {
	s := setupServer(t)

	w := s.do(t, http.MethodGet, "/api/books/search?q="+url.QueryEscape("데미안"), nil)
	require.Equal(t, http.StatusOK, w.Code)

	resp := decode[models.SearchResponse](t, w)
	require.NotEmpty(t, resp.Results)
	assert.Equal(t, "데미안", resp.Results[0].Title)
	assert.NotEmpty(t, resp.Error)
	assert.Equal(t, len(resp.Results), resp.Total)
}

func TestSearchBlankQuery(t *testing.T) {
	s := setupServer(t)

	w := s.do(t, http.MethodGet, "/api/books/search?q=", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"results":[],"total":0}`, w.Body.String())
}

func uploadImage(t *testing.T, s *testServer, field string, data []byte) *httptest.ResponseRecorder {
	t.Helper()

	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	if data != nil {
		part, err := mw.CreateFormFile(field, "page.png")
		require.NoError(t, err)
		_, err = part.Write(data)
		require.NoError(t, err)
	}
	require.NoError(t, mw.Close())

	req := httptest.NewRequest(http.MethodPost, "/api/extract-text", &buf)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	w := httptest.NewRecorder()
	s.router.ServeHTTP(w, req)
	return w
}

func TestExtractText(t *testing.T) {
	s := setupServer(t)
	s.extractor.On("Extract", mock.Anything, pngImage, "image/png").Return("The bird\nfights its way\n\nout of the egg", nil)

	w := uploadImage(t, s, "image", pngImage)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	out := decode[models.ExtractedText](t, w)
	assert.Equal(t, "The bird\nfights its way\n\nout of the egg", out.OriginalText)
	assert.Equal(t, "The bird fights its way out of the egg", out.ProcessedText)
}

func TestExtractTextErrors(t *testing.T) {
	t.Run("no file", func(t *testing.T) {
		s := setupServer(t)
		w := uploadImage(t, s, "image", nil)
		assert.Equal(t, http.StatusBadRequest, w.Code)
	})

	t.Run("wrong field", func(t *testing.T) {
		s := setupServer(t)
		w := uploadImage(t, s, "file", pngImage)
		assert.Equal(t, http.StatusBadRequest, w.Code)
	})

	t.Run("not an image", func(t *testing.T) {
		s := setupServer(t)
		w := uploadImage(t, s, "image", []byte("plain text pretending to be a photo"))
		assert.Equal(t, http.StatusBadRequest, w.Code)
	})

	t.Run("provider failure", func(t *testing.T) {
		s := setupServer(t)
		s.extractor.On("Extract", mock.Anything, pngImage, "image/png").Return("", errors.New("billing disabled"))

		w := uploadImage(t, s, "image", pngImage)
		assert.Equal(t, http.StatusInternalServerError, w.Code)
		assert.Contains(t, w.Body.String(), "Failed to extract text from image")
		assert.NotContains(t, w.Body.String(), "billing disabled")
	})
}

func TestCORSPreflight(t *testing.T) {
	s := setupServer(t)

	req := httptest.NewRequest(http.MethodOptions, "/api/books/1", nil)
	req.Header.Set("Origin", "http://localhost:5173")
	req.Header.Set("Access-Control-Request-Method", http.MethodPatch)
	w := httptest.NewRecorder()
	s.router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusNoContent, w.Code)
	assert.Equal(t, "*", w.Header().Get("Access-Control-Allow-Origin"))
	assert.Contains(t, w.Header().Get("Access-Control-Allow-Methods"), "PATCH")
}
