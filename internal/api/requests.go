package api

import (
	"strings"
	"time"

	"github.com/justyntemme/readlog/internal/library"
	"github.com/justyntemme/readlog/internal/models"
)

// createBookRequest is the body of POST /api/books
type createBookRequest struct {
	Title         string   `json:"title" binding:"required"`
	Author        string   `json:"author" binding:"required"`
	CoverURL      string   `json:"coverUrl" binding:"required"`
	Status        string   `json:"status" binding:"omitempty,oneof=want reading completed"`
	Publisher     string   `json:"publisher"`
	PublishedDate string   `json:"publishedDate"`
	Rating        *float64 `json:"rating" binding:"omitempty,min=0,max=5"`
	CompletedDate *string  `json:"completedDate"`
	Progress      *int     `json:"progress" binding:"omitempty,min=0,max=100"`
	Notes         *string  `json:"notes"`
}

func (r *createBookRequest) toInput() (library.NewBook, error) {
	completed, err := parseDate("completedDate", r.CompletedDate)
	if err != nil {
		return library.NewBook{}, err
	}
	return library.NewBook{
		Title:         r.Title,
		Author:        r.Author,
		CoverURL:      r.CoverURL,
		Status:        models.Status(r.Status),
		Publisher:     r.Publisher,
		PublishedDate: r.PublishedDate,
		Rating:        r.Rating,
		CompletedDate: completed,
		Progress:      r.Progress,
		Notes:         r.Notes,
	}, nil
}

// updateStatusRequest is the body of PATCH /api/books/:id. Absent fields
// keep their stored value.
type updateStatusRequest struct {
	Status        string   `json:"status" binding:"required,oneof=want reading completed"`
	Rating        *float64 `json:"rating" binding:"omitempty,min=0,max=5"`
	CompletedDate *string  `json:"completedDate"`
	Progress      *int     `json:"progress" binding:"omitempty,min=0,max=100"`
	Notes         *string  `json:"notes"`
}

func (r *updateStatusRequest) toUpdate() (library.StatusUpdate, error) {
	completed, err := parseDate("completedDate", r.CompletedDate)
	if err != nil {
		return library.StatusUpdate{}, err
	}
	return library.StatusUpdate{
		Status:        models.Status(r.Status),
		Rating:        r.Rating,
		CompletedDate: completed,
		Progress:      r.Progress,
		Notes:         r.Notes,
	}, nil
}

// createNoteRequest accepts either plain content or a quote/thought pair.
// Extra keys the mobile client sends (bookId, type, page) are ignored.
type createNoteRequest struct {
	Content     string `json:"content"`
	QuoteText   string `json:"quoteText"`
	ThoughtText string `json:"thoughtText"`
}

// parseDate accepts YYYY-MM-DD or RFC 3339. Dates are normalized to UTC.
func parseDate(field string, s *string) (*time.Time, error) {
	if s == nil || strings.TrimSpace(*s) == "" {
		return nil, nil
	}
	v := strings.TrimSpace(*s)
	if t, err := time.Parse(time.DateOnly, v); err == nil {
		return &t, nil
	}
	if t, err := time.Parse(time.RFC3339, v); err == nil {
		t = t.UTC()
		return &t, nil
	}
	return nil, library.NewValidationError(field, "must be a date (YYYY-MM-DD or RFC 3339)")
}
