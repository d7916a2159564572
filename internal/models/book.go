package models

import (
	"strings"
	"time"
)

// Status is the reading status of a library entry
type Status string

const (
	StatusWant      Status = "want"
	StatusReading   Status = "reading"
	StatusCompleted Status = "completed"
)

// Statuses lists every valid status in lifecycle order
var Statuses = []Status{StatusWant, StatusReading, StatusCompleted}

// ParseStatus normalizes s and reports whether it names a known status
func ParseStatus(s string) (Status, bool) {
	switch Status(strings.ToLower(strings.TrimSpace(s))) {
	case StatusWant:
		return StatusWant, true
	case StatusReading:
		return StatusReading, true
	case StatusCompleted:
		return StatusCompleted, true
	default:
		return "", false
	}
}

// Valid reports whether s is one of the known statuses
func (s Status) Valid() bool {
	switch s {
	case StatusWant, StatusReading, StatusCompleted:
		return true
	}
	return false
}

// User represents the owner of a library. Only the seeded user exists.
type User struct {
	ID           int64     `json:"id"`
	Username     string    `json:"username"`
	PasswordHash string    `json:"-"`
	CreatedAt    time.Time `json:"createdAt"`
}

// Book is one user's relationship to one book (a library entry)
type Book struct {
	ID       int64  `json:"id"`
	UserID   int64  `json:"userId"`
	Title    string `json:"title"`
	Author   string `json:"author"`
	CoverURL string `json:"coverUrl"`
	Status   Status `json:"status"`

	// Only meaningful once completed
	Rating        *float64   `json:"rating"`
	CompletedDate *time.Time `json:"completedDate"`

	// Only meaningful while reading
	Progress *int `json:"progress"`

	Notes         *string   `json:"notes"`
	Publisher     string    `json:"publisher,omitempty"`
	PublishedDate string    `json:"publishedDate,omitempty"`
	CreatedAt     time.Time `json:"createdAt"`
}

// ReadingNote is a free-text annotation attached to a book
type ReadingNote struct {
	ID          int64     `json:"id"`
	BookID      int64     `json:"bookId"`
	Content     string    `json:"content"`
	QuoteText   string    `json:"quoteText,omitempty"`
	ThoughtText string    `json:"thoughtText,omitempty"`
	CreatedAt   time.Time `json:"createdAt"`
}
