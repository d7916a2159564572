package storage

import (
	"context"
	"errors"

	"github.com/justyntemme/readlog/internal/models"
)

// ErrNotFound is returned when a lookup by id or key matches no row
var ErrNotFound = errors.New("record not found")

// BookFilter narrows ListBooks. An empty Status matches every status.
type BookFilter struct {
	UserID int64
	Status models.Status
}

// UserRepository persists users
type UserRepository interface {
	GetUser(ctx context.Context, id int64) (*models.User, error)
	GetUserByUsername(ctx context.Context, username string) (*models.User, error)
	// CreateUser assigns user.ID
	CreateUser(ctx context.Context, user *models.User) error
}

// BookRepository persists library entries
type BookRepository interface {
	// CreateBook assigns book.ID
	CreateBook(ctx context.Context, book *models.Book) error
	GetBook(ctx context.Context, id int64) (*models.Book, error)
	// ListBooks returns matching books newest first
	ListBooks(ctx context.Context, filter BookFilter) ([]models.Book, error)
	// UpdateBook replaces the stored row with the same id
	UpdateBook(ctx context.Context, book *models.Book) error
	DeleteBook(ctx context.Context, id int64) (bool, error)
}

// NoteRepository persists reading notes
type NoteRepository interface {
	// CreateNote assigns note.ID
	CreateNote(ctx context.Context, note *models.ReadingNote) error
	// ListNotes returns the notes of a book newest first
	ListNotes(ctx context.Context, bookID int64) ([]models.ReadingNote, error)
	CountNotes(ctx context.Context, bookID int64) (int, error)
	DeleteNote(ctx context.Context, id int64) (bool, error)
	DeleteNotesForBook(ctx context.Context, bookID int64) (int64, error)
}

// Store is the full persistence surface used by the library service.
// Id generation belongs to the implementation.
type Store interface {
	UserRepository
	BookRepository
	NoteRepository
	Ping(ctx context.Context) error
	Close() error
}
