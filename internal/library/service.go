package library

import (
	"context"
	"errors"
	"fmt"
	"math"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/justyntemme/readlog/internal/auth"
	"github.com/justyntemme/readlog/internal/models"
	"github.com/justyntemme/readlog/internal/storage"
)

// NotePolicy decides what happens to a book's notes when the book is deleted
type NotePolicy string

const (
	// NotePolicyOrphan keeps the notes; they become unreachable through the API
	NotePolicyOrphan NotePolicy = "orphan"
	// NotePolicyCascade deletes the notes along with the book
	NotePolicyCascade NotePolicy = "cascade"
	// NotePolicyRestrict refuses to delete a book that still has notes
	NotePolicyRestrict NotePolicy = "restrict"
)

// ParseNotePolicy validates a policy name. Empty means orphan.
func ParseNotePolicy(s string) (NotePolicy, error) {
	switch p := NotePolicy(strings.ToLower(strings.TrimSpace(s))); p {
	case "":
		return NotePolicyOrphan, nil
	case NotePolicyOrphan, NotePolicyCascade, NotePolicyRestrict:
		return p, nil
	default:
		return "", fmt.Errorf("unknown note policy %q", s)
	}
}

// NewBook is the input for adding a book to a library
type NewBook struct {
	Title         string
	Author        string
	CoverURL      string
	Status        models.Status
	Publisher     string
	PublishedDate string
	Rating        *float64
	CompletedDate *time.Time
	Progress      *int
	Notes         *string
}

// StatusUpdate is a partial update. Nil fields keep their stored value.
type StatusUpdate struct {
	Status        models.Status
	Rating        *float64
	CompletedDate *time.Time
	Progress      *int
	Notes         *string
}

// NewNote is the input for a reading note. Content wins when set;
// otherwise it is composed from the quote and thought.
type NewNote struct {
	Content     string
	QuoteText   string
	ThoughtText string
}

// Service implements library and note operations over a Store
type Service struct {
	store      storage.Store
	notePolicy NotePolicy
	now        func() time.Time
	log        *zap.Logger
}

// Option configures a Service
type Option func(*Service)

// WithNotePolicy sets the book deletion policy for notes
func WithNotePolicy(p NotePolicy) Option {
	return func(s *Service) { s.notePolicy = p }
}

// WithClock overrides time.Now, for tests
func WithClock(now func() time.Time) Option {
	return func(s *Service) { s.now = now }
}

// WithLogger sets the logger
func WithLogger(log *zap.Logger) Option {
	return func(s *Service) {
		if log != nil {
			s.log = log
		}
	}
}

// NewService creates a library service
func NewService(store storage.Store, opts ...Option) *Service {
	s := &Service{
		store:      store,
		notePolicy: NotePolicyOrphan,
		now:        time.Now,
		log:        zap.NewNop(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// NotePolicy returns the configured deletion policy
func (s *Service) NotePolicy() NotePolicy {
	return s.notePolicy
}

// EnsureUser returns the user with username, creating it if absent
func (s *Service) EnsureUser(ctx context.Context, username, password string) (*models.User, error) {
	user, err := s.store.GetUserByUsername(ctx, username)
	if err == nil {
		if !auth.CheckPassword(password, user.PasswordHash) {
			s.log.Warn("stored password for user differs from configuration", zap.String("username", username))
		}
		return user, nil
	}
	if !errors.Is(err, storage.ErrNotFound) {
		return nil, fmt.Errorf("lookup user: %w", err)
	}

	hash, err := auth.HashPassword(password)
	if err != nil {
		return nil, fmt.Errorf("hash password: %w", err)
	}

	user = &models.User{
		Username:     username,
		PasswordHash: hash,
		CreatedAt:    s.now().UTC(),
	}
	if err := s.store.CreateUser(ctx, user); err != nil {
		return nil, fmt.Errorf("create user: %w", err)
	}
	s.log.Info("created default user", zap.Int64("user_id", user.ID), zap.String("username", username))
	return user, nil
}

// CreateBook adds a book to a user's library
func (s *Service) CreateBook(ctx context.Context, userID int64, in NewBook) (*models.Book, error) {
	verr := &ValidationError{}
	title := strings.TrimSpace(in.Title)
	author := strings.TrimSpace(in.Author)
	cover := strings.TrimSpace(in.CoverURL)
	if title == "" {
		verr.Add("title", "is required")
	}
	if author == "" {
		verr.Add("author", "is required")
	}
	if cover == "" {
		verr.Add("coverUrl", "is required")
	}
	if userID <= 0 {
		verr.Add("userId", "is required")
	}

	status := in.Status
	if status == "" {
		status = models.StatusWant
	}
	if !status.Valid() {
		verr.Add("status", "must be one of: want, reading, completed")
	}
	validateOptional(verr, in.Rating, in.Progress)
	if err := verr.orNil(); err != nil {
		return nil, err
	}

	progress := 0
	if in.Progress != nil {
		progress = *in.Progress
	}

	book := &models.Book{
		UserID:        userID,
		Title:         title,
		Author:        author,
		CoverURL:      cover,
		Status:        status,
		Rating:        in.Rating,
		CompletedDate: in.CompletedDate,
		Progress:      &progress,
		Notes:         in.Notes,
		Publisher:     strings.TrimSpace(in.Publisher),
		PublishedDate: strings.TrimSpace(in.PublishedDate),
		CreatedAt:     s.now().UTC(),
	}

	if err := s.store.CreateBook(ctx, book); err != nil {
		return nil, fmt.Errorf("create book: %w", err)
	}
	s.log.Debug("book added", zap.Int64("book_id", book.ID), zap.String("title", book.Title))
	return book, nil
}

// GetBook returns a book by id
func (s *Service) GetBook(ctx context.Context, id int64) (*models.Book, error) {
	book, err := s.store.GetBook(ctx, id)
	if errors.Is(err, storage.ErrNotFound) {
		return nil, &NotFoundError{Resource: "book", ID: id}
	}
	if err != nil {
		return nil, fmt.Errorf("get book: %w", err)
	}
	return book, nil
}

// ListBooks returns a user's books newest first. status may be empty.
func (s *Service) ListBooks(ctx context.Context, userID int64, status string) ([]models.Book, error) {
	filter := storage.BookFilter{UserID: userID}
	if strings.TrimSpace(status) != "" {
		parsed, ok := models.ParseStatus(status)
		if !ok {
			return nil, NewValidationError("status", "must be one of: want, reading, completed")
		}
		filter.Status = parsed
	}

	books, err := s.store.ListBooks(ctx, filter)
	if err != nil {
		return nil, fmt.Errorf("list books: %w", err)
	}
	return books, nil
}

// UpdateStatus applies a partial status update and returns the stored book.
// Moving into completed stamps today's date (UTC) as completedDate when
// neither the update nor the stored book carries one.
func (s *Service) UpdateStatus(ctx context.Context, id int64, update StatusUpdate) (*models.Book, error) {
	verr := &ValidationError{}
	if !update.Status.Valid() {
		verr.Add("status", "must be one of: want, reading, completed")
	}
	validateOptional(verr, update.Rating, update.Progress)
	if err := verr.orNil(); err != nil {
		return nil, err
	}

	book, err := s.GetBook(ctx, id)
	if err != nil {
		return nil, err
	}

	from := book.Status
	if err := applyUpdate(book, &update, s.now()); err != nil {
		return nil, err
	}

	if err := s.store.UpdateBook(ctx, book); err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return nil, &NotFoundError{Resource: "book", ID: id}
		}
		return nil, fmt.Errorf("update book: %w", err)
	}

	if from != book.Status {
		s.log.Info("book status changed",
			zap.Int64("book_id", id),
			zap.String("from", string(from)),
			zap.String("to", string(book.Status)),
		)
	}
	return book, nil
}

// DeleteBook removes a book and reports whether it existed. Notes are
// handled according to the configured NotePolicy.
func (s *Service) DeleteBook(ctx context.Context, id int64) (bool, error) {
	if s.notePolicy != NotePolicyOrphan {
		// Notes left behind under orphan must not make a missing book look present
		if _, err := s.store.GetBook(ctx, id); err != nil {
			if errors.Is(err, storage.ErrNotFound) {
				return false, nil
			}
			return false, fmt.Errorf("get book: %w", err)
		}
	}

	switch s.notePolicy {
	case NotePolicyRestrict:
		count, err := s.store.CountNotes(ctx, id)
		if err != nil {
			return false, fmt.Errorf("count notes: %w", err)
		}
		if count > 0 {
			return false, &ConflictError{Message: fmt.Sprintf("book %d still has %d notes", id, count)}
		}
	case NotePolicyCascade:
		// Notes go first so a failure leaves the book in place
		removed, err := s.store.DeleteNotesForBook(ctx, id)
		if err != nil {
			return false, fmt.Errorf("delete notes for book %d: %w", id, err)
		}
		s.log.Debug("cascaded note delete", zap.Int64("book_id", id), zap.Int64("notes", removed))
	}

	deleted, err := s.store.DeleteBook(ctx, id)
	if err != nil {
		return false, fmt.Errorf("delete book: %w", err)
	}
	return deleted, nil
}

// AddNote attaches a note to an existing book
func (s *Service) AddNote(ctx context.Context, bookID int64, in NewNote) (*models.ReadingNote, error) {
	quote := strings.TrimSpace(in.QuoteText)
	thought := strings.TrimSpace(in.ThoughtText)
	content := in.Content
	if strings.TrimSpace(content) == "" {
		content = composeContent(quote, thought)
	}
	if strings.TrimSpace(content) == "" {
		return nil, NewValidationError("content", "must not be empty")
	}

	if _, err := s.GetBook(ctx, bookID); err != nil {
		return nil, err
	}

	note := &models.ReadingNote{
		BookID:      bookID,
		Content:     content,
		QuoteText:   quote,
		ThoughtText: thought,
		CreatedAt:   s.now().UTC(),
	}
	if err := s.store.CreateNote(ctx, note); err != nil {
		return nil, fmt.Errorf("create note: %w", err)
	}
	return note, nil
}

// ListNotes returns a book's notes newest first
func (s *Service) ListNotes(ctx context.Context, bookID int64) ([]models.ReadingNote, error) {
	if _, err := s.GetBook(ctx, bookID); err != nil {
		return nil, err
	}

	notes, err := s.store.ListNotes(ctx, bookID)
	if err != nil {
		return nil, fmt.Errorf("list notes: %w", err)
	}
	return notes, nil
}

// DeleteNote removes a note and reports whether it existed
func (s *Service) DeleteNote(ctx context.Context, id int64) (bool, error) {
	deleted, err := s.store.DeleteNote(ctx, id)
	if err != nil {
		return false, fmt.Errorf("delete note: %w", err)
	}
	return deleted, nil
}

// composeContent joins a quote and a thought the way the mobile client
// displays them: the quote in double quotes, a blank line, the thought
func composeContent(quote, thought string) string {
	switch {
	case quote != "" && thought != "":
		return "\"" + quote + "\"\n\n" + thought
	case quote != "":
		return "\"" + quote + "\""
	default:
		return thought
	}
}

func validateOptional(verr *ValidationError, rating *float64, progress *int) {
	if rating != nil {
		if msg := checkRating(*rating); msg != "" {
			verr.Add("rating", msg)
		}
	}
	if progress != nil && (*progress < 0 || *progress > 100) {
		verr.Add("progress", "must be between 0 and 100")
	}
}

// checkRating returns a message when r is outside [0,5] or not a multiple of 0.5
func checkRating(r float64) string {
	if math.IsNaN(r) || r < 0 || r > 5 {
		return "must be between 0 and 5"
	}
	if math.Mod(r*2, 1) != 0 {
		return "must be a multiple of 0.5"
	}
	return ""
}
