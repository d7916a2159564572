package storage

import (
	"context"
	"sort"
	"sync"

	"github.com/justyntemme/readlog/internal/models"
)

// MemoryStore keeps everything in maps. Ids come from per-entity counters
// owned by the instance and are never reused.
type MemoryStore struct {
	mu sync.RWMutex

	users map[int64]models.User
	books map[int64]models.Book
	notes map[int64]models.ReadingNote

	lastUserID int64
	lastBookID int64
	lastNoteID int64
}

// NewMemoryStore creates an empty in-memory store
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		users: make(map[int64]models.User),
		books: make(map[int64]models.Book),
		notes: make(map[int64]models.ReadingNote),
	}
}

func (m *MemoryStore) Ping(ctx context.Context) error { return nil }

func (m *MemoryStore) Close() error { return nil }

// GetUser retrieves a user by ID
func (m *MemoryStore) GetUser(ctx context.Context, id int64) (*models.User, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	u, ok := m.users[id]
	if !ok {
		return nil, ErrNotFound
	}
	return &u, nil
}

// GetUserByUsername retrieves a user by username
func (m *MemoryStore) GetUserByUsername(ctx context.Context, username string) (*models.User, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	for _, u := range m.users {
		if u.Username == username {
			return &u, nil
		}
	}
	return nil, ErrNotFound
}

// CreateUser inserts a user and assigns its ID
func (m *MemoryStore) CreateUser(ctx context.Context, user *models.User) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.lastUserID++
	user.ID = m.lastUserID
	m.users[user.ID] = *user
	return nil
}

// CreateBook inserts a book and assigns its ID
func (m *MemoryStore) CreateBook(ctx context.Context, book *models.Book) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.lastBookID++
	book.ID = m.lastBookID
	m.books[book.ID] = cloneBook(*book)
	return nil
}

// GetBook retrieves a book by ID
func (m *MemoryStore) GetBook(ctx context.Context, id int64) (*models.Book, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	b, ok := m.books[id]
	if !ok {
		return nil, ErrNotFound
	}
	b = cloneBook(b)
	return &b, nil
}

// ListBooks returns the books matching filter, newest first
func (m *MemoryStore) ListBooks(ctx context.Context, filter BookFilter) ([]models.Book, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	books := make([]models.Book, 0)
	for _, b := range m.books {
		if b.UserID != filter.UserID {
			continue
		}
		if filter.Status != "" && b.Status != filter.Status {
			continue
		}
		books = append(books, cloneBook(b))
	}

	sort.Slice(books, func(i, j int) bool {
		if !books[i].CreatedAt.Equal(books[j].CreatedAt) {
			return books[i].CreatedAt.After(books[j].CreatedAt)
		}
		return books[i].ID > books[j].ID
	})
	return books, nil
}

// UpdateBook replaces a stored book
func (m *MemoryStore) UpdateBook(ctx context.Context, book *models.Book) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.books[book.ID]; !ok {
		return ErrNotFound
	}
	m.books[book.ID] = cloneBook(*book)
	return nil
}

// DeleteBook removes a book and reports whether it existed
func (m *MemoryStore) DeleteBook(ctx context.Context, id int64) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.books[id]; !ok {
		return false, nil
	}
	delete(m.books, id)
	return true, nil
}

// CreateNote inserts a note and assigns its ID
func (m *MemoryStore) CreateNote(ctx context.Context, note *models.ReadingNote) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.lastNoteID++
	note.ID = m.lastNoteID
	m.notes[note.ID] = *note
	return nil
}

// ListNotes returns the notes for a book, newest first
func (m *MemoryStore) ListNotes(ctx context.Context, bookID int64) ([]models.ReadingNote, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	notes := make([]models.ReadingNote, 0)
	for _, n := range m.notes {
		if n.BookID == bookID {
			notes = append(notes, n)
		}
	}

	sort.Slice(notes, func(i, j int) bool {
		if !notes[i].CreatedAt.Equal(notes[j].CreatedAt) {
			return notes[i].CreatedAt.After(notes[j].CreatedAt)
		}
		return notes[i].ID > notes[j].ID
	})
	return notes, nil
}

// CountNotes returns how many notes a book has
func (m *MemoryStore) CountNotes(ctx context.Context, bookID int64) (int, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	count := 0
	for _, n := range m.notes {
		if n.BookID == bookID {
			count++
		}
	}
	return count, nil
}

// DeleteNote removes a note and reports whether it existed
func (m *MemoryStore) DeleteNote(ctx context.Context, id int64) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.notes[id]; !ok {
		return false, nil
	}
	delete(m.notes, id)
	return true, nil
}

// DeleteNotesForBook removes every note of a book
func (m *MemoryStore) DeleteNotesForBook(ctx context.Context, bookID int64) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	var removed int64
	for id, n := range m.notes {
		if n.BookID == bookID {
			delete(m.notes, id)
			removed++
		}
	}
	return removed, nil
}

// cloneBook copies the pointer fields so callers can't mutate stored state
func cloneBook(b models.Book) models.Book {
	if b.Rating != nil {
		v := *b.Rating
		b.Rating = &v
	}
	if b.CompletedDate != nil {
		v := *b.CompletedDate
		b.CompletedDate = &v
	}
	if b.Progress != nil {
		v := *b.Progress
		b.Progress = &v
	}
	if b.Notes != nil {
		v := *b.Notes
		b.Notes = &v
	}
	return b
}
