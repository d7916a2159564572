package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/go-sql-driver/mysql"
	_ "github.com/mattn/go-sqlite3"

	"github.com/justyntemme/readlog/internal/models"
)

// Supported database drivers
const (
	DriverSQLite = "sqlite3"
	DriverMySQL  = "mysql"
)

// Database handles all SQL database operations
type Database struct {
	db     *sql.DB
	driver string
}

// NewDatabase creates and initializes the SQLite database at dbPath
func NewDatabase(dbPath string) (*Database, error) {
	return Open(DriverSQLite, dbPath)
}

// Open connects to a sqlite3 or mysql database and creates the schema
func Open(driver, dsn string) (*Database, error) {
	switch driver {
	case DriverSQLite:
		if dir := filepath.Dir(dsn); dir != "." && dir != "" {
			if err := os.MkdirAll(dir, 0755); err != nil {
				return nil, fmt.Errorf("ensure data dir: %w", err)
			}
		}
	case DriverMySQL:
		cfg, err := mysql.ParseDSN(dsn)
		if err != nil {
			return nil, fmt.Errorf("parse mysql dsn: %w", err)
		}
		// Timestamps must scan into time.Time
		cfg.ParseTime = true
		cfg.Loc = time.UTC
		dsn = cfg.FormatDSN()
	default:
		return nil, fmt.Errorf("unsupported database driver %q", driver)
	}

	db, err := sql.Open(driver, dsn)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", driver, err)
	}
	if driver == DriverSQLite {
		// Serialize writers; sqlite locks the whole file anyway
		db.SetMaxOpenConns(1)
	}

	d := &Database{db: db, driver: driver}
	if err := d.migrate(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("apply schema: %w", err)
	}

	return d, nil
}

// Driver returns the name of the underlying driver
func (d *Database) Driver() string {
	return d.driver
}

func (d *Database) migrate() error {
	for _, stmt := range schemaFor(d.driver) {
		if _, err := d.db.Exec(stmt); err != nil {
			return err
		}
	}
	return nil
}

// schemaFor returns the DDL statements for a driver, one per statement so
// drivers without multi-statement support can run them
func schemaFor(driver string) []string {
	if driver == DriverMySQL {
		return []string{
			`CREATE TABLE IF NOT EXISTS users (
				id BIGINT AUTO_INCREMENT PRIMARY KEY,
				username VARCHAR(191) UNIQUE NOT NULL,
				password_hash VARCHAR(255) NOT NULL,
				created_at DATETIME(6) NOT NULL
			)`,
			`CREATE TABLE IF NOT EXISTS books (
				id BIGINT AUTO_INCREMENT PRIMARY KEY,
				user_id BIGINT NOT NULL,
				title VARCHAR(512) NOT NULL,
				author VARCHAR(512) NOT NULL,
				cover_url VARCHAR(2048) NOT NULL,
				status VARCHAR(16) NOT NULL DEFAULT 'want',
				rating DOUBLE NULL,
				completed_date DATETIME(6) NULL,
				progress INT NULL,
				notes TEXT NULL,
				publisher VARCHAR(512) NOT NULL DEFAULT '',
				published_date VARCHAR(64) NOT NULL DEFAULT '',
				created_at DATETIME(6) NOT NULL,
				INDEX idx_books_user_status (user_id, status)
			)`,
			`CREATE TABLE IF NOT EXISTS reading_notes (
				id BIGINT AUTO_INCREMENT PRIMARY KEY,
				book_id BIGINT NOT NULL,
				content TEXT NOT NULL,
				quote_text TEXT NULL,
				thought_text TEXT NULL,
				created_at DATETIME(6) NOT NULL,
				INDEX idx_notes_book (book_id)
			)`,
		}
	}

	return []string{
		`CREATE TABLE IF NOT EXISTS users (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			username TEXT UNIQUE NOT NULL,
			password_hash TEXT NOT NULL,
			created_at DATETIME NOT NULL
		)`,
		`CREATE TABLE IF NOT EXISTS books (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			user_id INTEGER NOT NULL,
			title TEXT NOT NULL,
			author TEXT NOT NULL,
			cover_url TEXT NOT NULL,
			status TEXT NOT NULL DEFAULT 'want',
			rating REAL,
			completed_date DATETIME,
			progress INTEGER,
			notes TEXT,
			publisher TEXT NOT NULL DEFAULT '',
			published_date TEXT NOT NULL DEFAULT '',
			created_at DATETIME NOT NULL
		)`,
		`CREATE TABLE IF NOT EXISTS reading_notes (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			book_id INTEGER NOT NULL,
			content TEXT NOT NULL,
			quote_text TEXT,
			thought_text TEXT,
			created_at DATETIME NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS idx_books_user_status ON books(user_id, status)`,
		`CREATE INDEX IF NOT EXISTS idx_notes_book ON reading_notes(book_id)`,
	}
}

// Ping verifies the connection is alive
func (d *Database) Ping(ctx context.Context) error {
	return d.db.PingContext(ctx)
}

// CreateUser inserts a new user and assigns its ID
func (d *Database) CreateUser(ctx context.Context, user *models.User) error {
	if user.CreatedAt.IsZero() {
		user.CreatedAt = time.Now().UTC()
	}
	res, err := d.db.ExecContext(ctx, `
		INSERT INTO users (username, password_hash, created_at)
		VALUES (?, ?, ?)`,
		user.Username, user.PasswordHash, user.CreatedAt.UTC(),
	)
	if err != nil {
		return fmt.Errorf("insert user: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return fmt.Errorf("user id: %w", err)
	}
	user.ID = id
	return nil
}

// GetUser retrieves a user by ID
func (d *Database) GetUser(ctx context.Context, id int64) (*models.User, error) {
	user := &models.User{}
	err := d.db.QueryRowContext(ctx, `
		SELECT id, username, password_hash, created_at
		FROM users WHERE id = ?`, id,
	).Scan(&user.ID, &user.Username, &user.PasswordHash, &user.CreatedAt)
	if err != nil {
		return nil, notFound(err)
	}
	user.CreatedAt = user.CreatedAt.UTC()
	return user, nil
}

// GetUserByUsername retrieves a user by username
func (d *Database) GetUserByUsername(ctx context.Context, username string) (*models.User, error) {
	user := &models.User{}
	err := d.db.QueryRowContext(ctx, `
		SELECT id, username, password_hash, created_at
		FROM users WHERE username = ?`, username,
	).Scan(&user.ID, &user.Username, &user.PasswordHash, &user.CreatedAt)
	if err != nil {
		return nil, notFound(err)
	}
	user.CreatedAt = user.CreatedAt.UTC()
	return user, nil
}

const bookColumns = `id, user_id, title, author, cover_url, status, rating, completed_date,
	progress, notes, publisher, published_date, created_at`

// CreateBook inserts a new book and assigns its ID
func (d *Database) CreateBook(ctx context.Context, book *models.Book) error {
	res, err := d.db.ExecContext(ctx, `
		INSERT INTO books (user_id, title, author, cover_url, status, rating, completed_date,
			progress, notes, publisher, published_date, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		book.UserID, book.Title, book.Author, book.CoverURL, string(book.Status),
		nullFloat(book.Rating), nullTime(book.CompletedDate), nullInt(book.Progress),
		nullString(book.Notes), book.Publisher, book.PublishedDate, book.CreatedAt.UTC(),
	)
	if err != nil {
		return fmt.Errorf("insert book: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return fmt.Errorf("book id: %w", err)
	}
	book.ID = id
	return nil
}

// GetBook retrieves a book by ID
func (d *Database) GetBook(ctx context.Context, id int64) (*models.Book, error) {
	row := d.db.QueryRowContext(ctx, `SELECT `+bookColumns+` FROM books WHERE id = ?`, id)
	book, err := scanBook(row)
	if err != nil {
		return nil, notFound(err)
	}
	return book, nil
}

// ListBooks returns a user's books, optionally narrowed to one status, newest first
func (d *Database) ListBooks(ctx context.Context, filter BookFilter) ([]models.Book, error) {
	var rows *sql.Rows
	var err error

	if filter.Status != "" {
		rows, err = d.db.QueryContext(ctx, `
			SELECT `+bookColumns+`
			FROM books
			WHERE user_id = ? AND status = ?
			ORDER BY created_at DESC, id DESC`,
			filter.UserID, string(filter.Status),
		)
	} else {
		rows, err = d.db.QueryContext(ctx, `
			SELECT `+bookColumns+`
			FROM books
			WHERE user_id = ?
			ORDER BY created_at DESC, id DESC`,
			filter.UserID,
		)
	}
	if err != nil {
		return nil, fmt.Errorf("list books: %w", err)
	}
	defer rows.Close()

	books := make([]models.Book, 0)
	for rows.Next() {
		book, err := scanBook(rows)
		if err != nil {
			return nil, fmt.Errorf("scan book row: %w", err)
		}
		books = append(books, *book)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows err: %w", err)
	}

	return books, nil
}

// UpdateBook replaces the mutable columns of a book. The id, owner and
// creation time never change.
func (d *Database) UpdateBook(ctx context.Context, book *models.Book) error {
	res, err := d.db.ExecContext(ctx, `
		UPDATE books SET
			title = ?, author = ?, cover_url = ?, status = ?, rating = ?, completed_date = ?,
			progress = ?, notes = ?, publisher = ?, published_date = ?
		WHERE id = ?`,
		book.Title, book.Author, book.CoverURL, string(book.Status),
		nullFloat(book.Rating), nullTime(book.CompletedDate), nullInt(book.Progress),
		nullString(book.Notes), book.Publisher, book.PublishedDate, book.ID,
	)
	if err != nil {
		return fmt.Errorf("update book: %w", err)
	}
	// mysql reports 0 affected rows when nothing changed, so confirm existence instead
	if n, _ := res.RowsAffected(); n == 0 {
		if _, err := d.GetBook(ctx, book.ID); err != nil {
			return err
		}
	}
	return nil
}

// DeleteBook removes a book and reports whether a row existed
func (d *Database) DeleteBook(ctx context.Context, id int64) (bool, error) {
	res, err := d.db.ExecContext(ctx, "DELETE FROM books WHERE id = ?", id)
	if err != nil {
		return false, fmt.Errorf("delete book: %w", err)
	}
	n, _ := res.RowsAffected()
	return n > 0, nil
}

// CreateNote inserts a reading note and assigns its ID
func (d *Database) CreateNote(ctx context.Context, note *models.ReadingNote) error {
	res, err := d.db.ExecContext(ctx, `
		INSERT INTO reading_notes (book_id, content, quote_text, thought_text, created_at)
		VALUES (?, ?, ?, ?, ?)`,
		note.BookID, note.Content, note.QuoteText, note.ThoughtText, note.CreatedAt.UTC(),
	)
	if err != nil {
		return fmt.Errorf("insert note: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return fmt.Errorf("note id: %w", err)
	}
	note.ID = id
	return nil
}

// ListNotes returns the notes of a book, newest first
func (d *Database) ListNotes(ctx context.Context, bookID int64) ([]models.ReadingNote, error) {
	rows, err := d.db.QueryContext(ctx, `
		SELECT id, book_id, content, quote_text, thought_text, created_at
		FROM reading_notes
		WHERE book_id = ?
		ORDER BY created_at DESC, id DESC`, bookID)
	if err != nil {
		return nil, fmt.Errorf("list notes: %w", err)
	}
	defer rows.Close()

	notes := make([]models.ReadingNote, 0)
	for rows.Next() {
		var note models.ReadingNote
		var quote, thought sql.NullString
		if err := rows.Scan(&note.ID, &note.BookID, &note.Content, &quote, &thought, &note.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan note row: %w", err)
		}
		note.QuoteText = quote.String
		note.ThoughtText = thought.String
		note.CreatedAt = note.CreatedAt.UTC()
		notes = append(notes, note)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows err: %w", err)
	}

	return notes, nil
}

// CountNotes returns the number of notes attached to a book
func (d *Database) CountNotes(ctx context.Context, bookID int64) (int, error) {
	var count int
	err := d.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM reading_notes WHERE book_id = ?", bookID).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("count notes: %w", err)
	}
	return count, nil
}

// DeleteNote removes a note and reports whether a row existed
func (d *Database) DeleteNote(ctx context.Context, id int64) (bool, error) {
	res, err := d.db.ExecContext(ctx, "DELETE FROM reading_notes WHERE id = ?", id)
	if err != nil {
		return false, fmt.Errorf("delete note: %w", err)
	}
	n, _ := res.RowsAffected()
	return n > 0, nil
}

// DeleteNotesForBook removes all notes of a book
func (d *Database) DeleteNotesForBook(ctx context.Context, bookID int64) (int64, error) {
	res, err := d.db.ExecContext(ctx, "DELETE FROM reading_notes WHERE book_id = ?", bookID)
	if err != nil {
		return 0, fmt.Errorf("delete notes for book: %w", err)
	}
	n, _ := res.RowsAffected()
	return n, nil
}

// Close closes the database connection
func (d *Database) Close() error {
	return d.db.Close()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanBook(row rowScanner) (*models.Book, error) {
	var (
		book      models.Book
		status    string
		rating    sql.NullFloat64
		completed sql.NullTime
		progress  sql.NullInt64
		notes     sql.NullString
	)

	err := row.Scan(&book.ID, &book.UserID, &book.Title, &book.Author, &book.CoverURL, &status,
		&rating, &completed, &progress, &notes, &book.Publisher, &book.PublishedDate, &book.CreatedAt)
	if err != nil {
		return nil, err
	}

	book.Status = models.Status(status)
	book.CreatedAt = book.CreatedAt.UTC()
	if rating.Valid {
		book.Rating = &rating.Float64
	}
	if completed.Valid {
		t := completed.Time.UTC()
		book.CompletedDate = &t
	}
	if progress.Valid {
		p := int(progress.Int64)
		book.Progress = &p
	}
	if notes.Valid {
		book.Notes = &notes.String
	}
	return &book, nil
}

func notFound(err error) error {
	if errors.Is(err, sql.ErrNoRows) {
		return ErrNotFound
	}
	return err
}

func nullFloat(v *float64) sql.NullFloat64 {
	if v == nil {
		return sql.NullFloat64{}
	}
	return sql.NullFloat64{Float64: *v, Valid: true}
}

func nullInt(v *int) sql.NullInt64 {
	if v == nil {
		return sql.NullInt64{}
	}
	return sql.NullInt64{Int64: int64(*v), Valid: true}
}

func nullString(v *string) sql.NullString {
	if v == nil {
		return sql.NullString{}
	}
	return sql.NullString{String: *v, Valid: true}
}

func nullTime(v *time.Time) sql.NullTime {
	if v == nil {
		return sql.NullTime{}
	}
	return sql.NullTime{Time: v.UTC(), Valid: true}
}
