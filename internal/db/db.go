// Package db is the durable notes store, a single SQLite database file opened through the
// SQLCipher driver. Every backing-store failure is reported as *notes.StorageError.
package db

import (
	"context"
	"database/sql"
	"encoding/hex"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/kuitang/notekeeper/internal/notes"

	// SQLite with optional SQLCipher page encryption (requires CGO_ENABLED=1)
	_ "github.com/mutecomm/go-sqlcipher/v4"
)

const (
	// SQLiteDriverName is the driver name registered by go-sqlcipher.
	SQLiteDriverName = "sqlite3"

	// DefaultDatabaseURL is used when DATABASE_URL is unset.
	DefaultDatabaseURL = "sqlite:///notes.db"

	// MemoryPath is the shared in-memory database DSN used for "sqlite://".
	MemoryPath = "file:notekeeper?mode=memory&cache=shared"

	// MaxOpenConns is the maximum number of open connections.
	// SQLite is single-writer, so high connection counts are counterproductive.
	MaxOpenConns = 4

	// MaxIdleConns is the maximum number of idle connections
	MaxIdleConns = 2

	// KeySize is the SQLCipher key length in bytes.
	KeySize = 32
)

// NotesDB is the durable notes.Store.
type NotesDB struct {
	db  *sql.DB
	now func() time.Time
}

var _ notes.Store = (*NotesDB)(nil)

// NewNotesDBFromSQL wraps an existing sql.DB whose schema is already initialized.
func NewNotesDBFromSQL(sqlDB *sql.DB) *NotesDB {
	return &NotesDB{
		db:  sqlDB,
		now: func() time.Time { return time.Now().UTC() },
	}
}

// ParseDatabaseURL turns a DATABASE_URL into a SQLite path.
//
//	sqlite:///notes.db      -> notes.db
//	sqlite:////var/notes.db -> /var/notes.db
//	sqlite://               -> shared in-memory database
//	notes.db                -> notes.db
func ParseDatabaseURL(raw string) (string, error) {
	raw = strings.TrimSpace(raw)
	switch {
	case raw == "":
		return "", fmt.Errorf("database url is empty")
	case raw == "sqlite://" || raw == "sqlite:///:memory:" || raw == ":memory:":
		return MemoryPath, nil
	case strings.HasPrefix(raw, "sqlite:///"):
		return strings.TrimPrefix(raw, "sqlite:///"), nil
	case strings.Contains(raw, "://"):
		return "", fmt.Errorf("unsupported database url scheme: %s", raw[:strings.Index(raw, "://")])
	default:
		return raw, nil
	}
}

// Open opens (creating if needed) the notes database at path and initializes its schema.
// A non-nil key must be KeySize bytes and enables SQLCipher encryption.
func Open(path string, key []byte) (*NotesDB, error) {
	if path == "" {
		return nil, fmt.Errorf("database path cannot be empty")
	}
	if path == ":memory:" {
		path = MemoryPath
	}
	if key != nil && len(key) != KeySize {
		return nil, fmt.Errorf("database key must be exactly %d bytes, got %d", KeySize, len(key))
	}

	if !isMemoryPath(path) {
		if dir := filepath.Dir(path); dir != "." {
			if err := os.MkdirAll(dir, 0750); err != nil {
				return nil, fmt.Errorf("failed to create data directory: %w", err)
			}
		}
	}

	dsn := path
	if key != nil {
		// Format: file.db?_pragma_key=x'HEX_KEY'&_pragma_cipher_page_size=4096
		dsn = appendSQLiteParams(dsn, fmt.Sprintf("_pragma_key=x'%s'&_pragma_cipher_page_size=4096", hex.EncodeToString(key)))
	}
	if !isMemoryPath(path) {
		dsn = appendSQLiteParams(dsn, sqliteCommonParams())
	}

	sqlDB, err := sql.Open(SQLiteDriverName, dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open notes database: %w", err)
	}

	sqlDB.SetMaxOpenConns(MaxOpenConns)
	sqlDB.SetMaxIdleConns(MaxIdleConns)

	// Verify connection and key; a wrong key fails here
	var sqliteVersion string
	if err := sqlDB.QueryRow("SELECT sqlite_version()").Scan(&sqliteVersion); err != nil {
		sqlDB.Close()
		return nil, fmt.Errorf("failed to verify notes database connection: %w", err)
	}

	if _, err := sqlDB.Exec(NotesDBSchema); err != nil {
		sqlDB.Close()
		return nil, fmt.Errorf("failed to initialize notes schema: %w", err)
	}

	return NewNotesDBFromSQL(sqlDB), nil
}

// DB returns the underlying sql.DB for direct access when needed
func (n *NotesDB) DB() *sql.DB {
	return n.db
}

// Close closes the database.
func (n *NotesDB) Close() error {
	if n.db != nil {
		return n.db.Close()
	}
	return nil
}

// Create inserts a new note.
func (n *NotesDB) Create(ctx context.Context, title, content string) (notes.Note, error) {
	now := n.now()
	res, err := n.db.ExecContext(ctx,
		`INSERT INTO notes (title, content, created_at, updated_at) VALUES (?, ?, ?, ?)`,
		title, content, now.UnixMicro(), now.UnixMicro(),
	)
	if err != nil {
		return notes.Note{}, storageErr("create", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return notes.Note{}, storageErr("create", err)
	}

	return notes.Note{
		ID:        id,
		Title:     title,
		Content:   content,
		CreatedAt: fromMicros(now.UnixMicro()),
		UpdatedAt: fromMicros(now.UnixMicro()),
	}, nil
}

// Get retrieves a note by ID.
func (n *NotesDB) Get(ctx context.Context, id int64) (notes.Note, bool, error) {
	note, err := scanNote(n.db.QueryRowContext(ctx,
		`SELECT id, title, content, created_at, updated_at FROM notes WHERE id = ?`, id,
	))
	if errors.Is(err, sql.ErrNoRows) {
		return notes.Note{}, false, nil
	}
	if err != nil {
		return notes.Note{}, false, storageErr("get", err)
	}
	return note, true, nil
}

// Update applies the non-nil fields inside a transaction.
func (n *NotesDB) Update(ctx context.Context, id int64, params notes.UpdateNoteParams) (notes.Note, bool, error) {
	tx, err := n.db.BeginTx(ctx, nil)
	if err != nil {
		return notes.Note{}, false, storageErr("update", err)
	}
	committed := false
	defer func() {
		if !committed {
			_ = tx.Rollback()
		}
	}()

	note, err := scanNote(tx.QueryRowContext(ctx,
		`SELECT id, title, content, created_at, updated_at FROM notes WHERE id = ?`, id,
	))
	if errors.Is(err, sql.ErrNoRows) {
		return notes.Note{}, false, nil
	}
	if err != nil {
		return notes.Note{}, false, storageErr("update", err)
	}

	if params.Title != nil {
		note.Title = *params.Title
	}
	if params.Content != nil {
		note.Content = *params.Content
	}
	updatedAt := n.now().UnixMicro()
	if createdAt := note.CreatedAt.UnixMicro(); updatedAt < createdAt {
		updatedAt = createdAt
	}

	if _, err := tx.ExecContext(ctx,
		`UPDATE notes SET title = ?, content = ?, updated_at = ? WHERE id = ?`,
		note.Title, note.Content, updatedAt, id,
	); err != nil {
		return notes.Note{}, false, storageErr("update", err)
	}
	if err := tx.Commit(); err != nil {
		return notes.Note{}, false, storageErr("update", err)
	}
	committed = true

	note.UpdatedAt = fromMicros(updatedAt)
	return note, true, nil
}

// Delete removes a note and reports whether a row was deleted.
func (n *NotesDB) Delete(ctx context.Context, id int64) (bool, error) {
	res, err := n.db.ExecContext(ctx, `DELETE FROM notes WHERE id = ?`, id)
	if err != nil {
		return false, storageErr("delete", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return false, storageErr("delete", err)
	}
	return affected > 0, nil
}

// List returns one page ordered by descending ID and the total count, read in one transaction.
func (n *NotesDB) List(ctx context.Context, page, pageSize int) ([]notes.Note, int, error) {
	tx, err := n.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, 0, storageErr("list", err)
	}
	defer tx.Rollback()

	var total int
	if err := tx.QueryRowContext(ctx, `SELECT COUNT(*) FROM notes`).Scan(&total); err != nil {
		return nil, 0, storageErr("list", err)
	}

	rows, err := tx.QueryContext(ctx, `
		SELECT id, title, content, created_at, updated_at
		FROM notes
		ORDER BY id DESC
		LIMIT ? OFFSET ?
	`, pageSize, (page-1)*pageSize)
	if err != nil {
		return nil, 0, storageErr("list", err)
	}
	defer rows.Close()

	items := make([]notes.Note, 0, pageSize)
	for rows.Next() {
		note, err := scanNote(rows)
		if err != nil {
			return nil, 0, storageErr("list", err)
		}
		items = append(items, note)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, storageErr("list", err)
	}
	return items, total, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanNote(row rowScanner) (notes.Note, error) {
	var (
		note                 notes.Note
		createdAt, updatedAt int64
	)
	if err := row.Scan(&note.ID, &note.Title, &note.Content, &createdAt, &updatedAt); err != nil {
		return notes.Note{}, err
	}
	note.CreatedAt = fromMicros(createdAt)
	note.UpdatedAt = fromMicros(updatedAt)
	return note, nil
}

func fromMicros(us int64) time.Time {
	return time.UnixMicro(us).UTC()
}

// storageErr wraps a backing-store failure. Context cancellation belongs to the caller and
// is returned as is.
func storageErr(op string, err error) error {
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return err
	}
	return &notes.StorageError{Op: op, Err: err}
}

func isMemoryPath(path string) bool {
	return path == ":memory:" || strings.Contains(path, "mode=memory")
}

func sqliteCommonParams() string {
	// Production-safe defaults: WAL + NORMAL provides good throughput while preserving safety.
	return "_journal_mode=WAL&_synchronous=NORMAL&_busy_timeout=5000"
}

func appendSQLiteParams(dsn, params string) string {
	if strings.Contains(dsn, "?") {
		return dsn + "&" + params
	}
	return dsn + "?" + params
}
