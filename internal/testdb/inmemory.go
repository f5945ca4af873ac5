package testdb

import (
	"database/sql"
	"encoding/hex"
	"fmt"
	"strings"
	"sync/atomic"

	"github.com/kuitang/notekeeper/internal/db"
)

var counter atomic.Int64

// testKey is a fixed SQLCipher key so tests exercise the encrypted code path.
var testKey = strings.Repeat("ab", db.KeySize)

// NewNotesDBInMemory creates an isolated in-memory encrypted NotesDB for tests.
// Every call gets its own database, even with the same name.
func NewNotesDBInMemory(name string) (*db.NotesDB, error) {
	if name == "" {
		name = "notes"
	}
	name = fmt.Sprintf("%s-%d", name, counter.Add(1))

	if _, err := hex.DecodeString(testKey); err != nil {
		return nil, err
	}
	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared&_pragma_key=x'%s'&_pragma_cipher_page_size=4096", name, testKey)

	sqlDB, err := sql.Open(db.SQLiteDriverName, dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open in-memory notes database: %w", err)
	}

	// One idle connection keeps the shared in-memory database alive.
	sqlDB.SetMaxIdleConns(1)
	sqlDB.SetMaxOpenConns(4)

	var sqliteVersion string
	if err := sqlDB.QueryRow("SELECT sqlite_version()").Scan(&sqliteVersion); err != nil {
		sqlDB.Close()
		return nil, fmt.Errorf("failed to verify in-memory notes database: %w", err)
	}

	if err := applyFastSQLitePragmas(sqlDB); err != nil {
		sqlDB.Close()
		return nil, fmt.Errorf("failed to apply fast SQLite pragmas: %w", err)
	}

	if _, err := sqlDB.Exec(db.NotesDBSchema); err != nil {
		sqlDB.Close()
		return nil, fmt.Errorf("failed to initialize in-memory notes schema: %w", err)
	}

	return db.NewNotesDBFromSQL(sqlDB), nil
}

func applyFastSQLitePragmas(sqlDB *sql.DB) error {
	pragmas := []string{
		"PRAGMA synchronous=OFF",
		"PRAGMA temp_store=MEMORY",
	}
	for _, pragma := range pragmas {
		if _, err := sqlDB.Exec(pragma); err != nil {
			return err
		}
	}
	return nil
}
