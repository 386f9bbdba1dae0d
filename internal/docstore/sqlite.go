package docstore

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	_ "modernc.org/sqlite" // pure go sqlite driver
)

// SQLiteIndex persists documents to a local SQLite database file.
type SQLiteIndex struct {
	*sqlIndex
	path string
}

// OpenSQLite opens (creating if needed) the database at path and ensures the
// document tables exist.
func OpenSQLite(ctx context.Context, path, name string) (*SQLiteIndex, error) {
	if path == "" {
		path = "growthindex.db"
	}
	if name == "" {
		name = DefaultName
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o750); err != nil && !errors.Is(err, os.ErrExist) {
		return nil, fmt.Errorf("create dirs: %w", err)
	}
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	// a single connection serializes writers and keeps :memory: databases shared
	db.SetMaxOpenConns(1)
	idx, err := newSQLIndex(ctx, db, sqliteDialect, name)
	if err != nil {
		_ = db.Close()
		return nil, err
	}
	return &SQLiteIndex{sqlIndex: idx, path: path}, nil
}

// Path returns the configured database path.
func (s *SQLiteIndex) Path() string { return s.path }
