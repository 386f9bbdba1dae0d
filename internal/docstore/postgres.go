package docstore

import (
	"context"
	"database/sql"
	"fmt"
	"sync"

	_ "github.com/jackc/pgx/v5/stdlib" // register pgx as a database/sql driver
)

const (
	postgresDriverName = "pgx"
	defaultPostgresDSN = "postgres://localhost/growthindex?sslmode=disable"
)

var (
	sqlOpen = sql.Open
	openMu  sync.Mutex
)

// PostgresIndex persists documents as JSONB rows in Postgres.
type PostgresIndex struct {
	*sqlIndex
}

// OpenPostgres connects using dsn (falling back to a local default), pings the
// server and ensures the document tables exist.
func OpenPostgres(ctx context.Context, dsn, name string) (*PostgresIndex, error) {
	if dsn == "" {
		dsn = defaultPostgresDSN
	}
	if name == "" {
		name = DefaultName
	}
	openMu.Lock()
	db, err := sqlOpen(postgresDriverName, dsn)
	openMu.Unlock()
	if err != nil {
		return nil, fmt.Errorf("open postgres: %w", err)
	}
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping postgres: %w", err)
	}
	idx, err := newSQLIndex(ctx, db, postgresDialect, name)
	if err != nil {
		_ = db.Close()
		return nil, err
	}
	return &PostgresIndex{sqlIndex: idx}, nil
}
