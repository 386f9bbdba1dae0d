package docstore

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"time"

	"growthindex/internal/grs"
	"growthindex/internal/mapping"
)

// dialect captures the differences between the SQL backends.
type dialect struct {
	driver   Driver
	bodyType string
	timeType string
	// placeholder renders the n-th (1-based) bind parameter.
	placeholder func(n int) string
}

var (
	sqliteDialect = dialect{
		driver:      DriverSQLite,
		bodyType:    "TEXT",
		timeType:    "TIMESTAMP",
		placeholder: func(int) string { return "?" },
	}
	postgresDialect = dialect{
		driver:      DriverPostgres,
		bodyType:    "JSONB",
		timeType:    "TIMESTAMPTZ",
		placeholder: func(n int) string { return "$" + strconv.Itoa(n) },
	}
)

func (d dialect) schema() []string {
	return []string{
		`CREATE TABLE IF NOT EXISTS grs_documents (
		index_name TEXT NOT NULL,
		id TEXT NOT NULL,
		body ` + d.bodyType + ` NOT NULL,
		updated_at ` + d.timeType + ` NOT NULL,
		PRIMARY KEY (index_name, id)
	)`,
		`CREATE TABLE IF NOT EXISTS grs_mappings (
		index_name TEXT PRIMARY KEY,
		body ` + d.bodyType + ` NOT NULL,
		updated_at ` + d.timeType + ` NOT NULL
	)`,
	}
}

func (d dialect) upsertDocument() string {
	p := d.placeholder
	return `INSERT INTO grs_documents (index_name, id, body, updated_at) VALUES (` +
		p(1) + `, ` + p(2) + `, ` + p(3) + `, ` + p(4) +
		`) ON CONFLICT (index_name, id) DO UPDATE SET body = excluded.body, updated_at = excluded.updated_at`
}

func (d dialect) upsertMapping() string {
	p := d.placeholder
	return `INSERT INTO grs_mappings (index_name, body, updated_at) VALUES (` +
		p(1) + `, ` + p(2) + `, ` + p(3) +
		`) ON CONFLICT (index_name) DO UPDATE SET body = excluded.body, updated_at = excluded.updated_at`
}

func (d dialect) selectDocument() string {
	p := d.placeholder
	return `SELECT id, body, updated_at FROM grs_documents WHERE index_name = ` + p(1) + ` AND id = ` + p(2)
}

func (d dialect) selectMapping() string {
	return `SELECT body FROM grs_mappings WHERE index_name = ` + d.placeholder(1)
}

func (d dialect) countDocuments() string {
	return `SELECT COUNT(*) FROM grs_documents WHERE index_name = ` + d.placeholder(1)
}

// sqlIndex stores documents as JSON in a shared table partitioned by index name.
type sqlIndex struct {
	db      *sql.DB
	dialect dialect
	name    string
	nowFn   func() time.Time
}

func newSQLIndex(ctx context.Context, db *sql.DB, d dialect, name string) (*sqlIndex, error) {
	for _, stmt := range d.schema() {
		if _, err := db.ExecContext(ctx, stmt); err != nil {
			return nil, fmt.Errorf("ensure %s schema: %w", d.driver, err)
		}
	}
	return &sqlIndex{
		db:      db,
		dialect: d,
		name:    name,
		nowFn:   func() time.Time { return time.Now().UTC() },
	}, nil
}

// Name implements Index.
func (s *sqlIndex) Name() string { return s.name }

// Driver implements Index.
func (s *sqlIndex) Driver() Driver { return s.dialect.driver }

// Close implements Index.
func (s *sqlIndex) Close() error { return s.db.Close() }

// DB exposes the underlying sql.DB for integration testing hooks.
func (s *sqlIndex) DB() *sql.DB { return s.db }

// PutMapping implements Index.
func (s *sqlIndex) PutMapping(ctx context.Context, m mapping.Mapping) error {
	body, err := json.Marshal(m)
	if err != nil {
		return fmt.Errorf("encode mapping: %w", err)
	}
	if _, err := s.db.ExecContext(ctx, s.dialect.upsertMapping(), s.name, string(body), s.nowFn()); err != nil {
		return fmt.Errorf("upsert mapping %s: %w", s.name, err)
	}
	return nil
}

// Mapping implements Index.
func (s *sqlIndex) Mapping(ctx context.Context) (mapping.Mapping, error) {
	var body []byte
	err := s.db.QueryRowContext(ctx, s.dialect.selectMapping(), s.name).Scan(&body)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("mapping %s: %w", s.name, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("select mapping %s: %w", s.name, err)
	}
	var out mapping.Mapping
	if err := json.Unmarshal(body, &out); err != nil {
		return nil, fmt.Errorf("decode mapping: %w", err)
	}
	return out, nil
}

// Upsert implements Index. All records are written in one transaction.
func (s *sqlIndex) Upsert(ctx context.Context, records []grs.Record) (written int, retErr error) {
	encoded, err := encodeRecords(records)
	if err != nil {
		return 0, err
	}
	if len(encoded) == 0 {
		return 0, nil
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("begin upsert: %w", err)
	}
	defer func() {
		if retErr != nil {
			_ = tx.Rollback()
		}
	}()
	now := s.nowFn()
	stmt := s.dialect.upsertDocument()
	for _, e := range encoded {
		if _, err := tx.ExecContext(ctx, stmt, s.name, e.id, string(e.body), now); err != nil {
			return 0, fmt.Errorf("upsert %s: %w", e.id, err)
		}
	}
	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("commit upsert: %w", err)
	}
	return len(encoded), nil
}

// Get implements Index.
func (s *sqlIndex) Get(ctx context.Context, id string) (Document, error) {
	var (
		doc  Document
		body []byte
	)
	err := s.db.QueryRowContext(ctx, s.dialect.selectDocument(), s.name, id).Scan(&doc.ID, &body, &doc.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return Document{}, fmt.Errorf("document %s: %w", id, ErrNotFound)
	}
	if err != nil {
		return Document{}, fmt.Errorf("select document %s: %w", id, err)
	}
	doc.Body = json.RawMessage(body)
	return doc, nil
}

// Count implements Index.
func (s *sqlIndex) Count(ctx context.Context) (int, error) {
	var n int
	if err := s.db.QueryRowContext(ctx, s.dialect.countDocuments(), s.name).Scan(&n); err != nil {
		return 0, fmt.Errorf("count documents: %w", err)
	}
	return n, nil
}
