// Package docstore indexes grs records into a document store keyed by _id,
// together with the field mapping that describes them.
package docstore

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"growthindex/internal/grs"
	"growthindex/internal/mapping"
)

// Driver identifies a document store backend.
type Driver string

const (
	DriverMemory   Driver = "memory"
	DriverSQLite   Driver = "sqlite"
	DriverPostgres Driver = "postgres"
)

// DefaultName is the index name used when none is configured.
const DefaultName = "grs"

// ErrNotFound is returned by Get for unknown document IDs and by Mapping
// before one was stored.
var ErrNotFound = errors.New("docstore: not found")

// Document is a stored record in its encoded form.
type Document struct {
	ID        string          `json:"_id"`
	Body      json.RawMessage `json:"body"`
	UpdatedAt time.Time       `json:"updated_at"`
}

// Decode unmarshals the document body into v.
func (d Document) Decode(v any) error {
	return json.Unmarshal(d.Body, v)
}

// Index is a named document collection with a field mapping.
type Index interface {
	// PutMapping creates or replaces the field mapping of the index.
	PutMapping(ctx context.Context, m mapping.Mapping) error
	Mapping(ctx context.Context) (mapping.Mapping, error)
	// Upsert writes records keyed by their ID, replacing existing documents.
	// It returns the number of documents written.
	Upsert(ctx context.Context, records []grs.Record) (int, error)
	Get(ctx context.Context, id string) (Document, error)
	Count(ctx context.Context) (int, error)
	Name() string
	Driver() Driver
	Close() error
}

// Config selects and configures an Index driver.
type Config struct {
	Driver      Driver `yaml:"driver"`
	Name        string `yaml:"name"`
	SQLitePath  string `yaml:"sqlite_path"`
	PostgresDSN string `yaml:"postgres_dsn"`
}

// Open constructs the Index described by cfg. An empty driver means memory.
func Open(ctx context.Context, cfg Config) (Index, error) {
	name := cfg.Name
	if name == "" {
		name = DefaultName
	}
	if err := validateName(name); err != nil {
		return nil, err
	}
	switch cfg.Driver {
	case "", DriverMemory:
		return NewMemory(name), nil
	case DriverSQLite:
		return OpenSQLite(ctx, cfg.SQLitePath, name)
	case DriverPostgres:
		return OpenPostgres(ctx, cfg.PostgresDSN, name)
	default:
		return nil, fmt.Errorf("unknown docstore driver %s", cfg.Driver)
	}
}

func validateName(name string) error {
	if strings.TrimSpace(name) == "" {
		return fmt.Errorf("index name required")
	}
	if strings.ContainsAny(name, " \t\n/\\\"'") {
		return fmt.Errorf("invalid index name %q", name)
	}
	return nil
}

type encodedRecord struct {
	id   string
	body []byte
}

func encodeRecords(records []grs.Record) ([]encodedRecord, error) {
	out := make([]encodedRecord, 0, len(records))
	for _, rec := range records {
		if rec.ID == "" {
			return nil, fmt.Errorf("record without _id (location %q, lineage %q)", rec.Location, rec.Lineage)
		}
		body, err := json.Marshal(rec)
		if err != nil {
			return nil, fmt.Errorf("encode %s: %w", rec.ID, err)
		}
		out = append(out, encodedRecord{id: rec.ID, body: body})
	}
	return out, nil
}
