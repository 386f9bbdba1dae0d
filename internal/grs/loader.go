package grs

import (
	"context"
	"io"
	"io/fs"
	"iter"
	"os"
	"path"
	"path/filepath"
	"time"

	"growthindex/internal/observability"
)

// DataFile is the name of the dataset inside a data folder.
const DataFile = "grs.csv.gz"

// DefaultWindow is the trailing window kept relative to the clock.
const DefaultWindow = 90 * 24 * time.Hour

// Clock supplies the current time for the trailing window.
type Clock interface {
	Now() time.Time
}

// ClockFunc adapts a function to Clock.
type ClockFunc func() time.Time

// Now implements Clock.
func (f ClockFunc) Now() time.Time { return f() }

type systemClock struct{}

func (systemClock) Now() time.Time { return time.Now().UTC() }

// SystemClock returns the wall clock in UTC.
func SystemClock() Clock { return systemClock{} }

// Source opens named inputs. Names use forward slashes.
type Source interface {
	Open(ctx context.Context, name string) (io.ReadCloser, error)
}

// SourceFunc adapts a function to Source.
type SourceFunc func(ctx context.Context, name string) (io.ReadCloser, error)

// Open implements Source.
func (f SourceFunc) Open(ctx context.Context, name string) (io.ReadCloser, error) {
	return f(ctx, name)
}

// FSSource opens inputs from an fs.FS.
func FSSource(fsys fs.FS) Source {
	return SourceFunc(func(_ context.Context, name string) (io.ReadCloser, error) {
		return fsys.Open(name)
	})
}

// OSSource opens inputs from the local filesystem.
func OSSource() Source {
	return SourceFunc(func(_ context.Context, name string) (io.ReadCloser, error) {
		return os.Open(filepath.FromSlash(name))
	})
}

// Option configures a Loader.
type Option func(*Loader)

// WithClock overrides the clock the window is measured from.
func WithClock(c Clock) Option {
	return func(l *Loader) {
		if c != nil {
			l.clock = c
		}
	}
}

// WithWindow overrides the trailing window length.
func WithWindow(d time.Duration) Option {
	return func(l *Loader) {
		if d > 0 {
			l.window = d
		}
	}
}

// WithLogger sets the logger used for load progress.
func WithLogger(logger observability.Logger) Option {
	return func(l *Loader) {
		if logger != nil {
			l.logger = logger
		}
	}
}

// Loader reads a data folder and emits one record per entity in the window.
type Loader struct {
	source Source
	clock  Clock
	window time.Duration
	logger observability.Logger
}

// NewLoader constructs a loader reading from source.
func NewLoader(source Source, opts ...Option) *Loader {
	l := &Loader{
		source: source,
		clock:  SystemClock(),
		window: DefaultWindow,
		logger: observability.NopLogger(),
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// Window returns the configured trailing window.
func (l *Loader) Window() time.Duration { return l.window }

// Load returns the records of folder/grs.csv.gz as a single-use sequence. The
// input is read on first iteration; a failure is yielded once as the final
// element. Ranging over the sequence again yields ErrConsumed.
func (l *Loader) Load(ctx context.Context, folder string) iter.Seq2[Record, error] {
	consumed := false
	return func(yield func(Record, error) bool) {
		if consumed {
			yield(Record{}, ErrConsumed)
			return
		}
		consumed = true

		groups, err := l.groups(ctx, folder)
		if err != nil {
			yield(Record{}, err)
			return
		}
		for _, g := range groups {
			if err := ctx.Err(); err != nil {
				yield(Record{}, err)
				return
			}
			if !yield(g.record(), nil) {
				return
			}
		}
	}
}

func (l *Loader) groups(ctx context.Context, folder string) ([]*group, error) {
	name := path.Join(folder, DataFile)
	rc, err := l.source.Open(ctx, name)
	if err != nil {
		return nil, &IOError{Op: "open", Path: name, Err: err}
	}
	defer func() { _ = rc.Close() }()

	now := l.clock.Now()
	table, err := readTable(rc, name, func(row Row) bool {
		return row.InWindow(now, l.window)
	})
	if err != nil {
		return nil, err
	}
	groups := groupRows(table.Rows)
	l.logger.Debug("grs table loaded",
		"path", name,
		"rows_read", table.Read,
		"rows_in_window", len(table.Rows),
		"entities", len(groups),
		"window_start", now.Add(-l.window).Format(time.RFC3339),
	)
	return groups, nil
}

// Transform applies the trailing window relative to now and groups the rows
// of an already decoded table.
func Transform(table *Table, now time.Time, window time.Duration) []Record {
	kept := make([]Row, 0, len(table.Rows))
	for _, row := range table.Rows {
		if row.InWindow(now, window) {
			kept = append(kept, row)
		}
	}
	return GroupRecords(kept)
}
