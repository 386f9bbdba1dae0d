// Package ingest drives a grs load into a document index: it applies the field
// mapping, streams records in bulk batches and reports on the run.
package ingest

import (
	"context"
	"errors"
	"fmt"
	"io"
	"path/filepath"
	"time"

	"github.com/google/uuid"

	"growthindex/internal/blob"
	"growthindex/internal/docstore"
	"growthindex/internal/grs"
	"growthindex/internal/mapping"
	"growthindex/internal/observability"
)

// DefaultBatchSize is the number of records per bulk write.
const DefaultBatchSize = 500

// Operation names reported to the metrics recorder.
const (
	OpMapping = "put_mapping"
	OpUpsert  = "upsert"
	OpRun     = "run"
	OpExport  = "export"
)

// Option configures a Runner.
type Option func(*Runner)

// WithClock sets the clock used for the window and report timestamps.
func WithClock(c grs.Clock) Option {
	return func(r *Runner) {
		if c != nil {
			r.clock = c
		}
	}
}

// WithLogger sets the run logger.
func WithLogger(l observability.Logger) Option {
	return func(r *Runner) {
		if l != nil {
			r.logger = l
		}
	}
}

// WithMetrics sets the metrics recorder.
func WithMetrics(m observability.MetricsRecorder) Option {
	return func(r *Runner) {
		if m != nil {
			r.metrics = m
		}
	}
}

// WithBatchSize sets the records per bulk write.
func WithBatchSize(n int) Option {
	return func(r *Runner) {
		if n > 0 {
			r.batchSize = n
		}
	}
}

// WithWindow sets the trailing window.
func WithWindow(d time.Duration) Option {
	return func(r *Runner) {
		if d > 0 {
			r.window = d
		}
	}
}

// Runner loads a data folder from a blob store and indexes its records.
type Runner struct {
	source    blob.Store
	index     docstore.Index
	clock     grs.Clock
	logger    observability.Logger
	metrics   observability.MetricsRecorder
	batchSize int
	window    time.Duration
}

// NewRunner constructs a runner reading from source and writing to index.
// index may be nil for export-only use.
func NewRunner(source blob.Store, index docstore.Index, opts ...Option) *Runner {
	r := &Runner{
		source:    source,
		index:     index,
		clock:     grs.SystemClock(),
		logger:    observability.NopLogger(),
		metrics:   observability.NopMetrics(),
		batchSize: DefaultBatchSize,
		window:    grs.DefaultWindow,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// NewRunID returns a fresh run identifier.
func NewRunID() string { return uuid.NewString() }

// Source adapts a blob store to the grs loader. Absolute names are local
// paths and are opened from the filesystem instead of the store.
func Source(store blob.Store) grs.Source {
	local := grs.OSSource()
	return grs.SourceFunc(func(ctx context.Context, name string) (io.ReadCloser, error) {
		if filepath.IsAbs(filepath.FromSlash(name)) {
			return local.Open(ctx, name)
		}
		_, rc, err := store.Get(ctx, name)
		return rc, err
	})
}

func (r *Runner) loader() *grs.Loader {
	return grs.NewLoader(Source(r.source),
		grs.WithClock(r.clock),
		grs.WithWindow(r.window),
		grs.WithLogger(r.logger),
	)
}

// Run indexes folder/grs.csv.gz. The mapping is stored before the first
// batch. On failure the report covers the batches written before the error.
func (r *Runner) Run(ctx context.Context, folder string) (report Report, retErr error) {
	if r.index == nil {
		return Report{}, errors.New("ingest: no index configured")
	}
	started := r.clock.Now()
	report = Report{
		RunID:       NewRunID(),
		Folder:      folder,
		Index:       r.index.Name(),
		Driver:      string(r.index.Driver()),
		StartedAt:   started,
		WindowStart: started.Add(-r.window),
	}
	log := r.logger
	log.Info("grs ingest started", "run_id", report.RunID, "folder", folder, "index", report.Index)
	defer func() {
		report.FinishedAt = r.clock.Now()
		r.metrics.Observe(ctx, OpRun, retErr == nil, report.FinishedAt.Sub(started))
		if retErr != nil {
			log.Error("grs ingest failed", "run_id", report.RunID, "records", report.Records, "error", retErr)
			return
		}
		if m, ok := r.metrics.(observability.SuccessMarker); ok {
			m.MarkSuccess(report.FinishedAt)
		}
		log.Info("grs ingest finished",
			"run_id", report.RunID,
			"records", report.Records,
			"observations", report.Observations,
			"batches", report.Batches,
			"duration", report.FinishedAt.Sub(started).String(),
		)
	}()

	if err := r.timed(ctx, OpMapping, func() error {
		return r.index.PutMapping(ctx, mapping.CustomDataMapping(nil))
	}); err != nil {
		return report, fmt.Errorf("put mapping: %w", err)
	}

	summary := newSummary()
	batch := make([]grs.Record, 0, r.batchSize)
	flush := func() error {
		if len(batch) == 0 {
			return nil
		}
		var written int
		err := r.timed(ctx, OpUpsert, func() error {
			var err error
			written, err = r.index.Upsert(ctx, batch)
			return err
		})
		if err != nil {
			return fmt.Errorf("upsert batch %d: %w", report.Batches+1, err)
		}
		observations := 0
		for _, rec := range batch {
			observations += len(rec.Values)
		}
		report.Batches++
		report.Records += written
		report.Observations += observations
		if c, ok := r.metrics.(observability.IndexCounter); ok {
			c.AddIndexed(written, observations)
		}
		log.Debug("grs batch indexed", "run_id", report.RunID, "batch", report.Batches, "records", written)
		batch = batch[:0]
		return nil
	}

	for rec, err := range r.loader().Load(ctx, folder) {
		if err != nil {
			return report, err
		}
		summary.add(rec)
		batch = append(batch, rec)
		if len(batch) >= r.batchSize {
			if err := flush(); err != nil {
				return report, err
			}
		}
	}
	if err := flush(); err != nil {
		return report, err
	}
	report.SNR = summary.snr()
	report.Locations = summary.locationCount()
	report.Lineages = summary.lineageCount()
	return report, nil
}

func (r *Runner) timed(ctx context.Context, op string, fn func() error) error {
	start := time.Now()
	err := fn()
	r.metrics.Observe(ctx, op, err == nil, time.Since(start))
	return err
}
