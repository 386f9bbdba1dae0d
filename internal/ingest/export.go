package ingest

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"path"
	"strconv"
	"time"

	"github.com/klauspost/compress/gzip"

	"growthindex/internal/blob"
)

// ExportContentType is the content type of archived exports.
const ExportContentType = "application/x-ndjson"

// ExportResult describes a written export.
type ExportResult struct {
	RunID   string     `json:"run_id"`
	Records int        `json:"records"`
	Bytes   int64      `json:"bytes"`
	Archive *blob.Info `json:"archive,omitempty"`
}

// Export writes the records of folder to w as gzip-compressed NDJSON, one
// record per line.
func (r *Runner) Export(ctx context.Context, folder string, w io.Writer) (res ExportResult, retErr error) {
	start := time.Now()
	defer func() { r.metrics.Observe(ctx, OpExport, retErr == nil, time.Since(start)) }()

	cw := &countingWriter{w: w}
	zw := gzip.NewWriter(cw)
	enc := json.NewEncoder(zw)
	for rec, err := range r.loader().Load(ctx, folder) {
		if err != nil {
			_ = zw.Close()
			return res, err
		}
		if err := enc.Encode(rec); err != nil {
			_ = zw.Close()
			return res, fmt.Errorf("encode %s: %w", rec.ID, err)
		}
		res.Records++
	}
	if err := zw.Close(); err != nil {
		return res, fmt.Errorf("finish export: %w", err)
	}
	res.Bytes = cw.n
	r.logger.Info("grs export written", "folder", folder, "records", res.Records, "bytes", res.Bytes)
	return res, nil
}

// Archive exports folder into the source blob store under
// exports/<YYYY-MM-DD>/<run id>.ndjson.gz.
func (r *Runner) Archive(ctx context.Context, folder, runID string) (ExportResult, error) {
	var buf bytes.Buffer
	res, err := r.Export(ctx, folder, &buf)
	if err != nil {
		return res, err
	}
	res.RunID = runID
	key := path.Join("exports", r.clock.Now().Format("2006-01-02"), runID+".ndjson.gz")
	info, err := r.source.Put(ctx, key, &buf, blob.PutOptions{
		ContentType: ExportContentType,
		Metadata: map[string]string{
			"folder":  folder,
			"records": strconv.Itoa(res.Records),
			"run-id":  runID,
		},
	})
	if err != nil {
		return res, fmt.Errorf("archive export: %w", err)
	}
	res.Archive = &info
	return res, nil
}

type countingWriter struct {
	w io.Writer
	n int64
}

func (c *countingWriter) Write(p []byte) (int, error) {
	n, err := c.w.Write(p)
	c.n += int64(n)
	return n, err
}
