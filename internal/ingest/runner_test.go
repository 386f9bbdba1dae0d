package ingest

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/klauspost/compress/gzip"
	"go.uber.org/goleak"

	"growthindex/internal/blob"
	"growthindex/internal/docstore"
	"growthindex/internal/grs"
	"growthindex/internal/mapping"
	"growthindex/internal/observability"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

const header = "date,loc,lin,N_7,deltaN_7,N_prev_7,deltaN_prev_7,Prevalence_7,deltaPrevalence_7,G_7,deltaG_7"

var testNow = time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC)

func seed(t *testing.T, store blob.Store, folder string, rows ...string) {
	t.Helper()
	var buf bytes.Buffer
	zw := gzip.NewWriter(&buf)
	fmt.Fprintln(zw, header)
	for _, r := range rows {
		fmt.Fprintln(zw, r)
	}
	if err := zw.Close(); err != nil {
		t.Fatalf("gzip: %v", err)
	}
	if _, err := store.Put(context.Background(), folder+"/"+grs.DataFile, &buf, blob.PutOptions{ContentType: "application/gzip"}); err != nil {
		t.Fatalf("seed: %v", err)
	}
}

func sampleStore(t *testing.T) *blob.MemoryStore {
	store := blob.NewMemory()
	seed(t, store, "latest",
		"2024-02-01,US,BA.1,10,1,8,1,0.2,0.01,0.1,0.02",
		"2024-02-08,US,BA.1,12,1,10,1,0.25,0.01,0.1,0.02",
		"2024-02-08,DE,BA.2,5,1,4,1,0.1,0.01,0.2,0.01",
		"2024-02-08,DE,BA.1,5,1,4,1,0.1,0.01,0.3,0",
		"2023-06-01,FR,BA.1,5,1,4,1,0.1,0.01,0.3,0.01",
	)
	return store
}

func TestRunIndexesRecords(t *testing.T) {
	store := sampleStore(t)
	index := docstore.NewMemory("grs")
	metrics := observability.NewExpvarRecorder("")
	r := NewRunner(store, index,
		WithClock(grs.ClockFunc(func() time.Time { return testNow })),
		WithMetrics(metrics),
		WithBatchSize(2),
	)
	report, err := r.Run(context.Background(), "latest")
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if report.Records != 3 || report.Observations != 4 || report.Batches != 2 {
		t.Fatalf("unexpected counts %+v", report)
	}
	if report.Locations != 2 || report.Lineages != 2 {
		t.Fatalf("unexpected entity counts %+v", report)
	}
	if report.Index != "grs" || report.Driver != "memory" || report.Folder != "latest" || report.RunID == "" {
		t.Fatalf("unexpected report identity %+v", report)
	}
	if !report.StartedAt.Equal(testNow) || !report.WindowStart.Equal(testNow.Add(-grs.DefaultWindow)) {
		t.Fatalf("unexpected report times %+v", report)
	}
	if report.SNR.Count != 2 || report.SNR.Infinite != 1 || report.SNR.Min > report.SNR.Median || report.SNR.Median > report.SNR.Max {
		t.Fatalf("unexpected snr summary %+v", report.SNR)
	}

	if diff := cmp.Diff([]string{"DE_BA.1", "DE_BA.2", "US_BA.1"}, index.IDs()); diff != "" {
		t.Fatalf("ids (-want +got):\n%s", diff)
	}
	stored, err := index.Mapping(context.Background())
	if err != nil {
		t.Fatalf("mapping not stored: %v", err)
	}
	if diff := cmp.Diff(mapping.CustomDataMapping(nil), stored); diff != "" {
		t.Fatalf("mapping (-want +got):\n%s", diff)
	}

	snap := metrics.Snapshot()
	if snap.Operations[OpRun].Success != 1 || snap.Operations[OpUpsert].Success != 2 || snap.Operations[OpMapping].Success != 1 {
		t.Fatalf("unexpected metrics %+v", snap.Operations)
	}
	if snap.RecordsIndexed != 3 || snap.ObservationsIndexed != 4 {
		t.Fatalf("indexed counts %d/%d", snap.RecordsIndexed, snap.ObservationsIndexed)
	}
	if !snap.LastSuccess.Equal(testNow) {
		t.Fatalf("last success = %v", snap.LastSuccess)
	}
}

func TestRunAbsoluteFolder(t *testing.T) {
	folder := t.TempDir()
	var buf bytes.Buffer
	zw := gzip.NewWriter(&buf)
	fmt.Fprintln(zw, header)
	fmt.Fprintln(zw, "2024-02-01,US,BA.1,10,1,8,1,0.2,0.01,0.1,0.02")
	fmt.Fprintln(zw, "2024-02-08,DE,BA.2,5,1,4,1,0.1,0.01,0.2,0.01")
	if err := zw.Close(); err != nil {
		t.Fatalf("gzip: %v", err)
	}
	if err := os.WriteFile(filepath.Join(folder, grs.DataFile), buf.Bytes(), 0o600); err != nil {
		t.Fatalf("write: %v", err)
	}
	store, err := blob.Open(context.Background(), blob.Config{Root: "."})
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	index := docstore.NewMemory("grs")
	r := NewRunner(store, index, WithClock(grs.ClockFunc(func() time.Time { return testNow })))

	report, err := r.Run(context.Background(), folder)
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if report.Records != 2 {
		t.Fatalf("records = %d want 2", report.Records)
	}
	if _, err := index.Get(context.Background(), "DE_BA.2"); err != nil {
		t.Fatalf("DE_BA.2 not indexed: %v", err)
	}

	_, err = r.Run(context.Background(), filepath.Join(folder, "absent"))
	if !errors.Is(err, grs.ErrIO) || !errors.Is(err, fs.ErrNotExist) {
		t.Fatalf("missing absolute folder: got %v", err)
	}
}

func TestRunIsIdempotent(t *testing.T) {
	store := sampleStore(t)
	index := docstore.NewMemory("grs")
	r := NewRunner(store, index, WithClock(grs.ClockFunc(func() time.Time { return testNow })))
	for i := 0; i < 2; i++ {
		if _, err := r.Run(context.Background(), "latest"); err != nil {
			t.Fatalf("run %d: %v", i, err)
		}
	}
	if n, _ := index.Count(context.Background()); n != 3 {
		t.Fatalf("count = %d after rerun", n)
	}
}

func TestRunWindowOption(t *testing.T) {
	index := docstore.NewMemory("grs")
	r := NewRunner(sampleStore(t), index,
		WithClock(grs.ClockFunc(func() time.Time { return testNow })),
		WithWindow(7*24*time.Hour),
	)
	report, err := r.Run(context.Background(), "latest")
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if report.Records != 0 || report.Batches != 0 {
		t.Fatalf("expected empty window, got %+v", report)
	}
}

type failingIndex struct {
	*docstore.MemoryIndex
	mappingErr error
	upsertErr  error
}

func (f failingIndex) PutMapping(ctx context.Context, m mapping.Mapping) error {
	if f.mappingErr != nil {
		return f.mappingErr
	}
	return f.MemoryIndex.PutMapping(ctx, m)
}

func (f failingIndex) Upsert(ctx context.Context, records []grs.Record) (int, error) {
	if f.upsertErr != nil {
		return 0, f.upsertErr
	}
	return f.MemoryIndex.Upsert(ctx, records)
}

func TestRunErrors(t *testing.T) {
	clock := WithClock(grs.ClockFunc(func() time.Time { return testNow }))

	if _, err := NewRunner(blob.NewMemory(), nil).Run(context.Background(), "x"); err == nil {
		t.Fatalf("expected error without index")
	}

	_, err := NewRunner(blob.NewMemory(), docstore.NewMemory("grs"), clock).Run(context.Background(), "absent")
	if !errors.Is(err, grs.ErrIO) || !errors.Is(err, blob.ErrNotFound) {
		t.Fatalf("expected missing input error, got %v", err)
	}

	boom := errors.New("index down")
	_, err = NewRunner(sampleStore(t), failingIndex{MemoryIndex: docstore.NewMemory("grs"), mappingErr: boom}, clock).Run(context.Background(), "latest")
	if !errors.Is(err, boom) || !strings.Contains(err.Error(), "put mapping") {
		t.Fatalf("expected mapping error, got %v", err)
	}

	metrics := observability.NewExpvarRecorder("")
	report, err := NewRunner(sampleStore(t), failingIndex{MemoryIndex: docstore.NewMemory("grs"), upsertErr: boom}, clock, WithMetrics(metrics)).Run(context.Background(), "latest")
	if !errors.Is(err, boom) || report.Records != 0 {
		t.Fatalf("expected upsert error, got %v %+v", err, report)
	}
	if snap := metrics.Snapshot(); snap.Operations[OpRun].Error != 1 || snap.Operations[OpUpsert].Error != 1 || !snap.LastSuccess.IsZero() {
		t.Fatalf("unexpected metrics %+v", snap)
	}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := NewRunner(sampleStore(t), docstore.NewMemory("grs"), clock).Run(ctx, "latest"); !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
}

func readNDJSON(t *testing.T, data []byte) []grs.Record {
	t.Helper()
	zr, err := gzip.NewReader(bytes.NewReader(data))
	if err != nil {
		t.Fatalf("gunzip: %v", err)
	}
	defer func() { _ = zr.Close() }()
	var out []grs.Record
	sc := bufio.NewScanner(zr)
	sc.Buffer(make([]byte, 0, 64*1024), 4<<20)
	for sc.Scan() {
		var rec struct {
			ID       string `json:"_id"`
			Location string `json:"location"`
			Lineage  string `json:"lineage"`
		}
		if err := json.Unmarshal(sc.Bytes(), &rec); err != nil {
			t.Fatalf("line %q: %v", sc.Text(), err)
		}
		out = append(out, grs.Record{ID: rec.ID, Location: rec.Location, Lineage: rec.Lineage})
	}
	if err := sc.Err(); err != nil {
		t.Fatalf("scan: %v", err)
	}
	return out
}

func TestExport(t *testing.T) {
	r := NewRunner(sampleStore(t), nil, WithClock(grs.ClockFunc(func() time.Time { return testNow })))
	var buf bytes.Buffer
	res, err := r.Export(context.Background(), "latest", &buf)
	if err != nil {
		t.Fatalf("export: %v", err)
	}
	if res.Records != 3 || res.Bytes != int64(buf.Len()) {
		t.Fatalf("unexpected result %+v (buffer %d)", res, buf.Len())
	}
	recs := readNDJSON(t, buf.Bytes())
	var ids []string
	for _, rec := range recs {
		ids = append(ids, rec.ID)
	}
	if diff := cmp.Diff([]string{"DE_BA.1", "DE_BA.2", "US_BA.1"}, ids); diff != "" {
		t.Fatalf("exported ids (-want +got):\n%s", diff)
	}

	if _, err := r.Export(context.Background(), "absent", &bytes.Buffer{}); !errors.Is(err, grs.ErrIO) {
		t.Fatalf("expected ErrIO, got %v", err)
	}
}

func TestArchive(t *testing.T) {
	store := sampleStore(t)
	r := NewRunner(store, nil, WithClock(grs.ClockFunc(func() time.Time { return testNow })))
	res, err := r.Archive(context.Background(), "latest", "run-1")
	if err != nil {
		t.Fatalf("archive: %v", err)
	}
	if res.Archive == nil || res.Archive.Key != "exports/2024-03-01/run-1.ndjson.gz" || res.RunID != "run-1" {
		t.Fatalf("unexpected archive %+v", res)
	}
	info, rc, err := store.Get(context.Background(), res.Archive.Key)
	if err != nil {
		t.Fatalf("get archive: %v", err)
	}
	var buf bytes.Buffer
	_, _ = buf.ReadFrom(rc)
	_ = rc.Close()
	if info.ContentType != ExportContentType || info.Metadata["records"] != "3" || info.Metadata["folder"] != "latest" {
		t.Fatalf("unexpected archive info %+v", info)
	}
	if got := len(readNDJSON(t, buf.Bytes())); got != 3 {
		t.Fatalf("archived %d records", got)
	}
	if _, err := r.Archive(context.Background(), "latest", "run-1"); !errors.Is(err, blob.ErrExists) {
		t.Fatalf("expected ErrExists on duplicate archive, got %v", err)
	}
}

func TestNewRunID(t *testing.T) {
	a, b := NewRunID(), NewRunID()
	if a == b || len(a) != 36 {
		t.Fatalf("unexpected run ids %q %q", a, b)
	}
}
