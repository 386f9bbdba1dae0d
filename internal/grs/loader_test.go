package grs

import (
	"context"
	"errors"
	"io"
	"io/fs"
	"strings"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
)

func TestLoadEndToEnd(t *testing.T) {
	data := gzipCSV(t,
		testHeader,
		csvRow(0, "2024-01-01", "US", "BA.1", 0.0, 0.01),
		csvRow(1, "2024-01-02", "US", "BA.1", 0.0, 0.01),
	)
	l := NewLoader(folderSource("data", data), WithClock(fixedClock(day("2024-01-10"))))
	records, err := collect(t, l, "data")
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if len(records) != 1 {
		t.Fatalf("got %d records want 1", len(records))
	}
	rec := records[0]
	if rec.ID != "US_BA.1" || rec.Location != "US" || rec.Lineage != "BA.1" {
		t.Fatalf("unexpected record %v", rec)
	}
	if diff := cmp.Diff(map[int]any{0: "2024-01-01", 1: "2024-01-02"}, rec.FieldMap("date")); diff != "" {
		t.Fatalf("date map (-want +got):\n%s", diff)
	}
	if diff := cmp.Diff(map[int]any{0: 0.0, 1: 0.0}, rec.FieldMap("G_7_linear")); diff != "" {
		t.Fatalf("G_7_linear map (-want +got):\n%s", diff)
	}
}

func TestLoadWindowBoundaries(t *testing.T) {
	now := time.Date(2024, 4, 1, 0, 0, 0, 0, time.UTC)
	ago := func(days int) string { return now.AddDate(0, 0, -days).Format(DateLayout) }
	data := gzipCSV(t,
		testHeader,
		csvRow(0, ago(91), "US", "BA.1", 0.1, 0.02),
		csvRow(1, ago(90), "US", "BA.1", 0.1, 0.02),
		csvRow(2, ago(89), "US", "BA.1", 0.1, 0.02),
		csvRow(3, ago(120), "DE", "BA.1", 0.1, 0.02),
		csvRow(4, "", "FR", "BA.1", 0.1, 0.02),
	)
	l := NewLoader(folderSource("w", data), WithClock(fixedClock(now)))
	records, err := collect(t, l, "w")
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if len(records) != 1 {
		t.Fatalf("expected only US_BA.1, got %v", records)
	}
	if diff := cmp.Diff(map[int]any{0: ago(90), 1: ago(89)}, records[0].FieldMap("date")); diff != "" {
		t.Fatalf("window dates (-want +got):\n%s", diff)
	}
}

func TestLoadCustomWindow(t *testing.T) {
	now := day("2024-01-10")
	data := gzipCSV(t,
		testHeader,
		csvRow(0, "2024-01-01", "US", "BA.1", 0.1, 0.02),
		csvRow(1, "2024-01-09", "US", "BA.1", 0.1, 0.02),
	)
	l := NewLoader(folderSource("d", data), WithClock(fixedClock(now)), WithWindow(7*24*time.Hour))
	if l.Window() != 7*24*time.Hour {
		t.Fatalf("window = %v", l.Window())
	}
	records, err := collect(t, l, "d")
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if len(records) != 1 || len(records[0].Values) != 1 || records[0].Values[0].Date != "2024-01-09" {
		t.Fatalf("unexpected records %v", records)
	}
}

func TestLoadGroupsSortedAndDropsEmptyKeys(t *testing.T) {
	data := gzipCSV(t,
		testHeader,
		csvRow(0, "2024-01-02", "US", "BA.2", 0.1, 0.02),
		csvRow(1, "2024-01-02", "DE", "BA.1", 0.1, 0.02),
		csvRow(2, "2024-01-03", "US", "BA.1", 0.1, 0.02),
		csvRow(3, "2024-01-01", "US", "BA.1", 0.1, 0.02),
		csvRow(4, "2024-01-01", "", "BA.1", 0.1, 0.02),
		csvRow(5, "2024-01-01", "US", "", 0.1, 0.02),
		csvRow(6, "2024-01-01", "NA", "BA.1", 0.1, 0.02),
		csvRow(7, "2024-01-01", "US", "null", 0.1, 0.02),
		csvRow(8, "2024-01-01", "nan", "NaN", 0.1, 0.02),
	)
	l := NewLoader(folderSource("g", data), WithClock(fixedClock(day("2024-01-05"))))
	records, err := collect(t, l, "g")
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	var ids []string
	for _, r := range records {
		ids = append(ids, r.ID)
	}
	if diff := cmp.Diff([]string{"DE_BA.1", "US_BA.1", "US_BA.2"}, ids); diff != "" {
		t.Fatalf("ids (-want +got):\n%s", diff)
	}
	// input order within an entity is preserved
	if diff := cmp.Diff(map[int]any{0: "2024-01-03", 1: "2024-01-01"}, records[1].FieldMap("date")); diff != "" {
		t.Fatalf("US_BA.1 dates (-want +got):\n%s", diff)
	}
}

func TestLoadIsSingleUse(t *testing.T) {
	data := gzipCSV(t, testHeader, csvRow(0, "2024-01-01", "US", "BA.1", 0.1, 0.02))
	seq := NewLoader(folderSource("s", data), WithClock(fixedClock(day("2024-01-02")))).Load(context.Background(), "s")
	n := 0
	for _, err := range seq {
		if err != nil {
			t.Fatalf("first pass: %v", err)
		}
		n++
	}
	if n != 1 {
		t.Fatalf("first pass yielded %d records", n)
	}
	for _, err := range seq {
		if !errors.Is(err, ErrConsumed) {
			t.Fatalf("second pass: got %v want ErrConsumed", err)
		}
	}
}

func TestLoadStopsEarly(t *testing.T) {
	data := gzipCSV(t,
		testHeader,
		csvRow(0, "2024-01-01", "A", "x", 0.1, 0.02),
		csvRow(1, "2024-01-01", "B", "x", 0.1, 0.02),
		csvRow(2, "2024-01-01", "C", "x", 0.1, 0.02),
	)
	l := NewLoader(folderSource("e", data), WithClock(fixedClock(day("2024-01-02"))))
	n := 0
	for rec, err := range l.Load(context.Background(), "e") {
		if err != nil {
			t.Fatalf("load: %v", err)
		}
		n++
		if rec.ID == "A_x" {
			break
		}
	}
	if n != 1 {
		t.Fatalf("yielded %d records after break", n)
	}
}

func TestLoadCanceled(t *testing.T) {
	data := gzipCSV(t, testHeader, csvRow(0, "2024-01-01", "US", "BA.1", 0.1, 0.02))
	l := NewLoader(folderSource("c", data), WithClock(fixedClock(day("2024-01-02"))))
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	var got error
	for _, err := range l.Load(ctx, "c") {
		got = err
	}
	if !errors.Is(got, context.Canceled) {
		t.Fatalf("got %v want context.Canceled", got)
	}
}

func TestLoadErrors(t *testing.T) {
	t.Run("missing file", func(t *testing.T) {
		l := NewLoader(folderSource("present", nil))
		_, err := collect(t, l, "absent")
		var ioErr *IOError
		if !errors.As(err, &ioErr) || ioErr.Op != "open" || ioErr.Path != "absent/grs.csv.gz" {
			t.Fatalf("expected open IOError, got %v", err)
		}
		if !errors.Is(err, ErrIO) || !errors.Is(err, fs.ErrNotExist) {
			t.Fatalf("expected ErrIO wrapping fs.ErrNotExist, got %v", err)
		}
	})
	t.Run("schema", func(t *testing.T) {
		l := NewLoader(folderSource("d", gzipCSV(t, "date,loc,lin")))
		if _, err := collect(t, l, "d"); !errors.Is(err, ErrSchema) {
			t.Fatalf("got %v want ErrSchema", err)
		}
	})
	t.Run("parse", func(t *testing.T) {
		data := gzipCSV(t, testHeader, "0,2024-13-40,US,BA.1,1,1,1,1,1,1,1,1")
		l := NewLoader(folderSource("d", data))
		if _, err := collect(t, l, "d"); !errors.Is(err, ErrParse) {
			t.Fatalf("got %v want ErrParse", err)
		}
	})
	t.Run("source", func(t *testing.T) {
		boom := errors.New("boom")
		l := NewLoader(SourceFunc(func(context.Context, string) (io.ReadCloser, error) {
			return io.NopCloser(strings.NewReader("")), boom
		}))
		if _, err := collect(t, l, "d"); !errors.Is(err, boom) || !errors.Is(err, ErrIO) {
			t.Fatalf("got %v want wrapped boom", err)
		}
	})
}

func TestTransform(t *testing.T) {
	input := testHeader + "\n" +
		csvRow(0, "2023-01-01", "US", "BA.1", 0.1, 0.02) + "\n" +
		csvRow(1, "2024-01-01", "US", "BA.1", 0.1, 0.02) + "\n"
	table, err := ReadCSV(strings.NewReader(input))
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	records := Transform(table, day("2024-01-02"), DefaultWindow)
	if len(records) != 1 || len(records[0].Values) != 1 {
		t.Fatalf("unexpected records %v", records)
	}
	if all := GroupRecords(table.Rows); len(all[0].Values) != 2 {
		t.Fatalf("GroupRecords applied a window: %v", all)
	}
}
