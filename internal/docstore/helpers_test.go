package docstore

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"

	"growthindex/internal/grs"
	"growthindex/internal/mapping"
)

func testRecord(loc, lin string, n7 float64) grs.Record {
	row := grs.NewRow(time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC), loc, lin, map[string]float64{"N_7": n7, "G_7": 0.1, "deltaG_7": 0.02})
	return grs.GroupRecords([]grs.Row{row})[0]
}

// exerciseIndex runs the behavior every driver shares.
func exerciseIndex(t *testing.T, idx Index) {
	t.Helper()
	ctx := context.Background()

	if _, err := idx.Mapping(ctx); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound before PutMapping, got %v", err)
	}
	want := mapping.CustomDataMapping(nil)
	if err := idx.PutMapping(ctx, want); err != nil {
		t.Fatalf("put mapping: %v", err)
	}
	if err := idx.PutMapping(ctx, want); err != nil {
		t.Fatalf("replace mapping: %v", err)
	}
	got, err := idx.Mapping(ctx)
	if err != nil {
		t.Fatalf("mapping: %v", err)
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Fatalf("mapping (-want +got):\n%s", diff)
	}

	n, err := idx.Upsert(ctx, []grs.Record{testRecord("US", "BA.1", 1), testRecord("DE", "BA.2", 2)})
	if err != nil || n != 2 {
		t.Fatalf("upsert: %d %v", n, err)
	}
	n, err = idx.Upsert(ctx, []grs.Record{testRecord("US", "BA.1", 7)})
	if err != nil || n != 1 {
		t.Fatalf("re-upsert: %d %v", n, err)
	}
	if n, err := idx.Upsert(ctx, nil); err != nil || n != 0 {
		t.Fatalf("empty upsert: %d %v", n, err)
	}
	count, err := idx.Count(ctx)
	if err != nil || count != 2 {
		t.Fatalf("count: %d %v", count, err)
	}

	doc, err := idx.Get(ctx, "US_BA.1")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	var body struct {
		ID       string           `json:"_id"`
		Location string           `json:"location"`
		Values   []map[string]any `json:"values"`
	}
	if err := doc.Decode(&body); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if body.ID != "US_BA.1" || body.Location != "US" || body.Values[0]["N_7"] != 7.0 {
		t.Fatalf("upsert did not replace document: %+v", body)
	}
	if doc.ID != "US_BA.1" || doc.UpdatedAt.IsZero() {
		t.Fatalf("unexpected document %+v", doc)
	}
	if _, err := idx.Get(ctx, "FR_BA.1"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
	if _, err := idx.Upsert(ctx, []grs.Record{{Location: "US"}}); err == nil {
		t.Fatalf("expected error for record without id")
	}
}
