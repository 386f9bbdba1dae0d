package ingest

import (
	"math"
	"time"

	"github.com/montanaflynn/stats"

	"growthindex/internal/grs"
)

// Report summarizes one ingest run.
type Report struct {
	RunID        string     `json:"run_id"`
	Folder       string     `json:"folder"`
	Index        string     `json:"index"`
	Driver       string     `json:"driver"`
	StartedAt    time.Time  `json:"started_at"`
	FinishedAt   time.Time  `json:"finished_at"`
	WindowStart  time.Time  `json:"window_start"`
	Records      int        `json:"records"`
	Observations int        `json:"observations"`
	Batches      int        `json:"batches"`
	Locations    int        `json:"locations"`
	Lineages     int        `json:"lineages"`
	SNR          SNRSummary `json:"snr"`
}

// SNRSummary describes the distribution of each entity's latest finite
// signal-to-noise ratio. Entities whose latest snr is infinite are counted
// separately.
type SNRSummary struct {
	Count    int     `json:"count"`
	Infinite int     `json:"infinite"`
	Min      float64 `json:"min"`
	Median   float64 `json:"median"`
	P95      float64 `json:"p95"`
	Max      float64 `json:"max"`
}

type summary struct {
	snrs      []float64
	infinite  int
	locations map[string]struct{}
	lineages  map[string]struct{}
}

func newSummary() *summary {
	return &summary{
		locations: make(map[string]struct{}),
		lineages:  make(map[string]struct{}),
	}
}

func (s *summary) add(rec grs.Record) {
	s.locations[rec.Location] = struct{}{}
	s.lineages[rec.Lineage] = struct{}{}
	latest, ok := rec.Latest()
	if !ok {
		return
	}
	v, _ := latest.Value("snr")
	if math.IsInf(v, 0) {
		s.infinite++
		return
	}
	s.snrs = append(s.snrs, v)
}

func (s *summary) locationCount() int { return len(s.locations) }
func (s *summary) lineageCount() int  { return len(s.lineages) }

func (s *summary) snr() SNRSummary {
	out := SNRSummary{Count: len(s.snrs), Infinite: s.infinite}
	if len(s.snrs) == 0 {
		return out
	}
	data := stats.Float64Data(s.snrs)
	// errors only arise for empty input, excluded above
	out.Min, _ = data.Min()
	out.Max, _ = data.Max()
	out.Median, _ = data.Median()
	out.P95, _ = data.Percentile(95)
	return out
}
