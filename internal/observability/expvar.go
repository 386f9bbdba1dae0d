package observability

import (
	"context"
	"expvar"
	"fmt"
	"sync"
	"sync/atomic"
	"time"
)

var expvarSeq atomic.Uint64

// OperationStats aggregates one pipeline operation.
type OperationStats struct {
	Success    int64   `json:"success"`
	Error      int64   `json:"error"`
	DurationMS float64 `json:"duration_ms_total"`
}

// ExpvarSnapshot is the document published under the recorder's name.
type ExpvarSnapshot struct {
	Operations          map[string]OperationStats `json:"operations"`
	RecordsIndexed      int64                     `json:"records_indexed_total"`
	ObservationsIndexed int64                     `json:"observations_indexed_total"`
	LastSuccess         time.Time                 `json:"last_success,omitzero"`
}

// ExpvarRecorder keeps the same run metrics as PrometheusRecorder and serves
// them on /debug/vars.
type ExpvarRecorder struct {
	name string

	mu           sync.Mutex
	ops          map[string]OperationStats
	records      int64
	observations int64
	lastSuccess  time.Time
}

// NewExpvarRecorder publishes a recorder under name. expvar names are
// process-global, so an empty name is replaced by grsindex_metrics_<n>.
func NewExpvarRecorder(name string) *ExpvarRecorder {
	if name == "" {
		name = fmt.Sprintf("grsindex_metrics_%d", expvarSeq.Add(1))
	}
	r := &ExpvarRecorder{name: name, ops: make(map[string]OperationStats)}
	expvar.Publish(name, expvar.Func(func() any { return r.Snapshot() }))
	return r
}

// Name returns the expvar export name.
func (r *ExpvarRecorder) Name() string { return r.name }

// Observe implements MetricsRecorder.
func (r *ExpvarRecorder) Observe(_ context.Context, operation string, success bool, duration time.Duration) {
	if operation == "" {
		return
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	st := r.ops[operation]
	if success {
		st.Success++
	} else {
		st.Error++
	}
	st.DurationMS += float64(duration) / float64(time.Millisecond)
	r.ops[operation] = st
}

// AddIndexed implements IndexCounter.
func (r *ExpvarRecorder) AddIndexed(records, observations int) {
	r.mu.Lock()
	r.records += int64(records)
	r.observations += int64(observations)
	r.mu.Unlock()
}

// MarkSuccess implements SuccessMarker.
func (r *ExpvarRecorder) MarkSuccess(at time.Time) {
	r.mu.Lock()
	r.lastSuccess = at.UTC()
	r.mu.Unlock()
}

// Snapshot returns a copy of the current values.
func (r *ExpvarRecorder) Snapshot() ExpvarSnapshot {
	r.mu.Lock()
	defer r.mu.Unlock()
	ops := make(map[string]OperationStats, len(r.ops))
	for name, st := range r.ops {
		ops[name] = st
	}
	return ExpvarSnapshot{
		Operations:          ops,
		RecordsIndexed:      r.records,
		ObservationsIndexed: r.observations,
		LastSuccess:         r.lastSuccess,
	}
}

func outcome(success bool) string {
	if success {
		return "success"
	}
	return "error"
}
