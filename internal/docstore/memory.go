package docstore

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"sync"
	"time"

	"growthindex/internal/grs"
	"growthindex/internal/mapping"
)

// MemoryIndex keeps documents in process memory.
type MemoryIndex struct {
	name  string
	nowFn func() time.Time

	mu      sync.RWMutex
	docs    map[string]Document
	mapping []byte
}

// NewMemory returns an empty in-memory index.
func NewMemory(name string) *MemoryIndex {
	if name == "" {
		name = DefaultName
	}
	return &MemoryIndex{
		name:  name,
		nowFn: func() time.Time { return time.Now().UTC() },
		docs:  make(map[string]Document),
	}
}

// Name implements Index.
func (m *MemoryIndex) Name() string { return m.name }

// Driver implements Index.
func (m *MemoryIndex) Driver() Driver { return DriverMemory }

// Close implements Index.
func (m *MemoryIndex) Close() error { return nil }

// PutMapping implements Index.
func (m *MemoryIndex) PutMapping(_ context.Context, mp mapping.Mapping) error {
	b, err := json.Marshal(mp)
	if err != nil {
		return fmt.Errorf("encode mapping: %w", err)
	}
	m.mu.Lock()
	m.mapping = b
	m.mu.Unlock()
	return nil
}

// Mapping implements Index.
func (m *MemoryIndex) Mapping(_ context.Context) (mapping.Mapping, error) {
	m.mu.RLock()
	b := m.mapping
	m.mu.RUnlock()
	if b == nil {
		return nil, fmt.Errorf("mapping %s: %w", m.name, ErrNotFound)
	}
	var out mapping.Mapping
	if err := json.Unmarshal(b, &out); err != nil {
		return nil, fmt.Errorf("decode mapping: %w", err)
	}
	return out, nil
}

// Upsert implements Index.
func (m *MemoryIndex) Upsert(ctx context.Context, records []grs.Record) (int, error) {
	encoded, err := encodeRecords(records)
	if err != nil {
		return 0, err
	}
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	now := m.nowFn()
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, e := range encoded {
		m.docs[e.id] = Document{ID: e.id, Body: e.body, UpdatedAt: now}
	}
	return len(encoded), nil
}

// Get implements Index.
func (m *MemoryIndex) Get(_ context.Context, id string) (Document, error) {
	m.mu.RLock()
	doc, ok := m.docs[id]
	m.mu.RUnlock()
	if !ok {
		return Document{}, fmt.Errorf("document %s: %w", id, ErrNotFound)
	}
	body := make(json.RawMessage, len(doc.Body))
	copy(body, doc.Body)
	doc.Body = body
	return doc, nil
}

// Count implements Index.
func (m *MemoryIndex) Count(_ context.Context) (int, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.docs), nil
}

// IDs returns the stored document IDs in sorted order.
func (m *MemoryIndex) IDs() []string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]string, 0, len(m.docs))
	for id := range m.docs {
		out = append(out, id)
	}
	sort.Strings(out)
	return out
}
