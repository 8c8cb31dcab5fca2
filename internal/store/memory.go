// ABOUTME: In-memory Store implementation
// ABOUTME: Used by tests and by ephemeral CLI sessions that should not touch disk

package store

import (
	"context"
	"slices"
	"sort"
	"sync"
	"time"
)

// MemoryStore is an in-memory Store implementation.
type MemoryStore struct {
	mu      sync.RWMutex
	seq     int64
	records map[string][]UpdateRecord // keyed by document
}

// NewMemoryStore creates an empty MemoryStore.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{records: make(map[string][]UpdateRecord)}
}

// AppendUpdate stores a copy of payload.
func (m *MemoryStore) AppendUpdate(ctx context.Context, document string, payload []byte) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.seq++
	m.records[document] = append(m.records[document], UpdateRecord{
		Seq:       m.seq,
		Document:  document,
		Payload:   slices.Clone(payload),
		CreatedAt: time.Now().UTC(),
	})
	return m.seq, nil
}

// LoadUpdates returns copies of the records after afterSeq.
func (m *MemoryStore) LoadUpdates(ctx context.Context, document string, afterSeq int64) ([]UpdateRecord, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var out []UpdateRecord
	for _, rec := range m.records[document] {
		if rec.Seq > afterSeq {
			rec.Payload = slices.Clone(rec.Payload)
			out = append(out, rec)
		}
	}
	return out, nil
}

// Compact replaces the document's records with one snapshot.
func (m *MemoryStore) Compact(ctx context.Context, document string, snapshot []byte) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.seq++
	m.records[document] = []UpdateRecord{{
		Seq:       m.seq,
		Document:  document,
		Payload:   slices.Clone(snapshot),
		Snapshot:  true,
		CreatedAt: time.Now().UTC(),
	}}
	return m.seq, nil
}

// DocumentStats returns log statistics for document.
func (m *MemoryStore) DocumentStats(ctx context.Context, document string) (*DocumentStats, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	recs := m.records[document]
	if len(recs) == 0 {
		return nil, ErrNotFound
	}
	stats := &DocumentStats{Document: document, Updates: len(recs)}
	for _, rec := range recs {
		stats.Bytes += int64(len(rec.Payload))
		stats.LastSeq = rec.Seq
		stats.UpdatedAt = rec.CreatedAt
	}
	return stats, nil
}

// ListDocuments returns every document name in sorted order.
func (m *MemoryStore) ListDocuments(ctx context.Context) ([]string, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	out := make([]string, 0, len(m.records))
	for name, recs := range m.records {
		if len(recs) > 0 {
			out = append(out, name)
		}
	}
	sort.Strings(out)
	return out, nil
}

// Close is a no-op.
func (m *MemoryStore) Close() error {
	return nil
}

var (
	_ Store = (*SQLiteStore)(nil)
	_ Store = (*MemoryStore)(nil)
)
