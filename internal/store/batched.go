package store

import (
	"encoding/json"
	"fmt"
	"sync"

	"github.com/jward/luasense/internal/typedef"
)

// BatchedStore buffers module summaries in memory so parallel warmup
// workers never contend on SQLite writes. Reads consult the buffer first
// and fall through to the underlying Store. CommitBatch writes everything
// in one transaction.
type BatchedStore struct {
	store *Store // for read passthrough
	mu    sync.Mutex

	Modules   []Module
	summaries map[string]*Summary
}

// Compile-time check: *BatchedStore satisfies SummaryStore.
var _ SummaryStore = (*BatchedStore)(nil)

// NewBatchedStore creates a BatchedStore backed by the given Store for read queries.
func NewBatchedStore(s *Store) *BatchedStore {
	return &BatchedStore{
		store:     s,
		summaries: make(map[string]*Summary),
	}
}

// PutModuleSummary encodes b and buffers m. Puts are committed in order, so
// a later put for the same name wins.
func (b *BatchedStore) PutModuleSummary(m *Module, bundle *typedef.Bundle) error {
	data, err := json.Marshal(bundle)
	if err != nil {
		return fmt.Errorf("encode summary %q: %w", m.Name, err)
	}
	m.Summary = data

	b.mu.Lock()
	defer b.mu.Unlock()
	b.Modules = append(b.Modules, *m)
	b.summaries[m.Name+"\x00"+m.Hash] = &Summary{Bundle: bundle, Deps: m.Deps}
	return nil
}

// ModuleSummary returns a buffered summary, or passes through to the
// underlying Store.
func (b *BatchedStore) ModuleSummary(name, hash string) (*Summary, error) {
	b.mu.Lock()
	sum, ok := b.summaries[name+"\x00"+hash]
	b.mu.Unlock()
	if ok {
		return sum, nil
	}
	return b.store.ModuleSummary(name, hash)
}

// Len returns the number of buffered modules.
func (b *BatchedStore) Len() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.Modules)
}
